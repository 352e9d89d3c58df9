// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package openid

import (
	"fmt"
	"sync"

	"github.com/hashicorp/go-uuid"
)

// MemoryStore implements Store with mutex-guarded maps. It is intended for
// tests and single-process deployments; it never evicts, so long-lived
// processes should supply a durable store with retention instead.
type MemoryStore struct {
	mu           sync.Mutex
	authKey      []byte
	dumb         bool
	associations map[string]*Association
	nonces       map[string]struct{}
}

// ensure that MemoryStore implements the Store interface
var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates a MemoryStore.
// Supported options: WithDumbMode, WithAuthKey.
func NewMemoryStore(opt ...Option) *MemoryStore {
	opts := getMemoryStoreOpts(opt...)
	return &MemoryStore{
		authKey:      opts.withAuthKey,
		dumb:         opts.withDumb,
		associations: make(map[string]*Association),
		nonces:       make(map[string]struct{}),
	}
}

// AuthKey returns the store's token MAC key, generating a random 20-byte key
// on first use when none was configured.
func (s *MemoryStore) AuthKey() ([]byte, error) {
	const op = "MemoryStore.AuthKey"
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.authKey == nil {
		key, err := uuid.GenerateRandomBytes(20)
		if err != nil {
			return nil, fmt.Errorf("%s: unable to generate auth key: %w", op, err)
		}
		s.authKey = key
	}
	return s.authKey, nil
}

// IsDumb reports whether the store was built with WithDumbMode.
func (s *MemoryStore) IsDumb() bool { return s.dumb }

// StoreAssociation saves the association for the provider endpoint.
func (s *MemoryStore) StoreAssociation(serverURL string, a *Association) error {
	const op = "MemoryStore.StoreAssociation"
	if a == nil {
		return fmt.Errorf("%s: missing association: %w", op, ErrNilParameter)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.associations[serverURL] = a
	return nil
}

// GetAssociation returns the stored association or nil.
func (s *MemoryStore) GetAssociation(serverURL string) (*Association, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.associations[serverURL], nil
}

// RemoveAssociation deletes the association iff its handle matches.
func (s *MemoryStore) RemoveAssociation(serverURL, handle string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.associations[serverURL]
	if !ok || a.Handle != handle {
		return false, nil
	}
	delete(s.associations, serverURL)
	return true, nil
}

// StoreNonce remembers an issued nonce.
func (s *MemoryStore) StoreNonce(nonce string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nonces[nonce] = struct{}{}
	return nil
}

// UseNonce consumes a nonce under the store lock, so exactly one caller can
// ever succeed for a given nonce.
func (s *MemoryStore) UseNonce(nonce string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.nonces[nonce]; !ok {
		return false
	}
	delete(s.nonces, nonce)
	return true
}

// memoryStoreOptions is the set of available options for NewMemoryStore
type memoryStoreOptions struct {
	withDumb    bool
	withAuthKey []byte
}

func memoryStoreDefaults() memoryStoreOptions {
	return memoryStoreOptions{}
}

func getMemoryStoreOpts(opt ...Option) memoryStoreOptions {
	opts := memoryStoreDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}
