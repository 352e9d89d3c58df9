// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package openid

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/hashicorp/cap/openid/internal/kvform"
)

// AssocTypeHMACSHA1 is the only association type this package negotiates or
// accepts.
const AssocTypeHMACSHA1 = "HMAC-SHA1"

// Association is a negotiated MAC secret shared with one provider endpoint.
// The provider cites the Handle in its callbacks; the Secret signs and
// verifies callback queries until the association expires.
type Association struct {
	// Handle is the opaque identifier the provider assigned.
	Handle string

	// Secret is the raw HMAC-SHA1 key.
	Secret []byte

	// Type is the association type, always AssocTypeHMACSHA1.
	Type string

	// IssuedAt is when the consumer completed the associate exchange.
	IssuedAt time.Time

	// Lifetime is the validity period granted by the provider.
	Lifetime time.Duration
}

// ExpiresIn returns the remaining validity at the given time. It is
// non-positive once the association has expired.
func (a *Association) ExpiresIn(now time.Time) time.Duration {
	return a.IssuedAt.Add(a.Lifetime).Sub(now)
}

// IsValid reports whether the association can still sign or verify at the
// given time.
func (a *Association) IsValid(now time.Time) bool {
	return a.ExpiresIn(now) > 0
}

// Sign computes the base64 HMAC-SHA1 signature over the KV-form base string
// for the named fields, in order. Field names are the unprefixed names from
// openid.signed; values are looked up in query under their openid. keys,
// with absent fields contributing an empty value.
func (a *Association) Sign(signedFields []string, query map[string]string) (string, error) {
	const op = "Association.Sign"
	if len(a.Secret) == 0 {
		return "", fmt.Errorf("%s: association has no secret: %w", op, ErrInvalidParameter)
	}
	base := signatureBase(signedFields, query)
	mac := hmac.New(sha1.New, a.Secret)
	mac.Write(base)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil)), nil
}

// signatureBase builds the KV-form base string for a signature: one
// name:value record per signed field, preserving the order of the signed
// list.
func signatureBase(signedFields []string, query map[string]string) []byte {
	values := make(map[string]string, len(signedFields))
	for _, name := range signedFields {
		values[name] = query["openid."+name]
	}
	return kvform.Marshal(signedFields, values)
}
