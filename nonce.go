// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package openid

import (
	"fmt"

	"github.com/hashicorp/vault/sdk/helper/base62"
)

// NonceLength is the length of the per-login nonce bound into the bridge
// token and written to the Store.
const NonceLength = 8

// NewNonce generates a fresh nonce from the base62 (alphanumeric) alphabet.
// A nonce is issued by BeginAuth, remembered by the Store during
// ConstructRedirect, and consumed exactly once by a successful CompleteAuth.
func NewNonce() (string, error) {
	const op = "openid.NewNonce"
	n, err := base62.Random(NonceLength)
	if err != nil {
		return "", fmt.Errorf("%s: unable to generate nonce: %w", op, ErrIdGeneratorFailed)
	}
	return n, nil
}
