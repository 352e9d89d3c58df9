// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package openid

import (
	"errors"
)

var (
	ErrInvalidParameter  = errors.New("invalid parameter")
	ErrNilParameter      = errors.New("nil parameter")
	ErrIdGeneratorFailed = errors.New("id generation failed")
	ErrMalformedToken    = errors.New("malformed token")
	ErrExpiredToken      = errors.New("token is expired")
	ErrInvalidSignature  = errors.New("invalid signature")
	ErrInvalidNonce      = errors.New("invalid nonce")
	ErrNotFound          = errors.New("not found")
)
