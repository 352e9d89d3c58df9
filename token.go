// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package openid

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"strconv"
	"time"
)

// TokenLifetime bounds how long a minted bridge token stays valid. It also
// bounds how stale a cached association ConstructRedirect will accept before
// negotiating a replacement.
const TokenLifetime = 5 * time.Minute

// tokenFields is the bridge state carried across the redirect inside the
// opaque token.
type tokenFields struct {
	nonce      string
	consumerID string
	serverID   string
	serverURL  string
}

// mintToken serializes the bridge state into an opaque, tamper-evident
// token: base64(HMAC_SHA1(authKey, joined) || joined) where joined is the
// decimal timestamp and the four fields separated by NUL bytes. The token is
// standard base64; callers URL-encode it as needed.
func mintToken(authKey []byte, now time.Time, f tokenFields) string {
	joined := bytes.Join([][]byte{
		[]byte(strconv.FormatInt(now.Unix(), 10)),
		[]byte(f.nonce),
		[]byte(f.consumerID),
		[]byte(f.serverID),
		[]byte(f.serverURL),
	}, []byte{0})
	mac := hmac.New(sha1.New, authKey)
	mac.Write(joined)
	return base64.StdEncoding.EncodeToString(append(mac.Sum(nil), joined...))
}

// verifyToken authenticates and unpacks a bridge token. It rejects tokens
// whose MAC does not match under authKey (constant-time compare), whose
// field count is wrong, or whose timestamp is zero or strictly older than
// TokenLifetime.
func verifyToken(authKey []byte, now time.Time, token string) (*tokenFields, error) {
	const op = "openid.verifyToken"
	raw, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("%s: token is not valid base64: %w", op, ErrMalformedToken)
	}
	if len(raw) < sha1.Size {
		return nil, fmt.Errorf("%s: token too short: %w", op, ErrMalformedToken)
	}
	sig, joined := raw[:sha1.Size], raw[sha1.Size:]
	mac := hmac.New(sha1.New, authKey)
	mac.Write(joined)
	if !hmac.Equal(sig, mac.Sum(nil)) {
		return nil, fmt.Errorf("%s: token MAC mismatch: %w", op, ErrInvalidSignature)
	}
	parts := bytes.Split(joined, []byte{0})
	if len(parts) != 5 {
		return nil, fmt.Errorf("%s: token has %d fields, want 5: %w", op, len(parts), ErrMalformedToken)
	}
	ts, err := strconv.ParseInt(string(parts[0]), 10, 64)
	if err != nil || ts == 0 {
		return nil, fmt.Errorf("%s: bad token timestamp: %w", op, ErrMalformedToken)
	}
	if time.Unix(ts, 0).Add(TokenLifetime).Before(now) {
		return nil, fmt.Errorf("%s: %w", op, ErrExpiredToken)
	}
	return &tokenFields{
		nonce:      string(parts[1]),
		consumerID: string(parts[2]),
		serverID:   string(parts[3]),
		serverURL:  string(parts[4]),
	}, nil
}
