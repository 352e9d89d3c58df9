// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package openid

import (
	"crypto/rand"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"math/big"
)

// defaultDHModulusStr is the well-known OpenID 1.x Diffie-Hellman prime
// modulus. Providers assume it when dh_modulus is absent from an associate
// request.
const defaultDHModulusStr = "155172898181473697471232257763715539915724801" +
	"966915404479707795314057629378541917580651227423698188993727816152646631" +
	"438561595825688188889951272158842675419950341258706556549803580104870537" +
	"681476726513255747040765857479291291572334510643245094715007229621094194" +
	"349783925984760375594985848253359305585439638443"

var (
	defaultDHModulus, _ = new(big.Int).SetString(defaultDHModulusStr, 10)
	defaultDHGenerator  = big.NewInt(2)
)

// DiffieHellman holds one side of a DH-SHA1 key agreement: the group
// parameters, an ephemeral private exponent and the matching public value.
// A fresh context is created for every associate exchange.
type DiffieHellman struct {
	p, g   *big.Int
	x      *big.Int
	public *big.Int
}

// NewDiffieHellman creates a context over the default OpenID 1.x group.
func NewDiffieHellman() (*DiffieHellman, error) {
	return NewDiffieHellmanWith(defaultDHModulus, defaultDHGenerator)
}

// NewDiffieHellmanWith creates a context over the group (p, g). Non-default
// parameters must be sent to the provider alongside the consumer public key.
func NewDiffieHellmanWith(p, g *big.Int) (*DiffieHellman, error) {
	const op = "openid.NewDiffieHellmanWith"
	if p == nil || g == nil {
		return nil, fmt.Errorf("%s: missing modulus or generator: %w", op, ErrNilParameter)
	}
	if p.Cmp(big.NewInt(2)) <= 0 || g.Sign() <= 0 {
		return nil, fmt.Errorf("%s: modulus must be greater than 2 and generator positive: %w", op, ErrInvalidParameter)
	}
	// private exponent in [1, p-1)
	max := new(big.Int).Sub(p, big.NewInt(2))
	x, err := rand.Int(rand.Reader, max)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to generate private exponent: %w", op, err)
	}
	x.Add(x, big.NewInt(1))
	d := &DiffieHellman{
		p: new(big.Int).Set(p),
		g: new(big.Int).Set(g),
		x: x,
	}
	d.public = new(big.Int).Exp(d.g, d.x, d.p)
	return d, nil
}

// Public returns g^x mod p.
func (d *DiffieHellman) Public() *big.Int { return d.public }

// UsesDefaults reports whether the context uses the well-known OpenID group,
// in which case the associate request omits dh_modulus and dh_gen.
func (d *DiffieHellman) UsesDefaults() bool {
	return d.p.Cmp(defaultDHModulus) == 0 && d.g.Cmp(defaultDHGenerator) == 0
}

// SharedSecret computes serverPublic^x mod p.
func (d *DiffieHellman) SharedSecret(serverPublic *big.Int) *big.Int {
	return new(big.Int).Exp(serverPublic, d.x, d.p)
}

// XorSecret recovers the MAC secret from a DH-SHA1 session: the shared
// secret is hashed to 20 bytes with SHA-1 over its btwoc encoding, then
// XORed against the provider's enc_mac_key, which must be the same length.
func (d *DiffieHellman) XorSecret(serverPublic *big.Int, encMACKey []byte) ([]byte, error) {
	const op = "DiffieHellman.XorSecret"
	if serverPublic == nil {
		return nil, fmt.Errorf("%s: missing server public key: %w", op, ErrNilParameter)
	}
	shared := d.SharedSecret(serverPublic)
	h := sha1.Sum(intToBytes(shared))
	if len(encMACKey) != len(h) {
		return nil, fmt.Errorf("%s: enc_mac_key is %d bytes, want %d: %w", op, len(encMACKey), len(h), ErrInvalidParameter)
	}
	out := make([]byte, len(h))
	for i := range h {
		out[i] = h[i] ^ encMACKey[i]
	}
	return out, nil
}

// intToBytes encodes a non-negative big integer as btwoc: unsigned
// big-endian bytes with a leading zero byte whenever the high bit of the
// first byte would otherwise be set.
func intToBytes(n *big.Int) []byte {
	b := n.Bytes()
	if len(b) == 0 || b[0]&0x80 != 0 {
		b = append([]byte{0}, b...)
	}
	return b
}

func bytesToInt(b []byte) *big.Int {
	return new(big.Int).SetBytes(b)
}

// intToBase64 is the wire encoding for DH values: standard base64 over the
// btwoc bytes.
func intToBase64(n *big.Int) string {
	return base64.StdEncoding.EncodeToString(intToBytes(n))
}

func base64ToInt(s string) (*big.Int, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, err
	}
	return bytesToInt(b), nil
}
