// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package openid

import (
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDiffieHellman(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	d, err := NewDiffieHellman()
	require.NoError(err)
	assert.True(d.UsesDefaults())
	assert.Equal(1, d.Public().Sign())
	assert.True(d.Public().Cmp(defaultDHModulus) < 0)
}

func TestNewDiffieHellmanWith(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		p, g      *big.Int
		wantErr   bool
		wantIsErr error
	}{
		{name: "valid", p: big.NewInt(23), g: big.NewInt(5)},
		{name: "nil-modulus", p: nil, g: big.NewInt(5), wantErr: true, wantIsErr: ErrNilParameter},
		{name: "nil-generator", p: big.NewInt(23), g: nil, wantErr: true, wantIsErr: ErrNilParameter},
		{name: "negative-modulus", p: big.NewInt(-23), g: big.NewInt(5), wantErr: true, wantIsErr: ErrInvalidParameter},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert, require := assert.New(t), require.New(t)
			got, err := NewDiffieHellmanWith(tt.p, tt.g)
			if tt.wantErr {
				require.Error(err)
				assert.Truef(errors.Is(err, tt.wantIsErr), "wanted \"%s\" but got \"%s\"", tt.wantIsErr, err)
				return
			}
			require.NoError(err)
			assert.False(got.UsesDefaults())
		})
	}
}

func TestDiffieHellman_SharedSecret(t *testing.T) {
	t.Parallel()
	require := require.New(t)
	consumer, err := NewDiffieHellman()
	require.NoError(err)
	server, err := NewDiffieHellman()
	require.NoError(err)
	require.Equal(
		consumer.SharedSecret(server.Public()),
		server.SharedSecret(consumer.Public()),
	)
}

func TestDiffieHellman_XorSecret(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	consumer, err := NewDiffieHellman()
	require.NoError(err)
	server, err := NewDiffieHellman()
	require.NoError(err)

	secret := []byte("0123456789abcdefghij") // 20 bytes
	enc, err := server.XorSecret(consumer.Public(), secret)
	require.NoError(err)
	assert.NotEqual(secret, enc)

	// XorSecret is its own inverse across the two key agreement sides
	dec, err := consumer.XorSecret(server.Public(), enc)
	require.NoError(err)
	assert.Equal(secret, dec)

	_, err = consumer.XorSecret(server.Public(), []byte("short"))
	require.Error(err)
	assert.True(errors.Is(err, ErrInvalidParameter))
}

func TestIntToBytes(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		n    *big.Int
		want []byte
	}{
		{name: "zero", n: big.NewInt(0), want: []byte{0}},
		{name: "small", n: big.NewInt(127), want: []byte{127}},
		{name: "high-bit-gets-leading-zero", n: big.NewInt(128), want: []byte{0, 128}},
		{name: "two-bytes", n: big.NewInt(256), want: []byte{1, 0}},
		{name: "high-bit-second-byte", n: big.NewInt(0x8000), want: []byte{0, 0x80, 0}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert := assert.New(t)
			assert.Equal(tt.want, intToBytes(tt.n))
			assert.Equal(0, bytesToInt(tt.want).Cmp(tt.n))
		})
	}
}

func TestIntBase64RoundTrip(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	for _, n := range []*big.Int{big.NewInt(1), big.NewInt(1 << 40), defaultDHModulus} {
		got, err := base64ToInt(intToBase64(n))
		require.NoError(err)
		assert.Equal(0, got.Cmp(n))
	}
	_, err := base64ToInt("not base64!!!")
	require.Error(err)
}
