// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package openid

import (
	"context"
	"errors"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// staticFetcher serves canned responses, for driving discovery without a
// network.
type staticFetcher struct {
	status   int
	finalURL string
	body     string
	err      error
}

func (f *staticFetcher) Get(ctx context.Context, rawURL string) (*FetchResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	final := f.finalURL
	if final == "" {
		final = rawURL
	}
	return &FetchResponse{Status: f.status, FinalURL: final, Body: []byte(f.body)}, nil
}

func (f *staticFetcher) Post(ctx context.Context, rawURL string, form url.Values) (*FetchResponse, error) {
	return nil, errors.New("static fetcher does not post")
}

func TestNormalizeURL(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{name: "adds-scheme-and-path", in: "alice.example", want: "http://alice.example/"},
		{name: "lowercases-host", in: "http://Alice.Example/Path", want: "http://alice.example/Path"},
		{name: "lowercases-scheme", in: "HTTP://alice.example/", want: "http://alice.example/"},
		{name: "elides-default-http-port", in: "http://alice.example:80/", want: "http://alice.example/"},
		{name: "elides-default-https-port", in: "https://alice.example:443/", want: "https://alice.example/"},
		{name: "keeps-custom-port", in: "http://alice.example:8080", want: "http://alice.example:8080/"},
		{name: "keeps-https-port-80", in: "https://alice.example:80/", want: "https://alice.example:80/"},
		{name: "keeps-query", in: "alice.example/?x=1", want: "http://alice.example/?x=1"},
		{name: "trims-whitespace", in: "  alice.example  ", want: "http://alice.example/"},
		{name: "empty", in: "", wantErr: true},
		{name: "unparseable", in: "http://alice ex ample/%zz", wantErr: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert, require := assert.New(t), require.New(t)
			got, err := NormalizeURL(tt.in)
			if tt.wantErr {
				require.Error(err)
				assert.True(errors.Is(err, ErrInvalidParameter))
				return
			}
			require.NoError(err)
			assert.Equal(tt.want, got)
		})
	}
}

func TestFindLinkRel(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		body     string
		rel      string
		want     string
		wantSome bool
	}{
		{
			name:     "simple",
			body:     `<html><head><link rel="openid.server" href="http://idp.example/op"></head></html>`,
			rel:      relOpenIDServer,
			want:     "http://idp.example/op",
			wantSome: true,
		},
		{
			name:     "case-insensitive-rel",
			body:     `<html><head><LINK REL="OpenID.Server" HREF="http://idp.example/op"></head></html>`,
			rel:      relOpenIDServer,
			want:     "http://idp.example/op",
			wantSome: true,
		},
		{
			name:     "unquoted-attributes",
			body:     `<html><head><link rel=openid.server href=http://idp.example/op></head></html>`,
			rel:      relOpenIDServer,
			want:     "http://idp.example/op",
			wantSome: true,
		},
		{
			name:     "multi-valued-rel",
			body:     `<html><head><link rel="alternate openid.server" href="http://idp.example/op"></head></html>`,
			rel:      relOpenIDServer,
			want:     "http://idp.example/op",
			wantSome: true,
		},
		{
			name: "first-match-wins",
			body: `<html><head>
				<link rel="openid.server" href="http://one.example/">
				<link rel="openid.server" href="http://two.example/">
			</head></html>`,
			rel:      relOpenIDServer,
			want:     "http://one.example/",
			wantSome: true,
		},
		{
			name:     "delegate",
			body:     `<html><head><link rel="openid.delegate" href="http://alice.id.example/"></head></html>`,
			rel:      relOpenIDDelegate,
			want:     "http://alice.id.example/",
			wantSome: true,
		},
		{
			name:     "unclosed-head-still-parses",
			body:     `<html><head><link rel="openid.server" href="http://idp.example/op"><body>hi`,
			rel:      relOpenIDServer,
			want:     "http://idp.example/op",
			wantSome: true,
		},
		{
			name:     "absent",
			body:     `<html><head><title>no links</title></head></html>`,
			rel:      relOpenIDServer,
			wantSome: false,
		},
		{
			name:     "substring-rel-does-not-match",
			body:     `<html><head><link rel="openid.serverish" href="http://idp.example/op"></head></html>`,
			rel:      relOpenIDServer,
			wantSome: false,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert := assert.New(t)
			got, ok := findLinkRel([]byte(tt.body), tt.rel)
			assert.Equal(tt.wantSome, ok)
			assert.Equal(tt.want, got)
		})
	}
}

func TestConsumer_Discover(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	newConsumer := func(t *testing.T, f Fetcher) *Consumer {
		c, err := NewConsumer(NewMemoryStore(), WithFetcher(f))
		require.NoError(t, err)
		return c
	}

	t.Run("success-no-delegate", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		c := newConsumer(t, &staticFetcher{
			status: 200,
			body:   `<html><head><link rel="openid.server" href="http://idp.example/op"></head></html>`,
		})
		got, res := c.discover(ctx, "Alice.Example")
		require.Equal(StatusSuccess, res.Status)
		assert.Equal("http://alice.example/", got.consumerID)
		assert.Equal("http://alice.example/", got.serverID)
		assert.Equal("http://idp.example/op", got.serverURL)
	})
	t.Run("success-with-delegate", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		c := newConsumer(t, &staticFetcher{
			status: 200,
			body: `<html><head>
				<link rel="openid.server" href="http://idp.example/op">
				<link rel="openid.delegate" href="http://Alice.ID.Example">
			</head></html>`,
		})
		got, res := c.discover(ctx, "alice.example")
		require.Equal(StatusSuccess, res.Status)
		assert.Equal("http://alice.example/", got.consumerID)
		assert.Equal("http://alice.id.example/", got.serverID)
	})
	t.Run("follows-redirect-to-final-url", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		c := newConsumer(t, &staticFetcher{
			status:   200,
			finalURL: "http://alice.example/canonical",
			body:     `<html><head><link rel="openid.server" href="http://idp.example/op"></head></html>`,
		})
		got, res := c.discover(ctx, "alice.example")
		require.Equal(StatusSuccess, res.Status)
		assert.Equal("http://alice.example/canonical", got.consumerID)
	})
	t.Run("fetch-error", func(t *testing.T) {
		require := require.New(t)
		c := newConsumer(t, &staticFetcher{err: errors.New("connection refused")})
		_, res := c.discover(ctx, "alice.example")
		require.Equal(StatusHTTPFailure, res.Status)
	})
	t.Run("non-200", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		c := newConsumer(t, &staticFetcher{status: 404, body: "not found"})
		_, res := c.discover(ctx, "alice.example")
		require.Equal(StatusHTTPFailure, res.Status)
		assert.Equal(404, res.HTTPStatus)
	})
	t.Run("no-server-link", func(t *testing.T) {
		require := require.New(t)
		c := newConsumer(t, &staticFetcher{status: 200, body: `<html><head></head></html>`})
		_, res := c.discover(ctx, "alice.example")
		require.Equal(StatusParseError, res.Status)
	})
}
