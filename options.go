// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package openid

import (
	"math/big"
	"time"

	"github.com/hashicorp/go-hclog"
)

// Option defines a common functional options type
type Option func(interface{})

// ApplyOpts takes a pointer to the options struct as a set of default options
// and applies the slice of opts as overrides.
func ApplyOpts(opts interface{}, opt ...Option) {
	for _, o := range opt {
		if o == nil {
			continue
		}
		o(opts)
	}
}

// WithNow provides an optional time source, which is used anywhere the
// package needs the current time: token minting/expiry and association
// lifetimes. Mostly useful for testing.
func WithNow(now func() time.Time) Option {
	return func(o interface{}) {
		switch v := o.(type) {
		case *consumerOptions:
			v.withNowFunc = now
		}
	}
}

// WithLogger provides an optional hclog.Logger used as the package's single
// logging sink. Protocol-level warnings (a provider rejecting an associate
// request, a malformed response, an invalid signature) are reported here and
// otherwise swallowed. The default is a null logger.
func WithLogger(l hclog.Logger) Option {
	return func(o interface{}) {
		switch v := o.(type) {
		case *consumerOptions:
			v.withLogger = l
		}
	}
}

// WithFetcher provides an optional Fetcher for the consumer's outbound HTTP
// (discovery GET, associate POST, check_authentication POST). The default
// fetcher follows redirects on a pooled cleanhttp transport.
func WithFetcher(f Fetcher) Option {
	return func(o interface{}) {
		switch v := o.(type) {
		case *consumerOptions:
			v.withFetcher = f
		}
	}
}

// WithImmediateMode makes ConstructRedirect request a non-interactive answer
// from the provider (checkid_immediate). When the provider cannot answer
// without user interaction, CompleteAuth will report StatusSetupNeeded with
// the provider's setup URL.
func WithImmediateMode() Option {
	return func(o interface{}) {
		switch v := o.(type) {
		case *consumerOptions:
			v.withImmediate = true
		}
	}
}

// WithDHParams provides an optional Diffie-Hellman modulus and generator for
// association negotiation. When they differ from the well-known OpenID 1.x
// defaults, they are transmitted to the provider with the associate request.
func WithDHParams(p, g *big.Int) Option {
	return func(o interface{}) {
		switch v := o.(type) {
		case *consumerOptions:
			v.withDHModulus = p
			v.withDHGenerator = g
		}
	}
}

// WithDumbMode constructs a MemoryStore that reports itself as stateless,
// which disables association caching and forces check_authentication
// verification for every callback.
func WithDumbMode() Option {
	return func(o interface{}) {
		switch v := o.(type) {
		case *memoryStoreOptions:
			v.withDumb = true
		}
	}
}

// WithAuthKey provides an optional HMAC auth key for a MemoryStore. Without
// it the store generates a random key on first use. Sharing a key between
// stores keeps tokens minted against one verifiable by the other.
func WithAuthKey(key []byte) Option {
	return func(o interface{}) {
		switch v := o.(type) {
		case *memoryStoreOptions:
			v.withAuthKey = key
		}
	}
}
