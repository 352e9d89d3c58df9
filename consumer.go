// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package openid

import (
	"context"
	"fmt"
	"math/big"
	"net/url"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
)

// Consumer drives the relying-party side of the OpenID 1.x redirect flow.
// It holds no per-login state: everything a login needs between its two HTTP
// legs travels in the minted token or lives in the Store, so one Consumer
// serves any number of concurrent logins.
type Consumer struct {
	store     Store
	fetcher   Fetcher
	logger    hclog.Logger
	immediate bool

	// dhModulus/dhGenerator are the group for associate exchanges; when
	// they differ from the well-known defaults they are sent to the
	// provider explicitly.
	dhModulus   *big.Int
	dhGenerator *big.Int

	nowFunc func() time.Time
}

// NewConsumer creates a Consumer around the given store.
// Supported options: WithFetcher, WithLogger, WithImmediateMode,
// WithDHParams, WithNow.
func NewConsumer(store Store, opt ...Option) (*Consumer, error) {
	const op = "openid.NewConsumer"
	opts := getConsumerOpts(opt...)
	var result *multierror.Error
	if store == nil {
		result = multierror.Append(result, fmt.Errorf("missing store: %w", ErrNilParameter))
	}
	if (opts.withDHModulus == nil) != (opts.withDHGenerator == nil) {
		result = multierror.Append(result, fmt.Errorf("dh modulus and generator must be set together: %w", ErrInvalidParameter))
	}
	if err := result.ErrorOrNil(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &Consumer{
		store:       store,
		fetcher:     opts.withFetcher,
		logger:      opts.withLogger,
		immediate:   opts.withImmediate,
		dhModulus:   opts.withDHModulus,
		dhGenerator: opts.withDHGenerator,
		nowFunc:     opts.withNowFunc,
	}, nil
}

func (c *Consumer) now() time.Time {
	if c.nowFunc != nil {
		return c.nowFunc()
	}
	return time.Now()
}

// AuthRequest is the bridge state for one login attempt, returned by
// BeginAuth and consumed by ConstructRedirect. The caller is responsible for
// carrying Token across the redirect (session, cookie, or the return_to
// URL) and handing it back to CompleteAuth.
type AuthRequest struct {
	// Token is the opaque, tamper-evident serialization of the bridge
	// state.
	Token string

	// ServerID is the identity the provider will assert: the delegate when
	// one was advertised, the claimed identity otherwise.
	ServerID string

	// ServerURL is the provider endpoint.
	ServerURL string

	// Nonce is the single-use replay guard for this login.
	Nonce string
}

// BeginAuth starts a login for a user-entered identity URL. It runs
// discovery and, on success, mints the bridge token for the attempt. The
// returned Result carries the discovery outcome; the AuthRequest is non-nil
// iff the Result status is StatusSuccess.
func (c *Consumer) BeginAuth(ctx context.Context, userURL string) (*AuthRequest, Result) {
	disc, res := c.discover(ctx, userURL)
	if res.Status != StatusSuccess {
		return nil, res
	}
	nonce, err := NewNonce()
	if err != nil {
		c.logger.Error("begin auth: nonce generation failed", "error", err)
		return nil, failureResult("")
	}
	authKey, err := c.store.AuthKey()
	if err != nil {
		c.logger.Error("begin auth: store auth key unavailable", "error", err)
		return nil, failureResult("")
	}
	token := mintToken(authKey, c.now(), tokenFields{
		nonce:      nonce,
		consumerID: disc.consumerID,
		serverID:   disc.serverID,
		serverURL:  disc.serverURL,
	})
	return &AuthRequest{
		Token:     token,
		ServerID:  disc.serverID,
		ServerURL: disc.serverURL,
		Nonce:     nonce,
	}, successResult(disc.consumerID)
}

// ConstructRedirect builds the URL the browser is redirected to at the
// provider. It opportunistically negotiates or refreshes an association so
// the callback can be verified locally, and records the login's nonce in
// the store so the callback can consume it.
func (c *Consumer) ConstructRedirect(ctx context.Context, req *AuthRequest, returnTo, trustRoot string) (string, error) {
	const op = "Consumer.ConstructRedirect"
	if req == nil {
		return "", fmt.Errorf("%s: missing auth request: %w", op, ErrNilParameter)
	}
	if returnTo == "" || trustRoot == "" {
		return "", fmt.Errorf("%s: missing return_to or trust_root: %w", op, ErrInvalidParameter)
	}

	mode := "checkid_setup"
	if c.immediate {
		mode = "checkid_immediate"
	}
	q := url.Values{}
	q.Set("openid.identity", req.ServerID)
	q.Set("openid.return_to", returnTo)
	q.Set("openid.trust_root", trustRoot)
	q.Set("openid.mode", mode)
	if assoc := c.getAssociation(ctx, req.ServerURL, true); assoc != nil {
		q.Set("openid.assoc_handle", assoc.Handle)
	}

	if err := c.store.StoreNonce(req.Nonce); err != nil {
		return "", fmt.Errorf("%s: unable to store nonce: %w", op, err)
	}
	return appendQuery(req.ServerURL, q)
}

// appendQuery appends the encoded query onto base, preserving any query the
// provider endpoint already carries.
func appendQuery(base string, q url.Values) (string, error) {
	const op = "openid.appendQuery"
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("%s: unparseable server url %q: %w", op, base, ErrInvalidParameter)
	}
	if u.RawQuery == "" {
		u.RawQuery = q.Encode()
	} else {
		u.RawQuery += "&" + q.Encode()
	}
	return u.String(), nil
}

// consumerOptions is the set of available options for NewConsumer
type consumerOptions struct {
	withFetcher     Fetcher
	withLogger      hclog.Logger
	withImmediate   bool
	withDHModulus   *big.Int
	withDHGenerator *big.Int
	withNowFunc     func() time.Time
}

func consumerDefaults() consumerOptions {
	return consumerOptions{
		withFetcher: NewHTTPFetcher(),
		withLogger:  hclog.NewNullLogger(),
	}
}

func getConsumerOpts(opt ...Option) consumerOptions {
	opts := consumerDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}
