// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package openid

import (
	"context"
	"crypto/subtle"
	"net/url"
	"strings"

	"github.com/hashicorp/cap/openid/internal/kvform"
)

// checkAuthWhitelist names the fields always forwarded to
// check_authentication even when the provider's signed list omits them.
var checkAuthWhitelist = []string{"assoc_handle", "sig", "signed", "invalidate_handle"}

// CompleteAuth verifies the provider's callback against the bridge token
// minted by BeginAuth. token is the value the caller carried across the
// redirect; query is the callback request's parsed query or form.
//
// Success with a non-empty Identity is a verified login; success with an
// empty Identity means the user canceled (see Result.Canceled).
// StatusSetupNeeded answers an immediate-mode request the provider wants
// user interaction for. Everything else is StatusFailure.
func (c *Consumer) CompleteAuth(ctx context.Context, token string, query url.Values) Result {
	args := canonicalizeQuery(query)

	switch mode := args["openid.mode"]; mode {
	case "cancel":
		// the user declined at the provider; there is no identity to assert
		return successResult("")
	case "error":
		c.logger.Warn("complete auth: provider returned an error", "error", args["openid.error"])
		return failureResult("")
	case "id_res":
	default:
		c.logger.Warn("complete auth: unexpected mode", "mode", mode)
		return failureResult("")
	}

	authKey, err := c.store.AuthKey()
	if err != nil {
		c.logger.Error("complete auth: store auth key unavailable", "error", err)
		return failureResult("")
	}
	fields, err := verifyToken(authKey, c.now(), token)
	if err != nil {
		c.logger.Warn("complete auth: token rejected", "error", err)
		return failureResult("")
	}

	returnTo := args["openid.return_to"]
	identity := args["openid.identity"]
	assocHandle := args["openid.assoc_handle"]
	if returnTo == "" || identity == "" || assocHandle == "" {
		c.logger.Warn("complete auth: callback missing required fields")
		return failureResult(fields.consumerID)
	}
	// The provider must assert exactly the identity the token was minted
	// for. The caller separately checks that return_to matches the URL the
	// callback actually hit.
	if identity != fields.serverID {
		c.logger.Warn("complete auth: asserted identity mismatch",
			"asserted", identity, "expected", fields.serverID)
		return failureResult(fields.consumerID)
	}

	if setupURL := args["openid.user_setup_url"]; setupURL != "" {
		return Result{Status: StatusSetupNeeded, SetupURL: setupURL, Identity: fields.consumerID}
	}

	assoc, err := c.store.GetAssociation(fields.serverURL)
	if err != nil {
		c.logger.Warn("complete auth: store lookup failed", "server_url", fields.serverURL, "error", err)
		assoc = nil
	}
	if assoc == nil || assoc.Handle != assocHandle || !assoc.IsValid(c.now()) {
		return c.checkAuth(ctx, fields, args)
	}
	return c.directVerify(fields, assoc, args)
}

// directVerify checks the callback signature locally against the stored
// association ("smart mode").
func (c *Consumer) directVerify(fields *tokenFields, assoc *Association, args map[string]string) Result {
	sig := args["openid.sig"]
	signed := args["openid.signed"]
	if sig == "" || signed == "" {
		c.logger.Warn("complete auth: callback missing sig or signed")
		return failureResult(fields.consumerID)
	}
	expected, err := assoc.Sign(strings.Split(signed, ","), args)
	if err != nil {
		c.logger.Warn("complete auth: unable to compute signature", "error", err)
		return failureResult(fields.consumerID)
	}
	if subtle.ConstantTimeCompare([]byte(expected), []byte(sig)) != 1 {
		c.logger.Warn("complete auth: signature mismatch", "server_url", fields.serverURL)
		return failureResult(fields.consumerID)
	}
	return c.consumeNonce(fields)
}

// checkAuth rechecks the callback signature with the provider directly
// ("dumb mode"), used when no association matching the callback's handle is
// held. The provider is asked to verify its own signature via a
// check_authentication POST.
func (c *Consumer) checkAuth(ctx context.Context, fields *tokenFields, args map[string]string) Result {
	signed := args["openid.signed"]
	if signed == "" {
		c.logger.Warn("complete auth: callback missing signed list")
		return failureResult(fields.consumerID)
	}
	forward := map[string]bool{}
	for _, name := range strings.Split(signed, ",") {
		forward[name] = true
	}
	for _, name := range checkAuthWhitelist {
		forward[name] = true
	}

	checkArgs := url.Values{}
	for k, v := range args {
		if !strings.HasPrefix(k, "openid.") {
			continue
		}
		if !forward[strings.TrimPrefix(k, "openid.")] {
			continue
		}
		checkArgs.Set(k, v)
	}
	checkArgs.Set("openid.mode", "check_authentication")

	resp, err := c.fetcher.Post(ctx, fields.serverURL, checkArgs)
	if err != nil || resp == nil {
		c.logger.Warn("complete auth: check_authentication request failed",
			"server_url", fields.serverURL, "error", err)
		return failureResult(fields.consumerID)
	}
	results := kvform.Parse(resp.Body)
	if results["is_valid"] != "true" {
		if errMsg := results["error"]; errMsg != "" {
			c.logger.Warn("complete auth: provider rejected check_authentication",
				"server_url", fields.serverURL, "error", errMsg)
		}
		return failureResult(fields.consumerID)
	}
	if invalidate := results["invalidate_handle"]; invalidate != "" {
		if _, err := c.store.RemoveAssociation(fields.serverURL, invalidate); err != nil {
			c.logger.Warn("complete auth: unable to remove invalidated association",
				"server_url", fields.serverURL, "handle", invalidate, "error", err)
		}
	}
	return c.consumeNonce(fields)
}

// consumeNonce burns the login's nonce as the final verification step. A
// valid signature with a spent nonce is a replay, and stays a failure: no
// partial success is ever committed.
func (c *Consumer) consumeNonce(fields *tokenFields) Result {
	if !c.store.UseNonce(fields.nonce) {
		c.logger.Warn("complete auth: nonce already used or unknown", "nonce", fields.nonce)
		return failureResult(fields.consumerID)
	}
	return successResult(fields.consumerID)
}

// canonicalizeQuery flattens the callback query to single values and undoes
// the dot-to-underscore rewrite some form parsers apply, limited to the
// openid_ prefix so unrelated keys cannot collide.
func canonicalizeQuery(query url.Values) map[string]string {
	args := make(map[string]string, len(query))
	for k, v := range query {
		if len(v) == 0 {
			continue
		}
		if strings.HasPrefix(k, "openid_") {
			k = "openid." + strings.TrimPrefix(k, "openid_")
		}
		args[k] = v[0]
	}
	return args
}
