// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package openid

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/hashicorp/cap/openid/internal/kvform"
)

const sessionTypeDHSHA1 = "DH-SHA1"

// getAssociation returns a usable association for the provider endpoint, or
// nil when the consumer should fall back to check_authentication. A dumb
// store always yields nil. With replace set, a cached association whose
// remaining lifetime is shorter than TokenLifetime is renegotiated so it
// cannot expire while the login it serves is still in flight.
func (c *Consumer) getAssociation(ctx context.Context, serverURL string, replace bool) *Association {
	if c.store.IsDumb() {
		return nil
	}
	stored, err := c.store.GetAssociation(serverURL)
	if err != nil {
		c.logger.Warn("associate: store lookup failed", "server_url", serverURL, "error", err)
		stored = nil
	}
	if stored != nil {
		if !replace || stored.ExpiresIn(c.now()) >= TokenLifetime {
			return stored
		}
	}
	return c.associate(ctx, serverURL)
}

// associate performs the associate exchange: a Diffie-Hellman key agreement
// that leaves both sides holding a shared HMAC-SHA1 secret without it ever
// crossing the wire. Any failure is logged and collapses to nil, which
// callers treat as "verify dumbly later".
func (c *Consumer) associate(ctx context.Context, serverURL string) *Association {
	dh, err := c.newDH()
	if err != nil {
		c.logger.Error("associate: unable to build dh context", "error", err)
		return nil
	}

	form := url.Values{}
	form.Set("openid.mode", "associate")
	form.Set("openid.assoc_type", AssocTypeHMACSHA1)
	form.Set("openid.session_type", sessionTypeDHSHA1)
	form.Set("openid.dh_consumer_public", intToBase64(dh.Public()))
	if !dh.UsesDefaults() {
		form.Set("openid.dh_modulus", intToBase64(dh.p))
		form.Set("openid.dh_gen", intToBase64(dh.g))
	}

	resp, err := c.fetcher.Post(ctx, serverURL, form)
	if err != nil || resp == nil {
		c.logger.Warn("associate: request failed", "server_url", serverURL, "error", err)
		return nil
	}
	results := kvform.Parse(resp.Body)
	if resp.Status == http.StatusBadRequest {
		c.logger.Warn("associate: provider returned an error",
			"server_url", serverURL, "error", results["error"])
		return nil
	}
	if resp.Status != http.StatusOK {
		c.logger.Warn("associate: unexpected status",
			"server_url", serverURL, "status", resp.Status)
		return nil
	}

	for _, required := range []string{"assoc_type", "assoc_handle", "dh_server_public", "enc_mac_key"} {
		if _, ok := results[required]; !ok {
			c.logger.Warn("associate: response missing required field",
				"server_url", serverURL, "field", required)
			return nil
		}
	}
	if results["assoc_type"] != AssocTypeHMACSHA1 {
		c.logger.Warn("associate: unsupported assoc_type",
			"server_url", serverURL, "assoc_type", results["assoc_type"])
		return nil
	}

	var secret []byte
	switch sessionType := results["session_type"]; sessionType {
	case "":
		// cleartext session: the provider sent the MAC key directly
		secret, err = base64.StdEncoding.DecodeString(results["mac_key"])
		if err != nil {
			c.logger.Warn("associate: undecodable mac_key", "server_url", serverURL, "error", err)
			return nil
		}
	case sessionTypeDHSHA1:
		serverPublic, err := base64ToInt(results["dh_server_public"])
		if err != nil {
			c.logger.Warn("associate: undecodable dh_server_public", "server_url", serverURL, "error", err)
			return nil
		}
		encMACKey, err := base64.StdEncoding.DecodeString(results["enc_mac_key"])
		if err != nil {
			c.logger.Warn("associate: undecodable enc_mac_key", "server_url", serverURL, "error", err)
			return nil
		}
		if secret, err = dh.XorSecret(serverPublic, encMACKey); err != nil {
			c.logger.Warn("associate: unable to recover mac secret", "server_url", serverURL, "error", err)
			return nil
		}
	default:
		c.logger.Warn("associate: unsupported session_type",
			"server_url", serverURL, "session_type", sessionType)
		return nil
	}

	lifetime, err := strconv.Atoi(results["expires_in"])
	if err != nil {
		c.logger.Warn("associate: bad expires_in", "server_url", serverURL, "expires_in", results["expires_in"])
		return nil
	}
	assoc := &Association{
		Handle:   results["assoc_handle"],
		Secret:   secret,
		Type:     results["assoc_type"],
		IssuedAt: c.now(),
		Lifetime: time.Duration(lifetime) * time.Second,
	}
	if err := c.store.StoreAssociation(serverURL, assoc); err != nil {
		c.logger.Warn("associate: unable to store association", "server_url", serverURL, "error", err)
	}
	return assoc
}

func (c *Consumer) newDH() (*DiffieHellman, error) {
	if c.dhModulus != nil {
		return NewDiffieHellmanWith(c.dhModulus, c.dhGenerator)
	}
	return NewDiffieHellman()
}
