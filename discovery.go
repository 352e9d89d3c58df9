// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package openid

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/yhat/scrape"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const (
	relOpenIDServer   = "openid.server"
	relOpenIDDelegate = "openid.delegate"
)

// discoveredInfo is the triple discovery resolves a user-entered identity
// URL into. consumerID is the claimed identity (post-redirect, normalized),
// serverID is the delegate when one is advertised and the claimed identity
// otherwise, and serverURL is the provider endpoint.
type discoveredInfo struct {
	consumerID string
	serverID   string
	serverURL  string
}

// NormalizeURL canonicalizes a user-entered identity URL: the scheme
// defaults to http, scheme and host are lowercased, default ports are
// elided and an empty path becomes "/".
func NormalizeURL(raw string) (string, error) {
	const op = "openid.NormalizeURL"
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("%s: empty url: %w", op, ErrInvalidParameter)
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%s: unparseable url %q: %w", op, raw, ErrInvalidParameter)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	switch {
	case u.Scheme == "http" && strings.HasSuffix(u.Host, ":80"):
		u.Host = strings.TrimSuffix(u.Host, ":80")
	case u.Scheme == "https" && strings.HasSuffix(u.Host, ":443"):
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}
	if u.Path == "" {
		u.Path = "/"
	}
	return u.String(), nil
}

// discover fetches the claimed identity URL and extracts the provider
// endpoint and optional delegated identity from its link tags.
func (c *Consumer) discover(ctx context.Context, userURL string) (*discoveredInfo, Result) {
	normalized, err := NormalizeURL(userURL)
	if err != nil {
		c.logger.Warn("discovery: bad identity url", "url", userURL, "error", err)
		return nil, Result{Status: StatusParseError}
	}
	resp, err := c.fetcher.Get(ctx, normalized)
	if err != nil || resp == nil {
		c.logger.Warn("discovery: fetch failed", "url", normalized, "error", err)
		return nil, Result{Status: StatusHTTPFailure}
	}
	if resp.Status != 200 {
		return nil, Result{Status: StatusHTTPFailure, HTTPStatus: resp.Status}
	}
	serverURL, ok := findLinkRel(resp.Body, relOpenIDServer)
	if !ok {
		return nil, Result{Status: StatusParseError}
	}
	consumerID, err := NormalizeURL(resp.FinalURL)
	if err != nil {
		return nil, Result{Status: StatusParseError}
	}
	serverID := consumerID
	if delegate, ok := findLinkRel(resp.Body, relOpenIDDelegate); ok {
		if serverID, err = NormalizeURL(delegate); err != nil {
			return nil, Result{Status: StatusParseError}
		}
	}
	normalizedServer, err := NormalizeURL(serverURL)
	if err != nil {
		return nil, Result{Status: StatusParseError}
	}
	return &discoveredInfo{
		consumerID: consumerID,
		serverID:   serverID,
		serverURL:  normalizedServer,
	}, successResult(consumerID)
}

// findLinkRel returns the href of the first link tag whose rel attribute
// contains relValue. The html package tolerates real-world markup (unquoted
// attributes, unclosed head, mixed case); rel is matched case-insensitively
// and treated as whitespace-separated multi-valued.
func findLinkRel(body []byte, relValue string) (string, bool) {
	root, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return "", false
	}
	links := scrape.FindAll(root, func(n *html.Node) bool {
		return n.DataAtom == atom.Link
	})
	for _, link := range links {
		for _, rel := range strings.Fields(scrape.Attr(link, "rel")) {
			if strings.EqualFold(rel, relValue) {
				if href := scrape.Attr(link, "href"); href != "" {
					return href, true
				}
			}
		}
	}
	return "", false
}
