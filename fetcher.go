// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package openid

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/hashicorp/go-cleanhttp"
)

// FetchResponse is the result of a Fetcher operation. FinalURL is the URL
// that produced the response after any redirects, which discovery uses as
// the canonical claimed identity.
type FetchResponse struct {
	Status   int
	FinalURL string
	Body     []byte
}

// Fetcher is the outbound HTTP contract. The consumer performs exactly three
// kinds of requests through it: the discovery GET and the associate and
// check_authentication POSTs. Implementations should honor ctx deadlines;
// the consumer performs no retries.
type Fetcher interface {
	// Get fetches the URL, following redirects.
	Get(ctx context.Context, rawURL string) (*FetchResponse, error)

	// Post sends an application/x-www-form-urlencoded request body.
	Post(ctx context.Context, rawURL string, form url.Values) (*FetchResponse, error)
}

// HTTPFetcher is the default Fetcher, backed by an http.Client on a pooled
// cleanhttp transport.
type HTTPFetcher struct {
	client *http.Client
}

// ensure that HTTPFetcher implements the Fetcher interface
var _ Fetcher = (*HTTPFetcher)(nil)

// NewHTTPFetcher creates the default fetcher.
func NewHTTPFetcher() *HTTPFetcher {
	return &HTTPFetcher{
		client: &http.Client{
			Transport: cleanhttp.DefaultPooledTransport(),
		},
	}
}

// Get implements Fetcher.
func (f *HTTPFetcher) Get(ctx context.Context, rawURL string) (*FetchResponse, error) {
	const op = "HTTPFetcher.Get"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return f.do(op, req)
}

// Post implements Fetcher.
func (f *HTTPFetcher) Post(ctx context.Context, rawURL string, form url.Values) (*FetchResponse, error) {
	const op = "HTTPFetcher.Post"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return f.do(op, req)
}

func (f *HTTPFetcher) do(op string, req *http.Request) (*FetchResponse, error) {
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to read response body: %w", op, err)
	}
	final := req.URL.String()
	if resp.Request != nil && resp.Request.URL != nil {
		final = resp.Request.URL.String()
	}
	return &FetchResponse{
		Status:   resp.StatusCode,
		FinalURL: final,
		Body:     body,
	}, nil
}
