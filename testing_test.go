// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package openid

import (
	"strings"
	"testing"

	"github.com/hashicorp/go-hclog"
)

// testLogWriter routes consumer logs into the test output so protocol
// warnings show up next to the failure they explain.
type testLogWriter struct {
	t *testing.T
}

func (w testLogWriter) Write(p []byte) (int, error) {
	w.t.Log(strings.TrimRight(string(p), "\n"))
	return len(p), nil
}

func testLoggerOpt(t *testing.T) Option {
	t.Helper()
	return WithLogger(hclog.New(&hclog.LoggerOptions{
		Name:   "openid",
		Level:  hclog.Debug,
		Output: testLogWriter{t: t},
	}))
}
