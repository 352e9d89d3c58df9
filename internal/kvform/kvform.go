// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package kvform implements the newline-delimited key:value grammar OpenID
// 1.x providers use for direct (non-browser) response bodies and that both
// sides use for signature base strings.
package kvform

import (
	"strings"
)

// Parse decodes a KV-form body into a map. Records are terminated by \n and
// split on the first colon; keys and values are trimmed of surrounding
// spaces. Malformed lines (no colon) are skipped. A later record for the
// same key wins.
func Parse(body []byte) map[string]string {
	out := map[string]string{}
	for _, line := range strings.Split(string(body), "\n") {
		if line == "" {
			continue
		}
		k, v, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		out[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return out
}

// Marshal encodes the given keys, in order, as KV-form records. Keys absent
// from values are emitted with an empty value; signature base strings depend
// on that, so callers control ordering and key presence entirely.
func Marshal(keys []string, values map[string]string) []byte {
	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteString(":")
		b.WriteString(values[k])
		b.WriteString("\n")
	}
	return []byte(b.String())
}
