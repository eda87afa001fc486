/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package params parses raw query strings into an ordered table of decoded
// key/value pairs.
//
// Decoding is deliberately lenient: producers are trusted, and malformed
// escapes degrade to a literal copy instead of failing the request.
package params

import "strings"

// RawPair is a key/value pair as it appears on the wire, still escaped.
type RawPair struct {
	Key   string
	Value string
}

// Pair is a decoded key/value pair. Pairs are immutable once built.
type Pair struct {
	Key   string
	Value string
}

// Split breaks a raw query string into its &-separated key=value pairs.
// Empty segments are skipped. A segment without '=' has an empty value.
func Split(raw string) []RawPair {
	var out []RawPair
	for len(raw) > 0 {
		var seg string
		seg, raw, _ = strings.Cut(raw, "&")
		if seg == "" {
			continue
		}
		key, value, _ := strings.Cut(seg, "=")
		out = append(out, RawPair{Key: key, Value: value})
	}
	return out
}

// Decode undoes query-string escaping: "%XX" becomes the byte with that hex
// value and '+' becomes a space. A '%' without two following characters is
// copied as is. A non-hex digit after '%' contributes zero to that nibble.
func Decode(raw string) string {
	if strings.IndexByte(raw, '%') < 0 && strings.IndexByte(raw, '+') < 0 {
		return raw
	}

	var b strings.Builder
	b.Grow(len(raw))
	for i := 0; i < len(raw); i++ {
		switch c := raw[i]; {
		case c == '%' && i+2 < len(raw):
			b.WriteByte(unhex(raw[i+1])<<4 | unhex(raw[i+2]))
			i += 2
		case c == '+':
			b.WriteByte(' ')
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

func unhex(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10
	}
	return 0
}
