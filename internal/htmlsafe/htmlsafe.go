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

// Package htmlsafe escapes text for use inside HTML attributes and bodies.
package htmlsafe

// expansion is the scratch size multiplier per input byte.
const expansion = 5

// Escaper escapes into a reusable scratch buffer.
//
// An Escaper is not safe for concurrent use. The slice returned by
// EscapeBytes aliases the scratch buffer and is only valid until the next
// call.
type Escaper struct {
	buf []byte
}

// Cap returns the current scratch capacity.
func (e *Escaper) Cap() int {
	return cap(e.buf)
}

// EscapeBytes escapes text into the scratch buffer and returns it.
func (e *Escaper) EscapeBytes(text string) []byte {
	if need := len(text)*expansion + 1; cap(e.buf) < need {
		e.buf = make([]byte, 0, need)
	}

	out := e.buf[:0]
	for i := 0; i < len(text); i++ {
		switch c := text[i]; c {
		case '"':
			out = append(out, "&quot;"...)
		case '&':
			out = append(out, "&amp;"...)
		case '<':
			out = append(out, "&lt;"...)
		case '>':
			out = append(out, "&gt;"...)
		default:
			out = append(out, c)
		}
	}
	// A string of only quotes outgrows 5*n+1; keep the larger buffer.
	e.buf = out[:0]
	return out
}

// Escape escapes text and returns a copy that stays valid.
func (e *Escaper) Escape(text string) string {
	return string(e.EscapeBytes(text))
}

// Reset releases the scratch buffer.
func (e *Escaper) Reset() {
	e.buf = nil
}
