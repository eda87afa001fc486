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

package params

import "iter"

// Table is an ordered list of decoded pairs. Duplicate keys are kept in
// arrival order; lookups return the first match.
type Table struct {
	pairs []Pair
}

// Parse splits and decodes a raw query string.
func Parse(raw string) *Table {
	raws := Split(raw)
	t := &Table{pairs: make([]Pair, 0, len(raws))}
	for _, rp := range raws {
		t.pairs = append(t.pairs, Pair{Key: Decode(rp.Key), Value: Decode(rp.Value)})
	}
	return t
}

// Get returns the value of the first pair whose key equals key exactly.
// ok is false when no such pair exists, which is distinct from a present key
// with an empty value.
func (t *Table) Get(key string) (value string, ok bool) {
	if t == nil {
		return "", false
	}
	for _, p := range t.pairs {
		if p.Key == key {
			return p.Value, true
		}
	}
	return "", false
}

// Len returns the number of pairs.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.pairs)
}

// All iterates the pairs in insertion order.
func (t *Table) All() iter.Seq[Pair] {
	return func(yield func(Pair) bool) {
		if t == nil {
			return
		}
		for _, p := range t.pairs {
			if !yield(p) {
				return
			}
		}
	}
}

// Release drops every pair. The table is empty afterwards.
func (t *Table) Release() {
	if t == nil {
		return
	}
	clear(t.pairs)
	t.pairs = nil
}
