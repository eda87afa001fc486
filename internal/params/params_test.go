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

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", "hello", "hello"},
		{"space escapes", "a%20b+c", "a b c"},
		{"lower hex", "%2f", "/"},
		{"upper hex", "%2F", "/"},
		{"mixed case", "%e2%82%AC", "€"},
		{"plus only", "++", "  "},
		{"trailing percent", "abc%", "abc%"},
		{"percent one char", "abc%4", "abc%4"},
		{"percent at end minus one", "%41%4", "A%4"},
		{"exactly two chars", "%41", "A"},
		{"non-hex nibble", "%G1", "\x01"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Decode(tt.input))
		})
	}
}

func TestDecodeIdempotentOnPlainText(t *testing.T) {
	for _, s := range []string{"already decoded", "a/b/c", "x=y", "été"} {
		once := Decode(s)
		assert.Equal(t, s, once)
		assert.Equal(t, once, Decode(once))
	}
}

func TestSplit(t *testing.T) {
	got := Split("a=1&&b=&c&d=x=y&")
	assert.Equal(t, []RawPair{
		{Key: "a", Value: "1"},
		{Key: "b", Value: ""},
		{Key: "c", Value: ""},
		{Key: "d", Value: "x=y"},
	}, got)

	assert.Empty(t, Split(""))
}

func TestTableFirstMatchWins(t *testing.T) {
	tbl := Parse("a=1&a=2")
	require.Equal(t, 2, tbl.Len())

	v, ok := tbl.Get("a")
	assert.True(t, ok)
	assert.Equal(t, "1", v)
}

func TestTableAbsentVersusEmpty(t *testing.T) {
	tbl := Parse("empty=&name=J%C3%BCrgen+M")

	v, ok := tbl.Get("empty")
	assert.True(t, ok)
	assert.Equal(t, "", v)

	_, ok = tbl.Get("missing")
	assert.False(t, ok)

	v, ok = tbl.Get("name")
	assert.True(t, ok)
	assert.Equal(t, "Jürgen M", v)
}

func TestTableDecodesKeys(t *testing.T) {
	tbl := Parse("first+name=a&x%5By%5D=b")

	v, ok := tbl.Get("first name")
	assert.True(t, ok)
	assert.Equal(t, "a", v)

	v, ok = tbl.Get("x[y]")
	assert.True(t, ok)
	assert.Equal(t, "b", v)
}

func TestTableAllPreservesOrder(t *testing.T) {
	tbl := Parse("z=1&a=2&z=3")
	var keys []string
	for p := range tbl.All() {
		keys = append(keys, p.Key+"="+p.Value)
	}
	assert.Equal(t, []string{"z=1", "a=2", "z=3"}, keys)
}

func TestTableRelease(t *testing.T) {
	tbl := Parse("a=1")
	tbl.Release()
	assert.Equal(t, 0, tbl.Len())

	var nilTable *Table
	_, ok := nilTable.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 0, nilTable.Len())
}
