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

package protocol

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTagKind(t *testing.T) {
	tests := []struct {
		tag  Tag
		want Kind
	}{
		{TagClear, KindNone},
		{TagExecute, KindNone},
		{TagMethodHead, KindNone},
		{Tag(0x3F), KindNone},
		{TagCode, KindInt},
		{Tag(0x7F), KindInt},
		{TagContentType, KindShortString},
		{TagHost, KindShortString},
		{TagPath, KindString},
		{TagParams, KindString},
		{TagFile, KindLargeString},
		{Tag(0xFF), KindLargeString},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.tag.Kind(), "tag %s", tt.tag)
	}
}

func TestTagString(t *testing.T) {
	assert.Equal(t, "EXECUTE", TagExecute.String())
	assert.Equal(t, "CONTENT_TYPE", TagContentType.String())
	assert.Equal(t, "0x3E", Tag(0x3E).String())
}

func TestReservedTags(t *testing.T) {
	for _, tag := range []Tag{TagSetHeader, TagLength, TagRemoteHost, TagLanguage, TagKey, TagValue, TagFilename} {
		assert.True(t, tag.IsReserved(), "%s should be reserved", tag)
	}
	for _, tag := range []Tag{TagClear, TagExecute, TagMethodGet, TagHost, TagPath, TagParams, TagCode, TagFile} {
		assert.False(t, tag.IsReserved(), "%s should not be reserved", tag)
	}
}

func TestAppendRejectsWrongKind(t *testing.T) {
	_, err := AppendCommand(nil, TagCode)
	assert.ErrorIs(t, err, ErrTagKind)

	_, err = AppendInt(nil, TagPath, 1)
	assert.ErrorIs(t, err, ErrTagKind)

	_, err = AppendString(nil, TagClear, []byte("x"))
	assert.ErrorIs(t, err, ErrTagKind)
}

func TestAppendStringTooLarge(t *testing.T) {
	_, err := AppendString(nil, TagContentType, bytes.Repeat([]byte("a"), 256))
	assert.ErrorIs(t, err, ErrPayloadTooLarge)

	_, err = AppendString(nil, TagPath, bytes.Repeat([]byte("a"), 65536))
	assert.ErrorIs(t, err, ErrPayloadTooLarge)

	buf, err := AppendString(nil, TagContentType, bytes.Repeat([]byte("a"), 255))
	require.NoError(t, err)
	assert.Len(t, buf, 257)
}

func TestAppendWireBytes(t *testing.T) {
	buf, err := AppendInt(nil, TagCode, 200)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x40, 0x00, 0x00, 0x00, 0xC8}, buf)

	buf, err = AppendString(nil, TagPath, []byte("/a"))
	require.NoError(t, err)
	assert.Equal(t, []byte{0xC0, 0x00, 0x02, '/', 'a'}, buf)

	buf, err = AppendString(nil, TagFile, []byte("hi"))
	require.NoError(t, err)
	assert.Equal(t, []byte{0xE0, 0x00, 0x00, 0x00, 0x02, 'h', 'i'}, buf)
}

type recorder struct {
	cmds []Command
}

func newRecordingProcessor(tags ...Tag) *Processor[*recorder] {
	p := NewProcessor[*recorder]()
	for _, tag := range tags {
		p.AddCommand(tag, func(r *recorder, cmd Command) error {
			cmd.Data = append([]byte(nil), cmd.Data...)
			r.cmds = append(r.cmds, cmd)
			return nil
		})
	}
	return p
}

func TestProcessDispatchesInOrder(t *testing.T) {
	req := HTTPRequest{Method: "GET", Host: "example.com", Path: "/x", Params: "a=1"}
	data, err := req.Encode()
	require.NoError(t, err)

	p := newRecordingProcessor(TagClear, TagMethodGet, TagHost, TagPath, TagParams, TagExecute)
	var r recorder
	n, err := p.Process(&r, data)
	require.NoError(t, err)
	assert.Equal(t, len(data), n)

	var tags []Tag
	for _, c := range r.cmds {
		tags = append(tags, c.Tag)
	}
	assert.Equal(t, []Tag{TagClear, TagMethodGet, TagHost, TagPath, TagParams, TagExecute}, tags)
	assert.Equal(t, "example.com", string(r.cmds[2].Data))
	assert.Equal(t, "/x", string(r.cmds[3].Data))
	assert.Equal(t, "a=1", string(r.cmds[4].Data))
}

func TestProcessSkipsUnregisteredTags(t *testing.T) {
	var data []byte
	data, _ = AppendCommand(data, TagClear)
	data, _ = AppendString(data, TagSetHeader, []byte("X-Test: 1"))
	data, _ = AppendInt(data, TagLength, 42)
	data, _ = AppendString(data, TagLanguage, []byte("en"))
	data, _ = AppendCommand(data, TagExecute)

	p := newRecordingProcessor(TagClear, TagExecute)
	var r recorder
	n, err := p.Process(&r, data)
	require.NoError(t, err)
	assert.Equal(t, len(data), n)
	require.Len(t, r.cmds, 2)
	assert.Equal(t, TagExecute, r.cmds[1].Tag)
	assert.False(t, p.Registered(TagSetHeader))
}

func TestProcessStopsOnTruncatedCommand(t *testing.T) {
	var data []byte
	data, _ = AppendCommand(data, TagClear)
	full, _ := AppendString(nil, TagPath, []byte("/truncated"))
	data = append(data, full[:len(full)-3]...)

	p := newRecordingProcessor(TagClear, TagPath)
	var r recorder
	n, err := p.Process(&r, data)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Len(t, r.cmds, 1)
}

func TestProcessHandlerError(t *testing.T) {
	boom := errors.New("boom")
	p := NewProcessor[*recorder]()
	p.AddCommand(TagClear, func(*recorder, Command) error { return nil })
	p.AddCommand(TagExecute, func(*recorder, Command) error { return boom })

	data := []byte{byte(TagClear), byte(TagClear), byte(TagExecute), byte(TagClear)}
	n, err := p.Process(&recorder{}, data)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, n)
	assert.True(t, strings.HasPrefix(err.Error(), "EXECUTE"))
}

func TestHTTPRequestEncodeRejectsUnknownMethod(t *testing.T) {
	_, err := (&HTTPRequest{Method: "PUT", Path: "/"}).Encode()
	assert.Error(t, err)
}

func TestDecodeHTTPResponse(t *testing.T) {
	var data []byte
	data, _ = AppendCommand(data, TagClear)
	data, _ = AppendString(data, TagContentType, []byte("text/html"))
	data, _ = AppendString(data, TagFile, []byte("<p>hi</p>"))
	data, _ = AppendInt(data, TagCode, 200)
	data, _ = AppendCommand(data, TagReply)

	resp, err := DecodeHTTPResponse(data)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.Code)
	assert.Equal(t, "text/html", resp.ContentType)
	assert.Equal(t, "<p>hi</p>", string(resp.Body))
}

func TestDecodeHTTPResponseErrors(t *testing.T) {
	noReply, _ := AppendInt([]byte{byte(TagClear)}, TagCode, 404)
	_, err := DecodeHTTPResponse(noReply)
	assert.ErrorIs(t, err, ErrMissingReply)

	truncated := append([]byte{byte(TagClear)}, byte(TagCode), 0x00)
	_, err = DecodeHTTPResponse(truncated)
	assert.ErrorIs(t, err, ErrIncomplete)
}
