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


package static

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rqhttp/internal/protocol"
	"rqhttp/pkg/queue/memq"
	"rqhttp/pkg/rqhttp"
)

func writeFile(t *testing.T, name string, data []byte) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(name), 0o755))
	require.NoError(t, os.WriteFile(name, data, 0o644))
}

// newSite lays out a document root and serves it on a memq queue.
func newSite(t *testing.T) (string, *memq.Broker) {
	t.Helper()
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "hello.txt"), []byte("hello world\n"))
	writeFile(t, filepath.Join(root, "page.html"), []byte("<p>page</p>"))
	writeFile(t, filepath.Join(root, "photo.jpg"), []byte{0xff, 0xd8, 0xff, 0xe0})
	writeFile(t, filepath.Join(root, "zero.txt"), nil)
	writeFile(t, filepath.Join(root, "a<b>&c.txt"), []byte("x"))
	writeFile(t, filepath.Join(root, "docs", "index.html"), []byte("<h1>docs</h1>"))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "empty"), 0o755))

	h, err := New(root)
	require.NoError(t, err)

	broker := memq.NewBroker()
	a, err := rqhttp.New(broker, "www", h.Serve)
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, a.Close())
		broker.Close()
	})
	return root, broker
}

func get(t *testing.T, broker *memq.Broker, method, path, params string) *protocol.HTTPResponse {
	t.Helper()
	data, err := (&protocol.HTTPRequest{Method: method, Path: path, Params: params}).Encode()
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	reply, err := broker.Request(ctx, "www", data)
	require.NoError(t, err)
	resp, err := protocol.DecodeHTTPResponse(reply)
	require.NoError(t, err)
	return resp
}

func TestServeFiles(t *testing.T) {
	_, broker := newSite(t)

	tests := []struct {
		name        string
		method      string
		path        string
		params      string
		code        int
		contentType string
		body        string
	}{
		{"text file", "GET", "/hello.txt", "", 200, "text/plain", "hello world\n"},
		{"html file", "GET", "/page.html", "", 200, "text/html", "<p>page</p>"},
		{"jpeg", "GET", "/photo.jpg", "", 200, "image/jpeg", "\xff\xd8\xff\xe0"},
		{"no method", "", "/hello.txt", "", 200, "text/plain", "hello world\n"},
		{"head omits body", "HEAD", "/page.html", "", 200, "text/html", ""},
		{"empty file", "GET", "/zero.txt", "", 200, "text/plain", ""},
		{"directory index", "GET", "/docs", "", 200, "text/html", "<h1>docs</h1>"},
		{"download override", "GET", "/hello.txt", "download=hello.html", 200, "text/html", "hello world\n"},
		{"dot segments stay in root", "GET", "/../../hello.txt", "", 200, "text/plain", "hello world\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := get(t, broker, tt.method, tt.path, tt.params)
			assert.Equal(t, tt.code, resp.Code)
			assert.Equal(t, tt.contentType, resp.ContentType)
			assert.Equal(t, tt.body, string(resp.Body))
		})
	}
}

func TestErrors(t *testing.T) {
	_, broker := newSite(t)

	resp := get(t, broker, "GET", "/missing.txt", "")
	assert.Equal(t, 404, resp.Code)
	assert.Equal(t, "text/html", resp.ContentType)
	assert.Contains(t, string(resp.Body), "/missing.txt was not found")

	resp = get(t, broker, "GET", "/<script>.txt", "")
	assert.Equal(t, 404, resp.Code)
	assert.Contains(t, string(resp.Body), "/&lt;script&gt;.txt")
	assert.NotContains(t, string(resp.Body), "<script>")

	resp = get(t, broker, "POST", "/hello.txt", "")
	assert.Equal(t, 405, resp.Code)
	assert.Contains(t, string(resp.Body), "POST is not supported")

	resp = get(t, broker, "HEAD", "/missing.txt", "")
	assert.Equal(t, 404, resp.Code)
	assert.Empty(t, resp.Body)
}

func TestDirectoryListing(t *testing.T) {
	_, broker := newSite(t)

	resp := get(t, broker, "GET", "/", "")
	require.Equal(t, 200, resp.Code)
	assert.Equal(t, "text/html", resp.ContentType)

	body := string(resp.Body)
	assert.Contains(t, body, "<title>Index of /</title>")
	assert.Contains(t, body, `<a href="a&lt;b&gt;&amp;c.txt">a&lt;b&gt;&amp;c.txt</a>`)
	assert.Contains(t, body, `<a href="docs/">docs/</a>`)
	assert.NotContains(t, body, "../")

	resp = get(t, broker, "GET", "/empty", "")
	require.Equal(t, 200, resp.Code)
	assert.Contains(t, string(resp.Body), `<a href="../">../</a>`)
}

func TestSymlinkOutsideRoot(t *testing.T) {
	root, broker := newSite(t)
	outside := filepath.Join(t.TempDir(), "secret.txt")
	writeFile(t, outside, []byte("secret"))
	if err := os.Symlink(outside, filepath.Join(root, "leak.txt")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	resp := get(t, broker, "GET", "/leak.txt", "")
	assert.Equal(t, 403, resp.Code)
	assert.NotContains(t, string(resp.Body), "secret")
}

func TestNewRejectsBadRoot(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)

	file := filepath.Join(t.TempDir(), "f")
	writeFile(t, file, []byte("x"))
	_, err = New(file)
	assert.Error(t, err)
}
