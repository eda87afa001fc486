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


/*
Package static serves files below a root directory as rqhttp replies.

BEHAVIOUR:
==========
  - GET (or no method) replies with the file; HEAD replies with headers only
  - other methods get 405
  - a directory serves its index.html, or an escaped HTML listing
  - a missing file gets 404, an unreadable one 403
  - ?download=<name> resolves the content type from name instead of the path

File bodies are memory-mapped for the duration of the reply.
*/
package static

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tysonmote/gommap"

	"rqhttp/internal/logging"
	"rqhttp/internal/protocol"
	"rqhttp/pkg/rqhttp"
)

// IndexFile is served in place of a directory listing when present.
const IndexFile = "index.html"

// Handler serves a directory tree.
type Handler struct {
	root   string
	logger *logging.Logger
}

// New creates a handler for root.
func New(root string) (*Handler, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("static root %s: %w", root, err)
	}
	if abs, err = filepath.EvalSymlinks(abs); err != nil {
		return nil, fmt.Errorf("static root %s: %w", root, err)
	}
	fi, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("static root %s: %w", root, err)
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf("static root %s: not a directory", root)
	}
	return &Handler{root: abs, logger: logging.NewLogger("static")}, nil
}

// Root returns the resolved root directory.
func (h *Handler) Root() string {
	return h.root
}

// Serve is an rqhttp.Handler. It always replies before returning.
func (h *Handler) Serve(r *rqhttp.Request) {
	var err error
	switch r.Method() {
	case rqhttp.MethodGet, rqhttp.MethodNone, rqhttp.MethodHead:
		err = h.serve(r)
	default:
		err = h.replyError(r, 405, "Method Not Allowed", r.Method().String()+" is not supported")
	}
	if err != nil {
		h.logger.Warn("Reply failed", "path", r.Path(), "error", err)
	}
}

func (h *Handler) serve(r *rqhttp.Request) error {
	urlPath := path.Clean("/" + r.Path())
	full, err := h.resolve(urlPath)
	if err != nil {
		return h.replyStatError(r, urlPath, err)
	}

	fi, err := os.Stat(full)
	if err != nil {
		return h.replyStatError(r, urlPath, err)
	}
	if fi.IsDir() {
		index := filepath.Join(full, IndexFile)
		if ifi, err := os.Stat(index); err == nil && ifi.Mode().IsRegular() {
			return h.serveFile(r, index, IndexFile, ifi.Size())
		}
		return h.serveListing(r, full, urlPath)
	}
	if !fi.Mode().IsRegular() {
		return h.replyError(r, 403, "Forbidden", urlPath+" is not a regular file")
	}

	name := path.Base(urlPath)
	if dl, ok := r.Param("download"); ok && dl != "" {
		name = dl
	}
	return h.serveFile(r, full, name, fi.Size())
}

// resolve maps a cleaned URL path to a file below the root, refusing
// symlinks that lead outside it.
func (h *Handler) resolve(urlPath string) (string, error) {
	full := filepath.Join(h.root, filepath.FromSlash(urlPath))
	resolved, err := filepath.EvalSymlinks(full)
	if err != nil {
		return "", err
	}
	if resolved != h.root && !strings.HasPrefix(resolved, h.root+string(filepath.Separator)) {
		return "", fs.ErrPermission
	}
	return resolved, nil
}

func (h *Handler) serveFile(r *rqhttp.Request, full, name string, size int64) error {
	contentType := r.Adapter().MimeType(name)
	if size > protocol.MaxPayloadSize {
		return h.replyError(r, 500, "Internal Server Error", "file exceeds the reply size limit")
	}
	if r.Method() == rqhttp.MethodHead || size == 0 {
		return r.Reply(200, contentType, nil)
	}

	f, err := os.Open(full)
	if err != nil {
		return h.replyStatError(r, path.Clean("/"+r.Path()), err)
	}
	defer f.Close()

	mm, err := gommap.Map(f.Fd(), gommap.PROT_READ, gommap.MAP_PRIVATE)
	if err != nil {
		h.logger.Error("Failed to map file", "path", full, "error", err)
		return h.replyError(r, 500, "Internal Server Error", "file could not be read")
	}
	defer func() {
		if err := mm.UnsafeUnmap(); err != nil {
			h.logger.Warn("Failed to unmap file", "path", full, "error", err)
		}
	}()

	// Reply copies the body into the request's buffer before returning.
	return r.Reply(200, contentType, mm)
}

func (h *Handler) serveListing(r *rqhttp.Request, dir, urlPath string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return h.replyStatError(r, urlPath, err)
	}
	if r.Method() == rqhttp.MethodHead {
		return r.Reply(200, "text/html", nil)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	a := r.Adapter()
	title := a.EscapeHTML(urlPath)
	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html><head><title>Index of ")
	b.WriteString(title)
	b.WriteString("</title></head><body>\n<h1>Index of ")
	b.WriteString(title)
	b.WriteString("</h1>\n<ul>\n")
	if urlPath != "/" {
		b.WriteString("<li><a href=\"../\">../</a></li>\n")
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		escaped := a.EscapeHTML(name)
		fmt.Fprintf(&b, "<li><a href=\"%s\">%s</a></li>\n", escaped, escaped)
	}
	b.WriteString("</ul>\n</body></html>\n")
	return r.Reply(200, "text/html", []byte(b.String()))
}

func (h *Handler) replyStatError(r *rqhttp.Request, urlPath string, err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return h.replyError(r, 404, "Not Found", urlPath+" was not found")
	case errors.Is(err, fs.ErrPermission):
		return h.replyError(r, 403, "Forbidden", urlPath+" is not accessible")
	default:
		h.logger.Error("Failed to stat file", "path", urlPath, "error", err)
		return h.replyError(r, 500, "Internal Server Error", "file could not be read")
	}
}

// replyError sends a small HTML page. The detail is escaped.
func (h *Handler) replyError(r *rqhttp.Request, code int, title, detail string) error {
	if r.Method() == rqhttp.MethodHead {
		return r.Reply(code, "text/html", nil)
	}
	a := r.Adapter()
	body := fmt.Sprintf("<!DOCTYPE html>\n<html><head><title>%d %s</title></head><body>\n<h1>%s</h1>\n<p>%s</p>\n</body></html>\n",
		code, title, title, a.EscapeHTML(detail))
	return r.Reply(code, "text/html", []byte(body))
}
