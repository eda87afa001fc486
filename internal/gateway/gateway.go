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
Package gateway turns inbound HTTP requests into rqhttp command streams.

Each request is encoded as CLEAR, METHOD, HOST, PATH, PARAMS, EXECUTE and
published on a queue; the reply stream is decoded back into status,
content type and body. A form-encoded POST body is appended to the query
string, since the stream has no request body command.

	GET  /any/path?x=1  ->  queue "www"  ->  200 text/html ...

Requests that get no reply within the timeout are answered 504.
*/
package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"time"

	"rqhttp/internal/logging"
	"rqhttp/internal/protocol"
	"rqhttp/pkg/queue"
)

// DefaultTimeout bounds the wait for a reply.
const DefaultTimeout = 30 * time.Second

// MaxFormSize bounds a POST body merged into the params.
const MaxFormSize = 1 << 20

// Requester publishes a request stream and waits for the reply.
// memq.Broker satisfies it.
type Requester interface {
	Request(ctx context.Context, queue string, data []byte) ([]byte, error)
}

// Gateway is an http.Handler publishing to one queue.
type Gateway struct {
	requester Requester
	queue     string
	timeout   time.Duration
	logger    *logging.Logger
}

// New creates a gateway publishing to queueName. A zero timeout means
// DefaultTimeout.
func New(requester Requester, queueName string, timeout time.Duration) *Gateway {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Gateway{
		requester: requester,
		queue:     queueName,
		timeout:   timeout,
		logger:    logging.NewLogger("gateway").With("queue", queueName),
	}
}

// ServeHTTP implements http.Handler.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	req, status, err := g.translate(r)
	if err != nil {
		http.Error(w, err.Error(), status)
		return
	}
	data, err := req.Encode()
	if err != nil {
		http.Error(w, err.Error(), http.StatusRequestURITooLong)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), g.timeout)
	defer cancel()

	start := time.Now()
	reply, err := g.requester.Request(ctx, g.queue, data)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		g.logger.Warn("Request timed out", "path", req.Path, "timeout", g.timeout)
		http.Error(w, "gateway timeout", http.StatusGatewayTimeout)
		return
	case errors.Is(err, context.Canceled):
		return
	case errors.Is(err, queue.ErrClosed):
		http.Error(w, "queue unavailable", http.StatusServiceUnavailable)
		return
	case err != nil:
		g.logger.Error("Request failed", "path", req.Path, "error", err)
		http.Error(w, "bad gateway", http.StatusBadGateway)
		return
	}

	resp, err := protocol.DecodeHTTPResponse(reply)
	if err != nil {
		g.logger.Error("Malformed reply", "path", req.Path, "error", err)
		http.Error(w, "bad gateway", http.StatusBadGateway)
		return
	}

	if resp.ContentType != "" {
		w.Header().Set("Content-Type", resp.ContentType)
	}
	w.Header().Set("Content-Length", strconv.Itoa(len(resp.Body)))
	w.WriteHeader(resp.Code)
	if r.Method != http.MethodHead {
		w.Write(resp.Body)
	}
	g.logger.Debug("Request served", "method", req.Method, "path", req.Path,
		"code", resp.Code, "duration_ms", time.Since(start).Milliseconds())
}

// translate builds the request stream fields, or an HTTP error status.
func (g *Gateway) translate(r *http.Request) (*protocol.HTTPRequest, int, error) {
	switch r.Method {
	case http.MethodGet, http.MethodHead, http.MethodPost:
	default:
		return nil, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method)
	}

	params := r.URL.RawQuery
	if r.Method == http.MethodPost {
		form, status, err := readForm(r)
		if err != nil {
			return nil, status, err
		}
		if form != "" {
			if params != "" {
				params += "&"
			}
			params += form
		}
	}

	p := r.URL.Path
	if p == "" {
		p = "/"
	}
	return &protocol.HTTPRequest{
		Method: r.Method,
		Host:   r.Host,
		Path:   p,
		Params: params,
	}, 0, nil
}

func readForm(r *http.Request) (string, int, error) {
	if r.Body == nil {
		return "", 0, nil
	}
	ct := r.Header.Get("Content-Type")
	if ct == "" {
		return "", 0, nil
	}
	mediaType, _, err := mime.ParseMediaType(ct)
	if err != nil || mediaType != "application/x-www-form-urlencoded" {
		return "", http.StatusUnsupportedMediaType, fmt.Errorf("unsupported content type %q", ct)
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, MaxFormSize+1))
	if err != nil {
		return "", http.StatusBadRequest, fmt.Errorf("read body: %w", err)
	}
	if len(body) > MaxFormSize {
		return "", http.StatusRequestEntityTooLarge, errors.New("form body too large")
	}
	return string(body), 0, nil
}
