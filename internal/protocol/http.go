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
	"fmt"
	"net/http"
)

// HTTPRequest is the producer-side view of a request, used by gateways that
// turn inbound HTTP traffic into command streams.
type HTTPRequest struct {
	Method string // GET, POST or HEAD; empty sends no method command
	Host   string
	Path   string
	Params string // raw query string
}

// Encode builds the request stream:
// CLEAR, METHOD_*, HOST, PATH, PARAMS, EXECUTE. Empty optional fields are
// omitted.
func (r *HTTPRequest) Encode() ([]byte, error) {
	buf, _ := AppendCommand(nil, TagClear)

	var err error
	switch r.Method {
	case "":
	case http.MethodGet:
		buf, err = AppendCommand(buf, TagMethodGet)
	case http.MethodPost:
		buf, err = AppendCommand(buf, TagMethodPost)
	case http.MethodHead:
		buf, err = AppendCommand(buf, TagMethodHead)
	default:
		return nil, fmt.Errorf("unsupported method %q", r.Method)
	}
	if err != nil {
		return nil, err
	}

	if r.Host != "" {
		if buf, err = AppendString(buf, TagHost, []byte(r.Host)); err != nil {
			return nil, err
		}
	}
	if buf, err = AppendString(buf, TagPath, []byte(r.Path)); err != nil {
		return nil, err
	}
	if r.Params != "" {
		if buf, err = AppendString(buf, TagParams, []byte(r.Params)); err != nil {
			return nil, err
		}
	}
	return AppendCommand(buf, TagExecute)
}

// HTTPResponse is a decoded reply stream.
type HTTPResponse struct {
	Code        int
	ContentType string
	Body        []byte
}

type responseState struct {
	resp  HTTPResponse
	ended bool
}

var responseProcessor = newResponseProcessor()

func newResponseProcessor() *Processor[*responseState] {
	p := NewProcessor[*responseState]()
	p.AddCommand(TagClear, func(s *responseState, _ Command) error {
		s.resp = HTTPResponse{}
		return nil
	})
	p.AddCommand(TagContentType, func(s *responseState, cmd Command) error {
		s.resp.ContentType = string(cmd.Data)
		return nil
	})
	p.AddCommand(TagFile, func(s *responseState, cmd Command) error {
		s.resp.Body = append([]byte(nil), cmd.Data...)
		return nil
	})
	p.AddCommand(TagCode, func(s *responseState, cmd Command) error {
		s.resp.Code = int(cmd.Int)
		return nil
	})
	p.AddCommand(TagReply, func(s *responseState, _ Command) error {
		s.ended = true
		return nil
	})
	return p
}

// DecodeHTTPResponse decodes a reply stream produced by a consumer.
func DecodeHTTPResponse(data []byte) (*HTTPResponse, error) {
	var s responseState
	n, err := responseProcessor.Process(&s, data)
	if err != nil {
		return nil, err
	}
	if n != len(data) {
		return nil, fmt.Errorf("%w: consumed %d of %d bytes", ErrIncomplete, n, len(data))
	}
	if !s.ended {
		return nil, ErrMissingReply
	}
	return &s.resp, nil
}
