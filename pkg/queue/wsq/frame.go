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
Package wsq carries queue traffic over WebSocket.

A Server exposes a memq.Broker to remote consumers; Transport is the remote
side and implements queue.Transport, so an rqhttp adapter can run in a
different process from the producers.

FRAMES:
=======
Every WebSocket binary message is one Avro-encoded Frame:

	consume   client -> server  subscribe to queue with prefetch and priority
	consumed  server -> client  subscription result, error set on failure
	deliver   server -> client  a message: id, queue, data, headers
	reply     client -> server  the answer to a delivered id
	cancel    client -> server  drop the subscription on queue
	error     server -> client  a reply for id could not be applied

Messages a cancelled or disconnected consumer held unanswered are requeued
by the broker.
*/
package wsq

import (
	"errors"
	"fmt"

	"github.com/hamba/avro/v2"
)

// FrameKind identifies a frame.
type FrameKind int

const (
	FrameConsume FrameKind = iota + 1
	FrameConsumed
	FrameDeliver
	FrameReply
	FrameCancel
	FrameError
)

// String returns the frame kind name.
func (k FrameKind) String() string {
	switch k {
	case FrameConsume:
		return "consume"
	case FrameConsumed:
		return "consumed"
	case FrameDeliver:
		return "deliver"
	case FrameReply:
		return "reply"
	case FrameCancel:
		return "cancel"
	case FrameError:
		return "error"
	default:
		return fmt.Sprintf("frame(%d)", int(k))
	}
}

// Frame is the unit exchanged on a queue connection.
type Frame struct {
	Kind     FrameKind         `avro:"kind"`
	ID       string            `avro:"id"`
	Queue    string            `avro:"queue"`
	Prefetch int               `avro:"prefetch"`
	Priority int               `avro:"priority"`
	Data     []byte            `avro:"data"`
	Headers  map[string]string `avro:"headers"`
	Error    string            `avro:"error"`
}

// ErrBadFrame indicates a message that is not a valid frame.
var ErrBadFrame = errors.New("malformed frame")

// FrameSchema is the Avro schema of Frame.
const FrameSchema = `{
	"type": "record",
	"name": "Frame",
	"namespace": "rqhttp.wsq",
	"fields": [
		{"name": "kind", "type": "int"},
		{"name": "id", "type": "string", "default": ""},
		{"name": "queue", "type": "string", "default": ""},
		{"name": "prefetch", "type": "int", "default": 0},
		{"name": "priority", "type": "int", "default": 0},
		{"name": "data", "type": "bytes", "default": ""},
		{"name": "headers", "type": {"type": "map", "values": "string"}, "default": {}},
		{"name": "error", "type": "string", "default": ""}
	]
}`

var frameSchema = avro.MustParse(FrameSchema)

// EncodeFrame serialises f.
func EncodeFrame(f *Frame) ([]byte, error) {
	data, err := avro.Marshal(frameSchema, f)
	if err != nil {
		return nil, fmt.Errorf("encode %s frame: %w", f.Kind, err)
	}
	return data, nil
}

// DecodeFrame parses a frame produced by EncodeFrame.
func DecodeFrame(data []byte) (*Frame, error) {
	var f Frame
	if err := avro.Unmarshal(frameSchema, data, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadFrame, err)
	}
	if f.Kind < FrameConsume || f.Kind > FrameError {
		return nil, fmt.Errorf("%w: unknown kind %d", ErrBadFrame, int(f.Kind))
	}
	return &f, nil
}
