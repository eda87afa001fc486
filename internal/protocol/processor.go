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
	"encoding/binary"
	"fmt"
)

// Handler is invoked for each command with a registered tag.
type Handler[T any] func(ctx T, cmd Command) error

// Processor walks a command stream and dispatches each command to the
// handler registered for its tag. A Processor is configured once and may
// then be shared; Process does not mutate it.
type Processor[T any] struct {
	handlers [256]Handler[T]
}

// NewProcessor creates a processor with no commands registered.
func NewProcessor[T any]() *Processor[T] {
	return &Processor[T]{}
}

// AddCommand registers h for tag, replacing any earlier registration.
func (p *Processor[T]) AddCommand(tag Tag, h Handler[T]) {
	p.handlers[tag] = h
}

// Registered reports whether tag has a handler.
func (p *Processor[T]) Registered(tag Tag) bool {
	return p.handlers[tag] != nil
}

// Process decodes data and calls the handlers in stream order.
//
// RETURNS:
// - the number of bytes consumed. A trailing command whose payload is not
//   fully present is left unconsumed, so a short count means the stream was
//   truncated.
// - the first handler error, if any. Processing stops at that command and the
//   count excludes it.
//
// Commands without a registered handler are consumed and ignored.
func (p *Processor[T]) Process(ctx T, data []byte) (int, error) {
	offset := 0
	for offset < len(data) {
		cmd, n, ok := next(data[offset:])
		if !ok {
			break
		}
		if h := p.handlers[cmd.Tag]; h != nil {
			if err := h(ctx, cmd); err != nil {
				return offset, fmt.Errorf("%s: %w", cmd.Tag, err)
			}
		}
		offset += n
	}
	return offset, nil
}

// next decodes one command from the head of data.
func next(data []byte) (Command, int, bool) {
	cmd := Command{Tag: Tag(data[0])}
	rest := data[1:]

	switch cmd.Tag.Kind() {
	case KindNone:
		return cmd, 1, true

	case KindInt:
		if len(rest) < 4 {
			return cmd, 0, false
		}
		cmd.Int = int32(binary.BigEndian.Uint32(rest))
		return cmd, 5, true

	case KindShortString:
		if len(rest) < 1 {
			return cmd, 0, false
		}
		return payload(cmd, rest[1:], int(rest[0]), 2)

	case KindString:
		if len(rest) < 2 {
			return cmd, 0, false
		}
		return payload(cmd, rest[2:], int(binary.BigEndian.Uint16(rest)), 3)

	default:
		if len(rest) < 4 {
			return cmd, 0, false
		}
		length := binary.BigEndian.Uint32(rest)
		if length > MaxPayloadSize {
			return cmd, 0, false
		}
		return payload(cmd, rest[4:], int(length), 5)
	}
}

func payload(cmd Command, body []byte, length, prefix int) (Command, int, bool) {
	if len(body) < length {
		return cmd, 0, false
	}
	cmd.Data = body[:length:length]
	return cmd, prefix + length, true
}
