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
	"math"
)

// AppendCommand appends a payload-less command to dst.
func AppendCommand(dst []byte, tag Tag) ([]byte, error) {
	if tag.Kind() != KindNone {
		return dst, fmt.Errorf("%w: %s is %s", ErrTagKind, tag, tag.Kind())
	}
	return append(dst, byte(tag)), nil
}

// AppendInt appends an integer command to dst.
func AppendInt(dst []byte, tag Tag, v int32) ([]byte, error) {
	if tag.Kind() != KindInt {
		return dst, fmt.Errorf("%w: %s is %s", ErrTagKind, tag, tag.Kind())
	}
	dst = append(dst, byte(tag))
	return binary.BigEndian.AppendUint32(dst, uint32(v)), nil
}

// AppendString appends a string command to dst. The length prefix width is
// chosen by the tag; v must fit in it.
func AppendString(dst []byte, tag Tag, v []byte) ([]byte, error) {
	n := len(v)
	switch tag.Kind() {
	case KindShortString:
		if n > math.MaxUint8 {
			return dst, fmt.Errorf("%w: %s carries %d bytes", ErrPayloadTooLarge, tag, n)
		}
		dst = append(dst, byte(tag), byte(n))
	case KindString:
		if n > math.MaxUint16 {
			return dst, fmt.Errorf("%w: %s carries %d bytes", ErrPayloadTooLarge, tag, n)
		}
		dst = append(dst, byte(tag))
		dst = binary.BigEndian.AppendUint16(dst, uint16(n))
	case KindLargeString:
		if n > MaxPayloadSize {
			return dst, fmt.Errorf("%w: %s carries %d bytes", ErrPayloadTooLarge, tag, n)
		}
		dst = append(dst, byte(tag))
		dst = binary.BigEndian.AppendUint32(dst, uint32(n))
	default:
		return dst, fmt.Errorf("%w: %s is %s", ErrTagKind, tag, tag.Kind())
	}
	return append(dst, v...), nil
}
