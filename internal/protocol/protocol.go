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
Package protocol defines the rqhttp tagged command stream.

PROTOCOL OVERVIEW:
==================
An HTTP request travelling over the queue is not sent as text. The producer
encodes it as a flat sequence of commands, each identified by a one byte tag.
The consumer walks the sequence in order and applies each command to the
request being built. The reply travels back the same way.

There is no outer frame: the queue message boundary is the stream boundary.

COMMAND FORMAT:
===============
The tag value itself tells the decoder how much payload follows:

	+-----------+-------------------+----------------------------------+
	| Tag range | Kind              | Payload                          |
	+-----------+-------------------+----------------------------------+
	| 0x00-0x3F | KindNone          | none                             |
	| 0x40-0x7F | KindInt           | int32, big-endian (4 bytes)      |
	| 0x80-0xBF | KindShortString   | [uint8 length][bytes]            |
	| 0xC0-0xDF | KindString        | [uint16 length][bytes]           |
	| 0xE0-0xFF | KindLargeString   | [uint32 length][bytes]           |
	+-----------+-------------------+----------------------------------+

EXAMPLE: GET /index.html?q=1
============================

	00                    CLEAR
	10                    METHOD_GET
	C0 00 0B 2F 69 ...    PATH "/index.html"
	C1 00 03 71 3D 31     PARAMS "q=1"
	01                    EXECUTE

And the reply:

	00                    CLEAR
	80 09 74 65 78 ...    CONTENT_TYPE "text/html"
	E0 00 00 00 05 ...    FILE (5 bytes)
	40 00 00 00 C8        CODE 200
	02                    REPLY

RESERVED TAGS:
==============
Header, length, remote host, language, filename and key/value commands have
tag values assigned so that producers and consumers agree on them, but they
are not handled. A consumer must not register callbacks for them.
*/
package protocol

import (
	"errors"
	"fmt"
)

// MaxPayloadSize bounds a single large-string payload.
const MaxPayloadSize = 32 * 1024 * 1024 // 32MB

// Tag identifies a command in the stream.
type Tag byte

// Kind is the payload shape implied by a tag's range.
type Kind int

const (
	KindNone Kind = iota
	KindInt
	KindShortString
	KindString
	KindLargeString
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindInt:
		return "int"
	case KindShortString:
		return "short-string"
	case KindString:
		return "string"
	case KindLargeString:
		return "large-string"
	default:
		return "unknown"
	}
}

// Kind returns the payload kind encoded in the tag value.
func (t Tag) Kind() Kind {
	switch {
	case t < 0x40:
		return KindNone
	case t < 0x80:
		return KindInt
	case t < 0xC0:
		return KindShortString
	case t < 0xE0:
		return KindString
	default:
		return KindLargeString
	}
}

// Command tags organised by payload kind.
const (
	// ========== No payload (0x00-0x3F) ==========

	TagClear      Tag = 0x00 // Reset marker, first command of every stream
	TagExecute    Tag = 0x01 // Request complete, run the handler
	TagReply      Tag = 0x02 // Reply complete
	TagMethodGet  Tag = 0x10
	TagMethodPost Tag = 0x11
	TagMethodHead Tag = 0x12

	// ========== Integer (0x40-0x7F) ==========

	TagCode   Tag = 0x40 // HTTP status code
	TagLength Tag = 0x41 // reserved

	// ========== Short string (0x80-0xBF) ==========

	TagContentType Tag = 0x80
	TagLanguage    Tag = 0x81 // reserved
	TagRemoteHost  Tag = 0x82 // reserved
	TagHost        Tag = 0x83
	TagFilename    Tag = 0x84 // reserved
	TagKey         Tag = 0x85 // reserved

	// ========== String (0xC0-0xDF) ==========

	TagPath      Tag = 0xC0
	TagParams    Tag = 0xC1 // Raw query string, not yet percent-decoded
	TagSetHeader Tag = 0xC2 // reserved
	TagValue     Tag = 0xC3 // reserved

	// ========== Large string (0xE0-0xFF) ==========

	TagFile Tag = 0xE0 // Reply body. Reserved as a request param alias.
)

var tagNames = map[Tag]string{
	TagClear:       "CLEAR",
	TagExecute:     "EXECUTE",
	TagReply:       "REPLY",
	TagMethodGet:   "METHOD_GET",
	TagMethodPost:  "METHOD_POST",
	TagMethodHead:  "METHOD_HEAD",
	TagCode:        "CODE",
	TagLength:      "LENGTH",
	TagContentType: "CONTENT_TYPE",
	TagLanguage:    "LANGUAGE",
	TagRemoteHost:  "REMOTE_HOST",
	TagHost:        "HOST",
	TagFilename:    "FILENAME",
	TagKey:         "KEY",
	TagPath:        "PATH",
	TagParams:      "PARAMS",
	TagSetHeader:   "SET_HEADER",
	TagValue:       "VALUE",
	TagFile:        "FILE",
}

// String returns the command name, or the hex value for unassigned tags.
func (t Tag) String() string {
	if name, ok := tagNames[t]; ok {
		return name
	}
	return fmt.Sprintf("0x%02X", byte(t))
}

// IsReserved reports whether the tag is assigned but intentionally unhandled.
func (t Tag) IsReserved() bool {
	switch t {
	case TagLength, TagLanguage, TagRemoteHost, TagFilename, TagKey, TagSetHeader, TagValue:
		return true
	}
	return false
}

// Command is a single decoded unit of the stream.
// Int is only meaningful for KindInt tags, Data for the string kinds.
// Data aliases the buffer passed to Process and must be copied to be retained.
type Command struct {
	Tag  Tag
	Int  int32
	Data []byte
}

// Protocol errors.
var (
	// ErrTagKind indicates a tag was used with the wrong payload shape.
	ErrTagKind = errors.New("tag kind mismatch")

	// ErrPayloadTooLarge indicates a string does not fit its length prefix.
	ErrPayloadTooLarge = errors.New("payload too large")

	// ErrIncomplete indicates a stream ended in the middle of a command.
	ErrIncomplete = errors.New("incomplete command stream")

	// ErrMissingReply indicates a reply stream without a REPLY terminator.
	ErrMissingReply = errors.New("reply stream not terminated")
)
