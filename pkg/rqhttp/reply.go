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

package rqhttp

import (
	"fmt"
	"time"

	"rqhttp/internal/protocol"
)

// appendReply appends a reply stream to dst in wire order:
// CLEAR, CONTENT_TYPE?, FILE?, CODE, REPLY.
func appendReply(dst []byte, code int, contentType string, body []byte) ([]byte, error) {
	var err error
	if dst, err = protocol.AppendCommand(dst, protocol.TagClear); err != nil {
		return dst, err
	}
	if contentType != "" {
		if dst, err = protocol.AppendString(dst, protocol.TagContentType, []byte(contentType)); err != nil {
			return dst, err
		}
	}
	if len(body) > 0 {
		if dst, err = protocol.AppendString(dst, protocol.TagFile, body); err != nil {
			return dst, err
		}
	}
	if dst, err = protocol.AppendInt(dst, protocol.TagCode, int32(code)); err != nil {
		return dst, err
	}
	return protocol.AppendCommand(dst, protocol.TagReply)
}

// Reply sends the response for r. An empty contentType omits CONTENT_TYPE
// and an empty body omits FILE.
//
// Replying twice, or with a code that is not positive, panics with a
// *Violation. A content type or body too large for its command is returned
// as an error and the request still owes a reply. A transport failure is
// returned as an error after the request has been completed.
//
// Replying to a request the expiry sweep already answered returns
// ErrRequestExpired.
//
// A request that was parked is freed before Reply returns and must not be
// used afterwards. A request answered from inside its handler stays valid
// until the handler returns.
func (r *Request) Reply(code int, contentType string, body []byte) error {
	if code <= 0 {
		r.adapter.fatal(r, fmt.Errorf("%w: %d", ErrInvalidCode, code))
	}
	sent, err := r.send(code, contentType, body, false)
	if !sent && err == nil {
		r.mu.Lock()
		expired := r.expired
		r.mu.Unlock()
		if expired {
			return ErrRequestExpired
		}
		r.adapter.fatal(r, ErrAlreadyReplied)
	}
	return err
}

// send encodes and hands the reply to the transport. sent is false, with a
// nil error, if the request had already been answered. expire marks the
// request as answered by the expiry sweep.
func (r *Request) send(code int, contentType string, body []byte, expire bool) (sent bool, err error) {
	a := r.adapter

	r.mu.Lock()
	if r.msg == nil {
		r.mu.Unlock()
		return false, nil
	}
	if r.reply.Len() != 0 {
		r.mu.Unlock()
		a.fatal(r, ErrReplyBufferDirty)
	}

	r.reply.B, err = appendReply(r.reply.B, code, contentType, body)
	if err != nil {
		r.reply.Reset()
		r.mu.Unlock()
		return false, fmt.Errorf("encode reply: %w", err)
	}

	msg := r.msg
	sendErr := a.transport.Reply(msg, r.reply.B)
	r.reply.Reset()
	r.msg = nil
	r.expired = expire
	parked := r.state == StateParked
	r.state = StateReplied
	r.mu.Unlock()

	a.recorder.ReplySent(a.queue, code)
	if sendErr != nil {
		a.reqLog.LogReplyFailed(a.queue, r.messageID, sendErr)
		sendErr = fmt.Errorf("send reply: %w", sendErr)
	} else {
		a.reqLog.LogReplied(a.queue, r.messageID, code, len(body), time.Since(r.receivedAt), parked)
	}

	if parked {
		a.unpark(r)
		r.free()
	}
	return true, sendErr
}
