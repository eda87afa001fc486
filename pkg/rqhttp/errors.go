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
	"errors"
	"fmt"
)

// Protocol and lifecycle violations. They reach callers wrapped in a
// *Violation panic, never as returned errors.
var (
	ErrFieldAlreadySet     = errors.New("field already set")
	ErrUnexpectedClear     = errors.New("clear received with fields already set")
	ErrMissingPath         = errors.New("execute received without a path")
	ErrEmptyPayload        = errors.New("empty payload")
	ErrCommandAfterExecute = errors.New("command received after execute")
	ErrStreamDesync        = errors.New("stream not fully consumed")
	ErrAlreadyReplied      = errors.New("request already replied")
	ErrInvalidCode         = errors.New("reply code must be positive")
	ErrReplyBufferDirty    = errors.New("reply buffer not empty")
	ErrFreeUnreplied       = errors.New("freeing a request that still owes a reply")
	ErrPendingRequests     = errors.New("requests still pending")
)

// ErrRequestExpired is returned by Reply when the expiry sweep answered the
// request first.
var ErrRequestExpired = errors.New("request expired before reply")

// violationKinds labels violations for metrics.
var violationKinds = []struct {
	err  error
	kind string
}{
	{ErrFieldAlreadySet, "field_already_set"},
	{ErrUnexpectedClear, "unexpected_clear"},
	{ErrMissingPath, "missing_path"},
	{ErrEmptyPayload, "empty_payload"},
	{ErrCommandAfterExecute, "command_after_execute"},
	{ErrStreamDesync, "stream_desync"},
	{ErrAlreadyReplied, "already_replied"},
	{ErrInvalidCode, "invalid_code"},
	{ErrReplyBufferDirty, "reply_buffer_dirty"},
	{ErrFreeUnreplied, "free_unreplied"},
	{ErrPendingRequests, "pending_requests"},
}

func violationKind(err error) string {
	for _, vk := range violationKinds {
		if errors.Is(err, vk.err) {
			return vk.kind
		}
	}
	return "other"
}

// Violation is the panic value raised when the command stream or the
// request lifecycle breaks an invariant. Processing must not continue
// after one; recover only to report and exit.
type Violation struct {
	Queue     string
	MessageID string
	Err       error
}

func (v *Violation) Error() string {
	if v.MessageID == "" {
		return fmt.Sprintf("rqhttp: violation on queue %q: %v", v.Queue, v.Err)
	}
	return fmt.Sprintf("rqhttp: violation on queue %q message %s: %v", v.Queue, v.MessageID, v.Err)
}

func (v *Violation) Unwrap() error {
	return v.Err
}

// Kind returns a short label for the broken invariant.
func (v *Violation) Kind() string {
	return violationKind(v.Err)
}
