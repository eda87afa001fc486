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
	"iter"
	"sync"
	"time"

	"github.com/valyala/bytebufferpool"

	"rqhttp/internal/params"
	"rqhttp/pkg/queue"
)

// Method is the request method carried by a METHOD_* command.
type Method int

const (
	MethodNone Method = iota
	MethodGet
	MethodPost
	MethodHead
)

func (m Method) String() string {
	switch m {
	case MethodGet:
		return "GET"
	case MethodPost:
		return "POST"
	case MethodHead:
		return "HEAD"
	default:
		return "NONE"
	}
}

// State is the lifecycle position of a Request.
type State int

const (
	StateBuilding State = iota
	StateExecuting
	StateParked
	StateReplied
	StateFreed
)

func (s State) String() string {
	switch s {
	case StateBuilding:
		return "building"
	case StateExecuting:
		return "executing"
	case StateParked:
		return "parked"
	case StateReplied:
		return "replied"
	case StateFreed:
		return "freed"
	default:
		return "unknown"
	}
}

// setOnce holds a value that may be assigned exactly once.
type setOnce[T any] struct {
	v   T
	set bool
}

func (s *setOnce[T]) Set(v T) error {
	if s.set {
		return ErrFieldAlreadySet
	}
	s.v = v
	s.set = true
	return nil
}

func (s *setOnce[T]) Get() (T, bool) {
	return s.v, s.set
}

// Request is one decoded message. It is built by the decode loop, handed
// to the Handler on EXECUTE, and lives until Reply is called.
//
// Accessors may be called from any goroutine once the handler has the
// Request: every field they read is written before EXECUTE and never after.
type Request struct {
	id         uint64
	adapter    *Adapter
	receivedAt time.Time
	messageID  string

	method    setOnce[Method]
	host      setOnce[string]
	path      setOnce[string]
	rawParams setOnce[string]
	code      setOnce[int32]
	table     *params.Table

	// executed is only touched by the decode goroutine.
	executed bool

	mu      sync.Mutex
	state   State
	msg     *queue.Message // nil once replied
	expired bool
	reply   *bytebufferpool.ByteBuffer
}

func newRequest(a *Adapter, id uint64, msg *queue.Message) *Request {
	return &Request{
		id:         id,
		adapter:    a,
		receivedAt: time.Now(),
		messageID:  msg.ID,
		msg:        msg,
		reply:      bytebufferpool.Get(),
	}
}

// ID returns the adapter-local request identifier.
func (r *Request) ID() uint64 { return r.id }

// MessageID returns the transport id of the message the request came from.
func (r *Request) MessageID() string { return r.messageID }

// ReceivedAt returns when the message was handed to the adapter.
func (r *Request) ReceivedAt() time.Time { return r.receivedAt }

// Method returns the request method, MethodNone if none was sent.
func (r *Request) Method() Method {
	m, _ := r.method.Get()
	return m
}

// Host returns the HOST value and whether one was sent.
func (r *Request) Host() (string, bool) { return r.host.Get() }

// Path returns the request path. It is always set for a request that
// reached the handler.
func (r *Request) Path() string {
	p, _ := r.path.Get()
	return p
}

// RawParams returns the undecoded query string and whether one was sent.
func (r *Request) RawParams() (string, bool) { return r.rawParams.Get() }

// Param returns the decoded value of the first parameter named key.
// ok is false if the key is absent or no parameters were sent.
func (r *Request) Param(key string) (value string, ok bool) {
	return r.table.Get(key)
}

// Params iterates the decoded parameters in arrival order.
func (r *Request) Params() iter.Seq[params.Pair] {
	return r.table.All()
}

// HasParams reports whether the request carried a PARAMS command, even one
// that parsed to nothing.
func (r *Request) HasParams() bool { return r.table != nil }

// Code returns the CODE value sent with the request and whether one was sent.
func (r *Request) Code() (int32, bool) { return r.code.Get() }

// UserData returns the value given to WithUserData.
func (r *Request) UserData() any { return r.adapter.userData }

// Adapter returns the adapter that decoded the request.
func (r *Request) Adapter() *Adapter { return r.adapter }

// State returns the current lifecycle state.
func (r *Request) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Replied reports whether the reply has been sent.
func (r *Request) Replied() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.msg == nil
}

// Setters used by the decode loop. A second assignment fails.

func (r *Request) setMethod(m Method) error { return r.method.Set(m) }

func (r *Request) setHost(data []byte) error {
	if len(data) == 0 {
		return ErrEmptyPayload
	}
	return r.host.Set(string(data))
}

func (r *Request) setPath(data []byte) error {
	if len(data) == 0 {
		return ErrEmptyPayload
	}
	return r.path.Set(string(data))
}

func (r *Request) setParams(data []byte) error {
	if len(data) == 0 || data[0] == 0 {
		return ErrEmptyPayload
	}
	raw := string(data)
	if err := r.rawParams.Set(raw); err != nil {
		return err
	}
	r.table = params.Parse(raw)
	return nil
}

func (r *Request) setCode(v int32) error { return r.code.Set(v) }

// clean reports whether no field has been assigned yet.
func (r *Request) clean() bool {
	return !r.method.set && !r.code.set && !r.host.set &&
		!r.path.set && !r.rawParams.set && r.table == nil
}

// free releases everything the request holds. The request must have
// replied and its buffer must be drained.
func (r *Request) free() {
	r.mu.Lock()
	if r.msg != nil {
		r.mu.Unlock()
		r.adapter.fatal(r, ErrFreeUnreplied)
	}
	if r.reply.Len() != 0 {
		r.mu.Unlock()
		r.adapter.fatal(r, ErrReplyBufferDirty)
	}
	bytebufferpool.Put(r.reply)
	r.reply = nil
	r.state = StateFreed
	expired := r.expired
	r.mu.Unlock()

	// A handler may still be reading an expired request.
	if !expired {
		r.table.Release()
		r.table = nil
	}
}
