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
Package rqhttp serves HTTP-style requests that arrive as tagged command
streams on a message queue.

REQUEST STREAM:
===============

	CLEAR  METHOD_GET|POST|HEAD  HOST?  PATH  PARAMS?  CODE?  EXECUTE

Each message carries exactly one request. EXECUTE runs the Handler on the
delivery goroutine; no command may follow it.

REPLY STREAM:
=============

	CLEAR  CONTENT_TYPE?  FILE?  CODE  REPLY

LIFECYCLE:
==========

	BUILDING ──EXECUTE──> EXECUTING ──handler replied──> REPLIED ──> FREED
	                          │
	                          └──handler returned──> PARKED ──Reply──> REPLIED ──> FREED

A handler may return without replying and call Request.Reply later from any
goroutine. Until then the request is parked in the adapter's pending set.
Broken stream or lifecycle invariants panic with a *Violation.
*/
package rqhttp

import (
	"cmp"
	"fmt"
	"slices"
	"sync"
	"time"

	"rqhttp/internal/htmlsafe"
	"rqhttp/internal/logging"
	"rqhttp/internal/mime"
	"rqhttp/internal/protocol"
	"rqhttp/pkg/queue"
)

// Handler serves one request. It may reply before returning or keep the
// request and reply later.
type Handler func(req *Request)

// Recorder receives adapter events for metrics.
type Recorder interface {
	MessageReceived(queue string)
	DecodeDuration(queue string, d time.Duration)
	ReplySent(queue string, code int)
	PendingChanged(queue string, n int)
	RequestExpired(queue string)
	Violation(queue, kind string)
}

type nopRecorder struct{}

func (nopRecorder) MessageReceived(string) {}
func (nopRecorder) DecodeDuration(string, time.Duration) {}
func (nopRecorder) ReplySent(string, int) {}
func (nopRecorder) PendingChanged(string, int) {}
func (nopRecorder) RequestExpired(string) {}
func (nopRecorder) Violation(string, string) {}

// ExpiredCode is the status sent to parked requests that time out.
const ExpiredCode = 504

type options struct {
	prefetch       int
	priority       queue.Priority
	logger         *logging.Logger
	recorder       Recorder
	userData       any
	pendingTimeout time.Duration
	sweepInterval  time.Duration
}

// Option configures an Adapter.
type Option func(*options)

// WithPrefetch sets how many unanswered messages the subscription may hold.
func WithPrefetch(n int) Option {
	return func(o *options) { o.prefetch = n }
}

// WithPriority sets the subscription priority.
func WithPriority(p queue.Priority) Option {
	return func(o *options) { o.priority = p }
}

// WithLogger replaces the default "rqhttp" logger.
func WithLogger(l *logging.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(o *options) { o.recorder = r }
}

// WithUserData sets the value returned by Request.UserData.
func WithUserData(v any) Option {
	return func(o *options) { o.userData = v }
}

// WithPendingTimeout answers parked requests older than d with a 504.
// Zero, the default, keeps parked requests until they are replied.
func WithPendingTimeout(d time.Duration) Option {
	return func(o *options) { o.pendingTimeout = d }
}

// withSweepInterval overrides how often parked requests are checked.
func withSweepInterval(d time.Duration) Option {
	return func(o *options) { o.sweepInterval = d }
}

// Adapter decodes messages from one queue into Requests.
type Adapter struct {
	queue     string
	handler   Handler
	userData  any
	transport queue.Transport
	sub       queue.Subscription
	processor *protocol.Processor[*Request]

	logger   *logging.Logger
	reqLog   *logging.RequestLogger
	recorder Recorder

	mu      sync.Mutex
	nextID  uint64
	pending map[uint64]*Request

	escMu   sync.Mutex
	escaper htmlsafe.Escaper

	sweeper   *sweeper
	closeOnce sync.Once
}

// New creates an adapter for queueName and subscribes it on transport.
func New(transport queue.Transport, queueName string, handler Handler, opts ...Option) (*Adapter, error) {
	if handler == nil {
		return nil, fmt.Errorf("rqhttp: nil handler")
	}

	o := options{
		prefetch: queue.DefaultPrefetch,
		priority: queue.PriorityNormal,
		recorder: nopRecorder{},
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logging.NewLogger("rqhttp")
	}
	if o.sweepInterval == 0 {
		o.sweepInterval = sweepIntervalFor(o.pendingTimeout)
	}

	a := &Adapter{
		queue:     queueName,
		handler:   handler,
		userData:  o.userData,
		transport: transport,
		logger:    o.logger.With("queue", queueName),
		recorder:  o.recorder,
		pending:   make(map[uint64]*Request),
	}
	a.reqLog = logging.NewRequestLogger(o.logger)
	a.processor = newRequestProcessor(a)

	sub, err := transport.Consume(queueName, o.prefetch, o.priority, a.handleMessage)
	if err != nil {
		return nil, fmt.Errorf("consume %s: %w", queueName, err)
	}
	a.sub = sub

	if o.pendingTimeout > 0 {
		a.sweeper = startSweeper(a, o.pendingTimeout, o.sweepInterval)
	}

	a.logger.Info("Adapter started",
		"prefetch", o.prefetch,
		"priority", o.priority.String(),
		"pending_timeout", o.pendingTimeout.String())
	return a, nil
}

// Queue returns the queue name.
func (a *Adapter) Queue() string { return a.queue }

// newRequestProcessor registers the request-direction commands. Reserved
// tags stay unregistered and are skipped.
func newRequestProcessor(a *Adapter) *protocol.Processor[*Request] {
	p := protocol.NewProcessor[*Request]()

	building := func(h protocol.Handler[*Request]) protocol.Handler[*Request] {
		return func(r *Request, cmd protocol.Command) error {
			if r.executed {
				return ErrCommandAfterExecute
			}
			return h(r, cmd)
		}
	}

	p.AddCommand(protocol.TagClear, building(func(r *Request, _ protocol.Command) error {
		if !r.clean() {
			return ErrUnexpectedClear
		}
		return nil
	}))
	p.AddCommand(protocol.TagMethodGet, building(func(r *Request, _ protocol.Command) error {
		return r.setMethod(MethodGet)
	}))
	p.AddCommand(protocol.TagMethodPost, building(func(r *Request, _ protocol.Command) error {
		return r.setMethod(MethodPost)
	}))
	p.AddCommand(protocol.TagMethodHead, building(func(r *Request, _ protocol.Command) error {
		return r.setMethod(MethodHead)
	}))
	p.AddCommand(protocol.TagHost, building(func(r *Request, cmd protocol.Command) error {
		return r.setHost(cmd.Data)
	}))
	p.AddCommand(protocol.TagPath, building(func(r *Request, cmd protocol.Command) error {
		return r.setPath(cmd.Data)
	}))
	p.AddCommand(protocol.TagParams, building(func(r *Request, cmd protocol.Command) error {
		return r.setParams(cmd.Data)
	}))
	p.AddCommand(protocol.TagCode, building(func(r *Request, cmd protocol.Command) error {
		return r.setCode(cmd.Int)
	}))
	p.AddCommand(protocol.TagExecute, building(func(r *Request, _ protocol.Command) error {
		if !r.path.set {
			return ErrMissingPath
		}
		r.executed = true
		r.mu.Lock()
		r.state = StateExecuting
		r.mu.Unlock()

		r.adapter.reqLog.LogReceived(r.adapter.queue, r.messageID, r.Method().String(), r.Path())
		r.adapter.handler(r)
		return nil
	}))
	return p
}

// handleMessage is the per-message entry point, run on the transport's
// delivery goroutine.
func (a *Adapter) handleMessage(msg *queue.Message) {
	start := time.Now()
	a.recorder.MessageReceived(a.queue)

	a.mu.Lock()
	a.nextID++
	id := a.nextID
	a.mu.Unlock()

	req := newRequest(a, id, msg)
	n, err := a.processor.Process(req, msg.Data)
	if err != nil {
		a.fatal(req, err)
	}
	if n != len(msg.Data) {
		a.fatal(req, fmt.Errorf("%w: consumed %d of %d bytes", ErrStreamDesync, n, len(msg.Data)))
	}
	a.recorder.DecodeDuration(a.queue, time.Since(start))

	req.mu.Lock()
	if req.msg != nil {
		req.state = StateParked
		count := a.park(req)
		req.mu.Unlock()
		if !req.executed {
			a.logger.Warn("Message without EXECUTE parked", "message_id", msg.ID)
		}
		a.reqLog.LogParked(a.queue, msg.ID, req.Path(), count)
		return
	}
	req.mu.Unlock()
	req.free()
}

func (a *Adapter) park(r *Request) int {
	a.mu.Lock()
	a.pending[r.id] = r
	n := len(a.pending)
	a.mu.Unlock()
	a.recorder.PendingChanged(a.queue, n)
	return n
}

func (a *Adapter) unpark(r *Request) {
	a.mu.Lock()
	delete(a.pending, r.id)
	n := len(a.pending)
	a.mu.Unlock()
	a.recorder.PendingChanged(a.queue, n)
}

// PendingCount returns the number of parked requests.
func (a *Adapter) PendingCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.pending)
}

// Pending returns the parked requests, oldest first.
func (a *Adapter) Pending() []*Request {
	a.mu.Lock()
	out := make([]*Request, 0, len(a.pending))
	for _, r := range a.pending {
		out = append(out, r)
	}
	a.mu.Unlock()

	slices.SortFunc(out, func(x, y *Request) int { return cmp.Compare(x.id, y.id) })
	return out
}

// Abort answers the parked request id with code and a short text body, as
// the expiry sweep does. A later Reply from the handler returns
// ErrRequestExpired. found is false if id is not parked.
func (a *Adapter) Abort(id uint64, code int, reason string) (found bool, err error) {
	if code <= 0 {
		return false, fmt.Errorf("%w: %d", ErrInvalidCode, code)
	}
	a.mu.Lock()
	r, ok := a.pending[id]
	a.mu.Unlock()
	if !ok {
		return false, nil
	}
	sent, err := r.send(code, "text/plain", []byte(reason), true)
	if sent {
		a.logger.Warn("Pending request aborted", "message_id", r.messageID, "code", code)
	}
	return sent, err
}

// MimeType returns the content type for filename.
func (a *Adapter) MimeType(filename string) string {
	return mime.TypeByFilename(filename)
}

// EscapeHTML returns text with HTML special characters replaced by entities.
// The adapter's scratch buffer is reused across calls under a lock; the
// returned string is a copy.
func (a *Adapter) EscapeHTML(text string) string {
	a.escMu.Lock()
	defer a.escMu.Unlock()
	return a.escaper.Escape(text)
}

// Close cancels the subscription and releases the adapter. It panics with a
// *Violation wrapping ErrPendingRequests if any request is still parked.
// The transport itself is left open. Close must not be called from a
// Handler.
func (a *Adapter) Close() error {
	a.closeOnce.Do(func() {
		if a.sweeper != nil {
			a.sweeper.stop()
		}
		a.checkDrained()
		a.sub.Cancel()
		a.checkDrained()

		a.escMu.Lock()
		a.escaper.Reset()
		a.escMu.Unlock()
		a.logger.Info("Adapter closed")
	})
	return nil
}

func (a *Adapter) checkDrained() {
	if n := a.PendingCount(); n > 0 {
		a.fatal(nil, fmt.Errorf("%w: %d parked", ErrPendingRequests, n))
	}
}

// fatal logs err and panics with a *Violation.
func (a *Adapter) fatal(r *Request, err error) {
	v := &Violation{Queue: a.queue, Err: err}
	if r != nil {
		v.MessageID = r.messageID
	}
	a.reqLog.LogViolation(a.queue, v.MessageID, err)
	a.recorder.Violation(a.queue, v.Kind())
	panic(v)
}
