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


package wsq

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"rqhttp/internal/logging"
	"rqhttp/pkg/queue"
)

// DefaultConsumeTimeout bounds the wait for a consume acknowledgement.
const DefaultConsumeTimeout = 10 * time.Second

// Transport is a remote consumer connected to a Server. It implements
// queue.Transport.
type Transport struct {
	conn   *conn
	url    string
	logger *logging.Logger

	mu     sync.Mutex
	subs   map[string]*subscription
	acks   map[string]chan error
	closed bool
	err    error

	readDone chan struct{}
}

var _ queue.Transport = (*Transport)(nil)

// Dial connects to the queue server at url (ws:// or wss://).
func Dial(ctx context.Context, url string) (*Transport, error) {
	dialer := websocket.Dialer{
		ReadBufferSize:   DefaultReadBufferSize,
		WriteBufferSize:  DefaultWriteBufferSize,
		HandshakeTimeout: DefaultWriteTimeout,
	}
	ws, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}

	t := &Transport{
		// The server pings; gorilla answers pings by default.
		conn:     newConn(ws, 0),
		url:      url,
		logger:   logging.NewLogger("wsq").With("server", url),
		subs:     make(map[string]*subscription),
		acks:     make(map[string]chan error),
		readDone: make(chan struct{}),
	}
	go t.readLoop()
	t.logger.Info("Connected to queue server")
	return t, nil
}

type subscription struct {
	transport *Transport
	queue     string
	handler   queue.Handler
	ch        chan *queue.Message
	done      chan struct{}
	closeOnce sync.Once
	cancel    sync.Once
}

func (s *subscription) run() {
	defer close(s.done)
	for msg := range s.ch {
		s.handler(msg)
	}
}

// stop closes the delivery channel. The caller must have removed s from
// the transport's map under t.mu.
func (s *subscription) stop() {
	s.closeOnce.Do(func() { close(s.ch) })
}

// Cancel implements queue.Subscription.
func (s *subscription) Cancel() {
	s.cancel.Do(func() {
		t := s.transport
		t.mu.Lock()
		if t.subs[s.queue] == s {
			delete(t.subs, s.queue)
		}
		closed := t.closed
		s.stop()
		t.mu.Unlock()

		if !closed {
			if err := t.conn.writeFrame(&Frame{Kind: FrameCancel, Queue: s.queue}); err != nil {
				t.logger.Debug("Failed to send cancel", "queue", s.queue, "error", err)
			}
		}
		<-s.done
	})
}

// Consume implements queue.Transport. It waits for the server to accept
// the subscription.
func (t *Transport) Consume(name string, prefetch int, priority queue.Priority, handler queue.Handler) (queue.Subscription, error) {
	if prefetch < 1 {
		return nil, queue.ErrInvalidPrefetch
	}

	sub := &subscription{
		transport: t,
		queue:     name,
		handler:   handler,
		// The server never has more than prefetch messages outstanding.
		ch:   make(chan *queue.Message, prefetch),
		done: make(chan struct{}),
	}
	ack := make(chan error, 1)

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, queue.ErrClosed
	}
	if _, ok := t.subs[name]; ok {
		t.mu.Unlock()
		return nil, queue.ErrAlreadyConsuming
	}
	t.subs[name] = sub
	t.acks[name] = ack
	t.mu.Unlock()
	go sub.run()

	err := t.conn.writeFrame(&Frame{
		Kind:     FrameConsume,
		Queue:    name,
		Prefetch: prefetch,
		Priority: int(priority),
	})
	if err == nil {
		select {
		case err = <-ack:
		case <-t.readDone:
			err = t.closeErr()
		case <-time.After(DefaultConsumeTimeout):
			err = fmt.Errorf("consume %s: no acknowledgement", name)
		}
	}
	if err != nil {
		t.mu.Lock()
		delete(t.acks, name)
		if t.subs[name] == sub {
			delete(t.subs, name)
		}
		sub.stop()
		t.mu.Unlock()
		<-sub.done
		return nil, err
	}

	t.logger.Debug("Consuming queue", "queue", name, "prefetch", prefetch, "priority", priority.String())
	return sub, nil
}

// Reply implements queue.Transport. A reply the server cannot apply is
// reported asynchronously in the log.
func (t *Transport) Reply(msg *queue.Message, payload []byte) error {
	if msg.Handle != t {
		return queue.ErrUnknownMessage
	}
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return queue.ErrClosed
	}
	return t.conn.writeFrame(&Frame{Kind: FrameReply, ID: msg.ID, Queue: msg.Queue, Data: payload})
}

func (t *Transport) readLoop() {
	defer close(t.readDone)
	for {
		f, err := t.conn.readFrame()
		if errors.Is(err, ErrBadFrame) {
			t.logger.Warn("Dropping malformed frame", "error", err)
			continue
		}
		if err != nil {
			t.shutdown(err)
			return
		}

		switch f.Kind {
		case FrameDeliver:
			t.dispatch(&queue.Message{
				ID:          f.ID,
				Queue:       f.Queue,
				Data:        f.Data,
				Headers:     f.Headers,
				DeliveredAt: time.Now(),
				Handle:      t,
			})
		case FrameConsumed:
			t.mu.Lock()
			ack, ok := t.acks[f.Queue]
			delete(t.acks, f.Queue)
			t.mu.Unlock()
			if ok {
				if f.Error != "" {
					ack <- fmt.Errorf("consume %s: %s", f.Queue, f.Error)
				} else {
					ack <- nil
				}
			}
		case FrameError:
			t.logger.Warn("Server rejected reply", "queue", f.Queue, "message_id", f.ID, "error", f.Error)
		default:
			t.logger.Warn("Unexpected frame from server", "kind", f.Kind.String())
		}
	}
}

// dispatch hands msg to its subscription. Deliveries for a cancelled
// subscription are dropped; the server requeues them.
func (t *Transport) dispatch(msg *queue.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	sub, ok := t.subs[msg.Queue]
	if !ok {
		t.logger.Debug("Dropping delivery for inactive queue", "queue", msg.Queue, "message_id", msg.ID)
		return
	}
	sub.ch <- msg
}

// shutdown marks the transport closed and stops every subscription.
func (t *Transport) shutdown(cause error) {
	t.mu.Lock()
	wasClosed := t.closed
	if !wasClosed {
		t.closed = true
		t.err = cause
	}
	subs := t.subs
	t.subs = make(map[string]*subscription)
	for _, sub := range subs {
		sub.stop()
	}
	t.mu.Unlock()

	if !wasClosed && !websocket.IsCloseError(cause, websocket.CloseNormalClosure) {
		t.logger.Warn("Disconnected from queue server", "error", cause)
	}
}

func (t *Transport) closeErr() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.err != nil && !errors.Is(t.err, queue.ErrClosed) {
		return fmt.Errorf("%w: %v", queue.ErrClosed, t.err)
	}
	return queue.ErrClosed
}

// Done is closed when the connection to the server is lost or closed.
func (t *Transport) Done() <-chan struct{} {
	return t.readDone
}

// Close implements queue.Transport. Subscriptions stop; the server
// requeues anything left unanswered.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		t.conn.close()
		<-t.readDone
		return nil
	}
	t.closed = true
	t.err = queue.ErrClosed
	subs := make([]*subscription, 0, len(t.subs))
	for _, sub := range t.subs {
		subs = append(subs, sub)
	}
	t.mu.Unlock()

	err := t.conn.close()
	<-t.readDone
	for _, sub := range subs {
		<-sub.done
	}
	t.logger.Info("Queue server connection closed")
	return err
}
