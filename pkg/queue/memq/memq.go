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
Package memq is an in-process request/reply queue.

BROKER MODEL:
=============
A Broker holds any number of named queues. Producers Publish a payload and
receive a channel on which the single reply will arrive. Consumers subscribe
with a prefetch limit and a priority.

DISPATCH:
=========
A waiting message goes to the consumer with the highest priority that still
has prefetch room. Consumers of equal priority take turns. Each consumer has
one delivery goroutine, so its handler never runs concurrently with itself.

When a subscription is cancelled, messages it held unanswered go back to the
front of the queue for the remaining consumers.
*/
package memq

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"rqhttp/internal/logging"
	"rqhttp/pkg/queue"
)

// pending is a published message waiting for its reply.
type pending struct {
	msg   *queue.Message
	reply chan []byte
}

// delivery tracks a message handed to a consumer but not yet answered.
type delivery struct {
	*pending
	consumer *consumer
}

type consumer struct {
	queue    *queueState
	prefetch int
	priority queue.Priority
	handler  queue.Handler
	inflight int

	ch        chan *queue.Message
	cancelled atomic.Bool
	done      chan struct{}
}

func (c *consumer) run() {
	defer close(c.done)
	for msg := range c.ch {
		if c.cancelled.Load() {
			continue
		}
		c.handler(msg)
	}
}

type queueState struct {
	name      string
	backlog   []*pending
	consumers []*consumer
	next      int // round-robin cursor
}

// pick returns the consumer that should receive the next message, or nil
// if every consumer is at its prefetch limit.
func (q *queueState) pick() *consumer {
	n := len(q.consumers)
	best := -1
	for i := 0; i < n; i++ {
		idx := (q.next + i) % n
		c := q.consumers[idx]
		if c.inflight >= c.prefetch {
			continue
		}
		if best < 0 || c.priority > q.consumers[best].priority {
			best = idx
		}
	}
	if best < 0 {
		return nil
	}
	q.next = (best + 1) % n
	return q.consumers[best]
}

// Broker is an in-memory queue broker. It implements queue.Transport for
// consumers and Publish/Request for producers.
type Broker struct {
	mu       sync.Mutex
	queues   map[string]*queueState
	inflight map[string]*delivery
	closed   bool
	wg       sync.WaitGroup
	logger   *logging.Logger
}

var _ queue.Transport = (*Broker)(nil)

// NewBroker creates an empty broker.
func NewBroker() *Broker {
	return &Broker{
		queues:   make(map[string]*queueState),
		inflight: make(map[string]*delivery),
		logger:   logging.NewLogger("memq"),
	}
}

func (b *Broker) queueLocked(name string) *queueState {
	q, ok := b.queues[name]
	if !ok {
		q = &queueState{name: name}
		b.queues[name] = q
	}
	return q
}

// Subscription is a registered consumer.
type Subscription struct {
	broker   *Broker
	consumer *consumer
	once     sync.Once
}

// Subscribe registers handler on name and starts its delivery goroutine.
func (b *Broker) Subscribe(name string, prefetch int, priority queue.Priority, handler queue.Handler) (*Subscription, error) {
	if prefetch < 1 {
		return nil, queue.ErrInvalidPrefetch
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, queue.ErrClosed
	}

	q := b.queueLocked(name)
	c := &consumer{
		queue:    q,
		prefetch: prefetch,
		priority: priority,
		handler:  handler,
		// A consumer never holds more than prefetch undelivered or
		// unanswered messages, so sends to ch never block.
		ch:   make(chan *queue.Message, prefetch),
		done: make(chan struct{}),
	}
	q.consumers = append(q.consumers, c)

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		c.run()
	}()

	b.logger.Debug("Consumer subscribed", "queue", name, "prefetch", prefetch, "priority", priority.String())
	b.dispatchLocked(q)
	return &Subscription{broker: b, consumer: c}, nil
}

// Cancel removes the consumer. Messages it had not answered are requeued.
// Cancel waits for the delivery goroutine, so it must not be called from
// the subscription's own handler.
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		s.broker.cancel(s.consumer)
		<-s.consumer.done
	})
}

func (b *Broker) cancel(c *consumer) {
	b.mu.Lock()
	defer b.mu.Unlock()

	q := c.queue
	q.consumers = slices.DeleteFunc(q.consumers, func(o *consumer) bool { return o == c })
	if len(q.consumers) > 0 {
		q.next %= len(q.consumers)
	} else {
		q.next = 0
	}

	var requeue []*pending
	for id, d := range b.inflight {
		if d.consumer == c {
			delete(b.inflight, id)
			requeue = append(requeue, d.pending)
		}
	}
	slices.SortFunc(requeue, func(a, b *pending) int {
		return a.msg.DeliveredAt.Compare(b.msg.DeliveredAt)
	})
	q.backlog = append(requeue, q.backlog...)

	c.cancelled.Store(true)
	if !b.closed {
		close(c.ch)
	}
	if len(requeue) > 0 {
		b.logger.Info("Requeued unanswered messages", "queue", q.name, "count", len(requeue))
	}
	b.dispatchLocked(q)
}

// Consume implements queue.Transport.
func (b *Broker) Consume(name string, prefetch int, priority queue.Priority, handler queue.Handler) (queue.Subscription, error) {
	s, err := b.Subscribe(name, prefetch, priority, handler)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Publish enqueues data on name. The returned channel receives exactly one
// reply, or is closed without a value if the broker shuts down first.
func (b *Broker) Publish(name string, data []byte) (<-chan []byte, error) {
	return b.PublishWithHeaders(name, data, nil)
}

// PublishWithHeaders is Publish with message headers.
func (b *Broker) PublishWithHeaders(name string, data []byte, headers map[string]string) (<-chan []byte, error) {
	p := &pending{
		msg: &queue.Message{
			ID:      uuid.New().String(),
			Queue:   name,
			Data:    data,
			Headers: headers,
		},
		reply: make(chan []byte, 1),
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, queue.ErrClosed
	}
	q := b.queueLocked(name)
	q.backlog = append(q.backlog, p)
	b.dispatchLocked(q)
	return p.reply, nil
}

// Request publishes data and waits for the reply.
func (b *Broker) Request(ctx context.Context, name string, data []byte) ([]byte, error) {
	ch, err := b.Publish(name, data)
	if err != nil {
		return nil, err
	}
	select {
	case reply, ok := <-ch:
		if !ok {
			return nil, queue.ErrClosed
		}
		return reply, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Reply implements queue.Transport.
func (b *Broker) Reply(msg *queue.Message, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	d, ok := b.inflight[msg.ID]
	if !ok {
		if b.closed {
			return queue.ErrClosed
		}
		return queue.ErrUnknownMessage
	}
	delete(b.inflight, msg.ID)
	d.consumer.inflight--
	d.reply <- append([]byte(nil), payload...)

	b.dispatchLocked(d.consumer.queue)
	return nil
}

func (b *Broker) dispatchLocked(q *queueState) {
	if b.closed {
		return
	}
	for len(q.backlog) > 0 {
		c := q.pick()
		if c == nil {
			return
		}
		p := q.backlog[0]
		q.backlog[0] = nil
		q.backlog = q.backlog[1:]

		c.inflight++
		p.msg.DeliveredAt = time.Now()
		b.inflight[p.msg.ID] = &delivery{pending: p, consumer: c}
		c.ch <- p.msg
	}
}

// Depth returns the number of messages waiting for a consumer on name.
func (b *Broker) Depth(name string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if q, ok := b.queues[name]; ok {
		return len(q.backlog)
	}
	return 0
}

// InFlight returns the number of delivered, unanswered messages.
func (b *Broker) InFlight() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.inflight)
}

// Close stops all consumers and closes every outstanding reply channel.
func (b *Broker) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true

	for _, q := range b.queues {
		for _, c := range q.consumers {
			c.cancelled.Store(true)
			close(c.ch)
		}
		for _, p := range q.backlog {
			close(p.reply)
		}
		q.consumers = nil
		q.backlog = nil
	}
	for id, d := range b.inflight {
		close(d.reply)
		delete(b.inflight, id)
	}
	b.mu.Unlock()

	b.wg.Wait()
	b.logger.Info("Broker closed")
	return nil
}
