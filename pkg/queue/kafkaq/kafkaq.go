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
Package kafkaq consumes rqhttp queues from Kafka topics.

A queue named "www" is read from topic "www" by consumer group
"rqhttp.www". Each record is one request stream. The reply is produced to
the topic named by the record's reply-to header, keyed by its
correlation-id header, or by the record id when no correlation id is set.

OFFSETS:
========
Replies may be sent out of order, so offsets are committed per partition
only up to the highest record whose predecessors have all been answered.
A consumer that crashes redelivers everything after that point.

Priority is accepted and ignored.
*/
package kafkaq

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"rqhttp/internal/logging"
	"rqhttp/pkg/queue"
)

// Record headers understood by the transport.
const (
	HeaderReplyTo       = "reply-to"
	HeaderCorrelationID = "correlation-id"
)

// DefaultGroupPrefix prefixes the queue name to form the consumer group.
const DefaultGroupPrefix = "rqhttp."

// DefaultWriteTimeout bounds producing one reply.
const DefaultWriteTimeout = 10 * time.Second

// ErrNoReplyTo indicates a record without a reply-to header. The record is
// committed and the reply dropped.
var ErrNoReplyTo = errors.New("record has no reply-to header")

// Config configures a Transport.
type Config struct {
	Brokers      []string
	GroupPrefix  string
	WriteTimeout time.Duration
}

// Transport consumes queues from Kafka. It implements queue.Transport.
type Transport struct {
	cfg    Config
	writer *kafka.Writer
	logger *logging.Logger

	mu     sync.Mutex
	subs   map[string]*subscription
	closed bool
}

var _ queue.Transport = (*Transport)(nil)

// New creates a transport for the given brokers. No connection is made
// until Consume.
func New(cfg Config) (*Transport, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafkaq: at least one broker is required")
	}
	if cfg.GroupPrefix == "" {
		cfg.GroupPrefix = DefaultGroupPrefix
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}
	return &Transport{
		cfg: cfg,
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Balancer:     &kafka.Hash{},
			BatchSize:    1,
			BatchTimeout: time.Millisecond,
			RequiredAcks: kafka.RequireOne,
		},
		logger: logging.NewLogger("kafkaq"),
		subs:   make(map[string]*subscription),
	}, nil
}

// GroupID returns the consumer group for a queue.
func (t *Transport) GroupID(name string) string {
	return t.cfg.GroupPrefix + name
}

// handle is the transport-private state of a delivered record.
type handle struct {
	sub       *subscription
	partition int
	offset    int64
	replied   atomic.Bool
}

type subscription struct {
	transport *Transport
	queue     string
	reader    *kafka.Reader
	handler   queue.Handler
	slots     chan struct{}
	offsets   *offsetTracker

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Consume implements queue.Transport.
func (t *Transport) Consume(name string, prefetch int, priority queue.Priority, handler queue.Handler) (queue.Subscription, error) {
	if prefetch < 1 {
		return nil, queue.ErrInvalidPrefetch
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, queue.ErrClosed
	}
	if _, ok := t.subs[name]; ok {
		return nil, queue.ErrAlreadyConsuming
	}

	ctx, cancel := context.WithCancel(context.Background())
	sub := &subscription{
		transport: t,
		queue:     name,
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:       t.cfg.Brokers,
			GroupID:       t.GroupID(name),
			Topic:         name,
			QueueCapacity: prefetch,
			MinBytes:      1,
			MaxBytes:      33 << 20,
			MaxWait:       500 * time.Millisecond,
		}),
		handler: handler,
		slots:   make(chan struct{}, prefetch),
		offsets: newOffsetTracker(),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	t.subs[name] = sub
	go sub.run()

	t.logger.Info("Consuming topic", "topic", name, "group", t.GroupID(name), "prefetch", prefetch, "priority", priority.String())
	return sub, nil
}

func (s *subscription) run() {
	defer close(s.done)
	log := s.transport.logger
	for {
		// Hold a prefetch slot before fetching; Reply releases it.
		select {
		case s.slots <- struct{}{}:
		case <-s.ctx.Done():
			return
		}

		rec, err := s.reader.FetchMessage(s.ctx)
		if err != nil {
			<-s.slots
			if s.ctx.Err() != nil || errors.Is(err, io.EOF) {
				return
			}
			log.Warn("Fetch failed", "topic", s.queue, "error", err)
			select {
			case <-time.After(time.Second):
			case <-s.ctx.Done():
				return
			}
			continue
		}

		s.offsets.track(rec.Partition, rec.Offset)
		s.handler(toMessage(s, rec))
	}
}

// Cancel implements queue.Subscription.
func (s *subscription) Cancel() {
	s.once.Do(func() {
		s.cancel()
		<-s.done
		if err := s.reader.Close(); err != nil {
			s.transport.logger.Warn("Failed to close reader", "topic", s.queue, "error", err)
		}
		if n := s.offsets.outstanding(); n > 0 {
			s.transport.logger.Info("Unanswered records will be redelivered", "topic", s.queue, "count", n)
		}

		t := s.transport
		t.mu.Lock()
		if t.subs[s.queue] == s {
			delete(t.subs, s.queue)
		}
		t.mu.Unlock()
	})
}

// Reply implements queue.Transport.
func (t *Transport) Reply(msg *queue.Message, payload []byte) error {
	h, ok := msg.Handle.(*handle)
	if !ok || h.sub.transport != t || !h.replied.CompareAndSwap(false, true) {
		return queue.ErrUnknownMessage
	}
	sub := h.sub
	defer func() { <-sub.slots }()

	rec, err := replyRecord(msg, payload)
	if err == nil {
		ctx, cancel := context.WithTimeout(context.Background(), t.cfg.WriteTimeout)
		err = t.writer.WriteMessages(ctx, rec)
		cancel()
		if err != nil {
			err = fmt.Errorf("produce reply to %s: %w", rec.Topic, err)
		}
	}

	// A record whose reply cannot be routed is still consumed.
	if err != nil && !errors.Is(err, ErrNoReplyTo) {
		return err
	}
	if commitErr := sub.commit(h.partition, h.offset); commitErr != nil {
		t.logger.Warn("Offset commit failed", "topic", sub.queue, "partition", h.partition, "error", commitErr)
	}
	return err
}

func (s *subscription) commit(partition int, offset int64) error {
	upTo, ok := s.offsets.done(partition, offset)
	if !ok {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.transport.cfg.WriteTimeout)
	defer cancel()
	return s.reader.CommitMessages(ctx, kafka.Message{Topic: s.queue, Partition: partition, Offset: upTo})
}

// Close implements queue.Transport.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	subs := make([]*subscription, 0, len(t.subs))
	for _, s := range t.subs {
		subs = append(subs, s)
	}
	t.mu.Unlock()

	for _, s := range subs {
		s.Cancel()
	}
	return t.writer.Close()
}

// RecordID identifies a record as topic/partition/offset.
func RecordID(topic string, partition int, offset int64) string {
	return topic + "/" + strconv.Itoa(partition) + "/" + strconv.FormatInt(offset, 10)
}

// ParseRecordID reverses RecordID.
func ParseRecordID(id string) (topic string, partition int, offset int64, err error) {
	i := strings.LastIndexByte(id, '/')
	if i < 0 {
		return "", 0, 0, fmt.Errorf("invalid record id %q", id)
	}
	j := strings.LastIndexByte(id[:i], '/')
	if j < 0 {
		return "", 0, 0, fmt.Errorf("invalid record id %q", id)
	}
	if partition, err = strconv.Atoi(id[j+1 : i]); err != nil {
		return "", 0, 0, fmt.Errorf("invalid record id %q: %w", id, err)
	}
	if offset, err = strconv.ParseInt(id[i+1:], 10, 64); err != nil {
		return "", 0, 0, fmt.Errorf("invalid record id %q: %w", id, err)
	}
	return id[:j], partition, offset, nil
}

func toMessage(s *subscription, rec kafka.Message) *queue.Message {
	headers := make(map[string]string, len(rec.Headers))
	for _, h := range rec.Headers {
		headers[h.Key] = string(h.Value)
	}
	return &queue.Message{
		ID:          RecordID(rec.Topic, rec.Partition, rec.Offset),
		Queue:       s.queue,
		Data:        rec.Value,
		Headers:     headers,
		DeliveredAt: time.Now(),
		Handle:      &handle{sub: s, partition: rec.Partition, offset: rec.Offset},
	}
}

// replyRecord builds the reply record for msg.
func replyRecord(msg *queue.Message, payload []byte) (kafka.Message, error) {
	topic := msg.Headers[HeaderReplyTo]
	if topic == "" {
		return kafka.Message{}, fmt.Errorf("%w: %s", ErrNoReplyTo, msg.ID)
	}
	key := msg.Headers[HeaderCorrelationID]
	if key == "" {
		key = msg.ID
	}
	return kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: payload,
		Headers: []kafka.Header{
			{Key: HeaderCorrelationID, Value: []byte(key)},
		},
	}, nil
}
