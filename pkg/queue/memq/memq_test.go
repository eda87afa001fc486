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

package memq

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/fortytw2/leaktest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rqhttp/pkg/queue"
)

func consume(b *Broker, name string, prefetch int, priority queue.Priority, h queue.Handler) error {
	_, err := b.Consume(name, prefetch, priority, h)
	return err
}

func TestRequestReply(t *testing.T) {
	defer leaktest.Check(t)()

	b := NewBroker()
	defer b.Close()

	_, err := b.Consume("echo", 10, queue.PriorityNormal, func(msg *queue.Message) {
		assert.Equal(t, "echo", msg.Queue)
		assert.NotEmpty(t, msg.ID)
		assert.NoError(t, b.Reply(msg, append([]byte("re:"), msg.Data...)))
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	reply, err := b.Request(ctx, "echo", []byte("ping"))
	require.NoError(t, err)
	assert.Equal(t, "re:ping", string(reply))
	assert.Equal(t, 0, b.InFlight())
}

func TestReplyPayloadIsCopied(t *testing.T) {
	defer leaktest.Check(t)()

	b := NewBroker()
	defer b.Close()

	buf := []byte("original")
	require.NoError(t, consume(b, "q", 1, queue.PriorityNormal, func(msg *queue.Message) {
		assert.NoError(t, b.Reply(msg, buf))
		copy(buf, "clobbered")
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	reply, err := b.Request(ctx, "q", nil)
	require.NoError(t, err)
	assert.Equal(t, "original", string(reply))
}

func TestDoubleReplyIsUnknown(t *testing.T) {
	defer leaktest.Check(t)()

	b := NewBroker()
	defer b.Close()

	got := make(chan *queue.Message, 1)
	require.NoError(t, consume(b, "q", 1, queue.PriorityNormal, func(msg *queue.Message) { got <- msg }))

	_, err := b.Publish("q", []byte("x"))
	require.NoError(t, err)
	msg := <-got

	require.NoError(t, b.Reply(msg, nil))
	assert.ErrorIs(t, b.Reply(msg, nil), queue.ErrUnknownMessage)
}

func TestPrefetchLimitsInFlight(t *testing.T) {
	defer leaktest.Check(t)()

	b := NewBroker()
	defer b.Close()

	var mu sync.Mutex
	var held []*queue.Message
	delivered := make(chan struct{}, 10)
	require.NoError(t, consume(b, "q", 2, queue.PriorityNormal, func(msg *queue.Message) {
		mu.Lock()
		held = append(held, msg)
		mu.Unlock()
		delivered <- struct{}{}
	}))

	for i := 0; i < 5; i++ {
		_, err := b.Publish("q", []byte{byte(i)})
		require.NoError(t, err)
	}

	<-delivered
	<-delivered
	assert.Equal(t, 2, b.InFlight())
	assert.Equal(t, 3, b.Depth("q"))

	mu.Lock()
	first := held[0]
	mu.Unlock()
	require.NoError(t, b.Reply(first, nil))

	<-delivered
	assert.Equal(t, 2, b.InFlight())
	assert.Equal(t, 2, b.Depth("q"))
}

func TestHigherPriorityConsumerServedFirst(t *testing.T) {
	defer leaktest.Check(t)()

	b := NewBroker()
	defer b.Close()

	lowCh := make(chan *queue.Message, 4)
	highCh := make(chan *queue.Message, 4)
	require.NoError(t, consume(b, "q", 1, queue.PriorityLow, func(m *queue.Message) { lowCh <- m }))
	require.NoError(t, consume(b, "q", 1, queue.PriorityHigh, func(m *queue.Message) { highCh <- m }))

	_, err := b.Publish("q", []byte("1"))
	require.NoError(t, err)
	select {
	case m := <-highCh:
		assert.Equal(t, "1", string(m.Data))
	case <-time.After(5 * time.Second):
		t.Fatal("high priority consumer did not receive the message")
	}

	// The high priority consumer is full, so the next goes to the low one.
	_, err = b.Publish("q", []byte("2"))
	require.NoError(t, err)
	select {
	case m := <-lowCh:
		assert.Equal(t, "2", string(m.Data))
	case <-time.After(5 * time.Second):
		t.Fatal("low priority consumer did not receive the message")
	}
}

func TestCancelRequeuesUnanswered(t *testing.T) {
	defer leaktest.Check(t)()

	b := NewBroker()
	defer b.Close()

	first := make(chan *queue.Message, 1)
	sub, err := b.Subscribe("q", 1, queue.PriorityNormal, func(m *queue.Message) { first <- m })
	require.NoError(t, err)

	replyCh, err := b.Publish("q", []byte("job"))
	require.NoError(t, err)
	<-first
	sub.Cancel()
	assert.Equal(t, 1, b.Depth("q"))

	require.NoError(t, consume(b, "q", 1, queue.PriorityNormal, func(m *queue.Message) {
		assert.NoError(t, b.Reply(m, []byte("done")))
	}))

	select {
	case reply := <-replyCh:
		assert.Equal(t, "done", string(reply))
	case <-time.After(5 * time.Second):
		t.Fatal("requeued message was not redelivered")
	}
}

func TestCloseReleasesWaiters(t *testing.T) {
	defer leaktest.Check(t)()

	b := NewBroker()
	replyCh, err := b.Publish("nobody", []byte("x"))
	require.NoError(t, err)

	require.NoError(t, b.Close())
	_, ok := <-replyCh
	assert.False(t, ok)

	_, err = b.Publish("nobody", nil)
	assert.ErrorIs(t, err, queue.ErrClosed)
	assert.ErrorIs(t, consume(b, "nobody", 1, queue.PriorityNormal, func(*queue.Message) {}), queue.ErrClosed)
}

func TestInvalidPrefetch(t *testing.T) {
	b := NewBroker()
	defer b.Close()
	assert.ErrorIs(t, consume(b, "q", 0, queue.PriorityNormal, func(*queue.Message) {}), queue.ErrInvalidPrefetch)
}

func TestRequestHonoursContext(t *testing.T) {
	defer leaktest.Check(t)()

	b := NewBroker()
	defer b.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := b.Request(ctx, "unserved", []byte("x"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
