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
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fortytw2/leaktest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rqhttp/internal/protocol"
	"rqhttp/pkg/queue"
	"rqhttp/pkg/queue/memq"
	"rqhttp/pkg/rqhttp"
)

type counter struct {
	mu     sync.Mutex
	opened int
	closed int
}

func (c *counter) ConnectionOpened() { c.mu.Lock(); c.opened++; c.mu.Unlock() }
func (c *counter) ConnectionClosed() { c.mu.Lock(); c.closed++; c.mu.Unlock() }

func (c *counter) counts() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opened, c.closed
}

type harness struct {
	broker *memq.Broker
	server *Server
	http   *httptest.Server
	url    string
	once   sync.Once
}

// close shuts the harness down. Tests using leaktest defer it explicitly
// so it runs before the leak check.
func (h *harness) close() {
	h.once.Do(func() {
		h.server.Close()
		h.http.Close()
		h.broker.Close()
	})
}

func newHarness(t *testing.T, opts ...ServerOption) *harness {
	t.Helper()
	h := &harness{broker: memq.NewBroker()}
	h.server = NewServer(h.broker, opts...)
	h.http = httptest.NewServer(h.server)
	h.url = "ws" + strings.TrimPrefix(h.http.URL, "http")
	t.Cleanup(h.close)
	return h
}

func (h *harness) dial(t *testing.T) *Transport {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	tr, err := Dial(ctx, h.url)
	require.NoError(t, err)
	return tr
}

func TestFrameEncoding(t *testing.T) {
	in := &Frame{
		Kind:     FrameDeliver,
		ID:       "m-1",
		Queue:    "www",
		Prefetch: 200,
		Priority: int(queue.PriorityHigh),
		Data:     []byte{0x00, 0x01, 0xff},
		Headers:  map[string]string{"reply-to": "out"},
	}
	data, err := EncodeFrame(in)
	require.NoError(t, err)

	out, err := DecodeFrame(data)
	require.NoError(t, err)
	assert.Equal(t, in, out)
	assert.Equal(t, "deliver", out.Kind.String())
}

func TestDecodeFrameRejectsGarbage(t *testing.T) {
	_, err := DecodeFrame([]byte{0xff})
	assert.ErrorIs(t, err, ErrBadFrame)

	data, err := EncodeFrame(&Frame{Kind: FrameKind(42)})
	require.NoError(t, err)
	_, err = DecodeFrame(data)
	assert.ErrorIs(t, err, ErrBadFrame)
}

func TestRemoteConsumerRepliesThroughAdapter(t *testing.T) {
	defer leaktest.CheckTimeout(t, 10*time.Second)()

	h := newHarness(t)
	defer h.close()
	tr := h.dial(t)
	defer tr.Close()

	a, err := rqhttp.New(tr, "www", func(r *rqhttp.Request) {
		name, _ := r.Param("name")
		assert.NoError(t, r.Reply(200, "text/plain", []byte("hello "+name)))
	})
	require.NoError(t, err)

	data, err := (&protocol.HTTPRequest{Method: "GET", Path: "/greet", Params: "name=ws%20queue"}).Encode()
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	reply, err := h.broker.Request(ctx, "www", data)
	require.NoError(t, err)

	resp, err := protocol.DecodeHTTPResponse(reply)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.Code)
	assert.Equal(t, "hello ws queue", string(resp.Body))

	require.NoError(t, a.Close())
}

func TestDeferredRepliesAcrossConnection(t *testing.T) {
	h := newHarness(t)
	tr := h.dial(t)
	defer tr.Close()

	held := make(chan *queue.Message, 4)
	_, err := tr.Consume("jobs", 4, queue.PriorityNormal, func(msg *queue.Message) { held <- msg })
	require.NoError(t, err)

	replies := make([]<-chan []byte, 4)
	for i := range replies {
		replies[i], err = h.broker.PublishWithHeaders("jobs", []byte{byte(i)}, map[string]string{"n": "x"})
		require.NoError(t, err)
	}

	msgs := make([]*queue.Message, 0, 4)
	for range replies {
		select {
		case msg := <-held:
			assert.Equal(t, "x", msg.Headers["n"])
			msgs = append(msgs, msg)
		case <-time.After(5 * time.Second):
			t.Fatal("delivery not received")
		}
	}
	// Prefetch is exhausted until something is answered.
	assert.Equal(t, 4, h.broker.InFlight())

	for i := len(msgs) - 1; i >= 0; i-- {
		require.NoError(t, tr.Reply(msgs[i], append([]byte("r"), msgs[i].Data...)))
	}
	for i, ch := range replies {
		select {
		case data := <-ch:
			assert.Equal(t, []byte{'r', byte(i)}, data)
		case <-time.After(5 * time.Second):
			t.Fatal("reply not received")
		}
	}
}

func TestDisconnectRequeues(t *testing.T) {
	defer leaktest.CheckTimeout(t, 10*time.Second)()

	h := newHarness(t)
	defer h.close()
	tr := h.dial(t)

	got := make(chan *queue.Message, 1)
	_, err := tr.Consume("www", 1, queue.PriorityNormal, func(msg *queue.Message) { got <- msg })
	require.NoError(t, err)

	reply, err := h.broker.Publish("www", []byte("payload"))
	require.NoError(t, err)
	<-got
	require.NoError(t, tr.Close())

	require.Eventually(t, func() bool {
		return h.broker.InFlight() == 0 && h.broker.Depth("www") == 1
	}, 5*time.Second, 5*time.Millisecond)

	// A second consumer picks the message up.
	tr2 := h.dial(t)
	defer tr2.Close()
	_, err = tr2.Consume("www", 1, queue.PriorityNormal, func(msg *queue.Message) {
		assert.Equal(t, "payload", string(msg.Data))
		assert.NoError(t, tr2.Reply(msg, []byte("done")))
	})
	require.NoError(t, err)

	select {
	case data := <-reply:
		assert.Equal(t, "done", string(data))
	case <-time.After(5 * time.Second):
		t.Fatal("requeued message not answered")
	}
}

func TestCancelStopsDeliveries(t *testing.T) {
	h := newHarness(t)
	tr := h.dial(t)
	defer tr.Close()

	sub, err := tr.Consume("www", 1, queue.PriorityNormal, func(*queue.Message) {})
	require.NoError(t, err)
	sub.Cancel()

	_, err = h.broker.Publish("www", nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return h.broker.Depth("www") == 1 && h.broker.InFlight() == 0
	}, 5*time.Second, 5*time.Millisecond)

	// The queue can be consumed again after a cancel.
	sub, err = tr.Consume("www", 1, queue.PriorityNormal, func(*queue.Message) {})
	require.NoError(t, err)
	sub.Cancel()
}

func TestConsumeErrors(t *testing.T) {
	h := newHarness(t)
	tr := h.dial(t)
	defer tr.Close()

	_, err := tr.Consume("www", 0, queue.PriorityNormal, func(*queue.Message) {})
	assert.ErrorIs(t, err, queue.ErrInvalidPrefetch)

	_, err = tr.Consume("www", 1, queue.PriorityNormal, func(*queue.Message) {})
	require.NoError(t, err)
	_, err = tr.Consume("www", 1, queue.PriorityNormal, func(*queue.Message) {})
	assert.ErrorIs(t, err, queue.ErrAlreadyConsuming)

	err = tr.Reply(&queue.Message{ID: "foreign"}, nil)
	assert.ErrorIs(t, err, queue.ErrUnknownMessage)
}

func TestClosedTransport(t *testing.T) {
	h := newHarness(t)
	tr := h.dial(t)
	require.NoError(t, tr.Close())
	require.NoError(t, tr.Close())

	_, err := tr.Consume("www", 1, queue.PriorityNormal, func(*queue.Message) {})
	assert.ErrorIs(t, err, queue.ErrClosed)
	assert.ErrorIs(t, tr.Reply(&queue.Message{Handle: tr}, nil), queue.ErrClosed)

	select {
	case <-tr.Done():
	default:
		t.Fatal("Done not closed")
	}
}

func TestServerCloseDisconnectsConsumers(t *testing.T) {
	obs := &counter{}
	h := newHarness(t, WithObserver(obs))
	tr := h.dial(t)
	defer tr.Close()

	require.Eventually(t, func() bool { return h.server.Connections() == 1 }, 5*time.Second, 5*time.Millisecond)
	require.NoError(t, h.server.Close())

	select {
	case <-tr.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("transport not disconnected")
	}
	opened, closed := obs.counts()
	assert.Equal(t, 1, opened)
	assert.Equal(t, 1, closed)
	assert.Equal(t, 0, h.server.Connections())
}

func TestAllowedOrigins(t *testing.T) {
	u := createUpgrader([]string{"example.org"})
	req := httptest.NewRequest("GET", "/", nil)
	assert.True(t, u.CheckOrigin(req))

	req.Header.Set("Origin", "https://app.example.org")
	assert.True(t, u.CheckOrigin(req))

	req.Header.Set("Origin", "https://evil.test")
	assert.False(t, u.CheckOrigin(req))
}
