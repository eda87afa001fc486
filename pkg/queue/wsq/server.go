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
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"rqhttp/internal/logging"
	"rqhttp/pkg/queue"
	"rqhttp/pkg/queue/memq"
)

// ConnObserver is told about consumer connections. metrics.Metrics
// satisfies it.
type ConnObserver interface {
	ConnectionOpened()
	ConnectionClosed()
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithObserver reports connections to o.
func WithObserver(o ConnObserver) ServerOption {
	return func(s *Server) { s.observer = o }
}

// WithAllowedOrigins restricts browser origins. Empty or "*" allows all.
func WithAllowedOrigins(origins ...string) ServerOption {
	return func(s *Server) { s.upgrader = createUpgrader(origins) }
}

// WithPingInterval overrides DefaultPingInterval. Zero disables pings.
func WithPingInterval(d time.Duration) ServerOption {
	return func(s *Server) { s.pingInterval = d }
}

// Server exposes a broker's queues to remote consumers.
type Server struct {
	broker       *memq.Broker
	upgrader     websocket.Upgrader
	logger       *logging.Logger
	connLog      *logging.ConnectionLogger
	observer     ConnObserver
	pingInterval time.Duration

	mu     sync.Mutex
	conns  map[*serverConn]struct{}
	closed bool
	wg     sync.WaitGroup
}

// NewServer creates a server for broker.
func NewServer(broker *memq.Broker, opts ...ServerOption) *Server {
	logger := logging.NewLogger("wsq")
	s := &Server{
		broker:       broker,
		upgrader:     createUpgrader(nil),
		logger:       logger,
		connLog:      logging.NewConnectionLogger(logger),
		pingInterval: DefaultPingInterval,
		conns:        make(map[*serverConn]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// createUpgrader creates a WebSocket upgrader accepting allowedOrigins.
func createUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  DefaultReadBufferSize,
		WriteBufferSize: DefaultWriteBufferSize,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			if origin == "" {
				// Not a browser.
				return true
			}
			for _, allowed := range allowedOrigins {
				if allowed == "*" || origin == allowed || strings.HasSuffix(origin, allowed) {
					return true
				}
			}
			return false
		},
	}
}

// ServeHTTP upgrades the request and serves one consumer connection until
// it closes.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("Failed to upgrade to WebSocket", "remote", r.RemoteAddr, "error", err)
		return
	}

	c := &serverConn{
		server:   s,
		conn:     newConn(ws, s.pingInterval),
		subs:     make(map[string]*memq.Subscription),
		inflight: make(map[string]*queue.Message),
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		c.conn.close()
		return
	}
	s.conns[c] = struct{}{}
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	start := time.Now()
	c.id = s.connLog.LogConnected(r.RemoteAddr)
	if s.observer != nil {
		s.observer.ConnectionOpened()
	}

	reason := c.serve()

	c.shutdown()
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
	if s.observer != nil {
		s.observer.ConnectionClosed()
	}
	s.connLog.LogDisconnected(c.id, r.RemoteAddr, reason, time.Since(start))
}

// Connections returns the number of connected consumers.
func (s *Server) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Close disconnects every consumer and waits for their connections to wind
// down. The broker is left open.
func (s *Server) Close() error {
	s.mu.Lock()
	s.closed = true
	conns := make([]*serverConn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		c.conn.close()
	}
	s.wg.Wait()
	return nil
}

// serverConn is one remote consumer.
type serverConn struct {
	server *Server
	conn   *conn
	id     string

	mu       sync.Mutex
	subs     map[string]*memq.Subscription
	inflight map[string]*queue.Message
}

// serve runs the read loop and returns why it stopped.
func (c *serverConn) serve() string {
	for {
		f, err := c.conn.readFrame()
		if errors.Is(err, ErrBadFrame) {
			c.server.logger.Warn("Dropping malformed frame", "conn", c.id, "error", err)
			continue
		}
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return "closed by client"
			}
			return err.Error()
		}

		switch f.Kind {
		case FrameConsume:
			c.consume(f)
		case FrameReply:
			c.reply(f)
		case FrameCancel:
			c.cancel(f.Queue)
		default:
			c.server.logger.Warn("Unexpected frame from consumer", "conn", c.id, "kind", f.Kind.String())
		}
	}
}

func (c *serverConn) consume(f *Frame) {
	result := &Frame{Kind: FrameConsumed, Queue: f.Queue}

	c.mu.Lock()
	_, exists := c.subs[f.Queue]
	c.mu.Unlock()

	if exists {
		result.Error = queue.ErrAlreadyConsuming.Error()
	} else {
		sub, err := c.server.broker.Subscribe(f.Queue, f.Prefetch, queue.Priority(f.Priority), c.deliver)
		if err != nil {
			result.Error = err.Error()
		} else {
			c.mu.Lock()
			c.subs[f.Queue] = sub
			c.mu.Unlock()
			c.server.logger.Debug("Remote consumer subscribed", "conn", c.id, "queue", f.Queue, "prefetch", f.Prefetch)
		}
	}

	if err := c.conn.writeFrame(result); err != nil {
		c.server.logger.Debug("Failed to acknowledge consume", "conn", c.id, "error", err)
	}
}

// deliver runs on the broker's delivery goroutine for the subscription.
func (c *serverConn) deliver(msg *queue.Message) {
	c.mu.Lock()
	c.inflight[msg.ID] = msg
	c.mu.Unlock()

	err := c.conn.writeFrame(&Frame{
		Kind:    FrameDeliver,
		ID:      msg.ID,
		Queue:   msg.Queue,
		Data:    msg.Data,
		Headers: msg.Headers,
	})
	if err != nil {
		// The broker requeues it when the connection's subscriptions are
		// cancelled.
		c.server.logger.Debug("Failed to deliver message", "conn", c.id, "message_id", msg.ID, "error", err)
	}
}

func (c *serverConn) reply(f *Frame) {
	c.mu.Lock()
	msg, ok := c.inflight[f.ID]
	delete(c.inflight, f.ID)
	c.mu.Unlock()

	err := queue.ErrUnknownMessage
	if ok {
		err = c.server.broker.Reply(msg, f.Data)
	}
	if err == nil {
		return
	}

	c.server.logger.Warn("Reply rejected", "conn", c.id, "message_id", f.ID, "error", err)
	c.conn.writeFrame(&Frame{Kind: FrameError, ID: f.ID, Queue: f.Queue, Error: err.Error()})
}

func (c *serverConn) cancel(name string) {
	c.mu.Lock()
	sub, ok := c.subs[name]
	delete(c.subs, name)
	c.mu.Unlock()
	if !ok {
		return
	}

	sub.Cancel()
	c.forget(name)
	c.server.logger.Debug("Remote consumer cancelled", "conn", c.id, "queue", name)
}

// forget drops in-flight bookkeeping for name once the broker has
// requeued it.
func (c *serverConn) forget(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, msg := range c.inflight {
		if msg.Queue == name {
			delete(c.inflight, id)
		}
	}
}

// shutdown cancels every subscription so the broker requeues what this
// consumer held.
func (c *serverConn) shutdown() {
	c.conn.close()

	c.mu.Lock()
	subs := c.subs
	c.subs = make(map[string]*memq.Subscription)
	c.mu.Unlock()

	for name, sub := range subs {
		sub.Cancel()
		c.forget(name)
	}
}
