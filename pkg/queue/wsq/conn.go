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
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Connection timing defaults.
const (
	// DefaultReadBufferSize is the default size of the read buffer
	DefaultReadBufferSize = 4096
	// DefaultWriteBufferSize is the default size of the write buffer
	DefaultWriteBufferSize = 4096
	// DefaultPingInterval is the interval for sending ping frames
	DefaultPingInterval = 30 * time.Second
	// DefaultPongTimeout is the timeout for receiving pong responses
	DefaultPongTimeout = 10 * time.Second
	// DefaultWriteTimeout is the timeout for write operations
	DefaultWriteTimeout = 10 * time.Second
	// MaxFrameSize bounds one frame: a full-size payload plus envelope.
	MaxFrameSize = 33 << 20
)

// conn serialises writes to a websocket.Conn and keeps it alive with
// ping/pong.
type conn struct {
	ws        *websocket.Conn
	mu        sync.Mutex
	lastPong  time.Time
	interval  time.Duration
	done      chan struct{}
	closeOnce sync.Once
}

func newConn(ws *websocket.Conn, pingInterval time.Duration) *conn {
	c := &conn{
		ws:       ws,
		lastPong: time.Now(),
		interval: pingInterval,
		done:     make(chan struct{}),
	}
	ws.SetReadLimit(MaxFrameSize)
	ws.SetPongHandler(func(string) error {
		c.mu.Lock()
		c.lastPong = time.Now()
		c.mu.Unlock()
		return nil
	})
	if pingInterval > 0 {
		go c.pingLoop()
	}
	return c
}

// pingLoop closes the connection once pongs stop arriving.
func (c *conn) pingLoop() {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.mu.Lock()
			if time.Since(c.lastPong) > c.interval+DefaultPongTimeout {
				c.mu.Unlock()
				c.ws.Close()
				return
			}
			c.ws.SetWriteDeadline(time.Now().Add(DefaultWriteTimeout))
			err := c.ws.WriteMessage(websocket.PingMessage, nil)
			c.mu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// writeFrame encodes and sends f.
func (c *conn) writeFrame(f *Frame) error {
	data, err := EncodeFrame(f)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(DefaultWriteTimeout))
	return c.ws.WriteMessage(websocket.BinaryMessage, data)
}

// readFrame blocks for the next frame. Non-binary messages are skipped.
func (c *conn) readFrame() (*Frame, error) {
	for {
		kind, data, err := c.ws.ReadMessage()
		if err != nil {
			return nil, err
		}
		if kind != websocket.BinaryMessage {
			continue
		}
		return DecodeFrame(data)
	}
}

// close sends a close message when possible and closes the socket.
func (c *conn) close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		c.mu.Lock()
		c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.mu.Unlock()
		err = c.ws.Close()
	})
	return err
}
