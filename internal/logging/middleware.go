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
Lifecycle logging for requests and queue connections.

REQUEST LOGGING:
================
- Request received: queue, message id, method, path (never the params)
- Request parked: handler returned without replying
- Request replied: status code, body size, time since receipt
- Request expired: parked too long and answered by the sweeper
- Protocol violation: the invariant that failed, logged before the panic

CONNECTION LOGGING:
===================
- Remote consumer connected / disconnected, with a short connection id
*/
package logging

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// RequestLogger records the lifecycle of decoded requests.
type RequestLogger struct {
	logger *Logger
}

// NewRequestLogger creates a request logger writing through logger.
func NewRequestLogger(logger *Logger) *RequestLogger {
	return &RequestLogger{logger: logger}
}

// LogReceived logs a fully decoded request about to be handled.
func (rl *RequestLogger) LogReceived(queue, messageID, method, path string) {
	rl.logger.Debug("Request received",
		"queue", queue,
		"message_id", messageID,
		"method", method,
		"path", path,
	)
}

// LogParked logs a request whose handler deferred the reply.
func (rl *RequestLogger) LogParked(queue, messageID, path string, pending int) {
	rl.logger.Debug("Request parked",
		"queue", queue,
		"message_id", messageID,
		"path", path,
		"pending", pending,
	)
}

// LogReplied logs a reply handed to the transport.
func (rl *RequestLogger) LogReplied(queue, messageID string, code, bodySize int, elapsed time.Duration, parked bool) {
	rl.logger.Debug("Request replied",
		"queue", queue,
		"message_id", messageID,
		"code", code,
		"body_bytes", bodySize,
		"latency_ms", float64(elapsed.Microseconds())/1000,
		"parked", parked,
	)
}

// LogReplyFailed logs a transport failure while sending a reply.
func (rl *RequestLogger) LogReplyFailed(queue, messageID string, err error) {
	rl.logger.Error("Failed to send reply",
		"queue", queue,
		"message_id", messageID,
		"error", err,
	)
}

// LogExpired logs a parked request answered by the expiry sweep.
func (rl *RequestLogger) LogExpired(queue, messageID, path string, age time.Duration) {
	rl.logger.Warn("Pending request expired",
		"queue", queue,
		"message_id", messageID,
		"path", path,
		"age_seconds", age.Seconds(),
	)
}

// LogViolation logs a broken protocol or lifecycle invariant.
func (rl *RequestLogger) LogViolation(queue, messageID string, err error) {
	rl.logger.Error("Protocol violation",
		"queue", queue,
		"message_id", messageID,
		"error", err,
	)
}

// ConnectionLogger records remote consumer connections.
type ConnectionLogger struct {
	logger *Logger
}

// NewConnectionLogger creates a connection logger writing through logger.
func NewConnectionLogger(logger *Logger) *ConnectionLogger {
	return &ConnectionLogger{logger: logger}
}

// LogConnected logs a new remote consumer.
func (cl *ConnectionLogger) LogConnected(remoteAddr string) string {
	id := GenerateConnectionID(remoteAddr, time.Now())
	cl.logger.Info("Consumer connected",
		"connection_id", id,
		"remote_addr", remoteAddr,
	)
	return id
}

// LogDisconnected logs a remote consumer going away.
func (cl *ConnectionLogger) LogDisconnected(id, remoteAddr, reason string, duration time.Duration) {
	cl.logger.Info("Consumer disconnected",
		"connection_id", id,
		"remote_addr", remoteAddr,
		"reason", reason,
		"duration_seconds", duration.Seconds(),
	)
}

// GenerateConnectionID derives a short, stable id for a connection.
func GenerateConnectionID(remoteAddr string, at time.Time) string {
	h := sha256.Sum256([]byte(remoteAddr + "|" + at.UTC().Format(time.RFC3339Nano)))
	return hex.EncodeToString(h[:6])
}
