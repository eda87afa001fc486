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
Package queue defines the contract between rqhttp and a message queue.

DELIVERY MODEL:
===============
A consumer registers interest in a named queue with Consume. The transport
then calls the handler once per message, one message at a time, from a
single goroutine per subscription. The handler does not have to answer
before returning: the message stays in flight until Reply is called with
the same *Message, from any goroutine.

  - prefetch caps how many messages a consumer may hold unanswered
  - priority orders consumers competing for the same queue
  - delivery is at-least-once; redelivery policy belongs to the transport

IMPLEMENTATIONS:
================
  - memq:   in-process broker, also the producer side for tests and embedding
  - wsq:    remote consumer over WebSocket, served by a memq broker
  - kafkaq: Kafka topics, replies produced to the topic named by the message
*/
package queue

import (
	"errors"
	"time"
)

// Priority orders consumers of the same queue.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
)

// String returns the priority name.
func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	default:
		return "unknown"
	}
}

// ParsePriority parses a priority name, defaulting to PriorityNormal.
func ParsePriority(s string) Priority {
	switch s {
	case "low":
		return PriorityLow
	case "high":
		return PriorityHigh
	default:
		return PriorityNormal
	}
}

// DefaultPrefetch is the in-flight limit used by rqhttp consumers.
const DefaultPrefetch = 200

// Message is a delivered queue message. The transport owns it until Reply.
type Message struct {
	ID          string
	Queue       string
	Data        []byte
	Headers     map[string]string
	DeliveredAt time.Time

	// Handle is transport-private state. Callers must not touch it.
	Handle any
}

// Handler processes one delivered message.
type Handler func(msg *Message)

// Subscription is a registered consumer.
type Subscription interface {
	// Cancel stops deliveries and waits for the handler goroutine to exit.
	// It must not be called from the subscription's own handler.
	Cancel()
}

// Transport is a queue a consumer can subscribe to and answer on.
type Transport interface {
	// Consume subscribes handler to queue. It returns once the subscription
	// is registered; deliveries happen asynchronously.
	Consume(queue string, prefetch int, priority Priority, handler Handler) (Subscription, error)

	// Reply answers msg with payload and releases it. The transport does
	// not retain payload after Reply returns.
	Reply(msg *Message, payload []byte) error

	// Close stops all subscriptions.
	Close() error
}

// Transport errors.
var (
	// ErrClosed indicates the transport has been closed.
	ErrClosed = errors.New("transport closed")

	// ErrUnknownMessage indicates a reply to a message that is not in flight,
	// usually because it was already answered.
	ErrUnknownMessage = errors.New("message not in flight")

	// ErrAlreadyConsuming indicates a second subscription to the same queue
	// from the same transport.
	ErrAlreadyConsuming = errors.New("already consuming queue")

	// ErrInvalidPrefetch indicates a prefetch limit below one.
	ErrInvalidPrefetch = errors.New("prefetch must be at least 1")
)
