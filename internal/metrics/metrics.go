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
Package metrics provides Prometheus metrics for rqhttp.

METRIC CATEGORIES:
==================
- Messages: received per queue, decode latency
- Replies: sent per queue and status class (2xx, 4xx, ...)
- Lifecycle: parked requests, expired requests
- Violations: broken stream or lifecycle invariants by kind
- Connections: remote consumers attached to a queue server

EXAMPLE METRICS:
================

	rqhttp_messages_received_total{queue="www"} 12345
	rqhttp_replies_sent_total{queue="www",class="2xx"} 12000
	rqhttp_pending_requests{queue="www"} 3
	rqhttp_decode_seconds_bucket{queue="www",le="0.001"} 12001

Each Metrics owns its registry, so several can coexist in one process.
*/
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "rqhttp"

// Metrics holds the rqhttp collectors. It implements rqhttp.Recorder.
type Metrics struct {
	registry *prometheus.Registry

	messagesReceived *prometheus.CounterVec
	repliesSent      *prometheus.CounterVec
	pending          *prometheus.GaugeVec
	expired          *prometheus.CounterVec
	violations       *prometheus.CounterVec
	decodeSeconds    *prometheus.HistogramVec
	connections      prometheus.Gauge
	connectionsTotal prometheus.Counter
}

// New creates and registers the collectors, plus the Go runtime and process
// collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		messagesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_received_total",
			Help:      "Messages delivered to the adapter.",
		}, []string{"queue"}),
		repliesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "replies_sent_total",
			Help:      "Replies handed to the transport, by status class.",
		}, []string{"queue", "class"}),
		pending: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_requests",
			Help:      "Requests parked waiting for a deferred reply.",
		}, []string{"queue"}),
		expired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_expired_total",
			Help:      "Parked requests answered by the expiry sweep.",
		}, []string{"queue"}),
		violations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "violations_total",
			Help:      "Protocol or lifecycle violations, by kind.",
		}, []string{"queue", "kind"}),
		decodeSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "decode_seconds",
			Help:      "Time to decode a message, including inline handlers.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}, []string{"queue"}),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "consumer_connections",
			Help:      "Remote consumers connected to this queue server.",
		}),
		connectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "consumer_connections_total",
			Help:      "Remote consumer connections accepted.",
		}),
	}

	m.registry.MustRegister(
		m.messagesReceived,
		m.repliesSent,
		m.pending,
		m.expired,
		m.violations,
		m.decodeSeconds,
		m.connections,
		m.connectionsTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry the collectors live in.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// MessageReceived counts a delivered message.
func (m *Metrics) MessageReceived(queue string) {
	m.messagesReceived.WithLabelValues(queue).Inc()
}

// DecodeDuration observes how long a message took to decode.
func (m *Metrics) DecodeDuration(queue string, d time.Duration) {
	m.decodeSeconds.WithLabelValues(queue).Observe(d.Seconds())
}

// ReplySent counts a reply by status class.
func (m *Metrics) ReplySent(queue string, code int) {
	m.repliesSent.WithLabelValues(queue, StatusClass(code)).Inc()
}

// PendingChanged sets the parked request gauge.
func (m *Metrics) PendingChanged(queue string, n int) {
	m.pending.WithLabelValues(queue).Set(float64(n))
}

// RequestExpired counts a request answered by the expiry sweep.
func (m *Metrics) RequestExpired(queue string) {
	m.expired.WithLabelValues(queue).Inc()
}

// Violation counts a broken invariant.
func (m *Metrics) Violation(queue, kind string) {
	m.violations.WithLabelValues(queue, kind).Inc()
}

// ConnectionOpened records a remote consumer connecting.
func (m *Metrics) ConnectionOpened() {
	m.connections.Inc()
	m.connectionsTotal.Inc()
}

// ConnectionClosed records a remote consumer going away.
func (m *Metrics) ConnectionClosed() {
	m.connections.Dec()
}

// StatusClass maps a status code to "1xx".."5xx", or "other".
func StatusClass(code int) string {
	if code < 100 || code > 599 {
		return "other"
	}
	return strconv.Itoa(code/100) + "xx"
}
