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
Package admin provides an operator REST API for rqhttp queues.

ENDPOINTS:
==========

	GET    /api/v1/health                     - Liveness check
	GET    /metrics                           - Prometheus metrics
	GET    /api/v1/queues                     - List queues with pending counts
	GET    /api/v1/queues/{queue}             - Get one queue
	GET    /api/v1/queues/{queue}/pending     - List parked requests
	DELETE /api/v1/queues/{queue}/pending/{id} - Answer a parked request (?code=503)

Aborting a parked request replies on its behalf; the handler that still
holds it gets ErrRequestExpired when it answers.
*/
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"rqhttp/internal/config"
	"rqhttp/internal/logging"
	"rqhttp/pkg/rqhttp"
)

// DefaultAbortCode answers an aborted request when no code is given.
const DefaultAbortCode = http.StatusServiceUnavailable

// Queue is the view of an adapter the admin API needs.
type Queue interface {
	Queue() string
	PendingCount() int
	Pending() []*rqhttp.Request
	Abort(id uint64, code int, reason string) (bool, error)
}

// QueueInfo represents a served queue.
type QueueInfo struct {
	Name    string `json:"name"`
	Pending int    `json:"pending"`
}

// PendingInfo represents a parked request.
type PendingInfo struct {
	ID         uint64  `json:"id"`
	MessageID  string  `json:"message_id"`
	Method     string  `json:"method"`
	Host       string  `json:"host,omitempty"`
	Path       string  `json:"path"`
	Params     string  `json:"params,omitempty"`
	ReceivedAt string  `json:"received_at"`
	AgeSeconds float64 `json:"age_seconds"`
}

// Server provides the Admin REST API.
type Server struct {
	config  *config.AdminConfig
	server  *http.Server
	logger  *logging.Logger
	router  *mux.Router
	metrics http.Handler

	mu     sync.RWMutex
	queues map[string]Queue
	now    func() time.Time
}

// NewServer creates an admin server. metrics may be nil.
func NewServer(cfg *config.AdminConfig, metrics http.Handler) *Server {
	s := &Server{
		config:  cfg,
		logger:  logging.NewLogger("admin"),
		metrics: metrics,
		queues:  make(map[string]Queue),
		now:     time.Now,
	}
	s.router = s.newRouter()
	return s
}

// Register exposes q under its queue name, replacing any earlier one.
func (s *Server) Register(q Queue) {
	s.mu.Lock()
	s.queues[q.Queue()] = q
	s.mu.Unlock()
}

// Handler returns the router, for embedding or tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the admin API server.
func (s *Server) Start() error {
	if !s.config.Enabled {
		s.logger.Info("Admin API server disabled")
		return nil
	}

	s.server = &http.Server{
		Addr:              s.config.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		s.logger.Info("Starting admin API server", "addr", s.config.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Admin API server error", "error", err)
		}
	}()
	return nil
}

// Stop stops the admin API server.
func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.logger.Info("Stopping admin API server")
	return s.server.Shutdown(ctx)
}

func (s *Server) newRouter() *mux.Router {
	r := mux.NewRouter()
	r.Use(recoverPanics(s.logger), logRequests(s.logger))

	r.HandleFunc("/api/v1/health", s.handleHealthCheck).Methods(http.MethodGet)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics).Methods(http.MethodGet)
	}

	api := r.PathPrefix("/api/v1/queues").Subrouter()
	api.HandleFunc("", s.handleQueues).Methods(http.MethodGet)
	api.HandleFunc("/{queue}", s.handleQueue).Methods(http.MethodGet)
	api.HandleFunc("/{queue}/pending", s.handlePending).Methods(http.MethodGet)
	api.HandleFunc("/{queue}/pending/{id:[0-9]+}", s.handleAbort).Methods(http.MethodDelete)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		s.writeError(w, errors.New("not found"), http.StatusNotFound)
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		s.writeError(w, errors.New("method not allowed"), http.StatusMethodNotAllowed)
	})
	return r
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (Queue, bool) {
	name := mux.Vars(r)["queue"]
	s.mu.RLock()
	q, ok := s.queues[name]
	s.mu.RUnlock()
	if !ok {
		s.writeError(w, fmt.Errorf("queue %q not served", name), http.StatusNotFound)
	}
	return q, ok
}

// handleHealthCheck handles GET /api/v1/health
func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"healthy"}`))
}

// handleQueues handles GET /api/v1/queues
func (s *Server) handleQueues(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	infos := make([]QueueInfo, 0, len(s.queues))
	for name, q := range s.queues {
		infos = append(infos, QueueInfo{Name: name, Pending: q.PendingCount()})
	}
	s.mu.RUnlock()

	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	s.writeJSON(w, infos)
}

// handleQueue handles GET /api/v1/queues/{queue}
func (s *Server) handleQueue(w http.ResponseWriter, r *http.Request) {
	q, ok := s.lookup(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, QueueInfo{Name: q.Queue(), Pending: q.PendingCount()})
}

// handlePending handles GET /api/v1/queues/{queue}/pending
func (s *Server) handlePending(w http.ResponseWriter, r *http.Request) {
	q, ok := s.lookup(w, r)
	if !ok {
		return
	}

	now := s.now()
	pending := q.Pending()
	infos := make([]PendingInfo, 0, len(pending))
	for _, req := range pending {
		infos = append(infos, pendingInfo(req, now))
	}
	s.writeJSON(w, infos)
}

// handleAbort handles DELETE /api/v1/queues/{queue}/pending/{id}
func (s *Server) handleAbort(w http.ResponseWriter, r *http.Request) {
	q, ok := s.lookup(w, r)
	if !ok {
		return
	}

	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		s.writeError(w, fmt.Errorf("invalid id: %w", err), http.StatusBadRequest)
		return
	}

	code := DefaultAbortCode
	if v := r.URL.Query().Get("code"); v != "" {
		code, err = strconv.Atoi(v)
		if err != nil || code <= 0 {
			s.writeError(w, fmt.Errorf("invalid code %q", v), http.StatusBadRequest)
			return
		}
	}

	found, err := q.Abort(id, code, "request aborted by operator\n")
	if err != nil {
		s.writeError(w, err, http.StatusBadGateway)
		return
	}
	if !found {
		s.writeError(w, fmt.Errorf("request %d not pending on %s", id, q.Queue()), http.StatusNotFound)
		return
	}

	s.logger.Info("Aborted pending request", "queue", q.Queue(), "id", id, "code", code)
	w.WriteHeader(http.StatusNoContent)
}

func pendingInfo(req *rqhttp.Request, now time.Time) PendingInfo {
	info := PendingInfo{
		ID:         req.ID(),
		MessageID:  req.MessageID(),
		Method:     req.Method().String(),
		Path:       req.Path(),
		ReceivedAt: req.ReceivedAt().UTC().Format(time.RFC3339Nano),
		AgeSeconds: now.Sub(req.ReceivedAt()).Seconds(),
	}
	if host, ok := req.Host(); ok {
		info.Host = host
	}
	if raw, ok := req.RawParams(); ok {
		info.Params = raw
	}
	return info
}

// writeJSON writes a JSON response.
func (s *Server) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

// writeError writes an error response.
func (s *Server) writeError(w http.ResponseWriter, err error, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
