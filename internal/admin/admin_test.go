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


package admin

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rqhttp/internal/config"
	"rqhttp/internal/metrics"
	"rqhttp/internal/protocol"
	"rqhttp/pkg/queue/memq"
	"rqhttp/pkg/rqhttp"
)

// fixture serves one queue whose handler parks every request.
type fixture struct {
	broker  *memq.Broker
	adapter *rqhttp.Adapter
	server  *Server
	held    chan *rqhttp.Request
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		broker: memq.NewBroker(),
		held:   make(chan *rqhttp.Request, 8),
	}
	t.Cleanup(func() { f.broker.Close() })

	var err error
	f.adapter, err = rqhttp.New(f.broker, "www", func(r *rqhttp.Request) { f.held <- r })
	require.NoError(t, err)

	f.server = NewServer(&config.AdminConfig{Enabled: true, Addr: "127.0.0.1:0"}, metrics.New().Handler())
	f.server.Register(f.adapter)
	return f
}

func (f *fixture) publish(t *testing.T, path, params string) <-chan []byte {
	t.Helper()
	data, err := (&protocol.HTTPRequest{Method: "GET", Host: "example.org", Path: path, Params: params}).Encode()
	require.NoError(t, err)
	ch, err := f.broker.Publish("www", data)
	require.NoError(t, err)
	return ch
}

func (f *fixture) do(t *testing.T, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestHealthCheck(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/api/v1/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, rec.Body.String())

	rec = f.do(t, http.MethodPost, "/api/v1/health")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestMetricsOmittedWithoutHandler(t *testing.T) {
	s := NewServer(&config.AdminConfig{}, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListQueues(t *testing.T) {
	f := newFixture(t)
	f.publish(t, "/slow", "")
	<-f.held
	require.Eventually(t, func() bool { return f.adapter.PendingCount() == 1 }, time.Second, time.Millisecond)

	rec := f.do(t, http.MethodGet, "/api/v1/queues")
	require.Equal(t, http.StatusOK, rec.Code)
	var infos []QueueInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &infos))
	assert.Equal(t, []QueueInfo{{Name: "www", Pending: 1}}, infos)

	rec = f.do(t, http.MethodGet, "/api/v1/queues/www")
	require.Equal(t, http.StatusOK, rec.Code)
	var info QueueInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.Equal(t, QueueInfo{Name: "www", Pending: 1}, info)
}

func TestUnknownQueue(t *testing.T) {
	f := newFixture(t)
	for _, target := range []string{"/api/v1/queues/api", "/api/v1/queues/api/pending"} {
		rec := f.do(t, http.MethodGet, target)
		assert.Equal(t, http.StatusNotFound, rec.Code, target)
		assert.Contains(t, rec.Body.String(), `queue \"api\" not served`)
	}
}

func TestListPending(t *testing.T) {
	f := newFixture(t)
	f.publish(t, "/a", "x=1")
	f.publish(t, "/b", "")
	<-f.held
	<-f.held
	require.Eventually(t, func() bool { return f.adapter.PendingCount() == 2 }, time.Second, time.Millisecond)

	rec := f.do(t, http.MethodGet, "/api/v1/queues/www/pending")
	require.Equal(t, http.StatusOK, rec.Code)

	var infos []PendingInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &infos))
	require.Len(t, infos, 2)
	assert.Equal(t, "/a", infos[0].Path)
	assert.Equal(t, "x=1", infos[0].Params)
	assert.Equal(t, "GET", infos[0].Method)
	assert.Equal(t, "example.org", infos[0].Host)
	assert.Equal(t, "/b", infos[1].Path)
	assert.Empty(t, infos[1].Params)
	assert.Less(t, infos[0].ID, infos[1].ID)
	assert.GreaterOrEqual(t, infos[0].AgeSeconds, 0.0)
}

func TestAbortPending(t *testing.T) {
	f := newFixture(t)
	reply := f.publish(t, "/stuck", "")
	r := <-f.held
	require.Eventually(t, func() bool { return f.adapter.PendingCount() == 1 }, time.Second, time.Millisecond)

	rec := f.do(t, http.MethodDelete, "/api/v1/queues/www/pending/999")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodDelete, "/api/v1/queues/www/pending/"+itoa(r.ID())+"?code=abc")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodDelete, "/api/v1/queues/www/pending/"+itoa(r.ID())+"?code=502")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 0, f.adapter.PendingCount())

	resp, err := protocol.DecodeHTTPResponse(<-reply)
	require.NoError(t, err)
	assert.Equal(t, 502, resp.Code)
	assert.True(t, strings.HasPrefix(string(resp.Body), "request aborted"))

	assert.ErrorIs(t, r.Reply(200, "", nil), rqhttp.ErrRequestExpired)
	require.NoError(t, f.adapter.Close())
}

func TestAbortDefaultCode(t *testing.T) {
	f := newFixture(t)
	reply := f.publish(t, "/stuck", "")
	r := <-f.held
	require.Eventually(t, func() bool { return f.adapter.PendingCount() == 1 }, time.Second, time.Millisecond)

	rec := f.do(t, http.MethodDelete, "/api/v1/queues/www/pending/"+itoa(r.ID()))
	require.Equal(t, http.StatusNoContent, rec.Code)

	resp, err := protocol.DecodeHTTPResponse(<-reply)
	require.NoError(t, err)
	assert.Equal(t, DefaultAbortCode, resp.Code)
}

func TestRecoverPanics(t *testing.T) {
	f := newFixture(t)
	f.server.router.HandleFunc("/boom", func(http.ResponseWriter, *http.Request) { panic("boom") })

	rec := f.do(t, http.MethodGet, "/boom")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"internal error"}`, rec.Body.String())
}

func TestStartDisabled(t *testing.T) {
	s := NewServer(&config.AdminConfig{Enabled: false}, nil)
	require.NoError(t, s.Start())
	assert.Nil(t, s.server)
	require.NoError(t, s.Stop())
}

func itoa(v uint64) string {
	return strconv.FormatUint(v, 10)
}
