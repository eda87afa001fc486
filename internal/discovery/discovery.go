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
Package discovery advertises and finds rqhttp queue servers with mDNS
(Bonjour/Avahi).

A queue server announces itself as an instance of the configured service
(default "_rqhttp._tcp") with TXT records:

	path=/queue          WebSocket endpoint path
	queues=www,api       queues with waiting messages when it started
	version=1.0.0

Consumers started with the ws transport and no explicit URL look up the
service and dial the first server found.
*/
package discovery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/mdns"

	"rqhttp/internal/logging"
)

// Defaults for advertisement and lookup.
const (
	DefaultService = "_rqhttp._tcp"
	DefaultDomain  = "local."
	DefaultTimeout = 3 * time.Second
	DefaultPath    = "/queue"
)

// ErrNotFound indicates that no queue server answered a lookup.
var ErrNotFound = errors.New("no queue server found")

// AdvertiseConfig describes the server being announced.
type AdvertiseConfig struct {
	Instance string // defaults to the host name
	Service  string
	Domain   string
	Port     int
	IPs      []net.IP // defaults to the host's addresses
	Path     string
	Queues   []string
	Version  string
}

// Advertiser answers mDNS queries for one service instance.
type Advertiser struct {
	server *mdns.Server
	logger *logging.Logger
}

// Advertise starts answering queries for cfg.
func Advertise(cfg AdvertiseConfig) (*Advertiser, error) {
	if cfg.Port <= 0 {
		return nil, fmt.Errorf("advertise: invalid port %d", cfg.Port)
	}
	if cfg.Service == "" {
		cfg.Service = DefaultService
	}
	if cfg.Domain == "" {
		cfg.Domain = DefaultDomain
	}
	if cfg.Path == "" {
		cfg.Path = DefaultPath
	}
	if cfg.Instance == "" {
		host, err := os.Hostname()
		if err != nil {
			return nil, fmt.Errorf("advertise: %w", err)
		}
		cfg.Instance = host
	}

	svc, err := mdns.NewMDNSService(cfg.Instance, cfg.Service, cfg.Domain, "", cfg.Port, cfg.IPs, TXTRecords(cfg))
	if err != nil {
		return nil, fmt.Errorf("advertise: %w", err)
	}
	server, err := mdns.NewServer(&mdns.Config{Zone: svc, Logger: quietLogger()})
	if err != nil {
		return nil, fmt.Errorf("advertise: start mdns server: %w", err)
	}

	logger := logging.NewLogger("discovery")
	logger.Info("Advertising queue server", "instance", cfg.Instance, "service", cfg.Service, "port", cfg.Port)
	return &Advertiser{server: server, logger: logger}, nil
}

// Shutdown stops answering queries.
func (a *Advertiser) Shutdown() error {
	a.logger.Info("Stopped advertising queue server")
	return a.server.Shutdown()
}

// TXTRecords renders the TXT fields announced for cfg.
func TXTRecords(cfg AdvertiseConfig) []string {
	path := cfg.Path
	if path == "" {
		path = DefaultPath
	}
	txt := []string{"path=" + path}
	if len(cfg.Queues) > 0 {
		txt = append(txt, "queues="+strings.Join(cfg.Queues, ","))
	}
	if cfg.Version != "" {
		txt = append(txt, "version="+cfg.Version)
	}
	return txt
}

// QueueServer is a server found by Lookup.
type QueueServer struct {
	Instance string   `json:"instance"`
	Host     string   `json:"host"`
	Addr     string   `json:"addr"`
	URL      string   `json:"url"`
	Queues   []string `json:"queues,omitempty"`
	Version  string   `json:"version,omitempty"`
}

// Serves reports whether the server announced queue. A server that
// announced no queues is assumed to serve any.
func (s QueueServer) Serves(queue string) bool {
	if len(s.Queues) == 0 {
		return true
	}
	for _, q := range s.Queues {
		if q == queue {
			return true
		}
	}
	return false
}

// Lookup queries service in domain for timeout, shortened to ctx's
// deadline, and returns the servers found ordered by address.
func Lookup(ctx context.Context, service, domain string, timeout time.Duration) ([]QueueServer, error) {
	if service == "" {
		service = DefaultService
	}
	if domain == "" {
		domain = DefaultDomain
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < timeout {
			timeout = left
		}
	}

	entries := make(chan *mdns.ServiceEntry, 16)
	found := make(map[string]QueueServer)
	collected := make(chan struct{})
	go func() {
		defer close(collected)
		for e := range entries {
			if s, ok := serverFromEntry(e); ok {
				found[s.Addr] = s
			}
		}
	}()

	params := mdns.DefaultParams(service)
	params.Domain = domain
	params.Timeout = timeout
	params.Entries = entries
	params.DisableIPv6 = true
	params.Logger = quietLogger()

	err := mdns.Query(params)
	close(entries)
	<-collected
	if err != nil {
		return nil, fmt.Errorf("mdns query %s: %w", service, err)
	}

	servers := make([]QueueServer, 0, len(found))
	for _, s := range found {
		servers = append(servers, s)
	}
	sort.Slice(servers, func(i, j int) bool { return servers[i].Addr < servers[j].Addr })
	return servers, nil
}

// Resolve returns the WebSocket URL of the first server that serves queue.
func Resolve(ctx context.Context, service, domain, queue string) (string, error) {
	servers, err := Lookup(ctx, service, domain, DefaultTimeout)
	if err != nil {
		return "", err
	}
	for _, s := range servers {
		if s.Serves(queue) {
			return s.URL, nil
		}
	}
	return "", fmt.Errorf("%w for queue %s", ErrNotFound, queue)
}

func serverFromEntry(e *mdns.ServiceEntry) (QueueServer, bool) {
	if e == nil || e.Port <= 0 {
		return QueueServer{}, false
	}
	ip := e.AddrV4
	if ip == nil {
		ip = e.AddrV6
	}
	if ip == nil {
		return QueueServer{}, false
	}

	txt := parseTXT(e.InfoFields)
	path := txt["path"]
	if path == "" {
		path = DefaultPath
	}
	addr := net.JoinHostPort(ip.String(), strconv.Itoa(e.Port))

	s := QueueServer{
		Instance: instanceName(e.Name),
		Host:     strings.TrimSuffix(e.Host, "."),
		Addr:     addr,
		URL:      "ws://" + addr + path,
		Version:  txt["version"],
	}
	if q := txt["queues"]; q != "" {
		s.Queues = strings.Split(q, ",")
	}
	return s, true
}

func parseTXT(fields []string) map[string]string {
	out := make(map[string]string, len(fields))
	for _, f := range fields {
		k, v, ok := strings.Cut(f, "=")
		if !ok {
			continue
		}
		out[strings.ToLower(k)] = v
	}
	return out
}

// instanceName strips the service and domain from a full mDNS name.
func instanceName(name string) string {
	if i := strings.Index(name, "._"); i >= 0 {
		name = name[:i]
	}
	return strings.ReplaceAll(name, `\ `, " ")
}

// quietLogger keeps the mdns package off the standard logger.
func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}
