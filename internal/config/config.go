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
Package config provides configuration management for rqhttp binaries.

CONFIGURATION SOURCES (in order of precedence):
===============================================
1. Command-line flags (highest priority)
2. Environment variables (RQHTTP_* prefix)
3. A .env file in the working directory
4. Configuration file (JSON, or YAML for .yaml/.yml files)
5. Default values (lowest priority)

CONFIGURATION CATEGORIES:
=========================
- Queue: queue name, prefetch, priority, pending timeout
- Transport: memq, ws (WebSocket queue server) or kafka
- Logging: log_level, log_json
- Observability: admin server (health, metrics, pending)
- Static: document root for rqhttp-static
- Gateway: HTTP front door of rqhttp-queue
- Discovery: mDNS service used to find WebSocket queue servers

EXAMPLE CONFIGURATION FILE (YAML):
==================================

	queue: www
	prefetch: 200
	pending_timeout: 30
	transport:
	  kind: ws
	  ws_url: ws://10.0.0.5:7420/queue
	static:
	  root: /srv/www

ENVIRONMENT VARIABLES:
======================
Example: RQHTTP_QUEUE="www" RQHTTP_TRANSPORT="kafka" RQHTTP_KAFKA_BROKERS="k1:9092,k2:9092"
*/
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variable names
const (
	EnvQueue          = "RQHTTP_QUEUE"
	EnvPrefetch       = "RQHTTP_PREFETCH"
	EnvPriority       = "RQHTTP_PRIORITY"
	EnvPendingTimeout = "RQHTTP_PENDING_TIMEOUT"
	EnvLogLevel       = "RQHTTP_LOG_LEVEL"
	EnvLogJSON        = "RQHTTP_LOG_JSON"

	// Transport configuration
	EnvTransport    = "RQHTTP_TRANSPORT"
	EnvWSURL        = "RQHTTP_WS_URL"
	EnvWSAddr       = "RQHTTP_WS_ADDR"
	EnvKafkaBrokers = "RQHTTP_KAFKA_BROKERS"

	// Observability configuration
	EnvAdminEnabled = "RQHTTP_ADMIN_ENABLED"
	EnvAdminAddr    = "RQHTTP_ADMIN_ADDR"

	// Static handler configuration
	EnvStaticRoot = "RQHTTP_STATIC_ROOT"

	// HTTP gateway configuration
	EnvGatewayEnabled = "RQHTTP_GATEWAY_ENABLED"
	EnvGatewayAddr    = "RQHTTP_GATEWAY_ADDR"
	EnvGatewayTimeout = "RQHTTP_GATEWAY_TIMEOUT"

	// Discovery configuration
	EnvDiscoveryEnabled = "RQHTTP_DISCOVERY_ENABLED"
	EnvDiscoveryService = "RQHTTP_DISCOVERY_SERVICE"
)

// Transport kinds.
const (
	TransportMemory    = "memq"
	TransportWebSocket = "ws"
	TransportKafka     = "kafka"
)

// DefaultDotEnvFile is read by LoadDotEnv when no path is given.
const DefaultDotEnvFile = ".env"

// Default paths
var DefaultConfigPaths = []string{
	"/etc/rqhttp/rqhttp.yaml",
	"$HOME/.config/rqhttp/rqhttp.yaml",
	"./rqhttp.yaml",
	"./rqhttp.json",
}

// TransportConfig selects and addresses the queue transport.
type TransportConfig struct {
	Kind         string   `json:"kind" yaml:"kind"`                   // memq, ws or kafka
	WSURL        string   `json:"ws_url" yaml:"ws_url"`               // Queue server URL dialled by consumers
	WSAddr       string   `json:"ws_addr" yaml:"ws_addr"`             // Bind address of rqhttp-queue
	KafkaBrokers []string `json:"kafka_brokers" yaml:"kafka_brokers"` // Seed brokers for the kafka transport
}

// AdminConfig holds admin API configuration.
type AdminConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

// StaticConfig holds configuration for the static file handler.
type StaticConfig struct {
	Root string `json:"root" yaml:"root"`
}

// GatewayConfig holds the HTTP front door of rqhttp-queue.
type GatewayConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
	Timeout int64  `json:"timeout" yaml:"timeout"` // Seconds to wait for a reply
}

// DiscoveryConfig holds mDNS discovery configuration.
type DiscoveryConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Service string `json:"service" yaml:"service"`
	Domain  string `json:"domain" yaml:"domain"`
}

// Config holds all rqhttp configuration.
type Config struct {
	Queue          string `json:"queue" yaml:"queue"`
	Prefetch       int    `json:"prefetch" yaml:"prefetch"`
	Priority       string `json:"priority" yaml:"priority"`               // low, normal, high
	PendingTimeout int64  `json:"pending_timeout" yaml:"pending_timeout"` // Seconds a parked request may wait (0 = forever)

	LogLevel string `json:"log_level" yaml:"log_level"`
	LogJSON  bool   `json:"log_json" yaml:"log_json"`

	Transport TransportConfig `json:"transport" yaml:"transport"`
	Admin     AdminConfig     `json:"admin" yaml:"admin"`
	Static    StaticConfig    `json:"static" yaml:"static"`
	Gateway   GatewayConfig   `json:"gateway" yaml:"gateway"`
	Discovery DiscoveryConfig `json:"discovery" yaml:"discovery"`

	// ConfigFile is the file the configuration was loaded from, if any.
	ConfigFile string `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		Queue:    "www",
		Prefetch: 200,
		Priority: "normal",
		LogLevel: "info",
		Transport: TransportConfig{
			Kind:   TransportMemory,
			WSURL:  "ws://127.0.0.1:7420/queue",
			WSAddr: ":7420",
		},
		Admin: AdminConfig{
			Enabled: false,
			Addr:    ":9420",
		},
		Static: StaticConfig{
			Root: ".",
		},
		Gateway: GatewayConfig{
			Enabled: true,
			Addr:    ":8080",
			Timeout: 30,
		},
		Discovery: DiscoveryConfig{
			Enabled: false,
			Service: "_rqhttp._tcp",
			Domain:  "local.",
		},
	}
}

// Manager handles configuration loading.
type Manager struct {
	config *Config
	mu     sync.RWMutex
}

var globalManager = NewManager()

// NewManager returns a manager holding the default configuration.
func NewManager() *Manager {
	return &Manager{config: DefaultConfig()}
}

// Global returns the global manager.
func Global() *Manager {
	return globalManager
}

// Get returns a copy of current config.
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cfg := *m.config
	cfg.Transport.KafkaBrokers = append([]string(nil), m.config.Transport.KafkaBrokers...)
	return &cfg
}

// Set updates the config.
func (m *Manager) Set(cfg *Config) {
	m.mu.Lock()
	m.config = cfg
	m.mu.Unlock()
}

// LoadFromFile loads configuration from a JSON or YAML file. Values missing
// from the file keep their defaults.
func (m *Manager) LoadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("config file not found: %s", path)
		}
		return err
	}

	cfg := DefaultConfig()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	default:
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	cfg.ConfigFile = path
	m.Set(cfg)
	return nil
}

// FindConfigFile returns the first existing file in DefaultConfigPaths.
func FindConfigFile() string {
	for _, p := range DefaultConfigPaths {
		p = os.ExpandEnv(p)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// LoadDotEnv reads KEY=VALUE pairs from the given files (default .env) into
// the process environment. Variables already set are not overridden and a
// missing file is not an error.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{DefaultDotEnvFile}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// LoadFromEnv loads configuration from environment variables.
func (m *Manager) LoadFromEnv() {
	cfg := m.Get()

	if v := os.Getenv(EnvQueue); v != "" {
		cfg.Queue = v
	}
	if v := os.Getenv(EnvPrefetch); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Prefetch = i
		}
	}
	if v := os.Getenv(EnvPriority); v != "" {
		cfg.Priority = v
	}
	if v := os.Getenv(EnvPendingTimeout); v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.PendingTimeout = i
		}
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv(EnvLogJSON); v != "" {
		cfg.LogJSON = parseBool(v)
	}

	// Transport environment variables
	if v := os.Getenv(EnvTransport); v != "" {
		cfg.Transport.Kind = strings.ToLower(v)
	}
	if v := os.Getenv(EnvWSURL); v != "" {
		cfg.Transport.WSURL = v
	}
	if v := os.Getenv(EnvWSAddr); v != "" {
		cfg.Transport.WSAddr = v
	}
	if v := os.Getenv(EnvKafkaBrokers); v != "" {
		cfg.Transport.KafkaBrokers = splitList(v)
	}

	// Observability environment variables
	if v := os.Getenv(EnvAdminEnabled); v != "" {
		cfg.Admin.Enabled = parseBool(v)
	}
	if v := os.Getenv(EnvAdminAddr); v != "" {
		cfg.Admin.Addr = v
	}

	if v := os.Getenv(EnvStaticRoot); v != "" {
		cfg.Static.Root = v
	}

	// Gateway environment variables
	if v := os.Getenv(EnvGatewayEnabled); v != "" {
		cfg.Gateway.Enabled = parseBool(v)
	}
	if v := os.Getenv(EnvGatewayAddr); v != "" {
		cfg.Gateway.Addr = v
	}
	if v := os.Getenv(EnvGatewayTimeout); v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Gateway.Timeout = i
		}
	}

	// Discovery environment variables
	if v := os.Getenv(EnvDiscoveryEnabled); v != "" {
		cfg.Discovery.Enabled = parseBool(v)
	}
	if v := os.Getenv(EnvDiscoveryService); v != "" {
		cfg.Discovery.Service = v
	}

	m.Set(cfg)
}

func parseBool(v string) bool {
	return strings.ToLower(v) == "true" || v == "1"
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Validate checks configuration validity.
func (c *Config) Validate() error {
	if c.Queue == "" {
		return fmt.Errorf("queue is required")
	}
	if c.Prefetch < 1 {
		return fmt.Errorf("prefetch must be at least 1, got %d", c.Prefetch)
	}
	switch strings.ToLower(c.Priority) {
	case "", "low", "normal", "high":
	default:
		return fmt.Errorf("priority must be 'low', 'normal' or 'high'")
	}
	if c.PendingTimeout < 0 {
		return fmt.Errorf("pending_timeout must be non-negative")
	}

	switch c.Transport.Kind {
	case TransportMemory:
	case TransportWebSocket:
		if c.Transport.WSURL == "" && !c.Discovery.Enabled {
			return fmt.Errorf("transport.ws_url is required for the ws transport unless discovery is enabled")
		}
	case TransportKafka:
		if len(c.Transport.KafkaBrokers) == 0 {
			return fmt.Errorf("transport.kafka_brokers is required for the kafka transport")
		}
	default:
		return fmt.Errorf("unknown transport %q (want memq, ws or kafka)", c.Transport.Kind)
	}

	if c.Admin.Enabled && c.Admin.Addr == "" {
		return fmt.Errorf("admin.addr is required when the admin server is enabled")
	}
	if c.Gateway.Enabled && c.Gateway.Addr == "" {
		return fmt.Errorf("gateway.addr is required when the gateway is enabled")
	}
	if c.Gateway.Timeout < 0 {
		return fmt.Errorf("gateway.timeout must be non-negative")
	}
	if c.Discovery.Enabled && c.Discovery.Service == "" {
		return fmt.Errorf("discovery.service is required when discovery is enabled")
	}
	return nil
}

// PendingTimeoutDuration returns PendingTimeout as a time.Duration.
func (c *Config) PendingTimeoutDuration() time.Duration {
	return time.Duration(c.PendingTimeout) * time.Second
}

// GatewayTimeoutDuration returns Gateway.Timeout as a time.Duration.
func (c *Config) GatewayTimeoutDuration() time.Duration {
	return time.Duration(c.Gateway.Timeout) * time.Second
}

// AdvertiseAddr returns the address a queue server should announce.
// If the bind address covers all interfaces, the local IP is substituted.
func (c *Config) AdvertiseAddr() string {
	return resolveAdvertiseAddr(c.Transport.WSAddr)
}

func resolveAdvertiseAddr(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}

	if host == "" || host == "0.0.0.0" || host == "::" {
		if localIP := detectLocalIP(); localIP != "" {
			return net.JoinHostPort(localIP, port)
		}
	}
	return addr
}

// detectLocalIP prefers the first non-loopback IPv4 address of an up interface.
func detectLocalIP() string {
	interfaces, err := net.Interfaces()
	if err != nil {
		return ""
	}

	for _, iface := range interfaces {
		if iface.Flags&net.FlagLoopback != 0 || iface.Flags&net.FlagUp == 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}

		for _, addr := range addrs {
			var ip net.IP
			switch v := addr.(type) {
			case *net.IPNet:
				ip = v.IP
			case *net.IPAddr:
				ip = v.IP
			}
			if ip != nil && ip.To4() != nil && !ip.IsLoopback() {
				return ip.String()
			}
		}
	}
	return ""
}
