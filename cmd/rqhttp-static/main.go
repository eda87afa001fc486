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
rqhttp-static - Static File Server over a Message Queue.

USAGE:
======

	rqhttp-static [options] [root]

OPTIONS:
========

	-config string    Path to configuration file (JSON or YAML)
	-queue string     Queue to consume (overrides RQHTTP_QUEUE)
	-root string      Directory to serve (overrides RQHTTP_STATIC_ROOT)
	-transport string memq, ws or kafka (overrides RQHTTP_TRANSPORT)
	-version          Show version information
	-help             Show help message

STARTUP SEQUENCE:
=================
1. Load .env, configuration file, environment, then flags
2. Initialize logging and metrics
3. Open the transport (in-process broker, queue server or Kafka)
4. Start consuming with the static file handler
5. Start the gateway (in-process broker only) and admin API
6. Wait for shutdown signal or transport loss
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"rqhttp/internal/admin"
	"rqhttp/internal/banner"
	"rqhttp/internal/config"
	"rqhttp/internal/discovery"
	"rqhttp/internal/gateway"
	"rqhttp/internal/logging"
	"rqhttp/internal/metrics"
	"rqhttp/internal/static"
	"rqhttp/pkg/queue"
	"rqhttp/pkg/queue/kafkaq"
	"rqhttp/pkg/queue/memq"
	"rqhttp/pkg/queue/wsq"
	"rqhttp/pkg/rqhttp"
)

func printHelp() {
	banner.PrintTo(os.Stdout, "Static")
	fmt.Println("\033[1;36mUsage:\033[0m")
	fmt.Println("  rqhttp-static [options] [root]")
	fmt.Println()
	fmt.Println("\033[1;36mOptions:\033[0m")
	fmt.Println("  -config string      Path to configuration file (JSON or YAML)")
	fmt.Println("  -queue string       Queue to consume")
	fmt.Println("  -root string        Directory to serve")
	fmt.Println("  -transport string   Transport: memq, ws or kafka")
	fmt.Println("  -human-readable     Use human-readable log format instead of JSON")
	fmt.Println("  -quiet              Skip banner and config display, output logs only")
	fmt.Println("  -version            Show version information")
	fmt.Println("  -help, -h           Show this help message")
	fmt.Println()
	fmt.Println("\033[1;36mEnvironment Variables:\033[0m")
	fmt.Println("  RQHTTP_QUEUE             Queue to consume (default: www)")
	fmt.Println("  RQHTTP_PREFETCH          Unanswered messages allowed in flight (default: 200)")
	fmt.Println("  RQHTTP_PENDING_TIMEOUT   Seconds a parked request may wait (0 = forever)")
	fmt.Println("  RQHTTP_TRANSPORT         memq, ws or kafka (default: memq)")
	fmt.Println("  RQHTTP_WS_URL            Queue server URL for the ws transport")
	fmt.Println("  RQHTTP_KAFKA_BROKERS     Comma separated Kafka seed brokers")
	fmt.Println("  RQHTTP_STATIC_ROOT       Directory to serve (default: .)")
	fmt.Println("  RQHTTP_GATEWAY_ADDR      HTTP gateway address for memq (default: :8080)")
	fmt.Println("  RQHTTP_ADMIN_ENABLED     Enable the admin API (true/false)")
	fmt.Println("  RQHTTP_DISCOVERY_ENABLED Find the queue server with mDNS when no URL is set")
	fmt.Println()
	fmt.Println("\033[1;36mExamples:\033[0m")
	fmt.Println("  # Serve the current directory on http://localhost:8080")
	fmt.Println("  rqhttp-static")
	fmt.Println()
	fmt.Println("  # Consume the www queue of a remote queue server")
	fmt.Println("  rqhttp-static -transport ws /var/www")
	fmt.Println()
	fmt.Println("  # Consume a Kafka topic")
	fmt.Println("  RQHTTP_KAFKA_BROKERS=kafka:9092 rqhttp-static -transport kafka -queue site")
	fmt.Println()
}

func main() {
	for _, arg := range os.Args[1:] {
		if arg == "-h" || arg == "--help" || arg == "-help" || arg == "help" {
			printHelp()
			return
		}
	}

	configPath := flag.String("config", "", "Path to configuration file")
	queueName := flag.String("queue", "", "Queue to consume")
	root := flag.String("root", "", "Directory to serve")
	transportKind := flag.String("transport", "", "Transport: memq, ws or kafka")
	humanReadable := flag.Bool("human-readable", false, "Use human-readable log format instead of JSON")
	quietMode := flag.Bool("quiet", false, "Skip banner and config display, output logs only")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Usage = printHelp
	flag.Parse()

	if *showVersion {
		banner.PrintTo(os.Stdout, "Static")
		return
	}

	if err := config.LoadDotEnv(); err != nil {
		fmt.Printf("Error loading .env: %v\n", err)
		os.Exit(1)
	}
	cfgMgr := config.Global()
	if *configPath == "" {
		*configPath = config.FindConfigFile()
	}
	if *configPath != "" {
		if err := cfgMgr.LoadFromFile(*configPath); err != nil {
			fmt.Printf("Error loading config file: %v\n", err)
			os.Exit(1)
		}
	}
	cfgMgr.LoadFromEnv()
	cfg := cfgMgr.Get()

	if *queueName != "" {
		cfg.Queue = *queueName
	}
	if *transportKind != "" {
		cfg.Transport.Kind = *transportKind
	}
	if *root != "" {
		cfg.Static.Root = *root
	} else if flag.NArg() > 0 {
		cfg.Static.Root = flag.Arg(0)
	}
	if *humanReadable {
		cfg.LogJSON = false
	}
	if err := cfg.Validate(); err != nil {
		fmt.Printf("Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	if !*quietMode {
		banner.PrintWithConfig("Static", cfg)
	}

	logging.SetGlobalLevel(logging.ParseLevel(cfg.LogLevel))
	logging.SetJSONMode(cfg.LogJSON)
	logger := logging.NewLogger("main")

	logger.Info("Starting rqhttp-static", "version", banner.Version, "queue", cfg.Queue, "root", cfg.Static.Root)

	files, err := static.New(cfg.Static.Root)
	if err != nil {
		logger.Error("Invalid document root", "error", err)
		os.Exit(1)
	}

	m := metrics.New()

	var (
		broker *memq.Broker
		lost   <-chan struct{}
	)
	transport, err := openTransport(cfg, logger)
	if err != nil {
		logger.Error("Failed to open transport", "kind", cfg.Transport.Kind, "error", err)
		os.Exit(1)
	}
	switch t := transport.(type) {
	case *memq.Broker:
		broker = t
	case *wsq.Transport:
		lost = t.Done()
	}
	defer transport.Close()

	adapter, err := rqhttp.New(transport, cfg.Queue, files.Serve,
		rqhttp.WithPrefetch(cfg.Prefetch),
		rqhttp.WithPriority(queue.ParsePriority(cfg.Priority)),
		rqhttp.WithPendingTimeout(cfg.PendingTimeoutDuration()),
		rqhttp.WithRecorder(m),
		rqhttp.WithUserData(files),
	)
	if err != nil {
		logger.Error("Failed to start consuming", "queue", cfg.Queue, "error", err)
		os.Exit(1)
	}
	logger.Info("Consuming queue", "queue", cfg.Queue, "transport", cfg.Transport.Kind, "prefetch", cfg.Prefetch)

	// The gateway only makes sense when the broker lives in this process.
	var gatewayServer *http.Server
	if broker != nil && cfg.Gateway.Enabled {
		gatewayServer = &http.Server{
			Addr:              cfg.Gateway.Addr,
			Handler:           gateway.New(broker, cfg.Queue, cfg.GatewayTimeoutDuration()),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info("Starting HTTP gateway", "addr", cfg.Gateway.Addr)
			if err := gatewayServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("HTTP gateway error", "error", err)
			}
		}()
	}

	adminServer := admin.NewServer(&cfg.Admin, m.Handler())
	adminServer.Register(adapter)
	if err := adminServer.Start(); err != nil {
		logger.Error("Failed to start admin server", "error", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
		logger.Info("Shutting down...")
	case <-lost:
		logger.Error("Lost connection to queue server, shutting down")
	}

	if gatewayServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := gatewayServer.Shutdown(ctx); err != nil {
			logger.Error("Error stopping HTTP gateway", "error", err)
		}
		cancel()
	}
	if err := adminServer.Stop(); err != nil {
		logger.Error("Error stopping admin server", "error", err)
	}
	if err := adapter.Close(); err != nil {
		logger.Warn("Adapter closed with requests outstanding", "error", err)
	}
}

// openTransport connects the transport selected by cfg.Transport.Kind.
func openTransport(cfg *config.Config, logger *logging.Logger) (queue.Transport, error) {
	switch cfg.Transport.Kind {
	case config.TransportWebSocket:
		url := cfg.Transport.WSURL
		if url == "" {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			resolved, err := discovery.Resolve(ctx, cfg.Discovery.Service, cfg.Discovery.Domain, cfg.Queue)
			if err != nil {
				return nil, err
			}
			logger.Info("Discovered queue server", "url", resolved)
			url = resolved
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return wsq.Dial(ctx, url)
	case config.TransportKafka:
		return kafkaq.New(kafkaq.Config{Brokers: cfg.Transport.KafkaBrokers})
	default:
		return memq.NewBroker(), nil
	}
}
