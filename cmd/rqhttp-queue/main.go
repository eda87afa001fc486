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
rqhttp-queue - Queue Server and HTTP Gateway.

Runs an in-process broker, lets remote consumers attach to it over
WebSocket, and publishes incoming HTTP requests to a queue.

USAGE:
======

	rqhttp-queue [options]

STARTUP SEQUENCE:
=================
1. Load .env, configuration file, environment, then flags
2. Initialize logging and metrics
3. Start the broker and the consumer endpoint (transport.ws_addr + /queue)
4. Start the HTTP gateway for the configured queue
5. Advertise over mDNS when discovery is enabled
6. Start the admin API and wait for shutdown signal
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"rqhttp/internal/admin"
	"rqhttp/internal/banner"
	"rqhttp/internal/config"
	"rqhttp/internal/discovery"
	"rqhttp/internal/gateway"
	"rqhttp/internal/logging"
	"rqhttp/internal/metrics"
	"rqhttp/pkg/queue/memq"
	"rqhttp/pkg/queue/wsq"
)

func printHelp() {
	banner.PrintTo(os.Stdout, "Queue")
	fmt.Println("\033[1;36mUsage:\033[0m")
	fmt.Println("  rqhttp-queue [options]")
	fmt.Println()
	fmt.Println("\033[1;36mOptions:\033[0m")
	fmt.Println("  -config string      Path to configuration file (JSON or YAML)")
	fmt.Println("  -queue string       Queue the gateway publishes to")
	fmt.Println("  -listen string      Consumer endpoint address (overrides RQHTTP_WS_ADDR)")
	fmt.Println("  -gateway string     HTTP gateway address (overrides RQHTTP_GATEWAY_ADDR)")
	fmt.Println("  -advertise          Announce the server over mDNS")
	fmt.Println("  -human-readable     Use human-readable log format instead of JSON")
	fmt.Println("  -quiet              Skip banner and config display, output logs only")
	fmt.Println("  -version            Show version information")
	fmt.Println("  -help, -h           Show this help message")
	fmt.Println()
	fmt.Println("\033[1;36mEnvironment Variables:\033[0m")
	fmt.Println("  RQHTTP_QUEUE             Queue the gateway publishes to (default: www)")
	fmt.Println("  RQHTTP_WS_ADDR           Consumer endpoint address (default: :7420)")
	fmt.Println("  RQHTTP_GATEWAY_ENABLED   Enable the HTTP gateway (default: true)")
	fmt.Println("  RQHTTP_GATEWAY_ADDR      HTTP gateway address (default: :8080)")
	fmt.Println("  RQHTTP_GATEWAY_TIMEOUT   Seconds to wait for a reply (default: 30)")
	fmt.Println("  RQHTTP_DISCOVERY_ENABLED Announce the server over mDNS (true/false)")
	fmt.Println("  RQHTTP_ADMIN_ENABLED     Enable the admin API (true/false)")
	fmt.Println()
	fmt.Println("\033[1;36mExamples:\033[0m")
	fmt.Println("  # Accept consumers on :7420 and HTTP on :8080")
	fmt.Println("  rqhttp-queue")
	fmt.Println()
	fmt.Println("  # Announce on the LAN so consumers need no URL")
	fmt.Println("  rqhttp-queue -advertise")
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
	queueName := flag.String("queue", "", "Queue the gateway publishes to")
	listenAddr := flag.String("listen", "", "Consumer endpoint address")
	gatewayAddr := flag.String("gateway", "", "HTTP gateway address")
	advertise := flag.Bool("advertise", false, "Announce the server over mDNS")
	humanReadable := flag.Bool("human-readable", false, "Use human-readable log format instead of JSON")
	quietMode := flag.Bool("quiet", false, "Skip banner and config display, output logs only")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Usage = printHelp
	flag.Parse()

	if *showVersion {
		banner.PrintTo(os.Stdout, "Queue")
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

	// This binary is the broker, whatever transport consumers were told to use.
	cfg.Transport.Kind = config.TransportWebSocket
	if *queueName != "" {
		cfg.Queue = *queueName
	}
	if *listenAddr != "" {
		cfg.Transport.WSAddr = *listenAddr
	}
	if *gatewayAddr != "" {
		cfg.Gateway.Addr = *gatewayAddr
	}
	if *advertise {
		cfg.Discovery.Enabled = true
	}
	if *humanReadable {
		cfg.LogJSON = false
	}
	if err := cfg.Validate(); err != nil {
		fmt.Printf("Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	if !*quietMode {
		banner.PrintWithConfig("Queue", cfg)
	}

	logging.SetGlobalLevel(logging.ParseLevel(cfg.LogLevel))
	logging.SetJSONMode(cfg.LogJSON)
	logger := logging.NewLogger("main")

	logger.Info("Starting rqhttp-queue", "version", banner.Version, "addr", cfg.Transport.WSAddr)

	m := metrics.New()
	broker := memq.NewBroker()
	wsServer := wsq.NewServer(broker, wsq.WithObserver(m))

	router := mux.NewRouter()
	router.Handle(discovery.DefaultPath, wsServer)
	queueServer := &http.Server{
		Addr:              cfg.Transport.WSAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	listener, err := net.Listen("tcp", cfg.Transport.WSAddr)
	if err != nil {
		logger.Error("Failed to listen", "addr", cfg.Transport.WSAddr, "error", err)
		os.Exit(1)
	}
	go func() {
		logger.Info("Accepting consumers", "addr", listener.Addr().String(), "path", discovery.DefaultPath)
		if err := queueServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Queue server error", "error", err)
		}
	}()

	var gatewayServer *http.Server
	if cfg.Gateway.Enabled {
		gatewayServer = &http.Server{
			Addr:              cfg.Gateway.Addr,
			Handler:           gateway.New(broker, cfg.Queue, cfg.GatewayTimeoutDuration()),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info("Starting HTTP gateway", "addr", cfg.Gateway.Addr, "queue", cfg.Queue)
			if err := gatewayServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("HTTP gateway error", "error", err)
			}
		}()
	}

	var advertiser *discovery.Advertiser
	if cfg.Discovery.Enabled {
		port, err := listenPort(listener)
		if err == nil {
			advertiser, err = discovery.Advertise(discovery.AdvertiseConfig{
				Service: cfg.Discovery.Service,
				Domain:  cfg.Discovery.Domain,
				Port:    port,
				Queues:  []string{cfg.Queue},
				Version: banner.Version,
			})
		}
		if err != nil {
			logger.Error("Failed to advertise queue server", "error", err)
		}
	}

	adminServer := admin.NewServer(&cfg.Admin, m.Handler())
	if err := adminServer.Start(); err != nil {
		logger.Error("Failed to start admin server", "error", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("Shutting down...")

	if advertiser != nil {
		if err := advertiser.Shutdown(); err != nil {
			logger.Error("Error stopping mDNS advertiser", "error", err)
		}
	}
	if err := adminServer.Stop(); err != nil {
		logger.Error("Error stopping admin server", "error", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if gatewayServer != nil {
		if err := gatewayServer.Shutdown(ctx); err != nil {
			logger.Error("Error stopping HTTP gateway", "error", err)
		}
	}
	// Hijacked consumer connections are not tracked by http.Server.
	if err := wsServer.Close(); err != nil {
		logger.Error("Error disconnecting consumers", "error", err)
	}
	if err := queueServer.Shutdown(ctx); err != nil {
		logger.Error("Error stopping queue server", "error", err)
	}
	if err := broker.Close(); err != nil {
		logger.Error("Error closing broker", "error", err)
	}
}

func listenPort(l net.Listener) (int, error) {
	_, port, err := net.SplitHostPort(l.Addr().String())
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(port)
}
