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
rqhttp-discover - Queue Server Discovery Tool.

Finds rqhttp queue servers on the local network using mDNS (Bonjour/Avahi).

Usage:

	rqhttp-discover                    # Discover servers (3 second timeout)
	rqhttp-discover --timeout 10       # Custom timeout in seconds
	rqhttp-discover --queue www        # Only servers announcing queue www
	rqhttp-discover --json             # Output as JSON
	rqhttp-discover --quiet            # Only output URLs (for scripting)
*/
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"rqhttp/internal/banner"
	"rqhttp/internal/discovery"
	"rqhttp/pkg/cli"
)

func main() {
	timeout := flag.Int("timeout", 3, "Discovery timeout in seconds")
	queueName := flag.String("queue", "", "Only list servers announcing this queue")
	service := flag.String("service", discovery.DefaultService, "mDNS service name")
	jsonOutput := flag.Bool("json", false, "Output as JSON")
	quiet := flag.Bool("quiet", false, "Only output server URLs (for scripting)")
	help := flag.Bool("help", false, "Show help")
	version := flag.Bool("version", false, "Show version information")
	flag.BoolVar(quiet, "q", false, "Only output server URLs (for scripting)")
	flag.BoolVar(help, "h", false, "Show help")
	flag.BoolVar(version, "v", false, "Show version information")

	flag.Parse()

	if *help {
		printUsage()
		os.Exit(0)
	}
	if *version {
		banner.PrintTo(os.Stdout, "Discover")
		os.Exit(0)
	}

	// The mDNS library logs IPv6 errors that are not critical.
	log.SetOutput(io.Discard)

	human := !*quiet && !*jsonOutput
	if human {
		banner.PrintTo(os.Stdout, "Discover")
		cli.Info("Scanning for queue servers on the network (timeout: %ds)...", *timeout)
		fmt.Println()
	}

	wait := time.Duration(*timeout) * time.Second
	ctx, cancel := context.WithTimeout(context.Background(), wait+time.Second)
	defer cancel()
	servers, err := discovery.Lookup(ctx, *service, discovery.DefaultDomain, wait)
	if err != nil {
		if !*quiet {
			cli.Error("Discovery failed: %v", err)
		}
		os.Exit(1)
	}
	servers = filterByQueue(servers, *queueName)

	if len(servers) == 0 {
		if human {
			printTroubleshooting()
		}
		os.Exit(0)
	}

	switch {
	case *jsonOutput:
		outputJSON(os.Stdout, servers)
	case *quiet:
		outputQuiet(os.Stdout, servers)
	default:
		outputHuman(cli.Default(), servers)
	}
}

func filterByQueue(servers []discovery.QueueServer, queue string) []discovery.QueueServer {
	if queue == "" {
		return servers
	}
	out := servers[:0:0]
	for _, s := range servers {
		if s.Serves(queue) {
			out = append(out, s)
		}
	}
	return out
}

func printUsage() {
	banner.PrintTo(os.Stdout, "Discover")
	fmt.Println(cli.Dim + "  Finds rqhttp queue servers on the local network using mDNS (Bonjour/Avahi)." + cli.Reset)
	fmt.Println()
	fmt.Println(cli.Bold + "Usage:" + cli.Reset + " rqhttp-discover [options]")
	fmt.Println()

	cli.Header("OPTIONS")
	fmt.Println()
	fmt.Println("    " + cli.Green + "--timeout" + cli.Reset + " <seconds>   Discovery timeout (default: 3)")
	fmt.Println("    " + cli.Green + "--queue" + cli.Reset + " <name>        Only servers announcing this queue")
	fmt.Println("    " + cli.Green + "--service" + cli.Reset + " <name>      mDNS service (default: " + discovery.DefaultService + ")")
	fmt.Println("    " + cli.Green + "--json" + cli.Reset + "               Output results as JSON")
	fmt.Println("    " + cli.Green + "--quiet" + cli.Reset + ", " + cli.Green + "-q" + cli.Reset + "          Only output URLs (for scripting)")
	fmt.Println("    " + cli.Green + "--version" + cli.Reset + ", " + cli.Green + "-v" + cli.Reset + "        Show version information")
	fmt.Println("    " + cli.Green + "--help" + cli.Reset + ", " + cli.Green + "-h" + cli.Reset + "           Show this help message")
	fmt.Println()

	cli.Header("EXAMPLES")
	fmt.Println()
	cli.Example("Discover servers with default timeout", "rqhttp-discover")
	fmt.Println()
	cli.Example("Point a consumer at the first server for www", "RQHTTP_WS_URL=$(rqhttp-discover -q --queue www | head -1) rqhttp-static -transport ws")
	fmt.Println()

	cli.Header("NETWORK REQUIREMENTS")
	fmt.Println()
	cli.Bullet("mDNS uses UDP port 5353 (multicast)")
	cli.Bullet("Servers must be on the same network segment")
	cli.Bullet("Firewalls must allow mDNS traffic")
	fmt.Println()
}

func printTroubleshooting() {
	cli.Warning("No queue servers found on the network.")
	fmt.Println()
	cli.Header("TROUBLESHOOTING")
	fmt.Println()
	cli.Bullet("rqhttp-queue is not running with -advertise")
	cli.Bullet("mDNS/Bonjour is blocked by firewall (UDP port 5353)")
	cli.Bullet("Servers are on a different network segment")
	fmt.Println()
	cli.Hint("rqhttp-discover --timeout 10")
	fmt.Println()
}

func outputJSON(w io.Writer, servers []discovery.QueueServer) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(servers)
}

func outputQuiet(w io.Writer, servers []discovery.QueueServer) {
	for _, s := range servers {
		fmt.Fprintln(w, s.URL)
	}
}

func outputHuman(p *cli.Printer, servers []discovery.QueueServer) {
	p.Success("Found %d queue server(s)", len(servers))
	fmt.Fprintln(p.Out)

	for i, s := range servers {
		fmt.Fprintf(p.Out, "  %s %s\n", p.Paint(cli.Dim, fmt.Sprintf("[%d]", i+1)), p.Paint(cli.Bold+cli.Cyan, s.Instance))
		p.KeyValue("URL", p.Paint(cli.Green, s.URL))
		p.KeyValue("Address", s.Addr)
		if len(s.Queues) > 0 {
			p.KeyValue("Queues", strings.Join(s.Queues, ", "))
		}
		if s.Version != "" {
			p.KeyValue("Version", s.Version)
		}
		fmt.Fprintln(p.Out)
	}

	fmt.Fprintln(p.Out, p.Paint(cli.Dim, "  Tip: Use --json for machine-readable output"))
	fmt.Fprintln(p.Out)
}
