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
Package banner provides the startup banner for rqhttp binaries.

USAGE:
======

	banner.PrintTo(w, "Static")               // Title and version
	banner.PrintWithConfigTo(w, "Queue", cfg) // Plus the effective configuration

The banner text is embedded at compile time from banner.txt.
*/
package banner

import (
	_ "embed"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"rqhttp/internal/config"
)

//go:embed banner.txt
var bannerText string

// ANSI escape codes for terminal text formatting.
const (
	AnsiRed    = "\033[31m"
	AnsiGreen  = "\033[32m"
	AnsiYellow = "\033[33m"
	AnsiCyan   = "\033[36m"
	AnsiReset  = "\033[0m"
	AnsiBold   = "\033[1m"
	AnsiDim    = "\033[2m"
)

// Version information
const (
	Version   = "1.0.0"
	Copyright = "Copyright (c) 2026 Firefly Software Solutions Inc."
	License   = "Licensed under Apache License 2.0"
)

// GetBanner returns the raw ASCII banner text.
func GetBanner() string {
	return bannerText
}

// GetBannerLines returns the banner as individual lines.
func GetBannerLines() []string {
	return strings.Split(strings.TrimRight(bannerText, "\n"), "\n")
}

// PrintTo writes the banner for the named tool to w.
func PrintTo(w io.Writer, tool string) {
	printHeader(w, tool)
	fmt.Fprintln(w, AnsiDim+"  "+Copyright+AnsiReset)
	fmt.Fprintln(w)
}

// PrintWithConfig prints the banner and configuration to stdout.
func PrintWithConfig(tool string, cfg *config.Config) {
	PrintWithConfigTo(os.Stdout, tool, cfg)
}

// PrintWithConfigTo writes the banner with the effective configuration.
func PrintWithConfigTo(w io.Writer, tool string, cfg *config.Config) {
	printHeader(w, tool)
	printConfigSource(w, cfg)

	const lineWidth = 78

	printSectionHeader(w, "Queue", lineWidth)
	printRow3(w,
		fmtKV("Queue", AnsiGreen+cfg.Queue+AnsiReset),
		fmtKV("Prefetch", strconv.Itoa(cfg.Prefetch)),
		fmtKV("Priority", cfg.Priority))
	printRow2(w,
		fmtKV("Pending timeout", formatSeconds(cfg.PendingTimeout)),
		fmtKV("Log", cfg.LogLevel))
	fmt.Fprintln(w)

	printSectionHeader(w, "Transport", lineWidth)
	printTransportInfo(w, cfg)
	fmt.Fprintln(w)

	printSectionHeader(w, "Endpoints", lineWidth)
	printEndpointsInfo(w, cfg)
	fmt.Fprintln(w)

	fmt.Fprintln(w, AnsiDim+"  "+Copyright+AnsiReset)
	fmt.Fprintln(w)
	printLogSeparator(w)
}

func printHeader(w io.Writer, tool string) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, AnsiCyan+AnsiBold)
	for _, line := range GetBannerLines() {
		fmt.Fprintln(w, "  "+line)
	}
	fmt.Fprintln(w, AnsiReset)
	title := "rqhttp"
	if tool != "" {
		title += " " + tool
	}
	fmt.Fprintln(w, AnsiGreen+AnsiBold+"  "+title+AnsiReset+" "+AnsiDim+"v"+Version+AnsiReset)
	fmt.Fprintln(w, AnsiDim+"  HTTP request/reply over message queues"+AnsiReset)
	fmt.Fprintln(w)
}

func printLogSeparator(w io.Writer) {
	const lineWidth = 78
	arrow := "v"
	text := " LOGS START HERE "
	padding := (lineWidth - len(text) - 4) / 2
	if padding < 0 {
		padding = 0
	}
	line := strings.Repeat("-", padding)
	fmt.Fprintf(w, "  %s%s %s%s%s %s%s\n",
		AnsiYellow, arrow+arrow+line,
		AnsiBold, text, AnsiReset+AnsiYellow,
		line+arrow+arrow, AnsiReset)
	fmt.Fprintln(w)
}

func printConfigSource(w io.Writer, cfg *config.Config) {
	fmt.Fprint(w, "  "+AnsiDim+"Config: "+AnsiReset)
	if cfg.ConfigFile != "" {
		fmt.Fprintln(w, AnsiYellow+cfg.ConfigFile+AnsiReset)
	} else {
		fmt.Fprintln(w, AnsiDim+"defaults + environment"+AnsiReset)
	}
	fmt.Fprintln(w)
}

func printTransportInfo(w io.Writer, cfg *config.Config) {
	kind := fmtKV("Kind", AnsiGreen+cfg.Transport.Kind+AnsiReset)
	switch cfg.Transport.Kind {
	case config.TransportWebSocket:
		url := cfg.Transport.WSURL
		if url == "" {
			url = "mDNS " + cfg.Discovery.Service
		}
		printRow2(w, kind, fmtKV("Server", url))
	case config.TransportKafka:
		printRow2(w, kind, fmtKV("Brokers", strings.Join(cfg.Transport.KafkaBrokers, ",")))
	default:
		printRow2(w, kind, fmtKV("Mode", "in-process"))
	}
}

func printEndpointsInfo(w io.Writer, cfg *config.Config) {
	admin := fmtDisabled("Admin")
	if cfg.Admin.Enabled {
		admin = fmtKV("Admin", cfg.Admin.Addr)
	}
	discovery := fmtEnabled("mDNS", cfg.Discovery.Enabled)
	printRow2(w, admin, discovery)
}

func printSectionHeader(w io.Writer, title string, width int) {
	titleLen := len(title) + 4 // "[ title ]"
	leftPad := 2
	rightPad := width - leftPad - titleLen
	if rightPad < 0 {
		rightPad = 0
	}
	fmt.Fprintf(w, "  %s[ %s%s%s ]%s%s\n",
		AnsiDim+strings.Repeat("-", leftPad),
		AnsiReset+AnsiCyan+AnsiBold, title, AnsiReset+AnsiDim,
		strings.Repeat("-", rightPad),
		AnsiReset)
}

func fmtKV(key, value string) string {
	return fmt.Sprintf("%s%s:%s %s", AnsiDim, key, AnsiReset, value)
}

func fmtEnabled(name string, enabled bool) string {
	if enabled {
		return AnsiGreen + name + AnsiReset
	}
	return AnsiDim + name + AnsiReset
}

func fmtDisabled(name string) string {
	return AnsiDim + name + AnsiReset
}

func printRow3(w io.Writer, col1, col2, col3 string) {
	fmt.Fprintf(w, "  %-32s %-26s %s\n", col1, col2, col3)
}

func printRow2(w io.Writer, col1, col2 string) {
	fmt.Fprintf(w, "  %-40s %s\n", col1, col2)
}

func formatSeconds(s int64) string {
	if s <= 0 {
		return "none"
	}
	return strconv.FormatInt(s, 10) + "s"
}
