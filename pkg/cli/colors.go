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
Package cli provides terminal output helpers for the rqhttp command line tools.

COLORS:
=======
ANSI escape codes for terminal text formatting:
- Reset, Bold, Dim
- Foreground: Red, Green, Yellow, Cyan

ICONS:
======
- IconSuccess (✓), IconError (✗), IconWarning (⚠)
- IconInfo (ℹ), IconArrow (→), IconBullet (•)

USAGE:
======

	cli.Success("Found %d queue server(s)", n)
	cli.ErrorWithHint("no queue server found", "check that UDP port 5353 is open")

	p := cli.NewPrinter(&buf, &buf, false) // for tests or redirected output
	p.Info("scanning")

Colors are disabled when NO_COLOR is set or stdout is not a terminal.
*/
package cli

import (
	"fmt"
	"io"
	"os"
)

// ANSI color codes for terminal output.
const (
	Reset  = "\033[0m"
	Bold   = "\033[1m"
	Dim    = "\033[2m"
	Red    = "\033[31m"
	Green  = "\033[32m"
	Yellow = "\033[33m"
	Cyan   = "\033[36m"
)

// Icons for CLI output
const (
	IconSuccess = "✓"
	IconError   = "✗"
	IconWarning = "⚠"
	IconInfo    = "ℹ"
	IconArrow   = "→"
	IconBullet  = "•"
)

// Printer writes decorated messages. Errors go to Err, everything else to Out.
type Printer struct {
	Out    io.Writer
	Err    io.Writer
	Colors bool
}

// NewPrinter creates a printer over the given writers.
func NewPrinter(out, errOut io.Writer, colors bool) *Printer {
	return &Printer{Out: out, Err: errOut, Colors: colors}
}

var std = NewPrinter(os.Stdout, os.Stderr, colorsSupported())

func colorsSupported() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

// Default returns the printer behind the package level helpers.
func Default() *Printer {
	return std
}

// SetColorsEnabled enables or disables color output of the default printer.
func SetColorsEnabled(enabled bool) {
	std.Colors = enabled
}

// Paint wraps text in color when colors are enabled.
func (p *Printer) Paint(color, text string) string {
	if !p.Colors {
		return text
	}
	return color + text + Reset
}

func (p *Printer) Success(format string, args ...any) {
	fmt.Fprintln(p.Out, p.Paint(Green, IconSuccess+" "+fmt.Sprintf(format, args...)))
}

func (p *Printer) Error(format string, args ...any) {
	fmt.Fprintln(p.Err, p.Paint(Red, IconError+" "+fmt.Sprintf(format, args...)))
}

// ErrorWithHint prints an error followed by a dimmed hint line.
func (p *Printer) ErrorWithHint(message, hint string) {
	fmt.Fprintln(p.Err, p.Paint(Red, IconError+" "+message))
	if hint != "" {
		fmt.Fprintln(p.Err, p.Paint(Dim, "  "+IconArrow+" Hint: "+hint))
	}
}

func (p *Printer) Warning(format string, args ...any) {
	fmt.Fprintln(p.Out, p.Paint(Yellow, IconWarning+" "+fmt.Sprintf(format, args...)))
}

func (p *Printer) Info(format string, args ...any) {
	fmt.Fprintln(p.Out, p.Paint(Cyan, IconInfo+" "+fmt.Sprintf(format, args...)))
}

func (p *Printer) Hint(format string, args ...any) {
	fmt.Fprintln(p.Out, p.Paint(Dim, "  "+IconArrow+" "+fmt.Sprintf(format, args...)))
}

func (p *Printer) Header(text string) {
	fmt.Fprintln(p.Out, p.Paint(Bold+Cyan, text))
}

// Bullet prints an indented list item.
func (p *Printer) Bullet(format string, args ...any) {
	fmt.Fprintf(p.Out, "    %s %s\n", p.Paint(Yellow, IconBullet), fmt.Sprintf(format, args...))
}

func (p *Printer) KeyValue(key string, value any) {
	fmt.Fprintf(p.Out, "      %s %v\n", p.Paint(Dim, key+":"), value)
}

// Example prints a commented example command.
func (p *Printer) Example(description, command string) {
	fmt.Fprintf(p.Out, "    %s\n", p.Paint(Dim, "# "+description))
	fmt.Fprintf(p.Out, "    %s\n", command)
}

// Success prints a success message.
func Success(format string, args ...any) { std.Success(format, args...) }

// Error prints an error message to stderr.
func Error(format string, args ...any) { std.Error(format, args...) }

// ErrorWithHint prints an error with a helpful hint.
func ErrorWithHint(message, hint string) { std.ErrorWithHint(message, hint) }

// Warning prints a warning message.
func Warning(format string, args ...any) { std.Warning(format, args...) }

// Info prints an info message.
func Info(format string, args ...any) { std.Info(format, args...) }

// Hint prints a dimmed hint.
func Hint(format string, args ...any) { std.Hint(format, args...) }

// Header prints a section title.
func Header(text string) { std.Header(text) }

// Bullet prints a list item.
func Bullet(format string, args ...any) { std.Bullet(format, args...) }

// KeyValue prints a key-value pair.
func KeyValue(key string, value any) { std.KeyValue(key, value) }

// Example prints an example command.
func Example(description, command string) { std.Example(description, command) }
