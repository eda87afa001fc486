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

package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// capture redirects global output for the duration of a test.
func capture(t *testing.T, level Level, jsonMode bool) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetGlobalOutput(&buf)
	SetGlobalLevel(level)
	SetJSONMode(jsonMode)
	t.Cleanup(func() {
		SetGlobalOutput(os.Stderr)
		SetGlobalLevel(INFO)
		SetJSONMode(false)
	})
	return &buf
}

func TestLevelString(t *testing.T) {
	tests := []struct {
		level    Level
		expected string
	}{
		{DEBUG, "DEBUG"},
		{INFO, "INFO"},
		{WARN, "WARN"},
		{ERROR, "ERROR"},
		{Level(99), "UNKNOWN"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, tt.level.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected Level
	}{
		{"DEBUG", DEBUG},
		{"debug", DEBUG},
		{"Info", INFO},
		{"WARN", WARN},
		{"warning", WARN},
		{"ERROR", ERROR},
		{"unknown", INFO},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, ParseLevel(tt.input), "ParseLevel(%s)", tt.input)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, INFO, cfg.Level)
	assert.False(t, cfg.JSONMode)
}

func TestLoggerOutput(t *testing.T) {
	buf := capture(t, DEBUG, false)

	NewLogger("adapter").Info("test message", "key", "value")

	output := buf.String()
	assert.Contains(t, output, "test message")
	assert.Contains(t, output, "[adapter]")
	assert.Contains(t, output, "key=value")
}

func TestTextFieldsAreSorted(t *testing.T) {
	buf := capture(t, DEBUG, false)

	NewLogger("adapter").Info("sorted", "zeta", 1, "alpha", 2, "mid", 3)

	line := buf.String()
	assert.Less(t, strings.Index(line, "alpha=2"), strings.Index(line, "mid=3"))
	assert.Less(t, strings.Index(line, "mid=3"), strings.Index(line, "zeta=1"))
}

func TestLoggerLevelFiltering(t *testing.T) {
	buf := capture(t, WARN, false)

	logger := NewLogger("test")
	logger.Debug("debug message")
	logger.Info("info message")
	logger.Warn("warn message")
	logger.Error("error message")

	output := buf.String()
	assert.NotContains(t, output, "debug message")
	assert.NotContains(t, output, "info message")
	assert.Contains(t, output, "warn message")
	assert.Contains(t, output, "error message")
	assert.False(t, logger.Enabled(INFO))
	assert.True(t, logger.Enabled(ERROR))
}

func TestLoggerJSONMode(t *testing.T) {
	buf := capture(t, INFO, true)

	NewLogger("test").Info("json test", "foo", "bar", "error", errors.New("boom"))

	var entry Entry
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "json test", entry.Message)
	assert.Equal(t, "test", entry.Component)
	assert.Equal(t, "INFO", entry.Level)
	assert.Equal(t, "bar", entry.Fields["foo"])
	assert.Equal(t, "boom", entry.Fields["error"])
}

func TestWithAddsFields(t *testing.T) {
	buf := capture(t, INFO, false)

	base := NewLogger("adapter")
	child := base.With("queue", "www")
	child.Info("scoped", "path", "/x")
	base.Info("unscoped")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "queue=www")
	assert.Contains(t, lines[0], "path=/x")
	assert.NotContains(t, lines[1], "queue=www")
	assert.Equal(t, "adapter", child.Component())
}

func TestOddArgsGoToExtra(t *testing.T) {
	buf := capture(t, INFO, false)
	NewLogger("test").Info("odd", "key", "value", "dangling")
	assert.Contains(t, buf.String(), "extra=dangling")
}

func TestRequestLogger(t *testing.T) {
	buf := capture(t, DEBUG, false)

	rl := NewRequestLogger(NewLogger("rqhttp"))
	rl.LogReceived("www", "m1", "GET", "/index.html")
	rl.LogParked("www", "m1", "/index.html", 1)
	rl.LogReplied("www", "m1", 200, 12, 3*time.Millisecond, true)
	rl.LogViolation("www", "m2", errors.New("stream desync"))

	output := buf.String()
	assert.Contains(t, output, "Request received")
	assert.Contains(t, output, "pending=1")
	assert.Contains(t, output, "code=200")
	assert.Contains(t, output, "error=stream desync")
}

func TestGenerateConnectionID(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	a := GenerateConnectionID("10.0.0.1:5000", at)
	b := GenerateConnectionID("10.0.0.1:5000", at)
	c := GenerateConnectionID("10.0.0.2:5000", at)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 12)
}
