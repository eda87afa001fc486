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


package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rqhttp/internal/discovery"
	"rqhttp/pkg/cli"
)

var testServers = []discovery.QueueServer{
	{Instance: "alpha", Addr: "10.0.0.1:7420", URL: "ws://10.0.0.1:7420/queue", Queues: []string{"www"}, Version: "1.0.0"},
	{Instance: "beta", Addr: "10.0.0.2:7420", URL: "ws://10.0.0.2:7420/queue", Queues: []string{"api"}},
	{Instance: "gamma", Addr: "10.0.0.3:7420", URL: "ws://10.0.0.3:7420/queue"},
}

func TestFilterByQueue(t *testing.T) {
	assert.Len(t, filterByQueue(testServers, ""), 3)

	www := filterByQueue(testServers, "www")
	require.Len(t, www, 2)
	assert.Equal(t, "alpha", www[0].Instance)
	assert.Equal(t, "gamma", www[1].Instance)

	// The input is left untouched.
	assert.Equal(t, "beta", testServers[1].Instance)
}

func TestOutputQuiet(t *testing.T) {
	var buf bytes.Buffer
	outputQuiet(&buf, testServers[:2])
	assert.Equal(t, "ws://10.0.0.1:7420/queue\nws://10.0.0.2:7420/queue\n", buf.String())
}

func TestOutputJSON(t *testing.T) {
	var buf bytes.Buffer
	outputJSON(&buf, testServers)

	var decoded []discovery.QueueServer
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, testServers, decoded)
}

func TestOutputHuman(t *testing.T) {
	var out bytes.Buffer
	outputHuman(cli.NewPrinter(&out, &out, false), testServers[:1])

	got := out.String()
	assert.Contains(t, got, "Found 1 queue server(s)")
	assert.Contains(t, got, "[1] alpha")
	assert.Contains(t, got, "URL: ws://10.0.0.1:7420/queue")
	assert.Contains(t, got, "Queues: www")
	assert.Contains(t, got, "Version: 1.0.0")
}
