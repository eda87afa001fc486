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


package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func newTestPrinter(colors bool) (*Printer, *bytes.Buffer, *bytes.Buffer) {
	var out, errOut bytes.Buffer
	return NewPrinter(&out, &errOut, colors), &out, &errOut
}

func TestPaint(t *testing.T) {
	p, _, _ := newTestPrinter(true)
	assert.Equal(t, Red+"test"+Reset, p.Paint(Red, "test"))

	p.Colors = false
	assert.Equal(t, "test", p.Paint(Red, "test"))
}

func TestMessagesGoToTheRightStream(t *testing.T) {
	p, out, errOut := newTestPrinter(false)

	p.Success("found %d", 2)
	p.Info("scanning")
	p.Warning("nothing here")
	p.Error("failed: %s", "boom")

	assert.Equal(t, IconSuccess+" found 2\n"+IconInfo+" scanning\n"+IconWarning+" nothing here\n", out.String())
	assert.Equal(t, IconError+" failed: boom\n", errOut.String())
}

func TestErrorWithHint(t *testing.T) {
	p, _, errOut := newTestPrinter(false)
	p.ErrorWithHint("no server", "increase --timeout")
	assert.Contains(t, errOut.String(), IconError+" no server")
	assert.Contains(t, errOut.String(), "Hint: increase --timeout")

	errOut.Reset()
	p.ErrorWithHint("no server", "")
	assert.Equal(t, IconError+" no server\n", errOut.String())
}

func TestListHelpers(t *testing.T) {
	p, out, _ := newTestPrinter(false)
	p.Header("EXAMPLES")
	p.Bullet("UDP port %d", 5353)
	p.KeyValue("URL", "ws://10.0.0.1:7420/queue")
	p.Example("Scan longer", "rqhttp-discover --timeout 10")

	got := out.String()
	assert.Contains(t, got, "EXAMPLES\n")
	assert.Contains(t, got, IconBullet+" UDP port 5353")
	assert.Contains(t, got, "URL: ws://10.0.0.1:7420/queue")
	assert.Contains(t, got, "# Scan longer")
	assert.Contains(t, got, "rqhttp-discover --timeout 10")
}

func TestSetColorsEnabled(t *testing.T) {
	original := Default().Colors
	defer SetColorsEnabled(original)

	SetColorsEnabled(true)
	assert.True(t, Default().Colors)
	SetColorsEnabled(false)
	assert.Equal(t, "x", Default().Paint(Green, "x"))
}
