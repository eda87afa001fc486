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

package rqhttp

import (
	"context"
	"sync"
	"time"
)

const (
	minSweepInterval = 10 * time.Millisecond
	maxSweepInterval = 5 * time.Second
)

// sweepIntervalFor checks four times per timeout, within sane bounds.
func sweepIntervalFor(timeout time.Duration) time.Duration {
	iv := timeout / 4
	if iv < minSweepInterval {
		return minSweepInterval
	}
	if iv > maxSweepInterval {
		return maxSweepInterval
	}
	return iv
}

// sweeper answers parked requests that have waited longer than timeout.
type sweeper struct {
	adapter  *Adapter
	timeout  time.Duration
	interval time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func startSweeper(a *Adapter, timeout, interval time.Duration) *sweeper {
	ctx, cancel := context.WithCancel(context.Background())
	s := &sweeper{
		adapter:  a,
		timeout:  timeout,
		interval: interval,
		ctx:      ctx,
		cancel:   cancel,
	}
	s.wg.Add(1)
	go s.loop()
	return s
}

func (s *sweeper) stop() {
	s.cancel()
	s.wg.Wait()
}

func (s *sweeper) loop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case now := <-ticker.C:
			s.sweep(now)
		}
	}
}

// sweep returns the number of requests it expired.
func (s *sweeper) sweep(now time.Time) int {
	a := s.adapter
	expired := 0
	for _, r := range a.Pending() {
		age := now.Sub(r.receivedAt)
		if age < s.timeout {
			continue
		}
		// A concurrent Reply wins; send reports that without a violation.
		sent, err := r.send(ExpiredCode, "text/plain", []byte("request timed out\n"), true)
		if !sent {
			continue
		}
		expired++
		a.recorder.RequestExpired(a.queue)
		a.reqLog.LogExpired(a.queue, r.messageID, r.Path(), age)
		if err != nil {
			a.logger.Error("Failed to expire pending request", "message_id", r.messageID, "error", err)
		}
	}
	return expired
}
