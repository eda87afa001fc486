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


package kafkaq

import (
	"sort"
	"sync"
)

// offsetTracker finds, per partition, the highest offset that can be
// committed: every fetched offset at or below it has been answered.
type offsetTracker struct {
	mu    sync.Mutex
	parts map[int]*partitionOffsets
}

type partitionOffsets struct {
	// fetched offsets not yet committed, ascending
	offsets []int64
	done    map[int64]bool
}

func newOffsetTracker() *offsetTracker {
	return &offsetTracker{parts: make(map[int]*partitionOffsets)}
}

// track records a fetched offset. Offsets arrive in order per partition.
func (t *offsetTracker) track(partition int, offset int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.parts[partition]
	if !ok {
		p = &partitionOffsets{done: make(map[int64]bool)}
		t.parts[partition] = p
	}
	if n := len(p.offsets); n > 0 && p.offsets[n-1] >= offset {
		// Rebalance redelivery: keep the slice sorted.
		i := sort.Search(n, func(i int) bool { return p.offsets[i] >= offset })
		if p.offsets[i] == offset {
			return
		}
		p.offsets = append(p.offsets, 0)
		copy(p.offsets[i+1:], p.offsets[i:])
		p.offsets[i] = offset
		return
	}
	p.offsets = append(p.offsets, offset)
}

// done marks offset answered. It returns the offset to commit, if the
// contiguous answered prefix grew.
func (t *offsetTracker) done(partition int, offset int64) (int64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.parts[partition]
	if !ok {
		return 0, false
	}
	p.done[offset] = true

	n := 0
	for n < len(p.offsets) && p.done[p.offsets[n]] {
		delete(p.done, p.offsets[n])
		n++
	}
	if n == 0 {
		return 0, false
	}
	upTo := p.offsets[n-1]
	p.offsets = p.offsets[n:]
	return upTo, true
}

// outstanding returns the number of fetched, uncommitted offsets.
func (t *offsetTracker) outstanding() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, p := range t.parts {
		n += len(p.offsets)
	}
	return n
}
