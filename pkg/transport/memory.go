// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package transport

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Memory is a process-local Transport backed by a mutex-guarded FIFO per
// stream, with per-group pending-entry sets for ack accounting. It honors
// BLOCK by cooperatively waiting on a signal channel until a new entry
// arrives or the block duration elapses.
type Memory struct {
	mu      sync.Mutex
	streams map[string]*memStream
}

type memStream struct {
	entries []Entry
	seq     int64
	groups  map[string]*memGroup
	signal  chan struct{}
}

type memGroup struct {
	// cursor is the sequence number of the last entry delivered to any
	// consumer in this group (exclusive of pending re-delivery).
	cursor int64
	// pending maps entry id to the entry, for ack accounting.
	pending map[string]Entry
}

// NewMemory creates an empty in-memory transport.
func NewMemory() *Memory {
	return &Memory{streams: make(map[string]*memStream)}
}

func (m *Memory) stream(name string) *memStream {
	s, ok := m.streams[name]
	if !ok {
		s = &memStream{
			groups: make(map[string]*memGroup),
			signal: make(chan struct{}, 1),
		}
		m.streams[name] = s
	}
	return s
}

func notify(s *memStream) {
	select {
	case s.signal <- struct{}{}:
	default:
	}
}

// Append adds fields as a new entry and returns its monotonic entry id.
func (m *Memory) Append(ctx context.Context, stream string, fields map[string]string) (string, error) {
	m.mu.Lock()
	s := m.stream(stream)
	s.seq++
	id := formatEntryID(s.seq)
	s.entries = append(s.entries, Entry{ID: id, Fields: cloneFields(fields)})
	notify(s)
	m.mu.Unlock()
	return id, nil
}

// CreateGroup creates a consumer group, idempotently.
func (m *Memory) CreateGroup(ctx context.Context, stream, group, start string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.stream(stream)
	if _, ok := s.groups[group]; ok {
		return nil // BUSYGROUP-equivalent: swallowed
	}
	cursor := int64(0)
	if start == "$" {
		cursor = s.seq
	}
	s.groups[group] = &memGroup{cursor: cursor, pending: make(map[string]Entry)}
	return nil
}

// ReadGroup delivers up to count new entries to consumer, blocking up to
// blockMs for new data. Returns an empty slice on timeout.
func (m *Memory) ReadGroup(ctx context.Context, stream, group, consumer string, count int, blockMs int) ([]Entry, error) {
	deadline := time.Now().Add(time.Duration(blockMs) * time.Millisecond)
	unbounded := blockMs < 0

	for {
		m.mu.Lock()
		s := m.stream(stream)
		g, ok := s.groups[group]
		if !ok {
			g = &memGroup{pending: make(map[string]Entry)}
			s.groups[group] = g
		}

		var out []Entry
		for _, e := range s.entries {
			seq := parseEntryID(e.ID)
			if seq <= g.cursor {
				continue
			}
			out = append(out, e)
			g.cursor = seq
			g.pending[e.ID] = e
			if len(out) >= count && count > 0 {
				break
			}
		}
		sigCh := s.signal
		m.mu.Unlock()

		if len(out) > 0 {
			return out, nil
		}
		if blockMs == 0 {
			return nil, nil
		}

		var timeout <-chan time.Time
		if !unbounded {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				return nil, nil
			}
			t := time.NewTimer(remaining)
			defer t.Stop()
			timeout = t.C
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-sigCh:
			continue
		case <-timeout:
			return nil, nil
		}
	}
}

// Ack removes entryID from the group's pending set.
func (m *Memory) Ack(ctx context.Context, stream, group, entryID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.stream(stream)
	g, ok := s.groups[group]
	if !ok {
		return nil
	}
	delete(g.pending, entryID)
	return nil
}

// Range returns entries in [from, to], bounded by count. "-" and "+" are
// treated as open bounds, matching Redis XRANGE semantics.
func (m *Memory) Range(ctx context.Context, stream, from, to string, count int) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.stream(stream)

	lo, hi := int64(0), int64(1<<62)
	if from != "" && from != "-" {
		lo = parseEntryID(from)
	}
	if to != "" && to != "+" {
		hi = parseEntryID(to)
	}

	var out []Entry
	for _, e := range s.entries {
		seq := parseEntryID(e.ID)
		if seq < lo || seq > hi {
			continue
		}
		out = append(out, e)
		if count > 0 && len(out) >= count {
			break
		}
	}
	return out, nil
}

// Del removes the given entry ids from stream, including from every
// group's pending set.
func (m *Memory) Del(ctx context.Context, stream string, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.stream(stream)
	remove := make(map[string]bool, len(ids))
	for _, id := range ids {
		remove[id] = true
	}

	kept := s.entries[:0]
	for _, e := range s.entries {
		if remove[e.ID] {
			continue
		}
		kept = append(kept, e)
	}
	s.entries = kept

	for _, g := range s.groups {
		for _, id := range ids {
			delete(g.pending, id)
		}
	}
	return nil
}

// Len returns the number of entries currently in stream.
func (m *Memory) Len(ctx context.Context, stream string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.stream(stream).entries)), nil
}

// SupportsRange reports that the in-memory transport fully supports Range.
func (m *Memory) SupportsRange() bool { return true }

func formatEntryID(seq int64) string {
	return fmt.Sprintf("%d-0", seq)
}

// parseEntryID extracts the sequence component of a Redis-style "seq-0" id.
// Bare numeric ids (used in Range's from/to bounds) are accepted as-is.
func parseEntryID(id string) int64 {
	part := id
	if idx := strings.IndexByte(id, '-'); idx >= 0 {
		part = id[:idx]
	}
	n, err := strconv.ParseInt(part, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func cloneFields(fields map[string]string) map[string]string {
	out := make(map[string]string, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out
}
