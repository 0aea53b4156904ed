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
	"testing"
	"time"
)

func TestMemory_AppendAssignsMonotonicIDs(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	id1, err := m.Append(ctx, "requests", map[string]string{"a": "1"})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	id2, err := m.Append(ctx, "requests", map[string]string{"a": "2"})
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	if parseEntryID(id2) <= parseEntryID(id1) {
		t.Fatalf("expected monotonic ids, got %s then %s", id1, id2)
	}
}

func TestMemory_CreateGroupIsIdempotent(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	if err := m.CreateGroup(ctx, "requests", "coordinator", "0"); err != nil {
		t.Fatalf("create group: %v", err)
	}
	if err := m.CreateGroup(ctx, "requests", "coordinator", "0"); err != nil {
		t.Fatalf("re-create group should be swallowed, got: %v", err)
	}
}

func TestMemory_ReadGroupDeliversNewEntries(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	if err := m.CreateGroup(ctx, "requests", "coordinator", "0"); err != nil {
		t.Fatalf("create group: %v", err)
	}
	if _, err := m.Append(ctx, "requests", map[string]string{"corr_id": "c1"}); err != nil {
		t.Fatalf("append: %v", err)
	}

	entries, err := m.ReadGroup(ctx, "requests", "coordinator", "consumer-1", 10, 0)
	if err != nil {
		t.Fatalf("read group: %v", err)
	}
	if len(entries) != 1 || entries[0].Fields["corr_id"] != "c1" {
		t.Fatalf("expected one entry with corr_id c1, got %+v", entries)
	}

	// A second read with no new entries returns empty immediately (blockMs=0).
	entries, err = m.ReadGroup(ctx, "requests", "coordinator", "consumer-1", 10, 0)
	if err != nil {
		t.Fatalf("read group: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected no new entries, got %+v", entries)
	}
}

func TestMemory_ReadGroupBlocksUntilAppend(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	if err := m.CreateGroup(ctx, "requests", "coordinator", "0"); err != nil {
		t.Fatalf("create group: %v", err)
	}

	done := make(chan []Entry, 1)
	go func() {
		entries, err := m.ReadGroup(ctx, "requests", "coordinator", "c1", 10, 2000)
		if err != nil {
			t.Errorf("read group: %v", err)
		}
		done <- entries
	}()

	time.Sleep(20 * time.Millisecond)
	if _, err := m.Append(ctx, "requests", map[string]string{"corr_id": "late"}); err != nil {
		t.Fatalf("append: %v", err)
	}

	select {
	case entries := <-done:
		if len(entries) != 1 || entries[0].Fields["corr_id"] != "late" {
			t.Fatalf("expected the late entry to be delivered, got %+v", entries)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for blocked read to return")
	}
}

func TestMemory_ReadGroupTimesOutWithEmptySlice(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	if err := m.CreateGroup(ctx, "requests", "coordinator", "0"); err != nil {
		t.Fatalf("create group: %v", err)
	}

	start := time.Now()
	entries, err := m.ReadGroup(ctx, "requests", "coordinator", "c1", 10, 50)
	if err != nil {
		t.Fatalf("read group: %v", err)
	}
	if entries != nil {
		t.Fatalf("expected nil entries on timeout, got %+v", entries)
	}
	if time.Since(start) < 40*time.Millisecond {
		t.Fatal("expected read to actually wait for the block duration")
	}
}

func TestMemory_AckRemovesFromPending(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	if err := m.CreateGroup(ctx, "requests", "coordinator", "0"); err != nil {
		t.Fatalf("create group: %v", err)
	}
	id, _ := m.Append(ctx, "requests", map[string]string{"corr_id": "c1"})
	if _, err := m.ReadGroup(ctx, "requests", "coordinator", "c1", 10, 0); err != nil {
		t.Fatalf("read group: %v", err)
	}

	if err := m.Ack(ctx, "requests", "coordinator", id); err != nil {
		t.Fatalf("ack: %v", err)
	}

	m.mu.Lock()
	_, pending := m.streams["requests"].groups["coordinator"].pending[id]
	m.mu.Unlock()
	if pending {
		t.Fatal("expected entry to be removed from pending set after ack")
	}
}

func TestMemory_RangeRespectsBounds(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	var ids []string
	for i := 0; i < 5; i++ {
		id, _ := m.Append(ctx, "requests", map[string]string{"n": "x"})
		ids = append(ids, id)
	}

	entries, err := m.Range(ctx, "requests", "-", "+", 0)
	if err != nil {
		t.Fatalf("range: %v", err)
	}
	if len(entries) != 5 {
		t.Fatalf("expected 5 entries, got %d", len(entries))
	}

	entries, err = m.Range(ctx, "requests", ids[1], ids[3], 0)
	if err != nil {
		t.Fatalf("range: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries in bounded range, got %d", len(entries))
	}
}

func TestMemory_DelRemovesEntriesAndPending(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	if err := m.CreateGroup(ctx, "requests", "coordinator", "0"); err != nil {
		t.Fatalf("create group: %v", err)
	}
	id, _ := m.Append(ctx, "requests", map[string]string{"corr_id": "c1"})
	if _, err := m.ReadGroup(ctx, "requests", "coordinator", "c1", 10, 0); err != nil {
		t.Fatalf("read group: %v", err)
	}

	if err := m.Del(ctx, "requests", []string{id}); err != nil {
		t.Fatalf("del: %v", err)
	}

	n, err := m.Len(ctx, "requests")
	if err != nil {
		t.Fatalf("len: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected 0 entries after del, got %d", n)
	}

	m.mu.Lock()
	_, pending := m.streams["requests"].groups["coordinator"].pending[id]
	m.mu.Unlock()
	if pending {
		t.Fatal("expected del to also clear the entry from group pending sets")
	}
}
