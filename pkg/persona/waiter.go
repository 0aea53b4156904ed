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

package persona

import "sync"

// waiterRegistry holds one mailbox channel per outstanding corr_id, the
// mechanism backing testable property 3 (at most one outstanding wait per
// corr_id at any moment): registering a corr_id already present replaces
// nothing and returns ok=false.
type waiterRegistry struct {
	mu      sync.Mutex
	waiters map[string]chan Event
}

func newWaiterRegistry() *waiterRegistry {
	return &waiterRegistry{waiters: make(map[string]chan Event)}
}

// register creates a buffered mailbox for corrID. ok is false if a waiter
// for this corrID is already registered.
func (r *waiterRegistry) register(corrID string) (ch chan Event, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.waiters[corrID]; exists {
		return nil, false
	}
	ch = make(chan Event, 1)
	r.waiters[corrID] = ch
	return ch, true
}

// deliver sends event to corrID's waiter, if one is registered. Returns
// false if there is no pending waiter (the event is a late arrival after
// cancellation, or addressed to a corr_id nobody is waiting on).
func (r *waiterRegistry) deliver(event Event) bool {
	r.mu.Lock()
	ch, ok := r.waiters[event.CorrID]
	r.mu.Unlock()
	if !ok {
		return false
	}
	select {
	case ch <- event:
		return true
	default:
		// Buffered channel already holds an undelivered event; this
		// corr_id should only ever receive one terminal event, so a full
		// buffer means a duplicate arrived before the first was consumed.
		return false
	}
}

// cancel removes corrID's waiter, used on context cancellation/workflow
// abort and once a result has been consumed. A pending event that arrives
// after cancel is simply undeliverable (deliver returns false) rather than
// panicking on a closed channel.
func (r *waiterRegistry) cancel(corrID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.waiters, corrID)
}
