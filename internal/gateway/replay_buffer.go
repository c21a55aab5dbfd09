package gateway

import "sync"

// replayEntry is one broadcast envelope kept for late joiners.
type replayEntry struct {
	Seq  int64
	Data []byte
}

// ReplayBuffer is a fixed-size ring of recent envelopes, oldest overwritten first.
// Safe for concurrent use.
type ReplayBuffer struct {
	mu      sync.RWMutex
	entries []replayEntry
	next    int
	size    int
}

// NewReplayBuffer creates a replay buffer with the given capacity.
func NewReplayBuffer(capacity int) *ReplayBuffer {
	if capacity <= 0 {
		capacity = DefaultAlertBacklog
	}
	return &ReplayBuffer{entries: make([]replayEntry, capacity)}
}

// Push stores a copy of data under seq.
func (rb *ReplayBuffer) Push(seq int64, data []byte) {
	cp := append([]byte(nil), data...)

	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.entries[rb.next] = replayEntry{Seq: seq, Data: cp}
	rb.next = (rb.next + 1) % len(rb.entries)
	if rb.size < len(rb.entries) {
		rb.size++
	}
}

// After returns retained entries with Seq > seq, oldest first.
func (rb *ReplayBuffer) After(seq int64) []replayEntry {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	var out []replayEntry
	start := rb.next - rb.size
	if start < 0 {
		start += len(rb.entries)
	}
	for i := 0; i < rb.size; i++ {
		e := rb.entries[(start+i)%len(rb.entries)]
		if e.Seq > seq {
			out = append(out, e)
		}
	}
	return out
}

// Len returns the number of entries currently in the buffer.
func (rb *ReplayBuffer) Len() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.size
}
