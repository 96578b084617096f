package audit

import (
	"context"
	"sync"
)

// MemorySink keeps entries in process memory.
type MemorySink struct {
	mu      sync.RWMutex
	entries []Entry
}

func NewMemorySink() *MemorySink {
	return &MemorySink{entries: make([]Entry, 0)}
}

func (m *MemorySink) Append(ctx context.Context, e Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := e.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e.clone())
	return nil
}

// List returns copies of up to limit most recent entries, oldest first.
// A non-positive limit returns everything.
func (m *MemorySink) List(_ context.Context, limit int) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	start := 0
	if limit > 0 && len(m.entries) > limit {
		start = len(m.entries) - limit
	}

	out := make([]Entry, 0, len(m.entries)-start)
	for _, e := range m.entries[start:] {
		out = append(out, e.clone())
	}
	return out, nil
}

func (m *MemorySink) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
