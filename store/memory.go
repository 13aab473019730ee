package store

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Memory keeps entries in process. It is mostly useful in tests and as the
// target of -dump when no database is configured.
type Memory struct {
	mu      sync.Mutex
	runID   string
	records []Record
	closed  bool
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{runID: uuid.NewString()}
}

func (m *Memory) Put(ctx context.Context, index uint64, e Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.records = append(m.records, Record{Index: index, Entry: e})
	return nil
}

func (m *Memory) RunID() string {
	return m.runID
}

// Records returns a copy of the stored records in arrival order.
func (m *Memory) Records(ctx context.Context) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Record, len(m.records))
	copy(out, m.records)
	return out, nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}
