package synclog

import (
	"context"
	"sync"
	"time"
)

// MemoryLog keeps events in memory. It backs unit tests and single-node
// deployments that run without Postgres.
type MemoryLog struct {
	mu     sync.Mutex
	events []Event
	nextID int64
}

func NewMemoryLog() *MemoryLog {
	return &MemoryLog{nextID: 1}
}

func (l *MemoryLog) Append(_ context.Context, e Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	e.ID = l.nextID
	l.nextID++
	l.events = append(l.events, e)
	return nil
}

func (l *MemoryLog) List(_ context.Context, f Filter) ([]Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	limit := f.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	var out []Event
	for _, e := range l.events {
		if f.ItemID != "" && e.ItemID != f.ItemID {
			continue
		}
		if f.CatalogRef != "" && e.CatalogRef != f.CatalogRef {
			continue
		}
		if f.Kind != "" && e.Kind != f.Kind {
			continue
		}
		out = append(out, e)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}
