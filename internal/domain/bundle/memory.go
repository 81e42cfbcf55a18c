package bundle

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
)

type MemoryRepository struct {
	mu        sync.RWMutex
	snapshots []*Snapshot
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

func (m *MemoryRepository) Create(ctx context.Context, s *Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cp := *s
	cp.Payload = append(json.RawMessage(nil), s.Payload...)
	m.mu.Lock()
	m.snapshots = append(m.snapshots, &cp)
	m.mu.Unlock()
	return nil
}

func (m *MemoryRepository) List(ctx context.Context, bundleType string, limit, offset int) ([]*Snapshot, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	m.mu.RLock()
	var matched []*Snapshot
	for _, s := range m.snapshots {
		if bundleType == "" || s.BundleType == bundleType {
			cp := *s
			matched = append(matched, &cp)
		}
	}
	m.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return matched[offset:end], total, nil
}

// Len returns the number of stored snapshots.
func (m *MemoryRepository) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.snapshots)
}
