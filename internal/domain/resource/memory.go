package resource

import (
	"context"
	"hash/fnv"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

const memShards = 32

type memShard struct {
	mu   sync.RWMutex
	rows map[string]*ExternalResource
}

// MemoryRepository keeps resources in process. Records are sharded by
// ExternalID so writers of different ids rarely share a lock, and each
// shard lock makes the read-check-write of one id atomic.
type MemoryRepository struct {
	shards [memShards]memShard
	seq    atomic.Int64
}

func NewMemoryRepository() *MemoryRepository {
	m := &MemoryRepository{}
	for i := range m.shards {
		m.shards[i].rows = make(map[string]*ExternalResource)
	}
	return m
}

func (m *MemoryRepository) shard(externalID string) *memShard {
	h := fnv.New32a()
	h.Write([]byte(externalID))
	return &m.shards[h.Sum32()%memShards]
}

func (m *MemoryRepository) FindByExternalID(ctx context.Context, externalID string) (*ExternalResource, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s := m.shard(externalID)
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rows[externalID]
	if !ok {
		return nil, ErrNotFound
	}
	return r.clone(), nil
}

func (m *MemoryRepository) Upsert(ctx context.Context, r *ExternalResource) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s := m.shard(r.ExternalID)
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.rows[r.ExternalID]; ok {
		r.ID = existing.ID
		r.CreatedAt = existing.CreatedAt
		s.rows[r.ExternalID] = r.clone()
		return false, nil
	}

	r.ID = m.seq.Add(1)
	r.CreatedAt = time.Now().UTC()
	s.rows[r.ExternalID] = r.clone()
	return true, nil
}

func (m *MemoryRepository) CountByType(ctx context.Context) (map[string]int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	counts := make(map[string]int64)
	for i := range m.shards {
		s := &m.shards[i]
		s.mu.RLock()
		for _, r := range s.rows {
			counts[r.ResourceType]++
		}
		s.mu.RUnlock()
	}
	return counts, nil
}

func (m *MemoryRepository) List(ctx context.Context, f ListFilter, limit, offset int) ([]*ExternalResource, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	var matched []*ExternalResource
	for i := range m.shards {
		s := &m.shards[i]
		s.mu.RLock()
		for _, r := range s.rows {
			if f.ResourceType != "" && r.ResourceType != f.ResourceType {
				continue
			}
			if !f.SyncedSince.IsZero() && !r.SyncedAt.After(f.SyncedSince) {
				continue
			}
			matched = append(matched, r.clone())
		}
		s.mu.RUnlock()
	}

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].SyncedAt.Equal(matched[j].SyncedAt) {
			return matched[i].SyncedAt.After(matched[j].SyncedAt)
		}
		return matched[i].ExternalID < matched[j].ExternalID
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
