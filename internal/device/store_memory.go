package device

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore keeps records in process memory. Useful for development and
// tests; production deployments use the Postgres store for restart
// durability.
//
// The map is guarded by an RWMutex for lookup; each record carries its own
// mutex so that concurrent Updates for different devices do not contend.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*memoryRecord
}

type memoryRecord struct {
	mu  sync.Mutex
	rec Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*memoryRecord)}
}

func (s *MemoryStore) Create(ctx context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[rec.DeviceID]; exists {
		return ErrDeviceExists
	}
	s.records[rec.DeviceID] = &memoryRecord{rec: rec}
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, deviceID string) (Record, error) {
	s.mu.RLock()
	mr, exists := s.records[deviceID]
	s.mu.RUnlock()

	if !exists {
		return Record{}, ErrDeviceNotFound
	}

	mr.mu.Lock()
	defer mr.mu.Unlock()
	return mr.rec, nil
}

func (s *MemoryStore) GetByTokenHash(ctx context.Context, tokenHash string) (Record, error) {
	if tokenHash == "" {
		return Record{}, ErrDeviceNotFound
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, mr := range s.records {
		mr.mu.Lock()
		rec := mr.rec
		mr.mu.Unlock()
		if rec.TokenHash == tokenHash {
			return rec, nil
		}
	}
	return Record{}, ErrDeviceNotFound
}

func (s *MemoryStore) Update(ctx context.Context, deviceID string, fn func(*Record) error) (Record, error) {
	s.mu.RLock()
	mr, exists := s.records[deviceID]
	s.mu.RUnlock()

	if !exists {
		return Record{}, ErrDeviceNotFound
	}

	mr.mu.Lock()
	defer mr.mu.Unlock()

	updated := mr.rec
	if err := fn(&updated); err != nil {
		return Record{}, err
	}
	mr.rec = updated
	return updated, nil
}

func (s *MemoryStore) List(ctx context.Context) ([]Record, error) {
	return s.listWhere(func(Record) bool { return true })
}

func (s *MemoryStore) ListByState(ctx context.Context, state State) ([]Record, error) {
	return s.listWhere(func(r Record) bool { return r.State == state })
}

func (s *MemoryStore) listWhere(keep func(Record) bool) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]Record, 0, len(s.records))
	for _, mr := range s.records {
		mr.mu.Lock()
		rec := mr.rec
		mr.mu.Unlock()
		if keep(rec) {
			result = append(result, rec)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].RequestedAt.Before(result[j].RequestedAt)
	})
	return result, nil
}
