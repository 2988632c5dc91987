package escalation

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps records in process memory, suitable for local runs and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	records []Record
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make([]Record, 0, 8)}
}

// Create stores a copy of record with ID and CreatedAt assigned.
func (s *MemoryStore) Create(_ context.Context, record Record) (Record, error) {
	record.ID = uuid.NewString()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	s.records = append(s.records, record)
	s.mu.Unlock()

	return record, nil
}

// ListByOwner returns the owner's records oldest first.
func (s *MemoryStore) ListByOwner(_ context.Context, ownerID string) ([]Record, error) {
	return s.filter(func(r Record) bool { return r.OwnerID == ownerID }), nil
}

// ListByResponder returns the records assigned to a responder oldest first.
func (s *MemoryStore) ListByResponder(_ context.Context, responderID string) ([]Record, error) {
	return s.filter(func(r Record) bool { return r.ResponderID == responderID }), nil
}

func (s *MemoryStore) filter(keep func(Record) bool) []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Record, 0)
	for _, r := range s.records {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}
