package chat

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zhouzirui/z-haven/backend/internal/model/chat"
)

// MemoryStore keeps conversation history in process memory.
type MemoryStore struct {
	mu       sync.RWMutex
	messages map[string][]chat.Message
	now      func() time.Time
}

// NewMemoryStore bootstraps an empty in-memory store suitable for early iterations and tests.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		messages: make(map[string][]chat.Message),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Append adds a message to the owner's history.
func (s *MemoryStore) Append(_ context.Context, ownerID string, direction chat.Direction, text string) (chat.Message, error) {
	if ownerID == "" {
		return chat.Message{}, chat.ErrOwnerRequired
	}
	if !direction.Valid() {
		return chat.Message{}, chat.ErrInvalidDirection
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	created := s.now()
	// Keep creation times strictly increasing per owner so ordering by time matches insertion order.
	if history := s.messages[ownerID]; len(history) > 0 {
		if last := history[len(history)-1].CreatedAt; !created.After(last) {
			created = last.Add(time.Nanosecond)
		}
	}

	message := chat.Message{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Direction: direction,
		Text:      text,
		CreatedAt: created,
	}
	s.messages[ownerID] = append(s.messages[ownerID], message)
	return message, nil
}

// ListByOwner returns a copy of the owner's history, oldest first.
func (s *MemoryStore) ListByOwner(_ context.Context, ownerID string) ([]chat.Message, error) {
	if ownerID == "" {
		return nil, chat.ErrOwnerRequired
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	messages := s.messages[ownerID]
	copied := make([]chat.Message, len(messages))
	copy(copied, messages)
	return copied, nil
}

// Clear drops the owner's history.
func (s *MemoryStore) Clear(_ context.Context, ownerID string) error {
	if ownerID == "" {
		return chat.ErrOwnerRequired
	}

	s.mu.Lock()
	delete(s.messages, ownerID)
	s.mu.Unlock()
	return nil
}
