package chat

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/zhouzirui/z-haven/backend/internal/logger"
	"github.com/zhouzirui/z-haven/backend/internal/model/chat"
)

// Service wraps a chat.Store and fans out history changes to subscribers.
type Service struct {
	store chat.Store
	log   *zap.Logger

	mu     sync.RWMutex
	nextID uint64
	subs   map[string]map[uint64]func(chat.Event)
}

// NewService returns a Service backed by store.
func NewService(store chat.Store, log *zap.Logger) *Service {
	return &Service{
		store: store,
		log:   logger.Module(log, "chat"),
		subs:  make(map[string]map[uint64]func(chat.Event)),
	}
}

// Append persists the message and notifies the owner's subscribers.
func (s *Service) Append(ctx context.Context, ownerID string, direction chat.Direction, text string) (chat.Message, error) {
	message, err := s.store.Append(ctx, ownerID, direction, text)
	if err != nil {
		return chat.Message{}, err
	}

	s.publish(chat.Event{Kind: chat.EventAppended, OwnerID: ownerID, Message: &message})
	return message, nil
}

// ListByOwner returns the owner's history oldest first.
func (s *Service) ListByOwner(ctx context.Context, ownerID string) ([]chat.Message, error) {
	return s.store.ListByOwner(ctx, ownerID)
}

// Clear drops the owner's history and notifies subscribers.
func (s *Service) Clear(ctx context.Context, ownerID string) error {
	if err := s.store.Clear(ctx, ownerID); err != nil {
		return err
	}

	s.publish(chat.Event{Kind: chat.EventCleared, OwnerID: ownerID})
	return nil
}

// Subscribe registers onChange for the owner's history. Callbacks run synchronously on the
// writer's goroutine and must not block; the returned Unsubscribe is idempotent.
func (s *Service) Subscribe(ownerID string, onChange func(chat.Event)) chat.Unsubscribe {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	if s.subs[ownerID] == nil {
		s.subs[ownerID] = make(map[uint64]func(chat.Event))
	}
	s.subs[ownerID][id] = onChange
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.subs[ownerID], id)
			if len(s.subs[ownerID]) == 0 {
				delete(s.subs, ownerID)
			}
		})
	}
}

// Subscribers reports how many callbacks are registered for the owner.
func (s *Service) Subscribers(ownerID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs[ownerID])
}

func (s *Service) publish(event chat.Event) {
	s.mu.RLock()
	callbacks := make([]func(chat.Event), 0, len(s.subs[event.OwnerID]))
	for _, cb := range s.subs[event.OwnerID] {
		callbacks = append(callbacks, cb)
	}
	s.mu.RUnlock()

	for _, cb := range callbacks {
		s.deliver(cb, event)
	}
}

func (s *Service) deliver(cb func(chat.Event), event chat.Event) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("subscriber panicked", zap.String("owner", event.OwnerID), zap.Any("panic", r))
		}
	}()
	cb(event)
}
