package chat

import (
	"context"
	"errors"
)

var (
	ErrOwnerRequired    = errors.New("owner id is required")
	ErrInvalidDirection = errors.New("invalid message direction")
)

// Store persists conversation history per owner.
type Store interface {
	// Append records a message and returns it with ID and CreatedAt filled in.
	Append(ctx context.Context, ownerID string, direction Direction, text string) (Message, error)
	// ListByOwner returns the owner's messages oldest first.
	ListByOwner(ctx context.Context, ownerID string) ([]Message, error)
	Clear(ctx context.Context, ownerID string) error
}

// EventKind 描述会话记录的变更类型。
type EventKind string

const (
	EventAppended EventKind = "appended"
	EventCleared  EventKind = "cleared"
)

// Event is delivered to subscribers whenever an owner's history changes.
type Event struct {
	Kind    EventKind `json:"kind"`
	OwnerID string    `json:"ownerId"`
	Message *Message  `json:"message,omitempty"`
}

// Unsubscribe releases a subscription. Calling it more than once is a no-op.
type Unsubscribe func()
