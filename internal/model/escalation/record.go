package escalation

import (
	"context"
	"time"
)

// Record is a pending human follow-up created for a distress message.
type Record struct {
	ID              string    `json:"id"`
	OwnerID         string    `json:"ownerId"`
	OwnerName       string    `json:"ownerName"`
	ResponderID     string    `json:"responderId"`
	ResponderName   string    `json:"responderName"`
	ContactInfo     *string   `json:"contactInfo,omitempty"`
	OriginatingText string    `json:"originatingText"`
	CreatedAt       time.Time `json:"createdAt"`
}

// Store persists escalation records. Records are never updated or deleted here.
type Store interface {
	Create(ctx context.Context, record Record) (Record, error)
	ListByOwner(ctx context.Context, ownerID string) ([]Record, error)
	ListByResponder(ctx context.Context, responderID string) ([]Record, error)
}
