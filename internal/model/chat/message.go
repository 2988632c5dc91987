package chat

import "time"

// Direction 标识消息方向：用户发出的为 incoming，系统回复为 outgoing。
type Direction string

const (
	Incoming Direction = "incoming"
	Outgoing Direction = "outgoing"
)

// Valid reports whether d is one of the two known directions.
func (d Direction) Valid() bool {
	return d == Incoming || d == Outgoing
}

// Message is one immutable turn of a conversation.
type Message struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"ownerId"`
	Direction Direction `json:"direction"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}
