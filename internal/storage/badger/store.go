package badger

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zhouzirui/z-haven/backend/internal/logger"
	"github.com/zhouzirui/z-haven/backend/internal/model/chat"
	"github.com/zhouzirui/z-haven/backend/internal/model/escalation"
)

// Store keeps messages and escalation records in BadgerDB.
//
// Keys are "msg:{hex(owner)}:{unix_nano padded to 19}:{uuid}" so a prefix scan returns an owner's
// messages in chronological order. IDs are hex encoded so no ID can be a key prefix of another
// ("a" and "a:b"). Escalations are written twice, once under the owner prefix and once under the
// responder prefix, inside the same transaction.
type Store struct {
	db  *badger.DB
	log *zap.Logger

	mu   sync.Mutex
	last int64
}

// Open opens (or creates) the database directory.
func Open(path string, log *zap.Logger) (*Store, error) {
	db, err := badger.Open(badger.DefaultOptions(path).WithLoggingLevel(badger.ERROR))
	if err != nil {
		return nil, fmt.Errorf("open badger at %s: %w", path, err)
	}
	return New(db, log), nil
}

// New wraps an already opened database.
func New(db *badger.DB, log *zap.Logger) *Store {
	return &Store{db: db, log: logger.Module(log, "badger")}
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// nextStamp returns a strictly increasing timestamp so keys never collide on ordering.
func (s *Store) nextStamp() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC().UnixNano()
	if now <= s.last {
		now = s.last + 1
	}
	s.last = now
	return time.Unix(0, now).UTC()
}

func messagePrefix(ownerID string) []byte {
	return []byte("msg:" + hex.EncodeToString([]byte(ownerID)) + ":")
}

func escalationPrefix(index, id string) []byte {
	return []byte("esc:" + index + ":" + hex.EncodeToString([]byte(id)) + ":")
}

func entryKey(prefix []byte, stamp time.Time, id string) []byte {
	return []byte(fmt.Sprintf("%s%019d:%s", prefix, stamp.UnixNano(), id))
}

// Append stores one message.
func (s *Store) Append(_ context.Context, ownerID string, direction chat.Direction, text string) (chat.Message, error) {
	if ownerID == "" {
		return chat.Message{}, chat.ErrOwnerRequired
	}
	if !direction.Valid() {
		return chat.Message{}, chat.ErrInvalidDirection
	}

	message := chat.Message{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Direction: direction,
		Text:      text,
		CreatedAt: s.nextStamp(),
	}
	key := entryKey(messagePrefix(ownerID), message.CreatedAt, message.ID)
	bytes, err := json.Marshal(message)
	if err != nil {
		return chat.Message{}, err
	}
	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, bytes)
	}); err != nil {
		return chat.Message{}, fmt.Errorf("store message: %w", err)
	}
	return message, nil
}

// ListByOwner returns the owner's messages oldest first.
func (s *Store) ListByOwner(_ context.Context, ownerID string) ([]chat.Message, error) {
	if ownerID == "" {
		return nil, chat.ErrOwnerRequired
	}

	messages := make([]chat.Message, 0)
	err := scanPrefix(s.db, messagePrefix(ownerID), func(value []byte) error {
		var m chat.Message
		if err := json.Unmarshal(value, &m); err != nil {
			return err
		}
		if m.OwnerID == ownerID {
			messages = append(messages, m)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return messages, nil
}

// Clear removes every message of the owner.
func (s *Store) Clear(_ context.Context, ownerID string) error {
	if ownerID == "" {
		return chat.ErrOwnerRequired
	}
	if err := s.db.DropPrefix(messagePrefix(ownerID)); err != nil {
		return fmt.Errorf("clear messages: %w", err)
	}
	return nil
}

// Escalations returns the escalation.Store view of the database.
func (s *Store) Escalations() escalation.Store {
	return escalationView{s}
}

type escalationView struct{ s *Store }

func (v escalationView) Create(_ context.Context, record escalation.Record) (escalation.Record, error) {
	record.ID = uuid.NewString()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = v.s.nextStamp()
	}
	bytes, err := json.Marshal(record)
	if err != nil {
		return escalation.Record{}, err
	}

	ownerKey := entryKey(escalationPrefix("owner", record.OwnerID), record.CreatedAt, record.ID)
	responderKey := entryKey(escalationPrefix("responder", record.ResponderID), record.CreatedAt, record.ID)
	err = v.s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(ownerKey, bytes); err != nil {
			return err
		}
		return txn.Set(responderKey, bytes)
	})
	if err != nil {
		return escalation.Record{}, fmt.Errorf("store escalation: %w", err)
	}
	return record, nil
}

func (v escalationView) ListByOwner(_ context.Context, ownerID string) ([]escalation.Record, error) {
	return v.list(escalationPrefix("owner", ownerID), func(r escalation.Record) bool { return r.OwnerID == ownerID })
}

func (v escalationView) ListByResponder(_ context.Context, responderID string) ([]escalation.Record, error) {
	return v.list(escalationPrefix("responder", responderID), func(r escalation.Record) bool { return r.ResponderID == responderID })
}

func (v escalationView) list(prefix []byte, keep func(escalation.Record) bool) ([]escalation.Record, error) {
	records := make([]escalation.Record, 0)
	err := scanPrefix(v.s.db, prefix, func(value []byte) error {
		var r escalation.Record
		if err := json.Unmarshal(value, &r); err != nil {
			return err
		}
		if keep(r) {
			records = append(records, r)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list escalations: %w", err)
	}
	return records, nil
}

func scanPrefix(db *badger.DB, prefix []byte, fn func(value []byte) error) error {
	return db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.Prefix = prefix
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := it.Item().Value(fn); err != nil {
				return err
			}
		}
		return nil
	})
}
