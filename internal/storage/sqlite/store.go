package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	_ "modernc.org/sqlite"

	"github.com/zhouzirui/z-haven/backend/internal/logger"
	"github.com/zhouzirui/z-haven/backend/internal/model/chat"
	"github.com/zhouzirui/z-haven/backend/internal/model/escalation"
	"github.com/zhouzirui/z-haven/backend/internal/model/responder"
)

// Store implements chat.Store and responder.Directory on SQLite; Escalations returns the
// escalation.Store view.
type Store struct {
	db  *sql.DB
	log *zap.Logger
}

// Open creates the database file if needed and applies the schema.
func Open(dbPath string, log *zap.Logger) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}

	// Single connection for SQLite.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &Store{db: db, log: logger.Module(log, "sqlite")}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}
	return store, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS messages (
		seq         INTEGER PRIMARY KEY AUTOINCREMENT,
		id          TEXT NOT NULL UNIQUE,
		owner_id    TEXT NOT NULL,
		direction   TEXT NOT NULL,
		text        TEXT NOT NULL,
		created_at  DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_owner ON messages(owner_id, seq);

	CREATE TABLE IF NOT EXISTS escalations (
		seq              INTEGER PRIMARY KEY AUTOINCREMENT,
		id               TEXT NOT NULL UNIQUE,
		owner_id         TEXT NOT NULL,
		owner_name       TEXT NOT NULL,
		responder_id     TEXT NOT NULL,
		responder_name   TEXT NOT NULL,
		contact_info     TEXT,
		originating_text TEXT NOT NULL,
		created_at       DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_escalations_owner ON escalations(owner_id);
	CREATE INDEX IF NOT EXISTS idx_escalations_responder ON escalations(responder_id);

	CREATE TABLE IF NOT EXISTS responders (
		id            TEXT PRIMARY KEY,
		display_name  TEXT NOT NULL,
		role          TEXT NOT NULL,
		contact_info  TEXT,
		available     INTEGER NOT NULL DEFAULT 1,
		created_at    DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_responders_role ON responders(role, available);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Append inserts a message.
func (s *Store) Append(ctx context.Context, ownerID string, direction chat.Direction, text string) (chat.Message, error) {
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
		CreatedAt: time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (id, owner_id, direction, text, created_at) VALUES (?, ?, ?, ?, ?)`,
		message.ID, message.OwnerID, string(message.Direction), message.Text, message.CreatedAt,
	)
	if err != nil {
		return chat.Message{}, fmt.Errorf("insert message: %w", err)
	}
	return message, nil
}

// ListByOwner returns the owner's messages in insertion order.
func (s *Store) ListByOwner(ctx context.Context, ownerID string) ([]chat.Message, error) {
	if ownerID == "" {
		return nil, chat.ErrOwnerRequired
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, owner_id, direction, text, created_at FROM messages WHERE owner_id = ? ORDER BY seq ASC`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	messages := make([]chat.Message, 0)
	for rows.Next() {
		var m chat.Message
		var direction string
		if err := rows.Scan(&m.ID, &m.OwnerID, &direction, &m.Text, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Direction = chat.Direction(direction)
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// Clear deletes every message for the owner.
func (s *Store) Clear(ctx context.Context, ownerID string) error {
	if ownerID == "" {
		return chat.ErrOwnerRequired
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE owner_id = ?`, ownerID)
	if err != nil {
		return fmt.Errorf("clear messages: %w", err)
	}
	return nil
}

func (s *Store) createEscalation(ctx context.Context, record escalation.Record) (escalation.Record, error) {
	record.ID = uuid.NewString()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO escalations (id, owner_id, owner_name, responder_id, responder_name, contact_info, originating_text, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID, record.OwnerID, record.OwnerName, record.ResponderID, record.ResponderName,
		nullableString(record.ContactInfo), record.OriginatingText, record.CreatedAt,
	)
	if err != nil {
		return escalation.Record{}, fmt.Errorf("insert escalation: %w", err)
	}
	return record, nil
}

func (s *Store) listEscalations(ctx context.Context, column, value string) ([]escalation.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, owner_id, owner_name, responder_id, responder_name, contact_info, originating_text, created_at
		 FROM escalations WHERE `+column+` = ? ORDER BY seq ASC`,
		value,
	)
	if err != nil {
		return nil, fmt.Errorf("query escalations: %w", err)
	}
	defer rows.Close()

	records := make([]escalation.Record, 0)
	for rows.Next() {
		var r escalation.Record
		var contact sql.NullString
		if err := rows.Scan(&r.ID, &r.OwnerID, &r.OwnerName, &r.ResponderID, &r.ResponderName, &contact, &r.OriginatingText, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan escalation: %w", err)
		}
		if contact.Valid {
			value := contact.String
			r.ContactInfo = &value
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Escalations exposes the escalation.Store view of the database. It is a separate value
// because chat.Store already claims ListByOwner on Store.
func (s *Store) Escalations() escalation.Store {
	return escalationView{s}
}

type escalationView struct{ s *Store }

func (v escalationView) Create(ctx context.Context, record escalation.Record) (escalation.Record, error) {
	return v.s.createEscalation(ctx, record)
}

func (v escalationView) ListByOwner(ctx context.Context, ownerID string) ([]escalation.Record, error) {
	return v.s.listEscalations(ctx, "owner_id", ownerID)
}

func (v escalationView) ListByResponder(ctx context.Context, responderID string) ([]escalation.Record, error) {
	return v.s.listEscalations(ctx, "responder_id", responderID)
}

// UpsertResponders seeds or refreshes directory entries.
func (s *Store) UpsertResponders(ctx context.Context, items []responder.Responder) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, r := range items {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO responders (id, display_name, role, contact_info, available) VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT(id) DO UPDATE SET display_name=excluded.display_name, role=excluded.role,
			 contact_info=excluded.contact_info, available=excluded.available`,
			r.ID, r.DisplayName, strings.ToLower(r.Role), nullableString(r.ContactInfo), r.Available,
		)
		if err != nil {
			return fmt.Errorf("upsert responder %s: %w", r.ID, err)
		}
	}
	return tx.Commit()
}

// FindAvailableResponder returns the earliest-registered available responder for the role.
func (s *Store) FindAvailableResponder(ctx context.Context, role string) (responder.Responder, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, display_name, role, contact_info, available FROM responders
		 WHERE role = ? AND available = 1 ORDER BY created_at ASC, id ASC LIMIT 1`,
		strings.ToLower(role),
	)

	r, err := scanResponder(row)
	if err == sql.ErrNoRows {
		return responder.Responder{}, false, nil
	}
	if err != nil {
		return responder.Responder{}, false, fmt.Errorf("query responder: %w", err)
	}
	return r, true, nil
}

// List returns the full directory.
func (s *Store) List(ctx context.Context) ([]responder.Responder, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, display_name, role, contact_info, available FROM responders ORDER BY created_at ASC, id ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("query responders: %w", err)
	}
	defer rows.Close()

	items := make([]responder.Responder, 0)
	for rows.Next() {
		r, err := scanResponder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan responder: %w", err)
		}
		items = append(items, r)
	}
	return items, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanResponder(row scanner) (responder.Responder, error) {
	var r responder.Responder
	var contact sql.NullString
	if err := row.Scan(&r.ID, &r.DisplayName, &r.Role, &contact, &r.Available); err != nil {
		return responder.Responder{}, err
	}
	if contact.Valid {
		value := contact.String
		r.ContactInfo = &value
	}
	return r, nil
}

func nullableString(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}
