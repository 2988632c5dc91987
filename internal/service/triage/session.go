package triage

import (
	"sync"
	"time"

	"github.com/zhouzirui/z-haven/backend/internal/model/chat"
	"github.com/zhouzirui/z-haven/backend/internal/model/locale"
	triagemodel "github.com/zhouzirui/z-haven/backend/internal/model/triage"
)

// Session is the explicit per-owner conversation context. It is created by Workflow.Open and
// replaces any notion of a global "current user".
type Session struct {
	ownerID string

	// guarded by Workflow.mu
	refs     int
	lastUsed time.Time

	// cycle admits one submission at a time.
	cycle sync.Mutex
	// writes orders store writes against Clear so an epoch check and its write are atomic.
	writes sync.Mutex

	mu          sync.RWMutex
	displayName string
	locale      locale.Locale
	epoch       uint64
	state       triagemodel.State
	transcript  []chat.Message
	detected    bool
}

// Snapshot is a read-only copy of a session.
type Snapshot struct {
	OwnerID     string            `json:"ownerId"`
	DisplayName string            `json:"displayName,omitempty"`
	Locale      locale.Locale     `json:"locale"`
	Epoch       uint64            `json:"epoch"`
	State       triagemodel.State `json:"state"`
	Transcript  []chat.Message    `json:"transcript"`
}

func newSession(ownerID string, loc locale.Locale, history []chat.Message) *Session {
	return &Session{
		ownerID:    ownerID,
		locale:     loc,
		state:      triagemodel.StateIdle,
		transcript: history,
		detected:   len(history) > 0,
	}
}

func (s *Session) snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	transcript := make([]chat.Message, len(s.transcript))
	copy(transcript, s.transcript)
	return Snapshot{
		OwnerID:     s.ownerID,
		DisplayName: s.displayName,
		Locale:      s.locale,
		Epoch:       s.epoch,
		State:       s.state,
		Transcript:  transcript,
	}
}

func (s *Session) currentLocale() locale.Locale {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.locale
}

func (s *Session) setLocale(loc locale.Locale) {
	s.mu.Lock()
	s.locale = loc
	s.mu.Unlock()
}

func (s *Session) setDisplayName(name string) {
	s.mu.Lock()
	s.displayName = name
	s.mu.Unlock()
}

// ownerName falls back to the locale's default user name.
func (s *Session) ownerName() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.displayName != "" {
		return s.displayName
	}
	return s.locale.Catalog().DefaultUserName
}

func (s *Session) currentEpoch() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.epoch
}

func (s *Session) setState(state triagemodel.State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *Session) history() []chat.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]chat.Message, len(s.transcript))
	copy(out, s.transcript)
	return out
}

func (s *Session) append(msg chat.Message) {
	s.mu.Lock()
	s.transcript = append(s.transcript, msg)
	s.mu.Unlock()
}

// reset starts a new epoch with an empty transcript and returns the new epoch.
func (s *Session) reset() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.epoch++
	s.transcript = nil
	return s.epoch
}

// markDetected reports whether locale detection still has to run, and disables it afterwards.
func (s *Session) markDetected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.detected {
		return false
	}
	s.detected = true
	return true
}
