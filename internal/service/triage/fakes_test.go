package triage

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/zhouzirui/z-haven/backend/internal/model/chat"
	"github.com/zhouzirui/z-haven/backend/internal/model/escalation"
	"github.com/zhouzirui/z-haven/backend/internal/model/responder"
	triagemodel "github.com/zhouzirui/z-haven/backend/internal/model/triage"
	chatservice "github.com/zhouzirui/z-haven/backend/internal/service/chat"
)

// callLog records collaborator calls in the order they happened.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(format string, args ...any) {
	l.mu.Lock()
	l.calls = append(l.calls, fmt.Sprintf(format, args...))
	l.mu.Unlock()
}

func (l *callLog) entries() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

func (l *callLog) index(entry string) int {
	for i, c := range l.entries() {
		if c == entry {
			return i
		}
	}
	return -1
}

func (l *callLog) count(prefix string) int {
	n := 0
	for _, c := range l.entries() {
		if len(c) >= len(prefix) && c[:len(prefix)] == prefix {
			n++
		}
	}
	return n
}

type fakeStore struct {
	*chatservice.MemoryStore
	log          *callLog
	failIncoming bool
	failOutgoing bool
}

func newFakeStore(log *callLog) *fakeStore {
	return &fakeStore{MemoryStore: chatservice.NewMemoryStore(), log: log}
}

func (s *fakeStore) Append(ctx context.Context, ownerID string, direction chat.Direction, text string) (chat.Message, error) {
	if (direction == chat.Incoming && s.failIncoming) || (direction == chat.Outgoing && s.failOutgoing) {
		return chat.Message{}, errors.New("disk full")
	}
	s.log.add("append:%s:%s", direction, text)
	return s.MemoryStore.Append(ctx, ownerID, direction, text)
}

func (s *fakeStore) Clear(ctx context.Context, ownerID string) error {
	s.log.add("clear")
	return s.MemoryStore.Clear(ctx, ownerID)
}

type fakeClassifier struct {
	mu       sync.Mutex
	category triagemodel.Category
	errs     []error
	calls    int
	during   func()
}

func (c *fakeClassifier) Classify(_ context.Context, _ string) (triagemodel.Category, error) {
	c.mu.Lock()
	c.calls++
	var err error
	if len(c.errs) > 0 {
		err, c.errs = c.errs[0], c.errs[1:]
	}
	during := c.during
	c.mu.Unlock()

	if during != nil {
		during()
	}
	if err != nil {
		return "", err
	}
	return c.category, nil
}

type fakeDirectory struct {
	items []responder.Responder
	errs  []error
	calls int
}

func (d *fakeDirectory) FindAvailableResponder(ctx context.Context, role string) (responder.Responder, bool, error) {
	d.calls++
	if len(d.errs) > 0 {
		err := d.errs[0]
		d.errs = d.errs[1:]
		if err != nil {
			return responder.Responder{}, false, err
		}
	}
	return responder.NewMemoryDirectory(d.items).FindAvailableResponder(ctx, role)
}

func (d *fakeDirectory) List(ctx context.Context) ([]responder.Responder, error) {
	return d.items, nil
}

type failingEscalations struct {
	escalation.Store
	calls int
}

func (f *failingEscalations) Create(context.Context, escalation.Record) (escalation.Record, error) {
	f.calls++
	return escalation.Record{}, errors.New("constraint violation")
}

type fakeCompleter struct {
	reply   string
	err     error
	prompts []string
	during  func()
}

func (c *fakeCompleter) Complete(_ context.Context, prompt string) (string, error) {
	c.prompts = append(c.prompts, prompt)
	if c.during != nil {
		c.during()
	}
	if c.err != nil {
		return "", c.err
	}
	return c.reply, nil
}

type fakeDialer struct {
	log *callLog
	err error
}

func (d *fakeDialer) Dial(_ context.Context, number string) error {
	d.log.add("dial:%s", number)
	return d.err
}

type fakeNotifier struct {
	records []escalation.Record
	err     error
}

func (n *fakeNotifier) Notify(_ context.Context, record escalation.Record) error {
	n.records = append(n.records, record)
	return n.err
}
