// Package triagetest builds a Workflow over in-memory collaborators for handler and CLI tests.
package triagetest

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/zhouzirui/z-haven/backend/internal/config"
	"github.com/zhouzirui/z-haven/backend/internal/model/escalation"
	"github.com/zhouzirui/z-haven/backend/internal/model/locale"
	"github.com/zhouzirui/z-haven/backend/internal/model/responder"
	triagemodel "github.com/zhouzirui/z-haven/backend/internal/model/triage"
	chatservice "github.com/zhouzirui/z-haven/backend/internal/service/chat"
	"github.com/zhouzirui/z-haven/backend/internal/service/triage"
)

// Classifier returns a fixed category.
type Classifier struct {
	Category triagemodel.Category
	Err      error
}

func (c *Classifier) Classify(context.Context, string) (triagemodel.Category, error) {
	return c.Category, c.Err
}

// Completer returns a fixed reply and remembers prompts.
type Completer struct {
	mu      sync.Mutex
	Reply   string
	Prompts []string
}

func (c *Completer) Complete(_ context.Context, prompt string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Prompts = append(c.Prompts, prompt)
	return c.Reply, nil
}

// Dialer remembers dialed numbers.
type Dialer struct {
	mu      sync.Mutex
	Numbers []string
}

func (d *Dialer) Dial(_ context.Context, number string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Numbers = append(d.Numbers, number)
	return nil
}

// Dialed returns a copy of the dialed numbers.
func (d *Dialer) Dialed() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.Numbers...)
}

// Env is a wired workflow with handles on its collaborators.
type Env struct {
	Workflow    *triage.Workflow
	Chat        *chatservice.Service
	Classifier  *Classifier
	Completer   *Completer
	Dialer      *Dialer
	Escalations *escalation.MemoryStore
	Directory   *responder.MemoryDirectory
}

// New wires a workflow whose classifier always answers category.
func New(t testing.TB, category triagemodel.Category) *Env {
	t.Helper()

	phone := "555"
	env := &Env{
		Chat:        chatservice.NewService(chatservice.NewMemoryStore(), zap.NewNop()),
		Classifier:  &Classifier{Category: category},
		Completer:   &Completer{Reply: "ok"},
		Dialer:      &Dialer{},
		Escalations: escalation.NewMemoryStore(),
		Directory: responder.NewMemoryDirectory([]responder.Responder{
			{ID: "1", DisplayName: "Dr. A", Role: responder.RolePsychiatrist, ContactInfo: &phone, Available: true},
		}),
	}

	wf, err := triage.New(config.TriageConfig{
		EmergencyNumber:   "14416",
		ResponderRole:     responder.RolePsychiatrist,
		ClassifyTimeout:   time.Second,
		LookupTimeout:     time.Second,
		CompletionTimeout: time.Second,
		WriteTimeout:      time.Second,
		DialTimeout:       time.Second,
		DefaultLocale:     locale.English,
	}, triage.Deps{
		Messages:    env.Chat,
		Classifier:  env.Classifier,
		Directory:   env.Directory,
		Escalations: env.Escalations,
		Completer:   env.Completer,
		Dialer:      env.Dialer,
		Log:         zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("triage.New: %v", err)
	}
	env.Workflow = wf
	return env
}
