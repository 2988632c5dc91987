// Package app wires configuration into a running triage workflow. It is shared by the API server
// and the operator CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cloudwego/eino/components/model"
	"go.uber.org/zap"

	"github.com/zhouzirui/z-haven/backend/internal/analysis/crisis"
	"github.com/zhouzirui/z-haven/backend/internal/config"
	"github.com/zhouzirui/z-haven/backend/internal/handler"
	"github.com/zhouzirui/z-haven/backend/internal/model/chat"
	"github.com/zhouzirui/z-haven/backend/internal/model/escalation"
	"github.com/zhouzirui/z-haven/backend/internal/model/responder"
	"github.com/zhouzirui/z-haven/backend/internal/service/ai"
	chatservice "github.com/zhouzirui/z-haven/backend/internal/service/chat"
	"github.com/zhouzirui/z-haven/backend/internal/service/classifier"
	escalationservice "github.com/zhouzirui/z-haven/backend/internal/service/escalation"
	"github.com/zhouzirui/z-haven/backend/internal/service/telephony"
	"github.com/zhouzirui/z-haven/backend/internal/service/triage"
	badgerstore "github.com/zhouzirui/z-haven/backend/internal/storage/badger"
	sqlitestore "github.com/zhouzirui/z-haven/backend/internal/storage/sqlite"
)

// App holds the wired services.
type App struct {
	Workflow    *triage.Workflow
	Chat        *chatservice.Service
	Directory   responder.Directory
	Escalations escalation.Store

	log     *zap.Logger
	closers []func() error
}

// New builds the chat model from cfg.AI and wires everything around it.
func New(ctx context.Context, cfg *config.Config, log *zap.Logger) (*App, error) {
	if !cfg.AI.Enabled() {
		return nil, fmt.Errorf("%s credentials or model missing, the classifier cannot run", cfg.AI.Provider)
	}
	chatModel, err := cfg.AI.NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("create chat model: %w", err)
	}
	log.Info("chat model ready", zap.String("provider", cfg.AI.Provider))
	return NewWithModel(ctx, cfg, chatModel, log)
}

// NewWithModel wires the application around an existing chat model.
func NewWithModel(ctx context.Context, cfg *config.Config, chatModel model.ChatModel, log *zap.Logger) (*App, error) {
	if chatModel == nil {
		return nil, fmt.Errorf("chat model is required")
	}
	return build(ctx, cfg, chatModel, log)
}

// OpenStores wires persistence and the responder directory only. Workflow is nil.
func OpenStores(ctx context.Context, cfg *config.Config, log *zap.Logger) (*App, error) {
	return build(ctx, cfg, nil, log)
}

func build(ctx context.Context, cfg *config.Config, chatModel model.ChatModel, log *zap.Logger) (*App, error) {
	a := &App{log: log}
	if err := a.wire(ctx, cfg, chatModel); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) wire(ctx context.Context, cfg *config.Config, chatModel model.ChatModel) error {
	seed, err := loadResponders(cfg.Store.RespondersFile)
	if err != nil {
		return err
	}

	messages, err := a.openStores(ctx, cfg.Store, seed)
	if err != nil {
		return err
	}
	a.Chat = chatservice.NewService(messages, a.log)
	if chatModel == nil {
		return nil
	}

	completion, err := ai.NewService(ctx, chatModel, a.log)
	if err != nil {
		return fmt.Errorf("create completion service: %w", err)
	}

	classifierCfg := classifier.Config{CacheTTL: cfg.Triage.ClassifyCacheTTL}
	if cfg.Triage.LexiconEnabled {
		screen, err := crisis.NewScreen(nil)
		if err != nil {
			return fmt.Errorf("build crisis lexicon: %w", err)
		}
		classifierCfg.Screen = screen
	}
	classifierSvc, err := classifier.NewService(ctx, chatModel, classifierCfg, a.log)
	if err != nil {
		return fmt.Errorf("create classifier: %w", err)
	}

	var dialer telephony.Dialer = telephony.NewLogDialer(a.log)
	if cfg.Telephony.WebhookURL != "" {
		dialer = telephony.NewWebhookDialer(cfg.Telephony.WebhookURL, &http.Client{Timeout: cfg.Triage.DialTimeout}, a.log)
	}

	var notifier escalationservice.Notifier = escalationservice.NoopNotifier{}
	if cfg.Events.NATSURL != "" {
		nats, err := escalationservice.NewNATSNotifier(cfg.Events.NATSURL, a.log)
		if err != nil {
			a.log.Warn("escalation notifier unavailable, continuing without follow-up events", zap.Error(err))
		} else {
			notifier = nats
			a.closers = append(a.closers, func() error { nats.Close(); return nil })
		}
	}

	a.Workflow, err = triage.New(cfg.Triage, triage.Deps{
		Messages:    a.Chat,
		Classifier:  classifierSvc,
		Directory:   a.Directory,
		Escalations: a.Escalations,
		Completer:   completion,
		Dialer:      dialer,
		Notifier:    notifier,
		Log:         a.log,
	})
	if err != nil {
		return fmt.Errorf("create workflow: %w", err)
	}
	return nil
}

// openStores selects the persistence driver. The responder directory lives in SQLite when that
// driver is used and in memory otherwise.
func (a *App) openStores(ctx context.Context, cfg config.StoreConfig, seed []responder.Responder) (chat.Store, error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		store, err := sqlitestore.Open(cfg.SQLitePath, a.log)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, store.Close)

		seedCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := store.UpsertResponders(seedCtx, seed); err != nil {
			return nil, fmt.Errorf("seed responders: %w", err)
		}
		a.Directory = store
		a.Escalations = store.Escalations()
		a.log.Info("using sqlite store", zap.String("path", cfg.SQLitePath))
		return store, nil

	case config.DriverBadger:
		store, err := badgerstore.Open(cfg.BadgerPath, a.log)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, store.Close)
		a.Directory = responder.NewMemoryDirectory(seed)
		a.Escalations = store.Escalations()
		a.log.Info("using badger store", zap.String("path", cfg.BadgerPath))
		return store, nil

	default:
		a.Directory = responder.NewMemoryDirectory(seed)
		a.Escalations = escalation.NewMemoryStore()
		a.log.Info("using in-memory store, history is lost on restart")
		return chatservice.NewMemoryStore(), nil
	}
}

func loadResponders(path string) ([]responder.Responder, error) {
	if path == "" {
		return responder.Seed(), nil
	}
	items, err := responder.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load responders file: %w", err)
	}
	return items, nil
}

// Router returns the HTTP API for the wired services.
func (a *App) Router() http.Handler {
	return handler.NewRouter(handler.Services{
		Workflow:    a.Workflow,
		Chat:        a.Chat,
		Directory:   a.Directory,
		Escalations: a.Escalations,
	}, a.log)
}

// Close releases stores and connections in reverse order of creation.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
