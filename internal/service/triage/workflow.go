package triage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/zhouzirui/z-haven/backend/internal/config"
	"github.com/zhouzirui/z-haven/backend/internal/logger"
	"github.com/zhouzirui/z-haven/backend/internal/model/chat"
	"github.com/zhouzirui/z-haven/backend/internal/model/escalation"
	"github.com/zhouzirui/z-haven/backend/internal/model/locale"
	"github.com/zhouzirui/z-haven/backend/internal/model/responder"
	triagemodel "github.com/zhouzirui/z-haven/backend/internal/model/triage"
	"github.com/zhouzirui/z-haven/backend/internal/service/ai"
	escalationservice "github.com/zhouzirui/z-haven/backend/internal/service/escalation"
	"github.com/zhouzirui/z-haven/backend/internal/service/telephony"
)

// Classifier labels one incoming message.
type Classifier interface {
	Classify(ctx context.Context, text string) (triagemodel.Category, error)
}

// Completer turns a prompt into a single reply.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Deps are the collaborators of the workflow. Dialer and Notifier are optional.
type Deps struct {
	Messages    chat.Store
	Classifier  Classifier
	Directory   responder.Directory
	Escalations escalation.Store
	Completer   Completer
	Dialer      telephony.Dialer
	Notifier    escalationservice.Notifier
	Log         *zap.Logger
}

// Outcome describes what one submission produced.
type Outcome struct {
	Category   triagemodel.Category `json:"category,omitempty"`
	Incoming   chat.Message         `json:"incoming"`
	Reply      *chat.Message        `json:"reply,omitempty"`
	Text       string               `json:"text"`
	Locale     locale.Locale        `json:"locale"`
	Epoch      uint64               `json:"epoch"`
	Dial       string               `json:"dial,omitempty"`
	Escalation *escalation.Record   `json:"escalation,omitempty"`
	Persisted  bool                 `json:"persisted"`
	// Stale is set when the conversation was cleared while the reply was being computed and the
	// reply was therefore dropped.
	Stale bool `json:"stale,omitempty"`
	// Failure is the handled failure of this cycle, if any. It never escapes Submit as an error.
	Failure error `json:"-"`
}

// Workflow runs the classify, route and respond cycle for every session.
type Workflow struct {
	cfg          config.TriageConfig
	messages     chat.Store
	classifier   Classifier
	directory    responder.Directory
	escalations  escalation.Store
	completer    Completer
	dialer       telephony.Dialer
	notifier     escalationservice.Notifier
	log          *zap.Logger
	retryBackoff time.Duration
	now          func() time.Time

	mu        sync.Mutex
	sessions  map[string]*Session
	lastSweep time.Time
}

const defaultSessionIdleTTL = 30 * time.Minute

// New validates deps and returns a Workflow.
func New(cfg config.TriageConfig, deps Deps) (*Workflow, error) {
	switch {
	case deps.Messages == nil:
		return nil, fmt.Errorf("message store is required")
	case deps.Classifier == nil:
		return nil, fmt.Errorf("classifier is required")
	case deps.Directory == nil:
		return nil, fmt.Errorf("responder directory is required")
	case deps.Escalations == nil:
		return nil, fmt.Errorf("escalation store is required")
	case deps.Completer == nil:
		return nil, fmt.Errorf("completer is required")
	}
	if strings.TrimSpace(cfg.EmergencyNumber) == "" {
		return nil, fmt.Errorf("emergency number is required")
	}
	if cfg.ResponderRole == "" {
		cfg.ResponderRole = responder.RolePsychiatrist
	}
	if cfg.DefaultLocale == "" {
		cfg.DefaultLocale = locale.Primary
	}
	if cfg.SessionIdleTTL <= 0 {
		cfg.SessionIdleTTL = defaultSessionIdleTTL
	}

	log := logger.Module(deps.Log, "triage")
	dialer := deps.Dialer
	if dialer == nil {
		dialer = telephony.NewLogDialer(deps.Log)
	}
	var notifier escalationservice.Notifier = escalationservice.NoopNotifier{}
	if deps.Notifier != nil {
		notifier = deps.Notifier
	}

	return &Workflow{
		cfg:          cfg,
		messages:     deps.Messages,
		classifier:   deps.Classifier,
		directory:    deps.Directory,
		escalations:  deps.Escalations,
		completer:    deps.Completer,
		dialer:       dialer,
		notifier:     notifier,
		log:          log,
		retryBackoff: 250 * time.Millisecond,
		now:          time.Now,
		sessions:     make(map[string]*Session),
	}, nil
}

// Open returns the owner's session, rebuilding it from the message store on first use.
// Non-empty displayName and loc override the current values.
func (w *Workflow) Open(ctx context.Context, ownerID, displayName string, loc locale.Locale) (Snapshot, error) {
	s, err := w.session(ctx, ownerID)
	if err != nil {
		return Snapshot{}, err
	}
	defer w.release(s)
	if name := strings.TrimSpace(displayName); name != "" {
		s.setDisplayName(name)
	}
	if loc != "" {
		s.setLocale(loc)
	}
	return s.snapshot(), nil
}

// Snapshot returns the current view of the owner's session.
func (w *Workflow) Snapshot(ctx context.Context, ownerID string) (Snapshot, error) {
	s, err := w.session(ctx, ownerID)
	if err != nil {
		return Snapshot{}, err
	}
	defer w.release(s)
	return s.snapshot(), nil
}

// SetLocale switches the presentation language. Stored messages are left untouched.
func (w *Workflow) SetLocale(ctx context.Context, ownerID string, loc locale.Locale) (Snapshot, error) {
	return w.Open(ctx, ownerID, "", loc)
}

// ToggleLocale flips between the two supported languages.
func (w *Workflow) ToggleLocale(ctx context.Context, ownerID string) (Snapshot, error) {
	s, err := w.session(ctx, ownerID)
	if err != nil {
		return Snapshot{}, err
	}
	defer w.release(s)
	s.mu.Lock()
	s.locale = s.locale.Toggle()
	s.mu.Unlock()
	return s.snapshot(), nil
}

// Clear starts a new epoch and wipes the owner's history. It may run while a submission is in
// flight; see Submit for how late replies are handled.
func (w *Workflow) Clear(ctx context.Context, ownerID string) (Snapshot, error) {
	s, err := w.session(ctx, ownerID)
	if err != nil {
		return Snapshot{}, err
	}
	defer w.release(s)

	s.writes.Lock()
	defer s.writes.Unlock()

	epoch := s.reset()
	_, err = withTimeout(ctx, w.cfg.WriteTimeout, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, w.messages.Clear(ctx, ownerID)
	})
	if err != nil {
		w.log.Error("clear history failed", zap.String("owner", ownerID), zap.Uint64("epoch", epoch), zap.Error(err))
		return s.snapshot(), fmt.Errorf("%w: clear history: %w", ErrPersistenceFailure, err)
	}

	w.log.Info("history cleared", zap.String("owner", ownerID), zap.Uint64("epoch", epoch))
	return s.snapshot(), nil
}

// Submit runs one full cycle for text and returns once an outgoing message has been persisted.
//
// The returned error is non-nil only when the incoming message could not be stored (the cycle is
// aborted before classification) or when the outgoing message could not be stored (the outcome
// still carries the text to show). Every other failure is reported through Outcome.Failure and a
// localized reply.
//
// Replies computed for an epoch that has since been cleared are dropped for conversational and
// generic-error replies. Emergency and distress replies are always stored and returned.
func (w *Workflow) Submit(ctx context.Context, ownerID, text string) (Outcome, error) {
	if strings.TrimSpace(text) == "" {
		return Outcome{}, ErrEmptyMessage
	}
	s, err := w.session(ctx, ownerID)
	if err != nil {
		return Outcome{}, err
	}
	defer w.release(s)

	s.cycle.Lock()
	defer s.cycle.Unlock()
	defer s.setState(triagemodel.StateIdle)

	w.detectLocale(s, text)

	incoming, epoch, err := w.persist(ctx, s, 0, chat.Incoming, text, false)
	if err != nil {
		w.log.Error("incoming message not stored, cycle aborted", zap.String("owner", ownerID), zap.Error(err))
		return Outcome{}, fmt.Errorf("%w: incoming message: %w", ErrPersistenceFailure, err)
	}
	log := w.log.With(zap.String("owner", ownerID), zap.Uint64("epoch", epoch))

	out := Outcome{Incoming: incoming, Epoch: epoch}

	s.setState(triagemodel.StateClassifying)
	category, err := retryOnce(ctx, log, "classify", w.cfg.ClassifyTimeout, w.retryBackoff,
		func(ctx context.Context) (triagemodel.Category, error) {
			return w.classifier.Classify(ctx, text)
		})
	if err != nil {
		log.Error("classification failed", zap.Error(err))
		return w.fail(ctx, s, out, fmt.Errorf("%w: %w", ErrClassificationFailure, err), false, log)
	}

	out.Category = category
	s.setState(triagemodel.RoutingState(category))
	log.Info("message classified", zap.String("category", string(category)))

	switch category {
	case triagemodel.Emergency:
		return w.handleEmergency(ctx, s, out, log)
	case triagemodel.Distress:
		return w.handleDistress(ctx, s, out, text, log)
	default:
		return w.handleConversation(ctx, s, out, log)
	}
}

// handleEmergency stores the acknowledgment first and dials afterwards, so the user has feedback
// even when the dial never completes. The dial runs even if the acknowledgment could not be stored.
func (w *Workflow) handleEmergency(ctx context.Context, s *Session, out Outcome, log *zap.Logger) (Outcome, error) {
	number := w.cfg.EmergencyNumber
	out.Locale = s.currentLocale()
	out.Text = out.Locale.Catalog().Emergency(number)
	out.Dial = telephony.URI(number)

	out, persistErr := w.reply(ctx, s, out, true, log)

	_, err := withTimeout(context.WithoutCancel(ctx), w.cfg.DialTimeout, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, w.dialer.Dial(ctx, number)
	})
	if err != nil {
		log.Error("emergency dial failed", zap.String("number", number), zap.Error(err))
		out.Failure = fmt.Errorf("%w: %w", ErrDialFailure, err)
	} else {
		log.Info("emergency dial requested", zap.String("number", number))
	}
	return out, persistErr
}

type lookupResult struct {
	responder responder.Responder
	found     bool
}

func (w *Workflow) handleDistress(ctx context.Context, s *Session, out Outcome, text string, log *zap.Logger) (Outcome, error) {
	result, err := retryOnce(ctx, log, "find_responder", w.cfg.LookupTimeout, w.retryBackoff,
		func(ctx context.Context) (lookupResult, error) {
			r, found, err := w.directory.FindAvailableResponder(ctx, w.cfg.ResponderRole)
			return lookupResult{responder: r, found: found}, err
		})
	if err != nil {
		log.Error("responder lookup failed", zap.String("role", w.cfg.ResponderRole), zap.Error(err))
		return w.fail(ctx, s, out, fmt.Errorf("responder lookup: %w", err), true, log)
	}
	if !result.found {
		log.Warn("no responder available", zap.String("role", w.cfg.ResponderRole))
		out.Failure = ErrNoResponderAvailable
		out.Locale = s.currentLocale()
		out.Text = out.Locale.Catalog().NoResponder
		return w.reply(ctx, s, out, true, log)
	}

	chosen := result.responder
	record, err := withTimeout(context.WithoutCancel(ctx), w.cfg.WriteTimeout, func(ctx context.Context) (escalation.Record, error) {
		return w.escalations.Create(ctx, escalation.Record{
			OwnerID:         s.ownerID,
			OwnerName:       s.ownerName(),
			ResponderID:     chosen.ID,
			ResponderName:   chosen.DisplayName,
			ContactInfo:     chosen.ContactInfo,
			OriginatingText: text,
		})
	})
	if err != nil {
		log.Error("escalation record not created", zap.String("responder", chosen.ID), zap.Error(err))
		return w.fail(ctx, s, out, fmt.Errorf("%w: escalation record: %w", ErrPersistenceFailure, err), true, log)
	}
	log.Info("escalation created", zap.String("record", record.ID), zap.String("responder", chosen.ID))

	if _, err := withTimeout(context.WithoutCancel(ctx), w.cfg.WriteTimeout, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, w.notifier.Notify(ctx, record)
	}); err != nil {
		log.Warn("escalation notify failed", zap.String("record", record.ID), zap.Error(err))
	}

	out.Escalation = &record
	out.Locale = s.currentLocale()
	out.Text = out.Locale.Catalog().Escalated(chosen.DisplayName, chosen.ContactInfo)
	return w.reply(ctx, s, out, true, log)
}

func (w *Workflow) handleConversation(ctx context.Context, s *Session, out Outcome, log *zap.Logger) (Outcome, error) {
	loc := s.currentLocale()
	prompt := ai.BuildConversationPrompt(loc, s.history(), w.cfg.TranscriptLimit)

	completion, err := withTimeout(ctx, w.cfg.CompletionTimeout, func(ctx context.Context) (string, error) {
		return w.completer.Complete(ctx, prompt)
	})
	if err != nil {
		log.Error("completion failed", zap.Error(err))
		return w.fail(ctx, s, out, fmt.Errorf("%w: %w", ErrCompletionFailure, err), false, log)
	}

	out.Locale = loc
	out.Text = completion
	return w.reply(ctx, s, out, false, log)
}

// fail replies with the generic apology and records failure on the outcome.
func (w *Workflow) fail(ctx context.Context, s *Session, out Outcome, failure error, always bool, log *zap.Logger) (Outcome, error) {
	out.Failure = failure
	out.Locale = s.currentLocale()
	out.Text = out.Locale.Catalog().GenericError
	return w.reply(ctx, s, out, always, log)
}

// reply stores out.Text as the outgoing message. Unless always is set, a reply whose epoch has
// been superseded by Clear is dropped instead.
func (w *Workflow) reply(ctx context.Context, s *Session, out Outcome, always bool, log *zap.Logger) (Outcome, error) {
	msg, _, err := w.persist(ctx, s, out.Epoch, chat.Outgoing, out.Text, !always)
	if errors.Is(err, errStaleEpoch) {
		log.Info("conversation cleared mid-flight, reply dropped")
		out.Stale = true
		return out, nil
	}
	if err != nil {
		log.Error("outgoing message not stored", zap.Error(err))
		return out, fmt.Errorf("%w: outgoing message: %w", ErrPersistenceFailure, err)
	}

	out.Reply = &msg
	out.Persisted = true
	return out, nil
}

var errStaleEpoch = errors.New("stale epoch")

// persist writes one message under the session's write lock and returns the epoch it was
// written in. With dropStale set the write is skipped when the session is no longer in epoch.
// Outgoing writes are detached from caller cancellation so a started cycle always ends with a
// stored reply.
func (w *Workflow) persist(ctx context.Context, s *Session, epoch uint64, direction chat.Direction, text string, dropStale bool) (chat.Message, uint64, error) {
	s.writes.Lock()
	defer s.writes.Unlock()

	current := s.currentEpoch()
	if dropStale && current != epoch {
		return chat.Message{}, current, errStaleEpoch
	}

	if direction == chat.Outgoing {
		ctx = context.WithoutCancel(ctx)
	}
	msg, err := withTimeout(ctx, w.cfg.WriteTimeout, func(ctx context.Context) (chat.Message, error) {
		return w.messages.Append(ctx, s.ownerID, direction, text)
	})
	if err != nil {
		return chat.Message{}, current, err
	}
	s.append(msg)
	return msg, current, nil
}

func (w *Workflow) detectLocale(s *Session, text string) {
	if !w.cfg.LocaleAutodetect || !s.markDetected() {
		return
	}
	if detected, ok := locale.Detect(text); ok && detected == locale.Tamil {
		s.setLocale(locale.Tamil)
		w.log.Info("session switched to detected locale", zap.String("owner", s.ownerID), zap.String("locale", string(detected)))
	}
}

// session returns the owner's session and holds it until release. Sessions nobody holds that
// have been idle for SessionIdleTTL are dropped and rebuilt from the store on next use, which
// also picks up history changed behind the workflow's back.
func (w *Workflow) session(ctx context.Context, ownerID string) (*Session, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, chat.ErrOwnerRequired
	}

	w.mu.Lock()
	w.evictIdleLocked(ownerID)
	s, ok := w.sessions[ownerID]
	if ok {
		s.refs++
	}
	w.mu.Unlock()
	if ok {
		return s, nil
	}

	history, err := retryOnce(ctx, w.log, "load_history", w.cfg.LookupTimeout, w.retryBackoff,
		func(ctx context.Context) ([]chat.Message, error) {
			return w.messages.ListByOwner(ctx, ownerID)
		})
	if err != nil {
		return nil, fmt.Errorf("%w: load history: %w", ErrPersistenceFailure, err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if existing, ok := w.sessions[ownerID]; ok {
		existing.refs++
		return existing, nil
	}
	s = newSession(ownerID, w.cfg.DefaultLocale, history)
	s.refs = 1
	s.lastUsed = w.now()
	w.sessions[ownerID] = s
	w.log.Debug("session opened", zap.String("owner", ownerID), zap.Int("history", len(history)))
	return s, nil
}

func (w *Workflow) release(s *Session) {
	w.mu.Lock()
	s.refs--
	s.lastUsed = w.now()
	w.mu.Unlock()
}

// evictIdleLocked drops idle sessions. ownerID is always checked; the rest of the map is swept at
// most once per TTL. Callers hold w.mu.
func (w *Workflow) evictIdleLocked(ownerID string) {
	now := w.now()
	ttl := w.cfg.SessionIdleTTL
	idle := func(s *Session) bool {
		return s.refs == 0 && now.Sub(s.lastUsed) >= ttl
	}

	if s, ok := w.sessions[ownerID]; ok && idle(s) {
		delete(w.sessions, ownerID)
		w.log.Debug("idle session evicted", zap.String("owner", ownerID))
	}
	if now.Sub(w.lastSweep) < ttl {
		return
	}
	w.lastSweep = now
	for id, s := range w.sessions {
		if idle(s) {
			delete(w.sessions, id)
			w.log.Debug("idle session evicted", zap.String("owner", id))
		}
	}
}
