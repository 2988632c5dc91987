package stream

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/zhouzirui/z-haven/backend/internal/logger"
	"github.com/zhouzirui/z-haven/backend/internal/model/chat"
	chatService "github.com/zhouzirui/z-haven/backend/internal/service/chat"
	"github.com/zhouzirui/z-haven/backend/internal/service/triage"
	"github.com/zhouzirui/z-haven/backend/pkg/utils"
)

const (
	eventBuffer      = 64
	defaultHeartbeat = 15 * time.Second
)

// Handler pushes transcript changes to clients over Server-Sent Events and WebSocket.
type Handler struct {
	workflow  *triage.Workflow
	chatSvc   *chatService.Service
	log       *zap.Logger
	heartbeat time.Duration
	upgrader  websocket.Upgrader
}

// New creates a stream handler.
func New(workflow *triage.Workflow, chatSvc *chatService.Service, log *zap.Logger) *Handler {
	return &Handler{
		workflow:  workflow,
		chatSvc:   chatSvc,
		log:       logger.Module(log, "http.stream"),
		heartbeat: defaultHeartbeat,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes 注册流式路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/stream/{ownerID}", h.handleSSE)
	r.Get("/ws/{ownerID}", h.handleWebSocket)
}

// subscription buffers an owner's transcript events between the writer goroutine that
// publishes them and the connection that forwards them.
type subscription struct {
	events      chan chat.Event
	unsubscribe chat.Unsubscribe
}

func (h *Handler) subscribe(ownerID string) *subscription {
	sub := &subscription{events: make(chan chat.Event, eventBuffer)}
	sub.unsubscribe = h.chatSvc.Subscribe(ownerID, func(event chat.Event) {
		select {
		case sub.events <- event:
		default:
			h.log.Warn("stream client lagging, event dropped",
				zap.String("owner", ownerID), zap.String("kind", string(event.Kind)))
		}
	})
	return sub
}

// handleSSE 以SSE推送会话快照及后续的记录变更
func (h *Handler) handleSSE(w http.ResponseWriter, r *http.Request) {
	ownerID := chi.URLParam(r, "ownerID")
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	ctx := r.Context()
	sub := h.subscribe(ownerID)
	defer sub.unsubscribe()

	snapshot, err := h.workflow.Snapshot(ctx, ownerID)
	if err != nil {
		respondSnapshotError(w, err)
		return
	}

	utils.SetupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)
	if err := utils.SendSSEEvent(w, flusher, "session", snapshot); err != nil {
		return
	}
	h.log.Debug("sse stream opened", zap.String("owner", ownerID))

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.log.Debug("sse stream closed", zap.String("owner", ownerID))
			return
		case event := <-sub.events:
			if err := utils.SendSSEEvent(w, flusher, string(event.Kind), event); err != nil {
				h.log.Debug("sse write failed", zap.String("owner", ownerID), zap.Error(err))
				return
			}
		case <-ticker.C:
			if err := utils.SendSSEComment(w, flusher, "heartbeat"); err != nil {
				return
			}
		}
	}
}

func respondSnapshotError(w http.ResponseWriter, err error) {
	if errors.Is(err, chat.ErrOwnerRequired) {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	utils.RespondErrorCode(w, http.StatusServiceUnavailable, triage.Code(err), "history unavailable")
}
