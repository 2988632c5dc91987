package stream

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/zhouzirui/z-haven/backend/internal/model/chat"
	"github.com/zhouzirui/z-haven/backend/internal/model/locale"
	"github.com/zhouzirui/z-haven/backend/internal/service/triage"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

// inbound frame types
const (
	frameMessage = "message"
	frameLocale  = "locale"
	frameToggle  = "toggle"
	frameClear   = "clear"
)

type inboundFrame struct {
	Type   string `json:"type"`
	Text   string `json:"text,omitempty"`
	Locale string `json:"locale,omitempty"`
}

type outcomeFrame struct {
	triage.Outcome
	Error string `json:"error,omitempty"`
}

type outboundFrame struct {
	Type      string           `json:"type"`
	Session   *triage.Snapshot `json:"session,omitempty"`
	Event     *chat.Event      `json:"event,omitempty"`
	Outcome   *outcomeFrame    `json:"outcome,omitempty"`
	Notice    string           `json:"notice,omitempty"`
	Error     string           `json:"error,omitempty"`
	Message   string           `json:"message,omitempty"`
	Timestamp int64            `json:"timestamp"`
}

// handleWebSocket 处理WebSocket连接：推送记录变更，并接受消息、语言切换与清空指令
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ownerID := chi.URLParam(r, "ownerID")

	sub := h.subscribe(ownerID)
	defer sub.unsubscribe()

	snapshot, err := h.workflow.Snapshot(r.Context(), ownerID)
	if err != nil {
		respondSnapshotError(w, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.String("owner", ownerID), zap.Error(err))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	out := make(chan outboundFrame, eventBuffer)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		// a dead writer unblocks the reader
		defer conn.Close()
		h.writeLoop(ctx, conn, sub, out)
	}()

	h.log.Info("websocket connected", zap.String("owner", ownerID))
	h.enqueue(ctx, out, outboundFrame{Type: "connected", Session: &snapshot})

	// message frames are submitted one at a time, in arrival order
	submissions := make(chan string, eventBuffer)
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		for text := range submissions {
			h.submit(ctx, ownerID, text, out)
		}
	}()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var frame inboundFrame
		if err := conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Warn("websocket read error", zap.String("owner", ownerID), zap.Error(err))
			}
			break
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))
		h.handleFrame(ctx, ownerID, frame, out, submissions)
	}

	close(submissions)
	cancel()
	<-workerDone
	<-writerDone
	h.log.Info("websocket disconnected", zap.String("owner", ownerID))
}

// handleFrame runs one client command. Message frames are handed to the connection's submit
// worker so a clear can arrive while a reply is still being computed. When the queue is full the
// reader blocks until the worker catches up.
func (h *Handler) handleFrame(ctx context.Context, ownerID string, frame inboundFrame, out chan<- outboundFrame, submissions chan<- string) {
	switch frame.Type {
	case frameMessage:
		select {
		case submissions <- frame.Text:
		case <-ctx.Done():
		}
	case frameLocale:
		loc, err := locale.Parse(frame.Locale)
		if err != nil {
			h.enqueue(ctx, out, outboundFrame{Type: "error", Error: "invalid_locale", Message: err.Error()})
			return
		}
		h.sendSnapshot(ctx, out, func() (triage.Snapshot, error) {
			return h.workflow.SetLocale(ctx, ownerID, loc)
		})
	case frameToggle:
		h.sendSnapshot(ctx, out, func() (triage.Snapshot, error) {
			return h.workflow.ToggleLocale(ctx, ownerID)
		})
	case frameClear:
		snapshot, err := h.workflow.Clear(ctx, ownerID)
		catalog := snapshot.Locale.Catalog()
		if err != nil {
			h.enqueue(ctx, out, outboundFrame{Type: "error", Error: triage.Code(err), Message: catalog.ClearFailed})
			return
		}
		h.enqueue(ctx, out, outboundFrame{Type: "session", Session: &snapshot, Notice: catalog.Cleared})
	default:
		h.enqueue(ctx, out, outboundFrame{Type: "error", Error: "unknown_frame", Message: "unsupported frame type " + frame.Type})
	}
}

func (h *Handler) submit(ctx context.Context, ownerID, text string, out chan<- outboundFrame) {
	outcome, err := h.workflow.Submit(ctx, ownerID, text)
	if err != nil && outcome.Incoming.ID == "" {
		h.enqueue(ctx, out, errorFrame(err))
		return
	}
	result := &outcomeFrame{Outcome: outcome, Error: triage.Code(outcome.Failure)}
	if err != nil {
		result.Error = triage.Code(err)
	}
	h.enqueue(ctx, out, outboundFrame{Type: "outcome", Outcome: result})
}

func (h *Handler) sendSnapshot(ctx context.Context, out chan<- outboundFrame, fn func() (triage.Snapshot, error)) {
	snapshot, err := fn()
	if err != nil {
		h.enqueue(ctx, out, errorFrame(err))
		return
	}
	h.enqueue(ctx, out, outboundFrame{Type: "session", Session: &snapshot})
}

func errorFrame(err error) outboundFrame {
	code := triage.Code(err)
	if errors.Is(err, chat.ErrOwnerRequired) {
		code = "invalid_request"
	}
	return outboundFrame{Type: "error", Error: code, Message: err.Error()}
}

func (h *Handler) enqueue(ctx context.Context, out chan<- outboundFrame, frame outboundFrame) {
	select {
	case out <- frame:
	case <-ctx.Done():
	}
}

// writeLoop is the only goroutine that writes to conn.
func (h *Handler) writeLoop(ctx context.Context, conn *websocket.Conn, sub *subscription, out <-chan outboundFrame) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	write := func(frame outboundFrame) bool {
		frame.Timestamp = time.Now().Unix()
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(frame); err != nil {
			h.log.Debug("websocket write failed", zap.Error(err))
			return false
		}
		return true
	}

	for {
		select {
		case <-ctx.Done():
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case frame := <-out:
			if !write(frame) {
				return
			}
		case event := <-sub.events:
			if !write(outboundFrame{Type: "event", Event: &event}) {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
