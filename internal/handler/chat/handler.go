package chat

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/zhouzirui/z-haven/backend/internal/logger"
	"github.com/zhouzirui/z-haven/backend/internal/model/chat"
	"github.com/zhouzirui/z-haven/backend/internal/model/locale"
	chatService "github.com/zhouzirui/z-haven/backend/internal/service/chat"
	"github.com/zhouzirui/z-haven/backend/internal/service/triage"
	"github.com/zhouzirui/z-haven/backend/pkg/utils"
)

// Handler 会话与消息的HTTP处理器
type Handler struct {
	workflow *triage.Workflow
	chatSvc  *chatService.Service
	validate *validator.Validate
	log      *zap.Logger
}

// New 创建聊天处理器
func New(workflow *triage.Workflow, chatSvc *chatService.Service, log *zap.Logger) *Handler {
	return &Handler{
		workflow: workflow,
		chatSvc:  chatSvc,
		validate: validator.New(),
		log:      logger.Module(log, "http.chat"),
	}
}

// RegisterRoutes 注册聊天相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/sessions", h.handleOpenSession)
	r.Route("/sessions/{ownerID}", func(r chi.Router) {
		r.Get("/", h.handleGetSession)
		r.Get("/messages", h.handleListMessages)
		r.Post("/messages", h.handleSubmit)
		r.Delete("/messages", h.handleClear)
		r.Put("/locale", h.handleSetLocale)
		r.Post("/locale/toggle", h.handleToggleLocale)
	})
}

type openSessionRequest struct {
	OwnerID     string `json:"ownerId" validate:"required,max=128"`
	DisplayName string `json:"displayName" validate:"max=128"`
	Locale      string `json:"locale" validate:"omitempty,max=16"`
}

type submitRequest struct {
	Text string `json:"text" validate:"required,max=4000"`
}

type localeRequest struct {
	Locale string `json:"locale" validate:"required,max=16"`
}

type outcomeResponse struct {
	triage.Outcome
	Error string `json:"error,omitempty"`
}

type clearResponse struct {
	Session triage.Snapshot `json:"session"`
	Notice  string          `json:"notice"`
}

// handleOpenSession 打开（或恢复）一个会话，历史记录从存储中重建
func (h *Handler) handleOpenSession(w http.ResponseWriter, r *http.Request) {
	var payload openSessionRequest
	if !h.decode(w, r, &payload) {
		return
	}

	var loc locale.Locale
	if payload.Locale != "" {
		parsed, err := locale.Parse(payload.Locale)
		if err != nil {
			utils.RespondError(w, http.StatusBadRequest, err.Error())
			return
		}
		loc = parsed
	}

	snapshot, err := h.workflow.Open(r.Context(), payload.OwnerID, payload.DisplayName, loc)
	if err != nil {
		h.respondWorkflowError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusCreated, snapshot)
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.workflow.Snapshot(r.Context(), chi.URLParam(r, "ownerID"))
	if err != nil {
		h.respondWorkflowError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, snapshot)
}

func (h *Handler) handleListMessages(w http.ResponseWriter, r *http.Request) {
	messages, err := h.chatSvc.ListByOwner(r.Context(), chi.URLParam(r, "ownerID"))
	if err != nil {
		h.respondWorkflowError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, messages)
}

// handleSubmit 提交一条用户消息并返回本轮处理结果
func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var payload submitRequest
	if !h.decode(w, r, &payload) {
		return
	}

	ownerID := chi.URLParam(r, "ownerID")
	outcome, err := h.workflow.Submit(r.Context(), ownerID, payload.Text)
	if err != nil && outcome.Incoming.ID == "" {
		// 用户消息未能保存，本轮没有任何回复
		h.respondWorkflowError(w, err)
		return
	}

	resp := outcomeResponse{Outcome: outcome, Error: triage.Code(outcome.Failure)}
	if err != nil {
		h.log.Warn("reply shown but not stored", zap.String("owner", ownerID), zap.Error(err))
		resp.Error = triage.Code(err)
	}
	utils.RespondJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleClear(w http.ResponseWriter, r *http.Request) {
	ownerID := chi.URLParam(r, "ownerID")
	snapshot, err := h.workflow.Clear(r.Context(), ownerID)
	catalog := snapshot.Locale.Catalog()
	if err != nil {
		if errors.Is(err, chat.ErrOwnerRequired) {
			utils.RespondError(w, http.StatusBadRequest, err.Error())
			return
		}
		utils.RespondErrorCode(w, http.StatusServiceUnavailable, triage.Code(err), catalog.ClearFailed)
		return
	}
	utils.RespondJSON(w, http.StatusOK, clearResponse{Session: snapshot, Notice: catalog.Cleared})
}

func (h *Handler) handleSetLocale(w http.ResponseWriter, r *http.Request) {
	var payload localeRequest
	if !h.decode(w, r, &payload) {
		return
	}
	loc, err := locale.Parse(payload.Locale)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	snapshot, err := h.workflow.SetLocale(r.Context(), chi.URLParam(r, "ownerID"), loc)
	if err != nil {
		h.respondWorkflowError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, snapshot)
}

func (h *Handler) handleToggleLocale(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.workflow.ToggleLocale(r.Context(), chi.URLParam(r, "ownerID"))
	if err != nil {
		h.respondWorkflowError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, snapshot)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

func (h *Handler) respondWorkflowError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, chat.ErrOwnerRequired), errors.Is(err, triage.ErrEmptyMessage):
		utils.RespondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, triage.ErrPersistenceFailure):
		h.log.Error("storage unavailable", zap.Error(err))
		utils.RespondErrorCode(w, http.StatusServiceUnavailable, triage.Code(err), "message could not be saved")
	default:
		h.log.Error("request failed", zap.Error(err))
		utils.RespondError(w, http.StatusInternalServerError, "internal error")
	}
}
