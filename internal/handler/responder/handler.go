package responder

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zhouzirui/z-haven/backend/internal/logger"
	"github.com/zhouzirui/z-haven/backend/internal/model/escalation"
	"github.com/zhouzirui/z-haven/backend/internal/model/responder"
	"github.com/zhouzirui/z-haven/backend/pkg/utils"
)

// Handler 响应者目录与升级记录的HTTP处理器
type Handler struct {
	directory   responder.Directory
	escalations escalation.Store
	log         *zap.Logger
}

// New 创建响应者处理器
func New(directory responder.Directory, escalations escalation.Store, log *zap.Logger) *Handler {
	return &Handler{
		directory:   directory,
		escalations: escalations,
		log:         logger.Module(log, "http.responder"),
	}
}

// RegisterRoutes 注册响应者相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/responders", h.handleListResponders)
	r.Get("/responders/{responderID}/escalations", h.handleListByResponder)
	r.Get("/sessions/{ownerID}/escalations", h.handleListByOwner)
}

// handleListResponders 列出目录中的所有响应者
func (h *Handler) handleListResponders(w http.ResponseWriter, r *http.Request) {
	items, err := h.directory.List(r.Context())
	if err != nil {
		h.log.Error("list responders failed", zap.Error(err))
		utils.RespondError(w, http.StatusInternalServerError, "failed to list responders")
		return
	}
	utils.RespondJSON(w, http.StatusOK, items)
}

func (h *Handler) handleListByResponder(w http.ResponseWriter, r *http.Request) {
	records, err := h.escalations.ListByResponder(r.Context(), chi.URLParam(r, "responderID"))
	h.respondRecords(w, records, err)
}

func (h *Handler) handleListByOwner(w http.ResponseWriter, r *http.Request) {
	records, err := h.escalations.ListByOwner(r.Context(), chi.URLParam(r, "ownerID"))
	h.respondRecords(w, records, err)
}

func (h *Handler) respondRecords(w http.ResponseWriter, records []escalation.Record, err error) {
	if err != nil {
		h.log.Error("list escalations failed", zap.Error(err))
		utils.RespondError(w, http.StatusInternalServerError, "failed to list escalations")
		return
	}
	if records == nil {
		records = []escalation.Record{}
	}
	utils.RespondJSON(w, http.StatusOK, records)
}
