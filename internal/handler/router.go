package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/zhouzirui/z-haven/backend/internal/handler/chat"
	"github.com/zhouzirui/z-haven/backend/internal/handler/responder"
	"github.com/zhouzirui/z-haven/backend/internal/handler/stream"
	"github.com/zhouzirui/z-haven/backend/internal/logger"
	"github.com/zhouzirui/z-haven/backend/internal/model/escalation"
	responderModel "github.com/zhouzirui/z-haven/backend/internal/model/responder"
	chatService "github.com/zhouzirui/z-haven/backend/internal/service/chat"
	"github.com/zhouzirui/z-haven/backend/internal/service/triage"
	"github.com/zhouzirui/z-haven/backend/pkg/utils"
)

// Services groups what the HTTP layer needs.
type Services struct {
	Workflow    *triage.Workflow
	Chat        *chatService.Service
	Directory   responderModel.Directory
	Escalations escalation.Store
}

// NewRouter wires HTTP routes to core services.
func NewRouter(svc Services, log *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger.Module(log, "http")))
	r.Use(middleware.Recoverer)
	r.Use(cors)

	chatHandler := chat.New(svc.Workflow, svc.Chat, log)
	responderHandler := responder.New(svc.Directory, svc.Escalations, log)
	streamHandler := stream.New(svc.Workflow, svc.Chat, log)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(api chi.Router) {
		chatHandler.RegisterRoutes(api)
		responderHandler.RegisterRoutes(api)
		streamHandler.RegisterRoutes(api)
	})

	return r
}

// requestLogger 记录每个请求的方法、路径、状态码与耗时
func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				log.Info("request",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", ww.Status()),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("elapsed", time.Since(start)),
					zap.String("request_id", middleware.GetReqID(r.Context())),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
