package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zhouzirui/site-concierge/backend/internal/handler/chat"
	"github.com/zhouzirui/site-concierge/backend/internal/handler/reply"
	"github.com/zhouzirui/site-concierge/backend/internal/handler/stream"
	"github.com/zhouzirui/site-concierge/backend/internal/handler/widget"
	middlewarePkg "github.com/zhouzirui/site-concierge/backend/internal/middleware"
	replyModel "github.com/zhouzirui/site-concierge/backend/internal/model/reply"
	chatService "github.com/zhouzirui/site-concierge/backend/internal/service/chat"
	widgetService "github.com/zhouzirui/site-concierge/backend/internal/service/widget"
)

// RouterConfig carries the services the HTTP layer is wired to.
type RouterConfig struct {
	Catalog        replyModel.Store
	ChatService    *chatService.Service
	Responder      widgetService.Responder
	WidgetOptions  widgetService.Options
	AllowedOrigins []string
}

// NewRouter wires HTTP routes to core services.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.NewCORS(cfg.AllowedOrigins))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	chatHandler := chat.New(cfg.ChatService)
	replyHandler := reply.New(cfg.Catalog)
	streamHandler := stream.New(cfg.ChatService, cfg.Responder, cfg.WidgetOptions)
	widgetHandler := widget.New(cfg.ChatService, cfg.Responder, cfg.WidgetOptions)

	r.Route("/api", func(api chi.Router) {
		chatHandler.RegisterRoutes(api)
		replyHandler.RegisterRoutes(api)
		streamHandler.RegisterRoutes(api)
		widgetHandler.RegisterRoutes(api)
	})

	return r
}
