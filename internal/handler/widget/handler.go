package widget

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	chatService "github.com/zhouzirui/site-concierge/backend/internal/service/chat"
	widgetService "github.com/zhouzirui/site-concierge/backend/internal/service/widget"
	"github.com/zhouzirui/site-concierge/backend/pkg/utils"
)

const (
	pongWait     = 60 * time.Second
	pingInterval = 54 * time.Second
)

// Handler WebSocket聊天挂件处理器
type Handler struct {
	chatSvc   *chatService.Service
	responder widgetService.Responder
	opts      widgetService.Options
	upgrader  websocket.Upgrader
}

// New 创建WebSocket处理器
func New(chatSvc *chatService.Service, responder widgetService.Responder, opts widgetService.Options) *Handler {
	return &Handler{
		chatSvc:   chatSvc,
		responder: responder,
		opts:      opts,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes 注册WebSocket路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/ws/{sessionID}", h.handleWebSocket)
}

type inboundMessage struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

// SendMessage 访客发送的文本
type SendMessage struct {
	Text string `json:"text"`
}

// handleWebSocket 处理WebSocket连接，连接即视图：断开时取消所有待发送的回复
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	session, err := h.chatSvc.GetSession(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, chatService.ErrSessionNotFound) {
			utils.RespondError(w, http.StatusNotFound, "session not found")
			return
		}
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Str("component", "websocket").Msg("upgrade failed")
		return
	}
	defer conn.Close()

	log.Info().Str("component", "websocket").Str("session", sessionID).Msg("new connection")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	view := newWSView(conn, sessionID)
	driver := widgetService.New(session, view, h.responder, h.chatSvc, h.opts)
	defer driver.Close()

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		session.Touch(time.Now())
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go h.pingLoop(ctx, view)

	view.write("connected", map[string]any{
		"window":   driver.Window(),
		"messages": session.Len(),
	})
	if err := driver.Attach(ctx); err != nil {
		view.sendError("chat unavailable")
		return
	}

	for {
		var msg inboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("component", "websocket").Str("session", sessionID).Msg("read error")
			}
			log.Info().Str("component", "websocket").Str("session", sessionID).Msg("connection closed")
			return
		}

		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		if msg.SessionID != "" && msg.SessionID != sessionID {
			view.sendError("session mismatch")
			continue
		}

		h.handleMessage(ctx, driver, view, &msg)
	}
}

func (h *Handler) handleMessage(ctx context.Context, driver *widgetService.Driver, view *wsView, msg *inboundMessage) {
	switch msg.Type {
	case "send":
		var payload SendMessage
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			view.sendError("invalid send payload")
			return
		}
		if err := driver.Submit(ctx, payload.Text); err != nil {
			view.sendError(describeSubmitError(err))
		}
	case "toggle":
		driver.ToggleWindow()
	case "open":
		driver.OpenWindow()
	case "close":
		driver.CloseWindow()
	default:
		view.sendError("unsupported message type: " + msg.Type)
	}
}

func describeSubmitError(err error) string {
	switch {
	case errors.Is(err, widgetService.ErrReplyPending):
		return "a reply is still pending"
	case errors.Is(err, widgetService.ErrRateLimited):
		return "too many messages, slow down"
	case errors.Is(err, chatService.ErrSessionEnded):
		return "session ended"
	default:
		return "message could not be sent"
	}
}

// pingLoop 定期发送ping消息
func (h *Handler) pingLoop(ctx context.Context, view *wsView) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := view.ping(); err != nil {
				return
			}
		}
	}
}
