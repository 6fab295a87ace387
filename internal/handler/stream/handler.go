package stream

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	chatService "github.com/zhouzirui/site-concierge/backend/internal/service/chat"
	"github.com/zhouzirui/site-concierge/backend/internal/service/widget"
	"github.com/zhouzirui/site-concierge/backend/pkg/utils"
)

// Handler streams one chat exchange per request via Server-Sent Events.
type Handler struct {
	chatSvc   *chatService.Service
	responder widget.Responder
	opts      widget.Options
}

// New creates a new stream handler.
func New(chatSvc *chatService.Service, responder widget.Responder, opts widget.Options) *Handler {
	return &Handler{
		chatSvc:   chatSvc,
		responder: responder,
		opts:      opts,
	}
}

// RegisterRoutes registers the streaming endpoint.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/stream/{sessionID}", h.handleStream)
}

// handleStream submits the message query parameter and streams the view
// updates until the bot reply lands or the client goes away.
func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID := chi.URLParam(r, "sessionID")

	if !r.URL.Query().Has("message") {
		utils.RespondError(w, http.StatusBadRequest, "message query parameter is required")
		return
	}
	userMessage := r.URL.Query().Get("message")

	session, err := h.chatSvc.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, chatService.ErrSessionNotFound) {
			utils.RespondError(w, http.StatusNotFound, "session not found")
			return
		}
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	utils.SetupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)

	view := newSSEView(w, flusher, sessionID)
	driver := widget.New(session, view, h.responder, nil, h.opts)
	defer driver.Close()

	if err := driver.Submit(ctx, userMessage); err != nil {
		log.Warn().Err(err).Str("component", "stream").Str("session", sessionID).Msg("submit rejected")
		view.sendError(describeSubmitError(err))
		view.finish()
		return
	}

	if view.awaitingReply() {
		select {
		case <-view.done:
		case <-ctx.Done():
			log.Info().Str("component", "stream").Str("session", sessionID).Msg("client left before reply, cancelling")
			return
		}
	}

	view.finish()
	log.Debug().Str("component", "stream").Str("session", sessionID).Msg("exchange completed")
}

func describeSubmitError(err error) string {
	switch {
	case errors.Is(err, widget.ErrReplyPending):
		return "a reply is still pending"
	case errors.Is(err, widget.ErrRateLimited):
		return "too many messages, slow down"
	case errors.Is(err, chatService.ErrSessionEnded):
		return "session ended"
	default:
		return "message could not be sent"
	}
}
