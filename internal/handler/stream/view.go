package stream

import (
	"net/http"
	"sync"

	"github.com/zhouzirui/site-concierge/backend/internal/model/chat"
	"github.com/zhouzirui/site-concierge/backend/pkg/utils"
)

// StreamEvent is the payload of every SSE frame.
type StreamEvent struct {
	SessionID string        `json:"sessionId"`
	Message   *chat.Message `json:"message,omitempty"`
	Markup    string        `json:"markup,omitempty"`
	Open      *bool         `json:"open,omitempty"`
	Finished  bool          `json:"finished,omitempty"`
	Error     string        `json:"error,omitempty"`
}

// sseView renders one exchange as Server-Sent Events. done closes once the
// bot message has been rendered and scrolled into view.
type sseView struct {
	w         http.ResponseWriter
	flusher   http.Flusher
	sessionID string

	mu       sync.Mutex
	typing   bool
	botSeen  bool
	finished bool
	done     chan struct{}
}

func newSSEView(w http.ResponseWriter, flusher http.Flusher, sessionID string) *sseView {
	return &sseView{
		w:         w,
		flusher:   flusher,
		sessionID: sessionID,
		done:      make(chan struct{}),
	}
}

func (v *sseView) send(event string, payload StreamEvent) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.sendLocked(event, payload)
}

func (v *sseView) sendLocked(event string, payload StreamEvent) {
	if v.finished {
		return
	}
	payload.SessionID = v.sessionID
	_ = utils.SendSSEEvent(v.w, v.flusher, event, payload)
}

func (v *sseView) AppendMessage(msg chat.Message) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if msg.Author == chat.AuthorBot {
		v.botSeen = true
	}
	v.sendLocked("message", StreamEvent{Message: &msg})
}

func (v *sseView) ShowTyping() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.typing = true
	v.sendLocked("typing", StreamEvent{Markup: chat.TypingMarkup})
}

func (v *sseView) HideTyping() {
	v.send("typing_end", StreamEvent{})
}

func (v *sseView) ClearInput() {
	v.send("clear_input", StreamEvent{})
}

func (v *sseView) ScrollToLatest() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.sendLocked("scroll", StreamEvent{})
	if v.botSeen {
		select {
		case <-v.done:
		default:
			close(v.done)
		}
	}
}

func (v *sseView) SetWindowOpen(open bool) {
	v.send("window", StreamEvent{Open: &open})
}

// awaitingReply reports whether the driver started a reply.
func (v *sseView) awaitingReply() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.typing
}

func (v *sseView) sendError(message string) {
	v.send("error", StreamEvent{Error: message})
}

// finish writes the terminal frame; later writes are dropped.
func (v *sseView) finish() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.sendLocked("end", StreamEvent{Finished: true})
	v.finished = true
}
