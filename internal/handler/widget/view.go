package widget

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/site-concierge/backend/internal/model/chat"
)

const writeWait = 10 * time.Second

type outgoingMessage struct {
	Type      string      `json:"type"`
	SessionID string      `json:"sessionId,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// wsView renders driver updates as websocket frames. gorilla connections
// allow one concurrent writer, so every write goes through mu.
type wsView struct {
	conn      *websocket.Conn
	sessionID string
	mu        sync.Mutex
}

func newWSView(conn *websocket.Conn, sessionID string) *wsView {
	return &wsView{conn: conn, sessionID: sessionID}
}

func (v *wsView) write(msgType string, data interface{}) {
	v.mu.Lock()
	defer v.mu.Unlock()

	msg := outgoingMessage{
		Type:      msgType,
		SessionID: v.sessionID,
		Data:      data,
		Timestamp: time.Now().Unix(),
	}
	_ = v.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := v.conn.WriteJSON(msg); err != nil {
		log.Debug().Err(err).Str("component", "websocket").Str("type", msgType).Msg("write failed")
	}
}

func (v *wsView) ping() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

func (v *wsView) AppendMessage(msg chat.Message) { v.write("message", msg) }

func (v *wsView) ShowTyping() {
	v.write("typing", map[string]any{"active": true, "markup": chat.TypingMarkup})
}

func (v *wsView) HideTyping() { v.write("typing_end", nil) }

func (v *wsView) ClearInput() { v.write("clear_input", nil) }

func (v *wsView) ScrollToLatest() { v.write("scroll", nil) }

func (v *wsView) SetWindowOpen(open bool) { v.write("window", map[string]bool{"open": open}) }

func (v *wsView) sendError(message string) {
	v.write("error", map[string]string{"message": message})
}
