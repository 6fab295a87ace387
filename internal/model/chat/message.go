package chat

import "time"

// Author identifies who wrote a transcript entry.
type Author string

const (
	AuthorUser Author = "user"
	AuthorBot  Author = "bot"
)

// Message is one immutable transcript entry. Text is display-safe: user
// text is escaped on creation, bot text comes from the fixed reply table.
type Message struct {
	ID        string    `json:"id"`
	SessionID string    `json:"sessionId"`
	Author    Author    `json:"author"`
	Text      string    `json:"text"`
	Markup    string    `json:"markup"`
	CreatedAt time.Time `json:"createdAt"`
}

// NewUserMessage escapes raw visitor input and renders it.
func NewUserMessage(id, sessionID, raw string, at time.Time) Message {
	text := EscapeText(raw)
	return Message{
		ID:        id,
		SessionID: sessionID,
		Author:    AuthorUser,
		Text:      text,
		Markup:    RenderMarkup(AuthorUser, text),
		CreatedAt: at,
	}
}

// NewBotMessage renders a trusted reply without escaping.
func NewBotMessage(id, sessionID, reply string, at time.Time) Message {
	return Message{
		ID:        id,
		SessionID: sessionID,
		Author:    AuthorBot,
		Text:      reply,
		Markup:    RenderMarkup(AuthorBot, reply),
		CreatedAt: at,
	}
}
