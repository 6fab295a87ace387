package chat

import "time"

// SessionInfo is the public record of a tab-scoped conversation.
type SessionInfo struct {
	ID        string    `json:"id"`
	VisitorID string    `json:"visitorId"`
	CreatedAt time.Time `json:"createdAt"`
}

// WindowState is the open/closed state of the chat window.
type WindowState string

const (
	WindowClosed WindowState = "closed"
	WindowOpen   WindowState = "open"
)
