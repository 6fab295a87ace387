package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/zhouzirui/site-concierge/backend/internal/model/chat"
)

// Session is the conversation state of one browser tab. The transcript is
// append-only and every append is persisted before it becomes visible.
type Session struct {
	info    chat.SessionInfo
	store   TranscriptStore
	limiter *rate.Limiter

	mu         sync.Mutex
	transcript []chat.Message
	pending    bool
	ended      bool
	views      int
	lastActive time.Time
}

// transcriptRecord is the persisted form of a session.
type transcriptRecord struct {
	Session  chat.SessionInfo `json:"session"`
	Messages []chat.Message   `json:"messages"`
}

func newSession(info chat.SessionInfo, messages []chat.Message, store TranscriptStore, limiter *rate.Limiter, now time.Time) *Session {
	if messages == nil {
		messages = make([]chat.Message, 0, 16)
	}
	return &Session{
		info:       info,
		store:      store,
		limiter:    limiter,
		transcript: messages,
		lastActive: now,
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.info.ID }

// VisitorID returns the durable visitor identifier bound to the session.
func (s *Session) VisitorID() string { return s.info.VisitorID }

// Info returns the public session record.
func (s *Session) Info() chat.SessionInfo { return s.info }

// Transcript returns a copy of the messages in insertion order.
func (s *Session) Transcript() []chat.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := make([]chat.Message, len(s.transcript))
	copy(copied, s.transcript)
	return copied
}

// Len returns the number of messages in the transcript.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.transcript)
}

// Append adds msg to the transcript and persists the whole transcript. The
// in-memory append stands even when persisting fails.
func (s *Session) Append(ctx context.Context, msg chat.Message) error {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return ErrSessionEnded
	}
	if msg.SessionID == "" {
		msg.SessionID = s.info.ID
	}
	s.transcript = append(s.transcript, msg)
	s.lastActive = time.Now()
	payload, err := json.Marshal(transcriptRecord{Session: s.info, Messages: s.transcript})
	s.mu.Unlock()

	if err != nil {
		return fmt.Errorf("encode transcript: %w", err)
	}
	if err := s.store.SaveTranscript(ctx, s.info.ID, payload); err != nil {
		return fmt.Errorf("persist transcript: %w", err)
	}
	return nil
}

// BeginReply marks a bot reply as pending. It reports false when one is
// already in flight.
func (s *Session) BeginReply() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending || s.ended {
		return false
	}
	s.pending = true
	return true
}

// EndReply clears the pending-reply mark.
func (s *Session) EndReply() {
	s.mu.Lock()
	s.pending = false
	s.mu.Unlock()
}

// ReplyPending reports whether a bot reply is in flight.
func (s *Session) ReplyPending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

// AllowSend consumes one token from the session's send limiter.
func (s *Session) AllowSend() bool {
	if s.limiter == nil {
		return true
	}
	return s.limiter.Allow()
}

// Ended reports whether the session has been discarded.
func (s *Session) Ended() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ended
}

func (s *Session) end() {
	s.mu.Lock()
	s.ended = true
	s.pending = false
	s.mu.Unlock()
}

// AttachView records a live view rendering the session. Sessions with
// attached views are never expired.
func (s *Session) AttachView() {
	s.mu.Lock()
	s.views++
	s.lastActive = time.Now()
	s.mu.Unlock()
}

// DetachView releases a view recorded by AttachView.
func (s *Session) DetachView() {
	s.mu.Lock()
	if s.views > 0 {
		s.views--
	}
	s.lastActive = time.Now()
	s.mu.Unlock()
}

// Views returns the number of attached views.
func (s *Session) Views() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.views
}

// Touch marks the session active at now.
func (s *Session) Touch(now time.Time) {
	s.mu.Lock()
	if now.After(s.lastActive) {
		s.lastActive = now
	}
	s.mu.Unlock()
}

// expireIfIdle ends the session when it has been idle longer than ttl with
// no pending reply and no attached view. Check and end happen under one lock.
func (s *Session) expireIfIdle(now time.Time, ttl time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended || s.pending || s.views > 0 || now.Sub(s.lastActive) <= ttl {
		return false
	}
	s.ended = true
	return true
}

// decodeTranscript parses a persisted session. Callers treat any error as an
// empty transcript.
func decodeTranscript(payload []byte) (transcriptRecord, error) {
	var record transcriptRecord
	if err := json.Unmarshal(payload, &record); err != nil {
		return transcriptRecord{}, err
	}
	return record, nil
}
