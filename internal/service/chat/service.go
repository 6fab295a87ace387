package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/zhouzirui/site-concierge/backend/internal/model/chat"
)

var (
	ErrVisitorRequired = errors.New("visitor id is required")
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionEnded    = errors.New("session ended")
)

// Options tunes session lifetime and send throttling.
type Options struct {
	// TTL ends sessions idle for longer than this. Zero disables expiry.
	TTL       time.Duration
	SendRate  rate.Limit
	SendBurst int
}

// Service owns the live sessions and their persisted transcripts.
type Service struct {
	mu          sync.RWMutex
	sessions    map[string]*Session
	transcripts TranscriptStore
	flags       FlagStore
	opts        Options
}

// NewService wires the session service to its stores.
func NewService(transcripts TranscriptStore, flags FlagStore, opts Options) *Service {
	if opts.SendBurst <= 0 {
		opts.SendBurst = 1
	}
	return &Service{
		sessions:    make(map[string]*Session),
		transcripts: transcripts,
		flags:       flags,
		opts:        opts,
	}
}

// CreateSession provisions an empty session for a visitor.
func (s *Service) CreateSession(ctx context.Context, visitorID string) (*Session, error) {
	if visitorID == "" {
		return nil, ErrVisitorRequired
	}

	info := chat.SessionInfo{
		ID:        uuid.NewString(),
		VisitorID: visitorID,
		CreatedAt: time.Now().UTC(),
	}
	session := newSession(info, nil, s.transcripts, s.newLimiter(), time.Now())

	s.mu.Lock()
	s.sessions[info.ID] = session
	s.mu.Unlock()

	log.Info().Str("component", "chat").Str("session", info.ID).Str("visitor", visitorID).Msg("session created")
	return session, nil
}

// GetSession returns a live session, restoring it from the transcript store
// when it is no longer held in memory.
func (s *Service) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	s.mu.RLock()
	session, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if ok {
		session.Touch(time.Now())
		return session, nil
	}

	payload, err := s.transcripts.LoadTranscript(ctx, sessionID)
	if errors.Is(err, ErrTranscriptNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		// The stored record may be intact; caching an empty session here
		// would overwrite it on the next append.
		return nil, fmt.Errorf("load transcript %s: %w", sessionID, err)
	}

	info := chat.SessionInfo{ID: sessionID, CreatedAt: time.Now().UTC()}
	var messages []chat.Message
	if record, decodeErr := decodeTranscript(payload); decodeErr != nil {
		log.Warn().Err(decodeErr).Str("component", "chat").Str("session", sessionID).Msg("corrupt transcript, starting empty")
	} else {
		if record.Session.ID == sessionID {
			info = record.Session
		}
		messages = record.Messages
	}

	restored := newSession(info, messages, s.transcripts, s.newLimiter(), time.Now())

	s.mu.Lock()
	if existing, ok := s.sessions[sessionID]; ok {
		restored = existing
	} else {
		s.sessions[sessionID] = restored
	}
	s.mu.Unlock()

	log.Info().Str("component", "chat").Str("session", sessionID).Int("messages", restored.Len()).Msg("session restored")
	return restored, nil
}

// LoadTranscript returns the messages of a session in order.
func (s *Service) LoadTranscript(ctx context.Context, sessionID string) ([]chat.Message, error) {
	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return session.Transcript(), nil
}

// EndSession discards a session and its persisted transcript.
func (s *Service) EndSession(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	session, ok := s.sessions[sessionID]
	delete(s.sessions, sessionID)
	s.mu.Unlock()

	if ok {
		session.end()
	}
	if err := s.transcripts.DeleteTranscript(ctx, sessionID); err != nil {
		return err
	}
	if !ok {
		return ErrSessionNotFound
	}

	log.Info().Str("component", "chat").Str("session", sessionID).Msg("session ended")
	return nil
}

// HasGreeted reports whether the visitor has already been auto-greeted.
func (s *Service) HasGreeted(ctx context.Context, visitorID string) (bool, error) {
	if visitorID == "" {
		return false, ErrVisitorRequired
	}
	return s.flags.HasGreeted(ctx, visitorID)
}

// MarkGreeted records that the visitor has been auto-greeted.
func (s *Service) MarkGreeted(ctx context.Context, visitorID string) error {
	if visitorID == "" {
		return ErrVisitorRequired
	}
	return s.flags.MarkGreeted(ctx, visitorID)
}

// Sweep ends sessions idle past the TTL. Sessions with a pending reply or an
// attached view are kept.
func (s *Service) Sweep(ctx context.Context, now time.Time) int {
	if s.opts.TTL <= 0 {
		return 0
	}

	s.mu.Lock()
	expired := make([]string, 0)
	for id, session := range s.sessions {
		if session.expireIfIdle(now, s.opts.TTL) {
			delete(s.sessions, id)
			expired = append(expired, id)
		}
	}
	s.mu.Unlock()

	for _, id := range expired {
		if err := s.transcripts.DeleteTranscript(ctx, id); err != nil {
			log.Warn().Err(err).Str("component", "chat").Str("session", id).Msg("failed to expire session")
		}
	}
	return len(expired)
}

// Run sweeps idle sessions until ctx is done.
func (s *Service) Run(ctx context.Context) {
	if s.opts.TTL <= 0 {
		return
	}

	interval := s.opts.TTL / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := s.Sweep(ctx, now); n > 0 {
				log.Info().Str("component", "chat").Int("expired", n).Msg("swept idle sessions")
			}
		}
	}
}

func (s *Service) newLimiter() *rate.Limiter {
	if s.opts.SendRate <= 0 {
		return nil
	}
	return rate.NewLimiter(s.opts.SendRate, s.opts.SendBurst)
}
