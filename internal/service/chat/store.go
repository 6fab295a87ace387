package chat

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrTranscriptNotFound is returned when a session has no persisted transcript.
var ErrTranscriptNotFound = errors.New("transcript not found")

// TranscriptStore holds the serialized transcript of each live session.
type TranscriptStore interface {
	LoadTranscript(ctx context.Context, sessionID string) ([]byte, error)
	SaveTranscript(ctx context.Context, sessionID string, payload []byte) error
	DeleteTranscript(ctx context.Context, sessionID string) error
}

// FlagStore records whether a visitor has been greeted. Flags outlive sessions.
type FlagStore interface {
	HasGreeted(ctx context.Context, visitorID string) (bool, error)
	MarkGreeted(ctx context.Context, visitorID string) error
}

// MemoryStore implements TranscriptStore and FlagStore in process memory.
type MemoryStore struct {
	mu          sync.RWMutex
	transcripts map[string][]byte
	greeted     map[string]time.Time
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		transcripts: make(map[string][]byte),
		greeted:     make(map[string]time.Time),
	}
}

func (m *MemoryStore) LoadTranscript(_ context.Context, sessionID string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	payload, ok := m.transcripts[sessionID]
	if !ok {
		return nil, ErrTranscriptNotFound
	}
	return append([]byte(nil), payload...), nil
}

func (m *MemoryStore) SaveTranscript(_ context.Context, sessionID string, payload []byte) error {
	m.mu.Lock()
	m.transcripts[sessionID] = append([]byte(nil), payload...)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) DeleteTranscript(_ context.Context, sessionID string) error {
	m.mu.Lock()
	delete(m.transcripts, sessionID)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) HasGreeted(_ context.Context, visitorID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.greeted[visitorID]
	return ok, nil
}

func (m *MemoryStore) MarkGreeted(_ context.Context, visitorID string) error {
	m.mu.Lock()
	if _, ok := m.greeted[visitorID]; !ok {
		m.greeted[visitorID] = time.Now().UTC()
	}
	m.mu.Unlock()
	return nil
}
