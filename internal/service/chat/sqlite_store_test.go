package chat

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dsn, err := SQLiteDSNForFile(filepath.Join(t.TempDir(), "chat.db"))
	require.NoError(t, err)

	s, err := NewSQLiteStore(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteStore_TranscriptSaveLoadDelete(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := s.LoadTranscript(ctx, "sess-1")
	require.True(t, errors.Is(err, ErrTranscriptNotFound))

	require.NoError(t, s.SaveTranscript(ctx, "sess-1", []byte(`{"messages":[]}`)))
	require.NoError(t, s.SaveTranscript(ctx, "sess-1", []byte(`{"messages":[1]}`)))

	payload, err := s.LoadTranscript(ctx, "sess-1")
	require.NoError(t, err)
	require.Equal(t, `{"messages":[1]}`, string(payload))

	require.NoError(t, s.DeleteTranscript(ctx, "sess-1"))
	_, err = s.LoadTranscript(ctx, "sess-1")
	require.True(t, errors.Is(err, ErrTranscriptNotFound))
}

func TestSQLiteStore_GreetedFlagIsIdempotent(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	greeted, err := s.HasGreeted(ctx, "visitor-1")
	require.NoError(t, err)
	require.False(t, greeted)

	require.NoError(t, s.MarkGreeted(ctx, "visitor-1"))
	require.NoError(t, s.MarkGreeted(ctx, "visitor-1"))

	greeted, err = s.HasGreeted(ctx, "visitor-1")
	require.NoError(t, err)
	require.True(t, greeted)
}

func TestSQLiteStore_SurvivesReopen(t *testing.T) {
	dsn, err := SQLiteDSNForFile(filepath.Join(t.TempDir(), "chat.db"))
	require.NoError(t, err)
	ctx := context.Background()

	first, err := NewSQLiteStore(dsn)
	require.NoError(t, err)
	require.NoError(t, first.MarkGreeted(ctx, "visitor-1"))
	require.NoError(t, first.SaveTranscript(ctx, "sess-1", []byte(`{}`)))
	require.NoError(t, first.Close())

	second, err := NewSQLiteStore(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = second.Close() })

	greeted, err := second.HasGreeted(ctx, "visitor-1")
	require.NoError(t, err)
	require.True(t, greeted)

	_, err = second.LoadTranscript(ctx, "sess-1")
	require.NoError(t, err)
}
