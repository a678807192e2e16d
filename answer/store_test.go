package answer

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestStore(t *testing.T) *ConversationStore {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	store, err := NewConversationStore(db)
	require.NoError(t, err)
	require.NoError(t, store.AutoMigrate())
	return store
}

func TestEnsureConversationCreatesOnce(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first, err := store.EnsureConversation(ctx, "session-1", "first question")
	require.NoError(t, err)
	second, err := store.EnsureConversation(ctx, "session-1", "another question")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "first question", second.Title)
}

func TestAppendAndHistoryOrder(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	conv, err := store.EnsureConversation(ctx, "session-2", "hello")
	require.NoError(t, err)

	require.NoError(t, store.Append(ctx, conv.ID, RoleUser, "question one", nil))
	require.NoError(t, store.Append(ctx, conv.ID, RoleAssistant, "answer one", SourcesSummary{StructuredUsed: true}))
	require.NoError(t, store.Append(ctx, conv.ID, RoleUser, "question two", nil))

	history, err := store.History(ctx, "session-2", 10)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, "question one", history[0].Content)
	assert.Equal(t, "answer one", history[1].Content)
	assert.Equal(t, "question two", history[2].Content)
	assert.Equal(t, 1, history[0].Seq)
	assert.NotEmpty(t, history[1].Provenance)
}

func TestHistoryLimitKeepsMostRecent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	conv, err := store.EnsureConversation(ctx, "session-3", "hello")
	require.NoError(t, err)
	for i := 1; i <= 15; i++ {
		require.NoError(t, store.Append(ctx, conv.ID, RoleUser, fmt.Sprintf("message %d", i), nil))
	}

	history, err := store.History(ctx, "session-3", defaultHistoryLimit)
	require.NoError(t, err)
	require.Len(t, history, defaultHistoryLimit)
	assert.Equal(t, "message 6", history[0].Content)
	assert.Equal(t, "message 15", history[len(history)-1].Content)
}

func TestHistoryUnknownSessionIsEmpty(t *testing.T) {
	store := newTestStore(t)
	history, err := store.History(context.Background(), "missing", 10)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestClearRemovesConversation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	conv, err := store.EnsureConversation(ctx, "session-4", "hello")
	require.NoError(t, err)
	require.NoError(t, store.Append(ctx, conv.ID, RoleUser, "bye", nil))

	require.NoError(t, store.Clear(ctx, "session-4"))

	history, err := store.History(ctx, "session-4", 10)
	require.NoError(t, err)
	assert.Empty(t, history)

	// Clearing again is a no-op.
	assert.NoError(t, store.Clear(ctx, "session-4"))
}
