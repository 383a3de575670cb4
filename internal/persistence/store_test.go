package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentcore/orchestrator/pkg/message"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir(), nil)
	require.NoError(t, err)
	return s
}

func TestStore_SaveLoad_RoundTripsCanonicalMessages(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	conv := NewConversation("conv-1", "debugging session")
	conv.EnsureAgent("Router")
	conv.Histories["Router"] = []message.Message{
		message.NewUserText("ping"),
		{Role: message.RoleAssistant, Parts: []message.Part{message.Text{Content: "pong"}}, Timestamp: time.Now()},
	}
	conv.RecordTurn("Router", 0, "ping")

	require.NoError(t, s.Save(ctx, conv))

	loaded, err := s.Load(ctx, "conv-1")
	require.NoError(t, err)

	assert.Equal(t, conv.ID, loaded.ID)
	assert.Equal(t, conv.Title, loaded.Title)
	require.Len(t, loaded.Histories["Router"], 2)
	assert.Equal(t, "ping", loaded.Histories["Router"][0].Texts())
	assert.Equal(t, "pong", loaded.Histories["Router"][1].Texts())
	require.Len(t, loaded.TurnLog, 1)
	assert.Equal(t, "ping", loaded.TurnLog[0].Preview)
}

func TestStore_Load_UnknownIDReturnsErrNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Load(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_List_ReturnsMetadataWithoutBodiesNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	older := NewConversation("older", "first")
	older.UpdatedAt = time.Now().Add(-time.Hour)
	require.NoError(t, s.Save(ctx, older))

	newer := NewConversation("newer", "second")
	require.NoError(t, s.Save(ctx, newer))

	summaries, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.Equal(t, "newer", summaries[0].ID)
	assert.Equal(t, "older", summaries[1].ID)
}

func TestStore_Jump_TruncatesHistoryToRecordedIndex(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	conv := NewConversation("conv-jump", "")
	conv.EnsureAgent("Echo")
	conv.Histories["Echo"] = []message.Message{
		message.NewUserText("one"),
		message.NewSystemText("reply one"),
		message.NewUserText("two"),
		message.NewSystemText("reply two"),
		message.NewUserText("three"),
		message.NewSystemText("reply three"),
	}
	conv.RecordTurn("Echo", 0, "one")
	conv.RecordTurn("Echo", 2, "two")
	conv.RecordTurn("Echo", 4, "three")
	require.NoError(t, s.Save(ctx, conv))

	jumped, err := s.Jump(ctx, "conv-jump", 1)
	require.NoError(t, err)
	require.Len(t, jumped.Histories["Echo"], 3)
	assert.Equal(t, "two", jumped.Histories["Echo"][2].Texts())
	assert.Len(t, jumped.TurnLog, 2)

	reloaded, err := s.Load(ctx, "conv-jump")
	require.NoError(t, err)
	assert.Len(t, reloaded.Histories["Echo"], 3, "jump must persist")
}

func TestStore_Jump_OutOfRangeIndexErrors(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	conv := NewConversation("conv-oob", "")
	conv.RecordTurn("Echo", 0, "one")
	require.NoError(t, s.Save(ctx, conv))

	_, err := s.Jump(ctx, "conv-oob", 5)
	require.Error(t, err)
	var invalid *ErrInvalidTurnIndex
	assert.ErrorAs(t, err, &invalid)
}

func TestStore_Prune_RemovesConversationsOlderThanHorizon(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	stale := NewConversation("stale", "")
	stale.UpdatedAt = time.Now().Add(-48 * time.Hour)
	require.NoError(t, s.Save(ctx, stale))

	fresh := NewConversation("fresh", "")
	require.NoError(t, s.Save(ctx, fresh))

	removed, err := s.Prune(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = s.Load(ctx, "stale")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.Load(ctx, "fresh")
	assert.NoError(t, err)
}
