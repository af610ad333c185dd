package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cipherhall/chat-server/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "messages.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testMessage(roomId, id string, ts time.Time) models.Message {
	return models.Message{
		Id:        id,
		RoomId:    roomId,
		Type:      models.MessageTypeText,
		Content:   "content-" + id,
		SenderId:  "user-1",
		Sender:    "Alice",
		Timestamp: ts,
	}
}

func TestSQLiteStore_AppendAndRecent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Second)

	// 挿入順とタイムスタンプ順を意図的にずらす
	require.NoError(t, s.Append(ctx, testMessage("r1", "m2", base.Add(2*time.Second))))
	require.NoError(t, s.Append(ctx, testMessage("r1", "m1", base.Add(1*time.Second))))
	require.NoError(t, s.Append(ctx, testMessage("r2", "other", base)))

	msgs, err := s.Recent(ctx, "r1", 100)
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	// タイムスタンプ昇順で返る
	assert.Equal(t, "m1", msgs[0].Id)
	assert.Equal(t, "m2", msgs[1].Id)
	assert.Equal(t, "content-m1", msgs[0].Content)
	assert.Equal(t, "Alice", msgs[0].Sender)
	assert.True(t, msgs[0].Timestamp.Before(msgs[1].Timestamp))
}

func TestSQLiteStore_RecentRespectsLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Now().UTC()

	for i := 0; i < 5; i++ {
		m := testMessage("r1", string(rune('a'+i)), base.Add(time.Duration(i)*time.Second))
		require.NoError(t, s.Append(ctx, m))
	}

	msgs, err := s.Recent(ctx, "r1", 3)
	require.NoError(t, err)
	assert.Len(t, msgs, 3)
}

func TestSQLiteStore_OptionalFieldsRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	m := testMessage("r1", "m1", time.Now().UTC())
	m.Language = "ja"
	m.RecipientId = "user-2"
	require.NoError(t, s.Append(ctx, m))

	plain := testMessage("r1", "m2", time.Now().UTC().Add(time.Second))
	require.NoError(t, s.Append(ctx, plain))

	msgs, err := s.Recent(ctx, "r1", 100)
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	assert.Equal(t, "ja", msgs[0].Language)
	assert.Equal(t, "user-2", msgs[0].RecipientId)
	assert.Empty(t, msgs[1].Language)
	assert.Empty(t, msgs[1].RecipientId)
}

func TestSQLiteStore_PurgeOlderThan(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, s.Append(ctx, testMessage("r1", "old", now.Add(-48*time.Hour))))
	require.NoError(t, s.Append(ctx, testMessage("r1", "fresh", now)))

	n, err := s.PurgeOlderThan(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	msgs, err := s.Recent(ctx, "r1", 100)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "fresh", msgs[0].Id)
}

func TestSQLiteStore_EmptyRoomReturnsNoRows(t *testing.T) {
	s := newTestStore(t)

	msgs, err := s.Recent(context.Background(), "nope", 100)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}
