package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cipherhall/chat-server/internal/models"
)

type fakeStore struct {
	mu        sync.Mutex
	msgs      []models.Message
	appendErr error
	recentErr error
	purged    int
}

func (f *fakeStore) Append(ctx context.Context, msg models.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appendErr != nil {
		return f.appendErr
	}
	f.msgs = append(f.msgs, msg)
	return nil
}

func (f *fakeStore) Recent(ctx context.Context, roomId string, limit int) ([]models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.recentErr != nil {
		return nil, f.recentErr
	}
	out := make([]models.Message, 0, limit)
	for _, m := range f.msgs {
		if m.RoomId == roomId && len(out) < limit {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeStore) PurgeOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.purged++
	return 1, nil
}

func (f *fakeStore) Ping(ctx context.Context) error { return nil }
func (f *fakeStore) Close() error                   { return nil }

func (f *fakeStore) purgeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.purged
}

func msg(roomId, senderId, content string) models.Message {
	return models.Message{
		Id:        content,
		RoomId:    roomId,
		Type:      models.MessageTypeText,
		Content:   content,
		SenderId:  senderId,
		Timestamp: time.Now().UTC(),
	}
}

func TestHistoryService_RecordAndReplay(t *testing.T) {
	st := &fakeStore{}
	svc := NewHistoryService(st, 100, zerolog.Nop())
	ctx := context.Background()

	require.NoError(t, svc.Record(ctx, msg("r1", "a", "hello")))
	require.NoError(t, svc.Record(ctx, msg("r1", "b", "world")))
	require.NoError(t, svc.Record(ctx, msg("r2", "a", "elsewhere")))

	got, err := svc.Replay(ctx, "r1", "a")
	require.NoError(t, err)
	require.Len(t, got, 2)

	// 閲覧者視点の isMine が設定される
	assert.Equal(t, "hello", got[0].Content)
	assert.True(t, got[0].IsMine)
	assert.False(t, got[1].IsMine)
}

func TestHistoryService_ReplayRespectsLimit(t *testing.T) {
	st := &fakeStore{}
	svc := NewHistoryService(st, 2, zerolog.Nop())
	ctx := context.Background()

	for _, c := range []string{"1", "2", "3"} {
		require.NoError(t, svc.Record(ctx, msg("r1", "a", c)))
	}

	got, err := svc.Replay(ctx, "r1", "a")
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestHistoryService_EmptyRoomId(t *testing.T) {
	svc := NewHistoryService(&fakeStore{}, 100, zerolog.Nop())
	ctx := context.Background()

	err := svc.Record(ctx, models.Message{})
	assert.ErrorIs(t, err, ErrEmptyRoomId)

	_, err = svc.Replay(ctx, "", "a")
	assert.ErrorIs(t, err, ErrEmptyRoomId)
}

func TestHistoryService_ErrorsAreWrapped(t *testing.T) {
	cause := errors.New("connection reset")
	st := &fakeStore{appendErr: cause, recentErr: cause}
	svc := NewHistoryService(st, 100, zerolog.Nop())
	ctx := context.Background()

	err := svc.Record(ctx, msg("r1", "a", "x"))
	assert.ErrorIs(t, err, cause)

	_, err = svc.Replay(ctx, "r1", "a")
	assert.ErrorIs(t, err, cause)
}

func TestHistoryService_RetentionStopsOnCancel(t *testing.T) {
	st := &fakeStore{}
	svc := NewHistoryService(st, 100, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		svc.RunRetention(ctx, 5*time.Millisecond, time.Hour)
		close(done)
	}()

	assert.Eventually(t, func() bool { return st.purgeCount() > 0 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("retention loop did not stop")
	}
}
