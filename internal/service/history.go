// Package service はメッセージ履歴に関するビジネスロジックを担当します
// 永続化・再生の注釈付け・古いメッセージの整理を提供します
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/cipherhall/chat-server/internal/metrics"
	"github.com/cipherhall/chat-server/internal/models"
	"github.com/cipherhall/chat-server/internal/store"
)

// HistoryService はメッセージ履歴の記録と再生を提供します
type HistoryService struct {
	store store.MessageStore // データ永続化を担当するストア
	limit int                // 再生する履歴メッセージの最大件数
	log   zerolog.Logger
}

// NewHistoryService は新しいHistoryServiceを作成します
func NewHistoryService(s store.MessageStore, limit int, log zerolog.Logger) *HistoryService {
	return &HistoryService{
		store: s,
		limit: limit,
		log:   log.With().Str("component", "history").Logger(),
	}
}

// Record はメッセージを履歴ストアに追記します
// ブロードキャストは必ずこの呼び出しの成功後に行うこと（永続化が先の契約）
func (s *HistoryService) Record(ctx context.Context, msg models.Message) error {
	if msg.RoomId == "" {
		return ErrEmptyRoomId
	}

	start := time.Now()
	err := s.store.Append(ctx, msg)
	metrics.StoreLatency.WithLabelValues("append").Observe(time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

// Replay は指定ルームの履歴をタイムスタンプ昇順で返します
// 各メッセージには閲覧者視点の isMine フラグを設定します
func (s *HistoryService) Replay(ctx context.Context, roomId, userId string) ([]models.Message, error) {
	if roomId == "" {
		return nil, ErrEmptyRoomId
	}

	start := time.Now()
	msgs, err := s.store.Recent(ctx, roomId, s.limit)
	metrics.StoreLatency.WithLabelValues("recent").Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("fetch history: %w", err)
	}

	for i := range msgs {
		msgs[i] = msgs[i].WithOwnership(userId)
	}
	return msgs, nil
}

// RunRetention は保持期間を過ぎたメッセージを定期的に削除します
// コンテキストのキャンセルで停止します
func (s *HistoryService) RunRetention(ctx context.Context, interval, age time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			start := time.Now()
			n, err := s.store.PurgeOlderThan(ctx, age)
			metrics.StoreLatency.WithLabelValues("purge").Observe(time.Since(start).Seconds())
			if err != nil {
				s.log.Error().Err(err).Msg("retention purge failed")
				continue
			}
			if n > 0 {
				s.log.Info().Int64("removed", n).Msg("old messages purged")
			}
		}
	}
}
