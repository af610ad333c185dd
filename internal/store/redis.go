package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cipherhall/chat-server/internal/models"
)

// RedisStore はRedisのソート済みセットをバックエンドとするメッセージストアです
// スコアにタイムスタンプ（ミリ秒）を用いることで昇順の履歴再生を実現します
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore は新しいRedisストアを作成します
func NewRedisStore(ctx context.Context, addr string) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		PoolSize:     10,              // 接続プールサイズ
		MinIdleConns: 5,               // 最小アイドル接続数
		MaxRetries:   3,               // リトライ回数
		DialTimeout:  5 * time.Second, // 接続タイムアウト
		ReadTimeout:  3 * time.Second, // 読み込みタイムアウト
		WriteTimeout: 3 * time.Second, // 書き込みタイムアウト
		PoolTimeout:  4 * time.Second, // プールからの取得タイムアウト
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, err
	}
	return &RedisStore{rdb: rdb}, nil
}

// messagesKey はルームのメッセージログのキーを返します
func messagesKey(roomId string) string {
	return fmt.Sprintf("rooms:%s:messages", roomId)
}

// Append はメッセージを1件追記します
func (s *RedisStore) Append(ctx context.Context, msg models.Message) error {
	// RoomIdはキーに含まれるためJSONには別途埋め込む
	b, err := json.Marshal(struct {
		models.Message
		RoomId string `json:"roomId"`
	}{Message: msg, RoomId: msg.RoomId})
	if err != nil {
		return err
	}
	return s.rdb.ZAdd(ctx, messagesKey(msg.RoomId), redis.Z{
		Score:  float64(msg.Timestamp.UnixMilli()),
		Member: b,
	}).Err()
}

// Recent は指定ルームの履歴をタイムスタンプ昇順で最大limit件返します
func (s *RedisStore) Recent(ctx context.Context, roomId string, limit int) ([]models.Message, error) {
	vals, err := s.rdb.ZRange(ctx, messagesKey(roomId), 0, int64(limit)-1).Result()
	if err != nil {
		return nil, err
	}

	msgs := make([]models.Message, 0, len(vals))
	for _, v := range vals {
		var entry struct {
			models.Message
			RoomId string `json:"roomId"`
		}
		if err := json.Unmarshal([]byte(v), &entry); err != nil {
			continue // 壊れたエントリは読み飛ばす
		}
		m := entry.Message
		m.RoomId = entry.RoomId
		msgs = append(msgs, m)
	}
	return msgs, nil
}

// PurgeOlderThan は指定した期間より古いメッセージを削除します
func (s *RedisStore) PurgeOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	cutoff := fmt.Sprintf("%d", time.Now().UTC().Add(-age).UnixMilli())

	var total int64
	iter := s.rdb.Scan(ctx, 0, "rooms:*:messages", 100).Iterator()
	for iter.Next(ctx) {
		n, err := s.rdb.ZRemRangeByScore(ctx, iter.Val(), "-inf", "("+cutoff).Result()
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, iter.Err()
}

// Ping は接続を確認します
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// Close はRedis接続を閉じます
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}
