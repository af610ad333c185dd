package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cipherhall/chat-server/internal/models"
)

// PostgresStore はPostgreSQLをバックエンドとするメッセージストアです
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore は新しいPostgreSQLストアを作成します
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	s := &PostgresStore{pool: pool}
	if err := s.initSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return s, nil
}

// initSchema はテーブルとインデックスを作成します（存在しない場合のみ）
func (s *PostgresStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		room_id TEXT NOT NULL,
		type TEXT NOT NULL,
		content TEXT NOT NULL,
		language TEXT,
		sender_id TEXT NOT NULL,
		sender_name TEXT NOT NULL,
		recipient_id TEXT,
		timestamp TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_messages_room_id ON messages(room_id);
	CREATE INDEX IF NOT EXISTS idx_messages_timestamp ON messages(timestamp);
	`
	_, err := s.pool.Exec(ctx, schema)
	return err
}

// Append はメッセージを1件追記します
func (s *PostgresStore) Append(ctx context.Context, msg models.Message) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO messages (id, room_id, type, content, language, sender_id, sender_name, recipient_id, timestamp)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, NULLIF($8, ''), $9)
	`, msg.Id, msg.RoomId, msg.Type, msg.Content, msg.Language,
		msg.SenderId, msg.Sender, msg.RecipientId, msg.Timestamp.UTC())
	return err
}

// Recent は指定ルームの履歴をタイムスタンプ昇順で最大limit件返します
func (s *PostgresStore) Recent(ctx context.Context, roomId string, limit int) ([]models.Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, room_id, type, content, COALESCE(language, ''), sender_id, sender_name, COALESCE(recipient_id, ''), timestamp
		FROM messages
		WHERE room_id = $1
		ORDER BY timestamp ASC
		LIMIT $2
	`, roomId, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	msgs := make([]models.Message, 0, limit)
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.Id, &m.RoomId, &m.Type, &m.Content, &m.Language,
			&m.SenderId, &m.Sender, &m.RecipientId, &m.Timestamp); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// PurgeOlderThan は指定した期間より古いメッセージを削除します
func (s *PostgresStore) PurgeOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-age)
	tag, err := s.pool.Exec(ctx, `DELETE FROM messages WHERE timestamp < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// Ping は接続を確認します
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close は接続プールを閉じます
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
