package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/cipherhall/chat-server/internal/models"
)

// SQLiteStore はSQLiteをバックエンドとするメッセージストアです
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore は新しいSQLiteストアを作成します
// dbPathが空の場合は "./data/messages.db" を使用します
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "./data/messages.db"
	}

	// データディレクトリを作成
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return s, nil
}

// initSchema はテーブルとインデックスを作成します（存在しない場合のみ）
func (s *SQLiteStore) initSchema(ctx context.Context) error {
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
		timestamp DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_messages_room_id ON messages(room_id);
	CREATE INDEX IF NOT EXISTS idx_messages_timestamp ON messages(timestamp);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Append はメッセージを1件追記します
func (s *SQLiteStore) Append(ctx context.Context, msg models.Message) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, room_id, type, content, language, sender_id, sender_name, recipient_id, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, msg.Id, msg.RoomId, msg.Type, msg.Content, nullable(msg.Language),
		msg.SenderId, msg.Sender, nullable(msg.RecipientId), msg.Timestamp.UTC())
	return err
}

// Recent は指定ルームの履歴をタイムスタンプ昇順で最大limit件返します
func (s *SQLiteStore) Recent(ctx context.Context, roomId string, limit int) ([]models.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, room_id, type, content, language, sender_id, sender_name, recipient_id, timestamp
		FROM messages
		WHERE room_id = ?
		ORDER BY timestamp ASC
		LIMIT ?
	`, roomId, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	msgs := make([]models.Message, 0, limit)
	for rows.Next() {
		var m models.Message
		var language, recipientId sql.NullString
		if err := rows.Scan(&m.Id, &m.RoomId, &m.Type, &m.Content, &language,
			&m.SenderId, &m.Sender, &recipientId, &m.Timestamp); err != nil {
			return nil, err
		}
		m.Language = language.String
		m.RecipientId = recipientId.String
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// PurgeOlderThan は指定した期間より古いメッセージを削除します
func (s *SQLiteStore) PurgeOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-age)
	res, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE timestamp < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Ping は接続を確認します
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close はデータベース接続を閉じます
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// nullable は空文字列をNULLとして保存するためのヘルパーです
func nullable(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}
