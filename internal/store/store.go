// Package store はメッセージ履歴の永続化を担当します
// SQLite / PostgreSQL / Redis のいずれかをバックエンドとして選択できます
package store

import (
	"context"
	"time"

	"github.com/cipherhall/chat-server/internal/models"
)

// MessageStore はルームごとの追記専用メッセージログのインターフェースです
// 同時呼び出しの直列化は各実装（DBドライバ側）が保証します
type MessageStore interface {
	// Append はメッセージを1件追記します
	Append(ctx context.Context, msg models.Message) error
	// Recent は指定ルームの履歴をタイムスタンプ昇順で最大limit件返します
	Recent(ctx context.Context, roomId string, limit int) ([]models.Message, error)
	// PurgeOlderThan は指定した期間より古いメッセージを削除し、削除件数を返します
	PurgeOlderThan(ctx context.Context, age time.Duration) (int64, error)
	// Ping は接続を確認します
	Ping(ctx context.Context) error
	// Close はストアの接続リソースを解放します
	Close() error
}
