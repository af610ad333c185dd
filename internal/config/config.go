// Package config はアプリケーションの設定を管理します
// 環境変数から設定を読み込み、デフォルト値を提供します
package config

import (
	"log"
	"os"
	"strconv"
	"strings"
)

const (
	defaultAPIAddr       = ":8080"              // APIサーバーのデフォルトリッスンアドレス
	defaultStoreDriver   = "sqlite"             // 履歴ストアのデフォルトドライバ
	defaultSQLitePath    = "./data/messages.db" // SQLiteのデフォルトファイルパス
	defaultRedisAddr     = "localhost:6379"     // Redisのデフォルト接続先
	defaultHistoryLimit  = 100                  // 入室時に再生する履歴メッセージの最大件数
	defaultHeartbeatSec  = 30                   // ハートビート監視の間隔（秒）
	defaultRetentionDays = 30                   // メッセージ保持期間（日）
)

// defaultAllowedOrigins はCORSで許可するデフォルトのオリジン一覧
var defaultAllowedOrigins = []string{
	"http://localhost:3000",
	"http://localhost:5173",
}

// Config はアプリケーションの設定を保持します
type Config struct {
	APIAddr       string   // APIサーバーのリッスンアドレス
	Env           string   // 実行環境（"development" / "production"）
	LogLevel      string   // ログレベル（debug / info / warn / error）
	StoreDriver   string   // 履歴ストアのドライバ（"sqlite" / "postgres" / "redis"）
	SQLitePath    string   // SQLiteのファイルパス
	DatabaseURL   string   // PostgreSQLの接続URL
	RedisAddr     string   // Redisの接続先
	HistoryLimit  int      // 入室時に再生する履歴メッセージの最大件数
	HeartbeatSec  int      // ハートビート監視の間隔（秒）
	RetentionDays int      // メッセージ保持期間（日）
	AllowedOrigin []string // CORSで許可するオリジン一覧
}

// IsDevelopment は開発環境かどうかを返します
func (c Config) IsDevelopment() bool {
	return c.Env == "development"
}

// Load は環境変数から設定を読み込みます
// 環境変数が設定されていない場合はデフォルト値を使用します
func Load() Config {
	return Config{
		APIAddr:       envOr("API_ADDR", defaultAPIAddr),
		Env:           envOr("ENV", "development"),
		LogLevel:      envOr("LOG_LEVEL", "info"),
		StoreDriver:   envOr("STORE_DRIVER", defaultStoreDriver),
		SQLitePath:    envOr("SQLITE_PATH", defaultSQLitePath),
		DatabaseURL:   envOr("DATABASE_URL", ""),
		RedisAddr:     envOr("REDIS_ADDR", defaultRedisAddr),
		HistoryLimit:  envInt("HISTORY_LIMIT", defaultHistoryLimit),
		HeartbeatSec:  envInt("HEARTBEAT_INTERVAL_SEC", defaultHeartbeatSec),
		RetentionDays: envInt("RETENTION_DAYS", defaultRetentionDays),
		AllowedOrigin: envCSV("CORS_ALLOWED_ORIGINS", defaultAllowedOrigins),
	}
}

// envOr は環境変数から文字列を取得します
// 環境変数が設定されていない場合はデフォルト値を返します
func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// envInt は環境変数から整数を取得します
// 環境変数が設定されていない、または無効な値の場合はデフォルト値を返します
func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err != nil {
			log.Printf("invalid %s=%s, fallback to default (%d)", key, v, def)
			return def
		}
		return i
	}
	return def
}

// envCSV は環境変数からカンマ区切りの文字列リストを取得します
// 環境変数が設定されていない、または空の場合はデフォルト値を返します
func envCSV(key string, def []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return def
}
