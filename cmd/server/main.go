package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/cipherhall/chat-server/internal/config"
	"github.com/cipherhall/chat-server/internal/handlers"
	httpx "github.com/cipherhall/chat-server/internal/http"
	"github.com/cipherhall/chat-server/internal/hub"
	"github.com/cipherhall/chat-server/internal/service"
	"github.com/cipherhall/chat-server/internal/store"
)

const retentionInterval = 24 * time.Hour // 保持期間チェックの実行間隔

func main() {
	// .envがあれば読み込む（なければ環境変数のみ）
	_ = godotenv.Load()
	cfg := config.Load()

	logger := newLogger(cfg)
	ctx := context.Background()

	// 履歴ストアの初期化（ドライバは設定で選択）
	var (
		messageStore store.MessageStore
		err          error
	)
	switch cfg.StoreDriver {
	case "sqlite":
		messageStore, err = store.NewSQLiteStore(ctx, cfg.SQLitePath)
	case "postgres":
		messageStore, err = store.NewPostgresStore(ctx, cfg.DatabaseURL)
	case "redis":
		messageStore, err = store.NewRedisStore(ctx, cfg.RedisAddr)
	default:
		logger.Fatal().Str("driver", cfg.StoreDriver).Msg("unknown store driver")
	}
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.StoreDriver).Msg("failed to open message store")
	}
	logger.Info().Str("driver", cfg.StoreDriver).Msg("message store ready")

	roomHub := hub.New(logger)
	history := service.NewHistoryService(messageStore, cfg.HistoryLimit, logger)

	// ハートビート監視を開始
	monitor := hub.NewMonitor(roomHub, time.Duration(cfg.HeartbeatSec)*time.Second, logger)
	monitor.Start()

	// 古いメッセージの整理を開始
	retentionCtx, stopRetention := context.WithCancel(ctx)
	go history.RunRetention(retentionCtx, retentionInterval, time.Duration(cfg.RetentionDays)*24*time.Hour)

	wsHandler := handlers.NewWebSocketHandler(roomHub, history, logger)
	roomHandler := handlers.NewRoomHandler(roomHub)
	router := httpx.NewRouter(roomHandler, wsHandler, cfg.AllowedOrigin)

	srv := &http.Server{
		Addr:              cfg.APIAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	// Graceful shutdown用のシグナルチャネル
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// サーバーを別goroutineで起動
	go func() {
		logger.Info().Str("addr", cfg.APIAddr).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	// シャットダウンシグナルを待つ
	<-sigChan
	logger.Info().Msg("shutdown signal received, shutting down gracefully...")

	// 新規接続の受付を止める（30秒のタイムアウト）
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown error")
	}

	// 順序が重要: タイマー停止 → 全接続のクローズ → ストアの解放
	monitor.Stop()
	stopRetention()
	roomHub.CloseAll()
	if err := messageStore.Close(); err != nil {
		logger.Error().Err(err).Msg("store close error")
	}

	logger.Info().Msg("server stopped")
}

// newLogger は実行環境に応じたロガーを作成します
// 開発環境では人間向けのコンソール出力、それ以外ではJSON出力になります
func newLogger(cfg config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}

	if cfg.IsDevelopment() {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			Level(level).
			With().
			Timestamp().
			Logger()
	}
	return zerolog.New(os.Stdout).
		Level(level).
		With().
		Timestamp().
		Logger()
}
