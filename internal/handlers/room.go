package handlers

import (
	"net/http"
	"time"

	"github.com/cipherhall/chat-server/internal/hub"
)

// RoomHandler はルーム情報のREST APIを処理するハンドラー
type RoomHandler struct {
	hub *hub.RoomHub
}

// NewRoomHandler は新しいRoomHandlerを作成します
func NewRoomHandler(h *hub.RoomHub) *RoomHandler { return &RoomHandler{hub: h} }

// List は現在アクティブな全ルームの概要一覧を返します
func (h *RoomHandler) List(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.hub.RoomsInfo())
}

// Health はヘルスチェックのレスポンスを返します
func (h *RoomHandler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
