package service

import "errors"

// カスタムエラー定義
var (
	ErrEmptyRoomId = errors.New("roomId required")
)
