// Package models はアプリケーションで使用するデータ構造を定義します
package models

import "time"

// メッセージ種別（テキストまたは画像）
const (
	MessageTypeText  = "text"
	MessageTypeImage = "image"
)

// Message はチャットルームで交換されるコンテンツイベントを表します
// 本文はエンドポイント側で暗号化済みの場合があるため、サーバーは中身を解釈しません
type Message struct {
	Id          string    `json:"id"`                    // メッセージの一意な識別子（ULID）
	RoomId      string    `json:"-"`                     // 所属ルームID（ワイヤー上には出さない）
	Type        string    `json:"type"`                  // "text" または "image"
	Content     string    `json:"content"`               // 本文（不透明なペイロード）
	Language    string    `json:"language,omitempty"`    // 言語ヒント（オプショナル）
	Sender      string    `json:"sender"`                // 送信者の表示名
	SenderId    string    `json:"senderId"`              // 送信者のユーザーID
	RecipientId string    `json:"recipientId,omitempty"` // 宛先ユーザーID（ダイレクトメッセージ時のみ）
	Timestamp   time.Time `json:"timestamp"`             // 送信日時
	IsMine      bool      `json:"isMine"`                // 受信者ごとに設定される自分のメッセージかどうかのフラグ
}

// WithOwnership は受信者視点の IsMine を設定したコピーを返します
func (m Message) WithOwnership(userId string) Message {
	m.IsMine = m.SenderId == userId
	return m
}

// RoomInfo はルーム一覧APIで返すルームの概要です
type RoomInfo struct {
	Id        string `json:"id"`        // ルームID
	UserCount int    `json:"userCount"` // 現在の参加者数
}
