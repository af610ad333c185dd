package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/cipherhall/chat-server/internal/hub"
	"github.com/cipherhall/chat-server/internal/idgen"
	"github.com/cipherhall/chat-server/internal/metrics"
	"github.com/cipherhall/chat-server/internal/models"
	"github.com/cipherhall/chat-server/internal/service"
	"github.com/cipherhall/chat-server/internal/ws"
)

const (
	defaultRoomId  = "default"        // roomId省略時のルーム
	maxMessageSize = 1 << 20          // 受信フレームの上限（画像ペイロード込みで1MB）
	historyTimeout = 10 * time.Second // 履歴取得のタイムアウト
)

// inboundEvent はクライアントから受信するイベントの封筒
// typeに応じて使用されるフィールドが変わります
type inboundEvent struct {
	Type        string `json:"type"`                  // "register" / "text" / "image" / "typing"
	Content     string `json:"content,omitempty"`     // 本文（text/image時）
	Language    string `json:"language,omitempty"`    // 言語ヒント（オプショナル）
	RecipientId string `json:"recipientId,omitempty"` // 宛先ユーザーID（ダイレクトメッセージ時）
	PublicKey   string `json:"publicKey,omitempty"`   // 公開鍵（register時）
	IsTyping    bool   `json:"isTyping,omitempty"`    // 入力中フラグ（typing時）
}

// userInfo はロースター（在室者一覧）に載せるユーザーの公開情報
type userInfo struct {
	Id        string `json:"id"`
	Name      string `json:"name"`
	PublicKey string `json:"publicKey,omitempty"`
}

// userListFrame は入室直後に送るロースターのスナップショット
type userListFrame struct {
	Type  string     `json:"type"` // "userList"
	Users []userInfo `json:"users"`
}

// historyFrame は入室時の履歴再生
type historyFrame struct {
	Type     string           `json:"type"` // "history"
	Messages []models.Message `json:"messages"`
}

// userJoinFrame は入室通知
type userJoinFrame struct {
	Type string   `json:"type"` // "userJoin"
	User userInfo `json:"user"`
}

// userLeaveFrame は退出通知
type userLeaveFrame struct {
	Type   string `json:"type"` // "userLeave"
	UserId string `json:"userId"`
}

// typingFrame は入力中シグナルの中継
type typingFrame struct {
	Type     string `json:"type"` // "typing"
	UserId   string `json:"userId"`
	UserName string `json:"userName"`
	IsTyping bool   `json:"isTyping"`
}

// WebSocketHandler はWebSocket接続とルーム内イベントの中継を処理するハンドラー
type WebSocketHandler struct {
	hub      *hub.RoomHub            // 接続とルームを管理するハブ
	history  *service.HistoryService // メッセージ履歴サービス
	upgrader websocket.Upgrader      // HTTPからWebSocketへのアップグレーダー
	log      zerolog.Logger
}

// NewWebSocketHandler は新しいWebSocketHandlerを作成します
func NewWebSocketHandler(h *hub.RoomHub, history *service.HistoryService, log zerolog.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		hub:     h,
		history: history,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// 本番環境では適切なOriginチェックを実装してください
				return true
			},
		},
		log: log.With().Str("component", "relay").Logger(),
	}
}

// HandleWebSocket はWebSocket接続を処理します
// 接続後、以下の処理を行います:
// 1. ハンドシェイクパラメータの解決（省略時はデフォルト値を生成）
// 2. HTTPからWebSocketへのアップグレードとルームへの登録
// 3. 入室シーケンス（ロースター送信 → 履歴の非同期再生 → 入室通知）
// 4. メッセージ受信ループの開始
// 5. 切断時の自動退出処理とクリーンアップ
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	roomId := normalizeID(q.Get("roomId"))
	if roomId == "" {
		roomId = defaultRoomId
	}
	userId := normalizeID(q.Get("userId"))
	if userId == "" {
		userId = idgen.NewUserID()
	}
	userName := strings.TrimSpace(q.Get("userName"))
	if userName == "" {
		userName = defaultUserName(userId)
	}

	// WebSocket接続にアップグレード
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	wsConn := ws.NewConn(conn)
	client := hub.NewClient(roomId, userId, userName, wsConn)
	h.hub.AddClient(client)

	defer func() {
		// 切断時にユーザーをルームから退出させる
		client.BeginClose()
		removed := h.hub.RemoveClient(client)
		wsConn.Close()
		if removed {
			// 残っているメンバーに退出を通知（誰もいなければ何も起きない）
			h.broadcastFrame(roomId, userLeaveFrame{Type: "userLeave", UserId: userId}, "")
		}
	}()

	conn.SetReadLimit(maxMessageSize)
	// pong受信で生存フラグを戻す（ハートビート監視が参照する）
	conn.SetPongHandler(func(string) error {
		client.SetAlive(true)
		return nil
	})

	h.log.Info().
		Str("roomId", roomId).
		Str("userId", userId).
		Str("userName", userName).
		Msg("websocket connected")

	// 入室シーケンス
	h.sendUserList(client)
	go h.sendHistory(client)
	h.broadcastFrame(roomId, userJoinFrame{
		Type: "userJoin",
		User: userInfo{Id: userId, Name: userName},
	}, userId)

	// メッセージ受信ループ
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				h.log.Warn().Str("userId", userId).Err(err).Msg("websocket read error")
			}
			break
		}
		// 切断処理が始まっていたらイベントは処理しない
		if client.State() != hub.StateJoined {
			break
		}
		h.handleEvent(r.Context(), client, data)
	}
}

// handleEvent は受信イベントを種別に応じてディスパッチします
// パース不能なペイロードはログに残して読み飛ばします（接続は維持）
func (h *WebSocketHandler) handleEvent(ctx context.Context, c *hub.Client, data []byte) {
	var ev inboundEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		h.log.Warn().
			Str("roomId", c.RoomId()).
			Str("userId", c.UserId()).
			Err(err).
			Msg("malformed event payload")
		return
	}

	switch ev.Type {
	case "register":
		h.handleRegister(c, ev)
	case models.MessageTypeText, models.MessageTypeImage:
		h.handleContent(ctx, c, ev)
	case "typing":
		h.handleTyping(c, ev)
	default:
		h.log.Warn().Str("type", ev.Type).Msg("unknown event type")
	}
}

// handleRegister はユーザーの公開鍵登録を処理します（再登録時は上書き）
func (h *WebSocketHandler) handleRegister(c *hub.Client, ev inboundEvent) {
	if !h.hub.SetPublicKey(c.RoomId(), c.UserId(), ev.PublicKey) {
		h.log.Warn().
			Str("roomId", c.RoomId()).
			Str("userId", c.UserId()).
			Msg("register for unknown member")
	}
}

// handleContent はテキスト/画像メッセージを処理します
// 処理の流れ:
// 1. メッセージオブジェクトを構築（ID採番とタイムスタンプ付与）
// 2. 履歴ストアへ永続化（失敗した場合は配信しない）
// 3. ルームへファンアウト（受信者ごとに isMine を設定）
func (h *WebSocketHandler) handleContent(ctx context.Context, c *hub.Client, ev inboundEvent) {
	msg := models.Message{
		Id:          idgen.NewULID(),
		RoomId:      c.RoomId(),
		Type:        ev.Type,
		Content:     ev.Content,
		Language:    ev.Language,
		Sender:      c.UserName(),
		SenderId:    c.UserId(),
		RecipientId: normalizeID(ev.RecipientId),
		Timestamp:   time.Now().UTC(),
	}

	if err := h.history.Record(ctx, msg); err != nil {
		// 永続化できなかったメッセージは誰にも配信しない
		metrics.MessagesDropped.Inc()
		h.log.Error().
			Str("roomId", msg.RoomId).
			Str("messageId", msg.Id).
			Err(err).
			Msg("message not persisted, fan-out skipped")
		return
	}

	h.fanOut(c, msg)
	metrics.MessagesRelayed.WithLabelValues(msg.Type).Inc()
}

// fanOut はメッセージをルームへ配信します
// recipientIdが指定されている場合は宛先と送信者のエコーのみに届けます
func (h *WebSocketHandler) fanOut(sender *hub.Client, msg models.Message) {
	var targets []*hub.Client
	if msg.RecipientId != "" {
		if rc, ok := h.hub.Client(msg.RoomId, msg.RecipientId); ok {
			targets = append(targets, rc)
		}
		if msg.RecipientId != sender.UserId() {
			targets = append(targets, sender)
		}
	} else {
		targets = h.hub.Snapshot(msg.RoomId)
	}

	for _, t := range targets {
		h.sendFrame(t, msg.WithOwnership(t.UserId()))
	}
}

// handleTyping は入力中シグナルを送信者以外へ中継します（状態は持たない）
func (h *WebSocketHandler) handleTyping(c *hub.Client, ev inboundEvent) {
	h.broadcastFrame(c.RoomId(), typingFrame{
		Type:     "typing",
		UserId:   c.UserId(),
		UserName: c.UserName(),
		IsTyping: ev.IsTyping,
	}, c.UserId())
}

// sendUserList は入室したユーザーへ現在のロースターを送ります（自分自身は含めない）
func (h *WebSocketHandler) sendUserList(c *hub.Client) {
	snapshot := h.hub.Snapshot(c.RoomId())
	users := make([]userInfo, 0, len(snapshot))
	for _, other := range snapshot {
		if other.UserId() == c.UserId() {
			continue
		}
		users = append(users, userInfo{
			Id:        other.UserId(),
			Name:      other.UserName(),
			PublicKey: other.PublicKey(),
		})
	}
	h.sendFrame(c, userListFrame{Type: "userList", Users: users})
}

// sendHistory はルームの履歴を取得して入室したユーザーへ送ります
// 取得失敗は入室を妨げません（ログのみ）
func (h *WebSocketHandler) sendHistory(c *hub.Client) {
	ctx, cancel := context.WithTimeout(context.Background(), historyTimeout)
	defer cancel()

	msgs, err := h.history.Replay(ctx, c.RoomId(), c.UserId())
	if err != nil {
		h.log.Error().
			Str("roomId", c.RoomId()).
			Str("userId", c.UserId()).
			Err(err).
			Msg("history fetch failed")
		return
	}
	h.sendFrame(c, historyFrame{Type: "history", Messages: msgs})
}

// sendFrame は1人のユーザーへフレームを送ります（送信不能時は破棄）
func (h *WebSocketHandler) sendFrame(c *hub.Client, frame any) {
	b, err := json.Marshal(frame)
	if err != nil {
		h.log.Error().Err(err).Msg("frame marshal failed")
		return
	}
	if err := c.Send(b); err != nil {
		h.log.Debug().Str("userId", c.UserId()).Err(err).Msg("frame dropped")
	}
}

// broadcastFrame はルームの全ユーザーへフレームを送ります（excludeUserIdを除く）
func (h *WebSocketHandler) broadcastFrame(roomId string, frame any, excludeUserId string) {
	b, err := json.Marshal(frame)
	if err != nil {
		h.log.Error().Err(err).Msg("frame marshal failed")
		return
	}
	h.hub.Broadcast(roomId, b, excludeUserId)
}

// defaultUserName はuserNameが省略された場合の表示名を導出します
// userIdはクライアントが指定できるため、文字（rune）単位で切り詰めます
func defaultUserName(userId string) string {
	if r := []rune(userId); len(r) > 4 {
		return "用户" + string(r[:4])
	}
	return "用户" + userId
}
