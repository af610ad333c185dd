// Package hub はルームごとのWebSocket接続を管理します
// スレッドセーフな実装により、複数のgoroutineから同時にアクセス可能です
package hub

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/cipherhall/chat-server/internal/metrics"
	"github.com/cipherhall/chat-server/internal/models"
)

// Conn は物理接続（WebSocketアダプタ）の抽象です
// Send はベストエフォート配信であり、送信できない場合はエラーを返します
type Conn interface {
	Send(data []byte) error // フレームを送信キューに積む
	Ping() error            // 生存確認のプローブを送る
	Close() error           // 接続を閉じる
}

// 接続のライフサイクル状態
type State int32

const (
	StateConnecting State = iota // ハンドシェイク中
	StateJoined                  // ルームに参加済み
	StateClosing                 // 切断処理中
	StateClosed                  // 切断完了
)

// Client は1つの接続のルーム内での在室情報を表します
// 1つのClientはその生存期間中ちょうど1つのルームに属します
type Client struct {
	roomId   string
	userId   string
	userName string
	conn     Conn

	mu        sync.Mutex
	publicKey string
	alive     bool
	state     State
}

// NewClient は新しいClientを作成します
// 作成直後は生存フラグが立った connecting 状態です
func NewClient(roomId, userId, userName string, conn Conn) *Client {
	return &Client{
		roomId:   roomId,
		userId:   userId,
		userName: userName,
		conn:     conn,
		alive:    true,
		state:    StateConnecting,
	}
}

func (c *Client) RoomId() string   { return c.roomId }
func (c *Client) UserId() string   { return c.userId }
func (c *Client) UserName() string { return c.userName }

// PublicKey は登録済みの公開鍵を返します（未登録の場合は空文字列）
func (c *Client) PublicKey() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.publicKey
}

// SetPublicKey は公開鍵を設定します（再登録時は上書き）
func (c *Client) SetPublicKey(key string) {
	c.mu.Lock()
	c.publicKey = key
	c.mu.Unlock()
}

// Alive は生存フラグを返します
func (c *Client) Alive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.alive
}

// SetAlive は生存フラグを設定します
// プローブ送信時にfalse、応答受信時にtrueが設定されます
func (c *Client) SetAlive(v bool) {
	c.mu.Lock()
	c.alive = v
	c.mu.Unlock()
}

// State は接続の現在の状態を返します
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// BeginClose は joined → closing の遷移を試みます
// すでに切断処理中の場合はfalseを返します（二重切断の防止）
func (c *Client) BeginClose() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateClosing || c.state == StateClosed {
		return false
	}
	c.state = StateClosing
	return true
}

// Send はこの接続へフレームをベストエフォートで配信します
// 接続が送信可能な状態でなければ黙って破棄されます（キューイングもリトライもしない）
func (c *Client) Send(data []byte) error {
	return c.conn.Send(data)
}

// Ping は生存確認のプローブを送ります
func (c *Client) Ping() error {
	return c.conn.Ping()
}

// Close は接続を強制的に閉じます
func (c *Client) Close() error {
	err := c.conn.Close()
	c.setState(StateClosed)
	return err
}

// Room は1つのルームの接続集合を管理します
type Room struct {
	roomId  string
	clients map[string]*Client // ユーザーIDをキーとしたクライアントのマップ
	mu      sync.RWMutex       // 読み書きのロック
}

// RoomHub はルームIDをキーとしてルームの集合を管理します
// ルームは最初の入室時に作成され、空になった時点で削除されます
type RoomHub struct {
	rooms map[string]*Room
	mu    sync.RWMutex
	log   zerolog.Logger
}

// New は新しいRoomHubを作成します
func New(log zerolog.Logger) *RoomHub {
	return &RoomHub{
		rooms: make(map[string]*Room),
		log:   log.With().Str("component", "hub").Logger(),
	}
}

// AddClient はクライアントをルームに登録します
// ルームが存在しない場合は作成し、同じuserIdの既存エントリは置き換えます
// （同一IDでの再接続）置き換えられた側の接続は閉じられます
// メンバー挿入までハブのロックを保持し、並行するRemoveClientによる
// ルーム削除と交錯しないようにします
func (h *RoomHub) AddClient(c *Client) {
	h.mu.Lock()
	room, exists := h.rooms[c.roomId]
	if !exists {
		room = &Room{
			roomId:  c.roomId,
			clients: make(map[string]*Client),
		}
		h.rooms[c.roomId] = room
		metrics.RoomsActive.Inc()
		h.log.Info().Str("roomId", c.roomId).Msg("room created")
	}

	room.mu.Lock()
	prev := room.clients[c.userId]
	room.clients[c.userId] = c
	count := len(room.clients)
	room.mu.Unlock()
	h.mu.Unlock()

	if prev != nil {
		prev.Close()
	} else {
		metrics.ConnectionsOpen.Inc()
	}
	c.setState(StateJoined)

	h.log.Info().
		Str("roomId", c.roomId).
		Str("userId", c.userId).
		Int("clients", count).
		Msg("client joined")
}

// RemoveClient はクライアントの登録を解除します
// 置き換え済みのエントリ（再接続後の古い接続）は対象外です
// ルームが空になった場合はルーム自体を削除します
func (h *RoomHub) RemoveClient(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, exists := h.rooms[c.roomId]
	if !exists {
		return false
	}

	room.mu.Lock()
	cur, present := room.clients[c.userId]
	if !present || cur != c {
		room.mu.Unlock()
		return false
	}
	delete(room.clients, c.userId)
	count := len(room.clients)
	room.mu.Unlock()

	metrics.ConnectionsOpen.Dec()
	h.log.Info().
		Str("roomId", c.roomId).
		Str("userId", c.userId).
		Int("clients", count).
		Msg("client left")

	// 部屋が空になったら削除
	if count == 0 {
		delete(h.rooms, c.roomId)
		metrics.RoomsActive.Dec()
		h.log.Info().Str("roomId", c.roomId).Msg("room removed (empty)")
	}
	return true
}

// Client は指定ルームのクライアントを返します
func (h *RoomHub) Client(roomId, userId string) (*Client, bool) {
	h.mu.RLock()
	room, exists := h.rooms[roomId]
	h.mu.RUnlock()
	if !exists {
		return nil, false
	}

	room.mu.RLock()
	defer room.mu.RUnlock()
	c, ok := room.clients[userId]
	return c, ok
}

// SetPublicKey は指定ユーザーの公開鍵を設定します
// ユーザーが存在しない場合はfalseを返します
func (h *RoomHub) SetPublicKey(roomId, userId, key string) bool {
	c, ok := h.Client(roomId, userId)
	if !ok {
		return false
	}
	c.SetPublicKey(key)
	return true
}

// Snapshot は指定ルームの現在のクライアント一覧のコピーを返します
// 返り値はその後のルームの変更を反映しません（ブロードキャスト用）
func (h *RoomHub) Snapshot(roomId string) []*Client {
	h.mu.RLock()
	room, exists := h.rooms[roomId]
	h.mu.RUnlock()
	if !exists {
		return nil
	}

	room.mu.RLock()
	defer room.mu.RUnlock()
	clients := make([]*Client, 0, len(room.clients))
	for _, c := range room.clients {
		clients = append(clients, c)
	}
	return clients
}

// IsEmpty はルームが空（または存在しない）かどうかを返します
func (h *RoomHub) IsEmpty(roomId string) bool {
	h.mu.RLock()
	room, exists := h.rooms[roomId]
	h.mu.RUnlock()
	if !exists {
		return true
	}

	room.mu.RLock()
	defer room.mu.RUnlock()
	return len(room.clients) == 0
}

// DeleteRoom はルームを削除します
func (h *RoomHub) DeleteRoom(roomId string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.rooms[roomId]; !exists {
		return false
	}
	delete(h.rooms, roomId)
	metrics.RoomsActive.Dec()
	return true
}

// Broadcast は指定ルームの全クライアントへフレームを送信します
// excludeUserIdが空でない場合、そのユーザーはスキップします
// 配信はベストエフォートであり、送信できない相手は黙って読み飛ばします
func (h *RoomHub) Broadcast(roomId string, data []byte, excludeUserId string) {
	for _, c := range h.Snapshot(roomId) {
		if excludeUserId != "" && c.userId == excludeUserId {
			continue
		}
		if err := c.Send(data); err != nil {
			h.log.Debug().
				Str("roomId", roomId).
				Str("userId", c.userId).
				Err(err).
				Msg("frame dropped")
		}
	}
}

// AllClients は全ルームの全クライアントのスナップショットを返します
// ハートビート監視とシャットダウン処理で使用します
func (h *RoomHub) AllClients() []*Client {
	h.mu.RLock()
	rooms := make([]*Room, 0, len(h.rooms))
	for _, room := range h.rooms {
		rooms = append(rooms, room)
	}
	h.mu.RUnlock()

	var clients []*Client
	for _, room := range rooms {
		room.mu.RLock()
		for _, c := range room.clients {
			clients = append(clients, c)
		}
		room.mu.RUnlock()
	}
	return clients
}

// CloseAll は全接続を閉じます（シャットダウン時）
func (h *RoomHub) CloseAll() {
	for _, c := range h.AllClients() {
		if c.BeginClose() {
			c.Close()
		}
	}
}

// RoomsInfo は全ルームの概要一覧を返します
func (h *RoomHub) RoomsInfo() []models.RoomInfo {
	h.mu.RLock()
	defer h.mu.RUnlock()

	infos := make([]models.RoomInfo, 0, len(h.rooms))
	for roomId, room := range h.rooms {
		room.mu.RLock()
		infos = append(infos, models.RoomInfo{Id: roomId, UserCount: len(room.clients)})
		room.mu.RUnlock()
	}
	return infos
}

// Stats は現在のルーム数とクライアント数を返します
func (h *RoomHub) Stats() (rooms, clients int) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	rooms = len(h.rooms)
	for _, room := range h.rooms {
		room.mu.RLock()
		clients += len(room.clients)
		room.mu.RUnlock()
	}
	return rooms, clients
}
