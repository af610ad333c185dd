// Package ws はgorilla/websocket接続をハブの接続抽象に適合させます
// 送信は1本の書き込みgoroutineに集約し、1接続あたりの送信順序を保証します
package ws

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second // 書き込みのデッドライン
	sendBufferSize = 256              // 送信キューの深さ
)

// 送信できない状態を表すエラー（呼び出し側は破棄して続行する）
var (
	ErrConnClosed = errors.New("connection closed")
	ErrSendBusy   = errors.New("send buffer full")
)

// Conn はhub.Connを実装するWebSocketアダプタです
type Conn struct {
	ws   *websocket.Conn
	send chan []byte

	closeOnce sync.Once
	closed    chan struct{}
}

// NewConn は新しいアダプタを作成し、書き込みgoroutineを開始します
func NewConn(wsc *websocket.Conn) *Conn {
	c := &Conn{
		ws:     wsc,
		send:   make(chan []byte, sendBufferSize),
		closed: make(chan struct{}),
	}
	go c.writePump()
	return c
}

// Send はフレームを送信キューに積みます
// 接続が閉じている、またはキューが一杯の場合はエラーを返します
// （キューイングもリトライもしないベストエフォート契約）
func (c *Conn) Send(data []byte) error {
	select {
	case <-c.closed:
		return ErrConnClosed
	default:
	}

	select {
	case c.send <- data:
		return nil
	default:
		return ErrSendBusy
	}
}

// Ping はWebSocketのping制御フレームを送ります
// 制御フレームは書き込みgoroutineと並行して送信できます
func (c *Conn) Ping() error {
	return c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// Close は接続を閉じます（複数回呼んでも安全）
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		err = c.ws.Close()
	})
	return err
}

// writePump は送信キューのフレームを順番に書き出します
func (c *Conn) writePump() {
	defer c.Close()

	for {
		select {
		case <-c.closed:
			return
		case data := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		}
	}
}
