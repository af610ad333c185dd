package hub

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cipherhall/chat-server/internal/metrics"
)

// Monitor は全接続の生存確認を定期的に行います
// スイープのたびに、生存フラグの落ちている接続を強制切断し、
// それ以外の接続はフラグを落としてプローブを送ります
// 応答のない接続は2回目のスイープで切断されます（1インターバル分の猶予）
type Monitor struct {
	hub      *RoomHub
	interval time.Duration
	log      zerolog.Logger

	stopOnce sync.Once
	done     chan struct{}
	stopped  chan struct{}
}

// NewMonitor は新しいハートビート監視を作成します
func NewMonitor(h *RoomHub, interval time.Duration, log zerolog.Logger) *Monitor {
	return &Monitor{
		hub:      h,
		interval: interval,
		log:      log.With().Str("component", "heartbeat").Logger(),
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
}

// Start は監視ループを開始します
func (m *Monitor) Start() {
	go m.run()
}

// Stop は監視ループを停止し、停止完了まで待ちます
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() {
		close(m.done)
	})
	<-m.stopped
}

func (m *Monitor) run() {
	defer close(m.stopped)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.sweep()
		}
	}
}

// sweep は全接続を1回走査します
func (m *Monitor) sweep() {
	for _, c := range m.hub.AllClients() {
		if !c.Alive() {
			m.log.Info().
				Str("roomId", c.RoomId()).
				Str("userId", c.UserId()).
				Msg("heartbeat timeout, closing connection")
			metrics.HeartbeatEvictions.Inc()
			// 切断によって受信ループが終了し、通常の退出処理が走る
			if c.BeginClose() {
				c.Close()
			}
			continue
		}

		c.SetAlive(false)
		if err := c.Ping(); err != nil {
			m.log.Debug().
				Str("userId", c.UserId()).
				Err(err).
				Msg("ping failed")
		}
	}
}
