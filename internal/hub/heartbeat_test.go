package hub

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestMonitor_EvictsOnSecondUnacknowledgedSweep(t *testing.T) {
	h := newTestHub()
	c, conn := addClient(t, h, "r1", "a")
	m := NewMonitor(h, time.Hour, zerolog.Nop())

	// 1回目のスイープ: フラグを落としてプローブを送るだけ
	m.sweep()
	assert.False(t, conn.isClosed())
	assert.Equal(t, 1, conn.pings)
	assert.False(t, c.Alive())

	// 応答がないまま2回目のスイープ: ここで切断される
	m.sweep()
	assert.True(t, conn.isClosed())
}

func TestMonitor_AcknowledgedClientSurvives(t *testing.T) {
	h := newTestHub()
	c, conn := addClient(t, h, "r1", "a")
	m := NewMonitor(h, time.Hour, zerolog.Nop())

	for i := 0; i < 3; i++ {
		m.sweep()
		// pong受信に相当
		c.SetAlive(true)
	}

	assert.False(t, conn.isClosed())
	assert.Equal(t, 3, conn.pings)
}

func TestMonitor_StartStop(t *testing.T) {
	h := newTestHub()
	m := NewMonitor(h, 10*time.Millisecond, zerolog.Nop())

	m.Start()
	time.Sleep(30 * time.Millisecond)
	m.Stop() // 停止完了まで待つ

	// 停止後はスイープが走らない
	_, conn := addClient(t, h, "r1", "a")
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 0, conn.pings)
}
