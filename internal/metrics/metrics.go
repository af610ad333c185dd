// Package metrics はPrometheus向けのメトリクスを定義します
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ConnectionsOpen は現在オープンしているWebSocket接続数
	ConnectionsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cipherhall_connections_open",
			Help: "Currently open websocket connections",
		},
	)

	// RoomsActive は現在アクティブなルーム数
	RoomsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cipherhall_rooms_active",
			Help: "Currently active rooms",
		},
	)

	// MessagesRelayed は配信されたコンテンツメッセージの総数
	MessagesRelayed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cipherhall_messages_relayed_total",
			Help: "Total content messages fanned out",
		},
		[]string{"type"}, // "text" または "image"
	)

	// MessagesDropped は永続化失敗により破棄されたメッセージの総数
	MessagesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cipherhall_messages_dropped_total",
			Help: "Total content messages dropped before fan-out (persistence failure)",
		},
	)

	// HeartbeatEvictions はハートビート超過で切断された接続の総数
	HeartbeatEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cipherhall_heartbeat_evictions_total",
			Help: "Total connections evicted by the heartbeat monitor",
		},
	)

	// StoreLatency は履歴ストア操作のレイテンシ
	StoreLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cipherhall_store_latency_seconds",
			Help:    "History store operation latency",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5},
		},
		[]string{"op"}, // "append" / "recent" / "purge"
	)
)
