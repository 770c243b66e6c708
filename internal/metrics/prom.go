// internal/metrics/prom.go
// Package metrics centralises Prometheus metric registration for the
// gateway process. It exposes package-level collectors so that code in
// internal/transport, internal/p2p, and internal/job can record against
// them without an import cycle. cmd/rtcgateway exposes them through the
// standard promhttp handler on its own HTTP listener (MetricsAddr), in both
// gRPC and P2P modes.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var once sync.Once

var (
	// RPCsTotal counts bridged RPCs by method path and grpc-status code,
	// incremented once per unary response or completed stream.
	RPCsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rtcgateway",
		Subsystem: "bridge",
		Name:      "rpcs_total",
		Help:      "Total bridged RPCs, labeled by method and grpc-status code.",
	}, []string{"method", "grpc_status"})

	// ConnectedPeers tracks the number of WebRTC peers currently present
	// in the orchestrator's peer map.
	ConnectedPeers = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "rtcgateway",
		Subsystem: "p2p",
		Name:      "connected_peers",
		Help:      "Number of WebRTC peers currently connected.",
	})

	// SignalingReconnectsTotal counts each time the signaling client's
	// reconnect loop successfully re-authenticates after a transport drop.
	SignalingReconnectsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "rtcgateway",
		Subsystem: "p2p",
		Name:      "signaling_reconnects_total",
		Help:      "Total successful signaling reconnects.",
	})

	// JobQueueDepth is the number of jobs currently pending (not yet the
	// running job).
	JobQueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "rtcgateway",
		Subsystem: "job",
		Name:      "queue_depth",
		Help:      "Number of jobs waiting in the pending queue.",
	})

	// StreamChunksSentTotal counts file chunks emitted by StreamDownload
	// across all peers and the fallback gRPC path.
	StreamChunksSentTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "rtcgateway",
		Subsystem: "scraper",
		Name:      "stream_chunks_sent_total",
		Help:      "Total file chunks sent by StreamDownload.",
	})
)

// Register exports all metrics to the default registerer; safe to call
// multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			RPCsTotal,
			ConnectedPeers,
			SignalingReconnectsTotal,
			JobQueueDepth,
			StreamChunksSentTotal,
		)
	})
}
