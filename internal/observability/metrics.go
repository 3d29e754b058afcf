// Package observability groups the Prometheus instruments for go-orbit.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Session state gauge values.
const (
	StateIdle       = 0
	StateConnecting = 1
	StateOpen       = 2
	StateClosed     = 3
)

// Metrics groups all Prometheus instruments used by the client.
type Metrics struct {
	AudioFramesSent   prometheus.Counter
	ChunksScheduled   prometheus.Counter
	PlaybackFlushes   prometheus.Counter
	ReconnectAttempts prometheus.Counter
	ToolCalls         *prometheus.CounterVec
	SessionState      prometheus.Gauge

	registry *prometheus.Registry
}

// New creates the instrument set on its own registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		AudioFramesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "orbit",
			Name:      "audio_frames_sent_total",
			Help:      "Captured audio frames sent upstream.",
		}),
		ChunksScheduled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "orbit",
			Name:      "audio_chunks_scheduled_total",
			Help:      "Inbound audio chunks scheduled for playback.",
		}),
		PlaybackFlushes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "orbit",
			Name:      "playback_flushes_total",
			Help:      "Playback flushes triggered by interruptions.",
		}),
		ReconnectAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "orbit",
			Name:      "reconnect_attempts_total",
			Help:      "Reconnection attempts after unclean closes.",
		}),
		ToolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "orbit",
			Name:      "tool_calls_total",
			Help:      "Tool calls by outcome.",
		}, []string{"outcome"}),
		SessionState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "orbit",
			Name:      "session_state",
			Help:      "Current session state (0 idle, 1 connecting, 2 open, 3 closed).",
		}),
		registry: reg,
	}

	reg.MustRegister(
		m.AudioFramesSent,
		m.ChunksScheduled,
		m.PlaybackFlushes,
		m.ReconnectAttempts,
		m.ToolCalls,
		m.SessionState,
	)
	return m
}

// Handler returns the HTTP handler serving this instrument set.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
