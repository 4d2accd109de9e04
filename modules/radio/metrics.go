package radio

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "radiogo"

type metrics struct {
	receivedBytes   prometheus.Counter
	droppedBytes    prometheus.Counter
	metadataUpdates prometheus.Counter
	sessions        prometheus.Counter
	staleChunks     prometheus.Counter
	splitMetadata   prometheus.Counter
	bufferFill      prometheus.Gauge
	state           *prometheus.GaugeVec
}

// newMetrics registers with reg; a nil reg leaves the collectors unregistered.
func newMetrics(reg prometheus.Registerer) *metrics {
	f := promauto.With(reg)

	return &metrics{
		receivedBytes: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "radio_received_bytes_total",
			Help:      "Audio bytes received from the stream, excluding ICY metadata.",
		}),
		droppedBytes: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "radio_dropped_bytes_total",
			Help:      "Audio bytes discarded because the buffer was full.",
		}),
		metadataUpdates: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "radio_metadata_updates_total",
			Help:      "Track title changes seen in the stream.",
		}),
		sessions: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "radio_sessions_total",
			Help:      "Streams started.",
		}),
		staleChunks: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "radio_stale_chunks_total",
			Help:      "Chunks received by a superseded connection and discarded.",
		}),
		splitMetadata: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "radio_split_metadata_total",
			Help:      "Metadata blocks dropped because they crossed a chunk boundary.",
		}),
		bufferFill: f.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "radio_buffer_fill_ratio",
			Help:      "Fraction of the stream buffer holding unread audio.",
		}),
		state: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "radio_state",
			Help:      "1 for the current playback state, 0 for the others.",
		}, []string{"state"}),
	}
}

func (m *metrics) setState(s State) {
	for _, st := range allStates {
		v := 0.0
		if st == s {
			v = 1
		}
		m.state.WithLabelValues(st.String()).Set(v)
	}
}
