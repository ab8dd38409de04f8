package mbus

import "github.com/prometheus/client_golang/prometheus"

// Frame parse results used as the "result" label.
const (
	resultOK         = "ok"
	resultIncomplete = "incomplete"
	resultMalformed  = "malformed"
	resultChecksum   = "checksum"
)

// Metrics holds the scheduler's Prometheus collectors. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	CommandsSent  prometheus.Counter
	Responses     prometheus.Counter
	Timeouts      prometheus.Counter
	SendFailures  prometheus.Counter
	BytesReceived prometheus.Counter
	Frames        *prometheus.CounterVec // labels: result=ok|incomplete|malformed|checksum
	QueueDepth    prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CommandsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mbus_commands_sent_total",
			Help: "Total commands written to the link.",
		}),
		Responses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mbus_responses_total",
			Help: "Total responses matched to a command.",
		}),
		Timeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mbus_timeouts_total",
			Help: "Total commands retired without a response.",
		}),
		SendFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mbus_send_failures_total",
			Help: "Total failed writes to the link.",
		}),
		BytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mbus_bytes_received_total",
			Help: "Total bytes read from the link.",
		}),
		Frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mbus_frames_total",
			Help: "Frame parse attempts by result.",
		}, []string{"result"}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mbus_queue_depth",
			Help: "Commands currently queued, including the one in flight.",
		}),
	}
	reg.MustRegister(m.CommandsSent, m.Responses, m.Timeouts, m.SendFailures, m.BytesReceived, m.Frames, m.QueueDepth)
	return m
}

func (m *Metrics) incSent() {
	if m != nil {
		m.CommandsSent.Inc()
	}
}

func (m *Metrics) incResponse() {
	if m != nil {
		m.Responses.Inc()
	}
}

func (m *Metrics) incTimeout() {
	if m != nil {
		m.Timeouts.Inc()
	}
}

func (m *Metrics) incSendFailure() {
	if m != nil {
		m.SendFailures.Inc()
	}
}

func (m *Metrics) addBytes(n int) {
	if m != nil {
		m.BytesReceived.Add(float64(n))
	}
}

func (m *Metrics) observeFrame(result string) {
	if m != nil {
		m.Frames.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) setQueueDepth(n int) {
	if m != nil {
		m.QueueDepth.Set(float64(n))
	}
}
