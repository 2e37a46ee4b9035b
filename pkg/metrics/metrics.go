package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the engine's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	DispatchTotal    *prometheus.CounterVec
	ChannelSendTotal *prometheus.CounterVec
	JobsTotal        *prometheus.CounterVec
	ReconcileTotal   *prometheus.CounterVec
	QueueDepth       *prometheus.GaugeVec
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		DispatchTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "notify_dispatch_total",
			Help: "Domain events dispatched, by outcome",
		}, []string{"outcome"}),
		ChannelSendTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "notify_channel_send_total",
			Help: "Channel send attempts, by channel and result",
		}, []string{"channel", "result"}),
		JobsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "notify_jobs_total",
			Help: "Notification job state transitions",
		}, []string{"state"}),
		ReconcileTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "notify_reconcile_total",
			Help: "Payment reconcile decisions, by result",
		}, []string{"result"}),
		QueueDepth: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "notify_queue_depth",
			Help: "Jobs currently held by the retry queue, by set",
		}, []string{"set"}),
	}
}

func (m *Metrics) IncDispatch(outcome string) {
	if m == nil {
		return
	}
	m.DispatchTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncChannelSend(channel, result string) {
	if m == nil {
		return
	}
	m.ChannelSendTotal.WithLabelValues(channel, result).Inc()
}

func (m *Metrics) IncJob(state string) {
	if m == nil {
		return
	}
	m.JobsTotal.WithLabelValues(state).Inc()
}

func (m *Metrics) IncReconcile(result string) {
	if m == nil {
		return
	}
	m.ReconcileTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) SetQueueDepth(set string, n int64) {
	if m == nil {
		return
	}
	m.QueueDepth.WithLabelValues(set).Set(float64(n))
}
