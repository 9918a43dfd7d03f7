package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/suPer8Hu/hackchat/internal/chat"
)

// Metrics owns a private registry so several instances can coexist in tests.
type Metrics struct {
	reg *prometheus.Registry

	commits          *prometheus.CounterVec
	repliesScheduled prometheus.Counter
	repliesDelivered prometheus.Counter
	repliesFailed    prometheus.Counter
	repliesDropped   *prometheus.CounterVec
	replyLatency     prometheus.Histogram
	persistFailures  *prometheus.CounterVec
	publishFailures  prometheus.Counter
	conversations    prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		commits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hackchat",
			Name:      "commits_total",
			Help:      "Committed state mutations by kind.",
		}, []string{"kind"}),
		repliesScheduled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hackchat",
			Name:      "replies_scheduled_total",
			Help:      "Bot replies queued.",
		}),
		repliesDelivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hackchat",
			Name:      "replies_delivered_total",
			Help:      "Bot replies committed.",
		}),
		repliesFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hackchat",
			Name:      "replies_failed_total",
			Help:      "Bot replies whose generation failed.",
		}),
		repliesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hackchat",
			Name:      "replies_dropped_total",
			Help:      "Bot replies dropped before delivery.",
		}, []string{"reason"}),
		replyLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "hackchat",
			Name:      "reply_latency_seconds",
			Help:      "Time from scheduling to delivery of a bot reply.",
			Buckets:   []float64{0.25, 0.5, 1, 1.5, 2, 2.5, 3, 5, 10},
		}),
		persistFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hackchat",
			Name:      "persist_failures_total",
			Help:      "Snapshot reads and writes that failed.",
		}, []string{"op"}),
		publishFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hackchat",
			Name:      "publish_failures_total",
			Help:      "Change notifications that could not be published.",
		}),
		conversations: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "hackchat",
			Name:      "conversations",
			Help:      "Number of conversations in the state.",
		}),
	}
	m.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.commits,
		m.repliesScheduled,
		m.repliesDelivered,
		m.repliesFailed,
		m.repliesDropped,
		m.replyLatency,
		m.persistFailures,
		m.publishFailures,
		m.conversations,
	)
	return m
}

// WatchPending exports fn as the pending replies gauge.
func (m *Metrics) WatchPending(fn func() int) {
	m.reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "hackchat",
		Name:      "replies_pending",
		Help:      "Bot replies waiting in the scheduler.",
	}, func() float64 { return float64(fn()) }))
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Committed makes Metrics a store observer.
func (m *Metrics) Committed(_ context.Context, change chat.Change, state chat.State) {
	m.commits.WithLabelValues(string(change.Kind)).Inc()
	m.conversations.Set(float64(state.Conversations.Len()))
}

func (m *Metrics) ReplyScheduled() { m.repliesScheduled.Inc() }

func (m *Metrics) ReplyDelivered(latency time.Duration) {
	m.repliesDelivered.Inc()
	m.replyLatency.Observe(latency.Seconds())
}

func (m *Metrics) ReplyDropped(reason string, n int) {
	m.repliesDropped.WithLabelValues(reason).Add(float64(n))
}

func (m *Metrics) ReplyFailed() { m.repliesFailed.Inc() }

func (m *Metrics) PersistFailed(op string) { m.persistFailures.WithLabelValues(op).Inc() }

func (m *Metrics) PublishFailed() { m.publishFailures.Inc() }
