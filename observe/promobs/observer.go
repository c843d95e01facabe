// Package promobs exports ilw records as Prometheus metrics.
package promobs

import (
	"github.com/aponysus/ilw/observe"
	"github.com/prometheus/client_golang/prometheus"
)

type Observer struct {
	logs             *prometheus.CounterVec
	events           *prometheus.CounterVec
	marks            *prometheus.CounterVec
	markDuration     *prometheus.HistogramVec
	timelines        *prometheus.CounterVec
	timelineDuration *prometheus.HistogramVec
}

var _ observe.Observer = (*Observer)(nil)

// New creates the collectors under namespace and registers them with reg
// (the default registerer when nil). It panics if registration fails, as
// prometheus.MustRegister does.
func New(reg prometheus.Registerer, namespace string) *Observer {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	obs := &Observer{
		logs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "logs_total",
				Help:      "Total number of plain log lines.",
			},
			[]string{"level"},
		),
		events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_total",
				Help:      "Total number of typed events.",
			},
			[]string{"name", "level"},
		),
		marks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "marks_total",
				Help:      "Total number of timeline marks.",
			},
			[]string{"timeline", "name", "level"},
		),
		markDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "mark_duration_seconds",
				Help:      "Elapsed time from node start to each mark.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"timeline", "name"},
		),
		timelines: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "timelines_total",
				Help:      "Settled timeline nodes by outcome.",
			},
			[]string{"timeline", "outcome", "root"},
		),
		timelineDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "timeline_duration_seconds",
				Help:      "Time from node start to settlement.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"timeline", "outcome", "root"},
		),
	}

	reg.MustRegister(obs.logs, obs.events, obs.marks, obs.markDuration, obs.timelines, obs.timelineDuration)
	return obs
}

func (o *Observer) OnLog(rec observe.LogRecord) {
	o.logs.WithLabelValues(rec.Level.String()).Inc()
}

func (o *Observer) OnEvent(rec observe.EventRecord) {
	o.events.WithLabelValues(rec.Name, rec.Level.String()).Inc()
}

func (o *Observer) OnMark(rec observe.MarkRecord) {
	o.marks.WithLabelValues(rec.Timeline, rec.Name, rec.Level.String()).Inc()
	o.markDuration.WithLabelValues(rec.Timeline, rec.Name).Observe(rec.Duration.Seconds())
}

func (o *Observer) OnSettle(rec observe.SettleRecord) {
	root := boolLabel(rec.IsRoot())
	o.timelines.WithLabelValues(rec.Timeline, string(rec.Outcome), root).Inc()
	o.timelineDuration.WithLabelValues(rec.Timeline, string(rec.Outcome), root).Observe(rec.Duration.Seconds())
}

func boolLabel(v bool) string {
	if v {
		return "true"
	}
	return "false"
}
