// Package metrics exports block weight multiplier activity to prometheus.
package metrics

import (
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"

	"bipbbb/core/blockweight"
)

const (
	namespace = "bipbbb"

	ClassLabel   = "class"
	OutcomeLabel = "outcome"
)

var _ blockweight.Sink = (*Metrics)(nil)

// Metrics is a blockweight.Sink that keeps prometheus collectors current.
type Metrics struct {
	multiplier    prometheus.Gauge
	lastRetarget  prometheus.Gauge
	votes         *prometheus.CounterVec
	retargets     *prometheus.CounterVec
	collectAborts prometheus.Counter
}

// New creates the collectors and registers them with registerer.
func New(registerer prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		multiplier: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "multiplier",
			Help:      "Current block weight multiplier",
		}),
		lastRetarget: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_retarget_height",
			Help:      "Height of the last completed retarget decision",
		}),
		votes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "votes_total",
			Help:      "Coinbase votes counted, by class relative to the current multiplier",
		}, []string{ClassLabel}),
		retargets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retargets_total",
			Help:      "Retarget decisions, by outcome",
		}, []string{OutcomeLabel}),
		collectAborts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "collect_aborts_total",
			Help:      "Vote collections abandoned for missing or unusable blocks",
		}),
	}

	for _, c := range []prometheus.Collector{m.multiplier, m.lastRetarget, m.votes, m.retargets, m.collectAborts} {
		if err := registerer.Register(c); err != nil {
			return nil, errors.Wrap(err, "registering metric")
		}
	}
	return m, nil
}

// SetMultiplier records the multiplier the node started with.
func (m *Metrics) SetMultiplier(v uint32) {
	m.multiplier.Set(float64(v))
}

func (m *Metrics) Emit(ev blockweight.Event) {
	switch ev.Kind {
	case blockweight.EventVote:
		m.votes.WithLabelValues(ev.Class.String()).Inc()
	case blockweight.EventCollectAborted:
		m.collectAborts.Inc()
	case blockweight.EventOverride:
		m.multiplier.Set(float64(ev.After))
		m.retargets.WithLabelValues(ev.Kind.String()).Inc()
	case blockweight.EventRetarget:
		m.multiplier.Set(float64(ev.After))
		m.lastRetarget.Set(float64(ev.Height))
		outcome := "raised"
		if ev.After < ev.Before {
			outcome = "lowered"
		}
		m.retargets.WithLabelValues(outcome).Inc()
	case blockweight.EventUnmoved:
		m.lastRetarget.Set(float64(ev.Height))
		m.retargets.WithLabelValues(ev.Kind.String()).Inc()
	}
}
