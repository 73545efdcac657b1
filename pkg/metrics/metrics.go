// Package metrics exposes run and step counters to Prometheus.
package metrics

import (
	"context"
	"net/http"
	"sync"

	"github.com/dukex/actflow/pkg/act"
	"github.com/dukex/actflow/pkg/executor"
	"github.com/dukex/actflow/pkg/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "actflow"

// Metrics holds the collectors fed by the orchestrator callbacks.
type Metrics struct {
	actsCreated  prometheus.Counter
	actsFinished *prometheus.CounterVec
	actsRunning  prometheus.Gauge
	actDuration  prometheus.Histogram
	steps        *prometheus.CounterVec
	sequences    *prometheus.CounterVec
	tokens       *prometheus.CounterVec
	gatherer     prometheus.Gatherer
	running      sync.Map
}

// New registers the collectors on reg. Pass prometheus.NewRegistry() in tests.
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		actsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "acts_created_total",
			Help:      "Acts created",
		}),
		actsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "acts_finished_total",
			Help:      "Acts finished by status",
		}, []string{"status"}),
		actsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "acts_running",
			Help:      "Acts currently running",
		}),
		actDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "act_wall_clock_seconds",
			Help:      "Wall clock duration of finished acts",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		steps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "steps_total",
			Help:      "Finished steps by content type and outcome",
		}, []string{"content_type", "outcome"}),
		sequences: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sequences_total",
			Help:      "Sequences by outcome",
		}, []string{"outcome"}),
		tokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_total",
			Help:      "Model tokens consumed by kind",
		}, []string{"kind"}),
		gatherer: reg,
	}

	reg.MustRegister(m.actsCreated, m.actsFinished, m.actsRunning, m.actDuration, m.steps, m.sequences, m.tokens)

	return m
}

// Callbacks feeds the collectors from orchestrator events.
func (m *Metrics) Callbacks() act.Callbacks {
	sequence := func(outcome string) func(context.Context, models.Act, models.Sequence) {
		return func(context.Context, models.Act, models.Sequence) {
			m.sequences.WithLabelValues(outcome).Inc()
		}
	}

	step := func(outcome string) func(context.Context, models.Act, models.Sequence, models.Step, executor.StepResult) {
		return func(_ context.Context, _ models.Act, _ models.Sequence, s models.Step, res executor.StepResult) {
			m.steps.WithLabelValues(string(s.Node.ContentType()), outcome).Inc()
			m.tokens.WithLabelValues("prompt").Add(float64(res.Usage.PromptTokens))
			m.tokens.WithLabelValues("completion").Add(float64(res.Usage.CompletionTokens))
		}
	}

	return act.Callbacks{
		OnActCreate: func(context.Context, models.Act) {
			m.actsCreated.Inc()
		},
		OnActStart: func(_ context.Context, a models.Act) {
			m.running.Store(a.ID, struct{}{})
			m.actsRunning.Inc()
		},
		OnSequenceComplete: sequence("completed"),
		OnSequenceFail:     sequence("failed"),
		OnSequenceSkip:     sequence("skipped"),
		OnStepComplete:     step("completed"),
		OnStepFail:         step("failed"),
		OnActComplete: func(_ context.Context, a models.Act) {
			m.actsFinished.WithLabelValues(string(a.Status)).Inc()
			m.actDuration.Observe(float64(a.Duration.WallClock) / 1000)

			if _, ok := m.running.LoadAndDelete(a.ID); ok {
				m.actsRunning.Dec()
			}
		},
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
