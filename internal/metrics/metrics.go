// Package metrics is the optional Prometheus sink for the daemon, grounded
// on ap.watchd/metrics.go's counter/gauge/histogram registration pattern.
// Its absence must never change engine behavior — every worker calls these
// methods unconditionally, and a nil *Sink ignores every observation.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Sink records the daemon's operational counters. All methods are safe to
// call on a nil *Sink.
type Sink struct {
	scansCompleted    prometheus.Counter
	attemptsTotal     *prometheus.CounterVec
	adoptedTotal      prometheus.Counter
	reconnectsTotal   *prometheus.CounterVec
	givenUpTotal      prometheus.Counter
	radiosUp          prometheus.Gauge
	connectionScore   prometheus.Gauge
	strategyLatency   *prometheus.HistogramVec
}

// New builds a Sink and registers its collectors with reg. Passing a fresh
// prometheus.NewRegistry() (rather than the global DefaultRegisterer) keeps
// repeated engine construction in tests collision-free.
func New(reg prometheus.Registerer) *Sink {
	s := &Sink{
		scansCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vasili_scans_completed_total",
			Help: "Number of scanner snapshots published.",
		}),
		attemptsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vasili_strategy_attempts_total",
			Help: "Connection attempts, by strategy and outcome.",
		}, []string{"strategy", "outcome"}),
		adoptedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vasili_connections_adopted_total",
			Help: "Number of connections adopted into the catalog.",
		}),
		reconnectsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vasili_reconnects_total",
			Help: "Reconnect attempts, by radio and outcome.",
		}, []string{"radio", "outcome"}),
		givenUpTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vasili_monitor_given_up_total",
			Help: "Number of radios the monitor gave up on and unwatched.",
		}),
		radiosUp: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vasili_radios_up",
			Help: "Number of radios currently reporting an up link.",
		}),
		connectionScore: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vasili_best_connection_score",
			Help: "Score of the highest-ranked catalog entry.",
		}),
		strategyLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "vasili_strategy_attempt_seconds",
			Help: "Wall-clock duration of a strategy attempt, by strategy.",
		}, []string{"strategy"}),
	}
	if reg != nil {
		reg.MustRegister(s.scansCompleted, s.attemptsTotal, s.adoptedTotal,
			s.reconnectsTotal, s.givenUpTotal, s.radiosUp, s.connectionScore, s.strategyLatency)
	}
	return s
}

// ScanCompleted records one published scanner snapshot.
func (s *Sink) ScanCompleted() {
	if s == nil {
		return
	}
	s.scansCompleted.Inc()
}

// StrategyAttempt records the outcome and duration of one strategy attempt.
func (s *Sink) StrategyAttempt(strategy string, connected bool, d time.Duration) {
	if s == nil {
		return
	}
	outcome := "failed"
	if connected {
		outcome = "connected"
	}
	s.attemptsTotal.WithLabelValues(strategy, outcome).Inc()
	s.strategyLatency.WithLabelValues(strategy).Observe(d.Seconds())
}

// ConnectionAdopted records one new catalog entry.
func (s *Sink) ConnectionAdopted() {
	if s == nil {
		return
	}
	s.adoptedTotal.Inc()
}

// Reconnect records the outcome of one monitor-driven reconnect attempt.
func (s *Sink) Reconnect(radioName string, success bool) {
	if s == nil {
		return
	}
	outcome := "failed"
	if success {
		outcome = "succeeded"
	}
	s.reconnectsTotal.WithLabelValues(radioName, outcome).Inc()
}

// GaveUp records that the monitor unwatched a radio after exhausting its
// reconnect attempts.
func (s *Sink) GaveUp() {
	if s == nil {
		return
	}
	s.givenUpTotal.Inc()
}

// SetRadiosUp reports the current count of up radios.
func (s *Sink) SetRadiosUp(n int) {
	if s == nil {
		return
	}
	s.radiosUp.Set(float64(n))
}

// SetBestScore reports the current top catalog score, or 0 if empty.
func (s *Sink) SetBestScore(score float64) {
	if s == nil {
		return
	}
	s.connectionScore.Set(score)
}
