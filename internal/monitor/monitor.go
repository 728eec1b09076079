// Package monitor implements the Connection Monitor (spec §4.7): it
// watches each adopted connection's radio for drop or mismatch and
// reconnects with a bounded retry, notifying subscribers of the outcome.
package monitor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/metahertz/vasili/internal/catalog"
	"github.com/metahertz/vasili/internal/metrics"
	"github.com/metahertz/vasili/internal/radio"
)

// DefaultCheckInterval is the default tick period.
const DefaultCheckInterval = 10 * time.Second

// DefaultMaxAttempts is the default consecutive-failure threshold before a
// binding is given up on.
const DefaultMaxAttempts = 5

// reconnectRetryPolicy is the internally bounded retry used inside a single
// tick's reconnect attempt, distinct from the per-tick failure counter.
var reconnectRetryPolicy = radio.RetryPolicy{Attempts: 2, Base: 500 * time.Millisecond, Timeout: 30 * time.Second}

// Subscriber is notified on every reconnect outcome.
type Subscriber interface {
	RadioReconnected(r *radio.Radio, success bool)
}

type watched struct {
	radio    *radio.Radio
	lastAP   catalog.AccessPoint
	failures int
}

// Monitor is the Connection Monitor worker.
type Monitor struct {
	log           *zap.Logger
	checkInterval time.Duration
	maxAttempts   int
	catalog       *catalog.Catalog

	mu          sync.Mutex
	watchedSet  map[string]*watched
	subscribers []Subscriber
	metrics     *metrics.Sink

	running int32
	cancel  context.CancelFunc
	done    chan struct{}
}

// New returns a Monitor. A zero checkInterval uses DefaultCheckInterval; a
// zero maxAttempts uses DefaultMaxAttempts.
func New(log *zap.Logger, cat *catalog.Catalog, checkInterval time.Duration, maxAttempts int) *Monitor {
	if checkInterval <= 0 {
		checkInterval = DefaultCheckInterval
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Monitor{
		log: log, catalog: cat, checkInterval: checkInterval, maxAttempts: maxAttempts,
		watchedSet: make(map[string]*watched),
	}
}

// SetMetrics wires an optional metrics sink. Never required: nil-safe.
func (m *Monitor) SetMetrics(s *metrics.Sink) { m.metrics = s }

// Subscribe registers a Subscriber to future reconnect outcomes.
func (m *Monitor) Subscribe(s Subscriber) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribers = append(m.subscribers, s)
}

// Watch begins watching r's current association, implementing
// dispatcher.RadioHandoff.
func (m *Monitor) Watch(r *radio.Radio) {
	last, ok := r.LastAssociation()
	if !ok {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.watchedSet[r.Name] = &watched{radio: r, lastAP: last.AP}
}

// Unwatch stops watching the named radio.
func (m *Monitor) Unwatch(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.watchedSet, name)
}

// Start begins the tick loop in a new goroutine. A second Start while
// running is a no-op.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	if !atomic.CompareAndSwapInt32(&m.running, 0, 1) {
		m.mu.Unlock()
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})
	m.mu.Unlock()

	go m.run(runCtx)
}

// Stop signals the loop to exit and blocks until it has, or ctx is done.
func (m *Monitor) Stop(ctx context.Context) {
	m.mu.Lock()
	if atomic.LoadInt32(&m.running) == 0 {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	done := m.done
	m.mu.Unlock()

	cancel()
	select {
	case <-done:
	case <-ctx.Done():
	}
}

func (m *Monitor) run(ctx context.Context) {
	defer atomic.StoreInt32(&m.running, 0)
	defer close(m.done)

	t := time.NewTicker(m.checkInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			m.tick(ctx)
		}
	}
}

func (m *Monitor) tick(ctx context.Context) {
	m.mu.Lock()
	snapshot := make([]*watched, 0, len(m.watchedSet))
	for _, w := range m.watchedSet {
		snapshot = append(snapshot, w)
	}
	m.mu.Unlock()

	for _, w := range snapshot {
		m.checkOne(ctx, w)
	}
}

func (m *Monitor) checkOne(ctx context.Context, w *watched) {
	ssid := w.radio.AssociatedSSID()
	matches := w.radio.IsAssociated() && ssid == w.lastAP.SSID

	if matches {
		m.mu.Lock()
		w.failures = 0
		m.mu.Unlock()
		return
	}

	m.mu.Lock()
	w.failures++
	gaveUp := w.failures >= m.maxAttempts
	m.mu.Unlock()

	if gaveUp {
		m.giveUp(w)
		return
	}

	r := w.radio.WithRetryPolicy(reconnectRetryPolicy)
	err := r.Reconnect(ctx)
	m.metrics.Reconnect(w.radio.Name, err == nil)
	if err == nil {
		m.mu.Lock()
		w.failures = 0
		m.mu.Unlock()
		m.notify(w.radio, true)
		return
	}

	if m.log != nil {
		m.log.Warn("reconnect attempt failed", zap.String("radio", w.radio.Name), zap.Error(err))
	}
}

func (m *Monitor) giveUp(w *watched) {
	m.mu.Lock()
	delete(m.watchedSet, w.radio.Name)
	m.mu.Unlock()

	m.catalog.RemoveByRadio(w.radio.Name)
	m.metrics.GaveUp()
	m.notify(w.radio, false)
}

func (m *Monitor) notify(r *radio.Radio, success bool) {
	m.mu.Lock()
	subs := make([]Subscriber, len(m.subscribers))
	copy(subs, m.subscribers)
	m.mu.Unlock()

	for _, s := range subs {
		s.RadioReconnected(r, success)
	}
}
