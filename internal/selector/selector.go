// Package selector implements the Auto-Selector (spec §4.8): periodically
// ranks adopted connections and asks the Gateway Bridge to re-home if a
// candidate is sufficiently better. Disabled by default; the worker loop
// runs regardless of the enable toggle and simply no-ops when disabled, so
// timing stays stable across toggles.
package selector

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/metahertz/vasili/internal/catalog"
	"github.com/metahertz/vasili/internal/metrics"
)

// DefaultInitialDelay is the delay before the first evaluation.
const DefaultInitialDelay = 10 * time.Second

// DefaultEvaluationInterval is the period between evaluations thereafter.
const DefaultEvaluationInterval = 30 * time.Second

// DefaultMinImprovement is the minimum score delta required to rebind away
// from a currently bound Connection.
const DefaultMinImprovement = 10.0

// Binder is the subset of the Gateway Bridge the Selector drives.
type Binder interface {
	Bind(conn catalog.Connection) error
	Current() (catalog.Connection, bool)
}

// Selector is the Auto-Selector worker.
type Selector struct {
	log            *zap.Logger
	catalog        *catalog.Catalog
	binder         Binder
	initialDelay   time.Duration
	evalInterval   time.Duration
	minImprovement float64
	metrics        *metrics.Sink

	enabled int32
	running int32
	cancel  context.CancelFunc
	done    chan struct{}
	mu      sync.Mutex
}

// New returns a Selector, disabled by default per spec §4.8. Zero
// durations/threshold use the package defaults.
func New(log *zap.Logger, cat *catalog.Catalog, binder Binder, initialDelay, evalInterval time.Duration, minImprovement float64) *Selector {
	if initialDelay <= 0 {
		initialDelay = DefaultInitialDelay
	}
	if evalInterval <= 0 {
		evalInterval = DefaultEvaluationInterval
	}
	if minImprovement <= 0 {
		minImprovement = DefaultMinImprovement
	}
	return &Selector{
		log: log, catalog: cat, binder: binder,
		initialDelay: initialDelay, evalInterval: evalInterval, minImprovement: minImprovement,
	}
}

// SetMetrics wires an optional metrics sink. Never required: nil-safe.
func (s *Selector) SetMetrics(m *metrics.Sink) { s.metrics = m }

// Enable turns automatic rebinding on.
func (s *Selector) Enable() { atomic.StoreInt32(&s.enabled, 1) }

// Disable turns automatic rebinding off without stopping the worker loop.
func (s *Selector) Disable() { atomic.StoreInt32(&s.enabled, 0) }

// Enabled reports the current toggle state.
func (s *Selector) Enabled() bool { return atomic.LoadInt32(&s.enabled) == 1 }

// Start begins the worker loop in a new goroutine. A second Start while
// running is a no-op.
func (s *Selector) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !atomic.CompareAndSwapInt32(&s.running, 0, 1) {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.run(runCtx)
}

// Stop signals the loop to exit and blocks until it has, or ctx is done.
func (s *Selector) Stop(ctx context.Context) {
	s.mu.Lock()
	if atomic.LoadInt32(&s.running) == 0 {
		s.mu.Unlock()
		return
	}
	cancel := s.cancel
	done := s.done
	s.mu.Unlock()

	cancel()
	select {
	case <-done:
	case <-ctx.Done():
	}
}

func (s *Selector) run(ctx context.Context) {
	defer atomic.StoreInt32(&s.running, 0)
	defer close(s.done)

	if !sleepCtx(ctx, s.initialDelay) {
		return
	}

	t := time.NewTicker(s.evalInterval)
	defer t.Stop()

	s.evaluate()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.evaluate()
		}
	}
}

func (s *Selector) evaluate() {
	if !s.Enabled() {
		return
	}

	best, ok := s.catalog.Best()
	if !ok {
		return
	}
	s.metrics.SetBestScore(best.Score())

	current, hasCurrent := s.binder.Current()
	if !hasCurrent {
		if err := s.binder.Bind(best); err != nil && s.log != nil {
			s.log.Warn("initial bind failed", zap.Error(err))
		}
		return
	}

	currentScore := current.Score()
	bestScore := best.Score()
	if bestScore-currentScore >= s.minImprovement {
		if err := s.binder.Bind(best); err != nil && s.log != nil {
			s.log.Warn("rebind failed", zap.Error(err))
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
