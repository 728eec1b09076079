// Package dispatcher implements the Dispatcher (spec §4.6): a long-running
// worker that consumes scan snapshots, offers each AP to the Strategy Set
// in order, and records scored Connections.
package dispatcher

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/metahertz/vasili/internal/catalog"
	"github.com/metahertz/vasili/internal/metrics"
	"github.com/metahertz/vasili/internal/radio"
	"github.com/metahertz/vasili/internal/scanner"
	"github.com/metahertz/vasili/internal/strategy"
)

// RadioHandoff is notified each time the Dispatcher adopts a new
// Connection, so the Connection Monitor can begin watching its radio. The
// radio's own cached LastAssociation (set by Associate on success) is what
// the Monitor replays on reconnect, so no AP/credential needs to travel
// alongside the handoff.
type RadioHandoff interface {
	Watch(r *radio.Radio)
}

// RadioResolver maps a radio name back to the Radio it came from, so the
// Dispatcher can hand off the radio object (not just its name) after a
// strategy attempt. The Radio Pool satisfies this.
type RadioResolver interface {
	ScanningRadio() (*radio.Radio, bool)
	ConnectionRadios() []*radio.Radio
}

// Counters are status counters refreshed on each snapshot (spec §4.6 step 1).
type Counters struct {
	SnapshotsConsumed uint64
	APsSeen           uint64
	Attempts          uint64
	Adopted           uint64
}

// Loop is the Dispatcher worker.
type Loop struct {
	log        *zap.Logger
	scans      <-chan scanner.Snapshot
	strategies []strategy.Strategy
	catalog    *catalog.Catalog
	handoff    RadioHandoff
	resolver   RadioResolver
	metrics    *metrics.Sink

	counters struct {
		snapshots, aps, attempts, adopted uint64
	}

	mu      sync.Mutex
	running int32
	cancel  context.CancelFunc
	done    chan struct{}
}

// New returns a Dispatcher Loop. strategies are offered in the given
// order; the first eligible strategy whose Attempt succeeds wins.
func New(log *zap.Logger, scans <-chan scanner.Snapshot, strategies []strategy.Strategy,
	cat *catalog.Catalog, handoff RadioHandoff, resolver RadioResolver) *Loop {
	return &Loop{
		log: log, scans: scans, strategies: strategies,
		catalog: cat, handoff: handoff, resolver: resolver,
	}
}

// SetMetrics wires an optional metrics sink. Never required: nil-safe.
func (l *Loop) SetMetrics(m *metrics.Sink) { l.metrics = m }

// Counters returns a snapshot of the current status counters.
func (l *Loop) Counters() Counters {
	return Counters{
		SnapshotsConsumed: atomic.LoadUint64(&l.counters.snapshots),
		APsSeen:           atomic.LoadUint64(&l.counters.aps),
		Attempts:          atomic.LoadUint64(&l.counters.attempts),
		Adopted:           atomic.LoadUint64(&l.counters.adopted),
	}
}

// Start begins consuming snapshots in a new goroutine. A second Start
// while already running is a no-op.
func (l *Loop) Start(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !atomic.CompareAndSwapInt32(&l.running, 0, 1) {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.done = make(chan struct{})
	go l.run(runCtx)
}

// Stop signals the loop to exit and blocks until it has, or ctx is done.
func (l *Loop) Stop(ctx context.Context) {
	l.mu.Lock()
	if atomic.LoadInt32(&l.running) == 0 {
		l.mu.Unlock()
		return
	}
	cancel := l.cancel
	done := l.done
	l.mu.Unlock()

	cancel()
	select {
	case <-done:
	case <-ctx.Done():
	}
}

func (l *Loop) run(ctx context.Context) {
	defer atomic.StoreInt32(&l.running, 0)
	defer close(l.done)

	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-l.scans:
			if !ok {
				return
			}
			l.consume(ctx, snap)
		}
	}
}

func (l *Loop) consume(ctx context.Context, snap scanner.Snapshot) {
	atomic.AddUint64(&l.counters.snapshots, 1)
	atomic.AddUint64(&l.counters.aps, uint64(len(snap.APs)))

	for _, ap := range snap.APs {
		if l.catalog.Has(ap.BSSID) {
			continue
		}
		l.dispatchOne(ctx, ap)
	}
}

func (l *Loop) dispatchOne(ctx context.Context, ap catalog.AccessPoint) {
	for _, s := range l.strategies {
		if !s.Eligible(ap) {
			continue
		}
		atomic.AddUint64(&l.counters.attempts, 1)

		start := time.Now()
		result := s.Attempt(ctx, ap)
		l.metrics.StrategyAttempt(s.Name(), result.Connected, time.Since(start))
		if !result.Connected {
			continue
		}

		conn := catalog.Connection{
			AP: ap, Radio: result.Radio, Strategy: result.Strategy,
			DownMbps: result.DownMbps, UpMbps: result.UpMbps,
			LatencyMS: result.LatencyMS, Connected: true,
		}
		l.catalog.Append(conn)
		atomic.AddUint64(&l.counters.adopted, 1)
		l.metrics.ConnectionAdopted()

		if l.handoff != nil && l.resolver != nil {
			if r := l.findRadio(result.Radio); r != nil {
				l.handoff.Watch(r)
			}
		}
		return
	}
}

func (l *Loop) findRadio(name string) *radio.Radio {
	if r, ok := l.resolver.ScanningRadio(); ok && r.Name == name {
		return r
	}
	for _, r := range l.resolver.ConnectionRadios() {
		if r.Name == name {
			return r
		}
	}
	return nil
}
