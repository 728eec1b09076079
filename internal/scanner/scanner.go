// Package scanner implements the Scanner Loop (spec §4.4): a single
// long-running worker that leases the scanning radio, scans, publishes the
// result, returns the radio, and sleeps, forever until stopped. Start/Stop
// is idempotent, grounded on ap.networkd's running-flag worker loop
// idiom, generalized here to an explicit per-worker struct (no package
// globals) per the Design Notes.
package scanner

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/metahertz/vasili/internal/catalog"
	"github.com/metahertz/vasili/internal/metrics"
	"github.com/metahertz/vasili/internal/radio"
	"github.com/metahertz/vasili/internal/radiopool"
)

// DefaultInterval is the default sleep between scan iterations.
const DefaultInterval = 5 * time.Second

// leaseRetryDelay is how long the loop waits before retrying a lease when
// the scanning radio is momentarily unavailable.
const leaseRetryDelay = time.Second

// Snapshot is one scan's worth of observed access points, timestamped.
type Snapshot struct {
	APs   []catalog.AccessPoint
	Taken time.Time
}

// Loop is the Scanner worker.
type Loop struct {
	log      *zap.Logger
	pool     *radiopool.Pool
	interval time.Duration
	metrics  *metrics.Sink

	out chan Snapshot

	mu      sync.Mutex
	running int32
	cancel  context.CancelFunc
	done    chan struct{}

	latest atomic.Value // holds Snapshot
}

// New returns a Scanner Loop publishing onto a channel of the given
// buffer size. A zero interval uses DefaultInterval.
func New(log *zap.Logger, pool *radiopool.Pool, interval time.Duration, bufferSize int) *Loop {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if bufferSize <= 0 {
		bufferSize = 1
	}
	l := &Loop{
		log:      log,
		pool:     pool,
		interval: interval,
		out:      make(chan Snapshot, bufferSize),
	}
	l.latest.Store(Snapshot{})
	return l
}

// SetMetrics wires an optional metrics sink. Never required: nil-safe.
func (l *Loop) SetMetrics(m *metrics.Sink) { l.metrics = m }

// Snapshots returns the channel the Dispatcher reads from.
func (l *Loop) Snapshots() <-chan Snapshot {
	return l.out
}

// Latest returns the most recently published snapshot, or a zero Snapshot
// if none has been taken yet.
func (l *Loop) Latest() Snapshot {
	return l.latest.Load().(Snapshot)
}

// Start begins the worker loop in a new goroutine. Calling Start while
// already running is a no-op.
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
// Calling Stop while not running is a no-op.
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
		default:
		}

		r, ok := l.pool.Lease(radiopool.PurposeScanning)
		if !ok {
			if !sleepCtx(ctx, leaseRetryDelay) {
				return
			}
			continue
		}

		l.scanOnce(ctx, r)
		l.pool.Return(r)

		if !sleepCtx(ctx, l.interval) {
			return
		}
	}
}

func (l *Loop) scanOnce(ctx context.Context, r *radio.Radio) {
	aps, err := r.Scan(ctx)
	if err != nil {
		if l.log != nil {
			l.log.Warn("scan failed, publishing empty snapshot", zap.String("radio", r.Name), zap.Error(err))
		}
		aps = nil
	}

	snap := Snapshot{APs: aps, Taken: time.Now()}
	l.latest.Store(snap)
	l.metrics.ScanCompleted()

	select {
	case l.out <- snap:
	default:
		// Bounded channel is full: drop the oldest pending snapshot so the
		// Dispatcher always has room for the newest one rather than
		// blocking the scan loop.
		select {
		case <-l.out:
		default:
		}
		select {
		case l.out <- snap:
		default:
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
