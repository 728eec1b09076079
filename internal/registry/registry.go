// Package registry implements the Role/State Registry (spec §4.3): a
// per-interface record of role, state, lease, associated SSID, and last
// error, optionally mirrored to an embedded bbolt file. The mirror is
// advisory, never authoritative — grounded on card_state_manager.py's
// CardStateManager, which falls back to an in-memory store whenever its
// MongoDB connection is unavailable. No Go MongoDB driver exists anywhere
// in the corpus, so the durable mirror here uses go.etcd.io/bbolt (already
// an indirect dependency of the teacher's module graph via hashicorp/raft)
// promoted to a direct, embedded, single-file KV store instead.
package registry

import (
	"encoding/json"
	"sync"
	"time"

	"go.etcd.io/bbolt"
	"go.uber.org/zap"

	"github.com/metahertz/vasili/internal/radio"
	"github.com/metahertz/vasili/internal/radiopool"
)

var bucketName = []byte("radios")

// Record is the registry's view of one interface.
type Record struct {
	Name           string
	Role           radio.Role
	State          radio.State
	Leased         bool
	AssociatedSSID string
	Updated        time.Time
	Error          string
}

// durableWriteBacklog bounds the registry's async write queue. A full queue
// drops the update rather than blocking the caller — the mirror is
// advisory, never authoritative, and the Radio Pool's lock must never wait
// on disk I/O (spec §4.2/§5).
const durableWriteBacklog = 64

// Registry holds one Record per known interface, in memory, with an
// optional durable mirror.
type Registry struct {
	log *zap.Logger

	mu      sync.Mutex
	records map[string]Record

	db      *bbolt.DB    // nil when no durable mirror, or it degraded
	writes  chan Record  // durable-write queue, drained by runWriter
	writeWG sync.WaitGroup
}

// New returns a Registry with no durable mirror.
func New(log *zap.Logger) *Registry {
	return &Registry{log: log, records: make(map[string]Record)}
}

// OpenDurable returns a Registry backed by a bbolt file at path. If the
// file cannot be opened the registry logs a warning and runs in-memory
// only — this is never a fatal condition. Durable writes are applied by a
// single background goroutine so Update/upsert never blocks on disk I/O.
func OpenDurable(log *zap.Logger, path string) *Registry {
	r := New(log)
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		if log != nil {
			log.Warn("registry durable mirror unavailable, continuing in-memory",
				zap.String("path", path), zap.Error(err))
		}
		return r
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	}); err != nil {
		if log != nil {
			log.Warn("registry durable mirror bucket init failed, continuing in-memory",
				zap.Error(err))
		}
		db.Close()
		return r
	}
	r.db = db
	r.writes = make(chan Record, durableWriteBacklog)
	r.writeWG.Add(1)
	go r.runWriter()
	return r
}

// runWriter applies queued records to the bbolt mirror one at a time, off
// of any caller's goroutine.
func (r *Registry) runWriter() {
	defer r.writeWG.Done()
	for rec := range r.writes {
		data, err := json.Marshal(rec)
		if err != nil {
			continue
		}
		if err := r.db.Update(func(tx *bbolt.Tx) error {
			return tx.Bucket(bucketName).Put([]byte(rec.Name), data)
		}); err != nil && r.log != nil {
			r.log.Warn("registry durable mirror write failed, record stays in-memory",
				zap.String("interface", rec.Name), zap.Error(err))
		}
	}
}

// DB exposes the underlying bbolt handle, if a durable mirror is open, so
// other components (the captive-portal pattern cache) can share the same
// file as a second bucket instead of opening their own. Returns nil when
// the registry is running in-memory only.
func (r *Registry) DB() *bbolt.DB {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.db
}

// Close drains any queued durable writes and releases the mirror, if any.
func (r *Registry) Close() error {
	r.mu.Lock()
	db := r.db
	writes := r.writes
	r.mu.Unlock()
	if db == nil {
		return nil
	}
	if writes != nil {
		close(writes)
		r.writeWG.Wait()
	}
	return db.Close()
}

// upsert updates the in-memory record and, if a durable mirror is open,
// enqueues it for the background writer. It never performs I/O itself, so
// it is safe to call from radiopool.Notifier callbacks invoked while the
// Radio Pool's mutex is held.
func (r *Registry) upsert(rec Record) {
	r.mu.Lock()
	r.records[rec.Name] = rec
	writes := r.writes
	r.mu.Unlock()

	if writes == nil {
		return
	}
	select {
	case writes <- rec:
	default:
		if r.log != nil {
			r.log.Warn("registry durable mirror write queue full, dropping update",
				zap.String("interface", rec.Name))
		}
	}
}

// Update replaces the record for a radio's current snapshot. Called by C2
// on lease/return through PoolNotifier; the Dispatcher and Monitor do not
// call it, so a state change between a lease and its return is recorded
// only at that return.
func (r *Registry) Update(snap radio.Snapshot) {
	r.upsert(Record{
		Name:           snap.Name,
		Role:           snap.Role,
		State:          snap.State,
		Leased:         snap.Leased,
		AssociatedSSID: snap.AssociatedSSID,
		Updated:        snap.Updated,
		Error:          snap.Error,
	})
}

// Get returns the current record for name, if known.
func (r *Registry) Get(name string) (Record, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[name]
	return rec, ok
}

// Status returns every known record. The durable mirror, if present, is
// never read as truth — this always serves the in-memory map.
func (r *Registry) Status() []Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Record, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, rec)
	}
	return out
}

// PoolNotifier adapts a Registry to radiopool.Notifier, so the pool can
// drive registry updates on lease/return without calling back into the
// pool: notifications fire from inside Lease/Return's own critical
// section, so the Notifier works only from the snapshot it is handed, and
// Update/upsert only ever touches the in-memory map and the durable-write
// queue — never the mirror file itself — so the pool's lock is never held
// over disk I/O. A durable-mirror write failure is logged by runWriter and
// never propagated back to the pool.
type PoolNotifier struct {
	Registry *Registry
}

// RadioLeased implements radiopool.Notifier.
func (n PoolNotifier) RadioLeased(snap radio.Snapshot, _ radiopool.Purpose) {
	n.Registry.Update(snap)
}

// RadioReturned implements radiopool.Notifier.
func (n PoolNotifier) RadioReturned(snap radio.Snapshot) {
	n.Registry.Update(snap)
}
