package registry

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.etcd.io/bbolt"

	"github.com/metahertz/vasili/internal/radio"
)

func TestUpdateAndGetInMemory(t *testing.T) {
	r := New(nil)
	r.Update(radio.Snapshot{
		Name: "wlan0", Role: radio.RoleScanning, State: radio.StateScanning,
		Updated: time.Now(),
	})

	rec, ok := r.Get("wlan0")
	if !ok {
		t.Fatal("Get(wlan0) not found")
	}
	if rec.Role != radio.RoleScanning || rec.State != radio.StateScanning {
		t.Errorf("rec = %+v, want scanning/scanning", rec)
	}
}

func TestGetUnknownInterface(t *testing.T) {
	r := New(nil)
	if _, ok := r.Get("wlan9"); ok {
		t.Fatal("Get on unknown interface should report not found")
	}
}

func TestStatusReturnsAllRecords(t *testing.T) {
	r := New(nil)
	r.Update(radio.Snapshot{Name: "wlan0"})
	r.Update(radio.Snapshot{Name: "wlan1"})

	if got := len(r.Status()); got != 2 {
		t.Fatalf("Status() len = %d, want 2", got)
	}
}

func TestOpenDurableMirrorsWrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "registry.db")

	r := OpenDurable(nil, path)
	defer r.Close()

	r.Update(radio.Snapshot{Name: "wlan0", Role: radio.RoleConnection, State: radio.StateConnected})

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected durable file at %s: %v", path, err)
	}

	rec, ok := r.Get("wlan0")
	if !ok || rec.State != radio.StateConnected {
		t.Fatalf("Get(wlan0) = %+v, %v, want connected", rec, ok)
	}
}

func TestOpenDurableDegradesOnBadPath(t *testing.T) {
	// A directory that cannot contain the db file (nonexistent parent)
	// must degrade to in-memory rather than fail the caller.
	r := OpenDurable(nil, filepath.Join(t.TempDir(), "missing-subdir", "registry.db"))
	defer r.Close()

	r.Update(radio.Snapshot{Name: "wlan0"})
	if _, ok := r.Get("wlan0"); !ok {
		t.Fatal("registry should still function in-memory after a degraded durable open")
	}
}

func TestOpenDurableCloseDrainsQueuedWrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "registry.db")

	r := OpenDurable(nil, path)
	for i := 0; i < 10; i++ {
		r.Update(radio.Snapshot{Name: "wlan0", Role: radio.RoleConnection, State: radio.StateConnected})
	}
	if err := r.Close(); err != nil {
		t.Fatalf("Close() = %v, want nil", err)
	}

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		t.Fatalf("reopen durable file: %v", err)
	}
	defer db.Close()

	var data []byte
	if err := db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketName).Get([]byte("wlan0"))
		data = append([]byte(nil), v...)
		return nil
	}); err != nil {
		t.Fatalf("view: %v", err)
	}
	if data == nil {
		t.Fatal("expected wlan0 to be durably written after Close drains the queue")
	}
}

func TestPoolNotifierUpdatesRegistryFromSnapshot(t *testing.T) {
	r := New(nil)
	n := PoolNotifier{Registry: r}

	snap := radio.Snapshot{Name: "wlan0", Role: radio.RoleConnection, State: radio.StateConnecting}
	n.RadioLeased(snap, "connection")

	rec, ok := r.Get("wlan0")
	if !ok || rec.State != radio.StateConnecting {
		t.Fatalf("Get(wlan0) = %+v, %v, want connecting", rec, ok)
	}
}
