package scanner

import (
	"context"
	"testing"
	"time"

	"github.com/metahertz/vasili/internal/radiopool"
)

type fakeTool struct{}

func (fakeTool) Probe(iface string) error { return nil }
func (fakeTool) Scan(ctx context.Context, iface string) (string, error) {
	return "Cell 01 - Address: AA:BB:CC:DD:EE:01\n    Quality=70/70  Signal level=-40 dBm\n    Encryption key:off\n    ESSID:\"OpenNet\"\n", nil
}
func (fakeTool) Associate(ctx context.Context, iface, ssid, bssid, credential string) error {
	return nil
}
func (fakeTool) Disassociate(ctx context.Context, iface string) error { return nil }
func (fakeTool) AssociatedSSID(iface string) (string, error)          { return "", errNotAssociated }

type fakeErr string

func (e fakeErr) Error() string { return string(e) }

const errNotAssociated = fakeErr("not associated")

type fakeNet struct{}

func (fakeNet) LinkUp(iface string) error        { return nil }
func (fakeNet) LinkDown(iface string) error      { return nil }
func (fakeNet) IsUp(iface string) (bool, error)  { return true, nil }
func (fakeNet) AddrAdd(iface, cidr string) error { return nil }
func (fakeNet) AddrFlush(iface string) error     { return nil }

func fixedLister(names ...string) radiopool.InterfaceLister {
	return func() ([]string, error) { return names, nil }
}

func TestScannerPublishesSnapshotsAndReturnsRadio(t *testing.T) {
	pool := radiopool.New(nil, fakeTool{}, fakeNet{})
	if err := pool.Enumerate(radiopool.Config{}, fixedLister("wlan0")); err != nil {
		t.Fatalf("Enumerate() = %v", err)
	}

	loop := New(nil, pool, 10*time.Millisecond, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	loop.Start(ctx)

	select {
	case snap := <-loop.Snapshots():
		if len(snap.APs) != 1 || snap.APs[0].SSID != "OpenNet" {
			t.Fatalf("snapshot = %+v, want one AP named OpenNet", snap)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for first snapshot")
	}

	r, _ := pool.ScanningRadio()
	// Give the loop a moment to return the radio between iterations.
	time.Sleep(20 * time.Millisecond)
	if r.Leased() {
		t.Error("scanning radio should be returned between iterations, not held")
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), time.Second)
	defer stopCancel()
	loop.Stop(stopCtx)
}

func TestScannerStartStopIdempotent(t *testing.T) {
	pool := radiopool.New(nil, fakeTool{}, fakeNet{})
	_ = pool.Enumerate(radiopool.Config{}, fixedLister("wlan0"))

	loop := New(nil, pool, 5*time.Millisecond, 1)
	ctx := context.Background()

	loop.Start(ctx)
	loop.Start(ctx) // second Start is a no-op

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	loop.Stop(stopCtx)
	loop.Stop(stopCtx) // second Stop is a no-op
}

func TestScannerDegradedPoolDoesNotBlockForever(t *testing.T) {
	pool := radiopool.New(nil, fakeTool{}, fakeNet{}) // never enumerated: degraded
	loop := New(nil, pool, 5*time.Millisecond, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	loop.Start(ctx)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), time.Second)
	defer stopCancel()
	loop.Stop(stopCtx)
}
