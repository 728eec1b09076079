package strategy

import (
	"context"
	"testing"
	"time"

	"github.com/metahertz/vasili/internal/catalog"
	"github.com/metahertz/vasili/internal/radiopool"
)

type fakeTool struct{ associateErr error }

func (f *fakeTool) Probe(iface string) error { return nil }
func (f *fakeTool) Scan(ctx context.Context, iface string) (string, error) { return "", nil }
func (f *fakeTool) Associate(ctx context.Context, iface, ssid, bssid, credential string) error {
	return f.associateErr
}
func (f *fakeTool) Disassociate(ctx context.Context, iface string) error { return nil }
func (f *fakeTool) AssociatedSSID(iface string) (string, error)          { return "", errNotAssoc }

type fakeErr string

func (e fakeErr) Error() string { return string(e) }

const errNotAssoc = fakeErr("not associated")

type fakeNet struct{}

func (fakeNet) LinkUp(iface string) error        { return nil }
func (fakeNet) LinkDown(iface string) error      { return nil }
func (fakeNet) IsUp(iface string) (bool, error)  { return true, nil }
func (fakeNet) AddrAdd(iface, cidr string) error { return nil }
func (fakeNet) AddrFlush(iface string) error     { return nil }

type fakeProber struct{ down, up float64; latency time.Duration }

func (f fakeProber) Throughput(ctx context.Context, iface string) (float64, float64, error) {
	return f.down, f.up, nil
}
func (f fakeProber) Latency(ctx context.Context, target string) (time.Duration, error) {
	return f.latency, nil
}

type failingProber struct {
	throughputErr error
	latencyErr    error
	down, up      float64
	latency       time.Duration
}

func (f failingProber) Throughput(ctx context.Context, iface string) (float64, float64, error) {
	if f.throughputErr != nil {
		return 0, 0, f.throughputErr
	}
	return f.down, f.up, nil
}

func (f failingProber) Latency(ctx context.Context, target string) (time.Duration, error) {
	if f.latencyErr != nil {
		return 0, f.latencyErr
	}
	return f.latency, nil
}

func fixedLister(names ...string) radiopool.InterfaceLister {
	return func() ([]string, error) { return names, nil }
}

func newTestPool(t *testing.T, tool *fakeTool) *radiopool.Pool {
	t.Helper()
	p := radiopool.New(nil, tool, fakeNet{})
	if err := p.Enumerate(radiopool.Config{}, fixedLister("wlan0", "wlan1")); err != nil {
		t.Fatalf("Enumerate() = %v", err)
	}
	return p
}

func TestOpenEligibility(t *testing.T) {
	o := NewOpen(nil, newTestPool(t, &fakeTool{}), nil)
	if !o.Eligible(catalog.AccessPoint{Open: true}) {
		t.Error("Open should be eligible for an open AP")
	}
	if o.Eligible(catalog.AccessPoint{Open: false, Encryption: catalog.WPA2}) {
		t.Error("Open should not be eligible for an encrypted AP")
	}
}

func TestOpenAttemptSucceedsAndMeasures(t *testing.T) {
	pool := newTestPool(t, &fakeTool{})
	prober := fakeProber{down: 50, up: 5, latency: 30 * time.Millisecond}
	o := NewOpen(nil, pool, prober)

	ap := catalog.AccessPoint{SSID: "OpenNet", BSSID: "aa:bb:cc:dd:ee:01", Open: true}
	result := o.Attempt(context.Background(), ap)

	if !result.Connected {
		t.Fatal("expected connected result")
	}
	if result.DownMbps != 50 || result.UpMbps != 5 || result.LatencyMS != 30 {
		t.Errorf("result = %+v, want down=50 up=5 latency=30", result)
	}
	if result.Radio == "" {
		t.Error("expected a radio name to be recorded")
	}
}

func TestAttemptFailsWhenThroughputProbeErrors(t *testing.T) {
	pool := newTestPool(t, &fakeTool{})
	o := NewOpen(nil, pool, failingProber{throughputErr: errNotAssoc})

	result := o.Attempt(context.Background(), catalog.AccessPoint{SSID: "OpenNet", Open: true})
	if result.Connected {
		t.Fatal("expected non-connected result when the throughput probe fails")
	}
	if result.DownMbps != 0 || result.UpMbps != 0 || result.LatencyMS != 0 {
		t.Errorf("result = %+v, want all-zero measurements on probe failure", result)
	}
}

func TestAttemptFailsWhenLatencyProbeErrors(t *testing.T) {
	pool := newTestPool(t, &fakeTool{})
	o := NewOpen(nil, pool, failingProber{down: 50, up: 5, latencyErr: errNotAssoc})

	result := o.Attempt(context.Background(), catalog.AccessPoint{SSID: "OpenNet", Open: true})
	if result.Connected {
		t.Fatal("expected non-connected result when the latency probe fails")
	}
}

func TestAttemptFailsGracefullyWhenAssociationFails(t *testing.T) {
	pool := newTestPool(t, &fakeTool{associateErr: errNotAssoc})
	o := NewOpen(nil, pool, nil)

	result := o.Attempt(context.Background(), catalog.AccessPoint{SSID: "Flaky", Open: true})
	if result.Connected {
		t.Fatal("expected non-connected result on association failure")
	}
}

func TestWPA2EligibilityAndCredentialLookup(t *testing.T) {
	var seen catalog.AccessPoint
	creds := CredentialLookup(func(ap catalog.AccessPoint) string {
		seen = ap
		return "supersecret"
	})

	pool := newTestPool(t, &fakeTool{})
	w := NewWPA2(nil, pool, nil, creds)

	ap := catalog.AccessPoint{SSID: "HomeNet", Encryption: catalog.WPA2}
	if !w.Eligible(ap) {
		t.Fatal("WPA2 should be eligible for a WPA2 AP")
	}

	result := w.Attempt(context.Background(), ap)
	if !result.Connected {
		t.Fatal("expected connected result")
	}
	if seen.SSID != "HomeNet" {
		t.Errorf("credential lookup saw %+v, want HomeNet", seen)
	}
}

func TestCaptivePortalEligibility(t *testing.T) {
	pool := newTestPool(t, &fakeTool{})
	cache := NewPortalCache(nil, nil)
	cp := NewCaptivePortal(nil, pool, nil, cache)

	if !cp.Eligible(catalog.AccessPoint{Open: true}) {
		t.Error("CaptivePortal should be eligible for an open AP")
	}
	if cp.Eligible(catalog.AccessPoint{Open: false, Encryption: catalog.WPA}) {
		t.Error("CaptivePortal should never be eligible for an encrypted AP")
	}
}

func TestPortalCacheRecordsDetectionAndAuth(t *testing.T) {
	cache := NewPortalCache(nil, nil)
	cache.RecordDetection(PortalPattern{SSID: "CoffeeShop", RedirectDomain: "portal.example.com", PortalType: "unknown"})

	p, ok := cache.Get("CoffeeShop")
	if !ok || p.SuccessCount != 1 {
		t.Fatalf("Get(CoffeeShop) = %+v, %v, want SuccessCount=1", p, ok)
	}

	cache.RecordAuthResult("CoffeeShop", true)
	p, _ = cache.Get("CoffeeShop")
	if p.SuccessCount != 2 {
		t.Errorf("SuccessCount after auth success = %d, want 2", p.SuccessCount)
	}

	cache.RecordAuthResult("CoffeeShop", false)
	p, _ = cache.Get("CoffeeShop")
	if p.FailureCount != 1 {
		t.Errorf("FailureCount after auth failure = %d, want 1", p.FailureCount)
	}
}

func TestClassifyPortalDomainAndAuthMethod(t *testing.T) {
	if got := classifyPortalDomain("connectivitycheck.gstatic.com"); got != "google" {
		t.Errorf("classifyPortalDomain(gstatic) = %q, want google", got)
	}
	if got := classifyAuthMethod("please click continue to proceed"); got != "click_through" {
		t.Errorf("classifyAuthMethod(click/continue) = %q, want click_through", got)
	}
	if got := classifyAuthMethod("enter your username and password"); got != "login_required" {
		t.Errorf("classifyAuthMethod(login) = %q, want login_required", got)
	}
}
