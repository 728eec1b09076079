package engine

import (
	"context"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/metahertz/vasili/internal/config"
	"github.com/metahertz/vasili/internal/gateway"
	"github.com/metahertz/vasili/internal/hostnet"
	"github.com/metahertz/vasili/internal/radiopool"
)

// memIPForwarding returns an IPForwarding backed by an in-memory filesystem,
// so tests never touch a real /proc/sys/net/ipv4/ip_forward.
func memIPForwarding() hostnet.IPForwarding {
	return hostnet.IPForwarding{Fs: afero.NewMemMapFs()}
}

const sampleScan = `
Cell 01 - Address: AA:BB:CC:DD:EE:01
                    Channel:6
                    Quality=70/70  Signal level=-40 dBm
                    Encryption key:off
                    ESSID:"OpenNet"
`

type fakeWifiTool struct {
	associated map[string]string
}

func newFakeWifiTool() *fakeWifiTool { return &fakeWifiTool{associated: map[string]string{}} }

func (f *fakeWifiTool) Probe(iface string) error { return nil }
func (f *fakeWifiTool) Scan(ctx context.Context, iface string) (string, error) {
	return sampleScan, nil
}
func (f *fakeWifiTool) Associate(ctx context.Context, iface, ssid, bssid, credential string) error {
	f.associated[iface] = ssid
	return nil
}
func (f *fakeWifiTool) Disassociate(ctx context.Context, iface string) error {
	delete(f.associated, iface)
	return nil
}
func (f *fakeWifiTool) AssociatedSSID(iface string) (string, error) {
	ssid, ok := f.associated[iface]
	if !ok {
		return "", errNotAssociated
	}
	return ssid, nil
}

type fakeErr string

func (e fakeErr) Error() string { return string(e) }

const errNotAssociated = fakeErr("not associated")

type fakeNet struct{}

func (fakeNet) LinkUp(iface string) error        { return nil }
func (fakeNet) LinkDown(iface string) error      { return nil }
func (fakeNet) IsUp(iface string) (bool, error)  { return true, nil }
func (fakeNet) AddrAdd(iface, cidr string) error { return nil }
func (fakeNet) AddrFlush(iface string) error     { return nil }

type fakeFirewall struct{}

func (fakeFirewall) Flush() error                                   { return nil }
func (fakeFirewall) Masquerade(wifiIface string) error               { return nil }
func (fakeFirewall) ForwardUnconditional(fromIface, toIface string) error { return nil }
func (fakeFirewall) ForwardEstablished(fromIface, toIface string) error   { return nil }

type stubProber struct{}

func (stubProber) Throughput(ctx context.Context, iface string) (float64, float64, error) {
	return 80, 20, nil
}
func (stubProber) Latency(ctx context.Context, target string) (time.Duration, error) {
	return 20 * time.Millisecond, nil
}

func fixedLister(names ...string) radiopool.InterfaceLister {
	return func() ([]string, error) { return names, nil }
}

func fixedEthList(names ...string) gateway.EthernetLister {
	return func() ([]string, error) { return names, nil }
}

// TestEngineScansDispatchesAndAdoptsOpenNetwork runs the wired engine end to
// end: a scanning radio observes an open AP and the Dispatcher adopts it
// through the Open strategy into the catalog — all against fakes, never a
// real host.
func TestEngineScansDispatchesAndAdoptsOpenNetwork(t *testing.T) {
	cfg := config.Config{
		Scanner: config.Scanner{ScanIntervalSeconds: 1},
	}

	e := build(nil, cfg, nil,
		newFakeWifiTool(), fakeNet{}, fakeFirewall{}, memIPForwarding(),
		fixedEthList("eth0"), stubProber{})

	if err := e.EnumerateWith(cfg, fixedLister("wlan0", "wlan1")); err != nil {
		t.Fatalf("EnumerateWith() = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e.Start(ctx)
	defer e.Stop()

	deadline := time.After(2 * time.Second)
	tick := time.NewTicker(10 * time.Millisecond)
	defer tick.Stop()

	for {
		select {
		case <-tick.C:
			if e.catalog.Len() > 0 {
				snap := e.catalog.Snapshot()
				if snap[0].AP.SSID != "OpenNet" || snap[0].Strategy != "open" {
					t.Fatalf("adopted connection = %+v, want OpenNet via open strategy", snap[0])
				}
				return
			}
		case <-deadline:
			t.Fatal("no connection adopted within deadline")
		}
	}
}

// TestEngineStopIsIdempotentAndJoinsWorkers exercises clean shutdown: every
// worker must join within StopTimeout and a second Stop must not hang or
// panic.
func TestEngineStopIsIdempotentAndJoinsWorkers(t *testing.T) {
	cfg := config.Config{Scanner: config.Scanner{ScanIntervalSeconds: 1}}
	e := build(nil, cfg, nil,
		newFakeWifiTool(), fakeNet{}, fakeFirewall{}, memIPForwarding(),
		fixedEthList("eth0"), stubProber{})

	if err := e.EnumerateWith(cfg, fixedLister("wlan0")); err != nil {
		t.Fatalf("EnumerateWith() = %v", err)
	}

	e.Start(context.Background())
	time.Sleep(20 * time.Millisecond)
	e.Stop()
	e.Stop()
}

func TestEngineStatusReportsAutoSelectToggle(t *testing.T) {
	cfg := config.Config{Scanner: config.Scanner{ScanIntervalSeconds: 1}}
	e := build(nil, cfg, nil,
		newFakeWifiTool(), fakeNet{}, fakeFirewall{}, memIPForwarding(),
		fixedEthList("eth0"), stubProber{})

	if status := e.Status(); status.HasBound || status.AutoSelect {
		t.Fatalf("Status() = %+v, want no binding and auto-select off", status)
	}

	e.EnableAutoSelect()
	if status := e.Status(); !status.AutoSelect {
		t.Error("Status() should report auto-select on after EnableAutoSelect")
	}

	e.DisableAutoSelect()
	if status := e.Status(); status.AutoSelect {
		t.Error("Status() should report auto-select off after DisableAutoSelect")
	}
}
