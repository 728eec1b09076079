package measure

import (
	"context"
	"testing"
	"time"
)

// stubProber is a Prober test double standing in for the production
// NDT7Pinger, per spec §4.5's Prober seam.
type stubProber struct {
	down, up float64
	latency  time.Duration
	err      error
}

func (s stubProber) Throughput(ctx context.Context, iface string) (float64, float64, error) {
	return s.down, s.up, s.err
}

func (s stubProber) Latency(ctx context.Context, target string) (time.Duration, error) {
	return s.latency, s.err
}

func TestProberInterfaceSatisfiedByStub(t *testing.T) {
	var p Prober = stubProber{down: 50, up: 10, latency: 20 * time.Millisecond}

	down, up, err := p.Throughput(context.Background(), "wlan1")
	if err != nil || down != 50 || up != 10 {
		t.Fatalf("Throughput() = %v, %v, %v", down, up, err)
	}

	lat, err := p.Latency(context.Background(), "8.8.8.8")
	if err != nil || lat != 20*time.Millisecond {
		t.Fatalf("Latency() = %v, %v", lat, err)
	}
}
