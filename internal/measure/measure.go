// Package measure provides throughput and latency measurement for adopted
// connections, grounded on ap-tools/speedtest.go (github.com/m-lab/ndt7-client-go)
// and ap.tron/link.go (github.com/sparrc/go-ping).
package measure

import (
	"context"
	"time"

	ndt7 "github.com/m-lab/ndt7-client-go"
	"github.com/m-lab/ndt7-client-go/spec"
	ping "github.com/sparrc/go-ping"
)

// Prober measures throughput and latency for a live network interface. The
// strategies depend on this interface rather than the concrete
// implementations, so tests can inject a stub (spec §4.5 expansion).
type Prober interface {
	Throughput(ctx context.Context, iface string) (downMbps, upMbps float64, err error)
	Latency(ctx context.Context, target string) (time.Duration, error)
}

// NDT7Pinger is the production Prober: download/upload via ndt7, ICMP
// latency via go-ping.
type NDT7Pinger struct {
	// PingCount is how many ICMP echoes Latency sends per call. Defaults
	// to 4 when zero.
	PingCount int
	// PingTimeout bounds the whole Latency call. Defaults to 5s when zero.
	PingTimeout time.Duration
}

// NewNDT7Pinger returns an NDT7Pinger with production defaults.
func NewNDT7Pinger() *NDT7Pinger {
	return &NDT7Pinger{PingCount: 4, PingTimeout: 5 * time.Second}
}

// Throughput runs an ndt7 download then upload measurement and returns the
// observed rates in Mbit/s, matching ap-tools/speedtest.go's own
// NumBytes/ElapsedTime-derived Mbit/s computation. iface is accepted for
// interface-scoping symmetry with Latency but ndt7-client-go itself binds
// to whatever route the kernel picks for the locate-service's chosen
// server, the same scoping the teacher's own speedtest.go relies on.
func (p *NDT7Pinger) Throughput(ctx context.Context, iface string) (float64, float64, error) {
	client := ndt7.NewClient("vasilid", "0")

	downCh, err := client.StartDownload(ctx)
	if err != nil {
		return 0, 0, err
	}
	down := drainMbps(downCh)

	upCh, err := client.StartUpload(ctx)
	if err != nil {
		return down, 0, err
	}
	up := drainMbps(upCh)

	return down, up, nil
}

func drainMbps(ch <-chan spec.Measurement) float64 {
	var last spec.Measurement
	for ev := range ch {
		if ev.Origin != spec.OriginClient || ev.AppInfo == nil || ev.AppInfo.ElapsedTime <= 0 {
			continue
		}
		last = ev
	}
	if last.AppInfo == nil || last.AppInfo.ElapsedTime <= 0 {
		return 0
	}
	bits := float64(last.AppInfo.NumBytes) * 8
	seconds := float64(last.AppInfo.ElapsedTime) / 1e6
	return bits / seconds / 1e6
}

// Latency sends ICMP echoes to target and returns the average round-trip
// time, grounded on ap.tron/link.go's pinger.Statistics().AvgRtt usage.
func (p *NDT7Pinger) Latency(ctx context.Context, target string) (time.Duration, error) {
	count := p.PingCount
	if count <= 0 {
		count = 4
	}
	timeout := p.PingTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	pinger, err := ping.NewPinger(target)
	if err != nil {
		return 0, err
	}
	pinger.Count = count
	pinger.Timeout = timeout
	pinger.SetPrivileged(true)

	done := make(chan struct{})
	go func() {
		pinger.Run()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		pinger.Stop()
		return 0, ctx.Err()
	}

	stats := pinger.Statistics()
	return stats.AvgRtt, nil
}
