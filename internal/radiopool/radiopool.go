// Package radiopool implements the Radio Pool (spec §4.2): it owns every
// surviving Radio, assigns the Scanning role, and arbitrates leases under a
// single mutex so at most one worker ever holds a given radio at a time.
package radiopool

import (
	"net"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/metahertz/vasili/internal/hostnet"
	"github.com/metahertz/vasili/internal/radio"
)

// Purpose is why a caller wants a leased radio.
type Purpose string

// Recognized lease purposes.
const (
	PurposeScanning   Purpose = "scanning"
	PurposeConnection Purpose = "connection"
)

// Config controls interface enumeration: which interface (if any) is pinned
// to the Scanning role, which interfaces are never considered, and which
// survivors sort first.
type Config struct {
	ScanInterface string
	Excluded      []string
	Preferred     []string
}

// wirelessPrefixes recognizes the common Linux wireless naming schemes
// (predictable wlpXsY, classic wlanN, USB wlxMAC), the same prefix-filter
// idiom ap.networkd applies when walking host NICs for ones it might
// manage.
var wirelessPrefixes = []string{"wlan", "wlp", "wlx", "wl"}

func isWirelessName(name string) bool {
	for _, p := range wirelessPrefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}

// InterfaceLister enumerates candidate host network interface names.
// Production code uses SystemInterfaces; tests substitute a fixed list.
type InterfaceLister func() ([]string, error)

// SystemInterfaces lists host interfaces whose name matches a recognized
// wireless naming scheme.
func SystemInterfaces() ([]string, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	var names []string
	for _, ifc := range ifaces {
		if isWirelessName(ifc.Name) {
			names = append(names, ifc.Name)
		}
	}
	return names, nil
}

// Notifier receives lease/return events so the Role/State Registry can stay
// in sync without radiopool importing it directly (spec §4.3: "updates are
// driven by C2 on lease/return"). Snapshots are passed by value so a
// Notifier never needs to call back into the Pool (which would deadlock:
// notifications fire from inside Lease/Return's own critical section).
type Notifier interface {
	RadioLeased(snap radio.Snapshot, purpose Purpose)
	RadioReturned(snap radio.Snapshot)
}

type noopNotifier struct{}

func (noopNotifier) RadioLeased(radio.Snapshot, Purpose) {}
func (noopNotifier) RadioReturned(radio.Snapshot)        {}

// Pool owns every surviving Radio, assigns roles, and arbitrates leases.
type Pool struct {
	log  *zap.Logger
	tool hostnet.WifiTool
	net  hostnet.Net

	mu       sync.Mutex
	radios   []*radio.Radio
	scanning string // interface name holding RoleScanning; "" when degraded
	notifier Notifier
}

// New returns a Pool with no radios; call Enumerate to populate it.
func New(log *zap.Logger, tool hostnet.WifiTool, netImpl hostnet.Net) *Pool {
	return &Pool{log: log, tool: tool, net: netImpl, notifier: noopNotifier{}}
}

// SetNotifier installs the Role/State Registry (or any observer) to be
// informed of lease/return events under the same critical section.
func (p *Pool) SetNotifier(n Notifier) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if n == nil {
		n = noopNotifier{}
	}
	p.notifier = n
}

// Enumerate scans host interfaces via lister, filters by cfg.Excluded,
// probes each survivor, and assigns roles. Interfaces failing probe() are
// dropped with a logged reason; enumeration continues regardless. If no
// interface survives, the pool enters degraded mode: all future leases
// return nil, which is not fatal to the daemon. Re-enumeration rebuilds
// roles from scratch.
func (p *Pool) Enumerate(cfg Config, lister InterfaceLister) error {
	names, err := lister()
	if err != nil {
		return err
	}

	excluded := make(map[string]bool, len(cfg.Excluded))
	for _, n := range cfg.Excluded {
		excluded[n] = true
	}
	names = orderPreferred(filterOut(names, excluded), cfg.Preferred)

	var survivors []*radio.Radio
	for _, name := range names {
		r := radio.New(name, p.tool, p.net)
		if err := r.Probe(); err != nil {
			if p.log != nil {
				p.log.Warn("radio failed probe, dropping permanently",
					zap.String("interface", name), zap.Error(err))
			}
			continue
		}
		survivors = append(survivors, r)
	}

	scanningName := ""
	if cfg.ScanInterface != "" {
		for _, r := range survivors {
			if r.Name == cfg.ScanInterface {
				scanningName = cfg.ScanInterface
				break
			}
		}
	}
	if scanningName == "" && len(survivors) > 0 {
		scanningName = survivors[0].Name
	}

	for _, r := range survivors {
		if r.Name == scanningName {
			r.SetRole(radio.RoleScanning)
		} else {
			r.SetRole(radio.RoleConnection)
		}
	}

	p.mu.Lock()
	p.radios = survivors
	p.scanning = scanningName
	p.mu.Unlock()

	if len(survivors) == 0 && p.log != nil {
		p.log.Warn("no wireless interfaces survived enumeration; pool is degraded")
	}
	return nil
}

func filterOut(names []string, excluded map[string]bool) []string {
	var out []string
	for _, n := range names {
		if !excluded[n] {
			out = append(out, n)
		}
	}
	return out
}

// orderPreferred sorts names so that any name appearing in preferred (in
// preferred's own order) comes first; the rest keep host order.
func orderPreferred(names []string, preferred []string) []string {
	if len(preferred) == 0 {
		return names
	}
	rank := make(map[string]int, len(preferred))
	for i, n := range preferred {
		rank[n] = i
	}

	var front, rest []string
	for _, n := range names {
		if _, ok := rank[n]; ok {
			front = append(front, n)
		} else {
			rest = append(rest, n)
		}
	}
	// Stable-sort front by preferred order.
	for i := 1; i < len(front); i++ {
		for j := i; j > 0 && rank[front[j]] < rank[front[j-1]]; j-- {
			front[j], front[j-1] = front[j-1], front[j]
		}
	}
	return append(front, rest...)
}

// Lease returns the scanning radio iff purpose is Scanning and it is free;
// for purpose Connection it returns any free non-scanning radio. It never
// returns the scanning radio for a Connection purpose, even when the
// scanning radio is idle and no connection radio is free. Returns (nil,
// false) in degraded mode or when nothing is free.
func (p *Pool) Lease(purpose Purpose) (*radio.Radio, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if purpose == PurposeScanning {
		for _, r := range p.radios {
			if r.Name == p.scanning && !r.Leased() {
				r.SetLeased(true)
				p.notifier.RadioLeased(r.Snapshot(), purpose)
				return r, true
			}
		}
		return nil, false
	}

	for _, r := range p.radios {
		if r.Name == p.scanning {
			continue
		}
		if !r.Leased() {
			r.SetLeased(true)
			p.notifier.RadioLeased(r.Snapshot(), purpose)
			return r, true
		}
	}
	return nil, false
}

// Return clears the lease on r. Idempotent: returning an already-free radio
// is a no-op. Updating the registry happens in the same critical section
// via the installed Notifier.
func (p *Pool) Return(r *radio.Radio) {
	if r == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if !r.Leased() {
		return
	}
	r.SetLeased(false)
	p.notifier.RadioReturned(r.Snapshot())
}

// ScanningRadio returns the radio currently holding RoleScanning, if any.
func (p *Pool) ScanningRadio() (*radio.Radio, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, r := range p.radios {
		if r.Name == p.scanning {
			return r, true
		}
	}
	return nil, false
}

// ConnectionRadios returns every radio holding RoleConnection.
func (p *Pool) ConnectionRadios() []*radio.Radio {
	p.mu.Lock()
	defer p.mu.Unlock()

	var out []*radio.Radio
	for _, r := range p.radios {
		if r.Name != p.scanning {
			out = append(out, r)
		}
	}
	return out
}

// Status returns a point-in-time snapshot of every pooled radio.
func (p *Pool) Status() []radio.Snapshot {
	p.mu.Lock()
	radios := make([]*radio.Radio, len(p.radios))
	copy(radios, p.radios)
	p.mu.Unlock()

	out := make([]radio.Snapshot, len(radios))
	for i, r := range radios {
		out[i] = r.Snapshot()
	}
	return out
}

// Degraded reports whether the pool currently has zero usable radios.
func (p *Pool) Degraded() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.radios) == 0
}
