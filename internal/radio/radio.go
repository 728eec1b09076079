// Package radio implements the Radio Abstraction (spec §4.1): driving one
// wireless interface through probe/scan/associate/disassociate, with
// bounded-retry association and a cached last-known association so the
// Connection Monitor can reconnect without the original request.
package radio

import (
	"context"
	"sync"
	"time"

	"github.com/metahertz/vasili/internal/catalog"
	"github.com/metahertz/vasili/internal/hostnet"
	"github.com/metahertz/vasili/internal/vasilierr"
)

// Role is the purpose a radio has been assigned.
type Role string

// Recognized roles. Exactly one radio holds RoleScanning when any radios
// exist (spec §3 invariant).
const (
	RoleScanning   Role = "scanning"
	RoleConnection Role = "connection"
)

// State is a radio's operational state.
type State string

// Recognized states.
const (
	StateIdle       State = "idle"
	StateScanning   State = "scanning"
	StateConnecting State = "connecting"
	StateConnected  State = "connected"
	StateError      State = "error"
)

// LastAssociation is the cached AP + credential needed to reconnect without
// re-deriving the original request, replacing the attribute-smuggling the
// teacher's source avoided and the distilled spec's Design Notes call out
// explicitly (§9: "Reconnect state... becomes an explicit LastAssociation
// struct").
type LastAssociation struct {
	AP         catalog.AccessPoint
	Credential string
}

// RetryPolicy controls Associate's bounded retry behavior.
type RetryPolicy struct {
	Attempts int
	Base     time.Duration
	Timeout  time.Duration
}

// DefaultRetryPolicy matches spec §4.1's defaults: 3 attempts, 1s base
// backoff, 30s per-attempt timeout.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 3, Base: time.Second, Timeout: 30 * time.Second}
}

// Radio drives one wireless interface.
type Radio struct {
	Name string

	mu     sync.Mutex
	role   Role
	state  State
	leased bool
	last   LastAssociation
	hasLast bool
	updated time.Time
	errMsg  string

	tool  hostnet.WifiTool
	net   hostnet.Net
	retry RetryPolicy
}

// New constructs a Radio for the named interface. Callers must call Probe
// before relying on it; a radio that fails Probe is dropped permanently by
// the Radio Pool (spec §4.1).
func New(name string, tool hostnet.WifiTool, net hostnet.Net) *Radio {
	return &Radio{
		Name:  name,
		tool:  tool,
		net:   net,
		state: StateIdle,
		retry: DefaultRetryPolicy(),
	}
}

// WithRetryPolicy overrides the default association retry policy.
func (r *Radio) WithRetryPolicy(p RetryPolicy) *Radio {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.retry = p
	return r
}

// Probe validates the interface is a real wireless device. Failure means
// this radio must never be added to the pool.
func (r *Radio) Probe() error {
	if err := r.tool.Probe(r.Name); err != nil {
		return vasilierr.Wrap(vasilierr.HostCallFailed, err, "probe "+r.Name)
	}
	return nil
}

// Role reports the radio's currently assigned role.
func (r *Radio) Role() Role {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.role
}

// SetRole assigns a role to the radio. Only the Radio Pool calls this, as
// part of enumerate/re-enumerate (spec §4.2).
func (r *Radio) SetRole(role Role) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.role = role
}

// State reports the radio's current operational state.
func (r *Radio) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Radio) setState(s State, errMsg string) {
	r.mu.Lock()
	r.state = s
	r.errMsg = errMsg
	r.updated = time.Now()
	r.mu.Unlock()
}

// Leased reports whether a lease is currently held on this radio.
func (r *Radio) Leased() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.leased
}

// SetLeased is called only by the Radio Pool, under the pool's own mutex;
// Radio does not re-derive lease ownership itself.
func (r *Radio) SetLeased(v bool) {
	r.mu.Lock()
	r.leased = v
	r.mu.Unlock()
}

// LastAssociation returns the cached AP+credential from the most recent
// successful association, if any.
func (r *Radio) LastAssociation() (LastAssociation, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last, r.hasLast
}

// Snapshot is a read-only copy of a radio's registry-facing fields.
type Snapshot struct {
	Name           string
	Role           Role
	State          State
	Leased         bool
	AssociatedSSID string
	Updated        time.Time
	Error          string
}

// Snapshot returns a point-in-time copy of this radio's state.
func (r *Radio) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	ssid := ""
	if r.hasLast {
		ssid = r.last.AP.SSID
	}
	return Snapshot{
		Name:           r.Name,
		Role:           r.role,
		State:          r.state,
		Leased:         r.leased,
		AssociatedSSID: ssid,
		Updated:        r.updated,
		Error:          r.errMsg,
	}
}

// Scan brings the interface up and triggers a scan, returning the parsed
// APs. A scan failure yields ScanFailed and an empty list; it is never
// fatal to the caller's loop (spec §4.1, §7).
func (r *Radio) Scan(ctx context.Context) ([]catalog.AccessPoint, error) {
	r.setState(StateScanning, "")

	if err := r.net.LinkUp(r.Name); err != nil {
		r.setState(StateError, err.Error())
		return nil, vasilierr.Wrap(vasilierr.ScanFailed, err, "bring up "+r.Name)
	}

	raw, err := r.tool.Scan(ctx, r.Name)
	if err != nil {
		r.setState(StateError, err.Error())
		return nil, vasilierr.Wrap(vasilierr.ScanFailed, err, "scan "+r.Name)
	}

	r.setState(StateIdle, "")
	return ParseScan(raw), nil
}

// Associate brings the interface up, disassociates any prior association,
// and attempts to join ssid/bssid, retrying per the radio's RetryPolicy.
// Association failures do not poison the radio: callers may retry later.
// On success, the AP and credential are cached for Reconnect.
func (r *Radio) Associate(ctx context.Context, ap catalog.AccessPoint, credential string) error {
	r.setState(StateConnecting, "")

	r.mu.Lock()
	policy := r.retry
	r.mu.Unlock()

	var lastErr error
	for attempt := 1; attempt <= policy.Attempts; attempt++ {
		if attempt > 1 {
			delay := policy.Base * time.Duration(1<<uint(attempt-2))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				r.setState(StateError, ctx.Err().Error())
				return vasilierr.Wrap(vasilierr.AssociationFail, ctx.Err(), "associate "+r.Name)
			}
		}

		lastErr = r.associateOnce(ctx, ap, credential, policy.Timeout)
		if lastErr == nil {
			r.setState(StateConnected, "")
			r.mu.Lock()
			r.last = LastAssociation{AP: ap, Credential: credential}
			r.hasLast = true
			r.mu.Unlock()
			return nil
		}
	}

	r.setState(StateError, lastErr.Error())
	return vasilierr.Wrap(vasilierr.AssociationFail, lastErr, "associate "+r.Name+" to "+ap.SSID)
}

func (r *Radio) associateOnce(ctx context.Context, ap catalog.AccessPoint, credential string, timeout time.Duration) error {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := r.net.LinkUp(r.Name); err != nil {
		return err
	}
	_ = r.tool.Disassociate(attemptCtx, r.Name)

	return r.tool.Associate(attemptCtx, r.Name, ap.SSID, ap.BSSID, credential)
}

// Reconnect re-attempts association using the cached last-known AP and
// credential, without requiring the original caller to re-supply it. Used
// by the Connection Monitor (spec §4.7).
func (r *Radio) Reconnect(ctx context.Context) error {
	last, ok := r.LastAssociation()
	if !ok {
		return vasilierr.New(vasilierr.AssociationFail, "no cached association for "+r.Name)
	}
	return r.Associate(ctx, last.AP, last.Credential)
}

// Disassociate tears down any active association.
func (r *Radio) Disassociate(ctx context.Context) error {
	err := r.tool.Disassociate(ctx, r.Name)
	r.setState(StateIdle, "")
	if err != nil {
		return vasilierr.HostCallFailedf("disassociate "+r.Name, err)
	}
	return nil
}

// IsUp reports whether the interface is administratively up. Any failure
// reads as "not up".
func (r *Radio) IsUp() bool {
	up, err := r.net.IsUp(r.Name)
	return err == nil && up
}

// IsAssociated reports whether the interface currently has an association.
// Any failure reads as "not associated".
func (r *Radio) IsAssociated() bool {
	_, err := r.tool.AssociatedSSID(r.Name)
	return err == nil
}

// AssociatedSSID returns the SSID the interface currently believes it is
// joined to, or "" if none / indeterminate.
func (r *Radio) AssociatedSSID() string {
	ssid, err := r.tool.AssociatedSSID(r.Name)
	if err != nil {
		return ""
	}
	return ssid
}
