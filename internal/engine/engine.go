// Package engine wires the Radio Pool, Role/State Registry, Scanner Loop,
// Strategy Set, Dispatcher, Connection Monitor, Auto-Selector, and Gateway
// Bridge into one running daemon, the single-process analogue of the
// teacher's daemon-per-binary architecture: one goroutine per worker,
// started and joined with a timeout, in place of a process per `ap.*`
// binary (spec §5).
package engine

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/metahertz/vasili/internal/catalog"
	"github.com/metahertz/vasili/internal/config"
	"github.com/metahertz/vasili/internal/dispatcher"
	"github.com/metahertz/vasili/internal/gateway"
	"github.com/metahertz/vasili/internal/hostnet"
	"github.com/metahertz/vasili/internal/measure"
	"github.com/metahertz/vasili/internal/metrics"
	"github.com/metahertz/vasili/internal/monitor"
	"github.com/metahertz/vasili/internal/radiopool"
	"github.com/metahertz/vasili/internal/registry"
	"github.com/metahertz/vasili/internal/scanner"
	"github.com/metahertz/vasili/internal/selector"
	"github.com/metahertz/vasili/internal/strategy"
)

// StopTimeout bounds how long Stop waits for every worker to join.
const StopTimeout = 10 * time.Second

// Engine owns every worker and the shared state they read and write.
type Engine struct {
	log *zap.Logger

	pool       *radiopool.Pool
	registry   *registry.Registry
	catalog    *catalog.Catalog
	scan       *scanner.Loop
	dispatch   *dispatcher.Loop
	mon        *monitor.Monitor
	sel        *selector.Selector
	bridge     *gateway.Bridge
	metricsSink *metrics.Sink
}

// New constructs an Engine from cfg, wiring the Strategy Set from
// cfg.Modules.Enabled and standing up the optional registry/metrics
// components per cfg.Registry/cfg.Metrics. It does not start anything —
// call Start.
func New(log *zap.Logger, cfg config.Config, reg prometheus.Registerer) *Engine {
	return build(log, cfg, reg,
		hostnet.NewExecWifiTool(), hostnet.NetlinkNet{},
		hostnet.NewExecFirewall(), hostnet.NewIPForwarding(),
		gateway.SystemEthernetInterfaces, measure.NewNDT7Pinger())
}

// build is New's implementation, with every host-facing dependency
// injected so tests can exercise full engine wiring against fakes without
// touching a real host.
func build(log *zap.Logger, cfg config.Config, reg prometheus.Registerer,
	wifiTool hostnet.WifiTool, net hostnet.Net, firewall hostnet.Firewall, ipForward hostnet.IPForwarding,
	ethList gateway.EthernetLister, prober measure.Prober) *Engine {

	pool := radiopool.New(log, wifiTool, net)
	cat := catalog.New()

	var reghandle *registry.Registry
	if cfg.Registry.Durable && cfg.Registry.Path != "" {
		reghandle = registry.OpenDurable(log, cfg.Registry.Path)
	} else {
		reghandle = registry.New(log)
	}
	pool.SetNotifier(registry.PoolNotifier{Registry: reghandle})

	var sink *metrics.Sink
	if cfg.Metrics.Enabled {
		sink = metrics.New(reg)
	}

	strategies := buildStrategies(log, cfg, pool, prober, reghandle)

	scanLoop := scanner.New(log, pool, cfg.ScanInterval(), 1)
	scanLoop.SetMetrics(sink)

	mon := monitor.New(log, cat, monitor.DefaultCheckInterval, monitor.DefaultMaxAttempts)
	mon.SetMetrics(sink)

	dispatch := dispatcher.New(log, scanLoop.Snapshots(), strategies, cat, mon, pool)
	dispatch.SetMetrics(sink)

	bridge := gateway.New(log, net, firewall, ipForward, ethList)

	sel := selector.New(log, cat, bridge, cfg.InitialDelay(), cfg.EvaluationInterval(), cfg.AutoSelection.MinScoreImprovement)
	sel.SetMetrics(sink)
	if cfg.AutoSelection.Enabled {
		sel.Enable()
	}

	return &Engine{
		log: log, pool: pool, registry: reghandle, catalog: cat,
		scan: scanLoop, dispatch: dispatch, mon: mon, sel: sel, bridge: bridge,
		metricsSink: sink,
	}
}

// buildStrategies instantiates the Strategy Set in fixed precedence order —
// WPA3 and WPA2 first (an AP advertising real encryption is never eligible
// for the open-network strategies below), then Open, then CaptivePortal for
// open APs that Open could not adopt — filtered by cfg.Modules.Enabled.
func buildStrategies(log *zap.Logger, cfg config.Config, pool *radiopool.Pool, prober measure.Prober, reg *registry.Registry) []strategy.Strategy {
	creds := cfg.CredentialLookup()
	portalCache := strategy.NewPortalCache(log, reg.DB())

	candidates := []struct {
		tag string
		s   strategy.Strategy
	}{
		{"wpa3", strategy.NewWPA3(log, pool, prober, creds)},
		{"wpa2", strategy.NewWPA2(log, pool, prober, creds)},
		{"open", strategy.NewOpen(log, pool, prober)},
		{"captiveportal", strategy.NewCaptivePortal(log, pool, prober, portalCache)},
	}

	var out []strategy.Strategy
	for _, c := range candidates {
		if cfg.ModuleEnabled(c.tag) {
			out = append(out, c.s)
		}
	}
	return out
}

// Enumerate populates the Radio Pool from the host's wireless interfaces per
// cfg.Interfaces. Call once before Start.
func (e *Engine) Enumerate(cfg config.Config) error {
	return e.EnumerateWith(cfg, radiopool.SystemInterfaces)
}

// EnumerateWith is Enumerate with an injectable interface lister, so tests
// can populate the pool from a fixed interface list instead of the host's
// real wireless devices.
func (e *Engine) EnumerateWith(cfg config.Config, lister radiopool.InterfaceLister) error {
	return e.pool.Enumerate(radiopool.Config{
		ScanInterface: cfg.Interfaces.ScanInterface,
		Excluded:      cfg.Interfaces.Excluded,
		Preferred:     cfg.Interfaces.Preferred,
	}, lister)
}

// Start begins every worker. Safe to call once per Engine.
func (e *Engine) Start(ctx context.Context) {
	e.scan.Start(ctx)
	e.dispatch.Start(ctx)
	e.mon.Start(ctx)
	e.sel.Start(ctx)
}

// Stop joins every worker, each bounded by StopTimeout, then closes the
// registry's durable mirror if one is open. Workers are stopped in reverse
// dependency order: the Selector and Monitor first (so nothing races an
// in-flight Dispatcher adoption), then the Dispatcher, then the Scanner.
func (e *Engine) Stop() {
	stopCtx, cancel := context.WithTimeout(context.Background(), StopTimeout)
	defer cancel()

	e.sel.Stop(stopCtx)
	e.mon.Stop(stopCtx)
	e.dispatch.Stop(stopCtx)
	e.scan.Stop(stopCtx)

	if err := e.registry.Close(); err != nil && e.log != nil {
		e.log.Warn("registry close failed", zap.Error(err))
	}
}

// Snapshot is a read-only view of engine state for the webview adapter.
type Snapshot struct {
	Radios      []registry.Record
	Connections []catalog.Connection
	Bound       catalog.Connection
	HasBound    bool
	AutoSelect  bool
}

// Status returns a point-in-time Snapshot.
func (e *Engine) Status() Snapshot {
	bound, hasBound := e.bridge.Current()
	return Snapshot{
		Radios:      e.registry.Status(),
		Connections: e.catalog.Snapshot(),
		Bound:       bound,
		HasBound:    hasBound,
		AutoSelect:  e.sel.Enabled(),
	}
}

// Control is the webview adapter's command surface onto the Engine.
type Control interface {
	Bind(conn catalog.Connection) error
	Unbind() error
	EnableAutoSelect()
	DisableAutoSelect()
}

// Bind hands conn to the Gateway Bridge directly, bypassing the Selector's
// own scoring — an operator override.
func (e *Engine) Bind(conn catalog.Connection) error { return e.bridge.Bind(conn) }

// Unbind tears down the current Gateway Bridge binding, if any.
func (e *Engine) Unbind() error { return e.bridge.Unbind() }

// EnableAutoSelect turns on the Auto-Selector.
func (e *Engine) EnableAutoSelect() { e.sel.Enable() }

// DisableAutoSelect turns off the Auto-Selector without stopping its worker
// loop.
func (e *Engine) DisableAutoSelect() { e.sel.Disable() }
