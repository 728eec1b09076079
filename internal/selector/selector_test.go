package selector

import (
	"context"
	"testing"
	"time"

	"github.com/metahertz/vasili/internal/catalog"
)

type fakeBinder struct {
	current   catalog.Connection
	hasCurrent bool
	binds     []catalog.Connection
}

func (f *fakeBinder) Bind(conn catalog.Connection) error {
	f.binds = append(f.binds, conn)
	f.current = conn
	f.hasCurrent = true
	return nil
}

func (f *fakeBinder) Current() (catalog.Connection, bool) { return f.current, f.hasCurrent }

func TestSelectorDisabledByDefaultNoOps(t *testing.T) {
	cat := catalog.New()
	cat.Append(catalog.Connection{AP: catalog.AccessPoint{BSSID: "aa", Signal: 90}, DownMbps: 80, Connected: true})

	binder := &fakeBinder{}
	s := New(nil, cat, binder, time.Millisecond, time.Millisecond, 0)
	if s.Enabled() {
		t.Fatal("selector should be disabled by default")
	}
	s.evaluate()
	if len(binder.binds) != 0 {
		t.Error("disabled selector must never bind")
	}
}

func TestSelectorBindsBestWhenNoCurrentBinding(t *testing.T) {
	cat := catalog.New()
	cat.Append(catalog.Connection{AP: catalog.AccessPoint{BSSID: "aa", Signal: 90}, DownMbps: 80, Connected: true})

	binder := &fakeBinder{}
	s := New(nil, cat, binder, time.Millisecond, time.Millisecond, 10)
	s.Enable()
	s.evaluate()

	if len(binder.binds) != 1 {
		t.Fatalf("binds = %d, want 1", len(binder.binds))
	}
}

func TestSelectorRebindsOnlyWhenImprovementExceedsThreshold(t *testing.T) {
	cat := catalog.New()
	cat.Append(catalog.Connection{AP: catalog.AccessPoint{BSSID: "current", Signal: 50}, DownMbps: 50, Connected: true})

	binder := &fakeBinder{}
	s := New(nil, cat, binder, time.Millisecond, time.Millisecond, 10)
	s.Enable()
	s.evaluate() // binds the only candidate as current
	if len(binder.binds) != 1 {
		t.Fatalf("initial binds = %d, want 1", len(binder.binds))
	}

	// A marginally better candidate should not trigger a rebind.
	cat.Append(catalog.Connection{AP: catalog.AccessPoint{BSSID: "marginal", Signal: 54}, DownMbps: 50, Connected: true})
	s.evaluate()
	if len(binder.binds) != 1 {
		t.Fatalf("binds after marginal candidate = %d, want still 1", len(binder.binds))
	}

	// A substantially better candidate should trigger a rebind.
	cat.Append(catalog.Connection{AP: catalog.AccessPoint{BSSID: "better", Signal: 95}, DownMbps: 95, Connected: true})
	s.evaluate()
	if len(binder.binds) != 2 {
		t.Fatalf("binds after strong candidate = %d, want 2", len(binder.binds))
	}
}

func TestSelectorStartStopIdempotent(t *testing.T) {
	cat := catalog.New()
	s := New(nil, cat, &fakeBinder{}, time.Millisecond, 5*time.Millisecond, 10)

	ctx := context.Background()
	s.Start(ctx)
	s.Start(ctx)

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(stopCtx)
	s.Stop(stopCtx)
}
