package strategy

import (
	"context"

	"go.uber.org/zap"

	"github.com/metahertz/vasili/internal/catalog"
	"github.com/metahertz/vasili/internal/measure"
	"github.com/metahertz/vasili/internal/radiopool"
)

// CredentialLookup resolves the opaque credential (if any) configured for
// an AP, keyed by SSID. Configuration itself is out of scope for the core
// (spec §9 Non-goals); strategies depend only on this narrow seam so the
// values source can be swapped freely.
type CredentialLookup func(ap catalog.AccessPoint) string

// WPA2 handles APs advertising WPA2.
type WPA2 struct{ base }

// NewWPA2 returns the WPA2 strategy.
func NewWPA2(log *zap.Logger, pool *radiopool.Pool, prober measure.Prober, creds CredentialLookup) *WPA2 {
	return &WPA2{base{log: log, pool: pool, prober: prober, name: "wpa2", credential: creds}}
}

// Eligible reports whether ap advertises WPA2.
func (w *WPA2) Eligible(ap catalog.AccessPoint) bool { return ap.Encryption == catalog.WPA2 }

// Attempt joins ap using the looked-up credential.
func (w *WPA2) Attempt(ctx context.Context, ap catalog.AccessPoint) AttemptResult {
	return w.attempt(ctx, ap)
}

// WPA3 handles APs advertising WPA3.
type WPA3 struct{ base }

// NewWPA3 returns the WPA3 strategy.
func NewWPA3(log *zap.Logger, pool *radiopool.Pool, prober measure.Prober, creds CredentialLookup) *WPA3 {
	return &WPA3{base{log: log, pool: pool, prober: prober, name: "wpa3", credential: creds}}
}

// Eligible reports whether ap advertises WPA3.
func (w *WPA3) Eligible(ap catalog.AccessPoint) bool { return ap.Encryption == catalog.WPA3 }

// Attempt joins ap using the looked-up credential.
func (w *WPA3) Attempt(ctx context.Context, ap catalog.AccessPoint) AttemptResult {
	return w.attempt(ctx, ap)
}
