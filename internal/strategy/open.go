package strategy

import (
	"context"

	"go.uber.org/zap"

	"github.com/metahertz/vasili/internal/catalog"
	"github.com/metahertz/vasili/internal/measure"
	"github.com/metahertz/vasili/internal/radiopool"
)

// Open handles unencrypted APs.
type Open struct{ base }

// NewOpen returns the Open strategy.
func NewOpen(log *zap.Logger, pool *radiopool.Pool, prober measure.Prober) *Open {
	return &Open{base{log: log, pool: pool, prober: prober, name: "open"}}
}

// Eligible reports whether ap advertises no encryption.
func (o *Open) Eligible(ap catalog.AccessPoint) bool { return ap.Open }

// Attempt joins ap with no credential.
func (o *Open) Attempt(ctx context.Context, ap catalog.AccessPoint) AttemptResult {
	return o.attempt(ctx, ap)
}
