// Package strategy implements the Strategy Set (spec §4.5): pluggable
// connection strategies, each deciding eligibility for an AP and executing
// an association. No strategy panics: Attempt recovers internally and
// folds any panic into a non-connected AttemptResult.
package strategy

import (
	"context"

	"go.uber.org/zap"

	"github.com/metahertz/vasili/internal/catalog"
	"github.com/metahertz/vasili/internal/measure"
	"github.com/metahertz/vasili/internal/radio"
	"github.com/metahertz/vasili/internal/radiopool"
)

// AttemptResult is the outcome of one strategy's attempt on one AP.
type AttemptResult struct {
	AP        catalog.AccessPoint
	Radio     string
	Strategy  string
	DownMbps  float64
	UpMbps    float64
	LatencyMS float64
	Connected bool
}

// Strategy decides which APs it can handle and attempts to join them.
type Strategy interface {
	// Name is the strategy tag recorded on a Connection.
	Name() string
	// Eligible is a pure predicate: "I can try this AP."
	Eligible(ap catalog.AccessPoint) bool
	// Attempt leases its own connection radio, associates, measures, and
	// always releases the radio before returning. It never panics.
	Attempt(ctx context.Context, ap catalog.AccessPoint) AttemptResult
}

// base is embedded by every built-in strategy; it supplies the
// lease/associate/measure/release skeleton they all share, and the
// panic-recovery wrapper required by spec §4.5.
type base struct {
	log    *zap.Logger
	pool   *radiopool.Pool
	prober measure.Prober

	name       string
	credential func(ap catalog.AccessPoint) string
	pingTarget string
	postAssoc  func(ctx context.Context, r *radio.Radio, ap catalog.AccessPoint) bool
}

func (b *base) Name() string { return b.name }

func (b *base) attempt(ctx context.Context, ap catalog.AccessPoint) (result AttemptResult) {
	result = AttemptResult{AP: ap, Strategy: b.name}

	defer func() {
		if rec := recover(); rec != nil {
			if b.log != nil {
				b.log.Error("strategy attempt panicked, treating as failure",
					zap.String("strategy", b.name), zap.Any("recover", rec))
			}
			result = AttemptResult{AP: ap, Strategy: b.name, Connected: false}
		}
	}()

	r, ok := b.pool.Lease(radiopool.PurposeConnection)
	if !ok {
		return result
	}
	defer b.pool.Return(r)

	result.Radio = r.Name

	credential := ""
	if b.credential != nil {
		credential = b.credential(ap)
	}
	if err := r.Associate(ctx, ap, credential); err != nil {
		return result
	}

	if b.postAssoc != nil && !b.postAssoc(ctx, r, ap) {
		return result
	}

	if b.prober != nil {
		down, up, err := b.prober.Throughput(ctx, r.Name)
		if err != nil {
			return result
		}
		result.DownMbps, result.UpMbps = down, up

		target := b.pingTarget
		if target == "" {
			target = "8.8.8.8"
		}
		lat, err := b.prober.Latency(ctx, target)
		if err != nil {
			result.DownMbps, result.UpMbps = 0, 0
			return result
		}
		result.LatencyMS = float64(lat.Milliseconds())
	}

	result.Connected = true
	return result
}
