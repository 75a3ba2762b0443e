package progress

import (
	"context"
	"time"

	"go.uber.org/zap"

	"pressline/internal/config"
)

// AssetCounter is the read-only view of the asset store the reconciler polls.
type AssetCounter interface {
	CountAssets(ctx context.Context, orgID, opportunityID string) (int, error)
}

// Reconciler fuses the authoritative persisted-asset count with a synthetic
// time-based estimate into one monotonic percentage while a generation call
// is outstanding. The fusion lives here, behind AssetCounter, so a push-based
// progress feed can replace the polling without touching the coordinator.
type Reconciler struct {
	Counter       AssetCounter
	Tracker       *Tracker
	Cfg           config.ProgressConfig
	OrgID         string
	OpportunityID string
	Phase         string
	Total         int
	Log           *zap.Logger

	// Ticks overrides the interval timer when set. Tests drive the loop
	// through it without real delays.
	Ticks <-chan time.Time
}

// Run polls until ctx is cancelled. The caller cancels it as soon as the
// dispatch call settles; Run never returns an error because observation
// failures only cost a tick.
func (r *Reconciler) Run(ctx context.Context) {
	ticks := r.Ticks
	if ticks == nil {
		ticker := time.NewTicker(time.Duration(r.Cfg.PollIntervalSeconds) * time.Second)
		defer ticker.Stop()
		ticks = ticker.C
	}
	simulated := r.Cfg.PlanningFloor
	lastObserved := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticks:
		}
		count, err := r.Counter.CountAssets(ctx, r.OrgID, r.OpportunityID)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			r.Log.Debug("asset count poll failed", zap.String("opportunity", r.OpportunityID), zap.Error(err))
			continue
		}
		if count > lastObserved && r.Total > 0 {
			lastObserved = count
			pct := r.observedPercent(count)
			r.Tracker.Set(r.Phase, pct)
			r.Log.Debug("observed assets",
				zap.String("opportunity", r.OpportunityID),
				zap.Int("count", count),
				zap.Float64("percent", pct))
			continue
		}
		if simulated < r.Cfg.SimulatedCap {
			simulated += r.Cfg.SimulatedIncrement
			if simulated > r.Cfg.SimulatedCap {
				simulated = r.Cfg.SimulatedCap
			}
			r.Tracker.Set(r.Phase, simulated)
		}
	}
}

func (r *Reconciler) observedPercent(count int) float64 {
	span := r.Cfg.ObservedCeiling - r.Cfg.PlanningFloor
	pct := r.Cfg.PlanningFloor + span*float64(count)/float64(r.Total)
	if pct > r.Cfg.ObservedCeiling {
		pct = r.Cfg.ObservedCeiling
	}
	return pct
}
