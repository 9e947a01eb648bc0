package core

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/signalsfoundry/leo-handover/internal/logging"
	"github.com/signalsfoundry/leo-handover/model"
)

// PoolOptimizer maintains the candidate pool for one constellation using a
// greedy, continuity-preserving strategy: members that are still visible stay
// in the pool before any new satellite is considered, so the pool does not
// churn while geometry evolves slowly.
type PoolOptimizer struct {
	cc  ConstellationConfig
	log logging.Logger
}

// NewPoolOptimizer returns an optimizer for the constellation. A nil logger
// is replaced with the noop logger.
func NewPoolOptimizer(cc ConstellationConfig, log logging.Logger) *PoolOptimizer {
	if log == nil {
		log = logging.Noop()
	}
	return &PoolOptimizer{cc: cc, log: log}
}

// Optimize selects the pool for one epoch from the per-satellite samples at
// that epoch. previous may be nil on the first epoch.
//
// Selection order:
//  1. Previous members still visible are retained, in their previous order.
//  2. Remaining capacity is filled from visible non-members by descending
//     elevation, ties broken by ascending slant range.
//  3. The pool never exceeds MaxSize. When fewer than MinSize satellites are
//     visible the pool holds all of them and is flagged under-covered.
func (p *PoolOptimizer) Optimize(ctx context.Context, at time.Time, samples []model.CandidateSample, previous *model.PoolState) (model.PoolState, error) {
	visible := make(map[string]*model.CandidateSample, len(samples))
	for i := range samples {
		s := &samples[i]
		if s.Constellation != p.cc.Name {
			return model.PoolState{}, fmt.Errorf("%w: sample %q belongs to %q, optimizer serves %q",
				ErrPoolInvariant, s.SatelliteID, s.Constellation, p.cc.Name)
		}
		if _, dup := visible[s.SatelliteID]; dup {
			return model.PoolState{}, fmt.Errorf("%w: duplicate satellite %q at %s",
				ErrPoolInvariant, s.SatelliteID, at.Format(time.RFC3339))
		}
		if s.Usable && s.ElevationDeg >= p.cc.MinElevationDeg {
			visible[s.SatelliteID] = s
		}
	}

	state := model.PoolState{
		Constellation: p.cc.Name,
		Timestamp:     at,
		VisibleCount:  len(visible),
	}

	// Step 1: retain still-visible previous members.
	taken := make(map[string]bool, p.cc.Pool.MaxSize)
	if previous != nil {
		for _, id := range previous.Members {
			if len(state.Members) == p.cc.Pool.MaxSize {
				break
			}
			if _, ok := visible[id]; ok && !taken[id] {
				state.Members = append(state.Members, id)
				taken[id] = true
			}
		}
	}

	// Step 2: fill remaining capacity by elevation, then slant range.
	fresh := make([]*model.CandidateSample, 0, len(visible))
	for id, s := range visible {
		if !taken[id] {
			fresh = append(fresh, s)
		}
	}
	sort.SliceStable(fresh, func(i, j int) bool {
		if fresh[i].ElevationDeg != fresh[j].ElevationDeg {
			return fresh[i].ElevationDeg > fresh[j].ElevationDeg
		}
		if fresh[i].SlantRangeKm != fresh[j].SlantRangeKm {
			return fresh[i].SlantRangeKm < fresh[j].SlantRangeKm
		}
		return fresh[i].SatelliteID < fresh[j].SatelliteID
	})
	for _, s := range fresh {
		if len(state.Members) == p.cc.Pool.MaxSize {
			break
		}
		state.Members = append(state.Members, s.SatelliteID)
		taken[s.SatelliteID] = true
	}

	// Step 3: coverage accounting.
	state.UnderCovered = len(visible) < p.cc.Pool.MinSize
	state.CoverageRatio = float64(len(visible)) / float64(p.cc.Pool.MinSize)
	if state.CoverageRatio > 1 {
		state.CoverageRatio = 1
	}

	if err := p.checkInvariants(&state); err != nil {
		return model.PoolState{}, err
	}

	if state.UnderCovered {
		p.log.Warn(ctx, "constellation under-covered",
			logging.String("constellation", p.cc.Name),
			logging.Int("visible", state.VisibleCount),
			logging.Int("pool_min_size", p.cc.Pool.MinSize))
	} else {
		p.log.Debug(ctx, "pool selected",
			logging.String("constellation", p.cc.Name),
			logging.Int("members", len(state.Members)),
			logging.Int("visible", state.VisibleCount))
	}
	return state, nil
}

func (p *PoolOptimizer) checkInvariants(state *model.PoolState) error {
	if len(state.Members) > p.cc.Pool.MaxSize {
		return fmt.Errorf("%w: %d members exceed max_size %d",
			ErrPoolInvariant, len(state.Members), p.cc.Pool.MaxSize)
	}
	if !state.UnderCovered && len(state.Members) < p.cc.Pool.MinSize {
		return fmt.Errorf("%w: %d members below min_size %d without under-covered flag",
			ErrPoolInvariant, len(state.Members), p.cc.Pool.MinSize)
	}
	seen := make(map[string]bool, len(state.Members))
	for _, id := range state.Members {
		if seen[id] {
			return fmt.Errorf("%w: duplicate member %q", ErrPoolInvariant, id)
		}
		seen[id] = true
	}
	return nil
}
