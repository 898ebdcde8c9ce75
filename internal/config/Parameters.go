/*

This file contains the default parameters for the AVM.

The defaults favour diversification and slow, bounded rebalancing over chasing the highest APY.

*/

package config

import (
	"github.com/elys-network/yieldvault/internal/types"
)

// DefaultScoringParameters provides a baseline set of parameters for the AVM's scoring logic.
// These values are used if no active parameters are found in the database during initialization.
var DefaultScoringParameters = types.ScoringParameters{
	// --- General Strategy Parameters ---
	MaxPools: 4, // Consider the top 4 pools.
	// Rationale: Concentration is the primary risk; four pools spread it without
	// scattering capital across pools too small to matter.

	MinAllocation: 0.10, // Allocate at least 10% to a selected pool.
	// Rationale: Smaller slices are not worth the bookkeeping of rebalancing them.

	MaxAllocation: 0.40, // Allocate at most 40% to a single pool.
	// Rationale: If one pool fails, losses are contained to 40% of allocated capital.

	RebalanceThresholdPercent: 5.0, // Leave pools within 5 percentage points of target alone.
	// Rationale: Avoids churn from small APY changes.

	MaxRebalancePercentPerCycle: 10.0, // Move at most 10% of allocated capital per cycle.
	// Rationale: Large reallocations happen over several cycles, so a bad APY reading
	// cannot swing the whole vault at once.

	// --- Score Components ---
	ApyCoefficient: 1.0, // One point of score per percent of APY.

	RiskCoefficient: -2.0, // Two points off per risk level above 1.
	// Rationale: A level 5 pool needs 8% more APY than a level 1 pool to rank equal.

	MaxRiskLevel: 4, // Never select level 5 pools.

	MinApyBps: 100, // Ignore pools yielding less than 1%.

	// --- Continuity ---
	ContinuityBonus: 1.0, // Small bonus for pools already holding allocation.
	// Rationale: Reduces flip-flopping between pools of near-equal score.
}

// scoringOverrides maps environment keys to the float parameters they override.
var scoringOverrides = []struct {
	key   string
	field func(*types.ScoringParameters) *float64
}{
	{"SCORING_MIN_ALLOCATION", func(p *types.ScoringParameters) *float64 { return &p.MinAllocation }},
	{"SCORING_MAX_ALLOCATION", func(p *types.ScoringParameters) *float64 { return &p.MaxAllocation }},
	{"SCORING_REBALANCE_THRESHOLD_PERCENT", func(p *types.ScoringParameters) *float64 { return &p.RebalanceThresholdPercent }},
	{"SCORING_MAX_REBALANCE_PERCENT_PER_CYCLE", func(p *types.ScoringParameters) *float64 { return &p.MaxRebalancePercentPerCycle }},
	{"SCORING_APY_COEFFICIENT", func(p *types.ScoringParameters) *float64 { return &p.ApyCoefficient }},
	{"SCORING_RISK_COEFFICIENT", func(p *types.ScoringParameters) *float64 { return &p.RiskCoefficient }},
	{"SCORING_CONTINUITY_BONUS", func(p *types.ScoringParameters) *float64 { return &p.ContinuityBonus }},
}

// ScoringParametersFromEnv returns base with any SCORING_* environment overrides applied.
func ScoringParametersFromEnv(base types.ScoringParameters) (types.ScoringParameters, error) {
	params := base
	for _, o := range scoringOverrides {
		if !isSet(o.key) {
			continue
		}
		v, err := getEnvAsFloat64(o.key)
		if err != nil {
			return base, err
		}
		*o.field(&params) = v
	}

	if isSet("SCORING_MAX_POOLS") {
		v, err := getEnvAsUint64("SCORING_MAX_POOLS")
		if err != nil {
			return base, err
		}
		params.MaxPools = int(v)
	}
	return params, nil
}
