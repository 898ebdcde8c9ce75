/*

This file contains the main function for calculating the score for a pool.

A pool's score is built from what the ledger knows about it: its APY (basis points), its
risk level (1-5) and whether it already holds allocation. Pools above the configured risk
ceiling or below the minimum APY are scored but marked ineligible.

*/

package analyzer

import (
	"errors"
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"github.com/elys-network/yieldvault/internal/logger"
	"github.com/elys-network/yieldvault/internal/types"
	"github.com/elys-network/yieldvault/internal/utils"
)

var ErrInvalidPoolData = errors.New("invalid pool data")
var ErrInvalidScoringParameters = errors.New("invalid scoring parameters")

// scoreLogger is built per use so it picks up the logger configured by Initialize.
func scoreLogger() *zerolog.Logger {
	l := logger.GetForComponent("pool_scorer")
	return &l
}

const (
	minRiskLevel = 1
	maxRiskLevel = 5
)

// CalculatePoolScore calculates the final score for a pool by summing its components.
//
//	score = ApyCoefficient * apy% + RiskCoefficient * (risk - 1) + ContinuityBonus (if allocated)
func CalculatePoolScore(pool types.PoolInfo, params types.ScoringParameters) (types.PoolScoreResult, error) {
	if err := ValidatePoolData(pool); err != nil {
		scoreLogger().Error().
			Str("pool", pool.Name).
			Err(err).
			Msg("Pool data validation failed")
		return types.PoolScoreResult{}, errors.Join(ErrInvalidPoolData, err)
	}

	if err := ValidateScoringParameters(params); err != nil {
		scoreLogger().Error().
			Str("pool", pool.Name).
			Err(err).
			Msg("Scoring parameters validation failed")
		return types.PoolScoreResult{}, errors.Join(ErrInvalidScoringParameters, err)
	}

	result := types.PoolScoreResult{Pool: pool.Name}
	result.Components.ApyPercent = utils.BpsToPercent(pool.CurrentAPY)
	result.Components.ApyComponent = CalculateApyComponent(pool, params)
	result.Components.RiskComponent = CalculateRiskComponent(pool, params)
	result.Components.ContinuityBonus = CalculateContinuityBonus(pool, params)

	finalScore := result.Components.ApyComponent + result.Components.RiskComponent + result.Components.ContinuityBonus
	if math.IsNaN(finalScore) || math.IsInf(finalScore, 0) {
		return types.PoolScoreResult{}, fmt.Errorf("score for pool %s is not finite", pool.Name)
	}
	result.Score = finalScore
	result.Eligible = IsEligible(pool, params)

	scoreLogger().Debug().
		Str("pool", pool.Name).
		Float64("finalScore", finalScore).
		Float64("apyComponent", result.Components.ApyComponent).
		Float64("riskComponent", result.Components.RiskComponent).
		Float64("continuityBonus", result.Components.ContinuityBonus).
		Bool("eligible", result.Eligible).
		Msg("Pool score calculated")

	return result, nil
}

// ScorePools scores every pool. A pool that fails validation is logged and left out.
func ScorePools(pools []types.PoolInfo, params types.ScoringParameters) []types.PoolScoreResult {
	results := make([]types.PoolScoreResult, 0, len(pools))
	for _, p := range pools {
		r, err := CalculatePoolScore(p, params)
		if err != nil {
			scoreLogger().Warn().Str("pool", p.Name).Err(err).Msg("Skipping pool that could not be scored")
			continue
		}
		results = append(results, r)
	}
	return results
}

// CalculateApyComponent is the APY in percent scaled by ApyCoefficient.
func CalculateApyComponent(pool types.PoolInfo, params types.ScoringParameters) float64 {
	return params.ApyCoefficient * utils.BpsToPercent(pool.CurrentAPY)
}

// CalculateRiskComponent is the risk penalty; level 1 carries none. Out-of-range levels are
// clamped to 1-5.
func CalculateRiskComponent(pool types.PoolInfo, params types.ScoringParameters) float64 {
	level := int(pool.RiskLevel)
	if level < minRiskLevel {
		level = minRiskLevel
	}
	if level > maxRiskLevel {
		level = maxRiskLevel
	}
	return params.RiskCoefficient * float64(level-minRiskLevel)
}

// CalculateContinuityBonus rewards pools that already hold allocation so the AVM does not
// churn between pools of near-equal score.
func CalculateContinuityBonus(pool types.PoolInfo, params types.ScoringParameters) float64 {
	p := pool.Normalize()
	if p.TotalAllocated.IsPositive() {
		return params.ContinuityBonus
	}
	return 0
}

// IsEligible reports whether the pool may receive a target allocation.
func IsEligible(pool types.PoolInfo, params types.ScoringParameters) bool {
	if params.MaxRiskLevel > 0 && pool.RiskLevel > params.MaxRiskLevel {
		return false
	}
	return pool.CurrentAPY >= params.MinApyBps
}

// ValidatePoolData checks the fields the scorer depends on.
func ValidatePoolData(pool types.PoolInfo) error {
	if pool.Name == "" {
		return errors.New("pool name is empty")
	}
	p := pool.Normalize()
	if p.TotalAllocated.IsNegative() {
		return fmt.Errorf("pool %s has negative allocation", pool.Name)
	}
	return nil
}

// ValidateScoringParameters rejects parameter sets the AVM cannot work with.
func ValidateScoringParameters(params types.ScoringParameters) error {
	finite := []struct {
		name  string
		value float64
	}{
		{"ApyCoefficient", params.ApyCoefficient},
		{"RiskCoefficient", params.RiskCoefficient},
		{"ContinuityBonus", params.ContinuityBonus},
		{"MinAllocation", params.MinAllocation},
		{"MaxAllocation", params.MaxAllocation},
		{"RebalanceThresholdPercent", params.RebalanceThresholdPercent},
		{"MaxRebalancePercentPerCycle", params.MaxRebalancePercentPerCycle},
	}
	for _, f := range finite {
		if math.IsNaN(f.value) || math.IsInf(f.value, 0) {
			return fmt.Errorf("%s is not finite", f.name)
		}
	}
	if params.MaxPools <= 0 {
		return errors.New("MaxPools must be positive")
	}
	if params.MinAllocation < 0 || params.MaxAllocation <= 0 || params.MaxAllocation > 1 {
		return fmt.Errorf("allocation bounds [%.4f, %.4f] must lie within [0, 1]", params.MinAllocation, params.MaxAllocation)
	}
	if params.MinAllocation > params.MaxAllocation {
		return fmt.Errorf("MinAllocation (%.4f) cannot be greater than MaxAllocation (%.4f)", params.MinAllocation, params.MaxAllocation)
	}
	if params.RebalanceThresholdPercent < 0 {
		return errors.New("RebalanceThresholdPercent cannot be negative")
	}
	if params.MaxRebalancePercentPerCycle < 0 || params.MaxRebalancePercentPerCycle > 100 {
		return errors.New("MaxRebalancePercentPerCycle must be between 0 and 100")
	}
	return nil
}
