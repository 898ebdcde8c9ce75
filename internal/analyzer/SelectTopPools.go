/*

This file contains the function for selecting the top pools based on the score from CalculatePoolScore,
and for turning the selection into target allocation fractions.

*/

package analyzer

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/rs/zerolog"

	"github.com/elys-network/yieldvault/internal/logger"
	"github.com/elys-network/yieldvault/internal/types"
)

func poolSelectorLogger() *zerolog.Logger {
	l := logger.GetForComponent("pool_selector")
	return &l
}

var ErrNoValidPools = errors.New("no pools with valid scores found")
var ErrInvalidAllocationConstraints = errors.New("invalid allocation constraints")
var ErrAllocationImpossible = errors.New("allocation constraints cannot be satisfied")

const maxAllocationIterations = 20

// SelectTopPools returns the names of the highest-scoring eligible pools, at most MaxPools of them.
// Ineligible pools and pools with a non-positive score are skipped. Ties are broken by name.
func SelectTopPools(scoredPools []types.PoolScoreResult, params types.ScoringParameters) ([]string, error) {
	if len(scoredPools) == 0 {
		poolSelectorLogger().Error().Msg("Input scoredPools slice is empty")
		return nil, errors.New("no pools provided for selection")
	}

	if params.MaxPools <= 0 {
		poolSelectorLogger().Error().
			Int("maxPools", params.MaxPools).
			Msg("MaxPools parameter must be positive")
		return nil, errors.New("MaxPools parameter must be positive")
	}

	validScoredPools := make([]types.PoolScoreResult, 0, len(scoredPools))
	for _, poolScore := range scoredPools {
		if math.IsNaN(poolScore.Score) || math.IsInf(poolScore.Score, 0) {
			poolSelectorLogger().Error().
				Str("pool", poolScore.Pool).
				Float64("score", poolScore.Score).
				Msg("Pool has invalid score")
			return nil, fmt.Errorf("pool %s has invalid score: %f", poolScore.Pool, poolScore.Score)
		}
		if !poolScore.Eligible {
			poolSelectorLogger().Debug().Str("pool", poolScore.Pool).Msg("Pool is not eligible, skipping")
			continue
		}
		if poolScore.Score <= 0 {
			poolSelectorLogger().Debug().
				Str("pool", poolScore.Pool).
				Float64("score", poolScore.Score).
				Msg("Pool has non-positive score, skipping")
			continue
		}
		validScoredPools = append(validScoredPools, poolScore)
	}

	if len(validScoredPools) == 0 {
		poolSelectorLogger().Warn().Msg("No eligible pools have positive scores")
		return nil, ErrNoValidPools
	}

	sort.Slice(validScoredPools, func(i, j int) bool {
		if validScoredPools[i].Score == validScoredPools[j].Score {
			return validScoredPools[i].Pool < validScoredPools[j].Pool
		}
		return validScoredPools[i].Score > validScoredPools[j].Score
	})

	numberOfPoolsToSelect := params.MaxPools
	if numberOfPoolsToSelect > len(validScoredPools) {
		numberOfPoolsToSelect = len(validScoredPools)
	}

	selected := make([]string, numberOfPoolsToSelect)
	poolSelectorLogger().Info().
		Int("count", numberOfPoolsToSelect).
		Msg("Selecting top pools")

	for i := 0; i < numberOfPoolsToSelect; i++ {
		selected[i] = validScoredPools[i].Pool
		poolSelectorLogger().Debug().
			Int("rank", i+1).
			Str("pool", validScoredPools[i].Pool).
			Float64("score", validScoredPools[i].Score).
			Msg("Selected pool")
	}

	return selected, nil
}

// ScoresByPool indexes score results by pool name.
func ScoresByPool(results []types.PoolScoreResult) map[string]types.PoolScoreResult {
	out := make(map[string]types.PoolScoreResult, len(results))
	for _, r := range results {
		out[r.Pool] = r
	}
	return out
}

// DetermineTargetAllocations calculates the target fraction of allocated capital for each
// selected pool, proportional to score and clamped to [MinAllocation, MaxAllocation].
// The returned fractions sum to 1.
func DetermineTargetAllocations(
	selected []string,
	scores map[string]types.PoolScoreResult,
	params types.ScoringParameters,
) (map[string]float64, error) {

	numSelected := len(selected)
	if numSelected == 0 {
		poolSelectorLogger().Debug().Msg("No pools selected for allocation")
		return make(map[string]float64), nil
	}

	if math.IsNaN(params.MinAllocation) || math.IsInf(params.MinAllocation, 0) {
		return nil, fmt.Errorf("%w: MinAllocation is not finite", ErrInvalidAllocationConstraints)
	}
	if math.IsNaN(params.MaxAllocation) || math.IsInf(params.MaxAllocation, 0) {
		return nil, fmt.Errorf("%w: MaxAllocation is not finite", ErrInvalidAllocationConstraints)
	}
	if params.MinAllocation < 0 {
		return nil, fmt.Errorf("%w: MinAllocation cannot be negative", ErrInvalidAllocationConstraints)
	}
	if params.MaxAllocation <= 0 {
		return nil, fmt.Errorf("%w: MaxAllocation must be positive", ErrInvalidAllocationConstraints)
	}
	if params.MinAllocation > params.MaxAllocation {
		return nil, fmt.Errorf("%w: MinAllocation (%.4f) cannot be greater than MaxAllocation (%.4f)",
			ErrInvalidAllocationConstraints, params.MinAllocation, params.MaxAllocation)
	}

	minTotalRequired := float64(numSelected) * params.MinAllocation
	if minTotalRequired > 1.00001 {
		return nil, fmt.Errorf("%w: minimum allocation (%.4f per pool) needs %.4f total for %d pools",
			ErrAllocationImpossible, params.MinAllocation, minTotalRequired, numSelected)
	}

	equalShare := 1.0 / float64(numSelected)
	if equalShare > params.MaxAllocation {
		return nil, fmt.Errorf("%w: equal distribution (%.4f per pool) exceeds MaxAllocation (%.4f)",
			ErrAllocationImpossible, equalShare, params.MaxAllocation)
	}

	type poolScoreInfo struct {
		Name  string
		Score float64
	}
	validPools := make([]poolScoreInfo, 0, numSelected)
	totalScore := 0.0

	for _, name := range selected {
		scoreResult, exists := scores[name]
		if !exists {
			return nil, fmt.Errorf("score result not found for selected pool %s", name)
		}
		if math.IsNaN(scoreResult.Score) || math.IsInf(scoreResult.Score, 0) {
			return nil, fmt.Errorf("pool %s has invalid score: %f", name, scoreResult.Score)
		}
		if scoreResult.Score <= 0 {
			return nil, fmt.Errorf("pool %s has non-positive score: %f - cannot allocate based on score", name, scoreResult.Score)
		}
		validPools = append(validPools, poolScoreInfo{Name: name, Score: scoreResult.Score})
		totalScore += scoreResult.Score
	}

	allocations := make(map[string]float64, numSelected)
	for _, p := range validPools {
		allocations[p.Name] = p.Score / totalScore
	}

	// Pools pushed outside the bounds are locked at the bound and the remainder is
	// redistributed among the rest until nothing moves.
	locked := make(map[string]float64)
	unlockedScores := make(map[string]float64)
	for _, p := range validPools {
		unlockedScores[p.Name] = p.Score
	}

	iteration := 0
	madeChanges := true

	for madeChanges && iteration < maxAllocationIterations {
		madeChanges = false
		iteration++
		poolSelectorLogger().Debug().
			Int("iteration", iteration).
			Msg("Allocation constraint enforcement iteration")

		remaining := 1.0
		for _, v := range locked {
			remaining -= v
		}
		if remaining < -0.00001 {
			return nil, fmt.Errorf("%w: constraint enforcement over-allocated", ErrAllocationImpossible)
		}
		if remaining < 0 {
			remaining = 0
		}

		if len(unlockedScores) == 0 {
			break
		}

		totalUnlocked := 0.0
		for _, s := range unlockedScores {
			totalUnlocked += s
		}
		if totalUnlocked <= 0 {
			return nil, errors.New("total unlocked score is non-positive during constraint enforcement")
		}

		var toLock []string
		for name, s := range unlockedScores {
			current := (s / totalUnlocked) * remaining
			allocations[name] = current

			if current < params.MinAllocation {
				poolSelectorLogger().Debug().
					Str("pool", name).
					Float64("currentAllocation", current).
					Float64("minAllocation", params.MinAllocation).
					Msg("Pool below min allocation. Locking at min")
				locked[name] = params.MinAllocation
				toLock = append(toLock, name)
				madeChanges = true
			} else if current > params.MaxAllocation {
				poolSelectorLogger().Debug().
					Str("pool", name).
					Float64("currentAllocation", current).
					Float64("maxAllocation", params.MaxAllocation).
					Msg("Pool above max allocation. Locking at max")
				locked[name] = params.MaxAllocation
				toLock = append(toLock, name)
				madeChanges = true
			}
		}

		for _, name := range toLock {
			delete(unlockedScores, name)
		}
	}

	if iteration == maxAllocationIterations && madeChanges {
		return nil, fmt.Errorf("allocation constraint enforcement failed to converge after %d iterations", maxAllocationIterations)
	}

	targets := make(map[string]float64, numSelected)
	finalSum := 0.0
	for _, name := range selected {
		if v, isLocked := locked[name]; isLocked {
			targets[name] = v
		} else {
			targets[name] = allocations[name]
		}
		finalSum += targets[name]
	}

	if math.Abs(finalSum-1.0) > 0.001 {
		return nil, fmt.Errorf("%w: final allocation sum (%.6f) deviates from 1.0", ErrAllocationImpossible, finalSum)
	}
	for name := range targets {
		targets[name] /= finalSum
	}

	for name, alloc := range targets {
		if alloc < params.MinAllocation-0.00001 || alloc > params.MaxAllocation+0.00001 {
			return nil, fmt.Errorf("%w: final allocation for pool %s (%.6f) outside [%.4f, %.4f]",
				ErrAllocationImpossible, name, alloc, params.MinAllocation, params.MaxAllocation)
		}
	}

	poolSelectorLogger().Info().Msg("Final target allocations calculated")
	for _, name := range selected {
		poolSelectorLogger().Info().
			Str("pool", name).
			Float64("allocation", targets[name]*100).
			Msg("Pool allocation percentage")
	}

	return targets, nil
}
