package planner

import (
	"errors"
	"fmt"
	"math"
	"sort"

	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog"

	"github.com/elys-network/yieldvault/internal/logger"
	"github.com/elys-network/yieldvault/internal/types"
	"github.com/elys-network/yieldvault/internal/utils"
)

var (
	ErrInvalidTargetAllocations = errors.New("target allocations contain invalid values")
	ErrMissingPoolData          = errors.New("required pool data is missing")
	ErrInvalidScoringParams     = errors.New("scoring parameters contain invalid values")
	ErrInvalidPoolState         = errors.New("pool state is invalid for operation")
)

// fractionPrecision is the number of decimals kept when a float target fraction is turned
// into a LegacyDec.
const fractionPrecision = 12

// PoolDelta is the distance between a pool's current allocation and its target.
type PoolDelta struct {
	Pool    string
	Current sdkmath.Int
	Target  sdkmath.Int
	Delta   sdkmath.Int // Target - Current, negative for pools holding too much
}

// GenerateActionPlan turns target fractions into integer moves between pools.
//
// Targets are fractions of the summed allocation across all pools; pools without a target aim for
// zero. Pools whose deviation is within RebalanceThresholdPercent percentage points of the summed
// allocation are left alone. The amount moved per cycle is capped at MaxRebalancePercentPerCycle
// percent of the summed allocation. Every move takes from an over-allocated pool and gives to an
// under-allocated one, so executing the plan keeps the summed allocation unchanged.
func GenerateActionPlan(
	pools []types.PoolInfo,
	targetAllocations map[string]float64,
	scoringParams types.ScoringParameters,
) ([]types.RebalanceMove, error) {
	actionLogger := logger.GetForComponent("action_planner")

	if err := validateInputs(pools, targetAllocations, scoringParams); err != nil {
		actionLogger.Error().Err(err).Msg("Input validation failed")
		return nil, err
	}

	total := TotalAllocated(pools)
	if total.IsZero() {
		actionLogger.Info().Msg("Nothing is allocated to any pool, no moves to plan")
		return []types.RebalanceMove{}, nil
	}

	deltas, err := AnalyzeRequiredChanges(pools, targetAllocations, total)
	if err != nil {
		actionLogger.Error().Err(err).Msg("Failed to analyze required changes")
		return nil, err
	}

	var surpluses, deficits []PoolDelta
	for _, d := range deltas {
		deviation := utils.ShareOf(d.Delta.Abs(), total) * 100
		actionLogger.Debug().
			Str("pool", d.Pool).
			Str("current", d.Current.String()).
			Str("target", d.Target.String()).
			Str("delta", d.Delta.String()).
			Float64("deviationPercent", deviation).
			Float64("thresholdPercent", scoringParams.RebalanceThresholdPercent).
			Msg("Pool rebalancing analysis")

		if d.Delta.IsZero() || deviation <= scoringParams.RebalanceThresholdPercent {
			continue
		}
		if d.Delta.IsNegative() {
			surpluses = append(surpluses, d)
		} else {
			deficits = append(deficits, d)
		}
	}

	budget := cycleBudget(total, scoringParams.MaxRebalancePercentPerCycle)
	moves := matchMoves(surpluses, deficits, budget, actionLogger)

	actionLogger.Info().
		Int("overAllocated", len(surpluses)).
		Int("underAllocated", len(deficits)).
		Int("moves", len(moves)).
		Str("budget", budget.String()).
		Msg("Action plan generation completed successfully")

	return moves, nil
}

// TotalAllocated sums TotalAllocated across pools.
func TotalAllocated(pools []types.PoolInfo) sdkmath.Int {
	total := sdkmath.ZeroInt()
	for _, p := range pools {
		total = total.Add(p.Normalize().TotalAllocated)
	}
	return total
}

// AnalyzeRequiredChanges computes, for every pool, the integer target floor(total*fraction) and its
// delta to the current allocation. The result is sorted by pool name.
func AnalyzeRequiredChanges(pools []types.PoolInfo, targetAllocations map[string]float64, total sdkmath.Int) ([]PoolDelta, error) {
	known := make(map[string]struct{}, len(pools))
	deltas := make([]PoolDelta, 0, len(pools))

	for _, p := range pools {
		p = p.Normalize()
		known[p.Name] = struct{}{}

		target := sdkmath.ZeroInt()
		if frac, ok := targetAllocations[p.Name]; ok {
			var err error
			target, err = amountForFraction(total, frac)
			if err != nil {
				return nil, fmt.Errorf("target for pool %s: %w", p.Name, err)
			}
		}
		deltas = append(deltas, PoolDelta{
			Pool:    p.Name,
			Current: p.TotalAllocated,
			Target:  target,
			Delta:   target.Sub(p.TotalAllocated),
		})
	}

	for name := range targetAllocations {
		if _, ok := known[name]; !ok {
			return nil, errors.Join(ErrMissingPoolData, fmt.Errorf("target references unknown pool %s", name))
		}
	}

	sort.Slice(deltas, func(i, j int) bool { return deltas[i].Pool < deltas[j].Pool })
	return deltas, nil
}

func amountForFraction(total sdkmath.Int, frac float64) (sdkmath.Int, error) {
	scaled := math.Round(frac * math.Pow10(fractionPrecision))
	if math.IsNaN(scaled) || math.IsInf(scaled, 0) || scaled < 0 || scaled > math.MaxInt64 {
		return sdkmath.Int{}, fmt.Errorf("fraction %f cannot be represented", frac)
	}
	dec := sdkmath.LegacyNewDecWithPrec(int64(scaled), fractionPrecision)
	return sdkmath.LegacyNewDecFromInt(total).Mul(dec).TruncateInt(), nil
}

func cycleBudget(total sdkmath.Int, maxPercent float64) sdkmath.Int {
	if maxPercent >= 100 {
		return total
	}
	budget, err := amountForFraction(total, maxPercent/100)
	if err != nil {
		return sdkmath.ZeroInt()
	}
	return budget
}

// matchMoves pairs the largest surplus with the largest deficit until either side or the budget
// runs out.
func matchMoves(surpluses, deficits []PoolDelta, budget sdkmath.Int, actionLogger zerolog.Logger) []types.RebalanceMove {
	type bucket struct {
		pool   string
		amount sdkmath.Int
	}
	toBuckets := func(in []PoolDelta) []bucket {
		out := make([]bucket, len(in))
		for i, d := range in {
			out[i] = bucket{pool: d.Pool, amount: d.Delta.Abs()}
		}
		sort.SliceStable(out, func(i, j int) bool {
			if out[i].amount.Equal(out[j].amount) {
				return out[i].pool < out[j].pool
			}
			return out[i].amount.GT(out[j].amount)
		})
		return out
	}
	from := toBuckets(surpluses)
	to := toBuckets(deficits)

	moves := []types.RebalanceMove{}
	remaining := budget
	i, j := 0, 0
	for i < len(from) && j < len(to) && remaining.IsPositive() {
		amount := sdkmath.MinInt(from[i].amount, to[j].amount)
		if amount.GT(remaining) {
			actionLogger.Warn().
				Str("wanted", amount.String()).
				Str("remainingBudget", remaining.String()).
				Msg("Move exceeds per-cycle limit, capping")
			amount = remaining
		}
		if amount.IsPositive() {
			moves = append(moves, types.RebalanceMove{FromPool: from[i].pool, ToPool: to[j].pool, Amount: amount})
		}
		from[i].amount = from[i].amount.Sub(amount)
		to[j].amount = to[j].amount.Sub(amount)
		remaining = remaining.Sub(amount)
		if !from[i].amount.IsPositive() {
			i++
		}
		if !to[j].amount.IsPositive() {
			j++
		}
	}
	return moves
}

// AllocationEfficiency reports how close the current allocation is to the targets, 100 meaning
// identical and 0 meaning disjoint.
func AllocationEfficiency(pools []types.PoolInfo, targetAllocations map[string]float64) float64 {
	if len(targetAllocations) == 0 {
		return 100
	}
	total := TotalAllocated(pools)
	if total.IsZero() {
		return 0
	}
	distance := 0.0
	seen := make(map[string]struct{}, len(pools))
	for _, p := range pools {
		p = p.Normalize()
		seen[p.Name] = struct{}{}
		distance += math.Abs(utils.ShareOf(p.TotalAllocated, total) - targetAllocations[p.Name])
	}
	for name, frac := range targetAllocations {
		if _, ok := seen[name]; !ok {
			distance += frac
		}
	}
	eff := 100 * (1 - distance/2)
	if eff < 0 {
		return 0
	}
	return eff
}

func validateInputs(pools []types.PoolInfo, targetAllocations map[string]float64, params types.ScoringParameters) error {
	if targetAllocations == nil {
		return errors.Join(ErrInvalidTargetAllocations, errors.New("target allocations map is nil"))
	}

	totalAllocation := 0.0
	for name, allocation := range targetAllocations {
		if math.IsNaN(allocation) || math.IsInf(allocation, 0) {
			return errors.Join(ErrInvalidTargetAllocations,
				fmt.Errorf("allocation for pool %s is not finite: %f", name, allocation))
		}
		if allocation < 0 {
			return errors.Join(ErrInvalidTargetAllocations,
				fmt.Errorf("allocation for pool %s is negative: %f", name, allocation))
		}
		if allocation > 1 {
			return errors.Join(ErrInvalidTargetAllocations,
				fmt.Errorf("allocation for pool %s exceeds 100%%: %f", name, allocation))
		}
		totalAllocation += allocation
	}
	if len(targetAllocations) > 0 && math.Abs(totalAllocation-1.0) > 0.01 {
		return errors.Join(ErrInvalidTargetAllocations,
			fmt.Errorf("total allocations (%.6f) do not sum to 1.0", totalAllocation))
	}

	for i, p := range pools {
		if p.Name == "" {
			return errors.Join(ErrInvalidPoolState, fmt.Errorf("pool %d has no name", i))
		}
		if !p.TotalAllocated.IsNil() && p.TotalAllocated.IsNegative() {
			return errors.Join(ErrInvalidPoolState, fmt.Errorf("pool %s has negative allocation", p.Name))
		}
	}

	if err := validateScoringParams(params); err != nil {
		return errors.Join(ErrInvalidScoringParams, err)
	}
	return nil
}

func validateScoringParams(params types.ScoringParameters) error {
	if math.IsNaN(params.RebalanceThresholdPercent) || math.IsInf(params.RebalanceThresholdPercent, 0) {
		return errors.New("rebalance threshold is not finite")
	}
	if params.RebalanceThresholdPercent < 0 {
		return errors.New("rebalance threshold cannot be negative")
	}
	if params.RebalanceThresholdPercent > 100 {
		return errors.New("rebalance threshold cannot exceed 100%")
	}

	if math.IsNaN(params.MaxRebalancePercentPerCycle) || math.IsInf(params.MaxRebalancePercentPerCycle, 0) {
		return errors.New("max rebalance percent per cycle is not finite")
	}
	if params.MaxRebalancePercentPerCycle < 0 {
		return errors.New("max rebalance percent per cycle cannot be negative")
	}
	if params.MaxRebalancePercentPerCycle > 100 {
		return errors.New("max rebalance percent per cycle cannot exceed 100%")
	}
	return nil
}
