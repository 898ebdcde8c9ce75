/*

This file contains the types for scoring pools, and other configurable parameters for the AVM.

*/

package types

// ScoringParameters holds the tunable weights and limits used by the AVM to score pools,
// derive target allocations and size rebalancing moves.
type ScoringParameters struct {
	// --- General Strategy Parameters ---
	MaxPools                    int     `json:"max_pools"`                       // Maximum number of pools that receive a target allocation.
	MinAllocation               float64 `json:"min_allocation"`                  // Minimum fraction of the allocated capital for a selected pool.
	MaxAllocation               float64 `json:"max_allocation"`                  // Maximum fraction of the allocated capital for a selected pool.
	RebalanceThresholdPercent   float64 `json:"rebalance_threshold_percent"`     // Deviation (percentage points) below which a pool is left alone.
	MaxRebalancePercentPerCycle float64 `json:"max_rebalance_percent_per_cycle"` // Cap on the capital moved per cycle, as a percentage of the allocated total.

	// --- Score Components ---
	ApyCoefficient  float64 `json:"apy_coefficient"`  // Weight of the APY (in percent) in the score.
	RiskCoefficient float64 `json:"risk_coefficient"` // Penalty per risk level above 1 (typically negative).
	MaxRiskLevel    uint8   `json:"max_risk_level"`   // Pools riskier than this are never selected.
	MinApyBps       uint32  `json:"min_apy_bps"`      // Pools yielding less than this are never selected.

	// --- Continuity ---
	ContinuityBonus float64 `json:"continuity_bonus"` // Flat bonus for pools that already hold allocation.
}

// PoolScoreResult is the score of a single pool and the terms that produced it.
type PoolScoreResult struct {
	Pool       string  `json:"pool"`
	Score      float64 `json:"final_score"`
	Eligible   bool    `json:"eligible"`
	Components struct {
		ApyPercent      float64 `json:"apy_percent"`
		ApyComponent    float64 `json:"apy_component"`
		RiskComponent   float64 `json:"risk_component"`
		ContinuityBonus float64 `json:"continuity_bonus"`
	} `json:"components"`
}
