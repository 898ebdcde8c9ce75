/*

This file contains the per-user position record and the rebalancing records produced by the AVM.

*/

package types

import (
	"time"

	sdkmath "cosmossdk.io/math"
)

// UserPosition is a depositor's claim on the vault.
type UserPosition struct {
	Shares          sdkmath.Int `json:"shares"`
	DepositedAmount sdkmath.Int `json:"deposited_amount"`  // Cumulative principal, reset when shares reach zero
	LastDepositTime uint64      `json:"last_deposit_time"` // Block time of the most recent deposit
	TotalRewards    sdkmath.Int `json:"total_rewards"`     // Reserved, not populated by any operation yet
}

// NewUserPosition returns the all-zero position used for addresses that never deposited.
func NewUserPosition() UserPosition {
	return UserPosition{
		Shares:          sdkmath.ZeroInt(),
		DepositedAmount: sdkmath.ZeroInt(),
		TotalRewards:    sdkmath.ZeroInt(),
	}
}

// Normalize replaces nil amounts with zero.
func (p UserPosition) Normalize() UserPosition {
	if p.Shares.IsNil() {
		p.Shares = sdkmath.ZeroInt()
	}
	if p.DepositedAmount.IsNil() {
		p.DepositedAmount = sdkmath.ZeroInt()
	}
	if p.TotalRewards.IsNil() {
		p.TotalRewards = sdkmath.ZeroInt()
	}
	return p
}

// IsEmpty reports whether the position holds no shares.
func (p UserPosition) IsEmpty() bool {
	return p.Shares.IsNil() || p.Shares.IsZero()
}

// RebalanceMove is a single reclassification of allocation between two pools.
type RebalanceMove struct {
	FromPool string      `json:"from_pool"`
	ToPool   string      `json:"to_pool"`
	Amount   sdkmath.Int `json:"amount"`
}

// ActionReceipt records the outcome of executing one RebalanceMove.
type ActionReceipt struct {
	Move      RebalanceMove `json:"move"`
	Success   bool          `json:"success"`
	Message   string        `json:"message,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// AllocationSnapshot is the state of one pool at a point of a cycle.
type AllocationSnapshot struct {
	Pool              string  `json:"pool"`
	TotalAllocated    string  `json:"total_allocated"`
	AllocationPercent float64 `json:"allocation_percent"` // Share of the summed allocation, 0-100
	CurrentAPY        uint32  `json:"current_apy"`
	RiskLevel         uint8   `json:"risk_level"`
	Score             float64 `json:"score"`
}

// CycleSnapshot is everything the AVM knows about one cycle, persisted for the dashboard API.
type CycleSnapshot struct {
	SnapshotID      int64     `json:"snapshot_id"`
	CycleID         string    `json:"cycle_id"`
	CycleNumber     int       `json:"cycle_number"`
	Timestamp       time.Time `json:"timestamp"`
	ScoringParamsID *int64    `json:"scoring_params_id,omitempty"`
	Mode            string    `json:"mode"`

	// Pre-Action State
	TotalTVL           string               `json:"total_tvl"`
	TotalShares        string               `json:"total_shares"`
	InitialAllocations []AllocationSnapshot `json:"initial_allocations"`

	// The Plan
	SelectedPools     []string           `json:"selected_pools"`
	TargetAllocations map[string]float64 `json:"target_allocations"`
	Plan              []RebalanceMove    `json:"plan"`

	// The Outcome
	FinalAllocations []AllocationSnapshot `json:"final_allocations"`
	ActionReceipts   []ActionReceipt      `json:"action_receipts"`

	AllocationEfficiencyPercent float64 `json:"allocation_efficiency_percent"`
}
