/*

This is the type for yield pools tracked by the vault ledger. A pool is only an allocation bucket,
the ledger never moves funds into or out of it.

*/

package types

import (
	"cosmossdk.io/math"
)

// PoolInfo is the ledger record for a named pool.
type PoolInfo struct {
	Name           string   `json:"name"`            // Display label, always equal to the key
	TotalAllocated math.Int `json:"total_allocated"` // Capital assigned to this pool (sub-accounting of TVL)
	CurrentAPY     uint32   `json:"current_apy"`     // Annual yield in basis points (1250 = 12.50%)
	RiskLevel      uint8    `json:"risk_level"`      // 1 (lowest) to 5, informational
}

// NewPoolInfo returns a pool record with nothing allocated.
func NewPoolInfo(name string, apyBps uint32, riskLevel uint8) PoolInfo {
	return PoolInfo{
		Name:           name,
		TotalAllocated: math.ZeroInt(),
		CurrentAPY:     apyBps,
		RiskLevel:      riskLevel,
	}
}

// Normalize replaces nil amounts with zero so decoded records behave like fresh ones.
func (p PoolInfo) Normalize() PoolInfo {
	if p.TotalAllocated.IsNil() {
		p.TotalAllocated = math.ZeroInt()
	}
	return p
}
