package types

import (
	"cosmossdk.io/math"
)

// Globals holds the scalar slots of a vault ledger.
type Globals struct {
	Owner         string   `json:"owner"` // bech32, empty when the ledger was never initialised
	TotalTVL      math.Int `json:"total_tvl"`
	TotalShares   math.Int `json:"total_shares"`
	ManagementFee uint32   `json:"management_fee"` // basis points, reported but never charged
	Paused        bool     `json:"paused"`
}

// NewGlobals returns the defaults read from an empty store.
func NewGlobals() Globals {
	return Globals{
		TotalTVL:    math.ZeroInt(),
		TotalShares: math.ZeroInt(),
	}
}

// Normalize replaces nil amounts with zero.
func (g Globals) Normalize() Globals {
	if g.TotalTVL.IsNil() {
		g.TotalTVL = math.ZeroInt()
	}
	if g.TotalShares.IsNil() {
		g.TotalShares = math.ZeroInt()
	}
	return g
}
