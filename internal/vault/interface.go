package vault

import (
	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/yieldvault/internal/types"
)

// VaultManager defines the interface the AVM uses to read and rebalance the vault.
// Implementations may act on a live ledger or on a copy for simulation.
type VaultManager interface {
	// ListPools returns every pool with its current allocation, sorted by name.
	ListPools() ([]types.PoolInfo, error)

	// GetGlobals returns the vault's scalar state (TVL, shares, owner, pause flag).
	GetGlobals() (types.Globals, error)

	// GetSharePrice returns TVL per share.
	GetSharePrice() (sdkmath.LegacyDec, error)

	// ExecuteActionPlan applies the moves in order and returns one receipt per attempted move.
	// Execution stops at the first failing move; its receipt carries the error message.
	ExecuteActionPlan(moves []types.RebalanceMove) ([]types.ActionReceipt, error)
}
