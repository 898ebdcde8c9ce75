package types

import (
	sdkmath "cosmossdk.io/math"
	sdktypes "github.com/cosmos/cosmos-sdk/types"
)

const (
	EventTypeDeposit          = "deposit"
	EventTypeWithdrawal       = "withdraw"
	EventTypeRebalance        = "rebalance"
	EventTypeRewardsHarvested = "rewards_harvested"
)

// Event is a structured record emitted by the ledger after a successful operation.
type Event interface {
	EventType() string
}

// DepositEvent is emitted for every successful deposit.
type DepositEvent struct {
	User      sdktypes.AccAddress `json:"user"`
	Amount    sdkmath.Int         `json:"amount"`
	Shares    sdkmath.Int         `json:"shares"`
	Timestamp uint64              `json:"timestamp"`
}

func (DepositEvent) EventType() string { return EventTypeDeposit }

// WithdrawalEvent is emitted for every successful withdrawal. Shares is the amount burned.
type WithdrawalEvent struct {
	User      sdktypes.AccAddress `json:"user"`
	Amount    sdkmath.Int         `json:"amount"`
	Shares    sdkmath.Int         `json:"shares"`
	Timestamp uint64              `json:"timestamp"`
}

func (WithdrawalEvent) EventType() string { return EventTypeWithdrawal }

// RebalanceEvent is emitted when allocation moves between pools.
type RebalanceEvent struct {
	FromPool  string      `json:"from_pool"`
	ToPool    string      `json:"to_pool"`
	Amount    sdkmath.Int `json:"amount"`
	Timestamp uint64      `json:"timestamp"`
}

func (RebalanceEvent) EventType() string { return EventTypeRebalance }

// RewardsHarvestedEvent is emitted when external yield is added to TVL.
type RewardsHarvestedEvent struct {
	Pool      string      `json:"pool"`
	Amount    sdkmath.Int `json:"amount"`
	Timestamp uint64      `json:"timestamp"`
}

func (RewardsHarvestedEvent) EventType() string { return EventTypeRewardsHarvested }
