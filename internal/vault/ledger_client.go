package vault

import (
	"errors"
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/rs/zerolog"

	"github.com/elys-network/yieldvault/internal/ledger"
	"github.com/elys-network/yieldvault/internal/logger"
	"github.com/elys-network/yieldvault/internal/types"
)

var (
	ErrNoOwner           = errors.New("ledger has no owner")
	ErrActionPlanInvalid = errors.New("action plan is invalid")
	ErrTransactionFailed = errors.New("rebalance execution failed")
)

// LedgerClient drives a ledger.Ledger as its owner.
type LedgerClient struct {
	ledger *ledger.Ledger
	env    ledger.Env
	now    func() time.Time
	logger zerolog.Logger
}

// NewLedgerClient returns a client acting as the ledger's recorded owner.
func NewLedgerClient(l *ledger.Ledger) (*LedgerClient, error) {
	if l == nil {
		return nil, errors.New("ledger cannot be nil")
	}
	owner, ok, err := l.GetOwner()
	if err != nil {
		return nil, fmt.Errorf("failed to read ledger owner: %w", err)
	}
	if !ok {
		return nil, ErrNoOwner
	}
	return NewLedgerClientWithEnv(l, ledger.NewSystemEnv(owner)), nil
}

// NewLedgerClientWithEnv returns a client issuing calls with env.
func NewLedgerClientWithEnv(l *ledger.Ledger, env ledger.Env) *LedgerClient {
	return &LedgerClient{ledger: l, env: env, now: time.Now, logger: logger.GetForComponent("vault_client")}
}

// Caller is the address used for owner calls.
func (c *LedgerClient) Caller() sdk.AccAddress { return c.env.Caller() }

func (c *LedgerClient) ListPools() ([]types.PoolInfo, error) {
	return c.ledger.ListPools()
}

func (c *LedgerClient) GetGlobals() (types.Globals, error) {
	return c.ledger.GetGlobals()
}

func (c *LedgerClient) GetSharePrice() (sdkmath.LegacyDec, error) {
	return c.ledger.GetSharePrice()
}

// ExecuteActionPlan applies each move through RebalancePools.
func (c *LedgerClient) ExecuteActionPlan(moves []types.RebalanceMove) ([]types.ActionReceipt, error) {
	if err := validateMoves(moves); err != nil {
		return nil, errors.Join(ErrActionPlanInvalid, err)
	}

	receipts := make([]types.ActionReceipt, 0, len(moves))
	for i, m := range moves {
		err := c.ledger.RebalancePools(c.env, m.FromPool, m.ToPool, m.Amount)
		receipt := types.ActionReceipt{Move: m, Success: err == nil, Timestamp: c.now()}
		if err != nil {
			receipt.Message = err.Error()
			receipts = append(receipts, receipt)
			c.logger.Error().
				Err(err).
				Int("index", i).
				Str("from", m.FromPool).
				Str("to", m.ToPool).
				Str("amount", m.Amount.String()).
				Msg("Rebalance move failed, stopping execution")
			return receipts, fmt.Errorf("%w: move %d (%s -> %s): %w", ErrTransactionFailed, i, m.FromPool, m.ToPool, err)
		}
		receipt.Message = "Rebalance executed successfully"
		receipts = append(receipts, receipt)
	}

	c.logger.Info().Int("moves", len(moves)).Msg("Action plan executed")
	return receipts, nil
}

func validateMoves(moves []types.RebalanceMove) error {
	for i, m := range moves {
		if m.FromPool == "" || m.ToPool == "" {
			return fmt.Errorf("move %d has an empty pool name", i)
		}
		if m.Amount.IsNil() || !m.Amount.IsPositive() {
			return fmt.Errorf("move %d has a non-positive amount", i)
		}
	}
	return nil
}

var _ VaultManager = (*LedgerClient)(nil)
