package vault

import (
	"bytes"
	"testing"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/require"

	"github.com/elys-network/yieldvault/internal/ledger"
	"github.com/elys-network/yieldvault/internal/logger"
	"github.com/elys-network/yieldvault/internal/state"
	"github.com/elys-network/yieldvault/internal/types"
)

var owner = sdk.AccAddress([]byte("owner_______________"))

func newClient(t *testing.T) (*LedgerClient, *ledger.Ledger) {
	t.Helper()
	env := ledger.CallEnv{Sender: owner, Time: 1}
	l, err := ledger.Init(state.NewMemStore(), ledger.NoopSink{}, env, 0)
	require.NoError(t, err)
	_, err = l.Deposit(env, sdkmath.NewInt(500))
	require.NoError(t, err)
	require.NoError(t, l.AddPool(env, "alpha", 800, 1))
	require.NoError(t, l.AddPool(env, "beta", 1200, 2))
	require.NoError(t, l.AllocateToPool(env, "alpha", sdkmath.NewInt(300)))

	c, err := NewLedgerClient(l)
	require.NoError(t, err)
	return c, l
}

func move(from, to string, amount int64) types.RebalanceMove {
	return types.RebalanceMove{FromPool: from, ToPool: to, Amount: sdkmath.NewInt(amount)}
}

func allocated(t *testing.T, l *ledger.Ledger, name string) int64 {
	t.Helper()
	p, ok, err := l.GetPoolInfo(name)
	require.NoError(t, err)
	require.True(t, ok)
	return p.TotalAllocated.Int64()
}

func TestNewLedgerClientActsAsOwner(t *testing.T) {
	c, _ := newClient(t)
	require.True(t, owner.Equals(c.Caller()))

	_, err := NewLedgerClient(nil)
	require.Error(t, err)
}

func TestReadsPassThrough(t *testing.T) {
	c, _ := newClient(t)

	pools, err := c.ListPools()
	require.NoError(t, err)
	require.Len(t, pools, 2)

	g, err := c.GetGlobals()
	require.NoError(t, err)
	require.Equal(t, int64(500), g.TotalTVL.Int64())

	price, err := c.GetSharePrice()
	require.NoError(t, err)
	require.True(t, price.Equal(sdkmath.LegacyOneDec()))
}

func TestExecuteActionPlan(t *testing.T) {
	c, l := newClient(t)

	receipts, err := c.ExecuteActionPlan([]types.RebalanceMove{move("alpha", "beta", 100), move("alpha", "beta", 50)})
	require.NoError(t, err)
	require.Len(t, receipts, 2)
	for _, r := range receipts {
		require.True(t, r.Success)
		require.False(t, r.Timestamp.IsZero())
	}
	require.Equal(t, int64(150), allocated(t, l, "alpha"))
	require.Equal(t, int64(150), allocated(t, l, "beta"))
}

func TestExecuteActionPlanStopsAtFirstFailure(t *testing.T) {
	c, l := newClient(t)

	receipts, err := c.ExecuteActionPlan([]types.RebalanceMove{
		move("alpha", "beta", 100),
		move("alpha", "beta", 1000),
		move("beta", "alpha", 10),
	})
	require.ErrorIs(t, err, ErrTransactionFailed)
	require.ErrorIs(t, err, ledger.ErrInsufficientAllocation)
	require.Len(t, receipts, 2)
	require.True(t, receipts[0].Success)
	require.False(t, receipts[1].Success)
	require.NotEmpty(t, receipts[1].Message)

	require.Equal(t, int64(200), allocated(t, l, "alpha"))
	require.Equal(t, int64(100), allocated(t, l, "beta"))
}

func TestFailedMoveIsLogged(t *testing.T) {
	buf := captureLogs(t)
	c, _ := newClient(t)

	_, err := c.ExecuteActionPlan([]types.RebalanceMove{move("alpha", "beta", 10000)})
	require.ErrorIs(t, err, ErrTransactionFailed)
	require.Contains(t, buf.String(), "Rebalance move failed")
	require.Contains(t, buf.String(), `"component":"vault_client"`)
}

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	prev, prevStd, prevLevel := logger.Logger, log.Logger, zerolog.GlobalLevel()
	t.Cleanup(func() {
		logger.Logger, log.Logger = prev, prevStd
		zerolog.SetGlobalLevel(prevLevel)
	})
	var buf bytes.Buffer
	logger.Initialize("debug", "json", &buf)
	return &buf
}

func TestExecuteActionPlanRejectsMalformedMoves(t *testing.T) {
	c, l := newClient(t)

	for name, moves := range map[string][]types.RebalanceMove{
		"empty pool":  {move("", "beta", 10)},
		"zero amount": {move("alpha", "beta", 0)},
		"nil amount":  {{FromPool: "alpha", ToPool: "beta"}},
	} {
		t.Run(name, func(t *testing.T) {
			receipts, err := c.ExecuteActionPlan(moves)
			require.ErrorIs(t, err, ErrActionPlanInvalid)
			require.Nil(t, receipts)
		})
	}
	require.Equal(t, int64(300), allocated(t, l, "alpha"))
}

func TestEmptyPlanIsANoop(t *testing.T) {
	c, _ := newClient(t)
	receipts, err := c.ExecuteActionPlan(nil)
	require.NoError(t, err)
	require.Empty(t, receipts)
}
