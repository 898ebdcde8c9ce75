package metrics

import (
	"errors"
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/elys-network/yieldvault/internal/ledger"
	"github.com/elys-network/yieldvault/internal/types"
)

func TestEmitCountsEventsAndAmounts(t *testing.T) {
	m := New(prometheus.NewRegistry(), 0)

	m.Emit(types.DepositEvent{Amount: sdkmath.NewInt(100), Shares: sdkmath.NewInt(100)})
	m.Emit(types.DepositEvent{Amount: sdkmath.NewInt(50), Shares: sdkmath.NewInt(50)})
	m.Emit(types.RewardsHarvestedEvent{Pool: "alpha", Amount: sdkmath.NewInt(7)})

	require.Equal(t, 2.0, testutil.ToFloat64(m.events.WithLabelValues(types.EventTypeDeposit)))
	require.Equal(t, 150.0, testutil.ToFloat64(m.amounts.WithLabelValues(types.EventTypeDeposit)))
	require.Equal(t, 7.0, testutil.ToFloat64(m.amounts.WithLabelValues(types.EventTypeRewardsHarvested)))
}

func TestObserveOperationClassifiesRejections(t *testing.T) {
	m := New(prometheus.NewRegistry(), 0)

	m.ObserveOperation(ledger.OpDeposit, nil)
	m.ObserveOperation(ledger.OpWithdraw, ledger.ErrInsufficientShares.Wrap("holds 1"))
	m.ObserveOperation(ledger.OpWithdraw, errors.New("disk full"))

	require.Equal(t, 1.0, testutil.ToFloat64(m.operations.WithLabelValues(ledger.OpDeposit, "success")))
	require.Equal(t, 2.0, testutil.ToFloat64(m.operations.WithLabelValues(ledger.OpWithdraw, "rejected")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.rejections.WithLabelValues(ledger.OpWithdraw, "InsufficientShares")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.rejections.WithLabelValues(ledger.OpWithdraw, "internal")))
}

func TestUpdateVaultUsesDisplayUnits(t *testing.T) {
	m := New(prometheus.NewRegistry(), 9)

	pool := types.NewPoolInfo("alpha", 1250, 2)
	pool.TotalAllocated = sdkmath.NewInt(2_000_000_000)
	m.UpdateVault(types.Globals{
		TotalTVL:    sdkmath.NewInt(5_000_000_000),
		TotalShares: sdkmath.NewInt(4_000_000_000),
	}, 1.25, []types.PoolInfo{pool})

	require.Equal(t, 5.0, testutil.ToFloat64(m.tvl))
	require.Equal(t, 4.0, testutil.ToFloat64(m.totalShares))
	require.Equal(t, 1.25, testutil.ToFloat64(m.sharePrice))
	require.Equal(t, 2.0, testutil.ToFloat64(m.allocation.WithLabelValues("alpha")))
	require.Equal(t, 1250.0, testutil.ToFloat64(m.poolAPY.WithLabelValues("alpha")))
}

func TestObserveCycle(t *testing.T) {
	m := New(prometheus.NewRegistry(), 0)
	m.ObserveCycle("dry-run", 3, 0.2, nil)
	m.ObserveCycle("live", 0, 0.1, errors.New("boom"))

	require.Equal(t, 1.0, testutil.ToFloat64(m.cycles.WithLabelValues("dry-run", "success")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.cycles.WithLabelValues("live", "error")))
	require.Equal(t, 3.0, testutil.ToFloat64(m.plannedMoves))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *VaultMetrics
	m.Emit(types.DepositEvent{Amount: sdkmath.NewInt(1)})
	m.ObserveOperation(ledger.OpDeposit, nil)
	m.UpdateVault(types.NewGlobals(), 1, nil)
	m.ObserveCycle("live", 1, 1, nil)
}

func TestMetricsAsLedgerCollaborators(t *testing.T) {
	m := New(prometheus.NewRegistry(), 0)
	store := &memStore{}
	owner := []byte("owner_______________")
	l, err := ledger.Init(store, m, ledger.CallEnv{Sender: owner, Time: 1}, 0)
	require.NoError(t, err)
	l.SetObserver(m)

	_, err = l.Deposit(ledger.CallEnv{Sender: owner, Time: 2}, sdkmath.NewInt(10))
	require.NoError(t, err)
	_, err = l.Deposit(ledger.CallEnv{Sender: owner, Time: 3}, sdkmath.ZeroInt())
	require.Error(t, err)

	require.Equal(t, 1.0, testutil.ToFloat64(m.events.WithLabelValues(types.EventTypeDeposit)))
	require.Equal(t, 1.0, testutil.ToFloat64(m.rejections.WithLabelValues(ledger.OpDeposit, "ZeroAmount")))
}

type memStore struct {
	globals   *types.Globals
	positions map[string]types.UserPosition
}

func (s *memStore) GetGlobals() (types.Globals, bool, error) {
	if s.globals == nil {
		return types.Globals{}, false, nil
	}
	return *s.globals, true, nil
}

func (s *memStore) GetPosition(addr string) (types.UserPosition, bool, error) {
	p, ok := s.positions[addr]
	return p, ok, nil
}

func (s *memStore) GetPool(string) (types.PoolInfo, bool, error) { return types.PoolInfo{}, false, nil }
func (s *memStore) ListPools() ([]types.PoolInfo, error)         { return nil, nil }

func (s *memStore) Commit(cs *ledger.Changeset) error {
	if cs.Globals != nil {
		g := *cs.Globals
		s.globals = &g
	}
	if s.positions == nil {
		s.positions = make(map[string]types.UserPosition)
	}
	for k, v := range cs.Positions {
		s.positions[k] = v
	}
	return nil
}
