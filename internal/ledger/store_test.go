package ledger

import (
	"errors"
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/require"

	"github.com/elys-network/yieldvault/internal/types"
)

var errBrokenStore = errors.New("disk on fire")

type brokenStore struct{ fakeStore }

func (*brokenStore) GetGlobals() (types.Globals, bool, error) {
	return types.Globals{}, false, errBrokenStore
}

func (*brokenStore) GetPosition(string) (types.UserPosition, bool, error) {
	return types.UserPosition{}, false, errBrokenStore
}

func TestGetOrDefaultOnEmptyStore(t *testing.T) {
	s := newFakeStore()

	g, err := GlobalsOrDefault(s)
	require.NoError(t, err)
	require.Empty(t, g.Owner)
	require.True(t, g.TotalTVL.IsZero())
	require.True(t, g.TotalShares.IsZero())
	require.False(t, g.Paused)
	require.Zero(t, g.ManagementFee)

	p, err := PositionOrDefault(s, "anyone")
	require.NoError(t, err)
	require.True(t, p.Shares.IsZero())
	require.True(t, p.DepositedAmount.IsZero())
	require.True(t, p.TotalRewards.IsZero())
	require.Zero(t, p.LastDepositTime)
}

func TestGetOrDefaultNormalizesNilAmounts(t *testing.T) {
	s := newFakeStore()
	s.globals = &types.Globals{Owner: "x"}
	s.positions["a"] = types.UserPosition{Shares: sdkmath.NewInt(3)}

	g, err := GlobalsOrDefault(s)
	require.NoError(t, err)
	require.False(t, g.TotalTVL.IsNil())

	p, err := PositionOrDefault(s, "a")
	require.NoError(t, err)
	require.Equal(t, int64(3), p.Shares.Int64())
	require.False(t, p.DepositedAmount.IsNil())
}

func TestGetOrDefaultPropagatesStoreErrors(t *testing.T) {
	s := &brokenStore{}
	_, err := GlobalsOrDefault(s)
	require.ErrorIs(t, err, errBrokenStore)
	_, err = PositionOrDefault(s, "a")
	require.ErrorIs(t, err, errBrokenStore)
}

func TestChangeset(t *testing.T) {
	var nilCs *Changeset
	require.True(t, nilCs.IsEmpty())

	cs := NewChangeset()
	require.True(t, cs.IsEmpty())
	cs.SetPool(types.NewPoolInfo("alpha", 100, 1))
	require.False(t, cs.IsEmpty())
	require.Contains(t, cs.Pools, "alpha")
}
