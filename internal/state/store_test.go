package state

import (
	"database/sql"
	"os"
	"testing"

	sdkmath "cosmossdk.io/math"
	sdktypes "github.com/cosmos/cosmos-sdk/types"
	"github.com/stretchr/testify/require"
	"github.com/syndtr/goleveldb/leveldb/storage"

	"github.com/elys-network/yieldvault/internal/ledger"
	"github.com/elys-network/yieldvault/internal/types"
)

func newLevelStoreForTest(t *testing.T) *LevelStore {
	t.Helper()
	s, err := NewLevelStoreWithStorage(storage.NewMemStorage())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// runStoreConformance checks the contract every ledger.Store backend must honour.
func runStoreConformance(t *testing.T, s ledger.Store) {
	t.Helper()

	_, found, err := s.GetGlobals()
	require.NoError(t, err)
	require.False(t, found)

	_, found, err = s.GetPosition("nobody")
	require.NoError(t, err)
	require.False(t, found)

	_, found, err = s.GetPool("nothing")
	require.NoError(t, err)
	require.False(t, found)

	require.NoError(t, s.Commit(ledger.NewChangeset()))

	huge, ok := sdkmath.NewIntFromString("115792089237316195423570985008687907853269984665640564039457584007913129639935")
	require.True(t, ok)

	cs := ledger.NewChangeset()
	cs.SetGlobals(types.Globals{
		Owner:         "owner",
		TotalTVL:      huge,
		TotalShares:   sdkmath.NewInt(42),
		ManagementFee: 150,
		Paused:        true,
	})
	cs.SetPosition("alice", types.UserPosition{
		Shares:          sdkmath.NewInt(42),
		DepositedAmount: sdkmath.NewInt(40),
		LastDepositTime: 1700000000123,
		TotalRewards:    sdkmath.ZeroInt(),
	})
	alpha := types.NewPoolInfo("alpha", 1250, 3)
	alpha.TotalAllocated = sdkmath.NewInt(7)
	cs.SetPool(alpha)
	cs.SetPool(types.NewPoolInfo("beta", 300, 1))
	require.NoError(t, s.Commit(cs))

	g, found, err := s.GetGlobals()
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "owner", g.Owner)
	require.True(t, g.TotalTVL.Equal(huge))
	require.Equal(t, int64(42), g.TotalShares.Int64())
	require.Equal(t, uint32(150), g.ManagementFee)
	require.True(t, g.Paused)

	p, found, err := s.GetPosition("alice")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, int64(42), p.Shares.Int64())
	require.Equal(t, int64(40), p.DepositedAmount.Int64())
	require.Equal(t, uint64(1700000000123), p.LastDepositTime)

	pool, found, err := s.GetPool("alpha")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "alpha", pool.Name)
	require.Equal(t, int64(7), pool.TotalAllocated.Int64())
	require.Equal(t, uint32(1250), pool.CurrentAPY)
	require.Equal(t, uint8(3), pool.RiskLevel)

	pools, err := s.ListPools()
	require.NoError(t, err)
	require.Len(t, pools, 2)

	// Overwrite.
	cs = ledger.NewChangeset()
	cs.SetPool(types.NewPoolInfo("alpha", 10, 1))
	require.NoError(t, s.Commit(cs))
	pool, _, err = s.GetPool("alpha")
	require.NoError(t, err)
	require.True(t, pool.TotalAllocated.IsZero())
	require.Equal(t, uint32(10), pool.CurrentAPY)
}

func TestMemStoreConformance(t *testing.T) {
	runStoreConformance(t, NewMemStore())
}

func TestLevelStoreConformance(t *testing.T) {
	runStoreConformance(t, newLevelStoreForTest(t))
}

func TestPostgresStoreConformance(t *testing.T) {
	dsn := os.Getenv("YIELDVAULT_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("YIELDVAULT_TEST_POSTGRES_DSN not set")
	}
	db, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	DB = db
	t.Cleanup(func() {
		require.NoError(t, DropSchema())
		CloseDB()
		DB = nil
	})
	require.NoError(t, DropSchema())
	require.NoError(t, EnsureSchema())

	s, err := NewPostgresStore(db)
	require.NoError(t, err)
	runStoreConformance(t, s)
}

func TestNewPostgresStoreRequiresDB(t *testing.T) {
	_, err := NewPostgresStore(nil)
	require.Error(t, err)
}

func TestLedgerOverLevelStoreSurvivesReopen(t *testing.T) {
	s := newLevelStoreForTest(t)
	owner := sdktypes.AccAddress([]byte("owner_______________"))
	alice := sdktypes.AccAddress([]byte("alice_______________"))

	l, err := ledger.Init(s, nil, ledger.CallEnv{Sender: owner, Time: 1}, 100)
	require.NoError(t, err)
	require.NoError(t, l.AddPool(ledger.CallEnv{Sender: owner, Time: 2}, "alpha", 900, 2))
	_, err = l.Deposit(ledger.CallEnv{Sender: alice, Time: 3}, sdkmath.NewInt(1000))
	require.NoError(t, err)
	require.NoError(t, l.AllocateToPool(ledger.CallEnv{Sender: owner, Time: 4}, "alpha", sdkmath.NewInt(600)))

	reopened, err := ledger.Open(s, nil)
	require.NoError(t, err)
	value, err := reopened.GetUserValue(alice)
	require.NoError(t, err)
	require.Equal(t, int64(1000), value.Int64())
	pool, found, err := reopened.GetPoolInfo("alpha")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, int64(600), pool.TotalAllocated.Int64())

	positions, err := s.Positions()
	require.NoError(t, err)
	require.Contains(t, positions, alice.String())
}

func TestMemStorePositionsIsACopy(t *testing.T) {
	s := NewMemStore()
	cs := ledger.NewChangeset()
	cs.SetPosition("a", types.NewUserPosition())
	require.NoError(t, s.Commit(cs))

	snapshot := s.Positions()
	delete(snapshot, "a")
	_, found, err := s.GetPosition("a")
	require.NoError(t, err)
	require.True(t, found)
}
