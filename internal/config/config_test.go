package config

import (
	"testing"
	"time"

	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/stretchr/testify/require"
)

var configKeys = []string{
	"OWNER_ADDRESS", "MANAGEMENT_FEE_BP", "BECH32_PREFIX", "STORE_BACKEND", "LEVELDB_PATH",
	"AVM_MODE", "AVM_LOOP_INTERVAL", "ASSET_DECIMALS", "LOG_LEVEL", "LOG_FORMAT", "LOG_FILE", "WEB_PORT",
	"DB_ENABLED", "DB_HOST", "DB_PORT", "DB_USER", "DB_PASSWORD", "DB_NAME", "DB_SSLMODE",
	"SCORING_MAX_POOLS", "SCORING_MIN_ALLOCATION", "SCORING_MAX_ALLOCATION", "SCORING_APY_COEFFICIENT",
	"SCORING_RISK_COEFFICIENT", "SCORING_CONTINUITY_BONUS", "SCORING_REBALANCE_THRESHOLD_PERCENT",
	"SCORING_MAX_REBALANCE_PERCENT_PER_CYCLE",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range configKeys {
		t.Setenv(k, "")
	}
}

func ownerFor(prefix string) string {
	return sdk.MustBech32ifyAddressBytes(prefix, []byte("owner_______________"))
}

func TestLoadConfigDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("OWNER_ADDRESS", ownerFor("cosmos"))

	require.NoError(t, LoadConfig())
	require.Equal(t, "cosmos", Bech32Prefix)
	require.Equal(t, uint32(0), ManagementFeeBp)
	require.Equal(t, StoreBackendLevelDB, StoreBackend)
	require.Equal(t, "./data/ledger", LevelDBPath)
	require.Equal(t, "dry-run", AVMMode)
	require.Equal(t, 10*time.Minute, AVMLoopInterval)
	require.Equal(t, 6, AssetDecimals)
	require.Equal(t, "8080", WebPort)
	require.False(t, DBEnabled)
	require.Equal(t, 5432, DBPort)
}

func TestLoadConfigOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("BECH32_PREFIX", "elys")
	t.Setenv("OWNER_ADDRESS", ownerFor("elys"))
	t.Setenv("MANAGEMENT_FEE_BP", "250")
	t.Setenv("STORE_BACKEND", "Postgres")
	t.Setenv("AVM_MODE", "live")
	t.Setenv("AVM_LOOP_INTERVAL", "90")
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("DB_PORT", "6543")
	t.Setenv("WEB_PORT", "9000")

	require.NoError(t, LoadConfig())
	t.Cleanup(func() { ApplyBech32Prefix(sdk.Bech32MainPrefix) })

	require.Equal(t, uint32(250), ManagementFeeBp)
	require.Equal(t, StoreBackendPostgres, StoreBackend)
	require.Equal(t, "live", AVMMode)
	require.Equal(t, 90*time.Second, AVMLoopInterval)
	require.True(t, DBEnabled)
	require.Equal(t, "db.internal", DBHost)
	require.Equal(t, 6543, DBPort)
	require.Equal(t, "9000", WebPort)
}

func TestLoadConfigErrors(t *testing.T) {
	cases := map[string]map[string]string{
		"missing owner":       {},
		"bad owner":           {"OWNER_ADDRESS": "not-an-address"},
		"fee too large":       {"OWNER_ADDRESS": ownerFor("cosmos"), "MANAGEMENT_FEE_BP": "10001"},
		"fee not a number":    {"OWNER_ADDRESS": ownerFor("cosmos"), "MANAGEMENT_FEE_BP": "ten"},
		"unknown backend":     {"OWNER_ADDRESS": ownerFor("cosmos"), "STORE_BACKEND": "sqlite"},
		"bad interval":        {"OWNER_ADDRESS": ownerFor("cosmos"), "AVM_LOOP_INTERVAL": "soon"},
		"postgres w/o host":   {"OWNER_ADDRESS": ownerFor("cosmos"), "STORE_BACKEND": "postgres"},
		"db enabled w/o host": {"OWNER_ADDRESS": ownerFor("cosmos"), "DB_ENABLED": "true"},
		"bad db flag":         {"OWNER_ADDRESS": ownerFor("cosmos"), "DB_ENABLED": "maybe"},
		"bad port":            {"OWNER_ADDRESS": ownerFor("cosmos"), "DB_PORT": "70000"},
		"too many decimals":   {"OWNER_ADDRESS": ownerFor("cosmos"), "ASSET_DECIMALS": "40"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range env {
				t.Setenv(k, v)
			}
			require.Error(t, LoadConfig())
		})
	}
}

func TestScoringParametersFromEnv(t *testing.T) {
	clearEnv(t)
	params, err := ScoringParametersFromEnv(DefaultScoringParameters)
	require.NoError(t, err)
	require.Equal(t, DefaultScoringParameters, params)

	t.Setenv("SCORING_MAX_POOLS", "2")
	t.Setenv("SCORING_MAX_ALLOCATION", "0.75")
	t.Setenv("SCORING_RISK_COEFFICIENT", "-0.5")
	params, err = ScoringParametersFromEnv(DefaultScoringParameters)
	require.NoError(t, err)
	require.Equal(t, 2, params.MaxPools)
	require.Equal(t, 0.75, params.MaxAllocation)
	require.Equal(t, -0.5, params.RiskCoefficient)
	require.Equal(t, DefaultScoringParameters.MinAllocation, params.MinAllocation)

	t.Setenv("SCORING_APY_COEFFICIENT", "lots")
	_, err = ScoringParametersFromEnv(DefaultScoringParameters)
	require.Error(t, err)
}
