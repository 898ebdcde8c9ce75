package state

import (
	"database/sql"
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog/log"

	"github.com/elys-network/yieldvault/internal/types"
)

// PoolStats is an aggregate snapshot of the vault, combining the ledger's live figures with
// totals computed from the event journal.
type PoolStats struct {
	StatsID          int64     `json:"stats_id,omitempty"`
	TotalTVL         string    `json:"total_tvl"`
	TotalShares      string    `json:"total_shares"`
	SharePrice       string    `json:"share_price"`
	TotalUsers       int       `json:"total_users"`
	TotalDeposits    string    `json:"total_deposits"`
	TotalWithdrawals string    `json:"total_withdrawals"`
	TotalRewards     string    `json:"total_rewards"`
	WeightedApyBps   float64   `json:"weighted_apy_bps"`
	RecordedAt       time.Time `json:"recorded_at"`
}

// LedgerFigures are the live values read from the ledger when stats are computed.
type LedgerFigures struct {
	TVL        sdkmath.Int
	Shares     sdkmath.Int
	SharePrice sdkmath.LegacyDec
	Pools      []types.PoolInfo
}

// CycleMetrics aggregates the recorded AVM cycles.
type CycleMetrics struct {
	TotalCycles             int     `json:"total_cycles"`
	LiveCycles              int     `json:"live_cycles"`
	TotalMoves              int     `json:"total_moves"`
	AvgAllocationEfficiency float64 `json:"avg_allocation_efficiency"`
}

// WeightedAPYBps is the allocation-weighted average APY of pools, zero when nothing is allocated.
func WeightedAPYBps(pools []types.PoolInfo) float64 {
	weighted := sdkmath.ZeroInt()
	total := sdkmath.ZeroInt()
	for _, p := range pools {
		p = p.Normalize()
		if !p.TotalAllocated.IsPositive() {
			continue
		}
		weighted = weighted.Add(p.TotalAllocated.Mul(sdkmath.NewIntFromUint64(uint64(p.CurrentAPY))))
		total = total.Add(p.TotalAllocated)
	}
	if total.IsZero() {
		return 0
	}
	ratio, err := sdkmath.LegacyNewDecFromInt(weighted).QuoInt(total).Float64()
	if err != nil {
		return 0
	}
	return ratio
}

const statsQuery = `
	SELECT
		COUNT(DISTINCT user_address) FILTER (WHERE event_type = $1),
		COALESCE(SUM(amount) FILTER (WHERE event_type = $1), 0)::TEXT,
		COALESCE(SUM(amount) FILTER (WHERE event_type = $2), 0)::TEXT,
		COALESCE(SUM(amount) FILTER (WHERE event_type = $3), 0)::TEXT
	FROM ledger_events`

// statsQueryArgs binds the event types counted by statsQuery, in placeholder order.
func statsQueryArgs() []any {
	return []any{types.EventTypeDeposit, types.EventTypeWithdrawal, types.EventTypeRewardsHarvested}
}

// CalculateStats aggregates the journal and combines it with the ledger figures.
func CalculateStats(figures LedgerFigures) (*PoolStats, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	stats := &PoolStats{
		TotalTVL:       figures.TVL.String(),
		TotalShares:    figures.Shares.String(),
		SharePrice:     figures.SharePrice.String(),
		WeightedApyBps: WeightedAPYBps(figures.Pools),
		RecordedAt:     time.Now().UTC(),
	}
	err := DB.QueryRow(statsQuery, statsQueryArgs()...).Scan(&stats.TotalUsers, &stats.TotalDeposits, &stats.TotalWithdrawals, &stats.TotalRewards)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate ledger events: %w", err)
	}

	log.Debug().
		Int("totalUsers", stats.TotalUsers).
		Str("totalDeposits", stats.TotalDeposits).
		Str("totalWithdrawals", stats.TotalWithdrawals).
		Msg("Calculated vault stats")
	return stats, nil
}

// SavePoolStats stores a stats snapshot and returns its id.
func SavePoolStats(stats PoolStats) (int64, error) {
	if DB == nil {
		return 0, fmt.Errorf("database not initialized")
	}

	query := `
		INSERT INTO pool_stats (
			total_tvl, total_shares, share_price, total_users,
			total_deposits, total_withdrawals, total_rewards, weighted_apy_bps, recorded_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING stats_id;`

	var id int64
	err := DB.QueryRow(query,
		stats.TotalTVL, stats.TotalShares, stats.SharePrice, stats.TotalUsers,
		stats.TotalDeposits, stats.TotalWithdrawals, stats.TotalRewards, stats.WeightedApyBps, stats.RecordedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to save pool stats: %w", err)
	}

	log.Info().Int64("stats_id", id).Str("tvl", stats.TotalTVL).Msg("Vault stats saved")
	return id, nil
}

// GetLatestPoolStats returns the most recent stats snapshot, or nil when none was saved.
func GetLatestPoolStats() (*PoolStats, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	query := `
		SELECT stats_id, total_tvl::TEXT, total_shares::TEXT, share_price::TEXT, total_users,
			total_deposits::TEXT, total_withdrawals::TEXT, total_rewards::TEXT, weighted_apy_bps, recorded_at
		FROM pool_stats
		ORDER BY recorded_at DESC
		LIMIT 1`

	var s PoolStats
	err := DB.QueryRow(query).Scan(
		&s.StatsID, &s.TotalTVL, &s.TotalShares, &s.SharePrice, &s.TotalUsers,
		&s.TotalDeposits, &s.TotalWithdrawals, &s.TotalRewards, &s.WeightedApyBps, &s.RecordedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest pool stats: %w", err)
	}
	return &s, nil
}

// GetCycleMetrics aggregates every recorded cycle.
func GetCycleMetrics() (*CycleMetrics, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	query := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE mode = 'live'),
			COALESCE(SUM(CASE WHEN jsonb_typeof(action_plan) = 'array' THEN jsonb_array_length(action_plan) ELSE 0 END), 0),
			COALESCE(AVG(allocation_efficiency_percent), 0)
		FROM cycle_snapshots`

	m := &CycleMetrics{}
	err := DB.QueryRow(query).Scan(&m.TotalCycles, &m.LiveCycles, &m.TotalMoves, &m.AvgAllocationEfficiency)
	if err != nil {
		return nil, fmt.Errorf("failed to get cycle metrics: %w", err)
	}

	log.Debug().
		Int("totalCycles", m.TotalCycles).
		Float64("avgEfficiency", m.AvgAllocationEfficiency).
		Msg("Retrieved cycle metrics")
	return m, nil
}
