// ./internal/state/snapshot_store.go
package state

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq" // PostgreSQL driver for array support
	"github.com/rs/zerolog/log"

	"github.com/elys-network/yieldvault/internal/types"
)

const snapshotColumns = `
	snapshot_id, cycle_id, cycle_number, snapshot_timestamp, scoring_params_id, mode,
	total_tvl, total_shares, initial_allocations,
	selected_pools, target_allocations, action_plan,
	final_allocations, action_receipts, allocation_efficiency_percent`

// SaveCycleSnapshot saves a complete cycle snapshot to the database.
func SaveCycleSnapshot(snapshot types.CycleSnapshot) (int64, error) {
	if DB == nil {
		return 0, fmt.Errorf("database not initialized")
	}

	// Marshal all JSONB fields
	initialAllocationsJSON, err := json.Marshal(snapshot.InitialAllocations)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal initial_allocations: %w", err)
	}

	finalAllocationsJSON, err := json.Marshal(snapshot.FinalAllocations)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal final_allocations: %w", err)
	}

	targetAllocationsJSON, err := json.Marshal(snapshot.TargetAllocations)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal target_allocations: %w", err)
	}

	if snapshot.Plan == nil {
		snapshot.Plan = []types.RebalanceMove{}
	}
	actionPlanJSON, err := json.Marshal(snapshot.Plan)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal action_plan: %w", err)
	}

	actionReceiptsJSON, err := json.Marshal(snapshot.ActionReceipts)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal action_receipts: %w", err)
	}

	query := `
		INSERT INTO cycle_snapshots (
			cycle_id, cycle_number, snapshot_timestamp, scoring_params_id, mode,
			total_tvl, total_shares, initial_allocations,
			selected_pools, target_allocations, action_plan,
			final_allocations, action_receipts, allocation_efficiency_percent
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING snapshot_id;
	`

	var snapshotID int64
	err = DB.QueryRow(
		query,
		snapshot.CycleID, snapshot.CycleNumber, snapshot.Timestamp, snapshot.ScoringParamsID, snapshot.Mode,
		snapshot.TotalTVL, snapshot.TotalShares, initialAllocationsJSON,
		pq.Array(snapshot.SelectedPools), targetAllocationsJSON, actionPlanJSON,
		finalAllocationsJSON, actionReceiptsJSON, snapshot.AllocationEfficiencyPercent,
	).Scan(&snapshotID)

	if err != nil {
		return 0, fmt.Errorf("failed to save cycle snapshot: %w", err)
	}

	log.Info().
		Int64("snapshot_id", snapshotID).
		Int("cycle_number", snapshot.CycleNumber).
		Str("total_tvl", snapshot.TotalTVL).
		Int("moves", len(snapshot.Plan)).
		Msg("Cycle snapshot saved to database")

	return snapshotID, nil
}

// scanSnapshot reads one cycle_snapshots row selected with snapshotColumns.
func scanSnapshot(row interface{ Scan(...any) error }) (types.CycleSnapshot, error) {
	var cycle types.CycleSnapshot
	var scoringParamsID sql.NullInt64
	var efficiency sql.NullFloat64
	var initialJSON, targetJSON, planJSON, finalJSON, receiptsJSON []byte

	err := row.Scan(
		&cycle.SnapshotID, &cycle.CycleID, &cycle.CycleNumber, &cycle.Timestamp, &scoringParamsID, &cycle.Mode,
		&cycle.TotalTVL, &cycle.TotalShares, &initialJSON,
		pq.Array(&cycle.SelectedPools), &targetJSON, &planJSON,
		&finalJSON, &receiptsJSON, &efficiency,
	)
	if err != nil {
		return types.CycleSnapshot{}, err
	}
	if scoringParamsID.Valid {
		id := scoringParamsID.Int64
		cycle.ScoringParamsID = &id
	}
	if efficiency.Valid {
		cycle.AllocationEfficiencyPercent = efficiency.Float64
	}
	if err := unmarshalJSONFields(&cycle, initialJSON, targetJSON, planJSON, finalJSON, receiptsJSON); err != nil {
		return types.CycleSnapshot{}, err
	}
	return cycle, nil
}

// unmarshalJSONFields unmarshals JSON fields for a cycle snapshot
func unmarshalJSONFields(cycle *types.CycleSnapshot, initialJSON, targetJSON, planJSON, finalJSON, receiptsJSON []byte) error {
	fields := []struct {
		name string
		raw  []byte
		dest any
	}{
		{"initial allocations", initialJSON, &cycle.InitialAllocations},
		{"target allocations", targetJSON, &cycle.TargetAllocations},
		{"action plan", planJSON, &cycle.Plan},
		{"final allocations", finalJSON, &cycle.FinalAllocations},
		{"action receipts", receiptsJSON, &cycle.ActionReceipts},
	}
	for _, f := range fields {
		if len(f.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(f.raw, f.dest); err != nil {
			return fmt.Errorf("failed to unmarshal %s: %w", f.name, err)
		}
	}
	return nil
}

// GetRecentCycles retrieves recent cycle snapshots, newest first.
func GetRecentCycles(limit int) ([]types.CycleSnapshot, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	if limit <= 0 || limit > 100 {
		limit = 10 // Default limit
	}

	rows, err := DB.Query(`SELECT `+snapshotColumns+` FROM cycle_snapshots ORDER BY snapshot_timestamp DESC LIMIT $1`, limit)
	if err != nil {
		log.Error().Err(err).Msg("Failed to query recent cycles")
		return nil, fmt.Errorf("failed to query recent cycles: %w", err)
	}
	defer rows.Close()

	var cycles []types.CycleSnapshot
	for rows.Next() {
		cycle, err := scanSnapshot(rows)
		if err != nil {
			log.Error().Err(err).Msg("Failed to scan cycle row")
			continue // Skip this row and continue with others
		}
		cycles = append(cycles, cycle)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}

	log.Debug().Int("count", len(cycles)).Int("limit", limit).Msg("Retrieved recent cycles")
	return cycles, nil
}

// GetCycleByID retrieves a specific cycle by its snapshot ID. A missing row is (nil, nil).
func GetCycleByID(snapshotID int64) (*types.CycleSnapshot, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	cycle, err := scanSnapshot(DB.QueryRow(`SELECT `+snapshotColumns+` FROM cycle_snapshots WHERE snapshot_id = $1`, snapshotID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		log.Error().Err(err).Int64("snapshot_id", snapshotID).Msg("Failed to query cycle by ID")
		return nil, fmt.Errorf("failed to query cycle by ID: %w", err)
	}
	return &cycle, nil
}

// GetLatestCycle returns the most recent snapshot, or nil when no cycle has run.
func GetLatestCycle() (*types.CycleSnapshot, error) {
	cycles, err := GetRecentCycles(1)
	if err != nil {
		return nil, err
	}
	if len(cycles) == 0 {
		return nil, nil
	}
	return &cycles[0], nil
}

// CountCycles returns the number of stored snapshots.
func CountCycles() (int, error) {
	if DB == nil {
		return 0, fmt.Errorf("database not initialized")
	}
	var n int
	if err := DB.QueryRow(`SELECT COUNT(*) FROM cycle_snapshots`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count cycles: %w", err)
	}
	return n, nil
}
