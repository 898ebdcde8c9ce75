// ./internal/state/parameters_store.go
package state

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/elys-network/yieldvault/internal/types"
)

const scoringColumns = `
	max_pools, min_allocation, max_allocation,
	rebalance_threshold_percent, max_rebalance_percent_per_cycle,
	apy_coefficient, risk_coefficient, max_risk_level, min_apy_bps,
	continuity_bonus`

// SaveScoringParameters saves a new version of scoring parameters.
func SaveScoringParameters(params types.ScoringParameters, configName string, version int, makeActive bool) (paramsID int64, err error) {
	if DB == nil {
		return 0, fmt.Errorf("database not initialized")
	}

	tx, err := DB.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p) // Re-panic after rollback
		} else if err != nil {
			tx.Rollback() // Rollback if error occurred
		}
	}()

	if makeActive {
		stmtDeactivate := `UPDATE scoring_parameters SET is_active = FALSE WHERE config_name = $1 AND is_active = TRUE;`
		_, err = tx.Exec(stmtDeactivate, configName)
		if err != nil {
			return 0, fmt.Errorf("failed to deactivate existing active parameters for %s: %w", configName, err)
		}
	}

	stmt := `
        INSERT INTO scoring_parameters (
            version, config_name, is_active, activated_at, created_at,` + scoringColumns + `
        ) VALUES (
            $1, $2, $3, $4, $5,
            $6, $7, $8,
            $9, $10,
            $11, $12, $13, $14,
            $15
        ) RETURNING params_id;`

	currentTime := time.Now()
	err = tx.QueryRow(
		stmt,
		version, configName, makeActive, currentTime, currentTime,
		params.MaxPools, params.MinAllocation, params.MaxAllocation,
		params.RebalanceThresholdPercent, params.MaxRebalancePercentPerCycle,
		params.ApyCoefficient, params.RiskCoefficient, int16(params.MaxRiskLevel), int64(params.MinApyBps),
		params.ContinuityBonus,
	).Scan(&paramsID)
	if err != nil {
		return 0, fmt.Errorf("failed to insert scoring parameters: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.Info().
		Int("version", version).
		Str("config", configName).
		Int64("params_id", paramsID).
		Bool("active", makeActive).
		Msg("Saved scoring parameters")
	return paramsID, nil
}

func scanScoringParameters(row *sql.Row) (*types.ScoringParameters, error) {
	p := &types.ScoringParameters{}
	var maxRisk int16
	var minApy int64
	err := row.Scan(
		&p.MaxPools, &p.MinAllocation, &p.MaxAllocation,
		&p.RebalanceThresholdPercent, &p.MaxRebalancePercentPerCycle,
		&p.ApyCoefficient, &p.RiskCoefficient, &maxRisk, &minApy,
		&p.ContinuityBonus,
	)
	if err != nil {
		return nil, err
	}
	p.MaxRiskLevel = uint8(maxRisk)
	p.MinApyBps = uint32(minApy)
	return p, nil
}

// LoadActiveScoringParameters loads the currently active scoring parameters.
func LoadActiveScoringParameters(configName string) (*types.ScoringParameters, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	query := `
        SELECT` + scoringColumns + `
        FROM scoring_parameters
        WHERE config_name = $1 AND is_active = TRUE
        ORDER BY activated_at DESC
        LIMIT 1;`

	p, err := scanScoringParameters(DB.QueryRow(query, configName))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("no active scoring parameters found for config '%s'", configName)
		}
		return nil, fmt.Errorf("failed to scan active scoring parameters for config '%s': %w", configName, err)
	}
	log.Info().Str("config", configName).Msg("Loaded active scoring parameters")
	return p, nil
}

// GetActiveScoringParametersID returns the params_id of the currently active scoring parameters
func GetActiveScoringParametersID(configName string) (*int64, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	query := `
        SELECT params_id
        FROM scoring_parameters
        WHERE config_name = $1 AND is_active = TRUE
        ORDER BY activated_at DESC
        LIMIT 1;`

	var paramsID int64
	err := DB.QueryRow(query, configName).Scan(&paramsID)
	if err != nil {
		if err == sql.ErrNoRows {
			// No active parameters found - this is valid, return nil
			log.Debug().Str("config", configName).Msg("No active scoring parameters found")
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get active scoring parameters ID for config '%s': %w", configName, err)
	}

	log.Debug().
		Str("config", configName).
		Int64("params_id", paramsID).
		Msg("Retrieved active scoring parameters ID")

	return &paramsID, nil
}

// EnsureActiveScoringParameters returns the active parameters for configName, seeding
// defaults as version 1 when none exist yet.
func EnsureActiveScoringParameters(configName string, defaults types.ScoringParameters) (types.ScoringParameters, *int64, error) {
	id, err := GetActiveScoringParametersID(configName)
	if err != nil {
		return types.ScoringParameters{}, nil, err
	}
	if id == nil {
		newID, err := SaveScoringParameters(defaults, configName, 1, true)
		if err != nil {
			return types.ScoringParameters{}, nil, err
		}
		return defaults, &newID, nil
	}
	p, err := LoadActiveScoringParameters(configName)
	if err != nil {
		return types.ScoringParameters{}, nil, err
	}
	return *p, id, nil
}
