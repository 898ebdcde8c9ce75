package state

import (
	"fmt"

	"github.com/elys-network/yieldvault/internal/types"
)

// RefreshStats computes a stats snapshot from the journal and figures and stores it.
func RefreshStats(figures LedgerFigures) (*PoolStats, error) {
	stats, err := CalculateStats(figures)
	if err != nil {
		return nil, err
	}
	id, err := SavePoolStats(*stats)
	if err != nil {
		return nil, err
	}
	stats.StatsID = id
	return stats, nil
}

// DBRecorder persists AVM cycle records through the package-level database handle.
type DBRecorder struct {
	ConfigName string
}

// NewDBRecorder returns a recorder for the named scoring configuration.
func NewDBRecorder(configName string) (*DBRecorder, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}
	return &DBRecorder{ConfigName: configName}, nil
}

func (r *DBRecorder) NextCycleNumber() (int, error) {
	return IncrementCycleNumber()
}

func (r *DBRecorder) ScoringParamsID() (*int64, error) {
	return GetActiveScoringParametersID(r.ConfigName)
}

func (r *DBRecorder) SaveCycleSnapshot(snapshot types.CycleSnapshot) (int64, error) {
	return SaveCycleSnapshot(snapshot)
}

func (r *DBRecorder) RefreshStats(figures LedgerFigures) (*PoolStats, error) {
	return RefreshStats(figures)
}
