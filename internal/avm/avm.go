package avm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/elys-network/yieldvault/internal/analyzer"
	"github.com/elys-network/yieldvault/internal/logger"
	"github.com/elys-network/yieldvault/internal/metrics"
	"github.com/elys-network/yieldvault/internal/planner"
	"github.com/elys-network/yieldvault/internal/state"
	"github.com/elys-network/yieldvault/internal/types"
	"github.com/elys-network/yieldvault/internal/utils"
	"github.com/elys-network/yieldvault/internal/vault"
)

const (
	DEFAULT_SCORING_CONFIG_NAME    = "default_avm_strategy"
	DEFAULT_SCORING_CONFIG_VERSION = 1
)

// Mode selects what a cycle does with its plan.
type Mode string

const (
	ModeLive   Mode = "live"    // plan and execute through the ledger
	ModeDryRun Mode = "dry-run" // plan and record, never execute
	ModeOff    Mode = "off"     // do not run cycles
)

// ParseMode validates a mode string.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeLive, ModeDryRun, ModeOff:
		return Mode(s), nil
	case "":
		return ModeDryRun, nil
	}
	return "", fmt.Errorf("unknown AVM mode %q (want live, dry-run or off)", s)
}

// Recorder persists cycle records. All methods may fail independently; a failure is logged and
// the cycle carries on.
type Recorder interface {
	NextCycleNumber() (int, error)
	ScoringParamsID() (*int64, error)
	SaveCycleSnapshot(snapshot types.CycleSnapshot) (int64, error)
	RefreshStats(figures state.LedgerFigures) (*state.PoolStats, error)
}

// AVM represents the Automated Vault Manager with all its dependencies.
type AVM struct {
	logger        zerolog.Logger
	vault         vault.VaultManager
	scoringParams *types.ScoringParameters
	recorder      Recorder
	metrics       *metrics.VaultMetrics
	mode          Mode

	configName    string
	configVersion int

	mu         sync.Mutex
	cycleCount int
}

// Config holds the configuration for creating a new AVM instance.
type Config struct {
	VaultManager  vault.VaultManager
	ScoringParams *types.ScoringParameters
	ConfigName    string
	ConfigVersion int
	Mode          Mode

	Recorder Recorder              // optional, cycles are only logged without it
	Metrics  *metrics.VaultMetrics // optional
}

// NewAVM creates a new AVM instance.
func NewAVM(cfg Config) (*AVM, error) {
	if err := validateAVMConfig(cfg); err != nil {
		return nil, fmt.Errorf("AVM configuration validation failed: %w", err)
	}

	a := &AVM{
		logger:        logger.GetForComponent("avm_core"),
		vault:         cfg.VaultManager,
		scoringParams: cfg.ScoringParams,
		recorder:      cfg.Recorder,
		metrics:       cfg.Metrics,
		mode:          cfg.Mode,
		configName:    cfg.ConfigName,
		configVersion: cfg.ConfigVersion,
	}

	a.logger.Info().
		Str("configName", a.configName).
		Int("configVersion", a.configVersion).
		Str("mode", string(a.mode)).
		Bool("recording", a.recorder != nil).
		Msg("AVM instance created")

	return a, nil
}

func validateAVMConfig(cfg Config) error {
	if cfg.VaultManager == nil {
		return errors.New("vault manager cannot be nil")
	}
	if cfg.ScoringParams == nil {
		return errors.New("scoring parameters cannot be nil")
	}
	if err := analyzer.ValidateScoringParameters(*cfg.ScoringParams); err != nil {
		return fmt.Errorf("scoring parameters: %w", err)
	}
	if cfg.ConfigName == "" {
		return errors.New("config name cannot be empty")
	}
	if cfg.ConfigVersion <= 0 {
		return errors.New("config version must be positive")
	}
	if _, err := ParseMode(string(cfg.Mode)); err != nil || cfg.Mode == "" {
		return fmt.Errorf("invalid mode %q", cfg.Mode)
	}
	return nil
}

// Mode returns the configured mode.
func (a *AVM) Mode() Mode { return a.mode }

// RunLoop runs a cycle immediately and then every interval until ctx is cancelled.
func (a *AVM) RunLoop(ctx context.Context, interval time.Duration) {
	if a.mode == ModeOff {
		a.logger.Info().Msg("AVM mode is off, loop not started")
		return
	}
	if interval <= 0 {
		a.logger.Error().Dur("interval", interval).Msg("AVM loop interval must be positive, loop not started")
		return
	}

	a.logger.Info().
		Dur("interval", interval).
		Msg("Starting AVM main loop")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	a.runOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			a.logger.Info().Msg("AVM loop stopped due to context cancellation")
			return
		case <-ticker.C:
			a.runOnce(ctx)
		}
	}
}

func (a *AVM) runOnce(ctx context.Context) {
	a.mu.Lock()
	a.cycleCount++
	count := a.cycleCount
	a.mu.Unlock()

	a.logger.Info().Int("cycle", count).Msg("Initiating AVM cycle")
	if _, err := a.RunCycle(ctx); err != nil {
		a.logger.Error().Err(err).Int("cycle", count).Msg("AVM cycle failed")
		return
	}
	a.logger.Info().Int("cycle", count).Msg("AVM cycle completed")
}

// RunCycle executes one complete cycle and returns its snapshot. A returned error means the
// cycle was aborted before a snapshot could be completed, or that execution failed part-way;
// in the latter case the snapshot is still returned and recorded.
func (a *AVM) RunCycle(ctx context.Context) (snapshot *types.CycleSnapshot, err error) {
	cycleStartTime := time.Now()
	cycleID := uuid.New().String()
	cycleLogger := a.logger.With().Str("cycle_id", cycleID).Logger()

	moves := 0
	defer func() {
		a.metrics.ObserveCycle(string(a.mode), moves, time.Since(cycleStartTime).Seconds(), err)
	}()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cycleLogger.Info().Msg("--- Starting AVM Cycle ---")

	cycle := types.CycleSnapshot{
		CycleID:           cycleID,
		CycleNumber:       a.getCycleNumber(),
		Timestamp:         cycleStartTime.UTC(),
		ScoringParamsID:   a.getScoringParamsID(),
		Mode:              string(a.mode),
		SelectedPools:     []string{},
		TargetAllocations: map[string]float64{},
		Plan:              []types.RebalanceMove{},
		ActionReceipts:    []types.ActionReceipt{},
	}

	// --- Step 1: Vault State Assessment ---
	cycleLogger.Info().Msg("Step 1: Assessing current vault state...")
	globals, err := a.vault.GetGlobals()
	if err != nil {
		cycleLogger.Error().Err(err).Msg("Cycle aborted: Failed to read vault globals.")
		return nil, fmt.Errorf("failed to read vault globals: %w", err)
	}
	globals = globals.Normalize()
	pools, err := a.vault.ListPools()
	if err != nil {
		cycleLogger.Error().Err(err).Msg("Cycle aborted: Failed to list pools.")
		return nil, fmt.Errorf("failed to list pools: %w", err)
	}
	cycle.TotalTVL = globals.TotalTVL.String()
	cycle.TotalShares = globals.TotalShares.String()
	cycleLogger.Info().
		Int("pools", len(pools)).
		Str("tvl", cycle.TotalTVL).
		Str("shares", cycle.TotalShares).
		Bool("paused", globals.Paused).
		Msg("Step 1: Vault state assessed.")

	// --- Step 2: Analysis & Scoring ---
	cycleLogger.Info().Msg("Step 2: Analyzing and scoring pools...")
	scored := analyzer.ScorePools(pools, *a.scoringParams)
	scoreMap := analyzer.ScoresByPool(scored)
	cycle.InitialAllocations = allocationSnapshots(pools, scoreMap)

	if len(scored) == 0 {
		cycleLogger.Info().Msg("No pools to score. No rebalancing needed.")
		return a.finish(cycle, pools, scoreMap, globals, cycleStartTime, cycleLogger), nil
	}

	selected, err := analyzer.SelectTopPools(scored, *a.scoringParams)
	if errors.Is(err, analyzer.ErrNoValidPools) {
		cycleLogger.Info().Msg("No pools selected for investment. No rebalancing needed.")
		return a.finish(cycle, pools, scoreMap, globals, cycleStartTime, cycleLogger), nil
	}
	if err != nil {
		cycleLogger.Error().Err(err).Msg("Cycle aborted: Failed to select top pools.")
		return nil, fmt.Errorf("failed to select pools: %w", err)
	}
	cycle.SelectedPools = selected

	targets, err := analyzer.DetermineTargetAllocations(selected, scoreMap, *a.scoringParams)
	if err != nil {
		cycleLogger.Error().Err(err).Msg("Cycle aborted: Failed to determine target allocations.")
		return nil, fmt.Errorf("failed to determine target allocations: %w", err)
	}
	cycle.TargetAllocations = targets
	cycleLogger.Info().Int("selectedPools", len(selected)).Msg("Step 2: Pool analysis complete.")

	// --- Step 3: Action Planning ---
	cycleLogger.Info().Msg("Step 3: Generating action plan...")
	plan, err := planner.GenerateActionPlan(pools, targets, *a.scoringParams)
	if err != nil {
		cycleLogger.Error().Err(err).Msg("Cycle aborted: Failed to generate action plan.")
		return nil, fmt.Errorf("failed to generate action plan: %w", err)
	}
	cycle.Plan = plan
	moves = len(plan)

	if len(plan) == 0 {
		cycleLogger.Info().Msg("No rebalancing actions required.")
		return a.finish(cycle, pools, scoreMap, globals, cycleStartTime, cycleLogger), nil
	}

	planJSON, _ := json.MarshalIndent(plan, "", "  ")
	cycleLogger.Info().Int("moves", len(plan)).Str("actionPlan", string(planJSON)).Msg("--- Detailed Action Plan ---")

	// --- Step 4: Action Execution ---
	var execErr error
	switch {
	case a.mode != ModeLive:
		cycleLogger.Info().Str("mode", string(a.mode)).Msg("Step 4: Skipping execution outside live mode.")
	case globals.Paused:
		// RebalancePools ignores the pause flag, the AVM does not.
		cycleLogger.Warn().Msg("Step 4: Vault is paused, skipping execution.")
	default:
		cycleLogger.Info().Msg("Step 4: Executing action plan...")
		receipts, err := a.vault.ExecuteActionPlan(plan)
		cycle.ActionReceipts = append(cycle.ActionReceipts, receipts...)
		if err != nil {
			cycleLogger.Error().Err(err).Msg("Action plan execution failed.")
			execErr = err
		}
	}

	// --- Step 5: Final State ---
	finalPools, err := a.vault.ListPools()
	if err != nil {
		cycleLogger.Error().Err(err).Msg("Failed to list pools after execution, using initial state")
		finalPools = pools
	}
	snap := a.finish(cycle, finalPools, scoreMap, globals, cycleStartTime, cycleLogger)
	if execErr != nil {
		return snap, fmt.Errorf("cycle %s: %w", cycleID, execErr)
	}
	return snap, nil
}

// finish completes, records and reports a cycle.
func (a *AVM) finish(
	cycle types.CycleSnapshot,
	finalPools []types.PoolInfo,
	scores map[string]types.PoolScoreResult,
	globals types.Globals,
	cycleStartTime time.Time,
	cycleLogger zerolog.Logger,
) *types.CycleSnapshot {
	cycle.FinalAllocations = allocationSnapshots(finalPools, scores)
	cycle.AllocationEfficiencyPercent = planner.AllocationEfficiency(finalPools, cycle.TargetAllocations)

	a.saveCycleSnapshot(cycle, cycleLogger)

	price := sdkmath.LegacyOneDec()
	if p, err := a.vault.GetSharePrice(); err == nil {
		price = p
	} else {
		cycleLogger.Warn().Err(err).Msg("Failed to read share price")
	}
	priceF, err := price.Float64()
	if err != nil {
		priceF = 0
	}
	a.metrics.UpdateVault(globals, priceF, finalPools)
	a.refreshStats(state.LedgerFigures{
		TVL:        globals.TotalTVL,
		Shares:     globals.TotalShares,
		SharePrice: price,
		Pools:      finalPools,
	}, cycleLogger)

	cycleLogger.Info().
		Int("finalPools", len(finalPools)).
		Int("receipts", len(cycle.ActionReceipts)).
		Float64("allocationEfficiency", cycle.AllocationEfficiencyPercent).
		Msg("End of Cycle State")
	cycleLogger.Info().Str("cycleDuration", time.Since(cycleStartTime).String()).Msg("AVM Cycle Duration")
	cycleLogger.Info().Msg("--- AVM Cycle Completed ---")
	return &cycle
}

func allocationSnapshots(pools []types.PoolInfo, scores map[string]types.PoolScoreResult) []types.AllocationSnapshot {
	total := planner.TotalAllocated(pools)
	out := make([]types.AllocationSnapshot, 0, len(pools))
	for _, p := range pools {
		p = p.Normalize()
		out = append(out, types.AllocationSnapshot{
			Pool:              p.Name,
			TotalAllocated:    p.TotalAllocated.String(),
			AllocationPercent: utils.ShareOf(p.TotalAllocated, total) * 100,
			CurrentAPY:        p.CurrentAPY,
			RiskLevel:         p.RiskLevel,
			Score:             scores[p.Name].Score,
		})
	}
	return out
}

// getCycleNumber returns the persistent cycle number, falling back to the in-process count.
func (a *AVM) getCycleNumber() int {
	a.mu.Lock()
	fallback := a.cycleCount
	a.mu.Unlock()

	if a.recorder == nil {
		return fallback
	}
	n, err := a.recorder.NextCycleNumber()
	if err != nil {
		a.logger.Error().Err(err).Msg("Failed to increment cycle number, using fallback")
		return fallback
	}
	return n
}

func (a *AVM) getScoringParamsID() *int64 {
	if a.recorder == nil {
		return nil
	}
	id, err := a.recorder.ScoringParamsID()
	if err != nil {
		a.logger.Error().Err(err).Str("configName", a.configName).Msg("Failed to get active scoring parameters ID")
		return nil
	}
	return id
}

func (a *AVM) saveCycleSnapshot(snapshot types.CycleSnapshot, cycleLogger zerolog.Logger) {
	if a.recorder == nil {
		return
	}
	id, err := a.recorder.SaveCycleSnapshot(snapshot)
	if err != nil {
		cycleLogger.Error().Err(err).Msg("Failed to save cycle snapshot to database")
		return
	}
	cycleLogger.Info().Int64("snapshot_id", id).Msg("Cycle snapshot saved successfully")
}

func (a *AVM) refreshStats(figures state.LedgerFigures, cycleLogger zerolog.Logger) {
	if a.recorder == nil {
		return
	}
	if _, err := a.recorder.RefreshStats(figures); err != nil {
		cycleLogger.Error().Err(err).Msg("Failed to refresh vault stats")
	}
}
