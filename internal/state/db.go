// ./internal/state/db.go
package state

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/rs/zerolog/log"
)

// DB is a global database connection pool.
var DB *sql.DB

// DBConfig holds database connection parameters.
type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string // "disable", "require", "verify-full", etc.
}

// DSN renders the lib/pq connection string.
func (cfg DBConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)
}

// InitDB initializes the database connection pool.
func InitDB(cfg DBConfig) error {
	var err error
	DB, err = sql.Open("postgres", cfg.DSN())
	if err != nil {
		return fmt.Errorf("failed to open database connection: %w", err)
	}

	DB.SetMaxOpenConns(25)
	DB.SetMaxIdleConns(25)
	DB.SetConnMaxLifetime(5 * time.Minute)

	err = DB.Ping()
	if err != nil {
		DB.Close()
		DB = nil
		return fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().Msg("Successfully connected to the PostgreSQL database!")
	return nil
}

// CloseDB closes the database connection pool.
func CloseDB() {
	if DB != nil {
		log.Info().Msg("Closing database connection...")
		if err := DB.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing database connection")
		}
	}
}

// Tables owned by this package, in drop order.
var schemaTables = []string{
	"cycle_snapshots",
	"scoring_parameters",
	"cycle_counter",
	"pool_stats",
	"ledger_events",
	"pools",
	"user_positions",
	"vault_globals",
}

// EnsureSchema applies the necessary DDL to create tables if they don't exist.
func EnsureSchema() error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	schemaSQL := `
		-- Ledger state. Amounts are unsigned 256-bit integers.
		CREATE TABLE IF NOT EXISTS vault_globals (
			id INTEGER PRIMARY KEY DEFAULT 1,
			owner TEXT NOT NULL,
			total_tvl NUMERIC(78, 0) NOT NULL DEFAULT 0,
			total_shares NUMERIC(78, 0) NOT NULL DEFAULT 0,
			management_fee_bp INTEGER NOT NULL DEFAULT 0,
			paused BOOLEAN NOT NULL DEFAULT FALSE,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			CONSTRAINT vault_globals_single_row CHECK (id = 1)
		);

		CREATE TABLE IF NOT EXISTS user_positions (
			address TEXT PRIMARY KEY,
			shares NUMERIC(78, 0) NOT NULL DEFAULT 0,
			deposited_amount NUMERIC(78, 0) NOT NULL DEFAULT 0,
			last_deposit_time BIGINT NOT NULL DEFAULT 0,
			total_rewards NUMERIC(78, 0) NOT NULL DEFAULT 0,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE IF NOT EXISTS pools (
			name TEXT PRIMARY KEY,
			total_allocated NUMERIC(78, 0) NOT NULL DEFAULT 0,
			current_apy INTEGER NOT NULL DEFAULT 0,
			risk_level SMALLINT NOT NULL DEFAULT 1,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		-- Journal of every successful ledger operation that emits an event.
		CREATE TABLE IF NOT EXISTS ledger_events (
			event_id UUID PRIMARY KEY,
			event_type VARCHAR(32) NOT NULL,
			user_address TEXT,
			pool_name TEXT,
			to_pool_name TEXT,
			amount NUMERIC(78, 0) NOT NULL,
			shares NUMERIC(78, 0),
			block_time BIGINT NOT NULL,
			recorded_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_ledger_events_user ON ledger_events(user_address, block_time DESC);
		CREATE INDEX IF NOT EXISTS idx_ledger_events_time ON ledger_events(block_time DESC);
		CREATE INDEX IF NOT EXISTS idx_ledger_events_type ON ledger_events(event_type);

		CREATE TABLE IF NOT EXISTS pool_stats (
			stats_id SERIAL PRIMARY KEY,
			total_tvl NUMERIC(78, 0) NOT NULL,
			total_shares NUMERIC(78, 0) NOT NULL,
			share_price DECIMAL(40, 18) NOT NULL,
			total_users INTEGER NOT NULL,
			total_deposits NUMERIC(78, 0) NOT NULL,
			total_withdrawals NUMERIC(78, 0) NOT NULL,
			total_rewards NUMERIC(78, 0) NOT NULL,
			weighted_apy_bps DECIMAL(12, 4) NOT NULL,
			recorded_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_pool_stats_recorded ON pool_stats(recorded_at DESC);

		CREATE TABLE IF NOT EXISTS scoring_parameters (
			params_id SERIAL PRIMARY KEY,
			version INTEGER NOT NULL DEFAULT 1,
			config_name VARCHAR(255) NOT NULL DEFAULT 'default',
			is_active BOOLEAN NOT NULL DEFAULT FALSE,
			activated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			max_pools INTEGER NOT NULL,
			min_allocation DECIMAL(10, 8) NOT NULL,
			max_allocation DECIMAL(10, 8) NOT NULL,
			rebalance_threshold_percent DECIMAL(10, 4) NOT NULL,
			max_rebalance_percent_per_cycle DECIMAL(10, 4) NOT NULL,
			apy_coefficient DECIMAL(10, 4) NOT NULL,
			risk_coefficient DECIMAL(10, 4) NOT NULL,
			max_risk_level SMALLINT NOT NULL,
			min_apy_bps INTEGER NOT NULL,
			continuity_bonus DECIMAL(10, 4) NOT NULL,
			CONSTRAINT uq_scoring_parameters_config_version UNIQUE (config_name, version)
		);
		CREATE INDEX IF NOT EXISTS idx_scoring_parameters_config_active_timestamp ON scoring_parameters(config_name, is_active, activated_at DESC);

		CREATE TABLE IF NOT EXISTS cycle_snapshots (
			snapshot_id SERIAL PRIMARY KEY,
			cycle_id UUID NOT NULL,
			cycle_number INTEGER NOT NULL,
			snapshot_timestamp TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			scoring_params_id INTEGER REFERENCES scoring_parameters(params_id),
			mode VARCHAR(16) NOT NULL,

			-- Pre-Action State
			total_tvl NUMERIC(78, 0) NOT NULL,
			total_shares NUMERIC(78, 0) NOT NULL,
			initial_allocations JSONB,

			-- The Plan
			selected_pools TEXT[],
			target_allocations JSONB,
			action_plan JSONB,

			-- The Outcome
			final_allocations JSONB,
			action_receipts JSONB,
			allocation_efficiency_percent DECIMAL(10, 4)
		);
		CREATE INDEX IF NOT EXISTS idx_cycle_snapshots_timestamp ON cycle_snapshots(snapshot_timestamp DESC);
		CREATE INDEX IF NOT EXISTS idx_cycle_snapshots_cycle ON cycle_snapshots(cycle_number DESC);

		-- Cycle counter table for persistent global cycle tracking
		CREATE TABLE IF NOT EXISTS cycle_counter (
			id INTEGER PRIMARY KEY DEFAULT 1,
			current_cycle INTEGER NOT NULL DEFAULT 0,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			CONSTRAINT single_row_check CHECK (id = 1)
		);

		-- Insert initial row if it doesn't exist
		INSERT INTO cycle_counter (id, current_cycle)
		VALUES (1, 0)
		ON CONFLICT (id) DO NOTHING;
	`
	_, err := DB.Exec(schemaSQL)
	if err != nil {
		return fmt.Errorf("failed to execute schema DDL: %w", err)
	}
	log.Info().Msg("Database schema ensured.")
	return nil
}

// DropSchema removes every table created by EnsureSchema.
func DropSchema() error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}
	for _, table := range schemaTables {
		if _, err := DB.Exec(fmt.Sprintf("DROP TABLE IF EXISTS %s CASCADE;", table)); err != nil {
			return fmt.Errorf("failed to drop table %s: %w", table, err)
		}
		log.Warn().Str("table", table).Msg("Dropped table")
	}
	return nil
}

// TestDBConnection tests if the database connection is healthy
func TestDBConnection() error {
	if DB == nil {
		return fmt.Errorf("database connection is nil")
	}

	// Use a short timeout context for health checks
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := DB.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	return nil
}
