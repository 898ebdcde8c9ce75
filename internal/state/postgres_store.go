package state

import (
	"database/sql"
	"fmt"

	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/yieldvault/internal/ledger"
	"github.com/elys-network/yieldvault/internal/types"
)

// PostgresStore keeps the ledger state in the vault_globals, user_positions and pools tables.
// Each Commit is one SQL transaction.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore returns a store on db. EnsureSchema must have run.
func NewPostgresStore(db *sql.DB) (*PostgresStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database not initialized")
	}
	return &PostgresStore{db: db}, nil
}

func parseNumeric(column, raw string) (sdkmath.Int, error) {
	v, ok := sdkmath.NewIntFromString(raw)
	if !ok {
		return sdkmath.Int{}, fmt.Errorf("invalid %s value %q", column, raw)
	}
	return v, nil
}

func (s *PostgresStore) GetGlobals() (types.Globals, bool, error) {
	query := `SELECT owner, total_tvl, total_shares, management_fee_bp, paused FROM vault_globals WHERE id = 1;`

	var g types.Globals
	var tvl, shares string
	err := s.db.QueryRow(query).Scan(&g.Owner, &tvl, &shares, &g.ManagementFee, &g.Paused)
	if err == sql.ErrNoRows {
		return types.Globals{}, false, nil
	}
	if err != nil {
		return types.Globals{}, false, fmt.Errorf("failed to query vault globals: %w", err)
	}
	if g.TotalTVL, err = parseNumeric("total_tvl", tvl); err != nil {
		return types.Globals{}, false, err
	}
	if g.TotalShares, err = parseNumeric("total_shares", shares); err != nil {
		return types.Globals{}, false, err
	}
	return g, true, nil
}

func (s *PostgresStore) GetPosition(addr string) (types.UserPosition, bool, error) {
	query := `SELECT shares, deposited_amount, last_deposit_time, total_rewards FROM user_positions WHERE address = $1;`

	var p types.UserPosition
	var shares, deposited, rewards string
	var lastDeposit int64
	err := s.db.QueryRow(query, addr).Scan(&shares, &deposited, &lastDeposit, &rewards)
	if err == sql.ErrNoRows {
		return types.UserPosition{}, false, nil
	}
	if err != nil {
		return types.UserPosition{}, false, fmt.Errorf("failed to query position for %s: %w", addr, err)
	}
	if p.Shares, err = parseNumeric("shares", shares); err != nil {
		return types.UserPosition{}, false, err
	}
	if p.DepositedAmount, err = parseNumeric("deposited_amount", deposited); err != nil {
		return types.UserPosition{}, false, err
	}
	if p.TotalRewards, err = parseNumeric("total_rewards", rewards); err != nil {
		return types.UserPosition{}, false, err
	}
	p.LastDepositTime = uint64(lastDeposit)
	return p, true, nil
}

func scanPool(row interface{ Scan(...any) error }) (types.PoolInfo, error) {
	var p types.PoolInfo
	var allocated string
	var risk int16
	if err := row.Scan(&p.Name, &allocated, &p.CurrentAPY, &risk); err != nil {
		return types.PoolInfo{}, err
	}
	v, err := parseNumeric("total_allocated", allocated)
	if err != nil {
		return types.PoolInfo{}, err
	}
	p.TotalAllocated = v
	p.RiskLevel = uint8(risk)
	return p, nil
}

func (s *PostgresStore) GetPool(name string) (types.PoolInfo, bool, error) {
	query := `SELECT name, total_allocated, current_apy, risk_level FROM pools WHERE name = $1;`

	p, err := scanPool(s.db.QueryRow(query, name))
	if err == sql.ErrNoRows {
		return types.PoolInfo{}, false, nil
	}
	if err != nil {
		return types.PoolInfo{}, false, fmt.Errorf("failed to query pool %s: %w", name, err)
	}
	return p, true, nil
}

func (s *PostgresStore) ListPools() ([]types.PoolInfo, error) {
	rows, err := s.db.Query(`SELECT name, total_allocated, current_apy, risk_level FROM pools ORDER BY name;`)
	if err != nil {
		return nil, fmt.Errorf("failed to query pools: %w", err)
	}
	defer rows.Close()

	var pools []types.PoolInfo
	for rows.Next() {
		p, err := scanPool(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pool row: %w", err)
		}
		pools = append(pools, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during pool iteration: %w", err)
	}
	return pools, nil
}

// Commit writes the changeset in a single transaction.
func (s *PostgresStore) Commit(cs *ledger.Changeset) (err error) {
	if cs.IsEmpty() {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		} else if err != nil {
			tx.Rollback()
		}
	}()

	if g := cs.Globals; g != nil {
		_, err = tx.Exec(`
			INSERT INTO vault_globals (id, owner, total_tvl, total_shares, management_fee_bp, paused, updated_at)
			VALUES (1, $1, $2, $3, $4, $5, CURRENT_TIMESTAMP)
			ON CONFLICT (id) DO UPDATE SET
				owner = EXCLUDED.owner,
				total_tvl = EXCLUDED.total_tvl,
				total_shares = EXCLUDED.total_shares,
				management_fee_bp = EXCLUDED.management_fee_bp,
				paused = EXCLUDED.paused,
				updated_at = CURRENT_TIMESTAMP;`,
			g.Owner, g.TotalTVL.String(), g.TotalShares.String(), int64(g.ManagementFee), g.Paused)
		if err != nil {
			return fmt.Errorf("failed to upsert vault globals: %w", err)
		}
	}

	for addr, p := range cs.Positions {
		_, err = tx.Exec(`
			INSERT INTO user_positions (address, shares, deposited_amount, last_deposit_time, total_rewards, updated_at)
			VALUES ($1, $2, $3, $4, $5, CURRENT_TIMESTAMP)
			ON CONFLICT (address) DO UPDATE SET
				shares = EXCLUDED.shares,
				deposited_amount = EXCLUDED.deposited_amount,
				last_deposit_time = EXCLUDED.last_deposit_time,
				total_rewards = EXCLUDED.total_rewards,
				updated_at = CURRENT_TIMESTAMP;`,
			addr, p.Shares.String(), p.DepositedAmount.String(), int64(p.LastDepositTime), p.TotalRewards.String())
		if err != nil {
			return fmt.Errorf("failed to upsert position %s: %w", addr, err)
		}
	}

	for name, p := range cs.Pools {
		_, err = tx.Exec(`
			INSERT INTO pools (name, total_allocated, current_apy, risk_level, updated_at)
			VALUES ($1, $2, $3, $4, CURRENT_TIMESTAMP)
			ON CONFLICT (name) DO UPDATE SET
				total_allocated = EXCLUDED.total_allocated,
				current_apy = EXCLUDED.current_apy,
				risk_level = EXCLUDED.risk_level,
				updated_at = CURRENT_TIMESTAMP;`,
			name, p.TotalAllocated.String(), int64(p.CurrentAPY), int16(p.RiskLevel))
		if err != nil {
			return fmt.Errorf("failed to upsert pool %s: %w", name, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

var _ ledger.Store = (*PostgresStore)(nil)
