package ledger

import (
	"fmt"
	"sort"
	"sync"

	errorsmod "cosmossdk.io/errors"
	sdkmath "cosmossdk.io/math"
	sdktypes "github.com/cosmos/cosmos-sdk/types"
	"github.com/rs/zerolog"

	"github.com/elys-network/yieldvault/internal/logger"
	"github.com/elys-network/yieldvault/internal/types"
)

// Operation names reported to the Observer.
const (
	OpDeposit        = "deposit"
	OpWithdraw       = "withdraw"
	OpAddPool        = "add_pool"
	OpUpdatePoolAPY  = "update_pool_apy"
	OpAllocateToPool = "allocate_to_pool"
	OpRebalancePools = "rebalance_pools"
	OpHarvestRewards = "harvest_rewards"
	OpPause          = "pause"
	OpUnpause        = "unpause"
)

// Ledger is the vault accounting engine. It is the only writer of the vault state: every
// operation runs under one mutex, validates all of its preconditions against a consistent read,
// and then commits a single Changeset. A rejected operation writes nothing and emits nothing.
type Ledger struct {
	mu       sync.Mutex
	store    Store
	sink     EventSink
	observer Observer
	logger   zerolog.Logger
}

func newLedger(store Store, sink EventSink) (*Ledger, error) {
	if store == nil {
		return nil, errNilStore
	}
	if sink == nil {
		sink = NoopSink{}
	}
	return &Ledger{
		store:  store,
		sink:   sink,
		logger: logger.GetForComponent("vault_ledger"),
	}, nil
}

// Init creates a new vault in store owned by the caller of env. It fails with
// ErrAlreadyInitialized when the store already has an owner.
func Init(store Store, sink EventSink, env Env, managementFeeBp uint32) (*Ledger, error) {
	l, err := newLedger(store, sink)
	if err != nil {
		return nil, err
	}
	caller := env.Caller()
	if caller.Empty() {
		return nil, errEmptyCaller
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	existing, err := GlobalsOrDefault(store)
	if err != nil {
		return nil, err
	}
	if existing.Owner != "" {
		return nil, ErrAlreadyInitialized
	}

	g := types.NewGlobals()
	g.Owner = caller.String()
	g.ManagementFee = managementFeeBp
	g.Paused = false

	cs := NewChangeset()
	cs.SetGlobals(g)
	if err := l.commit(cs); err != nil {
		return nil, err
	}

	l.logger.Info().
		Str("owner", g.Owner).
		Uint32("managementFeeBp", managementFeeBp).
		Msg("Vault ledger initialised")
	return l, nil
}

// Open attaches to a vault previously created with Init.
func Open(store Store, sink EventSink) (*Ledger, error) {
	l, err := newLedger(store, sink)
	if err != nil {
		return nil, err
	}
	g, err := GlobalsOrDefault(store)
	if err != nil {
		return nil, err
	}
	if g.Owner == "" {
		return nil, ErrNotInitialized
	}
	l.logger.Info().
		Str("owner", g.Owner).
		Str("tvl", g.TotalTVL.String()).
		Str("totalShares", g.TotalShares.String()).
		Msg("Vault ledger opened")
	return l, nil
}

// SetLogger replaces the component logger.
func (l *Ledger) SetLogger(lg zerolog.Logger) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.logger = lg
}

// SetObserver wires an observer told about every mutating operation.
func (l *Ledger) SetObserver(o Observer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.observer = o
}

// Deposit credits amount to the caller and mints shares at the current price.
// It returns the number of shares minted.
func (l *Ledger) Deposit(env Env, amount sdkmath.Int) (minted sdkmath.Int, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	defer l.observe(OpDeposit, &err)

	g, err := GlobalsOrDefault(l.store)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	if err := requireNotPaused(g); err != nil {
		return sdkmath.ZeroInt(), err
	}
	if err := requirePositive(amount, "deposit amount"); err != nil {
		return sdkmath.ZeroInt(), err
	}

	caller := env.Caller()
	if caller.Empty() {
		return sdkmath.ZeroInt(), errEmptyCaller
	}
	key := caller.String()
	position, err := PositionOrDefault(l.store, key)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}

	shares, err := calculateShares(amount, g.TotalShares, g.TotalTVL)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	if position.Shares, err = safeAdd(position.Shares, shares); err != nil {
		return sdkmath.ZeroInt(), err
	}
	if position.DepositedAmount, err = safeAdd(position.DepositedAmount, amount); err != nil {
		return sdkmath.ZeroInt(), err
	}
	if g.TotalTVL, err = safeAdd(g.TotalTVL, amount); err != nil {
		return sdkmath.ZeroInt(), err
	}
	if g.TotalShares, err = safeAdd(g.TotalShares, shares); err != nil {
		return sdkmath.ZeroInt(), err
	}
	now := env.BlockTime()
	position.LastDepositTime = now

	cs := NewChangeset()
	cs.SetPosition(key, position)
	cs.SetGlobals(g)
	if err := l.commit(cs); err != nil {
		return sdkmath.ZeroInt(), err
	}

	l.sink.Emit(types.DepositEvent{User: caller, Amount: amount, Shares: shares, Timestamp: now})
	l.logger.Debug().
		Str("user", key).
		Str("amount", amount.String()).
		Str("shares", shares.String()).
		Str("tvl", g.TotalTVL.String()).
		Msg("Deposit recorded")
	return shares, nil
}

// Withdraw burns shares from the caller's position and returns the amount they were worth.
func (l *Ledger) Withdraw(env Env, shares sdkmath.Int) (amount sdkmath.Int, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	defer l.observe(OpWithdraw, &err)

	g, err := GlobalsOrDefault(l.store)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	if err := requireNotPaused(g); err != nil {
		return sdkmath.ZeroInt(), err
	}
	if err := requirePositive(shares, "shares to withdraw"); err != nil {
		return sdkmath.ZeroInt(), err
	}

	caller := env.Caller()
	if caller.Empty() {
		return sdkmath.ZeroInt(), errEmptyCaller
	}
	key := caller.String()
	position, err := PositionOrDefault(l.store, key)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	if position.Shares.LT(shares) {
		return sdkmath.ZeroInt(), errorsmod.Wrapf(ErrInsufficientShares, "holds %s, requested %s", position.Shares, shares)
	}

	amount, err = calculateWithdrawalAmount(shares, g.TotalShares, g.TotalTVL)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	// Unreachable while the sum of positions equals total shares.
	if g.TotalTVL.LT(amount) {
		return sdkmath.ZeroInt(), errorsmod.Wrapf(ErrInsufficientBalance, "tvl %s below withdrawal %s", g.TotalTVL, amount)
	}

	position.Shares = position.Shares.Sub(shares)
	if position.Shares.IsZero() {
		position.DepositedAmount = sdkmath.ZeroInt()
		position.TotalRewards = sdkmath.ZeroInt()
	}
	g.TotalTVL = g.TotalTVL.Sub(amount)
	g.TotalShares = g.TotalShares.Sub(shares)

	cs := NewChangeset()
	cs.SetPosition(key, position)
	cs.SetGlobals(g)
	if err := l.commit(cs); err != nil {
		return sdkmath.ZeroInt(), err
	}

	l.sink.Emit(types.WithdrawalEvent{User: caller, Amount: amount, Shares: shares, Timestamp: env.BlockTime()})
	l.logger.Debug().
		Str("user", key).
		Str("amount", amount.String()).
		Str("shares", shares.String()).
		Str("tvl", g.TotalTVL.String()).
		Msg("Withdrawal recorded")
	return amount, nil
}

// AddPool creates the named pool with nothing allocated. An existing pool of the same name is
// overwritten and its allocation discarded.
func (l *Ledger) AddPool(env Env, name string, initialAPY uint32, riskLevel uint8) (err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	defer l.observe(OpAddPool, &err)

	g, err := GlobalsOrDefault(l.store)
	if err != nil {
		return err
	}
	if err := requireOwner(g, env.Caller()); err != nil {
		return err
	}

	existing, found, err := l.store.GetPool(name)
	if err != nil {
		return fmt.Errorf("failed to read pool %q: %w", name, err)
	}
	if found && !existing.Normalize().TotalAllocated.IsZero() {
		l.logger.Warn().
			Str("pool", name).
			Str("discardedAllocation", existing.TotalAllocated.String()).
			Msg("Re-adding existing pool resets its allocation")
	}

	cs := NewChangeset()
	cs.SetPool(types.NewPoolInfo(name, initialAPY, riskLevel))
	if err := l.commit(cs); err != nil {
		return err
	}
	l.logger.Info().Str("pool", name).Uint32("apyBps", initialAPY).Uint8("riskLevel", riskLevel).Msg("Pool added")
	return nil
}

// UpdatePoolAPY sets the informational APY of an existing pool.
func (l *Ledger) UpdatePoolAPY(env Env, name string, newAPY uint32) (err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	defer l.observe(OpUpdatePoolAPY, &err)

	g, err := GlobalsOrDefault(l.store)
	if err != nil {
		return err
	}
	if err := requireOwner(g, env.Caller()); err != nil {
		return err
	}
	pool, err := l.requirePool(name)
	if err != nil {
		return err
	}

	pool.CurrentAPY = newAPY
	cs := NewChangeset()
	cs.SetPool(pool)
	return l.commit(cs)
}

// AllocateToPool adds amount to the pool's allocation. The only bound is the current TVL;
// allocations across pools are not summed, allocation is bookkeeping and not a reservation.
func (l *Ledger) AllocateToPool(env Env, name string, amount sdkmath.Int) (err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	defer l.observe(OpAllocateToPool, &err)

	g, err := GlobalsOrDefault(l.store)
	if err != nil {
		return err
	}
	if err := requireOwner(g, env.Caller()); err != nil {
		return err
	}
	if err := requirePositive(amount, "allocation amount"); err != nil {
		return err
	}
	pool, err := l.requirePool(name)
	if err != nil {
		return err
	}
	if g.TotalTVL.LT(amount) {
		return errorsmod.Wrapf(ErrInsufficientTvl, "tvl %s below allocation %s", g.TotalTVL, amount)
	}

	if pool.TotalAllocated, err = safeAdd(pool.TotalAllocated, amount); err != nil {
		return err
	}
	cs := NewChangeset()
	cs.SetPool(pool)
	if err := l.commit(cs); err != nil {
		return err
	}
	l.logger.Info().Str("pool", name).Str("amount", amount.String()).Str("allocated", pool.TotalAllocated.String()).Msg("Capital allocated to pool")
	return nil
}

// RebalancePools moves amount of allocation from one pool to another. Nothing moves in or out
// of the vault. Rebalancing a pool onto itself is validated and leaves the allocation unchanged.
func (l *Ledger) RebalancePools(env Env, fromPool, toPool string, amount sdkmath.Int) (err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	defer l.observe(OpRebalancePools, &err)

	g, err := GlobalsOrDefault(l.store)
	if err != nil {
		return err
	}
	if err := requireOwner(g, env.Caller()); err != nil {
		return err
	}
	if err := requirePositive(amount, "rebalance amount"); err != nil {
		return err
	}
	from, err := l.requirePool(fromPool)
	if err != nil {
		return err
	}
	to, err := l.requirePool(toPool)
	if err != nil {
		return err
	}
	if from.TotalAllocated.LT(amount) {
		return errorsmod.Wrapf(ErrInsufficientAllocation, "pool %q holds %s, requested %s", fromPool, from.TotalAllocated, amount)
	}

	if fromPool != toPool {
		from.TotalAllocated = from.TotalAllocated.Sub(amount)
		if to.TotalAllocated, err = safeAdd(to.TotalAllocated, amount); err != nil {
			return err
		}
		cs := NewChangeset()
		cs.SetPool(from)
		cs.SetPool(to)
		if err := l.commit(cs); err != nil {
			return err
		}
	}

	l.sink.Emit(types.RebalanceEvent{FromPool: fromPool, ToPool: toPool, Amount: amount, Timestamp: env.BlockTime()})
	l.logger.Info().Str("from", fromPool).Str("to", toPool).Str("amount", amount.String()).Msg("Pools rebalanced")
	return nil
}

// HarvestRewards adds externally realised yield to the TVL without minting shares, raising the
// share price for every current holder. The pool's allocation is not changed.
func (l *Ledger) HarvestRewards(env Env, poolName string, amount sdkmath.Int) (err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	defer l.observe(OpHarvestRewards, &err)

	g, err := GlobalsOrDefault(l.store)
	if err != nil {
		return err
	}
	if err := requireOwner(g, env.Caller()); err != nil {
		return err
	}
	if err := requirePositive(amount, "reward amount"); err != nil {
		return err
	}
	if _, err := l.requirePool(poolName); err != nil {
		return err
	}

	if g.TotalTVL, err = safeAdd(g.TotalTVL, amount); err != nil {
		return err
	}
	cs := NewChangeset()
	cs.SetGlobals(g)
	if err := l.commit(cs); err != nil {
		return err
	}

	l.sink.Emit(types.RewardsHarvestedEvent{Pool: poolName, Amount: amount, Timestamp: env.BlockTime()})
	l.logger.Info().Str("pool", poolName).Str("amount", amount.String()).Str("tvl", g.TotalTVL.String()).Msg("Rewards harvested")
	return nil
}

// Pause blocks deposits and withdrawals. Owner operations stay available.
func (l *Ledger) Pause(env Env) (err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	defer l.observe(OpPause, &err)
	return l.setPaused(env, true)
}

// Unpause lifts a Pause.
func (l *Ledger) Unpause(env Env) (err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	defer l.observe(OpUnpause, &err)
	return l.setPaused(env, false)
}

// setPaused expects l.mu to be held.
func (l *Ledger) setPaused(env Env, paused bool) error {
	g, err := GlobalsOrDefault(l.store)
	if err != nil {
		return err
	}
	if err := requireOwner(g, env.Caller()); err != nil {
		return err
	}
	g.Paused = paused
	cs := NewChangeset()
	cs.SetGlobals(g)
	if err := l.commit(cs); err != nil {
		return err
	}
	l.logger.Warn().Bool("paused", paused).Msg("Vault pause flag changed")
	return nil
}

// --- Reads ---

// GetPosition returns the position of user, all zero if the user never deposited.
func (l *Ledger) GetPosition(user sdktypes.AccAddress) (types.UserPosition, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return PositionOrDefault(l.store, user.String())
}

// GetTVL returns the total value locked.
func (l *Ledger) GetTVL() (sdkmath.Int, error) {
	g, err := l.globals()
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return g.TotalTVL, nil
}

// GetTotalShares returns the number of outstanding shares.
func (l *Ledger) GetTotalShares() (sdkmath.Int, error) {
	g, err := l.globals()
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return g.TotalShares, nil
}

// GetUserValue returns what the user's shares would withdraw right now.
func (l *Ledger) GetUserValue(user sdktypes.AccAddress) (sdkmath.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	position, err := PositionOrDefault(l.store, user.String())
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	if position.IsEmpty() {
		return sdkmath.ZeroInt(), nil
	}
	g, err := GlobalsOrDefault(l.store)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return calculateWithdrawalAmount(position.Shares, g.TotalShares, g.TotalTVL)
}

// GetSharePrice returns TVL per share, or one when no shares are outstanding.
func (l *Ledger) GetSharePrice() (sdkmath.LegacyDec, error) {
	g, err := l.globals()
	if err != nil {
		return sdkmath.LegacyZeroDec(), err
	}
	return sharePrice(g.TotalShares, g.TotalTVL), nil
}

// GetPoolInfo returns the named pool and whether it exists.
func (l *Ledger) GetPoolInfo(name string) (types.PoolInfo, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	pool, found, err := l.store.GetPool(name)
	if err != nil {
		return types.PoolInfo{}, false, fmt.Errorf("failed to read pool %q: %w", name, err)
	}
	if !found {
		return types.PoolInfo{}, false, nil
	}
	return pool.Normalize(), true, nil
}

// ListPools returns every pool sorted by name.
func (l *Ledger) ListPools() ([]types.PoolInfo, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	pools, err := l.store.ListPools()
	if err != nil {
		return nil, fmt.Errorf("failed to list pools: %w", err)
	}
	for i := range pools {
		pools[i] = pools[i].Normalize()
	}
	sort.Slice(pools, func(i, j int) bool { return pools[i].Name < pools[j].Name })
	return pools, nil
}

// GetOwner returns the owner address; ok is false only for a store that was never initialised.
func (l *Ledger) GetOwner() (owner sdktypes.AccAddress, ok bool, err error) {
	g, err := l.globals()
	if err != nil {
		return nil, false, err
	}
	if g.Owner == "" {
		return nil, false, nil
	}
	owner, err = sdktypes.AccAddressFromBech32(g.Owner)
	if err != nil {
		return nil, false, fmt.Errorf("stored owner %q is not a valid address: %w", g.Owner, err)
	}
	return owner, true, nil
}

// GetManagementFee returns the configured fee in basis points. The fee is never charged.
func (l *Ledger) GetManagementFee() (uint32, error) {
	g, err := l.globals()
	if err != nil {
		return 0, err
	}
	return g.ManagementFee, nil
}

// IsPaused reports whether deposits and withdrawals are blocked.
func (l *Ledger) IsPaused() (bool, error) {
	g, err := l.globals()
	if err != nil {
		return false, err
	}
	return g.Paused, nil
}

// GetGlobals returns a consistent copy of all scalar slots.
func (l *Ledger) GetGlobals() (types.Globals, error) {
	return l.globals()
}

// --- Internal helpers ---

func (l *Ledger) globals() (types.Globals, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return GlobalsOrDefault(l.store)
}

func (l *Ledger) requirePool(name string) (types.PoolInfo, error) {
	pool, found, err := l.store.GetPool(name)
	if err != nil {
		return types.PoolInfo{}, fmt.Errorf("failed to read pool %q: %w", name, err)
	}
	if !found {
		return types.PoolInfo{}, errorsmod.Wrapf(ErrPoolNotFound, "%q", name)
	}
	return pool.Normalize(), nil
}

func (l *Ledger) commit(cs *Changeset) error {
	if err := l.store.Commit(cs); err != nil {
		return fmt.Errorf("failed to commit ledger changes: %w", err)
	}
	return nil
}

func (l *Ledger) observe(op string, err *error) {
	if l.observer == nil {
		return
	}
	l.observer.ObserveOperation(op, *err)
}

func requireOwner(g types.Globals, caller sdktypes.AccAddress) error {
	if g.Owner == "" {
		return errorsmod.Wrap(ErrNotOwner, "vault has no owner")
	}
	if caller.String() != g.Owner {
		return errorsmod.Wrapf(ErrNotOwner, "%s", caller)
	}
	return nil
}

func requireNotPaused(g types.Globals) error {
	if g.Paused {
		return ErrContractPaused
	}
	return nil
}

func requirePositive(amount sdkmath.Int, what string) error {
	if amount.IsNil() || !amount.IsPositive() {
		return errorsmod.Wrap(ErrZeroAmount, what)
	}
	return nil
}
