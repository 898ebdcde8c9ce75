package ledger

import (
	"errors"

	errorsmod "cosmossdk.io/errors"
)

// ModuleName is the codespace of the ledger error kinds.
const ModuleName = "yieldvault"

// Operation error kinds. Every rejected operation returns one of these, wrapped with context;
// test with errors.Is.
var (
	ErrInsufficientShares     = errorsmod.Register(ModuleName, 2, "insufficient shares")
	ErrInsufficientBalance    = errorsmod.Register(ModuleName, 3, "insufficient balance")
	ErrZeroAmount             = errorsmod.Register(ModuleName, 4, "amount must be positive")
	ErrNotOwner               = errorsmod.Register(ModuleName, 5, "caller is not the owner")
	ErrContractPaused         = errorsmod.Register(ModuleName, 6, "vault is paused")
	ErrPoolNotFound           = errorsmod.Register(ModuleName, 7, "pool not found")
	ErrInsufficientTvl        = errorsmod.Register(ModuleName, 8, "insufficient tvl")
	ErrInsufficientAllocation = errorsmod.Register(ModuleName, 9, "insufficient pool allocation")
	ErrArithmeticOverflow     = errorsmod.Register(ModuleName, 10, "arithmetic overflow")
)

// Construction errors, returned by Init and Open only.
var (
	ErrAlreadyInitialized = errors.New("ledger: store already holds an initialised vault")
	ErrNotInitialized     = errors.New("ledger: store holds no initialised vault")
	errNilStore           = errors.New("ledger: store not configured")
	errEmptyCaller        = errors.New("ledger: caller address is empty")
)

var errorKinds = []struct {
	name string
	err  error
}{
	{"InsufficientShares", ErrInsufficientShares},
	{"InsufficientBalance", ErrInsufficientBalance},
	{"ZeroAmount", ErrZeroAmount},
	{"NotOwner", ErrNotOwner},
	{"ContractPaused", ErrContractPaused},
	{"PoolNotFound", ErrPoolNotFound},
	{"InsufficientTvl", ErrInsufficientTvl},
	{"InsufficientAllocation", ErrInsufficientAllocation},
	{"ArithmeticOverflow", ErrArithmeticOverflow},
}

// ErrorKind returns the name of the operation error kind carried by err, or "" when err is nil
// or not a ledger kind (for example a storage failure).
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return ""
}
