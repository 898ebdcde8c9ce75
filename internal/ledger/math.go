package ledger

import (
	"math/big"

	errorsmod "cosmossdk.io/errors"
	sdkmath "cosmossdk.io/math"
)

// mulDiv returns floor(a*b/c) for non-negative operands and c > 0. The product is computed
// with an unbounded intermediate, only the quotient has to fit in an Int.
func mulDiv(a, b, c sdkmath.Int) (sdkmath.Int, error) {
	if c.IsZero() {
		return sdkmath.ZeroInt(), errorsmod.Wrap(ErrArithmeticOverflow, "division by zero")
	}
	product := new(big.Int).Mul(a.BigInt(), b.BigInt())
	quotient := product.Quo(product, c.BigInt())
	if quotient.BitLen() > sdkmath.MaxBitLen {
		return sdkmath.ZeroInt(), errorsmod.Wrapf(ErrArithmeticOverflow, "quotient needs %d bits", quotient.BitLen())
	}
	return sdkmath.NewIntFromBigInt(quotient), nil
}

func safeAdd(a, b sdkmath.Int) (sdkmath.Int, error) {
	sum, err := a.SafeAdd(b)
	if err != nil {
		return sdkmath.ZeroInt(), errorsmod.Wrapf(ErrArithmeticOverflow, "%s + %s", a, b)
	}
	return sum, nil
}

// calculateShares converts a deposit into shares at the current price. An empty vault
// (no shares or no value) mints 1:1.
func calculateShares(amount, totalShares, totalTVL sdkmath.Int) (sdkmath.Int, error) {
	if totalShares.IsZero() || totalTVL.IsZero() {
		return amount, nil
	}
	return mulDiv(amount, totalShares, totalTVL)
}

// calculateWithdrawalAmount converts shares back into an amount, rounding down.
func calculateWithdrawalAmount(shares, totalShares, totalTVL sdkmath.Int) (sdkmath.Int, error) {
	if totalShares.IsZero() {
		return sdkmath.ZeroInt(), nil
	}
	return mulDiv(shares, totalTVL, totalShares)
}

// sharePrice is TVL per share; 1 when no shares are outstanding.
func sharePrice(totalShares, totalTVL sdkmath.Int) sdkmath.LegacyDec {
	if totalShares.IsZero() {
		return sdkmath.LegacyOneDec()
	}
	return sdkmath.LegacyNewDecFromInt(totalTVL).QuoInt(totalShares)
}
