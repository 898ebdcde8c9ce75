/*
This file contains conversions from ledger amounts (integer base units held in sdkmath.Int)
to the floats used for display, metrics and scoring.
*/

package utils

import (
	"errors"
	"fmt"
	"math"

	sdkmath "cosmossdk.io/math"
)

// Error definitions for zero-tolerance error handling
var (
	ErrInvalidPrecision = errors.New("precision is invalid")
	ErrAmountNil        = errors.New("amount is nil")
	ErrAmountNegative   = errors.New("amount is negative")
	ErrNotFinite        = errors.New("value is not finite")
	ErrConversionFailed = errors.New("conversion failed")
)

func precisionFactor(precision int) (sdkmath.LegacyDec, error) {
	if precision < 0 || precision > 18 {
		return sdkmath.LegacyDec{}, fmt.Errorf("%w: %d (must be between 0 and 18)", ErrInvalidPrecision, precision)
	}
	return sdkmath.LegacyNewDecFromInt(sdkmath.NewIntWithDecimal(1, precision)), nil
}

// SDKIntToFloat64 converts base units to a float in display units (amount / 10^precision).
func SDKIntToFloat64(amount sdkmath.Int, precision int) (float64, error) {
	factor, err := precisionFactor(precision)
	if err != nil {
		return 0, err
	}
	if amount.IsNil() {
		return 0, ErrAmountNil
	}
	if amount.IsNegative() {
		return 0, ErrAmountNegative
	}

	resultFloat, err := sdkmath.LegacyNewDecFromInt(amount).Quo(factor).Float64()
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrConversionFailed, err)
	}

	if math.IsNaN(resultFloat) || math.IsInf(resultFloat, 0) {
		return 0, fmt.Errorf("%w: result is %f", ErrNotFinite, resultFloat)
	}

	return resultFloat, nil
}

// BpsToPercent converts basis points to percent (1250 -> 12.5).
func BpsToPercent(bps uint32) float64 {
	return float64(bps) / 100
}

// ShareOf returns part/total as a fraction in [0, 1] for display; 0 when total is zero.
func ShareOf(part, total sdkmath.Int) float64 {
	if total.IsNil() || !total.IsPositive() || part.IsNil() {
		return 0
	}
	f, err := sdkmath.LegacyNewDecFromInt(part).QuoInt(total).Float64()
	if err != nil {
		return 0
	}
	return f
}
