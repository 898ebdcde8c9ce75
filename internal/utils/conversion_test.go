package utils

import (
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/require"
)

func TestSDKIntToFloat64(t *testing.T) {
	f, err := SDKIntToFloat64(sdkmath.NewInt(1_500_000_000), 9)
	require.NoError(t, err)
	require.InDelta(t, 1.5, f, 1e-12)

	_, err = SDKIntToFloat64(sdkmath.NewInt(1), 19)
	require.ErrorIs(t, err, ErrInvalidPrecision)
	_, err = SDKIntToFloat64(sdkmath.Int{}, 6)
	require.ErrorIs(t, err, ErrAmountNil)
	_, err = SDKIntToFloat64(sdkmath.NewInt(-1), 6)
	require.ErrorIs(t, err, ErrAmountNegative)
}

func TestBpsAndShare(t *testing.T) {
	require.Equal(t, 12.5, BpsToPercent(1250))
	require.InDelta(t, 0.25, ShareOf(sdkmath.NewInt(1), sdkmath.NewInt(4)), 1e-12)
	require.Zero(t, ShareOf(sdkmath.NewInt(1), sdkmath.ZeroInt()))
}
