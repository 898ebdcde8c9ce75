package events

import (
	"bytes"
	"encoding/json"
	"testing"

	sdkmath "cosmossdk.io/math"
	sdktypes "github.com/cosmos/cosmos-sdk/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/elys-network/yieldvault/internal/types"
)

func TestLogSinkWritesStructuredLines(t *testing.T) {
	var buf bytes.Buffer
	sink := NewLogSinkWith(zerolog.New(&buf))
	user := sdktypes.AccAddress([]byte("alice_______________"))

	sink.Emit(types.DepositEvent{User: user, Amount: sdkmath.NewInt(11), Shares: sdkmath.NewInt(10), Timestamp: 5})

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "deposit", line["event"])
	require.Equal(t, user.String(), line["user"])
	require.Equal(t, "11", line["amount"])
	require.Equal(t, "10", line["sharesMinted"])

	buf.Reset()
	sink.Emit(types.RebalanceEvent{FromPool: "alpha", ToPool: "beta", Amount: sdkmath.NewInt(3), Timestamp: 6})
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "rebalance", line["event"])
	require.Equal(t, "alpha", line["from"])
	require.Equal(t, "beta", line["to"])
}
