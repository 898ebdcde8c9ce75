package events

import (
	"github.com/rs/zerolog"

	"github.com/elys-network/yieldvault/internal/logger"
	"github.com/elys-network/yieldvault/internal/types"
)

// LogSink writes one structured log line per ledger event.
type LogSink struct {
	logger zerolog.Logger
}

// NewLogSink returns a sink logging under the "ledger_events" component.
func NewLogSink() *LogSink {
	return &LogSink{logger: logger.GetForComponent("ledger_events")}
}

// NewLogSinkWith logs to lg.
func NewLogSinkWith(lg zerolog.Logger) *LogSink {
	return &LogSink{logger: lg}
}

func (s *LogSink) Emit(ev types.Event) {
	e := s.logger.Info().Str("event", ev.EventType())
	switch v := ev.(type) {
	case types.DepositEvent:
		e = e.Str("user", v.User.String()).
			Str("amount", v.Amount.String()).
			Str("sharesMinted", v.Shares.String()).
			Uint64("timestamp", v.Timestamp)
	case types.WithdrawalEvent:
		e = e.Str("user", v.User.String()).
			Str("amount", v.Amount.String()).
			Str("sharesBurned", v.Shares.String()).
			Uint64("timestamp", v.Timestamp)
	case types.RebalanceEvent:
		e = e.Str("from", v.FromPool).
			Str("to", v.ToPool).
			Str("amount", v.Amount.String()).
			Uint64("timestamp", v.Timestamp)
	case types.RewardsHarvestedEvent:
		e = e.Str("pool", v.Pool).
			Str("amount", v.Amount.String()).
			Uint64("timestamp", v.Timestamp)
	}
	e.Msg("Ledger event")
}
