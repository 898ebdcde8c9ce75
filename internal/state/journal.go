package state

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/elys-network/yieldvault/internal/logger"
	"github.com/elys-network/yieldvault/internal/types"
)

// JournalEntry is one row of ledger_events.
type JournalEntry struct {
	EventID    string    `json:"event_id"`
	EventType  string    `json:"event_type"`
	User       string    `json:"user_address,omitempty"`
	Pool       string    `json:"pool_name,omitempty"`
	ToPool     string    `json:"to_pool_name,omitempty"`
	Amount     string    `json:"amount"`
	Shares     string    `json:"shares,omitempty"`
	BlockTime  uint64    `json:"block_time"`
	RecordedAt time.Time `json:"recorded_at"`
}

// entryFromEvent flattens a ledger event into a journal row.
func entryFromEvent(ev types.Event) (JournalEntry, error) {
	entry := JournalEntry{
		EventID:   uuid.NewString(),
		EventType: ev.EventType(),
	}
	switch e := ev.(type) {
	case types.DepositEvent:
		entry.User = e.User.String()
		entry.Amount = e.Amount.String()
		entry.Shares = e.Shares.String()
		entry.BlockTime = e.Timestamp
	case types.WithdrawalEvent:
		entry.User = e.User.String()
		entry.Amount = e.Amount.String()
		entry.Shares = e.Shares.String()
		entry.BlockTime = e.Timestamp
	case types.RebalanceEvent:
		entry.Pool = e.FromPool
		entry.ToPool = e.ToPool
		entry.Amount = e.Amount.String()
		entry.BlockTime = e.Timestamp
	case types.RewardsHarvestedEvent:
		entry.Pool = e.Pool
		entry.Amount = e.Amount.String()
		entry.BlockTime = e.Timestamp
	default:
		return JournalEntry{}, fmt.Errorf("unsupported event type %T", ev)
	}
	return entry, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// journalQueueSize bounds the events waiting to be written.
const journalQueueSize = 1024

// Journal records every ledger event in the ledger_events table. It implements the ledger's
// EventSink: Emit only queues the event and a single writer inserts them in emission order.
// Write failures are logged and never reach the operation that emitted the event.
type Journal struct {
	db     *sql.DB
	logger zerolog.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan types.Event
	done   chan struct{}
}

// NewJournal returns a journal writing to db. Close it to flush queued events.
func NewJournal(db *sql.DB) (*Journal, error) {
	if db == nil {
		return nil, fmt.Errorf("database not initialized")
	}
	j := &Journal{db: db, logger: logger.GetForComponent("ledger_journal")}
	j.start(j.Record, journalQueueSize)
	return j, nil
}

func (j *Journal) start(write func(types.Event) error, size int) {
	j.queue = make(chan types.Event, size)
	j.done = make(chan struct{})
	go func() {
		defer close(j.done)
		for ev := range j.queue {
			if err := write(ev); err != nil {
				j.logger.Error().Err(err).Str("eventType", ev.EventType()).Msg("Failed to journal ledger event")
			}
		}
	}()
}

// Emit queues ev for writing. It never waits on the database; when the queue is full the
// event is dropped and logged.
func (j *Journal) Emit(ev types.Event) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed {
		j.logger.Warn().Str("eventType", ev.EventType()).Msg("Journal closed, ledger event not recorded")
		return
	}
	select {
	case j.queue <- ev:
	default:
		j.logger.Error().Str("eventType", ev.EventType()).Int("queued", len(j.queue)).Msg("Journal queue full, ledger event dropped")
	}
}

// Close stops accepting events and waits until the queued ones are written.
func (j *Journal) Close() {
	j.mu.Lock()
	if !j.closed {
		j.closed = true
		close(j.queue)
	}
	j.mu.Unlock()
	<-j.done
}

// Record persists ev and reports failures.
func (j *Journal) Record(ev types.Event) error {
	entry, err := entryFromEvent(ev)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO ledger_events (event_id, event_type, user_address, pool_name, to_pool_name, amount, shares, block_time)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8);`
	_, err = j.db.Exec(query,
		entry.EventID, entry.EventType, nullString(entry.User), nullString(entry.Pool), nullString(entry.ToPool),
		entry.Amount, nullString(entry.Shares), int64(entry.BlockTime))
	if err != nil {
		return fmt.Errorf("failed to insert ledger event: %w", err)
	}
	j.logger.Debug().Str("eventId", entry.EventID).Str("eventType", entry.EventType).Msg("Ledger event journaled")
	return nil
}

const journalColumns = `event_id, event_type, user_address, pool_name, to_pool_name, amount, shares, block_time, recorded_at`

func clampLimit(limit, def, max int) int {
	if limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}

func (j *Journal) query(query string, args ...any) ([]JournalEntry, error) {
	rows, err := j.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger events: %w", err)
	}
	defer rows.Close()

	entries := []JournalEntry{}
	for rows.Next() {
		var e JournalEntry
		var user, pool, toPool, shares sql.NullString
		var blockTime int64
		if err := rows.Scan(&e.EventID, &e.EventType, &user, &pool, &toPool, &e.Amount, &shares, &blockTime, &e.RecordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan ledger event: %w", err)
		}
		e.User, e.Pool, e.ToPool, e.Shares = user.String, pool.String, toPool.String, shares.String
		e.BlockTime = uint64(blockTime)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during ledger event iteration: %w", err)
	}
	return entries, nil
}

// GetUserHistory returns the deposits and withdrawals of address, newest first.
func (j *Journal) GetUserHistory(address string, limit int) ([]JournalEntry, error) {
	return j.query(`SELECT `+journalColumns+` FROM ledger_events
		WHERE user_address = $1
		ORDER BY block_time DESC, recorded_at DESC
		LIMIT $2`, address, clampLimit(limit, 50, 500))
}

// GetRecentEvents returns the latest events of every type, newest first.
func (j *Journal) GetRecentEvents(limit int) ([]JournalEntry, error) {
	return j.query(`SELECT `+journalColumns+` FROM ledger_events
		ORDER BY block_time DESC, recorded_at DESC
		LIMIT $1`, clampLimit(limit, 20, 500))
}
