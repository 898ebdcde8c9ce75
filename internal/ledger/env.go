package ledger

import (
	"sync"
	"time"

	sdktypes "github.com/cosmos/cosmos-sdk/types"
)

// Env is what the hosting environment provides to each call: who is calling and when.
type Env interface {
	Caller() sdktypes.AccAddress
	BlockTime() uint64
}

// CallEnv is an explicit Env, used by tests and when replaying recorded calls.
type CallEnv struct {
	Sender sdktypes.AccAddress
	Time   uint64
}

func (e CallEnv) Caller() sdktypes.AccAddress { return e.Sender }
func (e CallEnv) BlockTime() uint64           { return e.Time }

// Clock hands out wall-clock milliseconds that never go backwards.
type Clock struct {
	mu   sync.Mutex
	last uint64
	now  func() time.Time
}

// NewClock returns a clock reading time.Now.
func NewClock() *Clock {
	return &Clock{now: time.Now}
}

// Now returns the current time in unix milliseconds, clamped to the last value returned.
func (c *Clock) Now() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	ms := uint64(c.now().UnixMilli())
	if ms < c.last {
		return c.last
	}
	c.last = ms
	return ms
}

var defaultClock = NewClock()

// SystemEnv stamps calls with a shared monotonic wall clock.
type SystemEnv struct {
	sender sdktypes.AccAddress
	clock  *Clock
}

// NewSystemEnv returns an Env for caller using the process-wide clock.
func NewSystemEnv(caller sdktypes.AccAddress) SystemEnv {
	return SystemEnv{sender: caller, clock: defaultClock}
}

func (e SystemEnv) Caller() sdktypes.AccAddress { return e.sender }
func (e SystemEnv) BlockTime() uint64           { return e.clock.Now() }
