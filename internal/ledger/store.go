package ledger

import (
	"fmt"

	"github.com/elys-network/yieldvault/internal/types"
)

// Store is the durable key-value collaborator holding the five scalar slots and the two
// mappings (address -> UserPosition, pool name -> PoolInfo). Reads of absent keys report
// found == false; Commit applies a whole Changeset or nothing.
type Store interface {
	GetGlobals() (types.Globals, bool, error)
	GetPosition(addr string) (types.UserPosition, bool, error)
	GetPool(name string) (types.PoolInfo, bool, error)
	ListPools() ([]types.PoolInfo, error)
	Commit(cs *Changeset) error
}

// Changeset is the set of writes produced by one operation.
type Changeset struct {
	Globals   *types.Globals
	Positions map[string]types.UserPosition
	Pools     map[string]types.PoolInfo
}

// NewChangeset returns an empty changeset.
func NewChangeset() *Changeset {
	return &Changeset{
		Positions: make(map[string]types.UserPosition),
		Pools:     make(map[string]types.PoolInfo),
	}
}

func (c *Changeset) SetGlobals(g types.Globals) {
	c.Globals = &g
}

func (c *Changeset) SetPosition(addr string, p types.UserPosition) {
	c.Positions[addr] = p
}

// SetPool stages p under its own name.
func (c *Changeset) SetPool(p types.PoolInfo) {
	c.Pools[p.Name] = p
}

// IsEmpty reports whether the changeset writes nothing.
func (c *Changeset) IsEmpty() bool {
	return c == nil || (c.Globals == nil && len(c.Positions) == 0 && len(c.Pools) == 0)
}

// GlobalsOrDefault reads the scalar slots, falling back to zero aggregates, no owner, no fee
// and unpaused when the store holds nothing.
func GlobalsOrDefault(s Store) (types.Globals, error) {
	g, found, err := s.GetGlobals()
	if err != nil {
		return types.Globals{}, fmt.Errorf("failed to read vault globals: %w", err)
	}
	if !found {
		return types.NewGlobals(), nil
	}
	return g.Normalize(), nil
}

// PositionOrDefault reads a position, falling back to the all-zero position for addresses
// that were never written.
func PositionOrDefault(s Store, addr string) (types.UserPosition, error) {
	p, found, err := s.GetPosition(addr)
	if err != nil {
		return types.UserPosition{}, fmt.Errorf("failed to read position for %s: %w", addr, err)
	}
	if !found {
		return types.NewUserPosition(), nil
	}
	return p.Normalize(), nil
}
