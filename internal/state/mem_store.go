package state

import (
	"sync"

	"github.com/elys-network/yieldvault/internal/ledger"
	"github.com/elys-network/yieldvault/internal/types"
)

// MemStore keeps the ledger state in process memory. Used for dry runs and tests.
type MemStore struct {
	mu        sync.RWMutex
	globals   *types.Globals
	positions map[string]types.UserPosition
	pools     map[string]types.PoolInfo
}

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		positions: make(map[string]types.UserPosition),
		pools:     make(map[string]types.PoolInfo),
	}
}

func (m *MemStore) GetGlobals() (types.Globals, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.globals == nil {
		return types.Globals{}, false, nil
	}
	return *m.globals, true, nil
}

func (m *MemStore) GetPosition(addr string) (types.UserPosition, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.positions[addr]
	return p, ok, nil
}

func (m *MemStore) GetPool(name string) (types.PoolInfo, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.pools[name]
	return p, ok, nil
}

func (m *MemStore) ListPools() ([]types.PoolInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]types.PoolInfo, 0, len(m.pools))
	for _, p := range m.pools {
		out = append(out, p)
	}
	return out, nil
}

// Positions returns a copy of every stored position keyed by address.
func (m *MemStore) Positions() map[string]types.UserPosition {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]types.UserPosition, len(m.positions))
	for k, v := range m.positions {
		out[k] = v
	}
	return out
}

func (m *MemStore) Commit(cs *ledger.Changeset) error {
	if cs.IsEmpty() {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if cs.Globals != nil {
		g := *cs.Globals
		m.globals = &g
	}
	for addr, p := range cs.Positions {
		m.positions[addr] = p
	}
	for name, p := range cs.Pools {
		m.pools[name] = p
	}
	return nil
}

var _ ledger.Store = (*MemStore)(nil)
