package ledger

import (
	"errors"
	"sync"

	"github.com/elys-network/yieldvault/internal/types"
)

var errInjected = errors.New("injected commit failure")

type fakeStore struct {
	mu        sync.Mutex
	globals   *types.Globals
	positions map[string]types.UserPosition
	pools     map[string]types.PoolInfo
	failNext  bool
	commits   int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		positions: make(map[string]types.UserPosition),
		pools:     make(map[string]types.PoolInfo),
	}
}

func (s *fakeStore) GetGlobals() (types.Globals, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.globals == nil {
		return types.Globals{}, false, nil
	}
	return *s.globals, true, nil
}

func (s *fakeStore) GetPosition(addr string) (types.UserPosition, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.positions[addr]
	return p, ok, nil
}

func (s *fakeStore) GetPool(name string) (types.PoolInfo, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pools[name]
	return p, ok, nil
}

func (s *fakeStore) ListPools() ([]types.PoolInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.PoolInfo, 0, len(s.pools))
	for _, p := range s.pools {
		out = append(out, p)
	}
	return out, nil
}

func (s *fakeStore) Commit(cs *Changeset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failNext {
		s.failNext = false
		return errInjected
	}
	if cs.Globals != nil {
		g := *cs.Globals
		s.globals = &g
	}
	for k, v := range cs.Positions {
		s.positions[k] = v
	}
	for k, v := range cs.Pools {
		s.pools[k] = v
	}
	s.commits++
	return nil
}

type recordingSink struct {
	mu     sync.Mutex
	events []types.Event
}

func (r *recordingSink) Emit(ev types.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordingSink) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func (r *recordingSink) last() types.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		return nil
	}
	return r.events[len(r.events)-1]
}

type recordingObserver struct {
	ops  []string
	errs []error
}

func (o *recordingObserver) ObserveOperation(op string, err error) {
	o.ops = append(o.ops, op)
	o.errs = append(o.errs, err)
}
