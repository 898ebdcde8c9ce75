package state

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/elys-network/yieldvault/internal/ledger"
	"github.com/elys-network/yieldvault/internal/types"
)

var (
	globalsKey     = []byte("g/")
	positionPrefix = []byte("p/")
	poolPrefix     = []byte("l/")
)

// LevelStore persists the ledger state in a LevelDB database. Values are JSON; a commit is a
// single synced write batch.
type LevelStore struct {
	db *leveldb.DB
}

// OpenLevelStore creates or opens a LevelDB database at path.
func OpenLevelStore(path string) (*LevelStore, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open leveldb at %s: %w", path, err)
	}
	log.Info().Str("path", path).Msg("Opened LevelDB ledger store")
	return &LevelStore{db: db}, nil
}

// NewLevelStoreWithStorage opens a LevelDB database on an arbitrary storage backend,
// typically storage.NewMemStorage() in tests.
func NewLevelStoreWithStorage(stor storage.Storage) (*LevelStore, error) {
	db, err := leveldb.Open(stor, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open leveldb: %w", err)
	}
	return &LevelStore{db: db}, nil
}

// Close closes the database.
func (s *LevelStore) Close() error {
	return s.db.Close()
}

func positionKey(addr string) []byte {
	return append(append([]byte{}, positionPrefix...), addr...)
}

func poolKey(name string) []byte {
	return append(append([]byte{}, poolPrefix...), name...)
}

// getJSON decodes the value at key into out; found is false for an absent key.
func (s *LevelStore) getJSON(key []byte, out any) (bool, error) {
	raw, err := s.db.Get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read key %q: %w", key, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("failed to decode key %q: %w", key, err)
	}
	return true, nil
}

func (s *LevelStore) GetGlobals() (types.Globals, bool, error) {
	var g types.Globals
	found, err := s.getJSON(globalsKey, &g)
	return g, found, err
}

func (s *LevelStore) GetPosition(addr string) (types.UserPosition, bool, error) {
	var p types.UserPosition
	found, err := s.getJSON(positionKey(addr), &p)
	return p, found, err
}

func (s *LevelStore) GetPool(name string) (types.PoolInfo, bool, error) {
	var p types.PoolInfo
	found, err := s.getJSON(poolKey(name), &p)
	return p, found, err
}

func (s *LevelStore) ListPools() ([]types.PoolInfo, error) {
	iter := s.db.NewIterator(util.BytesPrefix(poolPrefix), nil)
	defer iter.Release()

	var pools []types.PoolInfo
	for iter.Next() {
		var p types.PoolInfo
		if err := json.Unmarshal(iter.Value(), &p); err != nil {
			return nil, fmt.Errorf("failed to decode pool %q: %w", iter.Key(), err)
		}
		pools = append(pools, p)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("failed to iterate pools: %w", err)
	}
	return pools, nil
}

// Positions returns every stored position keyed by address.
func (s *LevelStore) Positions() (map[string]types.UserPosition, error) {
	iter := s.db.NewIterator(util.BytesPrefix(positionPrefix), nil)
	defer iter.Release()

	out := make(map[string]types.UserPosition)
	for iter.Next() {
		var p types.UserPosition
		if err := json.Unmarshal(iter.Value(), &p); err != nil {
			return nil, fmt.Errorf("failed to decode position %q: %w", iter.Key(), err)
		}
		out[string(iter.Key()[len(positionPrefix):])] = p
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("failed to iterate positions: %w", err)
	}
	return out, nil
}

func (s *LevelStore) Commit(cs *ledger.Changeset) error {
	if cs.IsEmpty() {
		return nil
	}

	batch := new(leveldb.Batch)
	if cs.Globals != nil {
		raw, err := json.Marshal(cs.Globals)
		if err != nil {
			return fmt.Errorf("failed to encode globals: %w", err)
		}
		batch.Put(globalsKey, raw)
	}
	for addr, p := range cs.Positions {
		raw, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("failed to encode position %s: %w", addr, err)
		}
		batch.Put(positionKey(addr), raw)
	}
	for name, p := range cs.Pools {
		raw, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("failed to encode pool %s: %w", name, err)
		}
		batch.Put(poolKey(name), raw)
	}

	if err := s.db.Write(batch, &opt.WriteOptions{Sync: true}); err != nil {
		return fmt.Errorf("failed to write ledger batch: %w", err)
	}
	return nil
}

var _ ledger.Store = (*LevelStore)(nil)
