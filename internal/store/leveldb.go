package store

import (
	"fmt"
	"path/filepath"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/errors"
)

// LevelDB is a persistent Store backed by goleveldb, grounded on the
// teacher's internal/storage/leveldb.go. It satisfies the same Store
// interface as Memory; a node configured with a data directory uses this
// instead, but persistence across process restarts is explicitly a
// non-goal (spec section 1) — a restarted node still rejoins and rebuilds
// membership from scratch, it just doesn't re-scan local keys on its own.
type LevelDB struct {
	db *leveldb.DB
}

// NewLevelDB opens (or recovers, or creates) a goleveldb database rooted
// at dataDir/nodeID.
func NewLevelDB(dataDir, nodeID string) (*LevelDB, error) {
	path := filepath.Join(dataDir, nodeID)

	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		if errors.IsCorrupted(err) {
			db, err = leveldb.RecoverFile(path, nil)
		}
		if err != nil {
			return nil, fmt.Errorf("store: open leveldb at %s: %w", path, err)
		}
	}
	return &LevelDB{db: db}, nil
}

func (s *LevelDB) Create(key string, entry HashEntry) {
	_ = s.db.Put([]byte(key), []byte(entry.Serialize()), nil)
}

func (s *LevelDB) Update(key string, entry HashEntry) bool {
	if _, ok := s.Read(key); !ok {
		return false
	}
	s.Create(key, entry)
	return true
}

func (s *LevelDB) Read(key string) (HashEntry, bool) {
	raw, err := s.db.Get([]byte(key), nil)
	if err != nil {
		return HashEntry{}, false
	}
	entry, err := Deserialize(string(raw))
	if err != nil {
		return HashEntry{}, false
	}
	return entry, true
}

func (s *LevelDB) Delete(key string) bool {
	if _, ok := s.Read(key); !ok {
		return false
	}
	_ = s.db.Delete([]byte(key), nil)
	return true
}

func (s *LevelDB) Entries() map[string]HashEntry {
	out := make(map[string]HashEntry)
	iter := s.db.NewIterator(nil, nil)
	defer iter.Release()
	for iter.Next() {
		entry, err := Deserialize(string(iter.Value()))
		if err != nil {
			continue
		}
		out[string(iter.Key())] = entry
	}
	return out
}

// Close releases the underlying database handle.
func (s *LevelDB) Close() error {
	return s.db.Close()
}
