// Package store implements the local key-value primitive that spec section
// 1 treats as an external collaborator ("the on-disk or in-memory
// primitive key->value map used for local storage"). It is specified here
// only to the extent needed to satisfy that collaborator's interface: two
// implementations are provided, an in-memory map (the default, used by
// every coordinator/server/stabilization test) and a goleveldb-backed
// store grounded on the teacher's internal/storage/leveldb.go.
package store

import (
	"fmt"
	"strconv"
	"strings"
)

// Role identifies a replica's position in a key's 3-node replica set.
type Role int

const (
	Primary Role = iota
	Secondary
	Tertiary
)

func (r Role) String() string {
	switch r {
	case Primary:
		return "PRIMARY"
	case Secondary:
		return "SECONDARY"
	case Tertiary:
		return "TERTIARY"
	default:
		return "UNKNOWN"
	}
}

// HashEntry is the stored payload for one key, per spec section 3.
type HashEntry struct {
	Value       string
	WriteTime   int64
	ReplicaRole Role
}

// Serialize renders the entry as "value:write_time:role", the wire
// interchange format spec section 3 specifies, grounded on the teacher's
// HashTableEntry.convertToString in original_source/assignment2/mp2/MP2Node.h.
func (e HashEntry) Serialize() string {
	return fmt.Sprintf("%s:%d:%d", e.Value, e.WriteTime, int(e.ReplicaRole))
}

// Deserialize parses the "value:write_time:role" interchange format back
// into a HashEntry.
func Deserialize(s string) (HashEntry, error) {
	parts := strings.SplitN(s, ":", 3)
	if len(parts) != 3 {
		return HashEntry{}, fmt.Errorf("store: malformed entry %q", s)
	}
	ts, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return HashEntry{}, fmt.Errorf("store: bad write_time in %q: %w", s, err)
	}
	role, err := strconv.Atoi(parts[2])
	if err != nil {
		return HashEntry{}, fmt.Errorf("store: bad role in %q: %w", s, err)
	}
	return HashEntry{Value: parts[0], WriteTime: ts, ReplicaRole: Role(role)}, nil
}

// Store is the interface every layer above storage programs against. It
// never itself knows about the ring or replica roles beyond what's asked
// of it to persist.
type Store interface {
	// Create unconditionally writes key -> entry, overwriting any
	// previous value. Per spec section 4.4 this is the server-side CREATE
	// semantics: idempotent overwrite is acceptable.
	Create(key string, entry HashEntry)

	// Update writes key -> entry only if the key already exists. It
	// reports whether the key existed (and was therefore written).
	Update(key string, entry HashEntry) (existed bool)

	// Read returns the entry for key and whether it was present.
	Read(key string) (HashEntry, bool)

	// Delete removes key and reports whether it was present.
	Delete(key string) (existed bool)

	// Entries returns a snapshot of every key currently stored, for
	// stabilization's replicate-by-role scan (spec section 4.5).
	Entries() map[string]HashEntry
}
