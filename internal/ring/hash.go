package ring

import (
	"hash/fnv"

	"meshkv/internal/meshaddr"
)

// Size is RING_SIZE from spec section 6: the modulus every hash is reduced
// into. A var rather than a const so cmd/meshkv's -ring-size flag can tune
// it at startup; nothing in this package mutates it after that.
var Size uint32 = 512

// HashAddress returns H(address) mod Size, per spec section 4.2's
// RingNode definition.
//
// Grounded on the teacher's consistent_hash.go, which hashes with sha256
// truncated to a uint32; this repo swaps in FNV-1a, a non-cryptographic
// hash, because RING_SIZE is small and nothing here depends on collision
// resistance — hashicorp/serf and memberlist-style gossip rings make the
// same trade for the same reason.
func HashAddress(a meshaddr.Address) uint32 {
	h := fnv.New32a()
	h.Write(a[:])
	return h.Sum32() % Size
}

// HashKey returns H(key) mod Size for an arbitrary KV key, used by
// findNodes.
func HashKey(key string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(key))
	return h.Sum32() % Size
}
