// Package ring implements L2, the consistent-hash ring and replica
// placement logic of spec section 4.2. It is a pure function of a
// membership snapshot: nothing in this package sends a message, blocks, or
// holds state across calls.
//
// Grounded on AryanBagade-dynamoDB/internal/ring/consistent_hash.go for
// the overall sorted-ring-plus-binary-search shape, deliberately without
// its virtual-node replication: spec section 4.2's RingNode is one
// position per member, so virtual nodes are left out rather than ported.
package ring

import (
	"sort"

	"meshkv/internal/meshaddr"
)

// Node is one position on the ring.
type Node struct {
	Address meshaddr.Address
	Hash    uint32
}

// Ring is the membership list sorted ascending by hash, per spec section
// 3's RingNode definition.
type Ring struct {
	Nodes []Node
}

// Build constructs a Ring from a membership snapshot. Ties on hash value
// are broken by address so that Build is deterministic for any permutation
// of the same member set — required for the purity invariant: two nodes
// with the same membership view must compute the same ring.
func Build(members []meshaddr.Address) Ring {
	nodes := make([]Node, len(members))
	for i, a := range members {
		nodes[i] = Node{Address: a, Hash: HashAddress(a)}
	}
	sort.Slice(nodes, func(i, j int) bool {
		if nodes[i].Hash != nodes[j].Hash {
			return nodes[i].Hash < nodes[j].Hash
		}
		return string(nodes[i].Address[:]) < string(nodes[j].Address[:])
	})
	return Ring{Nodes: nodes}
}

// IndexOf returns self's position in the ring, or -1 if self is not a
// member of it.
func (r Ring) IndexOf(self meshaddr.Address) int {
	for i, n := range r.Nodes {
		if n.Address == self {
			return i
		}
	}
	return -1
}

// Predecessors returns ring[(self-1) mod n], ring[(self-2) mod n] — the
// immediate predecessor first, then the one before it — per spec section
// 4.2. Returns nil if self is not on the ring or is its only member; on a
// 2-node ring only the single other node is returned.
func (r Ring) Predecessors(self meshaddr.Address) []meshaddr.Address {
	return r.neighbors(self, -1)
}

// Successors returns ring[(self+1) mod n], ring[(self+2) mod n] per spec
// section 4.2.
func (r Ring) Successors(self meshaddr.Address) []meshaddr.Address {
	return r.neighbors(self, 1)
}

func (r Ring) neighbors(self meshaddr.Address, dir int) []meshaddr.Address {
	n := len(r.Nodes)
	idx := r.IndexOf(self)
	if idx < 0 || n < 2 {
		return nil
	}

	out := make([]meshaddr.Address, 0, 2)
	for step := 1; step <= 2; step++ {
		if step >= n {
			break
		}
		pos := ((idx+dir*step)%n + n) % n
		out = append(out, r.Nodes[pos].Address)
	}
	return out
}

// FindNodes implements spec section 4.2's findNodes(key): it walks the
// sorted ring starting at the first node whose hash is >= H(key) mod
// RING_SIZE (wrapping to ring[0] if none qualifies), and returns that node
// plus the next two clockwise as (primary, secondary, tertiary).
//
// If the ring has fewer than REPLICATION (3) members, FindNodes returns an
// empty slice: there aren't enough distinct nodes to hold a full replica
// set, per spec section 4.2 and the seed-only-CREATE test scenario in
// spec section 8.
func FindNodes(r Ring, key string) []meshaddr.Address {
	const replication = 3
	n := len(r.Nodes)
	if n < replication {
		return nil
	}

	pos := HashKey(key)
	start := sort.Search(n, func(i int) bool { return r.Nodes[i].Hash >= pos })
	if start == n {
		start = 0
	}

	out := make([]meshaddr.Address, replication)
	for i := 0; i < replication; i++ {
		out[i] = r.Nodes[(start+i)%n].Address
	}
	return out
}
