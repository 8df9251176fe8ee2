// Package stabilization implements the replica-repair protocol of spec
// section 4.5: after each ring recomputation, compare the old and new
// successor sets to detect who joined or died, and re-replicate this
// node's PRIMARY keys to whoever now needs them.
//
// Grounded on original_source/assignment2/mp2/MP2Node.cpp's
// stabilizationProtocol, which the coursework left as an empty stub — spec
// section 1 calls this out as the "hard engineering" this repository
// exists to build. The iterate-store-and-send shape follows
// AryanBagade-dynamoDB/internal/replication/replicator.go's
// WriteWithReplication.
package stabilization

import (
	"meshkv/internal/meshaddr"
	"meshkv/internal/network"
	"meshkv/internal/ring"
	"meshkv/internal/store"
	"meshkv/internal/wire"
)

// Stabilizer tracks one node's replica bookkeeping and repairs it as the
// ring changes underneath it.
type Stabilizer struct {
	self   meshaddr.Address
	store  store.Store
	sender network.Sender

	hasMyReplicas  [2]meshaddr.Address // successors holding SECONDARY/TERTIARY copies of this node's PRIMARY keys
	haveReplicasOf [2]meshaddr.Address // predecessors whose keys this node replicates
	bootstrapped   bool
}

// New creates a Stabilizer for self.
func New(self meshaddr.Address, s store.Store, sender network.Sender) *Stabilizer {
	return &Stabilizer{self: self, store: s, sender: sender}
}

// HasMyReplicas returns the current [secondary-holder, tertiary-holder]
// pair, for tests and the API's status view. An entry is the zero address
// if the ring doesn't have enough members to populate that slot.
func (s *Stabilizer) HasMyReplicas() [2]meshaddr.Address { return s.hasMyReplicas }

// HaveReplicasOf returns the current [immediate, next] predecessor pair
// this node replicates keys from.
func (s *Stabilizer) HaveReplicasOf() [2]meshaddr.Address { return s.haveReplicasOf }

func pad2(addrs []meshaddr.Address) [2]meshaddr.Address {
	var out [2]meshaddr.Address
	for i := 0; i < len(addrs) && i < 2; i++ {
		out[i] = addrs[i]
	}
	return out
}

// Update recomputes successors/predecessors from r and runs the detection
// table of spec section 4.5. On the very first call (bootstrap, both
// tracked arrays still zero), it simply records the new sets with no
// replication, per spec's bootstrap case.
func (s *Stabilizer) Update(r ring.Ring) {
	newSucc := pad2(r.Successors(s.self))
	newPred := pad2(r.Predecessors(s.self))

	if !s.bootstrapped {
		s.hasMyReplicas = newSucc
		s.haveReplicasOf = newPred
		s.bootstrapped = true
		return
	}

	old := s.hasMyReplicas
	switch {
	case !newSucc[0].IsZero() && old[1] == newSucc[0]:
		// Old secondary is gone; the old tertiary shifted up into its
		// slot. Both new positions need a fresh copy of our PRIMARY keys.
		s.replicateAll(newSucc[0], store.Secondary)
		if !newSucc[1].IsZero() {
			s.replicateAll(newSucc[1], store.Tertiary)
		}
	case !newSucc[1].IsZero() && old[1] != newSucc[1]:
		// The tertiary slot changed (join or departure further around the
		// ring). Only the new tertiary is sent PRIMARY keys, whether or not
		// the secondary slot changed too.
		s.replicateAll(newSucc[1], store.Tertiary)
	}

	s.hasMyReplicas = newSucc
	s.haveReplicasOf = newPred
}

// replicateAll sends every locally-held PRIMARY entry to dest, tagged with
// role, per spec section 4.5's Replicate step.
func (s *Stabilizer) replicateAll(dest meshaddr.Address, role store.Role) {
	for key, entry := range s.store.Entries() {
		if entry.ReplicaRole != store.Primary {
			continue
		}
		s.sender.Send(s.self, dest, wire.EncodeStabilize(wire.Stabilize{Key: key, Value: entry.Value, Role: role}))
	}
}
