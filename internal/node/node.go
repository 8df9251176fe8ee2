// Package node wires L1 (internal/membership), L2 (internal/ring), L3
// (internal/kv), and internal/stabilization together behind one address,
// per spec section 2's three-layer node structure. It owns no algorithm of
// its own — it only dispatches inbound frames to the right layer and
// drives the per-tick control flow of spec section 2: drain inbound queue
// → dispatch by kind → advance heartbeat → evict stale members → gossip a
// random peer → recompute ring → run stabilization → expire stale
// transactions.
package node

import (
	"math/rand"

	"meshkv/internal/eventlog"
	"meshkv/internal/kv"
	"meshkv/internal/meshaddr"
	"meshkv/internal/membership"
	"meshkv/internal/network"
	"meshkv/internal/ring"
	"meshkv/internal/stabilization"
	"meshkv/internal/store"
	"meshkv/internal/wire"
)

// Node is one participant in the mesh: one address, one membership view,
// one ring snapshot, one transaction table, one local store.
type Node struct {
	Self meshaddr.Address

	membership  *membership.Membership
	coordinator *kv.Coordinator
	server      *kv.Server
	stabilizer  *stabilization.Stabilizer
	currentRing ring.Ring
}

// New constructs a Node. generation should increase across restarts of the
// same address (see membership.New); sender and store are the external
// collaborators spec section 1 calls out.
func New(self meshaddr.Address, generation uint64, logger eventlog.Logger, sender network.Sender, s store.Store, rng *rand.Rand) *Node {
	return &Node{
		Self:        self,
		membership:  membership.New(self, generation, logger, sender, rng),
		coordinator: kv.NewCoordinator(self, sender, logger),
		server:      kv.NewServer(self, s, sender, logger),
		stabilizer:  stabilization.New(self, s, sender),
	}
}

// Membership exposes the L1 view, for tests and the API layer.
func (n *Node) Membership() *membership.Membership { return n.membership }

// Coordinator exposes the L3 client-facing half, for issuing client calls.
func (n *Node) Coordinator() *kv.Coordinator { return n.coordinator }

// Ring returns the ring snapshot computed as of the most recent Tick.
func (n *Node) Ring() ring.Ring { return n.currentRing }

// Stabilizer exposes stabilization bookkeeping, for tests and the API's
// status view.
func (n *Node) Stabilizer() *stabilization.Stabilizer { return n.stabilizer }

// Start performs spec section 4.1's bootstrap against introducer.
func (n *Node) Start(introducer meshaddr.Address) {
	n.membership.Start(introducer)
}

// Handle dispatches one inbound frame by its wire kind to the owning
// layer. This is the dispatch-by-kind step of spec section 2's per-tick
// control flow; the driver calls it once per frame drained from the
// network before calling Tick.
func (n *Node) Handle(from meshaddr.Address, data []byte) {
	kind, err := wire.PeekKind(data)
	if err != nil {
		return // malformed message, discarded per spec section 7
	}

	switch kind {
	case wire.KindJoinReq, wire.KindJoinRep, wire.KindGossip:
		n.membership.Handle(from, data)
	case wire.KindCreate, wire.KindRead, wire.KindUpdate, wire.KindDelete, wire.KindStabilize:
		n.server.Handle(data)
	case wire.KindReply, wire.KindReadReply:
		n.coordinator.Handle(data)
	}
}

// Tick advances heartbeat and gossip (L1), recomputes the ring and runs
// stabilization when in-group (L2 + stabilization), and expires stale
// transactions (L3), in that order, per spec section 2.
func (n *Node) Tick() {
	n.membership.Tick()
	n.server.Tick()

	if n.membership.State() == membership.InGroup {
		n.currentRing = ring.Build(n.membership.Members())
		n.stabilizer.Update(n.currentRing)
	}

	n.coordinator.Tick()
}

// ClientCreate issues a CREATE against the node's current ring snapshot.
func (n *Node) ClientCreate(key, value string) int {
	return n.coordinator.ClientCreate(n.currentRing, key, value)
}

// ClientRead issues a READ against the node's current ring snapshot.
func (n *Node) ClientRead(key string) int {
	return n.coordinator.ClientRead(n.currentRing, key)
}

// ClientUpdate issues an UPDATE against the node's current ring snapshot.
func (n *Node) ClientUpdate(key, value string) int {
	return n.coordinator.ClientUpdate(n.currentRing, key, value)
}

// ClientDelete issues a DELETE against the node's current ring snapshot.
func (n *Node) ClientDelete(key string) int {
	return n.coordinator.ClientDelete(n.currentRing, key)
}
