// Package membership implements L1, the gossip-based failure detector
// described in spec section 4.1: it owns the member list and heartbeat
// counter, consumes JOINREQ/JOINREP/GOSSIP messages, and emits node-add /
// node-remove events through the logging collaborator.
//
// Grounded on original_source/assignment1/mp1/MP1Node.cpp (the member-list
// merge, eviction, and gossip-target-selection algorithms) and on
// mcastellin-golang-mastery/gossip/pkg/statemachine.go (the
// generation-before-heartbeat merge ordering and the idempotence property
// it gives gossip).
package membership

import (
	"math/rand"

	"meshkv/internal/eventlog"
	"meshkv/internal/meshaddr"
	"meshkv/internal/network"
	"meshkv/internal/wire"
)

// DefaultTRemove is T_REMOVE from spec section 6: a member silent for more
// than this many of our own heartbeats is evicted.
const DefaultTRemove = 20

// DefaultTFail is T_FAIL from spec section 6. Spec section 4.1 reserves it
// for a "suspected" state. This implementation stores the value (see
// SetTimeouts) but no algorithm reads it: there is no suspected state, and
// a member stays live for gossip and replica placement until T_REMOVE
// evicts it.
const DefaultTFail = 5

// Membership is one node's view of L1. It is not safe for concurrent use:
// spec section 5 specifies a single-threaded cooperative scheduling model
// per node, so no internal locking is needed or provided.
type Membership struct {
	self       meshaddr.Address
	generation uint64
	heartbeat  uint64
	list       []MemberEntry // list[0] is always self
	state      State

	tRemove uint64
	tFail   uint64

	logger eventlog.Logger
	sender network.Sender
	rng    *rand.Rand
}

// New creates a Membership for self, in state Inited. generation should be
// a value that increases across process restarts of the same node (e.g. a
// boot timestamp); rng drives gossip peer selection and should be seeded
// deterministically in tests.
func New(self meshaddr.Address, generation uint64, logger eventlog.Logger, sender network.Sender, rng *rand.Rand) *Membership {
	m := &Membership{
		self:       self,
		generation: generation,
		state:      Inited,
		tRemove:    DefaultTRemove,
		tFail:      DefaultTFail,
		logger:     logger,
		sender:     sender,
		rng:        rng,
	}
	m.list = []MemberEntry{{Addr: self, Heartbeat: 0, LocalTimestamp: 0, Generation: generation}}
	return m
}

// SetTimeouts overrides T_REMOVE / T_FAIL for this node, per spec section 6
// "Configurable constants".
func (m *Membership) SetTimeouts(tRemove, tFail uint64) {
	m.tRemove = tRemove
	m.tFail = tFail
}

// Self returns this node's address.
func (m *Membership) Self() meshaddr.Address { return m.self }

// State returns the current membership state machine position.
func (m *Membership) State() State { return m.state }

// Heartbeat returns this node's current heartbeat counter.
func (m *Membership) Heartbeat() uint64 { return m.heartbeat }

// List returns a copy of the full member list, self first, per spec
// section 3's MemberList invariant.
func (m *Membership) List() []MemberEntry {
	out := make([]MemberEntry, len(m.list))
	copy(out, m.list)
	return out
}

// Members returns the addresses of every currently-known member, self
// first — the pure input L2 (internal/ring) builds a ring from.
func (m *Membership) Members() []meshaddr.Address {
	out := make([]meshaddr.Address, len(m.list))
	for i, e := range m.list {
		out[i] = e.Addr
	}
	return out
}

// Start performs spec section 4.1's bootstrap: if self is the introducer,
// this node becomes the group's seed and enters IN_GROUP immediately.
// Otherwise it sends a JOINREQ to the introducer and enters JOINING.
func (m *Membership) Start(introducer meshaddr.Address) {
	if introducer == m.self {
		m.state = InGroup
		return
	}
	m.state = Joining
	m.sender.Send(m.self, introducer, wire.EncodeJoinReq(wire.JoinReq{
		Addr:      m.self,
		Heartbeat: m.heartbeat,
	}))
}

// Tick advances the heartbeat, evicts stale members, and gossips to one
// random peer, per spec section 4.1. A FAILED node does nothing: spec
// section 4.1's state machine says FAILED halts all ticks.
func (m *Membership) Tick() {
	if m.state == Failed {
		return
	}

	m.heartbeat++
	m.list[0].Heartbeat = m.heartbeat
	m.list[0].LocalTimestamp = m.heartbeat

	m.evictStale()
	m.gossipToRandomPeer()
}

func (m *Membership) evictStale() {
	kept := m.list[:1]
	for _, e := range m.list[1:] {
		if m.heartbeat-e.LocalTimestamp > m.tRemove {
			m.logger.LogNodeRemove(m.self, e.Addr)
			continue
		}
		kept = append(kept, e)
	}
	m.list = kept
}

func (m *Membership) gossipToRandomPeer() {
	if len(m.list) <= 1 {
		return
	}
	idx := 1 + m.rng.Intn(len(m.list)-1)
	target := m.list[idx].Addr

	m.sender.Send(m.self, target, wire.EncodeGossip(wire.MemberList{Entries: toWire(m.list)}))
}

// Fail transitions this node to FAILED. Per spec section 4.1 a failed node
// stops ticking entirely; the driver is responsible for still draining
// (and discarding) its inbound queue.
func (m *Membership) Fail() {
	m.state = Failed
}

// Handle dispatches an inbound membership message by its wire kind, per
// spec section 4.1's message table. It is only ever called with JOINREQ,
// JOINREP, or GOSSIP frames; the caller (internal/node) routes every other
// kind to the KV layer.
func (m *Membership) Handle(from meshaddr.Address, data []byte) {
	kind, err := wire.PeekKind(data)
	if err != nil {
		return // malformed message, silently discarded per spec section 7
	}

	switch kind {
	case wire.KindJoinReq:
		m.handleJoinReq(from, data)
	case wire.KindJoinRep:
		m.handleJoinRep(data)
	case wire.KindGossip:
		m.handleGossip(data)
	}
}

func (m *Membership) handleJoinReq(from meshaddr.Address, data []byte) {
	req, err := wire.DecodeJoinReq(data)
	if err != nil {
		return
	}

	m.merge(MemberEntry{Addr: req.Addr, Heartbeat: req.Heartbeat})

	m.sender.Send(m.self, from, wire.EncodeJoinRep(wire.MemberList{Entries: toWire(m.list)}))
}

func (m *Membership) handleJoinRep(data []byte) {
	rep, err := wire.DecodeJoinRep(data)
	if err != nil {
		return
	}
	for _, e := range fromWire(rep.Entries) {
		m.merge(e)
	}
	if m.state == Joining {
		m.state = InGroup
	}
}

func (m *Membership) handleGossip(data []byte) {
	g, err := wire.DecodeGossip(data)
	if err != nil {
		return
	}
	for _, e := range fromWire(g.Entries) {
		m.merge(e)
	}
}

// merge implements spec section 4.1's Merge algorithm: for an incoming
// entry, update the local record only if the incoming data is strictly
// newer, and record newly-observed members with a node-add event. Running
// merge twice with the same input is a no-op (spec section 8's gossip
// idempotence property) because the strict > comparisons below never regress or
// needlessly rewrite already-current state.
func (m *Membership) merge(incoming MemberEntry) {
	if incoming.Addr == m.self {
		return // never let gossip mutate our own record
	}

	for i := range m.list {
		local := &m.list[i]
		if local.Addr.ID() != incoming.Addr.ID() {
			continue
		}

		switch {
		case incoming.Generation > local.Generation:
			// Treat as a fresh incarnation of a previously known member:
			// generation supersedes heartbeat outright.
			local.Addr = incoming.Addr
			local.Generation = incoming.Generation
			local.Heartbeat = incoming.Heartbeat
			local.LocalTimestamp = m.heartbeat
		case incoming.Generation == local.Generation && incoming.Heartbeat > local.Heartbeat:
			local.Heartbeat = incoming.Heartbeat
			local.LocalTimestamp = m.heartbeat
		}
		// incoming.Generation < local.Generation, or an equal-or-stale
		// heartbeat within the same generation: stale gossip, ignored.
		// This is what keeps a departed member from being resurrected by
		// a late-arriving stale message.
		return
	}

	// Not present locally: first observation.
	m.list = append(m.list, MemberEntry{
		Addr:           incoming.Addr,
		Heartbeat:      incoming.Heartbeat,
		Generation:     incoming.Generation,
		LocalTimestamp: m.heartbeat,
	})
	m.logger.LogNodeAdd(m.self, incoming.Addr)
}

func toWire(list []MemberEntry) []wire.MemberEntryWire {
	out := make([]wire.MemberEntryWire, len(list))
	for i, e := range list {
		out[i] = wire.MemberEntryWire{
			Addr:           e.Addr,
			Heartbeat:      uint32(e.Heartbeat),
			LocalTimestamp: uint32(e.LocalTimestamp),
			Generation:     uint16(e.Generation),
		}
	}
	return out
}

func fromWire(list []wire.MemberEntryWire) []MemberEntry {
	out := make([]MemberEntry, len(list))
	for i, e := range list {
		out[i] = MemberEntry{
			Addr:           e.Addr,
			Heartbeat:      uint64(e.Heartbeat),
			LocalTimestamp: uint64(e.LocalTimestamp),
			Generation:     uint64(e.Generation),
		}
	}
	return out
}
