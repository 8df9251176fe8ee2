// Package network is the concrete implementation of spec section 6's
// "network collaborator": something that can send(from, to, bytes) and
// that a node's recv_loop drains into its inbound queue. Two
// implementations are provided — Emulator, a deterministic in-memory bus
// used by the tick-driven simulation and every test, and HTTPTransport, an
// additive real-process transport grounded on the teacher's
// replication.Replicator HTTP POST pattern, used only by cmd/meshkv when
// running as a real multi-process deployment.
package network

import (
	"math/rand"

	"meshkv/internal/meshaddr"
)

// Frame is one delivered message: the sender address and its raw bytes.
type Frame struct {
	From meshaddr.Address
	Data []byte
}

// Sender is the fire-and-forget send half of the network collaborator.
// Send may silently drop; it never blocks and never returns a delivery
// error, matching spec section 6.
type Sender interface {
	Send(from, to meshaddr.Address, data []byte)
}

// Emulator is an in-process, in-memory message bus connecting
// Address-keyed inboxes. Delivery is deterministic per Drain call: a
// message handed to Send becomes visible to the destination's next Drain,
// unless it is dropped. Messages addressed to the same destination from
// the same source arrive in send order (spec section 5's FIFO-within-a-
// node guarantee); no ordering is promised across different sources.
//
// Grounded on mcastellin-golang-mastery/gossip's channel-based serveLoop,
// adapted from real goroutine-per-connection TCP delivery to synchronous,
// tick-driven delivery: there is no concurrency here by design, matching
// spec section 5's single-threaded cooperative scheduling model.
type Emulator struct {
	inboxes map[meshaddr.Address][]Frame
	rng     *rand.Rand

	// DropRate is the fraction, in [0,1], of sent messages silently
	// dropped rather than enqueued; 1 drops every message. Zero by default (reliable delivery),
	// set higher to exercise spec section 5's "network may drop, reorder,
	// and deliver duplicates" tolerance requirements.
	DropRate float64
	// DuplicateRate is the fraction of delivered messages additionally
	// enqueued a second time, exercising idempotent STABILIZE writes and
	// REPLY-after-close tolerance (spec section 7).
	DuplicateRate float64
}

// NewEmulator creates an Emulator with reliable (no drop, no duplicate)
// delivery. Seed controls the emulator's own randomness (drop/duplicate
// decisions and, indirectly via callers, nothing else) so simulation runs
// are reproducible.
func NewEmulator(seed int64) *Emulator {
	return &Emulator{
		inboxes: make(map[meshaddr.Address][]Frame),
		rng:     rand.New(rand.NewSource(seed)),
	}
}

// Send enqueues data for delivery to to's inbox, subject to DropRate and
// DuplicateRate.
func (e *Emulator) Send(from, to meshaddr.Address, data []byte) {
	if e.DropRate > 0 && e.rng.Float64() < e.DropRate {
		return
	}
	frame := Frame{From: from, Data: data}
	e.inboxes[to] = append(e.inboxes[to], frame)
	if e.DuplicateRate > 0 && e.rng.Float64() < e.DuplicateRate {
		e.inboxes[to] = append(e.inboxes[to], frame)
	}
}

// Drain removes and returns every frame currently queued for addr, in
// FIFO order. This is the concrete form of spec section 6's recv_loop.
func (e *Emulator) Drain(addr meshaddr.Address) []Frame {
	frames := e.inboxes[addr]
	if len(frames) == 0 {
		return nil
	}
	delete(e.inboxes, addr)
	return frames
}

// Pending reports how many frames are currently queued for addr, used by
// tests asserting "no messages sent" scenarios (spec section 8, scenario 1).
func (e *Emulator) Pending(addr meshaddr.Address) int {
	return len(e.inboxes[addr])
}
