// Package kv implements L3, the coordinator and server halves of the
// replicated key-value store described in spec sections 4.3 and 4.4.
//
// Grounded on original_source/assignment2/mp2/MP2Node.cpp's clientCreate,
// clientRead, clientDelete, handleReply, and handleReadReply for the ack-
// counting and value-tally algorithms (clientUpdate and the UPDATE branch
// of the server handler are left unimplemented stubs in that source; this
// package completes them using the same shape as clientCreate and
// handleReply). The coordinator-table-as-owned-map design follows spec
// section 9 directly.
package kv

import (
	"meshkv/internal/eventlog"
	"meshkv/internal/meshaddr"
	"meshkv/internal/network"
	"meshkv/internal/ring"
	"meshkv/internal/store"
	"meshkv/internal/wire"
)

// DefaultTTxn is T_TXN from spec section 6.
const DefaultTTxn = 25

// Coordinator is L3's client-facing half: it issues CREATE/READ/UPDATE/
// DELETE on behalf of a local caller, tracks quorum via the transaction
// table, and resolves each transaction from REPLY/READREPLY traffic or
// from timeout.
type Coordinator struct {
	self   meshaddr.Address
	sender network.Sender
	logger eventlog.Logger

	nextTID int
	now     uint64
	tTxn    uint64

	txns     map[int]*TransactionRecord
	resolved map[int]Outcome
}

// Outcome is a closed transaction's final result, retained after the
// TransactionRecord itself is erased so that a caller (the API layer) can
// later ask "how did tid N resolve?" without needing to hold the answer
// itself across the async gap between issuing a client call and its
// quorum resolving.
type Outcome struct {
	Success bool
	Value   string // populated only for a successful READ
}

// NewCoordinator creates a Coordinator for self. Transaction ids start at
// 1 and increase monotonically for the lifetime of this Coordinator (each
// Coordinator keeps its own counter), per spec
// section 4.3's "process-wide counter is acceptable" guidance.
func NewCoordinator(self meshaddr.Address, sender network.Sender, logger eventlog.Logger) *Coordinator {
	return &Coordinator{
		self:     self,
		sender:   sender,
		logger:   logger,
		nextTID:  1,
		tTxn:     DefaultTTxn,
		txns:     make(map[int]*TransactionRecord),
		resolved: make(map[int]Outcome),
	}
}

// SetTTxn overrides T_TXN, per spec section 6's configurable constants.
func (c *Coordinator) SetTTxn(t uint64) { c.tTxn = t }

// Open reports how many transactions are currently outstanding, used by
// tests and by the API layer's status view.
func (c *Coordinator) Open() int { return len(c.txns) }

// Result reports how tid resolved, if it has. Used by the API layer to
// poll a previously-issued client call for its outcome.
func (c *Coordinator) Result(tid int) (Outcome, bool) {
	o, ok := c.resolved[tid]
	return o, ok
}

func (c *Coordinator) allocTID() int {
	tid := c.nextTID
	c.nextTID++
	return tid
}

var replicaRoles = [3]store.Role{store.Primary, store.Secondary, store.Tertiary}

// Tick advances the coordinator's own clock by one and expires any
// transaction older than T_TXN, per spec section 4.3. A write that already
// reached quorum and is only waiting for its third reply is dropped
// without a second log event.
func (c *Coordinator) Tick() {
	c.now++
	for tid, rec := range c.txns {
		if c.now-rec.CreatedAt > c.tTxn {
			if _, done := c.resolved[tid]; done {
				delete(c.txns, tid)
				continue
			}
			c.failAndErase(tid, rec)
		}
	}
}

func (c *Coordinator) failAndErase(tid int, rec *TransactionRecord) {
	switch rec.Op {
	case OpCreate:
		c.logger.LogCreateFail(c.self, true, tid, rec.Key)
	case OpRead:
		c.logger.LogReadFail(c.self, true, tid, rec.Key)
	case OpUpdate:
		c.logger.LogUpdateFail(c.self, true, tid, rec.Key)
	case OpDelete:
		c.logger.LogDeleteFail(c.self, true, tid, rec.Key)
	}
	c.resolved[tid] = Outcome{Success: false}
	delete(c.txns, tid)
}

// ClientCreate implements spec section 4.3's clientCreate(k, v). If the
// current ring has fewer than REPLICATION members, findNodes returns no
// replicas and no messages are sent — the transaction record is still
// created and will time out at T_TXN, per the seed-only-CREATE scenario in
// spec section 8.
func (c *Coordinator) ClientCreate(r ring.Ring, key, value string) int {
	tid := c.allocTID()
	c.txns[tid] = &TransactionRecord{Op: OpCreate, OutstandingAcks: 3, Key: key, Value: value, CreatedAt: c.now, Tally: map[string]int{}}

	for i, addr := range ring.FindNodes(r, key) {
		c.sender.Send(c.self, addr, wire.EncodeCreate(wire.CreateOrUpdate{
			TID: tid, Key: key, Value: value, Coord: c.self, Role: replicaRoles[i],
		}))
	}
	return tid
}

// ClientUpdate implements spec section 4.3's clientUpdate(k, v). The
// original coursework this is grounded on left clientUpdate unimplemented;
// this follows ClientCreate's shape exactly, since spec section 4.4 routes
// UPDATE and CREATE through the same replica-tagging rule.
func (c *Coordinator) ClientUpdate(r ring.Ring, key, value string) int {
	tid := c.allocTID()
	c.txns[tid] = &TransactionRecord{Op: OpUpdate, OutstandingAcks: 3, Key: key, Value: value, CreatedAt: c.now, Tally: map[string]int{}}

	for i, addr := range ring.FindNodes(r, key) {
		c.sender.Send(c.self, addr, wire.EncodeUpdate(wire.CreateOrUpdate{
			TID: tid, Key: key, Value: value, Coord: c.self, Role: replicaRoles[i],
		}))
	}
	return tid
}

// ClientRead implements spec section 4.3's clientRead(k).
func (c *Coordinator) ClientRead(r ring.Ring, key string) int {
	tid := c.allocTID()
	c.txns[tid] = &TransactionRecord{Op: OpRead, OutstandingAcks: 3, Key: key, CreatedAt: c.now, Tally: map[string]int{}}

	for _, addr := range ring.FindNodes(r, key) {
		c.sender.Send(c.self, addr, wire.EncodeRead(wire.ReadOrDelete{TID: tid, Key: key, Coord: c.self}))
	}
	return tid
}

// ClientDelete implements spec section 4.3's clientDelete(k).
func (c *Coordinator) ClientDelete(r ring.Ring, key string) int {
	tid := c.allocTID()
	c.txns[tid] = &TransactionRecord{Op: OpDelete, OutstandingAcks: 3, Key: key, CreatedAt: c.now, Tally: map[string]int{}}

	for _, addr := range ring.FindNodes(r, key) {
		c.sender.Send(c.self, addr, wire.EncodeDelete(wire.ReadOrDelete{TID: tid, Key: key, Coord: c.self}))
	}
	return tid
}

// Handle dispatches an inbound REPLY or READREPLY by wire kind. The caller
// (internal/node) routes every other kind to the Server half.
func (c *Coordinator) Handle(data []byte) {
	kind, err := wire.PeekKind(data)
	if err != nil {
		return
	}
	switch kind {
	case wire.KindReply:
		c.handleReply(data)
	case wire.KindReadReply:
		c.handleReadReply(data)
	}
}

// handleReply implements spec section 4.3's REPLY handling for mutating
// ops. An explicit failure is logged and erased immediately. A success
// that brings outstanding acks to 1 (the second reply) is logged as the
// transaction's success; the record is kept alive afterward only to absorb
// the still-outstanding third reply, which is then erased silently — this
// is the documented "second ack closes the transaction, a third late ack
// is silently ignored" behavior spec section 9 calls out.
func (c *Coordinator) handleReply(data []byte) {
	reply, err := wire.DecodeReply(data)
	if err != nil {
		return
	}
	rec, ok := c.txns[reply.TID]
	if !ok {
		return // duplicate or post-closure reply, recovered silently
	}
	if _, done := c.resolved[reply.TID]; done {
		// Quorum was already decided on the second ack: this is the late
		// third reply, ignored whatever its outcome.
		delete(c.txns, reply.TID)
		return
	}

	if !reply.Success {
		c.logFail(reply.TID, rec)
		c.resolved[reply.TID] = Outcome{Success: false}
		delete(c.txns, reply.TID)
		return
	}

	rec.OutstandingAcks--
	if rec.OutstandingAcks == 1 {
		c.logSuccess(reply.TID, rec)
		c.resolved[reply.TID] = Outcome{Success: true, Value: rec.Value}
	}
	if rec.OutstandingAcks <= 0 {
		delete(c.txns, reply.TID)
	}
}

func (c *Coordinator) logSuccess(tid int, rec *TransactionRecord) {
	switch rec.Op {
	case OpCreate:
		c.logger.LogCreateSuccess(c.self, true, tid, rec.Key, rec.Value)
	case OpUpdate:
		c.logger.LogUpdateSuccess(c.self, true, tid, rec.Key, rec.Value)
	case OpDelete:
		c.logger.LogDeleteSuccess(c.self, true, tid, rec.Key)
	}
}

func (c *Coordinator) logFail(tid int, rec *TransactionRecord) {
	switch rec.Op {
	case OpCreate:
		c.logger.LogCreateFail(c.self, true, tid, rec.Key)
	case OpUpdate:
		c.logger.LogUpdateFail(c.self, true, tid, rec.Key)
	case OpDelete:
		c.logger.LogDeleteFail(c.self, true, tid, rec.Key)
	}
}

// handleReadReply implements spec section 4.3's READREPLY handling: values
// are tallied as they arrive (the empty string is a valid observed value
// meaning "key absent"). Quorum is declared as soon as two replies agree;
// otherwise the third reply's tally decides by majority, and a three-way
// disagreement is a read failure.
func (c *Coordinator) handleReadReply(data []byte) {
	reply, err := wire.DecodeReadReply(data)
	if err != nil {
		return
	}
	rec, ok := c.txns[reply.TID]
	if !ok {
		return
	}

	rec.OutstandingAcks--
	rec.Tally[reply.Value]++

	if rec.OutstandingAcks == 1 {
		if len(rec.Tally) == 1 {
			c.resolveRead(reply.TID, rec, reply.Value)
			delete(c.txns, reply.TID)
		}
		return
	}
	if rec.OutstandingAcks <= 0 {
		winner, found := "", false
		for v, n := range rec.Tally {
			if n >= 2 {
				winner, found = v, true
			}
		}
		if found {
			c.resolveRead(reply.TID, rec, winner)
		} else {
			c.logger.LogReadFail(c.self, true, reply.TID, rec.Key)
			c.resolved[reply.TID] = Outcome{Success: false}
		}
		delete(c.txns, reply.TID)
	}
}

func (c *Coordinator) resolveRead(tid int, rec *TransactionRecord, value string) {
	if value == "" {
		c.logger.LogReadFail(c.self, true, tid, rec.Key)
		c.resolved[tid] = Outcome{Success: false}
		return
	}
	c.logger.LogReadSuccess(c.self, true, tid, rec.Key, value)
	c.resolved[tid] = Outcome{Success: true, Value: value}
}
