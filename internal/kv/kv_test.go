package kv

import (
	"testing"

	"meshkv/internal/eventlog"
	"meshkv/internal/meshaddr"
	"meshkv/internal/network"
	"meshkv/internal/ring"
	"meshkv/internal/store"
	"meshkv/internal/wire"
)

func addr(n byte) meshaddr.Address {
	return meshaddr.New([4]byte{0, 0, 0, n}, 9000+uint16(n))
}

// TestSeedOnlyCreateTimesOut is spec section 8 scenario 1: a one-node
// group has no valid replica set, so clientCreate sends nothing and the
// transaction must still time out at T_TXN with a logged failure.
func TestSeedOnlyCreateTimesOut(t *testing.T) {
	net := network.NewEmulator(1)
	rec := eventlog.NewRecorder()
	c := NewCoordinator(addr(1), net, rec)
	c.SetTTxn(25)

	r := ring.Build([]meshaddr.Address{addr(1)})
	tid := c.ClientCreate(r, "k", "v")

	if net.Pending(addr(1)) != 0 {
		t.Fatalf("expected no messages sent with a 1-node ring")
	}

	for i := 0; i < 25; i++ {
		c.Tick()
	}
	if c.Open() != 1 {
		t.Fatalf("transaction should still be open at tick 25, Open()=%d", c.Open())
	}
	c.Tick()
	if c.Open() != 0 {
		t.Fatalf("transaction should be expired after T_TXN, Open()=%d", c.Open())
	}
	if rec.CountMatching("create_fail", tid) != 1 {
		t.Fatalf("expected exactly one create_fail for tid %d, got records %+v", tid, rec.Records)
	}
}

// TestThreeNodeQuorumWrite is spec section 8 scenario 2: three CREATE
// messages go out, three REPLYs come back, and success is logged once
// after the second REPLY.
func TestThreeNodeQuorumWrite(t *testing.T) {
	net := network.NewEmulator(1)
	rec := eventlog.NewRecorder()
	c := NewCoordinator(addr(1), net, rec)

	members := []meshaddr.Address{addr(1), addr(2), addr(3)}
	r := ring.Build(members)

	tid := c.ClientCreate(r, "x", "1")

	replicas := ring.FindNodes(r, "x")
	if len(replicas) != 3 {
		t.Fatalf("expected 3 replicas, got %d", len(replicas))
	}
	for _, rep := range replicas {
		if net.Pending(rep) != 1 {
			t.Fatalf("expected one CREATE queued at %v, got %d", rep, net.Pending(rep))
		}
		frames := net.Drain(rep)
		kind, err := wire.PeekKind(frames[0].Data)
		if err != nil || kind != wire.KindCreate {
			t.Fatalf("expected CREATE frame at %v, got kind=%v err=%v", rep, kind, err)
		}
	}

	c.handleReply(wire.EncodeReply(wire.Reply{TID: tid, Success: true}))
	if rec.CountMatching("create_success", tid) != 0 {
		t.Fatalf("create_success logged too early, after first reply")
	}

	c.handleReply(wire.EncodeReply(wire.Reply{TID: tid, Success: true}))
	if rec.CountMatching("create_success", tid) != 1 {
		t.Fatalf("expected create_success after second reply")
	}

	c.handleReply(wire.EncodeReply(wire.Reply{TID: tid, Success: true}))
	if rec.CountMatching("create_success", tid) != 1 {
		t.Fatalf("third reply must not log create_success again")
	}
	if c.Open() != 0 {
		t.Fatalf("transaction should be closed after third reply")
	}
}

// TestReadWithDivergentReplicas is spec section 8 scenario 3: replicas
// disagree (A, A, B); quorum resolves to "A" after the third reply.
func TestReadWithDivergentReplicas(t *testing.T) {
	net := network.NewEmulator(1)
	rec := eventlog.NewRecorder()
	c := NewCoordinator(addr(1), net, rec)

	r := ring.Build([]meshaddr.Address{addr(1), addr(2), addr(3)})
	tid := c.ClientRead(r, "x")

	// Two distinct values arrive first (A, B) so quorum can't resolve yet;
	// the third reply (A again) breaks the tie 2-1 in A's favor.
	c.handleReadReply(wire.EncodeReadReply(wire.ReadReply{TID: tid, Success: true, Value: "A"}))
	if rec.CountMatching("read_success", tid) != 0 {
		t.Fatalf("read resolved too early after first reply")
	}

	c.handleReadReply(wire.EncodeReadReply(wire.ReadReply{TID: tid, Success: true, Value: "B"}))
	if rec.CountMatching("read_success", tid) != 0 {
		t.Fatalf("two distinct replies must not resolve quorum yet")
	}

	c.handleReadReply(wire.EncodeReadReply(wire.ReadReply{TID: tid, Success: true, Value: "A"}))
	if rec.CountMatching("read_success", tid) != 1 {
		t.Fatalf("expected read_success after third reply, records=%+v", rec.Records)
	}
	if rec.Records[len(rec.Records)-1].Value != "A" {
		t.Fatalf("expected quorum winner A, got %q", rec.Records[len(rec.Records)-1].Value)
	}
}

// TestReadQuorumResolvesEarlyWhenFirstTwoAgree covers the "after two
// replies, exactly one distinct value observed" branch of spec section
// 4.3's READREPLY handling.
func TestReadQuorumResolvesEarlyWhenFirstTwoAgree(t *testing.T) {
	net := network.NewEmulator(1)
	rec := eventlog.NewRecorder()
	c := NewCoordinator(addr(1), net, rec)

	r := ring.Build([]meshaddr.Address{addr(1), addr(2), addr(3)})
	tid := c.ClientRead(r, "x")

	c.handleReadReply(wire.EncodeReadReply(wire.ReadReply{TID: tid, Success: true, Value: "A"}))
	c.handleReadReply(wire.EncodeReadReply(wire.ReadReply{TID: tid, Success: true, Value: "A"}))

	if rec.CountMatching("read_success", tid) != 1 {
		t.Fatalf("expected early quorum resolution after two matching replies")
	}
	if c.Open() != 0 {
		t.Fatalf("transaction should be closed once quorum is reached")
	}

	// A stray third reply after closure must be ignored, not double-log.
	c.handleReadReply(wire.EncodeReadReply(wire.ReadReply{TID: tid, Success: true, Value: "B"}))
	if rec.CountMatching("read_success", tid) != 1 {
		t.Fatalf("late reply after closure must not re-trigger logging")
	}
}

// TestReadAllThreeDistinctIsFailure covers a three-way disagreement.
func TestReadAllThreeDistinctIsFailure(t *testing.T) {
	net := network.NewEmulator(1)
	rec := eventlog.NewRecorder()
	c := NewCoordinator(addr(1), net, rec)

	r := ring.Build([]meshaddr.Address{addr(1), addr(2), addr(3)})
	tid := c.ClientRead(r, "x")

	c.handleReadReply(wire.EncodeReadReply(wire.ReadReply{TID: tid, Success: true, Value: "A"}))
	c.handleReadReply(wire.EncodeReadReply(wire.ReadReply{TID: tid, Success: true, Value: "B"}))
	c.handleReadReply(wire.EncodeReadReply(wire.ReadReply{TID: tid, Success: true, Value: "C"}))

	if rec.CountMatching("read_fail", tid) != 1 {
		t.Fatalf("expected read_fail on three-way disagreement, records=%+v", rec.Records)
	}
}

// TestExplicitReplyFailureErasesImmediately covers spec section 4.3's "on
// explicit failure from a replica, log failure once and erase" rule.
func TestExplicitReplyFailureErasesImmediately(t *testing.T) {
	net := network.NewEmulator(1)
	rec := eventlog.NewRecorder()
	c := NewCoordinator(addr(1), net, rec)

	r := ring.Build([]meshaddr.Address{addr(1), addr(2), addr(3)})
	tid := c.ClientUpdate(r, "x", "v2")

	c.handleReply(wire.EncodeReply(wire.Reply{TID: tid, Success: false}))

	if rec.CountMatching("update_fail", tid) != 1 {
		t.Fatalf("expected update_fail logged on explicit replica failure")
	}
	if c.Open() != 0 {
		t.Fatalf("transaction should be erased immediately on explicit failure")
	}
}

// TestServerUpdateOnMissingKeyIsSilent covers spec section 4.4's UPDATE
// handler: on absence it logs locally but sends no REPLY at all.
func TestServerUpdateOnMissingKeyIsSilent(t *testing.T) {
	net := network.NewEmulator(1)
	rec := eventlog.NewRecorder()
	s := NewServer(addr(2), store.NewMemory(), net, rec)

	s.Handle(wire.EncodeUpdate(wire.CreateOrUpdate{TID: 7, Key: "missing", Value: "v", Coord: addr(1), Role: store.Primary}))

	if net.Pending(addr(1)) != 0 {
		t.Fatalf("expected no REPLY sent for UPDATE of a missing key")
	}
	if rec.CountMatching("update_fail", 7) != 1 {
		t.Fatalf("expected update_fail logged locally, records=%+v", rec.Records)
	}
}

// TestServerCreateThenReadRoundTrip exercises the server's CREATE and READ
// handlers end to end against a real store.
func TestServerCreateThenReadRoundTrip(t *testing.T) {
	net := network.NewEmulator(1)
	rec := eventlog.NewRecorder()
	s := NewServer(addr(2), store.NewMemory(), net, rec)

	s.Handle(wire.EncodeCreate(wire.CreateOrUpdate{TID: 1, Key: "k", Value: "v", Coord: addr(1), Role: store.Primary}))
	frames := net.Drain(addr(1))
	if len(frames) != 1 {
		t.Fatalf("expected one REPLY after CREATE")
	}
	reply, err := wire.DecodeReply(frames[0].Data)
	if err != nil || !reply.Success {
		t.Fatalf("expected successful REPLY, got %+v err=%v", reply, err)
	}

	s.Handle(wire.EncodeRead(wire.ReadOrDelete{TID: 2, Key: "k", Coord: addr(1)}))
	frames = net.Drain(addr(1))
	if len(frames) != 1 {
		t.Fatalf("expected one READREPLY after READ")
	}
	rr, err := wire.DecodeReadReply(frames[0].Data)
	if err != nil || !rr.Success || rr.Value != "v" {
		t.Fatalf("expected successful READREPLY with value v, got %+v err=%v", rr, err)
	}
}

// TestServerStabilizeWritesUnconditionallyWithNoReply covers spec section
// 4.4's STABILIZE handler.
func TestServerStabilizeWritesUnconditionallyWithNoReply(t *testing.T) {
	net := network.NewEmulator(1)
	rec := eventlog.NewRecorder()
	st := store.NewMemory()
	s := NewServer(addr(2), st, net, rec)

	s.Handle(wire.EncodeStabilize(wire.Stabilize{Key: "k", Value: "v", Role: store.Secondary}))

	if net.Pending(addr(1)) != 0 {
		t.Fatalf("STABILIZE must not trigger any reply")
	}
	entry, ok := st.Read("k")
	if !ok || entry.Value != "v" || entry.ReplicaRole != store.Secondary {
		t.Fatalf("expected k=v with SECONDARY role after STABILIZE, got %+v ok=%v", entry, ok)
	}
}
