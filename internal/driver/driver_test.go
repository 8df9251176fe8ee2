package driver

import (
	"math/rand"
	"testing"

	"meshkv/internal/eventlog"
	"meshkv/internal/membership"
	"meshkv/internal/meshaddr"
	"meshkv/internal/network"
	"meshkv/internal/node"
	"meshkv/internal/store"
)

func addr(n byte) meshaddr.Address {
	return meshaddr.New([4]byte{0, 0, 0, n}, 9000+uint16(n))
}

// TestFiveNodeGroupConvergesAndServesCreate is an end-to-end smoke test of
// the full stack wired through Driver: five nodes join a seed, converge
// membership, and complete a quorum CREATE.
func TestFiveNodeGroupConvergesAndServesCreate(t *testing.T) {
	net := network.NewEmulator(3)
	d := New(net)

	seed := addr(1)
	var nodes []*node.Node
	for i := byte(1); i <= 5; i++ {
		n := node.New(addr(i), 1, eventlog.NewRecorder(), net, store.NewMemory(), rand.New(rand.NewSource(int64(i))))
		d.Add(n)
		nodes = append(nodes, n)
	}
	for _, n := range nodes {
		n.Start(seed)
	}

	d.Run(40)

	for _, n := range nodes {
		if n.Membership().State() != membership.InGroup {
			t.Fatalf("node %v failed to converge, state=%v", n.Self, n.Membership().State())
		}
		if len(n.Membership().Members()) != 5 {
			t.Fatalf("node %v sees %d members, want 5", n.Self, len(n.Membership().Members()))
		}
	}

	n1, _ := d.Node(addr(1))
	n1.ClientCreate("k", "v")
	d.Run(10)

	if n1.Coordinator().Open() != 0 {
		t.Fatalf("expected CREATE to resolve, Open()=%d", n1.Coordinator().Open())
	}
}

// TestFailedNodeIsEvictedByAllLiveNodes is spec section 8 scenario 4, at a
// smaller scale: a node stops ticking and is eventually evicted from every
// other node's membership list.
func TestFailedNodeIsEvictedByAllLiveNodes(t *testing.T) {
	net := network.NewEmulator(5)
	d := New(net)

	seed := addr(1)
	var nodes []*node.Node
	for i := byte(1); i <= 4; i++ {
		n := node.New(addr(i), 1, eventlog.NewRecorder(), net, store.NewMemory(), rand.New(rand.NewSource(int64(i)*7)))
		d.Add(n)
		nodes = append(nodes, n)
	}
	for _, n := range nodes {
		n.Start(seed)
	}
	d.Run(20)

	victim, _ := d.Node(addr(3))
	victim.Membership().Fail()

	d.Run(int(membership.DefaultTRemove) + 5)

	for _, n := range nodes {
		if n.Self == addr(3) {
			continue
		}
		for _, m := range n.Membership().Members() {
			if m == addr(3) {
				t.Fatalf("node %v still lists failed node 3 after T_REMOVE ticks", n.Self)
			}
		}
	}
}
