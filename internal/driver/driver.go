// Package driver implements the process-level driver collaborator
// described in spec section 6: something that invokes recv_loop() then
// tick() on every node once per simulated time step. It is itself
// external to the algorithmic core per spec section 1, but is implemented
// here as the concrete loop the simulation and cmd/meshkv both run.
//
// Grounded on AryanBagade-dynamoDB's cmd/server/main.go request loop shape,
// adapted from an HTTP accept loop to a synchronous, deterministic tick
// loop driving an in-memory network.Emulator.
package driver

import (
	"sort"

	"meshkv/internal/membership"
	"meshkv/internal/meshaddr"
	"meshkv/internal/network"
	"meshkv/internal/node"
)

// Driver ticks a fixed set of nodes sharing one network.Emulator.
type Driver struct {
	net   *network.Emulator
	nodes map[meshaddr.Address]*node.Node
	order []meshaddr.Address // stable iteration order, for reproducible runs
	tick  uint64
}

// New creates a Driver over net. Nodes are added with Add before the first
// Tick.
func New(net *network.Emulator) *Driver {
	return &Driver{net: net, nodes: make(map[meshaddr.Address]*node.Node)}
}

// Add registers n with the driver. Call before Run/Tick; the per-tick
// iteration order is ascending address bytes, whatever the order of
// registration.
func (d *Driver) Add(n *node.Node) {
	d.nodes[n.Self] = n
	d.order = append(d.order, n.Self)
	sort.Slice(d.order, func(i, j int) bool {
		return string(d.order[i][:]) < string(d.order[j][:])
	})
}

// Node looks up a registered node by address.
func (d *Driver) Node(addr meshaddr.Address) (*node.Node, bool) {
	n, ok := d.nodes[addr]
	return n, ok
}

// Tick performs spec section 2's per-tick control flow for every
// registered node, in address order: drain the node's inbound queue and
// dispatch each frame by kind (recv_loop), then advance membership,
// recompute the ring, run stabilization, and expire transactions (tick).
// A FAILED node's queue is still drained, but its frames are discarded.
func (d *Driver) Tick() {
	d.tick++
	for _, addr := range d.order {
		n := d.nodes[addr]
		frames := d.net.Drain(addr)
		if n.Membership().State() == membership.Failed {
			continue
		}
		for _, frame := range frames {
			n.Handle(frame.From, frame.Data)
		}
	}
	for _, addr := range d.order {
		d.nodes[addr].Tick()
	}
}

// Run calls Tick n times.
func (d *Driver) Run(ticks int) {
	for i := 0; i < ticks; i++ {
		d.Tick()
	}
}

// TickCount reports how many ticks have elapsed.
func (d *Driver) TickCount() uint64 { return d.tick }
