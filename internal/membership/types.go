package membership

import "meshkv/internal/meshaddr"

// State is this node's position in the membership state machine of spec
// section 4.1: UNINIT -> INITED -> JOINING -> IN_GROUP -> FAILED.
type State int

const (
	Uninit State = iota
	Inited
	Joining
	InGroup
	Failed
)

func (s State) String() string {
	switch s {
	case Uninit:
		return "UNINIT"
	case Inited:
		return "INITED"
	case Joining:
		return "JOINING"
	case InGroup:
		return "IN_GROUP"
	case Failed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// MemberEntry is one row of a node's membership view, per spec section 3:
// heartbeat is the last heartbeat value observed for that member;
// LocalTimestamp is this node's own heartbeat at which that observation
// arrived, used as a freshness clock independent of peer clocks.
//
// Generation is an enrichment on top of spec.md (grounded on
// mcastellin-golang-mastery/gossip's HeartBeatState.Generation): a
// per-process restart epoch that lets a node distinguish a peer's fresh
// restart (heartbeat reset to near zero) from stale gossip about a peer
// that's actually still running with a high heartbeat. It is compared
// before heartbeat in Merge and otherwise plays no role in spec.md's core
// algorithms.
type MemberEntry struct {
	Addr           meshaddr.Address
	Heartbeat      uint64
	LocalTimestamp uint64
	Generation     uint64
}
