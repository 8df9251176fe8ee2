// Package meshaddr defines the wire-level node address shared by every
// layer of the mesh: membership, the hash ring, and the KV coordinator.
package meshaddr

import (
	"encoding/hex"
	"fmt"
)

// Size is the byte width of an Address: a 4-byte node id followed by a
// 2-byte port, per spec section 3.
const Size = 6

// Address is a 6-byte opaque node identifier. Two addresses are equal iff
// all six bytes match.
type Address [Size]byte

// New builds an Address from a 4-byte node id and a port.
func New(id [4]byte, port uint16) Address {
	var a Address
	copy(a[0:4], id[:])
	a[4] = byte(port >> 8)
	a[5] = byte(port)
	return a
}

// ID returns the 4-byte node id component.
func (a Address) ID() [4]byte {
	var id [4]byte
	copy(id[:], a[0:4])
	return id
}

// Port returns the 2-byte port component.
func (a Address) Port() uint16 {
	return uint16(a[4])<<8 | uint16(a[5])
}

// IsZero reports whether this is the null address (all zero bytes).
func (a Address) IsZero() bool {
	return a == Address{}
}

// String renders the address as "id.id.id.id:port" for logs and tests.
func (a Address) String() string {
	id := a.ID()
	return fmt.Sprintf("%d.%d.%d.%d:%d", id[0], id[1], id[2], id[3], a.Port())
}

// Hex renders the address as a fixed-width hex string, used by
// network.HTTPTransport to carry the sender's address out of band of the
// wire frame body (the frame itself never names its own sender).
func (a Address) Hex() string {
	return hex.EncodeToString(a[:])
}

// ParseHex parses the format Hex produces.
func ParseHex(s string) (Address, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return Address{}, fmt.Errorf("meshaddr: invalid hex address %q: %w", s, err)
	}
	if len(b) != Size {
		return Address{}, fmt.Errorf("meshaddr: wrong address length %d, want %d", len(b), Size)
	}
	var a Address
	copy(a[:], b)
	return a, nil
}
