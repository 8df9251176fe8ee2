// Package wire implements the byte-level message framing described in
// spec section 6. Every message kind has one encode function and one
// decode function; decoding derives every field offset solely from the
// lengths declared in the frame itself and refuses to interpret a frame
// that is too short to hold what it claims to hold — the explicit fix for
// the "strcpy past keyLen" hazard spec section 9 calls out in the
// original source.
//
// Layout choices (widths are this implementation's choice; spec section 6
// only requires they be consistent across one deployment):
//
//	JOINREQ:   tag(1) addr(6) heartbeat(u64)                         = 15 bytes
//	JOINREP:   tag(1) count(u32) count*memberEntry(16)
//	GOSSIP:    tag(1) count(u32) count*memberEntry(16)
//	CREATE/UPDATE: tag(1) tid(u32) keyLen(u32) valLen(u32) coord(6) role(1), then key NUL value NUL
//	READ/DELETE:   tag(1) tid(u32) keyLen(u32) coord(6), then key NUL
//	REPLY:     tag(1) tid(u32) success(bool,1)
//	READREPLY: tag(1) tid(u32) success(bool,1), then value NUL
//	STABILIZE: tag(1) keyLen(u32) valLen(u32) role(1), then key NUL value NUL
//
// memberEntry is addr(6) heartbeat(u32) localTimestamp(u32) generation(u16)
// = 16 bytes; heartbeat and local_timestamp are carried in full precision
// in memory (see membership.MemberEntry) and truncated to 32 bits only on
// the wire, which is ample range for any heartbeat this simulator reaches.
//
// The JOINREQ layout resolves the off-by-one spec section 9 flags in the
// original source: the heartbeat field begins immediately at byte 7 (right
// after the 6-byte address), with no padding byte between them.
package wire

import (
	"encoding/binary"
	"fmt"

	"meshkv/internal/meshaddr"
	"meshkv/internal/store"
)

// Kind identifies a message's type. Message kinds are a closed tagged
// union dispatched by tag, not an inheritance hierarchy (spec section 9).
type Kind byte

const (
	KindJoinReq   Kind = 0
	KindJoinRep   Kind = 1
	KindGossip    Kind = 2
	KindCreate    Kind = 3
	KindRead      Kind = 4
	KindUpdate    Kind = 5
	KindDelete    Kind = 6
	KindReply     Kind = 7
	KindReadReply Kind = 8
	KindStabilize Kind = 10
)

// memberEntrySize is the fixed wire width of one gossip membership entry.
const memberEntrySize = 16

// MemberEntryWire is the wire-level projection of one membership record,
// exchanged in JOINREP and GOSSIP frames.
type MemberEntryWire struct {
	Addr           meshaddr.Address
	Heartbeat      uint32
	LocalTimestamp uint32
	Generation     uint16
}

func encodeMemberEntry(buf []byte, e MemberEntryWire) {
	copy(buf[0:6], e.Addr[:])
	binary.BigEndian.PutUint32(buf[6:10], e.Heartbeat)
	binary.BigEndian.PutUint32(buf[10:14], e.LocalTimestamp)
	binary.BigEndian.PutUint16(buf[14:16], e.Generation)
}

func decodeMemberEntry(buf []byte) MemberEntryWire {
	var e MemberEntryWire
	copy(e.Addr[:], buf[0:6])
	e.Heartbeat = binary.BigEndian.Uint32(buf[6:10])
	e.LocalTimestamp = binary.BigEndian.Uint32(buf[10:14])
	e.Generation = binary.BigEndian.Uint16(buf[14:16])
	return e
}

func errShort(kind string, need, have int) error {
	return fmt.Errorf("wire: truncated %s frame: need %d bytes, have %d", kind, need, have)
}

// --- JOINREQ ---

type JoinReq struct {
	Addr      meshaddr.Address
	Heartbeat uint64
}

func EncodeJoinReq(m JoinReq) []byte {
	buf := make([]byte, 1+6+8)
	buf[0] = byte(KindJoinReq)
	copy(buf[1:7], m.Addr[:])
	binary.BigEndian.PutUint64(buf[7:15], m.Heartbeat)
	return buf
}

func DecodeJoinReq(data []byte) (JoinReq, error) {
	if len(data) < 15 {
		return JoinReq{}, errShort("JOINREQ", 15, len(data))
	}
	var m JoinReq
	copy(m.Addr[:], data[1:7])
	m.Heartbeat = binary.BigEndian.Uint64(data[7:15])
	return m, nil
}

// --- JOINREP / GOSSIP share a layout ---

type MemberList struct {
	Entries []MemberEntryWire
}

func encodeMemberList(kind Kind, m MemberList) []byte {
	buf := make([]byte, 1+4+memberEntrySize*len(m.Entries))
	buf[0] = byte(kind)
	binary.BigEndian.PutUint32(buf[1:5], uint32(len(m.Entries)))
	off := 5
	for _, e := range m.Entries {
		encodeMemberEntry(buf[off:off+memberEntrySize], e)
		off += memberEntrySize
	}
	return buf
}

func decodeMemberList(kind string, data []byte) (MemberList, error) {
	if len(data) < 5 {
		return MemberList{}, errShort(kind, 5, len(data))
	}
	n := int(binary.BigEndian.Uint32(data[1:5]))
	need := 5 + n*memberEntrySize
	if len(data) < need {
		return MemberList{}, errShort(kind, need, len(data))
	}
	entries := make([]MemberEntryWire, n)
	off := 5
	for i := 0; i < n; i++ {
		entries[i] = decodeMemberEntry(data[off : off+memberEntrySize])
		off += memberEntrySize
	}
	return MemberList{Entries: entries}, nil
}

func EncodeJoinRep(m MemberList) []byte { return encodeMemberList(KindJoinRep, m) }
func DecodeJoinRep(data []byte) (MemberList, error) {
	return decodeMemberList("JOINREP", data)
}

func EncodeGossip(m MemberList) []byte { return encodeMemberList(KindGossip, m) }
func DecodeGossip(data []byte) (MemberList, error) {
	return decodeMemberList("GOSSIP", data)
}

// --- CREATE / UPDATE ---

type CreateOrUpdate struct {
	TID   int
	Key   string
	Value string
	Coord meshaddr.Address
	Role  store.Role
}

func encodeCreateOrUpdate(kind Kind, m CreateOrUpdate) []byte {
	key, val := []byte(m.Key), []byte(m.Value)
	buf := make([]byte, 1+4+4+4+6+1+len(key)+1+len(val)+1)
	buf[0] = byte(kind)
	binary.BigEndian.PutUint32(buf[1:5], uint32(m.TID))
	binary.BigEndian.PutUint32(buf[5:9], uint32(len(key)))
	binary.BigEndian.PutUint32(buf[9:13], uint32(len(val)))
	copy(buf[13:19], m.Coord[:])
	buf[19] = byte(m.Role)
	off := 20
	copy(buf[off:off+len(key)], key)
	off += len(key) + 1 // NUL
	copy(buf[off:off+len(val)], val)
	return buf
}

func decodeCreateOrUpdate(kind string, data []byte) (CreateOrUpdate, error) {
	const fixed = 20
	if len(data) < fixed {
		return CreateOrUpdate{}, errShort(kind, fixed, len(data))
	}
	tid := int(binary.BigEndian.Uint32(data[1:5]))
	keyLen := int(binary.BigEndian.Uint32(data[5:9]))
	valLen := int(binary.BigEndian.Uint32(data[9:13]))
	var coord meshaddr.Address
	copy(coord[:], data[13:19])
	role := store.Role(data[19])

	need := fixed + keyLen + 1 + valLen
	if len(data) < need {
		return CreateOrUpdate{}, errShort(kind, need, len(data))
	}
	key := string(data[fixed : fixed+keyLen])
	val := string(data[fixed+keyLen+1 : fixed+keyLen+1+valLen])
	return CreateOrUpdate{TID: tid, Key: key, Value: val, Coord: coord, Role: role}, nil
}

func EncodeCreate(m CreateOrUpdate) []byte { return encodeCreateOrUpdate(KindCreate, m) }
func DecodeCreate(data []byte) (CreateOrUpdate, error) {
	return decodeCreateOrUpdate("CREATE", data)
}

func EncodeUpdate(m CreateOrUpdate) []byte { return encodeCreateOrUpdate(KindUpdate, m) }
func DecodeUpdate(data []byte) (CreateOrUpdate, error) {
	return decodeCreateOrUpdate("UPDATE", data)
}

// --- READ / DELETE ---

type ReadOrDelete struct {
	TID   int
	Key   string
	Coord meshaddr.Address
}

func encodeReadOrDelete(kind Kind, m ReadOrDelete) []byte {
	key := []byte(m.Key)
	buf := make([]byte, 1+4+4+6+len(key)+1)
	buf[0] = byte(kind)
	binary.BigEndian.PutUint32(buf[1:5], uint32(m.TID))
	binary.BigEndian.PutUint32(buf[5:9], uint32(len(key)))
	copy(buf[9:15], m.Coord[:])
	copy(buf[15:15+len(key)], key)
	return buf
}

func decodeReadOrDelete(kind string, data []byte) (ReadOrDelete, error) {
	const fixed = 15
	if len(data) < fixed {
		return ReadOrDelete{}, errShort(kind, fixed, len(data))
	}
	tid := int(binary.BigEndian.Uint32(data[1:5]))
	keyLen := int(binary.BigEndian.Uint32(data[5:9]))
	var coord meshaddr.Address
	copy(coord[:], data[9:15])

	need := fixed + keyLen
	if len(data) < need {
		return ReadOrDelete{}, errShort(kind, need, len(data))
	}
	key := string(data[fixed : fixed+keyLen])
	return ReadOrDelete{TID: tid, Key: key, Coord: coord}, nil
}

func EncodeRead(m ReadOrDelete) []byte { return encodeReadOrDelete(KindRead, m) }
func DecodeRead(data []byte) (ReadOrDelete, error) {
	return decodeReadOrDelete("READ", data)
}

func EncodeDelete(m ReadOrDelete) []byte { return encodeReadOrDelete(KindDelete, m) }
func DecodeDelete(data []byte) (ReadOrDelete, error) {
	return decodeReadOrDelete("DELETE", data)
}

// --- REPLY ---

type Reply struct {
	TID     int
	Success bool
}

func EncodeReply(m Reply) []byte {
	buf := make([]byte, 1+4+1)
	buf[0] = byte(KindReply)
	binary.BigEndian.PutUint32(buf[1:5], uint32(m.TID))
	if m.Success {
		buf[5] = 1
	}
	return buf
}

func DecodeReply(data []byte) (Reply, error) {
	if len(data) < 6 {
		return Reply{}, errShort("REPLY", 6, len(data))
	}
	return Reply{
		TID:     int(binary.BigEndian.Uint32(data[1:5])),
		Success: data[5] != 0,
	}, nil
}

// --- READREPLY ---

type ReadReply struct {
	TID     int
	Success bool
	Value   string
}

func EncodeReadReply(m ReadReply) []byte {
	val := []byte(m.Value)
	buf := make([]byte, 1+4+1+len(val)+1)
	buf[0] = byte(KindReadReply)
	binary.BigEndian.PutUint32(buf[1:5], uint32(m.TID))
	if m.Success {
		buf[5] = 1
	}
	copy(buf[6:6+len(val)], val)
	return buf
}

func DecodeReadReply(data []byte) (ReadReply, error) {
	const fixed = 6
	if len(data) < fixed {
		return ReadReply{}, errShort("READREPLY", fixed, len(data))
	}
	tid := int(binary.BigEndian.Uint32(data[1:5]))
	success := data[5] != 0
	value := data[fixed:]
	if n := len(value); n > 0 && value[n-1] == 0 {
		value = value[:n-1] // drop the terminating NUL EncodeReadReply writes
	}
	return ReadReply{TID: tid, Success: success, Value: string(value)}, nil
}

// --- STABILIZE ---

type Stabilize struct {
	Key   string
	Value string
	Role  store.Role
}

func EncodeStabilize(m Stabilize) []byte {
	key, val := []byte(m.Key), []byte(m.Value)
	buf := make([]byte, 1+4+4+1+len(key)+1+len(val)+1)
	buf[0] = byte(KindStabilize)
	binary.BigEndian.PutUint32(buf[1:5], uint32(len(key)))
	binary.BigEndian.PutUint32(buf[5:9], uint32(len(val)))
	buf[9] = byte(m.Role)
	off := 10
	copy(buf[off:off+len(key)], key)
	off += len(key) + 1
	copy(buf[off:off+len(val)], val)
	return buf
}

func DecodeStabilize(data []byte) (Stabilize, error) {
	const fixed = 10
	if len(data) < fixed {
		return Stabilize{}, errShort("STABILIZE", fixed, len(data))
	}
	keyLen := int(binary.BigEndian.Uint32(data[1:5]))
	valLen := int(binary.BigEndian.Uint32(data[5:9]))
	role := store.Role(data[9])

	need := fixed + keyLen + 1 + valLen
	if len(data) < need {
		return Stabilize{}, errShort("STABILIZE", need, len(data))
	}
	key := string(data[fixed : fixed+keyLen])
	val := string(data[fixed+keyLen+1 : fixed+keyLen+1+valLen])
	return Stabilize{Key: key, Value: val, Role: role}, nil
}

// PeekKind returns the message kind tag without decoding the rest of the
// frame, or an error if the frame is empty. A malformed or unrecognized
// kind is the caller's cue to silently discard the frame, per spec
// section 7's error taxonomy.
func PeekKind(data []byte) (Kind, error) {
	if len(data) < 1 {
		return 0, fmt.Errorf("wire: empty frame")
	}
	return Kind(data[0]), nil
}
