package kv

import (
	"meshkv/internal/eventlog"
	"meshkv/internal/meshaddr"
	"meshkv/internal/network"
	"meshkv/internal/store"
	"meshkv/internal/wire"
)

// Server is L3's replica-facing half: the four CRUD handlers of spec
// section 4.4 plus STABILIZE. Server handlers never consult the ring —
// they trust the coordinator's routing, exactly as spec section 4.4
// states.
type Server struct {
	self   meshaddr.Address
	store  store.Store
	sender network.Sender
	logger eventlog.Logger

	now uint64
}

// NewServer creates a Server backed by the given local store.
func NewServer(self meshaddr.Address, s store.Store, sender network.Sender, logger eventlog.Logger) *Server {
	return &Server{self: self, store: s, sender: sender, logger: logger}
}

// Tick advances the server's local write-time clock, used only to stamp
// HashEntry.WriteTime.
func (s *Server) Tick() { s.now++ }

// Handle dispatches an inbound CREATE/READ/UPDATE/DELETE/STABILIZE by wire
// kind. The caller (internal/node) routes REPLY/READREPLY and membership
// kinds elsewhere.
func (s *Server) Handle(data []byte) {
	kind, err := wire.PeekKind(data)
	if err != nil {
		return
	}
	switch kind {
	case wire.KindCreate:
		s.handleCreate(data)
	case wire.KindUpdate:
		s.handleUpdate(data)
	case wire.KindRead:
		s.handleRead(data)
	case wire.KindDelete:
		s.handleDelete(data)
	case wire.KindStabilize:
		s.handleStabilize(data)
	}
}

// handleCreate writes unconditionally and always replies success, per spec
// section 4.4: the duplicate-key case is not diagnosed at replicas.
func (s *Server) handleCreate(data []byte) {
	msg, err := wire.DecodeCreate(data)
	if err != nil {
		return
	}
	s.store.Create(msg.Key, store.HashEntry{Value: msg.Value, WriteTime: int64(s.now), ReplicaRole: msg.Role})
	s.logger.LogCreateSuccess(s.self, false, msg.TID, msg.Key, msg.Value)
	s.sender.Send(s.self, msg.Coord, wire.EncodeReply(wire.Reply{TID: msg.TID, Success: true}))
}

// handleUpdate writes only if the key already exists. On absence it logs a
// local failure and deliberately sends no REPLY at all — per spec section
// 4.4, this silence is what eventually surfaces as a coordinator timeout
// rather than an explicit rejection.
func (s *Server) handleUpdate(data []byte) {
	msg, err := wire.DecodeUpdate(data)
	if err != nil {
		return
	}
	existed := s.store.Update(msg.Key, store.HashEntry{Value: msg.Value, WriteTime: int64(s.now), ReplicaRole: msg.Role})
	if !existed {
		s.logger.LogUpdateFail(s.self, false, msg.TID, msg.Key)
		return
	}
	s.logger.LogUpdateSuccess(s.self, false, msg.TID, msg.Key, msg.Value)
	s.sender.Send(s.self, msg.Coord, wire.EncodeReply(wire.Reply{TID: msg.TID, Success: true}))
}

func (s *Server) handleRead(data []byte) {
	msg, err := wire.DecodeRead(data)
	if err != nil {
		return
	}
	entry, ok := s.store.Read(msg.Key)
	value := ""
	if ok {
		value = entry.Value
		s.logger.LogReadSuccess(s.self, false, msg.TID, msg.Key, value)
	} else {
		s.logger.LogReadFail(s.self, false, msg.TID, msg.Key)
	}
	s.sender.Send(s.self, msg.Coord, wire.EncodeReadReply(wire.ReadReply{TID: msg.TID, Success: ok, Value: value}))
}

func (s *Server) handleDelete(data []byte) {
	msg, err := wire.DecodeDelete(data)
	if err != nil {
		return
	}
	existed := s.store.Delete(msg.Key)
	if existed {
		s.logger.LogDeleteSuccess(s.self, false, msg.TID, msg.Key)
	} else {
		s.logger.LogDeleteFail(s.self, false, msg.TID, msg.Key)
	}
	s.sender.Send(s.self, msg.Coord, wire.EncodeReply(wire.Reply{TID: msg.TID, Success: existed}))
}

// handleStabilize writes unconditionally with no reply expected, per spec
// section 4.4.
func (s *Server) handleStabilize(data []byte) {
	msg, err := wire.DecodeStabilize(data)
	if err != nil {
		return
	}
	s.store.Create(msg.Key, store.HashEntry{Value: msg.Value, WriteTime: int64(s.now), ReplicaRole: msg.Role})
}
