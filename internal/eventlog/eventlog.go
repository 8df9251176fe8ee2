// Package eventlog is the concrete implementation of the logging
// collaborator described in spec section 6: it emits the canonical audit
// events (node-add, node-remove, and create/read/update/delete success and
// failure), each tagged with the originating address, whether the caller
// is acting as coordinator, the transaction id, and the key (and value,
// where relevant).
//
// No logging library appears anywhere in the retrieved corpus's complete
// repositories (the teacher logs with bare fmt.Printf); this package uses
// the standard log package with a small structured field formatter rather
// than reaching for an unjustified third-party logger.
package eventlog

import (
	"fmt"
	"log"
	"strings"

	"meshkv/internal/meshaddr"
)

// Logger is the interface every layer of a node logs through. A concrete
// node is free to swap in a test double that records events instead of
// printing them.
type Logger interface {
	LogNodeAdd(self, peer meshaddr.Address)
	LogNodeRemove(self, peer meshaddr.Address)

	LogCreateSuccess(self meshaddr.Address, isCoordinator bool, tid int, key, value string)
	LogCreateFail(self meshaddr.Address, isCoordinator bool, tid int, key string)

	LogReadSuccess(self meshaddr.Address, isCoordinator bool, tid int, key, value string)
	LogReadFail(self meshaddr.Address, isCoordinator bool, tid int, key string)

	LogUpdateSuccess(self meshaddr.Address, isCoordinator bool, tid int, key, value string)
	LogUpdateFail(self meshaddr.Address, isCoordinator bool, tid int, key string)

	LogDeleteSuccess(self meshaddr.Address, isCoordinator bool, tid int, key string)
	LogDeleteFail(self meshaddr.Address, isCoordinator bool, tid int, key string)
}

// StdLogger writes each event as one structured line via the standard
// library logger. It is the default used outside of tests.
type StdLogger struct {
	out *log.Logger
}

// NewStdLogger builds a StdLogger writing to the given *log.Logger, or to
// log.Default() if nil is passed.
func NewStdLogger(out *log.Logger) *StdLogger {
	if out == nil {
		out = log.Default()
	}
	return &StdLogger{out: out}
}

func (l *StdLogger) emit(event string, fields map[string]any) {
	var b strings.Builder
	b.WriteString(event)
	for _, k := range []string{"self", "peer", "coordinator", "tid", "key", "value"} {
		v, ok := fields[k]
		if !ok {
			continue
		}
		fmt.Fprintf(&b, " %s=%v", k, v)
	}
	l.out.Print(b.String())
}

func (l *StdLogger) LogNodeAdd(self, peer meshaddr.Address) {
	l.emit("node_add", map[string]any{"self": self, "peer": peer})
}

func (l *StdLogger) LogNodeRemove(self, peer meshaddr.Address) {
	l.emit("node_remove", map[string]any{"self": self, "peer": peer})
}

func (l *StdLogger) LogCreateSuccess(self meshaddr.Address, isCoordinator bool, tid int, key, value string) {
	l.emit("create_success", map[string]any{"self": self, "coordinator": isCoordinator, "tid": tid, "key": key, "value": value})
}

func (l *StdLogger) LogCreateFail(self meshaddr.Address, isCoordinator bool, tid int, key string) {
	l.emit("create_fail", map[string]any{"self": self, "coordinator": isCoordinator, "tid": tid, "key": key})
}

func (l *StdLogger) LogReadSuccess(self meshaddr.Address, isCoordinator bool, tid int, key, value string) {
	l.emit("read_success", map[string]any{"self": self, "coordinator": isCoordinator, "tid": tid, "key": key, "value": value})
}

func (l *StdLogger) LogReadFail(self meshaddr.Address, isCoordinator bool, tid int, key string) {
	l.emit("read_fail", map[string]any{"self": self, "coordinator": isCoordinator, "tid": tid, "key": key})
}

func (l *StdLogger) LogUpdateSuccess(self meshaddr.Address, isCoordinator bool, tid int, key, value string) {
	l.emit("update_success", map[string]any{"self": self, "coordinator": isCoordinator, "tid": tid, "key": key, "value": value})
}

func (l *StdLogger) LogUpdateFail(self meshaddr.Address, isCoordinator bool, tid int, key string) {
	l.emit("update_fail", map[string]any{"self": self, "coordinator": isCoordinator, "tid": tid, "key": key})
}

func (l *StdLogger) LogDeleteSuccess(self meshaddr.Address, isCoordinator bool, tid int, key string) {
	l.emit("delete_success", map[string]any{"self": self, "coordinator": isCoordinator, "tid": tid, "key": key})
}

func (l *StdLogger) LogDeleteFail(self meshaddr.Address, isCoordinator bool, tid int, key string) {
	l.emit("delete_fail", map[string]any{"self": self, "coordinator": isCoordinator, "tid": tid, "key": key})
}
