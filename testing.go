package reactor

import (
	"fmt"
	"runtime"

	"github.com/corvid-systems/reactor/internal/backend"
)

// Connection is a test-declared identity for a mock socket -- the listen
// address for a listener, the ephemeral client address for an outgoing
// connection.
type Connection = backend.Connection

// Payload is either literal bytes returned by a scripted read/write/event,
// or a sentinel errno to return instead.
type Payload = backend.Payload

// EventKind classifies a single scripted mock event.
type EventKind = backend.EventKind

const (
	KindListen     = backend.KindListen
	KindConnect    = backend.KindConnect
	KindAccept     = backend.KindAccept
	KindReadEvent  = backend.KindRead
	KindWriteEvent = backend.KindWrite
	KindEventRead  = backend.KindEventRead
	KindEventWrite = backend.KindEventWrite
	KindCloseEvent = backend.KindClose
	KindFinishedEvent = backend.KindFinished
)

// EventSet is everything expected/dispatched between two consecutive Wait
// calls on a Mock-backed Reactor.
type EventSet = backend.EventSet

// MockEventQueue is the full scripted conversation a Mock-backed Reactor
// replays, terminated by a FinishedEvent.
type MockEventQueue = backend.EventQueue

// MockData builds a literal-bytes payload.
func MockData(s string) Payload { return backend.MockData(s) }

// MockErrno builds an error-sentinel payload.
func MockErrno(errno int) Payload { return backend.MockErrno(errno) }

func newEvent(kind EventKind, conn *Connection, addr string, payload Payload) backend.Event {
	_, file, line, _ := runtime.Caller(2)
	return backend.Event{File: file, Line: line, Kind: kind, Conn: conn, Addr: addr, Payload: payload}
}

// ListenEvent scripts an expected Listen call on addr.
func ListenEvent(conn *Connection, addr string) backend.Event {
	return newEvent(KindListen, conn, addr, Payload{})
}

// ConnectEvent scripts an expected Connect call to addr.
func ConnectEvent(conn *Connection, addr string) backend.Event {
	return newEvent(KindConnect, conn, addr, Payload{})
}

// AcceptEvent scripts an expected Accept call on the listener whose
// Connection.SourceAddr matches addr.
func AcceptEvent(conn *Connection, addr string) backend.Event {
	return newEvent(KindAccept, conn, addr, Payload{})
}

// ReadEvent scripts an expected Read call on conn, returning payload.
func ReadEvent(conn *Connection, payload Payload) backend.Event {
	return newEvent(KindReadEvent, conn, "", payload)
}

// WriteEvent scripts an expected Write call on conn, returning payload (or
// asserting the written bytes equal payload.Data if it is non-nil).
func WriteEvent(conn *Connection, payload Payload) backend.Event {
	return newEvent(KindWriteEvent, conn, "", payload)
}

// EventRead schedules conn's OnRead callback to fire on the next Dispatch.
func EventRead(conn *Connection) backend.Event {
	return newEvent(KindEventRead, conn, "", Payload{})
}

// EventWrite schedules conn's OnWrite callback to fire on the next Dispatch.
func EventWrite(conn *Connection) backend.Event {
	return newEvent(KindEventWrite, conn, "", Payload{})
}

// CloseEvent scripts an expected Close call on conn.
func CloseEvent(conn *Connection) backend.Event {
	return newEvent(KindCloseEvent, conn, "", Payload{})
}

// FinishedEvent terminates an event queue. It must be the sole entry in the
// queue's last EventSet.
func FinishedEvent() backend.Event {
	return newEvent(KindFinishedEvent, nil, "", Payload{})
}

// NewMockEventQueue validates and wraps a scripted conversation.
func NewMockEventQueue(sets []EventSet) (*MockEventQueue, error) {
	return backend.NewEventQueue(sets)
}

// SetEvents loads a script into a Mock-backed Reactor, preparing its first
// set. It returns an error if r was not constructed with the Mock backend.
func SetEvents(r *Reactor, q *MockEventQueue) error {
	mb, ok := r.poller.(*backend.Mock)
	if !ok {
		return fmt.Errorf("reactor: SetEvents requires a Mock-backed Reactor, got %s", r.Kind())
	}
	return mb.SetEvents(q)
}

// SetMockFatalf overrides how a Mock-backed Reactor reports a scripted
// mismatch -- wire in (*testing.T).Fatalf so a broken script fails the test
// instead of panicking the process.
func SetMockFatalf(r *Reactor, f func(format string, args ...interface{})) error {
	mb, ok := r.poller.(*backend.Mock)
	if !ok {
		return fmt.Errorf("reactor: SetMockFatalf requires a Mock-backed Reactor, got %s", r.Kind())
	}
	mb.Fatalf = f
	return nil
}
