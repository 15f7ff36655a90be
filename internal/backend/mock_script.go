package backend

import (
	"fmt"

	"github.com/corvid-systems/reactor/internal/interfaces"
)

// MaxEventsPerSet is the counterpart of mock.h's MAX_EVENTS_PER_SET. It
// bounds the per-set "used" bitmask to a single uint64, which is generous
// compared to the original C default of 8.
const MaxEventsPerSet = 64

// EventKind classifies a single scripted mock event. KindEventRead and
// KindEventWrite are "dispatched events" the mock delivers to the
// application's callbacks; every other kind except KindNop and KindFinished
// is an "expected call" -- the test asserts the application will make this
// call. This split mirrors mock.h's is_dispatched_mock_event macro.
type EventKind int

const (
	KindNop EventKind = iota
	KindListen
	KindConnect
	KindAccept
	KindRead
	KindWrite
	KindEventRead
	KindEventWrite
	KindClose
	KindFinished
)

// IsDispatched reports whether this kind is delivered as a callback
// (event_read/event_write) rather than asserted against an application call.
func (k EventKind) IsDispatched() bool {
	return k == KindEventRead || k == KindEventWrite
}

func (k EventKind) String() string {
	switch k {
	case KindNop:
		return "nop"
	case KindListen:
		return "listen"
	case KindConnect:
		return "connect"
	case KindAccept:
		return "accept"
	case KindRead:
		return "read"
	case KindWrite:
		return "write"
	case KindEventRead:
		return "event_read"
	case KindEventWrite:
		return "event_write"
	case KindClose:
		return "close"
	case KindFinished:
		return "finished"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Connection is a test-declared identity for a mock socket, standing in for
// mock.h's mock_connection. SourceAddr is the address this connection is
// understood to live at -- the listen address for a listener, the client's
// ephemeral address for an outgoing connection.
type Connection struct {
	Name       string
	SourceAddr string
}

// Payload is either literal bytes returned by a read/write/event, or a
// sentinel errno to return instead -- mock.h's MOCK_DATA/MOCK_ERROR split.
type Payload struct {
	Data  []byte
	Errno int // nonzero means "return this errno"; only meaningful when Data == nil
}

// MockData builds a literal-bytes payload, the Go analogue of MOCK_DATA().
func MockData(s string) Payload { return Payload{Data: []byte(s)} }

// MockErrno builds an error-sentinel payload, the Go analogue of MOCK_ERROR().
func MockErrno(errno int) Payload { return Payload{Errno: errno} }

// Event is a single scripted step, the Go analogue of mock_event. File/Line
// are filled in by NewEventQueue's caller via runtime.Caller so mismatch
// diagnostics can point at the script line that produced the bad
// expectation, not just the backend's internals.
type Event struct {
	File string
	Line int
	Kind EventKind
	Conn *Connection
	// Addr holds the target/source address string for listen/connect/accept
	// events; Payload holds the bytes or errno for read/write/event_* events.
	Addr    string
	Payload Payload
}

// EventSet is everything expected/dispatched between two consecutive Wait
// calls.
type EventSet []Event

// EventQueue is the full scripted conversation, terminated by a set whose
// sole entry is KindFinished.
type EventQueue struct {
	Sets []EventSet
}

// NewEventQueue validates and wraps a list of event sets. It rejects any
// set wider than MaxEventsPerSet (the per-set used-bit tracking is a single
// uint64) and requires the last set to be the lone finished sentinel.
func NewEventQueue(sets []EventSet) (*EventQueue, error) {
	if len(sets) == 0 {
		return nil, fmt.Errorf("mock: event queue must not be empty")
	}
	for i, set := range sets {
		if len(set) > MaxEventsPerSet {
			return nil, fmt.Errorf("mock: set %d has %d events, exceeds MaxEventsPerSet=%d", i, len(set), MaxEventsPerSet)
		}
	}
	last := sets[len(sets)-1]
	if len(last) != 1 || last[0].Kind != KindFinished {
		return nil, fmt.Errorf("mock: the last set must contain exactly one KindFinished event")
	}
	return &EventQueue{Sets: sets}, nil
}
