package backend

import (
	"bytes"
	"errors"
	"fmt"
	"net"
	"syscall"

	"github.com/corvid-systems/reactor/internal/interfaces"
)

// ErrFinished is returned by Wait once it advances into the event queue's
// terminating KindFinished set -- the scripted equivalent of a clean
// shutdown. Application run loops should treat it as "stop looping", not as
// a failure.
var ErrFinished = errors.New("mock: event queue finished")

type mockAtom struct {
	atom       *interfaces.Atom
	conn       *Connection
	interest   interfaces.Interest
	isListener bool
}

// Mock is the scripted, deterministic backend used by tests. It never
// touches the network; every socket op is checked against the next unused
// event in the current EventSet and every Wait/Dispatch cycle walks the
// scripted sets in order. Grounded on
// original_source/pollers/mock.h (the struct shape) and
// original_source/testmock.c (the actual expected usage pattern, since
// mock.c itself is an incomplete, non-compiling stub).
type Mock struct {
	log interfaces.Logger

	// Fatalf, if set, is called instead of panicking on a scripted
	// mismatch -- wiring point for (*testing.T).Fatalf. It is expected not
	// to return (e.g. via runtime.Goexit); if it does return anyway, Mock
	// panics regardless so callers never proceed on broken state.
	Fatalf func(format string, args ...interface{})

	queue []EventSet
	setIdx int
	used   uint64
	dispatchedCount int

	byConn map[string]*mockAtom
	byFd   map[int]*mockAtom
	nextFd int

	inFlight []string
}

var _ interfaces.Poller = (*Mock)(nil)

// NewMock builds a Mock with no script loaded; call SetEvents before Wait.
func NewMock(log interfaces.Logger) *Mock {
	return &Mock{
		log:    log,
		setIdx: -1,
		byConn: make(map[string]*mockAtom),
		byFd:   make(map[int]*mockAtom),
	}
}

func (m *Mock) Kind() interfaces.BackendKind { return interfaces.Mock }

func (m *Mock) Dispose() error { return nil }

func (m *Mock) FDCheck() int { return len(m.byFd) }

func (m *Mock) fatal(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	full := fmt.Sprintf("mock mismatch: %s (set=%d in-flight=%v)", msg, m.setIdx, m.inFlight)
	if m.log != nil {
		m.log.Errorf("%s", full)
	}
	if m.Fatalf != nil {
		m.Fatalf(full)
	}
	panic(full)
}

func (m *Mock) push(op string) { m.inFlight = append(m.inFlight, op) }
func (m *Mock) pop()           { m.inFlight = m.inFlight[:len(m.inFlight)-1] }

// SetEvents loads the script and prepares its first set -- the events
// expected before the application ever calls Wait (e.g. an initial Listen).
func (m *Mock) SetEvents(q *EventQueue) error {
	if q == nil || len(q.Sets) == 0 {
		return fmt.Errorf("mock: empty event queue")
	}
	m.queue = q.Sets
	m.setIdx = 0
	m.used = 0
	m.dispatchedCount = m.countDispatched(m.queue[0])
	return nil
}

func (m *Mock) countDispatched(set EventSet) int {
	n := 0
	for _, ev := range set {
		if ev.Kind.IsDispatched() {
			n++
		}
	}
	return n
}

// verifyConsumed checks that every non-nop event in the current set has
// been matched against an application call or dispatched, fatally aborting
// otherwise -- mirrors mock.h's num_events_in_last_set/
// events_handled_in_last_set bookkeeping.
func (m *Mock) verifyConsumed() {
	if m.setIdx < 0 {
		return
	}
	set := m.queue[m.setIdx]
	for i, ev := range set {
		if ev.Kind == KindNop || ev.Kind == KindFinished {
			continue
		}
		if m.used&(1<<uint(i)) == 0 {
			m.fatal("set %d event %d (%s at %s:%d) was never consumed", m.setIdx, i, ev.Kind, ev.File, ev.Line)
		}
	}
}

func (m *Mock) Wait(timeoutMs int64) (int, error) {
	if m.setIdx < 0 {
		return 0, fmt.Errorf("mock: SetEvents must be called before Wait")
	}
	m.verifyConsumed()
	m.setIdx++
	if m.setIdx >= len(m.queue) {
		return 0, fmt.Errorf("mock: event queue exhausted without a finished sentinel")
	}
	set := m.queue[m.setIdx]
	if len(set) == 1 && set[0].Kind == KindFinished {
		return 0, ErrFinished
	}
	m.used = 0
	m.dispatchedCount = m.countDispatched(set)
	return m.dispatchedCount, nil
}

func (m *Mock) Dispatch() int {
	if m.setIdx < 0 || m.setIdx >= len(m.queue) {
		return 0
	}
	delivered := 0
	set := m.queue[m.setIdx]
	for i := range set {
		ev := &set[i]
		if !ev.Kind.IsDispatched() {
			continue
		}
		if m.used&(1<<uint(i)) != 0 {
			continue
		}
		ma := m.byConn[ev.Conn.Name]
		if ma == nil {
			m.fatal("%s scripted for unknown connection %q", ev.Kind, ev.Conn.Name)
			continue
		}
		switch ev.Kind {
		case KindEventRead:
			if ma.interest&interfaces.Read == 0 {
				m.fatal("event_read scripted for %q but it has no read interest", ev.Conn.Name)
			}
			m.used |= 1 << uint(i)
			if ma.atom.OnRead != nil {
				m.push("dispatch read:" + ev.Conn.Name)
				ma.atom.OnRead(m, ma.atom)
				m.pop()
				delivered++
			}
		case KindEventWrite:
			if ma.interest&interfaces.Write == 0 {
				m.fatal("event_write scripted for %q but it has no write interest", ev.Conn.Name)
			}
			m.used |= 1 << uint(i)
			if ma.atom.OnWrite != nil {
				m.push("dispatch write:" + ev.Conn.Name)
				ma.atom.OnWrite(m, ma.atom)
				m.pop()
				delivered++
			}
		}
	}
	return delivered
}

// findEvent returns the index of the first unused event of the given kind
// in the current set satisfying match, or -1 if none matches.
func (m *Mock) findEvent(kind EventKind, match func(Event) bool) (int, *Event) {
	if m.setIdx < 0 || m.setIdx >= len(m.queue) {
		return -1, nil
	}
	set := m.queue[m.setIdx]
	for i := range set {
		if m.used&(1<<uint(i)) != 0 {
			continue
		}
		ev := &set[i]
		if ev.Kind != kind {
			continue
		}
		if match != nil && !match(*ev) {
			continue
		}
		return i, ev
	}
	return -1, nil
}

func (m *Mock) allocFd() int {
	fd := m.nextFd
	m.nextFd++
	return fd
}

func parseLoopbackAddr(s string) interfaces.SocketAddr {
	host, port, err := net.SplitHostPort(s)
	if err != nil {
		return interfaces.SocketAddr{}
	}
	var p int
	fmt.Sscanf(port, "%d", &p)
	return interfaces.SocketAddr{IP: net.ParseIP(host), Port: p}
}

func (m *Mock) Listen(addr interfaces.SocketAddr, onAccept interfaces.Proc) (*interfaces.Atom, error) {
	idx, ev := m.findEvent(KindListen, func(e Event) bool { return e.Addr == addr.String() })
	if idx < 0 {
		m.fatal("unexpected listen on %s", addr)
		return nil, errMockMismatch()
	}
	m.used |= 1 << uint(idx)
	conn := ev.Conn
	if conn.SourceAddr != addr.String() {
		m.fatal("listen's scripted source address %q must equal the listen address %q", conn.SourceAddr, addr.String())
	}
	fd := m.allocFd()
	atom := interfaces.NewAtom(fd, onAccept, nil, nil)
	ma := &mockAtom{atom: atom, conn: conn, interest: interfaces.Read, isListener: true}
	m.byConn[conn.Name] = ma
	m.byFd[fd] = ma
	return atom, nil
}

func (m *Mock) Connect(addr interfaces.SocketAddr, onRead, onWrite interfaces.Proc) (*interfaces.Atom, error) {
	idx, ev := m.findEvent(KindConnect, func(e Event) bool { return e.Addr == addr.String() })
	if idx < 0 {
		m.fatal("unexpected connect to %s", addr)
		return nil, errMockMismatch()
	}
	m.used |= 1 << uint(idx)
	conn := ev.Conn
	if conn.SourceAddr == addr.String() {
		m.fatal("connect's scripted source address %q must differ from the destination %q", conn.SourceAddr, addr.String())
	}
	fd := m.allocFd()
	atom := interfaces.NewAtom(fd, onRead, onWrite, nil)
	ma := &mockAtom{atom: atom, conn: conn, interest: interfaces.Read | interfaces.Write}
	m.byConn[conn.Name] = ma
	m.byFd[fd] = ma
	return atom, nil
}

func (m *Mock) Accept(listener *interfaces.Atom, onRead, onWrite interfaces.Proc) (*interfaces.Atom, interfaces.SocketAddr, error) {
	lma := m.byFd[listener.Fd]
	if lma == nil || !lma.isListener {
		m.fatal("accept called on an atom that is not a registered listener")
		return nil, interfaces.SocketAddr{}, errMockMismatch()
	}
	idx, ev := m.findEvent(KindAccept, func(e Event) bool { return e.Addr == lma.conn.SourceAddr })
	if idx < 0 {
		m.fatal("unexpected accept on listener %q", lma.conn.Name)
		return nil, interfaces.SocketAddr{}, errMockMismatch()
	}
	m.used |= 1 << uint(idx)
	conn := ev.Conn
	fd := m.allocFd()
	atom := interfaces.NewAtom(fd, onRead, onWrite, nil)
	ma := &mockAtom{atom: atom, conn: conn, interest: interfaces.Read}
	m.byConn[conn.Name] = ma
	m.byFd[fd] = ma
	return atom, parseLoopbackAddr(conn.SourceAddr), nil
}

func payloadResult(p Payload, n int) (int, error) {
	if p.Data != nil {
		if len(p.Data) == 0 {
			return 0, syscall.EPIPE
		}
		return n, nil
	}
	errno := syscall.Errno(p.Errno)
	switch errno {
	case syscall.EAGAIN, syscall.EWOULDBLOCK:
		return 0, nil
	case syscall.ECONNRESET:
		return 0, syscall.EPIPE
	default:
		return 0, errno
	}
}

func (m *Mock) Read(atom *interfaces.Atom, buf []byte) (int, error) {
	ma := m.byFd[atom.Fd]
	if ma == nil {
		m.fatal("read on unregistered fd %d", atom.Fd)
		return 0, errMockMismatch()
	}
	idx, ev := m.findEvent(KindRead, func(e Event) bool { return e.Conn == ma.conn })
	if idx < 0 {
		m.fatal("unexpected read on %q", ma.conn.Name)
		return 0, errMockMismatch()
	}
	m.used |= 1 << uint(idx)
	if len(ev.Payload.Data) > len(buf) {
		m.fatal("read on %q: scripted payload is %d bytes, read buffer is only %d", ma.conn.Name, len(ev.Payload.Data), len(buf))
	}
	n := copy(buf, ev.Payload.Data)
	return payloadResult(ev.Payload, n)
}

func (m *Mock) Write(atom *interfaces.Atom, buf []byte) (int, error) {
	ma := m.byFd[atom.Fd]
	if ma == nil {
		m.fatal("write on unregistered fd %d", atom.Fd)
		return 0, errMockMismatch()
	}
	idx, ev := m.findEvent(KindWrite, func(e Event) bool { return e.Conn == ma.conn })
	if idx < 0 {
		m.fatal("unexpected write on %q", ma.conn.Name)
		return 0, errMockMismatch()
	}
	m.used |= 1 << uint(idx)
	if ev.Payload.Data != nil && !bytes.Equal(buf, ev.Payload.Data) {
		m.fatal("write on %q sent %q, script expected %q", ma.conn.Name, buf, ev.Payload.Data)
	}
	return payloadResult(ev.Payload, len(buf))
}

func (m *Mock) Close(atom *interfaces.Atom) error {
	ma := m.byFd[atom.Fd]
	if ma == nil {
		m.fatal("close on unregistered fd %d", atom.Fd)
		return errMockMismatch()
	}
	idx, _ := m.findEvent(KindClose, func(e Event) bool { return e.Conn == ma.conn })
	if idx < 0 {
		m.fatal("unexpected close on %q", ma.conn.Name)
		return errMockMismatch()
	}
	m.used |= 1 << uint(idx)
	delete(m.byFd, atom.Fd)
	delete(m.byConn, ma.conn.Name)
	atom.Fd = -1
	return nil
}

func (m *Mock) Add(atom *interfaces.Atom, interest interfaces.Interest) error {
	ma := m.byFd[atom.Fd]
	if ma == nil {
		m.fatal("Add called on fd %d with no mock connection bound (use Listen/Connect/Accept)", atom.Fd)
		return errMockMismatch()
	}
	ma.interest = interest
	return nil
}

func (m *Mock) Set(atom *interfaces.Atom, interest interfaces.Interest) error {
	ma := m.byFd[atom.Fd]
	if ma == nil {
		return errNotRegistered()
	}
	ma.interest = interest
	return nil
}

func (m *Mock) Remove(atom *interfaces.Atom) error {
	ma := m.byFd[atom.Fd]
	if ma == nil {
		return errNotRegistered()
	}
	delete(m.byFd, atom.Fd)
	delete(m.byConn, ma.conn.Name)
	return nil
}

func errMockMismatch() error {
	return &kindError{kind: interfaces.KindMockMismatch, msg: "scripted mock event mismatch"}
}
