// Package reactor provides a pluggable, embeddable asynchronous I/O reactor
// for POSIX-style byte-stream sockets. A Reactor multiplexes any number of
// listening and connected sockets behind one of four interchangeable
// backends -- a readiness-set (select), a descriptor-array (poll), an
// edge-triggered kernel-queue (epoll, optionally io_uring), or a
// deterministic scripted mock for tests -- without the application code
// that drives Listen/Connect/Accept/Read/Write/Close ever needing to know
// which one is active.
package reactor

import (
	"fmt"
	"time"

	"github.com/corvid-systems/reactor/internal/backend"
	"github.com/corvid-systems/reactor/internal/interfaces"
	"github.com/corvid-systems/reactor/internal/logging"
)

// BackendKind identifies which poller implementation is active, and doubles
// as a selection bitmask passed to New so callers can restrict which
// backends are eligible. The mask does not change the order New tries them
// in.
type BackendKind = interfaces.BackendKind

const (
	KernelQueue     = interfaces.KernelQueue
	DescriptorArray = interfaces.DescriptorArray
	ReadinessSet    = interfaces.ReadinessSet
	Mock            = interfaces.Mock

	// AnyRealBackend selects among the three OS-backed implementations, in
	// preference order from most to least scalable.
	AnyRealBackend = interfaces.AnyRealBackend
)

// ErrFinished is returned by Wait once a Mock-backed Reactor advances into
// its event queue's terminating set -- the scripted equivalent of a clean
// shutdown.
var ErrFinished = backend.ErrFinished

// Options configures a Reactor.
type Options struct {
	// Logger receives debug/info/warn/error messages. Defaults to
	// logging.Default() if nil.
	Logger Logger

	// Observer receives activity counters. Defaults to a NoOpObserver.
	Observer Observer

	// GIOURingQueueDepth, if nonzero and the binary was built with
	// -tags giouring, selects the io_uring-backed kernel-queue variant
	// over the default epoll one, sized to this many in-flight polls.
	GIOURingQueueDepth uint32
}

// Logger is the minimal logging contract a Reactor depends on.
// *logging.Logger satisfies it.
type Logger = interfaces.Logger

// Poller is the vtable a Proc callback receives so it can issue further
// socket ops (Read, Write, Accept, Close, Set, Remove...) directly from the
// callback, without closing over the enclosing Reactor. Every Reactor
// method except Run has a matching Poller method. The Poller methods return
// the backend's raw errors (for example syscall.EPIPE from Read) and report
// nothing to the Observer; the Reactor methods wrap errors as *Error and do
// report.
type Poller = interfaces.Poller

// Reactor multiplexes socket I/O over one active Poller backend.
type Reactor struct {
	poller   interfaces.Poller
	log      Logger
	observer Observer
}

// New selects and constructs a Reactor. mask is a bitwise-OR of the
// BackendKinds New is allowed to pick from; it tries them in
// KernelQueue -> DescriptorArray -> ReadinessSet -> Mock order and returns
// the first one it can construct, so a caller can request
// AnyRealBackend|Mock and get a real backend everywhere a real backend is
// available, falling back to Mock only where it can't -- though a Mock
// Reactor still requires a script via SetEvents before Wait is useful.
func New(mask BackendKind, opts *Options) (*Reactor, error) {
	if opts == nil {
		opts = &Options{}
	}
	log := opts.Logger
	if log == nil {
		log = logging.Default()
	}
	observer := opts.Observer
	if observer == nil {
		observer = NoOpObserver{}
	}

	r := &Reactor{log: log, observer: observer}

	if mask&KernelQueue != 0 {
		if opts.GIOURingQueueDepth > 0 {
			if p, err := backend.NewKernelQueueGIOURING(log, opts.GIOURingQueueDepth); err == nil {
				log.Infof("reactor: selected kernel-queue backend (io_uring, queue depth %d)", opts.GIOURingQueueDepth)
				r.poller = p
				return r, nil
			} else {
				log.Debugf("reactor: io_uring kernel-queue unavailable: %v", err)
			}
		}
		if p, err := backend.NewKernelQueue(log); err == nil {
			log.Infof("reactor: selected kernel-queue backend (epoll)")
			r.poller = p
			return r, nil
		} else {
			log.Debugf("reactor: epoll kernel-queue unavailable: %v", err)
		}
	}
	if mask&DescriptorArray != 0 {
		log.Infof("reactor: selected descriptor-array backend (poll)")
		r.poller = backend.NewDescArray(log)
		return r, nil
	}
	if mask&ReadinessSet != 0 {
		log.Infof("reactor: selected readiness-set backend (select)")
		r.poller = backend.NewReadiness(log)
		return r, nil
	}
	if mask&Mock != 0 {
		log.Infof("reactor: selected mock backend")
		r.poller = backend.NewMock(log)
		return r, nil
	}

	return nil, fmt.Errorf("reactor: no eligible backend in mask %s", mask)
}

// Kind reports which backend is active.
func (r *Reactor) Kind() BackendKind { return r.poller.Kind() }

// Dispose releases backend-level resources. It does not close any
// registered atom's socket fd.
func (r *Reactor) Dispose() error { return r.poller.Dispose() }

// FDCheck returns the number of atoms still registered -- a well-behaved
// caller should see this drop to zero once every connection is closed.
func (r *Reactor) FDCheck() int { return r.poller.FDCheck() }

// Add registers an already-open fd's Atom for the given interest.
func (r *Reactor) Add(atom *Atom, interest Interest) error {
	return wrapOrNil("Add", r.poller.Add(atom, interest))
}

// Remove unregisters an Atom without closing its fd.
func (r *Reactor) Remove(atom *Atom) error {
	return wrapOrNil("Remove", r.poller.Remove(atom))
}

// Set changes an already-registered Atom's interest.
func (r *Reactor) Set(atom *Atom, interest Interest) error {
	return wrapOrNil("Set", r.poller.Set(atom, interest))
}

// Wait blocks until at least one registered atom is ready, the timeout (in
// milliseconds; WaitForever blocks indefinitely) elapses, or a signal
// interrupts the call -- a signal interruption is swallowed and reported as
// 0, never as an error. It returns the backend's ready count, as described
// on Poller.Wait.
func (r *Reactor) Wait(timeoutMs int64) (int, error) {
	start := time.Now()
	n, err := r.poller.Wait(timeoutMs)
	r.observer.ObserveWait(n, uint64(time.Since(start).Nanoseconds()))
	if err == backend.ErrFinished {
		return n, err
	}
	return n, wrapOrNil("Wait", err)
}

// Dispatch delivers at most one read and one write callback per atom for
// the events found by the most recent Wait.
func (r *Reactor) Dispatch() {
	start := time.Now()
	n := r.poller.Dispatch()
	r.observer.ObserveDispatch(n, uint64(time.Since(start).Nanoseconds()))
}

// Run repeatedly calls Wait and Dispatch with the given poll timeout until
// stop is closed or Wait returns a non-nil error (including ErrFinished, on
// a Mock-backed Reactor whose script has run to completion).
func (r *Reactor) Run(timeoutMs int64, stop <-chan struct{}) error {
	for {
		select {
		case <-stop:
			return nil
		default:
		}
		if _, err := r.Wait(timeoutMs); err != nil {
			return err
		}
		r.Dispatch()
	}
}

// Listen opens a listening socket at addr and registers it for incoming
// connections; onAccept is called (as the returned atom's OnRead) whenever
// a connection is pending.
func (r *Reactor) Listen(addr SocketAddr, onAccept Proc) (*Atom, error) {
	atom, err := r.poller.Listen(addr, onAccept)
	r.observer.ObserveListen(err == nil)
	return atom, wrapOrNil("Listen", err)
}

// Connect opens an outgoing, non-blocking connection to addr. onWrite fires
// once the connection completes (or fails) and onRead fires once data is
// available.
func (r *Reactor) Connect(addr SocketAddr, onRead, onWrite Proc) (*Atom, error) {
	atom, err := r.poller.Connect(addr, onRead, onWrite)
	r.observer.ObserveConnect(err == nil)
	return atom, wrapOrNil("Connect", err)
}

// Accept accepts one pending connection from listener.
func (r *Reactor) Accept(listener *Atom, onRead, onWrite Proc) (*Atom, SocketAddr, error) {
	atom, peer, err := r.poller.Accept(listener, onRead, onWrite)
	r.observer.ObserveAccept(err == nil)
	return atom, peer, wrapOrNil("Accept", err)
}

// Read reads into buf from atom's fd. A zero-byte, nil-error result means
// "nothing available right now" (EAGAIN); KindClosed means the peer closed
// the connection.
func (r *Reactor) Read(atom *Atom, buf []byte) (int, error) {
	n, err := r.poller.Read(atom, buf)
	r.observer.ObserveRead(uint64(n), err == nil)
	return n, wrapOrNil("Read", err)
}

// Write writes buf to atom's fd.
func (r *Reactor) Write(atom *Atom, buf []byte) (int, error) {
	n, err := r.poller.Write(atom, buf)
	r.observer.ObserveWrite(uint64(n), err == nil)
	return n, wrapOrNil("Write", err)
}

// Close unregisters and closes atom's fd.
func (r *Reactor) Close(atom *Atom) error {
	err := r.poller.Close(atom)
	r.observer.ObserveClose(err == nil)
	if err != nil {
		r.observer.ObserveError(KindIOUnknown)
	}
	return wrapOrNil("Close", err)
}
