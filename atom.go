package reactor

import "github.com/corvid-systems/reactor/internal/interfaces"

// Interest is a bitmask of the events an Atom wants to be notified about.
type Interest = interfaces.Interest

const (
	Read  = interfaces.Read
	Write = interfaces.Write
)

// Proc is a callback invoked by Dispatch when an Atom becomes ready. It is
// handed the Poller it is registered with so it can issue further socket
// ops directly from the callback -- Listen/Connect/Accept/Read/Write/Close/
// Set/Remove are all safe to call from inside one.
type Proc = interfaces.Proc

// Atom is a non-owning registration of a file descriptor with a Reactor.
// The application retains ownership of the Atom's memory and of the fd.
// Data is an opaque slot for per-connection state.
type Atom = interfaces.Atom

// NewAtom builds an Atom. It does not register it with any backend; pass it
// to Reactor.Add, or use Listen/Connect/Accept, which build and register one
// for you.
func NewAtom(fd int, onRead, onWrite Proc, data any) *Atom {
	return interfaces.NewAtom(fd, onRead, onWrite, data)
}
