package backend

import (
	"time"

	"golang.org/x/sys/unix"

	"github.com/corvid-systems/reactor/internal/interfaces"
)

// fdSetSize mirrors select.c's reliance on FD_SETSIZE -- the hard ceiling
// on any fd this backend can register.
const fdSetSize = 1024

// Readiness is the readiness-set backend: a thin wrapper over select(2).
// It is grounded on original_source/pollers/select.c.
type Readiness struct {
	log interfaces.Logger

	readSet, writeSet unix.FdSet // the live registration
	workRead, workWork unix.FdSet // install()'s "working copy", populated by Wait

	conns  [fdSetSize]*interfaces.Atom
	maxFd  int
	readyN int
}

var _ interfaces.Poller = (*Readiness)(nil)

// NewReadiness builds an empty readiness-set backend.
func NewReadiness(log interfaces.Logger) *Readiness {
	return &Readiness{log: log, maxFd: -1}
}

func (b *Readiness) Kind() interfaces.BackendKind { return interfaces.ReadinessSet }

func (b *Readiness) Dispose() error { return nil }

// FDCheck counts still-registered atoms, mirroring select.c's
// io_select_fd_check leak detector.
func (b *Readiness) FDCheck() int {
	cnt := 0
	for _, c := range b.conns {
		if c != nil {
			cnt++
		}
	}
	return cnt
}

func fdBitSet(set *unix.FdSet, fd int) bool {
	return set.Bits[fd/64]&(1<<(uint(fd)%64)) != 0
}

func fdBitSetOn(set *unix.FdSet, fd int) {
	set.Bits[fd/64] |= 1 << (uint(fd) % 64)
}

func fdBitClr(set *unix.FdSet, fd int) {
	set.Bits[fd/64] &^= 1 << (uint(fd) % 64)
}

func (b *Readiness) install(fd int, interest interfaces.Interest) {
	if interest&interfaces.Read != 0 {
		fdBitSetOn(&b.readSet, fd)
	} else {
		fdBitClr(&b.readSet, fd)
	}
	if interest&interfaces.Write != 0 {
		fdBitSetOn(&b.writeSet, fd)
	} else {
		fdBitClr(&b.writeSet, fd)
	}
}

func (b *Readiness) Add(atom *interfaces.Atom, interest interfaces.Interest) error {
	fd := atom.Fd
	if fd < 0 || fd >= fdSetSize {
		return errRange()
	}
	if b.conns[fd] != nil {
		return errAlreadyRegistered()
	}
	b.conns[fd] = atom
	b.install(fd, interest)
	if fd > b.maxFd {
		b.maxFd = fd
	}
	b.log.Debugf("readiness: add fd=%d interest=%s", fd, interest)
	return nil
}

func (b *Readiness) Set(atom *interfaces.Atom, interest interfaces.Interest) error {
	fd := atom.Fd
	if fd < 0 || fd >= fdSetSize {
		return errRange()
	}
	if b.conns[fd] == nil {
		return errNotRegistered()
	}
	b.install(fd, interest)
	b.log.Debugf("readiness: set fd=%d interest=%s", fd, interest)
	return nil
}

func (b *Readiness) Remove(atom *interfaces.Atom) error {
	fd := atom.Fd
	if fd < 0 || fd >= fdSetSize {
		return errRange()
	}
	if b.conns[fd] == nil {
		return errNotRegistered()
	}
	b.install(fd, 0)
	b.conns[fd] = nil
	b.log.Debugf("readiness: remove fd=%d", fd)

	// Clear the in-flight working copy so a removal during Dispatch doesn't
	// leave a stale readiness bit that fires a callback on this pass.
	fdBitClr(&b.workRead, fd)
	fdBitClr(&b.workWork, fd)

	for b.maxFd >= 0 && b.conns[b.maxFd] == nil {
		b.maxFd--
	}
	return nil
}

func (b *Readiness) Wait(timeoutMs int64) (int, error) {
	var tvp *unix.Timeval
	if timeoutMs != interfaces.IntMax {
		tv := unix.NsecToTimeval(int64(time.Duration(timeoutMs) * time.Millisecond))
		tvp = &tv
	}

	b.workRead = b.readSet
	b.workWork = b.writeSet

	n, err := unix.Select(b.maxFd+1, &b.workRead, &b.workWork, nil, tvp)
	if err != nil {
		if err == unix.EINTR {
			b.readyN = 0
			return 0, nil
		}
		return 0, err
	}
	b.readyN = n
	return n, nil
}

func (b *Readiness) Dispatch() int {
	if b.readyN <= 0 {
		return 0
	}
	delivered := 0
	max := b.maxFd
	for i := 0; i <= max; i++ {
		atom := b.conns[i]
		if atom == nil {
			continue
		}
		if fdBitSet(&b.workRead, i) && atom.OnRead != nil {
			atom.OnRead(b, atom)
			delivered++
		}
		// atom may have been removed by the read callback; re-check.
		if b.conns[i] != atom {
			continue
		}
		if fdBitSet(&b.workWork, i) && atom.OnWrite != nil {
			atom.OnWrite(b, atom)
			delivered++
		}
	}
	return delivered
}

func (b *Readiness) Listen(addr interfaces.SocketAddr, onAccept interfaces.Proc) (*interfaces.Atom, error) {
	return realListen(b, addr, onAccept)
}

func (b *Readiness) Connect(addr interfaces.SocketAddr, onRead, onWrite interfaces.Proc) (*interfaces.Atom, error) {
	return realConnect(b, addr, onRead, onWrite)
}

func (b *Readiness) Accept(listener *interfaces.Atom, onRead, onWrite interfaces.Proc) (*interfaces.Atom, interfaces.SocketAddr, error) {
	return realAccept(b, listener, onRead, onWrite)
}

func (b *Readiness) Read(atom *interfaces.Atom, buf []byte) (int, error) {
	return realRead(atom, buf)
}

func (b *Readiness) Write(atom *interfaces.Atom, buf []byte) (int, error) {
	return realWrite(atom, buf)
}

func (b *Readiness) Close(atom *interfaces.Atom) error {
	return realClose(b, atom)
}
