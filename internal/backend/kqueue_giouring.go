//go:build giouring

package backend

import (
	"github.com/pawelgaczynski/giouring"
	"golang.org/x/sys/unix"

	"github.com/corvid-systems/reactor/internal/interfaces"
)

// giouringMaxEvents bounds how many completions NewKernelQueueGIOURING
// drains per Wait call.
const giouringMaxEvents = 256

// KernelQueueGIOURING is an alternate edge-triggered kernel-queue backend
// built on io_uring multishot poll (IORING_OP_POLL_ADD with
// IORING_POLL_ADD_MULTI) instead of epoll. It implements the same Poller
// contract as KernelQueue and exists to exercise the giouring dependency
// the teacher repo declared but never wired to a matching import. Built
// only with -tags giouring; see kqueue_giouring_stub.go for the default.
type KernelQueueGIOURING struct {
	log interfaces.Logger
	ring *giouring.Ring

	atoms map[int]*interfaces.Atom
	// interest records what each fd last asked to be polled for. Set does
	// not consult it: it cancels the previous multishot poll through Remove
	// and resubmits through Add.
	interest map[int]interfaces.Interest
	ready    int
}

var _ interfaces.Poller = (*KernelQueueGIOURING)(nil)

// NewKernelQueueGIOURING creates an io_uring instance sized for queueDepth
// in-flight poll requests.
func NewKernelQueueGIOURING(log interfaces.Logger, queueDepth uint32) (*KernelQueueGIOURING, error) {
	ring, err := giouring.CreateRing(queueDepth)
	if err != nil {
		return nil, err
	}
	return &KernelQueueGIOURING{
		log:      log,
		ring:     ring,
		atoms:    make(map[int]*interfaces.Atom),
		interest: make(map[int]interfaces.Interest),
	}, nil
}

func (b *KernelQueueGIOURING) Kind() interfaces.BackendKind { return interfaces.KernelQueue }

func (b *KernelQueueGIOURING) Dispose() error {
	b.ring.QueueExit()
	return nil
}

func (b *KernelQueueGIOURING) FDCheck() int { return len(b.atoms) }

func pollMask(interest interfaces.Interest) uint32 {
	var mask uint32
	if interest&interfaces.Read != 0 {
		mask |= unix.POLLIN
	}
	if interest&interfaces.Write != 0 {
		mask |= unix.POLLOUT
	}
	return mask
}

func (b *KernelQueueGIOURING) submitPoll(fd int, interest interfaces.Interest) error {
	sqe := b.ring.GetSQE()
	if sqe == nil {
		if _, err := b.ring.Submit(); err != nil {
			return err
		}
		sqe = b.ring.GetSQE()
	}
	sqe.PrepareMultishotPollAdd(uint64(fd), pollMask(interest))
	sqe.UserData = uint64(fd)
	_, err := b.ring.Submit()
	return err
}

func (b *KernelQueueGIOURING) Add(atom *interfaces.Atom, interest interfaces.Interest) error {
	if _, exists := b.atoms[atom.Fd]; exists {
		return errAlreadyRegistered()
	}
	if err := b.submitPoll(atom.Fd, interest); err != nil {
		return err
	}
	b.atoms[atom.Fd] = atom
	b.interest[atom.Fd] = interest
	b.log.Debugf("kqueue-giouring: add fd=%d interest=%s", atom.Fd, interest)
	return nil
}

func (b *KernelQueueGIOURING) Set(atom *interfaces.Atom, interest interfaces.Interest) error {
	if _, exists := b.atoms[atom.Fd]; !exists {
		return errNotRegistered()
	}
	// Multishot polls must be cancelled and reissued to change their mask.
	if err := b.Remove(atom); err != nil {
		return err
	}
	b.log.Debugf("kqueue-giouring: set fd=%d interest=%s", atom.Fd, interest)
	return b.Add(atom, interest)
}

func (b *KernelQueueGIOURING) Remove(atom *interfaces.Atom) error {
	if _, exists := b.atoms[atom.Fd]; !exists {
		return errNotRegistered()
	}
	sqe := b.ring.GetSQE()
	if sqe != nil {
		sqe.PrepareCancel(uint64(atom.Fd), 0)
		_, _ = b.ring.Submit()
	}
	delete(b.atoms, atom.Fd)
	delete(b.interest, atom.Fd)
	b.log.Debugf("kqueue-giouring: remove fd=%d", atom.Fd)
	return nil
}

func (b *KernelQueueGIOURING) Wait(timeoutMs int64) (int, error) {
	var err error
	if timeoutMs == interfaces.IntMax {
		_, err = b.ring.SubmitAndWait(1)
	} else {
		ts := unix.NsecToTimespec(timeoutMs * int64(1e6))
		_, err = b.ring.SubmitAndWaitTimeout(1, &ts, nil)
	}
	if err != nil {
		if err == unix.EINTR || err == unix.ETIME {
			b.ready = 0
			return 0, nil
		}
		return 0, err
	}
	b.ready = int(b.ring.CQReady())
	if b.ready > giouringMaxEvents {
		b.ready = giouringMaxEvents
	}
	return b.ready, nil
}

func (b *KernelQueueGIOURING) Dispatch() int {
	delivered := 0
	for i := 0; i < b.ready; i++ {
		cqe, err := b.ring.PeekCQE()
		if err != nil || cqe == nil {
			break
		}
		fd := int(cqe.UserData)
		mask := cqe.Res
		b.ring.CQESeen(cqe)

		atom, ok := b.atoms[fd]
		if !ok {
			continue
		}
		if mask&unix.POLLIN != 0 && atom.OnRead != nil {
			atom.OnRead(b, atom)
			delivered++
		}
		if b.atoms[fd] != atom {
			continue
		}
		if mask&unix.POLLOUT != 0 && atom.OnWrite != nil {
			atom.OnWrite(b, atom)
			delivered++
		}
	}
	return delivered
}

func (b *KernelQueueGIOURING) Listen(addr interfaces.SocketAddr, onAccept interfaces.Proc) (*interfaces.Atom, error) {
	return realListen(b, addr, onAccept)
}

func (b *KernelQueueGIOURING) Connect(addr interfaces.SocketAddr, onRead, onWrite interfaces.Proc) (*interfaces.Atom, error) {
	return realConnect(b, addr, onRead, onWrite)
}

func (b *KernelQueueGIOURING) Accept(listener *interfaces.Atom, onRead, onWrite interfaces.Proc) (*interfaces.Atom, interfaces.SocketAddr, error) {
	return realAccept(b, listener, onRead, onWrite)
}

func (b *KernelQueueGIOURING) Read(atom *interfaces.Atom, buf []byte) (int, error) {
	return realRead(atom, buf)
}

func (b *KernelQueueGIOURING) Write(atom *interfaces.Atom, buf []byte) (int, error) {
	return realWrite(atom, buf)
}

func (b *KernelQueueGIOURING) Close(atom *interfaces.Atom) error {
	return realClose(b, atom)
}
