package backend

import (
	"golang.org/x/sys/unix"

	"github.com/corvid-systems/reactor/internal/interfaces"
)

// epollMaxEvents mirrors epoll.c's IO_EPOLL_MAX_EVENTS batch size per wait.
const epollMaxEvents = 256

// KernelQueue is the edge-triggered kernel-queue backend: a thin wrapper
// over epoll(2) with EPOLLET always set, matching epoll.c's get_events().
// It is grounded on original_source/pollers/epoll.c. Go's EpollEvent carries
// an fd rather than a raw userdata pointer, so atoms are looked up by fd
// instead of epoll.c's event.data.ptr.
type KernelQueue struct {
	log  interfaces.Logger
	epfd int

	atoms  map[int]*interfaces.Atom
	events [epollMaxEvents]unix.EpollEvent
	ready  int
}

var _ interfaces.Poller = (*KernelQueue)(nil)

// NewKernelQueue creates the epoll instance. Grounded on epoll.c's
// io_epoll_init.
func NewKernelQueue(log interfaces.Logger) (*KernelQueue, error) {
	epfd, err := unix.EpollCreate1(0)
	if err != nil {
		return nil, err
	}
	return &KernelQueue{log: log, epfd: epfd, atoms: make(map[int]*interfaces.Atom)}, nil
}

func (b *KernelQueue) Kind() interfaces.BackendKind { return interfaces.KernelQueue }

func (b *KernelQueue) Dispose() error {
	return unix.Close(b.epfd)
}

func (b *KernelQueue) FDCheck() int {
	return len(b.atoms)
}

func getEvents(interest interfaces.Interest) uint32 {
	var ev uint32
	if interest&interfaces.Read != 0 {
		ev |= unix.EPOLLIN | unix.EPOLLET
	}
	if interest&interfaces.Write != 0 {
		ev |= unix.EPOLLOUT | unix.EPOLLET
	}
	return ev
}

func (b *KernelQueue) Add(atom *interfaces.Atom, interest interfaces.Interest) error {
	if _, exists := b.atoms[atom.Fd]; exists {
		return errAlreadyRegistered()
	}
	ev := unix.EpollEvent{Events: getEvents(interest), Fd: int32(atom.Fd)}
	if err := unix.EpollCtl(b.epfd, unix.EPOLL_CTL_ADD, atom.Fd, &ev); err != nil {
		return err
	}
	b.atoms[atom.Fd] = atom
	b.log.Debugf("kqueue: add fd=%d interest=%s", atom.Fd, interest)
	return nil
}

func (b *KernelQueue) Set(atom *interfaces.Atom, interest interfaces.Interest) error {
	if _, exists := b.atoms[atom.Fd]; !exists {
		return errNotRegistered()
	}
	ev := unix.EpollEvent{Events: getEvents(interest), Fd: int32(atom.Fd)}
	if err := unix.EpollCtl(b.epfd, unix.EPOLL_CTL_MOD, atom.Fd, &ev); err != nil {
		return err
	}
	b.log.Debugf("kqueue: set fd=%d interest=%s", atom.Fd, interest)
	return nil
}

func (b *KernelQueue) Remove(atom *interfaces.Atom) error {
	if _, exists := b.atoms[atom.Fd]; !exists {
		return errNotRegistered()
	}
	// Linux permits a nil event for EPOLL_CTL_DEL since 2.6.9.
	err := unix.EpollCtl(b.epfd, unix.EPOLL_CTL_DEL, atom.Fd, &unix.EpollEvent{})
	delete(b.atoms, atom.Fd)
	b.log.Debugf("kqueue: remove fd=%d", atom.Fd)
	return err
}

func (b *KernelQueue) Wait(timeoutMs int64) (int, error) {
	to := -1
	if timeoutMs != interfaces.IntMax {
		to = int(timeoutMs)
	}
	n, err := unix.EpollWait(b.epfd, b.events[:], to)
	if err != nil {
		if err == unix.EINTR {
			b.ready = 0
			return 0, nil
		}
		return 0, err
	}
	b.ready = n
	return n, nil
}

func (b *KernelQueue) Dispatch() int {
	delivered := 0
	for i := 0; i < b.ready; i++ {
		ev := b.events[i]
		atom, ok := b.atoms[int(ev.Fd)]
		if !ok {
			continue
		}
		if ev.Events&(unix.EPOLLIN|unix.EPOLLHUP|unix.EPOLLERR) != 0 && atom.OnRead != nil {
			atom.OnRead(b, atom)
			delivered++
		}
		if b.atoms[int(ev.Fd)] != atom {
			continue
		}
		if ev.Events&unix.EPOLLOUT != 0 && atom.OnWrite != nil {
			atom.OnWrite(b, atom)
			delivered++
		}
	}
	return delivered
}

func (b *KernelQueue) Listen(addr interfaces.SocketAddr, onAccept interfaces.Proc) (*interfaces.Atom, error) {
	return realListen(b, addr, onAccept)
}

func (b *KernelQueue) Connect(addr interfaces.SocketAddr, onRead, onWrite interfaces.Proc) (*interfaces.Atom, error) {
	return realConnect(b, addr, onRead, onWrite)
}

func (b *KernelQueue) Accept(listener *interfaces.Atom, onRead, onWrite interfaces.Proc) (*interfaces.Atom, interfaces.SocketAddr, error) {
	return realAccept(b, listener, onRead, onWrite)
}

func (b *KernelQueue) Read(atom *interfaces.Atom, buf []byte) (int, error) {
	return realRead(atom, buf)
}

func (b *KernelQueue) Write(atom *interfaces.Atom, buf []byte) (int, error) {
	return realWrite(atom, buf)
}

func (b *KernelQueue) Close(atom *interfaces.Atom) error {
	return realClose(b, atom)
}
