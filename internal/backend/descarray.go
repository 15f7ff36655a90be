package backend

import (
	"golang.org/x/sys/unix"

	"github.com/corvid-systems/reactor/internal/interfaces"
)

// descSlot pairs a pollfd entry with the atom it belongs to. A nil atom
// marks an available (previously removed) slot, mirroring poll.c's
// find_fd() linear scan for a free entry.
type descSlot struct {
	atom *interfaces.Atom
}

// DescArray is the descriptor-array backend: a thin wrapper over poll(2).
// It is grounded on original_source/pollers/poll.c.
type DescArray struct {
	log interfaces.Logger

	pfds  []unix.PollFd
	slots []descSlot
}

var _ interfaces.Poller = (*DescArray)(nil)

// NewDescArray builds an empty descriptor-array backend.
func NewDescArray(log interfaces.Logger) *DescArray {
	return &DescArray{log: log}
}

func (b *DescArray) Kind() interfaces.BackendKind { return interfaces.DescriptorArray }

func (b *DescArray) Dispose() error { return nil }

func (b *DescArray) FDCheck() int {
	cnt := 0
	for _, s := range b.slots {
		if s.atom != nil {
			cnt++
		}
	}
	return cnt
}

func (b *DescArray) findFd(fd int) int {
	for i, p := range b.pfds {
		if b.slots[i].atom != nil && int(p.Fd) == fd {
			return i
		}
	}
	return -1
}

func (b *DescArray) findFree() int {
	for i := range b.slots {
		if b.slots[i].atom == nil {
			return i
		}
	}
	return -1
}

func interestToEvents(interest interfaces.Interest) int16 {
	var ev int16
	if interest&interfaces.Read != 0 {
		ev |= unix.POLLIN
	}
	if interest&interfaces.Write != 0 {
		ev |= unix.POLLOUT
	}
	return ev
}

func (b *DescArray) Add(atom *interfaces.Atom, interest interfaces.Interest) error {
	if atom.Fd < 0 {
		return errRange()
	}
	if b.findFd(atom.Fd) >= 0 {
		return errAlreadyRegistered()
	}
	idx := b.findFree()
	entry := unix.PollFd{Fd: int32(atom.Fd), Events: interestToEvents(interest)}
	if idx < 0 {
		b.pfds = append(b.pfds, entry)
		b.slots = append(b.slots, descSlot{atom: atom})
	} else {
		b.pfds[idx] = entry
		b.slots[idx].atom = atom
	}
	b.log.Debugf("descarray: add fd=%d interest=%s", atom.Fd, interest)
	return nil
}

func (b *DescArray) Set(atom *interfaces.Atom, interest interfaces.Interest) error {
	idx := b.findFd(atom.Fd)
	if idx < 0 {
		return errNotRegistered()
	}
	b.pfds[idx].Events = interestToEvents(interest)
	b.log.Debugf("descarray: set fd=%d interest=%s", atom.Fd, interest)
	return nil
}

func (b *DescArray) Remove(atom *interfaces.Atom) error {
	idx := b.findFd(atom.Fd)
	if idx < 0 {
		return errNotRegistered()
	}
	b.slots[idx].atom = nil
	b.pfds[idx] = unix.PollFd{Fd: -1}
	b.log.Debugf("descarray: remove fd=%d", atom.Fd)
	return nil
}

func (b *DescArray) Wait(timeoutMs int64) (int, error) {
	to := -1
	if timeoutMs != interfaces.IntMax {
		to = int(timeoutMs)
	}
	n, err := unix.Poll(b.pfds, to)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, err
	}
	return n, nil
}

func (b *DescArray) Dispatch() int {
	delivered := 0
	for i := range b.pfds {
		atom := b.slots[i].atom
		if atom == nil {
			continue
		}
		revents := b.pfds[i].Revents
		if revents == 0 {
			continue
		}
		b.pfds[i].Revents = 0
		if revents&(unix.POLLIN|unix.POLLHUP|unix.POLLERR) != 0 && atom.OnRead != nil {
			atom.OnRead(b, atom)
			delivered++
		}
		if b.slots[i].atom != atom {
			continue
		}
		if revents&unix.POLLOUT != 0 && atom.OnWrite != nil {
			atom.OnWrite(b, atom)
			delivered++
		}
	}
	return delivered
}

func (b *DescArray) Listen(addr interfaces.SocketAddr, onAccept interfaces.Proc) (*interfaces.Atom, error) {
	return realListen(b, addr, onAccept)
}

func (b *DescArray) Connect(addr interfaces.SocketAddr, onRead, onWrite interfaces.Proc) (*interfaces.Atom, error) {
	return realConnect(b, addr, onRead, onWrite)
}

func (b *DescArray) Accept(listener *interfaces.Atom, onRead, onWrite interfaces.Proc) (*interfaces.Atom, interfaces.SocketAddr, error) {
	return realAccept(b, listener, onRead, onWrite)
}

func (b *DescArray) Read(atom *interfaces.Atom, buf []byte) (int, error) {
	return realRead(atom, buf)
}

func (b *DescArray) Write(atom *interfaces.Atom, buf []byte) (int, error) {
	return realWrite(atom, buf)
}

func (b *DescArray) Close(atom *interfaces.Atom) error {
	return realClose(b, atom)
}
