// Package backend implements the four pluggable poller backends: readiness
// set (select), descriptor array (poll), edge-triggered kernel queue
// (epoll, optionally io_uring), and the scripted mock used by tests.
package backend

import (
	"net"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/corvid-systems/reactor/internal/interfaces"
)

// DefaultListenBacklog is the backlog every real backend's Listen passes to
// listen(2).
const DefaultListenBacklog = 128

// registrar is the subset of Poller every real backend needs in order to
// implement the shared socket operations: registering and unregistering an
// fd. Each concrete backend satisfies this trivially via its own Add/Remove.
type registrar interface {
	Add(atom *interfaces.Atom, interest interfaces.Interest) error
	Remove(atom *interfaces.Atom) error
}

// setNonblock mirrors socket.c's set_nonblock: try the ioctl first, fall
// back to the fcntl dance if it's not supported on this fd type.
func setNonblock(fd int) error {
	if err := unix.IoctlSetInt(fd, unix.FIONBIO, 1); err == nil {
		return nil
	}
	flags, err := unix.FcntlInt(uintptr(fd), unix.F_GETFL, 0)
	if err != nil {
		return err
	}
	_, err = unix.FcntlInt(uintptr(fd), unix.F_SETFL, flags|unix.O_NONBLOCK)
	return err
}

func toSockaddr(addr interfaces.SocketAddr) *unix.SockaddrInet4 {
	sa := &unix.SockaddrInet4{Port: addr.Port}
	ip4 := addr.IP.To4()
	if ip4 == nil {
		ip4 = net.IPv4zero.To4()
	}
	copy(sa.Addr[:], ip4)
	return sa
}

func fromSockaddr(sa unix.Sockaddr) interfaces.SocketAddr {
	in4, ok := sa.(*unix.SockaddrInet4)
	if !ok {
		return interfaces.SocketAddr{}
	}
	ip := make(net.IP, 4)
	copy(ip, in4.Addr[:])
	return interfaces.SocketAddr{IP: ip, Port: in4.Port}
}

// connectFD mirrors socket.c's connect_fd: bind to an ephemeral local port,
// connect, then flip the fd nonblocking.
func connectFD(remote interfaces.SocketAddr) (int, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	if err != nil {
		return -1, err
	}
	if err := unix.Bind(fd, &unix.SockaddrInet4{}); err != nil {
		unix.Close(fd)
		return -1, err
	}
	err = unix.Connect(fd, toSockaddr(remote))
	if err != nil && err != unix.EINPROGRESS {
		unix.Close(fd)
		return -1, err
	}
	if err := setNonblock(fd); err != nil {
		unix.Close(fd)
		return -1, err
	}
	return fd, nil
}

// realListen implements the Listen socket op shared by every OS-backed
// poller: open, nonblock, bind, listen, then register for READ.
func realListen(r registrar, addr interfaces.SocketAddr, onAccept interfaces.Proc) (*interfaces.Atom, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, err
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return nil, err
	}
	if err := setNonblock(fd); err != nil {
		unix.Close(fd)
		return nil, err
	}
	if err := unix.Bind(fd, toSockaddr(addr)); err != nil {
		unix.Close(fd)
		return nil, err
	}
	if err := unix.Listen(fd, DefaultListenBacklog); err != nil {
		unix.Close(fd)
		return nil, err
	}
	atom := interfaces.NewAtom(fd, onAccept, nil, nil)
	if err := r.Add(atom, interfaces.Read); err != nil {
		unix.Close(fd)
		return nil, err
	}
	return atom, nil
}

// realConnect implements the Connect socket op shared by every OS-backed
// poller.
func realConnect(r registrar, addr interfaces.SocketAddr, onRead, onWrite interfaces.Proc) (*interfaces.Atom, error) {
	fd, err := connectFD(addr)
	if err != nil {
		return nil, err
	}
	atom := interfaces.NewAtom(fd, onRead, onWrite, nil)
	interest := interfaces.Read | interfaces.Write
	if err := r.Add(atom, interest); err != nil {
		unix.Close(fd)
		return nil, err
	}
	return atom, nil
}

// realAccept implements the Accept socket op shared by every OS-backed
// poller. It retries internally on EINTR, matching socket.c's
// io_socket_accept loop, and never surfaces that retry to the caller.
func realAccept(r registrar, listener *interfaces.Atom, onRead, onWrite interfaces.Proc) (*interfaces.Atom, interfaces.SocketAddr, error) {
	for {
		fd, sa, err := unix.Accept(listener.Fd)
		if err == nil {
			if err := setNonblock(fd); err != nil {
				unix.Close(fd)
				return nil, interfaces.SocketAddr{}, err
			}
			atom := interfaces.NewAtom(fd, onRead, onWrite, nil)
			if err := r.Add(atom, interfaces.Read); err != nil {
				unix.Close(fd)
				return nil, interfaces.SocketAddr{}, err
			}
			return atom, fromSockaddr(sa), nil
		}
		if err == unix.EINTR {
			continue
		}
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return nil, interfaces.SocketAddr{}, nil
		}
		return nil, interfaces.SocketAddr{}, err
	}
}

// realRead implements the Read socket op. It coalesces EOF and ECONNRESET
// into a single CLOSED condition (matching atom.c's io_read, which returns
// EPIPE for both) and EAGAIN/EWOULDBLOCK into a plain 0-byte success rather
// than an error.
func realRead(atom *interfaces.Atom, buf []byte) (int, error) {
	for {
		n, err := unix.Read(atom.Fd, buf)
		if err == nil {
			if n == 0 {
				return 0, syscall.EPIPE
			}
			return n, nil
		}
		if err == unix.EINTR {
			continue
		}
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return 0, nil
		}
		if err == unix.ECONNRESET {
			return 0, syscall.EPIPE
		}
		return 0, err
	}
}

// realWrite implements the Write socket op with the same EINTR/EAGAIN/EOF
// handling as realRead.
func realWrite(atom *interfaces.Atom, buf []byte) (int, error) {
	for {
		n, err := unix.Write(atom.Fd, buf)
		if err == nil {
			return n, nil
		}
		if err == unix.EINTR {
			continue
		}
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return 0, nil
		}
		if err == unix.EPIPE || err == unix.ECONNRESET {
			return 0, syscall.EPIPE
		}
		return 0, err
	}
}

// realClose implements the Close socket op: unregister then close, matching
// atom.c's io_close ordering (del before close).
func realClose(r registrar, atom *interfaces.Atom) error {
	if err := r.Remove(atom); err != nil {
		return err
	}
	err := unix.Close(atom.Fd)
	atom.Fd = -1
	return err
}
