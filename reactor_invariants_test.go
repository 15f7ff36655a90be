package reactor

import (
	"syscall"
	"testing"
)

// TestReadOnlyAtomNeverGetsWriteCallback covers testable property 2: an
// atom registered with READ only never receives an OnWrite callback, even
// though the underlying fd is almost always writable.
func TestReadOnlyAtomNeverGetsWriteCallback(t *testing.T) {
	r, err := New(ReadinessSet, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer r.Dispose()

	addr, _ := ParseAddress("127.0.0.1", SocketAddr{Port: 28095})
	listener, err := r.Listen(addr, nil)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer r.Close(listener)

	client, err := New(ReadinessSet, nil)
	if err != nil {
		t.Fatalf("New(client): %v", err)
	}
	defer client.Dispose()

	writeCalled := false
	onWrite := func(p Poller, a *Atom) { writeCalled = true }

	clientAtom, err := client.Connect(addr, nil, onWrite)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer client.Close(clientAtom)

	// Demote interest to READ only -- the fd stays writable at the OS
	// level, but Dispatch must never invoke OnWrite once interest excludes
	// WRITE.
	if err := client.Set(clientAtom, Read); err != nil {
		t.Fatalf("Set: %v", err)
	}

	for i := 0; i < 3; i++ {
		if _, err := client.Wait(20); err != nil {
			t.Fatalf("Wait: %v", err)
		}
		client.Dispatch()
	}

	if writeCalled {
		t.Error("OnWrite fired for an atom registered with READ-only interest")
	}
}

// newConnectedUnixPair returns a pair of connected, non-blocking stream
// socket fds, suitable for driving a backend's readiness logic without any
// listen/accept timing to race against.
func newConnectedUnixPair(t *testing.T) (a, b int) {
	t.Helper()
	fds, err := syscall.Socketpair(syscall.AF_UNIX, syscall.SOCK_STREAM, 0)
	if err != nil {
		t.Fatalf("Socketpair: %v", err)
	}
	for _, fd := range fds {
		if err := syscall.SetNonblock(fd, true); err != nil {
			t.Fatalf("SetNonblock: %v", err)
		}
	}
	return fds[0], fds[1]
}

// TestRemoveDuringDispatchSuppressesFurtherCallbacks covers testable
// property 3: an atom that removes itself from within its
// own OnRead callback must not go on to receive its OnWrite callback in
// the same Dispatch pass, even though both directions are simultaneously
// ready. A connected AF_UNIX socketpair with data already buffered on one
// end is read-ready and write-ready at the same instant, with no
// connect/accept timing to race.
func TestRemoveDuringDispatchSuppressesFurtherCallbacks(t *testing.T) {
	readFd, peerFd := newConnectedUnixPair(t)
	defer syscall.Close(peerFd)

	if _, err := syscall.Write(peerFd, []byte("hi")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	r, err := New(ReadinessSet, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer r.Dispose()

	writeCalled := false
	var atom *Atom
	onRead := func(p Poller, a *Atom) {
		if err := p.Remove(a); err != nil {
			t.Fatalf("Remove: %v", err)
		}
		syscall.Close(a.Fd)
	}
	onWrite := func(p Poller, a *Atom) { writeCalled = true }

	atom = NewAtom(readFd, onRead, onWrite, nil)
	if err := r.Add(atom, Read|Write); err != nil {
		t.Fatalf("Add: %v", err)
	}

	n, err := r.Wait(1000)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if n == 0 {
		t.Fatal("fd with buffered data and an always-writable peer was not reported ready")
	}
	r.Dispatch()

	if writeCalled {
		t.Error("OnWrite fired after the atom removed itself inside OnRead in the same dispatch pass")
	}
}

// TestWaitDispatchCallbackCountBound covers testable property 5: the
// number of callbacks Dispatch delivers never exceeds the readiness count
// Wait returned.
func TestWaitDispatchCallbackCountBound(t *testing.T) {
	r, err := New(ReadinessSet, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer r.Dispose()

	addr, _ := ParseAddress("127.0.0.1", SocketAddr{Port: 28097})
	calls := 0
	listener, err := r.Listen(addr, func(p Poller, a *Atom) { calls++ })
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer r.Close(listener)

	n, err := r.Wait(20)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	r.Dispatch()
	if calls > n {
		t.Errorf("Dispatch delivered %d callbacks, more than Wait's readiness count %d", calls, n)
	}
}

// TestAddRemoveFDCheckInvariant covers testable property 1: across any
// sequence of Add/Remove, FDCheck always equals the count of adds minus
// removes.
func TestAddRemoveFDCheckInvariant(t *testing.T) {
	r, err := New(ReadinessSet, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer r.Dispose()

	var atoms []*Atom
	want := 0
	for i := 0; i < 5; i++ {
		a := NewAtom(100+i, nil, nil, nil)
		if err := r.Add(a, Read); err != nil {
			t.Fatalf("Add: %v", err)
		}
		atoms = append(atoms, a)
		want++
		if got := r.FDCheck(); got != want {
			t.Errorf("after Add #%d: FDCheck() = %d, want %d", i, got, want)
		}
	}
	for i, a := range atoms {
		if err := r.Remove(a); err != nil {
			t.Fatalf("Remove: %v", err)
		}
		want--
		if got := r.FDCheck(); got != want {
			t.Errorf("after Remove #%d: FDCheck() = %d, want %d", i, got, want)
		}
	}
}
