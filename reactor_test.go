package reactor

import (
	"testing"
	"time"
)

// runEcho drives one accept/read/write/close round trip over a real
// backend: a listener accepts one connection, echoes back whatever it
// reads, and the client reads the echo back.
func runEcho(t *testing.T, kind BackendKind, port int) {
	t.Helper()

	server, err := New(kind, nil)
	if err != nil {
		t.Fatalf("New(server): %v", err)
	}
	defer server.Dispose()

	client, err := New(kind, nil)
	if err != nil {
		t.Fatalf("New(client): %v", err)
	}
	defer client.Dispose()

	addr, err := ParseAddress("127.0.0.1", SocketAddr{Port: port})
	if err != nil {
		t.Fatalf("ParseAddress: %v", err)
	}

	var (
		echoed   = make(chan string, 1)
		accepted *Atom
	)

	onServerRead := func(p Poller, a *Atom) {
		buf := make([]byte, 64)
		n, err := p.Read(a, buf)
		if err != nil || n == 0 {
			return
		}
		p.Write(a, buf[:n])
	}

	onAccept := func(p Poller, a *Atom) {
		conn, _, err := p.Accept(a, onServerRead, nil)
		if err != nil {
			return
		}
		if conn != nil {
			accepted = conn
		}
	}

	listener, err := server.Listen(addr, onAccept)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer server.Close(listener)

	var connected bool
	onClientWrite := func(p Poller, a *Atom) {
		if connected {
			return
		}
		connected = true
		p.Write(a, []byte("hello"))
	}
	onClientRead := func(p Poller, a *Atom) {
		buf := make([]byte, 64)
		n, err := p.Read(a, buf)
		if err != nil || n == 0 {
			return
		}
		select {
		case echoed <- string(buf[:n]):
		default:
		}
	}

	client1, err := client.Connect(addr, onClientRead, onClientWrite)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer client.Close(client1)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := server.Wait(50); err != nil {
			t.Fatalf("server Wait: %v", err)
		}
		server.Dispatch()
		if _, err := client.Wait(50); err != nil {
			t.Fatalf("client Wait: %v", err)
		}
		client.Dispatch()

		select {
		case got := <-echoed:
			if got != "hello" {
				t.Errorf("echoed %q, want %q", got, "hello")
			}
			if accepted != nil {
				server.Close(accepted)
			}
			return
		default:
		}
	}
	t.Fatal("timed out waiting for echo")
}

func TestReadinessSetEcho(t *testing.T) {
	runEcho(t, ReadinessSet, 28081)
}

func TestDescriptorArrayEcho(t *testing.T) {
	runEcho(t, DescriptorArray, 28082)
}

func TestKernelQueueEcho(t *testing.T) {
	runEcho(t, KernelQueue, 28083)
}

func TestNewFallsBackThroughMask(t *testing.T) {
	r, err := New(Mock, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if r.Kind() != Mock {
		t.Errorf("Kind() = %v, want Mock", r.Kind())
	}
}

func TestNewRejectsEmptyMask(t *testing.T) {
	if _, err := New(0, nil); err == nil {
		t.Error("expected an error for an empty backend mask")
	}
}

func TestFDCheckReflectsOpenAtoms(t *testing.T) {
	r, err := New(ReadinessSet, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer r.Dispose()

	addr, _ := ParseAddress("127.0.0.1", SocketAddr{Port: 28090})
	listener, err := r.Listen(addr, nil)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	if r.FDCheck() != 1 {
		t.Errorf("FDCheck() = %d, want 1", r.FDCheck())
	}
	if err := r.Close(listener); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if r.FDCheck() != 0 {
		t.Errorf("FDCheck() after Close = %d, want 0", r.FDCheck())
	}
}
