package reactor

import (
	"syscall"
	"testing"
)

// TestMockHandshake reproduces a full client/server request-response
// exchange over the scripted Mock backend: listen, connect, accept, a
// request and reply each way, then both sides closing -- the client
// closing cleanly and the server discovering the close via a zero-length
// read, mirroring testmock.c's "close alan normally" pattern.
func TestMockHandshake(t *testing.T) {
	serverConn := &Connection{Name: "server", SourceAddr: "127.0.0.1:9000"}
	clientConn := &Connection{Name: "client", SourceAddr: "127.0.0.1:5555"}
	acceptedConn := &Connection{Name: "accepted", SourceAddr: "127.0.0.1:5555"}

	var (
		serverAtom, clientAtom, acceptedAtom *Atom
		serverGotPing, clientGotPong         string
		serverSawClose                       bool
	)

	onServerRead := func(p Poller, a *Atom) {
		buf := make([]byte, 64)
		n, err := p.Read(a, buf)
		if err != nil {
			if err == syscall.EPIPE {
				serverSawClose = true
				p.Close(a)
			}
			return
		}
		serverGotPing = string(buf[:n])
		p.Write(a, []byte("pong"))
	}

	onAccept := func(p Poller, a *Atom) {
		accepted, _, err := p.Accept(a, onServerRead, nil)
		if err != nil {
			t.Fatalf("Accept: %v", err)
		}
		acceptedAtom = accepted
	}

	onClientRead := func(p Poller, a *Atom) {
		buf := make([]byte, 64)
		n, err := p.Read(a, buf)
		if err != nil {
			t.Fatalf("client Read: %v", err)
		}
		clientGotPong = string(buf[:n])
		p.Close(a)
	}

	onClientWrite := func(p Poller, a *Atom) {
		if _, err := p.Write(a, []byte("ping")); err != nil {
			t.Fatalf("client Write: %v", err)
		}
	}

	queue, err := NewMockEventQueue([]EventSet{
		{
			ListenEvent(serverConn, "127.0.0.1:9000"),
			ConnectEvent(clientConn, "127.0.0.1:9000"),
		},
		{
			EventRead(serverConn),
			AcceptEvent(acceptedConn, "127.0.0.1:9000"),
			EventWrite(clientConn),
			WriteEvent(clientConn, MockData("ping")),
		},
		{
			EventRead(acceptedConn),
			ReadEvent(acceptedConn, MockData("ping")),
			WriteEvent(acceptedConn, MockData("pong")),
		},
		{
			EventRead(clientConn),
			ReadEvent(clientConn, MockData("pong")),
			CloseEvent(clientConn),
		},
		{
			EventRead(acceptedConn),
			ReadEvent(acceptedConn, MockData("")),
			CloseEvent(acceptedConn),
		},
		{FinishedEvent()},
	})
	if err != nil {
		t.Fatalf("NewMockEventQueue: %v", err)
	}

	r, err := New(Mock, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := SetMockFatalf(r, func(format string, args ...interface{}) { t.Fatalf(format, args...) }); err != nil {
		t.Fatalf("SetMockFatalf: %v", err)
	}
	if err := SetEvents(r, queue); err != nil {
		t.Fatalf("SetEvents: %v", err)
	}

	listenAddr, err := ParseAddress("127.0.0.1:9000", SocketAddr{})
	if err != nil {
		t.Fatalf("ParseAddress: %v", err)
	}

	serverAtom, err = r.Listen(listenAddr, onAccept)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	clientAtom, err = r.Connect(listenAddr, onClientRead, onClientWrite)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	_ = serverAtom

	for i := 0; i < 5; i++ {
		n, err := r.Wait(-1)
		if err == ErrFinished {
			break
		}
		if err != nil {
			t.Fatalf("Wait[%d]: %v", i, err)
		}
		_ = n
		r.Dispatch()
	}

	if serverGotPing != "ping" {
		t.Errorf("server never received %q, got %q", "ping", serverGotPing)
	}
	if clientGotPong != "pong" {
		t.Errorf("client never received %q, got %q", "pong", clientGotPong)
	}
	if !serverSawClose {
		t.Error("server never observed the client's close")
	}
	_ = acceptedAtom
	_ = clientAtom
}

// TestMockMultiConnectionInterleaving reproduces testmock.c's server_events
// script: a listener accepts two interleaved connections (alan, barney,
// named after the original's mock_connections), each echoing one line and
// draining reads until a scripted EAGAIN, then alan closing cleanly on a
// zero-length read and barney's connection resetting instead.
func TestMockMultiConnectionInterleaving(t *testing.T) {
	listener := &Connection{Name: "listener", SourceAddr: "127.0.0.1:6543"}
	alan := &Connection{Name: "alan", SourceAddr: "127.0.0.1:49152"}
	barney := &Connection{Name: "barney", SourceAddr: "127.0.0.1:49153"}

	results := map[string]struct {
		echoed string
		closed bool
	}{}
	record := func(name, echoed string) {
		r := results[name]
		r.echoed = echoed
		results[name] = r
	}
	markClosed := func(name string) {
		r := results[name]
		r.closed = true
		results[name] = r
	}

	// echoProc drains reads for one connection until a scripted EAGAIN (a
	// zero-byte, nil-error result), echoing each chunk back, then treats any
	// error as the peer going away -- matching echo_data's drain loop.
	// Both a zero-length read (clean EOF) and a scripted ECONNRESET surface
	// here as the same syscall.EPIPE, by design: the Mock's Read coalesces
	// them into one CLOSED condition just as realRead (and atom.c's io_read)
	// does on a real backend, so the two
	// connections below are indistinguishable from the application's side
	// even though the script drives them through different errno paths.
	echoProc := func(name string) Proc {
		return func(p Poller, a *Atom) {
			for {
				buf := make([]byte, 64)
				n, err := p.Read(a, buf)
				if err != nil {
					markClosed(name)
					p.Close(a)
					return
				}
				if n == 0 {
					return // EAGAIN: drained for this pass
				}
				record(name, string(buf[:n]))
				p.Write(a, buf[:n])
			}
		}
	}

	var alanAtom, barneyAtom *Atom
	onAccept := func(p Poller, a *Atom) {
		switch {
		case alanAtom == nil:
			accepted, _, err := p.Accept(a, echoProc("alan"), nil)
			if err != nil {
				t.Fatalf("accept alan: %v", err)
			}
			alanAtom = accepted
		default:
			accepted, _, err := p.Accept(a, echoProc("barney"), nil)
			if err != nil {
				t.Fatalf("accept barney: %v", err)
			}
			barneyAtom = accepted
		}
	}

	queue, err := NewMockEventQueue([]EventSet{
		{ListenEvent(listener, "127.0.0.1:6543")},
		{EventRead(listener), AcceptEvent(alan, "127.0.0.1:6543")},
		{EventRead(listener), AcceptEvent(barney, "127.0.0.1:6543")},
		{
			EventRead(alan),
			ReadEvent(alan, MockData("hi\n")),
			WriteEvent(alan, MockData("hi\n")),
			ReadEvent(alan, MockErrno(int(syscall.EAGAIN))),
		},
		{
			EventRead(barney),
			ReadEvent(barney, MockData("hello\n")),
			WriteEvent(barney, MockData("hello\n")),
			ReadEvent(barney, MockErrno(int(syscall.EAGAIN))),
		},
		{
			EventRead(alan),
			ReadEvent(alan, MockData("")), // close alan normally
			CloseEvent(alan),
		},
		{
			EventRead(barney),
			ReadEvent(barney, MockErrno(int(syscall.ECONNRESET))), // barney resets
			CloseEvent(barney),
		},
		{FinishedEvent()},
	})
	if err != nil {
		t.Fatalf("NewMockEventQueue: %v", err)
	}

	r, err := New(Mock, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := SetMockFatalf(r, func(format string, args ...interface{}) { t.Fatalf(format, args...) }); err != nil {
		t.Fatalf("SetMockFatalf: %v", err)
	}
	if err := SetEvents(r, queue); err != nil {
		t.Fatalf("SetEvents: %v", err)
	}

	listenAddr, err := ParseAddress("127.0.0.1:6543", SocketAddr{})
	if err != nil {
		t.Fatalf("ParseAddress: %v", err)
	}
	if _, err := r.Listen(listenAddr, onAccept); err != nil {
		t.Fatalf("Listen: %v", err)
	}

	for i := 0; i < len(queue.Sets); i++ {
		if _, err := r.Wait(WaitForever); err != nil {
			if err == ErrFinished {
				break
			}
			t.Fatalf("Wait[%d]: %v", i, err)
		}
		r.Dispatch()
	}
	_ = alanAtom
	_ = barneyAtom

	cases := []struct {
		name   string
		echoed string
	}{
		{name: "alan", echoed: "hi\n"},
		{name: "barney", echoed: "hello\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := results[tc.name]
			if got.echoed != tc.echoed {
				t.Errorf("echoed = %q, want %q", got.echoed, tc.echoed)
			}
			if !got.closed {
				t.Error("connection was never closed")
			}
		})
	}
}
