package p2p

import (
	"errors"
	"net"
	"testing"
	"time"
)

func listenTCP(t *testing.T) (*TCPTransport, <-chan Conn) {
	t.Helper()
	srv := NewTCPTransport(TCPTransportOptions{ListenAddr: "127.0.0.1:0"})
	cb, ch := signal()
	if err := srv.Listen(cb); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(srv.Close)
	return srv, ch
}

func TestTCPConnectSendRecv(t *testing.T) {
	srv, accepted := listenTCP(t)
	if !srv.IsListening() {
		t.Fatal("expected listening")
	}

	cli := NewTCPTransport(TCPTransportOptions{})
	defer cli.Close()
	cb, connected := signal()
	if err := cli.Connect(srv.Addr(), cb); err != nil {
		t.Fatal(err)
	}
	wait(t, connected, "client callback")
	wait(t, accepted, "server callback")

	if err := FullSend(cli, []byte("hello")); err != nil {
		t.Fatal(err)
	}
	buf := make([]byte, 5)
	if err := FullRecv(srv, buf); err != nil {
		t.Fatal(err)
	}
	if string(buf) != "hello" {
		t.Fatalf("got %q", buf)
	}
	if srv.RemoteAddr() != cli.Addr() {
		t.Fatalf("server sees %s, client is %s", srv.RemoteAddr(), cli.Addr())
	}
}

func TestTCPRejectsSecondPeer(t *testing.T) {
	srv, accepted := listenTCP(t)

	first := NewTCPTransport(TCPTransportOptions{})
	defer first.Close()
	cb, _ := signal()
	if err := first.Connect(srv.Addr(), cb); err != nil {
		t.Fatal(err)
	}
	wait(t, accepted, "first peer")

	second, err := net.Dial("tcp", srv.Addr())
	if err != nil {
		t.Fatal(err)
	}
	defer second.Close()
	second.SetReadDeadline(time.Now().Add(3 * time.Second))
	if _, err := second.Read(make([]byte, 1)); err == nil {
		t.Fatal("second peer should have been closed by the server")
	}

	select {
	case <-accepted:
		t.Fatal("callback fired for the rejected peer")
	default:
	}
	if srv.RemoteAddr() != first.Addr() {
		t.Fatalf("active peer changed to %s", srv.RemoteAddr())
	}
}

func TestTCPDisconnectKeepsListening(t *testing.T) {
	srv, accepted := listenTCP(t)

	first := NewTCPTransport(TCPTransportOptions{})
	cb, _ := signal()
	if err := first.Connect(srv.Addr(), cb); err != nil {
		t.Fatal(err)
	}
	wait(t, accepted, "first peer")
	first.Close()

	// the server notices the loss on its next read
	if _, err := srv.Recv(make([]byte, 1)); err == nil {
		t.Fatal("expected read error after peer left")
	}
	if srv.IsConnected() {
		t.Fatal("server still connected")
	}
	if !srv.IsListening() {
		t.Fatal("disconnect must keep the listener")
	}

	second := NewTCPTransport(TCPTransportOptions{})
	defer second.Close()
	if err := second.Connect(srv.Addr(), cb); err != nil {
		t.Fatal(err)
	}
	wait(t, accepted, "second peer")
}

func TestTCPNotConnected(t *testing.T) {
	tr := NewTCPTransport(TCPTransportOptions{})
	if _, err := tr.Send([]byte("x")); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("send: %v", err)
	}
	if _, err := tr.Recv(make([]byte, 1)); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("recv: %v", err)
	}
	if err := tr.Listen(nil); err == nil {
		t.Fatal("listen with nil callback should fail")
	}
}

func TestTCPCloseIsFinal(t *testing.T) {
	srv, _ := listenTCP(t)
	addr := srv.Addr()
	srv.Close()

	if srv.IsListening() {
		t.Fatal("still listening after close")
	}
	cb, _ := signal()
	if err := srv.Listen(cb); !errors.Is(err, ErrClosed) {
		t.Fatalf("listen after close: %v", err)
	}
	if c, err := net.DialTimeout("tcp", addr, 200*time.Millisecond); err == nil {
		c.Close()
		t.Fatal("listener still accepting after close")
	}
}

func TestTCPListenPortNotShared(t *testing.T) {
	srv, _ := listenTCP(t)

	other := NewTCPTransport(TCPTransportOptions{ListenAddr: srv.Addr()})
	defer other.Close()
	cb, _ := signal()
	if err := other.Listen(cb); err == nil {
		t.Fatalf("second listener bound %s", srv.Addr())
	}
	if other.IsListening() {
		t.Fatal("failed listen left the transport listening")
	}
}

func TestTCPConnStaysWithItsPeer(t *testing.T) {
	srv, accepted := listenTCP(t)

	first := NewTCPTransport(TCPTransportOptions{})
	defer first.Close()
	cb, _ := signal()
	if err := first.Connect(srv.Addr(), cb); err != nil {
		t.Fatal(err)
	}
	old := wait(t, accepted, "first peer")
	srv.Disconnect()

	second := NewTCPTransport(TCPTransportOptions{})
	defer second.Close()
	if err := second.Connect(srv.Addr(), cb); err != nil {
		t.Fatal(err)
	}
	cur := wait(t, accepted, "second peer")
	if err := FullSend(second, []byte("fresh")); err != nil {
		t.Fatal(err)
	}

	if old.Connected() {
		t.Fatal("old conn reports connected")
	}
	if _, err := old.Recv(make([]byte, 5)); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("old conn recv: %v", err)
	}
	if _, err := old.Send([]byte("x")); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("old conn send: %v", err)
	}
	old.Disconnect()

	buf := make([]byte, 5)
	if err := FullRecv(cur, buf); err != nil {
		t.Fatal(err)
	}
	if string(buf) != "fresh" {
		t.Fatalf("got %q", buf)
	}
	if !cur.Connected() || cur.RemoteAddr() != second.Addr() {
		t.Fatalf("current conn lost: connected=%v remote=%s", cur.Connected(), cur.RemoteAddr())
	}
}
