package p2p

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"
)

const (
	DefaultBroadcastInterval = 10 * time.Second
	DefaultDialTimeout       = 10 * time.Second
)

type TCPTransportOptions struct {
	ListenAddr string
	// BroadcastInterval paces discovery datagrams while listening on a
	// non-loopback address. Zero means DefaultBroadcastInterval, negative
	// turns discovery broadcasting off.
	BroadcastInterval time.Duration
	// DiscoveryPort is the UDP port announcements are sent to.
	DiscoveryPort int
	DialTimeout   time.Duration
	Logger        *slog.Logger
}

// TCPTransport is the plain stream transport. It accepts one peer at a time;
// connections arriving while a peer is active are closed immediately.
type TCPTransport struct {
	TCPTransportOptions
	log *slog.Logger

	mu          sync.Mutex
	listener    net.Listener
	conn        net.Conn
	addr        string
	remoteAddr  string
	closed      bool
	quitChannel chan struct{}
	wg          sync.WaitGroup
}

func NewTCPTransport(opts TCPTransportOptions) *TCPTransport {
	if opts.BroadcastInterval == 0 {
		opts.BroadcastInterval = DefaultBroadcastInterval
	}
	if opts.DiscoveryPort == 0 {
		opts.DiscoveryPort = DefaultPort
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = DefaultDialTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &TCPTransport{
		TCPTransportOptions: opts,
		log:                 logger.With("component", "tcp"),
		quitChannel:         make(chan struct{}),
	}
}

func (t *TCPTransport) Listen(onConnected ConnectedFunc) error {
	if onConnected == nil {
		return errors.New("p2p: listen needs a connected callback")
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrClosed
	}
	if t.listener != nil {
		return errors.New("p2p: already listening")
	}

	lc := net.ListenConfig{Control: setSocketReuseAddr}
	ln, err := lc.Listen(context.Background(), "tcp", ResolveAddr(t.ListenAddr))
	if err != nil {
		return fmt.Errorf("listen %s: %w", t.ListenAddr, err)
	}
	t.listener = ln
	t.addr = ln.Addr().String()
	t.log.Info("listening", "addr", t.addr)

	t.wg.Add(1)
	go t.acceptLoop(ln, onConnected)

	if t.BroadcastInterval > 0 && !isLoopback(t.addr) {
		t.wg.Add(1)
		go t.broadcastLoop()
	}
	return nil
}

func (t *TCPTransport) acceptLoop(ln net.Listener, onConnected ConnectedFunc) {
	defer t.wg.Done()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			t.log.Warn("accept failed", "err", err)
			select {
			case <-t.quitChannel:
				return
			case <-time.After(50 * time.Millisecond):
			}
			continue
		}

		t.mu.Lock()
		if t.conn != nil {
			t.mu.Unlock()
			t.log.Debug("peer already connected, rejecting", "remote", conn.RemoteAddr())
			conn.Close()
			continue
		}
		t.conn = conn
		t.remoteAddr = conn.RemoteAddr().String()
		t.mu.Unlock()

		t.log.Info("peer accepted", "remote", conn.RemoteAddr())
		onConnected(t.bind(conn))
	}
}

func (t *TCPTransport) Connect(remote string, onConnected ConnectedFunc) error {
	if onConnected == nil {
		return errors.New("p2p: connect needs a connected callback")
	}
	if t.IsConnected() {
		return errors.New("p2p: already connected")
	}

	target := ResolveAddr(remote)
	conn, err := net.DialTimeout("tcp", target, t.DialTimeout)
	if err != nil {
		return fmt.Errorf("dial %s: %w", target, err)
	}

	t.mu.Lock()
	if t.closed || t.conn != nil {
		t.mu.Unlock()
		conn.Close()
		return ErrClosed
	}
	t.conn = conn
	t.addr = conn.LocalAddr().String()
	t.remoteAddr = conn.RemoteAddr().String()
	t.mu.Unlock()

	t.log.Info("connected", "remote", conn.RemoteAddr())
	onConnected(t.bind(conn))
	return nil
}

func (t *TCPTransport) IsListening() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.listener != nil
}

func (t *TCPTransport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn != nil
}

func (t *TCPTransport) Disconnect() {
	t.mu.Lock()
	conn := t.conn
	t.conn = nil
	t.mu.Unlock()
	if conn != nil {
		conn.Close()
		t.log.Info("peer disconnected", "remote", t.RemoteAddr())
	}
}

// dropConn disconnects conn only if it is still the active peer, so a reader
// left over from an earlier connection cannot tear down a newer one.
func (t *TCPTransport) dropConn(conn net.Conn) {
	t.mu.Lock()
	if t.conn != conn {
		t.mu.Unlock()
		return
	}
	t.conn = nil
	t.mu.Unlock()
	conn.Close()
	t.log.Info("peer disconnected", "remote", conn.RemoteAddr())
}

func (t *TCPTransport) Close() {
	t.Disconnect()

	t.mu.Lock()
	ln := t.listener
	t.listener = nil
	alreadyClosed := t.closed
	t.closed = true
	t.mu.Unlock()

	if ln != nil {
		ln.Close()
	}
	if !alreadyClosed {
		close(t.quitChannel)
	}
	t.wg.Wait()
}

func (t *TCPTransport) peer() net.Conn {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn
}

func (t *TCPTransport) Send(p []byte) (int, error) {
	conn := t.peer()
	if conn == nil {
		return 0, ErrNotConnected
	}
	return conn.Write(p)
}

func (t *TCPTransport) Recv(p []byte) (int, error) {
	conn := t.peer()
	if conn == nil {
		return 0, ErrNotConnected
	}
	return t.recvOn(conn, p)
}

func (t *TCPTransport) recvOn(conn net.Conn, p []byte) (int, error) {
	n, err := conn.Read(p)
	if err != nil {
		t.dropConn(conn)
		return n, err
	}
	return n, nil
}

func (t *TCPTransport) bind(conn net.Conn) *tcpConn {
	return &tcpConn{t: t, conn: conn, remote: conn.RemoteAddr().String()}
}

// tcpConn is the Conn handed out for one accepted or dialed stream.
type tcpConn struct {
	t      *TCPTransport
	conn   net.Conn
	remote string
}

func (c *tcpConn) Connected() bool {
	return c.t.peer() == c.conn
}

func (c *tcpConn) Send(p []byte) (int, error) {
	if !c.Connected() {
		return 0, ErrNotConnected
	}
	return c.conn.Write(p)
}

func (c *tcpConn) Recv(p []byte) (int, error) {
	if !c.Connected() {
		return 0, ErrNotConnected
	}
	return c.t.recvOn(c.conn, p)
}

func (c *tcpConn) Disconnect() {
	c.t.dropConn(c.conn)
}

func (c *tcpConn) RemoteAddr() string {
	return c.remote
}

func (t *TCPTransport) Addr() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.addr
}

func (t *TCPTransport) RemoteAddr() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remoteAddr
}
