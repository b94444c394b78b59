package p2p

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
)

// DefaultPort is used when an address omits its port.
const DefaultPort = 28800

var (
	ErrNotConnected = errors.New("p2p: not connected")
	ErrClosed       = errors.New("p2p: transport closed")
	ErrUnsupported  = errors.New("p2p: transport type not available")
	ErrShortIO      = errors.New("p2p: short transfer")
)

// Conn is one accepted or dialed peer. It stays bound to that peer: once the
// peer is dropped every call fails, even after the transport has taken a new
// one.
type Conn interface {
	Send(p []byte) (int, error)
	Recv(p []byte) (int, error)
	Connected() bool
	// Disconnect drops this peer if it is still the active one.
	Disconnect()
	RemoteAddr() string
}

// ConnectedFunc fires once a peer is usable: after accept/dial for plain
// streams, after the upgrade handshake for WebSocket.
type ConnectedFunc func(c Conn)

// Transport is one listening or dialing endpoint with at most one active peer.
type Transport interface {
	Listen(onConnected ConnectedFunc) error
	Connect(remote string, onConnected ConnectedFunc) error
	IsListening() bool
	IsConnected() bool
	// Disconnect drops the current peer but keeps listening.
	Disconnect()
	// Close drops the peer and stops listening.
	Close()
	// Send writes p to the current peer, returning how much went out.
	Send(p []byte) (int, error)
	// Recv reads at most len(p) bytes from the current peer. A read error
	// drops the peer.
	Recv(p []byte) (int, error)
	Addr() string
	RemoteAddr() string
}

type Type int

const (
	Bluetooth Type = iota
	TCP
	WebSocket
)

func (t Type) String() string {
	switch t {
	case Bluetooth:
		return "bluetooth"
	case TCP:
		return "tcp"
	case WebSocket:
		return "websocket"
	}
	return "type(" + strconv.Itoa(int(t)) + ")"
}

// ParseType accepts a type name or its numeric value.
func ParseType(s string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "bluetooth", "bt", "0":
		return Bluetooth, nil
	case "tcp", "stream", "1":
		return TCP, nil
	case "websocket", "ws", "2":
		return WebSocket, nil
	}
	return 0, fmt.Errorf("unknown transport type %q", s)
}

// Factory builds a transport bound to addr.
type Factory func(addr string) (Transport, error)

var (
	bluetoothMu      sync.RWMutex
	bluetoothFactory Factory
)

// RegisterBluetooth installs the Bluetooth implementation. The radio and
// service discovery side lives outside this module.
func RegisterBluetooth(f Factory) {
	bluetoothMu.Lock()
	bluetoothFactory = f
	bluetoothMu.Unlock()
}

// New creates a transport of the given type. addr is the local address for
// listeners and may be empty for clients.
func New(typ Type, addr string) (Transport, error) {
	switch typ {
	case TCP:
		return NewTCPTransport(TCPTransportOptions{ListenAddr: addr}), nil
	case WebSocket:
		return NewWSTransport(WSTransportOptions{ListenAddr: addr}), nil
	case Bluetooth:
		bluetoothMu.RLock()
		f := bluetoothFactory
		bluetoothMu.RUnlock()
		if f == nil {
			return nil, fmt.Errorf("%w: %s", ErrUnsupported, typ)
		}
		return f(addr)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupported, typ)
}

type Sender interface {
	Send(p []byte) (int, error)
}

type Receiver interface {
	Recv(p []byte) (int, error)
}

// FullSend writes all of p, failing on the first write that makes no progress.
func FullSend(t Sender, p []byte) error {
	if len(p) == 0 {
		return ErrShortIO
	}
	for sent := 0; sent < len(p); {
		n, err := t.Send(p[sent:])
		if err != nil {
			return err
		}
		if n <= 0 {
			return ErrShortIO
		}
		sent += n
	}
	return nil
}

// FullRecv fills p completely or fails.
func FullRecv(t Receiver, p []byte) error {
	if len(p) == 0 {
		return ErrShortIO
	}
	for got := 0; got < len(p); {
		n, err := t.Recv(p[got:])
		if err != nil {
			return err
		}
		if n <= 0 {
			return ErrShortIO
		}
		got += n
	}
	return nil
}

// ResolveAddr normalizes "host[:port]" and fills in DefaultPort.
func ResolveAddr(addr string) string {
	addr = strings.TrimSpace(addr)
	if _, _, err := net.SplitHostPort(addr); err == nil {
		return addr
	}
	return net.JoinHostPort(strings.Trim(addr, "[]"), strconv.Itoa(DefaultPort))
}

func isLoopback(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
