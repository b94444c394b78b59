// Package endpoint pumps wire frames between a connected transport and a
// pair of queues. Each accepted or dialed peer gets its own Link; the
// protocol engine only ever talks to the network through a Link.
package endpoint

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Ankesh2004/go-commun/pkg/metrics"
	"github.com/Ankesh2004/go-commun/pkg/p2p"
	"github.com/Ankesh2004/go-commun/pkg/wire"
)

type Role int

const (
	Server Role = iota
	Client
)

func (r Role) String() string {
	if r == Client {
		return "client"
	}
	return "server"
}

type Event int

const (
	Started Event = iota
	Stopped
	Connected
	Disconnected
	Sent
	Received
)

func (e Event) String() string {
	switch e {
	case Started:
		return "started"
	case Stopped:
		return "stopped"
	case Connected:
		return "connected"
	case Disconnected:
		return "disconnected"
	case Sent:
		return "sent"
	case Received:
		return "received"
	}
	return fmt.Sprintf("event(%d)", int(e))
}

// EventInfo carries the details of one event. Addr is the local address for
// Started and the peer address otherwise. Size and Command are set for Sent
// and Received.
type EventInfo struct {
	Addr    string
	Size    int
	Command wire.Command
	Link    *Link
}

// NotifyFunc receives lifecycle events. It runs on the goroutine that raised
// the event and must not call Stop.
type NotifyFunc func(ev Event, info EventInfo)

type Params struct {
	Type p2p.Type
	Role Role
	// Addr is the local listen address for servers.
	Addr string
	// Remote is the address clients dial.
	Remote string
}

type Options struct {
	Logger  *slog.Logger
	Metrics *metrics.Metrics
	Notify  NotifyFunc
	// NewTransport replaces p2p.New, mainly for tests.
	NewTransport func(typ p2p.Type, addr string) (p2p.Transport, error)
}

var ErrRunning = errors.New("endpoint: already started")

type Endpoint struct {
	Options
	log *slog.Logger

	mu        sync.Mutex
	transport p2p.Transport
	link      *Link
}

func New(opts Options) *Endpoint {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Notify == nil {
		opts.Notify = func(Event, EventInfo) {}
	}
	if opts.NewTransport == nil {
		opts.NewTransport = p2p.New
	}
	return &Endpoint{
		Options: opts,
		log:     opts.Logger.With("component", "endpoint"),
	}
}

// Start creates the transport and listens or dials according to p.Role.
func (e *Endpoint) Start(p Params) error {
	e.mu.Lock()
	if e.transport != nil {
		e.mu.Unlock()
		return ErrRunning
	}
	tr, err := e.NewTransport(p.Type, p.Addr)
	if err != nil {
		e.mu.Unlock()
		return err
	}
	e.transport = tr
	e.mu.Unlock()

	switch p.Role {
	case Server:
		err = tr.Listen(e.onConnected)
	case Client:
		err = tr.Connect(p.Remote, e.onConnected)
	default:
		err = fmt.Errorf("endpoint: unknown role %d", p.Role)
	}
	if err != nil {
		tr.Close()
		e.mu.Lock()
		e.transport = nil
		e.mu.Unlock()
		return err
	}

	e.log.Info("started", "type", p.Type, "role", p.Role, "addr", tr.Addr())
	e.Notify(Started, EventInfo{Addr: tr.Addr()})
	return nil
}

// Stop closes the transport and waits for the pump loops to exit.
func (e *Endpoint) Stop() {
	e.mu.Lock()
	tr := e.transport
	e.transport = nil
	e.mu.Unlock()
	if tr == nil {
		return
	}

	tr.Close()

	e.mu.Lock()
	link := e.link
	e.link = nil
	e.mu.Unlock()
	if link != nil {
		link.wg.Wait()
	}
	e.Metrics.SetConnected(false)

	e.log.Info("stopped")
	e.Notify(Stopped, EventInfo{})
}

// Disconnect drops the current peer. A server keeps listening.
func (e *Endpoint) Disconnect() {
	e.mu.Lock()
	tr := e.transport
	e.mu.Unlock()
	if tr != nil {
		tr.Disconnect()
	}
}

func (e *Endpoint) IsConnected() bool {
	e.mu.Lock()
	tr := e.transport
	e.mu.Unlock()
	return tr != nil && tr.IsConnected()
}

func (e *Endpoint) IsRunning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.transport != nil
}

// Link returns the current peer's link, or nil.
func (e *Endpoint) Link() *Link {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.link
}

// Send queues f on the current link.
func (e *Endpoint) Send(f *wire.Frame) bool {
	link := e.Link()
	return link != nil && link.Send(f)
}

func (e *Endpoint) Addr() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.transport == nil {
		return ""
	}
	return e.transport.Addr()
}

func (e *Endpoint) RemoteAddr() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.transport == nil {
		return ""
	}
	return e.transport.RemoteAddr()
}

func (e *Endpoint) onConnected(c p2p.Conn) {
	link := newLink(c)

	e.mu.Lock()
	e.link = link
	e.mu.Unlock()

	e.Metrics.SetConnected(true)
	e.log.Info("peer connected", "remote", link.remote)
	e.Notify(Connected, EventInfo{Addr: link.remote, Link: link})

	link.wg.Add(2)
	go e.sendLoop(link)
	go e.recvLoop(link)
}

func (e *Endpoint) sendLoop(link *Link) {
	defer link.wg.Done()

	buf := make([]byte, 0, wire.Capacity)
	for {
		f, ok := link.sendq.Take()
		if !ok {
			return
		}
		buf = f.AppendTo(buf[:0])
		if err := p2p.FullSend(link.conn, buf); err != nil {
			e.log.Debug("send failed", "remote", link.remote, "err", err)
			link.Disconnect()
			return
		}
		e.Metrics.FrameSent(f.Command, len(buf))
		e.Notify(Sent, EventInfo{Addr: link.remote, Size: len(buf), Command: f.Command, Link: link})
	}
}

func (e *Endpoint) recvLoop(link *Link) {
	defer link.wg.Done()
	defer func() {
		link.close()
		e.mu.Lock()
		current := e.link == link
		if current {
			e.link = nil
		}
		e.mu.Unlock()
		if current {
			e.Metrics.SetConnected(false)
		}
		e.log.Info("peer disconnected", "remote", link.remote)
		e.Notify(Disconnected, EventInfo{Addr: link.remote, Link: link})
	}()

	buf := make([]byte, wire.Capacity)
	for {
		if err := p2p.FullRecv(link.conn, buf[:wire.SizeLen]); err != nil {
			return
		}
		size := wire.ParseSize(buf)
		if !wire.SizeValid(size) {
			// no resync: the next two bytes are taken as the next size prefix
			e.Metrics.FrameDropped(metrics.DropSize)
			e.log.Debug("dropping frame", "remote", link.remote, "size", size)
			continue
		}
		if err := p2p.FullRecv(link.conn, buf[wire.SizeLen:size]); err != nil {
			return
		}

		f, err := wire.Decode(buf[:size])
		if err != nil {
			e.Metrics.FrameDropped(metrics.DropChecksum)
			e.log.Debug("dropping frame", "remote", link.remote, "err", err)
			continue
		}
		f.Payload = bytes.Clone(f.Payload)

		link.recvq.Put(f)
		e.Metrics.FrameReceived(f.Command, size)
		e.Notify(Received, EventInfo{Addr: link.remote, Size: size, Command: f.Command, Link: link})
	}
}
