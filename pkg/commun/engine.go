// Package commun runs the command protocol on top of an endpoint: command
// dispatch, fragmented transfers of large payloads and files, and keepalive.
// Client and Server add their own disjoint command sets to the shared Engine.
package commun

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/Ankesh2004/go-commun/internal/storage"
	"github.com/Ankesh2004/go-commun/pkg/endpoint"
	"github.com/Ankesh2004/go-commun/pkg/metrics"
	"github.com/Ankesh2004/go-commun/pkg/p2p"
	"github.com/Ankesh2004/go-commun/pkg/wire"
)

const (
	DefaultSendTimeout  = 60 * time.Second
	DefaultPingInterval = 60 * time.Second
	DefaultMaxPingLoss  = 3
)

// FileStore opens files to send and persists files received from the peer.
type FileStore interface {
	ReadStream(path string) (int64, io.ReadCloser, error)
	WriteStream(name string, r io.Reader) (int64, error)
}

type Options struct {
	// SendTimeout bounds how long queued work waits behind a transfer in
	// progress before going out anyway.
	SendTimeout time.Duration
	// PingInterval is the keepalive period. Zero selects the default,
	// negative disables keepalive.
	PingInterval time.Duration
	MaxPingLoss  int
	// RecvDir is where received files land when Store is nil.
	RecvDir string
	Store   FileStore
	Codec   Codec
	Logger  *slog.Logger
	Metrics *metrics.Metrics
	Tracer  trace.Tracer
	// NewTransport is handed to the endpoint, mainly for tests.
	NewTransport func(typ p2p.Type, addr string) (p2p.Transport, error)
}

// roleHandler is implemented by Client and Server. Both methods report
// whether they consumed the command.
type roleHandler interface {
	handleCommand(s *session, f *wire.Frame) bool
	handleFile(cmd Command, name string, data []byte) bool
}

type Engine struct {
	Options
	cb     Callbacks
	role   roleHandler
	log    *slog.Logger
	tracer trace.Tracer
	ep     *endpoint.Endpoint

	mu       sync.Mutex
	current  *session
	sessions map[*endpoint.Link]*session
}

// NewEngine builds an engine that speaks only the shared commands.
func NewEngine(opts Options, cb Callbacks) *Engine {
	return newEngine(opts, cb, nil)
}

func newEngine(opts Options, cb Callbacks, role roleHandler) *Engine {
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = DefaultSendTimeout
	}
	if opts.PingInterval == 0 {
		opts.PingInterval = DefaultPingInterval
	}
	if opts.MaxPingLoss <= 0 {
		opts.MaxPingLoss = DefaultMaxPingLoss
	}
	if opts.Store == nil {
		opts.Store = storage.NewDirStore(opts.RecvDir)
	}
	if opts.Codec == nil {
		opts.Codec = JSONCodec{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Tracer == nil {
		opts.Tracer = otel.Tracer("github.com/Ankesh2004/go-commun/pkg/commun")
	}

	e := &Engine{
		Options:  opts,
		cb:       cb.withDefaults(),
		role:     role,
		log:      opts.Logger.With("component", "commun"),
		tracer:   opts.Tracer,
		sessions: make(map[*endpoint.Link]*session),
	}
	e.ep = endpoint.New(endpoint.Options{
		Logger:       opts.Logger,
		Metrics:      opts.Metrics,
		Notify:       e.onEvent,
		NewTransport: opts.NewTransport,
	})
	return e
}

// Start listens or dials as described by p. Connection state is reported
// through the callbacks.
func (e *Engine) Start(p endpoint.Params) error {
	return e.ep.Start(p)
}

func (e *Engine) Stop() {
	e.ep.Stop()
}

// Disconnect drops the current peer without stopping a listener.
func (e *Engine) Disconnect() {
	e.ep.Disconnect()
}

func (e *Engine) IsConnected() bool {
	return e.ep.IsConnected()
}

// IsRunning reports whether Start succeeded and Stop has not been called.
func (e *Engine) IsRunning() bool {
	return e.ep.IsRunning()
}

func (e *Engine) Addr() string {
	return e.ep.Addr()
}

func (e *Engine) RemoteAddr() string {
	return e.ep.RemoteAddr()
}

// Busy reports whether an outgoing fragmented transfer is in flight.
func (e *Engine) Busy() bool {
	s := e.session()
	return s != nil && s.gate.isBusy()
}

func (e *Engine) session() *session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current
}

func (e *Engine) onEvent(ev endpoint.Event, info endpoint.EventInfo) {
	switch ev {
	case endpoint.Started:
		e.cb.OnStarted(info.Addr)
	case endpoint.Stopped:
		e.cb.OnStopped()
	case endpoint.Connected:
		s := newSession(e, info.Link)
		e.mu.Lock()
		e.sessions[info.Link] = s
		e.current = s
		e.mu.Unlock()
		s.start()
		e.cb.OnConnected(info.Addr)
	case endpoint.Disconnected:
		e.mu.Lock()
		s := e.sessions[info.Link]
		delete(e.sessions, info.Link)
		if e.current == s {
			e.current = nil
		}
		e.mu.Unlock()
		if s != nil {
			s.stop()
		}
		e.cb.OnDisconnected()
	case endpoint.Sent:
		e.cb.OnSent(info.Size, info.Command)
	case endpoint.Received:
		e.cb.OnReceived(info.Size, info.Command)
	}
}

func (e *Engine) enqueue(item workItem) bool {
	s := e.session()
	if s == nil {
		e.log.Debug("not connected, dropping command", "command", item.cmd)
		return false
	}
	return s.work.Put(item)
}

// SendCommand queues a frame that carries only the command.
func (e *Engine) SendCommand(cmd Command) bool {
	return e.enqueue(workItem{kind: workEmpty, cmd: cmd})
}

// SendBytes queues data under cmd. Payloads larger than one frame are
// announced with an empty cmd frame and streamed as fragments.
func (e *Engine) SendBytes(cmd Command, data []byte) bool {
	if len(data) == 0 {
		return false
	}
	return e.enqueue(workItem{kind: workBuffer, cmd: cmd, data: bytes.Clone(data)})
}

func (e *Engine) SendByte(cmd Command, b byte) bool {
	return e.SendBytes(cmd, []byte{b})
}

// SendFile announces the file's base name under cmd and streams its content.
func (e *Engine) SendFile(cmd Command, path string) bool {
	if path == "" {
		return false
	}
	return e.enqueue(workItem{kind: workPath, cmd: cmd, path: path})
}

func (e *Engine) ReqInteract(in Interact) error {
	return e.sendInteract(CmdReqInteract, in)
}

func (e *Engine) RspInteract(in Interact) error {
	return e.sendInteract(CmdRspInteract, in)
}

func (e *Engine) sendInteract(cmd Command, in Interact) error {
	data, err := e.Codec.Marshal(in)
	if err != nil {
		return err
	}
	if !e.SendBytes(cmd, data) {
		return fmt.Errorf("send %s: %w", cmd, p2p.ErrNotConnected)
	}
	return nil
}

// dispatch routes one incoming frame. Role commands get the first look.
func (e *Engine) dispatch(s *session, f *wire.Frame) {
	if e.role != nil && e.role.handleCommand(s, f) {
		return
	}

	switch f.Command {
	case CmdPing:
		s.link.Send(wire.New(CmdPong, nil))
	case CmdPong:
	case CmdReqFragment:
		s.onReqFragment(f.Payload)
	case CmdRspFragment:
		s.onRspFragment(Answer(firstByte(f.Payload)))
	case CmdReqInteract, CmdRspInteract:
		if len(f.Payload) > 0 {
			e.deliverInteract(f.Command, f.Payload)
		} else {
			s.prepareRecv(f.Command, "")
		}
	default:
		e.log.Debug("unhandled command", "command", f.Command, "size", f.Size())
	}
}

// finishTransfer hands a completed incoming stream to its handler.
func (e *Engine) finishTransfer(cmd Command, name string, data []byte) {
	e.cb.OnTransfer(cmd, name, data)
	if e.role != nil && e.role.handleFile(cmd, name, data) {
		return
	}
	switch cmd {
	case CmdReqInteract, CmdRspInteract:
		e.deliverInteract(cmd, data)
	}
}

func (e *Engine) deliverInteract(cmd Command, data []byte) {
	in, err := e.Codec.Unmarshal(data)
	if err != nil {
		e.log.Warn("bad interact payload", "command", cmd, "err", err)
		in = Interact{}
	}
	if cmd == CmdReqInteract {
		e.cb.OnReqInteract(in)
	} else {
		e.cb.OnRspInteract(in)
	}
}

// saveFile stores data under the base name of name, replacing an earlier
// file of the same name.
func (e *Engine) saveFile(name string, data []byte) error {
	base := filepath.Base(name)
	if name == "" || base == "." || base == string(filepath.Separator) {
		return fmt.Errorf("save file: invalid name %q", name)
	}
	if st, ok := e.Store.(interface{ Has(name string) bool }); ok && st.Has(base) {
		e.log.Info("replacing received file", "name", base)
	}
	if _, err := e.Store.WriteStream(base, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("save file %s: %w", base, err)
	}
	return nil
}
