package p2p

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/Ankesh2004/go-commun/pkg/bytequeue"
	"github.com/Ankesh2004/go-commun/pkg/wsproto"
)

// InputBufferSize is the read size used when pulling raw bytes off the stream.
const InputBufferSize = 6144

type WSTransportOptions struct {
	ListenAddr string
	// Stream configures the underlying TCP transport. Its ListenAddr and
	// Logger are taken from the fields above when left empty.
	Stream TCPTransportOptions
	Logger *slog.Logger
}

// WSTransport layers RFC 6455 framing over a TCPTransport. Every Send becomes
// one binary frame. Frames are masked in the client role only.
type WSTransport struct {
	WSTransportOptions
	stream *TCPTransport
	log    *slog.Logger

	mu          sync.Mutex
	server      bool
	key         string
	host        string
	session     *wsConn
	onConnected ConnectedFunc
}

// wsConn is one upgrade session over one stream connection. Its queues are
// never reused, so a reader left over from it cannot see a later session.
type wsConn struct {
	w      *WSTransport
	stream Conn
	server bool
	key    string
	host   string

	handshaked atomic.Bool
	dropOnce   sync.Once

	wmu      sync.Mutex
	messages *bytequeue.Queue
	payloads *bytequeue.Queue
}

func NewWSTransport(opts WSTransportOptions) *WSTransport {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	streamOpts := opts.Stream
	if streamOpts.ListenAddr == "" {
		streamOpts.ListenAddr = opts.ListenAddr
	}
	if streamOpts.Logger == nil {
		streamOpts.Logger = logger
	}
	return &WSTransport{
		WSTransportOptions: opts,
		stream:             NewTCPTransport(streamOpts),
		log:                logger.With("component", "websocket"),
	}
}

func (w *WSTransport) Listen(onConnected ConnectedFunc) error {
	if onConnected == nil {
		return errors.New("p2p: listen needs a connected callback")
	}
	w.mu.Lock()
	w.server = true
	w.onConnected = onConnected
	w.mu.Unlock()
	return w.stream.Listen(w.startSession)
}

func (w *WSTransport) Connect(remote string, onConnected ConnectedFunc) error {
	if onConnected == nil {
		return errors.New("p2p: connect needs a connected callback")
	}
	key, err := wsproto.NewKey()
	if err != nil {
		return err
	}
	w.mu.Lock()
	w.server = false
	w.key = key
	w.host = ResolveAddr(remote)
	w.onConnected = onConnected
	w.mu.Unlock()
	return w.stream.Connect(remote, w.startSession)
}

// startSession runs once the stream has a peer. The client sends its upgrade
// request; the server waits for one.
func (w *WSTransport) startSession(stream Conn) {
	w.mu.Lock()
	s := &wsConn{
		w:        w,
		stream:   stream,
		server:   w.server,
		key:      w.key,
		host:     w.host,
		messages: bytequeue.New(),
		payloads: bytequeue.New(),
	}
	w.session = s
	w.mu.Unlock()

	go s.inputLoop()

	if !s.server {
		if err := s.write(wsproto.AppendRequest(nil, s.host, s.key)); err != nil {
			w.log.Warn("send upgrade request", "err", err)
			s.drop()
		}
	}
}

func (s *wsConn) inputLoop() {
	buf := make([]byte, InputBufferSize)
	for {
		n, err := s.stream.Recv(buf)
		if err != nil || n <= 0 {
			s.drop()
			return
		}
		s.messages.Put(buf[:n])
		if !s.drain() {
			s.drop()
			return
		}
	}
}

type inputAction int

const (
	actNone inputAction = iota
	actConnected
	actDrop
)

// drain decodes as many complete messages as are queued. It returns false
// when the session must end.
func (s *wsConn) drain() bool {
	for {
		act := actNone
		n := s.messages.TakeFunc(func(msg []byte) int {
			used, a := s.handle(msg)
			act = a
			return used
		}, false)

		switch act {
		case actDrop:
			return false
		case actConnected:
			s.w.mu.Lock()
			cb := s.w.onConnected
			s.w.mu.Unlock()
			cb(s)
		}
		if n == 0 {
			return true
		}
	}
}

// handle consumes one message from the front of msg. It runs with the
// message queue locked, so it only reports actions back to drain.
func (s *wsConn) handle(msg []byte) (int, inputAction) {
	log := s.w.log
	if s.handshaked.Load() {
		f, n, err := wsproto.DecodeFrame(msg)
		if err != nil {
			log.Warn("bad frame", "err", err)
			return len(msg), actDrop
		}
		if f == nil {
			return 0, actNone
		}
		switch f.Opcode {
		case wsproto.OpClose:
			return n, actDrop
		case wsproto.OpPing:
			if err := s.write(wsproto.AppendFrame(nil, wsproto.OpPong, !s.server, f.Payload)); err != nil {
				return n, actDrop
			}
		default:
			s.payloads.Put(f.Payload)
		}
		return n, actNone
	}

	if s.server {
		n, clientKey, err := wsproto.ParseRequest(msg)
		if n == 0 {
			return 0, actNone
		}
		if err != nil {
			log.Warn("rejecting upgrade", "remote", s.stream.RemoteAddr(), "err", err)
			return n, actDrop
		}
		if err := s.write(wsproto.AppendResponse(nil, clientKey)); err != nil {
			return n, actDrop
		}
		return n, s.markHandshaked()
	}

	n, err := wsproto.ParseResponse(msg, s.key)
	if n == 0 {
		return 0, actNone
	}
	if err != nil {
		log.Warn("upgrade refused", "remote", s.stream.RemoteAddr(), "err", err)
		return n, actDrop
	}
	return n, s.markHandshaked()
}

func (s *wsConn) markHandshaked() inputAction {
	if s.payloads.Exiting() {
		return actDrop
	}
	s.handshaked.Store(true)
	s.w.log.Info("handshake complete", "remote", s.stream.RemoteAddr(), "server", s.server)
	return actConnected
}

// drop ends the session: a CLOSE frame goes out if the peer was fully
// connected, the stream is dropped and both queues wake their readers.
func (s *wsConn) drop() {
	s.dropOnce.Do(func() {
		s.w.mu.Lock()
		if s.w.session == s {
			s.w.session = nil
		}
		s.w.mu.Unlock()

		if s.handshaked.Load() && s.stream.Connected() {
			s.write(wsproto.AppendFrame(nil, wsproto.OpClose, !s.server, nil))
		}
		s.stream.Disconnect()
		s.messages.Exit()
		s.payloads.Exit()
	})
}

func (s *wsConn) write(b []byte) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	return FullSend(s.stream, b)
}

func (s *wsConn) Connected() bool {
	return s.handshaked.Load() && !s.payloads.Exiting() && s.stream.Connected()
}

func (s *wsConn) Disconnect() {
	s.drop()
}

func (s *wsConn) Send(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if !s.Connected() {
		return 0, ErrNotConnected
	}
	if err := s.write(wsproto.AppendFrame(nil, wsproto.OpBinary, !s.server, p)); err != nil {
		return 0, fmt.Errorf("websocket send: %w", err)
	}
	return len(p), nil
}

// Recv blocks for payload bytes. Frame boundaries are not preserved.
func (s *wsConn) Recv(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	n := s.payloads.Take(p, true)
	if n == 0 {
		return 0, ErrNotConnected
	}
	return n, nil
}

func (s *wsConn) RemoteAddr() string {
	return s.stream.RemoteAddr()
}

// current returns the upgraded session, or nil.
func (w *WSTransport) current() *wsConn {
	w.mu.Lock()
	s := w.session
	w.mu.Unlock()
	if s == nil || !s.Connected() {
		return nil
	}
	return s
}

func (w *WSTransport) IsListening() bool {
	return w.stream.IsListening()
}

func (w *WSTransport) IsConnected() bool {
	return w.current() != nil
}

func (w *WSTransport) Disconnect() {
	w.mu.Lock()
	s := w.session
	w.mu.Unlock()
	if s != nil {
		s.drop()
	}
}

func (w *WSTransport) Close() {
	w.Disconnect()
	w.stream.Close()
}

func (w *WSTransport) Send(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	s := w.current()
	if s == nil {
		return 0, ErrNotConnected
	}
	return s.Send(p)
}

func (w *WSTransport) Recv(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	s := w.current()
	if s == nil {
		return 0, ErrNotConnected
	}
	return s.Recv(p)
}

func (w *WSTransport) Addr() string {
	return w.stream.Addr()
}

func (w *WSTransport) RemoteAddr() string {
	return w.stream.RemoteAddr()
}
