package commun

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Ankesh2004/go-commun/internal/blockq"
	"github.com/Ankesh2004/go-commun/pkg/bytequeue"
	"github.com/Ankesh2004/go-commun/pkg/endpoint"
	"github.com/Ankesh2004/go-commun/pkg/metrics"
	"github.com/Ankesh2004/go-commun/pkg/wire"
)

type workKind int

const (
	workEmpty workKind = iota
	workBuffer
	workPath
)

type workItem struct {
	kind workKind
	cmd  Command
	data []byte
	path string
}

// busyGate tracks the single outgoing transfer a session may have in flight.
// idle is closed whenever the gate is not busy.
type busyGate struct {
	mu   sync.Mutex
	busy bool
	idle chan struct{}
}

func newBusyGate() *busyGate {
	idle := make(chan struct{})
	close(idle)
	return &busyGate{idle: idle}
}

func (g *busyGate) set() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.busy {
		g.busy = true
		g.idle = make(chan struct{})
	}
}

func (g *busyGate) clear() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.busy {
		g.busy = false
		close(g.idle)
	}
}

func (g *busyGate) isBusy() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.busy
}

// wait blocks while busy, at most d. It returns false if done closes first.
func (g *busyGate) wait(d time.Duration, done <-chan struct{}) bool {
	g.mu.Lock()
	idle := g.idle
	g.mu.Unlock()

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-idle:
	case <-timer.C:
	case <-done:
		return false
	}
	select {
	case <-done:
		return false
	default:
		return true
	}
}

// session is the engine state of one connected peer.
type session struct {
	e    *Engine
	link *endpoint.Link
	log  *slog.Logger

	work *blockq.Queue[workItem]
	gate *busyGate

	// outgoing transfer, filled by the send worker and drained on each ACCEPT
	sending  *bytequeue.Queue
	sendSpan trace.Span
	sendSize int

	// incoming transfer, touched only from the receive worker
	receiving *bytequeue.Queue
	recvCmd   Command
	recvName  string
	recvSpan  trace.Span

	mu        sync.Mutex
	alive     bool
	discharge bool
	loss      int

	done     chan struct{}
	stopOnce sync.Once
}

func newSession(e *Engine, link *endpoint.Link) *session {
	return &session{
		e:         e,
		link:      link,
		log:       e.log.With("remote", link.RemoteAddr()),
		work:      blockq.New[workItem](),
		gate:      newBusyGate(),
		sending:   bytequeue.New(),
		receiving: bytequeue.New(),
		alive:     true,
		done:      make(chan struct{}),
	}
}

func (s *session) start() {
	go s.sendWorker()
	go s.recvWorker()
	if s.e.PingInterval > 0 {
		go s.keepalive(s.e.PingInterval, s.e.MaxPingLoss)
	}
}

// stop abandons any transfer in flight and releases every worker.
func (s *session) stop() {
	s.stopOnce.Do(func() {
		close(s.done)
		s.work.Close()
		s.sending.Exit()
		s.receiving.Exit()

		s.mu.Lock()
		sendSpan, recvSpan := s.sendSpan, s.recvSpan
		s.sendSpan, s.recvSpan = nil, nil
		s.mu.Unlock()
		if sendSpan != nil {
			s.e.Metrics.TransferDone(metrics.Outbound, metrics.Aborted, 0)
			sendSpan.SetStatus(codes.Error, "disconnected")
			sendSpan.End()
		}
		if recvSpan != nil {
			s.e.Metrics.TransferDone(metrics.Inbound, metrics.Aborted, 0)
			recvSpan.SetStatus(codes.Error, "disconnected")
			recvSpan.End()
		}
		s.gate.clear()
	})
}

func (s *session) sendWorker() {
	for {
		if !s.gate.wait(s.e.SendTimeout, s.done) {
			return
		}
		item, ok := s.work.Take()
		if !ok {
			return
		}
		s.process(item)
	}
}

func (s *session) process(item workItem) {
	switch item.kind {
	case workEmpty:
		s.link.Send(wire.New(item.cmd, nil))

	case workBuffer:
		if len(item.data) <= wire.MaxDataSize {
			s.link.Send(wire.New(item.cmd, item.data))
			return
		}
		s.sending.Reset()
		s.sending.Put(item.data)
		s.beginSend(item.cmd, "", len(item.data))
		s.link.Send(wire.New(item.cmd, nil))

	case workPath:
		name := filepath.Base(item.path)
		size, r, err := s.e.Store.ReadStream(item.path)
		if err != nil {
			s.log.Warn("cannot open file to send", "path", item.path, "err", err)
			return
		}
		s.sending.Reset()
		s.sending.PutFunc(int(size), func(dst []byte) int {
			n, _ := io.ReadFull(r, dst)
			return n
		})
		r.Close()
		s.beginSend(item.cmd, name, int(size))
		s.link.Send(wire.New(item.cmd, []byte(name)))
	}
}

func (s *session) beginSend(cmd Command, name string, size int) {
	s.gate.set()
	_, span := s.e.tracer.Start(context.Background(), "commun.send_transfer",
		trace.WithAttributes(
			attribute.String("command", cmd.String()),
			attribute.String("name", name),
			attribute.Int("bytes", size),
		))
	s.mu.Lock()
	old, oldSize := s.sendSpan, s.sendSize
	s.sendSpan, s.sendSize = span, size
	s.mu.Unlock()
	if old != nil {
		// the send timeout let a new transfer start before the last one ended
		s.log.Warn("unfinished transfer superseded", "bytes", oldSize)
		s.e.Metrics.TransferDone(metrics.Outbound, metrics.Aborted, oldSize)
		old.SetStatus(codes.Error, "superseded")
		old.End()
	}
	s.log.Debug("transfer started", "command", cmd, "name", name, "bytes", size)
}

func (s *session) endSend(outcome string) {
	s.mu.Lock()
	span, size := s.sendSpan, s.sendSize
	s.sendSpan = nil
	s.mu.Unlock()

	if span != nil {
		if outcome != metrics.Completed {
			span.SetStatus(codes.Error, outcome)
		}
		span.End()
		s.e.Metrics.TransferDone(metrics.Outbound, outcome, size)
	}
	s.gate.clear()
}

// onRspFragment answers the peer's ACK with the next chunk. An empty chunk
// marks the end of the stream.
func (s *session) onRspFragment(answer Answer) {
	if answer != Accept {
		s.log.Info("transfer rejected by peer")
		s.sending.Reset()
		s.endSend(metrics.Rejected)
		return
	}
	if !s.gate.isBusy() {
		s.log.Debug("stray fragment ack")
		return
	}

	chunk := make([]byte, wire.MaxDataSize)
	n := s.sending.Take(chunk, false)
	s.link.Send(wire.New(CmdReqFragment, chunk[:n]))
	if n == 0 {
		s.endSend(metrics.Completed)
	}
}

// prepareRecv opens the accumulator for an announced transfer and asks for
// the first fragment.
func (s *session) prepareRecv(cmd Command, name string) {
	s.recvCmd, s.recvName = cmd, name
	s.receiving.Reset()

	_, span := s.e.tracer.Start(context.Background(), "commun.recv_transfer",
		trace.WithAttributes(
			attribute.String("command", cmd.String()),
			attribute.String("name", name),
		))
	s.mu.Lock()
	old := s.recvSpan
	s.recvSpan = span
	s.mu.Unlock()
	if old != nil {
		s.e.Metrics.TransferDone(metrics.Inbound, metrics.Aborted, 0)
		old.SetStatus(codes.Error, "superseded")
		old.End()
	}

	s.link.Send(wire.New(CmdRspFragment, []byte{byte(Accept)}))
}

func (s *session) onReqFragment(data []byte) {
	if len(data) > 0 {
		s.receiving.Put(data)
		s.link.Send(wire.New(CmdRspFragment, []byte{byte(Accept)}))
		return
	}

	buf := make([]byte, s.receiving.Len())
	n := s.receiving.Take(buf, false)
	buf = buf[:n]
	cmd, name := s.recvCmd, s.recvName

	s.mu.Lock()
	span := s.recvSpan
	s.recvSpan = nil
	s.mu.Unlock()
	if span != nil {
		span.SetAttributes(attribute.Int("bytes", n))
		span.End()
	}
	s.e.Metrics.TransferDone(metrics.Inbound, metrics.Completed, n)
	s.log.Debug("transfer received", "command", cmd, "name", name, "bytes", n)

	s.e.finishTransfer(cmd, name, buf)
}

func (s *session) recvWorker() {
	for {
		f, ok := s.link.Recv()
		if !ok {
			return
		}
		s.mu.Lock()
		s.alive = true
		s.discharge = true
		s.mu.Unlock()

		s.e.dispatch(s, f)
	}
}

// keepalive pings a quiet peer and drops it after maxLoss
// consecutive intervals without any incoming frame.
func (s *session) keepalive(interval time.Duration, maxLoss int) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
		}

		s.mu.Lock()
		if s.alive {
			s.loss = 0
		} else {
			s.loss++
			if s.loss >= maxLoss {
				loss := s.loss
				s.mu.Unlock()
				s.log.Warn("peer unresponsive, disconnecting", "lost_pings", loss)
				s.e.Metrics.KeepaliveDisconnect()
				s.link.Disconnect()
				return
			}
		}
		ping := !s.discharge
		if ping {
			s.alive = false
		}
		s.discharge = false
		s.mu.Unlock()

		if ping {
			s.link.Send(wire.New(CmdPing, nil))
			s.e.Metrics.PingSent()
		}
	}
}
