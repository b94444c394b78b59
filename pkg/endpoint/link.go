package endpoint

import (
	"sync"

	"github.com/Ankesh2004/go-commun/internal/blockq"
	"github.com/Ankesh2004/go-commun/pkg/p2p"
	"github.com/Ankesh2004/go-commun/pkg/wire"
)

// Link is one connected peer: an outbound and an inbound frame queue fed by
// the pump loops. It is bound to the transport connection it was made for
// and both queues close when that connection goes away.
type Link struct {
	conn   p2p.Conn
	remote string

	sendq *blockq.Queue[*wire.Frame]
	recvq *blockq.Queue[*wire.Frame]

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func newLink(c p2p.Conn) *Link {
	return &Link{
		conn:   c,
		remote: c.RemoteAddr(),
		sendq:  blockq.New[*wire.Frame](),
		recvq:  blockq.New[*wire.Frame](),
		done:   make(chan struct{}),
	}
}

// Send queues f for the send loop. It reports false once the link is down.
func (l *Link) Send(f *wire.Frame) bool {
	if f == nil {
		return false
	}
	return l.sendq.Put(f)
}

// Recv blocks for the next valid incoming frame. ok is false once the link
// is down.
func (l *Link) Recv() (*wire.Frame, bool) {
	return l.recvq.Take()
}

// Done is closed when the link goes down.
func (l *Link) Done() <-chan struct{} {
	return l.done
}

func (l *Link) Connected() bool {
	return !l.sendq.Closed() && l.conn.Connected()
}

// Disconnect drops the peer behind this link if it is still up.
func (l *Link) Disconnect() {
	select {
	case <-l.done:
		return
	default:
		l.conn.Disconnect()
	}
}

func (l *Link) RemoteAddr() string {
	return l.remote
}

func (l *Link) close() {
	l.closeOnce.Do(func() {
		l.sendq.Close()
		l.recvq.Close()
		close(l.done)
	})
}
