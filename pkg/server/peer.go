package server

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/NicolasHaas/roomspeak/pkg/protocol"
)

// peer owns the outbound side of one client connection: a bounded queue
// drained by a dedicated writer goroutine. Producers never block; a full
// queue or a failed write closes the connection, and the connection's read
// loop then runs the normal disconnect cleanup. A message too large to frame
// is dropped and the connection stays up.
type peer struct {
	conn    MessageConn
	out     chan []byte
	done    chan struct{}
	once    sync.Once
	metrics *Metrics
}

// closeMarker, when dequeued, makes the writer close the connection after
// everything queued before it has been written.
var closeMarker = []byte{}

func newPeer(conn MessageConn, queueSize int, metrics *Metrics) *peer {
	if queueSize <= 0 {
		queueSize = 1
	}
	return &peer{
		conn:    conn,
		out:     make(chan []byte, queueSize),
		done:    make(chan struct{}),
		metrics: metrics,
	}
}

// Send queues msg for delivery. It reports false if the peer is closed or
// its queue is full, in which case the peer is closed.
func (p *peer) Send(msg []byte) bool {
	select {
	case <-p.done:
		return false
	default:
	}
	select {
	case p.out <- msg:
		return true
	default:
		slog.Warn("outbound queue full, dropping connection", "remote", p.conn.RemoteAddr())
		if p.metrics != nil {
			p.metrics.SlowConsumers.Add(1)
		}
		p.Close()
		return false
	}
}

// SendAndClose queues msg and closes the connection once it has been written.
func (p *peer) SendAndClose(msg []byte) {
	if !p.Send(msg) {
		return
	}
	select {
	case p.out <- closeMarker:
	default:
		p.Close()
	}
}

// Close closes the connection immediately. It is safe to call repeatedly
// and from any goroutine.
func (p *peer) Close() {
	p.once.Do(func() {
		close(p.done)
		_ = p.conn.Close()
	})
}

// Done is closed once the peer has been closed.
func (p *peer) Done() <-chan struct{} {
	return p.done
}

// writeLoop drains the queue until the peer is closed.
func (p *peer) writeLoop() {
	for {
		select {
		case <-p.done:
			return
		case msg := <-p.out:
			if len(msg) == 0 {
				p.Close()
				return
			}
			if err := p.conn.WriteMessage(msg); err != nil {
				if errors.Is(err, protocol.ErrFrameTooLarge) {
					slog.Warn("dropping oversized message", "remote", p.conn.RemoteAddr(), "size", len(msg))
					continue
				}
				if !isClosedErr(err) {
					slog.Debug("write failed", "remote", p.conn.RemoteAddr(), "err", err)
				}
				p.Close()
				return
			}
		}
	}
}
