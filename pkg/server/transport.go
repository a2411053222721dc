package server

import (
	"errors"
	"io"
	"net"
	"strings"
	"time"

	"github.com/NicolasHaas/roomspeak/pkg/protocol"
)

const writeTimeout = 10 * time.Second

// MessageConn is a reliable, message-oriented client connection. ReadMessage
// returns one complete control payload; WriteMessage is only ever called from
// a single goroutine.
type MessageConn interface {
	ReadMessage() ([]byte, error)
	WriteMessage(msg []byte) error
	Close() error
	RemoteAddr() string
}

// frameConn carries control messages over a stream using length-prefixed frames.
type frameConn struct {
	conn net.Conn
}

func newFrameConn(conn net.Conn) *frameConn {
	return &frameConn{conn: conn}
}

func (c *frameConn) ReadMessage() ([]byte, error) {
	return protocol.ReadFrame(c.conn)
}

func (c *frameConn) WriteMessage(msg []byte) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return protocol.WriteFrame(c.conn, msg)
}

func (c *frameConn) Close() error {
	return c.conn.Close()
}

func (c *frameConn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

// isClosedErr reports whether err means the peer or the server closed the connection.
func isClosedErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
		return true
	}
	return strings.Contains(err.Error(), "use of closed network connection") ||
		strings.Contains(err.Error(), "connection reset by peer")
}
