// Package client implements the RoomSpeak client networking: a control
// connection speaking framed JSON over TCP and a UDP voice connection.
package client

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"

	"github.com/NicolasHaas/roomspeak/pkg/protocol"
	pb "github.com/NicolasHaas/roomspeak/pkg/protocol/pb"
)

// EventHandler is a callback for incoming control events.
type EventHandler func(ev pb.Event)

// ServerError is an error event returned by the server for a request.
type ServerError struct {
	Code    string
	Message string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("%s (%s)", e.Message, e.Code)
}

// ControlClient manages the TCP/TLS control plane connection.
type ControlClient struct {
	conn    net.Conn
	mu      sync.Mutex // serializes writes
	handler EventHandler
	done    chan struct{}
}

// Dial connects to the server's control plane. With useTLS the server's
// self-signed certificate is accepted without verification.
func Dial(ctx context.Context, addr string, useTLS bool) (*ControlClient, error) {
	var (
		conn net.Conn
		err  error
	)
	if useTLS {
		dialer := &tls.Dialer{Config: &tls.Config{
			InsecureSkipVerify: true, //nolint:gosec // self-signed server certs, trust on first use
			MinVersion:         tls.VersionTLS13,
		}}
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	} else {
		var d net.Dialer
		conn, err = d.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return nil, fmt.Errorf("client: connect control: %w", err)
	}
	return NewControlClient(conn), nil
}

// NewControlClient wraps an established connection.
func NewControlClient(conn net.Conn) *ControlClient {
	return &ControlClient{
		conn: conn,
		done: make(chan struct{}),
	}
}

// SetEventHandler sets the callback for incoming events. It must be called
// before StartReceiving.
func (c *ControlClient) SetEventHandler(handler EventHandler) {
	c.handler = handler
}

// Send sends a request to the server.
func (c *ControlClient) Send(req pb.Request) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return protocol.WriteControlMessage(c.conn, req)
}

// roundTrip sends req and reads the direct reply. Only valid before
// StartReceiving, while no other reader owns the connection.
func (c *ControlClient) roundTrip(req pb.Request) (pb.Event, error) {
	if err := c.Send(req); err != nil {
		return nil, fmt.Errorf("client: send %s: %w", req.Kind(), err)
	}
	ev, err := protocol.ReadEvent(c.conn)
	if err != nil {
		return nil, fmt.Errorf("client: read %s reply: %w", req.Kind(), err)
	}
	if e, ok := ev.(*pb.Error); ok {
		return nil, &ServerError{Code: e.Code, Message: e.Message}
	}
	return ev, nil
}

// Register creates an account. Must be called before StartReceiving.
func (c *ControlClient) Register(username, password string) error {
	ev, err := c.roundTrip(&pb.Register{Username: username, Password: password})
	if err != nil {
		return err
	}
	if _, ok := ev.(*pb.RegisterSuccess); !ok {
		return fmt.Errorf("client: unexpected reply %s to register", ev.Kind())
	}
	return nil
}

// Login authenticates the connection. Must be called before StartReceiving;
// the presence notice that follows a successful login is delivered to the
// event handler once receiving starts.
func (c *ControlClient) Login(username, password string) (*pb.LoginSuccess, error) {
	ev, err := c.roundTrip(&pb.Login{Username: username, Password: password})
	if err != nil {
		return nil, err
	}
	ok, isLogin := ev.(*pb.LoginSuccess)
	if !isLogin {
		return nil, fmt.Errorf("client: unexpected reply %s to login", ev.Kind())
	}
	return ok, nil
}

// Chat sends a chat line to the current room.
func (c *ControlClient) Chat(text string) error {
	return c.Send(&pb.Chat{Message: text})
}

// JoinRoom moves the session to another room.
func (c *ControlClient) JoinRoom(room string) error {
	return c.Send(&pb.JoinRoom{Room: room})
}

// CreateRoom creates an empty room.
func (c *ControlClient) CreateRoom(room string) error {
	return c.Send(&pb.CreateRoom{RoomName: room})
}

// GetRooms requests the room list.
func (c *ControlClient) GetRooms() error {
	return c.Send(&pb.GetRooms{})
}

// GetUsers requests the members of the current room.
func (c *ControlClient) GetUsers() error {
	return c.Send(&pb.GetUsers{})
}

// Admin sends a moderation command.
func (c *ControlClient) Admin(command, target, reason string) error {
	return c.Send(&pb.AdminCommand{Command: command, Target: target, Reason: reason})
}

// Ping sends a keepalive carrying ts, echoed back in a pong.
func (c *ControlClient) Ping(ts int64) error {
	return c.Send(&pb.Ping{Timestamp: ts})
}

// StartReceiving starts a goroutine that reads incoming events and
// dispatches them to the event handler.
func (c *ControlClient) StartReceiving() {
	go func() {
		defer close(c.done)
		for {
			ev, err := protocol.ReadEvent(c.conn)
			if err != nil {
				if isClosedErr(err) {
					slog.Debug("control connection closed")
					return
				}
				slog.Error("control read error", "err", err)
				return
			}
			if c.handler != nil {
				c.handler(ev)
			}
		}
	}()
}

// Close closes the control connection.
func (c *ControlClient) Close() error {
	return c.conn.Close()
}

// Done returns a channel that's closed when the connection is lost.
func (c *ControlClient) Done() <-chan struct{} {
	return c.done
}

func isClosedErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	s := err.Error()
	return strings.Contains(s, "use of closed network connection") ||
		strings.Contains(s, "tls: use of closed connection")
}
