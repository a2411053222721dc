package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/NicolasHaas/roomspeak/pkg/crypto"
	"github.com/NicolasHaas/roomspeak/pkg/model"
	"github.com/NicolasHaas/roomspeak/pkg/protocol"
	pb "github.com/NicolasHaas/roomspeak/pkg/protocol/pb"
)

// ChatHub runs the control-plane state machine for every client connection
// and fans chat and presence events out to room members.
type ChatHub struct {
	cfg       Config
	dir       *UserDirectory
	rooms     *RoomRegistry
	sessions  *SessionManager
	endpoints *EndpointTable
	metrics   *Metrics
	now       func() time.Time
}

func newChatHub(cfg Config, dir *UserDirectory, rooms *RoomRegistry, sessions *SessionManager, endpoints *EndpointTable, metrics *Metrics) *ChatHub {
	return &ChatHub{
		cfg:       cfg,
		dir:       dir,
		rooms:     rooms,
		sessions:  sessions,
		endpoints: endpoints,
		metrics:   metrics,
		now:       time.Now,
	}
}

// client is the state of one connection, owned by its Serve goroutine.
type client struct {
	hub     *ChatHub
	peer    *peer
	remote  string
	limiter *rateLimiter // shared by chat and create_room
	user    *model.User  // nil until login succeeds
}

// Serve handles one control connection until it closes or ctx is cancelled.
// A connection starts unauthenticated; a successful login creates its
// session and places it in the default room. Disconnect cleanup always runs.
func (h *ChatHub) Serve(ctx context.Context, conn MessageConn) {
	p := newPeer(conn, h.cfg.OutboxSize, h.metrics)
	c := &client{
		hub:     h,
		peer:    p,
		remote:  conn.RemoteAddr(),
		limiter: newRateLimiter(h.cfg.ChatRate, h.cfg.ChatInterval),
	}

	h.metrics.TotalConnections.Add(1)
	h.metrics.ActiveConnections.Add(1)
	slog.Debug("new control connection", "remote", c.remote)

	go p.writeLoop()
	stop := context.AfterFunc(ctx, p.Close)
	defer func() {
		stop()
		c.disconnect()
	}()

	for {
		data, err := conn.ReadMessage()
		if err != nil {
			err = fmt.Errorf("%w: %w", ErrTransportClosed, err)
			if isClosedErr(err) {
				slog.Debug("control connection ended", "remote", c.remote, "user", c.username(), "err", err)
			} else {
				slog.Warn("control read failed", "remote", c.remote, "user", c.username(), "err", err)
			}
			return
		}

		req, err := pb.DecodeRequest(data)
		if err != nil {
			h.metrics.MalformedMessages.Add(1)
			slog.Debug("malformed control message", "remote", c.remote, "err", err)
			c.replyErr(ErrMalformedMessage)
			continue
		}
		c.handle(req)
	}
}

// handle dispatches one decoded request.
func (c *client) handle(req pb.Request) {
	switch r := req.(type) {
	case *pb.Ping:
		c.reply(&pb.Pong{Timestamp: r.Timestamp})
	case *pb.Register:
		c.handleRegister(r)
	case *pb.Login:
		c.handleLogin(r)
	case *pb.Chat:
		c.handleChat(r)
	case *pb.JoinRoom:
		c.handleJoinRoom(r)
	case *pb.CreateRoom:
		c.handleCreateRoom(r)
	case *pb.GetRooms:
		c.handleGetRooms()
	case *pb.GetUsers:
		c.handleGetUsers()
	case *pb.AdminCommand:
		c.handleAdminCommand(r)
	default:
		c.replyErr(ErrMalformedMessage)
	}
}

func (c *client) username() string {
	if c.user == nil {
		return ""
	}
	return c.user.Username
}

// session returns the live session of an authenticated connection.
func (c *client) session() (model.Session, error) {
	if c.user == nil {
		return model.Session{}, ErrNotAuthenticated
	}
	sess, ok := c.hub.sessions.Get(c.user.Username)
	if !ok {
		return model.Session{}, ErrNotAuthenticated
	}
	if sess.Banned {
		return model.Session{}, ErrBanned
	}
	return sess, nil
}

func (c *client) timestamp() string {
	return c.hub.now().UTC().Format(time.RFC3339)
}

// encode marshals an event, logging and returning nil on failure.
func (c *client) encode(ev pb.Event) []byte {
	data, err := pb.Marshal(ev)
	if err != nil {
		slog.Error("encode event", "type", ev.Kind(), "err", err)
		return nil
	}
	return data
}

// reply queues ev for the connection. A reply that would not fit in one
// control frame is replaced by a response_too_large error.
func (c *client) reply(ev pb.Event) {
	data := c.encode(ev)
	if data == nil {
		return
	}
	if len(data) > protocol.MaxControlMessage {
		slog.Warn("reply too large", "remote", c.remote, "type", ev.Kind(), "size", len(data))
		data = c.encode(errorEvent(ErrResponseTooLarge))
	}
	c.peer.Send(data)
}

func (c *client) replyErr(err error) {
	if ErrorCode(err) == "internal" {
		slog.Error("request failed", "remote", c.remote, "user", c.username(), "err", err)
	}
	c.reply(errorEvent(err))
}

func (c *client) handleRegister(r *pb.Register) {
	if _, err := c.hub.dir.Register(r.Username, r.Password); err != nil {
		c.replyErr(err)
		return
	}
	c.hub.metrics.Registrations.Add(1)
	c.reply(&pb.RegisterSuccess{Message: fmt.Sprintf("user %s registered", r.Username)})
}

func (c *client) handleLogin(r *pb.Login) {
	h := c.hub
	if c.user != nil {
		c.replyErr(ErrAlreadyLoggedIn)
		return
	}

	user, err := h.dir.Authenticate(r.Username, r.Password)
	if err != nil {
		h.metrics.FailedAuths.Add(1)
		slog.Info("login failed", "user", r.Username, "remote", c.remote, "err", err)
		c.replyErr(err)
		return
	}

	room := h.rooms.DefaultRoom()
	sess, err := h.sessions.Create(user, room, c.remote, c.peer)
	if err != nil {
		h.dir.Release(user.Username)
		c.replyErr(err)
		return
	}

	ack := c.encode(&pb.LoginSuccess{
		Username:   user.Username,
		IsAdmin:    user.IsAdmin(),
		Room:       room,
		SessionID:  sess.ID,
		VoiceToken: crypto.FormatVoiceToken(sess.VoiceToken),
	})
	joined := c.encode(&pb.UserJoined{Username: user.Username, Timestamp: c.timestamp(), Room: room})
	if err := h.rooms.Enter(user.Username, c.peer, room, Notices{Ack: ack, Joined: joined}); err != nil {
		h.sessions.Remove(user.Username)
		h.dir.Release(user.Username)
		c.replyErr(err)
		return
	}
	c.user = user

	h.metrics.SuccessfulAuths.Add(1)
	slog.Info("client authenticated", "user", user.Username, "role", user.Role, "session", sess.ID, "remote", c.remote)
}

func (c *client) handleChat(r *pb.Chat) {
	h := c.hub
	sess, err := c.session()
	if err != nil {
		c.replyErr(err)
		return
	}
	if sess.Muted {
		h.metrics.ChatRejected.Add(1)
		c.replyErr(ErrMuted)
		return
	}
	if !c.limiter.allow() {
		h.metrics.ChatRejected.Add(1)
		c.replyErr(ErrRateLimited)
		return
	}
	text, err := model.NormalizeChatText(r.Message)
	if err != nil {
		h.metrics.ChatRejected.Add(1)
		c.replyErr(fmt.Errorf("%w: %v", ErrInvalidMessage, err))
		return
	}

	room, ok := h.rooms.Get(sess.Room)
	if !ok {
		c.replyErr(ErrRoomNotFound)
		return
	}
	msg := c.encode(&pb.ChatMessage{
		Username:  sess.Username,
		Message:   text,
		Timestamp: c.timestamp(),
		Room:      sess.Room,
	})
	room.Broadcast(msg)
	h.metrics.ChatMessagesSent.Add(1)
}

func (c *client) handleJoinRoom(r *pb.JoinRoom) {
	h := c.hub
	sess, err := c.session()
	if err != nil {
		c.replyErr(err)
		return
	}

	ts := c.timestamp()
	n := Notices{
		Ack:    c.encode(&pb.RoomJoined{Room: r.Room}),
		Left:   c.encode(&pb.UserLeft{Username: sess.Username, Timestamp: ts, Room: sess.Room}),
		Joined: c.encode(&pb.UserJoined{Username: sess.Username, Timestamp: ts, Room: r.Room}),
	}
	if err := h.rooms.Transfer(sess.Username, c.peer, sess.Room, r.Room, n); err != nil {
		c.replyErr(err)
		return
	}
	h.sessions.SetRoom(sess.Username, r.Room)
	h.metrics.RoomJoins.Add(1)
	slog.Debug("room changed", "user", sess.Username, "from", sess.Room, "to", r.Room)
}

func (c *client) handleCreateRoom(r *pb.CreateRoom) {
	h := c.hub
	sess, err := c.session()
	if err != nil {
		c.replyErr(err)
		return
	}
	if !c.limiter.allow() {
		c.replyErr(ErrRateLimited)
		return
	}
	if _, err := h.rooms.Create(r.RoomName); err != nil {
		c.replyErr(err)
		return
	}
	h.metrics.RoomsCreated.Add(1)
	slog.Info("room created", "room", r.RoomName, "by", sess.Username)
	c.reply(&pb.RoomCreated{Room: r.RoomName})
}

func (c *client) handleGetRooms() {
	if _, err := c.session(); err != nil {
		c.replyErr(err)
		return
	}
	c.reply(&pb.RoomsList{Rooms: c.hub.rooms.List()})
}

func (c *client) handleGetUsers() {
	sess, err := c.session()
	if err != nil {
		c.replyErr(err)
		return
	}
	users, err := c.hub.rooms.MembersOf(sess.Room)
	if err != nil {
		c.replyErr(err)
		return
	}
	c.reply(&pb.UsersList{Users: users, Room: sess.Room})
}

// disconnect releases everything the connection held. The vacated room is
// told the user left, and the username becomes available for login again.
func (c *client) disconnect() {
	h := c.hub
	c.peer.Close()
	h.metrics.ActiveConnections.Add(-1)
	h.metrics.TotalDisconnects.Add(1)

	if c.user == nil {
		slog.Debug("control connection closed", "remote", c.remote)
		return
	}
	name := c.user.Username
	if sess, ok := h.sessions.Get(name); ok {
		left := c.encode(&pb.UserLeft{Username: name, Timestamp: c.timestamp(), Room: sess.Room})
		h.rooms.Leave(name, sess.Room, left)
		h.endpoints.Remove(sess.ID)
		h.sessions.Remove(name)
	}
	h.dir.Release(name)
	slog.Info("client disconnected", "user", name, "remote", c.remote)
}
