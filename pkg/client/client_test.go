package client

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/NicolasHaas/roomspeak/pkg/protocol"
	pb "github.com/NicolasHaas/roomspeak/pkg/protocol/pb"
	"github.com/NicolasHaas/roomspeak/pkg/server"
	"github.com/NicolasHaas/roomspeak/pkg/store"
)

func startServer(t *testing.T) *server.Server {
	t.Helper()
	cfg := server.DefaultConfig()
	cfg.ControlAddr = "127.0.0.1:0"
	cfg.VoiceAddr = "127.0.0.1:0"
	cfg.MetricsAddr = ""
	srv := server.New(cfg, server.Dependencies{Store: store.NewMemory()})
	if err := srv.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(srv.Shutdown)
	return srv
}

// session is a logged-in control client whose events are collected on a channel.
type session struct {
	*ControlClient
	login  *pb.LoginSuccess
	events chan pb.Event
}

func connect(t *testing.T, srv *server.Server, user, pw string) *session {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	c, err := Dial(ctx, srv.ControlAddr().String(), false)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })

	if err := c.Register(user, pw); err != nil {
		t.Fatalf("Register %s: %v", user, err)
	}
	ok, err := c.Login(user, pw)
	if err != nil {
		t.Fatalf("Login %s: %v", user, err)
	}

	s := &session{ControlClient: c, login: ok, events: make(chan pb.Event, 64)}
	c.SetEventHandler(func(ev pb.Event) { s.events <- ev })
	c.StartReceiving()
	if own := await[*pb.UserJoined](t, s); own.Username != user {
		t.Fatalf("first presence notice for %q, want own join", own.Username)
	}
	return s
}

// await returns the first event of type T, skipping others.
func await[T pb.Event](t *testing.T, s *session) T {
	t.Helper()
	timeout := time.After(3 * time.Second)
	for {
		select {
		case ev := <-s.events:
			if got, ok := ev.(T); ok {
				return got
			}
		case <-timeout:
			var zero T
			t.Fatalf("timed out waiting for %T", zero)
			return zero
		}
	}
}

func TestControlClientEndToEnd(t *testing.T) {
	srv := startServer(t)

	alice := connect(t, srv, "alice", "pw")
	if !alice.login.IsAdmin || alice.login.Room != "general" {
		t.Fatalf("first account login = %+v", alice.login)
	}
	bob := connect(t, srv, "bob", "pw")
	if bob.login.IsAdmin {
		t.Fatalf("second account should not be admin")
	}
	if j := await[*pb.UserJoined](t, alice); j.Username != "bob" {
		t.Fatalf("alice saw join of %q", j.Username)
	}

	if err := bob.Chat("hello alice"); err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if msg := await[*pb.ChatMessage](t, alice); msg.Username != "bob" || msg.Message != "hello alice" {
		t.Fatalf("alice got %+v", msg)
	}

	if err := alice.CreateRoom("lobby"); err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	await[*pb.RoomCreated](t, alice)
	if err := alice.GetRooms(); err != nil {
		t.Fatalf("GetRooms: %v", err)
	}
	if rooms := await[*pb.RoomsList](t, alice); rooms.Rooms["lobby"] != 0 || rooms.Rooms["general"] != 2 {
		t.Fatalf("rooms = %v", rooms.Rooms)
	}

	if err := bob.JoinRoom("lobby"); err != nil {
		t.Fatalf("JoinRoom: %v", err)
	}
	await[*pb.RoomJoined](t, bob)
	if left := await[*pb.UserLeft](t, alice); left.Username != "bob" {
		t.Fatalf("alice saw %q leave", left.Username)
	}
	if err := bob.GetUsers(); err != nil {
		t.Fatalf("GetUsers: %v", err)
	}
	if users := await[*pb.UsersList](t, bob); users.Room != "lobby" || len(users.Users) != 1 {
		t.Fatalf("users = %+v", users)
	}

	if err := alice.Admin(pb.CommandKick, "bob", ""); err != nil {
		t.Fatalf("Admin: %v", err)
	}
	await[*pb.AdminResponse](t, alice)
	select {
	case <-bob.Done():
	case <-time.After(3 * time.Second):
		t.Fatalf("kicked client still connected")
	}

	if err := alice.Ping(77); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if pong := await[*pb.Pong](t, alice); pong.Timestamp != 77 {
		t.Fatalf("pong = %+v", pong)
	}
}

func TestLoginErrors(t *testing.T) {
	srv := startServer(t)
	connect(t, srv, "alice", "pw")

	c, err := Dial(context.Background(), srv.ControlAddr().String(), false)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()

	var se *ServerError
	if err := c.Register("alice", "other"); !errors.As(err, &se) || se.Code != "username_taken" {
		t.Fatalf("Register duplicate = %v", err)
	}
	if _, err := c.Login("alice", "wrong"); !errors.As(err, &se) || se.Code != "invalid_credentials" {
		t.Fatalf("Login wrong password = %v", err)
	}
	if _, err := c.Login("alice", "pw"); !errors.As(err, &se) || se.Code != "already_logged_in" {
		t.Fatalf("Login while online = %v", err)
	}
}

func TestVoiceClientRelay(t *testing.T) {
	srv := startServer(t)
	alice := connect(t, srv, "alice", "pw")
	bob := connect(t, srv, "bob", "pw")

	voiceAddr := srv.VoiceAddr().String()
	av, err := NewVoiceClient(voiceAddr, alice.login.VoiceToken)
	if err != nil {
		t.Fatalf("NewVoiceClient: %v", err)
	}
	defer av.Close()
	bv, err := NewVoiceClient(voiceAddr, bob.login.VoiceToken)
	if err != nil {
		t.Fatalf("NewVoiceClient: %v", err)
	}
	defer bv.Close()
	bv.StartReceiving()

	if err := bv.SendVoice(nil); err != nil {
		t.Fatalf("SendVoice: %v", err)
	}

	// Alice keeps talking until bob's endpoint is known and a frame arrives.
	timeout := time.After(3 * time.Second)
	tick := time.NewTicker(20 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case pkt := <-bv.IncomingPackets:
			if pkt.SessionID != alice.login.SessionID || string(pkt.Payload) != "frame" {
				t.Fatalf("bob received %+v", pkt)
			}
			return
		case <-tick.C:
			if err := av.SendVoice([]byte("frame")); err != nil {
				t.Fatalf("SendVoice: %v", err)
			}
		case <-timeout:
			t.Fatalf("no voice relayed to bob")
		}
	}
}

func TestVoiceClientRejectsBadInput(t *testing.T) {
	t.Parallel()
	if _, err := NewVoiceClient("127.0.0.1:1", "nothex"); err == nil {
		t.Errorf("NewVoiceClient accepted a malformed token")
	}
	v, err := NewVoiceClient("127.0.0.1:1", "00000000000000ff")
	if err != nil {
		t.Fatalf("NewVoiceClient: %v", err)
	}
	defer v.Close()
	if err := v.SendVoice(make([]byte, protocol.MaxVoicePayload+1)); err == nil {
		t.Errorf("oversized frame accepted")
	}
}
