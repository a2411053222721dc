package main

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	pb "github.com/NicolasHaas/roomspeak/pkg/protocol/pb"
)

func TestParseLine(t *testing.T) {
	tcases := map[string]struct {
		line    string
		want    pb.Request
		wantErr error
	}{
		"chat":          {line: "  hello there ", want: &pb.Chat{Message: "hello there"}},
		"join":          {line: "/join lobby", want: &pb.JoinRoom{Room: "lobby"}},
		"create":        {line: "/CREATE music", want: &pb.CreateRoom{RoomName: "music"}},
		"rooms":         {line: "/rooms", want: &pb.GetRooms{}},
		"users":         {line: "/users", want: &pb.GetUsers{}},
		"register":      {line: "/register bob pw", want: &pb.Register{Username: "bob", Password: "pw"}},
		"mute":          {line: "/mute bob", want: &pb.AdminCommand{Command: pb.CommandMute, Target: "bob"}},
		"unmute":        {line: "/unmute bob", want: &pb.AdminCommand{Command: pb.CommandUnmute, Target: "bob"}},
		"kick":          {line: "/kick bob", want: &pb.AdminCommand{Command: pb.CommandKick, Target: "bob"}},
		"ban reason":    {line: "/ban bob too much spam", want: &pb.AdminCommand{Command: pb.CommandBan, Target: "bob", Reason: "too much spam"}},
		"unban":         {line: "/unban bob", want: &pb.AdminCommand{Command: pb.CommandUnban, Target: "bob"}},
		"quit":          {line: "/quit", wantErr: errQuit},
		"help":          {line: "/help", wantErr: errHelp},
		"blank":         {line: "   ", wantErr: errEmpty},
		"missing room":  {line: "/join"},
		"missing user":  {line: "/ban"},
		"unknown":       {line: "/dance"},
		"register args": {line: "/register bob"},
	}
	for name, tc := range tcases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			got, err := parseLine(tc.line)
			if tc.want == nil {
				if err == nil {
					t.Fatalf("parseLine(%q) = %+v, want error", tc.line, got)
				}
				if tc.wantErr != nil && !errors.Is(err, tc.wantErr) {
					t.Fatalf("parseLine(%q) err = %v, want %v", tc.line, err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseLine(%q): %v", tc.line, err)
			}
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("parseLine(%q) mismatch (-want +got):\n%s", tc.line, diff)
			}
		})
	}
}

func TestFormatEvent(t *testing.T) {
	tcases := map[string]struct {
		ev   pb.Event
		want string
	}{
		"rooms sorted": {ev: &pb.RoomsList{Rooms: map[string]int{"lobby": 0, "general": 3}}, want: "rooms: #general(3) #lobby(0)"},
		"users":        {ev: &pb.UsersList{Users: []string{"alice", "bob"}, Room: "general"}, want: "users in #general: alice, bob"},
		"error":        {ev: &pb.Error{Message: "you are muted", Code: "muted"}, want: "error: you are muted (muted)"},
		"admin":        {ev: &pb.AdminResponse{Message: "user bob muted"}, want: "admin: user bob muted"},
		"bad stamp":    {ev: &pb.ChatMessage{Username: "bob", Message: "hi", Timestamp: "soon"}, want: "[soon] bob: hi"},
	}
	for name, tc := range tcases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			if got := formatEvent(tc.ev); got != tc.want {
				t.Errorf("formatEvent = %q, want %q", got, tc.want)
			}
		})
	}
}
