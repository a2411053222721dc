package main

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	pb "github.com/NicolasHaas/roomspeak/pkg/protocol/pb"
)

var (
	errQuit  = errors.New("quit")
	errHelp  = errors.New("help")
	errEmpty = errors.New("empty line")
)

var adminCommands = map[string]string{
	"mute":   pb.CommandMute,
	"unmute": pb.CommandUnmute,
	"kick":   pb.CommandKick,
	"ban":    pb.CommandBan,
	"unban":  pb.CommandUnban,
}

// parseLine turns one input line into a request.
func parseLine(line string) (pb.Request, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, errEmpty
	}
	if !strings.HasPrefix(line, "/") {
		return &pb.Chat{Message: line}, nil
	}

	parts := strings.Fields(line)
	command := strings.ToLower(strings.TrimPrefix(parts[0], "/"))
	args := parts[1:]

	if cmd, ok := adminCommands[command]; ok {
		if len(args) == 0 {
			return nil, fmt.Errorf("usage: /%s <user>", command)
		}
		req := &pb.AdminCommand{Command: cmd, Target: args[0]}
		if command == "ban" && len(args) > 1 {
			req.Reason = strings.Join(args[1:], " ")
		}
		return req, nil
	}

	switch command {
	case "join":
		if len(args) != 1 {
			return nil, errors.New("usage: /join <room>")
		}
		return &pb.JoinRoom{Room: args[0]}, nil
	case "create":
		if len(args) != 1 {
			return nil, errors.New("usage: /create <room>")
		}
		return &pb.CreateRoom{RoomName: args[0]}, nil
	case "rooms":
		return &pb.GetRooms{}, nil
	case "users":
		return &pb.GetUsers{}, nil
	case "register":
		if len(args) != 2 {
			return nil, errors.New("usage: /register <user> <password>")
		}
		return &pb.Register{Username: args[0], Password: args[1]}, nil
	case "ping":
		return &pb.Ping{Timestamp: time.Now().UnixMilli()}, nil
	case "quit", "exit":
		return nil, errQuit
	case "help", "?":
		return nil, errHelp
	}
	return nil, fmt.Errorf("unknown command /%s (try /help)", command)
}

// formatEvent renders a server event as one terminal line.
func formatEvent(ev pb.Event) string {
	switch e := ev.(type) {
	case *pb.ChatMessage:
		return fmt.Sprintf("[%s] %s: %s", clock(e.Timestamp), e.Username, e.Message)
	case *pb.UserJoined:
		return fmt.Sprintf("[%s] * %s joined #%s", clock(e.Timestamp), e.Username, e.Room)
	case *pb.UserLeft:
		return fmt.Sprintf("[%s] * %s left #%s", clock(e.Timestamp), e.Username, e.Room)
	case *pb.RoomJoined:
		return "now in #" + e.Room
	case *pb.RoomCreated:
		return "created #" + e.Room
	case *pb.RoomsList:
		names := make([]string, 0, len(e.Rooms))
		for name := range e.Rooms {
			names = append(names, name)
		}
		sort.Strings(names)
		var b strings.Builder
		b.WriteString("rooms:")
		for _, name := range names {
			fmt.Fprintf(&b, " #%s(%d)", name, e.Rooms[name])
		}
		return b.String()
	case *pb.UsersList:
		return fmt.Sprintf("users in #%s: %s", e.Room, strings.Join(e.Users, ", "))
	case *pb.AdminResponse:
		return "admin: " + e.Message
	case *pb.RegisterSuccess:
		return e.Message
	case *pb.Pong:
		return fmt.Sprintf("pong (%dms)", time.Now().UnixMilli()-e.Timestamp)
	case *pb.Error:
		return fmt.Sprintf("error: %s (%s)", e.Message, e.Code)
	case *pb.LoginSuccess:
		return "logged in as " + e.Username
	}
	return fmt.Sprintf("%s event", ev.Kind())
}

// clock shortens an RFC 3339 timestamp to local HH:MM:SS.
func clock(ts string) string {
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return ts
	}
	return t.Local().Format(time.TimeOnly)
}
