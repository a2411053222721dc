package model

import "time"

// Session is a point-in-time copy of one authenticated connection's state.
// The live state is owned by the server's session manager.
type Session struct {
	ID          uint32
	Username    string
	Role        Role
	Room        string
	Muted       bool
	Banned      bool
	VoiceToken  uint64
	RemoteAddr  string
	ConnectedAt time.Time
}

