package server

import (
	"fmt"
	"sort"
	"sync"

	"github.com/NicolasHaas/roomspeak/pkg/model"
)

// Member receives room broadcasts. Send must not block; a member that
// cannot accept a message is expected to drop its own connection.
type Member interface {
	Send(msg []byte) bool
}

// Room is a named set of members keyed by username.
type Room struct {
	name    string
	mu      sync.RWMutex
	members map[string]Member
}

func newRoom(name string) *Room {
	return &Room{name: name, members: make(map[string]Member)}
}

// Name returns the room name.
func (r *Room) Name() string { return r.name }

// Members returns a sorted snapshot of member usernames.
func (r *Room) Members() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.members))
	for name := range r.members {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the current member count.
func (r *Room) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}

// Broadcast delivers msg to every current member and returns how many
// accepted it. Membership cannot change while the broadcast runs.
func (r *Room) Broadcast(msg []byte) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.broadcastLocked(msg)
}

// broadcastLocked requires r.mu held (read or write).
func (r *Room) broadcastLocked(msg []byte) int {
	if msg == nil {
		return 0
	}
	delivered := 0
	for _, m := range r.members {
		if m.Send(msg) {
			delivered++
		}
	}
	return delivered
}

// RoomRegistry maps room names to rooms. Rooms are never removed, so a
// *Room obtained from the registry stays valid for the server lifetime.
//
// Lock order: registry before any room, and rooms in ascending name order.
type RoomRegistry struct {
	mu          sync.RWMutex
	rooms       map[string]*Room
	defaultRoom string
	limit       int // max rooms including the default; 0 = unlimited
}

// NewRoomRegistry creates a registry containing the default room.
func NewRoomRegistry(defaultRoom string) *RoomRegistry {
	if defaultRoom == "" {
		defaultRoom = model.DefaultRoomName
	}
	return &RoomRegistry{
		rooms:       map[string]*Room{defaultRoom: newRoom(defaultRoom)},
		defaultRoom: defaultRoom,
	}
}

// SetLimit caps the number of rooms Create will allow. Rooms that already
// exist are kept even if they exceed n.
func (rr *RoomRegistry) SetLimit(n int) {
	rr.mu.Lock()
	rr.limit = n
	rr.mu.Unlock()
}

// DefaultRoom returns the name of the room sessions enter at login.
func (rr *RoomRegistry) DefaultRoom() string {
	return rr.defaultRoom
}

// Create adds an empty room. It never touches an existing room.
func (rr *RoomRegistry) Create(name string) (*Room, error) {
	if err := model.ValidateRoomName(name); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRoomName, err)
	}
	rr.mu.Lock()
	defer rr.mu.Unlock()
	if _, exists := rr.rooms[name]; exists {
		return nil, ErrRoomAlreadyExists
	}
	if rr.limit > 0 && len(rr.rooms) >= rr.limit {
		return nil, ErrRoomLimit
	}
	room := newRoom(name)
	rr.rooms[name] = room
	return room, nil
}

// Get looks up a room by name.
func (rr *RoomRegistry) Get(name string) (*Room, bool) {
	rr.mu.RLock()
	defer rr.mu.RUnlock()
	room, ok := rr.rooms[name]
	return room, ok
}

// Names returns all room names sorted.
func (rr *RoomRegistry) Names() []string {
	rr.mu.RLock()
	defer rr.mu.RUnlock()
	names := make([]string, 0, len(rr.rooms))
	for name := range rr.rooms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// List returns a snapshot of room name -> member count.
func (rr *RoomRegistry) List() map[string]int {
	rr.mu.RLock()
	defer rr.mu.RUnlock()
	out := make(map[string]int, len(rr.rooms))
	for name, room := range rr.rooms {
		out[name] = room.Len()
	}
	return out
}

// MembersOf returns a snapshot of the usernames in a room.
func (rr *RoomRegistry) MembersOf(name string) ([]string, error) {
	room, ok := rr.Get(name)
	if !ok {
		return nil, ErrRoomNotFound
	}
	return room.Members(), nil
}

// Notices are the pre-encoded messages emitted by a membership change.
// Nil fields are skipped.
type Notices struct {
	Ack    []byte // sent to the moving member only
	Left   []byte // sent to the members remaining in the old room
	Joined []byte // sent to every member of the new room, the mover included
}

// Enter adds a member to a room it is not yet part of. The ack is queued
// before the join notice so the mover learns its room first.
func (rr *RoomRegistry) Enter(username string, m Member, name string, n Notices) error {
	room, ok := rr.Get(name)
	if !ok {
		return ErrRoomNotFound
	}
	room.mu.Lock()
	defer room.mu.Unlock()
	room.members[username] = m
	if n.Ack != nil {
		m.Send(n.Ack)
	}
	room.broadcastLocked(n.Joined)
	return nil
}

// Transfer atomically moves a member from one room to another. The target
// must exist; it is never created implicitly. Both rooms are locked for the
// whole move, so every broadcast sees the member in exactly one of them.
func (rr *RoomRegistry) Transfer(username string, m Member, from, to string, n Notices) error {
	dst, ok := rr.Get(to)
	if !ok {
		return ErrRoomNotFound
	}
	src, ok := rr.Get(from)
	switch {
	case !ok:
		return rr.Enter(username, m, to, n)
	case src == dst:
		// Rejoining the current room only acknowledges.
		dst.mu.Lock()
		defer dst.mu.Unlock()
		dst.members[username] = m
		if n.Ack != nil {
			m.Send(n.Ack)
		}
		return nil
	}

	first, second := src, dst
	if second.name < first.name {
		first, second = second, first
	}
	first.mu.Lock()
	defer first.mu.Unlock()
	second.mu.Lock()
	defer second.mu.Unlock()

	delete(src.members, username)
	src.broadcastLocked(n.Left)

	dst.members[username] = m
	if n.Ack != nil {
		m.Send(n.Ack)
	}
	dst.broadcastLocked(n.Joined)
	return nil
}

// Leave removes a member from a room and notifies the remaining members.
// Leaving a room the member is not in is a no-op.
func (rr *RoomRegistry) Leave(username, name string, left []byte) {
	room, ok := rr.Get(name)
	if !ok {
		return
	}
	room.mu.Lock()
	defer room.mu.Unlock()
	if _, ok := room.members[username]; !ok {
		return
	}
	delete(room.members, username)
	room.broadcastLocked(left)
}
