package server

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/NicolasHaas/roomspeak/pkg/crypto"
	"github.com/NicolasHaas/roomspeak/pkg/model"
)

type sessionEntry struct {
	sess model.Session
	peer *peer
}

// SessionManager manages active client sessions, keyed by username.
// Flag changes made by one connection's worker are visible to every other
// worker as soon as the setter returns.
type SessionManager struct {
	mu      sync.RWMutex
	byName  map[string]*sessionEntry
	byID    map[uint32]string // sessionID -> username
	byToken map[uint64]string // voice token -> username
}

// NewSessionManager creates a new session manager.
func NewSessionManager() *SessionManager {
	return &SessionManager{
		byName:  make(map[string]*sessionEntry),
		byID:    make(map[uint32]string),
		byToken: make(map[uint64]string),
	}
}

// Create registers a session for an authenticated user in the given room.
// It assigns a random non-zero session ID and voice token.
func (sm *SessionManager) Create(user *model.User, room, remoteAddr string, p *peer) (model.Session, error) {
	token, err := crypto.GenerateVoiceToken()
	if err != nil {
		return model.Session{}, err
	}

	sm.mu.Lock()
	defer sm.mu.Unlock()

	if _, exists := sm.byName[user.Username]; exists {
		return model.Session{}, ErrAlreadyLoggedIn
	}
	if _, exists := sm.byToken[token]; exists {
		return model.Session{}, fmt.Errorf("server: voice token collision")
	}

	// Generate random session ID
	var id uint32
	b := make([]byte, 4)
	for {
		if _, err := rand.Read(b); err != nil {
			return model.Session{}, fmt.Errorf("server: session id: %w", err)
		}
		id = binary.BigEndian.Uint32(b)
		if id != 0 {
			if _, exists := sm.byID[id]; !exists {
				break
			}
		}
	}

	entry := &sessionEntry{
		sess: model.Session{
			ID:          id,
			Username:    user.Username,
			Role:        user.Role,
			Room:        room,
			VoiceToken:  token,
			RemoteAddr:  remoteAddr,
			ConnectedAt: time.Now().UTC(),
		},
		peer: p,
	}
	sm.byName[user.Username] = entry
	sm.byID[id] = user.Username
	sm.byToken[token] = user.Username
	return entry.sess, nil
}

// Get returns a snapshot of the named session.
func (sm *SessionManager) Get(username string) (model.Session, bool) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	e, ok := sm.byName[username]
	if !ok {
		return model.Session{}, false
	}
	return e.sess, true
}

// GetByVoiceToken resolves a voice datagram token to its session.
func (sm *SessionManager) GetByVoiceToken(token uint64) (model.Session, bool) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	name, ok := sm.byToken[token]
	if !ok {
		return model.Session{}, false
	}
	return sm.byName[name].sess, true
}

func (sm *SessionManager) peerOf(username string) (*peer, bool) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	e, ok := sm.byName[username]
	if !ok {
		return nil, false
	}
	return e.peer, true
}

func (sm *SessionManager) update(username string, fn func(*model.Session)) bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	e, ok := sm.byName[username]
	if !ok {
		return false
	}
	fn(&e.sess)
	return true
}

// SetRoom records the session's current room.
func (sm *SessionManager) SetRoom(username, room string) bool {
	return sm.update(username, func(s *model.Session) { s.Room = room })
}

// SetMuted sets the chat mute flag. It reports false if no such session exists.
func (sm *SessionManager) SetMuted(username string, muted bool) bool {
	return sm.update(username, func(s *model.Session) { s.Muted = muted })
}

// SetBanned flags the session as banned.
func (sm *SessionManager) SetBanned(username string) bool {
	return sm.update(username, func(s *model.Session) { s.Banned = true })
}

// Remove removes a session and its ID and token indexes.
func (sm *SessionManager) Remove(username string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	e, ok := sm.byName[username]
	if !ok {
		return
	}
	delete(sm.byID, e.sess.ID)
	delete(sm.byToken, e.sess.VoiceToken)
	delete(sm.byName, username)
}

// Count returns the number of active sessions.
func (sm *SessionManager) Count() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.byName)
}

// All returns snapshots of all active sessions ordered by username.
func (sm *SessionManager) All() []model.Session {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	result := make([]model.Session, 0, len(sm.byName))
	for _, e := range sm.byName {
		result = append(result, e.sess)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Username < result[j].Username
	})
	return result
}

// closeAll closes every live connection. Each worker then runs its own cleanup.
func (sm *SessionManager) closeAll() {
	sm.mu.RLock()
	peers := make([]*peer, 0, len(sm.byName))
	for _, e := range sm.byName {
		if e.peer != nil {
			peers = append(peers, e.peer)
		}
	}
	sm.mu.RUnlock()
	for _, p := range peers {
		p.Close()
	}
}
