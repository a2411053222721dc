package store

import (
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/NicolasHaas/roomspeak/pkg/model"
)

// MemoryStore provides an in-memory DataStore implementation for tests and
// for running the server without a database file.
// It mirrors SQLite behavior for validation and error handling.
type MemoryStore struct {
	mu sync.RWMutex

	now func() time.Time

	nextUserID int64
	nextBanID  int64

	usersByID       map[int64]*model.User
	usersByUsername map[string]*model.User
	bansByID        map[int64]*model.Ban
}

// NewMemory creates a MemoryStore using time.Now().UTC().
func NewMemory() *MemoryStore {
	return NewMemoryWithClock(func() time.Time { return time.Now().UTC() })
}

// NewMemoryWithClock creates a MemoryStore with a custom clock.
func NewMemoryWithClock(now func() time.Time) *MemoryStore {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &MemoryStore{
		now:             now,
		nextUserID:      1,
		nextBanID:       1,
		usersByID:       make(map[int64]*model.User),
		usersByUsername: make(map[string]*model.User),
		bansByID:        make(map[int64]*model.Ban),
	}
}

// Close is a no-op for MemoryStore.
func (s *MemoryStore) Close() error {
	return nil
}

// ZeroTime returns the zero time value (used for permanent bans).
func (s *MemoryStore) ZeroTime() time.Time {
	return time.Time{}
}

func cloneUser(u *model.User) *model.User {
	c := *u
	c.PasswordHash = slices.Clone(u.PasswordHash)
	c.PasswordSalt = slices.Clone(u.PasswordSalt)
	return &c
}

// CreateUser creates a new account and returns it with the assigned ID.
func (s *MemoryStore) CreateUser(username string, role model.Role, passwordHash, passwordSalt []byte) (*model.User, error) {
	if err := model.ValidateUsername(username); err != nil {
		return nil, fmt.Errorf("store: create user: %w", err)
	}
	if !role.Valid() {
		return nil, fmt.Errorf("store: create user: %w", model.ErrInvalidRole)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.usersByUsername[username]; exists {
		return nil, fmt.Errorf("store: create user: %w", ErrUserExists)
	}
	user := &model.User{
		ID:           s.nextUserID,
		Username:     username,
		Role:         role,
		PasswordHash: slices.Clone(passwordHash),
		PasswordSalt: slices.Clone(passwordSalt),
		CreatedAt:    s.now().UTC().Truncate(time.Second),
	}
	s.nextUserID++
	s.usersByID[user.ID] = user
	s.usersByUsername[username] = user
	return cloneUser(user), nil
}

// GetUserByUsername retrieves a user by username.
func (s *MemoryStore) GetUserByUsername(username string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.usersByUsername[username]
	if !ok {
		return nil, nil
	}
	return cloneUser(user), nil
}

// GetUserByID retrieves a user by ID.
func (s *MemoryStore) GetUserByID(id int64) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.usersByID[id]
	if !ok {
		return nil, nil
	}
	return cloneUser(user), nil
}

// UpdateUserRole changes a user's role.
func (s *MemoryStore) UpdateUserRole(userID int64, role model.Role) error {
	if !role.Valid() {
		return fmt.Errorf("store: update user role: %w", model.ErrInvalidRole)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.usersByID[userID]
	if !ok {
		return nil
	}
	user.Role = role
	return nil
}

// ListUsers returns all users.
func (s *MemoryStore) ListUsers() ([]model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	users := make([]model.User, 0, len(s.usersByID))
	for _, user := range s.usersByID {
		users = append(users, *cloneUser(user))
	}
	sort.Slice(users, func(i, j int) bool {
		return users[i].ID < users[j].ID
	})
	return users, nil
}

// CountUsers returns the number of registered accounts.
func (s *MemoryStore) CountUsers() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.usersByID), nil
}

// CreateBan adds a ban record.
func (s *MemoryStore) CreateBan(userID int64, reason string, bannedBy int64, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !expiresAt.IsZero() {
		expiresAt = expiresAt.UTC()
	}
	ban := &model.Ban{
		ID:        s.nextBanID,
		UserID:    userID,
		Reason:    reason,
		BannedBy:  bannedBy,
		ExpiresAt: expiresAt,
		CreatedAt: s.now().UTC().Truncate(time.Second),
	}
	s.nextBanID++
	s.bansByID[ban.ID] = ban
	return nil
}

// IsUserBanned checks if a user ID is currently banned.
func (s *MemoryStore) IsUserBanned(userID int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	now := s.now().UTC()
	for _, ban := range s.bansByID {
		if ban.UserID == userID && ban.Active(now) {
			return true, nil
		}
	}
	return false, nil
}

// DeleteBans removes every ban record of a user.
func (s *MemoryStore) DeleteBans(userID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, ban := range s.bansByID {
		if ban.UserID == userID {
			delete(s.bansByID, id)
			n++
		}
	}
	return n, nil
}

// ListBans returns all ban records.
func (s *MemoryStore) ListBans() ([]model.Ban, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	bans := make([]model.Ban, 0, len(s.bansByID))
	for _, ban := range s.bansByID {
		bans = append(bans, *ban)
	}
	sort.Slice(bans, func(i, j int) bool {
		return bans[i].ID < bans[j].ID
	})
	return bans, nil
}

// Compile-time check: *MemoryStore implements DataStore.
var _ DataStore = (*MemoryStore)(nil)
