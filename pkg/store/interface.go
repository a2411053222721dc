package store

import (
	"errors"
	"time"

	"github.com/NicolasHaas/roomspeak/pkg/model"
)

// ErrUserExists is returned by CreateUser when the username is already registered.
var ErrUserExists = errors.New("store: user already exists")

// DataStore defines the persistence interface for RoomSpeak accounts and bans.
// Implementations include the default SQLite store and an in-memory store for
// tests. Room membership and sessions are runtime state and never persisted.
type DataStore interface {
	// Close closes the underlying storage connection.
	Close() error

	// ZeroTime returns the zero time value (used for permanent bans).
	ZeroTime() time.Time

	// ---- Users ----

	// CreateUser creates a new account and returns it with the assigned ID.
	// Returns ErrUserExists if the username is taken.
	CreateUser(username string, role model.Role, passwordHash, passwordSalt []byte) (*model.User, error)

	// GetUserByUsername retrieves a user by username. Returns (nil, nil) if not found.
	GetUserByUsername(username string) (*model.User, error)

	// GetUserByID retrieves a user by ID. Returns (nil, nil) if not found.
	GetUserByID(id int64) (*model.User, error)

	// UpdateUserRole changes a user's role.
	UpdateUserRole(userID int64, role model.Role) error

	// ListUsers returns all users ordered by ID.
	ListUsers() ([]model.User, error)

	// CountUsers returns the number of registered accounts.
	CountUsers() (int, error)

	// ---- Bans ----

	// CreateBan adds a ban record. A zero expiresAt means permanent.
	CreateBan(userID int64, reason string, bannedBy int64, expiresAt time.Time) error

	// IsUserBanned checks if a user ID is currently banned.
	IsUserBanned(userID int64) (bool, error)

	// DeleteBans removes every ban record of a user and returns how many were removed.
	DeleteBans(userID int64) (int64, error)

	// ListBans returns all ban records ordered by ID.
	ListBans() ([]model.Ban, error)
}

// Compile-time check: *Store implements DataStore.
var _ DataStore = (*Store)(nil)
