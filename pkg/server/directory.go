package server

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/NicolasHaas/roomspeak/pkg/crypto"
	"github.com/NicolasHaas/roomspeak/pkg/model"
	"github.com/NicolasHaas/roomspeak/pkg/store"
)

// UserDirectory handles registration and authentication on top of the
// account store, and tracks which usernames are currently logged in.
//
// The first account ever registered becomes an admin, as does any account
// whose name is in the configured admin list. Accounts added to the list
// later are promoted at their next login.
type UserDirectory struct {
	store  store.DataStore
	admins []string

	regMu sync.Mutex // serialises the first-account admin decision

	mu     sync.Mutex
	online map[string]struct{}
}

// NewUserDirectory creates a directory backed by st.
func NewUserDirectory(st store.DataStore, admins []string) *UserDirectory {
	return &UserDirectory{
		store:  st,
		admins: slices.Clone(admins),
		online: make(map[string]struct{}),
	}
}

// Register creates a new account. Passwords are stored as salted Argon2id hashes.
func (d *UserDirectory) Register(username, password string) (*model.User, error) {
	if err := model.ValidateUsername(username); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidUsername, err)
	}
	if password == "" {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPassword, model.ErrPasswordEmpty)
	}

	salt, err := crypto.GenerateSalt()
	if err != nil {
		return nil, fmt.Errorf("server: register: %w", err)
	}
	hash := crypto.HashPassword(password, salt)

	d.regMu.Lock()
	defer d.regMu.Unlock()

	count, err := d.store.CountUsers()
	if err != nil {
		return nil, fmt.Errorf("server: register: %w", err)
	}
	role := model.RoleUser
	if count == 0 || slices.Contains(d.admins, username) {
		role = model.RoleAdmin
	}

	user, err := d.store.CreateUser(username, role, hash, salt)
	if errors.Is(err, store.ErrUserExists) {
		return nil, ErrUsernameTaken
	}
	if err != nil {
		return nil, fmt.Errorf("server: register: %w", err)
	}
	slog.Info("user registered", "user", username, "role", role)
	return user, nil
}

// Authenticate verifies credentials and marks the user online. Ban status
// is checked before the password, so a banned account is refused whatever
// password is supplied. Callers must Release the username on disconnect.
func (d *UserDirectory) Authenticate(username, password string) (*model.User, error) {
	user, err := d.store.GetUserByUsername(username)
	if err != nil {
		return nil, fmt.Errorf("server: authenticate: %w", err)
	}
	if user == nil {
		return nil, ErrInvalidCredentials
	}

	banned, err := d.store.IsUserBanned(user.ID)
	if err != nil {
		return nil, fmt.Errorf("server: authenticate: %w", err)
	}
	if banned {
		return nil, ErrBanned
	}

	if !crypto.VerifyPassword(password, user.PasswordSalt, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	if err := d.promoteConfiguredAdmin(user); err != nil {
		return nil, fmt.Errorf("server: authenticate: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.online[username]; ok {
		return nil, ErrAlreadyLoggedIn
	}
	d.online[username] = struct{}{}
	return user, nil
}

// promoteConfiguredAdmin grants the admin role to an account that was
// added to the admin list after it registered.
func (d *UserDirectory) promoteConfiguredAdmin(user *model.User) error {
	if user.IsAdmin() || !slices.Contains(d.admins, user.Username) {
		return nil
	}
	if err := d.store.UpdateUserRole(user.ID, model.RoleAdmin); err != nil {
		return err
	}
	user.Role = model.RoleAdmin
	slog.Info("promoted configured admin", "user", user.Username)
	return nil
}

// Release makes username available for login again.
func (d *UserDirectory) Release(username string) {
	d.mu.Lock()
	delete(d.online, username)
	d.mu.Unlock()
}

// Online reports whether username currently holds a login.
func (d *UserDirectory) Online(username string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.online[username]
	return ok
}

// Ban records a permanent ban for the named account.
func (d *UserDirectory) Ban(username, reason string, bannedBy int64) error {
	user, err := d.Lookup(username)
	if err != nil {
		return err
	}
	if err := d.store.CreateBan(user.ID, reason, bannedBy, d.store.ZeroTime()); err != nil {
		return fmt.Errorf("server: ban: %w", err)
	}
	return nil
}

// Unban removes every ban of the named account and reports how many were lifted.
func (d *UserDirectory) Unban(username string) (int64, error) {
	user, err := d.Lookup(username)
	if err != nil {
		return 0, err
	}
	n, err := d.store.DeleteBans(user.ID)
	if err != nil {
		return 0, fmt.Errorf("server: unban: %w", err)
	}
	return n, nil
}

// Lookup returns the stored account for username, or ErrUserNotFound.
func (d *UserDirectory) Lookup(username string) (*model.User, error) {
	user, err := d.store.GetUserByUsername(username)
	if err != nil {
		return nil, fmt.Errorf("server: lookup: %w", err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}
