// Package store provides SQLite-backed persistence for accounts and bans.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/NicolasHaas/roomspeak/pkg/model"
)

const dbTimeLayout = "2006-01-02 15:04:05"

// Store provides database access for all persisted RoomSpeak entities.
type Store struct {
	db *sql.DB
}

// New opens (or creates) a SQLite database and runs migrations.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w", err)
	}

	ctx := context.Background()

	// Enable WAL mode for better concurrent read performance
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: set WAL: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: enable FK: %w", err)
	}
	// Set busy timeout to avoid "database is locked" under concurrency
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: set busy_timeout: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ZeroTime returns the zero time value (used for permanent bans).
func (s *Store) ZeroTime() time.Time {
	return time.Time{}
}

func (s *Store) migrate() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS users (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		username      TEXT    NOT NULL UNIQUE CHECK(length(username) > 0 AND length(username) <= 32),
		role          INTEGER NOT NULL DEFAULT 0 CHECK(role >= 0 AND role <= 1),
		password_hash BLOB    NOT NULL,
		password_salt BLOB    NOT NULL,
		created_at    TEXT    NOT NULL DEFAULT (datetime('now'))
	);

	CREATE TABLE IF NOT EXISTS bans (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id    INTEGER NOT NULL DEFAULT 0,
		reason     TEXT    NOT NULL DEFAULT '',
		banned_by  INTEGER NOT NULL DEFAULT 0,
		expires_at TEXT,
		created_at TEXT    NOT NULL DEFAULT (datetime('now'))
	);
	`
	ctx := context.Background()
	if err := s.ensureSchemaMigrations(ctx); err != nil {
		return err
	}
	currentVersion, err := s.getSchemaVersion(ctx)
	if err != nil {
		return err
	}

	migrations := []struct {
		version      int
		statements   []string
		ignoreErrors bool
	}{
		{
			version:    1,
			statements: []string{schema},
		},
		{
			version: 2,
			statements: []string{
				"CREATE INDEX IF NOT EXISTS idx_bans_user_id ON bans(user_id)",
			},
			ignoreErrors: true,
		},
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		for _, stmt := range m.statements {
			if err := s.execMigration(ctx, stmt, m.ignoreErrors); err != nil {
				return err
			}
		}
		if err := s.setSchemaVersion(ctx, m.version); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) ensureSchemaMigrations(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS schema_migrations (version INTEGER NOT NULL)"); err != nil {
		return fmt.Errorf("store: create schema_migrations: %w", err)
	}
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations").Scan(&count); err != nil {
		return fmt.Errorf("store: check schema_migrations: %w", err)
	}
	if count == 0 {
		if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES (0)"); err != nil {
			return fmt.Errorf("store: init schema_migrations: %w", err)
		}
	}
	return nil
}

func (s *Store) getSchemaVersion(ctx context.Context) (int, error) {
	var version int
	if err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_migrations LIMIT 1").Scan(&version); err != nil {
		return 0, fmt.Errorf("store: read schema version: %w", err)
	}
	return version, nil
}

func (s *Store) setSchemaVersion(ctx context.Context, version int) error {
	if _, err := s.db.ExecContext(ctx, "UPDATE schema_migrations SET version = ?", version); err != nil {
		return fmt.Errorf("store: update schema version: %w", err)
	}
	return nil
}

func (s *Store) execMigration(ctx context.Context, stmt string, ignoreErrors bool) error {
	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		if ignoreErrors {
			return nil
		}
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

func formatDBTime(t time.Time) string {
	return t.UTC().Format(dbTimeLayout)
}

func parseDBTime(value string) (time.Time, error) {
	return time.ParseInLocation(dbTimeLayout, value, time.UTC)
}

func parseDBTimePtr(value sql.NullString) (time.Time, error) {
	if !value.Valid || value.String == "" {
		return time.Time{}, nil
	}
	return parseDBTime(value.String)
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// ---- Users ----

const userColumns = "id, username, role, password_hash, password_salt, created_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*model.User, error) {
	u := &model.User{}
	var roleInt int
	var createdAt string
	if err := row.Scan(&u.ID, &u.Username, &roleInt, &u.PasswordHash, &u.PasswordSalt, &createdAt); err != nil {
		return nil, err
	}
	u.Role = model.Role(roleInt)
	parsed, err := parseDBTime(createdAt)
	if err != nil {
		return nil, err
	}
	u.CreatedAt = parsed
	return u, nil
}

// CreateUser creates a new account and returns it with the assigned ID.
// It validates the username format and role before inserting.
func (s *Store) CreateUser(username string, role model.Role, passwordHash, passwordSalt []byte) (*model.User, error) {
	if err := model.ValidateUsername(username); err != nil {
		return nil, fmt.Errorf("store: create user: %w", err)
	}
	if !role.Valid() {
		return nil, fmt.Errorf("store: create user: %w", model.ErrInvalidRole)
	}
	now := time.Now().UTC().Truncate(time.Second)
	res, err := s.db.ExecContext(context.Background(),
		"INSERT INTO users (username, role, password_hash, password_salt, created_at) VALUES (?, ?, ?, ?, ?)",
		username, int(role), passwordHash, passwordSalt, formatDBTime(now))
	if isUniqueViolation(err) {
		return nil, fmt.Errorf("store: create user: %w", ErrUserExists)
	}
	if err != nil {
		return nil, fmt.Errorf("store: create user: %w", err)
	}
	id, _ := res.LastInsertId()
	return &model.User{
		ID:           id,
		Username:     username,
		Role:         role,
		PasswordHash: passwordHash,
		PasswordSalt: passwordSalt,
		CreatedAt:    now,
	}, nil
}

// GetUserByUsername retrieves a user by username.
func (s *Store) GetUserByUsername(username string) (*model.User, error) {
	u, err := scanUser(s.db.QueryRowContext(context.Background(),
		"SELECT "+userColumns+" FROM users WHERE username = ?", username))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get user by username: %w", err)
	}
	return u, nil
}

// GetUserByID retrieves a user by ID.
func (s *Store) GetUserByID(id int64) (*model.User, error) {
	u, err := scanUser(s.db.QueryRowContext(context.Background(),
		"SELECT "+userColumns+" FROM users WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get user: %w", err)
	}
	return u, nil
}

// UpdateUserRole changes a user's role.
func (s *Store) UpdateUserRole(userID int64, role model.Role) error {
	if !role.Valid() {
		return fmt.Errorf("store: update user role: %w", model.ErrInvalidRole)
	}
	_, err := s.db.ExecContext(context.Background(), "UPDATE users SET role = ? WHERE id = ?", int(role), userID)
	if err != nil {
		return fmt.Errorf("store: update user role: %w", err)
	}
	return nil
}

// ListUsers returns all users.
func (s *Store) ListUsers() ([]model.User, error) {
	rows, err := s.db.QueryContext(context.Background(), "SELECT "+userColumns+" FROM users ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("store: list users: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var users []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan user: %w", err)
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// CountUsers returns the number of registered accounts.
func (s *Store) CountUsers() (int, error) {
	var count int
	if err := s.db.QueryRowContext(context.Background(), "SELECT COUNT(*) FROM users").Scan(&count); err != nil {
		return 0, fmt.Errorf("store: count users: %w", err)
	}
	return count, nil
}

// ---- Bans ----

// CreateBan adds a ban record.
func (s *Store) CreateBan(userID int64, reason string, bannedBy int64, expiresAt time.Time) error {
	var expStr *string
	if !expiresAt.IsZero() {
		es := formatDBTime(expiresAt)
		expStr = &es
	}
	_, err := s.db.ExecContext(context.Background(),
		"INSERT INTO bans (user_id, reason, banned_by, expires_at, created_at) VALUES (?, ?, ?, ?, ?)",
		userID, reason, bannedBy, expStr, formatDBTime(time.Now()))
	if err != nil {
		return fmt.Errorf("store: create ban: %w", err)
	}
	return nil
}

// IsUserBanned checks if a user ID is currently banned.
func (s *Store) IsUserBanned(userID int64) (bool, error) {
	var count int
	err := s.db.QueryRowContext(context.Background(),
		"SELECT COUNT(*) FROM bans WHERE user_id = ? AND (expires_at IS NULL OR expires_at > ?)",
		userID, formatDBTime(time.Now())).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("store: check ban: %w", err)
	}
	return count > 0, nil
}

// DeleteBans removes every ban record of a user.
func (s *Store) DeleteBans(userID int64) (int64, error) {
	res, err := s.db.ExecContext(context.Background(), "DELETE FROM bans WHERE user_id = ?", userID)
	if err != nil {
		return 0, fmt.Errorf("store: delete bans: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// ListBans returns all ban records.
func (s *Store) ListBans() ([]model.Ban, error) {
	rows, err := s.db.QueryContext(context.Background(),
		"SELECT id, user_id, reason, banned_by, expires_at, created_at FROM bans ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("store: list bans: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var bans []model.Ban
	for rows.Next() {
		var b model.Ban
		var expiresAt sql.NullString
		var createdAt string
		if err := rows.Scan(&b.ID, &b.UserID, &b.Reason, &b.BannedBy, &expiresAt, &createdAt); err != nil {
			return nil, fmt.Errorf("store: scan ban: %w", err)
		}
		if b.ExpiresAt, err = parseDBTimePtr(expiresAt); err != nil {
			return nil, fmt.Errorf("store: scan ban: %w", err)
		}
		if b.CreatedAt, err = parseDBTime(createdAt); err != nil {
			return nil, fmt.Errorf("store: scan ban: %w", err)
		}
		bans = append(bans, b)
	}
	return bans, rows.Err()
}
