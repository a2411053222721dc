package server

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/NicolasHaas/roomspeak/pkg/model"
	"github.com/NicolasHaas/roomspeak/pkg/store"
)

// Config holds server configuration.
type Config struct {
	// Listeners. Empty WebSocketAddr or MetricsAddr disables that endpoint.
	ControlAddr   string `env:"ROOMSPEAK_CONTROL_ADDR"`
	VoiceAddr     string `env:"ROOMSPEAK_VOICE_ADDR"`
	WebSocketAddr string `env:"ROOMSPEAK_WS_ADDR"`
	MetricsAddr   string `env:"ROOMSPEAK_METRICS_ADDR"`

	// WSOrigins lists allowed WebSocket origins; "*" allows all.
	WSOrigins []string `env:"ROOMSPEAK_WS_ORIGINS" envSeparator:","`

	DBPath   string `env:"ROOMSPEAK_DB"`       // SQLite database path
	TLS      bool   `env:"ROOMSPEAK_TLS"`      // wrap the control listener in TLS
	CertFile string `env:"ROOMSPEAK_TLS_CERT"` // TLS certificate file path
	KeyFile  string `env:"ROOMSPEAK_TLS_KEY"`  // TLS private key file path
	DataDir  string `env:"ROOMSPEAK_DATA_DIR"` // directory for generated certs

	RoomsFile   string   `env:"ROOMSPEAK_ROOMS_FILE"`              // YAML file listing rooms to create on startup
	AdminUsers  []string `env:"ROOMSPEAK_ADMINS" envSeparator:","` // usernames registered with the admin role
	DefaultRoom string   `env:"ROOMSPEAK_DEFAULT_ROOM"`            // room every session enters at login
	MaxRooms    int      `env:"ROOMSPEAK_MAX_ROOMS"`               // upper bound on rooms, default room included

	VoiceEndpointTTL time.Duration `env:"ROOMSPEAK_VOICE_TTL"`
	ChatRate         int           `env:"ROOMSPEAK_CHAT_RATE"` // chat messages allowed per ChatInterval
	ChatInterval     time.Duration `env:"ROOMSPEAK_CHAT_INTERVAL"`
	OutboxSize       int           `env:"ROOMSPEAK_OUTBOX_SIZE"` // queued outbound messages per connection
	MetricsInterval  time.Duration `env:"ROOMSPEAK_METRICS_LOG_INTERVAL"`

	// CLI-only actions (run and exit)
	ExportUsers bool // export all users as YAML and exit
	ExportRooms bool // export the configured rooms as YAML and exit
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		ControlAddr:      ":12345",
		VoiceAddr:        ":12346",
		MetricsAddr:      ":12347",
		DBPath:           "roomspeak.db",
		DataDir:          ".",
		DefaultRoom:      model.DefaultRoomName,
		MaxRooms:         128,
		VoiceEndpointTTL: 30 * time.Second,
		ChatRate:         5,
		ChatInterval:     time.Second,
		OutboxSize:       256,
		MetricsInterval:  60 * time.Second,
	}
}

// LoadEnv overlays ROOMSPEAK_* environment variables onto cfg. Unset
// variables leave the existing values untouched.
func LoadEnv(cfg *Config) error {
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// withDefaults fills zero-valued tunables so a partially built Config works.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.DefaultRoom == "" {
		c.DefaultRoom = def.DefaultRoom
	}
	if c.MaxRooms <= 0 {
		c.MaxRooms = def.MaxRooms
	}
	if c.VoiceEndpointTTL <= 0 {
		c.VoiceEndpointTTL = def.VoiceEndpointTTL
	}
	if c.ChatRate <= 0 {
		c.ChatRate = def.ChatRate
	}
	if c.ChatInterval <= 0 {
		c.ChatInterval = def.ChatInterval
	}
	if c.OutboxSize <= 0 {
		c.OutboxSize = def.OutboxSize
	}
	if c.MetricsInterval <= 0 {
		c.MetricsInterval = def.MetricsInterval
	}
	if c.DataDir == "" {
		c.DataDir = def.DataDir
	}
	return c
}

// RoomYAML represents a room in YAML config.
type RoomYAML struct {
	Name string `yaml:"name"`
}

// RoomsConfig is the top-level YAML config for rooms.
type RoomsConfig struct {
	Rooms []RoomYAML `yaml:"rooms"`
}

// UserYAML represents a user in YAML export.
type UserYAML struct {
	ID        int64  `yaml:"id"`
	Username  string `yaml:"username"`
	Role      string `yaml:"role"`
	Banned    bool   `yaml:"banned,omitempty"`
	BanReason string `yaml:"ban_reason,omitempty"`
	BannedBy  string `yaml:"banned_by,omitempty"`
	CreatedAt string `yaml:"created_at"`
}

// UsersExport is the top-level YAML for user export.
type UsersExport struct {
	Users []UserYAML `yaml:"users"`
}

// LoadRoomsFromYAML reads a rooms YAML file and creates the rooms in the registry.
func LoadRoomsFromYAML(path string, rooms *RoomRegistry) error {
	data, err := os.ReadFile(path) //nolint:gosec // path from user-provided CLI config
	if err != nil {
		return fmt.Errorf("read rooms config: %w", err)
	}
	return ImportRoomsFromYAML(data, rooms)
}

// ImportRoomsFromYAML parses YAML data and creates every listed room that
// does not exist yet.
func ImportRoomsFromYAML(data []byte, rooms *RoomRegistry) error {
	var cfg RoomsConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("parse rooms config: %w", err)
	}

	created := 0
	for _, r := range cfg.Rooms {
		if _, err := rooms.Create(r.Name); err != nil {
			if !errors.Is(err, ErrRoomAlreadyExists) {
				slog.Error("failed to create room from config", "name", r.Name, "err", err)
			}
			continue
		}
		created++
		slog.Debug("created room from config", "room", r.Name)
	}

	slog.Info("imported rooms from YAML", "count", created)
	return nil
}

// ExportRoomsYAML exports the current rooms as YAML in the rooms file format.
func ExportRoomsYAML(rooms *RoomRegistry) ([]byte, error) {
	cfg := RoomsConfig{}
	for _, name := range rooms.Names() {
		cfg.Rooms = append(cfg.Rooms, RoomYAML{Name: name})
	}
	return yaml.Marshal(&cfg)
}

// ExportUsersYAML exports all users as YAML. Banned users carry the reason
// and issuer of their most recent ban.
func ExportUsersYAML(st store.DataStore) ([]byte, error) {
	users, err := st.ListUsers()
	if err != nil {
		return nil, err
	}
	bans, err := st.ListBans()
	if err != nil {
		return nil, err
	}
	latest := make(map[int64]model.Ban, len(bans))
	for _, b := range bans {
		latest[b.UserID] = b // ordered by ID, so the last one wins
	}

	export := UsersExport{}
	for _, u := range users {
		banned, err := st.IsUserBanned(u.ID)
		if err != nil {
			return nil, err
		}
		entry := UserYAML{
			ID:        u.ID,
			Username:  u.Username,
			Role:      u.Role.String(),
			Banned:    banned,
			CreatedAt: u.CreatedAt.UTC().Format(time.RFC3339),
		}
		if b, ok := latest[u.ID]; ok && banned {
			entry.BanReason = b.Reason
			entry.BannedBy, err = usernameOf(st, b.BannedBy)
			if err != nil {
				return nil, err
			}
		}
		export.Users = append(export.Users, entry)
	}
	return yaml.Marshal(&export)
}

// usernameOf resolves an account ID, falling back to "#<id>" for accounts
// that no longer exist.
func usernameOf(st store.DataStore, id int64) (string, error) {
	u, err := st.GetUserByID(id)
	if err != nil {
		return "", err
	}
	if u == nil {
		return fmt.Sprintf("#%d", id), nil
	}
	return u.Username, nil
}
