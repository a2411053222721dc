package server

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"gopkg.in/yaml.v3"

	"github.com/NicolasHaas/roomspeak/pkg/store"
)

func TestLoadEnv(t *testing.T) {
	t.Setenv("ROOMSPEAK_CONTROL_ADDR", "127.0.0.1:9000")
	t.Setenv("ROOMSPEAK_ADMINS", "alice,bob")
	t.Setenv("ROOMSPEAK_WS_ORIGINS", "https://a.test,https://b.test")
	t.Setenv("ROOMSPEAK_TLS", "true")
	t.Setenv("ROOMSPEAK_VOICE_TTL", "45s")
	t.Setenv("ROOMSPEAK_CHAT_RATE", "10")

	cfg := DefaultConfig()
	if err := LoadEnv(&cfg); err != nil {
		t.Fatalf("LoadEnv: %v", err)
	}

	want := DefaultConfig()
	want.ControlAddr = "127.0.0.1:9000"
	want.AdminUsers = []string{"alice", "bob"}
	want.WSOrigins = []string{"https://a.test", "https://b.test"}
	want.TLS = true
	want.VoiceEndpointTTL = 45 * time.Second
	want.ChatRate = 10
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("LoadEnv mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadEnvInvalid(t *testing.T) {
	t.Setenv("ROOMSPEAK_CHAT_RATE", "lots")
	cfg := DefaultConfig()
	if err := LoadEnv(&cfg); err == nil {
		t.Fatalf("LoadEnv accepted a non-numeric rate")
	}
}

func TestConfigWithDefaults(t *testing.T) {
	t.Parallel()
	got := Config{ControlAddr: ":1", ChatRate: 9}.withDefaults()
	if got.ChatRate != 9 || got.DefaultRoom != "general" || got.OutboxSize != 256 || got.MaxRooms != 128 || got.VoiceEndpointTTL != 30*time.Second {
		t.Errorf("withDefaults = %+v", got)
	}
}

func TestRoomsYAML(t *testing.T) {
	t.Parallel()
	rooms := NewRoomRegistry("general")
	data := []byte(`
rooms:
  - name: lobby
  - name: music
  - name: general
  - name: ""
`)
	if err := ImportRoomsFromYAML(data, rooms); err != nil {
		t.Fatalf("ImportRoomsFromYAML: %v", err)
	}
	if diff := cmp.Diff([]string{"general", "lobby", "music"}, rooms.Names()); diff != "" {
		t.Errorf("rooms mismatch (-want +got):\n%s", diff)
	}

	out, err := ExportRoomsYAML(rooms)
	if err != nil {
		t.Fatalf("ExportRoomsYAML: %v", err)
	}
	var cfg RoomsConfig
	if err := yaml.Unmarshal(out, &cfg); err != nil {
		t.Fatalf("unmarshal export: %v", err)
	}
	want := RoomsConfig{Rooms: []RoomYAML{{Name: "general"}, {Name: "lobby"}, {Name: "music"}}}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("export mismatch (-want +got):\n%s", diff)
	}

	if err := ImportRoomsFromYAML([]byte("rooms: [unclosed"), rooms); err == nil {
		t.Errorf("invalid YAML accepted")
	}
}

func TestLoadRoomsFromYAMLFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "rooms.yaml")
	if err := os.WriteFile(path, []byte("rooms:\n  - name: ops\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	rooms := NewRoomRegistry("general")
	if err := LoadRoomsFromYAML(path, rooms); err != nil {
		t.Fatalf("LoadRoomsFromYAML: %v", err)
	}
	if _, ok := rooms.Get("ops"); !ok {
		t.Errorf("room ops not created")
	}
	if err := LoadRoomsFromYAML(filepath.Join(t.TempDir(), "missing.yaml"), rooms); err == nil {
		t.Errorf("missing file accepted")
	}
}

func TestExportUsersYAML(t *testing.T) {
	t.Parallel()
	st := store.NewMemory()
	dir := NewUserDirectory(st, nil)
	root, err := dir.Register("root", "pw")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	bob, err := dir.Register("bob", "pw")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := dir.Ban("bob", "spam", root.ID); err != nil {
		t.Fatalf("Ban: %v", err)
	}

	out, err := ExportUsersYAML(st)
	if err != nil {
		t.Fatalf("ExportUsersYAML: %v", err)
	}
	var export UsersExport
	if err := yaml.Unmarshal(out, &export); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(export.Users) != 2 {
		t.Fatalf("exported %d users", len(export.Users))
	}
	want := []UserYAML{
		{ID: root.ID, Username: "root", Role: "admin"},
		{ID: bob.ID, Username: "bob", Role: "user", Banned: true, BanReason: "spam", BannedBy: "root"},
	}
	if diff := cmp.Diff(want, export.Users, cmpopts.IgnoreFields(UserYAML{}, "CreatedAt")); diff != "" {
		t.Errorf("export mismatch (-want +got):\n%s", diff)
	}

	// Lifted bans leave no trace in the export.
	if _, err := dir.Unban("bob"); err != nil {
		t.Fatalf("Unban: %v", err)
	}
	out, err = ExportUsersYAML(st)
	if err != nil {
		t.Fatalf("ExportUsersYAML: %v", err)
	}
	export = UsersExport{}
	if err := yaml.Unmarshal(out, &export); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got := export.Users[1]; got.Banned || got.BanReason != "" || got.BannedBy != "" {
		t.Errorf("bob after unban exported as %+v", got)
	}
}
