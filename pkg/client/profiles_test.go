package client

import (
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestProfileStoreRoundTrip(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "nested", "servers.yaml")

	ps := NewProfileStore(path)
	if err := ps.Load(); err != nil {
		t.Fatalf("Load missing file: %v", err)
	}
	if len(ps.Profiles) != 0 {
		t.Fatalf("expected no profiles, got %v", ps.Profiles)
	}

	home := Profile{Name: "home", ControlAddr: "127.0.0.1:12345", VoiceAddr: "127.0.0.1:12346", Username: "alice"}
	if !ps.Put(home) {
		t.Errorf("Put of new profile reported update")
	}
	home.TLS = true
	if ps.Put(home) {
		t.Errorf("Put of existing profile reported new entry")
	}
	if !ps.Touch("home", 1700000000) {
		t.Errorf("Touch missed existing profile")
	}
	if ps.Touch("work", 1) {
		t.Errorf("Touch matched unknown profile")
	}
	if err := ps.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded := NewProfileStore(path)
	if err := loaded.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	home.LastUsed = 1700000000
	if diff := cmp.Diff([]Profile{home}, loaded.Profiles); diff != "" {
		t.Errorf("profiles mismatch (-want +got):\n%s", diff)
	}
	if got := loaded.Find("home"); got == nil || got.Username != "alice" {
		t.Errorf("Find(home) = %+v", got)
	}
	if loaded.Find("work") != nil {
		t.Errorf("Find(work) should be nil")
	}
}
