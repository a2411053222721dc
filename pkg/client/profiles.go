package client

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Profile is a saved server connection. Passwords are never stored.
type Profile struct {
	Name        string `yaml:"name"`
	ControlAddr string `yaml:"control_addr"`
	VoiceAddr   string `yaml:"voice_addr,omitempty"`
	TLS         bool   `yaml:"tls,omitempty"`
	Username    string `yaml:"username"`
	LastUsed    int64  `yaml:"last_used,omitempty"`
}

// ProfileStore manages saved profiles in a YAML file.
type ProfileStore struct {
	path     string
	Profiles []Profile `yaml:"profiles"`
}

// DefaultProfilePath returns servers.yaml in the user's config directory,
// falling back to the working directory.
func DefaultProfilePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "servers.yaml"
	}
	return filepath.Join(dir, "roomspeak", "servers.yaml")
}

// NewProfileStore creates a store backed by path.
func NewProfileStore(path string) *ProfileStore {
	return &ProfileStore{path: path}
}

// Load reads profiles from disk. A missing file yields an empty list.
func (ps *ProfileStore) Load() error {
	data, err := os.ReadFile(ps.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			ps.Profiles = nil
			return nil
		}
		return fmt.Errorf("client: read profiles: %w", err)
	}
	if err := yaml.Unmarshal(data, ps); err != nil {
		return fmt.Errorf("client: parse profiles: %w", err)
	}
	return nil
}

// Save writes profiles to disk, creating the parent directory if needed.
func (ps *ProfileStore) Save() error {
	data, err := yaml.Marshal(ps)
	if err != nil {
		return fmt.Errorf("client: encode profiles: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(ps.path), 0o700); err != nil {
		return fmt.Errorf("client: create profile dir: %w", err)
	}
	return os.WriteFile(ps.path, data, 0o600)
}

// Put adds or replaces the profile with the same name. Returns true if it
// was a new entry.
func (ps *ProfileStore) Put(p Profile) bool {
	for i, existing := range ps.Profiles {
		if existing.Name == p.Name {
			ps.Profiles[i] = p
			return false
		}
	}
	ps.Profiles = append(ps.Profiles, p)
	return true
}

// Touch updates LastUsed for a named profile.
func (ps *ProfileStore) Touch(name string, ts int64) bool {
	for i := range ps.Profiles {
		if ps.Profiles[i].Name == name {
			ps.Profiles[i].LastUsed = ts
			return true
		}
	}
	return false
}

// Find returns the named profile, or nil.
func (ps *ProfileStore) Find(name string) *Profile {
	for _, p := range ps.Profiles {
		if p.Name == name {
			return &p
		}
	}
	return nil
}
