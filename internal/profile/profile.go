// Package profile resolves which profile a process operates on and where that
// profile keeps its files.
package profile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Default is the profile used when none is selected.
const Default = "default"

// EnvProfile selects the profile when no explicit one is given.
const EnvProfile = "SETASIDE_PROFILE"

// ErrInvalidID indicates the profile id format is invalid.
var ErrInvalidID = errors.New("invalid profile ID: must be 1-64 lowercase alphanumerics and single hyphens")

var idRegex = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,62}[a-z0-9])?$`)

// Validate reports whether id is a usable profile id.
func Validate(id string) error {
	if id == "" || strings.Contains(id, "--") || !idRegex.MatchString(id) {
		return ErrInvalidID
	}
	return nil
}

// Resolve picks the profile id: explicit > SETASIDE_PROFILE > "default".
func Resolve(explicit string) (string, error) {
	if explicit != "" {
		if err := Validate(explicit); err != nil {
			return "", fmt.Errorf("invalid profile %q: %w", explicit, err)
		}
		return explicit, nil
	}
	if env := os.Getenv(EnvProfile); env != "" {
		if err := Validate(env); err != nil {
			return "", fmt.Errorf("invalid %s %q: %w", EnvProfile, env, err)
		}
		return env, nil
	}
	return Default, nil
}

// DefaultRoot returns the directory holding every profile.
// Defaults to ~/.setaside, falling back to ./.setaside without a home directory.
func DefaultRoot() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		cwd, _ := os.Getwd()
		return filepath.Join(cwd, ".setaside")
	}
	return filepath.Join(home, ".setaside")
}

// Layout locates one profile's files under a root directory.
type Layout struct {
	Root string
	ID   string
}

// Dir is the profile's directory.
func (l Layout) Dir() string {
	return filepath.Join(l.Root, "profiles", l.ID)
}

// SyncDir holds the metadata area file. Point it at a synced folder to share
// Collections between devices.
func (l Layout) SyncDir() string {
	return filepath.Join(l.Dir(), "sync")
}

// BlobPath is the device-local attachment database for the given backend
// ("sqlite" or "bolt").
func (l Layout) BlobPath(backend string) string {
	if backend == "bolt" {
		return filepath.Join(l.Dir(), "blobs.bolt")
	}
	return filepath.Join(l.Dir(), "blobs.db")
}

// LogPath is the default debug log location.
func (l Layout) LogPath() string {
	return filepath.Join(l.Dir(), "setaside.log")
}

// List returns the ids of every profile with a directory under root.
func List(root string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(root, "profiles"))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() && Validate(e.Name()) == nil {
			ids = append(ids, e.Name())
		}
	}
	return ids, nil
}
