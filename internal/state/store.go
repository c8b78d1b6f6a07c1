// Package state persists the player session between runs: playlists,
// favorites, volume and the active playlist.
package state

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
)

const defaultVolume = 50

// State is the on-disk session snapshot.
type State struct {
	Playlists      map[string][]string `json:"playlists"`
	Favorites      []string            `json:"favorites"`
	Volume         int                 `json:"volume"`
	ActivePlaylist string              `json:"active_playlist"`
	DisplayName    string              `json:"display_name"`
}

// Default returns the state of a first run.
func Default() State {
	return State{
		Playlists: map[string][]string{},
		Volume:    defaultVolume,
	}
}

// DefaultPath returns the conventional state file location.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, "audiowrench", "audio_wrench.json")
}

// Store reads and writes the state file.
type Store struct {
	path string
}

// NewStore creates a store backed by the given file path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// Load reads the last saved state. Any read or decode failure falls back to
// defaults with a warning; a broken state file must never keep the player
// from starting.
func (s *Store) Load() State {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			zlog.Warn().Msgf("state: can't read %q, starting fresh: %v", s.path, err)
		}
		return Default()
	}

	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		zlog.Warn().Msgf("state: corrupt state file %q, starting fresh: %v", s.path, err)
		return Default()
	}
	if st.Playlists == nil {
		st.Playlists = map[string][]string{}
	}
	return st
}

// Save writes the state atomically: a temporary file in the target
// directory, renamed over the old state only after a fully successful
// write. A crash mid-write leaves the previous state intact.
func (s *Store) Save(st State) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode state")
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "create state directory %q", dir)
	}

	tmp, err := os.CreateTemp(dir, ".audio_wrench-*.json")
	if err != nil {
		return errors.Wrap(err, "create temporary state file")
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return errors.Wrapf(err, "write %q", tmpName)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return errors.Wrapf(err, "sync %q", tmpName)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return errors.Wrapf(err, "close %q", tmpName)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return errors.Wrapf(err, "replace %q", s.path)
	}
	return nil
}
