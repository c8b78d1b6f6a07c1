package state

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	st := NewStore(filepath.Join(t.TempDir(), "missing.json")).Load()

	assert.Equal(t, Default(), st)
	assert.NotNil(t, st.Playlists)
	assert.Equal(t, defaultVolume, st.Volume)
}

func TestLoadCorruptFileReturnsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{truncated"), 0o644))

	assert.Equal(t, Default(), NewStore(path).Load())
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.json")
	store := NewStore(path)

	want := State{
		Playlists: map[string][]string{
			"/lists/road.m3u": {"/music/a.mp3", "/music/b.mp3"},
		},
		Favorites:      []string{"/music/a.mp3"},
		Volume:         80,
		ActivePlaylist: "/lists/road.m3u",
		DisplayName:    "/lists/road.m3u",
	}
	require.NoError(t, store.Save(want))

	assert.Equal(t, want, store.Load())
}

func TestSaveLeavesNoTemporaryFiles(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(filepath.Join(dir, "state.json"))
	require.NoError(t, store.Save(Default()))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "state.json", entries[0].Name())
}

func TestSaveReplacesPreviousState(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "state.json"))
	first := Default()
	first.Volume = 10
	require.NoError(t, store.Save(first))

	second := Default()
	second.Volume = 90
	require.NoError(t, store.Save(second))

	assert.Equal(t, 90, store.Load().Volume)
}
