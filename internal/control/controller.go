// Package control implements the queue controller: it owns playlists, the
// favorites set and the active-playlist pointer, decides what plays next,
// and reacts to engine status. It never blocks on the engine; status is
// polled one message per tick.
package control

import (
	"math/rand"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/audiowrench/wrenchd/internal/audio"
	"github.com/audiowrench/wrenchd/internal/playlist"
	"github.com/audiowrench/wrenchd/internal/state"
)

// PlayState is the externally visible playback state.
type PlayState string

const (
	StateIdle    PlayState = "idle"
	StateLoading PlayState = "loading"
	StatePlaying PlayState = "playing"
	StatePaused  PlayState = "paused"
)

// Snapshot is a point-in-time view of the controller for display.
type Snapshot struct {
	State         PlayState
	Track         string
	DisplayName   string
	Volume        int
	Favorite      bool
	Elapsed       *time.Duration
	Duration      *time.Duration
	QueueLength   int
	PlaylistCount int
}

// Config carries the controller's collaborators. Decode, Trash and Rand
// have working defaults; Commands and Status are the engine's channels.
type Config struct {
	Commands chan<- audio.Command
	Status   <-chan audio.Status
	State    state.State

	Decode   func(text string) ([]string, error)
	Trash    func(path string) error
	OnChange func()
	Rand     *rand.Rand
}

// Controller drives the audio engine from the play queue.
type Controller struct {
	mu sync.Mutex

	commands chan<- audio.Command
	status   <-chan audio.Status

	playlists map[string][]string
	favorites map[string]struct{}
	active    string
	display   string
	current   string
	volume    int
	paused    bool
	loading   bool
	closed    bool
	elapsed   *time.Duration
	duration  *time.Duration

	decode   func(string) ([]string, error)
	trash    func(string) error
	onChange func()
	rng      *rand.Rand
}

// New builds a controller from persisted state.
func New(cfg Config) *Controller {
	c := &Controller{
		commands:  cfg.Commands,
		status:    cfg.Status,
		playlists: map[string][]string{},
		favorites: map[string]struct{}{},
		active:    cfg.State.ActivePlaylist,
		display:   cfg.State.DisplayName,
		volume:    clampVolume(cfg.State.Volume),
		decode:    cfg.Decode,
		trash:     cfg.Trash,
		onChange:  cfg.OnChange,
		rng:       cfg.Rand,
	}
	for id, tracks := range cfg.State.Playlists {
		c.playlists[id] = append([]string(nil), tracks...)
	}
	for _, ref := range cfg.State.Favorites {
		c.favorites[ref] = struct{}{}
	}
	if c.decode == nil {
		c.decode = playlist.Decode
	}
	if c.rng == nil {
		c.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return c
}

// Advance plays the next track of the active playlist. With a track in
// progress the queue front is removed first; with nothing in progress the
// front plays as-is, which is what makes the very first "next" start the
// playlist instead of skipping its opening track. An exhausted playlist is
// removed and the active pointer cleared.
func (c *Controller) Advance() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.advanceLocked()
}

func (c *Controller) advanceLocked() {
	queue, ok := c.playlists[c.active]
	if !ok {
		// No active playlist, or the pointer outlived its playlist.
		return
	}
	if len(queue) > 0 && c.current != "" {
		queue = queue[1:]
		c.playlists[c.active] = queue
	}
	if len(queue) == 0 {
		zlog.Info().Msgf("controller: playlist %q exhausted, removing", c.active)
		delete(c.playlists, c.active)
		c.active = ""
		c.changedLocked()
		return
	}
	c.display = c.active
	c.loading = true
	c.sendLocked(audio.Command{Type: audio.CmdPlay, Track: queue[0], Volume: c.volume})
}

// Shutdown stops the controller from issuing further engine commands.
// Must be called before the engine's command channel closes, so control
// requests that race the shutdown are dropped instead of crashing.
func (c *Controller) Shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *Controller) sendLocked(cmd audio.Command) {
	if c.closed {
		zlog.Debug().Msgf("controller: shutting down, dropping %v", cmd.Type)
		return
	}
	c.commands <- cmd
}

// LoadPlaylist decodes raw playlist text under the given identifier and
// starts playing from it. Re-dropping an exhausted playlist appends its
// tracks in order; anything else gets a fresh uniform shuffle. The current
// track display is cleared first so the immediate advance does not strip a
// track belonging to the previous playlist.
func (c *Controller) LoadPlaylist(id, text string) error {
	tracks, err := c.decode(text)
	if err != nil {
		zlog.Warn().Msgf("controller: can't decode playlist %q: %v", id, err)
		return errors.Wrapf(err, "decode playlist %q", id)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.playlists[id]; ok && len(existing) == 0 {
		c.playlists[id] = append(existing, tracks...)
	} else {
		c.rng.Shuffle(len(tracks), func(i, j int) {
			tracks[i], tracks[j] = tracks[j], tracks[i]
		})
		c.playlists[id] = tracks
	}

	c.active = id
	c.current = ""
	c.advanceLocked()
	c.changedLocked()
	return nil
}

// LoadPlaylistFile reads a dropped playlist file and loads it under its
// own path as identifier.
func (c *Controller) LoadPlaylistFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		zlog.Warn().Msgf("controller: can't read playlist %q: %v", path, err)
		return errors.Wrapf(err, "read playlist %q", path)
	}
	return c.LoadPlaylist(path, string(data))
}

// Tick consumes at most one pending engine status. It never blocks; call
// it from a periodic driver.
func (c *Controller) Tick() {
	select {
	case st, ok := <-c.status:
		if !ok {
			return
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		c.handleStatusLocked(st)
	default:
	}
}

func (c *Controller) handleStatusLocked(st audio.Status) {
	switch st.Type {
	case audio.StatusPlaying:
		c.current = st.Track
		c.paused = false
		c.loading = false
		c.duration = st.Duration
	case audio.StatusPaused:
		c.paused = true
	case audio.StatusPlaytime:
		c.elapsed = st.Elapsed
	case audio.StatusEnded:
		zlog.Debug().Msg("controller: playback ended")
		c.advanceLocked()
		c.current = ""
		c.changedLocked()
	case audio.StatusInvalidFile:
		zlog.Warn().Msgf("controller: skipping invalid file %q", st.Track)
		// Point the display at the offending entry so the advance strips
		// exactly that track.
		c.current = st.Track
		c.advanceLocked()
		c.current = ""
	}
}

// TogglePause asks the engine to flip between playing and paused. The
// displayed state only changes once the engine confirms.
func (c *Controller) TogglePause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sendLocked(audio.Command{Type: audio.CmdPause})
}

// SetVolume stores and applies a new volume, clamped to 0-100.
func (c *Controller) SetVolume(v int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.volume = clampVolume(v)
	c.sendLocked(audio.Command{Type: audio.CmdSetVolume, Volume: c.volume})
	c.changedLocked()
}

// ToggleFavorite flips the current track's membership in the favorites
// set. A no-op with nothing playing.
func (c *Controller) ToggleFavorite() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == "" {
		return
	}
	if _, ok := c.favorites[c.current]; ok {
		delete(c.favorites, c.current)
	} else {
		c.favorites[c.current] = struct{}{}
	}
	c.changedLocked()
}

// ExportFavorites writes the favorites set as an XSPF document, sorted for
// a stable file.
func (c *Controller) ExportFavorites(path string) error {
	c.mu.Lock()
	refs := c.favoritesLocked()
	c.mu.Unlock()
	return playlist.WriteFile(path, refs)
}

// TrashCurrent moves the current track's file to the trash, best effort.
// Failures are logged and playback state is untouched either way.
func (c *Controller) TrashCurrent() {
	c.mu.Lock()
	current := c.current
	trash := c.trash
	c.mu.Unlock()

	if current == "" || trash == nil {
		return
	}
	path, err := audio.ResolveTrackPath(current)
	if err != nil {
		zlog.Warn().Msgf("controller: can't trash %q: %v", current, err)
		return
	}
	if err := trash(path); err != nil {
		zlog.Warn().Msgf("controller: can't trash %q: %v", path, err)
		return
	}
	zlog.Info().Msgf("controller: moved %q to trash", path)
}

// Snapshot returns the current view for display.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := StateIdle
	switch {
	case c.current != "" && c.paused:
		st = StatePaused
	case c.current != "":
		st = StatePlaying
	case c.loading:
		st = StateLoading
	}
	_, fav := c.favorites[c.current]
	return Snapshot{
		State:         st,
		Track:         c.current,
		DisplayName:   c.display,
		Volume:        c.volume,
		Favorite:      c.current != "" && fav,
		Elapsed:       c.elapsed,
		Duration:      c.duration,
		QueueLength:   len(c.playlists[c.active]),
		PlaylistCount: len(c.playlists),
	}
}

// ExportState snapshots everything worth persisting.
func (c *Controller) ExportState() state.State {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := state.State{
		Playlists:      map[string][]string{},
		Favorites:      c.favoritesLocked(),
		Volume:         c.volume,
		ActivePlaylist: c.active,
		DisplayName:    c.display,
	}
	for id, tracks := range c.playlists {
		st.Playlists[id] = append([]string(nil), tracks...)
	}
	return st
}

func (c *Controller) favoritesLocked() []string {
	refs := make([]string, 0, len(c.favorites))
	for ref := range c.favorites {
		refs = append(refs, ref)
	}
	sort.Strings(refs)
	return refs
}

// changedLocked notifies the persistence hook without blocking the
// controller; saves run fire-and-forget.
func (c *Controller) changedLocked() {
	if c.onChange != nil {
		go c.onChange()
	}
}

func clampVolume(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
