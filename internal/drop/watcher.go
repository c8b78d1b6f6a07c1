// Package drop watches a directory for playlist files, the headless
// equivalent of dragging a playlist onto the player window.
package drop

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/fsnotify/fsnotify"
	zlog "github.com/rs/zerolog/log"
)

// settleDelay gives the writer time to finish before the file is read;
// drops usually arrive as copy-in-progress.
const settleDelay = 200 * time.Millisecond

// debounce suppresses the write-event storm a single copy produces.
const debounce = 2 * time.Second

var playlistExts = map[string]bool{
	".m3u":  true,
	".m3u8": true,
	".pls":  true,
	".xspf": true,
	".asx":  true,
}

// IsPlaylistFile reports whether the path looks like a playlist document.
func IsPlaylistFile(path string) bool {
	return playlistExts[strings.ToLower(filepath.Ext(path))]
}

// Watcher delivers dropped playlist paths to a handler.
type Watcher struct {
	fs     *fsnotify.Watcher
	handle func(path string)

	mu   sync.Mutex
	seen map[string]time.Time

	done chan struct{}
}

// Watch creates the drop directory if needed and starts watching it. Each
// playlist file created or modified there is passed to handle once per
// drop, from the watcher's own goroutine.
func Watch(dir string, handle func(path string)) (*Watcher, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create drop directory %q", dir)
	}
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "create filesystem watcher")
	}
	if err := fs.Add(dir); err != nil {
		_ = fs.Close()
		return nil, errors.Wrapf(err, "watch %q", dir)
	}

	w := &Watcher{
		fs:     fs,
		handle: handle,
		seen:   map[string]time.Time{},
		done:   make(chan struct{}),
	}
	go w.run()
	zlog.Info().Msgf("drop: watching %q for playlists", dir)
	return w, nil
}

func (w *Watcher) run() {
	defer close(w.done)
	for {
		select {
		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
				continue
			}
			if !IsPlaylistFile(ev.Name) {
				continue
			}
			if !w.claim(ev.Name) {
				continue
			}
			go func(path string) {
				time.Sleep(settleDelay)
				zlog.Info().Msgf("drop: playlist dropped: %q", path)
				w.handle(path)
			}(ev.Name)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			zlog.Warn().Msgf("drop: watch error: %v", err)
		}
	}
}

// claim marks the path as handled and rejects repeats within the debounce
// window.
func (w *Watcher) claim(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	now := time.Now()
	if last, ok := w.seen[path]; ok && now.Sub(last) < debounce {
		return false
	}
	w.seen[path] = now
	return true
}

// Close stops watching and waits for the event loop to exit.
func (w *Watcher) Close() error {
	err := w.fs.Close()
	<-w.done
	return err
}
