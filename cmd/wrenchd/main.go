// Command wrenchd is the Audio Wrench playback daemon. It plays local
// files from dropped playlists, keeps a favorites set, persists the
// session, and is controlled over a unix socket, the drop directory and
// the desktop media session.
package main

import (
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"

	"github.com/audiowrench/wrenchd/internal/audio"
	"github.com/audiowrench/wrenchd/internal/config"
	"github.com/audiowrench/wrenchd/internal/control"
	"github.com/audiowrench/wrenchd/internal/drop"
	"github.com/audiowrench/wrenchd/internal/ipc"
	"github.com/audiowrench/wrenchd/internal/logger"
	"github.com/audiowrench/wrenchd/internal/media"
	"github.com/audiowrench/wrenchd/internal/state"
	"github.com/audiowrench/wrenchd/internal/trash"
)

const tickInterval = 100 * time.Millisecond

var (
	app        = kingpin.New("wrenchd", "Audio Wrench playback daemon")
	configPath = app.Flag("config", "Path to config file").Default("config/wrenchd.yaml").String()
	socketPath = app.Flag("socket", "Control socket path (overrides config)").String()
	dropDir    = app.Flag("drop-dir", "Playlist drop directory (overrides config)").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stderr)").String()
)

func main() {
	_ = godotenv.Load()
	kingpin.MustParse(app.Parse(os.Args[1:]))

	level := "info"
	if *verbose {
		level = "debug"
	}
	if err := logger.Init(logger.Config{Level: level, File: *logfile}); err != nil {
		kingpin.Fatalf("initialize logger: %v", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		zlog.Fatal().Msgf("load config: %v", err)
	}
	if *socketPath != "" {
		cfg.IPC.Socket = *socketPath
	}
	if *dropDir != "" {
		cfg.Drop.Dir = *dropDir
	}

	if err := run(cfg); err != nil {
		zlog.Fatal().Msgf("%v", err)
	}
}

func run(cfg *config.Config) error {
	store := state.NewStore(cfg.State.Path)
	persisted := store.Load()

	// No output device means no player; this is the one fatal startup
	// condition besides a missing decoder toolchain.
	output, err := audio.NewOtoOutputWithConfig(cfg.Audio.SampleRate, cfg.Audio.Channels)
	if err != nil {
		return errors.Wrap(err, "audio device unavailable")
	}
	decoder, err := audio.NewFFmpegDecoder()
	if err != nil {
		_ = output.Close()
		return err
	}

	engine := audio.StartEngine(output, decoder, cfg.PollInterval())

	var ctrl *control.Controller
	save := func() error { return store.Save(ctrl.ExportState()) }
	ctrl = control.New(control.Config{
		Commands: engine.Commands(),
		Status:   engine.Status(),
		State:    persisted,
		Trash:    trash.Put,
		OnChange: func() {
			if err := save(); err != nil {
				zlog.Warn().Msgf("can't store state: %v", err)
			}
		},
	})

	session := newMediaSession(cfg, ctrl)
	defer session.Close()

	srv, err := ipc.NewServer(cfg.IPC.Socket, ctrl, save, output.Bands)
	if err != nil {
		engine.Shutdown()
		<-engine.Done()
		return err
	}
	defer srv.Close()

	watcher, err := drop.Watch(cfg.Drop.Dir, func(path string) {
		_ = ctrl.LoadPlaylistFile(path)
	})
	if err != nil {
		zlog.Warn().Msgf("drop directory unavailable: %v", err)
	} else {
		defer watcher.Close()
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	tick := time.NewTicker(tickInterval)
	defer tick.Stop()
	saveTick := time.NewTicker(cfg.SaveInterval())
	defer saveTick.Stop()

	zlog.Info().Msg("wrenchd started")
	var prev control.Snapshot
	for {
		select {
		case <-tick.C:
			ctrl.Tick()
			snap := ctrl.Snapshot()
			publishMedia(session, prev, snap)
			prev = snap
		case <-saveTick.C:
			go func() {
				if err := save(); err != nil {
					zlog.Warn().Msgf("can't store state: %v", err)
				}
			}()
		case s := <-sig:
			zlog.Info().Msgf("received %v, shutting down", s)
			// Stop issuing engine commands before the command channel
			// closes; the IPC server, watcher and media session are
			// still live until the deferred closes run.
			ctrl.Shutdown()
			engine.Shutdown()
			<-engine.Done()
			if err := save(); err != nil {
				zlog.Warn().Msgf("can't store state on shutdown: %v", err)
			}
			return nil
		case <-engine.Done():
			ctrl.Shutdown()
			return errors.New("audio engine exited unexpectedly")
		}
	}
}

func newMediaSession(cfg *config.Config, ctrl *control.Controller) media.Session {
	if !cfg.Media.Enabled {
		return media.NewNoOpSession()
	}
	session, err := media.NewSession()
	if err != nil {
		zlog.Warn().Msgf("desktop media session unavailable: %v", err)
		return media.NewNoOpSession()
	}
	session.SetCommandHandler(func(cmd media.Command) {
		switch cmd {
		case media.CmdNext:
			ctrl.Advance()
		case media.CmdPlay, media.CmdPause, media.CmdPlayPause, media.CmdStop:
			ctrl.TogglePause()
		}
	})
	return session
}

// publishMedia pushes state transitions to the desktop session, keyed on
// snapshot changes so the bus is not flooded every tick.
func publishMedia(session media.Session, prev, snap control.Snapshot) {
	if snap.Track == prev.Track && snap.State == prev.State {
		return
	}
	if snap.Track != prev.Track && snap.Track != "" {
		_ = session.UpdateMetadata(media.Metadata{
			Title:    filepath.Base(snap.Track),
			Playlist: filepath.Base(snap.DisplayName),
			Duration: deref(snap.Duration),
		})
	}

	ps := media.StateStopped
	switch snap.State {
	case control.StatePlaying, control.StateLoading:
		ps = media.StatePlaying
	case control.StatePaused:
		ps = media.StatePaused
	}
	_ = session.UpdatePlaybackState(ps, deref(snap.Elapsed))
}

func deref(d *time.Duration) time.Duration {
	if d == nil {
		return 0
	}
	return *d
}
