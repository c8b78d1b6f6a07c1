// Package audio implements the playback engine: a single worker goroutine
// with exclusive ownership of the audio output device and the decoder,
// driven by a command channel and reporting back on a status channel.
package audio

import (
	"context"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
)

const (
	// defaultPollInterval bounds status latency and idle CPU usage; this is
	// the engine's only blocking wait.
	defaultPollInterval = 150 * time.Millisecond

	commandBacklog = 16
	statusBacklog  = 64
)

// CommandType identifies an engine command.
type CommandType int

const (
	CmdPlay CommandType = iota
	CmdPause
	CmdSetVolume
)

// String returns the command name.
func (c CommandType) String() string {
	switch c {
	case CmdPlay:
		return "play"
	case CmdPause:
		return "pause"
	case CmdSetVolume:
		return "set_volume"
	default:
		return "unknown"
	}
}

// Command is a message sent to the engine. Commands are processed strictly
// in arrival order, one at a time.
type Command struct {
	Type   CommandType
	Track  string // CmdPlay: track reference (filesystem path or file:// URL)
	Volume int    // CmdPlay, CmdSetVolume: 0-100
}

// StatusType identifies an engine status message.
type StatusType int

const (
	StatusPlaying StatusType = iota
	StatusPaused
	StatusEnded
	StatusInvalidFile
	StatusPlaytime
)

// String returns the status name.
func (s StatusType) String() string {
	switch s {
	case StatusPlaying:
		return "playing"
	case StatusPaused:
		return "paused"
	case StatusEnded:
		return "ended"
	case StatusInvalidFile:
		return "invalid_file"
	case StatusPlaytime:
		return "playtime"
	default:
		return "unknown"
	}
}

// Status is a message emitted by the engine. Sends are best-effort: a slow
// consumer loses status updates, never commands.
type Status struct {
	Type     StatusType
	Track    string         // StatusPlaying: resolved path; StatusInvalidFile: the original reference
	Duration *time.Duration // StatusPlaying: nil when the format exposes no total duration
	Elapsed  *time.Duration // StatusPlaytime: nil when nothing has ever played
}

// Output is the audio output backend owned by the engine.
type Output interface {
	io.WriteCloser
	SampleRate() int
	Channels() int
	SetVolume(v float64)
	Pause()
	Resume()
	Stop()
	Buffered() int
}

// Decoder turns audio files into PCM for an Output.
type Decoder interface {
	// Probe reports the total duration of the file, whether that duration
	// is known, and an error if the file cannot be decoded at all.
	Probe(path string) (time.Duration, bool, error)
	// Decode streams the file's PCM data into the output until done or the
	// context is cancelled.
	Decode(ctx context.Context, path string, output Output) error
	Close() error
}

// session is the transient record of the currently loaded track. It exists
// only between a successful CmdPlay and the next CmdPlay or shutdown.
type session struct {
	cancel     context.CancelFunc
	decodeDone chan struct{}
	paused     bool
}

// Engine is the playback worker. All fields are confined to the run
// goroutine; the outside world interacts through Commands and Status only.
type Engine struct {
	output  Output
	decoder Decoder

	commands chan Command
	status   chan Status
	done     chan struct{}

	poll time.Duration
	now  func() time.Time

	sess     *session
	lastPath string
	length   *time.Duration
	ended    bool

	playStart  time.Time
	pauseStart time.Time
	pauseTime  time.Duration
}

// StartEngine spawns the engine worker. The caller keeps ownership of
// neither output nor decoder: both are closed when the engine exits.
// The engine runs until its command channel is closed via Shutdown.
func StartEngine(output Output, decoder Decoder, poll time.Duration) *Engine {
	e := newEngine(output, decoder, poll)
	go e.run()
	return e
}

func newEngine(output Output, decoder Decoder, poll time.Duration) *Engine {
	if poll <= 0 {
		poll = defaultPollInterval
	}
	return &Engine{
		output:   output,
		decoder:  decoder,
		commands: make(chan Command, commandBacklog),
		status:   make(chan Status, statusBacklog),
		done:     make(chan struct{}),
		poll:     poll,
		now:      time.Now,
	}
}

// Commands returns the channel the engine consumes commands from.
func (e *Engine) Commands() chan<- Command {
	return e.commands
}

// Status returns the channel the engine emits status on. It is closed when
// the engine exits.
func (e *Engine) Status() <-chan Status {
	return e.status
}

// Done is closed when the engine worker has exited.
func (e *Engine) Done() <-chan struct{} {
	return e.done
}

// Shutdown closes the command channel. The worker drains the backlog, tears
// down the session and exits; this is the only normal termination path.
func (e *Engine) Shutdown() {
	close(e.commands)
}

func (e *Engine) run() {
	defer close(e.done)
	defer close(e.status)
	defer func() {
		if err := e.decoder.Close(); err != nil {
			zlog.Warn().Msgf("engine: decoder close: %v", err)
		}
		if err := e.output.Close(); err != nil {
			zlog.Warn().Msgf("engine: output close: %v", err)
		}
	}()

	for e.step() {
	}
}

// step runs one poll iteration: queued commands if any are pending,
// otherwise a single status emission followed by the idle sleep. Commands
// always win over status emission. Returns false once the command channel
// is closed, the only shutdown path.
func (e *Engine) step() bool {
	select {
	case cmd, ok := <-e.commands:
		if !ok {
			zlog.Debug().Msg("engine: command channel closed, shutting down")
			e.discardSession()
			return false
		}
		return e.dispatch(cmd)
	default:
		if e.drained() && !e.ended {
			e.emit(Status{Type: StatusEnded})
			e.ended = true
		} else {
			e.emit(Status{Type: StatusPlaytime, Elapsed: e.playtime()})
			time.Sleep(e.poll)
		}
		return true
	}
}

// dispatch executes first plus everything already sitting in the queue
// behind it, in order. A play with a newer play queued behind it is dropped
// before it starts, so a burst of plays produces a single Playing status
// for the newest track only.
func (e *Engine) dispatch(first Command) bool {
	pending := []Command{first}
	open := true
drain:
	for {
		select {
		case cmd, ok := <-e.commands:
			if !ok {
				open = false
				break drain
			}
			pending = append(pending, cmd)
		default:
			break drain
		}
	}

	lastPlay := -1
	for i, cmd := range pending {
		if cmd.Type == CmdPlay {
			lastPlay = i
		}
	}
	for i, cmd := range pending {
		if cmd.Type == CmdPlay && i != lastPlay {
			zlog.Debug().Msgf("engine: play of %q superseded before start", cmd.Track)
			continue
		}
		zlog.Debug().Msgf("engine: command %v", cmd.Type)
		e.handle(cmd)
	}

	if !open {
		zlog.Debug().Msg("engine: command channel closed, shutting down")
		e.discardSession()
		return false
	}
	return true
}

func (e *Engine) handle(cmd Command) {
	switch cmd.Type {
	case CmdSetVolume:
		if e.sess != nil {
			e.output.SetVolume(gain(cmd.Volume))
		}
	case CmdPlay:
		e.play(cmd.Track, cmd.Volume)
	case CmdPause:
		e.togglePause()
	}
}

// play stops whatever is loaded and starts the referenced track. Failures
// are reported as status, never as a crash; a bad entry in a playlist must
// look like a skippable track, not a halt.
func (e *Engine) play(ref string, volume int) {
	e.ended = false
	e.discardSession()

	path, err := ResolveTrackPath(ref)
	if err != nil {
		// Report like any other bad entry so the controller strips it;
		// a silent skip would leave the URL at the queue front and the
		// next Ended edge would retry it forever.
		zlog.Warn().Msgf("engine: %v, skipping %q", err, ref)
		e.emit(Status{Type: StatusInvalidFile, Track: ref})
		return
	}

	f, err := os.Open(path)
	if err != nil {
		zlog.Warn().Msgf("engine: can't open %q: %v", path, err)
		e.emit(Status{Type: StatusInvalidFile, Track: ref})
		return
	}
	_ = f.Close()

	length, known, err := e.decoder.Probe(path)
	if err != nil {
		zlog.Warn().Msgf("engine: can't decode %q, unsupported format?: %v", ref, err)
		e.emit(Status{Type: StatusInvalidFile, Track: ref})
		return
	}

	e.output.SetVolume(gain(volume))

	ctx, cancel := context.WithCancel(context.Background())
	sess := &session{cancel: cancel, decodeDone: make(chan struct{})}
	go func() {
		defer close(sess.decodeDone)
		if err := e.decoder.Decode(ctx, path, e.output); err != nil && !errors.Is(err, context.Canceled) {
			zlog.Warn().Msgf("engine: decode %q: %v", path, err)
		}
	}()

	e.sess = sess
	e.lastPath = path
	e.length = nil
	if known {
		d := length
		e.length = &d
	}
	e.playStart = e.now()
	e.pauseStart = time.Time{}
	e.pauseTime = 0

	zlog.Debug().Msgf("engine: starting playback of %q", path)
	e.emit(Status{Type: StatusPlaying, Track: path, Duration: e.length})
}

// togglePause flips between playing and paused. With nothing loaded it is a
// silent no-op, but it still re-arms the Ended edge like the play command.
func (e *Engine) togglePause() {
	e.ended = false
	if e.sess == nil {
		return
	}
	if e.sess.paused {
		if !e.pauseStart.IsZero() {
			e.pauseTime += e.now().Sub(e.pauseStart)
			e.pauseStart = time.Time{}
		}
		e.sess.paused = false
		e.output.Resume()
		e.emit(Status{Type: StatusPlaying, Track: e.lastPath, Duration: e.length})
	} else {
		e.pauseStart = e.now()
		e.sess.paused = true
		e.output.Pause()
		e.emit(Status{Type: StatusPaused})
	}
}

// discardSession cancels the decode goroutine and clears any buffered PCM.
// Stop is issued before waiting so a decoder blocked on a full output
// buffer can make progress, and again after to drop late writes.
func (e *Engine) discardSession() {
	if e.sess == nil {
		return
	}
	e.sess.cancel()
	e.output.Stop()
	<-e.sess.decodeDone
	e.output.Stop()
	e.sess = nil
}

// drained reports whether there is nothing loaded or the loaded track has
// fully passed through the output.
func (e *Engine) drained() bool {
	if e.sess == nil {
		return true
	}
	select {
	case <-e.sess.decodeDone:
	default:
		return false
	}
	return e.output.Buffered() == 0
}

// playtime computes elapsed playback time: wall time since play start minus
// accumulated pauses, minus the current pause if one is in progress. Nil
// when nothing has ever played.
func (e *Engine) playtime() *time.Duration {
	if e.playStart.IsZero() {
		return nil
	}
	now := e.now()
	elapsed := now.Sub(e.playStart) - e.pauseTime
	if !e.pauseStart.IsZero() {
		elapsed -= now.Sub(e.pauseStart)
	}
	if elapsed < 0 {
		elapsed = 0
	}
	return &elapsed
}

func (e *Engine) emit(st Status) {
	select {
	case e.status <- st:
	default:
		zlog.Debug().Msgf("engine: status channel full, dropping %v", st.Type)
	}
}

func gain(volume int) float64 {
	if volume < 0 {
		volume = 0
	}
	if volume > 100 {
		volume = 100
	}
	return float64(volume) / 100
}

// ResolveTrackPath maps a track reference to a filesystem path. file:// URLs
// are converted, other URL schemes are rejected, and anything that is not a
// URL passes through untouched.
func ResolveTrackPath(ref string) (string, error) {
	if !strings.Contains(ref, "://") {
		return ref, nil
	}
	u, err := url.Parse(ref)
	if err != nil {
		// Not a URL after all; treat as a plain path.
		return ref, nil
	}
	if u.Scheme != "file" {
		return "", errors.Newf("can't play %s URLs", u.Scheme)
	}
	if u.Host != "" && u.Host != "localhost" {
		return "", errors.Newf("can't play remote file URL %q", ref)
	}
	p := u.Path
	// Windows drive letters arrive as /C:/...
	if len(p) >= 3 && p[0] == '/' && p[2] == ':' {
		p = p[1:]
	}
	if p == "" {
		return "", errors.Newf("empty file URL %q", ref)
	}
	return filepath.FromSlash(p), nil
}
