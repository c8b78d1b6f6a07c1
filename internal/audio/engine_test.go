package audio

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeOutput struct {
	mu       sync.Mutex
	buffered int
	volume   float64
	paused   bool
	stops    int
	closed   bool
}

func newFakeOutput() *fakeOutput {
	return &fakeOutput{volume: -1}
}

func (o *fakeOutput) Write(p []byte) (int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.buffered += len(p)
	return len(p), nil
}

func (o *fakeOutput) SampleRate() int { return 44100 }
func (o *fakeOutput) Channels() int   { return 2 }

func (o *fakeOutput) SetVolume(v float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.volume = v
}

func (o *fakeOutput) Pause() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.paused = true
}

func (o *fakeOutput) Resume() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.paused = false
}

func (o *fakeOutput) Stop() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.buffered = 0
	o.stops++
}

func (o *fakeOutput) Buffered() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.buffered
}

func (o *fakeOutput) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed = true
	return nil
}

type fakeDecoder struct {
	mu       sync.Mutex
	lengths  map[string]time.Duration
	noLength map[string]bool // decodable, duration unknown
	broken   map[string]bool
	block    map[string]bool // Decode waits for cancellation
	decoded  []string
	closed   bool
}

func newFakeDecoder() *fakeDecoder {
	return &fakeDecoder{
		lengths:  map[string]time.Duration{},
		noLength: map[string]bool{},
		broken:   map[string]bool{},
		block:    map[string]bool{},
	}
}

func (d *fakeDecoder) Probe(path string) (time.Duration, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.broken[path] {
		return 0, false, errors.Newf("probe %q: not audio", path)
	}
	if d.noLength[path] {
		return 0, false, nil
	}
	if l, ok := d.lengths[path]; ok {
		return l, true, nil
	}
	return 3 * time.Second, true, nil
}

func (d *fakeDecoder) Decode(ctx context.Context, path string, output Output) error {
	d.mu.Lock()
	d.decoded = append(d.decoded, path)
	blocked := d.block[path]
	d.mu.Unlock()
	if blocked {
		<-ctx.Done()
		return ctx.Err()
	}
	return nil
}

func (d *fakeDecoder) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

func (d *fakeDecoder) decodes() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.decoded...)
}

func newTestEngine(t *testing.T) (*Engine, *fakeOutput, *fakeDecoder) {
	t.Helper()
	out := newFakeOutput()
	dec := newFakeDecoder()
	e := newEngine(out, dec, time.Millisecond)
	return e, out, dec
}

func writeTrack(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte("pcm"), 0o644))
	return path
}

func collectStatus(e *Engine) []Status {
	var out []Status
	for {
		select {
		case st := <-e.status:
			out = append(out, st)
		default:
			return out
		}
	}
}

// startTrack queues a play command, runs one step and waits for the decode
// goroutine so the engine is in a settled state for assertions.
func startTrack(t *testing.T, e *Engine, ref string, volume int) []Status {
	t.Helper()
	e.commands <- Command{Type: CmdPlay, Track: ref, Volume: volume}
	require.True(t, e.step())
	if e.sess != nil {
		<-e.sess.decodeDone
	}
	return collectStatus(e)
}

func TestPlayEmitsPlayingWithDuration(t *testing.T) {
	e, out, dec := newTestEngine(t)
	track := writeTrack(t, "a.mp3")
	dec.lengths[track] = 212 * time.Second

	sts := startTrack(t, e, track, 80)

	require.Len(t, sts, 1)
	assert.Equal(t, StatusPlaying, sts[0].Type)
	assert.Equal(t, track, sts[0].Track)
	require.NotNil(t, sts[0].Duration)
	assert.Equal(t, 212*time.Second, *sts[0].Duration)
	assert.InDelta(t, 0.8, out.volume, 1e-9)
}

func TestPlayUnknownDurationIsNil(t *testing.T) {
	e, _, dec := newTestEngine(t)
	track := writeTrack(t, "stream.aac")
	dec.noLength[track] = true

	sts := startTrack(t, e, track, 100)

	require.Len(t, sts, 1)
	assert.Equal(t, StatusPlaying, sts[0].Type)
	assert.Nil(t, sts[0].Duration)
}

func TestPlayMissingFileEmitsInvalidFile(t *testing.T) {
	e, _, _ := newTestEngine(t)
	ref := filepath.Join(t.TempDir(), "gone.mp3")

	sts := startTrack(t, e, ref, 50)

	require.Len(t, sts, 1)
	assert.Equal(t, StatusInvalidFile, sts[0].Type)
	assert.Equal(t, ref, sts[0].Track)
	assert.Nil(t, e.sess)

	// Pausing with nothing loaded is a silent no-op.
	e.commands <- Command{Type: CmdPause}
	require.True(t, e.step())
	assert.Empty(t, collectStatus(e))
}

func TestPlayUndecodableEmitsInvalidFileWithOriginalRef(t *testing.T) {
	e, _, dec := newTestEngine(t)
	track := writeTrack(t, "notes.txt")
	dec.broken[track] = true
	ref := "file://" + track

	sts := startTrack(t, e, ref, 50)

	require.Len(t, sts, 1)
	assert.Equal(t, StatusInvalidFile, sts[0].Type)
	assert.Equal(t, ref, sts[0].Track)
}

func TestPlayRejectsRemoteURLAsInvalidFile(t *testing.T) {
	e, _, dec := newTestEngine(t)

	sts := startTrack(t, e, "https://example.com/song.mp3", 50)

	// Reported as a bad entry, never opened or decoded; without the
	// status the queue front would be retried on every Ended edge.
	require.Len(t, sts, 1)
	assert.Equal(t, StatusInvalidFile, sts[0].Type)
	assert.Equal(t, "https://example.com/song.mp3", sts[0].Track)
	assert.Nil(t, e.sess)
	assert.Empty(t, dec.decodes())
}

func TestPlayBurstStartsOnlyNewestTrack(t *testing.T) {
	e, _, dec := newTestEngine(t)
	first := writeTrack(t, "first.mp3")
	second := writeTrack(t, "second.mp3")

	e.commands <- Command{Type: CmdPlay, Track: first, Volume: 70}
	e.commands <- Command{Type: CmdPlay, Track: second, Volume: 70}
	require.True(t, e.step())
	<-e.sess.decodeDone

	sts := collectStatus(e)
	require.Len(t, sts, 1)
	assert.Equal(t, StatusPlaying, sts[0].Type)
	assert.Equal(t, second, sts[0].Track)
	assert.Equal(t, []string{second}, dec.decodes())
}

func TestPlayReplacesRunningSession(t *testing.T) {
	e, out, dec := newTestEngine(t)
	first := writeTrack(t, "first.mp3")
	second := writeTrack(t, "second.mp3")
	dec.block[first] = true

	e.commands <- Command{Type: CmdPlay, Track: first, Volume: 70}
	require.True(t, e.step())
	collectStatus(e)

	sts := startTrack(t, e, second, 70)

	require.Len(t, sts, 1)
	assert.Equal(t, second, sts[0].Track)
	assert.Equal(t, []string{first, second}, dec.decodes())
	assert.GreaterOrEqual(t, out.stops, 2)
}

func TestPauseResumeAndPlaytime(t *testing.T) {
	e, out, dec := newTestEngine(t)
	track := writeTrack(t, "a.flac")
	dec.lengths[track] = time.Minute

	now := time.Unix(1000, 0)
	e.now = func() time.Time { return now }

	startTrack(t, e, track, 100)
	now = now.Add(2 * time.Second)
	require.NotNil(t, e.playtime())
	assert.Equal(t, 2*time.Second, *e.playtime())

	e.commands <- Command{Type: CmdPause}
	require.True(t, e.step())
	sts := collectStatus(e)
	require.Len(t, sts, 1)
	assert.Equal(t, StatusPaused, sts[0].Type)
	assert.True(t, out.paused)

	// Time passing while paused does not count as playtime.
	now = now.Add(10 * time.Second)
	assert.Equal(t, 2*time.Second, *e.playtime())

	e.commands <- Command{Type: CmdPause}
	require.True(t, e.step())
	sts = collectStatus(e)
	require.Len(t, sts, 1)
	assert.Equal(t, StatusPlaying, sts[0].Type)
	assert.Equal(t, track, sts[0].Track)
	require.NotNil(t, sts[0].Duration)
	assert.Equal(t, time.Minute, *sts[0].Duration)
	assert.False(t, out.paused)

	now = now.Add(time.Second)
	assert.Equal(t, 3*time.Second, *e.playtime())
}

func TestPlaytimeNilBeforeFirstPlay(t *testing.T) {
	e, _, _ := newTestEngine(t)
	assert.Nil(t, e.playtime())
}

func TestEndedEmittedOnceAfterDrain(t *testing.T) {
	e, _, _ := newTestEngine(t)
	track := writeTrack(t, "short.wav")

	startTrack(t, e, track, 100)

	// Decode finished and nothing is buffered, so the first idle step
	// reports the end of the track, and only the first.
	require.True(t, e.step())
	sts := collectStatus(e)
	require.Len(t, sts, 1)
	assert.Equal(t, StatusEnded, sts[0].Type)

	require.True(t, e.step())
	sts = collectStatus(e)
	require.Len(t, sts, 1)
	assert.Equal(t, StatusPlaytime, sts[0].Type)
	assert.NotNil(t, sts[0].Elapsed)
}

func TestPauseRearmsEndedEdge(t *testing.T) {
	e, _, _ := newTestEngine(t)
	track := writeTrack(t, "short.wav")

	startTrack(t, e, track, 100)
	require.True(t, e.step())
	require.Equal(t, StatusEnded, collectStatus(e)[0].Type)

	e.commands <- Command{Type: CmdPause}
	require.True(t, e.step())
	require.Equal(t, StatusPaused, collectStatus(e)[0].Type)

	require.True(t, e.step())
	assert.Equal(t, StatusEnded, collectStatus(e)[0].Type)
}

func TestStartupReportsEndedWithNothingLoaded(t *testing.T) {
	e, _, _ := newTestEngine(t)

	require.True(t, e.step())
	sts := collectStatus(e)
	require.Len(t, sts, 1)
	assert.Equal(t, StatusEnded, sts[0].Type)

	require.True(t, e.step())
	sts = collectStatus(e)
	require.Len(t, sts, 1)
	assert.Equal(t, StatusPlaytime, sts[0].Type)
	assert.Nil(t, sts[0].Elapsed)
}

func TestSetVolumeWithoutSessionIgnored(t *testing.T) {
	e, out, _ := newTestEngine(t)

	e.commands <- Command{Type: CmdSetVolume, Volume: 30}
	require.True(t, e.step())

	assert.Equal(t, float64(-1), out.volume)
}

func TestShutdownClosesEverything(t *testing.T) {
	out := newFakeOutput()
	dec := newFakeDecoder()
	e := StartEngine(out, dec, time.Millisecond)

	e.Shutdown()
	select {
	case <-e.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("engine did not shut down")
	}

	for range e.Status() {
	}
	assert.True(t, out.closed)
	assert.True(t, dec.closed)
}

func TestGainClamps(t *testing.T) {
	assert.Equal(t, 0.0, gain(-5))
	assert.Equal(t, 0.5, gain(50))
	assert.Equal(t, 1.0, gain(130))
}

func TestResolveTrackPath(t *testing.T) {
	cases := []struct {
		name string
		ref  string
		want string
		err  bool
	}{
		{"plain path", "/music/a.mp3", "/music/a.mp3", false},
		{"relative path", "a.mp3", "a.mp3", false},
		{"file url", "file:///music/a.mp3", filepath.FromSlash("/music/a.mp3"), false},
		{"file url localhost", "file://localhost/music/a.mp3", filepath.FromSlash("/music/a.mp3"), false},
		{"windows drive", "file:///C:/Music/a.wav", filepath.FromSlash("C:/Music/a.wav"), false},
		{"remote file url", "file://nas/music/a.mp3", "", true},
		{"http url", "http://example.com/a.mp3", "", true},
		{"empty file url", "file://", "", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ResolveTrackPath(tc.ref)
			if tc.err {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}
