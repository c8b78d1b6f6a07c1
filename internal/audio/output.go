package audio

import (
	"bytes"
	"io"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/hajimehoshi/oto/v2"
)

const (
	defaultSampleRate = 44100
	defaultChannels   = 2
	bytesPerSample    = 2 // 16-bit PCM

	// maxBuffered caps the PCM backlog between decoder and device at
	// roughly 100ms, so Stop discards little and pause feels immediate.
	maxBuffered = defaultSampleRate * defaultChannels * bytesPerSample / 10
)

// OtoOutput plays 16-bit little-endian PCM through the default output
// device via Oto. The device is opened once and owned for the process
// lifetime.
type OtoOutput struct {
	ctx        *oto.Context
	player     oto.Player
	sampleRate int
	channels   int

	mu     sync.Mutex
	cond   *sync.Cond // wakes Read from pause/close
	buf    bytes.Buffer
	volume float64
	paused bool
	closed bool

	analyzer *Analyzer
}

// NewOtoOutput opens the default audio device. Failure here is fatal for
// the engine: there is nothing to play through.
func NewOtoOutput() (*OtoOutput, error) {
	return NewOtoOutputWithConfig(defaultSampleRate, defaultChannels)
}

// NewOtoOutputWithConfig opens the device with an explicit format.
func NewOtoOutputWithConfig(sampleRate, channels int) (*OtoOutput, error) {
	ctx, ready, err := oto.NewContext(sampleRate, channels, bytesPerSample)
	if err != nil {
		return nil, errors.Wrap(err, "open audio device")
	}
	<-ready

	o := &OtoOutput{
		ctx:        ctx,
		sampleRate: sampleRate,
		channels:   channels,
		volume:     1.0,
		analyzer:   NewAnalyzer(sampleRate, channels),
	}
	o.cond = sync.NewCond(&o.mu)
	o.player = ctx.NewPlayer(o)
	return o, nil
}

// Read feeds the device. It blocks while paused, returns silence when the
// buffer runs dry (keeping the stream alive), and EOF only on Close.
func (o *OtoOutput) Read(p []byte) (int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	for o.paused && !o.closed {
		o.cond.Wait()
	}
	if o.closed {
		return 0, io.EOF
	}

	if o.buf.Len() == 0 {
		for i := range p {
			p[i] = 0
		}
		return len(p), nil
	}

	n, err := o.buf.Read(p)
	if n > 0 {
		o.analyzer.Process(p[:n])
		if o.volume < 1.0 {
			scaleSamples(p[:n], o.volume)
		}
	}
	return n, err
}

// Write queues PCM data, throttling the producer to the playback rate.
func (o *OtoOutput) Write(data []byte) (int, error) {
	for {
		o.mu.Lock()
		if o.closed {
			o.mu.Unlock()
			return 0, errors.New("output closed")
		}
		if o.buf.Len() < maxBuffered {
			break
		}
		o.mu.Unlock()
		time.Sleep(10 * time.Millisecond)
	}
	defer o.mu.Unlock()

	n, err := o.buf.Write(data)
	if err != nil {
		return n, err
	}
	if o.player != nil && !o.player.IsPlaying() && !o.paused {
		o.player.Play()
	}
	return n, nil
}

// scaleSamples applies a gain factor to 16-bit little-endian samples.
func scaleSamples(data []byte, vol float64) {
	for i := 0; i+1 < len(data); i += 2 {
		s := int16(data[i]) | int16(data[i+1])<<8
		s = int16(float64(s) * vol)
		data[i] = byte(s)
		data[i+1] = byte(s >> 8)
	}
}

// SetVolume sets the output gain, clamped to 0..1.
func (o *OtoOutput) SetVolume(v float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	o.volume = v
}

// Volume returns the current gain.
func (o *OtoOutput) Volume() float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.volume
}

// Pause halts the device. Read blocks until Resume or Close.
func (o *OtoOutput) Pause() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.paused = true
	if o.player != nil && o.player.IsPlaying() {
		o.player.Pause()
	}
}

// Resume continues playback after Pause.
func (o *OtoOutput) Resume() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.paused = false
	o.cond.Broadcast()
	if o.player != nil && !o.player.IsPlaying() {
		o.player.Play()
	}
}

// Stop drops all buffered PCM and clears the paused state so the next
// session starts clean. The device stays open.
func (o *OtoOutput) Stop() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.paused = false
	o.cond.Broadcast()
	if o.player != nil {
		o.player.Pause()
	}
	o.buf.Reset()
	o.analyzer.Reset()
}

// Buffered returns the number of PCM bytes queued but not yet played.
func (o *OtoOutput) Buffered() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.buf.Len()
}

// Close releases the device and unblocks any waiting reader.
func (o *OtoOutput) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return nil
	}
	o.closed = true
	o.cond.Broadcast()
	if o.player != nil {
		return o.player.Close()
	}
	return nil
}

// SampleRate returns the device sample rate.
func (o *OtoOutput) SampleRate() int { return o.sampleRate }

// Channels returns the device channel count.
func (o *OtoOutput) Channels() int { return o.channels }

// Bands returns the analyzer's current frequency bands.
func (o *OtoOutput) Bands() []uint8 {
	return o.analyzer.Bands()
}

var _ Output = (*OtoOutput)(nil)
var _ io.Reader = (*OtoOutput)(nil)
