package audio

import (
	"context"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lookPath(t *testing.T, name string) string {
	t.Helper()
	path, err := exec.LookPath(name)
	if err != nil {
		t.Skipf("%s not available", name)
	}
	return path
}

func TestDecodeCompletesWhenDecoderExits(t *testing.T) {
	d := &FFmpegDecoder{ffmpegPath: lookPath(t, "echo")}
	out := newFakeOutput()

	require.NoError(t, d.Decode(context.Background(), "/music/a.mp3", out))
	assert.Positive(t, out.Buffered())
}

func TestDecodeStopsOnCancelledContext(t *testing.T) {
	d := &FFmpegDecoder{ffmpegPath: lookPath(t, "echo")}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := d.Decode(ctx, "/music/a.mp3", newFakeOutput())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestProbeFailureIsAnError(t *testing.T) {
	d := &FFmpegDecoder{ffprobePath: lookPath(t, "false")}

	_, _, err := d.Probe("/music/a.mp3")
	assert.Error(t, err)
}

func TestProbeUnparsableDurationIsUnknownNotError(t *testing.T) {
	// echo succeeds but prints its arguments, which is not a duration.
	d := &FFmpegDecoder{ffprobePath: lookPath(t, "echo")}

	length, known, err := d.Probe("/music/a.mp3")
	require.NoError(t, err)
	assert.False(t, known)
	assert.Zero(t, length)
}
