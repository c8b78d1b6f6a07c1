package audio

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

// FFmpegDecoder shells out to ffmpeg for decoding and ffprobe for duration
// probing. One external toolchain covers every container and codec the
// player will meet, which is why the engine does not link codec libraries.
type FFmpegDecoder struct {
	ffmpegPath  string
	ffprobePath string
}

// NewFFmpegDecoder locates ffmpeg and ffprobe in PATH. Missing binaries are
// a startup-fatal condition, like a missing audio device.
func NewFFmpegDecoder() (*FFmpegDecoder, error) {
	ffmpegPath, err := exec.LookPath("ffmpeg")
	if err != nil {
		return nil, errors.Wrap(err, "ffmpeg not found in PATH")
	}
	ffprobePath, err := exec.LookPath("ffprobe")
	if err != nil {
		return nil, errors.Wrap(err, "ffprobe not found in PATH")
	}
	return &FFmpegDecoder{ffmpegPath: ffmpegPath, ffprobePath: ffprobePath}, nil
}

// Probe asks ffprobe for the stream duration. A probe failure means the
// file is not decodable at all; a missing duration value (streams without
// one report "N/A") is not an error, just unknown.
func (d *FFmpegDecoder) Probe(path string) (time.Duration, bool, error) {
	cmd := exec.Command(d.ffprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		return 0, false, errors.Wrapf(err, "ffprobe %q", path)
	}

	raw := strings.TrimSpace(string(out))
	if raw == "" || raw == "N/A" {
		return 0, false, nil
	}
	sec, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false, nil
	}
	return time.Duration(sec * float64(time.Second)), true, nil
}

// Decode streams the file as raw s16le PCM at the output's format, writing
// chunks until EOF or context cancellation.
func (d *FFmpegDecoder) Decode(ctx context.Context, path string, output Output) error {
	args := []string{
		"-i", path,
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"-ac", fmt.Sprintf("%d", output.Channels()),
		"-ar", fmt.Sprintf("%d", output.SampleRate()),
		"-",
	}

	cmd := exec.CommandContext(ctx, d.ffmpegPath, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return errors.Wrap(err, "ffmpeg stdout pipe")
	}
	if err := cmd.Start(); err != nil {
		return errors.Wrap(err, "start ffmpeg")
	}

	// reap kills the decoder and waits for it exactly once; Wait must not
	// run twice on the same command.
	reap := func(err error) error {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return err
	}

	buf := make([]byte, 4096)
	for {
		select {
		case <-ctx.Done():
			return reap(ctx.Err())
		default:
		}

		n, err := stdout.Read(buf)
		if n > 0 {
			if _, werr := output.Write(buf[:n]); werr != nil {
				return reap(errors.Wrap(werr, "write PCM to output"))
			}
		}
		if err != nil {
			break
		}
	}
	return cmd.Wait()
}

// Close implements Decoder; the external processes hold no state between
// calls.
func (d *FFmpegDecoder) Close() error {
	return nil
}
