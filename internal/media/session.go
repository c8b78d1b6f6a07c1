// Package media exposes the player to the desktop as an OS media session,
// so hardware media keys and desktop widgets can drive playback.
package media

import "time"

// PlaybackState is the externally visible playback state.
type PlaybackState int

const (
	StateStopped PlaybackState = iota
	StatePlaying
	StatePaused
)

// Metadata describes the current track for desktop display.
type Metadata struct {
	Title    string
	Playlist string
	Duration time.Duration
}

// Command is a playback request arriving from the OS.
type Command int

const (
	CmdPlayPause Command = iota
	CmdPause
	CmdPlay
	CmdStop
	CmdNext
)

// String returns the command name.
func (c Command) String() string {
	switch c {
	case CmdPlayPause:
		return "PlayPause"
	case CmdPause:
		return "Pause"
	case CmdPlay:
		return "Play"
	case CmdStop:
		return "Stop"
	case CmdNext:
		return "Next"
	default:
		return "Unknown"
	}
}

// CommandHandler receives media commands from the OS.
type CommandHandler func(cmd Command)

// Session is the OS media session integration point.
type Session interface {
	// UpdateMetadata publishes the currently playing track.
	UpdateMetadata(metadata Metadata) error

	// UpdatePlaybackState publishes the playback state and position.
	UpdatePlaybackState(state PlaybackState, position time.Duration) error

	// SetCommandHandler registers the handler for incoming media commands.
	SetCommandHandler(handler CommandHandler)

	// Close releases resources.
	Close() error
}

// NoOpSession satisfies Session when no desktop integration is available.
type NoOpSession struct{}

// NewNoOpSession creates a session that does nothing.
func NewNoOpSession() *NoOpSession {
	return &NoOpSession{}
}

func (s *NoOpSession) UpdateMetadata(metadata Metadata) error {
	return nil
}

func (s *NoOpSession) UpdatePlaybackState(state PlaybackState, position time.Duration) error {
	return nil
}

func (s *NoOpSession) SetCommandHandler(handler CommandHandler) {
}

func (s *NoOpSession) Close() error {
	return nil
}
