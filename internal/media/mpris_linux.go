//go:build linux

package media

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/godbus/dbus/v5"
)

const (
	mprisInterface       = "org.mpris.MediaPlayer2"
	mprisPlayerInterface = "org.mpris.MediaPlayer2.Player"
	mprisBusName         = "org.mpris.MediaPlayer2.wrenchd"
	mprisObjectPath      = "/org/mpris/MediaPlayer2"

	playerIdentity = "Audio Wrench"
)

// MPRISSession publishes playback over the MPRIS D-Bus interface. The
// player has no seeking and no previous-track, so only the forward-only
// subset is advertised.
type MPRISSession struct {
	conn     *dbus.Conn
	handler  CommandHandler
	metadata Metadata
	state    PlaybackState
	position time.Duration
}

// NewSession connects to the session bus and claims the MPRIS name.
func NewSession() (Session, error) {
	conn, err := dbus.SessionBus()
	if err != nil {
		return nil, errors.Wrap(err, "connect to session bus")
	}

	reply, err := conn.RequestName(mprisBusName, dbus.NameFlagDoNotQueue)
	if err != nil {
		_ = conn.Close()
		return nil, errors.Wrap(err, "request MPRIS bus name")
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		_ = conn.Close()
		return nil, errors.Newf("MPRIS bus name %q already taken", mprisBusName)
	}

	s := &MPRISSession{conn: conn, state: StateStopped}
	if err := s.exportInterfaces(); err != nil {
		_ = conn.Close()
		return nil, errors.Wrap(err, "export MPRIS interfaces")
	}
	return s, nil
}

func (s *MPRISSession) exportInterfaces() error {
	for _, iface := range []string{
		mprisInterface,
		mprisPlayerInterface,
		"org.freedesktop.DBus.Properties",
	} {
		if err := s.conn.Export(s, dbus.ObjectPath(mprisObjectPath), iface); err != nil {
			return err
		}
	}
	return nil
}

// UpdateMetadata publishes the current track.
func (s *MPRISSession) UpdateMetadata(metadata Metadata) error {
	s.metadata = metadata
	return s.emitPropertiesChanged(map[string]dbus.Variant{
		"Metadata": dbus.MakeVariant(s.metadataMap()),
	})
}

// UpdatePlaybackState publishes the playback state and current position.
func (s *MPRISSession) UpdatePlaybackState(state PlaybackState, position time.Duration) error {
	s.state = state
	s.position = position
	return s.emitPropertiesChanged(map[string]dbus.Variant{
		"PlaybackStatus": dbus.MakeVariant(s.playbackStatus()),
	})
}

// SetCommandHandler registers the handler for incoming media commands.
func (s *MPRISSession) SetCommandHandler(handler CommandHandler) {
	s.handler = handler
}

// Close releases the bus connection.
func (s *MPRISSession) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

func (s *MPRISSession) dispatch(cmd Command) {
	if s.handler != nil {
		s.handler(cmd)
	}
}

// org.mpris.MediaPlayer2 methods

func (s *MPRISSession) Raise() *dbus.Error { return nil }
func (s *MPRISSession) Quit() *dbus.Error  { return nil }

// org.mpris.MediaPlayer2.Player methods

func (s *MPRISSession) Play() *dbus.Error {
	s.dispatch(CmdPlay)
	return nil
}

func (s *MPRISSession) Pause() *dbus.Error {
	s.dispatch(CmdPause)
	return nil
}

func (s *MPRISSession) PlayPause() *dbus.Error {
	s.dispatch(CmdPlayPause)
	return nil
}

func (s *MPRISSession) Stop() *dbus.Error {
	s.dispatch(CmdStop)
	return nil
}

func (s *MPRISSession) Next() *dbus.Error {
	s.dispatch(CmdNext)
	return nil
}

func (s *MPRISSession) Previous() *dbus.Error { return nil }

// org.freedesktop.DBus.Properties methods

func (s *MPRISSession) Get(iface, prop string) (dbus.Variant, *dbus.Error) {
	all, derr := s.GetAll(iface)
	if derr != nil {
		return dbus.Variant{}, derr
	}
	v, ok := all[prop]
	if !ok {
		return dbus.Variant{}, dbus.MakeFailedError(errors.Newf("unknown property: %s", prop))
	}
	return v, nil
}

func (s *MPRISSession) GetAll(iface string) (map[string]dbus.Variant, *dbus.Error) {
	switch iface {
	case mprisInterface:
		return map[string]dbus.Variant{
			"CanQuit":             dbus.MakeVariant(false),
			"CanRaise":            dbus.MakeVariant(false),
			"HasTrackList":        dbus.MakeVariant(false),
			"Identity":            dbus.MakeVariant(playerIdentity),
			"DesktopEntry":        dbus.MakeVariant("wrenchd"),
			"SupportedUriSchemes": dbus.MakeVariant([]string{"file"}),
			"SupportedMimeTypes":  dbus.MakeVariant([]string{"audio/mpeg", "audio/flac", "audio/x-wav", "audio/ogg"}),
		}, nil
	case mprisPlayerInterface:
		return map[string]dbus.Variant{
			"PlaybackStatus": dbus.MakeVariant(s.playbackStatus()),
			"Metadata":       dbus.MakeVariant(s.metadataMap()),
			"Position":       dbus.MakeVariant(s.position.Microseconds()),
			"Rate":           dbus.MakeVariant(1.0),
			"MinimumRate":    dbus.MakeVariant(1.0),
			"MaximumRate":    dbus.MakeVariant(1.0),
			"CanGoNext":      dbus.MakeVariant(true),
			"CanGoPrevious":  dbus.MakeVariant(false),
			"CanPlay":        dbus.MakeVariant(true),
			"CanPause":       dbus.MakeVariant(true),
			"CanSeek":        dbus.MakeVariant(false),
			"CanControl":     dbus.MakeVariant(true),
			"Volume":         dbus.MakeVariant(1.0),
		}, nil
	}
	return nil, dbus.MakeFailedError(errors.Newf("unknown interface: %s", iface))
}

func (s *MPRISSession) Set(iface, prop string, value dbus.Variant) *dbus.Error {
	// All writable MPRIS properties concern features the player lacks.
	return nil
}

func (s *MPRISSession) playbackStatus() string {
	switch s.state {
	case StatePlaying:
		return "Playing"
	case StatePaused:
		return "Paused"
	default:
		return "Stopped"
	}
}

func (s *MPRISSession) metadataMap() map[string]dbus.Variant {
	m := map[string]dbus.Variant{
		"mpris:trackid": dbus.MakeVariant(dbus.ObjectPath("/org/wrenchd/track/current")),
	}
	if s.metadata.Title != "" {
		m["xesam:title"] = dbus.MakeVariant(s.metadata.Title)
	}
	if s.metadata.Playlist != "" {
		m["xesam:album"] = dbus.MakeVariant(s.metadata.Playlist)
	}
	if s.metadata.Duration > 0 {
		m["mpris:length"] = dbus.MakeVariant(s.metadata.Duration.Microseconds())
	}
	return m
}

func (s *MPRISSession) emitPropertiesChanged(props map[string]dbus.Variant) error {
	return s.conn.Emit(
		dbus.ObjectPath(mprisObjectPath),
		"org.freedesktop.DBus.Properties.PropertiesChanged",
		mprisPlayerInterface,
		props,
		[]string{},
	)
}
