package playlist

import (
	"encoding/xml"
	"net/url"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
)

const favoritesTitle = "Audio-Wrench Favorites"

type xspfTrack struct {
	Location string `xml:"location"`
}

type xspfTrackList struct {
	Tracks []xspfTrack `xml:"track"`
}

type xspfPlaylist struct {
	XMLName   xml.Name      `xml:"playlist"`
	Version   string        `xml:"version,attr"`
	Xmlns     string        `xml:"xmlns,attr"`
	Title     string        `xml:"title"`
	TrackList xspfTrackList `xml:"trackList"`
}

// Encode renders track references as an XSPF document. References that are
// neither file:/// URLs already nor convertible from a filesystem path are
// skipped with a warning, never an error.
func Encode(refs []string) ([]byte, error) {
	doc := xspfPlaylist{
		Version: "1",
		Xmlns:   "http://xspf.org/ns/0/",
		Title:   favoritesTitle,
	}
	for _, ref := range refs {
		loc, ok := trackLocation(ref)
		if !ok {
			zlog.Warn().Msgf("playlist: ignoring %q on export, URLs and relative paths are not supported", ref)
			continue
		}
		doc.TrackList.Tracks = append(doc.TrackList.Tracks, xspfTrack{Location: loc})
	}

	body, err := xml.MarshalIndent(doc, "", "    ")
	if err != nil {
		return nil, errors.Wrap(err, "encode playlist")
	}
	return append([]byte(xml.Header), append(body, '\n')...), nil
}

// WriteFile encodes refs and writes the document to path.
func WriteFile(path string, refs []string) error {
	data, err := Encode(refs)
	if err != nil {
		return err
	}
	return errors.Wrapf(os.WriteFile(path, data, 0o644), "write playlist %q", path)
}

// trackLocation converts a track reference to a file URL. Backslashes are
// normalized first so Windows-style paths convert on any host.
func trackLocation(ref string) (string, bool) {
	if strings.HasPrefix(ref, "file:///") {
		return ref, true
	}
	p := strings.ReplaceAll(ref, `\`, "/")
	switch {
	case strings.HasPrefix(p, "/"):
		return (&url.URL{Scheme: "file", Path: p}).String(), true
	case len(p) >= 2 && p[1] == ':' && isDriveLetter(p[0]):
		return (&url.URL{Scheme: "file", Path: "/" + p}).String(), true
	default:
		return "", false
	}
}

func isDriveLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
