// Package playlist decodes playlist documents into track references and
// encodes track references back into XSPF.
package playlist

import (
	"encoding/xml"
	"io"
	"strings"

	"github.com/cockroachdb/errors"
)

// Decode parses playlist text into an ordered list of track references.
// The format is sniffed from the content: XML documents are read as XSPF or
// ASX, an INI-style [playlist] header means PLS, anything else is treated
// as M3U. A document yielding no tracks is an error.
func Decode(text string) ([]string, error) {
	trimmed := strings.TrimLeft(strings.TrimPrefix(text, "\ufeff"), " \t\r\n")

	var tracks []string
	var err error
	switch {
	case strings.HasPrefix(trimmed, "<"):
		tracks, err = decodeXML(trimmed)
	case isPLS(trimmed):
		tracks = decodePLS(trimmed)
	default:
		tracks = decodeM3U(trimmed)
	}
	if err != nil {
		return nil, err
	}
	if len(tracks) == 0 {
		return nil, errors.New("playlist has no tracks")
	}
	return tracks, nil
}

// decodeXML walks the token stream rather than unmarshalling into a fixed
// struct, since ASX in the wild mixes element and attribute casing freely.
func decodeXML(text string) ([]string, error) {
	dec := xml.NewDecoder(strings.NewReader(text))

	var tracks []string
	var loc strings.Builder
	inLocation := false
	root := ""
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "parse playlist XML")
		}
		switch t := tok.(type) {
		case xml.StartElement:
			name := strings.ToLower(t.Name.Local)
			if root == "" {
				root = name
				if root != "playlist" && root != "asx" {
					return nil, errors.Newf("unsupported playlist document <%s>", t.Name.Local)
				}
			}
			switch name {
			case "location":
				inLocation = true
				loc.Reset()
			case "ref":
				for _, a := range t.Attr {
					if strings.EqualFold(a.Name.Local, "href") && strings.TrimSpace(a.Value) != "" {
						tracks = append(tracks, strings.TrimSpace(a.Value))
					}
				}
			}
		case xml.EndElement:
			if inLocation && strings.EqualFold(t.Name.Local, "location") {
				if s := strings.TrimSpace(loc.String()); s != "" {
					tracks = append(tracks, s)
				}
				inLocation = false
			}
		case xml.CharData:
			if inLocation {
				loc.Write(t)
			}
		}
	}
	return tracks, nil
}

func isPLS(text string) bool {
	line, _, _ := strings.Cut(text, "\n")
	return strings.EqualFold(strings.TrimSpace(line), "[playlist]")
}

func decodePLS(text string) []string {
	var tracks []string
	for _, line := range strings.Split(text, "\n") {
		key, value, ok := strings.Cut(strings.TrimSpace(line), "=")
		if !ok {
			continue
		}
		if strings.HasPrefix(strings.ToLower(key), "file") && strings.TrimSpace(value) != "" {
			tracks = append(tracks, strings.TrimSpace(value))
		}
	}
	return tracks
}

func decodeM3U(text string) []string {
	var tracks []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		tracks = append(tracks, line)
	}
	return tracks
}
