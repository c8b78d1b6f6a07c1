package playlist

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeXSPF(t *testing.T) {
	doc := `<?xml version="1.0" encoding="UTF-8"?>
<playlist version="1" xmlns="http://xspf.org/ns/0/">
    <title>Mix</title>
    <trackList>
        <track>
            <location>file:///music/a.mp3</location>
        </track>
        <track>
            <location>  file:///music/b%20c.flac  </location>
        </track>
    </trackList>
</playlist>`

	tracks, err := Decode(doc)
	require.NoError(t, err)
	assert.Equal(t, []string{"file:///music/a.mp3", "file:///music/b%20c.flac"}, tracks)
}

func TestDecodeASX(t *testing.T) {
	doc := `<ASX version="3.0">
  <Entry><Ref HREF="C:\Music\one.wma"/></Entry>
  <Entry><ref href="C:\Music\two.wma"/></Entry>
</ASX>`

	tracks, err := Decode(doc)
	require.NoError(t, err)
	assert.Equal(t, []string{`C:\Music\one.wma`, `C:\Music\two.wma`}, tracks)
}

func TestDecodePLS(t *testing.T) {
	doc := `[playlist]
NumberOfEntries=2
File1=/music/a.mp3
Title1=A
File2=/music/b.mp3
Version=2`

	tracks, err := Decode(doc)
	require.NoError(t, err)
	assert.Equal(t, []string{"/music/a.mp3", "/music/b.mp3"}, tracks)
}

func TestDecodeM3U(t *testing.T) {
	doc := "\ufeff#EXTM3U\n#EXTINF:123,Artist - Song\n/music/a.mp3\n\n  /music/b.mp3  \n"

	tracks, err := Decode(doc)
	require.NoError(t, err)
	assert.Equal(t, []string{"/music/a.mp3", "/music/b.mp3"}, tracks)
}

func TestDecodeEmptyPlaylistFails(t *testing.T) {
	for _, doc := range []string{
		"",
		"#EXTM3U\n# nothing here\n",
		"[playlist]\nNumberOfEntries=0\n",
		`<playlist version="1" xmlns="http://xspf.org/ns/0/"><trackList/></playlist>`,
	} {
		_, err := Decode(doc)
		assert.Error(t, err, "doc %q", doc)
	}
}

func TestDecodeUnsupportedXMLRootFails(t *testing.T) {
	_, err := Decode(`<rss version="2.0"><channel/></rss>`)
	assert.ErrorContains(t, err, "unsupported playlist document")
}

func TestDecodeMalformedXMLFails(t *testing.T) {
	_, err := Decode(`<playlist><trackList><track><location>/a.mp3`)
	assert.Error(t, err)
}
