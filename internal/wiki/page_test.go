package wiki

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePageURLLanguageSite(t *testing.T) {
	p, err := ParsePageURL("https://fr.wikipedia.org/wiki/Module:Sandbox")
	require.NoError(t, err)

	assert.Equal(t, "fr.wikipedia", p.Site)
	assert.Equal(t, "fr", p.Lang)
	assert.Equal(t, "wikipedia", p.Project)
	assert.Equal(t, "https://fr.wikipedia.org", p.Domain)
	assert.Equal(t, "Module:Sandbox", p.Title)
}

func TestParsePageURLProjectOnlySite(t *testing.T) {
	// The literal "www" subdomain means no language variant.
	p, err := ParsePageURL("https://www.mediawiki.org/wiki/Template:Documentation")
	require.NoError(t, err)

	assert.Equal(t, "mediawiki", p.Site)
	assert.Equal(t, "www", p.Lang)
	assert.Equal(t, "mediawiki", p.Project)
}

func TestParsePageURLDecodesTitleOnce(t *testing.T) {
	p, err := ParsePageURL("https://de.wikipedia.org/wiki/Vorlage:Gesch%C3%BCtzt")
	require.NoError(t, err)
	assert.Equal(t, "Vorlage:Geschützt", p.Title)

	// A doubly-encoded title must stay singly-encoded.
	p, err = ParsePageURL("https://de.wikipedia.org/wiki/A%2520B")
	require.NoError(t, err)
	assert.Equal(t, "A%20B", p.Title)
}

func TestParsePageURLUnderscoresBecomeSpaces(t *testing.T) {
	p, err := ParsePageURL("https://en.wikipedia.org/wiki/Template:High-use_pages")
	require.NoError(t, err)
	assert.Equal(t, "Template:High-use pages", p.Title)
}

func TestParsePageURLRejectsMalformed(t *testing.T) {
	for _, raw := range []string{
		"http://en.wikipedia.org/wiki/X",
		"https://en.wikipedia.org/w/index.php?title=X",
		"https://wikipedia.org/wiki/X",
		"not a url",
	} {
		_, err := ParsePageURL(raw)
		assert.Error(t, err, raw)
	}
}

func TestSitePageString(t *testing.T) {
	p, err := ParsePageURL("https://www.mediawiki.org/wiki/Module:Math")
	require.NoError(t, err)
	assert.Equal(t, "mediawiki.org/wiki/Module:Math", p.String())

	p, err = ParsePageURL("https://fr.wikipedia.org/wiki/Module:Math")
	require.NoError(t, err)
	assert.Equal(t, "fr.wikipedia.org/wiki/Module:Math", p.String())
}

func TestSitePageIsModule(t *testing.T) {
	p, err := ParsePageURL("https://www.mediawiki.org/wiki/Module:Math")
	require.NoError(t, err)
	assert.True(t, p.IsModule())

	p, err = ParsePageURL("https://www.mediawiki.org/wiki/Template:Math")
	require.NoError(t, err)
	assert.False(t, p.IsModule())
}

func TestEncodeTitle(t *testing.T) {
	assert.Equal(t, "Template:High-use_pages", EncodeTitle("Template:High-use pages"))
	assert.Equal(t, "Vorlage:Gesch%C3%BCtzt", EncodeTitle("Vorlage:Geschützt"))
	assert.Equal(t, "A%25B", EncodeTitle("A%B"))
	// Round-trips through ParsePageURL.
	p, err := ParsePageURL("https://de.wikipedia.org/wiki/" + EncodeTitle("Vorlage:Geschützt"))
	require.NoError(t, err)
	assert.Equal(t, "Vorlage:Geschützt", p.Title)
}

func TestMagicWordsMatches(t *testing.T) {
	mw := MagicWords{
		Exact:    map[string]bool{"PAGENAME": true},
		Prefixes: []string{"DEFAULTSORT:"},
	}
	assert.True(t, mw.Matches("PAGENAME"))
	assert.True(t, mw.Matches("DEFAULTSORT:Foo"))
	assert.False(t, mw.Matches("PAGENAMEX"))
	assert.False(t, mw.Matches("DEFAULTSORT"))
	assert.False(t, mw.Matches("Cite web"))
}
