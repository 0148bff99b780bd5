package wiki

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var rePageURL = regexp.MustCompile(`^https://([a-z0-9_-]+)\.([a-z0-9_-]+)\.org/wiki/([^?#]+)$`)

// SitePage identifies one page on one wiki site.
type SitePage struct {
	// Site is the short site identifier, e.g. "fr.wikipedia" or, for
	// language-less projects, the bare project name, e.g. "mediawiki".
	Site string

	// Lang is the language subdomain ("www" for language-less projects).
	Lang string

	// Project is the project domain segment, e.g. "wikipedia".
	Project string

	// Domain is the https origin of the site, e.g. "https://fr.wikipedia.org".
	Domain string

	// Title is the page title, percent-decoded with underscores replaced
	// by spaces.
	Title string
}

// ParsePageURL parses a canonical https://<site>/wiki/<title> page URL.
func ParsePageURL(raw string) (SitePage, error) {
	m := rePageURL.FindStringSubmatch(raw)
	if m == nil {
		return SitePage{}, fmt.Errorf("unable to parse page url %q", raw)
	}
	title, err := url.PathUnescape(m[3])
	if err != nil {
		return SitePage{}, fmt.Errorf("unable to decode title in %q: %w", raw, err)
	}
	p := SitePage{
		Lang:    m[1],
		Project: m[2],
		Domain:  fmt.Sprintf("https://%s.%s.org", m[1], m[2]),
		Title:   strings.ReplaceAll(title, "_", " "),
	}
	if p.Lang == "www" {
		p.Site = p.Project
	} else {
		p.Site = p.Lang + "." + p.Project
	}
	return p, nil
}

// String renders the page in the short <site>.org/wiki/<title> form used in
// logs and reports.
func (p SitePage) String() string {
	return fmt.Sprintf("%s.org/wiki/%s", p.Site, p.Title)
}

// URL renders the canonical page URL with the title re-encoded.
func (p SitePage) URL() string {
	return p.Domain + "/wiki/" + EncodeTitle(p.Title)
}

// IsModule reports whether the page is a Scribunto module, selected by the
// title-prefix convention.
func (p SitePage) IsModule() bool {
	return strings.HasPrefix(p.Title, "Module:")
}

// EncodeTitle converts a space-separated title to its canonical URL form:
// spaces become underscores and everything outside the unreserved set plus
// "/:&=+" is percent-encoded.
func EncodeTitle(title string) string {
	title = strings.ReplaceAll(title, " ", "_")
	var b strings.Builder
	for i := 0; i < len(title); i++ {
		c := title[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
			b.WriteByte(c)
		case strings.IndexByte("-._~/:&=+", c) >= 0:
			b.WriteByte(c)
		default:
			fmt.Fprintf(&b, "%%%02X", c)
		}
	}
	return b.String()
}
