package wiki

import "time"

// Revision is one entry of a page's edit history. Immutable once fetched.
type Revision struct {
	User      string
	Timestamp time.Time
	Comment   string
	Content   string
}

// MagicWords is a site's reserved keyword set. Exact holds plain aliases;
// Prefixes holds colon-suffixed aliases that match any template name they
// prefix (e.g. "DEFAULTSORT:").
type MagicWords struct {
	Exact    map[string]bool
	Prefixes []string
}

// Matches reports whether name is a magic word of the site.
func (m MagicWords) Matches(name string) bool {
	if m.Exact[name] {
		return true
	}
	for _, p := range m.Prefixes {
		if len(name) >= len(p) && name[:len(p)] == p {
			return true
		}
	}
	return false
}
