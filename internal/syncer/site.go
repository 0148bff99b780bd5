package syncer

import (
	"context"
	"time"

	"github.com/nyurik/dibabel/internal/mwapi"
	"github.com/nyurik/dibabel/internal/wiki"
)

// Site is the per-site capability set consumed from the remote wiki.
// *mwapi.Client implements it; tests substitute fakes.
type Site interface {
	Domain() string
	LoggedIn() bool
	FetchContent(ctx context.Context, title string) (string, time.Time, error)
	History(ctx context.Context, title string, limit int, cont string) ([]wiki.Revision, string, error)
	MagicWords(ctx context.Context) (wiki.MagicWords, error)
	ExpandTemplates(ctx context.Context, text string) (string, error)
	Login(ctx context.Context, user, password string) error
	Edit(ctx context.Context, title, text, summary string, base time.Time) error
}

// SiteProvider hands out one Site per https origin.
type SiteProvider interface {
	Get(domain string) Site
}

type mwProvider struct {
	cache *mwapi.SiteCache
}

func (p mwProvider) Get(domain string) Site {
	return p.cache.Get(domain)
}

// NewSiteProvider adapts a mwapi.SiteCache to the SiteProvider seam.
func NewSiteProvider(cache *mwapi.SiteCache) SiteProvider {
	return mwProvider{cache: cache}
}

// Master is the synchronization source page of one logical resource,
// together with its lazily-grown revision history.
type Master struct {
	Page    wiki.SitePage
	Site    Site
	History *wiki.HistoryCursor
}

// NewMaster creates the master state for a source page.
func NewMaster(page wiki.SitePage, site Site) *Master {
	return &Master{
		Page:    page,
		Site:    site,
		History: wiki.NewHistoryCursor(site, page.Title),
	}
}

func (m *Master) String() string { return m.Page.String() }

// Target is one non-master copy, holding its current content snapshot.
type Target struct {
	Page      wiki.SitePage
	Site      Site
	Content   string
	Timestamp time.Time
	Exists    bool
	Magic     wiki.MagicWords
}

func (t *Target) String() string { return t.Page.String() }
