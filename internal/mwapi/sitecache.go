package mwapi

// SiteCache hands out one memoized Client per site. All clients share a
// single HTTP connection pool.
type SiteCache struct {
	opts  Options
	sites map[string]*Client
}

// NewSiteCache creates a cache; opts.HTTPClient is shared by all sites
// (a default pooled client is created when nil).
func NewSiteCache(opts Options) *SiteCache {
	opts = opts.withDefaults()
	return &SiteCache{opts: opts, sites: map[string]*Client{}}
}

// Get returns the session for the given https origin, creating it on first
// use.
func (s *SiteCache) Get(domain string) *Client {
	if c, ok := s.sites[domain]; ok {
		return c
	}
	c := NewClient(domain, s.opts)
	s.sites[domain] = c
	return c
}
