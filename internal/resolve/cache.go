package resolve

// Entry classifies one canonical dependency name.
//
// Exactly one of three states:
//   - shared: Titles maps site identifier -> localized title
//   - not shared: the dependency exists per-site and is not tracked as a
//     cross-site-identical resource
//   - empty Titles: known dependency, no cross-site translation available
//     (treated like "missing" during substitution, but never re-queried)
type Entry struct {
	NotShared bool
	Titles    map[string]string
}

// Localized returns the localized title of the dependency on the given
// site, if any.
func (e *Entry) Localized(site string) (string, bool) {
	t, ok := e.Titles[site]
	return t, ok
}

// Cache maps canonical dependency names to their classification. A key is
// written exactly once per run; a second write is a fatal consistency
// violation. Owned by one Resolver per run and shared read-only by every
// content adaptation during that run. Never persisted.
type Cache struct {
	entries map[string]*Entry
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{entries: map[string]*Entry{}}
}

// Get looks up a canonical name.
func (c *Cache) Get(name string) (*Entry, bool) {
	e, ok := c.entries[name]
	return e, ok
}

// Has reports whether the name is already classified.
func (c *Cache) Has(name string) bool {
	_, ok := c.entries[name]
	return ok
}

// Len returns the number of classified names.
func (c *Cache) Len() int {
	return len(c.entries)
}

func (c *Cache) put(name string, e *Entry) error {
	if _, ok := c.entries[name]; ok {
		return &ConsistencyError{
			Code:    ErrCodeDuplicateEntry,
			Message: "dependency already classified",
			Name:    name,
		}
	}
	c.entries[name] = e
	return nil
}
