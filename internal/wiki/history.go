package wiki

import "context"

// HistoryFetcher retrieves one page of a title's revision history, newest
// first. cont is the continuation token from the previous call ("" for the
// first page); an empty returned token means the history is exhausted.
type HistoryFetcher interface {
	History(ctx context.Context, title string, limit int, cont string) (revs []Revision, next string, err error)
}

// Batch growth policy: 1, then x5 capped at 25. The common case is a target
// only one or two revisions behind, so the first fetch is deliberately tiny.
const (
	firstBatch  = 1
	batchFactor = 5
	maxBatch    = 25
)

// HistoryCursor is a restartable, monotonically-extending lazy view over a
// master page's revision history.
//
// The window is kept chronologically ascending. The remote source returns
// revisions newest-first, so each fetched batch is reversed and prepended.
// Previously observed revisions are never re-fetched, dropped or reordered.
type HistoryCursor struct {
	src       HistoryFetcher
	title     string
	window    []Revision // ascending; window[len-1] is the newest
	cont      string
	limit     int
	started   bool
	exhausted bool
}

// NewHistoryCursor creates a cursor over title's history on src. Nothing is
// fetched until the first Rev call.
func NewHistoryCursor(src HistoryFetcher, title string) *HistoryCursor {
	return &HistoryCursor{src: src, title: title, limit: firstBatch}
}

// Rev returns the i-th newest revision (0 is the latest), extending the
// window as needed. ok is false once the history is exhausted before i.
func (c *HistoryCursor) Rev(ctx context.Context, i int) (Revision, bool, error) {
	for len(c.window) <= i && !c.exhausted {
		if err := c.extend(ctx); err != nil {
			return Revision{}, false, err
		}
	}
	if len(c.window) <= i {
		return Revision{}, false, nil
	}
	return c.window[len(c.window)-1-i], true, nil
}

// Window returns the cached ascending revision sequence.
func (c *HistoryCursor) Window() []Revision {
	return c.window
}

// Exhausted reports whether the full history has been observed.
func (c *HistoryCursor) Exhausted() bool {
	return c.exhausted
}

func (c *HistoryCursor) extend(ctx context.Context) error {
	if c.started {
		c.limit *= batchFactor
		if c.limit > maxBatch {
			c.limit = maxBatch
		}
	}
	revs, next, err := c.src.History(ctx, c.title, c.limit, c.cont)
	if err != nil {
		return err
	}
	c.started = true
	// Reverse the newest-first batch and prepend: every revision in it is
	// older than the current window.
	older := make([]Revision, 0, len(revs)+len(c.window))
	for i := len(revs) - 1; i >= 0; i-- {
		older = append(older, revs[i])
	}
	c.window = append(older, c.window...)
	c.cont = next
	if next == "" || len(revs) == 0 {
		c.exhausted = true
	}
	return nil
}
