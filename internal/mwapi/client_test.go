package mwapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestClient wires a Client against an httptest server handler.
func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewClient(srv.URL, Options{
		HTTPClient: srv.Client(),
		BaseDelay:  time.Millisecond,
		MaxDelay:   5 * time.Millisecond,
	})
	return c
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func TestFetchContent(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("siprop") == "extensions" {
			writeJSON(w, map[string]any{"query": map[string]any{"extensions": []any{}}})
			return
		}
		assert.Equal(t, "2", q.Get("formatversion"))
		assert.Equal(t, "Module:Math", q.Get("titles"))
		writeJSON(w, map[string]any{"query": map[string]any{"pages": []any{map[string]any{
			"title": "Module:Math",
			"revisions": []any{map[string]any{
				"timestamp": "2021-06-01T12:00:00Z",
				"slots":     map[string]any{"main": map[string]any{"content": "return {}"}},
			}},
		}}}})
	})

	content, ts, err := c.FetchContent(context.Background(), "Module:Math")
	require.NoError(t, err)
	assert.Equal(t, "return {}", content)
	assert.Equal(t, time.Date(2021, 6, 1, 12, 0, 0, 0, time.UTC), ts)
}

func TestFetchContentNotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("siprop") == "extensions" {
			writeJSON(w, map[string]any{"query": map[string]any{"extensions": []any{}}})
			return
		}
		writeJSON(w, map[string]any{"query": map[string]any{"pages": []any{map[string]any{
			"title": "Module:Gone", "missing": true,
		}}}})
	})

	_, _, err := c.FetchContent(context.Background(), "Module:Gone")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFetchContentRequestsFlaggedProps(t *testing.T) {
	var rvprop string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("siprop") == "extensions" {
			writeJSON(w, map[string]any{"query": map[string]any{"extensions": []any{
				map[string]any{"descriptionmsg": "flaggedrevs-desc"},
			}}})
			return
		}
		rvprop = q.Get("rvprop")
		writeJSON(w, map[string]any{"query": map[string]any{"pages": []any{map[string]any{
			"revisions": []any{map[string]any{
				"timestamp": "2021-06-01T12:00:00Z",
				"slots":     map[string]any{"main": map[string]any{"content": "x"}},
			}},
		}}}})
	})

	_, _, err := c.FetchContent(context.Background(), "T")
	require.NoError(t, err)
	assert.Contains(t, rvprop, "flagged")
	assert.Contains(t, rvprop, "ids")
}

func TestGetRetriesServerErrors(t *testing.T) {
	attempts := 0
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, map[string]any{"query": map[string]any{"extensions": []any{}}})
	})

	flagged, err := c.HasFlaggedRevisions(context.Background())
	require.NoError(t, err)
	assert.False(t, flagged)
	assert.Equal(t, 3, attempts)
}

func TestGetGivesUpAfterMaxRetries(t *testing.T) {
	attempts := 0
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := c.HasFlaggedRevisions(context.Background())
	require.Error(t, err)
	assert.Equal(t, 4, attempts) // initial attempt plus three retries
}

func TestAPIErrorSurfaced(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"error": map[string]any{
			"code": "maxlag", "info": "try again later",
		}})
	})

	_, err := c.HasFlaggedRevisions(context.Background())
	var ae *APIError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "maxlag", ae.Code)
}

func TestHistoryPagination(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "2", q.Get("rvlimit"))
		if q.Get("rvcontinue") == "" {
			writeJSON(w, map[string]any{
				"continue": map[string]any{"rvcontinue": "20210601|2"},
				"query": map[string]any{"pages": []any{map[string]any{
					"revisions": []any{
						map[string]any{"user": "alice", "timestamp": "2021-06-02T00:00:00Z", "comment": " newer ", "slots": map[string]any{"main": map[string]any{"content": "v2"}}},
						map[string]any{"user": "bob", "timestamp": "2021-06-01T00:00:00Z", "comment": "", "slots": map[string]any{"main": map[string]any{"content": "v1"}}},
					},
				}}},
			})
			return
		}
		assert.Equal(t, "20210601|2", q.Get("rvcontinue"))
		writeJSON(w, map[string]any{"query": map[string]any{"pages": []any{map[string]any{
			"revisions": []any{
				map[string]any{"user": "carol", "timestamp": "2021-05-01T00:00:00Z", "comment": "old", "slots": map[string]any{"main": map[string]any{"content": "v0"}}},
			},
		}}}})
	})

	ctx := context.Background()
	revs, next, err := c.History(ctx, "T", 2, "")
	require.NoError(t, err)
	require.Len(t, revs, 2)
	assert.Equal(t, "alice", revs[0].User)
	assert.Equal(t, "newer", revs[0].Comment, "comments are trimmed")
	assert.Equal(t, "20210601|2", next)

	revs, next, err = c.History(ctx, "T", 2, next)
	require.NoError(t, err)
	require.Len(t, revs, 1)
	assert.Equal(t, "v0", revs[0].Content)
	assert.Empty(t, next)
}

func TestMagicWords(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "magicwords", r.URL.Query().Get("siprop"))
		writeJSON(w, map[string]any{"query": map[string]any{"magicwords": []any{
			map[string]any{"name": "pagename", "aliases": []any{"PAGENAME"}},
			map[string]any{"name": "defaultsort", "aliases": []any{"DEFAULTSORT:", "DEFAULTSORTKEY:"}},
		}}})
	})

	mw, err := c.MagicWords(context.Background())
	require.NoError(t, err)
	assert.True(t, mw.Exact["PAGENAME"])
	assert.Equal(t, []string{"DEFAULTSORT:", "DEFAULTSORTKEY:"}, mw.Prefixes)

	// Memoized: a second call must not hit the server again.
	mw2, err := c.MagicWords(context.Background())
	require.NoError(t, err)
	assert.Equal(t, mw, mw2)
}

func TestResolveTitlesBatches(t *testing.T) {
	var batches []int
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		titles := r.URL.Query().Get("titles")
		batches = append(batches, len(strings.Split(titles, "|")))
		writeJSON(w, map[string]any{"query": map[string]any{
			"normalized": []any{map[string]any{"from": "template:x", "to": "Template:X"}},
			"redirects":  []any{map[string]any{"from": "Template:X", "to": "Template:Y"}},
		}})
	})

	titles := make([]string, 70)
	for i := range titles {
		titles[i] = "Template:T" + string(rune('a'+i%26))
	}
	normalized, redirects, err := c.ResolveTitles(context.Background(), titles)
	require.NoError(t, err)
	assert.Equal(t, []int{50, 20}, batches)
	assert.Equal(t, "Template:X", normalized["template:x"])
	assert.Equal(t, "Template:Y", redirects["Template:X"])
}

func TestLoginAndEdit(t *testing.T) {
	var editForm url.Values
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			q := r.URL.Query()
			if q.Get("type") == "login" {
				writeJSON(w, map[string]any{"query": map[string]any{"tokens": map[string]any{"logintoken": "LT"}}})
			} else {
				writeJSON(w, map[string]any{"query": map[string]any{"tokens": map[string]any{"csrftoken": "CT"}}})
			}
			return
		}
		require.NoError(t, r.ParseForm())
		switch r.PostForm.Get("action") {
		case "login":
			assert.Equal(t, "LT", r.PostForm.Get("lgtoken"))
			writeJSON(w, map[string]any{"login": map[string]any{"result": "Success"}})
		case "edit":
			editForm = r.PostForm
			writeJSON(w, map[string]any{"edit": map[string]any{"result": "Success"}})
		}
	})

	ctx := context.Background()
	require.NoError(t, c.Login(ctx, "bot", "secret"))
	assert.True(t, c.LoggedIn())

	base := time.Date(2021, 6, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, c.Edit(ctx, "Module:Math", "return {}", "sync", base))
	assert.Equal(t, "CT", editForm.Get("token"))
	assert.Equal(t, "2021-06-01T12:00:00Z", editForm.Get("basetimestamp"))
	assert.Equal(t, "1", editForm.Get("bot"))
	assert.Equal(t, "1", editForm.Get("nocreate"))
}

func TestEditConflict(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			writeJSON(w, map[string]any{"query": map[string]any{"tokens": map[string]any{"csrftoken": "CT"}}})
			return
		}
		writeJSON(w, map[string]any{"error": map[string]any{
			"code": "editconflict", "info": "someone edited first",
		}})
	})

	err := c.Edit(context.Background(), "T", "x", "s", time.Now())
	require.Error(t, err)
	assert.True(t, IsConflict(err))
}

func TestExpandTemplates(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "expandtemplates", r.PostForm.Get("action"))
		writeJSON(w, map[string]any{"expandtemplates": map[string]any{"wikitext": "expanded"}})
	})

	out, err := c.ExpandTemplates(context.Background(), "{{x}}")
	require.NoError(t, err)
	assert.Equal(t, "expanded", out)
}

func TestSiteCacheReusesClients(t *testing.T) {
	cache := NewSiteCache(Options{})
	a := cache.Get("https://fr.wikipedia.org")
	b := cache.Get("https://fr.wikipedia.org")
	other := cache.Get("https://de.wikipedia.org")
	assert.Same(t, a, b)
	assert.NotSame(t, a, other)
	assert.Equal(t, "https://fr.wikipedia.org", a.Domain())
}

func TestRetryDelayHonorsRetryAfter(t *testing.T) {
	c := NewClient("https://example.org", Options{BaseDelay: time.Millisecond, MaxDelay: 3 * time.Second})
	assert.Equal(t, 2*time.Second, c.retryDelay(1, "2"))
	// Capped at the configured maximum.
	assert.Equal(t, 3*time.Second, c.retryDelay(1, "60"))
	// Exponential fallback when the header is absent or bogus.
	assert.Equal(t, time.Millisecond, c.retryDelay(1, ""))
	assert.Equal(t, 2*time.Millisecond, c.retryDelay(2, "nope"))
}

