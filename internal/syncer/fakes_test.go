package syncer

import (
	"context"
	"strconv"
	"time"

	"github.com/nyurik/dibabel/internal/adapt"
	"github.com/nyurik/dibabel/internal/mwapi"
	"github.com/nyurik/dibabel/internal/wiki"
)

type editCall struct {
	title, text, summary string
	base                 time.Time
}

// fakeSite is an in-memory Site. Revisions are stored newest first, the
// order the remote API serves them in.
type fakeSite struct {
	domain   string
	loggedIn bool
	pages    map[string]string
	stamps   map[string]time.Time
	revs     map[string][]wiki.Revision
	magic    wiki.MagicWords
	expand   func(string) string
	loginErr error
	editErr  error

	fetches      []string
	edits        []editCall
	logins       []string
	historyCalls int
}

func (f *fakeSite) Domain() string { return f.domain }

func (f *fakeSite) LoggedIn() bool { return f.loggedIn }

func (f *fakeSite) FetchContent(_ context.Context, title string) (string, time.Time, error) {
	f.fetches = append(f.fetches, title)
	content, ok := f.pages[title]
	if !ok {
		return "", time.Time{}, mwapi.ErrNotFound
	}
	return content, f.stamps[title], nil
}

func (f *fakeSite) History(_ context.Context, title string, limit int, cont string) ([]wiki.Revision, string, error) {
	f.historyCalls++
	revs := f.revs[title]
	start := 0
	if cont != "" {
		start, _ = strconv.Atoi(cont)
	}
	end := start + limit
	if end > len(revs) {
		end = len(revs)
	}
	next := ""
	if end < len(revs) {
		next = strconv.Itoa(end)
	}
	return revs[start:end], next, nil
}

func (f *fakeSite) MagicWords(_ context.Context) (wiki.MagicWords, error) {
	return f.magic, nil
}

func (f *fakeSite) ExpandTemplates(_ context.Context, text string) (string, error) {
	if f.expand != nil {
		return f.expand(text), nil
	}
	return text, nil
}

func (f *fakeSite) Login(_ context.Context, user, _ string) error {
	f.logins = append(f.logins, user)
	if f.loginErr != nil {
		return f.loginErr
	}
	f.loggedIn = true
	return nil
}

func (f *fakeSite) Edit(_ context.Context, title, text, summary string, base time.Time) error {
	if f.editErr != nil {
		return f.editErr
	}
	f.edits = append(f.edits, editCall{title: title, text: text, summary: summary, base: base})
	return nil
}

type fakeProvider struct {
	sites map[string]Site
}

func (p fakeProvider) Get(domain string) Site { return p.sites[domain] }

type fakeGraph struct {
	pages map[string][]string
	items []string
	err   error
}

func (g *fakeGraph) TrackedPages(_ context.Context, ids []string) (map[string][]string, error) {
	g.items = ids
	return g.pages, g.err
}

// fakeContentAdapter rewrites content by table lookup, passing unknown
// content through unchanged.
type fakeContentAdapter struct {
	rewrite   map[string]string
	missing   map[string][]string
	nonShared map[string][]string
	err       error
	calls     int
}

func (f *fakeContentAdapter) Adapt(_ context.Context, content string, _ bool, _ string, _ wiki.MagicWords) (adapt.Result, error) {
	f.calls++
	if f.err != nil {
		return adapt.Result{}, f.err
	}
	out := content
	if r, ok := f.rewrite[content]; ok {
		out = r
	}
	return adapt.Result{Content: out, Missing: f.missing[content], NonShared: f.nonShared[content]}, nil
}

func rev(user, comment, content string) wiki.Revision {
	return wiki.Revision{
		User:      user,
		Timestamp: time.Date(2023, 4, 1, 12, 0, 0, 0, time.UTC),
		Comment:   comment,
		Content:   content,
	}
}

func mustPage(t interface{ Fatalf(string, ...any) }, raw string) wiki.SitePage {
	p, err := wiki.ParsePageURL(raw)
	if err != nil {
		t.Fatalf("parse %s: %v", raw, err)
	}
	return p
}
