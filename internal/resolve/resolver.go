// Package resolve maintains the run-scoped dependency cache: the mapping
// from a dependency's canonical name on the source site to its localized
// name on every site that carries a copy, or to a "not shared across sites"
// marker.
//
// Classification is incremental and write-once. Unknown names are resolved
// through the source site (title normalization, redirects) and the
// knowledge graph (sibling pages, auto-synchronized flag).
package resolve

import (
	"context"
	"log/slog"
	"sort"

	"github.com/nyurik/dibabel/internal/graph"
	"github.com/nyurik/dibabel/internal/wiki"
)

// TitleResolver resolves title normalization and redirect targets on the
// source site. Both maps are flat from -> to.
type TitleResolver interface {
	ResolveTitles(ctx context.Context, titles []string) (normalized, redirects map[string]string, err error)
}

// SiblingSource resolves canonical source-site page URLs through the
// knowledge graph.
type SiblingSource interface {
	Siblings(ctx context.Context, pageURLs []string) ([]graph.Group, error)
}

// Resolver fills the dependency cache on demand.
type Resolver struct {
	cache        *Cache
	titles       TitleResolver
	graph        SiblingSource
	sourceDomain string
	allow        map[string]bool
}

// NewResolver creates a resolver writing into cache. sourceDomain is the
// master site's https origin. allow lists known-safe dependencies that are
// not cross-site-tracked groups but must never be flagged "not shared"
// (e.g. a generic documentation template).
func NewResolver(cache *Cache, titles TitleResolver, siblings SiblingSource, sourceDomain string, allow []string) *Resolver {
	allowSet := make(map[string]bool, len(allow))
	for _, a := range allow {
		allowSet[a] = true
	}
	return &Resolver{
		cache:        cache,
		titles:       titles,
		graph:        siblings,
		sourceDomain: sourceDomain,
		allow:        allowSet,
	}
}

// Cache returns the cache the resolver writes into.
func (r *Resolver) Cache() *Cache { return r.cache }

type chainPair struct{ from, to string }

// EnsureResolved guarantees every given canonical name has a cache entry
// before any lookup is attempted. Names already classified are skipped.
func (r *Resolver) EnsureResolved(ctx context.Context, names []string) error {
	seen := map[string]bool{}
	var unknown []string
	for _, n := range names {
		if !seen[n] && !r.cache.Has(n) {
			seen[n] = true
			unknown = append(unknown, n)
		}
	}
	if len(unknown) == 0 {
		return nil
	}
	sort.Strings(unknown)

	normalized, redirects, err := r.titles.ResolveTitles(ctx, unknown)
	if err != nil {
		return err
	}

	terminals := r.terminalNames(unknown, normalized, redirects)
	if err := r.resolveGroups(ctx, terminals); err != nil {
		return err
	}
	if err := r.propagateChains(normalized, redirects); err != nil {
		return err
	}

	// Anything still unclassified is a known dependency with no cross-site
	// translation. The empty mapping suppresses substitution and prevents
	// re-querying.
	for _, n := range unknown {
		if !r.cache.Has(n) {
			if err := r.cache.put(n, &Entry{Titles: map[string]string{}}); err != nil {
				return err
			}
		}
	}
	return nil
}

// terminalNames computes the titles left after following normalization and
// redirects, dropping ones already classified.
func (r *Resolver) terminalNames(unknown []string, normalized, redirects map[string]string) []string {
	set := map[string]bool{}
	for _, to := range redirects {
		set[to] = true
	}
	for _, to := range normalized {
		if _, chains := redirects[to]; !chains {
			set[to] = true
		}
	}
	for _, n := range unknown {
		_, isRedirect := redirects[n]
		_, isNormalized := normalized[n]
		if !isRedirect && !isNormalized {
			set[n] = true
		}
	}
	var terminals []string
	for t := range set {
		if !r.cache.Has(t) {
			terminals = append(terminals, t)
		}
	}
	sort.Strings(terminals)
	return terminals
}

// resolveGroups asks the knowledge graph which logical resources the
// terminal titles belong to and records one cache entry per resource.
func (r *Resolver) resolveGroups(ctx context.Context, terminals []string) error {
	if len(terminals) == 0 {
		return nil
	}
	urls := make([]string, 0, len(terminals))
	for _, t := range terminals {
		urls = append(urls, r.sourceDomain+"/wiki/"+wiki.EncodeTitle(t))
	}
	groups, err := r.graph.Siblings(ctx, urls)
	if err != nil {
		return err
	}
	for _, g := range groups {
		key := ""
		titles := map[string]string{}
		for _, raw := range g.Pages {
			p, err := wiki.ParsePageURL(raw)
			if err != nil {
				slog.Warn("skipping unparseable sibling url", "qid", g.ID, "url", raw)
				continue
			}
			titles[p.Site] = p.Title
			if p.Domain == r.sourceDomain {
				key = p.Title
			}
		}
		if key == "" {
			slog.Warn("resource has no page on the source site", "qid", g.ID)
			continue
		}
		entry := &Entry{Titles: titles}
		if !g.AutoSynced && !r.allow[key] {
			entry.NotShared = true
		}
		if err := r.cache.put(key, entry); err != nil {
			return err
		}
	}
	return nil
}

// propagateChains copies each terminal's classification onto the names that
// reach it through redirects and normalization. A source name that was
// already independently classified means the knowledge graph made
// conflicting identity claims. A chain whose terminal never resolved is
// genuinely absent from the graph and is marked not shared.
func (r *Resolver) propagateChains(normalized, redirects map[string]string) error {
	pending := make([]chainPair, 0, len(normalized)+len(redirects))
	for _, m := range []map[string]string{redirects, normalized} {
		froms := make([]string, 0, len(m))
		for from := range m {
			froms = append(froms, from)
		}
		sort.Strings(froms)
		for _, from := range froms {
			pending = append(pending, chainPair{from, m[from]})
		}
	}
	for len(pending) > 0 {
		var stalled []chainPair
		progress := false
		for _, p := range pending {
			if r.cache.Has(p.from) {
				return &ConsistencyError{
					Code:    ErrCodeChainConflict,
					Message: "chain source already classified independently",
					Name:    p.from,
				}
			}
			if e, ok := r.cache.Get(p.to); ok {
				if err := r.cache.put(p.from, e); err != nil {
					return err
				}
				progress = true
			} else {
				stalled = append(stalled, p)
			}
		}
		if !progress {
			for _, p := range stalled {
				if err := r.cache.put(p.from, &Entry{NotShared: true}); err != nil {
					return err
				}
			}
			return nil
		}
		pending = stalled
	}
	return nil
}
