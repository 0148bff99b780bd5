// Package graph is the knowledge-graph (Wikidata SPARQL) client.
//
// Two query shapes are used: enumerating every page of every
// auto-synchronized logical resource, and resolving a set of source-site
// page URLs to their resource id, sibling pages and auto-synchronized flag.
package graph

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"encoding/json"
)

// DefaultEndpoint is the Wikidata query service.
const DefaultEndpoint = "https://query.wikidata.org/bigdata/namespace/wdq/sparql"

const entityPrefix = "http://www.wikidata.org/entity/"

// autoSyncedClass is the instance-of class marking a resource as
// auto-synchronized across sites.
const autoSyncedClass = "Q63090714"

// Client queries a SPARQL endpoint.
type Client struct {
	endpoint   string
	httpClient *http.Client
	maxRetries int
	baseDelay  time.Duration
}

// Options configures a Client.
type Options struct {
	Endpoint   string
	HTTPClient *http.Client
	MaxRetries int
	BaseDelay  time.Duration
}

// NewClient creates a SPARQL client.
func NewClient(opts Options) *Client {
	if opts.Endpoint == "" {
		opts.Endpoint = DefaultEndpoint
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 60 * time.Second}
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = 200 * time.Millisecond
	}
	return &Client{
		endpoint:   opts.Endpoint,
		httpClient: opts.HTTPClient,
		maxRetries: opts.MaxRetries,
		baseDelay:  opts.BaseDelay,
	}
}

// Binding is one variable binding row of a SPARQL result.
type Binding map[string]struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// Query posts a SPARQL query and returns its result bindings. Read-only,
// retried with backoff on failure.
func (c *Client) Query(ctx context.Context, sparql string) ([]Binding, error) {
	form := url.Values{"query": {sparql}}.Encode()
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := c.baseDelay << (attempt - 1)
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(form))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("Accept", "application/sparql-results+json")
		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}
		if resp.StatusCode != http.StatusOK {
			lastErr = fmt.Errorf("sparql endpoint responded with status %d", resp.StatusCode)
			if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
				continue
			}
			return nil, lastErr
		}
		var parsed struct {
			Results struct {
				Bindings []Binding `json:"bindings"`
			} `json:"results"`
		}
		if err := json.Unmarshal(body, &parsed); err != nil {
			return nil, fmt.Errorf("malformed sparql response: %w", err)
		}
		return parsed.Results.Bindings, nil
	}
	return nil, lastErr
}

// TrackedPages returns all site-page URLs of every auto-synchronized logical
// resource, keyed by resource id, optionally restricted to the given ids.
func (c *Client) TrackedPages(ctx context.Context, ids []string) (map[string][]string, error) {
	values := ""
	if len(ids) > 0 {
		values = " VALUES ?id { wd:" + strings.Join(ids, " wd:") + " }"
	}
	sparql := fmt.Sprintf(
		"SELECT ?id ?sl WHERE {%s ?id wdt:P31 wd:%s. ?sl schema:about ?id. }",
		values, autoSyncedClass)
	bindings, err := c.Query(ctx, sparql)
	if err != nil {
		return nil, err
	}
	result := map[string][]string{}
	for _, b := range bindings {
		id := strings.TrimPrefix(b["id"].Value, entityPrefix)
		if id == "" {
			continue
		}
		result[id] = append(result[id], b["sl"].Value)
	}
	return result, nil
}

// Group is one logical resource resolved by Siblings.
type Group struct {
	ID         string
	Pages      []string // all sibling site-page URLs
	AutoSynced bool     // whether the id is an auto-synchronized group
}

// Siblings resolves a set of canonical source-site page URLs to their
// logical resource id, all sibling page URLs, and the auto-synchronized
// flag of each id.
func (c *Client) Siblings(ctx context.Context, pageURLs []string) ([]Group, error) {
	if len(pageURLs) == 0 {
		return nil, nil
	}
	refs := make([]string, 0, len(pageURLs))
	for _, u := range pageURLs {
		refs = append(refs, "<"+u+">")
	}
	sparql := fmt.Sprintf(
		"SELECT ?id ?sl ?synced WHERE { VALUES ?mw { %s } ?mw schema:about ?id. ?sl schema:about ?id. "+
			"BIND( EXISTS { ?id wdt:P31 wd:%s } AS ?synced ) }",
		strings.Join(refs, " "), autoSyncedClass)
	bindings, err := c.Query(ctx, sparql)
	if err != nil {
		return nil, err
	}
	byID := map[string]*Group{}
	var order []string
	for _, b := range bindings {
		id := strings.TrimPrefix(b["id"].Value, entityPrefix)
		if id == "" {
			continue
		}
		g, ok := byID[id]
		if !ok {
			g = &Group{ID: id, AutoSynced: b["synced"].Value == "true"}
			byID[id] = g
			order = append(order, id)
		}
		g.Pages = append(g.Pages, b["sl"].Value)
	}
	groups := make([]Group, 0, len(order))
	for _, id := range order {
		groups = append(groups, *byID[id])
	}
	return groups, nil
}
