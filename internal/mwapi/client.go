package mwapi

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/nyurik/dibabel/internal/wiki"
)

// Options configures a Client's transport behavior.
type Options struct {
	HTTPClient *http.Client
	UserAgent  string
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

func (o Options) withDefaults() Options {
	if o.HTTPClient == nil {
		o.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = 3
	}
	if o.BaseDelay <= 0 {
		o.BaseDelay = 100 * time.Millisecond
	}
	if o.MaxDelay <= 0 {
		o.MaxDelay = 2 * time.Second
	}
	return o
}

// Client is a session against one site's action API endpoint.
type Client struct {
	domain string
	apiURL string
	opts   Options

	// memoized per session
	magic     *wiki.MagicWords
	flagged   *bool
	editToken string
	loggedIn  bool
}

// NewClient creates an API session for the given https origin,
// e.g. "https://fr.wikipedia.org".
func NewClient(domain string, opts Options) *Client {
	return &Client{
		domain: domain,
		apiURL: domain + "/w/api.php",
		opts:   opts.withDefaults(),
	}
}

// Domain returns the https origin this client talks to.
func (c *Client) Domain() string { return c.domain }

// LoggedIn reports whether Login has succeeded on this session.
func (c *Client) LoggedIn() bool { return c.loggedIn }

// FetchContent retrieves a page's current content and its last-edit
// timestamp. Returns ErrNotFound when the page does not exist.
func (c *Client) FetchContent(ctx context.Context, title string) (string, time.Time, error) {
	rvprop := "content|timestamp"
	flagged, err := c.HasFlaggedRevisions(ctx)
	if err != nil {
		return "", time.Time{}, err
	}
	if flagged {
		rvprop += "|flagged|ids"
	}
	var resp queryResponse
	err = c.get(ctx, url.Values{
		"action":  {"query"},
		"prop":    {"revisions"},
		"rvprop":  {rvprop},
		"rvslots": {"main"},
		"titles":  {title},
	}, &resp)
	if err != nil {
		return "", time.Time{}, err
	}
	if len(resp.Query.Pages) == 0 || resp.Query.Pages[0].Missing || len(resp.Query.Pages[0].Revisions) == 0 {
		return "", time.Time{}, fmt.Errorf("%s on %s: %w", title, c.domain, ErrNotFound)
	}
	rev := resp.Query.Pages[0].Revisions[0]
	ts, err := parseTimestamp(rev.Timestamp)
	if err != nil {
		return "", time.Time{}, err
	}
	return rev.Slots.Main.Content, ts, nil
}

// History fetches one page of a title's revision history, newest first.
// Implements wiki.HistoryFetcher.
func (c *Client) History(ctx context.Context, title string, limit int, cont string) ([]wiki.Revision, string, error) {
	params := url.Values{
		"action":  {"query"},
		"prop":    {"revisions"},
		"rvprop":  {"user|comment|timestamp|content"},
		"rvslots": {"main"},
		"rvlimit": {strconv.Itoa(limit)},
		"titles":  {title},
	}
	if cont != "" {
		params.Set("rvcontinue", cont)
	}
	var resp queryResponse
	if err := c.get(ctx, params, &resp); err != nil {
		return nil, "", err
	}
	if len(resp.Query.Pages) == 0 || resp.Query.Pages[0].Missing {
		return nil, "", nil
	}
	revs := make([]wiki.Revision, 0, len(resp.Query.Pages[0].Revisions))
	for _, r := range resp.Query.Pages[0].Revisions {
		ts, err := parseTimestamp(r.Timestamp)
		if err != nil {
			return nil, "", err
		}
		revs = append(revs, wiki.Revision{
			User:      r.User,
			Timestamp: ts,
			Comment:   strings.TrimSpace(r.Comment),
			Content:   r.Slots.Main.Content,
		})
	}
	return revs, resp.Continue.RvContinue, nil
}

// MagicWords returns the site's reserved keyword sets, fetched once per
// session. Colon-suffixed aliases go to the prefix set.
func (c *Client) MagicWords(ctx context.Context) (wiki.MagicWords, error) {
	if c.magic != nil {
		return *c.magic, nil
	}
	var resp queryResponse
	err := c.get(ctx, url.Values{
		"action": {"query"},
		"meta":   {"siteinfo"},
		"siprop": {"magicwords"},
	}, &resp)
	if err != nil {
		return wiki.MagicWords{}, err
	}
	mw := wiki.MagicWords{Exact: map[string]bool{}}
	for _, m := range resp.Query.MagicWords {
		for _, alias := range m.Aliases {
			if strings.HasSuffix(alias, ":") {
				mw.Prefixes = append(mw.Prefixes, alias)
			} else {
				mw.Exact[alias] = true
			}
		}
	}
	c.magic = &mw
	return mw, nil
}

// HasFlaggedRevisions probes whether the FlaggedRevs extension is enabled,
// once per session.
func (c *Client) HasFlaggedRevisions(ctx context.Context) (bool, error) {
	if c.flagged != nil {
		return *c.flagged, nil
	}
	var resp queryResponse
	err := c.get(ctx, url.Values{
		"action": {"query"},
		"meta":   {"siteinfo"},
		"siprop": {"extensions"},
	}, &resp)
	if err != nil {
		return false, err
	}
	flagged := false
	for _, ext := range resp.Query.Extensions {
		if ext.DescriptionMsg == "flaggedrevs-desc" {
			flagged = true
			break
		}
	}
	if flagged {
		slog.Debug("site has flagged revisions enabled", "site", c.domain)
	}
	c.flagged = &flagged
	return flagged, nil
}

// ResolveTitles asks the site to resolve title normalization and redirect
// targets for a batch of titles. Both returned maps are flat from -> to.
// Batches are split to at most 50 titles per request.
func (c *Client) ResolveTitles(ctx context.Context, titles []string) (normalized, redirects map[string]string, err error) {
	const batchSize = 50
	normalized = map[string]string{}
	redirects = map[string]string{}
	for start := 0; start < len(titles); start += batchSize {
		end := start + batchSize
		if end > len(titles) {
			end = len(titles)
		}
		var resp queryResponse
		err = c.get(ctx, url.Values{
			"action":    {"query"},
			"redirects": {"1"},
			"titles":    {strings.Join(titles[start:end], "|")},
		}, &resp)
		if err != nil {
			return nil, nil, err
		}
		for _, n := range resp.Query.Normalized {
			normalized[n.From] = n.To
		}
		for _, r := range resp.Query.Redirects {
			redirects[r.From] = r.To
		}
	}
	return normalized, redirects, nil
}

// ExpandTemplates expands any templates in text on this site.
func (c *Client) ExpandTemplates(ctx context.Context, text string) (string, error) {
	var resp struct {
		ExpandTemplates struct {
			Wikitext string `json:"wikitext"`
		} `json:"expandtemplates"`
	}
	err := c.post(ctx, url.Values{
		"action": {"expandtemplates"},
		"prop":   {"wikitext"},
		"text":   {text},
	}, &resp)
	if err != nil {
		return "", err
	}
	return resp.ExpandTemplates.Wikitext, nil
}

// Login authenticates the session with the classic two-step token flow.
func (c *Client) Login(ctx context.Context, user, password string) error {
	var tokens queryResponse
	err := c.get(ctx, url.Values{
		"action": {"query"},
		"meta":   {"tokens"},
		"type":   {"login"},
	}, &tokens)
	if err != nil {
		return err
	}
	var resp struct {
		Login struct {
			Result string `json:"result"`
			Reason string `json:"reason"`
		} `json:"login"`
	}
	err = c.post(ctx, url.Values{
		"action":     {"login"},
		"lgname":     {user},
		"lgpassword": {password},
		"lgtoken":    {tokens.Query.Tokens.LoginToken},
	}, &resp)
	if err != nil {
		return err
	}
	if resp.Login.Result != "Success" {
		return fmt.Errorf("login to %s failed: %s %s", c.domain, resp.Login.Result, resp.Login.Reason)
	}
	c.loggedIn = true
	return nil
}

// EditToken fetches a CSRF token, once per session.
func (c *Client) EditToken(ctx context.Context) (string, error) {
	if c.editToken != "" {
		return c.editToken, nil
	}
	var resp queryResponse
	err := c.get(ctx, url.Values{
		"action": {"query"},
		"meta":   {"tokens"},
	}, &resp)
	if err != nil {
		return "", err
	}
	if resp.Query.Tokens.CSRFToken == "" {
		return "", fmt.Errorf("no csrf token from %s", c.domain)
	}
	c.editToken = resp.Query.Tokens.CSRFToken
	return c.editToken, nil
}

// Edit publishes text to an existing page as a minor bot edit. base is the
// target's last-known timestamp and acts as a concurrency guard; a conflict
// is reported via an APIError matched by IsConflict. Never retried.
func (c *Client) Edit(ctx context.Context, title, text, summary string, base time.Time) error {
	token, err := c.EditToken(ctx)
	if err != nil {
		return err
	}
	var resp struct {
		Edit struct {
			Result string `json:"result"`
		} `json:"edit"`
	}
	err = c.post(ctx, url.Values{
		"action":        {"edit"},
		"title":         {title},
		"text":          {text},
		"summary":       {summary},
		"basetimestamp": {base.UTC().Format(timestampLayout)},
		"bot":           {"1"},
		"minor":         {"1"},
		"nocreate":      {"1"},
		"token":         {token},
	}, &resp)
	if err != nil {
		return err
	}
	if resp.Edit.Result != "Success" {
		return fmt.Errorf("edit of %s on %s failed: %s", title, c.domain, resp.Edit.Result)
	}
	return nil
}

const timestampLayout = "2006-01-02T15:04:05Z"

func parseTimestamp(s string) (time.Time, error) {
	ts, err := time.Parse(timestampLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad api timestamp %q: %w", s, err)
	}
	return ts, nil
}
