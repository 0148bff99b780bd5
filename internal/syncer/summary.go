package syncer

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/language"

	"github.com/nyurik/dibabel/internal/wiki"
)

// defaultSummary is the "en" edit summary used when no translation table is
// available at all.
const defaultSummary = `Copying $1 changes by $2: "$3" from $4`

// Summarizer composes localized edit summaries for published changes.
type Summarizer struct {
	table   map[string]string
	matcher language.Matcher
	keys    []string // parallel to the matcher's tag list
}

// NewSummarizer builds a summarizer from a language -> template table.
// Templates use $1 (revision count), $2 (users), $3 (comments), $4 (link to
// the master page).
func NewSummarizer(table map[string]string) *Summarizer {
	s := &Summarizer{table: table}
	var tags []language.Tag
	// "en" first: the matcher falls back to the first tag.
	if _, ok := table["en"]; ok {
		tags = append(tags, language.English)
		s.keys = append(s.keys, "en")
	}
	for key := range table {
		if key == "en" {
			continue
		}
		tag, err := language.Parse(key)
		if err != nil {
			continue
		}
		tags = append(tags, tag)
		s.keys = append(s.keys, key)
	}
	if len(tags) > 0 {
		s.matcher = language.NewMatcher(tags)
	}
	return s
}

// template picks the best translation for a target language, falling back
// to "en" and then to the built-in default.
func (s *Summarizer) template(lang string) string {
	if s.matcher != nil {
		if tag, err := language.Parse(lang); err == nil {
			_, idx, conf := s.matcher.Match(tag)
			if conf > language.No {
				return s.table[s.keys[idx]]
			}
		}
	}
	if text, ok := s.table["en"]; ok {
		return text
	}
	return defaultSummary
}

// Compose builds the edit summary for publishing changes to target. A
// non-empty change list produces the localized templated message, expanded
// through the target site to resolve nested localization templates. An
// empty list means a force-restore to the current master state.
func (s *Summarizer) Compose(ctx context.Context, m *Master, t *Target, changes []wiki.Revision) (string, error) {
	link := masterLink(m)
	if len(changes) == 0 {
		return "Restoring to the current version of " + link, nil
	}
	var users, comments []string
	seenUser := map[string]bool{}
	seenComment := map[string]bool{}
	for _, c := range changes {
		if !seenUser[c.User] {
			seenUser[c.User] = true
			users = append(users, c.User)
		}
		if c.Comment != "" && !seenComment[c.Comment] {
			seenComment[c.Comment] = true
			comments = append(comments, c.Comment)
		}
	}
	text := s.template(t.Page.Lang)
	text = strings.ReplaceAll(text, "$1", strconv.Itoa(len(changes)))
	text = strings.ReplaceAll(text, "$2", strings.Join(users, ","))
	text = strings.ReplaceAll(text, "$3", strings.Join(comments, ", "))
	text = strings.ReplaceAll(text, "$4", link)

	expanded, err := t.Site.ExpandTemplates(ctx, text)
	if err != nil {
		return "", err
	}
	expanded = strings.ReplaceAll(expanded, "\r", "")
	expanded = strings.ReplaceAll(expanded, "\n", "")
	return expanded, nil
}

// masterLink renders the wiki link back to the master page used in
// summaries: interwiki form for the mediawiki project, the short page form
// otherwise.
func masterLink(m *Master) string {
	if m.Page.Project == "mediawiki" {
		return "[[mw:" + m.Page.Title + "]]"
	}
	return m.Page.String()
}

// LoadSummaryTable reads the edit-summary translation table from a tabular
// Data page (JSON): the "data" rows are [key, {lang: text}] pairs and the
// relevant key is "edit_summary".
func LoadSummaryTable(ctx context.Context, site Site, title string) (map[string]string, error) {
	content, _, err := site.FetchContent(ctx, title)
	if err != nil {
		return nil, fmt.Errorf("fetching translation table %s: %w", title, err)
	}
	var doc struct {
		Data [][]json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal([]byte(content), &doc); err != nil {
		return nil, fmt.Errorf("malformed translation table %s: %w", title, err)
	}
	for _, row := range doc.Data {
		if len(row) < 2 {
			continue
		}
		var key string
		if json.Unmarshal(row[0], &key) != nil || key != "edit_summary" {
			continue
		}
		table := map[string]string{}
		if err := json.Unmarshal(row[1], &table); err != nil {
			return nil, fmt.Errorf("malformed edit_summary row in %s: %w", title, err)
		}
		return table, nil
	}
	return nil, fmt.Errorf("no edit_summary row in %s", title)
}
