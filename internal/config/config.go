// Package config loads the operator-supplied YAML options file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults for optional fields.
const (
	DefaultSource   = "https://www.mediawiki.org"
	DefaultSparql   = "https://query.wikidata.org/bigdata/namespace/wdq/sparql"
	DefaultI18nSite = "https://commons.wikimedia.org"
	DefaultI18nPage = "Data:I18n/DiBabel.tab"
	DefaultPace     = 15 * time.Second
)

// DefaultNonSharedAllow lists known-safe dependencies that are ungrouped in
// the knowledge graph but must never be flagged "not shared".
var DefaultNonSharedAllow = []string{"Template:Documentation"}

// Config is the parsed options file.
type Config struct {
	User     string `yaml:"user"`
	Password string `yaml:"password"`

	// Source is the https origin of the master site.
	Source string `yaml:"source"`

	// Sparql is the knowledge-graph query endpoint.
	Sparql string `yaml:"sparql"`

	// I18nSite/I18nPage locate the edit-summary translation table.
	I18nSite string `yaml:"i18n_site"`
	I18nPage string `yaml:"i18n_page"`

	// PaceSeconds is the delay between successive publishes, in seconds.
	PaceSeconds int `yaml:"pace"`

	// Pace is PaceSeconds as a duration, filled in by Load.
	Pace time.Duration `yaml:"-"`

	// Diff enables diff output, as if --diff was passed.
	Diff bool `yaml:"diff"`

	// NonSharedAllow extends the known-safe ungrouped dependency list.
	NonSharedAllow []string `yaml:"nonshared_allow"`

	// Restrictions disables publishing for specific resource/site pairs:
	// resource id -> list of site identifiers.
	Restrictions map[string][]string `yaml:"restrictions"`
}

// Load reads and validates an options file.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading options file: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parsing options file %s: %w", path, err)
	}
	if cfg.User == "" {
		return nil, fmt.Errorf("options file %s has no \"user\" parameter", path)
	}
	if cfg.Password == "" {
		return nil, fmt.Errorf("options file %s has no \"password\" parameter", path)
	}
	if cfg.Source == "" {
		cfg.Source = DefaultSource
	}
	if cfg.Sparql == "" {
		cfg.Sparql = DefaultSparql
	}
	if cfg.I18nSite == "" {
		cfg.I18nSite = DefaultI18nSite
	}
	if cfg.I18nPage == "" {
		cfg.I18nPage = DefaultI18nPage
	}
	if cfg.PaceSeconds < 0 {
		return nil, fmt.Errorf("options file %s has a negative \"pace\"", path)
	}
	cfg.Pace = time.Duration(cfg.PaceSeconds) * time.Second
	if cfg.PaceSeconds == 0 {
		cfg.Pace = DefaultPace
	}
	cfg.NonSharedAllow = append(append([]string{}, DefaultNonSharedAllow...), cfg.NonSharedAllow...)
	return &cfg, nil
}
