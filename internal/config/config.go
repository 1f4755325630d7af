package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures the full configuration required to run the programme scraper.
type Config struct {
	Site       SiteConfig       `yaml:"site"`
	Extraction ExtractionConfig `yaml:"extraction"`
	Rendering  RenderingConfig  `yaml:"rendering"`
	Worker     WorkerConfig     `yaml:"worker"`
	Crawl      CrawlConfig      `yaml:"crawl"`
	Robots     RobotsConfig     `yaml:"robots"`
	DB         SQLConfig        `yaml:"db"`
	Mongo      MongoConfig      `yaml:"mongo"`
	Output     OutputConfig     `yaml:"output"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// SiteConfig identifies the institution and where its pages are listed.
type SiteConfig struct {
	School       string `yaml:"school"`
	Level        string `yaml:"level"`
	SitemapPath  string `yaml:"sitemap_path"`
	SitemapURL   string `yaml:"sitemap_url"`
	SitemapMatch string `yaml:"sitemap_match"`
	KeyDatesURL  string `yaml:"key_dates_url"`
	LanguageURL  string `yaml:"language_url"`
}

// ExtractionConfig holds the vocabularies and markers used by the field extractors.
type ExtractionConfig struct {
	SkipTerms      []string `yaml:"skip_terms"`
	ObsoleteMarker string   `yaml:"obsolete_marker"`
	CurrentMarker  string   `yaml:"current_marker"`
	// DropNextMarkerHeading also removes the current-year heading when
	// pruning the obsolete intake.
	DropNextMarkerHeading bool     `yaml:"drop_next_marker_heading"`
	FeeYear               string   `yaml:"fee_year"`
	Locations             []string `yaml:"locations"`
	Divisions             []string `yaml:"divisions"`
	LinkSeparator         string   `yaml:"link_separator"`
}

// RenderingConfig controls the headless browser session and its waits.
type RenderingConfig struct {
	DisableHeadless   bool     `yaml:"disable_headless"`
	ExecPath          string   `yaml:"exec_path"`
	NavigationTimeout Duration `yaml:"navigation_timeout"`
	SettlePause       Duration `yaml:"settle_pause"`
	LookupTimeout     Duration `yaml:"lookup_timeout"`
	ActionPause       Duration `yaml:"action_pause"`
	ReloadPause       Duration `yaml:"reload_pause"`
	SubLinkTimeout    Duration `yaml:"sub_link_timeout"`
	SubLinkMode       string   `yaml:"sub_link_mode"`
}

// WorkerConfig controls concurrency and queue sizing.
type WorkerConfig struct {
	Concurrency int `yaml:"concurrency"`
	QueueSize   int `yaml:"queue_size"`
}

// CrawlConfig controls HTTP fetching and per-domain throttling.
type CrawlConfig struct {
	UserAgent          string            `yaml:"user_agent"`
	Headers            map[string]string `yaml:"headers"`
	ProxyURL           string            `yaml:"proxy_url"`
	AllowedDomains     []string          `yaml:"allowed_domains"`
	PerDomainDelay     Duration          `yaml:"per_domain_delay"`
	RateLimitPerDomain RateLimitConfig   `yaml:"rate_limit_per_domain"`
	RequestTimeout     Duration          `yaml:"request_timeout"`
	MaxBodyBytes       int64             `yaml:"max_body_bytes"`
	MaxPages           int               `yaml:"max_pages"`
}

// RateLimitConfig applies a token bucket per domain.
type RateLimitConfig struct {
	Requests int      `yaml:"requests"`
	Window   Duration `yaml:"window"`
}

// RobotsConfig configures robots.txt handling.
type RobotsConfig struct {
	Respect   bool     `yaml:"respect"`
	Overrides []string `yaml:"overrides"`
	UserAgent string   `yaml:"user_agent"`
	CacheTTL  Duration `yaml:"cache_ttl"`
}

// SQLConfig describes a relational database connection used for persistence.
type SQLConfig struct {
	Driver          string   `yaml:"driver"`
	DSN             string   `yaml:"dsn"`
	MaxOpenConns    int      `yaml:"max_open_conns"`
	MaxIdleConns    int      `yaml:"max_idle_conns"`
	ConnMaxLifetime Duration `yaml:"conn_max_lifetime"`
	CreateIfMissing bool     `yaml:"create_if_missing"`
	AutoMigrate     bool     `yaml:"auto_migrate"`
}

// MongoConfig describes an optional MongoDB sink.
type MongoConfig struct {
	URI        string   `yaml:"uri"`
	Database   string   `yaml:"database"`
	Collection string   `yaml:"collection"`
	Timeout    Duration `yaml:"timeout"`
}

// OutputConfig configures the JSON-lines outcome file.
type OutputConfig struct {
	Path         string `yaml:"path"`
	IncludeFails bool   `yaml:"include_failures"`
}

// LoggingConfig selects log verbosity and format.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Structured bool   `yaml:"structured"`
}

// Default returns a Config populated with the values the scraper was tuned with.
func Default() Config {
	return Config{
		Site: SiteConfig{
			School:      "University_of_Otago",
			Level:       "pg",
			SitemapPath: "sitemap_pg.json",
			KeyDatesURL: "https://www.otago.ac.nz/international/future-students/prepare-for-otago/key-dates-for-new-international-students",
			LanguageURL: "https://www.otago.ac.nz/future-students/entry-requirements/language-requirements",
		},
		Extraction: ExtractionConfig{
			SkipTerms:      []string{"doctor of philosophy", "phd", "bachelor"},
			ObsoleteMarker: "2025",
			CurrentMarker:  "2026",
			FeeYear:        "2026",
			Locations:      []string{"Christchurch", "Dunedin", "Wellington"},
			Divisions: []string{
				"Division of Health Sciences",
				"Division of Humanities",
				"Division of Sciences",
				"Otago Business School",
			},
			LinkSeparator: ", ",
		},
		Rendering: RenderingConfig{
			NavigationTimeout: DurationFrom(40 * time.Second),
			SettlePause:       DurationFrom(4 * time.Second),
			LookupTimeout:     DurationFrom(5 * time.Second),
			ActionPause:       DurationFrom(1 * time.Second),
			ReloadPause:       DurationFrom(2 * time.Second),
			SubLinkTimeout:    DurationFrom(20 * time.Second),
			SubLinkMode:       "browser",
		},
		Worker: WorkerConfig{
			Concurrency: 4,
			QueueSize:   256,
		},
		Crawl: CrawlConfig{
			UserAgent:      "otago-pg-scraper/1.0",
			Headers:        map[string]string{},
			PerDomainDelay: DurationFrom(500 * time.Millisecond),
			RequestTimeout: DurationFrom(20 * time.Second),
			MaxBodyBytes:   6 * 1024 * 1024,
		},
		Robots: RobotsConfig{
			Respect:   true,
			Overrides: []string{},
			UserAgent: "otago-pg-scraper/1.0",
			CacheTTL:  DurationFrom(6 * time.Hour),
		},
		DB: SQLConfig{
			AutoMigrate: true,
		},
		Mongo: MongoConfig{
			Database:   "scraper",
			Collection: "programmes",
			Timeout:    DurationFrom(10 * time.Second),
		},
		Logging: LoggingConfig{
			Level:      "info",
			Structured: true,
		},
	}
}

// Load reads, merges, and validates configuration from a YAML file.
func Load(path string) (*Config, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer fh.Close()
	return LoadFromReader(fh)
}

// LoadFromReader decodes configuration from an arbitrary reader.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	if err := decodeYAML(r, &cfg); err != nil {
		return nil, err
	}
	cfg.normalise()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func decodeYAML(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("decode config: %w", err)
	}
	return nil
}

// Validate enforces required invariants for the scraper configuration.
func (c Config) Validate() error {
	if c.Site.SitemapPath == "" && c.Site.SitemapURL == "" {
		return errors.New("site.sitemap_path or site.sitemap_url must be set")
	}
	if c.Extraction.ObsoleteMarker != "" && c.Extraction.ObsoleteMarker == c.Extraction.CurrentMarker {
		return fmt.Errorf("extraction.obsolete_marker and extraction.current_marker must differ (both %q)", c.Extraction.ObsoleteMarker)
	}
	if strings.TrimSpace(c.Extraction.FeeYear) == "" {
		return errors.New("extraction.fee_year must be set")
	}
	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("worker.concurrency must be > 0 (got %d)", c.Worker.Concurrency)
	}
	if c.Worker.QueueSize <= 0 {
		return fmt.Errorf("worker.queue_size must be > 0 (got %d)", c.Worker.QueueSize)
	}
	if c.Rendering.NavigationTimeout.Duration <= 0 {
		return errors.New("rendering.navigation_timeout must be > 0")
	}
	if c.Rendering.LookupTimeout.Duration <= 0 {
		return errors.New("rendering.lookup_timeout must be > 0")
	}
	switch c.Rendering.SubLinkMode {
	case "browser", "http":
	default:
		return fmt.Errorf("rendering.sub_link_mode must be browser or http (got %q)", c.Rendering.SubLinkMode)
	}
	if c.Crawl.MaxPages < 0 {
		return fmt.Errorf("crawl.max_pages must be >= 0 (got %d)", c.Crawl.MaxPages)
	}
	if rl := c.Crawl.RateLimitPerDomain; rl.Requests < 0 {
		return fmt.Errorf("crawl.rate_limit_per_domain.requests must be >= 0 (got %d)", rl.Requests)
	}
	if c.Crawl.MaxBodyBytes <= 0 {
		return fmt.Errorf("crawl.max_body_bytes must be > 0 (got %d)", c.Crawl.MaxBodyBytes)
	}
	if strings.TrimSpace(c.Crawl.UserAgent) == "" {
		return errors.New("crawl.user_agent must be set")
	}
	if c.Robots.Respect && strings.TrimSpace(c.Robots.UserAgent) == "" {
		return errors.New("robots.user_agent must be set")
	}
	if c.Mongo.URI != "" && (c.Mongo.Database == "" || c.Mongo.Collection == "") {
		return errors.New("mongo.database and mongo.collection must be set when mongo.uri is set")
	}
	return nil
}

func (c *Config) normalise() {
	c.Site.SitemapPath = strings.TrimSpace(c.Site.SitemapPath)
	c.Site.SitemapURL = strings.TrimSpace(c.Site.SitemapURL)
	c.Site.KeyDatesURL = strings.TrimSpace(c.Site.KeyDatesURL)
	c.Site.LanguageURL = strings.TrimSpace(c.Site.LanguageURL)

	c.Extraction.ObsoleteMarker = strings.TrimSpace(c.Extraction.ObsoleteMarker)
	c.Extraction.CurrentMarker = strings.TrimSpace(c.Extraction.CurrentMarker)
	c.Extraction.FeeYear = strings.TrimSpace(c.Extraction.FeeYear)
	// Skip terms are matched against a lowercased title.
	c.Extraction.SkipTerms = dedupeLower(c.Extraction.SkipTerms)
	c.Extraction.Locations = trimAll(c.Extraction.Locations)
	c.Extraction.Divisions = trimAll(c.Extraction.Divisions)

	c.Rendering.SubLinkMode = strings.ToLower(strings.TrimSpace(c.Rendering.SubLinkMode))
	if c.Rendering.SubLinkMode == "" {
		c.Rendering.SubLinkMode = "browser"
	}

	c.Crawl.UserAgent = strings.TrimSpace(c.Crawl.UserAgent)
	c.Robots.UserAgent = strings.TrimSpace(c.Robots.UserAgent)
	if c.Robots.UserAgent == "" {
		c.Robots.UserAgent = c.Crawl.UserAgent
	}
	if len(c.Robots.Overrides) > 0 {
		c.Robots.Overrides = dedupeLower(c.Robots.Overrides)
	}
	if len(c.Crawl.AllowedDomains) > 0 {
		c.Crawl.AllowedDomains = dedupeLower(c.Crawl.AllowedDomains)
	}
	if c.Crawl.Headers == nil {
		c.Crawl.Headers = map[string]string{}
	}
	c.Output.Path = strings.TrimSpace(c.Output.Path)
}

func dedupeLower(values []string) []string {
	unique := make(map[string]struct{}, len(values))
	cleaned := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "" {
			continue
		}
		if _, ok := unique[v]; ok {
			continue
		}
		unique[v] = struct{}{}
		cleaned = append(cleaned, v)
	}
	sort.Strings(cleaned)
	return cleaned
}

// trimAll drops blank entries but keeps order; locations are visited in order.
func trimAll(values []string) []string {
	cleaned := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			cleaned = append(cleaned, v)
		}
	}
	return cleaned
}

// Enabled reports whether per-domain rate limiting is active.
func (r RateLimitConfig) Enabled() bool {
	return r.Requests > 0 && !r.Window.IsZero()
}
