// Package config loads and validates scraper configuration via Viper.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/regwatch/fda-notice-scraper/internal/notices"
)

// Config captures all scraper configuration knobs loaded via Viper. Nothing
// else in the program reads the environment; everything flows from here.
type Config struct {
	Site    SiteConfig    `mapstructure:"site"`
	Browser BrowserConfig `mapstructure:"browser"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	Extract ExtractConfig `mapstructure:"extract"`
	Output  OutputConfig  `mapstructure:"output"`
	DB      DBConfig      `mapstructure:"db"`
	Archive ArchiveConfig `mapstructure:"archive"`
	PubSub  PubSubConfig  `mapstructure:"pubsub"`
	Server  ServerConfig  `mapstructure:"server"`
	Logging LoggingConfig `mapstructure:"logging"`
	Run     RunConfig     `mapstructure:"run"`
}

// SiteConfig points at the regulator's listing pages. Press releases are
// spread over two pages, so that category carries a second URL.
type SiteConfig struct {
	BaseURL                 string `mapstructure:"base_url"`
	RecallsURL              string `mapstructure:"recalls_url"`
	AlertsURL               string `mapstructure:"alerts_url"`
	PressReleasesURL        string `mapstructure:"press_releases_url"`
	PressReleasesArchiveURL string `mapstructure:"press_releases_archive_url"`
	UserAgent               string `mapstructure:"user_agent"`
}

// ListingURLs returns the configured listing pages for a category, in visit
// order, with unset ones dropped.
func (s SiteConfig) ListingURLs(cat notices.Category) ([]string, error) {
	var urls []string
	switch cat {
	case notices.CategoryRecall:
		urls = []string{s.RecallsURL}
	case notices.CategoryAlert:
		urls = []string{s.AlertsURL}
	case notices.CategoryPressRelease:
		urls = []string{s.PressReleasesURL, s.PressReleasesArchiveURL}
	default:
		return nil, fmt.Errorf("no listing urls for category %q", cat)
	}
	out := urls[:0]
	for _, u := range urls {
		if u != "" {
			out = append(out, u)
		}
	}
	return out, nil
}

// BrowserConfig configures the headless rendering subsystem.
type BrowserConfig struct {
	Headless          bool `mapstructure:"headless"`
	NavTimeoutSeconds int  `mapstructure:"nav_timeout_seconds"`
	ExpandWaitSeconds int  `mapstructure:"expand_wait_seconds"`
}

// HTTPConfig configures the plain HTTP downloader and its retry behavior.
type HTTPConfig struct {
	TimeoutSeconds   int     `mapstructure:"timeout_seconds"`
	MaxRetries       int     `mapstructure:"max_retries"`
	BackoffInitialMs int     `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs     int     `mapstructure:"backoff_max_ms"`
	PerHostRPS       float64 `mapstructure:"per_host_rps"`
}

// ExtractConfig locates the external PDF tooling and sets OCR behavior.
type ExtractConfig struct {
	PdftotextPath  string `mapstructure:"pdftotext_path"`
	PdftoppmPath   string `mapstructure:"pdftoppm_path"`
	TesseractPath  string `mapstructure:"tesseract_path"`
	OCRThreshold   int    `mapstructure:"ocr_threshold"`
	OCRDPI         int    `mapstructure:"ocr_dpi"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// OutputConfig sets where notice artifacts land on disk.
type OutputConfig struct {
	Dir string `mapstructure:"dir"`
}

// DBConfig controls access to the relational database. Fields map onto the
// FDA_DB_* environment variables.
type DBConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Name     string `mapstructure:"name"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	SSLMode  string `mapstructure:"sslmode"`
	MaxConns int    `mapstructure:"max_conns"`
}

// DSN renders the pgx connection string.
func (d DBConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.Name,
	}
	if d.SSLMode != "" {
		q := url.Values{}
		q.Set("sslmode", d.SSLMode)
		u.RawQuery = q.Encode()
	}
	return u.String()
}

// ArchiveConfig mirrors artifacts to a GCS bucket when enabled.
type ArchiveConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Bucket  string `mapstructure:"bucket"`
	Prefix  string `mapstructure:"prefix"`
}

// PubSubConfig holds metadata for publish-subscribe notifications.
type PubSubConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// ServerConfig controls the debug HTTP server (health and metrics).
type ServerConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	File        string `mapstructure:"file"`
}

// RunConfig governs how a scrape run walks the categories.
type RunConfig struct {
	Concurrent        bool `mapstructure:"concurrent"`
	SkipRecalls       bool `mapstructure:"skip_recalls"`
	SkipAlerts        bool `mapstructure:"skip_alerts"`
	SkipPressReleases bool `mapstructure:"skip_press_releases"`
}

// Categories returns the categories a run should visit, in order, honoring
// the skip flags.
func (r RunConfig) Categories() []notices.Category {
	var cats []notices.Category
	for _, cat := range notices.AllCategories() {
		switch {
		case cat == notices.CategoryRecall && r.SkipRecalls:
		case cat == notices.CategoryAlert && r.SkipAlerts:
		case cat == notices.CategoryPressRelease && r.SkipPressReleases:
		default:
			cats = append(cats, cat)
		}
	}
	return cats
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("FDA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("site.base_url", "https://fdaghana.gov.gh")
	v.SetDefault("site.recalls_url", "https://fdaghana.gov.gh/newsroom/product-recalls-and-alerts/")
	v.SetDefault("site.alerts_url", "https://fdaghana.gov.gh/newsroom/public-alerts/")
	v.SetDefault("site.press_releases_url", "https://fdaghana.gov.gh/newsroom/press-releases/")
	v.SetDefault("site.press_releases_archive_url", "https://fdaghana.gov.gh/newsroom/press-statements/")
	v.SetDefault("site.user_agent", "fda-notice-scraper/0.1")
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.nav_timeout_seconds", 60)
	v.SetDefault("browser.expand_wait_seconds", 10)
	v.SetDefault("http.timeout_seconds", 30)
	v.SetDefault("http.max_retries", 3)
	v.SetDefault("http.backoff_initial_ms", 250)
	v.SetDefault("http.backoff_max_ms", 5000)
	v.SetDefault("http.per_host_rps", 2)
	v.SetDefault("extract.pdftotext_path", "pdftotext")
	v.SetDefault("extract.pdftoppm_path", "pdftoppm")
	v.SetDefault("extract.tesseract_path", "tesseract")
	v.SetDefault("extract.ocr_threshold", 100)
	v.SetDefault("extract.ocr_dpi", 300)
	v.SetDefault("extract.timeout_seconds", 120)
	v.SetDefault("output.dir", "./notices")
	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.name", "fda")
	v.SetDefault("db.user", "postgres")
	v.SetDefault("db.password", "")
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("archive.enabled", false)
	v.SetDefault("archive.prefix", "notices")
	v.SetDefault("pubsub.enabled", false)
	v.SetDefault("server.enabled", false)
	v.SetDefault("server.port", 8080)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.file", "")
	v.SetDefault("run.concurrent", false)
	v.SetDefault("run.skip_recalls", false)
	v.SetDefault("run.skip_alerts", false)
	v.SetDefault("run.skip_press_releases", false)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	for _, cat := range notices.AllCategories() {
		urls, err := c.Site.ListingURLs(cat)
		if err != nil {
			return err
		}
		if len(urls) == 0 {
			return fmt.Errorf("site url for %s must be set", cat)
		}
	}
	if c.Browser.NavTimeoutSeconds <= 0 {
		return fmt.Errorf("browser.nav_timeout_seconds must be > 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.Extract.OCRThreshold <= 0 {
		return fmt.Errorf("extract.ocr_threshold must be > 0")
	}
	if c.Output.Dir == "" {
		return fmt.Errorf("output.dir must be set")
	}
	if c.DB.Host == "" || c.DB.Name == "" || c.DB.User == "" {
		return fmt.Errorf("db.host, db.name and db.user must be set")
	}
	if c.Archive.Enabled && c.Archive.Bucket == "" {
		return fmt.Errorf("archive.bucket must be set when archive is enabled")
	}
	if c.PubSub.Enabled && (c.PubSub.ProjectID == "" || c.PubSub.TopicName == "") {
		return fmt.Errorf("pubsub.project_id and pubsub.topic_name must be set when pubsub is enabled")
	}
	if c.Server.Enabled && c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0 when the debug server is enabled")
	}
	return nil
}

// PageLoadTimeout bounds a single browser navigation.
func (c Config) PageLoadTimeout() time.Duration {
	return time.Duration(c.Browser.NavTimeoutSeconds) * time.Second
}

// ExpandWait bounds the settle time after expanding pagination.
func (c Config) ExpandWait() time.Duration {
	return time.Duration(c.Browser.ExpandWaitSeconds) * time.Second
}

// DownloadTimeout bounds a single plain-HTTP document download.
func (c Config) DownloadTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// BackoffBase is the initial retry delay for transient resolver failures.
func (c Config) BackoffBase() time.Duration {
	return time.Duration(c.HTTP.BackoffInitialMs) * time.Millisecond
}

// BackoffMax caps the retry delay.
func (c Config) BackoffMax() time.Duration {
	return time.Duration(c.HTTP.BackoffMaxMs) * time.Millisecond
}

// ExtractTimeout bounds one external PDF tool invocation.
func (c Config) ExtractTimeout() time.Duration {
	return time.Duration(c.Extract.TimeoutSeconds) * time.Second
}
