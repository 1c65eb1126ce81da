// Package config loads and validates harvester configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/outbreak-harvester/internal/harvester"
)

// FloorDateLayout is the layout of harvester.floor_date.
const FloorDateLayout = "2006-01-02"

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Harvester HarvesterConfig `mapstructure:"harvester"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	DB        DBConfig        `mapstructure:"db"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig guards the admin endpoints.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// HarvesterConfig describes what to harvest and how hard to push the source.
type HarvesterConfig struct {
	ListingURL    string   `mapstructure:"listing_url"`
	FloorDate     string   `mapstructure:"floor_date"`
	Keywords      []string `mapstructure:"keywords"`
	HTMLSelectors []string `mapstructure:"html_selectors"`
	Workers       int      `mapstructure:"workers"`
	PerHostRPS    float64  `mapstructure:"per_host_rps"`
	UserAgent     string   `mapstructure:"user_agent"`
}

// HTTPConfig configures outbound requests.
type HTTPConfig struct {
	TimeoutSeconds     int  `mapstructure:"timeout_seconds"`
	InsecureSkipVerify bool `mapstructure:"insecure_skip_verify"`
}

// DBConfig controls access to Postgres. An empty DSN selects the in-memory store.
type DBConfig struct {
	DSN                    string `mapstructure:"dsn"`
	Table                  string `mapstructure:"table"`
	MaxConns               int32  `mapstructure:"max_conns"`
	MinConns               int32  `mapstructure:"min_conns"`
	MaxConnLifetimeSeconds int    `mapstructure:"max_conn_lifetime_seconds"`
}

// PubSubConfig holds metadata for new-record notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("HARVESTER")
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
	v.SetDefault("server.port", 8080)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("harvester.listing_url", "https://www.nda.gov.za/index.php/newsroom/media-release")
	v.SetDefault("harvester.floor_date", "2024-01-01")
	v.SetDefault("harvester.keywords", []string{
		"outbreak", "disease", "foot and mouth", "avian influenza",
		"anthrax", "rabies", "brucellosis", "fmd",
	})
	v.SetDefault("harvester.html_selectors", []string{"article", "main", "div.content", "div.item-page"})
	v.SetDefault("harvester.workers", 4)
	v.SetDefault("harvester.per_host_rps", 2.0)
	v.SetDefault("harvester.user_agent", "outbreak-harvester/0.1")
	v.SetDefault("http.timeout_seconds", 30)
	v.SetDefault("http.insecure_skip_verify", false)
	v.SetDefault("db.table", "outbreaks")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("db.min_conns", 0)
	v.SetDefault("db.max_conn_lifetime_seconds", 1800)
	v.SetDefault("pubsub.topic_name", "outbreak-notifications")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return errors.New("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return errors.New("auth.api_key must be set when auth is enabled")
	}
	u, err := url.Parse(c.Harvester.ListingURL)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("harvester.listing_url must be an absolute URL, got %q", c.Harvester.ListingURL)
	}
	if _, err := c.FloorDate(); err != nil {
		return err
	}
	if c.Harvester.Workers <= 0 {
		return errors.New("harvester.workers must be > 0")
	}
	if c.Harvester.PerHostRPS < 0 {
		return errors.New("harvester.per_host_rps must be >= 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return errors.New("http.timeout_seconds must be > 0")
	}
	if c.DB.MinConns > c.DB.MaxConns {
		return errors.New("db.min_conns must not exceed db.max_conns")
	}
	return nil
}

// FloorDate parses harvester.floor_date.
func (c Config) FloorDate() (time.Time, error) {
	d, err := time.Parse(FloorDateLayout, c.Harvester.FloorDate)
	if err != nil {
		return time.Time{}, fmt.Errorf("harvester.floor_date must be YYYY-MM-DD: %w", err)
	}
	return d, nil
}

// HTTPTimeout converts http.timeout_seconds into a duration.
func (c Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// RunConfig derives the harvester run configuration. Call it on a validated Config.
func (c Config) RunConfig() harvester.RunConfig {
	floor, _ := c.FloorDate() //nolint:errcheck // checked by Validate
	topic := ""
	if c.PubSub.ProjectID != "" {
		topic = c.PubSub.TopicName
	}
	return harvester.RunConfig{
		ListingURL: c.Harvester.ListingURL,
		FloorDate:  floor,
		Keywords:   c.Harvester.Keywords,
		Workers:    c.Harvester.Workers,
		Topic:      topic,
	}
}
