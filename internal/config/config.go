// Package config loads the harvester configuration from defaults, an
// optional YAML file and HARVEST_* environment variables, in increasing
// order of precedence. Command-line flags bound to the returned viper
// instance take precedence over all three.
package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable, e.g. HARVEST_MEETUP_TOKEN.
const EnvPrefix = "HARVEST"

// Archive backends.
const (
	BackendNone   = "none"
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendSQLite = "sqlite"
)

// Backends lists the accepted archive backends.
var Backends = []string{BackendNone, BackendMemory, BackendRedis, BackendSQLite}

// ErrInvalidConfig is returned when a loaded configuration fails validation.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the complete application configuration.
type Config struct {
	Log     LogConfig     `mapstructure:"log"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Archive ArchiveConfig `mapstructure:"archive"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	Gerrit  GerritConfig  `mapstructure:"gerrit"`
	Meetup  MeetupConfig  `mapstructure:"meetup"`
}

// LogConfig configures the global logger.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// MetricsConfig configures the Prometheus endpoint. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// ArchiveConfig selects where raw responses are recorded or replayed from.
type ArchiveConfig struct {
	Backend     string `mapstructure:"backend"`
	Path        string `mapstructure:"path"`
	RedisAddr   string `mapstructure:"redis_addr"`
	RedisDB     int    `mapstructure:"redis_db"`
	FromArchive bool   `mapstructure:"from_archive"`
}

// HTTPConfig configures the HTTP transport.
type HTTPConfig struct {
	UserAgent         string        `mapstructure:"user_agent"`
	Timeout           time.Duration `mapstructure:"timeout"`
	MaxAttempts       int           `mapstructure:"max_attempts"`
	MaxBackoff        time.Duration `mapstructure:"max_backoff"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
}

// GerritConfig configures the Gerrit connector and its command transport.
type GerritConfig struct {
	User                string        `mapstructure:"user"`
	Port                string        `mapstructure:"port"`
	MaxReviews          int           `mapstructure:"max_reviews"`
	Project             string        `mapstructure:"project"`
	BlacklistIDs        []string      `mapstructure:"blacklist_ids"`
	DisableHostKeyCheck bool          `mapstructure:"disable_host_key_check"`
	IDFilePath          string        `mapstructure:"id_filepath"`
	MaxAttempts         int           `mapstructure:"max_attempts"`
	RetryWait           time.Duration `mapstructure:"retry_wait"`
}

// MeetupConfig configures the Meetup connector.
type MeetupConfig struct {
	URL              string        `mapstructure:"url"`
	Token            string        `mapstructure:"token"`
	MaxItems         int           `mapstructure:"max_items"`
	FilterClassified bool          `mapstructure:"filter_classified"`
	SleepForRate     bool          `mapstructure:"sleep_for_rate"`
	MinRate          int           `mapstructure:"min_rate"`
	SleepTime        time.Duration `mapstructure:"sleep_time"`
}

// New returns a viper instance carrying the defaults and reading HARVEST_*
// environment variables.
func New() *viper.Viper {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	v.SetDefault("metrics.addr", "")

	v.SetDefault("archive.backend", BackendNone)
	v.SetDefault("archive.path", "harvest-archive.db")
	v.SetDefault("archive.redis_addr", "localhost:6379")
	v.SetDefault("archive.redis_db", 0)
	v.SetDefault("archive.from_archive", false)

	v.SetDefault("http.user_agent", "harvester/1.0")
	v.SetDefault("http.timeout", 30*time.Second)
	v.SetDefault("http.max_attempts", 3)
	v.SetDefault("http.max_backoff", 30*time.Second)
	v.SetDefault("http.requests_per_second", 0.0)

	v.SetDefault("gerrit.user", "")
	v.SetDefault("gerrit.port", "29418")
	v.SetDefault("gerrit.max_reviews", 500)
	v.SetDefault("gerrit.project", "")
	v.SetDefault("gerrit.blacklist_ids", []string{})
	v.SetDefault("gerrit.disable_host_key_check", false)
	v.SetDefault("gerrit.id_filepath", "")
	v.SetDefault("gerrit.max_attempts", 3)
	v.SetDefault("gerrit.retry_wait", 60*time.Second)

	v.SetDefault("meetup.url", "https://api.meetup.com/gql")
	v.SetDefault("meetup.token", "")
	v.SetDefault("meetup.max_items", 10)
	v.SetDefault("meetup.filter_classified", false)
	v.SetDefault("meetup.sleep_for_rate", false)
	v.SetDefault("meetup.min_rate", 1)
	v.SetDefault("meetup.sleep_time", 30*time.Second)
}

// Load reads file (when non-empty) into v and decodes the result.
func Load(v *viper.Viper, file string) (*Config, error) {
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if !slices.Contains(Backends, c.Archive.Backend) {
		return fmt.Errorf("%w: archive backend %q (want one of %s)",
			ErrInvalidConfig, c.Archive.Backend, strings.Join(Backends, ", "))
	}
	if c.Archive.FromArchive && c.Archive.Backend == BackendNone {
		return fmt.Errorf("%w: replaying from the archive needs an archive backend", ErrInvalidConfig)
	}
	if c.Archive.Backend == BackendSQLite && c.Archive.Path == "" {
		return fmt.Errorf("%w: sqlite archive needs a path", ErrInvalidConfig)
	}
	if c.HTTP.UserAgent == "" {
		return fmt.Errorf("%w: user agent is required", ErrInvalidConfig)
	}
	return nil
}
