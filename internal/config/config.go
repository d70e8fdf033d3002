package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/lessucettes/adresu-wordguard/internal/spam"
	"github.com/lessucettes/adresu-wordguard/internal/validation"
)

type Config struct {
	Log        LogConfig        `toml:"log"`
	DB         DBConfig         `toml:"database"`
	WordList   WordListConfig   `toml:"wordlist"`
	Scanner    ScannerConfig    `toml:"scanner"`
	Spam       spam.Config      `toml:"spam"`
	Validation ValidationConfig `toml:"validation"`
	Filters    FiltersConfig    `toml:"filters"`
	Metrics    MetricsConfig    `toml:"metrics"`
}

type LogLevel string

const (
	DebugLevel LogLevel = "debug"
	InfoLevel  LogLevel = "info"
	WarnLevel  LogLevel = "warn"
	ErrorLevel LogLevel = "error"
)

func (l *LogLevel) UnmarshalText(text []byte) error {
	v := string(text)
	switch LogLevel(v) {
	case DebugLevel, InfoLevel, WarnLevel, ErrorLevel:
		*l = LogLevel(v)
		return nil
	default:
		return fmt.Errorf("invalid log.level: %q (must be debug, info, warn, error)", v)
	}
}

func (l LogLevel) String() string { return string(l) }

func (l LogLevel) ToSlogLevel() slog.Level {
	switch l {
	case DebugLevel:
		return slog.LevelDebug
	case WarnLevel:
		return slog.LevelWarn
	case ErrorLevel:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type LogConfig struct {
	Level           LogLevel            `toml:"level"`
	RejectionLevels map[string]LogLevel `toml:"rejection_levels"`
}

type DBDriver string

const (
	DriverBadger   DBDriver = "badger"
	DriverPostgres DBDriver = "postgres"
)

func (d *DBDriver) UnmarshalText(text []byte) error {
	v := string(text)
	switch DBDriver(v) {
	case DriverBadger, DriverPostgres, "":
		*d = DBDriver(v)
		return nil
	default:
		return fmt.Errorf("invalid database.driver: %q (must be badger, postgres)", v)
	}
}

type DBConfig struct {
	Driver   DBDriver `toml:"driver"`
	Path     string   `toml:"path"`
	DSN      string   `toml:"dsn"`
	InMemory bool     `toml:"in_memory"`
}

type WordListConfig struct {
	Name               string `toml:"name"`
	SeedPath           string `toml:"seed_path"`
	MaxFuzzyTermLength int    `toml:"max_fuzzy_term_length"`
	Mask               string `toml:"mask"`
}

type ScannerConfig struct {
	CacheSize int           `toml:"cache_size"`
	CacheTTL  time.Duration `toml:"cache_ttl"`
}

// ValidationConfig holds the per content type check profiles.
type ValidationConfig struct {
	Title   validation.Config `toml:"title"`
	Body    validation.Config `toml:"body"`
	Comment validation.Config `toml:"comment"`
}

// Profiles returns the configured profiles keyed by content type.
func (v ValidationConfig) Profiles() map[validation.ContentType]validation.Config {
	return map[validation.ContentType]validation.Config{
		validation.ContentTitle:   v.Title,
		validation.ContentBody:    v.Body,
		validation.ContentComment: v.Comment,
	}
}

type RateLimiterBy string

const (
	RateByIP     RateLimiterBy = "ip"
	RateByAuthor RateLimiterBy = "author"
	RateByBoth   RateLimiterBy = "both"
)

func (m *RateLimiterBy) UnmarshalText(text []byte) error {
	v := string(text)
	switch RateLimiterBy(v) {
	case RateByIP, RateByAuthor, RateByBoth, "":
		*m = RateLimiterBy(v)
		return nil
	default:
		return fmt.Errorf("invalid rate_limiter.by: %q (must be ip, author, both)", v)
	}
}

type RateLimitRule struct {
	Description  string   `toml:"description"`
	ContentTypes []string `toml:"content_types"`
	Rate         float64  `toml:"rate"`
	Burst        int      `toml:"burst"`
}

type RateLimiterConfig struct {
	Enabled      bool            `toml:"enabled"`
	By           RateLimiterBy   `toml:"by"`
	CacheSize    int             `toml:"cache_size"`
	TTL          time.Duration   `toml:"ttl"`
	DefaultRate  float64         `toml:"default_rate"`
	DefaultBurst int             `toml:"default_burst"`
	Rules        []RateLimitRule `toml:"rule"`
}

type FiltersConfig struct {
	RateLimiter RateLimiterConfig `toml:"rate_limiter"`
}

type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Listen  string `toml:"listen"`
}

func defaultConfig() *Config {
	return &Config{
		Log: LogConfig{
			Level: InfoLevel,
		},
		DB: DBConfig{
			Driver: DriverBadger,
			Path:   "./wordguard-db",
		},
		WordList: WordListConfig{
			Name: "profanity",
			Mask: "***",
		},
		Scanner: ScannerConfig{
			CacheSize: 2048,
			CacheTTL:  10 * time.Minute,
		},
		Spam: spam.DefaultConfig(),
		Validation: ValidationConfig{
			Title:   validation.TitleConfig(),
			Body:    validation.BodyConfig(),
			Comment: validation.CommentConfig(),
		},
		Filters: FiltersConfig{
			RateLimiter: RateLimiterConfig{
				By:           RateByAuthor,
				DefaultRate:  1,
				DefaultBurst: 5,
			},
		},
	}
}

// Default returns the built-in configuration.
func Default() *Config {
	return defaultConfig()
}

func (c *Config) validate() error {
	// --- [database] ---
	if c.DB.Driver == DriverPostgres && c.DB.DSN == "" {
		return errors.New("database.dsn must be set when database.driver is postgres")
	}
	if c.DB.Driver != DriverPostgres && c.DB.Path == "" && !c.DB.InMemory {
		return errors.New("database.path must be set for the badger driver")
	}

	// --- [wordlist] ---
	if c.WordList.Name == "" {
		return errors.New("wordlist.name must not be empty")
	}
	if c.WordList.MaxFuzzyTermLength != 0 && c.WordList.MaxFuzzyTermLength < 3 {
		return errors.New("wordlist.max_fuzzy_term_length must be 0 (default) or >= 3")
	}
	if c.WordList.Mask == "" {
		return errors.New("wordlist.mask must not be empty")
	}

	// --- [scanner] ---
	if c.Scanner.CacheSize < 0 {
		return errors.New("scanner.cache_size must not be negative")
	}
	if c.Scanner.CacheTTL < 0 {
		return errors.New("scanner.cache_ttl must not be a negative duration")
	}

	// --- [spam] ---
	if err := c.Spam.Validate(); err != nil {
		return fmt.Errorf("spam: %w", err)
	}

	// --- [validation] ---
	for ct, profile := range c.Validation.Profiles() {
		if err := profile.Validate(); err != nil {
			return fmt.Errorf("validation.%s: %w", ct, err)
		}
	}

	// --- [filters] ---

	// [filters.rate_limiter]
	rl := c.Filters.RateLimiter
	if rl.Enabled {
		if rl.DefaultRate < 0 || rl.DefaultBurst <= 0 {
			return errors.New("filters.rate_limiter: default_rate must be >= 0 and default_burst must be > 0")
		}
		for i, rule := range rl.Rules {
			if len(rule.ContentTypes) == 0 {
				return fmt.Errorf("filters.rate_limiter.rule[%d] ('%s'): must specify content_types", i, rule.Description)
			}
			if rule.Rate < 0 || rule.Burst <= 0 {
				return fmt.Errorf("filters.rate_limiter.rule[%d] ('%s'): rate must be >= 0 and burst must be > 0", i, rule.Description)
			}
		}
	}

	// --- [metrics] ---
	if c.Metrics.Enabled && c.Metrics.Listen == "" {
		return errors.New("metrics.listen must be set when metrics are enabled")
	}

	return nil
}

func Load(path string, useDefaults bool) (*Config, bool, error) {
	cfg := defaultConfig()
	defaultsUsed := false

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			if useDefaults {
				defaultsUsed = true
				if err := cfg.validate(); err != nil {
					return nil, true, err
				}
				return cfg, defaultsUsed, nil
			}
			return nil, false, fmt.Errorf("config file not found at %s", path)
		}
		return nil, false, fmt.Errorf("failed to load config file %s: %w", path, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, false, err
	}
	return cfg, defaultsUsed, nil
}
