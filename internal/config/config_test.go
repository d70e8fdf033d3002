package config

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lessucettes/adresu-wordguard/internal/validation"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "absent.toml")

	cfg, used, err := Load(missing, true)
	require.NoError(t, err)
	require.True(t, used)
	require.Equal(t, Default(), cfg)
	require.Equal(t, "profanity", cfg.WordList.Name)
	require.Equal(t, validation.TitleConfig(), cfg.Validation.Title)

	_, _, err = Load(missing, false)
	require.ErrorContains(t, err, "config file not found")
}

func TestLoad_OverridesKeepUnsetDefaults(t *testing.T) {
	path := writeConfig(t, `
[log]
level = "debug"

[database]
driver = "badger"
in_memory = true

[wordlist]
seed_path = "./words.yaml"
mask = "[removed]"

[scanner]
cache_ttl = "30s"

[validation.title]
check_profanity = true
check_length = true
min_length = 3
max_length = 120

[filters.rate_limiter]
enabled = true
by = "both"
default_rate = 0.5
default_burst = 2

[[filters.rate_limiter.rule]]
description = "comments"
content_types = ["comment"]
rate = 2.0
burst = 10
`)

	cfg, used, err := Load(path, false)
	require.NoError(t, err)
	require.False(t, used)

	require.Equal(t, DebugLevel, cfg.Log.Level)
	require.True(t, cfg.DB.InMemory)
	require.Equal(t, "./words.yaml", cfg.WordList.SeedPath)
	require.Equal(t, "profanity", cfg.WordList.Name, "unset keys keep their defaults")
	require.Equal(t, "[removed]", cfg.WordList.Mask)
	require.Equal(t, 30*time.Second, cfg.Scanner.CacheTTL)
	require.Equal(t, 2048, cfg.Scanner.CacheSize)

	require.Equal(t, 3, cfg.Validation.Title.MinLength)
	require.Equal(t, 120, cfg.Validation.Title.MaxLength)
	require.True(t, cfg.Validation.Title.CheckSpam, "profile fields not in the file keep their defaults")
	require.Equal(t, validation.BodyConfig(), cfg.Validation.Body)

	rl := cfg.Filters.RateLimiter
	require.True(t, rl.Enabled)
	require.Equal(t, RateByBoth, rl.By)
	require.Len(t, rl.Rules, 1)
	require.Equal(t, []string{"comment"}, rl.Rules[0].ContentTypes)
}

func TestLoad_Invalid(t *testing.T) {
	testCases := []struct {
		name    string
		content string
		errPart string
	}{
		{"bad log level", "[log]\nlevel = \"loud\"", "invalid log.level"},
		{"bad driver", "[database]\ndriver = \"sqlite\"", "invalid database.driver"},
		{"postgres without dsn", "[database]\ndriver = \"postgres\"", "database.dsn"},
		{"empty list name", "[wordlist]\nname = \"\"", "wordlist.name"},
		{"fuzzy cap too small", "[wordlist]\nmax_fuzzy_term_length = 2", "max_fuzzy_term_length"},
		{"empty mask", "[wordlist]\nmask = \"\"", "wordlist.mask"},
		{"negative cache", "[scanner]\ncache_size = -1", "scanner.cache_size"},
		{"inverted profile bounds", "[validation.body]\ncheck_length = true\nmin_length = 50\nmax_length = 10", "validation.body"},
		{"bad rate limiter key", "[filters.rate_limiter]\nby = \"pubkey\"", "invalid rate_limiter.by"},
		{"rule without content types", "[filters.rate_limiter]\nenabled = true\n[[filters.rate_limiter.rule]]\ndescription = \"x\"\nrate = 1.0\nburst = 1", "must specify content_types"},
		{"metrics without listen", "[metrics]\nenabled = true", "metrics.listen"},
		{"broken toml", "[log\nlevel=", "failed to load config file"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := Load(writeConfig(t, tc.content), false)
			require.ErrorContains(t, err, tc.errPart)
		})
	}
}

func TestLogLevel_ToSlogLevel(t *testing.T) {
	require.Equal(t, "DEBUG", DebugLevel.ToSlogLevel().String())
	require.Equal(t, "WARN", WarnLevel.ToSlogLevel().String())
	require.Equal(t, "ERROR", ErrorLevel.ToSlogLevel().String())
	require.Equal(t, "INFO", LogLevel("").ToSlogLevel().String())
}

func TestStartWatcher_ReloadsOnWrite(t *testing.T) {
	path := writeConfig(t, "[wordlist]\nmask = \"***\"\n")

	var latest atomic.Pointer[Config]
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		StartWatcher(ctx, path, func(c *Config) { latest.Store(c) }, 20*time.Millisecond)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	// Give the watcher time to register the directory.
	time.Sleep(100 * time.Millisecond)

	// An invalid file is ignored.
	require.NoError(t, os.WriteFile(path, []byte("[wordlist]\nmask = \"\"\n"), 0o644))
	time.Sleep(200 * time.Millisecond)
	require.Nil(t, latest.Load())

	require.NoError(t, os.WriteFile(path, []byte("[wordlist]\nmask = \"###\"\n"), 0o644))
	require.Eventually(t, func() bool {
		c := latest.Load()
		return c != nil && c.WordList.Mask == "###"
	}, 5*time.Second, 20*time.Millisecond)
}
