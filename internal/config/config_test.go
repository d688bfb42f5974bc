package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mschirtzinger/tagsync/internal/tagstudio/schema"
)

// clearEnv blanks every key so the host environment cannot leak in.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		KeySourcePath, KeyLibraryPath, KeyArtistColor, KeyCopyrightColor,
		KeyCharacterColor, KeyGeneralColor, KeyMetaColor, KeyQueueFile,
		KeyRateInterval, KeyRateBurst, KeyConcurrency, KeyBaseURL,
		KeyHTTPTimeout, KeyUserAgent, KeyUgoiraAsWebp, KeyChunkSize,
		KeyLogFile, KeyLogLevel, KeyDebounceInterval,
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func writeEnv(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Empty(t, cfg.EnvFile)
	assert.Equal(t, "tags_to_check.jsonl", cfg.QueueFile)
	assert.Equal(t, time.Second, cfg.RateInterval)
	assert.Equal(t, 1, cfg.RateBurst)
	assert.Equal(t, 3, cfg.Concurrency)
	assert.Equal(t, 30*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, 200, cfg.ChunkSize)
	assert.False(t, cfg.UgoiraAsWebp)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, schema.DefaultTagColors, cfg.Colors)

	err = cfg.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingPaths))
	assert.Contains(t, err.Error(), KeySourcePath)
	assert.Contains(t, err.Error(), KeyLibraryPath)
}

func TestLoadEnvFile(t *testing.T) {
	clearEnv(t)

	path := writeEnv(t, `
DANBOORU_DOWNLOADER_SQLITE_LOCATION=/data/danbooru.sqlite
TAG_STUDIO_SQLITE_LOCATION="/library/.TagStudio/ts_library.sqlite"
ARTIST_COLOR=tagstudio-neon,neon-pink
RATE_LIMIT_INTERVAL=1500ms
SYNC_CONCURRENCY=2
UGOIRA_AS_WEBP=true
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, path, cfg.EnvFile)
	assert.Equal(t, "/data/danbooru.sqlite", cfg.SourcePath)
	assert.Equal(t, "/library/.TagStudio/ts_library.sqlite", cfg.LibraryPath)
	assert.Equal(t, schema.Color{Namespace: "tagstudio-neon", Slug: "neon-pink"}, cfg.Colors[schema.CategoryArtist])
	assert.Equal(t, schema.DefaultTagColors[schema.CategoryGeneral], cfg.Colors[schema.CategoryGeneral])
	assert.Equal(t, 1500*time.Millisecond, cfg.RateInterval)
	assert.Equal(t, 2, cfg.Concurrency)
	assert.True(t, cfg.UgoiraAsWebp)
}

func TestEnvironmentOverridesFile(t *testing.T) {
	clearEnv(t)
	path := writeEnv(t, "SYNC_CONCURRENCY=2\n")
	t.Setenv(KeyConcurrency, "5")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Concurrency)
}

func TestFlagOverridesEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv(KeyConcurrency, "5")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Int("concurrency", 3, "")
	require.NoError(t, flags.Parse([]string{"--concurrency=1"}))

	l := NewLoader(filepath.Join(t.TempDir(), ".env"))
	require.NoError(t, l.BindFlag(KeyConcurrency, flags.Lookup("concurrency")))

	cfg, err := l.Load()
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.Concurrency)

	assert.Error(t, l.BindFlag(KeyConcurrency, nil))
}

func TestUnsetFlagKeepsEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv(KeyConcurrency, "5")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Int("concurrency", 3, "")
	require.NoError(t, flags.Parse(nil))

	l := NewLoader(filepath.Join(t.TempDir(), ".env"))
	require.NoError(t, l.BindFlag(KeyConcurrency, flags.Lookup("concurrency")))

	cfg, err := l.Load()
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Concurrency)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		env  string
	}{
		{"bad color", "GENERAL_COLOR=blue\n"},
		{"zero concurrency", "SYNC_CONCURRENCY=0\n"},
		{"zero burst", "RATE_LIMIT_BURST=0\n"},
		{"negative interval", "RATE_LIMIT_INTERVAL=-1s\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			_, err := Load(writeEnv(t, tt.env))
			assert.Error(t, err)
		})
	}
}

func TestValidateLibrary(t *testing.T) {
	cfg := &Config{LibraryPath: "/library/ts_library.sqlite"}
	assert.NoError(t, cfg.ValidateLibrary())
	assert.Error(t, cfg.Validate(), "source path still missing")

	assert.ErrorIs(t, (&Config{}).ValidateLibrary(), ErrMissingPaths)
}

func TestQueuePath(t *testing.T) {
	tests := []struct {
		name    string
		queue   string
		library string
		want    string
	}{
		{"next to library", "tags_to_check.jsonl", "/lib/.TagStudio/ts_library.sqlite", "/lib/.TagStudio/tags_to_check.jsonl"},
		{"absolute", "/tmp/queue.jsonl", "/lib/.TagStudio/ts_library.sqlite", "/tmp/queue.jsonl"},
		{"no library", "tags_to_check.jsonl", "", "tags_to_check.jsonl"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{QueueFile: tt.queue, LibraryPath: tt.library}
			assert.Equal(t, filepath.FromSlash(tt.want), cfg.QueuePath())
		})
	}
}

func TestWriteEnvFileRoundTrip(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "conf", ".env")

	err := WriteEnvFile(path, map[string]string{
		KeySourcePath:  "/data/my downloads/danbooru.sqlite",
		KeyLibraryPath: `C:\Library\.TagStudio\ts_library.sqlite`,
		KeyMetaColor:   "tagstudio-standard,yellow",
		KeyLogFile:     "",
	})
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), KeyLogFile)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/data/my downloads/danbooru.sqlite", cfg.SourcePath)
	assert.Equal(t, `C:\Library\.TagStudio\ts_library.sqlite`, cfg.LibraryPath)
}

func TestQuoteEnv(t *testing.T) {
	assert.Equal(t, "plain", quoteEnv("plain"))
	assert.Equal(t, "'has space'", quoteEnv("has space"))
	assert.Equal(t, `"it's"`, quoteEnv("it's"))
}

func TestEnvValuesRoundTrip(t *testing.T) {
	clearEnv(t)
	path := writeEnv(t, `
DANBOORU_DOWNLOADER_SQLITE_LOCATION=/data/danbooru.sqlite
TAG_STUDIO_SQLITE_LOCATION=/library/ts_library.sqlite
META_COLOR=tagstudio-neon,neon-pink
RATE_LIMIT_INTERVAL=2s
WATCH_DEBOUNCE=5s
`)
	want, err := Load(path)
	require.NoError(t, err)

	out := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, WriteEnvFile(out, want.EnvValues()))

	got, err := Load(out)
	require.NoError(t, err)
	got.EnvFile = want.EnvFile
	assert.Equal(t, want, got)
}
