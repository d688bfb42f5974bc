// Package config loads tagsync settings.
//
// Settings come from, in increasing priority: built-in defaults, a dotenv
// file (.env by default), the process environment, and command-line flags
// bound with BindFlag. Keys are the environment variable names.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/mschirtzinger/tagsync/internal/danbooru"
	"github.com/mschirtzinger/tagsync/internal/ratelimit"
	"github.com/mschirtzinger/tagsync/internal/tagstudio/queue"
	"github.com/mschirtzinger/tagsync/internal/tagstudio/schema"
	"github.com/mschirtzinger/tagsync/internal/tagstudio/source"
	tagsync "github.com/mschirtzinger/tagsync/internal/tagstudio/sync"
)

// DefaultEnvFile is the dotenv file read when none is given.
const DefaultEnvFile = ".env"

// Keys, named after the environment variables they are read from.
const (
	KeySourcePath       = "DANBOORU_DOWNLOADER_SQLITE_LOCATION"
	KeyLibraryPath      = "TAG_STUDIO_SQLITE_LOCATION"
	KeyArtistColor      = "ARTIST_COLOR"
	KeyCopyrightColor   = "COPYRIGHT_COLOR"
	KeyCharacterColor   = "CHARACTER_COLOR"
	KeyGeneralColor     = "GENERAL_COLOR"
	KeyMetaColor        = "META_COLOR"
	KeyQueueFile        = "TAGSYNC_QUEUE_FILE"
	KeyRateInterval     = "RATE_LIMIT_INTERVAL"
	KeyRateBurst        = "RATE_LIMIT_BURST"
	KeyConcurrency      = "SYNC_CONCURRENCY"
	KeyBaseURL          = "DANBOORU_BASE_URL"
	KeyHTTPTimeout      = "HTTP_TIMEOUT"
	KeyUserAgent        = "USER_AGENT"
	KeyUgoiraAsWebp     = "UGOIRA_AS_WEBP"
	KeyChunkSize        = "CHUNK_SIZE"
	KeyLogFile          = "LOG_FILE"
	KeyLogLevel         = "LOG_LEVEL"
	KeyDebounceInterval = "WATCH_DEBOUNCE"
)

// colorKeys maps each category to the key holding its tag color.
var colorKeys = map[schema.Category]string{
	schema.CategoryArtist:    KeyArtistColor,
	schema.CategoryCopyright: KeyCopyrightColor,
	schema.CategoryCharacter: KeyCharacterColor,
	schema.CategoryGeneral:   KeyGeneralColor,
	schema.CategoryMeta:      KeyMetaColor,
}

// ErrMissingPaths is returned by Validate when a database path is unset.
var ErrMissingPaths = errors.New("required database locations are not set")

// Config is the effective configuration.
type Config struct {
	SourcePath  string `yaml:"source_path"`
	LibraryPath string `yaml:"library_path"`
	QueueFile   string `yaml:"queue_file"`

	Colors map[schema.Category]schema.Color `yaml:"colors"`

	RateInterval time.Duration `yaml:"rate_limit_interval"`
	RateBurst    int           `yaml:"rate_limit_burst"`
	Concurrency  int           `yaml:"concurrency"`

	BaseURL     string        `yaml:"danbooru_base_url"`
	HTTPTimeout time.Duration `yaml:"http_timeout"`
	UserAgent   string        `yaml:"user_agent"`

	UgoiraAsWebp     bool          `yaml:"ugoira_as_webp"`
	ChunkSize        int           `yaml:"chunk_size"`
	DebounceInterval time.Duration `yaml:"watch_debounce"`

	LogFile  string `yaml:"log_file,omitempty"`
	LogLevel string `yaml:"log_level"`

	// EnvFile is the dotenv file that was read, empty when none was found.
	EnvFile string `yaml:"env_file,omitempty"`
}

// Loader reads configuration through a private viper instance.
type Loader struct {
	v       *viper.Viper
	envFile string
}

// NewLoader creates a loader reading envFile (DefaultEnvFile when empty).
func NewLoader(envFile string) *Loader {
	if envFile == "" {
		envFile = DefaultEnvFile
	}

	v := viper.New()
	v.SetDefault(KeyQueueFile, queue.DefaultFileName)
	v.SetDefault(KeyRateInterval, ratelimit.DefaultInterval)
	v.SetDefault(KeyRateBurst, 1)
	v.SetDefault(KeyConcurrency, tagsync.DefaultConcurrency)
	v.SetDefault(KeyBaseURL, danbooru.DefaultBaseURL)
	v.SetDefault(KeyHTTPTimeout, danbooru.DefaultTimeout)
	v.SetDefault(KeyUserAgent, danbooru.DefaultUserAgent)
	v.SetDefault(KeyUgoiraAsWebp, false)
	v.SetDefault(KeyChunkSize, source.DefaultChunkSize)
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyDebounceInterval, 2*time.Second)
	for cat, key := range colorKeys {
		v.SetDefault(key, schema.DefaultTagColors[cat].String())
	}

	// Process environment wins over the dotenv file.
	v.AutomaticEnv()

	return &Loader{v: v, envFile: envFile}
}

// BindFlag makes a command-line flag override key when the flag is set.
func (l *Loader) BindFlag(key string, flag *pflag.Flag) error {
	if flag == nil {
		return fmt.Errorf("no flag to bind for %s", key)
	}
	return l.v.BindPFlag(key, flag)
}

// Load reads the dotenv file, if present, and returns the effective config.
func (l *Loader) Load() (*Config, error) {
	cfg := &Config{}

	if _, err := os.Stat(l.envFile); err == nil {
		l.v.SetConfigFile(l.envFile)
		l.v.SetConfigType("env")
		if err := l.v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", l.envFile, err)
		}
		cfg.EnvFile = l.envFile
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to stat %s: %w", l.envFile, err)
	}

	cfg.SourcePath = l.v.GetString(KeySourcePath)
	cfg.LibraryPath = l.v.GetString(KeyLibraryPath)
	cfg.QueueFile = l.v.GetString(KeyQueueFile)
	cfg.RateInterval = l.v.GetDuration(KeyRateInterval)
	cfg.RateBurst = l.v.GetInt(KeyRateBurst)
	cfg.Concurrency = l.v.GetInt(KeyConcurrency)
	cfg.BaseURL = l.v.GetString(KeyBaseURL)
	cfg.HTTPTimeout = l.v.GetDuration(KeyHTTPTimeout)
	cfg.UserAgent = l.v.GetString(KeyUserAgent)
	cfg.UgoiraAsWebp = l.v.GetBool(KeyUgoiraAsWebp)
	cfg.ChunkSize = l.v.GetInt(KeyChunkSize)
	cfg.DebounceInterval = l.v.GetDuration(KeyDebounceInterval)
	cfg.LogFile = l.v.GetString(KeyLogFile)
	cfg.LogLevel = l.v.GetString(KeyLogLevel)

	cfg.Colors = make(map[schema.Category]schema.Color, len(colorKeys))
	for cat, key := range colorKeys {
		raw := l.v.GetString(key)
		if raw == "" {
			cfg.Colors[cat] = schema.DefaultTagColors[cat]
			continue
		}
		c, err := schema.ParseColor(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		cfg.Colors[cat] = c
	}

	if cfg.Concurrency < 1 {
		return nil, fmt.Errorf("%s must be at least 1, got %d", KeyConcurrency, cfg.Concurrency)
	}
	if cfg.RateBurst < 1 {
		return nil, fmt.Errorf("%s must be at least 1, got %d", KeyRateBurst, cfg.RateBurst)
	}
	if cfg.RateInterval < 0 {
		return nil, fmt.Errorf("%s cannot be negative", KeyRateInterval)
	}

	return cfg, nil
}

// Load reads configuration from envFile and the environment.
func Load(envFile string) (*Config, error) {
	return NewLoader(envFile).Load()
}

// Validate reports missing database locations.
func (c *Config) Validate() error {
	var missing []string
	if c.SourcePath == "" {
		missing = append(missing, KeySourcePath)
	}
	if c.LibraryPath == "" {
		missing = append(missing, KeyLibraryPath)
	}
	if len(missing) == 0 {
		return nil
	}

	var b strings.Builder
	b.WriteString("please set the necessary values in your .env file:")
	for _, key := range missing {
		fmt.Fprintf(&b, "\n  '%s' needs to be set.", key)
	}
	return fmt.Errorf("%w: %s", ErrMissingPaths, b.String())
}

// ValidateLibrary is Validate for commands that only need the TagStudio library.
func (c *Config) ValidateLibrary() error {
	if c.LibraryPath == "" {
		return fmt.Errorf("%w: please set the necessary values in your .env file:\n  '%s' needs to be set.",
			ErrMissingPaths, KeyLibraryPath)
	}
	return nil
}

// QueuePath resolves the queue file. A relative queue file lives next to
// the TagStudio library.
func (c *Config) QueuePath() string {
	if filepath.IsAbs(c.QueueFile) || c.LibraryPath == "" {
		return c.QueueFile
	}
	return filepath.Join(filepath.Dir(c.LibraryPath), c.QueueFile)
}

// EnvValues returns c as dotenv values keyed like the environment.
// Unset optional values are empty.
func (c *Config) EnvValues() map[string]string {
	values := map[string]string{
		KeySourcePath:       c.SourcePath,
		KeyLibraryPath:      c.LibraryPath,
		KeyQueueFile:        c.QueueFile,
		KeyRateInterval:     c.RateInterval.String(),
		KeyRateBurst:        strconv.Itoa(c.RateBurst),
		KeyConcurrency:      strconv.Itoa(c.Concurrency),
		KeyBaseURL:          c.BaseURL,
		KeyHTTPTimeout:      c.HTTPTimeout.String(),
		KeyUserAgent:        c.UserAgent,
		KeyUgoiraAsWebp:     strconv.FormatBool(c.UgoiraAsWebp),
		KeyChunkSize:        strconv.Itoa(c.ChunkSize),
		KeyDebounceInterval: c.DebounceInterval.String(),
		KeyLogFile:          c.LogFile,
		KeyLogLevel:         c.LogLevel,
	}
	for cat, key := range colorKeys {
		if color, ok := c.Colors[cat]; ok {
			values[key] = color.String()
		}
	}
	return values
}

// WriteEnvFile writes values as a dotenv file, keys sorted.
func WriteEnvFile(path string, values map[string]string) error {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		v := values[k]
		if v == "" {
			continue
		}
		fmt.Fprintf(&b, "%s=%s\n", k, quoteEnv(v))
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(path, []byte(b.String()), 0600); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// quoteEnv quotes a dotenv value when needed. Single quotes keep
// backslashes in Windows paths literal.
func quoteEnv(v string) string {
	if !strings.ContainsAny(v, " #\"'\\=") {
		return v
	}
	if !strings.Contains(v, "'") {
		return "'" + v + "'"
	}
	return strconv.Quote(v)
}
