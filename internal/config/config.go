// Package config loads the server configuration. Later sources override
// earlier ones: built-in defaults, the YAML config file, a .env file and the
// OBJECTORY_* environment, then command-line flags.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/erazemk/objectory/internal/capture"
)

// Storage backends for the collection record.
const (
	StorageSQLite = "sqlite"
	StorageRedis  = "redis"
)

// Config holds the configuration of the Objectory server.
type Config struct {
	// Addr is the HTTP listen address.
	Addr string `yaml:"addr"`

	// DBPath is the SQLite database path. Posters and captures always live
	// here; the collection record does too unless Storage is redis.
	DBPath string `yaml:"db"`

	// LogFile is an optional file that receives a copy of all log output.
	LogFile string `yaml:"log"`

	// LogLevel is the minimum level logged (debug, info, warn, error).
	LogLevel string `yaml:"log_level"`

	// Storage selects the collection record backend: sqlite or redis.
	Storage string `yaml:"storage"`

	// RedisURL is used when Storage is redis.
	RedisURL string `yaml:"redis_url"`

	// AllowedOrigins lists the origins allowed to call the API and open
	// viewer connections from other sites.
	AllowedOrigins []string `yaml:"allowed_origins"`

	// ShareSecret signs public capture links. Generated and stored in the
	// database when empty.
	ShareSecret string `yaml:"share_secret"`

	// ShareTTL is how long a public capture link stays valid.
	ShareTTL time.Duration `yaml:"share_ttl"`

	// PublicURL is the externally visible base URL used in share links.
	PublicURL string `yaml:"public_url"`

	Capture capture.Config `yaml:"capture"`

	// ConfigPath is the config file that was read, if any.
	ConfigPath string `yaml:"-"`
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		Addr:      ":8080",
		DBPath:    "objectory.sqlite3",
		LogLevel:  "info",
		Storage:   StorageSQLite,
		RedisURL:  "redis://localhost:6379/0",
		ShareTTL:  7 * 24 * time.Hour,
		PublicURL: "http://localhost:8080",
		Capture:   capture.DefaultConfig(),
	}
}

// Load builds the configuration from args (without the program name). It
// returns flag.ErrHelp after printing usage when help was requested.
func Load(args []string) (*Config, error) {
	cfg := DefaultConfig()

	fs := flag.NewFlagSet("objectory", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var configPath string
	fs.StringVar(&configPath, "config", "", "")
	fs.StringVar(&configPath, "c", "", "")

	var envFile string
	fs.StringVar(&envFile, "env", ".env", "")
	fs.StringVar(&envFile, "e", ".env", "")

	var addr string
	fs.StringVar(&addr, "addr", "", "")
	fs.StringVar(&addr, "a", "", "")

	var dbPath string
	fs.StringVar(&dbPath, "db", "", "")
	fs.StringVar(&dbPath, "d", "", "")

	var logPath string
	fs.StringVar(&logPath, "log", "", "")
	fs.StringVar(&logPath, "l", "", "")

	var logLevel string
	fs.StringVar(&logLevel, "log-level", "", "")

	var storage string
	fs.StringVar(&storage, "storage", "", "")
	fs.StringVar(&storage, "s", "", "")

	var redisURL string
	fs.StringVar(&redisURL, "redis-url", "", "")

	var publicURL string
	fs.StringVar(&publicURL, "public-url", "", "")

	var captureDuration time.Duration
	fs.DurationVar(&captureDuration, "capture-duration", 0, "")

	fs.Usage = printUsage

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			fs.Usage()
		}
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected argument: %s", fs.Arg(0))
	}

	// A missing .env is normal; existing environment variables win.
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading %s: %w", envFile, err)
	}

	if configPath == "" {
		configPath = os.Getenv("OBJECTORY_CONFIG")
	}
	if configPath != "" {
		cfg.ConfigPath = expandPath(configPath)
		if err := cfg.loadFromFile(); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if addr != "" {
		cfg.Addr = addr
	}
	if dbPath != "" {
		cfg.DBPath = dbPath
	}
	if logPath != "" {
		cfg.LogFile = logPath
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if storage != "" {
		cfg.Storage = storage
	}
	if redisURL != "" {
		cfg.RedisURL = redisURL
	}
	if publicURL != "" {
		cfg.PublicURL = publicURL
	}
	if captureDuration > 0 {
		cfg.Capture.Duration = captureDuration
	}

	cfg.DBPath = expandPath(cfg.DBPath)
	cfg.LogFile = expandPath(cfg.LogFile)
	cfg.PublicURL = strings.TrimRight(cfg.PublicURL, "/")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that have a fixed set of choices.
func (c *Config) Validate() error {
	switch c.Storage {
	case StorageSQLite, StorageRedis:
	default:
		return fmt.Errorf("invalid storage %q (want %s or %s)", c.Storage, StorageSQLite, StorageRedis)
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.Capture.Duration < 0 || c.Capture.Tick < 0 {
		return errors.New("capture durations must not be negative")
	}
	return nil
}

// ParseLevel converts a level name to a slog.Level.
func ParseLevel(name string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return 0, fmt.Errorf("invalid log level %q", name)
	}
	return level, nil
}

func (c *Config) loadFromFile() error {
	data, err := os.ReadFile(c.ConfigPath)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, c)
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("OBJECTORY_ADDR"); v != "" {
		c.Addr = v
	}
	if v := os.Getenv("OBJECTORY_DB"); v != "" {
		c.DBPath = v
	}
	if v := os.Getenv("OBJECTORY_LOG"); v != "" {
		c.LogFile = v
	}
	if v := os.Getenv("OBJECTORY_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("OBJECTORY_STORAGE"); v != "" {
		c.Storage = v
	}
	if v := os.Getenv("OBJECTORY_REDIS_URL"); v != "" {
		c.RedisURL = v
	}
	if v := os.Getenv("OBJECTORY_ALLOWED_ORIGINS"); v != "" {
		c.AllowedOrigins = splitList(v)
	}
	if v := os.Getenv("OBJECTORY_SHARE_SECRET"); v != "" {
		c.ShareSecret = v
	}
	if v := os.Getenv("OBJECTORY_SHARE_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("OBJECTORY_SHARE_TTL: %w", err)
		}
		c.ShareTTL = d
	}
	if v := os.Getenv("OBJECTORY_PUBLIC_URL"); v != "" {
		c.PublicURL = v
	}
	if v := os.Getenv("OBJECTORY_CAPTURE_DURATION"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("OBJECTORY_CAPTURE_DURATION: %w", err)
		}
		c.Capture.Duration = d
	}
	if v := os.Getenv("OBJECTORY_CAPTURE_FPS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("OBJECTORY_CAPTURE_FPS: %w", err)
		}
		c.Capture.FPS = n
	}
	if v := os.Getenv("OBJECTORY_CAPTURE_SPEED_PERCENT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("OBJECTORY_CAPTURE_SPEED_PERCENT: %w", err)
		}
		c.Capture.SpeedPercent = n
	}
	if v := os.Getenv("OBJECTORY_CAPTURE_MIME_TYPE"); v != "" {
		c.Capture.MIMEType = v
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func expandPath(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(homeDir, path[1:])
}

func printUsage() {
	fmt.Fprint(os.Stdout, `Usage: objectory [flags]

Flags:
  -c, -config <path>         YAML config file (env: OBJECTORY_CONFIG)
  -e, -env <path>            .env file to load (default: .env)
  -a, -addr <host:port>      listen address (default: :8080)
  -d, -db <path>             SQLite database path (default: objectory.sqlite3)
  -l, -log <path>            log file path (default: no file, stdout/stderr only)
      -log-level <level>     debug, info, warn or error (default: info)
  -s, -storage <backend>     collection backend: sqlite or redis (default: sqlite)
      -redis-url <url>       Redis URL for the redis backend
      -public-url <url>      external base URL used in share links
      -capture-duration <d>  length of captured videos (default: 5s)
  -h, -help                  show this help and exit

Every setting can also be given as OBJECTORY_<NAME> in the environment,
for example OBJECTORY_STORAGE=redis or OBJECTORY_ALLOWED_ORIGINS=a,b.
`)
}
