package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Store drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

var (
	ErrDBURLMissing       = errors.New("DB_URL required")
	ErrSQLitePathMissing  = errors.New("SQLITE_PATH required when STORE_DRIVER=sqlite")
	ErrUnknownDriver      = errors.New(`STORE_DRIVER must be "postgres" or "sqlite"`)
	ErrAPIKeysFormat      = errors.New(`API_KEYS must be "tenant:key,tenant:key"`)
	ErrInvalidSessionTTL  = errors.New("SESSION_TTL must be a positive duration")
	ErrInvalidSignalLimit = errors.New("SIGNAL_RATE and SIGNAL_BURST must be positive")
)

// Config contains runtime configuration required by the service.
type Config struct {
	HTTPAddr    string            `yaml:"httpAddr"`
	StoreDriver string            `yaml:"storeDriver"`
	DBURL       string            `yaml:"dbURL"`
	SQLitePath  string            `yaml:"sqlitePath"`
	APIKeys     map[string]string `yaml:"apiKeys"` // apiKey -> tenantID

	RedisURL    string `yaml:"redisURL"`
	RedisStream string `yaml:"redisStream"`
	RedisMaxLen int64  `yaml:"redisMaxLen"`

	LogLevel  string `yaml:"logLevel"`
	LogFormat string `yaml:"logFormat"`

	SessionTTL    time.Duration `yaml:"sessionTTL"`
	SignalRate    float64       `yaml:"signalRate"` // batches per second per session
	SignalBurst   int           `yaml:"signalBurst"`
	RootElementID string        `yaml:"rootElementID"`
}

// Default returns the baseline configuration before file and environment overrides.
func Default() Config {
	return Config{
		HTTPAddr:      ":8080",
		StoreDriver:   DriverPostgres,
		APIKeys:       map[string]string{},
		RedisStream:   "analytics:events",
		LogLevel:      "info",
		LogFormat:     "json",
		SessionTTL:    30 * time.Minute,
		SignalRate:    20,
		SignalBurst:   40,
		RootElementID: "root",
	}
}

// Load builds the configuration: defaults, then the YAML file named by
// CONFIG_FILE (if set), then environment variables.
// API_KEYS format: "tenant1:key1,tenant2:key2"
func Load() (Config, error) {
	cfg := Default()

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	setString(&cfg.HTTPAddr, "HTTP_ADDR")
	setString(&cfg.StoreDriver, "STORE_DRIVER")
	setString(&cfg.DBURL, "DB_URL")
	setString(&cfg.SQLitePath, "SQLITE_PATH")
	setString(&cfg.RedisURL, "REDIS_URL")
	setString(&cfg.RedisStream, "REDIS_STREAM")
	setString(&cfg.LogLevel, "LOG_LEVEL")
	setString(&cfg.LogFormat, "LOG_FORMAT")
	setString(&cfg.RootElementID, "ROOT_ELEMENT_ID")

	if v := env("REDIS_MAXLEN"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return Config{}, errors.Wrap(err, "REDIS_MAXLEN")
		}
		cfg.RedisMaxLen = n
	}
	if v := env("SESSION_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, errors.Wrap(ErrInvalidSessionTTL, err.Error())
		}
		cfg.SessionTTL = d
	}
	if v := env("SIGNAL_RATE"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return Config{}, errors.Wrap(ErrInvalidSignalLimit, err.Error())
		}
		cfg.SignalRate = f
	}
	if v := env("SIGNAL_BURST"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, errors.Wrap(ErrInvalidSignalLimit, err.Error())
		}
		cfg.SignalBurst = n
	}

	if raw := env("API_KEYS"); raw != "" {
		keys, err := parseAPIKeys(raw)
		if err != nil {
			return Config{}, err
		}
		cfg.APIKeys = keys
	}

	// Local dev fallback so the service runs out-of-the-box.
	if len(cfg.APIKeys) == 0 {
		cfg.APIKeys = map[string]string{"tenant-key-123": "tenant1"}
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.StoreDriver {
	case DriverPostgres:
		if c.DBURL == "" {
			return ErrDBURLMissing
		}
	case DriverSQLite:
		if c.SQLitePath == "" {
			return ErrSQLitePathMissing
		}
	default:
		return ErrUnknownDriver
	}
	if c.SessionTTL <= 0 {
		return ErrInvalidSessionTTL
	}
	if c.SignalRate <= 0 || c.SignalBurst <= 0 {
		return ErrInvalidSignalLimit
	}
	return nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "read config file %q", path)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return errors.Wrapf(err, "parse config file %q", path)
	}
	return nil
}

func parseAPIKeys(raw string) (map[string]string, error) {
	apiKeys := map[string]string{}
	for _, p := range strings.Split(raw, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		parts := strings.SplitN(p, ":", 2)
		if len(parts) != 2 {
			return nil, ErrAPIKeysFormat
		}
		tenant := strings.TrimSpace(parts[0])
		key := strings.TrimSpace(parts[1])
		if tenant == "" || key == "" {
			return nil, ErrAPIKeysFormat
		}
		apiKeys[key] = tenant
	}
	return apiKeys, nil
}

func env(name string) string {
	return strings.TrimSpace(os.Getenv(name))
}

func setString(dst *string, name string) {
	if v := env(name); v != "" {
		*dst = v
	}
}
