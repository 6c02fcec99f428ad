package jobcue

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

const (
	configName   = "config"
	configType   = "yaml"
	envPrefix    = "JOBCUE"
	sqliteFile   = "jobcue.db"
	badgerFolder = "badger"
)

// Store drivers accepted in store.driver.
const (
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
	DriverBadger = "badger"
)

// TLS fingerprints accepted in http.tls_fingerprint.
const (
	FingerprintNone   = "none"
	FingerprintChrome = "chrome"
)

type HTTPConfig struct {
	Timeout        time.Duration `mapstructure:"timeout" validate:"gte=0"`
	TLSFingerprint string        `mapstructure:"tls_fingerprint" validate:"oneof=none chrome"`
}

type QueueConfig struct {
	MaxRetries int           `mapstructure:"max_retries" validate:"gte=1"`
	MaxAge     time.Duration `mapstructure:"max_age" validate:"gt=0"`
	Exclude    []string      `mapstructure:"exclude"` // path patterns that are never deferred
}

type DrainConfig struct {
	ReplayRate  float64 `mapstructure:"replay_rate" validate:"gte=0"` // replays per second, 0 is unlimited
	ReplayBurst int     `mapstructure:"replay_burst" validate:"gte=0"`
}

type ConnectivityConfig struct {
	ProbeURL string        `mapstructure:"probe_url" validate:"omitempty,url"`
	Interval time.Duration `mapstructure:"interval" validate:"gte=0"`
}

type StoreConfig struct {
	Driver        string `mapstructure:"driver" validate:"oneof=sqlite redis badger"`
	Path          string `mapstructure:"path"`
	RedisAddr     string `mapstructure:"redis_addr" validate:"required_if=Driver redis"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db" validate:"gte=0"`
	RedisPrefix   string `mapstructure:"redis_prefix"`
}

// Config is the client configuration, backed by config.yaml in Dir when
// loaded with LoadConfig. Every key can be overridden with a JOBCUE_
// prefixed environment variable, e.g. JOBCUE_QUEUE_MAX_RETRIES.
type Config struct {
	viper        *viper.Viper
	Dir          string             `mapstructure:"-"`
	BaseURL      string             `mapstructure:"base_url" validate:"omitempty,url"`
	UserAgent    string             `mapstructure:"user_agent"`
	HTTP         HTTPConfig         `mapstructure:"http"`
	Queue        QueueConfig        `mapstructure:"queue"`
	Drain        DrainConfig        `mapstructure:"drain"`
	Connectivity ConnectivityConfig `mapstructure:"connectivity"`
	Store        StoreConfig        `mapstructure:"store"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func setDefaults(v *viper.Viper) {
	v.SetDefault("base_url", "")
	v.SetDefault("user_agent", "jobcue/1.0")
	v.SetDefault("http.timeout", 30*time.Second)
	v.SetDefault("http.tls_fingerprint", FingerprintNone)
	v.SetDefault("queue.max_retries", 3)
	v.SetDefault("queue.max_age", 24*time.Hour)
	v.SetDefault("queue.exclude", []string{"^/auth/"})
	v.SetDefault("drain.replay_rate", 0)
	v.SetDefault("drain.replay_burst", 1)
	v.SetDefault("connectivity.probe_url", "")
	v.SetDefault("connectivity.interval", 15*time.Second)
	v.SetDefault("store.driver", DriverSQLite)
	v.SetDefault("store.path", "")
	v.SetDefault("store.redis_addr", "")
	v.SetDefault("store.redis_password", "")
	v.SetDefault("store.redis_db", 0)
	v.SetDefault("store.redis_prefix", "jobcue:")
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// DefaultConfig returns the defaults merged with environment overrides,
// without reading or writing any file.
func DefaultConfig() (*Config, error) {
	cfg := &Config{viper: newViper()}
	if err := cfg.viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config to struct : %w", err)
	}
	return cfg, nil
}

// LoadConfig reads config.yaml from dir, creating the directory and a file
// holding the defaults on first run.
func LoadConfig(dir string) (*Config, error) {
	_, err := os.ReadDir(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("checking if directory exists %s : %w", dir, err)
		}
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("creating config dir %s : %w", dir, err)
		}
	}

	v := newViper()
	v.SetConfigName(configName)
	v.SetConfigType(configType)
	v.AddConfigPath(dir)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file : %w", err)
		}
		if err := v.SafeWriteConfig(); err != nil {
			return nil, fmt.Errorf("writing config file : %w", err)
		}
	}

	cfg := &Config{viper: v, Dir: dir}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config to struct : %w", err)
	}
	return cfg, nil
}

// Validate checks the values against their constraints.
func (cfg *Config) Validate() error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("validating config : %w", err)
	}
	return nil
}

// Set updates key, validates the result and persists it when the config is
// backed by a file.
func (cfg *Config) Set(key string, value any) error {
	if cfg.viper == nil {
		cfg.viper = newViper()
	}
	previous := cfg.viper.Get(key)
	cfg.viper.Set(key, value)

	updated := &Config{viper: cfg.viper, Dir: cfg.Dir}
	err := cfg.viper.Unmarshal(updated)
	if err != nil {
		err = fmt.Errorf("unmarshalling config to struct : %w", err)
	} else {
		err = updated.Validate()
	}
	if err != nil {
		cfg.viper.Set(key, previous)
		return err
	}
	*cfg = *updated

	if cfg.Dir == "" {
		return nil
	}
	if err := cfg.viper.WriteConfigAs(filepath.Join(cfg.Dir, configName+"."+configType)); err != nil {
		return fmt.Errorf("saving configuration : %w", err)
	}
	return nil
}

// Get returns the raw value for key.
func (cfg *Config) Get(key string) any {
	if cfg.viper == nil {
		return nil
	}
	return cfg.viper.Get(key)
}

// Keys lists every known configuration key.
func (cfg *Config) Keys() []string {
	if cfg.viper == nil {
		return nil
	}
	return cfg.viper.AllKeys()
}

// storePath resolves store.path, defaulting to a location under Dir.
func (cfg *Config) storePath() (string, error) {
	if cfg.Store.Path != "" {
		return cfg.Store.Path, nil
	}
	if cfg.Dir == "" {
		return "", errors.New("store.path is required without a config dir")
	}
	switch cfg.Store.Driver {
	case DriverBadger:
		return filepath.Join(cfg.Dir, badgerFolder), nil
	default:
		return filepath.Join(cfg.Dir, sqliteFile), nil
	}
}
