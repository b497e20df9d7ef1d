// Package config loads application configuration from a YAML file,
// environment variables, and defaults, in that order of precedence
// (environment wins). Every key has a default, so a missing file is not
// an error.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config is the full application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Log       LogConfig       `mapstructure:"log"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`

	v *viper.Viper
}

// ServerConfig configures the HTTP listener
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// Addr returns the host:port listen address
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig configures the store and its connection pool
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	URL             string        `mapstructure:"url"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// CacheConfig configures the record cache
type CacheConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Backend string        `mapstructure:"backend"`
	TTL     time.Duration `mapstructure:"ttl"`
	Redis   RedisConfig   `mapstructure:"redis"`
}

// RedisConfig configures the redis cache backend
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// LogConfig configures logging
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ZapLevel parses the configured level
func (l LogConfig) ZapLevel() (zapcore.Level, error) {
	return zapcore.ParseLevel(l.Level)
}

// SchedulerConfig configures the cyclic scheduler
type SchedulerConfig struct {
	Tick time.Duration `mapstructure:"tick"`
}

// Load reads configuration from the given file path, or searches the
// working directory for strata.yaml when path is empty. Environment
// variables override file values with a STRATA_ prefix and underscores
// for dots: STRATA_SERVER_PORT overrides server.port.
func Load(path string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("database.driver", "sqlite3")
	v.SetDefault("database.url", "database.db")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("cache.enabled", false)
	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.ttl", 5*time.Minute)
	v.SetDefault("cache.redis.addr", "localhost:6379")
	v.SetDefault("cache.redis.password", "")
	v.SetDefault("cache.redis.db", 0)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("scheduler.tick", time.Second)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("strata")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	// Enable environment variable support
	v.SetEnvPrefix("STRATA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// A named file must exist; the default search may come up empty.
		if path != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg, err := unmarshal(v)
	if err != nil {
		return nil, err
	}
	cfg.v = v
	return cfg, nil
}

func unmarshal(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Watch re-reads the configuration whenever its file changes, applies the
// new log level to level, and passes the fresh configuration to onChange
// when it is non-nil. A changed file that no longer validates is logged
// and ignored, keeping the last good configuration. Only the log level
// hot-reloads; registered entities and routes never do.
func (c *Config) Watch(logger *zap.Logger, level zap.AtomicLevel, onChange func(*Config)) error {
	if c.v == nil || c.v.ConfigFileUsed() == "" {
		return fmt.Errorf("no configuration file to watch")
	}

	c.v.OnConfigChange(func(e fsnotify.Event) {
		fresh, err := unmarshal(c.v)
		if err != nil {
			logger.Warn("ignoring config change",
				zap.String("file", e.Name),
				zap.Error(err))
			return
		}
		fresh.v = c.v

		lvl, err := fresh.Log.ZapLevel()
		if err == nil && lvl != level.Level() {
			logger.Info("log level changed",
				zap.String("from", level.Level().String()),
				zap.String("to", lvl.String()))
			level.SetLevel(lvl)
		}
		if onChange != nil {
			onChange(fresh)
		}
	})
	c.v.WatchConfig()
	return nil
}

// validate rejects values the application cannot start with
func validate(cfg *Config) error {
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got: %d", cfg.Server.Port)
	}
	switch cfg.Database.Driver {
	case "sqlite3", "pgx":
	default:
		return fmt.Errorf("database.driver must be \"sqlite3\" or \"pgx\", got: %s", cfg.Database.Driver)
	}
	switch cfg.Cache.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("cache.backend must be \"memory\" or \"redis\", got: %s", cfg.Cache.Backend)
	}
	switch cfg.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("log.format must be \"json\" or \"console\", got: %s", cfg.Log.Format)
	}
	if _, err := cfg.Log.ZapLevel(); err != nil {
		return fmt.Errorf("log.level %q is not a valid level", cfg.Log.Level)
	}
	if cfg.Scheduler.Tick <= 0 {
		return fmt.Errorf("scheduler.tick must be positive, got: %s", cfg.Scheduler.Tick)
	}
	return nil
}
