package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/edgeflare/pgcrud/pkg/events"
	"github.com/edgeflare/pgcrud/pkg/httputil/middleware"
	"github.com/edgeflare/pgcrud/pkg/query"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Version is set at build time with -ldflags "-X .../pkg/config.Version=...".
var Version = "dev"

const (
	CacheMemory = "memory"
	CacheRedis  = "redis"
	CacheNone   = "none"
)

// Config holds application-wide configuration
type Config struct {
	Server    ServerConfig            `mapstructure:"server"`
	Databases []DatabaseConfig        `mapstructure:"databases"`
	Entities  map[string]EntityConfig `mapstructure:"entities"`
	Cache     CacheConfig             `mapstructure:"cache"`
	Events    *events.NATSConfig      `mapstructure:"events"`
	Metrics   MetricsConfig           `mapstructure:"metrics"`
	LogLevel  string                  `mapstructure:"logLevel"`
}

type ServerConfig struct {
	ListenAddr      string                 `mapstructure:"listenAddr"`
	BaseURL         string                 `mapstructure:"baseURL"`
	ReadTimeout     time.Duration          `mapstructure:"readTimeout"`
	WriteTimeout    time.Duration          `mapstructure:"writeTimeout"`
	ShutdownTimeout time.Duration          `mapstructure:"shutdownTimeout"`
	CORS            middleware.CORSOptions `mapstructure:"cors"`
	TLS             TLSConfig              `mapstructure:"tls"`
}

// TLSConfig enables HTTPS when both files are set.
type TLSConfig struct {
	CertFile string `mapstructure:"certFile"`
	KeyFile  string `mapstructure:"keyFile"`
}

// DatabaseConfig names a connection pool. The first database is the default
// for entities that do not name one.
type DatabaseConfig struct {
	Name           string        `mapstructure:"name"`
	ConnString     string        `mapstructure:"connString"`
	ConnectTimeout time.Duration `mapstructure:"connectTimeout"`
	// Schemas limits catalog introspection; empty loads every user schema.
	Schemas []string `mapstructure:"schemas"`
}

// EntityConfig exposes one table. Without an explicit Schema the table is
// introspected from the database.
type EntityConfig struct {
	Table            string              `mapstructure:"table"`
	Database         string              `mapstructure:"database"`
	Path             string              `mapstructure:"path"`
	SoftDeleteColumn string              `mapstructure:"softDeleteColumn"`
	PrimaryColumns   []string            `mapstructure:"primaryColumns"`
	Routes           []string            `mapstructure:"routes"`
	Query            query.QueryParams   `mapstructure:"query"`
	Schema           *query.SchemaConfig `mapstructure:"schema"`
}

type CacheConfig struct {
	Backend string        `mapstructure:"backend"`
	TTL     time.Duration `mapstructure:"ttl"`
	Redis   RedisConfig   `mapstructure:"redis"`
}

type RedisConfig struct {
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	Namespace string `mapstructure:"namespace"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
	Path    string `mapstructure:"path"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.listenAddr", ":8080")
	v.SetDefault("server.readTimeout", 30*time.Second)
	v.SetDefault("server.writeTimeout", 30*time.Second)
	v.SetDefault("server.shutdownTimeout", 10*time.Second)
	v.SetDefault("cache.backend", CacheMemory)
	v.SetDefault("cache.ttl", time.Minute)
	v.SetDefault("cache.redis.namespace", "pgcrud")
	v.SetDefault("metrics.addr", ":9100")
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("logLevel", "info")
}

// Load reads config from file or environment. Environment variables are
// prefixed with PGCRUD_ and use underscores for nesting, as in
// PGCRUD_SERVER_LISTENADDR.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("pgcrud")
		v.SetConfigType("yaml")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config"))
		}
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("PGCRUD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		query.DecodeHook(),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks references between sections. Entity queries and schemas
// are checked later against the loaded tables.
func (c *Config) Validate() error {
	if (c.Server.TLS.CertFile == "") != (c.Server.TLS.KeyFile == "") {
		return errors.New("config: server.tls needs both certFile and keyFile")
	}

	switch c.Cache.Backend {
	case CacheMemory, CacheRedis, CacheNone:
	default:
		return fmt.Errorf("config: unknown cache backend %q", c.Cache.Backend)
	}

	names := make(map[string]bool, len(c.Databases))
	for i, db := range c.Databases {
		if db.Name == "" {
			return fmt.Errorf("config: databases[%d]: name is required", i)
		}
		if names[db.Name] {
			return fmt.Errorf("config: database %q declared twice", db.Name)
		}
		names[db.Name] = true
	}

	for name, e := range c.Entities {
		if e.Database != "" && !names[e.Database] {
			return fmt.Errorf("config: entity %q: unknown database %q", name, e.Database)
		}
		if e.Schema == nil && len(c.Databases) == 0 {
			return fmt.Errorf("config: entity %q: no database to introspect", name)
		}
	}
	return nil
}

// TableName is the table an entity is served from; it defaults to the
// entity's name.
func (e EntityConfig) TableName(entity string) string {
	if e.Schema != nil && e.Schema.Table != "" {
		return e.Schema.Table
	}
	if e.Table != "" {
		return e.Table
	}
	return entity
}
