package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/edgeflare/pgcrud/pkg/query"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
server:
  listenAddr: ":8081"
  cors:
    allowedOrigins: ["https://app.example.com"]
databases:
  - name: main
    connString: postgres://localhost/app
    connectTimeout: 30s
cache:
  backend: redis
  ttl: 5m
  redis:
    addr: localhost:6379
    db: 2
events:
  url: nats://localhost:4222
  stream: CRUD
metrics:
  enabled: true
entities:
  users:
    path: people
    routes: [findAll, findById]
    query:
      limit: 10
      sort:
        - field: name
          order: ASC
      filter:
        - field: age
          operator: $between
          value: [18, 30]
  tags:
    schema:
      table: tags
      columns: [id, label]
      primaryColumns: [id]
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pgcrud.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, sample))
	require.NoError(t, err)

	assert.Equal(t, ":8081", cfg.Server.ListenAddr)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, []string{"https://app.example.com"}, cfg.Server.CORS.AllowedOrigins)

	require.Len(t, cfg.Databases, 1)
	assert.Equal(t, 30*time.Second, cfg.Databases[0].ConnectTimeout)

	assert.Equal(t, CacheRedis, cfg.Cache.Backend)
	assert.Equal(t, 5*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, 2, cfg.Cache.Redis.DB)
	assert.Equal(t, "pgcrud", cfg.Cache.Redis.Namespace)

	require.NotNil(t, cfg.Events)
	assert.Equal(t, "CRUD", cfg.Events.Stream)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)

	users := cfg.Entities["users"]
	assert.Equal(t, "people", users.Path)
	assert.Equal(t, []string{"findAll", "findById"}, users.Routes)
	assert.Equal(t, 10, *users.Query.Limit)
	assert.Equal(t, []query.SortSpec{{Field: "name", Order: query.SortAsc}}, users.Query.Sort)
	require.Len(t, users.Query.Filter, 1)
	assert.Equal(t, query.OpBetween, users.Query.Filter[0].Operator)
	assert.Equal(t, 2, users.Query.Filter[0].Value.Len())
	assert.Equal(t, "users", users.TableName("users"))

	tags := cfg.Entities["tags"]
	require.NotNil(t, tags.Schema)
	schema, err := tags.Schema.Build()
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "label"}, schema.Columns())
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("PGCRUD_SERVER_LISTENADDR", ":9999")
	t.Setenv("PGCRUD_CACHE_BACKEND", "none")
	t.Setenv("PGCRUD_SERVER_READTIMEOUT", "10s")
	t.Setenv("PGCRUD_CACHE_TTL", "90s")

	cfg, err := Load(writeConfig(t, sample))
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.Server.ListenAddr)
	assert.Equal(t, CacheNone, cfg.Cache.Backend)
	assert.Equal(t, 10*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 90*time.Second, cfg.Cache.TTL)
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "logLevel: debug\n"))
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.ListenAddr)
	assert.Equal(t, CacheMemory, cfg.Cache.Backend)
	assert.Equal(t, time.Minute, cfg.Cache.TTL)
	assert.Nil(t, cfg.Events)
	assert.False(t, cfg.Metrics.Enabled)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown cache backend", "cache:\n  backend: memcached\n"},
		{"unnamed database", "databases:\n  - connString: postgres://x\n"},
		{"duplicate database", "databases:\n  - name: a\n  - name: a\n"},
		{"unknown database", "databases:\n  - name: a\nentities:\n  users:\n    database: b\n"},
		{"nothing to introspect", "entities:\n  users:\n    table: users\n"},
		{"invalid boolean", "entities:\n  users:\n    query:\n      pagination: maybe\n"},
		{"malformed yaml", "server: [\n"},
		{"half of a key pair", "server:\n  tls:\n    certFile: server.crt\n"},
		{"invalid duration", "cache:\n  ttl: soon\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err, "explicit config file must exist")
}

func TestTableName(t *testing.T) {
	assert.Equal(t, "users", EntityConfig{}.TableName("users"))
	assert.Equal(t, "app.people", EntityConfig{Table: "app.people"}.TableName("users"))
	assert.Equal(t, "members", EntityConfig{Table: "x", Schema: &query.SchemaConfig{Table: "members"}}.TableName("users"))
}
