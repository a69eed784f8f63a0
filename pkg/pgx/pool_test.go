package pgx

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/edgeflare/pgcrud/internal/testutil/pgtest"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestPoolManagerWithoutDatabase(t *testing.T) {
	pm := NewPoolManager(nil)
	assert.Empty(t, pm.List())

	_, err := pm.Get("")
	assert.ErrorIs(t, err, ErrPoolNotFound)

	err = pm.Add(context.Background(), Pool{Name: "empty"})
	assert.Error(t, err)
	assert.Empty(t, pm.List())
}

func TestPoolManagerRetriesUnreachableDatabase(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	pm := NewPoolManager(zap.New(core))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := pm.Add(ctx, Pool{
		Name:           "down",
		ConnString:     "postgres://nobody@127.0.0.1:1/none?connect_timeout=1",
		ConnectTimeout: 1500 * time.Millisecond,
	})
	require.Error(t, err)
	assert.NotEmpty(t, logs.FilterMessage("database not reachable, retrying").All())
	assert.Empty(t, pm.List())
}

func TestPoolManager(t *testing.T) {
	ctx := context.Background()
	connString := pgtest.ConnString(t)

	t.Run("Add", func(t *testing.T) {
		pm := NewPoolManager(nil)
		t.Cleanup(pm.Close)

		require.NoError(t, pm.Add(ctx, Pool{Name: "primary", ConnString: connString}))
		require.NoError(t, pm.Add(ctx, Pool{Name: "replica", ConnString: connString, ConnectTimeout: time.Second}))
		assert.Equal(t, []string{"primary", "replica"}, pm.List())

		err := pm.Add(ctx, Pool{Name: "primary", ConnString: connString})
		assert.ErrorIs(t, err, ErrPoolAlreadyExists)

		poolConfig, err := pgxpool.ParseConfig(connString)
		require.NoError(t, err)
		require.NoError(t, pm.Add(ctx, Pool{Name: "config-based", Config: poolConfig}))
		assert.Contains(t, pm.List(), "config-based")
	})

	t.Run("Get", func(t *testing.T) {
		pm := NewPoolManager(nil)
		t.Cleanup(pm.Close)
		require.NoError(t, pm.Add(ctx, Pool{Name: "first", ConnString: connString}))
		require.NoError(t, pm.Add(ctx, Pool{Name: "second", ConnString: connString}))

		def, err := pm.Get("")
		require.NoError(t, err)
		first, err := pm.Get("first")
		require.NoError(t, err)
		assert.Same(t, first, def)
		require.NoError(t, def.Ping(ctx))

		_, err = pm.Get("nonexistent")
		assert.ErrorIs(t, err, ErrPoolNotFound)
	})

	t.Run("Close", func(t *testing.T) {
		pm := NewPoolManager(nil)
		require.NoError(t, pm.Add(ctx, Pool{Name: "pool1", ConnString: connString}))
		pm.Close()
		assert.Empty(t, pm.List())

		_, err := pm.Get("")
		assert.Error(t, err)
	})

	t.Run("Concurrent Access", func(t *testing.T) {
		pm := NewPoolManager(nil)
		t.Cleanup(pm.Close)
		require.NoError(t, pm.Add(ctx, Pool{Name: "concurrent", ConnString: connString}))

		var wg sync.WaitGroup
		for range 4 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for range 50 {
					if pool, err := pm.Get("concurrent"); err == nil {
						_ = pool.Ping(ctx)
					}
					_ = pm.List()
				}
			}()
		}
		wg.Wait()
	})
}
