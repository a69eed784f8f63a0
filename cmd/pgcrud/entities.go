package pgcrud

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/edgeflare/pgcrud/pkg/cache"
	"github.com/edgeflare/pgcrud/pkg/config"
	"github.com/edgeflare/pgcrud/pkg/crud"
	"github.com/edgeflare/pgcrud/pkg/events"
	pg "github.com/edgeflare/pgcrud/pkg/pgx"
	"github.com/edgeflare/pgcrud/pkg/pgx/schema"
	"github.com/edgeflare/pgcrud/pkg/query"
	"github.com/edgeflare/pgcrud/pkg/rest"
	"go.uber.org/zap"
)

type entityDeps struct {
	conn    func(database string) (pg.Conn, error)
	catalog func(ctx context.Context, database string) (map[string]schema.Table, error)
	cache   cache.Store
	events  events.Publisher
	logger  *zap.Logger
}

// registerEntities builds a service per configured entity, in name order,
// and mounts it on server.
func registerEntities(ctx context.Context, server *rest.Server, cfg *config.Config, deps entityDeps) error {
	for _, name := range slices.Sorted(maps.Keys(cfg.Entities)) {
		e := cfg.Entities[name]
		s, err := entitySchema(ctx, name, e, deps)
		if err != nil {
			return fmt.Errorf("entity %q: %w", name, err)
		}
		conn, err := deps.conn(e.Database)
		if err != nil {
			return fmt.Errorf("entity %q: %w", name, err)
		}
		svc, err := crud.NewService(s, conn, crud.Options{
			Name:   name,
			Cache:  deps.cache,
			Events: deps.events,
			Logger: deps.logger,
		})
		if err != nil {
			return fmt.Errorf("entity %q: %w", name, err)
		}

		routes := make([]rest.Route, len(e.Routes))
		for i, r := range e.Routes {
			routes[i] = rest.Route(r)
		}
		if err := server.Register(rest.EntityOptions{Service: svc, Path: e.Path, Routes: routes, Query: e.Query}); err != nil {
			return err
		}
	}
	return nil
}

func entitySchema(ctx context.Context, name string, e config.EntityConfig, deps entityDeps) (*query.EntitySchema, error) {
	if e.Schema != nil {
		sc := *e.Schema
		if sc.Table == "" {
			sc.Table = e.TableName(name)
		}
		if e.SoftDeleteColumn != "" && sc.SoftDeleteColumn == "" && e.SoftDeleteColumn != "-" {
			sc.SoftDeleteColumn = e.SoftDeleteColumn
		}
		if len(e.PrimaryColumns) > 0 {
			sc.PrimaryColumns = e.PrimaryColumns
		}
		return sc.Build()
	}

	tables, err := deps.catalog(ctx, e.Database)
	if err != nil {
		return nil, err
	}
	return schema.Entity(tables, e.TableName(name), schema.EntityOptions{
		SoftDeleteColumn: e.SoftDeleteColumn,
		PrimaryColumns:   e.PrimaryColumns,
	})
}

// newCatalog loads each database's tables once, on first use.
func newCatalog(pools *pg.PoolManager, dbs []config.DatabaseConfig) func(context.Context, string) (map[string]schema.Table, error) {
	var mu sync.Mutex
	loaded := make(map[string]map[string]schema.Table)
	schemas := make(map[string][]string, len(dbs))
	def := ""
	for i, db := range dbs {
		if i == 0 {
			def = db.Name
		}
		schemas[db.Name] = db.Schemas
	}

	return func(ctx context.Context, database string) (map[string]schema.Table, error) {
		if database == "" {
			database = def
		}
		mu.Lock()
		defer mu.Unlock()
		if tables, ok := loaded[database]; ok {
			return tables, nil
		}
		pool, err := pools.Get(database)
		if err != nil {
			return nil, err
		}
		tables, err := schema.Load(ctx, pool, schemas[database]...)
		if err != nil {
			return nil, fmt.Errorf("load schema of %q: %w", database, err)
		}
		loaded[database] = tables
		return tables, nil
	}
}
