// Package crud executes compiled entity queries against PostgreSQL.
//
// A Service serves one entity. It takes already merged query.QueryParams,
// compiles them, runs the statements over a pgx connection and reports
// results with pagination metadata. Cache-enabled reads go through a
// cache.Store; committed mutations invalidate the entity's cache entries and
// are announced through an events.Publisher.
package crud

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/edgeflare/pgcrud/pkg/cache"
	"github.com/edgeflare/pgcrud/pkg/events"
	"github.com/edgeflare/pgcrud/pkg/metrics"
	pg "github.com/edgeflare/pgcrud/pkg/pgx"
	"github.com/edgeflare/pgcrud/pkg/query"
	"go.uber.org/zap"
)

// IDSeparator separates identifiers in a composite delete path segment.
const IDSeparator = "||"

type Options struct {
	// Name labels metrics, cache keys and events. Defaults to the table name.
	Name   string
	Cache  cache.Store
	Events events.Publisher
	Logger *zap.Logger
}

// Service runs the CRUD operations of a single entity. It is safe for
// concurrent use.
type Service struct {
	schema *query.EntitySchema
	conn   pg.Conn
	name   string
	cache  cache.Store
	events events.Publisher
	logger *zap.Logger
}

func NewService(schema *query.EntitySchema, conn pg.Conn, opts Options) (*Service, error) {
	if schema == nil {
		return nil, errors.New("crud: nil entity schema")
	}
	if conn == nil {
		return nil, errors.New("crud: nil connection")
	}
	s := &Service{
		schema: schema,
		conn:   conn,
		name:   cmp.Or(opts.Name, schema.Table()),
		cache:  opts.Cache,
		events: opts.Events,
		logger: opts.Logger,
	}
	if s.events == nil {
		s.events = events.Noop{}
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	s.logger = s.logger.With(zap.String("entity", s.name))
	return s, nil
}

func (s *Service) Name() string { return s.name }

func (s *Service) Schema() *query.EntitySchema { return s.schema }

// Page is the result of Find. Without pagination only Data is set.
type Page struct {
	Data       []map[string]any `json:"data"`
	Page       int              `json:"page"`
	PageSize   int              `json:"pageSize"`
	PageCount  int              `json:"pageCount"`
	Total      int64            `json:"total"`
	Offset     int              `json:"offset"`
	Pagination bool             `json:"pagination"`
}

// PageCount is ceil(total/limit). An unbounded page holds everything.
func PageCount(total int64, limit int) int {
	if total <= 0 {
		return 0
	}
	if limit <= 0 {
		return 1
	}
	return int((total + int64(limit) - 1) / int64(limit))
}

func newPage(rows []map[string]any, params query.QueryParams, plan *query.QueryPlan, total int64) *Page {
	p := &Page{Data: rows}
	if !params.Paginated() {
		return p
	}
	p.Pagination = true
	p.Total = total
	if plan.Limit != nil {
		p.PageSize = *plan.Limit
	}
	if plan.Offset != nil {
		p.Offset = *plan.Offset
	}
	if params.Page != nil {
		p.Page = *params.Page
	}
	p.PageCount = PageCount(total, p.PageSize)
	return p
}

// Find returns the rows params select together with pagination info. The
// total is counted only when paginating.
func (s *Service) Find(ctx context.Context, params query.QueryParams) (page *Page, err error) {
	start := time.Now()
	defer func() { s.observe("find", start, err) }()

	plan, err := query.Compile(s.schema, params)
	if err != nil {
		return nil, err
	}
	sel, err := query.ToSelect(s.schema, plan)
	if err != nil {
		return nil, err
	}

	return cached(ctx, s, plan.CacheEnabled, sel, func() (*Page, error) {
		rows, err := pg.CollectRows(ctx, s.conn, sel)
		if err != nil {
			return nil, fmt.Errorf("crud: find %s: %w", s.name, err)
		}
		total := int64(len(rows))
		if params.Paginated() {
			cnt, err := query.ToCount(s.schema, plan)
			if err != nil {
				return nil, err
			}
			if total, err = pg.Count(ctx, s.conn, cnt); err != nil {
				return nil, fmt.Errorf("crud: count %s: %w", s.name, err)
			}
		}
		return newPage(rows, params, plan, total), nil
	})
}

// Count returns the number of rows params match, ignoring pagination.
func (s *Service) Count(ctx context.Context, params query.QueryParams) (n int64, err error) {
	start := time.Now()
	defer func() { s.observe("count", start, err) }()

	plan, err := query.Compile(s.schema, params)
	if err != nil {
		return 0, err
	}
	cnt, err := query.ToCount(s.schema, plan)
	if err != nil {
		return 0, err
	}
	return cached(ctx, s, plan.CacheEnabled, cnt, func() (int64, error) {
		n, err := pg.Count(ctx, s.conn, cnt)
		if err != nil {
			return 0, fmt.Errorf("crud: count %s: %w", s.name, err)
		}
		return n, nil
	})
}

// FindByID returns the row whose first primary column equals id, or nil when
// none does. The filters of params are replaced; its fields and joins apply.
func (s *Service) FindByID(ctx context.Context, id any, params query.QueryParams) (row map[string]any, err error) {
	start := time.Now()
	defer func() { s.observe("findById", start, err) }()
	return s.findByID(ctx, s.conn, id, params)
}

// FindByIDOrFail is FindByID reporting a missing row as *query.NotFoundError.
func (s *Service) FindByIDOrFail(ctx context.Context, id any, params query.QueryParams) (map[string]any, error) {
	row, err := s.FindByID(ctx, id, params)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, s.notFound(id)
	}
	return row, nil
}

func (s *Service) findByID(ctx context.Context, conn pg.Conn, id any, params query.QueryParams) (map[string]any, error) {
	p := params
	p.Filter = []query.FilterCondition{{Field: s.primary(), Operator: query.OpEquals, Value: query.Scalar(id)}}
	p.Or = nil
	p.Sort = nil
	p.Pagination = query.Bool(false)

	plan, err := query.Compile(s.schema, p)
	if err != nil {
		return nil, err
	}
	sel, err := query.ToSelect(s.schema, plan)
	if err != nil {
		return nil, err
	}
	rows, err := cached(ctx, s, plan.CacheEnabled, sel, func() ([]map[string]any, error) {
		return pg.CollectRows(ctx, conn, sel.Limit(1))
	})
	if err != nil {
		return nil, fmt.Errorf("crud: find %s by id: %w", s.name, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// Create inserts body and returns the stored row read back by its id.
func (s *Service) Create(ctx context.Context, body map[string]any, params query.QueryParams) (row map[string]any, err error) {
	start := time.Now()
	defer func() { s.observe("create", start, err) }()

	data, err := s.values(body)
	if err != nil {
		return nil, err
	}
	inserted, err := pg.InsertRow(ctx, s.conn, s.schema.Table(), data, s.schema.PrimaryColumns()...)
	if err != nil {
		return nil, fmt.Errorf("crud: %w", err)
	}

	params.Cache = nil
	row, err = s.findByID(ctx, s.conn, inserted[s.primary()], params)
	if err != nil {
		return nil, err
	}
	if row == nil {
		row = inserted
	}
	s.committed(ctx, events.OpCreate, []map[string]any{nil}, []map[string]any{row})
	return row, nil
}

// Update applies body to the row identified by id and returns the row read
// back afterwards. A missing row is a *query.NotFoundError.
func (s *Service) Update(ctx context.Context, id any, body map[string]any, params query.QueryParams) (row map[string]any, err error) {
	start := time.Now()
	defer func() { s.observe("update", start, err) }()

	data, err := s.values(body)
	if err != nil {
		return nil, err
	}

	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("crud: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	before, err := s.findByID(ctx, tx, id, query.QueryParams{})
	if err != nil {
		return nil, err
	}
	if before == nil {
		return nil, s.notFound(id)
	}
	_, err = pg.UpdateRow(ctx, tx, s.schema.Table(), data, map[string]any{s.primary(): id}, s.schema.PrimaryColumns()...)
	if errors.Is(err, pg.ErrNoRows) {
		return nil, s.notFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("crud: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("crud: commit: %w", err)
	}

	params.Cache = nil
	if row, err = s.findByID(ctx, s.conn, id, params); err != nil {
		return nil, err
	}
	s.committed(ctx, events.OpUpdate, []map[string]any{before}, []map[string]any{row})
	return row, nil
}

// Delete removes the rows whose first primary column is one of ids and
// returns them. Only params' field selection and soft-delete visibility apply.
func (s *Service) Delete(ctx context.Context, ids []string, params query.QueryParams) (rows []map[string]any, err error) {
	start := time.Now()
	defer func() { s.observe("delete", start, err) }()

	if len(ids) == 0 {
		return nil, &query.ValidationError{Field: s.primary(), Message: "no identifiers given"}
	}
	list := make([]any, len(ids))
	for i, id := range ids {
		list[i] = id
	}

	p := query.QueryParams{
		Fields:         params.Fields,
		Filter:         []query.FilterCondition{{Field: s.primary(), Operator: query.OpIn, Value: query.List(list...)}},
		Pagination:     query.Bool(false),
		IncludeDeleted: params.IncludeDeleted,
	}
	plan, err := query.Compile(s.schema, p)
	if err != nil {
		return nil, err
	}
	del, err := query.ToDelete(s.schema, plan)
	if err != nil {
		return nil, err
	}
	if rows, err = pg.CollectRows(ctx, s.conn, del); err != nil {
		return nil, fmt.Errorf("crud: delete from %s: %w", s.name, err)
	}
	s.committed(ctx, events.OpDelete, rows, make([]map[string]any, len(rows)))
	return rows, nil
}

// SplitIDs splits a composite identifier "a||b||c", dropping empty parts.
func SplitIDs(s string) []string {
	var ids []string
	for _, id := range strings.Split(s, IDSeparator) {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

func (s *Service) primary() string {
	return s.schema.PrimaryColumns()[0]
}

func (s *Service) notFound(id any) error {
	return &query.NotFoundError{Entity: s.name, ID: fmt.Sprint(id)}
}

// values keeps body's keys only when they are writable columns of the entity.
func (s *Service) values(body map[string]any) (map[string]any, error) {
	if len(body) == 0 {
		return nil, &query.ValidationError{Message: "request body has no values"}
	}
	data := make(map[string]any, len(body))
	for k, v := range body {
		if err := query.CheckField(k); err != nil {
			return nil, err
		}
		if strings.Contains(k, ".") || !s.schema.HasColumn(k) {
			return nil, &query.ValidationError{Field: k, Message: "not a writable column of " + s.name}
		}
		data[k] = v
	}
	return data, nil
}

// committed runs after a mutation is durable: it drops the entity's cached
// results and publishes one event per changed row.
func (s *Service) committed(ctx context.Context, op events.Operation, before, after []map[string]any) {
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, cache.Prefix(s.name)); err != nil {
			s.logger.Warn("cache invalidation failed", zap.Error(err))
		}
	}

	src := events.Source{Entity: s.name, Table: s.schema.Table(), RequestID: events.RequestID(ctx)}
	for i := range before {
		e := events.New(op, src, nilIfEmpty(before[i]), nilIfEmpty(after[i]))
		if err := s.events.Publish(ctx, e); err != nil {
			metrics.PublishErrors.WithLabelValues(s.name).Inc()
			s.logger.Error("failed to publish event", zap.String("op", string(op)), zap.Error(err))
		}
	}
}

func nilIfEmpty(row map[string]any) any {
	if row == nil {
		return nil
	}
	return row
}

func (s *Service) observe(op string, start time.Time, err error) {
	metrics.ObserveQuery(s.name, op, start, err)
	if err != nil && !query.IsValidation(err) && !query.IsNotFound(err) {
		s.logger.Error("operation failed", zap.String("op", op), zap.Error(err))
	}
}

// cached serves load's result from the cache when enabled, keyed by the
// statement q renders. Cache failures are logged and fall through to load.
func cached[T any](ctx context.Context, s *Service, enabled bool, q sq.Sqlizer, load func() (T, error)) (T, error) {
	if !enabled || s.cache == nil {
		return load()
	}
	var zero T
	sql, args, err := q.ToSql()
	if err != nil {
		return zero, fmt.Errorf("crud: build query: %w", err)
	}
	key := cache.Key(s.name, sql, args)

	b, ok, err := s.cache.Get(ctx, key)
	switch {
	case err != nil:
		metrics.CacheLookups.WithLabelValues(s.name, "error").Inc()
		s.logger.Warn("cache lookup failed", zap.Error(err))
	case ok:
		var v T
		if err := json.Unmarshal(b, &v); err == nil {
			metrics.CacheLookups.WithLabelValues(s.name, "hit").Inc()
			return v, nil
		}
		metrics.CacheLookups.WithLabelValues(s.name, "error").Inc()
	default:
		metrics.CacheLookups.WithLabelValues(s.name, "miss").Inc()
	}

	v, err := load()
	if err != nil {
		return zero, err
	}
	if b, err = json.Marshal(v); err != nil {
		s.logger.Warn("cannot encode result for cache", zap.Error(err))
		return v, nil
	}
	if err := s.cache.Set(ctx, key, b); err != nil {
		s.logger.Warn("cache store failed", zap.Error(err))
	}
	return v, nil
}
