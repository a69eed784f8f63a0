package rest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"slices"
	"sync"

	"github.com/edgeflare/pgcrud/pkg/crud"
	"github.com/edgeflare/pgcrud/pkg/events"
	"github.com/edgeflare/pgcrud/pkg/httputil"
	"github.com/edgeflare/pgcrud/pkg/httputil/middleware"
	"github.com/edgeflare/pgcrud/pkg/query"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

// Route names one of the generated endpoints.
type Route string

const (
	RouteFindAll  Route = "findAll"
	RouteCount    Route = "count"
	RouteFindByID Route = "findById"
	RouteCreate   Route = "create"
	RouteUpdate   Route = "update"
	RouteDelete   Route = "delete"
)

// Routes lists every route in registration order.
var Routes = []Route{RouteFindAll, RouteCount, RouteFindByID, RouteCreate, RouteUpdate, RouteDelete}

const maxBodyBytes = 1 << 20

var pathPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

type EntityOptions struct {
	Service *crud.Service
	// Path is the URL segment of the entity. Defaults to the service name.
	Path string
	// Routes lists the enabled routes; empty enables all of them.
	Routes []Route
	// Query is merged into every request after the request's own parameters:
	// its scalars override the request's and its filters apply to fields the
	// request does not filter on.
	Query query.QueryParams
}

// Server mounts entity routes on a router.
type Server struct {
	router   *httputil.Router
	logger   *zap.Logger
	mu       sync.Mutex
	entities []string
}

// NewServer mounts an index of the registered entities at the router root.
func NewServer(router *httputil.Router, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{router: router, logger: logger}
	router.HandleFunc("GET /{$}", s.handleIndex)
	return s
}

// Register adds the routes of one entity. The baseline query is checked
// against the entity schema up front.
func (s *Server) Register(opts EntityOptions) error {
	if opts.Service == nil {
		return errors.New("rest: nil service")
	}
	path := opts.Path
	if path == "" {
		path = opts.Service.Name()
	}
	if !pathPattern.MatchString(path) {
		return fmt.Errorf("rest: invalid entity path %q", path)
	}

	routes := opts.Routes
	if len(routes) == 0 {
		routes = Routes
	}
	for _, r := range routes {
		if !slices.Contains(Routes, r) {
			return fmt.Errorf("rest: %s: unknown route %q", path, r)
		}
	}
	if _, err := query.Compile(opts.Service.Schema(), query.Merge(query.DefaultQueryParams(), opts.Query)); err != nil {
		return fmt.Errorf("rest: %s: invalid baseline query: %w", path, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if slices.Contains(s.entities, path) {
		return fmt.Errorf("rest: entity path %q registered twice", path)
	}
	s.entities = append(s.entities, path)

	h := &entityHandler{svc: opts.Service, baseline: opts.Query, logger: s.logger.With(zap.String("entity", path))}
	base := "/" + path
	for _, r := range routes {
		switch r {
		case RouteFindAll:
			s.router.HandleFunc("GET "+base, h.findAll)
		case RouteCount:
			s.router.HandleFunc("GET "+base+"/count", h.count)
		case RouteFindByID:
			s.router.HandleFunc("GET "+base+"/{id}", h.findByID)
		case RouteCreate:
			s.router.HandleFunc("POST "+base, h.create)
		case RouteUpdate:
			s.router.HandleFunc("PATCH "+base+"/{id}", h.update)
			s.router.HandleFunc("PUT "+base+"/{id}", h.update)
		case RouteDelete:
			s.router.HandleFunc("DELETE "+base+"/{ids}", h.delete)
		}
	}
	s.logger.Info("registered entity", zap.String("path", base), zap.Any("routes", routes))
	return nil
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	entities := slices.Clone(s.entities)
	s.mu.Unlock()
	slices.Sort(entities)
	httputil.JSON(w, http.StatusOK, map[string]any{"entities": entities})
}

type entityHandler struct {
	svc      *crud.Service
	baseline query.QueryParams
	logger   *zap.Logger
}

// params merges the request's query onto the defaults and the baseline.
func (h *entityHandler) params(r *http.Request) (query.QueryParams, error) {
	req, err := ParseQueryParams(r.URL.Query())
	if err != nil {
		return query.QueryParams{}, err
	}
	return query.Merge(query.DefaultQueryParams(), req, h.baseline), nil
}

func (h *entityHandler) findAll(w http.ResponseWriter, r *http.Request) {
	params, err := h.params(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	page, err := h.svc.Find(r.Context(), params)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, page)
}

func (h *entityHandler) count(w http.ResponseWriter, r *http.Request) {
	params, err := h.params(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	n, err := h.svc.Count(r.Context(), params)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, n)
}

func (h *entityHandler) findByID(w http.ResponseWriter, r *http.Request) {
	params, err := h.params(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	row, err := h.svc.FindByIDOrFail(r.Context(), r.PathValue("id"), params)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, row)
}

func (h *entityHandler) create(w http.ResponseWriter, r *http.Request) {
	params, err := h.params(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var body map[string]any
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := httputil.BindOrError(r, w, &body); err != nil {
		return
	}
	row, err := h.svc.Create(mutationContext(r), body, params)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, http.StatusCreated, row)
}

func (h *entityHandler) update(w http.ResponseWriter, r *http.Request) {
	params, err := h.params(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var body map[string]any
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := httputil.BindOrError(r, w, &body); err != nil {
		return
	}
	row, err := h.svc.Update(mutationContext(r), r.PathValue("id"), body, params)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, row)
}

func (h *entityHandler) delete(w http.ResponseWriter, r *http.Request) {
	params, err := h.params(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	rows, err := h.svc.Delete(mutationContext(r), crud.SplitIDs(r.PathValue("ids")), params)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, rows)
}

// mutationContext tags events published for r with its request id.
func mutationContext(r *http.Request) context.Context {
	return events.WithRequestID(r.Context(), httputil.RequestID(r))
}

func (h *entityHandler) respond(w http.ResponseWriter, r *http.Request, status int, body any) {
	if parsePrefer(r).WantsMinimal() {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	httputil.JSON(w, status, body)
}

func (h *entityHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	var pgErr *pgconn.PgError
	switch {
	case status >= http.StatusInternalServerError:
		middleware.LoggerFromContext(r.Context(), h.logger).Error("request failed", zap.Error(err))
		msg = http.StatusText(status)
	case errors.As(err, &pgErr):
		msg = pgErr.Message
	}
	httputil.Error(w, status, msg)
}

// statusFor maps service errors to HTTP status codes. Integrity constraint
// violations are conflicts and malformed values rejected by PostgreSQL are
// client errors.
func statusFor(err error) int {
	var pgErr *pgconn.PgError
	switch {
	case query.IsValidation(err):
		return http.StatusBadRequest
	case query.IsNotFound(err):
		return http.StatusNotFound
	case errors.As(err, &pgErr) && len(pgErr.Code) == 5:
		switch pgErr.Code[:2] {
		case "22":
			return http.StatusBadRequest
		case "23":
			return http.StatusConflict
		}
	}
	return http.StatusInternalServerError
}
