package pgx

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// PoolManager holds the named connection pools entities are served from.
// The first pool added becomes the default.
type PoolManager struct {
	pools  map[string]*pgxpool.Pool
	def    string
	logger *zap.Logger
	mu     sync.RWMutex
}

// Pool is a named connection configuration.
type Pool struct {
	Name string
	// Config takes precedence over ConnString.
	Config     *pgxpool.Config
	ConnString string
	// ConnectTimeout bounds how long the initial ping is retried. Zero
	// means a single attempt.
	ConnectTimeout time.Duration
}

var (
	ErrPoolNotFound      = errors.New("connection pool not found")
	ErrPoolAlreadyExists = errors.New("connection pool already exists")
)

func NewPoolManager(logger *zap.Logger) *PoolManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PoolManager{pools: make(map[string]*pgxpool.Pool), logger: logger}
}

// Add connects cfg and registers it under cfg.Name.
func (m *PoolManager) Add(ctx context.Context, cfg Pool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.pools[cfg.Name]; ok {
		return ErrPoolAlreadyExists
	}

	pool, err := m.connect(ctx, cfg)
	if err != nil {
		return fmt.Errorf("pgx: pool %q: %w", cfg.Name, err)
	}

	m.pools[cfg.Name] = pool
	if m.def == "" {
		m.def = cfg.Name
	}
	return nil
}

// Get returns the pool registered as name; an empty name selects the default pool.
func (m *PoolManager) Get(name string) (*pgxpool.Pool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if name == "" {
		name = m.def
	}
	pool, ok := m.pools[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrPoolNotFound, name)
	}
	return pool, nil
}

// Close closes every pool.
func (m *PoolManager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, p := range m.pools {
		p.Close()
	}
	m.pools = make(map[string]*pgxpool.Pool)
	m.def = ""
}

// List returns the pool names in sorted order.
func (m *PoolManager) List() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.pools))
	for name := range m.pools {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func (m *PoolManager) connect(ctx context.Context, cfg Pool) (*pgxpool.Pool, error) {
	var pool *pgxpool.Pool
	var err error

	switch {
	case cfg.Config != nil:
		pool, err = pgxpool.NewWithConfig(ctx, cfg.Config)
	case cfg.ConnString != "":
		pool, err = pgxpool.New(ctx, cfg.ConnString)
	default:
		return nil, errors.New("either Config or ConnString must be provided")
	}
	if err != nil {
		return nil, fmt.Errorf("creating pool: %w", err)
	}

	ping := func() error { return pool.Ping(ctx) }
	if cfg.ConnectTimeout <= 0 {
		err = ping()
	} else {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = 250 * time.Millisecond
		b.MaxElapsedTime = cfg.ConnectTimeout
		err = backoff.RetryNotify(ping, backoff.WithContext(b, ctx), func(err error, next time.Duration) {
			m.logger.Warn("database not reachable, retrying",
				zap.String("pool", cfg.Name), zap.Duration("next", next), zap.Error(err))
		})
	}
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping connection: %w", err)
	}
	return pool, nil
}
