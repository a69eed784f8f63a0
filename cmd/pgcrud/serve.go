package pgcrud

import (
	"cmp"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/edgeflare/pgcrud/pkg/cache"
	"github.com/edgeflare/pgcrud/pkg/config"
	"github.com/edgeflare/pgcrud/pkg/events"
	"github.com/edgeflare/pgcrud/pkg/httputil"
	"github.com/edgeflare/pgcrud/pkg/httputil/middleware"
	"github.com/edgeflare/pgcrud/pkg/metrics"
	pg "github.com/edgeflare/pgcrud/pkg/pgx"
	"github.com/edgeflare/pgcrud/pkg/rest"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"s"},
	Short:   "Start the REST API server",
	Long:    `Starts a REST API server exposing the configured entities.`,
	RunE:    runServe,
}

func init() {
	f := serveCmd.Flags()
	f.StringP("listen", "l", "", "REST server listen address; overrides server.listenAddr")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if addr, _ := cmd.Flags().GetString("listen"); addr != "" {
		cfg.Server.ListenAddr = addr
	}

	logger, err := newLogger(cmp.Or(logLevel, cfg.LogLevel))
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pools := pg.NewPoolManager(logger)
	defer pools.Close()
	for _, db := range cfg.Databases {
		if err := pools.Add(ctx, pg.Pool{Name: db.Name, ConnString: db.ConnString, ConnectTimeout: db.ConnectTimeout}); err != nil {
			return err
		}
		logger.Info("connected to database", zap.String("database", db.Name))
	}

	store, closeCache, err := newCache(ctx, cfg.Cache, logger)
	if err != nil {
		return err
	}
	defer closeCache()

	var publisher events.Publisher = events.Noop{}
	if cfg.Events != nil {
		nc, err := events.ConnectNATS(*cfg.Events, logger)
		if err != nil {
			return err
		}
		defer nc.Close()
		publisher = nc
	}

	routerOpts, err := serverOptions(cfg.Server)
	if err != nil {
		return err
	}
	router := httputil.NewRouter(append(routerOpts, httputil.WithLogger(logger))...)
	cors := &cfg.Server.CORS
	if len(cors.AllowedOrigins) == 0 {
		cors = nil
	}
	router.Use(
		middleware.Recover(logger),
		middleware.RequestID,
		middleware.LoggerWithOptions(&middleware.LoggerOptions{Logger: logger}),
		middleware.CORSWithOptions(cors),
	)
	api := router
	if cfg.Server.BaseURL != "" {
		api = router.Group(cfg.Server.BaseURL)
	}
	server := rest.NewServer(api, logger)

	err = registerEntities(ctx, server, cfg, entityDeps{
		conn: func(db string) (pg.Conn, error) {
			return pools.Get(db)
		},
		catalog: newCatalog(pools, cfg.Databases),
		cache:   store,
		events:  publisher,
		logger:  logger,
	})
	if err != nil {
		return err
	}

	var wg sync.WaitGroup
	if cfg.Metrics.Enabled {
		metrics.StartPrometheusServer(ctx, &wg, &metrics.PromServerOpts{
			Addr:   cfg.Metrics.Addr,
			Path:   cfg.Metrics.Path,
			Logger: logger,
		})
	}

	errCh := make(chan error, 1)
	go func() {
		if err := router.ListenAndServe(cfg.Server.ListenAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down server")
	case err = <-errCh:
		logger.Error("server error", zap.Error(err))
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if serr := router.Shutdown(shutdownCtx); serr != nil {
		logger.Error("server shutdown", zap.Error(serr))
	}
	wg.Wait()
	logger.Info("server stopped")
	return err
}

func serverOptions(c config.ServerConfig) ([]httputil.RouterOptions, error) {
	opts := []httputil.RouterOptions{httputil.WithServerOptions(func(s *http.Server) {
		s.ReadTimeout = c.ReadTimeout
		s.WriteTimeout = c.WriteTimeout
	})}
	if c.TLS.CertFile != "" {
		cert, err := tls.LoadX509KeyPair(c.TLS.CertFile, c.TLS.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("load TLS key pair: %w", err)
		}
		opts = append(opts, httputil.WithTLS(cert))
	}
	return opts, nil
}

// newCache builds the configured store. The returned func releases it.
func newCache(ctx context.Context, c config.CacheConfig, logger *zap.Logger) (cache.Store, func(), error) {
	switch c.Backend {
	case config.CacheMemory:
		mem := cache.NewMemory(c.TTL)
		go sweep(ctx, mem, cmp.Or(c.TTL, time.Minute))
		return mem, func() {}, nil
	case config.CacheRedis:
		client, err := cache.DialRedis(ctx, c.Redis.Addr, c.Redis.Password, c.Redis.DB)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("using redis cache", zap.String("addr", client.Options().Addr))
		return cache.NewRedis(client, c.Redis.Namespace, c.TTL), func() { client.Close() }, nil
	case config.CacheNone:
		return nil, func() {}, nil
	}
	return nil, nil, fmt.Errorf("unknown cache backend %q", c.Backend)
}

func sweep(ctx context.Context, mem *cache.Memory, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			mem.CleanupExpired()
		}
	}
}
