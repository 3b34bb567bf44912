package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/alovak/cardledger/internal/cardgen"
	"github.com/alovak/cardledger/internal/middleware"
	"github.com/alovak/cardledger/internal/retry"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/exp/slog"
	_ "modernc.org/sqlite"
)

// App is the main application, it owns the store, the ledger service and the optional
// health server, and is responsible for starting and stopping them.
type App struct {
	srv    *http.Server
	wg     *sync.WaitGroup
	Addr   string
	logger *slog.Logger
	config *Config
	store  *Repository
	ledger Ledger
	reg    *prometheus.Registry
}

func NewApp(logger *slog.Logger, config *Config) *App {
	logger = logger.With(slog.String("app", "ledger"))

	if config == nil {
		config = DefaultConfig()
	}

	return &App{
		wg:     &sync.WaitGroup{},
		logger: logger,
		config: config,
		reg:    prometheus.NewRegistry(),
	}
}

func (a *App) Start(ctx context.Context) error {
	a.logger.Info("starting app...", slog.String("backend", a.config.Backend))

	if err := a.config.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	store, err := OpenStore(ctx, a.config, a.logger)
	if err != nil {
		return err
	}
	a.store = store

	svc := NewService(store, cardgen.NewGenerator(nil), a.config, a.logger)
	a.ledger = InstrumentingMiddleware(NewMetrics(a.reg))(LoggingMiddleware(a.logger)(svc))

	if a.config.HTTPAddr == "" {
		return nil
	}

	router := chi.NewRouter()
	router.Use(chimw.RequestID)
	router.Use(middleware.NewStructuredLogger(a.logger))
	router.Use(chimw.Recoverer)
	NewAPI(store).AppendRoutes(router)
	router.Handle("/metrics", promhttp.HandlerFor(a.reg, promhttp.HandlerOpts{}))

	l, err := net.Listen("tcp", a.config.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listening tcp port: %w", err)
	}

	a.Addr = l.Addr().String()

	a.srv = &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	a.wg.Add(1)
	go func() {
		a.logger.Info("http server started", slog.String("addr", a.Addr))

		if err := a.srv.Serve(l); err != nil {
			if err != http.ErrServerClosed {
				a.logger.Error("starting http server", "err", err)
			}

			a.logger.Info("http server stopped")
		}

		a.wg.Done()
	}()

	return nil
}

// NewSession starts a logged-out session against the running ledger.
func (a *App) NewSession() *Session {
	return NewSession(a.ledger, a.store, a.logger)
}

func (a *App) Shutdown() {
	a.logger.Info("shutting down app...")

	if a.srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		a.srv.Shutdown(ctx)
	}

	a.wg.Wait()

	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Error("closing store", "err", err)
		}
	}

	a.logger.Info("app stopped")
}

// OpenStore opens the backend named by cfg and makes sure the card table exists.
// Connecting is retried with exponential backoff up to cfg.OpenRetries times.
func OpenStore(ctx context.Context, cfg *Config, logger *slog.Logger) (*Repository, error) {
	var driver, dsn string
	var dialect Dialect
	switch cfg.Backend {
	case BackendMemory:
		return NewRepository(), nil
	case BackendSQLite:
		driver, dialect = "sqlite", DialectSQLite
		dsn = cfg.StorePath + "?_pragma=busy_timeout(5000)"
	case BackendPostgres:
		driver, dialect = "postgres", DialectPostgres
		dsn = cfg.DSN
	default:
		return nil, fmt.Errorf("unsupported backend %q", cfg.Backend)
	}

	retries := cfg.OpenRetries
	if retries < 0 {
		retries = 0
	}
	retrier := retry.NewRetrier[*sql.DB](retry.NewExponentialBackoffStrategy(retries, 100*time.Millisecond, 0.1, 2*time.Second))

	attempt := 0
	db, err := retrier.DoWithReturn(ctx, func(ctx context.Context) (*sql.DB, error) {
		attempt++
		db, err := sql.Open(driver, dsn)
		if err != nil {
			return nil, err
		}
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			logger.Warn("store not reachable", slog.String("backend", cfg.Backend), slog.Int("attempt", attempt), slog.Any("err", err))
			return nil, err
		}
		return db, nil
	})
	if err != nil {
		return nil, unavailable("opening "+cfg.Backend, err)
	}

	if dialect == DialectSQLite {
		// one writer at a time
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxIdleConns(5)
		db.SetMaxOpenConns(10)
	}

	repo := NewSQLRepository(db, dialect)
	if err := repo.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return repo, nil
}
