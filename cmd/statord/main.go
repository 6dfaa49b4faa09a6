package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/statorio/stator/pkg/bus"
	"github.com/statorio/stator/pkg/config"
	"github.com/statorio/stator/pkg/container"
	"github.com/statorio/stator/pkg/engine"
	"github.com/statorio/stator/pkg/entity"
	"github.com/statorio/stator/pkg/eventlog"
	"github.com/statorio/stator/pkg/fsm"
	"github.com/statorio/stator/pkg/fsmlog"
	"github.com/statorio/stator/pkg/httpapi"
	"github.com/statorio/stator/pkg/logging"
	"github.com/statorio/stator/pkg/metrics"
	"github.com/statorio/stator/pkg/queue"
	"github.com/statorio/stator/pkg/tracing"
)

// AppConfig is the daemon configuration. Every field can be overridden
// via STATOR_* environment variables (e.g. STATOR_SERVER_ADDR).
type AppConfig struct {
	Server   ServerConfig  `yaml:"server"`
	Database DBConfig      `yaml:"database"`
	NATS     NATSConfig    `yaml:"nats"`
	Auth     AuthConfig    `yaml:"auth"`
	Engine   config.Config `yaml:"engine"`
}

type ServerConfig struct {
	// Addr serves the replay API.
	Addr string `yaml:"addr"`

	// MetricsAddr serves /metrics and /ws/events.
	MetricsAddr string `yaml:"metrics_addr"`
}

type DBConfig struct {
	// Driver selects sqlite3 or postgres.
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

type NATSConfig struct {
	// URL enables NATS event fanout and the NATS job queue when set.
	URL    string `yaml:"url"`
	Prefix string `yaml:"prefix"`
}

type AuthConfig struct {
	// JWTSecret enables bearer authentication on the replay API.
	JWTSecret string `yaml:"jwt_secret"`
	Issuer    string `yaml:"issuer"`
}

func defaultAppConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Addr:        ":8080",
			MetricsAddr: ":9090",
		},
		Database: DBConfig{
			Driver: "sqlite3",
			DSN:    "file:stator.db?_busy_timeout=5000",
		},
		NATS: NATSConfig{
			Prefix: "stator",
		},
		Engine: config.DefaultConfig(),
	}
}

func loadConfig(path string) (*AppConfig, error) {
	cfg := defaultAppConfig()

	if path != "" {
		if err := config.LoadWithEnv(path, config.EnvPrefix, cfg); err != nil {
			return nil, err
		}
	} else if err := config.ApplyEnvOverrides(config.EnvPrefix, cfg); err != nil {
		return nil, err
	}

	if err := cfg.Engine.Validate(); err != nil {
		return nil, fmt.Errorf("invalid engine config: %w", err)
	}
	return cfg, nil
}

func main() {
	var (
		configPath = flag.String("config", "", "path to a YAML or JSON config file")
		addr       = flag.String("addr", "", "replay API address (overrides config)")
		demo       = flag.Bool("demo", false, "run a scripted order transition on startup")
	)
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}

	logger := logging.NewZerologLogger(os.Stderr, cfg.Engine.Logging.Structured)
	logger.Infof("starting statord on %s", cfg.Server.Addr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx, cfg, logger, *demo); err != nil {
		logger.Errorf("statord failed: %v", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *AppConfig, logger logging.Logger, demo bool) error {
	// Persistence. Postgres splits the two logs across lib/pq and a
	// pgx pool; sqlite keeps everything on one handle.
	var (
		translogStore fsmlog.Store
		eventStore    eventlog.Store
		db            *sql.DB
		pool          *pgxpool.Pool
		err           error
	)
	switch cfg.Database.Driver {
	case "postgres":
		db, err = sql.Open("postgres", cfg.Database.DSN)
		if err != nil {
			return fmt.Errorf("failed to open postgres: %w", err)
		}
		defer db.Close()

		pool, err = pgxpool.New(ctx, cfg.Database.DSN)
		if err != nil {
			return fmt.Errorf("failed to create pgx pool: %w", err)
		}
		defer pool.Close()

		sqlTranslog := fsmlog.NewSQLStore(db, "")
		if err := sqlTranslog.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("failed to ensure fsm_logs schema: %w", err)
		}
		pgxEvents := eventlog.NewPgxStore(pool, "")
		if err := pgxEvents.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("failed to ensure fsm_event_logs schema: %w", err)
		}
		translogStore, eventStore = sqlTranslog, pgxEvents

	case "sqlite3":
		db, err = sql.Open("sqlite3", cfg.Database.DSN)
		if err != nil {
			return fmt.Errorf("failed to open sqlite: %w", err)
		}
		defer db.Close()

		sqlTranslog := fsmlog.NewSQLStore(db, "")
		if err := sqlTranslog.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("failed to ensure fsm_logs schema: %w", err)
		}
		sqlEvents := eventlog.NewSQLStore(db, "")
		if err := sqlEvents.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("failed to ensure fsm_event_logs schema: %w", err)
		}
		translogStore, eventStore = sqlTranslog, sqlEvents

	default:
		return fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}

	// Event fanout: always local, NATS and websocket when available.
	ws := bus.NewWebsocketBroadcaster(logger)
	dispatchers := bus.MultiDispatcher{bus.NewLocalDispatcher(logger), ws}

	var jobQueue queue.Queue = queue.NewMemoryQueue()
	var nc *nats.Conn
	if cfg.NATS.URL != "" {
		nc, err = nats.Connect(cfg.NATS.URL, nats.Name("statord"))
		if err != nil {
			return fmt.Errorf("failed to connect to NATS: %w", err)
		}
		defer nc.Drain()

		dispatchers = append(dispatchers, bus.NewNATSDispatcher(nc, cfg.NATS.Prefix))
		jobQueue = queue.NewNATSQueue(nc, cfg.NATS.Prefix)
		logger.Infof("NATS fanout enabled via %s", cfg.NATS.URL)
	}

	// Tracing to stdout in debug mode.
	tracer := tracing.Tracer("stator")
	if cfg.Engine.Debug {
		tp, err := tracing.NewStdoutProvider()
		if err != nil {
			return fmt.Errorf("failed to set up tracing: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tp.Shutdown(shutdownCtx); err != nil {
				logger.Warnf("tracer shutdown failed: %v", err)
			}
		}()
		tracer = tp.Tracer("stator")
	}

	recorder := metrics.NewRecorder(metrics.DefaultRegisterer, dispatchers, logger)

	// Domain wiring: the sample order machine plus its services.
	registry := fsm.NewRegistry()
	services := container.New()
	orders := entity.NewMemoryStore()
	registerOrderMachine(registry, services, logger)
	registry.Freeze()

	eng := engine.New(registry,
		engine.WithDispatcher(dispatchers),
		engine.WithTransitionLog(fsmlog.NewLogger(translogStore, cfg.Engine, logger)),
		engine.WithEventLog(eventStore),
		engine.WithMetrics(recorder),
		engine.WithQueue(jobQueue),
		engine.WithContainer(services),
		engine.WithConfig(cfg.Engine),
		engine.WithLogger(logger),
		engine.WithTracer(tracer),
		engine.WithActorResolver(httpapi.JWTActorResolver("")),
	)

	// Jobs published to NATS are executed in-process too.
	if nc != nil {
		consumer := queue.NewConsumer(engine.NewJobRunner(eng, storeFetcher(orders)),
			queue.ConsumerLogger(logger))
		defer consumer.Stop()
		jobSub, err := consumer.SubscribeNATS(nc, cfg.NATS.Prefix)
		if err != nil {
			return fmt.Errorf("failed to subscribe to job subjects: %w", err)
		}
		defer jobSub.Unsubscribe()
	}

	// Replay API.
	replay := eventlog.NewReplayService(eventStore)
	apiOpts := []httpapi.ServerOption{httpapi.WithLogger(logger)}
	if cfg.Auth.JWTSecret != "" {
		authCfg := httpapi.DefaultAuthConfig(cfg.Auth.JWTSecret)
		authCfg.Issuer = cfg.Auth.Issuer
		apiOpts = append(apiOpts, httpapi.WithMiddleware(httpapi.Auth(authCfg)))
		logger.Infof("bearer authentication enabled")
	}
	api := httpapi.NewServer(registry, replay, apiOpts...)

	apiErr := make(chan error, 1)
	go func() {
		apiErr <- api.ListenAndServe(cfg.Server.Addr)
	}()

	// Metrics and event websocket on the side port.
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.DefaultRegistry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/ws/events", ws.HandleWebSocket)
	metricsSrv := &http.Server{Addr: cfg.Server.MetricsAddr, Handler: mux}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("metrics server failed: %v", err)
		}
	}()

	if demo {
		if err := runDemo(ctx, eng, orders, jobQueue, replay, logger); err != nil {
			logger.Errorf("demo run failed: %v", err)
		}
	}

	// Block until a signal or an API failure.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	select {
	case sig := <-sigChan:
		logger.Infof("received %s, shutting down", sig)
	case err := <-apiErr:
		if err != nil {
			return fmt.Errorf("replay API failed: %w", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := api.Shutdown(); err != nil {
		logger.Warnf("API shutdown failed: %v", err)
	}
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("metrics server shutdown failed: %v", err)
	}
	logger.Infof("statord stopped")
	return nil
}
