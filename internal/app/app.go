package app

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/yungbote/inkwell-backend/internal/billing/plans"
	"github.com/yungbote/inkwell-backend/internal/data/db"
	apphttp "github.com/yungbote/inkwell-backend/internal/http"
	"github.com/yungbote/inkwell-backend/internal/observability"
	"github.com/yungbote/inkwell-backend/internal/platform/envutil"
	"github.com/yungbote/inkwell-backend/internal/platform/logger"
	"github.com/yungbote/inkwell-backend/internal/realtime"
)

type App struct {
	Log      *logger.Logger
	DB       *gorm.DB
	Cfg      Config
	Catalog  *plans.Catalog
	Clients  Clients
	Repos    Repos
	Services Services
	SSEHub   *realtime.SSEHub
	Server   *apphttp.Server

	pg           *db.PostgresService
	otelShutdown func(context.Context) error
}

func NewLogger() (*logger.Logger, error) {
	log, err := logger.New(envutil.String("LOG_MODE", "development"))
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return log, nil
}

// OpenDB connects to Postgres and, unless AUTO_MIGRATE is false, migrates
// every table.
func OpenDB(log *logger.Logger) (*db.PostgresService, error) {
	pg, err := db.NewPostgresService(log)
	if err != nil {
		return nil, fmt.Errorf("init postgres: %w", err)
	}
	if envutil.Bool("AUTO_MIGRATE", true) {
		if err := db.AutoMigrateAll(pg.DB()); err != nil {
			_ = pg.Close()
			return nil, fmt.Errorf("postgres automigrate: %w", err)
		}
	}
	return pg, nil
}

type Options struct {
	// PlansFile overrides PLANS_FILE and the embedded catalog.
	PlansFile string
}

// New builds the whole process from the environment.
func New(ctx context.Context, opts Options) (*App, error) {
	log, err := NewLogger()
	if err != nil {
		return nil, err
	}

	log.Info("Loading environment variables...")
	cfg := LoadConfig(log)
	metrics := observability.Init()
	otelShutdown := observability.InitOTel(ctx, log, observability.OtelConfig{
		ServiceName: "inkwell-backend",
		Environment: cfg.Environment,
		Version:     cfg.ServiceVersion,
	})

	loadCatalog := plans.Load
	if opts.PlansFile != "" {
		loadCatalog = func() (*plans.Catalog, error) { return plans.LoadFile(opts.PlansFile) }
	}
	catalog, err := loadCatalog()
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("load plan catalog: %w", err)
	}

	pg, err := OpenDB(log)
	if err != nil {
		log.Sync()
		return nil, err
	}

	clients, err := wireClients(ctx, log, cfg)
	if err != nil {
		_ = pg.Close()
		log.Sync()
		return nil, err
	}

	a, err := Build(log, cfg, pg.DB(), catalog, clients, metrics)
	if err != nil {
		clients.Close()
		_ = pg.Close()
		log.Sync()
		return nil, err
	}
	a.pg = pg
	a.otelShutdown = otelShutdown
	return a, nil
}

// Build wires repos, services and the router over an open database and a
// prepared client set.
func Build(log *logger.Logger, cfg Config, theDB *gorm.DB, catalog *plans.Catalog, clients Clients, metrics *observability.Metrics) (*App, error) {
	hub := realtime.NewSSEHub(log)
	reposet := wireRepos(theDB, log)
	serviceset, err := wireServices(theDB, log, cfg, catalog, reposet, clients, hub)
	if err != nil {
		return nil, err
	}
	server := apphttp.NewServer(wireRouterConfig(theDB, log, cfg, serviceset, hub, metrics))
	return &App{
		Log:      log,
		DB:       theDB,
		Cfg:      cfg,
		Catalog:  catalog,
		Clients:  clients,
		Repos:    reposet,
		Services: serviceset,
		SSEHub:   hub,
		Server:   server,
	}, nil
}

// StartWorker launches the job worker pool; it stops when ctx is canceled.
func (a *App) StartWorker(ctx context.Context) {
	if a == nil || a.Services.JobWorker == nil {
		return
	}
	a.Services.JobWorker.Start(ctx)
}

func (a *App) StartScheduler(ctx context.Context) {
	if a == nil || a.Services.Scheduler == nil {
		return
	}
	a.Services.Scheduler.Start(ctx)
}

// Serve forwards bus events into the local hub and runs the HTTP server
// until ctx is canceled.
func (a *App) Serve(ctx context.Context) error {
	if a == nil || a.Server == nil {
		return fmt.Errorf("app not initialized")
	}
	if a.Clients.SSEBus != nil {
		if err := a.Clients.SSEBus.StartForwarder(ctx, a.SSEHub.Broadcast); err != nil {
			return fmt.Errorf("start SSE forwarder: %w", err)
		}
	}
	addr := ":" + a.Cfg.Port
	a.Log.Info("HTTP server listening", "addr", addr)
	return a.Server.Run(ctx, addr)
}

// Close waits for the worker, so cancel the run context first.
func (a *App) Close() {
	if a == nil {
		return
	}
	if a.Services.JobWorker != nil {
		a.Services.JobWorker.Wait()
	}
	if a.Services.Scheduler != nil {
		a.Services.Scheduler.Stop()
	}
	a.Clients.Close()
	if a.pg != nil {
		_ = a.pg.Close()
	}
	if a.otelShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = a.otelShutdown(ctx)
		cancel()
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
