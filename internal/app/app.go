package app

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/yungbote/aggregation-backend/internal/data/db"
	domainagg "github.com/yungbote/aggregation-backend/internal/domain/aggregation"
	apphttp "github.com/yungbote/aggregation-backend/internal/http"
	"github.com/yungbote/aggregation-backend/internal/jobs/worker"
	"github.com/yungbote/aggregation-backend/internal/observability"
	"github.com/yungbote/aggregation-backend/internal/pkg/logger"
	"github.com/yungbote/aggregation-backend/internal/realtime"
)

type App struct {
	Log      *logger.Logger
	Cfg      Config
	DB       *gorm.DB
	Clients  Clients
	Repos    Repos
	Services Services
	Hub      *realtime.SSEHub
	Server   *apphttp.Server

	pg           *db.PostgresService
	otelShutdown func(context.Context) error
}

func New(ctx context.Context, log *logger.Logger) (*App, error) {
	log.Info("Loading environment variables...")
	cfg := LoadConfig(log)
	if strings.EqualFold(cfg.Environment, "production") {
		gin.SetMode(gin.ReleaseMode)
	}

	observability.Init(log)
	otelShutdown := observability.InitOTel(ctx, log, observability.OtelConfig{
		Enabled:     cfg.OtelEnabled,
		ServiceName: cfg.OtelServiceName,
		Environment: cfg.Environment,
		Version:     cfg.Version,
		Endpoint:    cfg.OtelEndpoint,
		Insecure:    cfg.OtelInsecure,
		Headers:     cfg.OtelHeaders,
		SampleRatio: cfg.OtelSampleRatio,
	})

	a := &App{Log: log, Cfg: cfg, otelShutdown: otelShutdown}

	switch cfg.StoreDriver {
	case DriverPostgres:
		pg, err := db.NewPostgresService(log)
		if err != nil {
			return nil, fmt.Errorf("init postgres: %w", err)
		}
		a.pg = pg
		a.DB = pg.DB()
		if cfg.AutoMigrate {
			if err := db.AutoMigrateAll(a.DB); err != nil {
				a.Close()
				return nil, fmt.Errorf("postgres automigrate: %w", err)
			}
		}
		a.Repos = wireRepos(a.DB, log)
	case DriverMemory:
		a.Repos = wireMemoryRepos(log)
	default:
		return nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}

	if cfg.SeedFile != "" {
		data, err := LoadSeedFile(cfg.SeedFile)
		if err != nil {
			a.Close()
			return nil, err
		}
		if err := a.Seed(ctx, data); err != nil {
			a.Close()
			return nil, err
		}
	}

	clients, err := wireClients(log, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Clients = clients

	a.Hub = realtime.NewSSEHub(log)
	a.Services = wireServices(log, cfg, a.Repos, a.Clients, a.Hub)
	handlers := wireHandlers(log, a.Services, a.Clients, a.DB, a.Hub)
	a.Server = wireServer(log, cfg, handlers)
	a.Server.OnShutdown(func() { a.Hub.CloseAll() })
	return a, nil
}

// Serve runs the HTTP API with the publisher, the realtime forwarder, and the
// result listener. The configuration consumer joins when EmbeddedWorkers is set.
func (a *App) Serve(ctx context.Context) error {
	if a == nil || a.Server == nil {
		return fmt.Errorf("app not initialized")
	}
	g, ctx := errgroup.WithContext(ctx)
	a.startObservability(ctx)

	if err := a.Clients.Bus.StartForwarder(ctx, a.Hub.Deliver); err != nil {
		return fmt.Errorf("start realtime forwarder: %w", err)
	}

	g.Go(func() error {
		a.Services.Publisher.Run(ctx)
		return nil
	})

	regs := []worker.Registration{a.listenerRegistration()}
	if a.Cfg.EmbeddedWorkers {
		regs = append(regs, a.consumerRegistration())
	}
	pool := worker.NewPool(a.Log, a.Clients.Broker, a.Cfg.WorkerConcurrency, instanceName(), regs...)
	pool.Start(ctx)
	g.Go(func() error {
		<-ctx.Done()
		pool.Wait()
		return nil
	})

	addr := ":" + strings.TrimPrefix(a.Cfg.Port, ":")
	a.Log.Info("Starting server", "addr", addr, "embedded_workers", a.Cfg.EmbeddedWorkers)
	g.Go(func() error {
		return a.Server.Run(ctx, addr)
	})
	return g.Wait()
}

// Consume runs only the configuration consumer pool.
func (a *App) Consume(ctx context.Context) error {
	if a == nil {
		return fmt.Errorf("app not initialized")
	}
	if !a.Cfg.UsesRedis() {
		a.Log.Warn("consume with an in-memory broker only sees messages published by this process")
	}
	a.startObservability(ctx)

	pool := worker.NewPool(a.Log, a.Clients.Broker, a.Cfg.WorkerConcurrency, instanceName(), a.consumerRegistration())
	pool.Start(ctx)
	<-ctx.Done()
	pool.Wait()
	return nil
}

func (a *App) consumerRegistration() worker.Registration {
	return worker.Registration{
		Name:        "cycle-config",
		Sub:         a.Services.Consumer.Subscription,
		Handler:     a.Services.Consumer.Handle,
		MaxAttempts: a.Services.Consumer.MaxAttempts(),
	}
}

func (a *App) listenerRegistration() worker.Registration {
	return worker.Registration{
		Name:    "cycle-result",
		Sub:     a.Services.Listener.Subscription,
		Handler: a.Services.Listener.Handle,
	}
}

func (a *App) startObservability(ctx context.Context) {
	m := observability.Current()
	if m == nil {
		return
	}
	m.StartServer(ctx, a.Log, a.Cfg.MetricsAddr)
	if a.DB != nil {
		m.StartPostgresCollector(ctx, a.Log, a.DB)
	}
	if a.Clients.Redis != nil {
		m.StartRedisCollector(ctx, a.Log, a.Clients.Redis)
	}
	if src, ok := a.Clients.Broker.(observability.PendingSource); ok {
		m.StartStreamCollector(ctx, a.Log, src, domainagg.RoutingCycleRequest, domainagg.RoutingCycleResult)
	}
}

func instanceName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "aggregation"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}

func (a *App) Close() {
	if a == nil {
		return
	}
	a.Clients.Close()
	if a.pg != nil {
		_ = a.pg.Close()
	}
	if a.otelShutdown != nil {
		_ = a.otelShutdown(context.Background())
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
