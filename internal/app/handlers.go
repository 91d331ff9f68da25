package app

import (
	"context"
	"errors"

	"gorm.io/gorm"

	apphttp "github.com/yungbote/aggregation-backend/internal/http"
	httpH "github.com/yungbote/aggregation-backend/internal/http/handlers"
	"github.com/yungbote/aggregation-backend/internal/observability"
	"github.com/yungbote/aggregation-backend/internal/pkg/logger"
	"github.com/yungbote/aggregation-backend/internal/realtime"
)

type Handlers struct {
	Health      *httpH.HealthHandler
	Aggregation *httpH.AggregationHandler
	Realtime    *httpH.RealtimeHandler
}

func wireHandlers(log *logger.Logger, services Services, clients Clients, db *gorm.DB, hub *realtime.SSEHub) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Health:      httpH.NewHealthHandler(healthChecks(db, clients)...),
		Aggregation: httpH.NewAggregationHandler(log, services.Sessions),
		Realtime:    httpH.NewRealtimeHandler(log, hub, services.Sessions),
	}
}

func healthChecks(db *gorm.DB, clients Clients) []httpH.HealthCheck {
	var checks []httpH.HealthCheck
	if db != nil {
		checks = append(checks, httpH.HealthCheck{Name: "postgres", Check: func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		}})
	}
	if clients.Redis != nil {
		checks = append(checks, httpH.HealthCheck{Name: "redis", Check: func(ctx context.Context) error {
			return clients.Redis.Ping(ctx).Err()
		}})
	}
	if clients.Broker == nil {
		checks = append(checks, httpH.HealthCheck{Name: "broker", Check: func(context.Context) error {
			return errors.New("broker not configured")
		}})
	}
	return checks
}

func wireServer(log *logger.Logger, cfg Config, handlers Handlers) *apphttp.Server {
	serviceName := ""
	if cfg.OtelEnabled {
		serviceName = cfg.OtelServiceName
	}
	return apphttp.NewServer(apphttp.RouterConfig{
		Log:                log.With("component", "http"),
		ServiceName:        serviceName,
		CORSOrigins:        cfg.CORSOrigins,
		Metrics:            observability.Current(),
		AggregationHandler: handlers.Aggregation,
		RealtimeHandler:    handlers.Realtime,
		HealthHandler:      handlers.Health,
	})
}
