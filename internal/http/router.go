package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/aggregation-backend/internal/http/handlers"
	httpMW "github.com/yungbote/aggregation-backend/internal/http/middleware"
	"github.com/yungbote/aggregation-backend/internal/observability"
	"github.com/yungbote/aggregation-backend/internal/pkg/logger"
)

type RouterConfig struct {
	Log         *logger.Logger
	ServiceName string
	CORSOrigins []string
	Metrics     *observability.Metrics

	AggregationHandler *httpH.AggregationHandler
	RealtimeHandler    *httpH.RealtimeHandler
	HealthHandler      *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.AttachCorrelationID())
	r.Use(httpMW.CORS(cfg.CORSOrigins...))
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.RequestLogger(cfg.Log))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
		r.GET("/readyz", cfg.HealthHandler.Ready)
	}

	api := r.Group("/api")
	sessions := api.Group("/aggregation/sessions")
	{
		if cfg.AggregationHandler != nil {
			sessions.POST("", cfg.AggregationHandler.StartSession)
			sessions.GET("/:id", cfg.AggregationHandler.GetSession)
			sessions.POST("/:id/scan", cfg.AggregationHandler.Scan)
			sessions.POST("/:id/finalize", cfg.AggregationHandler.Finalize)
			sessions.POST("/:id/pause", cfg.AggregationHandler.Pause)
			sessions.POST("/:id/resume", cfg.AggregationHandler.Resume)
			sessions.POST("/:id/close", cfg.AggregationHandler.Close)
		}

		// Realtime (SSE)
		if cfg.RealtimeHandler != nil {
			sessions.GET("/:id/stream", cfg.RealtimeHandler.SessionStream)
		}
	}

	return r
}
