package app

import (
	"github.com/yungbote/aggregation-backend/internal/pkg/logger"
	"github.com/yungbote/aggregation-backend/internal/realtime"
	aggregation "github.com/yungbote/aggregation-backend/internal/services/aggregation"
)

type Services struct {
	Validator aggregation.Validator
	Tracker   aggregation.Tracker
	Finalizer aggregation.Finalizer
	Notifier  aggregation.Notifier
	Sessions  aggregation.SessionService

	Publisher *aggregation.Publisher
	Consumer  *aggregation.Consumer
	Listener  *aggregation.ResultListener
}

func wireServices(log *logger.Logger, cfg Config, repos Repos, clients Clients, hub *realtime.SSEHub) Services {
	log.Info("Wiring services...")

	pubCfg := aggregation.DefaultPublisherConfig()
	pubCfg.QueueSize = cfg.PublishQueueSize
	pubCfg.AttemptTimeout = cfg.PublishTimeout
	pubCfg.BreakerThreshold = cfg.BreakerThreshold
	pubCfg.BreakerTimeout = cfg.BreakerTimeout
	publisher := aggregation.NewPublisher(log, clients.Broker, pubCfg)

	notifier := aggregation.NewNotifier(log, clients.Bus, hub)
	validator := aggregation.NewValidator(log, repos.Codes)
	tracker := aggregation.NewTracker(log, repos.Sessions, publisher)
	finalizer := aggregation.NewFinalizer(log, repos.Sessions, publisher, notifier)
	sessions := aggregation.NewSessionService(
		log,
		repos.Sessions,
		repos.Products,
		validator,
		tracker,
		finalizer,
		publisher,
		notifier,
	)

	consumer := aggregation.NewConsumer(log, repos.Codes, clients.Broker, aggregation.ConsumerConfig{
		MaxAttempts:     cfg.ConsumerMaxAttempts,
		LoadConcurrency: cfg.ConsumerLoadLimit,
	})

	return Services{
		Validator: validator,
		Tracker:   tracker,
		Finalizer: finalizer,
		Notifier:  notifier,
		Sessions:  sessions,
		Publisher: publisher,
		Consumer:  consumer,
		Listener:  aggregation.NewResultListener(log, notifier),
	}
}
