package domain

import (
	"github.com/yungbote/aggregation-backend/internal/domain/aggregation"
)

type (
	AggregationSession       = aggregation.Session
	AggregationType          = aggregation.Type
	SessionStatus            = aggregation.Status
	Code                     = aggregation.Code
	Product                  = aggregation.Product
	CycleCompletionEvent     = aggregation.CycleCompletionEvent
	ConfigurationResultEvent = aggregation.ConfigurationResultEvent
	SessionClosedEvent       = aggregation.SessionClosedEvent
)

const (
	AggregationPackage = aggregation.TypePackage
	AggregationPallet  = aggregation.TypePallet
	AggregationFull    = aggregation.TypeFull

	SessionOpen      = aggregation.StatusOpen
	SessionPaused    = aggregation.StatusPaused
	SessionClosed    = aggregation.StatusClosed
	SessionFinalized = aggregation.StatusFinalized
)

// Models lists every table owned by this service, in migration order.
func Models() []any {
	return []any{
		&Product{},
		&Code{},
		&AggregationSession{},
	}
}
