package aggregation

import (
	"time"

	"github.com/google/uuid"
)

// Broker routing keys. Requests and results use distinct keys so the consumer
// and the result listener never read each other's messages.
const (
	RoutingCycleRequest    = "aggregation.cycle.request"
	RoutingCycleResult     = "aggregation.cycle.result"
	RoutingCycleDeadLetter = "aggregation.cycle.deadletter"
	RoutingSessionClosed   = "aggregation.session.closed"
)

// CycleCompletionEvent is published once per accepted parent. Immutable once
// published.
type CycleCompletionEvent struct {
	EventID              uuid.UUID `json:"eventId"`
	SessionID            uuid.UUID `json:"sessionId"`
	ParentCode           string    `json:"parentCode"`
	ChildCodes           []string  `json:"childCodes"`
	CycleNumber          int       `json:"cycleNumber"`
	CorrelationID        string    `json:"correlationId,omitempty"`
	Timestamp            time.Time `json:"timestamp"`
	OutersPerAggregation int       `json:"outersPerAggregation"`
	TotalOuters          int       `json:"totalOuters"`
	TotalParents         int       `json:"totalParents"`
	Level                Level     `json:"level"`
}

func NewCycleCompletionEvent(s *Session, c *CycleCompletion, correlationID string, now time.Time) CycleCompletionEvent {
	children := make([]string, len(c.ChildCodes))
	copy(children, c.ChildCodes)
	return CycleCompletionEvent{
		EventID:              uuid.New(),
		SessionID:            s.ID,
		ParentCode:           c.ParentCode,
		ChildCodes:           children,
		CycleNumber:          c.CycleNumber,
		CorrelationID:        correlationID,
		Timestamp:            now.UTC(),
		OutersPerAggregation: s.OutersPerAggregation,
		TotalOuters:          c.TotalOuters,
		TotalParents:         c.TotalParents,
		Level:                c.Level,
	}
}

// PalletClosureEvent links every package of a finalized FULL session to its
// target pallet. It flows through the same consumer as cycle events.
func PalletClosureEvent(s *Session, correlationID string, now time.Time) (CycleCompletionEvent, bool) {
	if s == nil || s.AggregationType != TypeFull || !s.HasTarget() {
		return CycleCompletionEvent{}, false
	}
	children := make([]string, len(s.ProcessedParentCodes))
	copy(children, s.ProcessedParentCodes)
	return CycleCompletionEvent{
		EventID:              uuid.New(),
		SessionID:            s.ID,
		ParentCode:           *s.TargetCode,
		ChildCodes:           children,
		CycleNumber:          s.TotalParents() + 1,
		CorrelationID:        correlationID,
		Timestamp:            now.UTC(),
		OutersPerAggregation: s.PackagesPerPallet,
		TotalOuters:          s.TotalOuters(),
		TotalParents:         s.TotalParents(),
		Level:                LevelPallet,
	}, true
}

// ConfigurationResultEvent reports the outcome of one consumed cycle event.
type ConfigurationResultEvent struct {
	EventID              uuid.UUID `json:"eventId"`
	SessionID            uuid.UUID `json:"sessionId"`
	ParentCode           string    `json:"parentCode"`
	CycleNumber          int       `json:"cycleNumber"`
	Success              bool      `json:"success"`
	LinkedChildren       []string  `json:"linkedChildren"`
	ErrorMessage         string    `json:"errorMessage,omitempty"`
	ProcessingDurationMs int64     `json:"processingDurationMs"`
	Attempts             int       `json:"attempts"`
	Timestamp            time.Time `json:"timestamp"`
}

type SessionClosedEvent struct {
	EventID      uuid.UUID `json:"eventId"`
	SessionID    uuid.UUID `json:"sessionId"`
	Status       Status    `json:"status"`
	Type         Type      `json:"aggregationType"`
	TargetCode   string    `json:"targetCode,omitempty"`
	TotalOuters  int       `json:"totalOuters"`
	TotalParents int       `json:"totalParents"`
	Timestamp    time.Time `json:"timestamp"`
}

func NewSessionClosedEvent(s *Session, now time.Time) SessionClosedEvent {
	ev := SessionClosedEvent{
		EventID:      uuid.New(),
		SessionID:    s.ID,
		Status:       s.Status,
		Type:         s.AggregationType,
		TotalOuters:  s.TotalOuters(),
		TotalParents: s.TotalParents(),
		Timestamp:    now.UTC(),
	}
	if s.HasTarget() {
		ev.TargetCode = *s.TargetCode
	}
	return ev
}
