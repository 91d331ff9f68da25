package bus

import (
	"context"

	"github.com/yungbote/aggregation-backend/internal/realtime"
)

// Bus fans realtime messages out across service instances; each instance
// forwards what it receives into its local hub.
type Bus interface {
	Publish(ctx context.Context, msg realtime.SSEMessage) error
	StartForwarder(ctx context.Context, onMsg func(m realtime.SSEMessage)) error
	Close() error
}
