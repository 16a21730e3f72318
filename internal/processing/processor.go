// Package processing holds the per-event-family processors the stream
// consumer dispatches to. Implementations must be idempotent: a replay of the
// same event after a crash-before-commit must not corrupt warehouse state.
package processing

import (
	"context"

	"github.com/ecomstream/analytics/internal/model"
)

type EventProcessor interface {
	// Process applies the event's warehouse side-effect. A non-nil error means
	// the message must not be committed (the broker will redeliver it).
	Process(ctx context.Context, evt model.Event) error

	// EventTypes lists the event types this processor claims.
	EventTypes() []model.EventType
}
