// Package bus defines the event bus the two services choreograph over.
// Delivery is at-least-once: a handler that returns an error is redelivered,
// so every handler must be idempotent.
package bus

import (
	"context"
)

// Topics carrying the three saga events.
const (
	TopicTransactionRequested = "transaction.requested"
	TopicOtpVerified          = "transaction.otp-verified"
	TopicTransactionCompleted = "transaction.completed"
)

// Handler consumes one event payload. Returning nil acknowledges the
// message; returning an error leaves it for redelivery.
type Handler func(ctx context.Context, payload []byte) error

// Bus is the durable pub/sub transport between the wallet service and the
// transaction coordinator.
type Bus interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	Subscribe(topic string, h Handler) error
	Close() error
}
