package interfaces

import "context"

// EventPublisher emits domain events after an operation is durably
// complete. Publishing is best effort; a publish failure never rolls
// back a committed ledger operation.
type EventPublisher interface {
	Publish(ctx context.Context, topic string, event any) error
}
