package pubsub

import "context"

// Broadcaster fans canonical trades out to interested subscribers outside
// this process. Publish failures are never fatal for the pipeline.
type Broadcaster interface {
	Publish(ctx context.Context, subject string, data interface{}) error
	Health(ctx context.Context) error
}
