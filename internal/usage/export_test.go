package usage

import "context"

// DBPool is the database pool interface used by the recorder, exported for mocking.
type DBPool = dbPool

// WithNewPool overrides the default database pool constructor for tests.
func WithNewPool(newPool func(ctx context.Context, dsn string) (DBPool, error)) Options {
	return func(o *options) {
		o.newPool = newPool
	}
}

// WithQueueSize overrides the default write queue size for tests.
func WithQueueSize(size int) Options {
	return func(o *options) {
		o.queueSize = size
	}
}
