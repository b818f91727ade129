package model

import "context"

// Sink defines a generic destination for tagged flow records.
type Sink interface {
	// Name returns the sink type, e.g. "clickhouse".
	Name() string

	// Write persists or publishes a batch of tagged records.
	Write(ctx context.Context, records []TaggedFlowRecord) error

	// Close releases the underlying connection.
	Close() error
}
