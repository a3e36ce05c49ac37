// Package telemetry shapes parsed readings into named bus points and
// rate-limits how often each message type is published.
package telemetry

import "context"

// Point is one named outbound telemetry value.
type Point struct {
	Name      string         `json:"name"`
	Value     any            `json:"value"`
	Timestamp int64          `json:"timestamp_ns"`
	Scope     string         `json:"scope"`
	Meta      map[string]any `json:"meta,omitempty"`
}

// Publisher is the external telemetry-bus capability. Delivery is
// best-effort; implementations report the failure and nothing is retried
// here.
type Publisher interface {
	Publish(ctx context.Context, p Point) error
	Close() error
}
