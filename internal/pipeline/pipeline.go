// Package pipeline runs one decoded station message through the shared
// store, parse and publish path. Both transports feed the same pipeline.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"tempest-gateway/internal/metrics"
	"tempest-gateway/internal/station"
	"tempest-gateway/internal/store"
	"tempest-gateway/internal/telemetry"
)

type Pipeline struct {
	latest  *store.Latest
	emitter *telemetry.Emitter
	metrics *metrics.Metrics
	now     func() time.Time
}

func New(latest *store.Latest, emitter *telemetry.Emitter, m *metrics.Metrics) *Pipeline {
	return &Pipeline{
		latest:  latest,
		emitter: emitter,
		metrics: m,
		now:     time.Now,
	}
}

// Handle processes one raw message. A returned error means the bytes were
// not a JSON object; the transport decides whether its connection survives.
// Everything past decoding is absorbed here: unknown types are recorded raw
// only (evicting any stale parsed entry), malformed payloads become error
// readings, and publish failures surface as degraded heartbeats.
func (p *Pipeline) Handle(ctx context.Context, data []byte, remote string) error {
	var env station.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		p.metrics.DecodeErrors.Inc()
		return fmt.Errorf("decode message: %w", err)
	}

	msgType := env.MessageType()
	p.metrics.MessagesReceived.WithLabelValues(msgType).Inc()
	slog.Debug("received message", "type", msgType, "remote", remote, "bytes", len(data))

	p.latest.SetRaw(msgType, env)

	r, ok := station.Parse(msgType, env, p.now())
	if !ok {
		p.latest.DropParsed(msgType)
		slog.Debug("received unknown message type", "type", msgType)
		return nil
	}
	if er, bad := r.(station.ErrorReading); bad {
		p.metrics.ParseErrors.Inc()
		slog.Warn("malformed payload", "type", msgType, "reason", er.Reason)
	}
	p.latest.SetParsed(msgType, r)

	p.emitter.MaybePublish(ctx, r, msgType, false)
	return nil
}
