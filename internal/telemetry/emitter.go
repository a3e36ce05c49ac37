package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"tempest-gateway/internal/metrics"
	"tempest-gateway/internal/station"
)

const (
	// Sentinels downstream consumers use to tell "no data" from a real zero.
	missingNumber = -9999.0
	missingString = "unknown"

	sensorName  = "tempest-weather-station"
	statusPoint = "tempest.status"
	statusDesc  = "Tempest gateway status (1=active, 0=error)"
)

// Emitter fans a parsed reading out into named telemetry points, at most
// once per message type within the configured interval. Heartbeats are not
// throttled: every dispatched message produces one tempest.status point.
type Emitter struct {
	pub      Publisher
	interval time.Duration
	scope    string
	metrics  *metrics.Metrics
	now      func() time.Time

	mu   sync.Mutex
	last map[string]time.Time
}

func NewEmitter(pub Publisher, interval time.Duration, scope string, m *metrics.Metrics) *Emitter {
	return &Emitter{
		pub:      pub,
		interval: interval,
		scope:    scope,
		metrics:  m,
		now:      time.Now,
		last:     make(map[string]time.Time),
	}
}

// MaybePublish fans out reading as data points unless a publish for msgType
// happened inside the interval window (force bypasses the window). Throttled
// data is dropped, not queued. A heartbeat is always emitted; a fan-out
// failure degrades it to status 0 with the error attached and never
// propagates to the caller.
func (e *Emitter) MaybePublish(ctx context.Context, r station.Reading, msgType string, force bool) {
	var err error
	if force || e.reserve(msgType) {
		err = e.fanOut(ctx, r)
	}
	e.heartbeat(ctx, err)
}

// reserve checks the throttle window and records the publish time as one
// atomic step, so two near-simultaneous messages of the same type cannot
// both pass the gate.
func (e *Emitter) reserve(msgType string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	now := e.now()
	if last, ok := e.last[msgType]; ok {
		if elapsed := now.Sub(last); elapsed < e.interval {
			e.metrics.PublishThrottled.Inc()
			slog.Debug("skipping data publish inside throttle window",
				"type", msgType,
				"elapsed", elapsed,
				"interval", e.interval,
			)
			return false
		}
	}
	e.last[msgType] = now
	return true
}

func (e *Emitter) fanOut(ctx context.Context, r station.Reading) error {
	switch v := r.(type) {
	case station.Observation:
		return e.publishObservation(ctx, v)
	case station.RapidWind:
		return e.publishRapidWind(ctx, v)
	case station.HubStatus:
		return e.publishHubStatus(ctx, v)
	case station.ErrorReading:
		slog.Debug("no fan-out for error reading", "type", v.Type, "reason", v.Reason)
	}
	return nil
}

func (e *Emitter) publishObservation(ctx context.Context, o station.Observation) error {
	ts := e.stamp(o.Timestamp)
	points := []Point{
		e.point("tempest.wind.speed.lull", num(o.Wind.LullKt), ts, station.TypeObservation, "knots", "Tempest wind lull speed"),
		e.point("tempest.wind.speed.avg", num(o.Wind.AvgKt), ts, station.TypeObservation, "knots", "Tempest average wind speed"),
		e.point("tempest.wind.speed.gust", num(o.Wind.GustKt), ts, station.TypeObservation, "knots", "Tempest wind gust speed"),
		e.point("tempest.wind.direction", num(o.Wind.DirectionDeg), ts, station.TypeObservation, "degrees", "Tempest wind direction"),
		e.point("tempest.pressure", num(o.Pressure.HPa), ts, station.TypeObservation, "hPa", "Tempest barometric pressure"),
		e.point("tempest.temperature", num(o.Temperature.C), ts, station.TypeObservation, "celsius", "Tempest air temperature"),
		e.point("tempest.humidity", num(o.HumidityPct), ts, station.TypeObservation, "percent", "Tempest relative humidity"),
		e.point("tempest.light.illuminance", num(o.Light.IlluminanceLux), ts, station.TypeObservation, "lux", "Tempest illuminance"),
		e.point("tempest.light.uv_index", num(o.Light.UVIndex), ts, station.TypeObservation, "index", "Tempest UV index"),
		e.point("tempest.light.solar_radiation", num(o.Light.SolarRadiationWM2), ts, station.TypeObservation, "W/m²", "Tempest solar radiation"),
		e.point("tempest.rain.since_report", num(o.Rain.SinceReportMm), ts, station.TypeObservation, "mm", "Tempest rain since report"),
		e.point("tempest.rain.daily", num(o.Rain.LocalDayMm), ts, station.TypeObservation, "mm", "Tempest daily rainfall"),
		e.point("tempest.lightning.distance", num(o.Lightning.AvgDistanceKm), ts, station.TypeObservation, "km", "Tempest lightning distance"),
		e.point("tempest.lightning.count", num(o.Lightning.StrikeCount), ts, station.TypeObservation, "count", "Tempest lightning strike count"),
		e.point("tempest.battery", num(o.BatteryV), ts, station.TypeObservation, "volts", "Tempest battery voltage"),
		e.point("tempest.report_interval", num(o.ReportIntervalMin), ts, station.TypeObservation, "minutes", "Tempest report interval"),
	}
	if err := e.emit(ctx, points); err != nil {
		return err
	}
	slog.Info("published observation",
		"wind_avg_kt", num(o.Wind.AvgKt),
		"wind_dir_deg", num(o.Wind.DirectionDeg),
		"temp_c", num(o.Temperature.C),
		"humidity_pct", num(o.HumidityPct),
	)
	return nil
}

func (e *Emitter) publishRapidWind(ctx context.Context, w station.RapidWind) error {
	ts := e.stamp(w.Timestamp)
	points := []Point{
		e.point("tempest.wind.speed.instant", num(w.InstantKt), ts, station.TypeRapidWind, "knots", "Tempest instant wind speed"),
		e.point("tempest.wind.direction.instant", num(w.DirectionDeg), ts, station.TypeRapidWind, "degrees", "Tempest instant wind direction"),
	}
	if err := e.emit(ctx, points); err != nil {
		return err
	}
	slog.Info("published rapid wind", "speed_kt", num(w.InstantKt), "dir_deg", num(w.DirectionDeg))
	return nil
}

func (e *Emitter) publishHubStatus(ctx context.Context, h station.HubStatus) error {
	ts := e.stamp(h.Timestamp)

	firmware := e.point("tempest.hub.firmware", str(h.Firmware), ts, station.TypeHubStatus, "", "Tempest hub firmware version")
	firmware.Meta["missing"] = missingString

	points := []Point{
		firmware,
		e.point("tempest.hub.uptime", num(h.UptimeS), ts, station.TypeHubStatus, "seconds", "Tempest hub uptime"),
		e.point("tempest.hub.rssi", num(h.RSSI), ts, station.TypeHubStatus, "dBm", "Tempest hub signal strength"),
	}
	if err := e.emit(ctx, points); err != nil {
		return err
	}
	slog.Info("published hub status", "firmware", str(h.Firmware), "uptime_s", num(h.UptimeS), "rssi", num(h.RSSI))
	return nil
}

// heartbeat emits one tempest.status point. A fan-out failure turns it into
// a degraded (0) status carrying the error string.
func (e *Emitter) heartbeat(ctx context.Context, cause error) {
	meta := map[string]any{
		"sensor":      sensorName,
		"description": statusDesc,
		"missing":     missingNumber,
	}
	value := 1
	if cause != nil {
		slog.Error("telemetry publish failed", "error", cause)
		e.metrics.PublishErrors.Inc()
		value = 0
		meta["error"] = cause.Error()
	} else {
		meta["last_update"] = e.now().Unix()
	}

	p := Point{
		Name:      statusPoint,
		Value:     value,
		Timestamp: e.now().UnixNano(),
		Scope:     e.scope,
		Meta:      meta,
	}
	if err := e.pub.Publish(ctx, p); err != nil {
		e.metrics.PublishErrors.Inc()
		slog.Error("heartbeat publish failed", "error", err)
		return
	}
	e.metrics.PointsPublished.Inc()
}

// PublishShutdown emits the terminal inactive status point.
func (e *Emitter) PublishShutdown(ctx context.Context) {
	p := Point{
		Name:      statusPoint,
		Value:     0,
		Timestamp: e.now().UnixNano(),
		Scope:     e.scope,
		Meta: map[string]any{
			"sensor":      sensorName,
			"description": statusDesc,
			"state":       "shutdown",
			"missing":     missingNumber,
		},
	}
	if err := e.pub.Publish(ctx, p); err != nil {
		e.metrics.PublishErrors.Inc()
		slog.Error("shutdown status publish failed", "error", err)
	}
}

func (e *Emitter) emit(ctx context.Context, points []Point) error {
	for _, p := range points {
		if err := e.pub.Publish(ctx, p); err != nil {
			return fmt.Errorf("publish %s: %w", p.Name, err)
		}
		e.metrics.PointsPublished.Inc()
	}
	return nil
}

func (e *Emitter) point(name string, value any, ts int64, source, units, desc string) Point {
	meta := map[string]any{
		"sensor":      sensorName,
		"description": desc,
		"source":      source,
		"missing":     missingNumber,
	}
	if units != "" {
		meta["units"] = units
	}
	return Point{Name: name, Value: value, Timestamp: ts, Scope: e.scope, Meta: meta}
}

// stamp derives the point timestamp from the reading's epoch-seconds
// timestamp when present, else the current wall clock.
func (e *Emitter) stamp(epochSeconds *float64) int64 {
	if epochSeconds != nil {
		return int64(*epochSeconds * float64(time.Second))
	}
	return e.now().UnixNano()
}

func num(v *float64) float64 {
	if v == nil {
		return missingNumber
	}
	return *v
}

func str(v *string) string {
	if v == nil || *v == "" {
		return missingString
	}
	return *v
}
