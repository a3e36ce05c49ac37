package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tempest-gateway/internal/config"
	"tempest-gateway/internal/kafka"
	"tempest-gateway/internal/listener"
	"tempest-gateway/internal/metrics"
	"tempest-gateway/internal/mqtt"
	"tempest-gateway/internal/pipeline"
	"tempest-gateway/internal/store"
	"tempest-gateway/internal/telemetry"
)

const (
	// How long to wait for first data before the detection log.
	detectionGrace = 5 * time.Second
	// Cadence of the periodic liveness log (not a telemetry point).
	statusLogInterval = 60 * time.Second
)

func Run(ctx context.Context, cfg config.Config) error {
	slog.Info("initializing gateway",
		"protocol", cfg.Protocol,
		"port", cfg.Port(),
		"publish_interval", cfg.PublishInterval,
		"publish_scope", cfg.PublishScope,
		"bus", cfg.Bus,
		"read_timeout", cfg.ReadTimeout,
		"skip_port_check", cfg.SkipPortCheck,
		"env_overrides", cfg.EnvOverrides,
	)

	m := metrics.New(prometheus.DefaultRegisterer)
	if cfg.MetricsAddr != "" {
		go serveMetrics(ctx, cfg.MetricsAddr)
	}

	if !cfg.SkipPortCheck {
		preflightPortCheck(cfg)
	}

	pub, err := newPublisher(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := pub.Close(); closeErr != nil {
			slog.Error("publisher close", "error", closeErr)
		}
	}()

	latest := store.NewLatest()
	emitter := telemetry.NewEmitter(pub, cfg.PublishInterval, cfg.PublishScope, m)
	pipe := pipeline.New(latest, emitter, m)

	go func() {
		var runErr error
		switch cfg.Protocol {
		case "udp":
			runErr = listener.NewUDP(cfg.UDPPort, m).Run(ctx, pipe.Handle)
		default:
			runErr = listener.NewTCP(cfg.TCPPort, cfg.ReadTimeout, m).Run(ctx, pipe.Handle)
		}
		// A bind failure ends the listener's task only; the runner keeps
		// logging status so the degradation is visible.
		if runErr != nil {
			slog.Error("listener exited", "protocol", cfg.Protocol, "error", runErr)
		}
	}()

	slog.Info("waiting for station data", "protocol", cfg.Protocol)
	select {
	case <-ctx.Done():
		return shutdown(emitter)
	case <-time.After(detectionGrace):
	}
	logDetection(latest, cfg)

	ticker := time.NewTicker(statusLogInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return shutdown(emitter)
		case <-ticker.C:
			if n := latest.Count(); n > 0 {
				slog.Info("status", "active", true, "message_types", n)
			} else {
				slog.Warn("status: no data received from station")
			}
		}
	}
}

// shutdown publishes the terminal inactive status before the publisher is
// released. In-flight connection handlers are abandoned, not drained.
func shutdown(emitter *telemetry.Emitter) error {
	slog.Info("gateway shutting down, publishing inactive status")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	emitter.PublishShutdown(ctx)
	return nil
}

func newPublisher(ctx context.Context, cfg config.Config) (telemetry.Publisher, error) {
	switch cfg.Bus {
	case "kafka":
		slog.Info("using kafka telemetry bus", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
		return kafka.NewPublisher(cfg.KafkaBrokers, cfg.KafkaTopic), nil
	default:
		client := mqtt.NewPublisher(mqtt.Options{
			Broker:      cfg.MQTTBroker,
			Port:        cfg.MQTTPort,
			ClientID:    cfg.MQTTClientID,
			TopicPrefix: cfg.MQTTTopicPrefix,
		})
		// Bounded initial connect so a down broker doesn't block startup;
		// the client keeps retrying in the background.
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := client.Connect(connectCtx); err != nil {
			slog.Warn("mqtt connect failed, retrying in background", "error", err)
		}
		return client, nil
	}
}

// preflightPortCheck binds and releases the listen port once so a firewall
// or conflicting service shows up in the logs before the listener starts.
// Diagnostic only: the listener still runs (and fails) on its own.
func preflightPortCheck(cfg config.Config) {
	network, port := cfg.Protocol, cfg.Port()
	addr := fmt.Sprintf(":%d", port)
	slog.Info("checking port accessibility", "network", network, "port", port)

	var err error
	if network == "udp" {
		var pc net.PacketConn
		pc, err = net.ListenPacket("udp", addr)
		if err == nil {
			_ = pc.Close()
		}
	} else {
		var ln net.Listener
		ln, err = net.Listen("tcp", addr)
		if err == nil {
			_ = ln.Close()
		}
	}
	if err != nil {
		slog.Warn("port binding failed", "network", network, "port", port, "error", err)
		slog.Warn("firewall rules may be required",
			"hint", fmt.Sprintf("iptables -I INPUT -p %s --dport %d -j ACCEPT", network, port),
		)
		return
	}
	slog.Info("port is accessible", "network", network, "port", port)
}

func logDetection(latest *store.Latest, cfg config.Config) {
	if types := latest.MessageTypes(); len(types) > 0 {
		slog.Info("station detected", "message_types", types)
		return
	}
	slog.Warn("no station data received yet")
	if cfg.Protocol == "tcp" {
		slog.Info("check that the hub is configured to send TCP data and that connections can reach the port",
			"port", cfg.TCPPort,
		)
	} else {
		slog.Info("check that the hub is on the same network and broadcasting",
			"port", cfg.UDPPort,
		)
	}
}

func serveMetrics(ctx context.Context, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("metrics listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("metrics server", "error", err)
	}
}
