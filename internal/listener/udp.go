package listener

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"

	"tempest-gateway/internal/metrics"
)

// UDP receives station broadcasts; each datagram is one complete JSON
// document. A datagram that fails to decode is silently discarded.
type UDP struct {
	port    int
	metrics *metrics.Metrics
}

func NewUDP(port int, m *metrics.Metrics) *UDP {
	return &UDP{port: port, metrics: m}
}

func (u *UDP) Run(ctx context.Context, h Handler) error {
	var lc net.ListenConfig
	pc, err := lc.ListenPacket(ctx, "udp", fmt.Sprintf(":%d", u.port))
	if err != nil {
		return fmt.Errorf("udp listen on :%d: %w", u.port, err)
	}
	slog.Info("udp listener started", "port", u.port)
	return u.serve(ctx, pc, h)
}

func (u *UDP) serve(ctx context.Context, pc net.PacketConn, h Handler) error {
	go func() {
		<-ctx.Done()
		_ = pc.Close()
	}()

	buf := make([]byte, MaxFrameBytes)
	for {
		n, addr, err := pc.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				slog.Info("udp listener stopped")
				return nil
			}
			slog.Error("udp read", "error", err)
			continue
		}

		data := make([]byte, n)
		copy(data, buf[:n])
		if err := h(ctx, data, addr.String()); err != nil {
			slog.Debug("discarding non-json datagram", "remote", addr.String(), "error", err)
		}
	}
}
