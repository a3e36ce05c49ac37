// Package listener provides the TCP and UDP transport adapters that receive
// raw station messages and hand them to a shared handler.
package listener

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	"tempest-gateway/internal/metrics"
)

// Handler consumes one raw station message. A non-nil error means the bytes
// were not valid JSON; transports treat that as a skippable message.
type Handler func(ctx context.Context, data []byte, remote string) error

// MaxFrameBytes bounds the TCP length prefix; anything above it (or zero)
// is a protocol violation.
const MaxFrameBytes = 65535

// TCP accepts persistent connections carrying length-prefixed JSON frames:
// a 4-byte unsigned big-endian length followed by that many body bytes.
type TCP struct {
	port        int
	readTimeout time.Duration
	metrics     *metrics.Metrics
}

// NewTCP builds a TCP listener. readTimeout is applied before every length
// and body read so a stalled peer cannot hold a handler forever; zero
// disables the deadline.
func NewTCP(port int, readTimeout time.Duration, m *metrics.Metrics) *TCP {
	return &TCP{port: port, readTimeout: readTimeout, metrics: m}
}

func (t *TCP) Run(ctx context.Context, h Handler) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", fmt.Sprintf(":%d", t.port))
	if err != nil {
		return fmt.Errorf("tcp listen on :%d: %w", t.port, err)
	}
	slog.Info("tcp listener started", "port", t.port)
	return t.serve(ctx, ln, h)
}

func (t *TCP) serve(ctx context.Context, ln net.Listener, h Handler) error {
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				slog.Info("tcp listener stopped")
				return nil
			}
			slog.Error("tcp accept", "error", err)
			continue
		}
		t.metrics.ConnectionsAccepted.Inc()
		slog.Debug("accepted connection", "remote", conn.RemoteAddr().String())
		go t.handleConn(ctx, conn, h)
	}
}

// handleConn reads frames until the peer disconnects or violates the
// protocol. One connection's fate never touches another's.
func (t *TCP) handleConn(ctx context.Context, conn net.Conn, h Handler) {
	defer conn.Close()
	remote := conn.RemoteAddr().String()
	header := make([]byte, 4)

	for {
		if !t.armDeadline(conn, remote) {
			return
		}
		if _, err := io.ReadFull(conn, header); err != nil {
			logConnEnd(remote, "length read", err)
			return
		}

		length := binary.BigEndian.Uint32(header)
		if length == 0 || length > MaxFrameBytes {
			t.metrics.FramingViolations.Inc()
			slog.Warn("invalid message length, closing connection", "length", length, "remote", remote)
			return
		}

		body := make([]byte, length)
		if !t.armDeadline(conn, remote) {
			return
		}
		if _, err := io.ReadFull(conn, body); err != nil {
			logConnEnd(remote, "body read", err)
			return
		}

		if err := h(ctx, body, remote); err != nil {
			slog.Warn("skipping invalid frame", "remote", remote, "bytes", length, "error", err)
		}
	}
}

func (t *TCP) armDeadline(conn net.Conn, remote string) bool {
	if t.readTimeout <= 0 {
		return true
	}
	if err := conn.SetReadDeadline(time.Now().Add(t.readTimeout)); err != nil {
		slog.Debug("set read deadline failed", "remote", remote, "error", err)
		return false
	}
	return true
}

func logConnEnd(remote, stage string, err error) {
	if errors.Is(err, io.EOF) {
		slog.Debug("connection closed", "remote", remote)
		return
	}
	slog.Debug("connection ended", "remote", remote, "stage", stage, "error", err)
}
