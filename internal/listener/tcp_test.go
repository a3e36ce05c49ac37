package listener

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"tempest-gateway/internal/metrics"
)

func frame(body string) []byte {
	buf := make([]byte, 4+len(body))
	binary.BigEndian.PutUint32(buf, uint32(len(body)))
	copy(buf[4:], body)
	return buf
}

// startTCP serves on an ephemeral local port and returns its address, a
// cancel func and the serve result channel.
func startTCP(t *testing.T, m *metrics.Metrics, readTimeout time.Duration, h Handler) (string, context.CancelFunc, chan error) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	srv := NewTCP(0, readTimeout, m)
	go func() { done <- srv.serve(ctx, ln, h) }()
	return ln.Addr().String(), cancel, done
}

func collector(payloads chan []byte) Handler {
	return func(_ context.Context, data []byte, _ string) error {
		cp := make([]byte, len(data))
		copy(cp, data)
		payloads <- cp
		return nil
	}
}

func waitPayload(t *testing.T, payloads chan []byte) []byte {
	t.Helper()
	select {
	case p := <-payloads:
		return p
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for payload")
		return nil
	}
}

func waitClosed(t *testing.T, conn net.Conn) {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := conn.Read(make([]byte, 1)); !errors.Is(err, io.EOF) {
		t.Errorf("expected connection close, read err = %v", err)
	}
}

func TestTCPServe(t *testing.T) {
	t.Run("delivers framed messages in order", func(t *testing.T) {
		m := metrics.New(prometheus.NewRegistry())
		payloads := make(chan []byte, 4)
		addr, cancel, _ := startTCP(t, m, time.Second, collector(payloads))
		defer cancel()

		conn, err := net.Dial("tcp", addr)
		if err != nil {
			t.Fatalf("dial: %v", err)
		}
		defer conn.Close()

		for _, body := range []string{`{"type":"rapid_wind"}`, `{"type":"obs_st"}`} {
			if _, err := conn.Write(frame(body)); err != nil {
				t.Fatalf("write: %v", err)
			}
		}

		if got := string(waitPayload(t, payloads)); got != `{"type":"rapid_wind"}` {
			t.Errorf("first payload = %s", got)
		}
		if got := string(waitPayload(t, payloads)); got != `{"type":"obs_st"}` {
			t.Errorf("second payload = %s", got)
		}
		if got := testutil.ToFloat64(m.ConnectionsAccepted); got != 1 {
			t.Errorf("connections accepted = %v; want 1", got)
		}
	})

	t.Run("one frame then close processes exactly one message", func(t *testing.T) {
		m := metrics.New(prometheus.NewRegistry())
		payloads := make(chan []byte, 2)
		addr, cancel, _ := startTCP(t, m, time.Second, collector(payloads))
		defer cancel()

		conn, err := net.Dial("tcp", addr)
		if err != nil {
			t.Fatalf("dial: %v", err)
		}
		if _, err := conn.Write(frame(`{"type":"hub_status"}`)); err != nil {
			t.Fatalf("write: %v", err)
		}
		_ = conn.Close()

		if got := string(waitPayload(t, payloads)); got != `{"type":"hub_status"}` {
			t.Errorf("payload = %s", got)
		}
		select {
		case extra := <-payloads:
			t.Errorf("unexpected second payload: %s", extra)
		case <-time.After(200 * time.Millisecond):
		}
		if got := testutil.ToFloat64(m.FramingViolations); got != 0 {
			t.Errorf("framing violations = %v; want 0 (EOF is a clean end)", got)
		}
	})

	t.Run("zero length closes the connection", func(t *testing.T) {
		m := metrics.New(prometheus.NewRegistry())
		payloads := make(chan []byte, 1)
		addr, cancel, _ := startTCP(t, m, time.Second, collector(payloads))
		defer cancel()

		conn, err := net.Dial("tcp", addr)
		if err != nil {
			t.Fatalf("dial: %v", err)
		}
		defer conn.Close()

		if _, err := conn.Write([]byte{0, 0, 0, 0}); err != nil {
			t.Fatalf("write: %v", err)
		}
		waitClosed(t, conn)
		if got := testutil.ToFloat64(m.FramingViolations); got != 1 {
			t.Errorf("framing violations = %v; want 1", got)
		}
		if len(payloads) != 0 {
			t.Error("handler must not run for a violating frame")
		}
	})

	t.Run("oversize length closes the connection", func(t *testing.T) {
		m := metrics.New(prometheus.NewRegistry())
		addr, cancel, _ := startTCP(t, m, time.Second, collector(make(chan []byte, 1)))
		defer cancel()

		conn, err := net.Dial("tcp", addr)
		if err != nil {
			t.Fatalf("dial: %v", err)
		}
		defer conn.Close()

		header := make([]byte, 4)
		binary.BigEndian.PutUint32(header, 70000)
		if _, err := conn.Write(header); err != nil {
			t.Fatalf("write: %v", err)
		}
		waitClosed(t, conn)
		if got := testutil.ToFloat64(m.FramingViolations); got != 1 {
			t.Errorf("framing violations = %v; want 1", got)
		}
	})

	t.Run("handler error skips the frame but keeps the connection", func(t *testing.T) {
		m := metrics.New(prometheus.NewRegistry())
		payloads := make(chan []byte, 2)
		h := func(ctx context.Context, data []byte, remote string) error {
			if string(data) == "not json" {
				return errors.New("invalid json")
			}
			return collector(payloads)(ctx, data, remote)
		}
		addr, cancel, _ := startTCP(t, m, time.Second, h)
		defer cancel()

		conn, err := net.Dial("tcp", addr)
		if err != nil {
			t.Fatalf("dial: %v", err)
		}
		defer conn.Close()

		if _, err := conn.Write(frame("not json")); err != nil {
			t.Fatalf("write: %v", err)
		}
		if _, err := conn.Write(frame(`{"type":"hub_status"}`)); err != nil {
			t.Fatalf("write: %v", err)
		}
		if got := string(waitPayload(t, payloads)); got != `{"type":"hub_status"}` {
			t.Errorf("payload after skipped frame = %s", got)
		}
	})

	t.Run("stalled body read is closed by the deadline", func(t *testing.T) {
		m := metrics.New(prometheus.NewRegistry())
		payloads := make(chan []byte, 1)
		addr, cancel, _ := startTCP(t, m, 300*time.Millisecond, collector(payloads))
		defer cancel()

		conn, err := net.Dial("tcp", addr)
		if err != nil {
			t.Fatalf("dial: %v", err)
		}
		defer conn.Close()

		// Valid prefix promising 100 bytes that never arrive.
		header := make([]byte, 4)
		binary.BigEndian.PutUint32(header, 100)
		if _, err := conn.Write(header); err != nil {
			t.Fatalf("write: %v", err)
		}
		waitClosed(t, conn)
		if len(payloads) != 0 {
			t.Error("handler must not run for an incomplete frame")
		}
	})

	t.Run("zero read timeout leaves a stalled peer open", func(t *testing.T) {
		m := metrics.New(prometheus.NewRegistry())
		payloads := make(chan []byte, 1)
		addr, cancel, _ := startTCP(t, m, 0, collector(payloads))
		defer cancel()

		conn, err := net.Dial("tcp", addr)
		if err != nil {
			t.Fatalf("dial: %v", err)
		}
		defer conn.Close()

		body := `{"type":"hub_status"}`
		header := make([]byte, 4)
		binary.BigEndian.PutUint32(header, uint32(len(body)))
		if _, err := conn.Write(header); err != nil {
			t.Fatalf("write: %v", err)
		}
		time.Sleep(400 * time.Millisecond)
		if _, err := conn.Write([]byte(body)); err != nil {
			t.Fatalf("late body write: %v", err)
		}
		if got := string(waitPayload(t, payloads)); got != body {
			t.Errorf("payload after stall = %s", got)
		}
	})

	t.Run("context cancel stops the listener", func(t *testing.T) {
		m := metrics.New(prometheus.NewRegistry())
		_, cancel, done := startTCP(t, m, time.Second, collector(make(chan []byte, 1)))

		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("serve returned %v; want nil", err)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("serve did not stop after cancel")
		}
	})
}
