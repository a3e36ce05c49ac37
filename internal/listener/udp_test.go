package listener

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"tempest-gateway/internal/metrics"
)

func startUDP(t *testing.T, h Handler) (net.Addr, context.CancelFunc, chan error) {
	t.Helper()
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen packet: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	srv := NewUDP(0, metrics.New(prometheus.NewRegistry()))
	go func() { done <- srv.serve(ctx, pc, h) }()
	return pc.LocalAddr(), cancel, done
}

func TestUDPServe(t *testing.T) {
	t.Run("delivers datagrams", func(t *testing.T) {
		payloads := make(chan []byte, 2)
		addr, cancel, _ := startUDP(t, collector(payloads))
		defer cancel()

		conn, err := net.Dial("udp", addr.String())
		if err != nil {
			t.Fatalf("dial: %v", err)
		}
		defer conn.Close()

		if _, err := conn.Write([]byte(`{"type":"rapid_wind","ob":[1700000000,2.5,180]}`)); err != nil {
			t.Fatalf("write: %v", err)
		}
		if got := string(waitPayload(t, payloads)); got != `{"type":"rapid_wind","ob":[1700000000,2.5,180]}` {
			t.Errorf("payload = %s", got)
		}
	})

	t.Run("garbage datagram does not stop the listener", func(t *testing.T) {
		payloads := make(chan []byte, 2)
		h := func(ctx context.Context, data []byte, remote string) error {
			if string(data) == "garbage" {
				return errors.New("invalid json")
			}
			return collector(payloads)(ctx, data, remote)
		}
		addr, cancel, _ := startUDP(t, h)
		defer cancel()

		conn, err := net.Dial("udp", addr.String())
		if err != nil {
			t.Fatalf("dial: %v", err)
		}
		defer conn.Close()

		if _, err := conn.Write([]byte("garbage")); err != nil {
			t.Fatalf("write: %v", err)
		}
		if _, err := conn.Write([]byte(`{"type":"hub_status"}`)); err != nil {
			t.Fatalf("write: %v", err)
		}
		if got := string(waitPayload(t, payloads)); got != `{"type":"hub_status"}` {
			t.Errorf("payload after discarded datagram = %s", got)
		}
	})

	t.Run("context cancel stops the listener", func(t *testing.T) {
		_, cancel, done := startUDP(t, collector(make(chan []byte, 1)))

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
