package broker

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"
)

func recvPayload(t *testing.T, ch <-chan []byte, within time.Duration) []byte {
	t.Helper()
	select {
	case p, ok := <-ch:
		if !ok {
			t.Fatalf("outbox closed unexpectedly")
		}
		return p
	case <-time.After(within):
		t.Fatalf("timed out waiting for payload")
		return nil // unreachable
	}
}

func recvNoPayload(t *testing.T, ch <-chan []byte, within time.Duration) {
	t.Helper()
	select {
	case p, ok := <-ch:
		if ok {
			t.Fatalf("expected no payload within %v, got %q", within, p)
		}
	case <-time.After(within):
	}
}

// recvClosed drains anything buffered and waits for the close.
func recvClosed(t *testing.T, ch <-chan []byte, within time.Duration) {
	t.Helper()
	deadline := time.After(within)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for outbox close")
		}
	}
}

func getStats(t *testing.T, b *Broker) Stats {
	t.Helper()
	reply := make(chan Stats, 1)
	b.Inbox() <- GetStats{Reply: reply}
	select {
	case s := <-reply:
		return s
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for stats")
		return Stats{} // unreachable
	}
}

func startBroker(t *testing.T, cfg Config) *Broker {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return New(ctx, cfg, zap.NewNop())
}

func TestBroker_HelloArrivesBeforeBroadcasts(t *testing.T) {
	b := startBroker(t, Config{})

	out := make(chan []byte, 4)
	b.Inbox() <- Register{ConnID: "c1", PlayerID: "p1", Outbox: out, Hello: []byte("welcome")}
	b.Inbox() <- Publish{Batch: [][]byte{[]byte("update-1")}}

	if got := recvPayload(t, out, time.Second); string(got) != "welcome" {
		t.Fatalf("first payload should be the hello, got %q", got)
	}
	if got := recvPayload(t, out, time.Second); string(got) != "update-1" {
		t.Fatalf("want update-1 after hello, got %q", got)
	}
}

func TestBroker_PublishKeepsBatchOrder(t *testing.T) {
	b := startBroker(t, Config{})

	out := make(chan []byte, 4)
	b.Inbox() <- Register{ConnID: "c1", Outbox: out}
	b.Inbox() <- Publish{Batch: [][]byte{[]byte("detection"), []byte("update")}}

	if got := recvPayload(t, out, time.Second); string(got) != "detection" {
		t.Fatalf("want detection first, got %q", got)
	}
	if got := recvPayload(t, out, time.Second); string(got) != "update" {
		t.Fatalf("want update second, got %q", got)
	}
}

func TestBroker_SendHitsOneConnection(t *testing.T) {
	b := startBroker(t, Config{})

	out1 := make(chan []byte, 4)
	out2 := make(chan []byte, 4)
	b.Inbox() <- Register{ConnID: "c1", Outbox: out1}
	b.Inbox() <- Register{ConnID: "c2", Outbox: out2}

	b.Inbox() <- Send{ConnID: "c1", Payload: []byte("pong")}

	if got := recvPayload(t, out1, time.Second); string(got) != "pong" {
		t.Fatalf("c1 should get the pong, got %q", got)
	}
	recvNoPayload(t, out2, 100*time.Millisecond)
}

func TestBroker_DropsConnectionWithFullOutbox(t *testing.T) {
	b := startBroker(t, Config{})

	slow := make(chan []byte, 1) // takes one message, never drained
	fast := make(chan []byte, 8)
	b.Inbox() <- Register{ConnID: "slow", Outbox: slow}
	b.Inbox() <- Register{ConnID: "fast", Outbox: fast}

	b.Inbox() <- Publish{Batch: [][]byte{[]byte("a"), []byte("b")}}

	recvClosed(t, slow, time.Second)
	if got := recvPayload(t, fast, time.Second); string(got) != "a" {
		t.Fatalf("fast conn should still receive, got %q", got)
	}

	stats := getStats(t, b)
	if stats.Connections != 1 || stats.Conns[0].ConnID != "fast" {
		t.Fatalf("slow conn should be gone, stats: %+v", stats)
	}
}

func TestBroker_UnregisterClosesOutbox(t *testing.T) {
	b := startBroker(t, Config{})

	out := make(chan []byte, 4)
	b.Inbox() <- Register{ConnID: "c1", Outbox: out}
	b.Inbox() <- Unregister{ConnID: "c1"}

	recvClosed(t, out, time.Second)
	if stats := getStats(t, b); stats.Connections != 0 {
		t.Fatalf("want 0 connections, got %d", stats.Connections)
	}
}

func TestBroker_ReRegisterReplacesOldOutbox(t *testing.T) {
	b := startBroker(t, Config{})

	old := make(chan []byte, 4)
	fresh := make(chan []byte, 4)
	b.Inbox() <- Register{ConnID: "c1", Outbox: old}
	b.Inbox() <- Register{ConnID: "c1", Outbox: fresh, Hello: []byte("again")}

	recvClosed(t, old, time.Second)
	if got := recvPayload(t, fresh, time.Second); string(got) != "again" {
		t.Fatalf("fresh outbox should get the hello, got %q", got)
	}
	if stats := getStats(t, b); stats.Connections != 1 {
		t.Fatalf("want 1 connection after re-register, got %d", stats.Connections)
	}
}

func TestBroker_EvictsIdleConnection(t *testing.T) {
	b := startBroker(t, Config{
		LivenessTimeout: 80 * time.Millisecond,
		SweepInterval:   20 * time.Millisecond,
	})

	out := make(chan []byte, 4)
	b.Inbox() <- Register{ConnID: "c1", Outbox: out}

	recvClosed(t, out, time.Second)
	if stats := getStats(t, b); stats.Connections != 0 {
		t.Fatalf("idle conn should be evicted, got %d", stats.Connections)
	}
}

func TestBroker_TouchKeepsConnectionAlive(t *testing.T) {
	b := startBroker(t, Config{
		LivenessTimeout: 150 * time.Millisecond,
		SweepInterval:   25 * time.Millisecond,
	})

	out := make(chan []byte, 4)
	b.Inbox() <- Register{ConnID: "c1", Outbox: out}

	// Keep talking for well past the timeout.
	for i := 0; i < 8; i++ {
		time.Sleep(50 * time.Millisecond)
		b.Inbox() <- Touch{ConnID: "c1"}
	}

	if stats := getStats(t, b); stats.Connections != 1 {
		t.Fatalf("touched conn should survive, got %d connections", stats.Connections)
	}
}

func TestBroker_ShutdownClosesEverything(t *testing.T) {
	b := startBroker(t, Config{})

	out1 := make(chan []byte, 4)
	out2 := make(chan []byte, 4)
	b.Inbox() <- Register{ConnID: "c1", Outbox: out1}
	b.Inbox() <- Register{ConnID: "c2", Outbox: out2}

	b.Inbox() <- Shutdown{}

	recvClosed(t, out1, time.Second)
	recvClosed(t, out2, time.Second)
}
