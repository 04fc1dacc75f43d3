package bus

import (
	"context"
	"testing"
	"time"

	"github.com/execman/execman/internal/common/logger"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.NewLogger(logger.LoggingConfig{Level: "error", Format: "json", OutputPath: "stdout"})
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	return log
}

func waitForEvent(t *testing.T, ch <-chan *Event) *Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func TestMemoryEventBus_PublishSubscribe(t *testing.T) {
	b := NewMemoryEventBus(testLogger(t))
	defer b.Close()

	received := make(chan *Event, 1)
	_, err := b.Subscribe("exec.command.done", func(ctx context.Context, ev *Event) error {
		received <- ev
		return nil
	})
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	ev := NewEvent("exec.command.finished", "test", map[string]string{"number": "1"})
	if err := b.Publish(context.Background(), "exec.command.done", ev); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	got := waitForEvent(t, received)
	if got.Data["number"] != "1" {
		t.Errorf("unexpected event data %v", got.Data)
	}
	if got.ID == "" || got.Timestamp.IsZero() {
		t.Error("expected event id and timestamp to be set")
	}
}

func TestMemoryEventBus_WildcardSubscription(t *testing.T) {
	b := NewMemoryEventBus(testLogger(t))
	defer b.Close()

	received := make(chan *Event, 2)
	if _, err := b.Subscribe("exec.command.*", func(ctx context.Context, ev *Event) error {
		received <- ev
		return nil
	}); err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	ev := NewEvent("exec.command.finished", "test", nil)
	if err := b.Publish(context.Background(), "exec.command.backup", ev); err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	waitForEvent(t, received)

	// A single-token wildcard must not span dots
	if err := b.Publish(context.Background(), "exec.command.a.b", ev); err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	select {
	case <-received:
		t.Error("expected no delivery for multi-token subject on * pattern")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestMemoryEventBus_MultiTokenWildcard(t *testing.T) {
	b := NewMemoryEventBus(testLogger(t))
	defer b.Close()

	received := make(chan *Event, 1)
	if _, err := b.Subscribe("exec.>", func(ctx context.Context, ev *Event) error {
		received <- ev
		return nil
	}); err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	ev := NewEvent("exec.command.finished", "test", nil)
	if err := b.Publish(context.Background(), "exec.command.a.b", ev); err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	waitForEvent(t, received)
}

func TestMemoryEventBus_UnsubscribeStopsDelivery(t *testing.T) {
	b := NewMemoryEventBus(testLogger(t))
	defer b.Close()

	received := make(chan *Event, 1)
	sub, err := b.Subscribe("exec.command.done", func(ctx context.Context, ev *Event) error {
		received <- ev
		return nil
	})
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	if err := sub.Unsubscribe(); err != nil {
		t.Fatalf("unsubscribe failed: %v", err)
	}
	if sub.IsValid() {
		t.Error("expected subscription to be invalid after unsubscribe")
	}

	ev := NewEvent("exec.command.finished", "test", nil)
	if err := b.Publish(context.Background(), "exec.command.done", ev); err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	select {
	case <-received:
		t.Error("expected no delivery after unsubscribe")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestMemoryEventBus_Close(t *testing.T) {
	b := NewMemoryEventBus(testLogger(t))

	if !b.IsConnected() {
		t.Error("expected open bus to report connected")
	}

	b.Close()

	if b.IsConnected() {
		t.Error("expected closed bus to report disconnected")
	}
	if err := b.Publish(context.Background(), "x", NewEvent("t", "s", nil)); err == nil {
		t.Error("expected publish on closed bus to fail")
	}
	if _, err := b.Subscribe("x", nil); err == nil {
		t.Error("expected subscribe on closed bus to fail")
	}
}
