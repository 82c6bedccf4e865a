package membus

import (
	"context"
	"errors"
	"testing"
)

func TestPublishDeliversToAllSubscribers(t *testing.T) {
	b := New()

	var first, second [][]byte
	b.Subscribe("wallet.test", func(ctx context.Context, payload []byte) error {
		first = append(first, payload)
		return nil
	})
	b.Subscribe("wallet.test", func(ctx context.Context, payload []byte) error {
		second = append(second, payload)
		return nil
	})
	b.Subscribe("wallet.other", func(ctx context.Context, payload []byte) error {
		t.Error("unrelated topic received the message")
		return nil
	})

	if err := b.Publish(context.Background(), "wallet.test", []byte("ping")); err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	if len(first) != 1 || len(second) != 1 {
		t.Fatalf("expected both subscribers to receive once, got %d and %d", len(first), len(second))
	}
	if string(first[0]) != "ping" {
		t.Errorf("payload mangled: %q", first[0])
	}
}

func TestPublishRedeliversOnHandlerError(t *testing.T) {
	b := New()

	var calls int
	b.Subscribe("wallet.test", func(ctx context.Context, payload []byte) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})

	if err := b.Publish(context.Background(), "wallet.test", []byte("ping")); err != nil {
		t.Fatalf("expected success after redelivery, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 deliveries, got %d", calls)
	}
}

func TestPublishGivesUpAfterMaxDeliveries(t *testing.T) {
	b := New()

	var calls int
	b.Subscribe("wallet.test", func(ctx context.Context, payload []byte) error {
		calls++
		return errors.New("permanent")
	})

	if err := b.Publish(context.Background(), "wallet.test", []byte("ping")); err == nil {
		t.Fatal("expected an error after exhausted deliveries")
	}
	if calls != 3 {
		t.Errorf("expected 3 deliveries before giving up, got %d", calls)
	}
}

func TestPublishWithoutSubscribersIsNoop(t *testing.T) {
	b := New()
	if err := b.Publish(context.Background(), "wallet.empty", []byte("ping")); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestClosedBusRejectsOperations(t *testing.T) {
	b := New()
	if err := b.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if err := b.Publish(context.Background(), "wallet.test", []byte("ping")); err == nil {
		t.Error("expected publish on a closed bus to fail")
	}
	if err := b.Subscribe("wallet.test", func(ctx context.Context, payload []byte) error { return nil }); err == nil {
		t.Error("expected subscribe on a closed bus to fail")
	}
}
