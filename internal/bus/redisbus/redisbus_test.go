package redisbus

import (
	"testing"
	"time"
)

func TestReadIDSchedulesPendingReplay(t *testing.T) {
	cfg := DefaultConfig("localhost:6379", "walletpay", "consumer-1")
	start := time.Now()

	// Inside the interval only new entries are requested.
	id, last := cfg.readID(start, start.Add(time.Second))
	if id != ">" {
		t.Fatalf("expected new-entries read, got %q", id)
	}
	if !last.Equal(start) {
		t.Fatalf("replay timestamp moved without a replay")
	}

	// Once the interval elapses, the consumer's pending entries are
	// replayed so a failed handler is retried without a restart.
	due := start.Add(cfg.PendingReplay)
	id, last = cfg.readID(start, due)
	if id != "0" {
		t.Fatalf("expected pending replay, got %q", id)
	}
	if !last.Equal(due) {
		t.Fatalf("expected replay timestamp to advance")
	}

	// The read after a replay goes back to new entries.
	if id, _ = cfg.readID(last, due.Add(time.Second)); id != ">" {
		t.Fatalf("expected new-entries read after replay, got %q", id)
	}
}

func TestNewValidatesConfig(t *testing.T) {
	if _, err := New(Config{Group: "walletpay"}); err == nil {
		t.Error("expected an error without an address")
	}
	if _, err := New(Config{Addr: "localhost:6379"}); err == nil {
		t.Error("expected an error without a consumer group")
	}
}
