package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/markjakearzadon/walletpay-gobackend.git/internal/models"
	"github.com/markjakearzadon/walletpay-gobackend.git/internal/storage/memory"
)

func TestSweeper_FailsOnlyStalePending(t *testing.T) {
	stores := memory.New()
	clock := &fakeClock{now: time.Now().UTC()}
	sweeper := NewSweeper(stores.Transactions, time.Minute, 5*time.Minute)
	sweeper.now = clock.Now

	seed := func(id string, status models.TransactionStatus, age time.Duration) {
		err := stores.Transactions.Insert(context.Background(), &models.TransactionRecord{
			ID:             id,
			SenderWalletID: "wallet-1",
			Amount:         10,
			Status:         status,
			CreatedAt:      clock.Now().Add(-age),
		})
		if err != nil {
			t.Fatalf("failed to seed %s: %v", id, err)
		}
	}
	seed("tx-stale", models.StatusPending, 10*time.Minute)
	seed("tx-fresh", models.StatusPending, time.Minute)
	seed("tx-done", models.StatusSuccess, 10*time.Minute)

	n, err := sweeper.Sweep(context.Background())
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 swept transaction, got %d", n)
	}

	rec, _ := stores.Transactions.Get(context.Background(), "tx-stale")
	if rec.Status != models.StatusFailed {
		t.Errorf("expected stale record FAILED, got %s", rec.Status)
	}
	if !strings.Contains(rec.Remarks, "expired") {
		t.Errorf("expected timeout remark, got %q", rec.Remarks)
	}

	rec, _ = stores.Transactions.Get(context.Background(), "tx-fresh")
	if rec.Status != models.StatusPending {
		t.Errorf("fresh record was swept: %s", rec.Status)
	}
	rec, _ = stores.Transactions.Get(context.Background(), "tx-done")
	if rec.Status != models.StatusSuccess || strings.Contains(rec.Remarks, "expired") {
		t.Errorf("terminal record was overwritten: %s/%q", rec.Status, rec.Remarks)
	}
}

func TestSweeper_RepeatedSweepsConverge(t *testing.T) {
	stores := memory.New()
	clock := &fakeClock{now: time.Now().UTC()}
	sweeper := NewSweeper(stores.Transactions, 2*time.Minute, 5*time.Minute)
	sweeper.now = clock.Now

	err := stores.Transactions.Insert(context.Background(), &models.TransactionRecord{
		ID:             "tx-1",
		SenderWalletID: "wallet-1",
		Amount:         10,
		Status:         models.StatusPending,
		CreatedAt:      clock.Now(),
	})
	if err != nil {
		t.Fatalf("failed to seed: %v", err)
	}

	// First cycle: still inside the deadline, nothing to do.
	clock.Advance(2 * time.Minute)
	if n, _ := sweeper.Sweep(context.Background()); n != 0 {
		t.Fatalf("expected no sweeps at 2m, got %d", n)
	}

	// Later cycles: past the deadline, exactly one flip, then stable.
	clock.Advance(8 * time.Minute)
	if n, _ := sweeper.Sweep(context.Background()); n != 1 {
		t.Fatalf("expected one sweep at 10m, got %d", n)
	}
	if n, _ := sweeper.Sweep(context.Background()); n != 0 {
		t.Fatalf("repeated sweep must be a no-op, got %d", n)
	}
}

func TestSweeper_RunStopsOnCancel(t *testing.T) {
	stores := memory.New()
	sweeper := NewSweeper(stores.Transactions, 10*time.Millisecond, 5*time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sweeper.Run(ctx)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop after cancellation")
	}
}
