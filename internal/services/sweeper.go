package services

import (
	"context"
	"log"
	"time"

	"github.com/markjakearzadon/walletpay-gobackend.git/internal/storage"
)

// StaleRemark is written to every transaction the sweeper reaps.
const StaleRemark = "Transaction expired - OTP not verified in time"

// Sweeper fails transactions stuck in PENDING past the deadline. It is the
// only path that terminates a transaction whose OTP was never answered. The
// underlying update is guarded on the status still being PENDING, so a
// record that terminates between selection and update is left alone.
type Sweeper struct {
	transactions storage.TransactionStore
	interval     time.Duration
	deadline     time.Duration
	now          func() time.Time
}

func NewSweeper(transactions storage.TransactionStore, interval, deadline time.Duration) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	if deadline <= 0 {
		deadline = 5 * time.Minute
	}
	return &Sweeper{
		transactions: transactions,
		interval:     interval,
		deadline:     deadline,
		now:          time.Now,
	}
}

// Run sweeps on the configured interval until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	log.Printf("Sweeper running (interval=%s deadline=%s)", s.interval, s.deadline)
	for {
		select {
		case <-ctx.Done():
			log.Printf("Sweeper stopped")
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				log.Printf("Sweep failed: %v", err)
			}
		}
	}
}

// Sweep runs a single pass and returns how many transactions were failed.
func (s *Sweeper) Sweep(ctx context.Context) (int64, error) {
	cutoff := s.now().Add(-s.deadline)
	n, err := s.transactions.FailStale(ctx, cutoff, StaleRemark)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		log.Printf("Swept %d stale transactions", n)
	}
	return n, nil
}
