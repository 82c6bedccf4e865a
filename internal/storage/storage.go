package storage

import (
	"context"
	"errors"
	"time"

	"github.com/markjakearzadon/walletpay-gobackend.git/internal/models"
)

var (
	// ErrNotFound is returned when no document matches the given id.
	ErrNotFound = errors.New("document not found")
	// ErrDuplicate is returned when an insert collides with an existing id.
	ErrDuplicate = errors.New("duplicate document")
	// ErrConflict is returned when a guarded update matches an existing
	// document whose state no longer satisfies the guard (already terminal,
	// already verified, insufficient balance).
	ErrConflict = errors.New("conditional update conflict")
)

// TransactionStore persists transaction records. Status transitions are
// guarded single-document updates so concurrent deliveries of the same
// event cannot re-terminate a record.
type TransactionStore interface {
	Insert(ctx context.Context, rec *models.TransactionRecord) error
	Get(ctx context.Context, id string) (*models.TransactionRecord, error)
	// MarkTerminal flips a PENDING record to the given terminal status.
	// Returns ErrNotFound if no record exists, ErrConflict if the record is
	// already terminal.
	MarkTerminal(ctx context.Context, id string, status models.TransactionStatus, remarks string) error
	// FailStale fails every PENDING record created before cutoff and
	// returns how many were flipped.
	FailStale(ctx context.Context, cutoff time.Time, remarks string) (int64, error)
}

// OtpStore persists OTP challenges, one per transaction id.
type OtpStore interface {
	// Upsert replaces the unverified challenge for the transaction, or
	// inserts one if none exists. A verified challenge is immutable and
	// causes ErrConflict.
	Upsert(ctx context.Context, ch *models.OtpChallenge) error
	Get(ctx context.Context, transactionID string) (*models.OtpChallenge, error)
	// IncrementAttempts bumps the attempt counter of the unverified,
	// unexpired challenge and returns the post-image, so concurrent retries
	// observe each other's increments.
	IncrementAttempts(ctx context.Context, transactionID string) (*models.OtpChallenge, error)
	// MarkVerified flips the unverified challenge to verified. ErrConflict
	// if it was already verified or expired.
	MarkVerified(ctx context.Context, transactionID string) error
	// MarkExpired flips the unverified challenge to expired.
	MarkExpired(ctx context.Context, transactionID string) error
}

// WalletStore persists wallets. Every balance mutation is a guarded
// single-document update; Transfer applies both sides atomically.
type WalletStore interface {
	Insert(ctx context.Context, w *models.Wallet) error
	Get(ctx context.Context, id string) (*models.Wallet, error)
	// Credit adds amount to the wallet balance.
	Credit(ctx context.Context, id string, amount float64) error
	// Debit subtracts amount, guarded on balance >= amount. ErrConflict on
	// insufficient balance.
	Debit(ctx context.Context, id string, amount float64) error
	// Transfer debits the sender and credits the receiver with no partial
	// application observable. ErrConflict on insufficient sender balance.
	Transfer(ctx context.Context, senderID, receiverID string, amount float64) error
}

// SettlementStore persists the per-transaction settlement markers.
type SettlementStore interface {
	// Insert records the marker. ErrDuplicate if the transaction has
	// already been settled (or settlement is in flight).
	Insert(ctx context.Context, s *models.Settlement) error
	Get(ctx context.Context, transactionID string) (*models.Settlement, error)
	// SetOutcome records the terminal status the settlement produced.
	SetOutcome(ctx context.Context, transactionID string, status models.TransactionStatus, remarks string) error
	// Delete removes the marker so a redelivery can retry after a transient
	// failure between marker and balance mutation.
	Delete(ctx context.Context, transactionID string) error
}

// UserStore is the minimal directory the wallet service needs.
type UserStore interface {
	Insert(ctx context.Context, u *models.User) error
	Get(ctx context.Context, id string) (*models.User, error)
}
