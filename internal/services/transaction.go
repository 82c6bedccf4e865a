package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/markjakearzadon/walletpay-gobackend.git/internal/bus"
	"github.com/markjakearzadon/walletpay-gobackend.git/internal/models"
	"github.com/markjakearzadon/walletpay-gobackend.git/internal/storage"
)

// TransactionService is the coordinator side of the saga: it owns the
// transaction records and the OTP round trip, and reacts to the wallet
// service's events. State machine per id: PENDING, then SUCCESS or FAILED,
// one way.
type TransactionService struct {
	transactions storage.TransactionStore
	otp          *OtpService
	publisher    bus.Bus
	now          func() time.Time
}

func NewTransactionService(transactions storage.TransactionStore, otp *OtpService, publisher bus.Bus) *TransactionService {
	return &TransactionService{
		transactions: transactions,
		otp:          otp,
		publisher:    publisher,
		now:          time.Now,
	}
}

// HandleTransactionRequested creates the PENDING record and issues the OTP.
// Creation is idempotent on the transaction id: a duplicate delivery is a
// no-op. OTP issue failures are logged and swallowed so a durably enqueued
// request cannot loop on redelivery over a mail outage.
func (s *TransactionService) HandleTransactionRequested(ctx context.Context, payload []byte) error {
	var evt models.TransactionRequestedEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		log.Printf("Dropping malformed transaction.requested event: %v", err)
		return nil
	}

	createdAt := evt.Timestamp
	if createdAt.IsZero() {
		createdAt = s.now()
	}
	rec := &models.TransactionRecord{
		ID:               evt.TransactionID,
		SenderWalletID:   evt.SenderWalletID,
		ReceiverWalletID: evt.ReceiverWalletID,
		Amount:           evt.Amount,
		Status:           models.StatusPending,
		Remarks:          evt.Remarks,
		CreatedAt:        createdAt,
	}
	if err := s.transactions.Insert(ctx, rec); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			log.Printf("Duplicate transaction.requested for %s, ignoring", evt.TransactionID)
			return nil
		}
		return fmt.Errorf("failed to create transaction %s: %v", evt.TransactionID, err)
	}
	log.Printf("Transaction %s created (type=%s amount=%.2f)", evt.TransactionID, evt.TransactionType, evt.Amount)

	if _, err := s.otp.Issue(ctx, evt.TransactionID, evt.UserID, evt.UserEmail, evt.TransactionType); err != nil {
		log.Printf("Failed to issue otp for transaction %s: %v", evt.TransactionID, err)
	}
	return nil
}

// VerifyOtp runs the user's verification attempt and, on success, publishes
// the OtpVerified event that releases settlement. This is the only producer
// of that event.
func (s *TransactionService) VerifyOtp(ctx context.Context, transactionID, code string) (*VerifyResult, error) {
	res, err := s.otp.Verify(ctx, transactionID, code)
	if errors.Is(err, ErrOtpNotFound) {
		return s.retryVerified(ctx, transactionID, code, err)
	}
	if err != nil {
		return res, err
	}

	rec, err := s.transactions.Get(ctx, transactionID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, fmt.Errorf("failed to load transaction %s: %v", transactionID, err)
	}
	if rec.Status != models.StatusPending {
		// The sweeper (or a completion) won the race; settlement must not
		// be released for a terminal transaction.
		log.Printf("Transaction %s already %s, suppressing otp-verified", transactionID, rec.Status)
		return nil, ErrOtpNotFound
	}

	if err := s.publishVerified(ctx, rec, res.Challenge); err != nil {
		return nil, err
	}
	return res, nil
}

// retryVerified covers a retry after the challenge was verified but the
// publish failed: the record is still PENDING and the same code is entered
// again, so publish now instead of dead-ending until the sweeper.
func (s *TransactionService) retryVerified(ctx context.Context, transactionID, code string, verifyErr error) (*VerifyResult, error) {
	ch, err := s.otp.Challenge(ctx, transactionID)
	if err != nil || !ch.IsVerified || !s.otp.verifier.Matches(code, ch.HashedCode) {
		return nil, verifyErr
	}
	rec, err := s.transactions.Get(ctx, transactionID)
	if err != nil || rec.Status != models.StatusPending {
		return nil, verifyErr
	}
	if err := s.publishVerified(ctx, rec, ch); err != nil {
		return nil, err
	}
	return &VerifyResult{Challenge: ch}, nil
}

func (s *TransactionService) publishVerified(ctx context.Context, rec *models.TransactionRecord, ch *models.OtpChallenge) error {
	evt := models.OtpVerifiedEvent{
		TransactionID:    rec.ID,
		UserID:           ch.UserID,
		SenderWalletID:   rec.SenderWalletID,
		ReceiverWalletID: rec.ReceiverWalletID,
		Amount:           rec.Amount,
		TransactionType:  ch.TransactionType,
		Timestamp:        s.now(),
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("failed to marshal otp-verified event: %v", err)
	}
	if err := s.publisher.Publish(ctx, bus.TopicOtpVerified, payload); err != nil {
		return fmt.Errorf("failed to publish otp-verified for %s: %v", rec.ID, err)
	}
	log.Printf("Published otp-verified for transaction %s", rec.ID)
	return nil
}

// ResendOtp regenerates the pending transaction's challenge in place and
// mails the fresh code. The previous code stops working and the attempt
// counter resets.
func (s *TransactionService) ResendOtp(ctx context.Context, transactionID string) error {
	rec, err := s.transactions.Get(ctx, transactionID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrTransactionNotFound
		}
		return fmt.Errorf("failed to load transaction %s: %v", transactionID, err)
	}
	if rec.Status != models.StatusPending {
		return ErrOtpNotFound
	}

	ch, err := s.otp.Challenge(ctx, transactionID)
	if err != nil {
		return err
	}
	if ch.IsVerified {
		return ErrOtpNotFound
	}

	if _, err := s.otp.Issue(ctx, transactionID, ch.UserID, ch.UserEmail, ch.TransactionType); err != nil {
		return err
	}
	return nil
}

// HandleTransactionCompleted finalizes the record from the wallet service's
// settlement outcome. Applying the same terminal status twice is a no-op; a
// completion for an unknown transaction is a protocol violation and is
// surfaced rather than dropped.
func (s *TransactionService) HandleTransactionCompleted(ctx context.Context, payload []byte) error {
	var evt models.TransactionCompletedEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		log.Printf("Dropping malformed transaction.completed event: %v", err)
		return nil
	}
	if evt.Status != models.StatusSuccess && evt.Status != models.StatusFailed {
		log.Printf("Dropping transaction.completed for %s with non-terminal status %s", evt.TransactionID, evt.Status)
		return nil
	}

	err := s.transactions.MarkTerminal(ctx, evt.TransactionID, evt.Status, evt.Remarks)
	if err == nil {
		log.Printf("Transaction %s completed with status %s", evt.TransactionID, evt.Status)
		return nil
	}
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("completion for unknown transaction %s: %w", evt.TransactionID, ErrTransactionNotFound)
	}
	if errors.Is(err, storage.ErrConflict) {
		rec, getErr := s.transactions.Get(ctx, evt.TransactionID)
		if getErr == nil && rec.Status != evt.Status {
			log.Printf("Transaction %s already terminal with %s, ignoring conflicting completion %s", evt.TransactionID, rec.Status, evt.Status)
		} else {
			log.Printf("Duplicate completion for transaction %s, ignoring", evt.TransactionID)
		}
		return nil
	}
	return fmt.Errorf("failed to complete transaction %s: %v", evt.TransactionID, err)
}

// GetTransaction loads a record for the HTTP surface.
func (s *TransactionService) GetTransaction(ctx context.Context, id string) (*models.TransactionRecord, error) {
	rec, err := s.transactions.Get(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, fmt.Errorf("failed to fetch transaction %s: %v", id, err)
	}
	return rec, nil
}
