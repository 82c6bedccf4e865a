package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/markjakearzadon/walletpay-gobackend.git/internal/bus"
	"github.com/markjakearzadon/walletpay-gobackend.git/internal/models"
	"github.com/markjakearzadon/walletpay-gobackend.git/internal/storage"
)

const (
	remarkSuccess        = "Transaction successful"
	remarkInsufficient   = "Insufficient balance"
	remarkWalletNotFound = "Wallet not found"
	minPasscodeLength    = 4
)

// WalletService is the ledger side of the saga: it owns balances, validates
// and publishes transaction requests, and settles them once the OTP has been
// verified. The balance mutation happens here and nowhere else.
type WalletService struct {
	wallets     storage.WalletStore
	settlements storage.SettlementStore
	users       storage.UserStore
	publisher   bus.Bus
	verifier    SecretVerifier
	now         func() time.Time
}

func NewWalletService(wallets storage.WalletStore, settlements storage.SettlementStore, users storage.UserStore, publisher bus.Bus, verifier SecretVerifier) *WalletService {
	return &WalletService{
		wallets:     wallets,
		settlements: settlements,
		users:       users,
		publisher:   publisher,
		verifier:    verifier,
		now:         time.Now,
	}
}

// CreateWallet opens a wallet with a hashed passcode and a zero balance.
func (s *WalletService) CreateWallet(ctx context.Context, ownerID, passcode string) (*models.Wallet, error) {
	if len(passcode) < minPasscodeLength {
		return nil, fmt.Errorf("%w: passcode must be at least %d characters", ErrValidation, minPasscodeLength)
	}
	if _, err := s.users.Get(ctx, ownerID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to fetch user %s: %v", ownerID, err)
	}

	digest, err := s.verifier.Hash(passcode)
	if err != nil {
		return nil, fmt.Errorf("failed to hash passcode: %v", err)
	}
	w := &models.Wallet{
		ID:             uuid.NewString(),
		OwnerID:        ownerID,
		AccountNumber:  uuid.NewString(),
		Balance:        0,
		HashedPasscode: digest,
		CreatedAt:      s.now(),
	}
	if err := s.wallets.Insert(ctx, w); err != nil {
		return nil, fmt.Errorf("failed to save wallet: %v", err)
	}
	log.Printf("Wallet %s created for user %s", w.ID, ownerID)
	return w, nil
}

// GetWallet fetches a wallet by id.
func (s *WalletService) GetWallet(ctx context.Context, id string) (*models.Wallet, error) {
	w, err := s.wallets.Get(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrWalletNotFound
		}
		return nil, fmt.Errorf("failed to fetch wallet %s: %v", id, err)
	}
	return w, nil
}

// TransactionRequest is a user's ask to move funds out of or into a wallet.
type TransactionRequest struct {
	UserID           string
	WalletID         string
	ReceiverWalletID string
	Amount           float64
	Type             models.TransactionType
	Remarks          string
	Passcode         string
}

// RequestTransaction validates the request, generates the transaction id,
// and publishes TransactionRequested. No balance is touched here; the
// mutation waits for the OTP round trip. The returned id lets the caller
// correlate the verification step.
func (s *WalletService) RequestTransaction(ctx context.Context, req TransactionRequest) (string, error) {
	if req.Amount <= 0 {
		return "", fmt.Errorf("%w: amount must be positive", ErrValidation)
	}
	switch req.Type {
	case models.TypeCredit, models.TypeWithdraw:
	case models.TypeTransfer:
		if req.ReceiverWalletID == "" {
			return "", fmt.Errorf("%w: receiver wallet is required for transfers", ErrValidation)
		}
		if req.ReceiverWalletID == req.WalletID {
			return "", fmt.Errorf("%w: cannot transfer to the same wallet", ErrValidation)
		}
	default:
		return "", fmt.Errorf("%w: invalid transaction type %q", ErrValidation, req.Type)
	}

	wallet, err := s.wallets.Get(ctx, req.WalletID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", ErrWalletNotFound
		}
		return "", fmt.Errorf("failed to fetch wallet %s: %v", req.WalletID, err)
	}
	if wallet.OwnerID != req.UserID {
		return "", ErrNotWalletOwner
	}
	if !s.verifier.Matches(req.Passcode, wallet.HashedPasscode) {
		return "", ErrInvalidPasscode
	}

	if req.Type == models.TypeWithdraw || req.Type == models.TypeTransfer {
		if wallet.Balance < req.Amount {
			return "", ErrInsufficientBalance
		}
	}
	if req.Type == models.TypeTransfer {
		if _, err := s.wallets.Get(ctx, req.ReceiverWalletID); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return "", fmt.Errorf("receiver: %w", ErrWalletNotFound)
			}
			return "", fmt.Errorf("failed to fetch wallet %s: %v", req.ReceiverWalletID, err)
		}
	}

	user, err := s.users.Get(ctx, req.UserID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", ErrUserNotFound
		}
		return "", fmt.Errorf("failed to fetch user %s: %v", req.UserID, err)
	}

	evt := models.TransactionRequestedEvent{
		TransactionID:    uuid.NewString(),
		UserID:           req.UserID,
		SenderWalletID:   req.WalletID,
		ReceiverWalletID: req.ReceiverWalletID,
		Amount:           req.Amount,
		TransactionType:  req.Type,
		Remarks:          req.Remarks,
		UserEmail:        user.Email,
		Timestamp:        s.now(),
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		return "", fmt.Errorf("failed to marshal transaction-requested event: %v", err)
	}
	if err := s.publisher.Publish(ctx, bus.TopicTransactionRequested, payload); err != nil {
		return "", fmt.Errorf("failed to publish transaction-requested for %s: %v", evt.TransactionID, err)
	}
	log.Printf("Transaction %s requested (type=%s wallet=%s amount=%.2f)", evt.TransactionID, req.Type, req.WalletID, req.Amount)
	return evt.TransactionID, nil
}

// HandleOtpVerified settles a transaction: it records the settlement marker,
// applies the balance mutation for the transaction type, and publishes the
// completion. The marker is unique per transaction id and inserted before
// the mutation, so a redelivered event republishes the recorded outcome
// instead of mutating again.
func (s *WalletService) HandleOtpVerified(ctx context.Context, payload []byte) error {
	var evt models.OtpVerifiedEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		log.Printf("Dropping malformed otp-verified event: %v", err)
		return nil
	}

	marker := &models.Settlement{TransactionID: evt.TransactionID, SettledAt: s.now()}
	if err := s.settlements.Insert(ctx, marker); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			return s.republishOutcome(ctx, evt.TransactionID)
		}
		return fmt.Errorf("failed to record settlement for %s: %v", evt.TransactionID, err)
	}

	status, remarks, err := s.applyMutation(ctx, &evt)
	if err != nil {
		// Transient failure between marker and mutation: release the marker
		// so the redelivered event can retry.
		if delErr := s.settlements.Delete(ctx, evt.TransactionID); delErr != nil {
			log.Printf("Failed to release settlement marker for %s: %v", evt.TransactionID, delErr)
		}
		return fmt.Errorf("failed to settle transaction %s: %v", evt.TransactionID, err)
	}

	if err := s.settlements.SetOutcome(ctx, evt.TransactionID, status, remarks); err != nil {
		log.Printf("Failed to record settlement outcome for %s: %v", evt.TransactionID, err)
	}
	log.Printf("Transaction %s settled with status %s", evt.TransactionID, status)
	return s.publishCompleted(ctx, evt.TransactionID, status, remarks)
}

// applyMutation performs the type-specific balance change and returns the
// terminal outcome. Business failures (insufficient balance, missing wallet)
// are outcomes, not errors; only transient storage failures return an error.
func (s *WalletService) applyMutation(ctx context.Context, evt *models.OtpVerifiedEvent) (models.TransactionStatus, string, error) {
	if _, err := s.wallets.Get(ctx, evt.SenderWalletID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return models.StatusFailed, remarkWalletNotFound, nil
		}
		return "", "", err
	}

	switch evt.TransactionType {
	case models.TypeCredit:
		if err := s.wallets.Credit(ctx, evt.SenderWalletID, evt.Amount); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return models.StatusFailed, remarkWalletNotFound, nil
			}
			return "", "", err
		}
	case models.TypeWithdraw:
		if err := s.wallets.Debit(ctx, evt.SenderWalletID, evt.Amount); err != nil {
			if errors.Is(err, storage.ErrConflict) {
				return models.StatusFailed, remarkInsufficient, nil
			}
			if errors.Is(err, storage.ErrNotFound) {
				return models.StatusFailed, remarkWalletNotFound, nil
			}
			return "", "", err
		}
	case models.TypeTransfer:
		if err := s.wallets.Transfer(ctx, evt.SenderWalletID, evt.ReceiverWalletID, evt.Amount); err != nil {
			if errors.Is(err, storage.ErrConflict) {
				return models.StatusFailed, remarkInsufficient, nil
			}
			if errors.Is(err, storage.ErrNotFound) {
				return models.StatusFailed, remarkWalletNotFound, nil
			}
			return "", "", err
		}
	default:
		return models.StatusFailed, fmt.Sprintf("Unknown transaction type %s", evt.TransactionType), nil
	}
	return models.StatusSuccess, remarkSuccess, nil
}

// republishOutcome handles a duplicate otp-verified delivery: the balances
// were already adjusted, so only the recorded completion goes out again.
func (s *WalletService) republishOutcome(ctx context.Context, transactionID string) error {
	sett, err := s.settlements.Get(ctx, transactionID)
	if err != nil {
		return fmt.Errorf("failed to load settlement for %s: %v", transactionID, err)
	}
	if sett.Status == "" {
		// The marker landed but no outcome was recorded, so a previous
		// delivery died between marker and mutation. Leave the event
		// unacknowledged; acking here would drop the settlement for good.
		return fmt.Errorf("settlement for %s has no recorded outcome yet", transactionID)
	}
	log.Printf("Duplicate otp-verified for %s, republishing outcome %s", transactionID, sett.Status)
	return s.publishCompleted(ctx, transactionID, sett.Status, sett.Remarks)
}

func (s *WalletService) publishCompleted(ctx context.Context, transactionID string, status models.TransactionStatus, remarks string) error {
	evt := models.TransactionCompletedEvent{
		TransactionID: transactionID,
		Status:        status,
		Remarks:       remarks,
		Timestamp:     s.now(),
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("failed to marshal transaction-completed event: %v", err)
	}
	if err := s.publisher.Publish(ctx, bus.TopicTransactionCompleted, payload); err != nil {
		return fmt.Errorf("failed to publish transaction-completed for %s: %v", transactionID, err)
	}
	return nil
}
