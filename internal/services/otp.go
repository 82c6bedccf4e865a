package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log"
	"math/big"
	"time"

	"github.com/markjakearzadon/walletpay-gobackend.git/internal/models"
	"github.com/markjakearzadon/walletpay-gobackend.git/internal/storage"
)

type OtpConfig struct {
	CodeLength  int
	TTL         time.Duration
	MaxAttempts int
}

func DefaultOtpConfig() OtpConfig {
	return OtpConfig{
		CodeLength:  6,
		TTL:         5 * time.Minute,
		MaxAttempts: 3,
	}
}

// OtpService issues and verifies the one-time passcodes gating settlement.
type OtpService struct {
	challenges   storage.OtpStore
	transactions storage.TransactionStore
	verifier     SecretVerifier
	mailer       Mailer
	cfg          OtpConfig
	now          func() time.Time
}

func NewOtpService(challenges storage.OtpStore, transactions storage.TransactionStore, verifier SecretVerifier, mailer Mailer, cfg OtpConfig) *OtpService {
	if cfg.CodeLength <= 0 {
		cfg.CodeLength = 6
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 5 * time.Minute
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	return &OtpService{
		challenges:   challenges,
		transactions: transactions,
		verifier:     verifier,
		mailer:       mailer,
		cfg:          cfg,
		now:          time.Now,
	}
}

// Issue creates the challenge for a transaction, or regenerates the existing
// unverified one in place (fresh code, fresh expiry, attempt counter reset).
// The plaintext code leaves this function only through the mailer.
func (s *OtpService) Issue(ctx context.Context, transactionID, userID, email string, txType models.TransactionType) (*models.OtpChallenge, error) {
	code, err := generateCode(s.cfg.CodeLength)
	if err != nil {
		return nil, fmt.Errorf("failed to generate otp code: %v", err)
	}
	digest, err := s.verifier.Hash(code)
	if err != nil {
		return nil, fmt.Errorf("failed to hash otp code: %v", err)
	}

	now := s.now()
	ch := &models.OtpChallenge{
		TransactionID:   transactionID,
		HashedCode:      digest,
		UserID:          userID,
		UserEmail:       email,
		TransactionType: txType,
		CreatedAt:       now,
		ExpiresAt:       now.Add(s.cfg.TTL),
		AttemptCount:    0,
		IsVerified:      false,
		IsExpired:       false,
	}
	if err := s.challenges.Upsert(ctx, ch); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return nil, ErrOtpNotFound
		}
		return nil, fmt.Errorf("failed to store challenge for %s: %v", transactionID, err)
	}

	subject := fmt.Sprintf("Your %s verification code", txType)
	body := fmt.Sprintf("Your one-time passcode is %s. It expires in %d minutes.", code, int(s.cfg.TTL.Minutes()))
	if err := s.mailer.Send(ctx, email, subject, body); err != nil {
		// OTP delivery failure must not fail the saga step; the user can
		// trigger a re-issue.
		log.Printf("Failed to send otp mail for transaction %s: %v", transactionID, err)
	}

	log.Printf("OTP issued for transaction %s (expires %s)", transactionID, ch.ExpiresAt.Format(time.RFC3339))
	return ch, nil
}

// Challenge loads the challenge for a transaction, whatever its state.
func (s *OtpService) Challenge(ctx context.Context, transactionID string) (*models.OtpChallenge, error) {
	ch, err := s.challenges.Get(ctx, transactionID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrOtpNotFound
		}
		return nil, fmt.Errorf("failed to load challenge for %s: %v", transactionID, err)
	}
	return ch, nil
}

// VerifyResult reports a verification attempt. Challenge is set on success
// and RemainingAttempts accompanies ErrOtpIncorrect.
type VerifyResult struct {
	Challenge         *models.OtpChallenge
	RemainingAttempts int
}

// Verify checks the entered code against the active challenge. Expiry
// discovery and attempt exhaustion each fail the owning transaction as part
// of the same call.
func (s *OtpService) Verify(ctx context.Context, transactionID, enteredCode string) (*VerifyResult, error) {
	ch, err := s.Challenge(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if ch.IsVerified || ch.IsExpired {
		return nil, ErrOtpNotFound
	}

	if s.now().After(ch.ExpiresAt) {
		s.expireChallenge(ctx, transactionID, "OTP expired")
		return nil, ErrOtpExpired
	}

	if ch.AttemptCount >= s.cfg.MaxAttempts {
		// Should have been closed when the counter was exhausted; close it
		// now so the next call gets ErrOtpNotFound.
		s.expireChallenge(ctx, transactionID, "Wrong OTP")
		return nil, ErrOtpAttemptsExceeded
	}

	if !s.verifier.Matches(enteredCode, ch.HashedCode) {
		post, err := s.challenges.IncrementAttempts(ctx, transactionID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				// A concurrent attempt closed the challenge first.
				return nil, ErrOtpNotFound
			}
			return nil, fmt.Errorf("failed to count attempt for %s: %v", transactionID, err)
		}
		if post.AttemptCount >= s.cfg.MaxAttempts {
			s.expireChallenge(ctx, transactionID, "Wrong OTP")
			return nil, ErrOtpAttemptsExceeded
		}
		return &VerifyResult{RemainingAttempts: s.cfg.MaxAttempts - post.AttemptCount}, ErrOtpIncorrect
	}

	if err := s.challenges.MarkVerified(ctx, transactionID); err != nil {
		if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrConflict) {
			// A concurrent request verified or expired it first.
			return nil, ErrOtpNotFound
		}
		return nil, fmt.Errorf("failed to mark challenge %s verified: %v", transactionID, err)
	}

	ch.IsVerified = true
	log.Printf("OTP verified for transaction %s", transactionID)
	return &VerifyResult{Challenge: ch}, nil
}

// expireChallenge closes the challenge and fails the owning transaction.
// Both flips are guarded, so a concurrent terminal transition wins quietly.
func (s *OtpService) expireChallenge(ctx context.Context, transactionID, remarks string) {
	if err := s.challenges.MarkExpired(ctx, transactionID); err != nil && !errors.Is(err, storage.ErrConflict) {
		log.Printf("Failed to expire challenge %s: %v", transactionID, err)
	}
	err := s.transactions.MarkTerminal(ctx, transactionID, models.StatusFailed, remarks)
	if err != nil && !errors.Is(err, storage.ErrConflict) {
		log.Printf("Failed to fail transaction %s: %v", transactionID, err)
	}
}

func generateCode(length int) (string, error) {
	const digits = "0123456789"
	buf := make([]byte, length)
	for i := range buf {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(digits))))
		if err != nil {
			return "", err
		}
		buf[i] = digits[n.Int64()]
	}
	return string(buf), nil
}
