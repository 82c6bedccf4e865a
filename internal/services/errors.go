package services

import (
	"errors"
)

// Business outcomes surfaced to callers. Transient storage and bus errors
// are not part of this set; they propagate wrapped so the bus can redeliver.
var (
	ErrValidation          = errors.New("validation failed")
	ErrUserNotFound        = errors.New("user not found")
	ErrWalletNotFound      = errors.New("wallet not found")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrNotWalletOwner      = errors.New("wallet does not belong to user")
	ErrInvalidPasscode     = errors.New("invalid passcode")
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrOtpNotFound covers a challenge that was never issued, was already
	// verified, or already terminated; the caller must not retry.
	ErrOtpNotFound         = errors.New("no active otp challenge")
	ErrOtpExpired          = errors.New("otp expired")
	ErrOtpAttemptsExceeded = errors.New("otp attempts exceeded")
	ErrOtpIncorrect        = errors.New("incorrect otp")
)
