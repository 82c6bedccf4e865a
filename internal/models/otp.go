package models

import (
	"time"
)

// OtpChallenge is the one OTP challenge held per transaction. The document
// id is the transaction id, which gives at most one challenge per
// transaction for free. Only the bcrypt hash of the code is persisted; the
// plaintext goes out by email and is never stored.
type OtpChallenge struct {
	TransactionID   string          `bson:"_id" json:"transaction_id"`
	HashedCode      string          `bson:"hashed_code" json:"-"`
	UserID          string          `bson:"user_id" json:"user_id"`
	UserEmail       string          `bson:"user_email" json:"user_email"`
	TransactionType TransactionType `bson:"transaction_type" json:"transaction_type"`
	CreatedAt       time.Time       `bson:"created_at" json:"created_at"`
	ExpiresAt       time.Time       `bson:"expires_at" json:"expires_at"`
	AttemptCount    int             `bson:"attempt_count" json:"attempt_count"`
	IsVerified      bool            `bson:"is_verified" json:"is_verified"`
	IsExpired       bool            `bson:"is_expired" json:"is_expired"`
}
