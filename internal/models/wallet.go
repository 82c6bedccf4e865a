package models

import (
	"time"
)

// Wallet holds a user's balance. The balance is mutated only by the
// settlement handler after OTP verification, never directly by an inbound
// HTTP request, and never goes negative.
type Wallet struct {
	ID             string    `bson:"_id" json:"id"`
	OwnerID        string    `bson:"owner_id" json:"owner_id"`
	AccountNumber  string    `bson:"account_number" json:"account_number"`
	Balance        float64   `bson:"balance" json:"balance"`
	HashedPasscode string    `bson:"hashed_passcode" json:"-"`
	CreatedAt      time.Time `bson:"created_at" json:"created_at"`
}

// Settlement is the per-transaction marker that makes the balance mutation
// effectively exactly-once: it is inserted (unique on transaction id) before
// the balance delta is applied, and records the outcome so a redelivered
// event can republish the completion without touching balances again.
type Settlement struct {
	TransactionID string            `bson:"_id" json:"transaction_id"`
	Status        TransactionStatus `bson:"status,omitempty" json:"status,omitempty"`
	Remarks       string            `bson:"remarks,omitempty" json:"remarks,omitempty"`
	SettledAt     time.Time         `bson:"settled_at" json:"settled_at"`
}
