package models

import (
	"time"
)

type TransactionStatus string

const (
	StatusPending TransactionStatus = "PENDING"
	StatusSuccess TransactionStatus = "SUCCESS"
	StatusFailed  TransactionStatus = "FAILED"
)

type TransactionType string

const (
	TypeCredit   TransactionType = "CREDIT"
	TypeWithdraw TransactionType = "WITHDRAW"
	TypeTransfer TransactionType = "TRANSFER"
)

// TransactionRecord is a single funds-movement attempt. The id is generated
// by the wallet service on request and propagated unchanged through every
// event, so it doubles as the saga correlation key. Once the status leaves
// PENDING the record is terminal and never re-transitions.
type TransactionRecord struct {
	ID               string            `bson:"_id" json:"id"`
	SenderWalletID   string            `bson:"sender_wallet_id" json:"sender_wallet_id"`
	ReceiverWalletID string            `bson:"receiver_wallet_id,omitempty" json:"receiver_wallet_id,omitempty"`
	Amount           float64           `bson:"amount" json:"amount"`
	Status           TransactionStatus `bson:"status" json:"status"` // PENDING, SUCCESS, FAILED
	Remarks          string            `bson:"remarks" json:"remarks"`
	CreatedAt        time.Time         `bson:"created_at" json:"created_at"`
}
