package models

import (
	"time"
)

// TransactionRequestedEvent is published by the wallet service once a
// request passes validation. No balance has been touched at this point.
type TransactionRequestedEvent struct {
	TransactionID    string          `json:"transactionId"`
	UserID           string          `json:"userId"`
	SenderWalletID   string          `json:"senderWalletId"`
	ReceiverWalletID string          `json:"receiverWalletId,omitempty"`
	Amount           float64         `json:"amount"`
	TransactionType  TransactionType `json:"transactionType"`
	Remarks          string          `json:"remarks,omitempty"`
	UserEmail        string          `json:"userEmail"`
	Timestamp        time.Time       `json:"timestamp"`
}

// OtpVerifiedEvent is published by the coordinator after the user answers
// the OTP challenge correctly. It is the only trigger for settlement.
type OtpVerifiedEvent struct {
	TransactionID    string          `json:"transactionId"`
	UserID           string          `json:"userId"`
	SenderWalletID   string          `json:"senderWalletId"`
	ReceiverWalletID string          `json:"receiverWalletId,omitempty"`
	Amount           float64         `json:"amount"`
	TransactionType  TransactionType `json:"transactionType"`
	Timestamp        time.Time       `json:"timestamp"`
}

// TransactionCompletedEvent is published by the wallet service once
// settlement has reached a terminal outcome.
type TransactionCompletedEvent struct {
	TransactionID string            `json:"transactionId"`
	Status        TransactionStatus `json:"status"` // SUCCESS or FAILED
	Remarks       string            `json:"remarks"`
	Timestamp     time.Time         `json:"timestamp"`
}
