package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/markjakearzadon/walletpay-gobackend.git/internal/bus"
	"github.com/markjakearzadon/walletpay-gobackend.git/internal/bus/membus"
	"github.com/markjakearzadon/walletpay-gobackend.git/internal/models"
	"github.com/markjakearzadon/walletpay-gobackend.git/internal/storage/memory"
)

type ledgerFixture struct {
	stores   *memory.Stores
	bus      *membus.MemoryBus
	verifier *BcryptVerifier
	svc      *WalletService
}

func newLedgerFixture(t *testing.T) *ledgerFixture {
	t.Helper()
	stores := memory.New()
	eventBus := membus.New()
	verifier := &BcryptVerifier{Cost: bcrypt.MinCost}
	svc := NewWalletService(stores.Wallets, stores.Settlements, stores.Users, eventBus, verifier)
	return &ledgerFixture{stores: stores, bus: eventBus, verifier: verifier, svc: svc}
}

func (f *ledgerFixture) seedUser(t *testing.T, id, email string) {
	t.Helper()
	err := f.stores.Users.Insert(context.Background(), &models.User{
		ID:        id,
		FullName:  "Jane Doe",
		Email:     email,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("failed to seed user: %v", err)
	}
}

func (f *ledgerFixture) seedWallet(t *testing.T, id, ownerID, passcode string, balance float64) {
	t.Helper()
	digest, err := f.verifier.Hash(passcode)
	if err != nil {
		t.Fatalf("failed to hash passcode: %v", err)
	}
	err = f.stores.Wallets.Insert(context.Background(), &models.Wallet{
		ID:             id,
		OwnerID:        ownerID,
		AccountNumber:  "acct-" + id,
		Balance:        balance,
		HashedPasscode: digest,
		CreatedAt:      time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("failed to seed wallet: %v", err)
	}
}

func (f *ledgerFixture) captureCompleted(t *testing.T) *[]models.TransactionCompletedEvent {
	t.Helper()
	events := &[]models.TransactionCompletedEvent{}
	err := f.bus.Subscribe(bus.TopicTransactionCompleted, func(ctx context.Context, payload []byte) error {
		var evt models.TransactionCompletedEvent
		if err := json.Unmarshal(payload, &evt); err != nil {
			return err
		}
		*events = append(*events, evt)
		return nil
	})
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	return events
}

func (f *ledgerFixture) verifiedPayload(t *testing.T, id string, txType models.TransactionType, sender, receiver string, amount float64) []byte {
	t.Helper()
	payload, err := json.Marshal(models.OtpVerifiedEvent{
		TransactionID:    id,
		UserID:           "user-1",
		SenderWalletID:   sender,
		ReceiverWalletID: receiver,
		Amount:           amount,
		TransactionType:  txType,
		Timestamp:        time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("failed to marshal event: %v", err)
	}
	return payload
}

func (f *ledgerFixture) balance(t *testing.T, walletID string) float64 {
	t.Helper()
	w, err := f.stores.Wallets.Get(context.Background(), walletID)
	if err != nil {
		t.Fatalf("failed to load wallet %s: %v", walletID, err)
	}
	return w.Balance
}

func TestRequestTransaction_Validation(t *testing.T) {
	f := newLedgerFixture(t)
	f.seedUser(t, "user-1", "jane@example.com")
	f.seedWallet(t, "wallet-1", "user-1", "1234", 100)
	f.seedWallet(t, "wallet-2", "user-2", "5678", 0)

	base := TransactionRequest{
		UserID:   "user-1",
		WalletID: "wallet-1",
		Amount:   50,
		Type:     models.TypeWithdraw,
		Passcode: "1234",
	}

	tests := []struct {
		name    string
		mutate  func(r *TransactionRequest)
		wantErr error
	}{
		{"zero amount", func(r *TransactionRequest) { r.Amount = 0 }, ErrValidation},
		{"negative amount", func(r *TransactionRequest) { r.Amount = -5 }, ErrValidation},
		{"unknown type", func(r *TransactionRequest) { r.Type = "REFUND" }, ErrValidation},
		{"transfer without receiver", func(r *TransactionRequest) { r.Type = models.TypeTransfer }, ErrValidation},
		{"transfer to same wallet", func(r *TransactionRequest) {
			r.Type = models.TypeTransfer
			r.ReceiverWalletID = r.WalletID
		}, ErrValidation},
		{"missing wallet", func(r *TransactionRequest) { r.WalletID = "wallet-ghost" }, ErrWalletNotFound},
		{"not the owner", func(r *TransactionRequest) { r.WalletID = "wallet-2" }, ErrNotWalletOwner},
		{"wrong passcode", func(r *TransactionRequest) { r.Passcode = "9999" }, ErrInvalidPasscode},
		{"insufficient balance", func(r *TransactionRequest) { r.Amount = 150 }, ErrInsufficientBalance},
		{"transfer to missing wallet", func(r *TransactionRequest) {
			r.Type = models.TypeTransfer
			r.ReceiverWalletID = "wallet-ghost"
		}, ErrWalletNotFound},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := base
			tc.mutate(&req)
			if _, err := f.svc.RequestTransaction(context.Background(), req); !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
		})
	}

	// Nothing above may have touched a balance.
	if got := f.balance(t, "wallet-1"); got != 100 {
		t.Errorf("wallet-1 balance changed to %v", got)
	}
}

func TestRequestTransaction_PublishesEventWithoutMutation(t *testing.T) {
	f := newLedgerFixture(t)
	f.seedUser(t, "user-1", "jane@example.com")
	f.seedWallet(t, "wallet-1", "user-1", "1234", 100)

	var published []models.TransactionRequestedEvent
	f.bus.Subscribe(bus.TopicTransactionRequested, func(ctx context.Context, payload []byte) error {
		var evt models.TransactionRequestedEvent
		if err := json.Unmarshal(payload, &evt); err != nil {
			return err
		}
		published = append(published, evt)
		return nil
	})

	txID, err := f.svc.RequestTransaction(context.Background(), TransactionRequest{
		UserID:   "user-1",
		WalletID: "wallet-1",
		Amount:   40,
		Type:     models.TypeWithdraw,
		Remarks:  "groceries",
		Passcode: "1234",
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if txID == "" {
		t.Fatalf("expected a transaction id")
	}

	if len(published) != 1 {
		t.Fatalf("expected one transaction-requested event, got %d", len(published))
	}
	evt := published[0]
	if evt.TransactionID != txID || evt.SenderWalletID != "wallet-1" || evt.Amount != 40 ||
		evt.TransactionType != models.TypeWithdraw || evt.UserEmail != "jane@example.com" {
		t.Errorf("event fields do not match request: %+v", evt)
	}

	if got := f.balance(t, "wallet-1"); got != 100 {
		t.Errorf("request must not mutate the balance, got %v", got)
	}
}

func TestHandleOtpVerified_CreditSettles(t *testing.T) {
	f := newLedgerFixture(t)
	f.seedUser(t, "user-1", "jane@example.com")
	f.seedWallet(t, "wallet-1", "user-1", "1234", 100)
	completed := f.captureCompleted(t)

	payload := f.verifiedPayload(t, "tx-1", models.TypeCredit, "wallet-1", "", 50)
	if err := f.svc.HandleOtpVerified(context.Background(), payload); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if got := f.balance(t, "wallet-1"); got != 150 {
		t.Errorf("expected balance 150, got %v", got)
	}
	if len(*completed) != 1 || (*completed)[0].Status != models.StatusSuccess {
		t.Fatalf("expected one SUCCESS completion, got %+v", *completed)
	}
}

func TestHandleOtpVerified_WithdrawInsufficientBalance(t *testing.T) {
	f := newLedgerFixture(t)
	f.seedUser(t, "user-1", "jane@example.com")
	f.seedWallet(t, "wallet-1", "user-1", "1234", 100)
	completed := f.captureCompleted(t)

	payload := f.verifiedPayload(t, "tx-1", models.TypeWithdraw, "wallet-1", "", 150)
	if err := f.svc.HandleOtpVerified(context.Background(), payload); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if got := f.balance(t, "wallet-1"); got != 100 {
		t.Errorf("failed settlement must not touch the balance, got %v", got)
	}
	if len(*completed) != 1 {
		t.Fatalf("expected one completion, got %d", len(*completed))
	}
	evt := (*completed)[0]
	if evt.Status != models.StatusFailed || evt.Remarks != "Insufficient balance" {
		t.Errorf("expected FAILED/Insufficient balance, got %s/%q", evt.Status, evt.Remarks)
	}
}

func TestHandleOtpVerified_TransferSettlesBothSides(t *testing.T) {
	f := newLedgerFixture(t)
	f.seedUser(t, "user-1", "jane@example.com")
	f.seedWallet(t, "wallet-1", "user-1", "1234", 100)
	f.seedWallet(t, "wallet-2", "user-2", "5678", 0)
	completed := f.captureCompleted(t)

	payload := f.verifiedPayload(t, "tx-1", models.TypeTransfer, "wallet-1", "wallet-2", 50)
	if err := f.svc.HandleOtpVerified(context.Background(), payload); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if got := f.balance(t, "wallet-1"); got != 50 {
		t.Errorf("expected sender balance 50, got %v", got)
	}
	if got := f.balance(t, "wallet-2"); got != 50 {
		t.Errorf("expected receiver balance 50, got %v", got)
	}
	if len(*completed) != 1 || (*completed)[0].Status != models.StatusSuccess {
		t.Fatalf("expected one SUCCESS completion, got %+v", *completed)
	}
}

func TestHandleOtpVerified_TransferInsufficientLeavesReceiverUntouched(t *testing.T) {
	f := newLedgerFixture(t)
	f.seedUser(t, "user-1", "jane@example.com")
	f.seedWallet(t, "wallet-1", "user-1", "1234", 30)
	f.seedWallet(t, "wallet-2", "user-2", "5678", 10)
	completed := f.captureCompleted(t)

	payload := f.verifiedPayload(t, "tx-1", models.TypeTransfer, "wallet-1", "wallet-2", 50)
	if err := f.svc.HandleOtpVerified(context.Background(), payload); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if got := f.balance(t, "wallet-1"); got != 30 {
		t.Errorf("sender balance changed to %v", got)
	}
	if got := f.balance(t, "wallet-2"); got != 10 {
		t.Errorf("receiver balance changed to %v", got)
	}
	if len(*completed) != 1 || (*completed)[0].Status != models.StatusFailed {
		t.Fatalf("expected one FAILED completion, got %+v", *completed)
	}
}

func TestHandleOtpVerified_DuplicateDeliveryMutatesOnce(t *testing.T) {
	f := newLedgerFixture(t)
	f.seedUser(t, "user-1", "jane@example.com")
	f.seedWallet(t, "wallet-1", "user-1", "1234", 100)
	completed := f.captureCompleted(t)

	payload := f.verifiedPayload(t, "tx-1", models.TypeCredit, "wallet-1", "", 50)
	if err := f.svc.HandleOtpVerified(context.Background(), payload); err != nil {
		t.Fatalf("first delivery failed: %v", err)
	}
	if err := f.svc.HandleOtpVerified(context.Background(), payload); err != nil {
		t.Fatalf("duplicate delivery failed: %v", err)
	}

	if got := f.balance(t, "wallet-1"); got != 150 {
		t.Errorf("expected balance credited exactly once (150), got %v", got)
	}

	// The duplicate republishes the recorded outcome instead of staying
	// silent, so the coordinator can still finalize.
	if len(*completed) != 2 {
		t.Fatalf("expected completion republished on duplicate, got %d events", len(*completed))
	}
	for _, evt := range *completed {
		if evt.Status != models.StatusSuccess {
			t.Errorf("expected SUCCESS outcomes, got %+v", evt)
		}
	}
}

func TestHandleOtpVerified_OutcomelessMarkerStaysUnacknowledged(t *testing.T) {
	f := newLedgerFixture(t)
	f.seedUser(t, "user-1", "jane@example.com")
	f.seedWallet(t, "wallet-1", "user-1", "1234", 100)
	completed := f.captureCompleted(t)

	// A previous delivery died between inserting the marker and applying
	// the mutation, leaving a marker with no recorded outcome.
	err := f.stores.Settlements.Insert(context.Background(), &models.Settlement{
		TransactionID: "tx-1",
		SettledAt:     time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("failed to seed marker: %v", err)
	}

	payload := f.verifiedPayload(t, "tx-1", models.TypeCredit, "wallet-1", "", 50)
	if err := f.svc.HandleOtpVerified(context.Background(), payload); err == nil {
		t.Fatal("expected the redelivery to stay unacknowledged")
	}

	// Nothing may move and nothing may be published until the outcome is
	// recorded or the marker is released.
	if got := f.balance(t, "wallet-1"); got != 100 {
		t.Errorf("balance changed to %v", got)
	}
	if len(*completed) != 0 {
		t.Errorf("expected no completion, got %+v", *completed)
	}

	// Once the marker is released, the redelivered event settles normally.
	if err := f.stores.Settlements.Delete(context.Background(), "tx-1"); err != nil {
		t.Fatalf("failed to release marker: %v", err)
	}
	if err := f.svc.HandleOtpVerified(context.Background(), payload); err != nil {
		t.Fatalf("expected settlement after release, got %v", err)
	}
	if got := f.balance(t, "wallet-1"); got != 150 {
		t.Errorf("expected balance 150, got %v", got)
	}
	if len(*completed) != 1 || (*completed)[0].Status != models.StatusSuccess {
		t.Fatalf("expected one SUCCESS completion, got %+v", *completed)
	}
}

func TestCreateWallet(t *testing.T) {
	f := newLedgerFixture(t)
	f.seedUser(t, "user-1", "jane@example.com")

	w, err := f.svc.CreateWallet(context.Background(), "user-1", "1234")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if w.Balance != 0 {
		t.Errorf("new wallet should start empty, got %v", w.Balance)
	}
	if !f.verifier.Matches("1234", w.HashedPasscode) {
		t.Errorf("stored passcode hash does not match")
	}

	if _, err := f.svc.CreateWallet(context.Background(), "user-1", "12"); !errors.Is(err, ErrValidation) {
		t.Errorf("expected ErrValidation for short passcode, got %v", err)
	}
	if _, err := f.svc.CreateWallet(context.Background(), "user-ghost", "1234"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("expected ErrUserNotFound, got %v", err)
	}
}
