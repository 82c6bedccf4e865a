// Package memory implements the storage interfaces in process, with the
// same conditional-update semantics as the mongo implementation. It backs
// the tests and single-process runs without a database.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/markjakearzadon/walletpay-gobackend.git/internal/models"
	"github.com/markjakearzadon/walletpay-gobackend.git/internal/storage"
)

// Stores bundles the in-memory implementations behind one mutex so
// cross-document operations (transfer) stay atomic.
type Stores struct {
	mu           sync.Mutex
	transactions map[string]*models.TransactionRecord
	challenges   map[string]*models.OtpChallenge
	wallets      map[string]*models.Wallet
	settlements  map[string]*models.Settlement
	users        map[string]*models.User

	Transactions *TransactionStore
	Challenges   *OtpStore
	Wallets      *WalletStore
	Settlements  *SettlementStore
	Users        *UserStore
}

func New() *Stores {
	s := &Stores{
		transactions: make(map[string]*models.TransactionRecord),
		challenges:   make(map[string]*models.OtpChallenge),
		wallets:      make(map[string]*models.Wallet),
		settlements:  make(map[string]*models.Settlement),
		users:        make(map[string]*models.User),
	}
	s.Transactions = &TransactionStore{s: s}
	s.Challenges = &OtpStore{s: s}
	s.Wallets = &WalletStore{s: s}
	s.Settlements = &SettlementStore{s: s}
	s.Users = &UserStore{s: s}
	return s
}

type TransactionStore struct {
	s *Stores
}

func (t *TransactionStore) Insert(ctx context.Context, rec *models.TransactionRecord) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	if _, ok := t.s.transactions[rec.ID]; ok {
		return storage.ErrDuplicate
	}
	cp := *rec
	t.s.transactions[rec.ID] = &cp
	return nil
}

func (t *TransactionStore) Get(ctx context.Context, id string) (*models.TransactionRecord, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	rec, ok := t.s.transactions[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (t *TransactionStore) MarkTerminal(ctx context.Context, id string, status models.TransactionStatus, remarks string) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	rec, ok := t.s.transactions[id]
	if !ok {
		return storage.ErrNotFound
	}
	if rec.Status != models.StatusPending {
		return storage.ErrConflict
	}
	rec.Status = status
	rec.Remarks = remarks
	return nil
}

func (t *TransactionStore) FailStale(ctx context.Context, cutoff time.Time, remarks string) (int64, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	var n int64
	for _, rec := range t.s.transactions {
		if rec.Status == models.StatusPending && rec.CreatedAt.Before(cutoff) {
			rec.Status = models.StatusFailed
			rec.Remarks = remarks
			n++
		}
	}
	return n, nil
}

type OtpStore struct {
	s *Stores
}

func (o *OtpStore) Upsert(ctx context.Context, ch *models.OtpChallenge) error {
	o.s.mu.Lock()
	defer o.s.mu.Unlock()

	if existing, ok := o.s.challenges[ch.TransactionID]; ok && existing.IsVerified {
		return storage.ErrConflict
	}
	cp := *ch
	o.s.challenges[ch.TransactionID] = &cp
	return nil
}

func (o *OtpStore) Get(ctx context.Context, transactionID string) (*models.OtpChallenge, error) {
	o.s.mu.Lock()
	defer o.s.mu.Unlock()

	ch, ok := o.s.challenges[transactionID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *ch
	return &cp, nil
}

func (o *OtpStore) IncrementAttempts(ctx context.Context, transactionID string) (*models.OtpChallenge, error) {
	o.s.mu.Lock()
	defer o.s.mu.Unlock()

	ch, ok := o.s.challenges[transactionID]
	if !ok || ch.IsVerified || ch.IsExpired {
		return nil, storage.ErrNotFound
	}
	ch.AttemptCount++
	cp := *ch
	return &cp, nil
}

func (o *OtpStore) MarkVerified(ctx context.Context, transactionID string) error {
	return o.flip(transactionID, func(ch *models.OtpChallenge) { ch.IsVerified = true })
}

func (o *OtpStore) MarkExpired(ctx context.Context, transactionID string) error {
	return o.flip(transactionID, func(ch *models.OtpChallenge) { ch.IsExpired = true })
}

func (o *OtpStore) flip(transactionID string, set func(*models.OtpChallenge)) error {
	o.s.mu.Lock()
	defer o.s.mu.Unlock()

	ch, ok := o.s.challenges[transactionID]
	if !ok {
		return storage.ErrNotFound
	}
	if ch.IsVerified || ch.IsExpired {
		return storage.ErrConflict
	}
	set(ch)
	return nil
}

type WalletStore struct {
	s *Stores
}

func (w *WalletStore) Insert(ctx context.Context, wallet *models.Wallet) error {
	w.s.mu.Lock()
	defer w.s.mu.Unlock()

	if _, ok := w.s.wallets[wallet.ID]; ok {
		return storage.ErrDuplicate
	}
	cp := *wallet
	w.s.wallets[wallet.ID] = &cp
	return nil
}

func (w *WalletStore) Get(ctx context.Context, id string) (*models.Wallet, error) {
	w.s.mu.Lock()
	defer w.s.mu.Unlock()

	wallet, ok := w.s.wallets[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *wallet
	return &cp, nil
}

func (w *WalletStore) Credit(ctx context.Context, id string, amount float64) error {
	w.s.mu.Lock()
	defer w.s.mu.Unlock()

	wallet, ok := w.s.wallets[id]
	if !ok {
		return storage.ErrNotFound
	}
	wallet.Balance += amount
	return nil
}

func (w *WalletStore) Debit(ctx context.Context, id string, amount float64) error {
	w.s.mu.Lock()
	defer w.s.mu.Unlock()

	return w.debitLocked(id, amount)
}

func (w *WalletStore) debitLocked(id string, amount float64) error {
	wallet, ok := w.s.wallets[id]
	if !ok {
		return storage.ErrNotFound
	}
	if wallet.Balance < amount {
		return storage.ErrConflict
	}
	wallet.Balance -= amount
	return nil
}

func (w *WalletStore) Transfer(ctx context.Context, senderID, receiverID string, amount float64) error {
	w.s.mu.Lock()
	defer w.s.mu.Unlock()

	receiver, ok := w.s.wallets[receiverID]
	if !ok {
		return storage.ErrNotFound
	}
	if err := w.debitLocked(senderID, amount); err != nil {
		return err
	}
	receiver.Balance += amount
	return nil
}

type SettlementStore struct {
	s *Stores
}

func (s *SettlementStore) Insert(ctx context.Context, sett *models.Settlement) error {
	s.s.mu.Lock()
	defer s.s.mu.Unlock()

	if _, ok := s.s.settlements[sett.TransactionID]; ok {
		return storage.ErrDuplicate
	}
	cp := *sett
	s.s.settlements[sett.TransactionID] = &cp
	return nil
}

func (s *SettlementStore) Get(ctx context.Context, transactionID string) (*models.Settlement, error) {
	s.s.mu.Lock()
	defer s.s.mu.Unlock()

	sett, ok := s.s.settlements[transactionID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *sett
	return &cp, nil
}

func (s *SettlementStore) SetOutcome(ctx context.Context, transactionID string, status models.TransactionStatus, remarks string) error {
	s.s.mu.Lock()
	defer s.s.mu.Unlock()

	sett, ok := s.s.settlements[transactionID]
	if !ok {
		return storage.ErrNotFound
	}
	sett.Status = status
	sett.Remarks = remarks
	return nil
}

func (s *SettlementStore) Delete(ctx context.Context, transactionID string) error {
	s.s.mu.Lock()
	defer s.s.mu.Unlock()

	delete(s.s.settlements, transactionID)
	return nil
}

type UserStore struct {
	s *Stores
}

func (u *UserStore) Insert(ctx context.Context, user *models.User) error {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()

	if _, ok := u.s.users[user.ID]; ok {
		return storage.ErrDuplicate
	}
	cp := *user
	u.s.users[user.ID] = &cp
	return nil
}

func (u *UserStore) Get(ctx context.Context, id string) (*models.User, error) {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()

	user, ok := u.s.users[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *user
	return &cp, nil
}
