// Package mongodb implements the storage interfaces on MongoDB. Every
// guarded transition is a single filtered update so two concurrent
// deliveries of the same event race on the database, not in memory.
package mongodb

import (
	"context"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/markjakearzadon/walletpay-gobackend.git/internal/models"
	"github.com/markjakearzadon/walletpay-gobackend.git/internal/storage"
)

const (
	transactionsCollection = "transactions"
	challengesCollection   = "otp_challenges"
	walletsCollection      = "wallets"
	settlementsCollection  = "settlements"
	usersCollection        = "user"
)

// Stores bundles the mongo-backed implementations sharing one database.
type Stores struct {
	Transactions *TransactionStore
	Challenges   *OtpStore
	Wallets      *WalletStore
	Settlements  *SettlementStore
	Users        *UserStore
}

// New builds all stores on the given database.
func New(db *mongo.Database) *Stores {
	return &Stores{
		Transactions: &TransactionStore{collection: db.Collection(transactionsCollection)},
		Challenges:   &OtpStore{collection: db.Collection(challengesCollection)},
		Wallets:      &WalletStore{db: db},
		Settlements:  &SettlementStore{collection: db.Collection(settlementsCollection)},
		Users:        &UserStore{collection: db.Collection(usersCollection)},
	}
}

// EnsureIndexes creates the indexes the saga relies on.
func (s *Stores) EnsureIndexes(ctx context.Context) error {
	db := s.Wallets.db
	_, err := db.Collection(transactionsCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.M{"status": 1, "created_at": 1}},
	})
	if err != nil {
		log.Printf("Failed to create transaction indexes: %v", err)
		return fmt.Errorf("failed to create transaction indexes: %v", err)
	}
	_, err = db.Collection(walletsCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.M{"account_number": 1}, Options: options.Index().SetUnique(true)},
		{Keys: bson.M{"owner_id": 1}},
	})
	if err != nil {
		log.Printf("Failed to create wallet indexes: %v", err)
		return fmt.Errorf("failed to create wallet indexes: %v", err)
	}
	return nil
}

type TransactionStore struct {
	collection *mongo.Collection
}

func (s *TransactionStore) Insert(ctx context.Context, rec *models.TransactionRecord) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := s.collection.InsertOne(ctx, rec); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return storage.ErrDuplicate
		}
		return fmt.Errorf("failed to insert transaction: %v", err)
	}
	return nil
}

func (s *TransactionStore) Get(ctx context.Context, id string) (*models.TransactionRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var rec models.TransactionRecord
	if err := s.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&rec); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("failed to fetch transaction %s: %v", id, err)
	}
	return &rec, nil
}

func (s *TransactionStore) MarkTerminal(ctx context.Context, id string, status models.TransactionStatus, remarks string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	res, err := s.collection.UpdateOne(ctx,
		bson.M{"_id": id, "status": models.StatusPending},
		bson.M{"$set": bson.M{"status": status, "remarks": remarks}},
	)
	if err != nil {
		return fmt.Errorf("failed to update transaction %s: %v", id, err)
	}
	if res.MatchedCount == 0 {
		// Distinguish a missing record from one that already terminated.
		if err := s.collection.FindOne(ctx, bson.M{"_id": id}).Err(); err != nil {
			if err == mongo.ErrNoDocuments {
				return storage.ErrNotFound
			}
			return fmt.Errorf("failed to fetch transaction %s: %v", id, err)
		}
		return storage.ErrConflict
	}
	return nil
}

func (s *TransactionStore) FailStale(ctx context.Context, cutoff time.Time, remarks string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	res, err := s.collection.UpdateMany(ctx,
		bson.M{"status": models.StatusPending, "created_at": bson.M{"$lt": cutoff}},
		bson.M{"$set": bson.M{"status": models.StatusFailed, "remarks": remarks}},
	)
	if err != nil {
		return 0, fmt.Errorf("failed to fail stale transactions: %v", err)
	}
	return res.ModifiedCount, nil
}

type OtpStore struct {
	collection *mongo.Collection
}

func (s *OtpStore) Upsert(ctx context.Context, ch *models.OtpChallenge) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	res, err := s.collection.ReplaceOne(ctx,
		bson.M{"_id": ch.TransactionID, "is_verified": false},
		ch,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			// Upsert raced a verified challenge on the same id.
			return storage.ErrConflict
		}
		return fmt.Errorf("failed to upsert challenge %s: %v", ch.TransactionID, err)
	}
	if res.MatchedCount == 0 && res.UpsertedCount == 0 {
		return storage.ErrConflict
	}
	return nil
}

func (s *OtpStore) Get(ctx context.Context, transactionID string) (*models.OtpChallenge, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var ch models.OtpChallenge
	if err := s.collection.FindOne(ctx, bson.M{"_id": transactionID}).Decode(&ch); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("failed to fetch challenge %s: %v", transactionID, err)
	}
	return &ch, nil
}

func (s *OtpStore) IncrementAttempts(ctx context.Context, transactionID string) (*models.OtpChallenge, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var ch models.OtpChallenge
	err := s.collection.FindOneAndUpdate(ctx,
		bson.M{"_id": transactionID, "is_verified": false, "is_expired": false},
		bson.M{"$inc": bson.M{"attempt_count": 1}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&ch)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("failed to increment attempts for %s: %v", transactionID, err)
	}
	return &ch, nil
}

func (s *OtpStore) MarkVerified(ctx context.Context, transactionID string) error {
	return s.flip(ctx, transactionID, bson.M{"is_verified": true})
}

func (s *OtpStore) MarkExpired(ctx context.Context, transactionID string) error {
	return s.flip(ctx, transactionID, bson.M{"is_expired": true})
}

func (s *OtpStore) flip(ctx context.Context, transactionID string, set bson.M) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	res, err := s.collection.UpdateOne(ctx,
		bson.M{"_id": transactionID, "is_verified": false, "is_expired": false},
		bson.M{"$set": set},
	)
	if err != nil {
		return fmt.Errorf("failed to update challenge %s: %v", transactionID, err)
	}
	if res.MatchedCount == 0 {
		if err := s.collection.FindOne(ctx, bson.M{"_id": transactionID}).Err(); err != nil {
			if err == mongo.ErrNoDocuments {
				return storage.ErrNotFound
			}
			return fmt.Errorf("failed to fetch challenge %s: %v", transactionID, err)
		}
		return storage.ErrConflict
	}
	return nil
}

type WalletStore struct {
	db *mongo.Database
}

func (s *WalletStore) collection() *mongo.Collection {
	return s.db.Collection(walletsCollection)
}

func (s *WalletStore) Insert(ctx context.Context, w *models.Wallet) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := s.collection().InsertOne(ctx, w); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return storage.ErrDuplicate
		}
		return fmt.Errorf("failed to insert wallet: %v", err)
	}
	return nil
}

func (s *WalletStore) Get(ctx context.Context, id string) (*models.Wallet, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var w models.Wallet
	if err := s.collection().FindOne(ctx, bson.M{"_id": id}).Decode(&w); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("failed to fetch wallet %s: %v", id, err)
	}
	return &w, nil
}

func (s *WalletStore) Credit(ctx context.Context, id string, amount float64) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	res, err := s.collection().UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$inc": bson.M{"balance": amount}},
	)
	if err != nil {
		return fmt.Errorf("failed to credit wallet %s: %v", id, err)
	}
	if res.MatchedCount == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *WalletStore) Debit(ctx context.Context, id string, amount float64) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return s.debit(ctx, s.collection(), id, amount)
}

func (s *WalletStore) debit(ctx context.Context, coll *mongo.Collection, id string, amount float64) error {
	res, err := coll.UpdateOne(ctx,
		bson.M{"_id": id, "balance": bson.M{"$gte": amount}},
		bson.M{"$inc": bson.M{"balance": -amount}},
	)
	if err != nil {
		return fmt.Errorf("failed to debit wallet %s: %v", id, err)
	}
	if res.MatchedCount == 0 {
		if err := coll.FindOne(ctx, bson.M{"_id": id}).Err(); err != nil {
			if err == mongo.ErrNoDocuments {
				return storage.ErrNotFound
			}
			return fmt.Errorf("failed to fetch wallet %s: %v", id, err)
		}
		return storage.ErrConflict
	}
	return nil
}

// Transfer runs debit and credit inside one mongo transaction so no reader
// ever observes the debit without the credit.
func (s *WalletStore) Transfer(ctx context.Context, senderID, receiverID string, amount float64) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	sess, err := s.db.Client().StartSession()
	if err != nil {
		return fmt.Errorf("failed to start session: %v", err)
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		coll := s.collection()
		if err := s.debit(sc, coll, senderID, amount); err != nil {
			return nil, err
		}
		res, err := coll.UpdateOne(sc,
			bson.M{"_id": receiverID},
			bson.M{"$inc": bson.M{"balance": amount}},
		)
		if err != nil {
			return nil, fmt.Errorf("failed to credit wallet %s: %v", receiverID, err)
		}
		if res.MatchedCount == 0 {
			return nil, storage.ErrNotFound
		}
		return nil, nil
	})
	return err
}

type SettlementStore struct {
	collection *mongo.Collection
}

func (s *SettlementStore) Insert(ctx context.Context, sett *models.Settlement) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := s.collection.InsertOne(ctx, sett); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return storage.ErrDuplicate
		}
		return fmt.Errorf("failed to insert settlement: %v", err)
	}
	return nil
}

func (s *SettlementStore) Get(ctx context.Context, transactionID string) (*models.Settlement, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var sett models.Settlement
	if err := s.collection.FindOne(ctx, bson.M{"_id": transactionID}).Decode(&sett); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("failed to fetch settlement %s: %v", transactionID, err)
	}
	return &sett, nil
}

func (s *SettlementStore) SetOutcome(ctx context.Context, transactionID string, status models.TransactionStatus, remarks string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	res, err := s.collection.UpdateOne(ctx,
		bson.M{"_id": transactionID},
		bson.M{"$set": bson.M{"status": status, "remarks": remarks}},
	)
	if err != nil {
		return fmt.Errorf("failed to update settlement %s: %v", transactionID, err)
	}
	if res.MatchedCount == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *SettlementStore) Delete(ctx context.Context, transactionID string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := s.collection.DeleteOne(ctx, bson.M{"_id": transactionID}); err != nil {
		return fmt.Errorf("failed to delete settlement %s: %v", transactionID, err)
	}
	return nil
}

type UserStore struct {
	collection *mongo.Collection
}

func (s *UserStore) Insert(ctx context.Context, u *models.User) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := s.collection.InsertOne(ctx, u); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return storage.ErrDuplicate
		}
		return fmt.Errorf("failed to insert user: %v", err)
	}
	return nil
}

func (s *UserStore) Get(ctx context.Context, id string) (*models.User, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var u models.User
	if err := s.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&u); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("failed to fetch user %s: %v", id, err)
	}
	return &u, nil
}
