package identity

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// accountDoc / tokenDoc are the Mongo-facing shapes; the exported Account
// type stays free of driver tags, matching the teacher's repository-layer
// separation (internal/repositories/user_repo.go).
type accountDoc struct {
	ID          string     `bson:"_id"`
	InternalID  int64      `bson:"internal_id"`
	State       string     `bson:"state"`
	Permissions uint32     `bson:"permissions"`
	IsBot       bool       `bson:"is_bot"`
	Email       string     `bson:"email,omitempty"`
	GoogleSubID string     `bson:"google_sub_id,omitempty"`
	CreatedAt   time.Time  `bson:"created_at"`
	BannedUntil *time.Time `bson:"banned_until,omitempty"`
}

type counterDoc struct {
	ID    string `bson:"_id"`
	Value int64  `bson:"value"`
}

type refreshTokenDoc struct {
	Token      string    `bson:"_id"`
	InternalID int64     `bson:"internal_id"`
	ExpiresAt  time.Time `bson:"expires_at"`
}

// Repository is the durable store backing C1; Mongo is authoritative on
// cache miss / process restart (SPEC_FULL.md §4.1).
type Repository struct {
	accounts  *mongo.Collection
	counters  *mongo.Collection
	refreshes *mongo.Collection
}

func NewRepository(db *mongo.Database) *Repository {
	return &Repository{
		accounts:  db.Collection("accounts"),
		counters:  db.Collection("counters"),
		refreshes: db.Collection("refresh_tokens"),
	}
}

func (r *Repository) EnsureIndexes(ctx context.Context) error {
	_, err := r.accounts.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "internal_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetSparse(true).SetUnique(true)},
	})
	return err
}

// nextInternalID atomically increments the dense internal-id counter.
func (r *Repository) nextInternalID(ctx context.Context) (InternalAccountID, error) {
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	var doc counterDoc
	err := r.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": "account_internal_id"},
		bson.M{"$inc": bson.M{"value": 1}},
		opts,
	).Decode(&doc)
	if err != nil {
		return 0, err
	}
	return InternalAccountID(doc.Value), nil
}

func (r *Repository) Insert(ctx context.Context, email string) (*Account, error) {
	internalID, err := r.nextInternalID(ctx)
	if err != nil {
		return nil, err
	}
	acc := &Account{
		ID:         NewAccountID(),
		InternalID: internalID,
		State:      StateInitialSetup,
		CreatedAt:  time.Now(),
		Email:      email,
	}
	doc := accountDoc{
		ID:         acc.ID.String(),
		InternalID: int64(acc.InternalID),
		State:      string(acc.State),
		CreatedAt:  acc.CreatedAt,
		Email:      acc.Email,
	}
	if _, err := r.accounts.InsertOne(ctx, doc); err != nil {
		return nil, err
	}
	return acc, nil
}

func (r *Repository) FindByInternalID(ctx context.Context, id InternalAccountID) (*Account, error) {
	var doc accountDoc
	if err := r.accounts.FindOne(ctx, bson.M{"internal_id": int64(id)}).Decode(&doc); err != nil {
		return nil, err
	}
	return fromDoc(doc), nil
}

func (r *Repository) FindByAccountID(ctx context.Context, id AccountID) (*Account, error) {
	var doc accountDoc
	if err := r.accounts.FindOne(ctx, bson.M{"_id": id.String()}).Decode(&doc); err != nil {
		return nil, err
	}
	return fromDoc(doc), nil
}

func (r *Repository) UpdateState(ctx context.Context, id InternalAccountID, state AccountState) error {
	_, err := r.accounts.UpdateOne(ctx,
		bson.M{"internal_id": int64(id)},
		bson.M{"$set": bson.M{"state": string(state)}},
	)
	return err
}

func fromDoc(doc accountDoc) *Account {
	accID, _ := ParseAccountID(doc.ID)
	return &Account{
		ID:          accID,
		InternalID:  InternalAccountID(doc.InternalID),
		State:       AccountState(doc.State),
		Permissions: Permission(doc.Permissions),
		IsBot:       doc.IsBot,
		Email:       doc.Email,
		GoogleSubID: doc.GoogleSubID,
		CreatedAt:   doc.CreatedAt,
		BannedUntil: doc.BannedUntil,
	}
}

func (r *Repository) StoreRefreshToken(ctx context.Context, token string, internalID InternalAccountID, ttl time.Duration) error {
	doc := refreshTokenDoc{Token: token, InternalID: int64(internalID), ExpiresAt: time.Now().Add(ttl)}
	_, err := r.refreshes.InsertOne(ctx, doc)
	return err
}

func (r *Repository) ConsumeRefreshToken(ctx context.Context, token string) (InternalAccountID, error) {
	var doc refreshTokenDoc
	err := r.refreshes.FindOneAndDelete(ctx, bson.M{"_id": token}).Decode(&doc)
	if err != nil {
		return 0, err
	}
	if time.Now().After(doc.ExpiresAt) {
		return 0, mongo.ErrNoDocuments
	}
	return InternalAccountID(doc.InternalID), nil
}

func (r *Repository) RevokeRefreshTokensFor(ctx context.Context, internalID InternalAccountID) error {
	_, err := r.refreshes.DeleteMany(ctx, bson.M{"internal_id": int64(internalID)})
	return err
}
