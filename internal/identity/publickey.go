package identity

import (
	"context"
	"math"
	"strconv"

	"github.com/jutuon/afrodite-backend-sub001/internal/apierr"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// supportedPublicKeyVersion is the only PublicKeyVersion accepted today
// (SPEC_FULL.md §3); callers submitting any other value get a literal 406
// at the handler boundary, per §6 — not routed through apierr.
const supportedPublicKeyVersion int32 = 1

type publicKeyDoc struct {
	AccountInternalID int64  `bson:"account_internal_id"`
	ID                int64  `bson:"id"`
	Version           int32  `bson:"version"`
	Data              []byte `bson:"data"`
}

type publicKeyCounterDoc struct {
	ID    string `bson:"_id"`
	Value int64  `bson:"value"`
}

// PublicKeyStore persists each account's current end-to-end public key
// plus a monotonic per-account id counter (SPEC_FULL.md §6).
type PublicKeyStore struct {
	keys     *mongo.Collection
	counters *mongo.Collection
}

func NewPublicKeyStore(db *mongo.Database) *PublicKeyStore {
	return &PublicKeyStore{keys: db.Collection("public_keys"), counters: db.Collection("public_key_counters")}
}

func (s *PublicKeyStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.keys.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "account_internal_id", Value: 1}, {Key: "id", Value: 1}},
	})
	return err
}

// SupportedPublicKeyVersion reports whether version is acceptable; handlers write a
// literal 406 when it is not (SPEC_FULL.md §6), never through apierr.
func SupportedPublicKeyVersion(version int32) bool { return version == supportedPublicKeyVersion }

// Set stores a new public key for account, allocating a fresh monotonic id.
func (s *PublicKeyStore) Set(ctx context.Context, account InternalAccountID, data []byte, version int32) (int64, error) {
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	var counter publicKeyCounterDoc
	err := s.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": "public_key_id:" + strconv.FormatInt(int64(account), 10)},
		bson.M{"$inc": bson.M{"value": 1}},
		opts,
	).Decode(&counter)
	if err != nil {
		return 0, apierr.Internal(err)
	}
	if counter.Value >= math.MaxInt64 {
		return 0, apierr.Internal(nil)
	}

	doc := publicKeyDoc{AccountInternalID: int64(account), ID: counter.Value, Version: version, Data: data}
	if _, err := s.keys.InsertOne(ctx, doc); err != nil {
		return 0, apierr.Internal(err)
	}
	return counter.Value, nil
}

// Get resolves a public key by (account, keyID, version).
func (s *PublicKeyStore) Get(ctx context.Context, account InternalAccountID, keyID int64, version int32) (*PublicKey, error) {
	var doc publicKeyDoc
	err := s.keys.FindOne(ctx, bson.M{"account_internal_id": int64(account), "id": keyID, "version": version}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, apierr.New(apierr.CodeNotFound, "public key not found")
	}
	if err != nil {
		return nil, apierr.Internal(err)
	}
	return &PublicKey{AccountInternalID: account, ID: doc.ID, Version: doc.Version, Data: doc.Data}, nil
}

// Current returns the most recently set public key id for an account, used
// by messagequeue to validate senderPublicKeyID references.
func (s *PublicKeyStore) Current(ctx context.Context, account InternalAccountID) (*PublicKey, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "id", Value: -1}})
	var doc publicKeyDoc
	err := s.keys.FindOne(ctx, bson.M{"account_internal_id": int64(account)}, opts).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, apierr.New(apierr.CodeNotFound, "no public key on file")
	}
	if err != nil {
		return nil, apierr.Internal(err)
	}
	return &PublicKey{AccountInternalID: account, ID: doc.ID, Version: doc.Version, Data: doc.Data}, nil
}
