// Package syncversion implements C2: monotonic per-(account, kind) counters
// that let a reconnecting client discover exactly which of its cached views
// is stale (SPEC_FULL.md §4.2).
package syncversion

import (
	"context"
	"math"

	"github.com/jutuon/afrodite-backend-sub001/internal/apierr"
	"github.com/jutuon/afrodite-backend-sub001/internal/identity"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Kind enumerates the sync-version dimensions a client tracks.
type Kind string

const (
	KindProfile        Kind = "Profile"
	KindMatches        Kind = "Matches"
	KindReceivedLikes  Kind = "ReceivedLikes"
	KindReceivedBlocks Kind = "ReceivedBlocks"
	KindSentLikes      Kind = "SentLikes"
	KindNews           Kind = "News"
)

// ErrMustResync is returned by Bump when the counter has saturated at
// math.MaxInt64; the caller must force the client through a full resync.
var ErrMustResync = apierr.New(apierr.CodeConflict, "sync version saturated, full resync required")

type versionDoc struct {
	AccountID int64  `bson:"account_id"`
	Kind      string `bson:"kind"`
	Version   int64  `bson:"version"`
}

// Store persists one counter per (account, kind).
type Store struct {
	col *mongo.Collection
}

func NewStore(db *mongo.Database) *Store {
	return &Store{col: db.Collection("sync_versions")}
}

func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.col.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "account_id", Value: 1}, {Key: "kind", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}

// Bump increments the counter for (account, kind) and returns the new
// value. Sequenced-before the caller's event emission per SPEC_FULL.md §5.
func (s *Store) Bump(ctx context.Context, account identity.InternalAccountID, kind Kind) (int64, error) {
	current, err := s.Current(ctx, account, kind)
	if err != nil {
		return 0, err
	}
	if current >= math.MaxInt64 {
		return current, ErrMustResync
	}

	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	var doc versionDoc
	err = s.col.FindOneAndUpdate(ctx,
		bson.M{"account_id": int64(account), "kind": string(kind)},
		bson.M{"$inc": bson.M{"version": 1}},
		opts,
	).Decode(&doc)
	if err != nil {
		return 0, apierr.Internal(err)
	}
	return doc.Version, nil
}

// Current returns the counter's present value without mutating it (0 if
// never bumped).
func (s *Store) Current(ctx context.Context, account identity.InternalAccountID, kind Kind) (int64, error) {
	var doc versionDoc
	err := s.col.FindOne(ctx, bson.M{"account_id": int64(account), "kind": string(kind)}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return 0, nil
	}
	if err != nil {
		return 0, apierr.Internal(err)
	}
	return doc.Version, nil
}

// ResyncClear resets the counter after an acknowledged full resync,
// implementing the overflow policy's second half (SPEC_FULL.md §3).
func (s *Store) ResyncClear(ctx context.Context, account identity.InternalAccountID, kind Kind) error {
	_, err := s.col.UpdateOne(ctx,
		bson.M{"account_id": int64(account), "kind": string(kind)},
		bson.M{"$set": bson.M{"version": int64(0)}},
	)
	if err != nil {
		return apierr.Internal(err)
	}
	return nil
}
