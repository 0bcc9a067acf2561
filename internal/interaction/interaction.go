// Package interaction implements C4: the single shared row per unordered
// pair of accounts, with reciprocal index rows for O(1) lookup from either
// side (SPEC_FULL.md §4.4).
package interaction

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/jutuon/afrodite-backend-sub001/internal/apierr"
	"github.com/jutuon/afrodite-backend-sub001/internal/identity"
	"github.com/jutuon/afrodite-backend-sub001/internal/platform/redisx"
	"github.com/jutuon/afrodite-backend-sub001/internal/syncversion"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// newSessionID mints a 128-bit opaque iterator session id. crypto/rand is
// used directly (as in internal/identity/tokens.go) since no library in the
// retrieval pack offers a CSPRNG token primitive.
func newSessionID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// State is the pairwise relationship state machine.
type State string

const (
	StateEmpty   State = "Empty"
	StateLiked   State = "Liked"
	StateMatched State = "Matched"
	StateBlocked State = "Blocked"
)

// EventEmitter decouples this package from the concrete event router (C9)
// to avoid an import cycle.
type EventEmitter interface {
	LikesChanged(ctx context.Context, accounts ...identity.InternalAccountID)
	ReceivedBlocksChanged(ctx context.Context, account identity.InternalAccountID)
}

type interactionDoc struct {
	ID             primitive.ObjectID `bson:"_id"`
	AccountFirst   int64              `bson:"account_first"`  // smaller InternalAccountID, for a stable natural key
	AccountSecond  int64              `bson:"account_second"` // larger InternalAccountID
	State          string             `bson:"state"`
	Sender         int64              `bson:"sender"`
	Receiver       int64              `bson:"receiver"`
	Blocker        int64              `bson:"blocker,omitempty"`
	MessageCounter int64              `bson:"message_counter"`
	CreatedAt      time.Time          `bson:"created_at"`
}

// Interaction is the exported, driver-free view of one pair's row.
type Interaction struct {
	ID             primitive.ObjectID
	State          State
	Sender         identity.InternalAccountID
	Receiver       identity.InternalAccountID
	Blocker        identity.InternalAccountID
	MessageCounter int64
}

// Store persists interactions and their reciprocal index rows in Mongo.
type Store struct {
	interactions *mongo.Collection
	index        *mongo.Collection
	favorites    *mongo.Collection
	versions     *syncversion.Store
	redis        *redisx.Client
	events       EventEmitter
	dailyLikeCap int
}

func NewStore(db *mongo.Database, versions *syncversion.Store, redis *redisx.Client, events EventEmitter, dailyLikeCap int) *Store {
	return &Store{
		interactions: db.Collection("interactions"),
		index:        db.Collection("interaction_index"),
		favorites:    db.Collection("favorites"),
		versions:     versions,
		redis:        redis,
		events:       events,
		dailyLikeCap: dailyLikeCap,
	}
}

func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.index.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "account_id", Value: 1}, {Key: "peer_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}

func orderPair(a, b identity.InternalAccountID) (identity.InternalAccountID, identity.InternalAccountID) {
	if a < b {
		return a, b
	}
	return b, a
}

// getOrCreate returns the interaction row for {a,b}, creating it (Empty,
// with both reciprocal index rows) on first reference. Grounded on
// original_source's insert_account_interaction / get_or_create_account_interaction.
func (s *Store) getOrCreate(ctx context.Context, a, b identity.InternalAccountID) (*interactionDoc, error) {
	first, second := orderPair(a, b)

	var doc interactionDoc
	err := s.interactions.FindOne(ctx, bson.M{"account_first": int64(first), "account_second": int64(second)}).Decode(&doc)
	if err == nil {
		return &doc, nil
	}
	if err != mongo.ErrNoDocuments {
		return nil, apierr.Internal(err)
	}

	doc = interactionDoc{
		ID:            primitive.NewObjectID(),
		AccountFirst:  int64(first),
		AccountSecond: int64(second),
		State:         string(StateEmpty),
		CreatedAt:     time.Now(),
	}
	if _, err := s.interactions.InsertOne(ctx, doc); err != nil {
		// lost the race with a concurrent create; re-read.
		if mongo.IsDuplicateKeyError(err) {
			if reErr := s.interactions.FindOne(ctx, bson.M{"account_first": int64(first), "account_second": int64(second)}).Decode(&doc); reErr != nil {
				return nil, apierr.Internal(reErr)
			}
			return &doc, nil
		}
		return nil, apierr.Internal(err)
	}

	for _, pair := range [][2]identity.InternalAccountID{{first, second}, {second, first}} {
		_, err := s.index.InsertOne(ctx, bson.M{
			"account_id":     int64(pair[0]),
			"peer_id":        int64(pair[1]),
			"interaction_id": doc.ID,
		})
		if err != nil && !mongo.IsDuplicateKeyError(err) {
			return nil, apierr.Internal(err)
		}
	}

	return &doc, nil
}

func toInteraction(doc *interactionDoc) *Interaction {
	return &Interaction{
		ID:             doc.ID,
		State:          State(doc.State),
		Sender:         identity.InternalAccountID(doc.Sender),
		Receiver:       identity.InternalAccountID(doc.Receiver),
		Blocker:        identity.InternalAccountID(doc.Blocker),
		MessageCounter: doc.MessageCounter,
	}
}

// Get returns the current interaction row for {a,b}, creating an Empty row
// if none exists.
func (s *Store) Get(ctx context.Context, a, b identity.InternalAccountID) (*Interaction, error) {
	doc, err := s.getOrCreate(ctx, a, b)
	if err != nil {
		return nil, err
	}
	return toInteraction(doc), nil
}

func (s *Store) likeCapKey(account identity.InternalAccountID) string {
	return fmt.Sprintf("likes:%d:%s", account, time.Now().UTC().Format("2006-01-02"))
}

// Like implements SPEC_FULL.md §4.4's like() state transition, including the
// per-day cap (bypassed when the caller's profile carries UnlimitedLikes —
// Open Question #3, resolved in SPEC_FULL.md).
func (s *Store) Like(ctx context.Context, a, b identity.InternalAccountID, unlimitedLikes bool) error {
	if a == b {
		return apierr.NotAllowed("cannot like self")
	}
	if !unlimitedLikes && s.dailyLikeCap > 0 {
		count, _ := s.redis.Get(ctx, s.likeCapKey(a))
		if count != "" {
			var n int
			fmt.Sscanf(count, "%d", &n)
			if n >= s.dailyLikeCap {
				return apierr.NotAllowed("daily like cap reached")
			}
		}
	}

	doc, err := s.getOrCreate(ctx, a, b)
	if err != nil {
		return err
	}

	switch State(doc.State) {
	case StateBlocked:
		return apierr.NotAllowed("blocked")
	case StateMatched:
		return nil // no-op
	case StateLiked:
		if identity.InternalAccountID(doc.Sender) == a {
			return nil // idempotent
		}
		// sender == b: promote to Matched.
		_, err := s.interactions.UpdateOne(ctx, bson.M{"_id": doc.ID}, bson.M{"$set": bson.M{"state": string(StateMatched)}})
		if err != nil {
			return apierr.Internal(err)
		}
		s.versions.Bump(ctx, a, syncversion.KindMatches)
		s.versions.Bump(ctx, b, syncversion.KindMatches)
		if s.events != nil {
			s.events.LikesChanged(ctx, a, b)
		}
		return nil
	default: // Empty
		_, err := s.interactions.UpdateOne(ctx, bson.M{"_id": doc.ID}, bson.M{"$set": bson.M{
			"state":  string(StateLiked),
			"sender": int64(a), "receiver": int64(b),
		}})
		if err != nil {
			return apierr.Internal(err)
		}
		if !unlimitedLikes && s.dailyLikeCap > 0 {
			_ = s.redis.Client.Incr(ctx, s.likeCapKey(a)).Err()
			_ = s.redis.Client.Expire(ctx, s.likeCapKey(a), 24*time.Hour).Err()
		}
		s.versions.Bump(ctx, a, syncversion.KindSentLikes)
		s.versions.Bump(ctx, b, syncversion.KindReceivedLikes)
		if s.events != nil {
			s.events.LikesChanged(ctx, b)
		}
		return nil
	}
}

// Unlike is permitted only from Liked with sender=a. Forbidden from Matched
// (Open Question #2, resolved no — see SPEC_FULL.md).
func (s *Store) Unlike(ctx context.Context, a, b identity.InternalAccountID) error {
	doc, err := s.getOrCreate(ctx, a, b)
	if err != nil {
		return err
	}
	if State(doc.State) != StateLiked || identity.InternalAccountID(doc.Sender) != a {
		return apierr.NotAllowed("not in a likable-by-you state")
	}
	_, err = s.interactions.UpdateOne(ctx, bson.M{"_id": doc.ID}, bson.M{"$set": bson.M{"state": string(StateEmpty)}})
	if err != nil {
		return apierr.Internal(err)
	}
	s.versions.Bump(ctx, a, syncversion.KindSentLikes)
	s.versions.Bump(ctx, b, syncversion.KindReceivedLikes)
	return nil
}

// Block sets Blocked with blocker=a regardless of prior state.
func (s *Store) Block(ctx context.Context, a, b identity.InternalAccountID) error {
	doc, err := s.getOrCreate(ctx, a, b)
	if err != nil {
		return err
	}
	_, err = s.interactions.UpdateOne(ctx, bson.M{"_id": doc.ID}, bson.M{"$set": bson.M{
		"state": string(StateBlocked), "blocker": int64(a),
	}})
	if err != nil {
		return apierr.Internal(err)
	}
	s.versions.Bump(ctx, b, syncversion.KindReceivedBlocks)
	if s.events != nil {
		s.events.ReceivedBlocksChanged(ctx, b)
	}
	return nil
}

// MatchOnlyRead reports whether {a,b} are matched and neither side has
// blocked the other.
func (s *Store) MatchOnlyRead(ctx context.Context, a, b identity.InternalAccountID) (bool, error) {
	i, err := s.Get(ctx, a, b)
	if err != nil {
		return false, err
	}
	return i.State == StateMatched, nil
}

// IncrementMessageCounter atomically allocates the next client_id for the
// (sender, receiver) pair, used by C6 (SPEC_FULL.md §4.6).
func (s *Store) IncrementMessageCounter(ctx context.Context, a, b identity.InternalAccountID) (int64, error) {
	doc, err := s.getOrCreate(ctx, a, b)
	if err != nil {
		return 0, err
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var updated interactionDoc
	err = s.interactions.FindOneAndUpdate(ctx,
		bson.M{"_id": doc.ID},
		bson.M{"$inc": bson.M{"message_counter": 1}},
		opts,
	).Decode(&updated)
	if err != nil {
		return 0, apierr.Internal(err)
	}
	return updated.MessageCounter, nil
}

// pagedIDs lists the peer ids in account's index rows whose interaction is in
// wantState, ascending by interaction id, alongside the current sync version for kind.
func (s *Store) pagedIDs(ctx context.Context, account identity.InternalAccountID, wantState State, filterBySenderIsAccount *bool, kind syncversion.Kind, limit, skip int64) ([]identity.InternalAccountID, int64, error) {
	cursor, err := s.index.Find(ctx,
		bson.M{"account_id": int64(account)},
		options.Find().SetSort(bson.D{{Key: "interaction_id", Value: 1}}).SetLimit(limit).SetSkip(skip),
	)
	if err != nil {
		return nil, 0, apierr.Internal(err)
	}
	defer cursor.Close(ctx)

	var ids []identity.InternalAccountID
	for cursor.Next(ctx) {
		var row struct {
			PeerID        int64              `bson:"peer_id"`
			InteractionID primitive.ObjectID `bson:"interaction_id"`
		}
		if err := cursor.Decode(&row); err != nil {
			continue
		}
		var doc interactionDoc
		if err := s.interactions.FindOne(ctx, bson.M{"_id": row.InteractionID}).Decode(&doc); err != nil {
			continue
		}
		if State(doc.State) != wantState {
			continue
		}
		if filterBySenderIsAccount != nil {
			isSender := identity.InternalAccountID(doc.Sender) == account
			if isSender != *filterBySenderIsAccount {
				continue
			}
		}
		ids = append(ids, identity.InternalAccountID(row.PeerID))
	}

	version, err := s.versions.Current(ctx, account, kind)
	if err != nil {
		return nil, 0, err
	}
	return ids, version, nil
}

func boolPtr(b bool) *bool { return &b }

func (s *Store) SentLikes(ctx context.Context, account identity.InternalAccountID, limit, skip int64) ([]identity.InternalAccountID, int64, error) {
	return s.pagedIDs(ctx, account, StateLiked, boolPtr(true), syncversion.KindSentLikes, limit, skip)
}

func (s *Store) ReceivedLikes(ctx context.Context, account identity.InternalAccountID, limit, skip int64) ([]identity.InternalAccountID, int64, error) {
	return s.pagedIDs(ctx, account, StateLiked, boolPtr(false), syncversion.KindReceivedLikes, limit, skip)
}

func (s *Store) Matches(ctx context.Context, account identity.InternalAccountID, limit, skip int64) ([]identity.InternalAccountID, int64, error) {
	return s.pagedIDs(ctx, account, StateMatched, nil, syncversion.KindMatches, limit, skip)
}

func (s *Store) ReceivedBlocks(ctx context.Context, account identity.InternalAccountID, limit, skip int64) ([]identity.InternalAccountID, int64, error) {
	ids, version, err := s.pagedIDs(ctx, account, StateBlocked, nil, syncversion.KindReceivedBlocks, limit, skip)
	if err != nil {
		return nil, 0, err
	}
	var blockedBy []identity.InternalAccountID
	for _, peer := range ids {
		doc, err := s.getOrCreate(ctx, account, peer)
		if err == nil && identity.InternalAccountID(doc.Blocker) == peer {
			blockedBy = append(blockedBy, peer)
		}
	}
	return blockedBy, version, nil
}

// ResetReceivedLikesIterator issues a fresh 128-bit iterator session id.
// Server restarts invalidate all outstanding session ids — enforced by
// stamping the session with the process boot id, checked in ValidIteratorSession.
func (s *Store) ResetReceivedLikesIterator(ctx context.Context, account identity.InternalAccountID, bootID string) (string, error) {
	session, err := newSessionID()
	if err != nil {
		return "", apierr.Internal(err)
	}
	key := fmt.Sprintf("iterator:received_likes:%d", account)
	if err := s.redis.Set(ctx, key, session+":"+bootID, 0); err != nil {
		return "", apierr.Internal(err)
	}
	return session, nil
}

func (s *Store) ValidIteratorSession(ctx context.Context, account identity.InternalAccountID, session, bootID string) bool {
	key := fmt.Sprintf("iterator:received_likes:%d", account)
	stored, err := s.redis.Get(ctx, key)
	return err == nil && stored == session+":"+bootID
}

// Favorite/Unfavorite/ListFavorites — supplemented from original_source's
// profile/favorite.rs (SPEC_FULL.md §3); a caller-private bookmark list,
// independent of the Interaction state machine.
func (s *Store) Favorite(ctx context.Context, account, target identity.InternalAccountID) error {
	_, err := s.favorites.UpdateOne(ctx,
		bson.M{"account_id": int64(account), "target_id": int64(target)},
		bson.M{"$set": bson.M{"created_at": time.Now()}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return apierr.Internal(err)
	}
	return nil
}

func (s *Store) Unfavorite(ctx context.Context, account, target identity.InternalAccountID) error {
	_, err := s.favorites.DeleteOne(ctx, bson.M{"account_id": int64(account), "target_id": int64(target)})
	if err != nil {
		return apierr.Internal(err)
	}
	return nil
}

func (s *Store) ListFavorites(ctx context.Context, account identity.InternalAccountID) ([]identity.InternalAccountID, error) {
	cursor, err := s.favorites.Find(ctx, bson.M{"account_id": int64(account)}, options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}))
	if err != nil {
		return nil, apierr.Internal(err)
	}
	defer cursor.Close(ctx)
	var out []identity.InternalAccountID
	for cursor.Next(ctx) {
		var row struct {
			TargetID int64 `bson:"target_id"`
		}
		if err := cursor.Decode(&row); err == nil {
			out = append(out, identity.InternalAccountID(row.TargetID))
		}
	}
	return out, nil
}
