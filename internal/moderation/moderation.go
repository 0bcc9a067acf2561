// Package moderation implements C7: the bot-first, human-escalation content
// moderation pipeline for profile media, profile name and profile text
// (SPEC_FULL.md §4.7).
package moderation

import (
	"context"
	"time"

	"github.com/jutuon/afrodite-backend-sub001/internal/apierr"
	"github.com/jutuon/afrodite-backend-sub001/internal/identity"
	"github.com/jutuon/afrodite-backend-sub001/internal/syncversion"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type QueueKind string

const (
	QueueInitialMedia QueueKind = "InitialMedia"
	QueueMedia        QueueKind = "Media"
	QueueProfileName  QueueKind = "ProfileName"
	QueueProfileText  QueueKind = "ProfileText"
)

type State string

const (
	StateWaiting            State = "Waiting"
	StateClaimedByModerator State = "ClaimedByModerator"
	StateAcceptedByBot      State = "AcceptedByBot"
	StateAcceptedByHuman    State = "AcceptedByHuman"
	StateRejectedByBot      State = "RejectedByBot"
	StateRejectedByHuman    State = "RejectedByHuman"
)

const leaseDuration = 2 * time.Minute

// Item is a single queued moderation subject.
type Item struct {
	ID               primitive.ObjectID
	QueueKind        QueueKind
	SubjectAccount   identity.InternalAccountID
	PayloadReference string
	CreatedAt        time.Time
	ClaimedBy        *identity.InternalAccountID
	LeaseExpiresAt   *time.Time
	State            State
	RejectCategory   string
	RejectDetails    string
}

type itemDoc struct {
	ID               primitive.ObjectID         `bson:"_id"`
	QueueKind        string                     `bson:"queue_kind"`
	SubjectAccount   int64                      `bson:"subject_account"`
	PayloadReference string                     `bson:"payload_reference"`
	CreatedAt        time.Time                  `bson:"created_at"`
	ClaimedBy        *int64                     `bson:"claimed_by,omitempty"`
	LeaseExpiresAt   *time.Time                 `bson:"lease_expires_at,omitempty"`
	State            string                     `bson:"state"`
	RejectCategory   string                     `bson:"reject_category,omitempty"`
	RejectDetails    string                     `bson:"reject_details,omitempty"`
}

// AccountView is the subset of C1 identity moderation needs: checking the
// claimant's bot flag and transitioning the subject's account state.
type AccountView interface {
	IsBot(ctx context.Context, moderator identity.InternalAccountID) (bool, error)
	TransitionToNormal(ctx context.Context, subject identity.InternalAccountID) error
}

// EventEmitter decouples C7 from C9.
type EventEmitter interface {
	AccountStateChanged(ctx context.Context, account identity.InternalAccountID)
	InitialContentModerationCompleted(ctx context.Context, account identity.InternalAccountID)
	ContentProcessingStateChanged(ctx context.Context, account identity.InternalAccountID, kind QueueKind, state State)
}

// ProfileEffects decouples C7 from the profile package's text-staging and
// version-randomization side effects, which run on accept of a
// ProfileName/ProfileText item (SPEC_FULL.md §4.7).
type ProfileEffects interface {
	ApplyAcceptedText(ctx context.Context, account identity.InternalAccountID) error
	RandomizeVersion(ctx context.Context, account identity.InternalAccountID) error
}

// Queue persists moderation items and runs the lease-sweep background worker.
type Queue struct {
	col       *mongo.Collection
	allowlist *mongo.Collection
	versions  *syncversion.Store
	accounts  AccountView
	events    EventEmitter
	profiles  ProfileEffects
}

func NewQueue(db *mongo.Database, versions *syncversion.Store, accounts AccountView, events EventEmitter) *Queue {
	return &Queue{
		col:       db.Collection("moderation_items"),
		allowlist: db.Collection("profile_name_allowlist"),
		versions:  versions,
		accounts:  accounts,
		events:    events,
	}
}

// SetProfileEffects wires the profile package's side effects after
// construction (avoids an import cycle: profile depends on moderation, so
// moderation cannot import profile at construction time).
func (q *Queue) SetProfileEffects(p ProfileEffects) { q.profiles = p }

func (q *Queue) EnsureIndexes(ctx context.Context) error {
	_, err := q.col.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "queue_kind", Value: 1}, {Key: "created_at", Value: 1}, {Key: "subject_account", Value: 1}},
	})
	return err
}

// Enqueue creates a new Waiting item for subject in the given queue. If
// queueKind is ProfileName and the value matches the allowlist, the item is
// auto-accepted by the bot path immediately (SPEC_FULL.md §4.7).
func (q *Queue) Enqueue(ctx context.Context, kind QueueKind, subject identity.InternalAccountID, payloadReference string) (*Item, error) {
	if kind == QueueProfileName {
		allowed, err := q.isAllowlisted(ctx, payloadReference)
		if err != nil {
			return nil, err
		}
		if allowed {
			doc := itemDoc{
				ID: primitive.NewObjectID(), QueueKind: string(kind), SubjectAccount: int64(subject),
				PayloadReference: payloadReference, CreatedAt: time.Now(), State: string(StateAcceptedByBot),
			}
			if _, err := q.col.InsertOne(ctx, doc); err != nil {
				return nil, apierr.Internal(err)
			}
			q.applyAcceptSideEffects(ctx, kind, subject)
			return toItem(&doc), nil
		}
	}

	doc := itemDoc{
		ID: primitive.NewObjectID(), QueueKind: string(kind), SubjectAccount: int64(subject),
		PayloadReference: payloadReference, CreatedAt: time.Now(), State: string(StateWaiting),
	}
	if _, err := q.col.InsertOne(ctx, doc); err != nil {
		return nil, apierr.Internal(err)
	}
	return toItem(&doc), nil
}

func (q *Queue) isAllowlisted(ctx context.Context, name string) (bool, error) {
	err := q.allowlist.FindOne(ctx, bson.M{"name": name}).Err()
	if err == mongo.ErrNoDocuments {
		return false, nil
	}
	if err != nil {
		return false, apierr.Internal(err)
	}
	return true, nil
}

// Next atomically claims the oldest Waiting item in queue for moderator,
// granting a lease.
func (q *Queue) Next(ctx context.Context, queue QueueKind, moderator identity.InternalAccountID) (*Item, error) {
	lease := time.Now().Add(leaseDuration)
	opts := options.FindOneAndUpdate().
		SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "subject_account", Value: 1}}).
		SetReturnDocument(options.After)
	var doc itemDoc
	err := q.col.FindOneAndUpdate(ctx,
		bson.M{"queue_kind": string(queue), "state": string(StateWaiting)},
		bson.M{"$set": bson.M{"state": string(StateClaimedByModerator), "claimed_by": int64(moderator), "lease_expires_at": lease}},
		opts,
	).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, apierr.New(apierr.CodeNotFound, "no waiting items")
	}
	if err != nil {
		return nil, apierr.Internal(err)
	}
	return toItem(&doc), nil
}

// Moderate applies a moderator's decision to a claimed item.
func (q *Queue) Moderate(ctx context.Context, itemID primitive.ObjectID, moderator identity.InternalAccountID, accept bool, rejectCategory, rejectDetails string, moveToHuman bool, moderatorHasMaintenance bool) error {
	var doc itemDoc
	if err := q.col.FindOne(ctx, bson.M{"_id": itemID}).Decode(&doc); err != nil {
		return apierr.New(apierr.CodeNotFound, "moderation item not found")
	}
	if doc.ClaimedBy == nil || *doc.ClaimedBy != int64(moderator) {
		return apierr.Forbidden("item not claimed by caller")
	}
	if doc.State != string(StateClaimedByModerator) {
		return apierr.NotAllowed("item already left the claimed state")
	}

	if moveToHuman {
		isBot, err := q.accounts.IsBot(ctx, moderator)
		if err != nil {
			return err
		}
		if !isBot && !moderatorHasMaintenance {
			return apierr.NotAllowed("only the bot claimant or maintenance moderation may escalate to the human queue")
		}
		_, err = q.col.UpdateOne(ctx, bson.M{"_id": itemID}, bson.M{"$set": bson.M{
			"state": string(StateWaiting), "claimed_by": nil, "lease_expires_at": nil,
		}})
		if err != nil {
			return apierr.Internal(err)
		}
		return nil
	}

	isBot, err := q.accounts.IsBot(ctx, moderator)
	if err != nil {
		return err
	}

	var newState State
	if accept {
		if isBot {
			newState = StateAcceptedByBot
		} else {
			newState = StateAcceptedByHuman
		}
	} else {
		if isBot {
			newState = StateRejectedByBot
		} else {
			newState = StateRejectedByHuman
		}
	}

	update := bson.M{"state": string(newState), "claimed_by": nil, "lease_expires_at": nil}
	if !accept {
		update["reject_category"] = rejectCategory
		update["reject_details"] = rejectDetails
	}
	_, err = q.col.UpdateOne(ctx, bson.M{"_id": itemID}, bson.M{"$set": update})
	if err != nil {
		return apierr.Internal(err)
	}

	if q.events != nil {
		q.events.ContentProcessingStateChanged(ctx, identity.InternalAccountID(doc.SubjectAccount), QueueKind(doc.QueueKind), newState)
	}

	if accept {
		q.applyAcceptSideEffects(ctx, QueueKind(doc.QueueKind), identity.InternalAccountID(doc.SubjectAccount))
	}
	return nil
}

func (q *Queue) applyAcceptSideEffects(ctx context.Context, kind QueueKind, subject identity.InternalAccountID) {
	switch kind {
	case QueueInitialMedia:
		_ = q.accounts.TransitionToNormal(ctx, subject)
		if q.events != nil {
			q.events.AccountStateChanged(ctx, subject)
			q.events.InitialContentModerationCompleted(ctx, subject)
		}
	case QueueProfileName, QueueProfileText:
		if q.profiles != nil {
			if kind == QueueProfileText {
				_ = q.profiles.ApplyAcceptedText(ctx, subject)
			}
			_ = q.profiles.RandomizeVersion(ctx, subject)
			return
		}
		q.versions.Bump(ctx, subject, syncversion.KindProfile)
	}
}

// SweepExpiredLeases returns expired ClaimedByModerator items to Waiting.
// Grounded in the teacher's startBackgroundWorkers pattern
// (internal/server/application.go); intended to be run periodically from a
// ticker goroutine started at boot.
func (q *Queue) SweepExpiredLeases(ctx context.Context) (int64, error) {
	res, err := q.col.UpdateMany(ctx,
		bson.M{"state": string(StateClaimedByModerator), "lease_expires_at": bson.M{"$lt": time.Now()}},
		bson.M{"$set": bson.M{"state": string(StateWaiting), "claimed_by": nil, "lease_expires_at": nil}},
	)
	if err != nil {
		return 0, apierr.Internal(err)
	}
	return res.ModifiedCount, nil
}

// AddAllowlistEntry is used by the allowlist seeder and by admin tooling.
func (q *Queue) AddAllowlistEntry(ctx context.Context, name string) error {
	_, err := q.allowlist.UpdateOne(ctx,
		bson.M{"name": name},
		bson.M{"$setOnInsert": bson.M{"added_at": time.Now()}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return apierr.Internal(err)
	}
	return nil
}

func toItem(doc *itemDoc) *Item {
	item := &Item{
		ID: doc.ID, QueueKind: QueueKind(doc.QueueKind), SubjectAccount: identity.InternalAccountID(doc.SubjectAccount),
		PayloadReference: doc.PayloadReference, CreatedAt: doc.CreatedAt, State: State(doc.State),
		LeaseExpiresAt: doc.LeaseExpiresAt, RejectCategory: doc.RejectCategory, RejectDetails: doc.RejectDetails,
	}
	if doc.ClaimedBy != nil {
		id := identity.InternalAccountID(*doc.ClaimedBy)
		item.ClaimedBy = &id
	}
	return item
}
