// Package adminreport implements C10: user reports, bans, and the
// supplemented news admin operations (SPEC_FULL.md §4.10).
package adminreport

import (
	"context"
	"time"

	"github.com/jutuon/afrodite-backend-sub001/internal/apierr"
	"github.com/jutuon/afrodite-backend-sub001/internal/identity"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// ReportKind categorizes what is being reported, gating which moderator
// permission can view it.
type ReportKind string

const (
	ReportKindProfileContent ReportKind = "ProfileContent"
	ReportKindChatMessage    ReportKind = "ChatMessage"
)

type Report struct {
	ID        primitive.ObjectID
	Reporter  identity.InternalAccountID
	Target    identity.InternalAccountID
	Kind      ReportKind
	Content   string
	CreatedAt time.Time
	Done      bool
}

type reportDoc struct {
	ID        primitive.ObjectID `bson:"_id"`
	Reporter  int64              `bson:"reporter"`
	Target    int64              `bson:"target"`
	Kind      string             `bson:"kind"`
	Content   string             `bson:"content"`
	CreatedAt time.Time          `bson:"created_at"`
	Done      bool               `bson:"done"`
}

// BanService is the subset of C1 used by Ban/Unban.
type BanService interface {
	Ban(ctx context.Context, internalID identity.InternalAccountID, until *time.Time) error
	Unban(ctx context.Context, internalID identity.InternalAccountID) error
}

// EventEmitter decouples C10 from C9.
type EventEmitter interface {
	AccountStateChanged(ctx context.Context, account identity.InternalAccountID)
	NewsChanged(ctx context.Context)
}

// NewsItem is the supplemented admin news item (grounded in
// original_source's api_client::models::NewsItem), carrying a monotonic
// Version so EditNews can refuse to clobber an edit the caller hasn't seen
// (original_source's NewsTranslationVersion).
type NewsItem struct {
	ID        primitive.ObjectID
	Title     string
	Body      string
	CreatedBy identity.InternalAccountID
	EditedBy  *identity.InternalAccountID
	CreatedAt time.Time
	EditedAt  *time.Time
	Version   int64
}

type newsDoc struct {
	ID        primitive.ObjectID `bson:"_id"`
	Title     string             `bson:"title"`
	Body      string             `bson:"body"`
	CreatedBy int64              `bson:"created_by"`
	EditedBy  *int64             `bson:"edited_by,omitempty"`
	CreatedAt time.Time          `bson:"created_at"`
	EditedAt  *time.Time         `bson:"edited_at,omitempty"`
	Version   int64              `bson:"version"`
}

type Store struct {
	reports *mongo.Collection
	news    *mongo.Collection
	bans    BanService
	events  EventEmitter
}

func NewStore(db *mongo.Database, bans BanService, events EventEmitter) *Store {
	return &Store{
		reports: db.Collection("reports"),
		news:    db.Collection("news"),
		bans:    bans,
		events:  events,
	}
}

func (s *Store) EnsureIndexes(ctx context.Context) error {
	if _, err := s.reports.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "kind", Value: 1}, {Key: "done", Value: 1}, {Key: "created_at", Value: 1}},
	}); err != nil {
		return err
	}
	_, err := s.news.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "created_at", Value: -1}},
	})
	return err
}

// Report appends a new open report row.
func (s *Store) Report(ctx context.Context, reporter, target identity.InternalAccountID, kind ReportKind, content string) error {
	doc := reportDoc{
		ID: primitive.NewObjectID(), Reporter: int64(reporter), Target: int64(target),
		Kind: string(kind), Content: content, CreatedAt: time.Now(),
	}
	if _, err := s.reports.InsertOne(ctx, doc); err != nil {
		return apierr.Internal(err)
	}
	return nil
}

// WaitingReports returns open reports of the given kinds (the moderator's
// permitted kinds, resolved by the caller from their permission set).
func (s *Store) WaitingReports(ctx context.Context, kinds []ReportKind) ([]Report, error) {
	kindStrs := make([]string, len(kinds))
	for i, k := range kinds {
		kindStrs[i] = string(k)
	}
	cursor, err := s.reports.Find(ctx, bson.M{"kind": bson.M{"$in": kindStrs}, "done": false})
	if err != nil {
		return nil, apierr.Internal(err)
	}
	defer cursor.Close(ctx)

	var out []Report
	for cursor.Next(ctx) {
		var doc reportDoc
		if err := cursor.Decode(&doc); err == nil {
			out = append(out, fromDoc(doc))
		}
	}
	return out, nil
}

// ProcessReport marks matching reports done only if an exact (target, kind,
// content) match exists, preventing drive-by dismissals of reports whose
// content the moderator never actually reviewed.
func (s *Store) ProcessReport(ctx context.Context, target identity.InternalAccountID, kind ReportKind, content string) error {
	res, err := s.reports.UpdateMany(ctx,
		bson.M{"target": int64(target), "kind": string(kind), "content": content, "done": false},
		bson.M{"$set": bson.M{"done": true}},
	)
	if err != nil {
		return apierr.Internal(err)
	}
	if res.ModifiedCount == 0 {
		return apierr.New(apierr.CodeNotFound, "no matching report content")
	}
	return nil
}

// Ban/Unban delegate to C1 and emit AccountStateChanged.
func (s *Store) Ban(ctx context.Context, target identity.InternalAccountID, until *time.Time) error {
	if err := s.bans.Ban(ctx, target, until); err != nil {
		return err
	}
	if s.events != nil {
		s.events.AccountStateChanged(ctx, target)
	}
	return nil
}

func (s *Store) Unban(ctx context.Context, target identity.InternalAccountID) error {
	if err := s.bans.Unban(ctx, target); err != nil {
		return err
	}
	if s.events != nil {
		s.events.AccountStateChanged(ctx, target)
	}
	return nil
}

// PublishNews inserts a new news item and fans NewsChanged out through C9.
func (s *Store) PublishNews(ctx context.Context, creator identity.InternalAccountID, title, body string) (NewsItem, error) {
	doc := newsDoc{
		ID:        primitive.NewObjectID(),
		Title:     title,
		Body:      body,
		CreatedBy: int64(creator),
		CreatedAt: time.Now(),
		Version:   1,
	}
	if _, err := s.news.InsertOne(ctx, doc); err != nil {
		return NewsItem{}, apierr.Internal(err)
	}
	if s.events != nil {
		s.events.NewsChanged(ctx)
	}
	return newsFromDoc(doc), nil
}

// EditNews updates an existing news item, requiring expectedVersion to match
// the item's current Version so a moderator can't silently overwrite an edit
// they never saw (original_source's NewsTranslationVersion). On success the
// item's Version is bumped and NewsChanged is fanned out through C9.
func (s *Store) EditNews(ctx context.Context, editor identity.InternalAccountID, id primitive.ObjectID, expectedVersion int64, title, body string) error {
	now := time.Now()
	res, err := s.news.UpdateOne(ctx,
		bson.M{"_id": id, "version": expectedVersion},
		bson.M{"$set": bson.M{
			"title": title, "body": body,
			"edited_by": int64(editor), "edited_at": now,
		}, "$inc": bson.M{"version": 1}},
	)
	if err != nil {
		return apierr.Internal(err)
	}
	if res.MatchedCount == 0 {
		return apierr.New(apierr.CodeConflict, "news item was edited since the given version")
	}
	if s.events != nil {
		s.events.NewsChanged(ctx)
	}
	return nil
}

func newsFromDoc(doc newsDoc) NewsItem {
	item := NewsItem{
		ID: doc.ID, Title: doc.Title, Body: doc.Body,
		CreatedBy: identity.InternalAccountID(doc.CreatedBy), CreatedAt: doc.CreatedAt,
		EditedAt: doc.EditedAt, Version: doc.Version,
	}
	if doc.EditedBy != nil {
		editor := identity.InternalAccountID(*doc.EditedBy)
		item.EditedBy = &editor
	}
	return item
}

func fromDoc(doc reportDoc) Report {
	return Report{
		ID: doc.ID, Reporter: identity.InternalAccountID(doc.Reporter), Target: identity.InternalAccountID(doc.Target),
		Kind: ReportKind(doc.Kind), Content: doc.Content, CreatedAt: doc.CreatedAt, Done: doc.Done,
	}
}
