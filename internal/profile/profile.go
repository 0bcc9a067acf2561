// Package profile implements the public profile projection and its hidden
// moderation/search-preference companion state (SPEC_FULL.md §3, §4.7's
// "Profile-text edits" paragraph). Grounded in the teacher's
// internal/repositories/user_repo.go collection/index/update idiom,
// generalized from the teacher's user-document shape to the spec's
// Profile/State split.
package profile

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jutuon/afrodite-backend-sub001/internal/apierr"
	"github.com/jutuon/afrodite-backend-sub001/internal/discovery"
	"github.com/jutuon/afrodite-backend-sub001/internal/identity"
	"github.com/jutuon/afrodite-backend-sub001/internal/moderation"
	"github.com/jutuon/afrodite-backend-sub001/internal/syncversion"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	minAge = 18
	maxAge = 99
)

// Profile is the public projection (SPEC_FULL.md §3).
type Profile struct {
	InternalID     identity.InternalAccountID
	Name           string
	Text           string
	Age            int
	Gender         discovery.Gender
	InterestedIn   []discovery.Gender
	VersionUUID    uuid.UUID
	EditedAt       time.Time
	UnlimitedLikes bool
}

// State is the hidden companion: moderation states, search preferences,
// presence and visibility.
type State struct {
	NameModerationState moderation.State
	TextModerationState moderation.State
	SearchAgeMin         int
	SearchAgeMax         int
	SearchGenders        []discovery.Gender
	LastSeen             time.Time
	Visible              bool
	Lat, Lon             float64
	// PendingText holds a profile-text write staged while its moderation
	// item is still open; applied to Text only once accepted.
	PendingText string
}

type profileDoc struct {
	InternalID     int64    `bson:"internal_id"`
	Name           string   `bson:"name"`
	Text           string   `bson:"text"`
	Age            int      `bson:"age"`
	Gender         string   `bson:"gender"`
	InterestedIn   []string `bson:"interested_in"`
	VersionUUID    string   `bson:"version_uuid"`
	EditedAt       time.Time `bson:"edited_at"`
	UnlimitedLikes bool     `bson:"unlimited_likes"`

	NameModerationState string   `bson:"name_moderation_state"`
	TextModerationState string   `bson:"text_moderation_state"`
	SearchAgeMin        int      `bson:"search_age_min"`
	SearchAgeMax        int      `bson:"search_age_max"`
	SearchGenders       []string `bson:"search_genders"`
	LastSeen            time.Time `bson:"last_seen"`
	Visible             bool     `bson:"visible"`
	Lat                 float64  `bson:"lat"`
	Lon                 float64  `bson:"lon"`
	PendingText         string   `bson:"pending_text,omitempty"`
}

// ModerationEnqueuer is the subset of C7 profile needs, kept narrow to
// avoid importing the concrete moderation.Queue type's full surface.
type ModerationEnqueuer interface {
	Enqueue(ctx context.Context, kind moderation.QueueKind, subject identity.InternalAccountID, payloadReference string) (*moderation.Item, error)
}

// Store persists profiles and their hidden state.
type Store struct {
	col        *mongo.Collection
	versions   *syncversion.Store
	moderation ModerationEnqueuer
	// requireTextReview gates whether a text edit is staged for moderation
	// or applied immediately; profile names always go through moderation.
	requireTextReview bool
}

func NewStore(db *mongo.Database, versions *syncversion.Store, mod ModerationEnqueuer, requireTextReview bool) *Store {
	return &Store{col: db.Collection("profiles"), versions: versions, moderation: mod, requireTextReview: requireTextReview}
}

func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.col.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "internal_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}

// Create seeds a new profile at account-creation time with default search
// preferences spanning the full legal age range.
func (s *Store) Create(ctx context.Context, account identity.InternalAccountID, name string, age int, gender discovery.Gender) error {
	doc := profileDoc{
		InternalID: int64(account), Name: name, Age: age, Gender: string(gender),
		VersionUUID: uuid.New().String(), EditedAt: time.Now(),
		NameModerationState: string(moderation.StateWaiting), TextModerationState: string(moderation.StateAcceptedByBot),
		SearchAgeMin: minAge, SearchAgeMax: maxAge, Visible: true, LastSeen: time.Now(),
	}
	if _, err := s.col.InsertOne(ctx, doc); err != nil {
		return apierr.Internal(err)
	}
	return nil
}

func (s *Store) get(ctx context.Context, account identity.InternalAccountID) (*profileDoc, error) {
	var doc profileDoc
	err := s.col.FindOne(ctx, bson.M{"internal_id": int64(account)}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, apierr.New(apierr.CodeNotFound, "profile not found")
	}
	if err != nil {
		return nil, apierr.Internal(err)
	}
	return &doc, nil
}

// Get returns the public profile projection.
func (s *Store) Get(ctx context.Context, account identity.InternalAccountID) (*Profile, error) {
	doc, err := s.get(ctx, account)
	if err != nil {
		return nil, err
	}
	return toProfile(doc), nil
}

// GetState returns the hidden companion state.
func (s *Store) GetState(ctx context.Context, account identity.InternalAccountID) (*State, error) {
	doc, err := s.get(ctx, account)
	if err != nil {
		return nil, err
	}
	return toState(doc), nil
}

// discoveryCandidate projects a profile document onto discovery.CandidateProfile.
func (s *Store) discoveryCandidate(doc *profileDoc) *discovery.CandidateProfile {
	genders := make([]discovery.Gender, len(doc.InterestedIn))
	for i, g := range doc.InterestedIn {
		genders[i] = discovery.Gender(g)
	}
	lastSeen := int64(time.Since(doc.LastSeen).Seconds())
	if lastSeen < 0 {
		lastSeen = 0
	}
	return &discovery.CandidateProfile{
		InternalID: identity.InternalAccountID(doc.InternalID), Lat: doc.Lat, Lon: doc.Lon,
		Age: doc.Age, Gender: discovery.Gender(doc.Gender), InterestedIn: genders,
		WantsAgeMin: doc.SearchAgeMin, WantsAgeMax: doc.SearchAgeMax, Visible: doc.Visible,
		LastSeenSeconds: lastSeen,
	}
}

// ProviderAdapter implements discovery.ProfileProvider's Get method on a
// separate type, so it does not collide with Store.Get's public-profile signature.
type ProviderAdapter struct{ Store *Store }

func (p ProviderAdapter) Get(ctx context.Context, id identity.InternalAccountID) (*discovery.CandidateProfile, error) {
	doc, err := p.Store.get(ctx, id)
	if err != nil {
		return nil, err
	}
	return p.Store.discoveryCandidate(doc), nil
}

// SetName stages a name change through moderation; ProfileName items whose
// value is allowlisted auto-accept (handled inside moderation.Queue).
func (s *Store) SetName(ctx context.Context, account identity.InternalAccountID, name string) error {
	item, err := s.moderation.Enqueue(ctx, moderation.QueueProfileName, account, name)
	if err != nil {
		return err
	}
	update := bson.M{"name_moderation_state": string(item.State)}
	if item.State == moderation.StateAcceptedByBot || item.State == moderation.StateAcceptedByHuman {
		update["name"] = name
		update["version_uuid"] = uuid.New().String()
		update["edited_at"] = time.Now()
	}
	_, err = s.col.UpdateOne(ctx, bson.M{"internal_id": int64(account)}, bson.M{"$set": update})
	if err != nil {
		return apierr.Internal(err)
	}
	return nil
}

// SetText stages a text change. If the current text already matches the
// staged value the write is a no-op (SPEC_FULL.md §4.7). When review is not
// required the write applies immediately.
func (s *Store) SetText(ctx context.Context, account identity.InternalAccountID, text string) error {
	doc, err := s.get(ctx, account)
	if err != nil {
		return err
	}
	if doc.Text == text || doc.PendingText == text {
		return nil
	}

	if !s.requireTextReview {
		_, err = s.col.UpdateOne(ctx, bson.M{"internal_id": int64(account)}, bson.M{"$set": bson.M{
			"text": text, "version_uuid": uuid.New().String(), "edited_at": time.Now(), "pending_text": "",
		}})
		if err != nil {
			return apierr.Internal(err)
		}
		return nil
	}

	if _, err := s.moderation.Enqueue(ctx, moderation.QueueProfileText, account, text); err != nil {
		return err
	}
	_, err = s.col.UpdateOne(ctx, bson.M{"internal_id": int64(account)}, bson.M{"$set": bson.M{
		"pending_text": text, "text_moderation_state": string(moderation.StateWaiting),
	}})
	if err != nil {
		return apierr.Internal(err)
	}
	return nil
}

// ApplyAcceptedText commits a previously staged text edit once its
// moderation item accepts (called from the C7 accept side-effect for
// QueueProfileText, wired at the server layer).
func (s *Store) ApplyAcceptedText(ctx context.Context, account identity.InternalAccountID) error {
	doc, err := s.get(ctx, account)
	if err != nil {
		return err
	}
	if doc.PendingText == "" {
		return nil
	}
	_, err = s.col.UpdateOne(ctx, bson.M{"internal_id": int64(account)}, bson.M{"$set": bson.M{
		"text": doc.PendingText, "pending_text": "", "version_uuid": uuid.New().String(), "edited_at": time.Now(),
	}})
	if err != nil {
		return apierr.Internal(err)
	}
	return nil
}

// RandomizeVersion re-randomizes the profile's version UUID and bumps its
// sync version (called on accept of a ProfileName/ProfileText item).
func (s *Store) RandomizeVersion(ctx context.Context, account identity.InternalAccountID) error {
	_, err := s.col.UpdateOne(ctx, bson.M{"internal_id": int64(account)}, bson.M{"$set": bson.M{"version_uuid": uuid.New().String()}})
	if err != nil {
		return apierr.Internal(err)
	}
	_, err = s.versions.Bump(ctx, account, syncversion.KindProfile)
	return err
}

// SetSearchPreferences updates the caller's own discovery criteria.
func (s *Store) SetSearchPreferences(ctx context.Context, account identity.InternalAccountID, ageMin, ageMax int, genders []discovery.Gender) error {
	if ageMin < minAge {
		ageMin = minAge
	}
	if ageMax > maxAge {
		ageMax = maxAge
	}
	if ageMin > ageMax {
		return apierr.New(apierr.CodeBadRequest, "search age min must not exceed max")
	}
	genderStrs := make([]string, len(genders))
	for i, g := range genders {
		genderStrs[i] = string(g)
	}
	_, err := s.col.UpdateOne(ctx, bson.M{"internal_id": int64(account)}, bson.M{"$set": bson.M{
		"search_age_min": ageMin, "search_age_max": ageMax, "search_genders": genderStrs,
	}})
	if err != nil {
		return apierr.Internal(err)
	}
	return nil
}

// SetVisibility toggles whether the account appears in discovery results.
func (s *Store) SetVisibility(ctx context.Context, account identity.InternalAccountID, visible bool) error {
	_, err := s.col.UpdateOne(ctx, bson.M{"internal_id": int64(account)}, bson.M{"$set": bson.M{"visible": visible}})
	if err != nil {
		return apierr.Internal(err)
	}
	return nil
}

// SetLocation records the account's last-reported coordinates, used both
// for the public LastSeen-distance filter and to feed discovery.Index.
func (s *Store) SetLocation(ctx context.Context, account identity.InternalAccountID, lat, lon float64) error {
	_, err := s.col.UpdateOne(ctx, bson.M{"internal_id": int64(account)}, bson.M{"$set": bson.M{
		"lat": lat, "lon": lon, "last_seen": time.Now(),
	}})
	if err != nil {
		return apierr.Internal(err)
	}
	return nil
}

// Touch refreshes LastSeen without changing location (heartbeat while
// bound to a realtime channel).
func (s *Store) Touch(ctx context.Context, account identity.InternalAccountID) error {
	_, err := s.col.UpdateOne(ctx, bson.M{"internal_id": int64(account)}, bson.M{"$set": bson.M{"last_seen": time.Now()}})
	if err != nil {
		return apierr.Internal(err)
	}
	return nil
}

func toProfile(doc *profileDoc) *Profile {
	genders := make([]discovery.Gender, len(doc.InterestedIn))
	for i, g := range doc.InterestedIn {
		genders[i] = discovery.Gender(g)
	}
	versionUUID, _ := uuid.Parse(doc.VersionUUID)
	return &Profile{
		InternalID: identity.InternalAccountID(doc.InternalID), Name: doc.Name, Text: doc.Text,
		Age: doc.Age, Gender: discovery.Gender(doc.Gender), InterestedIn: genders,
		VersionUUID: versionUUID, EditedAt: doc.EditedAt, UnlimitedLikes: doc.UnlimitedLikes,
	}
}

func toState(doc *profileDoc) *State {
	genders := make([]discovery.Gender, len(doc.SearchGenders))
	for i, g := range doc.SearchGenders {
		genders[i] = discovery.Gender(g)
	}
	return &State{
		NameModerationState: moderation.State(doc.NameModerationState), TextModerationState: moderation.State(doc.TextModerationState),
		SearchAgeMin: doc.SearchAgeMin, SearchAgeMax: doc.SearchAgeMax, SearchGenders: genders,
		LastSeen: doc.LastSeen, Visible: doc.Visible, Lat: doc.Lat, Lon: doc.Lon, PendingText: doc.PendingText,
	}
}
