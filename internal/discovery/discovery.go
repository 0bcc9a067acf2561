// Package discovery implements C5: the geo-bucketed profile iterator
// (SPEC_FULL.md §4.5).
package discovery

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"math"
	mrand "math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/jutuon/afrodite-backend-sub001/internal/apierr"
	"github.com/jutuon/afrodite-backend-sub001/internal/identity"
	"github.com/jutuon/afrodite-backend-sub001/internal/interaction"
	"github.com/jutuon/afrodite-backend-sub001/internal/platform/redisx"
	goredis "github.com/redis/go-redis/v9"
)

func newSessionID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Gender mirrors the profile matrix entries used by the reciprocal
// "I'm X, looking for Y" predicate.
type Gender string

const (
	GenderMan     Gender = "Man"
	GenderWoman   Gender = "Woman"
	GenderNonBin  Gender = "NonBinary"
)

// CandidateProfile is the discovery-relevant projection of a profile,
// supplied by internal/profile through the ProfileProvider interface below
// (kept as an interface here to avoid an import cycle: profile depends on
// moderation state this package does not need to know about).
type CandidateProfile struct {
	InternalID      identity.InternalAccountID
	Lat, Lon        float64
	Age             int
	Gender          Gender
	InterestedIn    []Gender
	WantsAgeMin     int
	WantsAgeMax     int
	Visible         bool
	LastSeenSeconds int64 // seconds since last seen; 0 = online now
}

type ProfileProvider interface {
	Get(ctx context.Context, id identity.InternalAccountID) (*CandidateProfile, error)
}

// Criteria is a caller's search configuration (SPEC_FULL.md §4.5).
type Criteria struct {
	Lat, Lon      float64
	MaxDistanceKM float64
	AgeMin, AgeMax int
	LastSeenFilter int64 // -1 = online only; >=0 = max seconds since online
	SelfAge       int
	SelfGender    Gender
	SelfInterestedIn []Gender
}

type sessionState struct {
	Account      identity.InternalAccountID
	CenterBucketX, CenterBucketY int64
	Ring         int64
	RingOffset   int64
	Seed         int64
	BootID       string
	Criteria     Criteria
}

// Index maintains the Redis GEO bucket sets and iterator sessions.
type Index struct {
	redis        *redisx.Client
	profiles     ProfileProvider
	interactions *interaction.Store
	bucketKM     float64
	bootID       string
	iteratorTTL  time.Duration
}

func New(redisClient *redisx.Client, profiles ProfileProvider, interactions *interaction.Store, bucketRadiusKM float64, bootID string, iteratorTTL time.Duration) *Index {
	if bucketRadiusKM <= 0 {
		bucketRadiusKM = 5
	}
	if iteratorTTL <= 0 {
		iteratorTTL = 2 * time.Hour
	}
	return &Index{redis: redisClient, profiles: profiles, interactions: interactions, bucketKM: bucketRadiusKM, bootID: bootID, iteratorTTL: iteratorTTL}
}

const kmPerDegreeLat = 111.32

func (idx *Index) bucketCoord(lat, lon float64) (x, y int64) {
	latDeg := idx.bucketKM / kmPerDegreeLat
	lonDeg := idx.bucketKM / (kmPerDegreeLat * math.Cos(lat*math.Pi/180))
	if lonDeg == 0 || math.IsNaN(lonDeg) || math.IsInf(lonDeg, 0) {
		lonDeg = latDeg
	}
	return int64(math.Floor(lon / lonDeg)), int64(math.Floor(lat / latDeg))
}

func (idx *Index) bucketKey(x, y int64) string {
	return fmt.Sprintf("discovery:bucket:%d:%d", x, y)
}

// UpdateLocation places account into the bucket containing (lat,lon),
// removing it from any bucket it previously occupied.
func (idx *Index) UpdateLocation(ctx context.Context, account identity.InternalAccountID, lat, lon float64) error {
	x, y := idx.bucketCoord(lat, lon)
	key := idx.bucketKey(x, y)
	member := strconv.FormatInt(int64(account), 10)
	if err := idx.redis.GeoAdd(ctx, key, &goredis.GeoLocation{Name: member, Longitude: lon, Latitude: lat}); err != nil {
		return apierr.Internal(err)
	}
	return nil
}

// RemoveLocation drops account from the bucket index entirely (e.g. when
// visibility is turned off, or on account deletion).
func (idx *Index) RemoveLocation(ctx context.Context, account identity.InternalAccountID, lat, lon float64) error {
	x, y := idx.bucketCoord(lat, lon)
	key := idx.bucketKey(x, y)
	return idx.redis.GeoRemove(ctx, key, strconv.FormatInt(int64(account), 10))
}

// ResetProfileIterator issues a new session id, stamped with the current
// process boot id so a restart invalidates every outstanding session.
func (idx *Index) ResetProfileIterator(ctx context.Context, account identity.InternalAccountID, c Criteria) (string, error) {
	sessionID, err := newSessionID()
	if err != nil {
		return "", apierr.Internal(err)
	}
	x, y := idx.bucketCoord(c.Lat, c.Lon)
	state := sessionState{
		Account: account, CenterBucketX: x, CenterBucketY: y,
		Ring: 0, RingOffset: 0, Seed: seedFromSessionID(sessionID),
		BootID: idx.bootID, Criteria: c,
	}
	if err := idx.saveState(ctx, sessionID, state); err != nil {
		return "", err
	}
	return sessionID, nil
}

func (idx *Index) stateKey(session string) string { return "discovery:session:" + session }

func (idx *Index) saveState(ctx context.Context, session string, s sessionState) error {
	interested := make([]string, len(s.Criteria.SelfInterestedIn))
	for i, g := range s.Criteria.SelfInterestedIn {
		interested[i] = string(g)
	}
	payload := fmt.Sprintf("%d|%d|%d|%d|%d|%d|%s|%f|%f|%f|%d|%d|%d|%d|%s|%s",
		s.Account, s.CenterBucketX, s.CenterBucketY, s.Ring, s.RingOffset, s.Seed, s.BootID,
		s.Criteria.Lat, s.Criteria.Lon, s.Criteria.MaxDistanceKM, s.Criteria.AgeMin, s.Criteria.AgeMax, s.Criteria.LastSeenFilter,
		s.Criteria.SelfAge, s.Criteria.SelfGender, strings.Join(interested, ","))
	return idx.redis.Set(ctx, idx.stateKey(session), payload, idx.iteratorTTL)
}

func (idx *Index) loadState(ctx context.Context, session string) (*sessionState, error) {
	raw, err := idx.redis.Get(ctx, idx.stateKey(session))
	if err != nil || raw == "" {
		return nil, apierr.New(apierr.CodeNotFound, "unknown or expired iterator session")
	}
	parts := strings.Split(raw, "|")
	if len(parts) != 16 {
		return nil, apierr.New(apierr.CodeConflict, "corrupt iterator session state")
	}
	var s sessionState
	s.Account = identity.InternalAccountID(mustAtoi64(parts[0]))
	s.CenterBucketX = mustAtoi64(parts[1])
	s.CenterBucketY = mustAtoi64(parts[2])
	s.Ring = mustAtoi64(parts[3])
	s.RingOffset = mustAtoi64(parts[4])
	s.Seed = mustAtoi64(parts[5])
	s.BootID = parts[6]
	s.Criteria.Lat = mustAtof(parts[7])
	s.Criteria.Lon = mustAtof(parts[8])
	s.Criteria.MaxDistanceKM = mustAtof(parts[9])
	s.Criteria.AgeMin = int(mustAtoi64(parts[10]))
	s.Criteria.AgeMax = int(mustAtoi64(parts[11]))
	s.Criteria.LastSeenFilter = mustAtoi64(parts[12])
	s.Criteria.SelfAge = int(mustAtoi64(parts[13]))
	s.Criteria.SelfGender = Gender(parts[14])
	if parts[15] != "" {
		for _, g := range strings.Split(parts[15], ",") {
			s.Criteria.SelfInterestedIn = append(s.Criteria.SelfInterestedIn, Gender(g))
		}
	}

	if s.BootID != idx.bootID {
		return nil, apierr.New(apierr.CodeConflict, "iterator session invalidated by server restart")
	}
	return &s, nil
}

// ringBuckets returns every bucket coordinate on the square ring `radius`
// cells out from (cx,cy) (radius 0 = the center bucket only).
func ringBuckets(cx, cy, radius int64) [][2]int64 {
	if radius == 0 {
		return [][2]int64{{cx, cy}}
	}
	var out [][2]int64
	for x := cx - radius; x <= cx+radius; x++ {
		out = append(out, [2]int64{x, cy - radius}, [2]int64{x, cy + radius})
	}
	for y := cy - radius + 1; y <= cy+radius-1; y++ {
		out = append(out, [2]int64{cx - radius, y}, [2]int64{cx + radius, y})
	}
	return out
}

func (idx *Index) matches(ctx context.Context, caller Criteria, candidate *CandidateProfile, self identity.InternalAccountID) bool {
	if !candidate.Visible || candidate.InternalID == self {
		return false
	}
	if candidate.Age < caller.AgeMin || candidate.Age > caller.AgeMax {
		return false
	}
	if candidate.WantsAgeMax > 0 && (caller.SelfAge < candidate.WantsAgeMin || caller.SelfAge > candidate.WantsAgeMax) {
		return false
	}
	if caller.MaxDistanceKM > 0 {
		const earthRadiusKM = 6371.0
		dLat := (candidate.Lat - caller.Lat) * math.Pi / 180
		dLon := (candidate.Lon - caller.Lon) * math.Pi / 180
		h := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(caller.Lat*math.Pi/180)*math.Cos(candidate.Lat*math.Pi/180)*math.Sin(dLon/2)*math.Sin(dLon/2)
		if 2*earthRadiusKM*math.Asin(math.Sqrt(h)) > caller.MaxDistanceKM {
			return false
		}
	}
	if caller.LastSeenFilter == -1 && candidate.LastSeenSeconds != 0 {
		return false
	}
	if caller.LastSeenFilter >= 0 && candidate.LastSeenSeconds > caller.LastSeenFilter {
		return false
	}
	if !genderMatches(caller.SelfGender, candidate.InterestedIn) {
		return false
	}
	if !genderMatches(candidate.Gender, caller.SelfInterestedIn) {
		return false
	}
	blocked, _ := idx.interactions.Get(ctx, self, candidate.InternalID)
	if blocked != nil && blocked.State == interaction.StateBlocked {
		return false
	}
	return true
}

func genderMatches(who Gender, acceptable []Gender) bool {
	if len(acceptable) == 0 {
		return true
	}
	for _, g := range acceptable {
		if g == who {
			return true
		}
	}
	return false
}

// NextPage walks outward ring by ring, filtering and shuffling candidates
// deterministically by the session's RNG seed, returning up to n results.
func (idx *Index) NextPage(ctx context.Context, session string, n int) ([]identity.InternalAccountID, error) {
	state, err := idx.loadState(ctx, session)
	if err != nil {
		return nil, err
	}

	var out []identity.InternalAccountID
	ring := state.Ring
	const maxRings = 64

	for len(out) < n && ring < maxRings {
		buckets := ringBuckets(state.CenterBucketX, state.CenterBucketY, ring)
		var ringMembers []identity.InternalAccountID
		for _, b := range buckets {
			key := idx.bucketKey(b[0], b[1])
			members, err := idx.redis.Client.ZRange(ctx, key, 0, -1).Result()
			if err != nil {
				continue
			}
			for _, m := range members {
				id := mustAtoi64(m)
				profile, err := idx.profiles.Get(ctx, identity.InternalAccountID(id))
				if err != nil || profile == nil {
					continue
				}
				if idx.matches(ctx, state.Criteria, profile, state.Account) {
					ringMembers = append(ringMembers, identity.InternalAccountID(id))
				}
			}
		}

		rng := mrand.New(mrand.NewSource(state.Seed + ring))
		rng.Shuffle(len(ringMembers), func(i, j int) { ringMembers[i], ringMembers[j] = ringMembers[j], ringMembers[i] })

		start := int64(0)
		if ring == state.Ring {
			start = state.RingOffset
		}
		if start > int64(len(ringMembers)) {
			start = int64(len(ringMembers))
		}
		take := ringMembers[start:]
		remaining := n - len(out)
		if int64(len(take)) > int64(remaining) {
			out = append(out, take[:remaining]...)
			state.Ring = ring
			state.RingOffset = start + int64(remaining)
			if err := idx.saveState(ctx, session, *state); err != nil {
				return out, err
			}
			return out, nil
		}
		out = append(out, take...)
		ring++
		state.RingOffset = 0
	}

	state.Ring = ring
	if err := idx.saveState(ctx, session, *state); err != nil {
		return out, err
	}
	return out, nil
}

func mustAtoi64(s string) int64 {
	v, _ := strconv.ParseInt(s, 10, 64)
	return v
}

func mustAtof(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}

func seedFromSessionID(s string) int64 {
	var h int64 = 1469598103934665603
	for _, c := range s {
		h ^= int64(c)
		h *= 1099511628211
	}
	if h < 0 {
		h = -h
	}
	return h
}
