package identity

import (
	"context"
	"fmt"
	"time"

	"github.com/jutuon/afrodite-backend-sub001/internal/apierr"
	"github.com/jutuon/afrodite-backend-sub001/internal/platform/redisx"
)

const (
	redisAccessPrefix  = "access:"  // access jti -> internal id, mirrors blacklist:<token> key shape
	redisChannelPrefix = "channel:" // internal id -> bound channel handle
)

// ChannelCloser lets C1 ask the realtime layer (C8) to close a displaced
// channel without identity importing the websocket package.
type ChannelCloser interface {
	CloseChannel(handle string, code, reason string)
}

// Service implements C1's six operations.
type Service struct {
	repo       *Repository
	redis      *redisx.Client
	jwtSecret  string
	accessTTL  time.Duration
	refreshTTL time.Duration
	closer     ChannelCloser
}

func NewService(repo *Repository, redis *redisx.Client, jwtSecret string, accessTTL, refreshTTL time.Duration, closer ChannelCloser) *Service {
	return &Service{repo: repo, redis: redis, jwtSecret: jwtSecret, accessTTL: accessTTL, refreshTTL: refreshTTL, closer: closer}
}

// SetCloser wires the realtime layer in after construction, breaking the
// identity<->realtime construction cycle (Hub needs an Authenticator built
// from identity.Service; identity.Service needs the Hub as its closer).
func (s *Service) SetCloser(closer ChannelCloser) { s.closer = closer }

func (s *Service) mintPair(ctx context.Context, internalID InternalAccountID) (AuthPair, error) {
	access, jti, err := mintAccessToken(s.jwtSecret, internalID, int64(s.accessTTL.Seconds()))
	if err != nil {
		return AuthPair{}, apierr.Internal(err)
	}
	if err := s.redis.Set(ctx, redisAccessPrefix+jti, internalID, s.accessTTL); err != nil {
		return AuthPair{}, apierr.Internal(err)
	}

	refresh, err := newRefreshToken()
	if err != nil {
		return AuthPair{}, apierr.Internal(err)
	}
	if err := s.repo.StoreRefreshToken(ctx, refresh, internalID, s.refreshTTL); err != nil {
		return AuthPair{}, apierr.Internal(err)
	}

	return AuthPair{AccessToken: access, RefreshToken: refresh}, nil
}

// Register creates a new account in InitialSetup state and mints its first
// AuthPair.
func (s *Service) Register(ctx context.Context, email string) (AccountID, AuthPair, error) {
	acc, err := s.repo.Insert(ctx, email)
	if err != nil {
		return AccountID{}, AuthPair{}, apierr.Internal(err)
	}
	pair, err := s.mintPair(ctx, acc.InternalID)
	if err != nil {
		return AccountID{}, AuthPair{}, err
	}
	return acc.ID, pair, nil
}

// Login mints a fresh AuthPair for an existing account id.
func (s *Service) Login(ctx context.Context, id AccountID) (AuthPair, error) {
	acc, err := s.repo.FindByAccountID(ctx, id)
	if err != nil {
		return AuthPair{}, apierr.New(apierr.CodeNotFound, "account not found")
	}
	if acc.State == StateBanned || acc.State == StateDeleted {
		return AuthPair{}, apierr.New(apierr.CodeForbidden, "account not permitted to log in")
	}
	return s.mintPair(ctx, acc.InternalID)
}

// Refresh exchanges a refresh token for a new AuthPair (rotation: the old
// refresh token is consumed exactly once).
func (s *Service) Refresh(ctx context.Context, refreshToken string) (AuthPair, error) {
	internalID, err := s.repo.ConsumeRefreshToken(ctx, refreshToken)
	if err != nil {
		return AuthPair{}, apierr.New(apierr.CodeUnauthorized, "invalid or expired refresh token")
	}
	return s.mintPair(ctx, internalID)
}

// RefreshForChannel adapts Refresh to the shape internal/realtime's
// Authenticator interface needs for the channel-open handshake
// (SPEC_FULL.md §4.8): rotate the refresh token and return both it and the
// fresh access token, plus the account's internal id for the Hub's index.
func (s *Service) RefreshForChannel(ctx context.Context, refreshToken string) (accessToken, nextRefreshToken string, internalID int64, err error) {
	pair, err := s.Refresh(ctx, refreshToken)
	if err != nil {
		return "", "", 0, err
	}
	id, _, parseErr := parseAccessToken(s.jwtSecret, pair.AccessToken)
	if parseErr != nil {
		return "", "", 0, apierr.Internal(parseErr)
	}
	return pair.AccessToken, pair.RefreshToken, int64(id), nil
}

// Validate resolves an access token in O(1) against the Redis cache; a miss
// falls back to parsing+verifying the JWT envelope itself (covers the
// window immediately after a restart before the cache is warm — the JWT
// signature is still authoritative even when the cache entry is gone,
// provided it has not expired).
func (s *Service) Validate(ctx context.Context, accessToken string) (InternalAccountID, error) {
	internalID, jti, err := parseAccessToken(s.jwtSecret, accessToken)
	if err != nil {
		return 0, apierr.New(apierr.CodeUnauthorized, "invalid access token")
	}

	cached, err := s.redis.Get(ctx, redisAccessPrefix+jti)
	if err == nil && cached != "" {
		return internalID, nil
	}
	// Cache miss: the JWT's own signature+expiry already verified above, so
	// treat it as valid and repopulate the cache for subsequent lookups.
	_ = s.redis.Set(ctx, redisAccessPrefix+jti, internalID, s.accessTTL)
	return internalID, nil
}

// BindChannel binds an access token to a live realtime channel handle,
// displacing (and closing, with code "session-taken-over") any channel
// previously bound to the same account.
func (s *Service) BindChannel(ctx context.Context, accessToken, handle string) error {
	internalID, err := s.Validate(ctx, accessToken)
	if err != nil {
		return err
	}
	key := fmt.Sprintf("%s%d", redisChannelPrefix, internalID)
	previous, _ := s.redis.Get(ctx, key)
	if err := s.redis.Set(ctx, key, handle, 0); err != nil {
		return apierr.Internal(err)
	}
	if previous != "" && previous != handle && s.closer != nil {
		s.closer.CloseChannel(previous, "session-taken-over", "another channel bound to this account")
	}
	return nil
}

// Logout revokes every refresh token for the account, invalidates its
// current access token's cache entry, and closes any bound channel.
func (s *Service) Logout(ctx context.Context, internalID InternalAccountID) error {
	if err := s.repo.RevokeRefreshTokensFor(ctx, internalID); err != nil {
		return apierr.Internal(err)
	}
	key := fmt.Sprintf("%s%d", redisChannelPrefix, internalID)
	handle, _ := s.redis.Get(ctx, key)
	_ = s.redis.Del(ctx, key)
	if handle != "" && s.closer != nil {
		s.closer.CloseChannel(handle, "logout", "account logged out")
	}
	return nil
}

// Ban transitions the account to Banned and closes its live channel with
// code "banned" (used by C10).
func (s *Service) Ban(ctx context.Context, internalID InternalAccountID, until *time.Time) error {
	if err := s.repo.UpdateState(ctx, internalID, StateBanned); err != nil {
		return apierr.Internal(err)
	}
	key := fmt.Sprintf("%s%d", redisChannelPrefix, internalID)
	handle, _ := s.redis.Get(ctx, key)
	if handle != "" && s.closer != nil {
		s.closer.CloseChannel(handle, "banned", "account banned")
	}
	return nil
}

// Unban restores the account to Normal (used by C10).
func (s *Service) Unban(ctx context.Context, internalID InternalAccountID) error {
	if err := s.repo.UpdateState(ctx, internalID, StateNormal); err != nil {
		return apierr.Internal(err)
	}
	return nil
}

// IsBot reports whether a moderator account is the bot moderator (used by
// C7 to decide AcceptedByBot vs AcceptedByHuman and to gate the
// move-to-human escalation, SPEC_FULL.md §4.7).
func (s *Service) IsBot(ctx context.Context, moderator InternalAccountID) (bool, error) {
	acc, err := s.repo.FindByInternalID(ctx, moderator)
	if err != nil {
		return false, apierr.New(apierr.CodeNotFound, "moderator account not found")
	}
	return acc.IsBot, nil
}

// TransitionToNormal moves an account out of InitialSetup once its first
// media item clears moderation (used by C7).
func (s *Service) TransitionToNormal(ctx context.Context, subject InternalAccountID) error {
	if err := s.repo.UpdateState(ctx, subject, StateNormal); err != nil {
		return apierr.Internal(err)
	}
	return nil
}
