package identity

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func jwtExpiry(ttlSeconds int64) time.Time {
	return time.Now().Add(time.Duration(ttlSeconds) * time.Second)
}

// newOpaqueToken returns n bits of CSPRNG entropy, base64url-encoded.
//
// This is deliberately stdlib (crypto/rand + encoding/base64), not a
// third-party dependency: a CSPRNG byte generator is exactly what the
// standard library's crypto/rand already is, and none of the pack's
// examples reach for a third-party token-generation library for this —
// see DESIGN.md for the stdlib-justification entry.
func newOpaqueToken(bits int) (string, error) {
	buf := make([]byte, bits/8)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token entropy: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func newRefreshToken() (string, error) { return newOpaqueToken(256) }

// accessClaims is the JWT envelope minted for an access token. The envelope
// carries the InternalAccountID and a random token family id (jti); the
// *string* handed to clients is the signed JWT itself, so the access token
// self-validates its signature while the jti still lets C1 revoke a single
// token family in O(1) via the Redis cache without invalidating every
// access token an account has ever held.
type accessClaims struct {
	jwt.RegisteredClaims
	InternalID InternalAccountID `json:"iid"`
}

func mintAccessToken(secret string, internalID InternalAccountID, ttlSeconds int64) (string, string, error) {
	jti, err := newOpaqueToken(128)
	if err != nil {
		return "", "", err
	}
	claims := accessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			ExpiresAt: jwt.NewNumericDate(jwtExpiry(ttlSeconds)),
		},
		InternalID: internalID,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, jti, nil
}

func parseAccessToken(secret, tokenString string) (InternalAccountID, string, error) {
	claims := &accessClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return 0, "", fmt.Errorf("invalid access token: %w", err)
	}
	return claims.InternalID, claims.ID, nil
}
