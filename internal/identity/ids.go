// Package identity implements C1 (Identity & Token store): minting and
// validating access/refresh tokens and binding an access token to a single
// live realtime channel (SPEC_FULL.md §4.1).
package identity

import (
	"time"

	"github.com/google/uuid"
)

// AccountID is the opaque 128-bit identifier exposed externally. It is
// never used for joins or cache indexing — see InternalAccountID.
type AccountID uuid.UUID

func NewAccountID() AccountID { return AccountID(uuid.New()) }

func (id AccountID) String() string { return uuid.UUID(id).String() }

func ParseAccountID(s string) (AccountID, error) {
	u, err := uuid.Parse(s)
	return AccountID(u), err
}

// InternalAccountID is the dense 64-bit key used for every join and cache
// index. The mapping AccountID <-> InternalAccountID is bijective and
// permanent once assigned (held in the accounts collection).
type InternalAccountID int64

// AccountState is the account lifecycle state.
type AccountState string

const (
	StateInitialSetup     AccountState = "InitialSetup"
	StateNormal           AccountState = "Normal"
	StateBanned           AccountState = "Banned"
	StatePendingDeletion  AccountState = "PendingDeletion"
	StateDeleted          AccountState = "Deleted"
)

// Permission is a bit in an account's permission set.
type Permission uint32

const (
	PermAdminViewReports Permission = 1 << iota
	PermAdminModerateMedia
	PermAdminModerateProfileText
	PermAdminEditNews
	PermAdminMaintenanceModeration
	PermAdminMaintenanceAccounts
)

func (p Permission) In(set Permission) bool { return set&p != 0 }

// Account is the durable identity record (SPEC_FULL.md §3).
type Account struct {
	ID          AccountID
	InternalID  InternalAccountID
	State       AccountState
	Permissions Permission
	IsBot       bool
	Email       string
	GoogleSubID string
	CreatedAt   time.Time
	BannedUntil *time.Time
}

// AuthPair is the (access, refresh) token pair returned by register/login/
// refresh. Refresh is 256 bits of CSPRNG entropy; Access is minted as a
// signed JWT envelope carrying InternalAccountID + a random token family id,
// so the same opaque string both signature-validates offline and resolves
// in O(1) through the Redis-backed cache.
type AuthPair struct {
	AccessToken  string
	RefreshToken string
}

// PublicKey is an account's current end-to-end-encryption public key.
type PublicKey struct {
	AccountInternalID InternalAccountID
	ID                int64 // PublicKeyId, monotonic per account
	Version           int32 // PublicKeyVersion, today always 1
	Data              []byte
}
