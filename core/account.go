package core

import "time"

const VerificationMethodSignature = "signature"

// VerifiedAccount is the users collection document, keyed by subject id.
type VerifiedAccount struct {
	SubjectID          string                    `json:"-"`
	WalletAddress      string                    `json:"wallet_address,omitempty"`
	Verified           bool                      `json:"verified"`
	VerificationDate   time.Time                 `json:"verification_date,omitempty"`
	VerificationMethod string                    `json:"verification_method,omitempty"`
	AssetCount         uint64                    `json:"nft_count"`
	LastUpdated        time.Time                 `json:"last_updated,omitempty"`
	RoleID             string                    `json:"roleId,omitempty"`
	RoleName           string                    `json:"roleName,omitempty"`
	RoleDescription    string                    `json:"roleDescription,omitempty"`
	Communities        map[string]CommunityState `json:"communities,omitempty"`
}

// HasWallet reports whether the account can take part in a batch run.
func (a *VerifiedAccount) HasWallet() bool {
	return a.WalletAddress != ""
}

// CommunityState is the tier observed for a subject in a single community
// during its most recent reconciliation.
type CommunityState struct {
	RoleID      string    `json:"roleId,omitempty"`
	RoleName    string    `json:"roleName,omitempty"`
	AssetCount  uint64    `json:"nft_count"`
	LastUpdated time.Time `json:"last_updated"`
}

// Document field names used for partial updates.
const (
	FieldWalletAddress      = "wallet_address"
	FieldVerified           = "verified"
	FieldVerificationDate   = "verification_date"
	FieldVerificationMethod = "verification_method"
	FieldAssetCount         = "nft_count"
	FieldLastUpdated        = "last_updated"
	FieldRoleID             = "roleId"
	FieldRoleName           = "roleName"
	FieldRoleDescription    = "roleDescription"
	FieldCommunities        = "communities"
)

// Collections of the document store.
const (
	CollectionUsers                = "users"
	CollectionPendingVerifications = "pending_verifications"
)
