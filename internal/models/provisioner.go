package models

import "context"

// VpnAccount is the remote account the provisioning API manages.
type VpnAccount struct {
	// ID is the remote account identifier.
	ID int64 `json:"id"`
	// Username is the remote account username, derived from the Telegram id.
	Username string `json:"username"`
	// ExpiresAt is the remote expiry as a Unix timestamp.
	ExpiresAt int64 `json:"expires_at"`
	// Created reports whether this call created the account. An existing
	// account is returned with Created=false and the caller decides
	// whether to extend it.
	Created bool `json:"-"`
}

// Provisioner abstracts the external VPN account manager. The remote
// service is unreliable; implementations retry transient failures with
// bounded backoff before reporting an error. Account lookup is
// idempotent on the username derived from the Telegram id.
//
// Extend is a remote read-modify-write and is not atomic on the remote
// side; callers serialize all extends for one account via the user lock.
type Provisioner interface {
	GetOrCreateAccount(ctx context.Context, tgID int64, initialDays int64) (*VpnAccount, error)
	Extend(ctx context.Context, accountID int64, days int64) error
	// SetExpiry overwrites the remote expiry. Used by revoke paths that
	// must push a recomputed (shorter) expiry to the remote side.
	SetExpiry(ctx context.Context, accountID int64, until int64) error
	// AddToGroup is best-effort; a failure is logged but does not abort
	// activation.
	AddToGroup(ctx context.Context, accountID int64, groupID int64) error
	ShareLink(ctx context.Context, accountID int64) (string, error)
}
