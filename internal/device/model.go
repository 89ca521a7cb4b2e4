package device

import (
	"fmt"
	"time"
)

// State is the lifecycle state of a device record. Exactly one state holds
// at any time; Rejected and Revoked are terminal.
type State string

const (
	StatePending  State = "pending"
	StateApproved State = "approved"
	StateRejected State = "rejected"
	StateRevoked  State = "revoked"
)

// Record is a registered device identity and its lifecycle data. The raw
// token is never stored; only its SHA-256 hash.
type Record struct {
	DeviceID      string
	DisplayName   string
	ClientInfo    string
	UserAgent     string
	SourceAddress string
	State         State
	RequestedAt   time.Time

	// Set while Approved (kept afterwards for audit).
	TokenHash  string
	IssuedAt   time.Time
	ExpiresAt  time.Time
	LastUsedAt time.Time
	UsageCount int64

	// Set once Revoked.
	RevokedAt        time.Time
	RevocationReason string
}

// Expired reports whether an approved token has passed its expiry. Expiry is
// enforced at validation time; expired records are kept for audit.
func (r *Record) Expired(now time.Time) bool {
	return r.State == StateApproved && now.After(r.ExpiresAt)
}

// approve transitions the record to Approved and installs a new token hash.
// Legal from Pending and from Approved (re-approval replaces the previous
// token, which stops validating the moment the new hash is stored).
func (r *Record) approve(tokenHash string, now time.Time, ttl time.Duration) error {
	switch r.State {
	case StatePending, StateApproved:
	default:
		return fmt.Errorf("%w: cannot approve device in state %q", ErrInvalidState, r.State)
	}
	if ttl <= 0 {
		return fmt.Errorf("%w: token TTL must be positive", ErrValidation)
	}
	r.State = StateApproved
	r.TokenHash = tokenHash
	r.IssuedAt = now
	r.ExpiresAt = now.Add(ttl)
	return nil
}

// reject transitions the record to Rejected. Legal from Pending only.
func (r *Record) reject() error {
	if r.State != StatePending {
		return fmt.Errorf("%w: cannot reject device in state %q", ErrInvalidState, r.State)
	}
	r.State = StateRejected
	return nil
}

// revoke transitions the record to Revoked. Revoking an already terminal
// record is a no-op success so that invalidation never fails.
func (r *Record) revoke(now time.Time, reason string) error {
	switch r.State {
	case StateRevoked, StateRejected:
		return nil
	}
	r.State = StateRevoked
	r.RevokedAt = now
	r.RevocationReason = reason
	return nil
}

// touch records a successful token validation.
func (r *Record) touch(now time.Time) {
	r.LastUsedAt = now
	r.UsageCount++
}
