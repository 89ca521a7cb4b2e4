package device

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pendingRecord() Record {
	return Record{
		DeviceID:    "11111111-1111-1111-1111-111111111111",
		DisplayName: "laptop-1",
		State:       StatePending,
		RequestedAt: time.Now(),
	}
}

func TestApproveFromPending(t *testing.T) {
	rec := pendingRecord()
	now := time.Now()

	err := rec.approve("hash-1", now, 7*24*time.Hour)
	require.NoError(t, err)

	assert.Equal(t, StateApproved, rec.State)
	assert.Equal(t, "hash-1", rec.TokenHash)
	assert.Equal(t, now, rec.IssuedAt)
	assert.True(t, rec.ExpiresAt.After(rec.IssuedAt))
}

func TestReApproveReplacesToken(t *testing.T) {
	rec := pendingRecord()
	require.NoError(t, rec.approve("hash-1", time.Now(), time.Hour))

	err := rec.approve("hash-2", time.Now(), time.Hour)
	require.NoError(t, err)
	assert.Equal(t, "hash-2", rec.TokenHash)
	assert.Equal(t, StateApproved, rec.State)
}

func TestApproveTerminalStates(t *testing.T) {
	rejected := pendingRecord()
	require.NoError(t, rejected.reject())
	assert.ErrorIs(t, rejected.approve("hash", time.Now(), time.Hour), ErrInvalidState)

	revoked := pendingRecord()
	require.NoError(t, revoked.revoke(time.Now(), "lost device"))
	assert.ErrorIs(t, revoked.approve("hash", time.Now(), time.Hour), ErrInvalidState)
}

func TestApproveRequiresPositiveTTL(t *testing.T) {
	rec := pendingRecord()
	assert.ErrorIs(t, rec.approve("hash", time.Now(), 0), ErrValidation)
	assert.Equal(t, StatePending, rec.State)
}

func TestRejectOnlyFromPending(t *testing.T) {
	rec := pendingRecord()
	require.NoError(t, rec.reject())
	assert.Equal(t, StateRejected, rec.State)

	approved := pendingRecord()
	require.NoError(t, approved.approve("hash", time.Now(), time.Hour))
	assert.ErrorIs(t, approved.reject(), ErrInvalidState)
}

func TestRevokeFromAnyState(t *testing.T) {
	for _, setup := range []func(*Record){
		func(r *Record) {},
		func(r *Record) { _ = r.approve("hash", time.Now(), time.Hour) },
	} {
		rec := pendingRecord()
		setup(&rec)

		require.NoError(t, rec.revoke(time.Now(), "compromised"))
		assert.Equal(t, StateRevoked, rec.State)
		assert.Equal(t, "compromised", rec.RevocationReason)
		assert.False(t, rec.RevokedAt.IsZero())
	}
}

func TestRevokeIdempotent(t *testing.T) {
	rec := pendingRecord()
	require.NoError(t, rec.revoke(time.Now(), "first"))
	firstRevokedAt := rec.RevokedAt

	require.NoError(t, rec.revoke(time.Now(), "second"))
	assert.Equal(t, "first", rec.RevocationReason)
	assert.Equal(t, firstRevokedAt, rec.RevokedAt)

	rejected := pendingRecord()
	require.NoError(t, rejected.reject())
	require.NoError(t, rejected.revoke(time.Now(), "late"))
	assert.Equal(t, StateRejected, rejected.State)
}

func TestExpired(t *testing.T) {
	rec := pendingRecord()
	require.NoError(t, rec.approve("hash", time.Now(), time.Hour))

	assert.False(t, rec.Expired(time.Now()))
	assert.True(t, rec.Expired(time.Now().Add(2*time.Hour)))

	// Expiry only applies to approved records.
	pending := pendingRecord()
	assert.False(t, pending.Expired(time.Now().Add(24*time.Hour)))
}
