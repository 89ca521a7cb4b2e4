package device

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/proxmcp/gateway/internal/ratelimit"
)

const (
	maxDisplayNameLength = 255
	maxClientInfoLength  = 1024
	maxUserAgentLength   = 512

	DefaultTokenTTL = 30 * 24 * time.Hour
	MaxTokenTTL     = 365 * 24 * time.Hour

	// DefaultStoreTimeout bounds every persistence operation. A hung backend
	// turns into an error the handlers map to 503 instead of a stuck request.
	DefaultStoreTimeout = 5 * time.Second
)

// Config bounds token lifetimes handed out at approval and the time budget
// for store I/O.
type Config struct {
	DefaultTokenTTL time.Duration
	MaxTokenTTL     time.Duration
	StoreTimeout    time.Duration
}

// Service implements device registration, the admin lifecycle operations,
// and bearer-token validation on top of a Store.
type Service struct {
	store   Store
	limiter ratelimit.Limiter
	config  Config
}

func NewService(store Store, limiter ratelimit.Limiter, config Config) *Service {
	if config.DefaultTokenTTL <= 0 {
		config.DefaultTokenTTL = DefaultTokenTTL
	}
	if config.MaxTokenTTL <= 0 {
		config.MaxTokenTTL = MaxTokenTTL
	}
	if config.StoreTimeout <= 0 {
		config.StoreTimeout = DefaultStoreTimeout
	}
	return &Service{
		store:   store,
		limiter: limiter,
		config:  config,
	}
}

// storeContext derives the bounded context every store call runs under.
func (s *Service) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.config.StoreTimeout)
}

// Register creates a Pending record and returns its device_id. The rate
// limiter is consulted before anything is written, so a rejected attempt
// leaves no partial state. No token is issued here; registration is a
// request, not a grant. The user agent is captured for the audit trail, not
// validated; it is truncated rather than rejected.
func (s *Service) Register(ctx context.Context, displayName, clientInfo, userAgent, sourceAddr string) (string, error) {
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return "", fmt.Errorf("%w: display name is required", ErrValidation)
	}
	if len(displayName) > maxDisplayNameLength {
		return "", fmt.Errorf("%w: display name exceeds %d characters", ErrValidation, maxDisplayNameLength)
	}
	if len(clientInfo) > maxClientInfoLength {
		return "", fmt.Errorf("%w: client info exceeds %d characters", ErrValidation, maxClientInfoLength)
	}
	if len(userAgent) > maxUserAgentLength {
		userAgent = userAgent[:maxUserAgentLength]
	}

	if err := s.limiter.Allow(ctx, ratelimit.ClassRegistration, sourceAddr); err != nil {
		return "", err
	}

	rec := Record{
		DeviceID:      uuid.NewString(),
		DisplayName:   displayName,
		ClientInfo:    clientInfo,
		UserAgent:     userAgent,
		SourceAddress: sourceAddr,
		State:         StatePending,
		RequestedAt:   time.Now(),
	}
	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()
	if err := s.store.Create(storeCtx, rec); err != nil {
		return "", fmt.Errorf("persist registration: %w", err)
	}

	slog.Info("Device registration requested",
		"device_id", rec.DeviceID,
		"display_name", rec.DisplayName,
		"source_address", sourceAddr)
	return rec.DeviceID, nil
}

// ListPending returns Pending records oldest first so admins triage in
// arrival order.
func (s *Service) ListPending(ctx context.Context) ([]Record, error) {
	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()
	return s.store.ListByState(storeCtx, StatePending)
}

// ListDevices returns every record regardless of state.
func (s *Service) ListDevices(ctx context.Context) ([]Record, error) {
	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()
	return s.store.List(storeCtx)
}

// Approve mints a token for a Pending or already-Approved device and returns
// the cleartext exactly once. Re-approval replaces the stored hash, which
// invalidates the previous token. The TTL is clamped to the configured
// maximum; a non-positive TTL selects the default.
func (s *Service) Approve(ctx context.Context, deviceID string, ttl time.Duration) (string, Record, error) {
	if ttl <= 0 {
		ttl = s.config.DefaultTokenTTL
	}
	if ttl > s.config.MaxTokenTTL {
		ttl = s.config.MaxTokenTTL
	}

	token, tokenHash, err := MintToken()
	if err != nil {
		return "", Record{}, err
	}

	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()
	rec, err := s.store.Update(storeCtx, deviceID, func(r *Record) error {
		return r.approve(tokenHash, time.Now(), ttl)
	})
	if err != nil {
		return "", Record{}, err
	}

	slog.Info("Device approved",
		"device_id", rec.DeviceID,
		"display_name", rec.DisplayName,
		"expires_at", rec.ExpiresAt)
	return token, rec, nil
}

// Reject terminates a Pending registration.
func (s *Service) Reject(ctx context.Context, deviceID string) (Record, error) {
	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()
	rec, err := s.store.Update(storeCtx, deviceID, func(r *Record) error {
		return r.reject()
	})
	if err != nil {
		return Record{}, err
	}

	slog.Info("Device registration rejected",
		"device_id", rec.DeviceID,
		"display_name", rec.DisplayName)
	return rec, nil
}

// Revoke invalidates a device regardless of its current state. Revoking an
// already Revoked or Rejected device is a no-op success; invalidation must
// never itself fail.
func (s *Service) Revoke(ctx context.Context, deviceID, reason string) (Record, error) {
	if reason == "" {
		reason = "manual revocation"
	}

	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()
	rec, err := s.store.Update(storeCtx, deviceID, func(r *Record) error {
		return r.revoke(time.Now(), reason)
	})
	if err != nil {
		return Record{}, err
	}

	slog.Info("Device revoked",
		"device_id", rec.DeviceID,
		"display_name", rec.DisplayName,
		"reason", reason)
	return rec, nil
}

// Authenticate validates a presented bearer token and returns the owning
// record. Unknown hashes yield ErrTokenNotFound; known but revoked, not yet
// approved, or expired tokens yield ErrTokenNotActive. Validation does not
// count as usage: callers that go on to serve a privileged request record it
// with MarkUsed after all other gates have passed.
func (s *Service) Authenticate(ctx context.Context, token string) (Record, error) {
	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()
	rec, err := s.store.GetByTokenHash(storeCtx, HashToken(token))
	if err != nil {
		if errors.Is(err, ErrDeviceNotFound) {
			return Record{}, ErrTokenNotFound
		}
		return Record{}, fmt.Errorf("look up token: %w", err)
	}

	now := time.Now()
	if rec.State != StateApproved {
		return Record{}, fmt.Errorf("%w: device is %s", ErrTokenNotActive, rec.State)
	}
	if rec.Expired(now) {
		return Record{}, fmt.Errorf("%w: token expired at %s", ErrTokenNotActive, rec.ExpiresAt.Format(time.RFC3339))
	}
	return rec, nil
}

// MarkUsed bumps the usage counters for a privileged call that is actually
// being served. The state and token hash are re-checked under the record
// lock: a revocation or re-approval that committed after Authenticate wins,
// and the call is refused with ErrTokenNotActive.
func (s *Service) MarkUsed(ctx context.Context, deviceID, tokenHash string) (Record, error) {
	now := time.Now()
	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()
	rec, err := s.store.Update(storeCtx, deviceID, func(r *Record) error {
		if r.State != StateApproved || r.TokenHash != tokenHash {
			return fmt.Errorf("%w: device is %s", ErrTokenNotActive, r.State)
		}
		if r.Expired(now) {
			return fmt.Errorf("%w: token expired at %s", ErrTokenNotActive, r.ExpiresAt.Format(time.RFC3339))
		}
		r.touch(now)
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrDeviceNotFound) {
			return Record{}, ErrTokenNotFound
		}
		return Record{}, err
	}
	return rec, nil
}

// Stats are the aggregate counts shown on the admin surface.
type Stats struct {
	Pending  int `json:"pending_requests"`
	Active   int `json:"active_devices"`
	Expired  int `json:"expired_devices"`
	Rejected int `json:"rejected_devices"`
	Revoked  int `json:"revoked_devices"`
	Total    int `json:"total_devices"`
}

// Stats computes aggregate counts without mutating any record.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()
	records, err := s.store.List(storeCtx)
	if err != nil {
		return Stats{}, err
	}

	now := time.Now()
	var stats Stats
	stats.Total = len(records)
	for _, rec := range records {
		switch rec.State {
		case StatePending:
			stats.Pending++
		case StateApproved:
			if rec.Expired(now) {
				stats.Expired++
			} else {
				stats.Active++
			}
		case StateRejected:
			stats.Rejected++
		case StateRevoked:
			stats.Revoked++
		}
	}
	return stats, nil
}
