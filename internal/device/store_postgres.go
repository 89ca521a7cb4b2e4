package device

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists device records in a single devices table. Per-device
// serialization comes from SELECT ... FOR UPDATE inside a transaction, so two
// concurrent transitions for the same device_id are ordered by the row lock
// while other devices proceed unblocked.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const deviceColumns = `id::text, display_name, client_info, user_agent, source_address, state::text,
	requested_at, token_hash, issued_at, expires_at, last_used_at, usage_count,
	revoked_at, revocation_reason`

func (s *PostgresStore) Create(ctx context.Context, rec Record) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO devices (id, display_name, client_info, user_agent, source_address, state, requested_at)
		VALUES ($1::uuid, $2, $3, $4, $5, $6::device_state, $7)`,
		rec.DeviceID, rec.DisplayName, rec.ClientInfo, rec.UserAgent, rec.SourceAddress,
		string(rec.State), rec.RequestedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDeviceExists
		}
		return fmt.Errorf("insert device: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, deviceID string) (Record, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+deviceColumns+` FROM devices WHERE id = $1::uuid`, deviceID)
	return scanRecord(row)
}

func (s *PostgresStore) GetByTokenHash(ctx context.Context, tokenHash string) (Record, error) {
	if tokenHash == "" {
		return Record{}, ErrDeviceNotFound
	}
	row := s.pool.QueryRow(ctx,
		`SELECT `+deviceColumns+` FROM devices WHERE token_hash = $1`, tokenHash)
	return scanRecord(row)
}

func (s *PostgresStore) Update(ctx context.Context, deviceID string, fn func(*Record) error) (Record, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Record{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx,
		`SELECT `+deviceColumns+` FROM devices WHERE id = $1::uuid FOR UPDATE`, deviceID)
	rec, err := scanRecord(row)
	if err != nil {
		return Record{}, err
	}

	if err := fn(&rec); err != nil {
		return Record{}, err
	}

	_, err = tx.Exec(ctx, `
		UPDATE devices SET
			state = $2::device_state,
			token_hash = $3,
			issued_at = $4,
			expires_at = $5,
			last_used_at = $6,
			usage_count = $7,
			revoked_at = $8,
			revocation_reason = $9
		WHERE id = $1::uuid`,
		rec.DeviceID, string(rec.State),
		nullString(rec.TokenHash), nullTime(rec.IssuedAt), nullTime(rec.ExpiresAt),
		nullTime(rec.LastUsedAt), rec.UsageCount,
		nullTime(rec.RevokedAt), nullString(rec.RevocationReason))
	if err != nil {
		return Record{}, fmt.Errorf("update device: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Record{}, fmt.Errorf("commit transaction: %w", err)
	}
	return rec, nil
}

func (s *PostgresStore) List(ctx context.Context) ([]Record, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+deviceColumns+` FROM devices ORDER BY requested_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	defer rows.Close()
	return collectRecords(rows)
}

func (s *PostgresStore) ListByState(ctx context.Context, state State) ([]Record, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+deviceColumns+` FROM devices
		WHERE state = $1::device_state ORDER BY requested_at ASC`, string(state))
	if err != nil {
		return nil, fmt.Errorf("list devices by state: %w", err)
	}
	defer rows.Close()
	return collectRecords(rows)
}

func scanRecord(row pgx.Row) (Record, error) {
	var (
		rec       Record
		state     string
		tokenHash *string
		issuedAt  *time.Time
		expiresAt *time.Time
		lastUsed  *time.Time
		revokedAt *time.Time
		reason    *string
	)
	err := row.Scan(&rec.DeviceID, &rec.DisplayName, &rec.ClientInfo, &rec.UserAgent,
		&rec.SourceAddress, &state, &rec.RequestedAt, &tokenHash, &issuedAt, &expiresAt,
		&lastUsed, &rec.UsageCount, &revokedAt, &reason)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrDeviceNotFound
		}
		return Record{}, fmt.Errorf("scan device: %w", err)
	}

	rec.State = State(state)
	if tokenHash != nil {
		rec.TokenHash = *tokenHash
	}
	if issuedAt != nil {
		rec.IssuedAt = *issuedAt
	}
	if expiresAt != nil {
		rec.ExpiresAt = *expiresAt
	}
	if lastUsed != nil {
		rec.LastUsedAt = *lastUsed
	}
	if revokedAt != nil {
		rec.RevokedAt = *revokedAt
	}
	if reason != nil {
		rec.RevocationReason = *reason
	}
	return rec, nil
}

func collectRecords(rows pgx.Rows) ([]Record, error) {
	var result []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate devices: %w", err)
	}
	return result, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
