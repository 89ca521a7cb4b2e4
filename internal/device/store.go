package device

import "context"

// Store is the durable home of device records. Implementations must make
// Update a per-device atomic read-modify-write: two concurrent Updates for
// the same device_id are serialized, and a transition committed first is
// observed by the loser. Independent devices must not contend on a shared
// lock.
type Store interface {
	// Create persists a new record. Returns ErrDeviceExists on a device_id
	// collision.
	Create(ctx context.Context, rec Record) error

	// Get returns the record for a device_id, or ErrDeviceNotFound.
	Get(ctx context.Context, deviceID string) (Record, error)

	// GetByTokenHash returns the record holding the given token hash, or
	// ErrDeviceNotFound.
	GetByTokenHash(ctx context.Context, tokenHash string) (Record, error)

	// Update applies fn to the current record under per-device serialization
	// and persists the result. If fn returns an error nothing is written and
	// the error is returned unchanged. Returns the committed record.
	Update(ctx context.Context, deviceID string, fn func(*Record) error) (Record, error)

	// List returns all records ordered by requested_at ascending.
	List(ctx context.Context) ([]Record, error)

	// ListByState returns records in the given state, ordered by
	// requested_at ascending.
	ListByState(ctx context.Context, state State) ([]Record, error)
}
