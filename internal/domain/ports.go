package domain

import "context"

// Ledger is the system of record for reservations. Records are appended and
// status-adjusted, never deleted; terminal rows stay for audit.
type Ledger interface {
	// Append persists a new reservation and assigns its id, created/updated
	// timestamps and version 0.
	Append(ctx context.Context, r Reservation) (Reservation, error)

	// CompareAndSetStatus moves reservation id to status iff the stored
	// version equals expectedVersion, incrementing the version. Returns the
	// updated record, ErrStaleVersion on a version race, ErrNotFound if the
	// id does not exist.
	CompareAndSetStatus(ctx context.Context, id int64, status Status, expectedVersion int64) (Reservation, error)

	Get(ctx context.Context, id int64) (Reservation, error)
	ListByGuest(ctx context.Context, guestID int64) ([]Reservation, error)

	// ListBlocking returns every reservation whose status still occupies its
	// interval; used to rebuild the availability index at startup.
	ListBlocking(ctx context.Context) ([]Reservation, error)
}

// Catalog is the read-mostly room inventory.
type Catalog interface {
	GetRoom(ctx context.Context, id int64) (Room, error)
	ListRooms(ctx context.Context) ([]Room, error)
	UpsertRoom(ctx context.Context, r Room) error
}

type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any, ttlSec int) error
	Del(ctx context.Context, key string) error
}
