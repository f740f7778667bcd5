package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"roomledger/internal/adapters/observability"
	"roomledger/internal/availability"
	"roomledger/internal/domain"
)

// Allocator serializes booking attempts against the availability index and
// appends accepted reservations to the ledger. The index claim happens first
// and the ledger append second, so a failed append rolls the claim back and
// never leaves a half-committed booking.
type Allocator struct {
	ledger  domain.Ledger
	catalog domain.Catalog
	index   *availability.Index
	holdTTL time.Duration
	now     func() time.Time
}

func NewAllocator(l domain.Ledger, c domain.Catalog, ix *availability.Index, holdTTL time.Duration) *Allocator {
	return &Allocator{ledger: l, catalog: c, index: ix, holdTTL: holdTTL, now: time.Now}
}

// WithClock overrides the time source; tests use it to age pending holds.
func (a *Allocator) WithClock(now func() time.Time) *Allocator {
	a.now = now
	return a
}

// Book validates the request, atomically claims the interval and appends a
// pending reservation. On a conflict held only by expired pending holds it
// expires them and retries exactly once.
func (a *Allocator) Book(ctx context.Context, roomID int64, rng domain.DateRange, guestID int64) (domain.Reservation, error) {
	if err := a.validateRange(rng); err != nil {
		observability.ObserveBooking("invalid_range")
		return domain.Reservation{}, err
	}
	if _, err := a.catalog.GetRoom(ctx, roomID); err != nil {
		if errors.Is(err, domain.ErrRoomNotFound) {
			observability.ObserveBooking("room_not_found")
			return domain.Reservation{}, domain.ErrRoomNotFound
		}
		// storage failure, not a missing room; keep the cause unwrappable
		observability.ObserveBooking("error")
		return domain.Reservation{}, fmt.Errorf("get room: %w", err)
	}

	res, err := a.tryBook(ctx, roomID, rng, guestID)
	if err == nil {
		observability.ObserveBooking("ok")
		return res, nil
	}

	ue, ok := domain.IsUnavailable(err)
	if !ok {
		observability.ObserveBooking("error")
		return domain.Reservation{}, err
	}
	if !a.expireConflicts(ctx, ue.ConflictIDs) {
		observability.ObserveBooking("conflict")
		return domain.Reservation{}, err
	}

	// single bounded retry after expiring stale holds
	res, err = a.tryBook(ctx, roomID, rng, guestID)
	if err != nil {
		if _, ok := domain.IsUnavailable(err); ok {
			observability.ObserveBooking("conflict")
		} else {
			observability.ObserveBooking("error")
		}
		return domain.Reservation{}, err
	}
	observability.ObserveBooking("ok_after_expiry")
	return res, nil
}

func (a *Allocator) validateRange(rng domain.DateRange) error {
	if !rng.CheckIn.Before(rng.CheckOut) || rng.Nights() < 1 {
		return domain.ErrInvalidRange
	}
	today := a.now().UTC().Truncate(24 * time.Hour)
	if rng.CheckIn.Before(today) {
		return domain.ErrInvalidRange
	}
	return nil
}

func (a *Allocator) tryBook(ctx context.Context, roomID int64, rng domain.DateRange, guestID int64) (domain.Reservation, error) {
	hold, err := a.index.Hold(roomID, rng)
	if err != nil {
		return domain.Reservation{}, err
	}

	res, err := a.ledger.Append(ctx, domain.Reservation{
		RoomID:  roomID,
		GuestID: guestID,
		Range:   rng,
		Status:  domain.StatusPending,
	})
	if err != nil {
		hold.Rollback()
		return domain.Reservation{}, fmt.Errorf("ledger append: %w", err)
	}
	hold.Commit(res.ID)

	log.Info().
		Int64("reservation", res.ID).
		Int64("room", roomID).
		Int64("guest", guestID).
		Str("range", rng.String()).
		Msg("booking accepted")
	return res, nil
}

// expireConflicts cancels every conflicting reservation iff all of them are
// pending holds past the TTL. Any live conflict makes expiry pointless since
// the retry would hit it again.
func (a *Allocator) expireConflicts(ctx context.Context, ids []int64) bool {
	now := a.now()
	stale := make([]domain.Reservation, 0, len(ids))
	for _, id := range ids {
		if id == 0 {
			return false // in-flight hold of a concurrent Book call
		}
		r, err := a.ledger.Get(ctx, id)
		if err != nil || !r.Expired(now, a.holdTTL) {
			return false
		}
		stale = append(stale, r)
	}
	for _, r := range stale {
		if _, err := a.ledger.CompareAndSetStatus(ctx, r.ID, domain.StatusCancelled, r.Version); err != nil {
			log.Warn().Int64("reservation", r.ID).Err(err).Msg("hold expiry lost a race")
			return false
		}
		a.index.Release(r.RoomID, r.ID)
		observability.ObserveHoldExpired()
		log.Info().Int64("reservation", r.ID).Msg("expired stale pending hold")
	}
	return true
}

// ExpireStaleHolds sweeps the ledger for pending reservations past the TTL and
// cancels them. Run periodically; losing a version race to a concurrent
// confirm is fine, the next sweep re-evaluates.
func (a *Allocator) ExpireStaleHolds(ctx context.Context) (int, error) {
	blocking, err := a.ledger.ListBlocking(ctx)
	if err != nil {
		return 0, fmt.Errorf("list blocking: %w", err)
	}
	now := a.now()
	n := 0
	for _, r := range blocking {
		if !r.Expired(now, a.holdTTL) {
			continue
		}
		if _, err := a.ledger.CompareAndSetStatus(ctx, r.ID, domain.StatusCancelled, r.Version); err != nil {
			continue
		}
		a.index.Release(r.RoomID, r.ID)
		observability.ObserveHoldExpired()
		n++
	}
	return n, nil
}

// BuildIndex replays the ledger's blocking reservations into a fresh index.
// Accepted records never overlap, so replay order is irrelevant and the result
// deterministic; an overlap here means the ledger itself is corrupt.
func BuildIndex(ctx context.Context, l domain.Ledger) (*availability.Index, error) {
	ix := availability.NewIndex()
	blocking, err := l.ListBlocking(ctx)
	if err != nil {
		return nil, fmt.Errorf("list blocking: %w", err)
	}
	for _, r := range blocking {
		if err := ix.Reserve(r.RoomID, r.Range, r.ID); err != nil {
			return nil, fmt.Errorf("ledger invariant broken at reservation %d: %w", r.ID, err)
		}
	}
	return ix, nil
}
