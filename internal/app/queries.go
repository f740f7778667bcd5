package app

import (
	"context"
	"fmt"
	"time"

	"roomledger/internal/availability"
	"roomledger/internal/domain"
)

// QueryService serves the read paths. Room lists and per-guest reservation
// histories are cached cache-aside; writers invalidate through the helpers
// below. Availability checks always hit the live index, never the cache.
type QueryService struct {
	ledger   domain.Ledger
	catalog  domain.Catalog
	index    *availability.Index
	cache    domain.Cache
	cacheTTL time.Duration
}

func NewQueryService(l domain.Ledger, c domain.Catalog, ix *availability.Index, cache domain.Cache, ttl time.Duration) *QueryService {
	return &QueryService{ledger: l, catalog: c, index: ix, cache: cache, cacheTTL: ttl}
}

// SearchAvailability returns sellable rooms free for the whole of rng,
// optionally filtered by room type.
func (s *QueryService) SearchAvailability(ctx context.Context, rng domain.DateRange, roomType string) ([]domain.Room, error) {
	rooms, err := s.listRooms(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Room, 0, len(rooms))
	for _, r := range rooms {
		if !r.Available {
			continue
		}
		if roomType != "" && r.Type != roomType {
			continue
		}
		if s.index.IsFree(r.ID, rng) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *QueryService) ListRooms(ctx context.Context) ([]domain.Room, error) {
	return s.listRooms(ctx)
}

func (s *QueryService) listRooms(ctx context.Context) ([]domain.Room, error) {
	const key = "rooms:all"
	var rooms []domain.Room
	if ok, _ := s.cache.Get(ctx, key, &rooms); ok {
		return rooms, nil
	}
	rooms, err := s.catalog.ListRooms(ctx)
	if err != nil {
		return nil, err
	}
	_ = s.cache.Set(ctx, key, rooms, int(s.cacheTTL.Seconds()))
	return rooms, nil
}

func (s *QueryService) GetReservation(ctx context.Context, id int64) (domain.Reservation, error) {
	return s.ledger.Get(ctx, id)
}

func (s *QueryService) ListReservationsForGuest(ctx context.Context, guestID int64) ([]domain.Reservation, error) {
	key := guestKey(guestID)
	var out []domain.Reservation
	if ok, _ := s.cache.Get(ctx, key, &out); ok {
		return out, nil
	}
	rs, err := s.ledger.ListByGuest(ctx, guestID)
	if err != nil {
		return nil, err
	}
	// copy before caching so callers can't mutate the cached slice
	out = make([]domain.Reservation, len(rs))
	copy(out, rs)
	_ = s.cache.Set(ctx, key, out, int(s.cacheTTL.Seconds()))
	return out, nil
}

// InvalidateGuest drops a guest's cached reservation list after a write.
func (s *QueryService) InvalidateGuest(ctx context.Context, guestID int64) {
	_ = s.cache.Del(ctx, guestKey(guestID))
}

// InvalidateRooms drops the cached catalog after a seeding run.
func (s *QueryService) InvalidateRooms(ctx context.Context) {
	_ = s.cache.Del(ctx, "rooms:all")
}

func guestKey(guestID int64) string { return fmt.Sprintf("guest:%d:reservations", guestID) }
