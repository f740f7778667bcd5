// Package memory is a process-local Ledger/Catalog used when no MYSQL_DSN is
// configured and throughout the unit tests. Same contract as the MySQL store,
// including version compare-and-set semantics.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"roomledger/internal/domain"
)

type Store struct {
	mu           sync.RWMutex
	nextID       int64
	reservations map[int64]domain.Reservation
	rooms        map[int64]domain.Room
	now          func() time.Time
}

func New() *Store {
	return &Store{
		nextID:       1,
		reservations: make(map[int64]domain.Reservation),
		rooms:        make(map[int64]domain.Room),
		now:          time.Now,
	}
}

// WithClock overrides the timestamp source; tests use it to age holds.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

func (s *Store) Append(ctx context.Context, r domain.Reservation) (domain.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r.ID = s.nextID
	s.nextID++
	r.Version = 0
	r.CreatedAt = s.now()
	r.UpdatedAt = r.CreatedAt
	s.reservations[r.ID] = r
	return r, nil
}

func (s *Store) CompareAndSetStatus(ctx context.Context, id int64, status domain.Status, expectedVersion int64) (domain.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reservations[id]
	if !ok {
		return domain.Reservation{}, domain.ErrNotFound
	}
	if r.Version != expectedVersion {
		return domain.Reservation{}, domain.ErrStaleVersion
	}
	r.Status = status
	r.Version++
	r.UpdatedAt = s.now()
	s.reservations[id] = r
	return r, nil
}

func (s *Store) Get(ctx context.Context, id int64) (domain.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.reservations[id]
	if !ok {
		return domain.Reservation{}, domain.ErrNotFound
	}
	return r, nil
}

func (s *Store) ListByGuest(ctx context.Context, guestID int64) ([]domain.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Reservation
	for _, r := range s.reservations {
		if r.GuestID == guestID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) ListBlocking(ctx context.Context) ([]domain.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Reservation
	for _, r := range s.reservations {
		if r.Status.Blocking() {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) GetRoom(ctx context.Context, id int64) (domain.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rooms[id]
	if !ok {
		return domain.Room{}, domain.ErrRoomNotFound
	}
	return r, nil
}

func (s *Store) ListRooms(ctx context.Context) ([]domain.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Room, 0, len(s.rooms))
	for _, r := range s.rooms {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) UpsertRoom(ctx context.Context, r domain.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms[r.ID] = r
	return nil
}
