// Package availability keeps a per-room set of occupied stay intervals derived
// from the reservation ledger. It is never the source of truth: it can always
// be rebuilt by replaying the ledger's blocking records.
package availability

import (
	"sort"
	"sync"

	"roomledger/internal/domain"
)

// Interval is one occupied [CheckIn, CheckOut) slot owned by a reservation.
// ReservationID 0 marks an uncommitted hold that is not yet in the ledger.
type Interval struct {
	Range         domain.DateRange
	ReservationID int64
}

// roomCalendar holds one room's intervals sorted by check-in. Intervals never
// overlap; that invariant is enforced on every insert under the room lock.
type roomCalendar struct {
	mu    sync.Mutex
	spans []Interval
}

// Index answers "is room R free for [in, out)?" and claims intervals
// atomically. Rooms do not contend with each other: each room carries its own
// lock, the outer lock only guards the room map.
type Index struct {
	mu    sync.RWMutex
	rooms map[int64]*roomCalendar
}

func NewIndex() *Index {
	return &Index{rooms: make(map[int64]*roomCalendar)}
}

func (ix *Index) room(id int64) *roomCalendar {
	ix.mu.RLock()
	rc := ix.rooms[id]
	ix.mu.RUnlock()
	if rc != nil {
		return rc
	}
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if rc = ix.rooms[id]; rc == nil {
		rc = &roomCalendar{}
		ix.rooms[id] = rc
	}
	return rc
}

// conflicts returns the ids of intervals overlapping rng. Must be called with
// the room lock held. Search is binary on the sorted span slice.
func (rc *roomCalendar) conflicts(rng domain.DateRange) []int64 {
	// first span whose checkout is after rng.CheckIn; earlier spans end too soon to overlap
	i := sort.Search(len(rc.spans), func(i int) bool {
		return rc.spans[i].Range.CheckOut.After(rng.CheckIn)
	})
	var ids []int64
	for ; i < len(rc.spans) && rc.spans[i].Range.CheckIn.Before(rng.CheckOut); i++ {
		ids = append(ids, rc.spans[i].ReservationID)
	}
	return ids
}

func (rc *roomCalendar) insert(iv Interval) {
	i := sort.Search(len(rc.spans), func(i int) bool {
		return rc.spans[i].Range.CheckIn.After(iv.Range.CheckIn)
	})
	rc.spans = append(rc.spans, Interval{})
	copy(rc.spans[i+1:], rc.spans[i:])
	rc.spans[i] = iv
}

// IsFree reports whether rng does not overlap any occupied interval of roomID.
// Read-only; a concurrent Reserve may still win the slot afterwards.
func (ix *Index) IsFree(roomID int64, rng domain.DateRange) bool {
	rc := ix.room(roomID)
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return len(rc.conflicts(rng)) == 0
}

// Reserve atomically checks rng against roomID's calendar and claims it for
// reservationID. No concurrent Reserve for an overlapping range can also
// succeed. Used on ledger replay, where the owning id is already known.
func (ix *Index) Reserve(roomID int64, rng domain.DateRange, reservationID int64) error {
	rc := ix.room(roomID)
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if ids := rc.conflicts(rng); len(ids) > 0 {
		return &domain.UnavailableError{RoomID: roomID, ConflictIDs: ids}
	}
	rc.insert(Interval{Range: rng, ReservationID: reservationID})
	return nil
}

// Hold claims rng before the ledger has assigned a reservation id. The slot
// blocks competing bookings immediately; the caller must Commit with the
// assigned id once the ledger append succeeds, or Rollback if it fails.
func (ix *Index) Hold(roomID int64, rng domain.DateRange) (*Hold, error) {
	rc := ix.room(roomID)
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if ids := rc.conflicts(rng); len(ids) > 0 {
		return nil, &domain.UnavailableError{RoomID: roomID, ConflictIDs: ids}
	}
	rc.insert(Interval{Range: rng})
	return &Hold{ix: ix, roomID: roomID, rng: rng}, nil
}

// Release removes the interval owned by reservationID from roomID's calendar.
// A second release of the same id is a no-op: cancellations may be retried.
func (ix *Index) Release(roomID, reservationID int64) {
	rc := ix.room(roomID)
	rc.mu.Lock()
	defer rc.mu.Unlock()
	for i, iv := range rc.spans {
		if iv.ReservationID == reservationID && reservationID != 0 {
			rc.spans = append(rc.spans[:i], rc.spans[i+1:]...)
			return
		}
	}
}

// IntervalsFor returns a copy of roomID's occupied intervals in check-in order.
func (ix *Index) IntervalsFor(roomID int64) []Interval {
	rc := ix.room(roomID)
	rc.mu.Lock()
	defer rc.mu.Unlock()
	out := make([]Interval, len(rc.spans))
	copy(out, rc.spans)
	return out
}

// Hold is a claimed-but-unowned interval, the bridge between the atomic index
// claim and the ledger append that assigns the reservation id.
type Hold struct {
	ix     *Index
	roomID int64
	rng    domain.DateRange
	done   bool
}

// Commit tags the held interval with its reservation id.
func (h *Hold) Commit(reservationID int64) {
	if h.done {
		return
	}
	h.done = true
	rc := h.ix.room(h.roomID)
	rc.mu.Lock()
	defer rc.mu.Unlock()
	for i, iv := range rc.spans {
		if iv.ReservationID == 0 && iv.Range == h.rng {
			rc.spans[i].ReservationID = reservationID
			return
		}
	}
}

// Rollback drops the held interval, freeing the slot.
func (h *Hold) Rollback() {
	if h.done {
		return
	}
	h.done = true
	rc := h.ix.room(h.roomID)
	rc.mu.Lock()
	defer rc.mu.Unlock()
	for i, iv := range rc.spans {
		if iv.ReservationID == 0 && iv.Range == h.rng {
			rc.spans = append(rc.spans[:i], rc.spans[i+1:]...)
			return
		}
	}
}
