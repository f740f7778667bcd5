package app

import (
	"context"

	"github.com/rs/zerolog/log"

	"roomledger/internal/availability"
	"roomledger/internal/domain"
)

// legalEdges is the reservation lifecycle. Anything not listed is rejected.
var legalEdges = map[domain.Status][]domain.Status{
	domain.StatusPending:   {domain.StatusConfirmed, domain.StatusCancelled},
	domain.StatusConfirmed: {domain.StatusCheckedIn, domain.StatusCancelled},
	domain.StatusCheckedIn: {domain.StatusCheckedOut},
}

func legal(from, to domain.Status) bool {
	for _, s := range legalEdges[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Transitions drives the reservation lifecycle with optimistic concurrency:
// the caller supplies the version it read, the ledger compare-and-sets it.
// No locks; a raced caller re-reads and retries.
type Transitions struct {
	ledger domain.Ledger
	index  *availability.Index
}

func NewTransitions(l domain.Ledger, ix *availability.Index) *Transitions {
	return &Transitions{ledger: l, index: ix}
}

// Apply moves reservation id to target iff the stored version matches
// expectedVersion and the edge is legal. Entering cancelled or checked_out
// frees the room interval.
func (t *Transitions) Apply(ctx context.Context, id int64, target domain.Status, expectedVersion int64) (domain.Reservation, error) {
	cur, err := t.ledger.Get(ctx, id)
	if err != nil {
		return domain.Reservation{}, err
	}
	if cur.Status == domain.StatusCheckedOut {
		return domain.Reservation{}, domain.ErrTerminal
	}
	if cur.Version != expectedVersion {
		return domain.Reservation{}, domain.ErrStaleVersion
	}
	if !legal(cur.Status, target) {
		return domain.Reservation{}, &domain.TransitionError{From: cur.Status, To: target}
	}

	updated, err := t.ledger.CompareAndSetStatus(ctx, id, target, expectedVersion)
	if err != nil {
		return domain.Reservation{}, err
	}
	if target == domain.StatusCancelled || target == domain.StatusCheckedOut {
		t.index.Release(updated.RoomID, updated.ID)
	}

	log.Info().
		Int64("reservation", id).
		Str("from", string(cur.Status)).
		Str("to", string(target)).
		Int64("version", updated.Version).
		Msg("reservation transitioned")
	return updated, nil
}
