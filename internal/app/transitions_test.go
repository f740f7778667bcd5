package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"roomledger/internal/app"
	"roomledger/internal/availability"
	"roomledger/internal/domain"
	"roomledger/internal/storage/memory"
)

func bookOne(t *testing.T, store *memory.Store, index *availability.Index) domain.Reservation {
	t.Helper()
	seedRoom(t, store, 101)
	alloc := app.NewAllocator(store, store, index, 15*time.Minute)
	res, err := alloc.Book(context.Background(), 101, rng(t, "2030-03-01", "2030-03-05"), 7)
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	return res
}

func TestTransition_Lifecycle(t *testing.T) {
	store := memory.New()
	index := availability.NewIndex()
	trans := app.NewTransitions(store, index)
	res := bookOne(t, store, index)
	ctx := context.Background()

	// pending -> checked_in skips confirmation
	_, err := trans.Apply(ctx, res.ID, domain.StatusCheckedIn, 0)
	te, ok := domain.IsIllegalTransition(err)
	if !ok || te.From != domain.StatusPending || te.To != domain.StatusCheckedIn {
		t.Fatalf("expected illegal pending->checked_in, got %v", err)
	}

	// pending -> confirmed bumps the version
	r1, err := trans.Apply(ctx, res.ID, domain.StatusConfirmed, 0)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if r1.Version != 1 {
		t.Fatalf("expected version 1, got %d", r1.Version)
	}

	// replay with the old version is rejected
	if _, err := trans.Apply(ctx, res.ID, domain.StatusConfirmed, 0); !errors.Is(err, domain.ErrStaleVersion) {
		t.Fatalf("expected ErrStaleVersion, got %v", err)
	}

	r2, err := trans.Apply(ctx, res.ID, domain.StatusCheckedIn, 1)
	if err != nil {
		t.Fatalf("check-in: %v", err)
	}
	r3, err := trans.Apply(ctx, res.ID, domain.StatusCheckedOut, r2.Version)
	if err != nil {
		t.Fatalf("check-out: %v", err)
	}
	if r3.Version != 3 {
		t.Fatalf("version must increment each transition, got %d", r3.Version)
	}

	// checked_out is terminal
	if _, err := trans.Apply(ctx, res.ID, domain.StatusConfirmed, r3.Version); !errors.Is(err, domain.ErrTerminal) {
		t.Fatalf("expected ErrTerminal, got %v", err)
	}
}

func TestTransition_CancelFreesInterval(t *testing.T) {
	store := memory.New()
	index := availability.NewIndex()
	trans := app.NewTransitions(store, index)
	res := bookOne(t, store, index)
	ctx := context.Background()

	if _, err := trans.Apply(ctx, res.ID, domain.StatusCancelled, 0); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if !index.IsFree(101, res.Range) {
		t.Fatalf("cancellation must free the interval")
	}

	// the slot is immediately rebookable
	alloc := app.NewAllocator(store, store, index, 15*time.Minute)
	if _, err := alloc.Book(ctx, 101, res.Range, 9); err != nil {
		t.Fatalf("rebook after cancel: %v", err)
	}
}

func TestTransition_CheckOutFreesInterval(t *testing.T) {
	store := memory.New()
	index := availability.NewIndex()
	trans := app.NewTransitions(store, index)
	res := bookOne(t, store, index)
	ctx := context.Background()

	if _, err := trans.Apply(ctx, res.ID, domain.StatusConfirmed, 0); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if _, err := trans.Apply(ctx, res.ID, domain.StatusCheckedIn, 1); err != nil {
		t.Fatalf("check-in: %v", err)
	}
	if _, err := trans.Apply(ctx, res.ID, domain.StatusCheckedOut, 2); err != nil {
		t.Fatalf("check-out: %v", err)
	}
	if !index.IsFree(101, res.Range) {
		t.Fatalf("check-out must free the interval")
	}
}

func TestTransition_UnknownReservation(t *testing.T) {
	store := memory.New()
	trans := app.NewTransitions(store, availability.NewIndex())
	if _, err := trans.Apply(context.Background(), 42, domain.StatusConfirmed, 0); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestTransition_ConfirmedCannotCheckOut(t *testing.T) {
	store := memory.New()
	index := availability.NewIndex()
	trans := app.NewTransitions(store, index)
	res := bookOne(t, store, index)
	ctx := context.Background()

	if _, err := trans.Apply(ctx, res.ID, domain.StatusConfirmed, 0); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if _, err := trans.Apply(ctx, res.ID, domain.StatusCheckedOut, 1); err == nil {
		t.Fatalf("confirmed->checked_out must be illegal")
	}
}
