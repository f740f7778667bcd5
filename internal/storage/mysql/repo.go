package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"roomledger/internal/domain"
)

type Repo struct{ db *sql.DB }

func New(db *sql.DB) *Repo { return &Repo{db: db} }

func valStr(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}

func (r *Repo) Append(ctx context.Context, res domain.Reservation) (domain.Reservation, error) {
	out, err := r.db.ExecContext(ctx, insertReservationSQL,
		res.RoomID,
		res.GuestID,
		res.Range.CheckIn.Format(domain.DateFormat),
		res.Range.CheckOut.Format(domain.DateFormat),
		string(res.Status),
	)
	if err != nil {
		return domain.Reservation{}, fmt.Errorf("insert reservation: %w", err)
	}
	id, err := out.LastInsertId()
	if err != nil {
		return domain.Reservation{}, fmt.Errorf("last insert id: %w", err)
	}
	// read back to pick up DB-assigned timestamps
	return r.Get(ctx, id)
}

func (r *Repo) CompareAndSetStatus(ctx context.Context, id int64, status domain.Status, expectedVersion int64) (domain.Reservation, error) {
	out, err := r.db.ExecContext(ctx, casStatusSQL, string(status), id, expectedVersion)
	if err != nil {
		return domain.Reservation{}, fmt.Errorf("cas status: %w", err)
	}
	n, err := out.RowsAffected()
	if err != nil {
		return domain.Reservation{}, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		// no row moved: either the id is unknown or the version raced
		if _, gerr := r.Get(ctx, id); gerr != nil {
			return domain.Reservation{}, gerr
		}
		return domain.Reservation{}, domain.ErrStaleVersion
	}
	return r.Get(ctx, id)
}

func (r *Repo) Get(ctx context.Context, id int64) (domain.Reservation, error) {
	return scanReservation(r.db.QueryRowContext(ctx, selectReservationSQL, id))
}

func (r *Repo) ListByGuest(ctx context.Context, guestID int64) ([]domain.Reservation, error) {
	rows, err := r.db.QueryContext(ctx, selectByGuestSQL, guestID)
	if err != nil {
		return nil, fmt.Errorf("list by guest: %w", err)
	}
	defer rows.Close()
	return scanReservations(rows)
}

func (r *Repo) ListBlocking(ctx context.Context) ([]domain.Reservation, error) {
	rows, err := r.db.QueryContext(ctx, selectBlockingSQL)
	if err != nil {
		return nil, fmt.Errorf("list blocking: %w", err)
	}
	defer rows.Close()
	return scanReservations(rows)
}

type rowScanner interface{ Scan(dst ...any) error }

func scanReservation(row rowScanner) (domain.Reservation, error) {
	var res domain.Reservation
	var checkIn, checkOut time.Time
	var status string
	var createdAt, updatedAt sql.NullTime
	err := row.Scan(
		&res.ID,
		&res.RoomID,
		&res.GuestID,
		&checkIn,
		&checkOut,
		&status,
		&res.Version,
		&createdAt,
		&updatedAt,
	)
	if err == sql.ErrNoRows {
		return domain.Reservation{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Reservation{}, fmt.Errorf("scan reservation: %w", err)
	}
	rng, err := domain.NewDateRange(checkIn, checkOut)
	if err != nil {
		return domain.Reservation{}, fmt.Errorf("stored range invalid: %w", err)
	}
	res.Range = rng
	res.Status = domain.Status(status)
	if createdAt.Valid {
		res.CreatedAt = createdAt.Time
	}
	if updatedAt.Valid {
		res.UpdatedAt = updatedAt.Time
	}
	return res, nil
}

func scanReservations(rows *sql.Rows) ([]domain.Reservation, error) {
	var out []domain.Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Repo) GetRoom(ctx context.Context, id int64) (domain.Room, error) {
	row := r.db.QueryRowContext(ctx, selectRoomSQL, id)
	rm, err := scanRoom(row)
	if err == sql.ErrNoRows {
		return domain.Room{}, domain.ErrRoomNotFound
	}
	return rm, err
}

func (r *Repo) ListRooms(ctx context.Context) ([]domain.Room, error) {
	rows, err := r.db.QueryContext(ctx, selectRoomsSQL)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	defer rows.Close()
	var out []domain.Room
	for rows.Next() {
		rm, err := scanRoom(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rm)
	}
	return out, rows.Err()
}

func (r *Repo) UpsertRoom(ctx context.Context, rm domain.Room) error {
	_, err := r.db.ExecContext(ctx, upsertRoomSQL,
		rm.ID,
		rm.Type,
		valStr(rm.Name),
		rm.Capacity,
		rm.NightlyRate,
		rm.Available,
	)
	return err
}

func scanRoom(row rowScanner) (domain.Room, error) {
	var rm domain.Room
	var name sql.NullString
	if err := row.Scan(&rm.ID, &rm.Type, &name, &rm.Capacity, &rm.NightlyRate, &rm.Available); err != nil {
		return domain.Room{}, err
	}
	if name.Valid {
		n := name.String
		rm.Name = &n
	}
	return rm, nil
}
