package domain

import (
	"fmt"
	"time"
)

// DateFormat is the wire/storage format for stay dates.
const DateFormat = "2006-01-02"

// DateRange is a half-open stay interval [CheckIn, CheckOut).
// A checkout on day N never conflicts with a check-in on day N.
type DateRange struct {
	CheckIn  time.Time
	CheckOut time.Time
}

func NewDateRange(checkIn, checkOut time.Time) (DateRange, error) {
	r := DateRange{CheckIn: day(checkIn), CheckOut: day(checkOut)}
	if !r.CheckIn.Before(r.CheckOut) {
		return DateRange{}, ErrInvalidRange
	}
	return r, nil
}

// ParseDateRange parses "2006-01-02" check-in/check-out strings.
func ParseDateRange(checkIn, checkOut string) (DateRange, error) {
	ci, err := time.ParseInLocation(DateFormat, checkIn, time.UTC)
	if err != nil {
		return DateRange{}, ErrInvalidRange
	}
	co, err := time.ParseInLocation(DateFormat, checkOut, time.UTC)
	if err != nil {
		return DateRange{}, ErrInvalidRange
	}
	return NewDateRange(ci, co)
}

func (r DateRange) Overlaps(o DateRange) bool {
	return r.CheckIn.Before(o.CheckOut) && o.CheckIn.Before(r.CheckOut)
}

func (r DateRange) Nights() int {
	return int(r.CheckOut.Sub(r.CheckIn).Hours() / 24)
}

func (r DateRange) String() string {
	return fmt.Sprintf("[%s, %s)", r.CheckIn.Format(DateFormat), r.CheckOut.Format(DateFormat))
}

// day truncates to UTC midnight so ranges compare date-wise regardless of input zone.
func day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

type Status string

const (
	StatusPending    Status = "pending"
	StatusConfirmed  Status = "confirmed"
	StatusCheckedIn  Status = "checked_in"
	StatusCheckedOut Status = "checked_out"
	StatusCancelled  Status = "cancelled"
)

// ParseStatus validates a wire status string.
func ParseStatus(s string) (Status, bool) {
	switch Status(s) {
	case StatusPending, StatusConfirmed, StatusCheckedIn, StatusCheckedOut, StatusCancelled:
		return Status(s), true
	}
	return "", false
}

// Blocking reports whether a reservation in this status occupies its room interval.
func (s Status) Blocking() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCheckedIn:
		return true
	}
	return false
}

// Terminal statuses admit no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCheckedOut || s == StatusCancelled
}

type Reservation struct {
	ID        int64
	RoomID    int64
	GuestID   int64
	Range     DateRange
	Status    Status
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Expired reports whether a pending hold has outlived ttl as of now.
func (r Reservation) Expired(now time.Time, ttl time.Duration) bool {
	return r.Status == StatusPending && now.Sub(r.CreatedAt) >= ttl
}
