package domain

type Room struct {
	ID          int64
	Type        string
	Name        *string
	Capacity    int
	NightlyRate float64
	Available   bool // sellable flag from the catalog, not a calendar state
}
