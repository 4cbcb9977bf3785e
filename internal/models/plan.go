package models

import "time"

// Plan is a named, priced subscription tier. FeeFiat is fixed-point with 8
// decimal places. IDs are assigned by a database sequence and never reused,
// even after deletion. A plan can only be edited or deleted before it goes
// live; going live is a one-way transition.
type Plan struct {
	ID        uint64    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	FeeFiat   uint64    `json:"fee_fiat" db:"fee_fiat"`
	Live      bool      `json:"live" db:"live"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
