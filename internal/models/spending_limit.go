package models

import (
	"time"

	"github.com/google/uuid"
)

// SpendingLimit is a rolling daily cap on value pulled from a payer's wallet
// for one asset. Available never exceeds Cap; it resets to Cap when a debit
// is attempted after WindowResetAt. A disabled limit imposes no restriction.
type SpendingLimit struct {
	PayerID       uuid.UUID `json:"payer_id" db:"payer_id"`
	Asset         string    `json:"asset" db:"asset"`
	Cap           uint64    `json:"cap" db:"cap"`
	Available     uint64    `json:"available" db:"available"`
	WindowResetAt time.Time `json:"window_reset_at" db:"window_reset_at"`
	Enabled       bool      `json:"enabled" db:"enabled"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}
