package models

import (
	"time"

	"github.com/google/uuid"
)

// Subscription binds a subscriber to a single plan (one row per subscriber).
// Active flips to false on a failed charge or an explicit unsubscribe; the
// row is kept so a subscriber can resume within the period already paid for.
type Subscription struct {
	SubscriberID uuid.UUID `json:"subscriber_id" db:"subscriber_id"`
	PlanID       uint64    `json:"plan_id" db:"plan_id"`
	NextChargeAt time.Time `json:"next_charge_at" db:"next_charge_at"`
	Active       bool      `json:"active" db:"active"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// SweepState is the single-row schedule gate for the billing sweep. The
// sweep refuses to run before NextSweepAt and, after a full pass, advances
// it to the next UTC midnight.
type SweepState struct {
	NextSweepAt time.Time `json:"next_sweep_at" db:"next_sweep_at"`
	LastSweepAt time.Time `json:"last_sweep_at" db:"last_sweep_at"`
}
