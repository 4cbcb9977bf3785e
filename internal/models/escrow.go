package models

import (
	"time"

	"github.com/google/uuid"
)

// Escrow holds a buyer's deposit for a seller until the buyer releases it or
// a dispute is arbitrated. Released is terminal: once set, no further
// mutation of the entry is permitted.
type Escrow struct {
	ID              uuid.UUID  `json:"id" db:"id"`
	BuyerID         uuid.UUID  `json:"buyer_id" db:"buyer_id"`
	SellerID        uuid.UUID  `json:"seller_id" db:"seller_id"`
	AmountWei       uint64     `json:"amount_wei" db:"amount_wei"`
	Released        bool       `json:"released" db:"released"`
	Disputed        bool       `json:"disputed" db:"disputed"`
	DisputeDeadline time.Time  `json:"dispute_deadline" db:"dispute_deadline"`
	DisputeWinner   *uuid.UUID `json:"dispute_winner,omitempty" db:"dispute_winner"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at" db:"updated_at"`
}

// EscrowSubscription is the escrow-funded recurring-payment variant: the
// subscriber deposits a period's price up front, renews only inside the
// configured renewal window, and may cancel for a prorated refund unless the
// final lockout before expiry has begun. Payments on behalf of the
// subscriber are restricted to an allow-list of intermediaries.
type EscrowSubscription struct {
	ID            uuid.UUID   `json:"id" db:"id"`
	SubscriberID  uuid.UUID   `json:"subscriber_id" db:"subscriber_id"`
	PriceWei      uint64      `json:"price_wei" db:"price_wei"`
	PeriodDays    int         `json:"period_days" db:"period_days"`
	ExpiresAt     time.Time   `json:"expires_at" db:"expires_at"`
	AllowedPayers []uuid.UUID `json:"allowed_payers" db:"allowed_payers"`
	Cancelled     bool        `json:"cancelled" db:"cancelled"`
	CreatedAt     time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at" db:"updated_at"`
}
