package models

import (
	"time"

	"github.com/google/uuid"
)

// Event kinds recorded in the payment event log. These are the service
// analog of contract events and double as the audit trail.
const (
	EventSubscribed      = "subscribed"
	EventUnsubscribed    = "unsubscribed"
	EventFeePaid         = "fee_paid"
	EventNextPayment     = "next_payment_due"
	EventPaymentFailed   = "payment_failed"
	EventRefund          = "refund"
	EventWithdraw        = "withdraw"
	EventPaymasterUpdate = "paymaster_updated"

	EventEscrowCreated   = "escrow_created"
	EventEscrowReleased  = "escrow_released"
	EventEscrowDisputed  = "escrow_disputed"
	EventEscrowResolved  = "escrow_resolved"
	EventEscrowSubCreate = "escrow_subscription_created"
	EventEscrowSubRenew  = "escrow_subscription_renewed"
	EventEscrowSubCancel = "escrow_subscription_cancelled"
	EventEscrowSubPaid   = "escrow_subscription_paid"
)

// PaymentEvent is one entry in the durable event log.
type PaymentEvent struct {
	ID        uuid.UUID  `json:"id" db:"id"`
	Kind      string     `json:"kind" db:"kind"`
	AccountID *uuid.UUID `json:"account_id,omitempty" db:"account_id"`
	PlanID    *uint64    `json:"plan_id,omitempty" db:"plan_id"`
	EscrowID  *uuid.UUID `json:"escrow_id,omitempty" db:"escrow_id"`
	AmountWei uint64     `json:"amount_wei" db:"amount_wei"`
	Detail    string     `json:"detail,omitempty" db:"detail"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
}
