package common

import (
	"errors"
	"net/http"
)

// Error taxonomy for the billing and escrow ledgers. Handlers translate
// these into HTTP responses; services wrap them with context via %w.
var (
	// Authorization
	ErrUnauthorized = errors.New("caller is not authorized for this operation")
	ErrOnlyOwner    = errors.New("operation is restricted to the owner principal")

	// Validation
	ErrInvalidPlan     = errors.New("plan does not exist")
	ErrPlanNotLive     = errors.New("plan is not live")
	ErrPlanAlreadyLive = errors.New("plan is already live")
	ErrInvalidAmount   = errors.New("amount is invalid")
	ErrInvalidRate     = errors.New("exchange rate is invalid")
	ErrInvalidAccount  = errors.New("account does not exist")

	// Economic
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInsufficientPayment = errors.New("payment amount is insufficient")
	ErrLimitExceeded       = errors.New("spending limit exceeded")

	// Timing
	ErrDisputeWindowClosed = errors.New("dispute window has closed")
	ErrRenewalWindowClosed = errors.New("renewal window is not open")
	ErrCancelPeriodActive  = errors.New("cancellation is locked this close to expiry")
	ErrSweepNotDue         = errors.New("billing sweep interval has not elapsed")
	ErrLimitUpdateConflict = errors.New("spending limit cannot change mid-window")

	// State
	ErrAlreadySubscribed = errors.New("already subscribed to this plan")
	ErrNotSubscribed     = errors.New("subscription is not active")
	ErrEscrowNotFound    = errors.New("escrow does not exist")
	ErrEscrowReleased    = errors.New("escrow has already been released")
	ErrEscrowDisputed    = errors.New("escrow is under dispute")
	ErrEscrowNotDisputed = errors.New("escrow is not under dispute")
)

// HTTPStatus maps a ledger error to the HTTP status its handler should
// return. Unknown errors are treated as internal.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrUnauthorized), errors.Is(err, ErrOnlyOwner):
		return http.StatusForbidden
	case errors.Is(err, ErrInvalidPlan), errors.Is(err, ErrEscrowNotFound), errors.Is(err, ErrInvalidAccount):
		return http.StatusNotFound
	case errors.Is(err, ErrPlanNotLive), errors.Is(err, ErrPlanAlreadyLive),
		errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrInvalidRate):
		return http.StatusBadRequest
	case errors.Is(err, ErrInsufficientBalance), errors.Is(err, ErrInsufficientPayment),
		errors.Is(err, ErrLimitExceeded):
		return http.StatusPaymentRequired
	case errors.Is(err, ErrDisputeWindowClosed), errors.Is(err, ErrRenewalWindowClosed),
		errors.Is(err, ErrCancelPeriodActive), errors.Is(err, ErrSweepNotDue),
		errors.Is(err, ErrLimitUpdateConflict):
		return http.StatusConflict
	case errors.Is(err, ErrAlreadySubscribed), errors.Is(err, ErrNotSubscribed),
		errors.Is(err, ErrEscrowReleased), errors.Is(err, ErrEscrowDisputed),
		errors.Is(err, ErrEscrowNotDisputed):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
