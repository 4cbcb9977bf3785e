package services

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"pulsepay/internal/billing"
	"pulsepay/internal/common"
	"pulsepay/internal/models"
	"pulsepay/internal/repositories"

	"github.com/google/uuid"
)

// SubscriptionService is the recurring-billing state machine. A subscriber
// holds at most one subscription (single-plan model); switching plans
// mutates that binding, prorating mid-cycle. All mutating operations are
// serialized by one mutex, mirroring the one-call-at-a-time execution model
// the accounting invariants assume.
type SubscriptionService interface {
	Subscribe(ctx context.Context, subscriberID uuid.UUID, planID uint64) (*models.Subscription, error)
	Unsubscribe(ctx context.Context, subscriberID uuid.UUID) error
	ChargeExpiredSubscriptions(ctx context.Context) (*SweepReport, error)
	RefundSubscriber(ctx context.Context, subscriberID uuid.UUID, amountWei uint64) error
	Withdraw(ctx context.Context, toAccountID uuid.UUID, amountWei uint64) error
	UpdatePaymaster(ctx context.Context, address string) error

	IsSubscriptionActive(ctx context.Context, subscriberID uuid.UUID) (bool, error)
	GetSubscriptionFee(ctx context.Context, subscriberID uuid.UUID) (uint64, error)
	GetTotalRevenue(ctx context.Context) (uint64, error)
	GetTotalSubscribers(ctx context.Context) (int, error)
	GetSubscriberCount(ctx context.Context, planID uint64) (int, error)

	LoadIndex(ctx context.Context) error
}

// SweepReport summarizes one ChargeExpiredSubscriptions pass.
type SweepReport struct {
	Charged     int       `json:"charged"`
	Deactivated int       `json:"deactivated"`
	Skipped     int       `json:"skipped"`
	NextSweepAt time.Time `json:"next_sweep_at"`
}

type subscriptionService struct {
	planRepo  repositories.PlanRepository
	subRepo   repositories.SubscriptionRepository
	eventRepo repositories.PaymentEventRepository
	treasury  repositories.TreasuryRepository
	sweepRepo repositories.SweepStateRepository
	limits    SpendingLimitService
	gateway   WalletGateway
	oracle    RateOracle
	receipts  ReceiptService

	asset string
	pair  string

	// index mirrors the set of subscribers bound to each plan for O(1)
	// membership and sweep iteration; kept in lockstep with subRepo under mu.
	index map[uint64]*common.IndexedSet[uuid.UUID]
	mu    sync.Mutex
	now   func() time.Time
}

func NewSubscriptionService(
	planRepo repositories.PlanRepository,
	subRepo repositories.SubscriptionRepository,
	eventRepo repositories.PaymentEventRepository,
	treasury repositories.TreasuryRepository,
	sweepRepo repositories.SweepStateRepository,
	limits SpendingLimitService,
	gateway WalletGateway,
	oracle RateOracle,
	receipts ReceiptService,
	asset, pair string,
) SubscriptionService {
	return &subscriptionService{
		planRepo:  planRepo,
		subRepo:   subRepo,
		eventRepo: eventRepo,
		treasury:  treasury,
		sweepRepo: sweepRepo,
		limits:    limits,
		gateway:   gateway,
		oracle:    oracle,
		receipts:  receipts,
		asset:     asset,
		pair:      pair,
		index:     make(map[uint64]*common.IndexedSet[uuid.UUID]),
		now:       time.Now,
	}
}

// LoadIndex rebuilds the per-plan subscriber index from the active rows.
// Call once at startup before serving traffic.
func (s *subscriptionService) LoadIndex(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	subs, err := s.subRepo.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("failed to load subscriber index: %w", err)
	}
	s.index = make(map[uint64]*common.IndexedSet[uuid.UUID])
	for _, sub := range subs {
		s.indexFor(sub.PlanID).Add(sub.SubscriberID)
	}
	log.Printf("Subscriber index loaded: %d active subscriptions across %d plans", len(subs), len(s.index))
	return nil
}

func (s *subscriptionService) Subscribe(ctx context.Context, subscriberID uuid.UUID, planID uint64) (*models.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	plan, err := s.planRepo.GetByID(ctx, planID)
	if err != nil {
		return nil, err
	}
	if !plan.Live {
		return nil, common.ErrPlanNotLive
	}

	sub, err := s.subRepo.GetBySubscriber(ctx, subscriberID)
	if err != nil {
		return nil, err
	}

	rate, err := s.oracle.LatestRate(ctx, s.pair)
	if err != nil {
		return nil, err
	}
	newFee, err := billing.ToNative(plan.FeeFiat, rate)
	if err != nil {
		return nil, err
	}

	now := s.now()
	switch {
	case sub == nil:
		return s.subscribeFresh(ctx, subscriberID, plan, newFee, now)
	case sub.PlanID == planID:
		return s.resumeSamePlan(ctx, sub, plan, newFee, now)
	default:
		return s.switchPlan(ctx, sub, plan, newFee, rate, now)
	}
}

// subscribeFresh charges the full fee up front; any failure aborts the whole
// call with no partial state.
func (s *subscriptionService) subscribeFresh(ctx context.Context, subscriberID uuid.UUID, plan *models.Plan, feeWei uint64, now time.Time) (*models.Subscription, error) {
	if err := s.chargeWallet(ctx, subscriberID, feeWei); err != nil {
		return nil, err
	}
	if err := s.creditRevenue(ctx, feeWei); err != nil {
		s.undoCharge(ctx, subscriberID, feeWei, false)
		return nil, err
	}

	sub := &models.Subscription{
		SubscriberID: subscriberID,
		PlanID:       plan.ID,
		NextChargeAt: billing.AddOneMonthClampDay(now),
		Active:       true,
	}
	if err := s.subRepo.Upsert(ctx, sub); err != nil {
		s.undoCharge(ctx, subscriberID, feeWei, true)
		return nil, err
	}
	s.indexFor(plan.ID).Add(subscriberID)

	s.emit(ctx, models.EventSubscribed, &subscriberID, &plan.ID, 0, plan.Name)
	s.emitCharge(ctx, subscriberID, plan.ID, feeWei, sub.NextChargeAt)
	return sub, nil
}

func (s *subscriptionService) resumeSamePlan(ctx context.Context, sub *models.Subscription, plan *models.Plan, feeWei uint64, now time.Time) (*models.Subscription, error) {
	if sub.Active {
		return nil, common.ErrAlreadySubscribed
	}

	if now.After(sub.NextChargeAt) {
		// Grace window expired: this is a fresh purchase of the same plan.
		if err := s.chargeWallet(ctx, sub.SubscriberID, feeWei); err != nil {
			return nil, err
		}
		if err := s.creditRevenue(ctx, feeWei); err != nil {
			s.undoCharge(ctx, sub.SubscriberID, feeWei, false)
			return nil, err
		}
		sub.NextChargeAt = billing.AddOneMonthClampDay(now)
		sub.Active = true
		if err := s.subRepo.Upsert(ctx, sub); err != nil {
			s.undoCharge(ctx, sub.SubscriberID, feeWei, true)
			return nil, err
		}
		s.indexFor(plan.ID).Add(sub.SubscriberID)
		s.emit(ctx, models.EventSubscribed, &sub.SubscriberID, &plan.ID, 0, plan.Name)
		s.emitCharge(ctx, sub.SubscriberID, plan.ID, feeWei, sub.NextChargeAt)
		return sub, nil
	}

	// Still inside the paid period: resume without charging.
	sub.Active = true
	if err := s.subRepo.Upsert(ctx, sub); err != nil {
		return nil, err
	}
	s.indexFor(plan.ID).Add(sub.SubscriberID)
	s.emit(ctx, models.EventSubscribed, &sub.SubscriberID, &plan.ID, 0, plan.Name+" (resumed)")
	return sub, nil
}

func (s *subscriptionService) switchPlan(ctx context.Context, sub *models.Subscription, newPlan *models.Plan, newFee, rate uint64, now time.Time) (*models.Subscription, error) {
	oldPlanID := sub.PlanID

	if now.After(sub.NextChargeAt) {
		// Old cycle already over: fresh purchase of the new plan.
		if err := s.chargeWallet(ctx, sub.SubscriberID, newFee); err != nil {
			return nil, err
		}
		if err := s.creditRevenue(ctx, newFee); err != nil {
			s.undoCharge(ctx, sub.SubscriberID, newFee, false)
			return nil, err
		}
		sub.PlanID = newPlan.ID
		sub.NextChargeAt = billing.AddOneMonthClampDay(now)
		sub.Active = true
		if err := s.subRepo.Upsert(ctx, sub); err != nil {
			s.undoCharge(ctx, sub.SubscriberID, newFee, true)
			return nil, err
		}
		s.indexFor(oldPlanID).Remove(sub.SubscriberID)
		s.indexFor(newPlan.ID).Add(sub.SubscriberID)
		s.emit(ctx, models.EventUnsubscribed, &sub.SubscriberID, &oldPlanID, 0, "")
		s.emit(ctx, models.EventSubscribed, &sub.SubscriberID, &newPlan.ID, 0, newPlan.Name)
		s.emitCharge(ctx, sub.SubscriberID, newPlan.ID, newFee, sub.NextChargeAt)
		return sub, nil
	}

	// Mid-cycle switch: prorate over the remaining whole days. The cycle
	// anchor (next_charge_at) does not move.
	oldPlan, err := s.planRepo.GetByID(ctx, oldPlanID)
	if err != nil {
		return nil, err
	}
	oldFee, err := billing.ToNative(oldPlan.FeeFiat, rate)
	if err != nil {
		return nil, err
	}

	days := uint64(billing.DaysInMonth(sub.NextChargeAt.Year(), sub.NextChargeAt.Month()))
	remaining := uint64(billing.RemainingDays(now, sub.NextChargeAt))
	oldRemaining := oldFee / days * remaining
	newRemaining := newFee / days * remaining

	var chargedDelta, refundedDelta uint64
	switch {
	case newRemaining > oldRemaining:
		chargedDelta = newRemaining - oldRemaining
		if err := s.chargeWallet(ctx, sub.SubscriberID, chargedDelta); err != nil {
			return nil, err
		}
		if err := s.creditRevenue(ctx, chargedDelta); err != nil {
			s.undoCharge(ctx, sub.SubscriberID, chargedDelta, false)
			return nil, err
		}
	case newRemaining < oldRemaining:
		refundedDelta = oldRemaining - newRemaining
		if err := s.payOut(ctx, sub.SubscriberID, refundedDelta); err != nil {
			return nil, err
		}
	}

	sub.PlanID = newPlan.ID
	sub.Active = true
	if err := s.subRepo.Upsert(ctx, sub); err != nil {
		if chargedDelta > 0 {
			s.undoCharge(ctx, sub.SubscriberID, chargedDelta, true)
		}
		if refundedDelta > 0 {
			s.undoPayout(ctx, sub.SubscriberID, refundedDelta)
		}
		return nil, err
	}
	s.indexFor(oldPlanID).Remove(sub.SubscriberID)
	s.indexFor(newPlan.ID).Add(sub.SubscriberID)
	s.emit(ctx, models.EventUnsubscribed, &sub.SubscriberID, &oldPlanID, 0, "")
	s.emit(ctx, models.EventSubscribed, &sub.SubscriberID, &newPlan.ID, 0, newPlan.Name)
	if chargedDelta > 0 {
		s.emitCharge(ctx, sub.SubscriberID, newPlan.ID, chargedDelta, sub.NextChargeAt)
	}
	if refundedDelta > 0 {
		s.emit(ctx, models.EventRefund, &sub.SubscriberID, &newPlan.ID, refundedDelta, "plan switch proration")
	}
	return sub, nil
}

// Unsubscribe deactivates but never deletes; next_charge_at is kept so a
// resume inside the paid period costs nothing.
func (s *subscriptionService) Unsubscribe(ctx context.Context, subscriberID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, err := s.subRepo.GetBySubscriber(ctx, subscriberID)
	if err != nil {
		return err
	}
	if sub == nil {
		return common.ErrInvalidPlan
	}
	if !sub.Active {
		return common.ErrNotSubscribed
	}

	sub.Active = false
	if err := s.subRepo.Upsert(ctx, sub); err != nil {
		return err
	}
	s.indexFor(sub.PlanID).Remove(subscriberID)
	s.emit(ctx, models.EventUnsubscribed, &subscriberID, &sub.PlanID, 0, "")
	return nil
}

// ChargeExpiredSubscriptions walks every live plan's subscriber index and
// charges each due subscriber. One payer's failure deactivates only that
// subscription and never aborts the batch. After a full pass the gate
// advances to the next UTC midnight so late runs do not drift the schedule.
func (s *subscriptionService) ChargeExpiredSubscriptions(ctx context.Context) (*SweepReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	state, err := s.sweepRepo.Get(ctx)
	if err != nil {
		return nil, err
	}
	if now.Before(state.NextSweepAt) {
		return nil, common.ErrSweepNotDue
	}

	rate, err := s.oracle.LatestRate(ctx, s.pair)
	if err != nil {
		return nil, err
	}
	plans, err := s.planRepo.ListLive(ctx)
	if err != nil {
		return nil, err
	}

	report := &SweepReport{}
	for _, plan := range plans {
		feeWei, err := billing.ToNative(plan.FeeFiat, rate)
		if err != nil {
			log.Printf("Sweep: skipping plan %d, fee conversion failed: %v", plan.ID, err)
			continue
		}
		set, ok := s.index[plan.ID]
		if !ok {
			continue
		}
		for _, subscriberID := range set.Items() {
			s.sweepOne(ctx, subscriberID, plan.ID, feeWei, now, report)
		}
	}

	state.LastSweepAt = now
	state.NextSweepAt = billing.NextUTCMidnight(now)
	if err := s.sweepRepo.Set(ctx, state); err != nil {
		return nil, err
	}
	report.NextSweepAt = state.NextSweepAt
	log.Printf("Sweep complete: %d charged, %d deactivated, %d skipped; next at %s",
		report.Charged, report.Deactivated, report.Skipped, state.NextSweepAt.Format(time.RFC3339))
	return report, nil
}

// sweepOne attempts a single subscriber's charge. Errors are captured here,
// never propagated to the sweep loop.
func (s *subscriptionService) sweepOne(ctx context.Context, subscriberID uuid.UUID, planID uint64, feeWei uint64, now time.Time, report *SweepReport) {
	sub, err := s.subRepo.GetBySubscriber(ctx, subscriberID)
	if err != nil || sub == nil {
		log.Printf("Sweep: failed to load subscription for %s: %v", subscriberID, err)
		report.Skipped++
		return
	}
	if !sub.Active || now.Before(sub.NextChargeAt) {
		report.Skipped++
		return
	}

	if err := s.chargeWallet(ctx, subscriberID, feeWei); err != nil {
		sub.Active = false
		if uerr := s.subRepo.Upsert(ctx, sub); uerr != nil {
			log.Printf("Sweep: failed to deactivate %s: %v", subscriberID, uerr)
		}
		report.Deactivated++
		s.emit(ctx, models.EventPaymentFailed, &subscriberID, &planID, feeWei, err.Error())
		return
	}

	if err := s.creditRevenue(ctx, feeWei); err != nil {
		log.Printf("Sweep: treasury credit failed for %s: %v", subscriberID, err)
	}
	sub.NextChargeAt = billing.AddOneMonthClampDay(sub.NextChargeAt)
	if err := s.subRepo.Upsert(ctx, sub); err != nil {
		log.Printf("Sweep: failed to advance %s: %v", subscriberID, err)
		report.Skipped++
		return
	}
	report.Charged++
	s.emitCharge(ctx, subscriberID, planID, feeWei, sub.NextChargeAt)
}

// RefundSubscriber is the owner-triggered manual refund out of custody.
func (s *subscriptionService) RefundSubscriber(ctx context.Context, subscriberID uuid.UUID, amountWei uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if amountWei == 0 {
		return common.ErrInvalidAmount
	}
	sub, err := s.subRepo.GetBySubscriber(ctx, subscriberID)
	if err != nil {
		return err
	}
	if sub == nil {
		return common.ErrInvalidPlan
	}

	if err := s.payOut(ctx, subscriberID, amountWei); err != nil {
		return err
	}
	s.emit(ctx, models.EventRefund, &subscriberID, &sub.PlanID, amountWei, "manual refund")
	return nil
}

// Withdraw moves custody funds to the given account's wallet.
func (s *subscriptionService) Withdraw(ctx context.Context, toAccountID uuid.UUID, amountWei uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if amountWei == 0 {
		return common.ErrInvalidAmount
	}
	if err := s.payOut(ctx, toAccountID, amountWei); err != nil {
		return err
	}
	s.emit(ctx, models.EventWithdraw, &toAccountID, nil, amountWei, "")
	return nil
}

func (s *subscriptionService) UpdatePaymaster(ctx context.Context, address string) error {
	if address == "" {
		return common.ErrInvalidAmount
	}
	if err := s.gateway.UpdatePaymaster(ctx, address); err != nil {
		return fmt.Errorf("failed to update paymaster: %w", err)
	}
	s.emit(ctx, models.EventPaymasterUpdate, nil, nil, 0, address)
	return nil
}

func (s *subscriptionService) IsSubscriptionActive(ctx context.Context, subscriberID uuid.UUID) (bool, error) {
	sub, err := s.subRepo.GetBySubscriber(ctx, subscriberID)
	if err != nil {
		return false, err
	}
	return sub != nil && sub.Active, nil
}

// GetSubscriptionFee returns the fiat fee of the subscriber's current plan.
func (s *subscriptionService) GetSubscriptionFee(ctx context.Context, subscriberID uuid.UUID) (uint64, error) {
	sub, err := s.subRepo.GetBySubscriber(ctx, subscriberID)
	if err != nil {
		return 0, err
	}
	if sub == nil {
		return 0, common.ErrInvalidPlan
	}
	plan, err := s.planRepo.GetByID(ctx, sub.PlanID)
	if err != nil {
		return 0, err
	}
	return plan.FeeFiat, nil
}

func (s *subscriptionService) GetTotalRevenue(ctx context.Context) (uint64, error) {
	t, err := s.treasury.Get(ctx, s.asset)
	if err != nil {
		return 0, err
	}
	return t.RevenueWei, nil
}

func (s *subscriptionService) GetTotalSubscribers(ctx context.Context) (int, error) {
	return s.subRepo.CountActive(ctx)
}

func (s *subscriptionService) GetSubscriberCount(ctx context.Context, planID uint64) (int, error) {
	if _, err := s.planRepo.GetByID(ctx, planID); err != nil {
		return 0, err
	}
	return s.subRepo.CountActiveByPlan(ctx, planID)
}

// chargeWallet reserves against the payer's daily limit, then asks the
// gateway to pull from the wallet. A gateway failure releases the
// reservation and surfaces as InsufficientBalance.
func (s *subscriptionService) chargeWallet(ctx context.Context, payerID uuid.UUID, amountWei uint64) error {
	if err := s.limits.CheckAndConsume(ctx, payerID, s.asset, amountWei); err != nil {
		return err
	}
	if err := s.gateway.ChargeWallet(ctx, payerID, amountWei); err != nil {
		if rerr := s.limits.Release(ctx, payerID, s.asset, amountWei); rerr != nil {
			log.Printf("Failed to release limit reservation for %s: %v", payerID, rerr)
		}
		return fmt.Errorf("%w: %v", common.ErrInsufficientBalance, err)
	}
	return nil
}

// undoCharge reverses a completed wallet charge after a later write in the
// same operation fails: the treasury credit is backed out (when it happened)
// and the amount is transferred back to the payer, so a payer never pays for
// state that was not persisted.
func (s *subscriptionService) undoCharge(ctx context.Context, payerID uuid.UUID, amountWei uint64, credited bool) {
	if credited {
		if err := s.treasury.Debit(ctx, s.asset, amountWei, true); err != nil {
			log.Printf("Failed to back out treasury credit for %s: %v", payerID, err)
		}
	}
	if err := s.gateway.Transfer(ctx, payerID, amountWei); err != nil {
		log.Printf("Failed to return %d wei to %s after aborted charge: %v", amountWei, payerID, err)
	}
}

// undoPayout claws a refund back into custody after a later write fails.
func (s *subscriptionService) undoPayout(ctx context.Context, accountID uuid.UUID, amountWei uint64) {
	if err := s.gateway.ChargeWallet(ctx, accountID, amountWei); err != nil {
		log.Printf("Failed to recover %d wei from %s after aborted refund: %v", amountWei, accountID, err)
		return
	}
	if err := s.treasury.Credit(ctx, s.asset, amountWei, false); err != nil {
		log.Printf("Failed to restore custody after recovered refund: %v", err)
	}
}

// payOut debits custody first, then transfers; the debit guards the balance
// and a failed transfer is compensated before returning.
func (s *subscriptionService) payOut(ctx context.Context, toAccountID uuid.UUID, amountWei uint64) error {
	if err := s.treasury.Debit(ctx, s.asset, amountWei, false); err != nil {
		return err
	}
	if err := s.gateway.Transfer(ctx, toAccountID, amountWei); err != nil {
		if cerr := s.treasury.Credit(ctx, s.asset, amountWei, false); cerr != nil {
			log.Printf("Failed to restore treasury after transfer failure: %v", cerr)
		}
		return fmt.Errorf("%w: %v", common.ErrInsufficientBalance, err)
	}
	return nil
}

func (s *subscriptionService) creditRevenue(ctx context.Context, amountWei uint64) error {
	return s.treasury.Credit(ctx, s.asset, amountWei, true)
}

func (s *subscriptionService) indexFor(planID uint64) *common.IndexedSet[uuid.UUID] {
	set, ok := s.index[planID]
	if !ok {
		set = common.NewIndexedSet[uuid.UUID]()
		s.index[planID] = set
	}
	return set
}

// emit appends to the durable event log; failures are logged, not fatal, so
// accounting state never depends on the log write.
func (s *subscriptionService) emit(ctx context.Context, kind string, accountID *uuid.UUID, planID *uint64, amountWei uint64, detail string) {
	event := &models.PaymentEvent{
		Kind:      kind,
		AccountID: accountID,
		PlanID:    planID,
		AmountWei: amountWei,
		Detail:    detail,
		CreatedAt: s.now(),
	}
	if err := s.eventRepo.Append(ctx, event); err != nil {
		log.Printf("Failed to append %s event: %v", kind, err)
	}
}

// emitCharge records fee-paid plus next-payment events and archives a receipt.
func (s *subscriptionService) emitCharge(ctx context.Context, subscriberID uuid.UUID, planID uint64, amountWei uint64, nextChargeAt time.Time) {
	s.emit(ctx, models.EventFeePaid, &subscriberID, &planID, amountWei, "")
	s.emit(ctx, models.EventNextPayment, &subscriberID, &planID, 0, nextChargeAt.Format(time.RFC3339))
	if s.receipts != nil {
		receipt := &models.PaymentEvent{
			ID:        uuid.New(),
			Kind:      models.EventFeePaid,
			AccountID: &subscriberID,
			PlanID:    &planID,
			AmountWei: amountWei,
			CreatedAt: s.now(),
		}
		if err := s.receipts.Archive(ctx, receipt); err != nil {
			log.Printf("Failed to archive receipt for %s: %v", subscriberID, err)
		}
	}
}
