package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"pulsepay/internal/common"
	"pulsepay/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Rate of $2000.00000000 per token; a $10.00000000 fee converts to 5e15 wei.
const (
	testRate   = 2000_0000_0000
	tenDollars = 10_0000_0000
	tenDolWei  = 5_000_000_000_000_000
)

type subFixture struct {
	svc      *subscriptionService
	planRepo *fakePlanRepo
	subRepo  *fakeSubscriptionRepo
	events   *fakeEventRepo
	treasury *fakeTreasuryRepo
	sweep    *fakeSweepStateRepo
	gateway  *fakeGateway
}

func newSubFixture(t *testing.T, now time.Time) *subFixture {
	t.Helper()
	f := &subFixture{
		planRepo: newFakePlanRepo(),
		subRepo:  newFakeSubscriptionRepo(),
		events:   newFakeEventRepo(),
		treasury: newFakeTreasuryRepo(),
		sweep:    &fakeSweepStateRepo{},
		gateway:  newFakeGateway(),
	}
	svc := NewSubscriptionService(
		f.planRepo, f.subRepo, f.events, f.treasury, f.sweep,
		noopLimits{}, f.gateway, &fixedOracle{rate: testRate}, nil,
		"ETH", "ETH/USD",
	)
	f.svc = svc.(*subscriptionService)
	f.svc.now = atTime(now)
	return f
}

func (f *subFixture) livePlan(t *testing.T, name string, feeFiat uint64) *models.Plan {
	t.Helper()
	plan, err := f.planRepo.Create(context.Background(), name, feeFiat)
	require.NoError(t, err)
	plan.Live = true
	require.NoError(t, f.planRepo.Update(context.Background(), plan))
	return plan
}

func TestSubscribeFreshChargesFullFee(t *testing.T) {
	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	f := newSubFixture(t, now)
	plan := f.livePlan(t, "basic", tenDollars)
	subscriber := uuid.New()

	sub, err := f.svc.Subscribe(context.Background(), subscriber, plan.ID)
	require.NoError(t, err)

	assert.True(t, sub.Active)
	assert.Equal(t, time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC), sub.NextChargeAt)
	assert.Equal(t, uint64(tenDolWei), f.gateway.charges[subscriber])

	treasury, _ := f.treasury.Get(context.Background(), "ETH")
	assert.Equal(t, uint64(tenDolWei), treasury.BalanceWei)
	assert.Equal(t, uint64(tenDolWei), treasury.RevenueWei)
	assert.Contains(t, f.events.kinds(), models.EventSubscribed)
	assert.Contains(t, f.events.kinds(), models.EventFeePaid)
}

func TestSubscribeRejectsNonLivePlan(t *testing.T) {
	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	f := newSubFixture(t, now)
	plan, err := f.planRepo.Create(context.Background(), "draft", tenDollars)
	require.NoError(t, err)

	_, err = f.svc.Subscribe(context.Background(), uuid.New(), plan.ID)
	assert.ErrorIs(t, err, common.ErrPlanNotLive)

	_, err = f.svc.Subscribe(context.Background(), uuid.New(), 999)
	assert.ErrorIs(t, err, common.ErrInvalidPlan)
}

func TestSubscribeTwiceSamePlanFails(t *testing.T) {
	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	f := newSubFixture(t, now)
	plan := f.livePlan(t, "basic", tenDollars)
	subscriber := uuid.New()

	_, err := f.svc.Subscribe(context.Background(), subscriber, plan.ID)
	require.NoError(t, err)
	_, err = f.svc.Subscribe(context.Background(), subscriber, plan.ID)
	assert.ErrorIs(t, err, common.ErrAlreadySubscribed)
}

func TestSubscribeAbortsWhenWalletDeclines(t *testing.T) {
	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	f := newSubFixture(t, now)
	plan := f.livePlan(t, "basic", tenDollars)
	subscriber := uuid.New()
	f.gateway.failCharge[subscriber] = true

	_, err := f.svc.Subscribe(context.Background(), subscriber, plan.ID)
	assert.ErrorIs(t, err, common.ErrInsufficientBalance)

	sub, _ := f.subRepo.GetBySubscriber(context.Background(), subscriber)
	assert.Nil(t, sub)
	treasury, _ := f.treasury.Get(context.Background(), "ETH")
	assert.Zero(t, treasury.BalanceWei)
}

func TestSubscribeRefundsPayerWhenPersistFails(t *testing.T) {
	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	f := newSubFixture(t, now)
	plan := f.livePlan(t, "basic", tenDollars)
	subscriber := uuid.New()
	f.subRepo.upsertErr = errors.New("storage unavailable")

	_, err := f.svc.Subscribe(context.Background(), subscriber, plan.ID)
	require.Error(t, err)

	// The charge was pulled and then returned; custody and revenue are flat.
	assert.Equal(t, uint64(tenDolWei), f.gateway.charges[subscriber])
	assert.Equal(t, uint64(tenDolWei), f.gateway.transfers[subscriber])
	treasury, _ := f.treasury.Get(context.Background(), "ETH")
	assert.Zero(t, treasury.BalanceWei)
	assert.Zero(t, treasury.RevenueWei)

	// A retry succeeds once storage recovers.
	f.subRepo.upsertErr = nil
	sub, err := f.svc.Subscribe(context.Background(), subscriber, plan.ID)
	require.NoError(t, err)
	assert.True(t, sub.Active)
}

func TestSubscribeRefundsPayerWhenTreasuryCreditFails(t *testing.T) {
	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	f := newSubFixture(t, now)
	plan := f.livePlan(t, "basic", tenDollars)
	subscriber := uuid.New()
	f.treasury.creditErr = errors.New("treasury unavailable")

	_, err := f.svc.Subscribe(context.Background(), subscriber, plan.ID)
	require.Error(t, err)

	assert.Equal(t, uint64(tenDolWei), f.gateway.charges[subscriber])
	assert.Equal(t, uint64(tenDolWei), f.gateway.transfers[subscriber])
	sub, _ := f.subRepo.GetBySubscriber(context.Background(), subscriber)
	assert.Nil(t, sub)
}

func TestResumeWithinPaidPeriodIsFree(t *testing.T) {
	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	f := newSubFixture(t, now)
	plan := f.livePlan(t, "basic", tenDollars)
	subscriber := uuid.New()

	_, err := f.svc.Subscribe(context.Background(), subscriber, plan.ID)
	require.NoError(t, err)
	require.NoError(t, f.svc.Unsubscribe(context.Background(), subscriber))

	// Ten days later, still inside the paid month.
	f.svc.now = atTime(now.AddDate(0, 0, 10))
	sub, err := f.svc.Subscribe(context.Background(), subscriber, plan.ID)
	require.NoError(t, err)

	assert.True(t, sub.Active)
	assert.Equal(t, 1, f.gateway.chargeCalls)
	assert.Equal(t, time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC), sub.NextChargeAt)
}

func TestResumeAfterGraceChargesAgain(t *testing.T) {
	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	f := newSubFixture(t, now)
	plan := f.livePlan(t, "basic", tenDollars)
	subscriber := uuid.New()

	_, err := f.svc.Subscribe(context.Background(), subscriber, plan.ID)
	require.NoError(t, err)
	require.NoError(t, f.svc.Unsubscribe(context.Background(), subscriber))

	resumeAt := time.Date(2025, 4, 15, 0, 0, 0, 0, time.UTC)
	f.svc.now = atTime(resumeAt)
	sub, err := f.svc.Subscribe(context.Background(), subscriber, plan.ID)
	require.NoError(t, err)

	assert.Equal(t, 2, f.gateway.chargeCalls)
	assert.Equal(t, uint64(2*tenDolWei), f.gateway.charges[subscriber])
	assert.Equal(t, time.Date(2025, 5, 15, 0, 0, 0, 0, time.UTC), sub.NextChargeAt)
}

func TestMidCyclePlanSwitchProrates(t *testing.T) {
	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	f := newSubFixture(t, start)
	basic := f.livePlan(t, "basic", tenDollars)
	premium := f.livePlan(t, "premium", 2*tenDollars)
	subscriber := uuid.New()

	_, err := f.svc.Subscribe(context.Background(), subscriber, basic.ID)
	require.NoError(t, err)

	// Nine days in, 22 whole days left on a cycle ending April 1 (30-day
	// reference month).
	switchAt := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	f.svc.now = atTime(switchAt)
	sub, err := f.svc.Subscribe(context.Background(), subscriber, premium.ID)
	require.NoError(t, err)

	const days, remaining = 30, 22
	oldRemaining := uint64(tenDolWei) / days * remaining
	newRemaining := uint64(2*tenDolWei) / days * remaining
	wantDelta := newRemaining - oldRemaining

	assert.Equal(t, premium.ID, sub.PlanID)
	// Cycle anchor must not move on a mid-cycle switch.
	assert.Equal(t, time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC), sub.NextChargeAt)
	assert.Equal(t, uint64(tenDolWei)+wantDelta, f.gateway.charges[subscriber])
}

func TestMidCycleDowngradeRefundsDifference(t *testing.T) {
	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	f := newSubFixture(t, start)
	basic := f.livePlan(t, "basic", tenDollars)
	premium := f.livePlan(t, "premium", 2*tenDollars)
	subscriber := uuid.New()

	_, err := f.svc.Subscribe(context.Background(), subscriber, premium.ID)
	require.NoError(t, err)

	switchAt := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	f.svc.now = atTime(switchAt)
	sub, err := f.svc.Subscribe(context.Background(), subscriber, basic.ID)
	require.NoError(t, err)

	const days, remaining = 30, 22
	wantRefund := uint64(2*tenDolWei)/days*remaining - uint64(tenDolWei)/days*remaining

	assert.Equal(t, basic.ID, sub.PlanID)
	assert.Equal(t, wantRefund, f.gateway.transfers[subscriber])
	treasury, _ := f.treasury.Get(context.Background(), "ETH")
	assert.Equal(t, uint64(2*tenDolWei)-wantRefund, treasury.BalanceWei)
}

// Switching away and immediately back must net to zero: both legs prorate
// from the same anchor and rate, so the charge and the refund truncate to
// within one wei of each other per leg.
func TestPlanSwitchRoundTripNetsZero(t *testing.T) {
	cases := []struct {
		name       string
		feeA, feeB uint64
	}{
		{"double", tenDollars, 2 * tenDollars},
		{"odd fees", 7_7777_7777, 3_3333_3331},
		{"near parity", tenDollars, tenDollars + 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
			f := newSubFixture(t, start)
			planA := f.livePlan(t, "a", tc.feeA)
			planB := f.livePlan(t, "b", tc.feeB)
			subscriber := uuid.New()

			_, err := f.svc.Subscribe(context.Background(), subscriber, planA.ID)
			require.NoError(t, err)
			initialCharge := f.gateway.charges[subscriber]

			f.svc.now = atTime(time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC))
			_, err = f.svc.Subscribe(context.Background(), subscriber, planB.ID)
			require.NoError(t, err)
			sub, err := f.svc.Subscribe(context.Background(), subscriber, planA.ID)
			require.NoError(t, err)

			charged := f.gateway.charges[subscriber] - initialCharge
			refunded := f.gateway.transfers[subscriber]
			var diff uint64
			if charged > refunded {
				diff = charged - refunded
			} else {
				diff = refunded - charged
			}
			assert.LessOrEqual(t, diff, uint64(2), "round trip moved %d wei out and %d back", charged, refunded)

			assert.Equal(t, planA.ID, sub.PlanID)
			assert.Equal(t, time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC), sub.NextChargeAt)
		})
	}
}

func TestPlanSwitchRollsBackWhenPersistFails(t *testing.T) {
	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	f := newSubFixture(t, start)
	basic := f.livePlan(t, "basic", tenDollars)
	premium := f.livePlan(t, "premium", 2*tenDollars)
	subscriber := uuid.New()

	_, err := f.svc.Subscribe(context.Background(), subscriber, basic.ID)
	require.NoError(t, err)

	f.svc.now = atTime(time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC))
	f.subRepo.upsertErr = errors.New("storage unavailable")
	_, err = f.svc.Subscribe(context.Background(), subscriber, premium.ID)
	require.Error(t, err)

	const days, remaining = 30, 22
	delta := uint64(2*tenDolWei)/days*remaining - uint64(tenDolWei)/days*remaining

	// The proration delta went out and came straight back.
	assert.Equal(t, uint64(tenDolWei)+delta, f.gateway.charges[subscriber])
	assert.Equal(t, delta, f.gateway.transfers[subscriber])
	treasury, _ := f.treasury.Get(context.Background(), "ETH")
	assert.Equal(t, uint64(tenDolWei), treasury.BalanceWei)
	assert.Equal(t, uint64(tenDolWei), treasury.RevenueWei)

	// The old binding is untouched.
	sub, _ := f.subRepo.GetBySubscriber(context.Background(), subscriber)
	assert.Equal(t, basic.ID, sub.PlanID)
	assert.True(t, sub.Active)
}

func TestUnsubscribeSemantics(t *testing.T) {
	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	f := newSubFixture(t, now)
	plan := f.livePlan(t, "basic", tenDollars)
	subscriber := uuid.New()

	// Never subscribed at all.
	err := f.svc.Unsubscribe(context.Background(), subscriber)
	assert.ErrorIs(t, err, common.ErrInvalidPlan)

	_, err = f.svc.Subscribe(context.Background(), subscriber, plan.ID)
	require.NoError(t, err)
	require.NoError(t, f.svc.Unsubscribe(context.Background(), subscriber))

	// Already inactive.
	err = f.svc.Unsubscribe(context.Background(), subscriber)
	assert.ErrorIs(t, err, common.ErrNotSubscribed)

	count, _ := f.svc.GetSubscriberCount(context.Background(), plan.ID)
	assert.Zero(t, count)
}

func TestSweepIsolatesFailures(t *testing.T) {
	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	f := newSubFixture(t, start)
	plan := f.livePlan(t, "basic", tenDollars)

	good := uuid.New()
	bad := uuid.New()
	for _, id := range []uuid.UUID{good, bad} {
		_, err := f.svc.Subscribe(context.Background(), id, plan.ID)
		require.NoError(t, err)
	}

	// Past both renewal dates; bad's wallet now declines.
	sweepAt := time.Date(2025, 4, 2, 6, 0, 0, 0, time.UTC)
	f.svc.now = atTime(sweepAt)
	f.gateway.failCharge[bad] = true

	report, err := f.svc.ChargeExpiredSubscriptions(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Charged)
	assert.Equal(t, 1, report.Deactivated)
	assert.Equal(t, time.Date(2025, 4, 3, 0, 0, 0, 0, time.UTC), report.NextSweepAt)

	goodSub, _ := f.subRepo.GetBySubscriber(context.Background(), good)
	assert.True(t, goodSub.Active)
	// Renewal anchors to the due date, not the sweep run time.
	assert.Equal(t, time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC), goodSub.NextChargeAt)

	badSub, _ := f.subRepo.GetBySubscriber(context.Background(), bad)
	assert.False(t, badSub.Active)
	assert.Contains(t, f.events.kinds(), models.EventPaymentFailed)
}

func TestSweepRefusesEarlyRun(t *testing.T) {
	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	f := newSubFixture(t, start)
	f.sweep.state.NextSweepAt = start.Add(6 * time.Hour)

	_, err := f.svc.ChargeExpiredSubscriptions(context.Background())
	assert.ErrorIs(t, err, common.ErrSweepNotDue)
}

func TestSweepSkipsNotYetDueSubscribers(t *testing.T) {
	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	f := newSubFixture(t, start)
	plan := f.livePlan(t, "basic", tenDollars)
	subscriber := uuid.New()

	_, err := f.svc.Subscribe(context.Background(), subscriber, plan.ID)
	require.NoError(t, err)

	f.svc.now = atTime(start.AddDate(0, 0, 10))
	report, err := f.svc.ChargeExpiredSubscriptions(context.Background())
	require.NoError(t, err)

	assert.Zero(t, report.Charged)
	assert.Zero(t, report.Deactivated)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 1, f.gateway.chargeCalls)
}

func TestLoadIndexRebuildsFromActiveRows(t *testing.T) {
	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	f := newSubFixture(t, start)
	plan := f.livePlan(t, "basic", tenDollars)

	subscriber := uuid.New()
	require.NoError(t, f.subRepo.Upsert(context.Background(), &models.Subscription{
		SubscriberID: subscriber,
		PlanID:       plan.ID,
		NextChargeAt: start.AddDate(0, -1, 0),
		Active:       true,
	}))

	require.NoError(t, f.svc.LoadIndex(context.Background()))
	f.svc.now = atTime(start)

	report, err := f.svc.ChargeExpiredSubscriptions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Charged)
}

func TestWithdrawAndRefundDebitCustody(t *testing.T) {
	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	f := newSubFixture(t, start)
	plan := f.livePlan(t, "basic", tenDollars)
	subscriber := uuid.New()
	owner := uuid.New()

	_, err := f.svc.Subscribe(context.Background(), subscriber, plan.ID)
	require.NoError(t, err)

	require.NoError(t, f.svc.RefundSubscriber(context.Background(), subscriber, 1_000))
	require.NoError(t, f.svc.Withdraw(context.Background(), owner, 2_000))

	treasury, _ := f.treasury.Get(context.Background(), "ETH")
	assert.Equal(t, uint64(tenDolWei)-3_000, treasury.BalanceWei)
	assert.Equal(t, uint64(1_000), f.gateway.transfers[subscriber])
	assert.Equal(t, uint64(2_000), f.gateway.transfers[owner])

	// More than custody holds.
	err = f.svc.Withdraw(context.Background(), owner, uint64(tenDolWei))
	assert.ErrorIs(t, err, common.ErrInsufficientBalance)
}

func TestWithdrawCompensatesFailedTransfer(t *testing.T) {
	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	f := newSubFixture(t, start)
	plan := f.livePlan(t, "basic", tenDollars)

	_, err := f.svc.Subscribe(context.Background(), uuid.New(), plan.ID)
	require.NoError(t, err)

	f.gateway.failXfer = true
	err = f.svc.Withdraw(context.Background(), uuid.New(), 5_000)
	assert.ErrorIs(t, err, common.ErrInsufficientBalance)

	treasury, _ := f.treasury.Get(context.Background(), "ETH")
	assert.Equal(t, uint64(tenDolWei), treasury.BalanceWei)
}

func TestRevenueAndCounts(t *testing.T) {
	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	f := newSubFixture(t, start)
	plan := f.livePlan(t, "basic", tenDollars)

	for i := 0; i < 3; i++ {
		_, err := f.svc.Subscribe(context.Background(), uuid.New(), plan.ID)
		require.NoError(t, err)
	}

	revenue, err := f.svc.GetTotalRevenue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(3*tenDolWei), revenue)

	total, err := f.svc.GetTotalSubscribers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, total)

	perPlan, err := f.svc.GetSubscriberCount(context.Background(), plan.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, perPlan)

	fee, err := f.svc.GetSubscriptionFee(context.Background(), uuid.New())
	assert.ErrorIs(t, err, common.ErrInvalidPlan)
	assert.Zero(t, fee)
}
