package services

import (
	"context"
	"errors"
	"time"

	"pulsepay/internal/common"
	"pulsepay/internal/models"

	"github.com/google/uuid"
)

// In-memory fakes for the service tests. They implement just enough of the
// repository contracts to exercise the state machines without a database.

type fakePlanRepo struct {
	plans  map[uint64]*models.Plan
	nextID uint64
}

func newFakePlanRepo() *fakePlanRepo {
	return &fakePlanRepo{plans: make(map[uint64]*models.Plan), nextID: 1}
}

func (r *fakePlanRepo) Create(_ context.Context, name string, feeFiat uint64) (*models.Plan, error) {
	plan := &models.Plan{ID: r.nextID, Name: name, FeeFiat: feeFiat}
	r.plans[plan.ID] = plan
	r.nextID++
	return plan, nil
}

func (r *fakePlanRepo) GetByID(_ context.Context, id uint64) (*models.Plan, error) {
	plan, ok := r.plans[id]
	if !ok {
		return nil, common.ErrInvalidPlan
	}
	copied := *plan
	return &copied, nil
}

func (r *fakePlanRepo) Update(_ context.Context, plan *models.Plan) error {
	if _, ok := r.plans[plan.ID]; !ok {
		return common.ErrInvalidPlan
	}
	copied := *plan
	r.plans[plan.ID] = &copied
	return nil
}

func (r *fakePlanRepo) Delete(_ context.Context, id uint64) error {
	delete(r.plans, id)
	return nil
}

func (r *fakePlanRepo) List(_ context.Context) ([]*models.Plan, error) {
	out := make([]*models.Plan, 0, len(r.plans))
	for _, p := range r.plans {
		copied := *p
		out = append(out, &copied)
	}
	return out, nil
}

func (r *fakePlanRepo) ListLive(ctx context.Context) ([]*models.Plan, error) {
	all, _ := r.List(ctx)
	live := all[:0]
	for _, p := range all {
		if p.Live {
			live = append(live, p)
		}
	}
	return live, nil
}

type fakeSubscriptionRepo struct {
	subs      map[uuid.UUID]*models.Subscription
	upsertErr error
}

func newFakeSubscriptionRepo() *fakeSubscriptionRepo {
	return &fakeSubscriptionRepo{subs: make(map[uuid.UUID]*models.Subscription)}
}

func (r *fakeSubscriptionRepo) Upsert(_ context.Context, sub *models.Subscription) error {
	if r.upsertErr != nil {
		return r.upsertErr
	}
	copied := *sub
	r.subs[sub.SubscriberID] = &copied
	return nil
}

func (r *fakeSubscriptionRepo) GetBySubscriber(_ context.Context, subscriberID uuid.UUID) (*models.Subscription, error) {
	sub, ok := r.subs[subscriberID]
	if !ok {
		return nil, nil
	}
	copied := *sub
	return &copied, nil
}

func (r *fakeSubscriptionRepo) ListActive(_ context.Context) ([]*models.Subscription, error) {
	var out []*models.Subscription
	for _, s := range r.subs {
		if s.Active {
			copied := *s
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *fakeSubscriptionRepo) CountActive(ctx context.Context) (int, error) {
	subs, _ := r.ListActive(ctx)
	return len(subs), nil
}

func (r *fakeSubscriptionRepo) CountActiveByPlan(_ context.Context, planID uint64) (int, error) {
	count := 0
	for _, s := range r.subs {
		if s.Active && s.PlanID == planID {
			count++
		}
	}
	return count, nil
}

type fakeEscrowRepo struct {
	escrows map[uuid.UUID]*models.Escrow
}

func newFakeEscrowRepo() *fakeEscrowRepo {
	return &fakeEscrowRepo{escrows: make(map[uuid.UUID]*models.Escrow)}
}

func (r *fakeEscrowRepo) Create(_ context.Context, escrow *models.Escrow) error {
	copied := *escrow
	r.escrows[escrow.ID] = &copied
	return nil
}

func (r *fakeEscrowRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Escrow, error) {
	escrow, ok := r.escrows[id]
	if !ok {
		return nil, common.ErrEscrowNotFound
	}
	copied := *escrow
	return &copied, nil
}

func (r *fakeEscrowRepo) Update(_ context.Context, escrow *models.Escrow) error {
	if _, ok := r.escrows[escrow.ID]; !ok {
		return common.ErrEscrowNotFound
	}
	copied := *escrow
	r.escrows[escrow.ID] = &copied
	return nil
}

func (r *fakeEscrowRepo) ListByParty(_ context.Context, accountID uuid.UUID, _, _ int) ([]*models.Escrow, error) {
	var out []*models.Escrow
	for _, e := range r.escrows {
		if e.BuyerID == accountID || e.SellerID == accountID {
			copied := *e
			out = append(out, &copied)
		}
	}
	return out, nil
}

type fakeEscrowSubRepo struct {
	subs map[uuid.UUID]*models.EscrowSubscription
}

func newFakeEscrowSubRepo() *fakeEscrowSubRepo {
	return &fakeEscrowSubRepo{subs: make(map[uuid.UUID]*models.EscrowSubscription)}
}

func (r *fakeEscrowSubRepo) Create(_ context.Context, sub *models.EscrowSubscription) error {
	copied := *sub
	r.subs[sub.ID] = &copied
	return nil
}

func (r *fakeEscrowSubRepo) GetByID(_ context.Context, id uuid.UUID) (*models.EscrowSubscription, error) {
	sub, ok := r.subs[id]
	if !ok {
		return nil, common.ErrEscrowNotFound
	}
	copied := *sub
	return &copied, nil
}

func (r *fakeEscrowSubRepo) Update(_ context.Context, sub *models.EscrowSubscription) error {
	if _, ok := r.subs[sub.ID]; !ok {
		return common.ErrEscrowNotFound
	}
	copied := *sub
	r.subs[sub.ID] = &copied
	return nil
}

type fakeLimitRepo struct {
	limits map[string]*models.SpendingLimit
}

func newFakeLimitRepo() *fakeLimitRepo {
	return &fakeLimitRepo{limits: make(map[string]*models.SpendingLimit)}
}

func limitKey(payerID uuid.UUID, asset string) string {
	return payerID.String() + "/" + asset
}

func (r *fakeLimitRepo) Get(_ context.Context, payerID uuid.UUID, asset string) (*models.SpendingLimit, error) {
	limit, ok := r.limits[limitKey(payerID, asset)]
	if !ok {
		return nil, nil
	}
	copied := *limit
	return &copied, nil
}

func (r *fakeLimitRepo) Upsert(_ context.Context, limit *models.SpendingLimit) error {
	copied := *limit
	r.limits[limitKey(limit.PayerID, limit.Asset)] = &copied
	return nil
}

func (r *fakeLimitRepo) DeleteExpiredDisabled(_ context.Context) (int64, error) {
	return 0, nil
}

type fakeTreasuryRepo struct {
	balances  map[string]*models.Treasury
	creditErr error
}

func newFakeTreasuryRepo() *fakeTreasuryRepo {
	return &fakeTreasuryRepo{balances: make(map[string]*models.Treasury)}
}

func (r *fakeTreasuryRepo) Get(_ context.Context, asset string) (*models.Treasury, error) {
	t, ok := r.balances[asset]
	if !ok {
		return &models.Treasury{Asset: asset}, nil
	}
	copied := *t
	return &copied, nil
}

func (r *fakeTreasuryRepo) Credit(_ context.Context, asset string, amountWei uint64, revenue bool) error {
	if r.creditErr != nil {
		return r.creditErr
	}
	t, ok := r.balances[asset]
	if !ok {
		t = &models.Treasury{Asset: asset}
		r.balances[asset] = t
	}
	t.BalanceWei += amountWei
	if revenue {
		t.RevenueWei += amountWei
	}
	return nil
}

func (r *fakeTreasuryRepo) Debit(_ context.Context, asset string, amountWei uint64, revenue bool) error {
	t, ok := r.balances[asset]
	if !ok || t.BalanceWei < amountWei {
		return common.ErrInsufficientBalance
	}
	if revenue && t.RevenueWei < amountWei {
		return common.ErrInsufficientBalance
	}
	t.BalanceWei -= amountWei
	if revenue {
		t.RevenueWei -= amountWei
	}
	return nil
}

type fakeEventRepo struct {
	events []*models.PaymentEvent
}

func newFakeEventRepo() *fakeEventRepo {
	return &fakeEventRepo{}
}

func (r *fakeEventRepo) Append(_ context.Context, event *models.PaymentEvent) error {
	copied := *event
	if copied.ID == uuid.Nil {
		copied.ID = uuid.New()
	}
	r.events = append(r.events, &copied)
	return nil
}

func (r *fakeEventRepo) List(_ context.Context, limit, offset int) ([]*models.PaymentEvent, error) {
	if offset >= len(r.events) {
		return nil, nil
	}
	end := offset + limit
	if end > len(r.events) {
		end = len(r.events)
	}
	return r.events[offset:end], nil
}

func (r *fakeEventRepo) kinds() []string {
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Kind)
	}
	return out
}

type fakeSweepStateRepo struct {
	state models.SweepState
}

func (r *fakeSweepStateRepo) Get(_ context.Context) (*models.SweepState, error) {
	copied := r.state
	return &copied, nil
}

func (r *fakeSweepStateRepo) Set(_ context.Context, state *models.SweepState) error {
	r.state = *state
	return nil
}

// fakeGateway records charges and transfers and can be told to fail for a
// specific account.
type fakeGateway struct {
	charges     map[uuid.UUID]uint64
	transfers   map[uuid.UUID]uint64
	failCharge  map[uuid.UUID]bool
	failXfer    bool
	paymaster   string
	chargeCalls int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		charges:    make(map[uuid.UUID]uint64),
		transfers:  make(map[uuid.UUID]uint64),
		failCharge: make(map[uuid.UUID]bool),
	}
}

func (g *fakeGateway) ChargeWallet(_ context.Context, accountID uuid.UUID, amountWei uint64) error {
	g.chargeCalls++
	if g.failCharge[accountID] {
		return errors.New("wallet declined")
	}
	g.charges[accountID] += amountWei
	return nil
}

func (g *fakeGateway) Transfer(_ context.Context, accountID uuid.UUID, amountWei uint64) error {
	if g.failXfer {
		return errors.New("transfer failed")
	}
	g.transfers[accountID] += amountWei
	return nil
}

func (g *fakeGateway) UpdatePaymaster(_ context.Context, address string) error {
	g.paymaster = address
	return nil
}

// fixedOracle returns one rate forever.
type fixedOracle struct {
	rate uint64
}

func (o *fixedOracle) LatestRate(context.Context, string) (uint64, error) {
	return o.rate, nil
}

// noopLimits disables spend tracking for tests that do not exercise it.
type noopLimits struct{}

func (noopLimits) SetLimit(context.Context, uuid.UUID, string, uint64) error { return nil }
func (noopLimits) ClearLimit(context.Context, uuid.UUID, string) error { return nil }
func (noopLimits) CheckAndConsume(context.Context, uuid.UUID, string, uint64) error {
	return nil
}
func (noopLimits) Release(context.Context, uuid.UUID, string, uint64) error { return nil }
func (noopLimits) GetLimit(context.Context, uuid.UUID, string) (*models.SpendingLimit, error) {
	return nil, nil
}

func atTime(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
