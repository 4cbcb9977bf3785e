package services

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"pulsepay/internal/billing"
	"pulsepay/internal/common"
	"pulsepay/internal/config"
	"pulsepay/internal/models"
	"pulsepay/internal/repositories"

	"github.com/google/uuid"
)

// EscrowService holds buyer funds in custody until release or dispute
// resolution, and runs the escrow-backed subscription variant with its
// renewal window and cancel lockout. Released is terminal: no operation
// touches a released escrow again.
type EscrowService interface {
	CreateEscrow(ctx context.Context, buyerID, sellerID uuid.UUID, amountWei uint64) (*models.Escrow, error)
	ReleaseEscrow(ctx context.Context, callerID, escrowID uuid.UUID) error
	DisputeEscrow(ctx context.Context, callerID, escrowID uuid.UUID) error
	ResolveEscrowDispute(ctx context.Context, escrowID, winnerID uuid.UUID) error
	GetEscrow(ctx context.Context, escrowID uuid.UUID) (*models.Escrow, error)
	ListEscrowsByParty(ctx context.Context, partyID uuid.UUID, limit, offset int) ([]*models.Escrow, error)

	CreateEscrowSubscription(ctx context.Context, subscriberID uuid.UUID, priceWei uint64, periodDays int, allowedPayers []uuid.UUID) (*models.EscrowSubscription, error)
	RenewEscrowSubscription(ctx context.Context, callerID, subID uuid.UUID) error
	CancelEscrowSubscription(ctx context.Context, callerID, subID uuid.UUID) error
	MakeSubscriptionPayment(ctx context.Context, payerID, subID uuid.UUID) error
	GetEscrowSubscription(ctx context.Context, subID uuid.UUID) (*models.EscrowSubscription, error)
}

type escrowService struct {
	escrowRepo repositories.EscrowRepository
	subRepo    repositories.EscrowSubscriptionRepository
	eventRepo  repositories.PaymentEventRepository
	treasury   repositories.TreasuryRepository
	limits     SpendingLimitService
	gateway    WalletGateway

	cfg   config.EscrowConfig
	asset string

	mu  sync.Mutex
	now func() time.Time
}

func NewEscrowService(
	escrowRepo repositories.EscrowRepository,
	subRepo repositories.EscrowSubscriptionRepository,
	eventRepo repositories.PaymentEventRepository,
	treasury repositories.TreasuryRepository,
	limits SpendingLimitService,
	gateway WalletGateway,
	cfg config.EscrowConfig,
	asset string,
) EscrowService {
	return &escrowService{
		escrowRepo: escrowRepo,
		subRepo:    subRepo,
		eventRepo:  eventRepo,
		treasury:   treasury,
		limits:     limits,
		gateway:    gateway,
		cfg:        cfg,
		asset:      asset,
		now:        time.Now,
	}
}

// CreateEscrow pulls the full amount from the buyer into custody. The
// dispute window opens immediately and runs for the configured period.
func (s *escrowService) CreateEscrow(ctx context.Context, buyerID, sellerID uuid.UUID, amountWei uint64) (*models.Escrow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if amountWei == 0 {
		return nil, common.ErrInvalidAmount
	}
	if buyerID == sellerID {
		return nil, common.ErrInvalidAccount
	}

	if err := s.chargePayer(ctx, buyerID, amountWei); err != nil {
		return nil, err
	}
	if err := s.treasury.Credit(ctx, s.asset, amountWei, false); err != nil {
		return nil, err
	}

	now := s.now()
	escrow := &models.Escrow{
		ID:              uuid.New(),
		BuyerID:         buyerID,
		SellerID:        sellerID,
		AmountWei:       amountWei,
		DisputeDeadline: now.Add(s.cfg.DisputePeriod()),
	}
	if err := s.escrowRepo.Create(ctx, escrow); err != nil {
		return nil, err
	}
	s.emit(ctx, models.EventEscrowCreated, &buyerID, &escrow.ID, amountWei, sellerID.String())
	return escrow, nil
}

// ReleaseEscrow pays the seller. Only the buyer may release, and never while
// a dispute is open.
func (s *escrowService) ReleaseEscrow(ctx context.Context, callerID, escrowID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	escrow, err := s.escrowRepo.GetByID(ctx, escrowID)
	if err != nil {
		return err
	}
	if callerID != escrow.BuyerID {
		return common.ErrUnauthorized
	}
	if escrow.Released {
		return common.ErrEscrowReleased
	}
	if escrow.Disputed {
		return common.ErrEscrowDisputed
	}

	return s.settle(ctx, escrow, escrow.SellerID, nil)
}

// DisputeEscrow freezes the escrow until the owner resolves it. Either party
// may raise it while the window is open; disputing twice is a no-op.
func (s *escrowService) DisputeEscrow(ctx context.Context, callerID, escrowID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	escrow, err := s.escrowRepo.GetByID(ctx, escrowID)
	if err != nil {
		return err
	}
	if callerID != escrow.BuyerID && callerID != escrow.SellerID {
		return common.ErrUnauthorized
	}
	if escrow.Released {
		return common.ErrEscrowReleased
	}
	if escrow.Disputed {
		return nil
	}
	if s.now().After(escrow.DisputeDeadline) {
		return common.ErrDisputeWindowClosed
	}

	escrow.Disputed = true
	if err := s.escrowRepo.Update(ctx, escrow); err != nil {
		return err
	}
	s.emit(ctx, models.EventEscrowDisputed, &callerID, &escrow.ID, escrow.AmountWei, "")
	return nil
}

// ResolveEscrowDispute pays the winner and closes the escrow. Owner-only,
// enforced at the handler boundary; the winner must be one of the parties.
func (s *escrowService) ResolveEscrowDispute(ctx context.Context, escrowID, winnerID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	escrow, err := s.escrowRepo.GetByID(ctx, escrowID)
	if err != nil {
		return err
	}
	if escrow.Released {
		return common.ErrEscrowReleased
	}
	if !escrow.Disputed {
		return common.ErrEscrowNotDisputed
	}
	if winnerID != escrow.BuyerID && winnerID != escrow.SellerID {
		return common.ErrInvalidAccount
	}

	return s.settle(ctx, escrow, winnerID, &winnerID)
}

// settle debits custody, marks the escrow released, then transfers. A failed
// transfer rolls back both the debit and the released flag so the escrow
// stays settleable.
func (s *escrowService) settle(ctx context.Context, escrow *models.Escrow, payee uuid.UUID, winner *uuid.UUID) error {
	if err := s.treasury.Debit(ctx, s.asset, escrow.AmountWei, false); err != nil {
		return err
	}
	escrow.Released = true
	escrow.DisputeWinner = winner
	if err := s.escrowRepo.Update(ctx, escrow); err != nil {
		if cerr := s.treasury.Credit(ctx, s.asset, escrow.AmountWei, false); cerr != nil {
			log.Printf("Failed to restore custody after escrow update failure: %v", cerr)
		}
		return err
	}
	if err := s.gateway.Transfer(ctx, payee, escrow.AmountWei); err != nil {
		escrow.Released = false
		escrow.DisputeWinner = nil
		if uerr := s.escrowRepo.Update(ctx, escrow); uerr != nil {
			log.Printf("Failed to reopen escrow %s after transfer failure: %v", escrow.ID, uerr)
		}
		if cerr := s.treasury.Credit(ctx, s.asset, escrow.AmountWei, false); cerr != nil {
			log.Printf("Failed to restore custody after transfer failure: %v", cerr)
		}
		return fmt.Errorf("%w: %v", common.ErrInsufficientBalance, err)
	}

	kind := models.EventEscrowReleased
	if winner != nil {
		kind = models.EventEscrowResolved
	}
	s.emit(ctx, kind, &payee, &escrow.ID, escrow.AmountWei, "")
	return nil
}

func (s *escrowService) GetEscrow(ctx context.Context, escrowID uuid.UUID) (*models.Escrow, error) {
	return s.escrowRepo.GetByID(ctx, escrowID)
}

func (s *escrowService) ListEscrowsByParty(ctx context.Context, partyID uuid.UUID, limit, offset int) ([]*models.Escrow, error) {
	return s.escrowRepo.ListByParty(ctx, partyID, limit, offset)
}

// CreateEscrowSubscription deposits the first period's price and opens the
// term. Payments from anyone outside allowedPayers are rejected.
func (s *escrowService) CreateEscrowSubscription(ctx context.Context, subscriberID uuid.UUID, priceWei uint64, periodDays int, allowedPayers []uuid.UUID) (*models.EscrowSubscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if priceWei == 0 {
		return nil, common.ErrInvalidAmount
	}
	if periodDays <= 0 {
		return nil, common.ErrInvalidAmount
	}

	if err := s.chargePayer(ctx, subscriberID, priceWei); err != nil {
		return nil, err
	}
	if err := s.treasury.Credit(ctx, s.asset, priceWei, false); err != nil {
		return nil, err
	}

	now := s.now()
	sub := &models.EscrowSubscription{
		ID:            uuid.New(),
		SubscriberID:  subscriberID,
		PriceWei:      priceWei,
		PeriodDays:    periodDays,
		ExpiresAt:     now.Add(time.Duration(periodDays) * 24 * time.Hour),
		AllowedPayers: allowedPayers,
	}
	if err := s.subRepo.Create(ctx, sub); err != nil {
		return nil, err
	}
	s.emit(ctx, models.EventEscrowSubCreate, &subscriberID, &sub.ID, priceWei, "")
	return sub, nil
}

// RenewEscrowSubscription extends the term by one period. Renewal is only
// accepted inside the window before expiry, so a subscriber cannot stockpile
// periods nor renew a lapsed term.
func (s *escrowService) RenewEscrowSubscription(ctx context.Context, callerID, subID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, err := s.subRepo.GetByID(ctx, subID)
	if err != nil {
		return err
	}
	if callerID != sub.SubscriberID {
		return common.ErrUnauthorized
	}
	if sub.Cancelled {
		return common.ErrNotSubscribed
	}

	now := s.now()
	windowOpen := sub.ExpiresAt.Add(-s.cfg.RenewalWindowOpen())
	windowClose := sub.ExpiresAt.Add(-s.cfg.RenewalWindowClose())
	if now.Before(windowOpen) || now.After(windowClose) {
		return common.ErrRenewalWindowClosed
	}

	if err := s.chargePayer(ctx, callerID, sub.PriceWei); err != nil {
		return err
	}
	if err := s.treasury.Credit(ctx, s.asset, sub.PriceWei, false); err != nil {
		return err
	}
	sub.ExpiresAt = sub.ExpiresAt.Add(time.Duration(sub.PeriodDays) * 24 * time.Hour)
	if err := s.subRepo.Update(ctx, sub); err != nil {
		return err
	}
	s.emit(ctx, models.EventEscrowSubRenew, &callerID, &sub.ID, sub.PriceWei, "")
	return nil
}

// CancelEscrowSubscription refunds the unused whole days of the current
// period. Cancelling inside the lockout before expiry is refused so the
// provider is not stiffed at the last minute.
func (s *escrowService) CancelEscrowSubscription(ctx context.Context, callerID, subID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, err := s.subRepo.GetByID(ctx, subID)
	if err != nil {
		return err
	}
	if callerID != sub.SubscriberID {
		return common.ErrUnauthorized
	}
	now := s.now()
	if sub.Cancelled || now.After(sub.ExpiresAt) {
		return common.ErrNotSubscribed
	}
	if now.After(sub.ExpiresAt.Add(-s.cfg.CancelLockout())) {
		return common.ErrCancelPeriodActive
	}

	refund := sub.PriceWei / uint64(sub.PeriodDays) * uint64(billing.RemainingDays(now, sub.ExpiresAt))
	if refund > 0 {
		if err := s.treasury.Debit(ctx, s.asset, refund, false); err != nil {
			return err
		}
		if err := s.gateway.Transfer(ctx, callerID, refund); err != nil {
			if cerr := s.treasury.Credit(ctx, s.asset, refund, false); cerr != nil {
				log.Printf("Failed to restore custody after refund failure: %v", cerr)
			}
			return fmt.Errorf("%w: %v", common.ErrInsufficientBalance, err)
		}
	}

	sub.Cancelled = true
	if err := s.subRepo.Update(ctx, sub); err != nil {
		return err
	}
	s.emit(ctx, models.EventEscrowSubCancel, &callerID, &sub.ID, refund, "")
	return nil
}

// MakeSubscriptionPayment lets an allow-listed payer fund the next period on
// the subscriber's behalf. The payment is revenue, not custody.
func (s *escrowService) MakeSubscriptionPayment(ctx context.Context, payerID, subID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, err := s.subRepo.GetByID(ctx, subID)
	if err != nil {
		return err
	}
	if !s.payerAllowed(sub, payerID) {
		return common.ErrUnauthorized
	}
	if sub.Cancelled || s.now().After(sub.ExpiresAt) {
		return common.ErrNotSubscribed
	}

	if err := s.chargePayer(ctx, payerID, sub.PriceWei); err != nil {
		return err
	}
	if err := s.treasury.Credit(ctx, s.asset, sub.PriceWei, true); err != nil {
		return err
	}
	sub.ExpiresAt = sub.ExpiresAt.Add(time.Duration(sub.PeriodDays) * 24 * time.Hour)
	if err := s.subRepo.Update(ctx, sub); err != nil {
		return err
	}
	s.emit(ctx, models.EventEscrowSubPaid, &payerID, &sub.ID, sub.PriceWei, "")
	return nil
}

func (s *escrowService) GetEscrowSubscription(ctx context.Context, subID uuid.UUID) (*models.EscrowSubscription, error) {
	return s.subRepo.GetByID(ctx, subID)
}

func (s *escrowService) payerAllowed(sub *models.EscrowSubscription, payerID uuid.UUID) bool {
	if payerID == sub.SubscriberID {
		return true
	}
	for _, allowed := range sub.AllowedPayers {
		if allowed == payerID {
			return true
		}
	}
	return false
}

// chargePayer reserves against the payer's daily limit then pulls from the
// wallet, releasing the reservation if the pull fails.
func (s *escrowService) chargePayer(ctx context.Context, payerID uuid.UUID, amountWei uint64) error {
	if err := s.limits.CheckAndConsume(ctx, payerID, s.asset, amountWei); err != nil {
		return err
	}
	if err := s.gateway.ChargeWallet(ctx, payerID, amountWei); err != nil {
		if rerr := s.limits.Release(ctx, payerID, s.asset, amountWei); rerr != nil {
			log.Printf("Failed to release limit reservation for %s: %v", payerID, rerr)
		}
		return fmt.Errorf("%w: %v", common.ErrInsufficientPayment, err)
	}
	return nil
}

func (s *escrowService) emit(ctx context.Context, kind string, accountID, escrowID *uuid.UUID, amountWei uint64, detail string) {
	event := &models.PaymentEvent{
		Kind:      kind,
		AccountID: accountID,
		EscrowID:  escrowID,
		AmountWei: amountWei,
		Detail:    detail,
		CreatedAt: s.now(),
	}
	if err := s.eventRepo.Append(ctx, event); err != nil {
		log.Printf("Failed to append %s event: %v", kind, err)
	}
}
