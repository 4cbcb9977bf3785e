package services

import (
	"context"
	"sync"
	"time"

	"pulsepay/internal/common"
	"pulsepay/internal/models"
	"pulsepay/internal/repositories"

	"github.com/google/uuid"
)

// SpendingLimitService enforces a rolling daily cap per (payer, asset).
// CheckAndConsume must run exactly once per debit attempt, before the debit
// commits; when the subsequent gateway charge fails the caller releases the
// reservation in the same critical section.
type SpendingLimitService interface {
	SetLimit(ctx context.Context, payerID uuid.UUID, asset string, cap uint64) error
	ClearLimit(ctx context.Context, payerID uuid.UUID, asset string) error
	CheckAndConsume(ctx context.Context, payerID uuid.UUID, asset string, amountWei uint64) error
	Release(ctx context.Context, payerID uuid.UUID, asset string, amountWei uint64) error
	GetLimit(ctx context.Context, payerID uuid.UUID, asset string) (*models.SpendingLimit, error)
}

type spendingLimitService struct {
	limitRepo repositories.SpendingLimitRepository
	mu        sync.Mutex
	now       func() time.Time
}

func NewSpendingLimitService(limitRepo repositories.SpendingLimitRepository) SpendingLimitService {
	return &spendingLimitService{
		limitRepo: limitRepo,
		now:       time.Now,
	}
}

// SetLimit initializes a fresh window. An enabled limit whose window has not
// elapsed cannot be replaced: allowing that would let a payer reset spend
// tracking mid-window.
func (s *spendingLimitService) SetLimit(ctx context.Context, payerID uuid.UUID, asset string, cap uint64) error {
	if cap == 0 {
		return common.ErrInvalidAmount
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	existing, err := s.limitRepo.Get(ctx, payerID, asset)
	if err != nil {
		return err
	}
	if existing != nil && existing.Enabled && !now.After(existing.WindowResetAt) {
		return common.ErrLimitUpdateConflict
	}

	return s.limitRepo.Upsert(ctx, &models.SpendingLimit{
		PayerID:       payerID,
		Asset:         asset,
		Cap:           cap,
		Available:     cap,
		WindowResetAt: now.Add(24 * time.Hour),
		Enabled:       true,
	})
}

func (s *spendingLimitService) ClearLimit(ctx context.Context, payerID uuid.UUID, asset string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	existing, err := s.limitRepo.Get(ctx, payerID, asset)
	if err != nil {
		return err
	}
	if existing == nil || !existing.Enabled {
		return nil
	}
	if !now.After(existing.WindowResetAt) {
		return common.ErrLimitUpdateConflict
	}
	existing.Enabled = false
	return s.limitRepo.Upsert(ctx, existing)
}

// CheckAndConsume resets an elapsed window, then atomically verifies and
// subtracts the amount. A shortfall consumes nothing.
func (s *spendingLimitService) CheckAndConsume(ctx context.Context, payerID uuid.UUID, asset string, amountWei uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	limit, err := s.limitRepo.Get(ctx, payerID, asset)
	if err != nil {
		return err
	}
	if limit == nil || !limit.Enabled {
		return nil
	}

	if now.After(limit.WindowResetAt) {
		limit.Available = limit.Cap
		limit.WindowResetAt = now.Add(24 * time.Hour)
	}
	if limit.Available < amountWei {
		// Persist the window reset even when the check fails.
		if err := s.limitRepo.Upsert(ctx, limit); err != nil {
			return err
		}
		return common.ErrLimitExceeded
	}
	limit.Available -= amountWei
	return s.limitRepo.Upsert(ctx, limit)
}

// Release returns a reservation after a failed debit, never exceeding the cap.
func (s *spendingLimitService) Release(ctx context.Context, payerID uuid.UUID, asset string, amountWei uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	limit, err := s.limitRepo.Get(ctx, payerID, asset)
	if err != nil {
		return err
	}
	if limit == nil || !limit.Enabled {
		return nil
	}
	limit.Available += amountWei
	if limit.Available > limit.Cap {
		limit.Available = limit.Cap
	}
	return s.limitRepo.Upsert(ctx, limit)
}

func (s *spendingLimitService) GetLimit(ctx context.Context, payerID uuid.UUID, asset string) (*models.SpendingLimit, error) {
	return s.limitRepo.Get(ctx, payerID, asset)
}
