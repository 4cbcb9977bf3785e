package services

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"pulsepay/internal/caching"
	"pulsepay/internal/common"
	"pulsepay/internal/models"
	"pulsepay/internal/repositories"
)

// PlanService is the plan registry: the catalog of subscription tiers. All
// mutations are owner-only (enforced at the handler boundary) and only
// permitted while a plan is not yet live.
type PlanService interface {
	CreatePlan(ctx context.Context, name string, feeFiat uint64) (*models.Plan, error)
	UpdatePlan(ctx context.Context, id uint64, name string, feeFiat uint64) error
	DeletePlan(ctx context.Context, id uint64) error
	MakePlanLive(ctx context.Context, id uint64) error
	GetAllPlans(ctx context.Context) ([]*models.Plan, error)
	GetLivePlans(ctx context.Context) ([]*models.Plan, error)
}

const livePlanCacheTTL = 5 * time.Minute

type planService struct {
	planRepo repositories.PlanRepository
	cache    caching.CacheService
}

func NewPlanService(planRepo repositories.PlanRepository, cache caching.CacheService) PlanService {
	return &planService{planRepo: planRepo, cache: cache}
}

func (s *planService) CreatePlan(ctx context.Context, name string, feeFiat uint64) (*models.Plan, error) {
	if strings.TrimSpace(name) == "" {
		return nil, common.ErrInvalidPlan
	}
	if feeFiat == 0 {
		return nil, common.ErrInvalidAmount
	}
	return s.planRepo.Create(ctx, name, feeFiat)
}

func (s *planService) UpdatePlan(ctx context.Context, id uint64, name string, feeFiat uint64) error {
	plan, err := s.planRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if plan.Live {
		return common.ErrPlanAlreadyLive
	}
	if strings.TrimSpace(name) == "" {
		return common.ErrInvalidPlan
	}
	if feeFiat == 0 {
		return common.ErrInvalidAmount
	}
	plan.Name = name
	plan.FeeFiat = feeFiat
	return s.planRepo.Update(ctx, plan)
}

// DeletePlan removes a plan that never went live. The id sequence is never
// rewound, so the id stays retired.
func (s *planService) DeletePlan(ctx context.Context, id uint64) error {
	plan, err := s.planRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if plan.Live {
		return common.ErrPlanAlreadyLive
	}
	return s.planRepo.Delete(ctx, id)
}

func (s *planService) MakePlanLive(ctx context.Context, id uint64) error {
	plan, err := s.planRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if plan.Live {
		return common.ErrPlanAlreadyLive
	}
	plan.Live = true
	if err := s.planRepo.Update(ctx, plan); err != nil {
		return err
	}
	s.invalidateCache(ctx)
	return nil
}

func (s *planService) GetAllPlans(ctx context.Context) ([]*models.Plan, error) {
	return s.planRepo.List(ctx)
}

func (s *planService) GetLivePlans(ctx context.Context) ([]*models.Plan, error) {
	if s.cache != nil {
		plans, err := s.cache.GetLivePlans(ctx)
		if err == nil {
			return plans, nil
		}
		if !errors.Is(err, caching.ErrCacheMiss) {
			log.Printf("Live plan cache read failed: %v", err)
		}
	}

	plans, err := s.planRepo.ListLive(ctx)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.SetLivePlans(ctx, plans, livePlanCacheTTL); err != nil {
			log.Printf("Live plan cache write failed: %v", err)
		}
	}
	return plans, nil
}

func (s *planService) invalidateCache(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidatePlans(ctx); err != nil {
		log.Printf("Live plan cache invalidation failed: %v", err)
	}
}
