package background

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"pulsepay/internal/caching"
	"pulsepay/internal/common"
	"pulsepay/internal/repositories"
	"pulsepay/internal/services"

	"github.com/go-co-op/gocron/v2"
)

const sweepLockTTL = 10 * time.Minute

// JobScheduler runs the periodic ledger maintenance: the billing sweep, the
// spending-limit vacuum, and the live-plan cache warmup.
type JobScheduler struct {
	scheduler gocron.Scheduler
	subSvc    services.SubscriptionService
	planSvc   services.PlanService
	limitRepo repositories.SpendingLimitRepository
	cacheSvc  caching.CacheService
	jobs      map[string]gocron.Job
	mu        sync.RWMutex
}

func NewJobScheduler(
	subSvc services.SubscriptionService,
	planSvc services.PlanService,
	limitRepo repositories.SpendingLimitRepository,
	cacheSvc caching.CacheService,
) *JobScheduler {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		log.Fatalf("Failed to create scheduler: %v", err)
	}

	js := &JobScheduler{
		scheduler: scheduler,
		subSvc:    subSvc,
		planSvc:   planSvc,
		limitRepo: limitRepo,
		cacheSvc:  cacheSvc,
		jobs:      make(map[string]gocron.Job),
	}
	js.registerJobs()
	return js
}

// Start starts the job scheduler
func (js *JobScheduler) Start() error {
	log.Printf("Starting background job scheduler")
	js.scheduler.Start()
	return nil
}

// Stop stops the job scheduler
func (js *JobScheduler) Stop() error {
	log.Printf("Stopping background job scheduler")
	return js.scheduler.Shutdown()
}

func (js *JobScheduler) registerJobs() {
	// Billing sweep - every 15 minutes. The sweep itself refuses to run
	// before its gate, so frequent attempts are harmless.
	sweepJob, err := js.scheduler.NewJob(
		gocron.DurationJob(15*time.Minute),
		gocron.NewTask(js.runBillingSweep, context.Background()),
		gocron.WithName("billing-sweep"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		log.Printf("Failed to create billing sweep job: %v", err)
	} else {
		js.jobs["billing-sweep"] = sweepJob
	}

	// Spending-limit vacuum - every 6 hours
	vacuumJob, err := js.scheduler.NewJob(
		gocron.DurationJob(6*time.Hour),
		gocron.NewTask(js.vacuumSpendingLimits, context.Background()),
		gocron.WithName("limit-vacuum"),
	)
	if err != nil {
		log.Printf("Failed to create limit vacuum job: %v", err)
	} else {
		js.jobs["limit-vacuum"] = vacuumJob
	}

	// Live-plan cache warmup - every 5 minutes
	warmupJob, err := js.scheduler.NewJob(
		gocron.DurationJob(5*time.Minute),
		gocron.NewTask(js.warmPlanCache, context.Background()),
		gocron.WithName("plan-cache-warmup"),
	)
	if err != nil {
		log.Printf("Failed to create plan cache warmup job: %v", err)
	} else {
		js.jobs["plan-cache-warmup"] = warmupJob
	}

	log.Printf("Registered %d background jobs", len(js.jobs))
}

// runBillingSweep takes the cross-replica lock and runs the sweep. A sweep
// that is not yet due is an expected outcome, not a failure.
func (js *JobScheduler) runBillingSweep(ctx context.Context) error {
	if js.cacheSvc != nil {
		acquired, err := js.cacheSvc.AcquireSweepLock(ctx, sweepLockTTL)
		if err != nil {
			log.Printf("Failed to acquire sweep lock: %v", err)
			return err
		}
		if !acquired {
			return nil
		}
		defer func() {
			if err := js.cacheSvc.ReleaseSweepLock(ctx); err != nil {
				log.Printf("Failed to release sweep lock: %v", err)
			}
		}()
	}

	report, err := js.subSvc.ChargeExpiredSubscriptions(ctx)
	if err != nil {
		if errors.Is(err, common.ErrSweepNotDue) {
			return nil
		}
		log.Printf("Billing sweep failed: %v", err)
		return err
	}
	log.Printf("Billing sweep: %d charged, %d deactivated", report.Charged, report.Deactivated)
	return nil
}

// vacuumSpendingLimits removes disabled limits whose windows expired long ago.
func (js *JobScheduler) vacuumSpendingLimits(ctx context.Context) error {
	removed, err := js.limitRepo.DeleteExpiredDisabled(ctx)
	if err != nil {
		log.Printf("Spending limit vacuum failed: %v", err)
		return err
	}
	if removed > 0 {
		log.Printf("Spending limit vacuum removed %d rows", removed)
	}
	return nil
}

// warmPlanCache refreshes the live-plan projection before it expires.
func (js *JobScheduler) warmPlanCache(ctx context.Context) error {
	if _, err := js.planSvc.GetLivePlans(ctx); err != nil {
		log.Printf("Plan cache warmup failed: %v", err)
		return err
	}
	return nil
}

// GetJobStatus returns information about scheduled jobs
func (js *JobScheduler) GetJobStatus() map[string]interface{} {
	js.mu.RLock()
	defer js.mu.RUnlock()

	names := make([]string, 0, len(js.jobs))
	for name := range js.jobs {
		names = append(names, name)
	}
	return map[string]interface{}{
		"total_jobs": len(js.jobs),
		"jobs":       names,
	}
}
