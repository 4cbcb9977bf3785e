package caching

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"pulsepay/internal/models"

	"github.com/redis/go-redis/v9"
)

type CacheService interface {
	// Live plan projection
	GetLivePlans(ctx context.Context) ([]*models.Plan, error)
	SetLivePlans(ctx context.Context, plans []*models.Plan, ttl time.Duration) error
	InvalidatePlans(ctx context.Context) error

	// Oracle rate caching
	GetRate(ctx context.Context, pair string) (uint64, error)
	SetRate(ctx context.Context, pair string, rate uint64, ttl time.Duration) error

	// Sweep replica lock
	AcquireSweepLock(ctx context.Context, ttl time.Duration) (bool, error)
	ReleaseSweepLock(ctx context.Context) error
}

// ErrCacheMiss is returned when a key is absent; callers fall through to the
// source of truth.
var ErrCacheMiss = errors.New("cache miss")

const (
	livePlansKey = "plans:live"
	ratePrefix   = "rate:"
	sweepLockKey = "sweep:lock"
)

type redisCacheService struct {
	client *redis.Client
}

func NewRedisCacheService(addr, password string, db int) CacheService {
	// Accept redis://host:port as well as bare host:port.
	parsedAddr := addr
	if strings.HasPrefix(addr, "redis://") || strings.HasPrefix(addr, "rediss://") {
		if hostPort := strings.TrimPrefix(strings.TrimPrefix(addr, "redis://"), "rediss://"); hostPort != addr {
			parsedAddr = hostPort
		}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     parsedAddr,
		Password: password,
		DB:       db,
	})
	return &redisCacheService{client: client}
}

func (s *redisCacheService) GetLivePlans(ctx context.Context) ([]*models.Plan, error) {
	raw, err := s.client.Get(ctx, livePlansKey).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, err
	}
	var plans []*models.Plan
	if err := json.Unmarshal([]byte(raw), &plans); err != nil {
		return nil, err
	}
	return plans, nil
}

func (s *redisCacheService) SetLivePlans(ctx context.Context, plans []*models.Plan, ttl time.Duration) error {
	raw, err := json.Marshal(plans)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, livePlansKey, raw, ttl).Err()
}

func (s *redisCacheService) InvalidatePlans(ctx context.Context) error {
	if err := s.client.Del(ctx, livePlansKey).Err(); err != nil {
		log.Printf("Failed to invalidate plan cache: %v", err)
		return err
	}
	return nil
}

func (s *redisCacheService) GetRate(ctx context.Context, pair string) (uint64, error) {
	raw, err := s.client.Get(ctx, ratePrefix+pair).Result()
	if errors.Is(err, redis.Nil) {
		return 0, ErrCacheMiss
	}
	if err != nil {
		return 0, err
	}
	rate, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("corrupt cached rate for %s: %w", pair, err)
	}
	return rate, nil
}

func (s *redisCacheService) SetRate(ctx context.Context, pair string, rate uint64, ttl time.Duration) error {
	return s.client.Set(ctx, ratePrefix+pair, strconv.FormatUint(rate, 10), ttl).Err()
}

// AcquireSweepLock takes a short-TTL lock so only one replica runs the
// billing sweep at a time. The schedule gate itself lives in postgres.
func (s *redisCacheService) AcquireSweepLock(ctx context.Context, ttl time.Duration) (bool, error) {
	return s.client.SetNX(ctx, sweepLockKey, "1", ttl).Result()
}

func (s *redisCacheService) ReleaseSweepLock(ctx context.Context) error {
	return s.client.Del(ctx, sweepLockKey).Err()
}
