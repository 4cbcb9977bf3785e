package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"time"

	"pulsepay/internal/billing"
	"pulsepay/internal/caching"
	"pulsepay/internal/common"
	"pulsepay/internal/config"
)

// RateOracle supplies the current exchange rate for a pair, fixed-point with
// 8 decimals (fiat units per whole native token). The ledger fails closed on
// non-positive rates and on feeds publishing a different precision.
type RateOracle interface {
	LatestRate(ctx context.Context, pair string) (uint64, error)
}

type httpRateOracle struct {
	endpoint string
	http     *http.Client
}

func NewRateOracle(cfg config.OracleConfig) RateOracle {
	return &httpRateOracle{
		endpoint: cfg.Endpoint,
		http: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		},
	}
}

type rateResponse struct {
	Pair     string `json:"pair"`
	Price    int64  `json:"price"`
	Decimals int    `json:"decimals"`
}

func (o *httpRateOracle) LatestRate(ctx context.Context, pair string) (uint64, error) {
	reqURL := fmt.Sprintf("%s/v1/rates?pair=%s", o.endpoint, url.QueryEscape(pair))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := o.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("oracle request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("oracle returned status %d", resp.StatusCode)
	}

	var rate rateResponse
	if err := json.NewDecoder(resp.Body).Decode(&rate); err != nil {
		return 0, fmt.Errorf("failed to decode oracle response: %w", err)
	}
	// A feed publishing a different precision would misprice every charge.
	if rate.Price <= 0 || rate.Decimals != billing.FiatDecimals {
		return 0, common.ErrInvalidRate
	}
	return uint64(rate.Price), nil
}

// cachedRateOracle fronts an oracle with the redis rate cache so the sweep
// does not hammer the feed once per subscriber.
type cachedRateOracle struct {
	inner RateOracle
	cache caching.CacheService
	ttl   time.Duration
}

func NewCachedRateOracle(inner RateOracle, cache caching.CacheService, ttl time.Duration) RateOracle {
	return &cachedRateOracle{inner: inner, cache: cache, ttl: ttl}
}

func (o *cachedRateOracle) LatestRate(ctx context.Context, pair string) (uint64, error) {
	rate, err := o.cache.GetRate(ctx, pair)
	if err == nil {
		return rate, nil
	}
	if !errors.Is(err, caching.ErrCacheMiss) {
		log.Printf("Rate cache read failed for %s: %v", pair, err)
	}

	rate, err = o.inner.LatestRate(ctx, pair)
	if err != nil {
		return 0, err
	}
	if cacheErr := o.cache.SetRate(ctx, pair, rate, o.ttl); cacheErr != nil {
		log.Printf("Rate cache write failed for %s: %v", pair, cacheErr)
	}
	return rate, nil
}
