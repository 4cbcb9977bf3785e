package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"pulsepay/internal/common"
	"pulsepay/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func oracleServer(t *testing.T, resp rateResponse) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/rates", r.URL.Path)
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
}

func newTestOracle(endpoint string) RateOracle {
	return NewRateOracle(config.OracleConfig{Endpoint: endpoint, TimeoutSeconds: 2})
}

func TestRateOracleReturnsPrice(t *testing.T) {
	srv := oracleServer(t, rateResponse{Pair: "ETH/USD", Price: 2000_0000_0000, Decimals: 8})
	defer srv.Close()

	rate, err := newTestOracle(srv.URL).LatestRate(context.Background(), "ETH/USD")
	require.NoError(t, err)
	assert.Equal(t, uint64(2000_0000_0000), rate)
}

func TestRateOracleRejectsNonPositivePrice(t *testing.T) {
	srv := oracleServer(t, rateResponse{Pair: "ETH/USD", Price: 0, Decimals: 8})
	defer srv.Close()

	_, err := newTestOracle(srv.URL).LatestRate(context.Background(), "ETH/USD")
	assert.ErrorIs(t, err, common.ErrInvalidRate)
}

// A feed that switches to a different fixed-point precision must be refused,
// not silently rescaled.
func TestRateOracleRejectsMismatchedDecimals(t *testing.T) {
	srv := oracleServer(t, rateResponse{Pair: "ETH/USD", Price: 2000_000000, Decimals: 6})
	defer srv.Close()

	_, err := newTestOracle(srv.URL).LatestRate(context.Background(), "ETH/USD")
	assert.ErrorIs(t, err, common.ErrInvalidRate)
}

func TestRateOracleSurfacesUpstreamStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := newTestOracle(srv.URL).LatestRate(context.Background(), "ETH/USD")
	assert.Error(t, err)
}
