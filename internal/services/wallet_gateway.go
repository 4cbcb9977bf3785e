package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"pulsepay/internal/config"

	"github.com/google/uuid"
)

// WalletGateway is the external authorization capability that actually moves
// funds. ChargeWallet pulls from a subscriber's smart wallet; Transfer pays
// out of the ledger's custody to an account's wallet. Every call is
// fallible and must be treated as non-atomic with respect to local state.
type WalletGateway interface {
	ChargeWallet(ctx context.Context, accountID uuid.UUID, amountWei uint64) error
	Transfer(ctx context.Context, accountID uuid.UUID, amountWei uint64) error
	UpdatePaymaster(ctx context.Context, address string) error
}

type walletGateway struct {
	endpoint string
	apiKey   string
	http     *http.Client
}

func NewWalletGateway(cfg config.GatewayConfig) WalletGateway {
	return &walletGateway{
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		http: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		},
	}
}

type chargeRequest struct {
	AccountID uuid.UUID `json:"account_id"`
	AmountWei uint64    `json:"amount_wei"`
}

type transferRequest struct {
	AccountID uuid.UUID `json:"account_id"`
	AmountWei uint64    `json:"amount_wei"`
}

type paymasterRequest struct {
	Address string `json:"address"`
}

type gatewayError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (g *walletGateway) ChargeWallet(ctx context.Context, accountID uuid.UUID, amountWei uint64) error {
	return g.post(ctx, "/v1/charges", chargeRequest{AccountID: accountID, AmountWei: amountWei})
}

func (g *walletGateway) Transfer(ctx context.Context, accountID uuid.UUID, amountWei uint64) error {
	return g.post(ctx, "/v1/transfers", transferRequest{AccountID: accountID, AmountWei: amountWei})
}

func (g *walletGateway) UpdatePaymaster(ctx context.Context, address string) error {
	return g.post(ctx, "/v1/paymaster", paymasterRequest{Address: address})
}

func (g *walletGateway) post(ctx context.Context, path string, payload interface{}) error {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint+path, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", g.apiKey))

	resp, err := g.http.Do(req)
	if err != nil {
		return fmt.Errorf("gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	body, _ := io.ReadAll(resp.Body)
	var gwErr gatewayError
	if json.Unmarshal(body, &gwErr) == nil && gwErr.Code != "" {
		return fmt.Errorf("gateway refused %s: %s (%s)", path, gwErr.Message, gwErr.Code)
	}
	return fmt.Errorf("gateway returned status %d for %s", resp.StatusCode, path)
}
