package config

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
)

// EngineConfig holds the billing-engine tunables that are not wiring
// secrets (those come from the environment in main).
type EngineConfig struct {
	Gateway GatewayConfig `toml:"gateway"`
	Oracle  OracleConfig  `toml:"oracle"`
	Billing BillingConfig `toml:"billing"`
	Escrow  EscrowConfig  `toml:"escrow"`
}

// GatewayConfig points at the wallet authorization gateway.
type GatewayConfig struct {
	Endpoint       string `toml:"endpoint"`
	APIKey         string `toml:"api_key"`
	JWKSURL        string `toml:"jwks_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// OracleConfig points at the exchange-rate oracle.
type OracleConfig struct {
	Endpoint        string `toml:"endpoint"`
	Pair            string `toml:"pair"`
	TimeoutSeconds  int    `toml:"timeout_seconds"`
	CacheTTLSeconds int    `toml:"cache_ttl_seconds"`
}

// BillingConfig tunes the subscription ledger.
type BillingConfig struct {
	Asset           string `toml:"asset"`
	OwnerWithdrawTo string `toml:"owner_withdraw_to"`
	ReceiptBucket   string `toml:"receipt_bucket"`
}

// EscrowConfig tunes the escrow ledger and its subscription variant.
type EscrowConfig struct {
	DisputePeriodHours      int `toml:"dispute_period_hours"`
	RenewalWindowOpenHours  int `toml:"renewal_window_open_hours"`
	RenewalWindowCloseHours int `toml:"renewal_window_close_hours"`
	CancelLockoutHours      int `toml:"cancel_lockout_hours"`
}

// Load reads the engine config from a TOML file.
func Load(filename string) (*EngineConfig, error) {
	config := defaults()
	_, err := toml.DecodeFile(filename, config)
	if err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}
	return config, nil
}

// Defaults returns a config usable without a file, for development.
func Defaults() *EngineConfig {
	return defaults()
}

func defaults() *EngineConfig {
	return &EngineConfig{
		Gateway: GatewayConfig{
			Endpoint:       "http://localhost:9100",
			TimeoutSeconds: 10,
		},
		Oracle: OracleConfig{
			Endpoint:        "http://localhost:9200",
			Pair:            "ETH/USD",
			TimeoutSeconds:  5,
			CacheTTLSeconds: 60,
		},
		Billing: BillingConfig{
			Asset:         "ETH",
			ReceiptBucket: "pulsepay-receipts",
		},
		Escrow: EscrowConfig{
			DisputePeriodHours:      72,
			RenewalWindowOpenHours:  168,
			RenewalWindowCloseHours: 24,
			CancelLockoutHours:      48,
		},
	}
}

func (c *EscrowConfig) DisputePeriod() time.Duration {
	return time.Duration(c.DisputePeriodHours) * time.Hour
}

func (c *EscrowConfig) RenewalWindowOpen() time.Duration {
	return time.Duration(c.RenewalWindowOpenHours) * time.Hour
}

func (c *EscrowConfig) RenewalWindowClose() time.Duration {
	return time.Duration(c.RenewalWindowCloseHours) * time.Hour
}

func (c *EscrowConfig) CancelLockout() time.Duration {
	return time.Duration(c.CancelLockoutHours) * time.Hour
}
