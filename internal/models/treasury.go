package models

import "time"

// Treasury tracks the funds the ledger itself custodies for one asset.
// Balance moves with every charge, deposit, refund, payout and withdrawal;
// Revenue only accumulates successful subscription charges. Every debit is
// checked against Balance before any transfer goes out.
type Treasury struct {
	Asset      string    `json:"asset" db:"asset"`
	BalanceWei uint64    `json:"balance_wei" db:"balance_wei"`
	RevenueWei uint64    `json:"revenue_wei" db:"revenue_wei"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}
