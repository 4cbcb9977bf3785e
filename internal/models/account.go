package models

import (
	"time"

	"github.com/google/uuid"
)

// Account binds a subscriber identity to the smart-wallet address the
// authorization gateway charges. Owner accounts may also arbitrate disputes
// and run owner-only ledger operations.
type Account struct {
	ID            uuid.UUID `json:"id" db:"id"`
	WalletAddress string    `json:"wallet_address" db:"wallet_address"`
	Role          string    `json:"role" db:"role"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}
