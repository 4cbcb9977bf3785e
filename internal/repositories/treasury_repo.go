package repositories

import (
	"context"
	"errors"

	"pulsepay/internal/common"
	"pulsepay/internal/models"

	"github.com/jackc/pgx/v5"
)

type TreasuryRepository interface {
	Get(ctx context.Context, asset string) (*models.Treasury, error)
	Credit(ctx context.Context, asset string, amountWei uint64, revenue bool) error
	Debit(ctx context.Context, asset string, amountWei uint64, revenue bool) error
}

type treasuryRepo struct {
	db DB
}

func NewTreasuryRepo(db DB) TreasuryRepository {
	return &treasuryRepo{db: db}
}

func (r *treasuryRepo) Get(ctx context.Context, asset string) (*models.Treasury, error) {
	t := &models.Treasury{}
	query := `
		SELECT asset, balance_wei, revenue_wei, updated_at
		FROM treasury
		WHERE asset = $1
	`
	err := r.db.QueryRow(ctx, query, asset).Scan(&t.Asset, &t.BalanceWei, &t.RevenueWei, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return &models.Treasury{Asset: asset}, nil
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (r *treasuryRepo) Credit(ctx context.Context, asset string, amountWei uint64, revenue bool) error {
	query := `
		INSERT INTO treasury (asset, balance_wei, revenue_wei, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (asset) DO UPDATE
		SET balance_wei = treasury.balance_wei + $2,
		    revenue_wei = treasury.revenue_wei + $3,
		    updated_at = NOW()
	`
	var rev uint64
	if revenue {
		rev = amountWei
	}
	_, err := r.db.Exec(ctx, query, asset, amountWei, rev)
	return err
}

// Debit refuses to take the balance negative; the guard runs in SQL so two
// concurrent debits cannot both pass a stale read. With revenue set the
// lifetime revenue counter is backed out by the same amount, used when a
// revenue credit is being reversed.
func (r *treasuryRepo) Debit(ctx context.Context, asset string, amountWei uint64, revenue bool) error {
	query := `
		UPDATE treasury
		SET balance_wei = balance_wei - $2,
		    revenue_wei = revenue_wei - $3,
		    updated_at = NOW()
		WHERE asset = $1 AND balance_wei >= $2 AND revenue_wei >= $3
	`
	var rev uint64
	if revenue {
		rev = amountWei
	}
	tag, err := r.db.Exec(ctx, query, asset, amountWei, rev)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return common.ErrInsufficientBalance
	}
	return nil
}
