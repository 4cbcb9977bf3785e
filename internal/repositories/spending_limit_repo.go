package repositories

import (
	"context"
	"errors"

	"pulsepay/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type SpendingLimitRepository interface {
	Get(ctx context.Context, payerID uuid.UUID, asset string) (*models.SpendingLimit, error)
	Upsert(ctx context.Context, limit *models.SpendingLimit) error
	DeleteExpiredDisabled(ctx context.Context) (int64, error)
}

type spendingLimitRepo struct {
	db DB
}

func NewSpendingLimitRepo(db DB) SpendingLimitRepository {
	return &spendingLimitRepo{db: db}
}

// Get returns (nil, nil) when the payer has never set a limit on the asset.
func (r *spendingLimitRepo) Get(ctx context.Context, payerID uuid.UUID, asset string) (*models.SpendingLimit, error) {
	limit := &models.SpendingLimit{}
	query := `
		SELECT payer_id, asset, cap, available, window_reset_at, enabled, updated_at
		FROM spending_limits
		WHERE payer_id = $1 AND asset = $2
	`
	err := r.db.QueryRow(ctx, query, payerID, asset).Scan(&limit.PayerID, &limit.Asset, &limit.Cap,
		&limit.Available, &limit.WindowResetAt, &limit.Enabled, &limit.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return limit, nil
}

func (r *spendingLimitRepo) Upsert(ctx context.Context, limit *models.SpendingLimit) error {
	query := `
		INSERT INTO spending_limits (payer_id, asset, cap, available, window_reset_at, enabled, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (payer_id, asset) DO UPDATE
		SET cap = $3, available = $4, window_reset_at = $5, enabled = $6, updated_at = NOW()
	`
	_, err := r.db.Exec(ctx, query, limit.PayerID, limit.Asset, limit.Cap, limit.Available, limit.WindowResetAt, limit.Enabled)
	return err
}

// DeleteExpiredDisabled vacuums disabled limits whose window has long
// elapsed; run from the background scheduler.
func (r *spendingLimitRepo) DeleteExpiredDisabled(ctx context.Context) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		DELETE FROM spending_limits
		WHERE enabled = FALSE AND window_reset_at < NOW() - INTERVAL '7 days'
	`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
