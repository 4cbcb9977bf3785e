package repositories

import (
	"context"
	"errors"

	"pulsepay/internal/common"
	"pulsepay/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type EscrowSubscriptionRepository interface {
	Create(ctx context.Context, sub *models.EscrowSubscription) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.EscrowSubscription, error)
	Update(ctx context.Context, sub *models.EscrowSubscription) error
}

type escrowSubscriptionRepo struct {
	db DB
}

func NewEscrowSubscriptionRepo(db DB) EscrowSubscriptionRepository {
	return &escrowSubscriptionRepo{db: db}
}

func (r *escrowSubscriptionRepo) Create(ctx context.Context, sub *models.EscrowSubscription) error {
	query := `
		INSERT INTO escrow_subscriptions (id, subscriber_id, price_wei, period_days, expires_at, allowed_payers, cancelled, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
	`
	_, err := r.db.Exec(ctx, query, sub.ID, sub.SubscriberID, sub.PriceWei, sub.PeriodDays,
		sub.ExpiresAt, payersToStrings(sub.AllowedPayers), sub.Cancelled)
	return err
}

func (r *escrowSubscriptionRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.EscrowSubscription, error) {
	sub := &models.EscrowSubscription{}
	var payers []string
	query := `
		SELECT id, subscriber_id, price_wei, period_days, expires_at, allowed_payers, cancelled, created_at, updated_at
		FROM escrow_subscriptions
		WHERE id = $1
	`
	err := r.db.QueryRow(ctx, query, id).Scan(&sub.ID, &sub.SubscriberID, &sub.PriceWei, &sub.PeriodDays,
		&sub.ExpiresAt, &payers, &sub.Cancelled, &sub.CreatedAt, &sub.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, common.ErrEscrowNotFound
	}
	if err != nil {
		return nil, err
	}
	sub.AllowedPayers, err = payersFromStrings(payers)
	if err != nil {
		return nil, err
	}
	return sub, nil
}

func (r *escrowSubscriptionRepo) Update(ctx context.Context, sub *models.EscrowSubscription) error {
	query := `
		UPDATE escrow_subscriptions
		SET expires_at = $1, allowed_payers = $2, cancelled = $3, updated_at = NOW()
		WHERE id = $4
	`
	tag, err := r.db.Exec(ctx, query, sub.ExpiresAt, payersToStrings(sub.AllowedPayers), sub.Cancelled, sub.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return common.ErrEscrowNotFound
	}
	return nil
}

// allowed_payers is a text[] column; uuids cross the wire as strings.
func payersToStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

func payersFromStrings(raw []string) ([]uuid.UUID, error) {
	out := make([]uuid.UUID, len(raw))
	for i, s := range raw {
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, err
		}
		out[i] = id
	}
	return out, nil
}
