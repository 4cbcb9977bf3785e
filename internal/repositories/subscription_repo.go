package repositories

import (
	"context"
	"errors"

	"pulsepay/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type SubscriptionRepository interface {
	Upsert(ctx context.Context, sub *models.Subscription) error
	GetBySubscriber(ctx context.Context, subscriberID uuid.UUID) (*models.Subscription, error)
	ListActive(ctx context.Context) ([]*models.Subscription, error)
	CountActive(ctx context.Context) (int, error)
	CountActiveByPlan(ctx context.Context, planID uint64) (int, error)
}

type subscriptionRepo struct {
	db DB
}

func NewSubscriptionRepo(db DB) SubscriptionRepository {
	return &subscriptionRepo{db: db}
}

// Upsert writes the single subscription row a subscriber may hold. Rows are
// never deleted; lapsed subscriptions keep next_charge_at for grace resumes.
func (r *subscriptionRepo) Upsert(ctx context.Context, sub *models.Subscription) error {
	query := `
		INSERT INTO subscriptions (subscriber_id, plan_id, next_charge_at, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		ON CONFLICT (subscriber_id) DO UPDATE
		SET plan_id = $2, next_charge_at = $3, active = $4, updated_at = NOW()
	`
	_, err := r.db.Exec(ctx, query, sub.SubscriberID, sub.PlanID, sub.NextChargeAt, sub.Active)
	return err
}

// GetBySubscriber returns (nil, nil) when the subscriber has never held a
// subscription; callers branch on that for the fresh-subscribe path.
func (r *subscriptionRepo) GetBySubscriber(ctx context.Context, subscriberID uuid.UUID) (*models.Subscription, error) {
	sub := &models.Subscription{}
	query := `
		SELECT subscriber_id, plan_id, next_charge_at, active, created_at, updated_at
		FROM subscriptions
		WHERE subscriber_id = $1
	`
	err := r.db.QueryRow(ctx, query, subscriberID).Scan(&sub.SubscriberID, &sub.PlanID, &sub.NextChargeAt, &sub.Active, &sub.CreatedAt, &sub.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return sub, nil
}

func (r *subscriptionRepo) ListActive(ctx context.Context) ([]*models.Subscription, error) {
	query := `
		SELECT subscriber_id, plan_id, next_charge_at, active, created_at, updated_at
		FROM subscriptions
		WHERE active = TRUE
		ORDER BY plan_id, subscriber_id
	`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []*models.Subscription
	for rows.Next() {
		sub := &models.Subscription{}
		if err := rows.Scan(&sub.SubscriberID, &sub.PlanID, &sub.NextChargeAt, &sub.Active, &sub.CreatedAt, &sub.UpdatedAt); err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

func (r *subscriptionRepo) CountActive(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM subscriptions WHERE active = TRUE`).Scan(&n)
	return n, err
}

func (r *subscriptionRepo) CountActiveByPlan(ctx context.Context, planID uint64) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM subscriptions WHERE active = TRUE AND plan_id = $1`, planID).Scan(&n)
	return n, err
}
