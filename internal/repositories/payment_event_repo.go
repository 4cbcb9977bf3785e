package repositories

import (
	"context"

	"pulsepay/internal/models"

	"github.com/google/uuid"
)

type PaymentEventRepository interface {
	Append(ctx context.Context, event *models.PaymentEvent) error
	List(ctx context.Context, limit, offset int) ([]*models.PaymentEvent, error)
}

type paymentEventRepo struct {
	db DB
}

func NewPaymentEventRepo(db DB) PaymentEventRepository {
	return &paymentEventRepo{db: db}
}

func (r *paymentEventRepo) Append(ctx context.Context, event *models.PaymentEvent) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	query := `
		INSERT INTO payment_events (id, kind, account_id, plan_id, escrow_id, amount_wei, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
	`
	_, err := r.db.Exec(ctx, query, event.ID, event.Kind, event.AccountID, event.PlanID, event.EscrowID, event.AmountWei, event.Detail)
	return err
}

func (r *paymentEventRepo) List(ctx context.Context, limit, offset int) ([]*models.PaymentEvent, error) {
	query := `
		SELECT id, kind, account_id, plan_id, escrow_id, amount_wei, detail, created_at
		FROM payment_events
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`
	rows, err := r.db.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*models.PaymentEvent
	for rows.Next() {
		event := &models.PaymentEvent{}
		if err := rows.Scan(&event.ID, &event.Kind, &event.AccountID, &event.PlanID, &event.EscrowID,
			&event.AmountWei, &event.Detail, &event.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, rows.Err()
}
