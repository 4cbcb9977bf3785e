package repositories

import (
	"context"
	"errors"

	"pulsepay/internal/common"
	"pulsepay/internal/models"

	"github.com/jackc/pgx/v5"
)

type PlanRepository interface {
	Create(ctx context.Context, name string, feeFiat uint64) (*models.Plan, error)
	GetByID(ctx context.Context, id uint64) (*models.Plan, error)
	Update(ctx context.Context, plan *models.Plan) error
	Delete(ctx context.Context, id uint64) error
	List(ctx context.Context) ([]*models.Plan, error)
	ListLive(ctx context.Context) ([]*models.Plan, error)
}

type planRepo struct {
	db DB
}

func NewPlanRepo(db DB) PlanRepository {
	return &planRepo{db: db}
}

// Create assigns the next sequential id. Ids come from a sequence and are
// never reassigned after a delete.
func (r *planRepo) Create(ctx context.Context, name string, feeFiat uint64) (*models.Plan, error) {
	plan := &models.Plan{Name: name, FeeFiat: feeFiat}
	query := `
		INSERT INTO plans (name, fee_fiat, live, created_at, updated_at)
		VALUES ($1, $2, FALSE, NOW(), NOW())
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query, name, feeFiat).Scan(&plan.ID, &plan.CreatedAt, &plan.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return plan, nil
}

func (r *planRepo) GetByID(ctx context.Context, id uint64) (*models.Plan, error) {
	plan := &models.Plan{}
	query := `
		SELECT id, name, fee_fiat, live, created_at, updated_at
		FROM plans
		WHERE id = $1
	`
	err := r.db.QueryRow(ctx, query, id).Scan(&plan.ID, &plan.Name, &plan.FeeFiat, &plan.Live, &plan.CreatedAt, &plan.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, common.ErrInvalidPlan
	}
	if err != nil {
		return nil, err
	}
	return plan, nil
}

func (r *planRepo) Update(ctx context.Context, plan *models.Plan) error {
	query := `
		UPDATE plans
		SET name = $1, fee_fiat = $2, live = $3, updated_at = NOW()
		WHERE id = $4
	`
	tag, err := r.db.Exec(ctx, query, plan.Name, plan.FeeFiat, plan.Live, plan.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return common.ErrInvalidPlan
	}
	return nil
}

func (r *planRepo) Delete(ctx context.Context, id uint64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM plans WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return common.ErrInvalidPlan
	}
	return nil
}

func (r *planRepo) List(ctx context.Context) ([]*models.Plan, error) {
	return r.list(ctx, `
		SELECT id, name, fee_fiat, live, created_at, updated_at
		FROM plans
		ORDER BY id
	`)
}

func (r *planRepo) ListLive(ctx context.Context) ([]*models.Plan, error) {
	return r.list(ctx, `
		SELECT id, name, fee_fiat, live, created_at, updated_at
		FROM plans
		WHERE live = TRUE
		ORDER BY id
	`)
}

func (r *planRepo) list(ctx context.Context, query string) ([]*models.Plan, error) {
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var plans []*models.Plan
	for rows.Next() {
		plan := &models.Plan{}
		if err := rows.Scan(&plan.ID, &plan.Name, &plan.FeeFiat, &plan.Live, &plan.CreatedAt, &plan.UpdatedAt); err != nil {
			return nil, err
		}
		plans = append(plans, plan)
	}
	return plans, rows.Err()
}
