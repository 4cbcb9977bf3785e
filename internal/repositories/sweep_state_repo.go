package repositories

import (
	"context"
	"errors"
	"time"

	"pulsepay/internal/models"

	"github.com/jackc/pgx/v5"
)

type SweepStateRepository interface {
	Get(ctx context.Context) (*models.SweepState, error)
	Set(ctx context.Context, state *models.SweepState) error
}

type sweepStateRepo struct {
	db DB
}

func NewSweepStateRepo(db DB) SweepStateRepository {
	return &sweepStateRepo{db: db}
}

// Get returns the single schedule row; before the first sweep it reports a
// zero NextSweepAt, which the service treats as immediately due.
func (r *sweepStateRepo) Get(ctx context.Context) (*models.SweepState, error) {
	state := &models.SweepState{}
	query := `SELECT next_sweep_at, last_sweep_at FROM sweep_state WHERE id = 1`
	err := r.db.QueryRow(ctx, query).Scan(&state.NextSweepAt, &state.LastSweepAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return &models.SweepState{NextSweepAt: time.Time{}, LastSweepAt: time.Time{}}, nil
	}
	if err != nil {
		return nil, err
	}
	return state, nil
}

func (r *sweepStateRepo) Set(ctx context.Context, state *models.SweepState) error {
	query := `
		INSERT INTO sweep_state (id, next_sweep_at, last_sweep_at)
		VALUES (1, $1, $2)
		ON CONFLICT (id) DO UPDATE
		SET next_sweep_at = $1, last_sweep_at = $2
	`
	_, err := r.db.Exec(ctx, query, state.NextSweepAt, state.LastSweepAt)
	return err
}
