package repositories

import (
	"context"
	"errors"

	"pulsepay/internal/common"
	"pulsepay/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type EscrowRepository interface {
	Create(ctx context.Context, escrow *models.Escrow) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Escrow, error)
	Update(ctx context.Context, escrow *models.Escrow) error
	ListByParty(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]*models.Escrow, error)
}

type escrowRepo struct {
	db DB
}

func NewEscrowRepo(db DB) EscrowRepository {
	return &escrowRepo{db: db}
}

func (r *escrowRepo) Create(ctx context.Context, escrow *models.Escrow) error {
	query := `
		INSERT INTO escrows (id, buyer_id, seller_id, amount_wei, released, disputed, dispute_deadline, dispute_winner, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
	`
	_, err := r.db.Exec(ctx, query, escrow.ID, escrow.BuyerID, escrow.SellerID, escrow.AmountWei,
		escrow.Released, escrow.Disputed, escrow.DisputeDeadline, escrow.DisputeWinner)
	return err
}

func (r *escrowRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Escrow, error) {
	escrow := &models.Escrow{}
	query := `
		SELECT id, buyer_id, seller_id, amount_wei, released, disputed, dispute_deadline, dispute_winner, created_at, updated_at
		FROM escrows
		WHERE id = $1
	`
	err := r.db.QueryRow(ctx, query, id).Scan(&escrow.ID, &escrow.BuyerID, &escrow.SellerID, &escrow.AmountWei,
		&escrow.Released, &escrow.Disputed, &escrow.DisputeDeadline, &escrow.DisputeWinner, &escrow.CreatedAt, &escrow.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, common.ErrEscrowNotFound
	}
	if err != nil {
		return nil, err
	}
	return escrow, nil
}

func (r *escrowRepo) Update(ctx context.Context, escrow *models.Escrow) error {
	query := `
		UPDATE escrows
		SET released = $1, disputed = $2, dispute_winner = $3, updated_at = NOW()
		WHERE id = $4
	`
	tag, err := r.db.Exec(ctx, query, escrow.Released, escrow.Disputed, escrow.DisputeWinner, escrow.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return common.ErrEscrowNotFound
	}
	return nil
}

func (r *escrowRepo) ListByParty(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]*models.Escrow, error) {
	query := `
		SELECT id, buyer_id, seller_id, amount_wei, released, disputed, dispute_deadline, dispute_winner, created_at, updated_at
		FROM escrows
		WHERE buyer_id = $1 OR seller_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.db.Query(ctx, query, accountID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var escrows []*models.Escrow
	for rows.Next() {
		escrow := &models.Escrow{}
		if err := rows.Scan(&escrow.ID, &escrow.BuyerID, &escrow.SellerID, &escrow.AmountWei,
			&escrow.Released, &escrow.Disputed, &escrow.DisputeDeadline, &escrow.DisputeWinner, &escrow.CreatedAt, &escrow.UpdatedAt); err != nil {
			return nil, err
		}
		escrows = append(escrows, escrow)
	}
	return escrows, rows.Err()
}
