package repositories

import (
	"context"
	"errors"

	"pulsepay/internal/common"
	"pulsepay/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type AccountRepository interface {
	Create(ctx context.Context, account *models.Account) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error)
}

type accountRepo struct {
	db DB
}

func NewAccountRepo(db DB) AccountRepository {
	return &accountRepo{db: db}
}

func (r *accountRepo) Create(ctx context.Context, account *models.Account) error {
	query := `
		INSERT INTO accounts (id, wallet_address, role, created_at)
		VALUES ($1, $2, $3, NOW())
	`
	_, err := r.db.Exec(ctx, query, account.ID, account.WalletAddress, account.Role)
	return err
}

func (r *accountRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	account := &models.Account{}
	query := `SELECT id, wallet_address, role, created_at FROM accounts WHERE id = $1`
	err := r.db.QueryRow(ctx, query, id).Scan(&account.ID, &account.WalletAddress, &account.Role, &account.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, common.ErrInvalidAccount
	}
	if err != nil {
		return nil, err
	}
	return account, nil
}
