package handlers

import (
	"net/http"

	"pulsepay/internal/common"
	"pulsepay/internal/models"
	"pulsepay/internal/repositories"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// AccountHandlers handles account registration and lookup.
type AccountHandlers struct {
	accountRepo repositories.AccountRepository
}

func NewAccountHandlers(accountRepo repositories.AccountRepository) *AccountHandlers {
	return &AccountHandlers{accountRepo: accountRepo}
}

// CreateAccount handles POST /v1/accounts. Registration is open; the owner
// role can only be granted out of band.
func (h *AccountHandlers) CreateAccount(c echo.Context) error {
	var req struct {
		WalletAddress string `json:"wallet_address"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request format")
	}
	if req.WalletAddress == "" {
		return common.SendValidationError(c, "wallet_address", "wallet_address is required")
	}

	account := &models.Account{
		ID:            uuid.New(),
		WalletAddress: req.WalletAddress,
		Role:          common.RoleSubscriber,
	}
	if err := h.accountRepo.Create(c.Request().Context(), account); err != nil {
		return common.SendServerError(c, "failed to create account")
	}
	return c.JSON(http.StatusCreated, map[string]interface{}{
		"message": "Account created",
		"account": account,
	})
}

// GetMyAccount handles GET /v1/accounts/me
func (h *AccountHandlers) GetMyAccount(c echo.Context) error {
	ctx := c.Request().Context()
	accountID, ok := common.GetAccountIDFromContext(ctx)
	if !ok {
		return common.SendUnauthorizedError(c)
	}

	account, err := h.accountRepo.GetByID(ctx, accountID)
	if err != nil {
		return common.SendLedgerError(c, err)
	}
	return c.JSON(http.StatusOK, account)
}
