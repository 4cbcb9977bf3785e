package middleware

import (
	"context"
	"net/http"

	"pulsepay/internal/common"
	"pulsepay/internal/repositories"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
)

// JWTConfig builds the token-validation middleware config. Verification uses
// the gateway's JWKS when a URL is configured, otherwise the shared HMAC
// secret.
func JWTConfig(jwtSecret, jwksURL string) (echojwt.Config, error) {
	cfg := echojwt.Config{
		ErrorHandler: func(c echo.Context, err error) error {
			return echo.NewHTTPError(http.StatusUnauthorized, "Invalid token")
		},
	}

	if jwksURL != "" {
		jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{})
		if err != nil {
			return cfg, err
		}
		cfg.KeyFunc = jwks.Keyfunc
		return cfg, nil
	}

	cfg.SigningKey = []byte(jwtSecret)
	return cfg, nil
}

// AccountContext runs after token validation: it resolves the account named
// by the sub claim and puts the caller's identity and role into the request
// context.
func AccountContext(accountRepo repositories.AccountRepository) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token, ok := c.Get("user").(*jwt.Token)
			if !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, "Missing token")
			}
			claims, ok := token.Claims.(jwt.MapClaims)
			if !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, "Invalid claims")
			}

			sub, ok := claims["sub"].(string)
			if !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, "Missing account in token")
			}
			accountID, err := uuid.Parse(sub)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "Invalid account format")
			}

			account, err := accountRepo.GetByID(c.Request().Context(), accountID)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "Account not found")
			}

			// The role claim is advisory; the stored role wins.
			role := account.Role
			if role == "" {
				if claimed, ok := claims["role"].(string); ok {
					role = claimed
				}
			}

			ctx := context.WithValue(c.Request().Context(), common.AccountIDKey, accountID)
			ctx = context.WithValue(ctx, common.RoleKey, role)
			c.SetRequest(c.Request().WithContext(ctx))

			return next(c)
		}
	}
}
