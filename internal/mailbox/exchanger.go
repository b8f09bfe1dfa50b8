package mailbox

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/cyberguard/cyberguard/internal/logger"
	"github.com/cyberguard/cyberguard/internal/provider"
)

// Token is a bearer credential together with the account it belongs to.
type Token struct {
	Value     string
	AccountID string
}

// Exchanger trades account credentials for a bearer token.
type Exchanger struct {
	api    TokenIssuer
	logger *zap.Logger
}

// NewExchanger creates an Exchanger backed by api.
func NewExchanger(api TokenIssuer, l *zap.Logger) *Exchanger {
	return &Exchanger{api: api, logger: logger.OrNop(l)}
}

// Authenticate requests a token for address. A success response without a
// token is treated as a failure.
func (e *Exchanger) Authenticate(ctx context.Context, address, password string) (Token, error) {
	resp, err := e.api.Token(ctx, provider.Credentials{
		Address:  address,
		Password: password,
	})
	if err != nil {
		var se *provider.StatusError
		switch {
		case errors.As(err, &se):
			return Token{}, &AuthenticationError{
				Address:    address,
				StatusCode: se.StatusCode,
				Details:    se.Detail(),
			}
		case errors.Is(err, provider.ErrMalformedResponse):
			return Token{}, &AuthenticationError{
				Address: address,
				Details: err.Error(),
			}
		default:
			return Token{}, fmt.Errorf("%w: requesting token: %w", ErrProviderUnavailable, err)
		}
	}

	if resp == nil || strings.TrimSpace(resp.Token) == "" {
		return Token{}, &AuthenticationError{
			Address: address,
			Details: "response carried no token",
		}
	}

	tok := Token{Value: resp.Token, AccountID: resp.ID}
	if tok.AccountID == "" {
		tok.AccountID = accountIDFromClaims(resp.Token)
	}

	e.logger.Debug("token issued",
		zap.String("address", address),
		zap.String("account_id", tok.AccountID),
	)

	return tok, nil
}

// accountIDFromClaims reads the "id" claim without verifying the
// signature. The value is only used to address DELETE /accounts/{id},
// which the provider authorizes on its own.
func accountIDFromClaims(token string) string {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return ""
	}
	id, _ := claims["id"].(string)
	return id
}
