package mailbox

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/cyberguard/cyberguard/internal/logger"
	"github.com/cyberguard/cyberguard/internal/provider"
)

const (
	// DefaultLocalPartLength is the length of generated local parts.
	DefaultLocalPartLength = 10

	// MinLocalPartLength is the shortest local part accepted.
	MinLocalPartLength = 6

	// DefaultPassword is the fixed password every account is created with.
	// It is only ever used for the token exchange.
	DefaultPassword = "TempPass1234!"

	localPartAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
)

// Provisioned is the result of a successful account creation.
type Provisioned struct {
	Address   string
	Password  string
	AccountID string
}

// Provisioner creates mailbox accounts with random local parts.
type Provisioner struct {
	api      AccountCreator
	length   int
	password string
	logger   *zap.Logger
}

// NewProvisioner creates a Provisioner. A length below MinLocalPartLength
// or an empty password falls back to the defaults.
func NewProvisioner(api AccountCreator, length int, password string, l *zap.Logger) *Provisioner {
	if length < MinLocalPartLength {
		length = DefaultLocalPartLength
	}
	if password == "" {
		password = DefaultPassword
	}
	return &Provisioner{
		api:      api,
		length:   length,
		password: password,
		logger:   logger.OrNop(l),
	}
}

// Provision creates an account under domain and returns its address and
// password.
func (p *Provisioner) Provision(ctx context.Context, domain string) (address, password string, err error) {
	res, err := p.ProvisionAccount(ctx, domain)
	if err != nil {
		return "", "", err
	}
	return res.Address, res.Password, nil
}

// ProvisionAccount is Provision that also returns the account id when the
// provider echoes one.
func (p *Provisioner) ProvisionAccount(ctx context.Context, domain string) (*Provisioned, error) {
	local, err := GenerateLocalPart(p.length)
	if err != nil {
		return nil, err
	}
	address := local + "@" + domain

	acct, err := p.api.CreateAccount(ctx, provider.Credentials{
		Address:  address,
		Password: p.password,
	})
	if err != nil {
		var se *provider.StatusError
		switch {
		case errors.As(err, &se):
			return nil, &AccountCreationError{
				Address:    address,
				StatusCode: se.StatusCode,
				Details:    se.Detail(),
			}
		case errors.Is(err, provider.ErrMalformedResponse):
			return nil, &AccountCreationError{
				Address: address,
				Details: err.Error(),
			}
		default:
			return nil, fmt.Errorf("%w: creating account: %w", ErrProviderUnavailable, err)
		}
	}

	p.logger.Info("account created", zap.String("address", address))

	return &Provisioned{
		Address:   address,
		Password:  p.password,
		AccountID: acct.ID,
	}, nil
}

// GenerateLocalPart returns n characters drawn uniformly from [a-z0-9]
// using crypto/rand.
func GenerateLocalPart(n int) (string, error) {
	if n <= 0 {
		return "", fmt.Errorf("local part length must be positive, got %d", n)
	}

	// 252 is the largest multiple of 36 below 256; bytes above it are
	// rejected so every character is equally likely.
	const limit = 256 - 256%len(localPartAlphabet)

	out := make([]byte, 0, n)
	buf := make([]byte, n*2)
	for len(out) < n {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("reading random bytes: %w", err)
		}
		for _, b := range buf {
			if int(b) >= limit {
				continue
			}
			out = append(out, localPartAlphabet[int(b)%len(localPartAlphabet)])
			if len(out) == n {
				break
			}
		}
	}
	return string(out), nil
}
