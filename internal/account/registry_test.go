package account_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/cyberguard/cyberguard/internal/account"
	"github.com/cyberguard/cyberguard/tests/testutil"
)

func newRegistry(t *testing.T) *account.Registry {
	t.Helper()
	return account.NewRegistry(testutil.NewTestStore(t), account.WithCost(bcrypt.MinCost))
}

func TestRegisterAndLogin(t *testing.T) {
	ctx := context.Background()
	r := newRegistry(t)

	user, err := r.Register(ctx, " Ada ", "Ada@Example.com ", "secret123")
	require.NoError(t, err)
	assert.NotEmpty(t, user.ID)
	assert.Equal(t, "Ada", user.Name)
	assert.Equal(t, "ada@example.com", user.Email)
	assert.NotEqual(t, "secret123", user.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("secret123")))

	got, err := r.Login(ctx, "ADA@example.com", "secret123")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)
	assert.Equal(t, "Ada", got.Name)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	ctx := context.Background()
	r := newRegistry(t)

	_, err := r.Register(ctx, "Ada", "ada@example.com", "secret123")
	require.NoError(t, err)

	_, err = r.Register(ctx, "Other", "ADA@example.com", "another1")
	assert.ErrorIs(t, err, account.ErrEmailTaken)
}

func TestRegisterValidation(t *testing.T) {
	tests := []struct {
		name     string
		userName string
		email    string
		password string
	}{
		{"missing name", "  ", "a@b.co", "secret123"},
		{"missing email", "Ada", "", "secret123"},
		{"malformed email", "Ada", "not-an-email", "secret123"},
		{"short password", "Ada", "a@b.co", "12345"},
		{"long password", "Ada", "a@b.co", strings.Repeat("x", 73)},
	}

	r := newRegistry(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Register(context.Background(), tt.userName, tt.email, tt.password)
			assert.ErrorIs(t, err, account.ErrInvalidInput)
		})
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	ctx := context.Background()
	r := newRegistry(t)

	_, err := r.Register(ctx, "Ada", "ada@example.com", "secret123")
	require.NoError(t, err)

	t.Run("wrong password", func(t *testing.T) {
		_, err := r.Login(ctx, "ada@example.com", "secret124")
		assert.ErrorIs(t, err, account.ErrInvalidCredentials)
	})

	t.Run("unknown email", func(t *testing.T) {
		_, err := r.Login(ctx, "bob@example.com", "secret123")
		assert.ErrorIs(t, err, account.ErrInvalidCredentials)
	})

	t.Run("invalid input", func(t *testing.T) {
		_, err := r.Login(ctx, "ada@example.com", "")
		assert.ErrorIs(t, err, account.ErrInvalidInput)
	})
}
