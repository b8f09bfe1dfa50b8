// Package account registers and authenticates local users of the app.
// These are not mailbox accounts at the provider.
package account

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/cyberguard/cyberguard/internal/logger"
	"github.com/cyberguard/cyberguard/internal/model"
	"github.com/cyberguard/cyberguard/internal/store"
)

// MinPasswordLength is the shortest password Register and Login accept.
const MinPasswordLength = 6

var (
	// ErrInvalidInput is returned when a name, email or password fails
	// validation.
	ErrInvalidInput = errors.New("invalid input")

	// ErrEmailTaken is returned when a user with the email already exists.
	ErrEmailTaken = errors.New("email already registered")

	// ErrInvalidCredentials is returned for an unknown email and for a
	// wrong password alike.
	ErrInvalidCredentials = errors.New("invalid email or password")
)

var emailRegex = regexp.MustCompile(`^\S+@\S+\.\S+$`)

// UserStore is the part of store.Store the registry needs.
type UserStore interface {
	CreateUser(ctx context.Context, user model.User) error
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
}

// Registry manages local users.
type Registry struct {
	users  UserStore
	cost   int
	now    func() time.Time
	logger *zap.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithCost sets the bcrypt cost. Tests use bcrypt.MinCost.
func WithCost(cost int) Option {
	return func(r *Registry) {
		r.cost = cost
	}
}

// WithLogger sets the registry logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Registry) {
		r.logger = logger.OrNop(l)
	}
}

// NewRegistry creates a registry backed by users.
func NewRegistry(users UserStore, opts ...Option) *Registry {
	r := &Registry{
		users:  users,
		cost:   bcrypt.DefaultCost,
		now:    time.Now,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register creates a user with a bcrypt-hashed password.
func (r *Registry) Register(ctx context.Context, name, email, password string) (*model.User, error) {
	name = strings.TrimSpace(name)
	email = normalizeEmail(email)

	if err := validate(email, password); err != nil {
		return nil, err
	}
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), r.cost)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	user := model.User{
		ID:           uuid.New().String(),
		Name:         name,
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    r.now(),
	}

	if err := r.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("registering %s: %w", email, err)
	}

	r.logger.Info("user registered", zap.String("user_id", user.ID))
	return &user, nil
}

// Login checks the password of the user registered under email.
func (r *Registry) Login(ctx context.Context, email, password string) (*model.User, error) {
	email = normalizeEmail(email)
	if err := validate(email, password); err != nil {
		return nil, err
	}

	user, err := r.users.GetUserByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("looking up %s: %w", email, err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		r.logger.Debug("login rejected", zap.String("user_id", user.ID))
		return nil, ErrInvalidCredentials
	}

	return user, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validate(email, password string) error {
	switch {
	case email == "":
		return fmt.Errorf("%w: email is required", ErrInvalidInput)
	case !emailRegex.MatchString(email):
		return fmt.Errorf("%w: email %q is not valid", ErrInvalidInput, email)
	case len(password) < MinPasswordLength:
		return fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, MinPasswordLength)
	case len(password) > 72:
		// bcrypt only looks at the first 72 bytes.
		return fmt.Errorf("%w: password must be at most 72 bytes", ErrInvalidInput)
	}
	return nil
}
