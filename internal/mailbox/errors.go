package mailbox

import (
	"errors"
	"fmt"
)

var (
	// ErrProviderUnavailable means the provider could not be reached or
	// answered with something unusable.
	ErrProviderUnavailable = errors.New("mailbox provider unavailable")

	// ErrNoDomainsAvailable means the provider offered no usable domain.
	ErrNoDomainsAvailable = errors.New("no mailbox domains available")

	// ErrNoToken is returned before any inbox request when the identity
	// carries no bearer token.
	ErrNoToken = errors.New("identity has no token")
)

// AccountCreationError indicates the provider rejected account creation.
// Details carries the provider's own explanation.
type AccountCreationError struct {
	Address    string
	StatusCode int
	Details    string
}

func (e *AccountCreationError) Error() string {
	return fmt.Sprintf("creating account %s (status %d): %s", e.Address, e.StatusCode, e.Details)
}

// AuthenticationError indicates the token exchange failed.
type AuthenticationError struct {
	Address    string
	StatusCode int
	Details    string
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("authenticating %s (status %d): %s", e.Address, e.StatusCode, e.Details)
}

// FetchError indicates an inbox request failed. Err is the underlying
// provider or transport error.
type FetchError struct {
	Op  string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// IsAccountCreationError reports whether err (or any error in its chain) is
// an AccountCreationError.
func IsAccountCreationError(err error) bool {
	var target *AccountCreationError
	return errors.As(err, &target)
}

// IsAuthenticationError reports whether err (or any error in its chain) is
// an AuthenticationError.
func IsAuthenticationError(err error) bool {
	var target *AuthenticationError
	return errors.As(err, &target)
}

// IsFetchError reports whether err (or any error in its chain) is a
// FetchError.
func IsFetchError(err error) bool {
	var target *FetchError
	return errors.As(err, &target)
}
