// Package mailbox provisions disposable mailbox identities and reads their
// inboxes through a mail.tm-compatible provider.
package mailbox

import (
	"context"

	"github.com/cyberguard/cyberguard/internal/provider"
)

// DomainLister lists the domains offered for new accounts.
type DomainLister interface {
	Domains(ctx context.Context) (*provider.Collection[provider.Domain], error)
}

// AccountCreator registers new mailbox accounts.
type AccountCreator interface {
	CreateAccount(ctx context.Context, creds provider.Credentials) (*provider.Account, error)
}

// TokenIssuer exchanges credentials for a bearer token.
type TokenIssuer interface {
	Token(ctx context.Context, creds provider.Credentials) (*provider.TokenResponse, error)
}

// Provider is the full set of provider calls used by Service.
// *provider.Client implements it.
type Provider interface {
	DomainLister
	AccountCreator
	TokenIssuer

	Messages(ctx context.Context, token string, page int) (*provider.Collection[provider.RawMessage], error)
	Message(ctx context.Context, token, id string) (*provider.RawMessageDetail, error)
	Source(ctx context.Context, token, id string) (*provider.RawSource, error)
	MarkSeen(ctx context.Context, token, id string) error
	DeleteMessage(ctx context.Context, token, id string) error
	Me(ctx context.Context, token string) (*provider.Account, error)
	DeleteAccount(ctx context.Context, token, id string) error
}

var _ Provider = (*provider.Client)(nil)
