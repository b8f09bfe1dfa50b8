package store

import (
	"context"
	"errors"

	"github.com/cyberguard/cyberguard/internal/model"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("not found")

	// ErrDuplicate is returned when an insert would violate a uniqueness
	// rule, such as a second user with the same email.
	ErrDuplicate = errors.New("already exists")
)

// Store defines the persistence interface for the session: users,
// provisioned identities, the latest inbox snapshot per identity, and
// new-mail notifications.
type Store interface {
	// === Users ===

	CreateUser(ctx context.Context, user model.User) error
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)

	// === Identities ===

	// SaveIdentity records an identity. Password and token are never
	// written.
	SaveIdentity(ctx context.Context, identity model.Identity) error
	GetIdentities(ctx context.Context) ([]model.Identity, error)
	DeleteIdentity(ctx context.Context, address string) error

	// === Inbox ===

	// ReplaceInbox swaps the stored snapshot for address with msgs and
	// returns the ids that were not part of the previous snapshot, in
	// msgs order.
	ReplaceInbox(ctx context.Context, address string, msgs []model.InboxMessage) ([]string, error)
	GetInbox(ctx context.Context, address string) ([]model.InboxMessage, error)

	// === Notifications ===

	CreateNotification(ctx context.Context, n model.Notification) error
	GetUnreadNotifications(ctx context.Context) ([]model.Notification, error)
	MarkNotificationRead(ctx context.Context, id string) error

	Close() error
}
