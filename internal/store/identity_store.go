package store

import (
	"context"
	"fmt"
	"time"

	"github.com/cyberguard/cyberguard/internal/model"
)

// SaveIdentity inserts or replaces an identity record. Only the address,
// account id and timestamps are stored.
func (s *SQLiteStore) SaveIdentity(ctx context.Context, identity model.Identity) error {
	if identity.Address == "" {
		return fmt.Errorf("identity address must not be empty")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO identities (address, account_id, created_at, expires_at)
		VALUES (?, ?, ?, ?)`,
		identity.Address, identity.AccountID,
		identity.CreatedAt.UTC(), identity.ExpiresAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("saving identity %s: %w", identity.Address, err)
	}
	return nil
}

// GetIdentities returns every stored identity, newest first.
func (s *SQLiteStore) GetIdentities(ctx context.Context) ([]model.Identity, error) {
	rows, err := s.db.QueryxContext(ctx, `
		SELECT address, account_id, created_at, expires_at
		FROM identities ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("querying identities: %w", err)
	}
	defer rows.Close()

	var identities []model.Identity
	for rows.Next() {
		var (
			id        model.Identity
			createdAt time.Time
			expiresAt time.Time
		)
		if err := rows.Scan(&id.Address, &id.AccountID, &createdAt, &expiresAt); err != nil {
			return nil, fmt.Errorf("scanning identity row: %w", err)
		}
		id.CreatedAt = createdAt
		id.ExpiresAt = expiresAt
		identities = append(identities, id)
	}

	return identities, rows.Err()
}

// DeleteIdentity removes an identity together with its stored inbox and
// notifications.
func (s *SQLiteStore) DeleteIdentity(ctx context.Context, address string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM messages WHERE address = ?", address); err != nil {
		return fmt.Errorf("deleting inbox of %s: %w", address, err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM notifications WHERE address = ?", address); err != nil {
		return fmt.Errorf("deleting notifications of %s: %w", address, err)
	}

	result, err := tx.ExecContext(ctx, "DELETE FROM identities WHERE address = ?", address)
	if err != nil {
		return fmt.Errorf("deleting identity %s: %w", address, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("identity %s: %w", address, ErrNotFound)
	}

	return tx.Commit()
}
