package store

import (
	"context"
	"fmt"
	"time"

	"github.com/cyberguard/cyberguard/internal/model"
)

// ReplaceInbox swaps the stored snapshot for address with msgs in one
// transaction and reports which ids are new.
func (s *SQLiteStore) ReplaceInbox(
	ctx context.Context,
	address string,
	msgs []model.InboxMessage,
) ([]string, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var previous []string
	if err := tx.SelectContext(ctx, &previous,
		"SELECT id FROM messages WHERE address = ?", address,
	); err != nil {
		return nil, fmt.Errorf("reading inbox of %s: %w", address, err)
	}
	known := make(map[string]bool, len(previous))
	for _, id := range previous {
		known[id] = true
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM messages WHERE address = ?", address); err != nil {
		return nil, fmt.Errorf("clearing inbox of %s: %w", address, err)
	}

	stmt, err := tx.PreparexContext(ctx, `
		INSERT OR REPLACE INTO messages (
			address, id, sender, subject, intro, received_at, read, position
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return nil, fmt.Errorf("preparing insert statement: %w", err)
	}
	defer stmt.Close()

	var fresh []string
	for i, m := range msgs {
		_, err := stmt.ExecContext(ctx,
			address, m.ID, m.Sender, m.Subject, m.Intro,
			m.ReceivedAt.UTC(), boolToInt(m.Read), i,
		)
		if err != nil {
			return nil, fmt.Errorf("storing message %s: %w", m.ID, err)
		}
		if !known[m.ID] {
			fresh = append(fresh, m.ID)
			known[m.ID] = true
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing inbox of %s: %w", address, err)
	}
	return fresh, nil
}

// GetInbox returns the stored snapshot for address in delivery order.
func (s *SQLiteStore) GetInbox(ctx context.Context, address string) ([]model.InboxMessage, error) {
	rows, err := s.db.QueryxContext(ctx, `
		SELECT id, sender, subject, intro, received_at, read
		FROM messages WHERE address = ? ORDER BY position`,
		address,
	)
	if err != nil {
		return nil, fmt.Errorf("querying inbox of %s: %w", address, err)
	}
	defer rows.Close()

	var msgs []model.InboxMessage
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}

	return msgs, rows.Err()
}

func scanMessage(row scanner) (model.InboxMessage, error) {
	var (
		m          model.InboxMessage
		receivedAt time.Time
		readInt    int
	)
	if err := row.Scan(&m.ID, &m.Sender, &m.Subject, &m.Intro, &receivedAt, &readInt); err != nil {
		return model.InboxMessage{}, fmt.Errorf("scanning message row: %w", err)
	}
	m.ReceivedAt = receivedAt
	m.Read = readInt != 0
	return m, nil
}
