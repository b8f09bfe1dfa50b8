// Package testutil provides fixtures shared by package tests.
package testutil

import (
	"testing"
	"time"

	"github.com/cyberguard/cyberguard/internal/model"
	"github.com/cyberguard/cyberguard/internal/store"
)

// NewTestStore opens a session store in memory with all migrations
// applied and closes it when the test completes.
func NewTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()

	s, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("creating test store: %v", err)
	}

	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("closing test store: %v", err)
		}
	})

	return s
}

// NewTestIdentity returns a fully provisioned identity for address,
// created at created and expiring an hour later.
func NewTestIdentity(address string, created time.Time) model.Identity {
	return model.Identity{
		Address:   address,
		Password:  "secret",
		Token:     "tok-" + address,
		AccountID: "acc-" + address,
		CreatedAt: created,
		ExpiresAt: created.Add(time.Hour),
	}
}

// Inbox builds an unread snapshot with one message per id, newest first
// in the order given.
func Inbox(received time.Time, ids ...string) []model.InboxMessage {
	msgs := make([]model.InboxMessage, 0, len(ids))
	for _, id := range ids {
		msgs = append(msgs, model.InboxMessage{
			ID:         id,
			Sender:     "sender-" + id + "@example.test",
			Subject:    "Subject " + id,
			ReceivedAt: received,
		})
	}
	return msgs
}
