package store

// migration is one schema step. runMigrations records the version.
type migration struct {
	version int
	sql     string
}

// migrations are applied in order; versions start at 1 and never repeat.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS users (
	id            TEXT PRIMARY KEY,
	name          TEXT NOT NULL,
	email         TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS identities (
	address    TEXT PRIMARY KEY,
	account_id TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL,
	expires_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
	address     TEXT NOT NULL,
	id          TEXT NOT NULL,
	sender      TEXT NOT NULL,
	subject     TEXT NOT NULL,
	intro       TEXT NOT NULL DEFAULT '',
	received_at DATETIME NOT NULL,
	read        INTEGER NOT NULL DEFAULT 0 CHECK(read IN (0, 1)),
	position    INTEGER NOT NULL,
	PRIMARY KEY (address, id)
);

CREATE TABLE IF NOT EXISTS notifications (
	id         TEXT PRIMARY KEY,
	message_id TEXT NOT NULL,
	address    TEXT NOT NULL,
	message    TEXT NOT NULL,
	read       INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_messages_address ON messages(address, position);
CREATE INDEX IF NOT EXISTS idx_notifications_read ON notifications(read);
CREATE INDEX IF NOT EXISTS idx_notifications_created ON notifications(created_at);
`,
	},
	{
		// Notification lookups per mailbox, used when an identity is dropped.
		version: 2,
		sql: `
CREATE INDEX IF NOT EXISTS idx_notifications_address ON notifications(address, read);
`,
	},
}
