package model

import "time"

// Notification records the arrival of a message that was not present in
// the previous inbox snapshot.
type Notification struct {
	// ID is the unique identifier for this notification.
	ID string `json:"id"`

	// MessageID is the provider id of the message that arrived.
	MessageID string `json:"message_id"`

	// Address is the mailbox the message arrived in.
	Address string `json:"address"`

	// Message is the human-readable notification text.
	Message string `json:"message"`

	// Read indicates whether the user has seen this notification.
	Read bool `json:"read"`

	// CreatedAt is when this notification was generated.
	CreatedAt time.Time `json:"created_at"`
}
