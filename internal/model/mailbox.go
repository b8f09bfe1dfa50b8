package model

import "time"

// Placeholder values used when the provider omits a field.
const (
	DefaultSender  = "unknown@sender.com"
	DefaultSubject = "(No Subject)"
)

// Identity is one provisioned disposable mailbox: the address, the
// credentials used to obtain its token, and the token itself.
type Identity struct {
	// Address is the full mailbox address, {local}@{domain}.
	Address string `json:"address"`

	// Password is generated once and only used for the token exchange.
	Password string `json:"-"`

	// Token is the bearer credential required by every inbox request.
	Token string `json:"-"`

	// AccountID is the provider's identifier for the mailbox account.
	AccountID string `json:"account_id,omitempty"`

	// CreatedAt is when the identity finished provisioning.
	CreatedAt time.Time `json:"created_at"`

	// ExpiresAt is advisory only. It is computed client-side and never
	// checked against the provider.
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the advisory expiry has passed at now.
func (i Identity) Expired(now time.Time) bool {
	return !i.ExpiresAt.IsZero() && !now.Before(i.ExpiresAt)
}

// Remaining returns the time left until the advisory expiry, never negative.
func (i Identity) Remaining(now time.Time) time.Duration {
	d := i.ExpiresAt.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// InboxMessage is the normalized summary of a message in a mailbox.
type InboxMessage struct {
	// ID is the provider-assigned identifier, unique within a mailbox.
	ID string `json:"id"`

	// Sender is the from address, or DefaultSender when absent.
	Sender string `json:"sender"`

	// Subject is the message subject, or DefaultSubject when absent.
	Subject string `json:"subject"`

	// ReceivedAt is the provider timestamp, or the fetch time when absent.
	ReceivedAt time.Time `json:"received_at"`

	// Read mirrors the provider's seen flag.
	Read bool `json:"read"`

	// Intro is a short preview of the body and may be empty.
	Intro string `json:"intro"`
}

// Attachment describes a file attached to a message.
type Attachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

// MessageDetail is a full message as shown when a single message is opened.
type MessageDetail struct {
	InboxMessage

	To          []string     `json:"to,omitempty"`
	Text        string       `json:"text"`
	HTML        string       `json:"html,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}
