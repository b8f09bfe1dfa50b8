package provider

import (
	"bytes"
	"encoding/json"
)

// Collection is a paged list response. The provider wraps lists in a
// JSON-LD envelope (hydra:member) when asked for application/ld+json and
// returns a bare array for application/json; both decode here.
type Collection[T any] struct {
	Members    []T
	TotalItems int

	// Present is false when the envelope carried no member list at all.
	Present bool
}

// UnmarshalJSON accepts either a bare array or a hydra envelope.
func (c *Collection[T]) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &c.Members); err != nil {
			return err
		}
		c.TotalItems = len(c.Members)
		c.Present = true
		return nil
	}

	var wire struct {
		Members    *[]T `json:"hydra:member"`
		TotalItems int  `json:"hydra:totalItems"`
	}
	if err := json.Unmarshal(trimmed, &wire); err != nil {
		return err
	}
	if wire.Members != nil {
		c.Members = *wire.Members
		c.Present = true
	}
	c.TotalItems = wire.TotalItems
	return nil
}

// Domain is a mailbox domain offered by the provider.
type Domain struct {
	ID        string `json:"id"`
	Domain    string `json:"domain"`
	IsActive  *bool  `json:"isActive,omitempty"`
	IsPrivate bool   `json:"isPrivate"`
}

// Active reports whether the domain can be used. Domains without the flag
// are assumed active.
func (d Domain) Active() bool {
	return d.IsActive == nil || *d.IsActive
}

// Credentials is the request body of POST /accounts and POST /token.
type Credentials struct {
	Address  string `json:"address"`
	Password string `json:"password"`
}

// Account is a mailbox account as returned by POST /accounts and GET /me.
type Account struct {
	ID         string `json:"id"`
	Address    string `json:"address"`
	Quota      int64  `json:"quota"`
	Used       int64  `json:"used"`
	IsDisabled bool   `json:"isDisabled"`
	CreatedAt  string `json:"createdAt"`
}

// TokenResponse is the response from POST /token.
type TokenResponse struct {
	ID    string `json:"id"`
	Token string `json:"token"`
}

// Address is a named mail address.
type Address struct {
	Address string `json:"address"`
	Name    string `json:"name"`
}

// RawMessage is a message summary from GET /messages. Every field may be
// missing; normalization supplies defaults.
type RawMessage struct {
	ID             string    `json:"id"`
	AccountID      string    `json:"accountId"`
	MsgID          string    `json:"msgid"`
	From           *Address  `json:"from"`
	To             []Address `json:"to"`
	Subject        string    `json:"subject"`
	Intro          string    `json:"intro"`
	Seen           bool      `json:"seen"`
	HasAttachments bool      `json:"hasAttachments"`
	Size           int64     `json:"size"`
	CreatedAt      string    `json:"createdAt"`
}

// RawAttachment is attachment metadata inside a message detail.
type RawAttachment struct {
	ID          string `json:"id"`
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	Disposition string `json:"disposition"`
	Size        int64  `json:"size"`
	DownloadURL string `json:"downloadUrl"`
}

// RawMessageDetail is the response from GET /messages/{id}.
type RawMessageDetail struct {
	RawMessage

	CC          []Address       `json:"cc"`
	Text        string          `json:"text"`
	HTML        []string        `json:"html"`
	Attachments []RawAttachment `json:"attachments"`
}

// RawSource is the response from GET /sources/{id}; Data holds the full
// RFC 822 message.
type RawSource struct {
	ID          string `json:"id"`
	DownloadURL string `json:"downloadUrl"`
	Data        string `json:"data"`
}

// ErrorPayload covers the error shapes the provider uses: JSON-LD
// problem documents with violations, and plain {code, message} bodies.
type ErrorPayload struct {
	Title       string      `json:"hydra:title"`
	Description string      `json:"hydra:description"`
	Detail      string      `json:"detail"`
	Message     string      `json:"message"`
	Violations  []Violation `json:"violations"`
}

// Violation is a single field validation failure.
type Violation struct {
	PropertyPath string `json:"propertyPath"`
	Message      string `json:"message"`
}
