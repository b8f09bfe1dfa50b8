package mailbox

import (
	"strings"
	"time"

	"github.com/cyberguard/cyberguard/internal/model"
	"github.com/cyberguard/cyberguard/internal/provider"
)

// NormalizeMessage converts a provider record into an InboxMessage,
// filling defaults for missing fields. now stands in for a missing or
// unparseable timestamp.
func NormalizeMessage(raw provider.RawMessage, now time.Time) model.InboxMessage {
	msg := model.InboxMessage{
		ID:         raw.ID,
		Sender:     model.DefaultSender,
		Subject:    model.DefaultSubject,
		ReceivedAt: now,
		Read:       raw.Seen,
		Intro:      raw.Intro,
	}

	if raw.From != nil && strings.TrimSpace(raw.From.Address) != "" {
		msg.Sender = raw.From.Address
	}
	if raw.Subject != "" {
		msg.Subject = raw.Subject
	}
	if raw.CreatedAt != "" {
		if t, err := time.Parse(time.RFC3339, raw.CreatedAt); err == nil {
			msg.ReceivedAt = t
		}
	}

	return msg
}

// NormalizeMessages normalizes a list, preserving provider order.
func NormalizeMessages(raw []provider.RawMessage, now time.Time) []model.InboxMessage {
	out := make([]model.InboxMessage, 0, len(raw))
	for _, r := range raw {
		out = append(out, NormalizeMessage(r, now))
	}
	return out
}
