package mailbox

import (
	"bytes"
	"io"
	"strings"

	"github.com/emersion/go-message/mail"

	"github.com/cyberguard/cyberguard/internal/model"
)

// ParseSource extracts the text body, HTML body, and attachment metadata
// from a raw RFC 822 message. Unparseable input is returned as plain text.
func ParseSource(raw []byte) (textBody, htmlBody string, attachments []model.Attachment) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return string(raw), "", nil
	}
	defer mr.Close()

	for {
		part, err := mr.NextPart()
		if err != nil {
			break
		}

		switch h := part.Header.(type) {
		case *mail.InlineHeader:
			contentType, _, _ := h.ContentType()
			body, readErr := io.ReadAll(part.Body)
			if readErr != nil {
				continue
			}

			switch {
			case strings.HasPrefix(contentType, "text/html"):
				if htmlBody == "" {
					htmlBody = string(body)
				}
			case contentType == "" || strings.HasPrefix(contentType, "text/plain"):
				if textBody == "" {
					textBody = string(body)
				}
			}

		case *mail.AttachmentHeader:
			filename, _ := h.Filename()
			contentType, _, _ := h.ContentType()

			n, copyErr := io.Copy(io.Discard, part.Body)
			if copyErr != nil {
				continue
			}

			attachments = append(attachments, model.Attachment{
				Filename:    filename,
				ContentType: contentType,
				Size:        n,
			})
		}
	}

	return textBody, htmlBody, attachments
}
