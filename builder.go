package quill

import (
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// MessageBuilder provides a fluent API for constructing Message
// values. Setters never fail in place; problems accumulate and Build
// reports all of them at once.
type MessageBuilder struct {
	msg  Message
	errs []error
}

// NewMessageBuilder creates a new MessageBuilder.
func NewMessageBuilder() *MessageBuilder {
	return &MessageBuilder{}
}

// From sets the author and envelope sender.
func (b *MessageBuilder) From(address string) *MessageBuilder {
	parsed, err := ParseMailbox(address)
	if err != nil {
		b.errs = append(b.errs, fmt.Errorf("from: %w", err))
		return b
	}
	b.msg.From = parsed
	return b
}

// FromMailbox sets the author from a MailboxAddress.
func (b *MessageBuilder) FromMailbox(address MailboxAddress) *MessageBuilder {
	if err := address.Validate(); err != nil {
		b.errs = append(b.errs, fmt.Errorf("from: %w", err))
		return b
	}
	b.msg.From = address
	return b
}

// ReplyTo sets the Reply-To address.
func (b *MessageBuilder) ReplyTo(address string) *MessageBuilder {
	parsed, err := ParseMailbox(address)
	if err != nil {
		b.errs = append(b.errs, fmt.Errorf("reply-to: %w", err))
		return b
	}
	b.msg.ReplyTo = parsed
	return b
}

// To adds To recipients.
func (b *MessageBuilder) To(addresses ...string) *MessageBuilder {
	b.msg.To = append(b.msg.To, b.parseList("to", addresses)...)
	return b
}

// ToMailbox adds To recipients from MailboxAddress values.
func (b *MessageBuilder) ToMailbox(addresses ...MailboxAddress) *MessageBuilder {
	for _, addr := range addresses {
		if err := addr.Validate(); err != nil {
			b.errs = append(b.errs, fmt.Errorf("to: %w", err))
			continue
		}
		b.msg.To = append(b.msg.To, addr)
	}
	return b
}

// Cc adds Cc recipients.
func (b *MessageBuilder) Cc(addresses ...string) *MessageBuilder {
	b.msg.Cc = append(b.msg.Cc, b.parseList("cc", addresses)...)
	return b
}

// Bcc adds Bcc recipients. They receive the message but are never
// rendered into the header section.
func (b *MessageBuilder) Bcc(addresses ...string) *MessageBuilder {
	b.msg.Bcc = append(b.msg.Bcc, b.parseList("bcc", addresses)...)
	return b
}

func (b *MessageBuilder) parseList(field string, addresses []string) []MailboxAddress {
	var out []MailboxAddress
	for _, addr := range addresses {
		parsed, err := ParseMailbox(addr)
		if err != nil {
			b.errs = append(b.errs, fmt.Errorf("%s: %w", field, err))
			continue
		}
		out = append(out, parsed)
	}
	return out
}

// Subject sets the subject. Encoding for non-ASCII content happens at
// render time; pass the plain text here.
func (b *MessageBuilder) Subject(subject string) *MessageBuilder {
	b.msg.Subject = subject
	return b
}

// Date sets the Date header value. If not called, Build uses the
// current time.
func (b *MessageBuilder) Date(t time.Time) *MessageBuilder {
	b.msg.Date = t
	return b
}

// MessageID sets the Message-ID, adding angle brackets when absent.
// If not called, Build generates one.
func (b *MessageBuilder) MessageID(id string) *MessageBuilder {
	b.msg.MessageID = bracket(id)
	return b
}

// InReplyTo sets the In-Reply-To header for threading.
func (b *MessageBuilder) InReplyTo(messageID string) *MessageBuilder {
	b.msg.Extra.Add("In-Reply-To", bracket(messageID))
	return b
}

// References sets the References header for threading.
func (b *MessageBuilder) References(messageIDs ...string) *MessageBuilder {
	formatted := make([]string, len(messageIDs))
	for i, id := range messageIDs {
		formatted[i] = bracket(id)
	}
	b.msg.Extra.Add("References", strings.Join(formatted, " "))
	return b
}

// Header adds a custom header to the message.
func (b *MessageBuilder) Header(name, value string) *MessageBuilder {
	b.msg.Extra.Add(name, value)
	return b
}

// TextBody sets the plain text body.
func (b *MessageBuilder) TextBody(body string) *MessageBuilder {
	b.msg.Text = body
	return b
}

// HTMLBody sets the HTML body. When both TextBody and HTMLBody are
// set the message renders as multipart/alternative.
func (b *MessageBuilder) HTMLBody(body string) *MessageBuilder {
	b.msg.HTML = body
	return b
}

// Attach adds an attachment. The content type is guessed from the
// filename extension when empty.
func (b *MessageBuilder) Attach(filename, contentType string, data []byte) *MessageBuilder {
	if contentType == "" {
		contentType = mime.TypeByExtension(filepath.Ext(filename))
	}
	b.msg.Attachments = append(b.msg.Attachments, Attachment{
		Filename:    filename,
		ContentType: contentType,
		Data:        data,
	})
	return b
}

// AttachFile reads a file and adds it as an attachment.
func (b *MessageBuilder) AttachFile(path string) *MessageBuilder {
	data, err := os.ReadFile(path)
	if err != nil {
		b.errs = append(b.errs, fmt.Errorf("attach %s: %w", path, err))
		return b
	}
	return b.Attach(filepath.Base(path), "", data)
}

// AttachInline adds an inline attachment referenced from an HTML body
// via a cid: URL.
func (b *MessageBuilder) AttachInline(contentID, contentType string, data []byte) *MessageBuilder {
	b.msg.Attachments = append(b.msg.Attachments, Attachment{
		ContentType: contentType,
		Data:        data,
		Inline:      true,
		ContentID:   contentID,
	})
	return b
}

// Build validates the message and returns it. All accumulated problems
// are reported together. The builder ensures completeness by:
//   - requiring a From address and at least one recipient
//   - requiring a single-line subject
//   - adding Date if missing
//   - generating a Message-ID if missing
func (b *MessageBuilder) Build() (*Message, error) {
	errs := b.errs
	if b.msg.From.IsZero() {
		errs = append(errs, ErrNoFrom)
	}
	if len(b.msg.To)+len(b.msg.Cc)+len(b.msg.Bcc) == 0 {
		errs = append(errs, ErrNoRecipients)
	}
	if strings.ContainsAny(b.msg.Subject, "\r\n") {
		errs = append(errs, ErrMultilineSubject)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	msg := b.msg
	if msg.Date.IsZero() {
		msg.Date = timeNow()
	}
	if msg.MessageID == "" {
		msg.MessageID = generateMessageID(msg.Date, msg.From.Domain)
	}
	return &msg, nil
}

// MustBuild is like Build but panics on error.
func (b *MessageBuilder) MustBuild() *Message {
	msg, err := b.Build()
	if err != nil {
		panic(err)
	}
	return msg
}

// ulidEntropy is the randomness source for generated Message-IDs,
// swapped in tests for reproducible output.
var ulidEntropy = ulid.DefaultEntropy()

// generateMessageID builds a "<ULID@domain>" Message-ID. ULIDs sort by
// creation time, which keeps spool directories and log greps ordered.
func generateMessageID(t time.Time, domain string) string {
	if domain == "" {
		domain = "localhost"
	}
	id := ulid.MustNew(ulid.Timestamp(t), ulidEntropy)
	return "<" + id.String() + "@" + domain + ">"
}

// bracket wraps a message identifier in angle brackets when absent.
func bracket(id string) string {
	if !strings.HasPrefix(id, "<") {
		return "<" + id + ">"
	}
	return id
}
