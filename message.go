package quill

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/synqronlabs/quill/dkim"
	"github.com/synqronlabs/quill/mimebuild"
	"github.com/synqronlabs/quill/utils"
)

// Attachment represents a message attachment.
type Attachment struct {
	// Filename is the suggested filename presented to the recipient.
	Filename string `json:"filename"`

	// ContentType is the media type; empty defaults to
	// application/octet-stream.
	ContentType string `json:"content_type,omitempty"`

	// Data is the raw, unencoded content.
	Data []byte `json:"data"`

	// Inline marks the attachment for inline display, referenced from
	// an HTML body by Content-ID.
	Inline bool `json:"inline,omitempty"`

	// ContentID is the cid: reference for inline attachments.
	ContentID string `json:"content_id,omitempty"`
}

// Message is a composed mail message. Construct one with
// NewMessageBuilder; a Message returned from Build is complete (Date
// and Message-ID are filled in) and is not modified by rendering or
// signing, so it is safe to render concurrently.
type Message struct {
	// From is the author and envelope sender.
	From MailboxAddress `json:"from"`

	// ReplyTo, when set, directs replies to a different address.
	ReplyTo MailboxAddress `json:"reply_to,omitzero"`

	// To, Cc and Bcc are the recipients. All three receive the
	// message; Bcc is never rendered into the header section.
	To  []MailboxAddress `json:"to"`
	Cc  []MailboxAddress `json:"cc,omitempty"`
	Bcc []MailboxAddress `json:"bcc,omitempty"`

	// Subject is the single-line, unencoded subject.
	Subject string `json:"subject"`

	// Date is the message composition time.
	Date time.Time `json:"date"`

	// MessageID is the Message-ID header value including angle
	// brackets.
	MessageID string `json:"message_id"`

	// Extra holds additional headers rendered after the standard set.
	Extra Headers `json:"extra_headers,omitempty"`

	// Text and HTML are the alternative bodies; either or both may be
	// set.
	Text string `json:"text,omitempty"`
	HTML string `json:"html,omitempty"`

	// Attachments are rendered into a multipart/mixed container.
	Attachments []Attachment `json:"attachments,omitempty"`
}

// timeNow is used for testing.
var timeNow = time.Now

// Recipients returns all envelope recipients: To, Cc and Bcc.
func (m *Message) Recipients() []MailboxAddress {
	out := make([]MailboxAddress, 0, len(m.To)+len(m.Cc)+len(m.Bcc))
	out = append(out, m.To...)
	out = append(out, m.Cc...)
	out = append(out, m.Bcc...)
	return out
}

// RequiresSMTPUTF8 determines if this message requires the SMTPUTF8
// extension for transmission: true when any envelope address has a
// non-ASCII local part. Non-ASCII domains convert to A-labels and
// non-ASCII header content is MIME encoded, so neither forces SMTPUTF8.
func (m *Message) RequiresSMTPUTF8() bool {
	if utils.ContainsNonASCII(m.From.LocalPart) {
		return true
	}
	for _, rcpt := range m.Recipients() {
		if utils.ContainsNonASCII(rcpt.LocalPart) {
			return true
		}
	}
	return false
}

// Rendered holds the rendering of a Message split exactly at the DKIM
// signing interface: the draft header block without To and Subject,
// the To and Subject values, and the body.
type Rendered struct {
	// DraftHeaders is the header block composed so far, each field
	// terminated by CRLF. It never contains To or Subject; the signer
	// appends both.
	DraftHeaders string

	// To is the formatted To header value (comma-joined addresses).
	To string

	// Subject is the encoded single-line Subject header value.
	Subject string

	// Body is the serialized MIME body with CRLF line endings.
	Body string
}

// Render produces the message's wire parts. The result is
// deterministic except for multipart boundaries, which are random per
// call.
func (m *Message) Render() (*Rendered, error) {
	part, err := m.bodyPart()
	if err != nil {
		return nil, err
	}
	body, err := part.ToBytes()
	if err != nil {
		return nil, err
	}

	date := m.Date
	if date.IsZero() {
		date = timeNow()
	}

	var b strings.Builder
	renderHeader(&b, "Date", date.Format(time.RFC1123Z))
	if m.MessageID != "" {
		renderHeader(&b, "Message-ID", m.MessageID)
	}
	renderHeader(&b, "From", m.From.String())
	if !m.ReplyTo.IsZero() {
		renderHeader(&b, "Reply-To", m.ReplyTo.String())
	}
	if len(m.Cc) > 0 {
		renderHeader(&b, "Cc", formatAddressList(m.Cc))
	}
	for _, h := range m.Extra {
		renderHeader(&b, h.Name, h.Value)
	}
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString(part.HeaderLines())

	subject := m.Subject
	if utils.ContainsNonASCII(subject) {
		subject = encodeRFC2047(subject)
	}

	return &Rendered{
		DraftHeaders: b.String(),
		To:           formatAddressList(m.To),
		Subject:      subject,
		Body:         string(body),
	}, nil
}

// bodyPart assembles the MIME part tree for the message content.
func (m *Message) bodyPart() (*mimebuild.Part, error) {
	var content *mimebuild.Part
	switch {
	case m.Text != "" && m.HTML != "":
		content = mimebuild.Alternative(mimebuild.Text(m.Text), mimebuild.HTML(m.HTML))
	case m.HTML != "":
		content = mimebuild.HTML(m.HTML)
	default:
		content = mimebuild.Text(m.Text)
	}

	if len(m.Attachments) == 0 {
		return content, nil
	}

	parts := make([]*mimebuild.Part, 0, len(m.Attachments)+1)
	parts = append(parts, content)
	for _, a := range m.Attachments {
		if a.Inline {
			parts = append(parts, mimebuild.Inline(a.ContentID, a.ContentType, a.Data))
		} else {
			parts = append(parts, mimebuild.Attachment(a.Filename, a.ContentType, a.Data))
		}
	}
	return mimebuild.Mixed(parts...), nil
}

// assemble joins rendered parts and an optional leading DKIM-Signature
// header into the final wire message.
func assemble(sigHeader string, r *Rendered) []byte {
	var b strings.Builder
	b.Grow(len(sigHeader) + len(r.DraftHeaders) + len(r.To) + len(r.Subject) + len(r.Body) + 32)
	b.WriteString(sigHeader)
	b.WriteString(r.DraftHeaders)
	b.WriteString("To: " + r.To + "\r\n")
	b.WriteString("Subject: " + r.Subject + "\r\n")
	b.WriteString("\r\n")
	b.WriteString(r.Body)
	return []byte(b.String())
}

// Raw renders the complete unsigned message: header section, blank
// line, body.
func (m *Message) Raw() ([]byte, error) {
	r, err := m.Render()
	if err != nil {
		return nil, err
	}
	return assemble("", r), nil
}

// RawSigned renders the message with a DKIM-Signature header prepended
// to the header section. A signing failure aborts and returns
// ErrSigningAborted wrapping the cause; no unsigned fallback is
// produced.
func (m *Message) RawSigned(signer *dkim.Signer) ([]byte, error) {
	r, err := m.Render()
	if err != nil {
		return nil, err
	}
	sigHeader, err := signer.Sign(r.To, r.Subject, r.Body, r.DraftHeaders)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSigningAborted, err)
	}
	return assemble(sigHeader, r), nil
}

// ToJSON serializes the Message to JSON bytes.
func (m *Message) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ToJSONIndent serializes the Message to pretty-printed JSON bytes.
func (m *Message) ToJSONIndent() ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}

// FromJSON deserializes a Message from JSON bytes.
func FromJSON(data []byte) (*Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}
