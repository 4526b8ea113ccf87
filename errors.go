package quill

import "errors"

var (
	// ErrNoFrom indicates a message without a From address.
	ErrNoFrom = errors.New("quill: from address is required")

	// ErrNoRecipients indicates a message without any To, Cc or Bcc
	// recipient.
	ErrNoRecipients = errors.New("quill: at least one recipient is required")

	// ErrInvalidAddress indicates an address that could not be parsed
	// or validated.
	ErrInvalidAddress = errors.New("quill: invalid address")

	// ErrMultilineSubject indicates a subject containing a line break.
	ErrMultilineSubject = errors.New("quill: subject must be a single line")

	// ErrSigningAborted indicates that DKIM signing failed and the
	// message was not produced. Signing failures never fall back to
	// sending unsigned.
	ErrSigningAborted = errors.New("quill: dkim signing aborted message")

	// ErrDeliveryFailed indicates that no recipient accepted the
	// message. Per-recipient causes are in the delivery results.
	ErrDeliveryFailed = errors.New("quill: message not accepted for any recipient")
)
