package quill

import (
	"encoding/base64"
	"fmt"
	"net/mail"
	"strings"

	"golang.org/x/net/idna"

	"github.com/synqronlabs/quill/utils"
)

// MailboxAddress represents an email address as per RFC 5321
// Section 4.1.2. It supports both ASCII addresses (RFC 5321) and
// internationalized addresses (RFC 6531).
type MailboxAddress struct {
	// LocalPart is the portion before the @ sign. May contain UTF-8
	// characters for internationalized addresses.
	LocalPart string `json:"local_part"`

	// Domain is the portion after the @ sign. May be an
	// internationalized domain name in U-label or A-label form.
	Domain string `json:"domain"`

	// DisplayName is an optional human-readable name associated with
	// the address.
	DisplayName string `json:"display_name,omitempty"`
}

// ParseMailbox parses an address string into a MailboxAddress.
// Supports both simple "user@domain" and RFC 5322 formatted addresses
// like "Display Name <user@domain>".
func ParseMailbox(addr string) (MailboxAddress, error) {
	parsed, err := mail.ParseAddress(addr)
	if err != nil {
		return MailboxAddress{}, fmt.Errorf("%w: %q: %v", ErrInvalidAddress, addr, err)
	}

	// The local part may itself contain @ inside a quoted string, so
	// split on the last one.
	address := parsed.Address
	var local, domain string
	for i := len(address) - 1; i >= 0; i-- {
		if address[i] == '@' {
			local = address[:i]
			domain = address[i+1:]
			break
		}
	}

	m := MailboxAddress{
		LocalPart:   local,
		Domain:      domain,
		DisplayName: parsed.Name,
	}
	if err := m.Validate(); err != nil {
		return MailboxAddress{}, err
	}
	return m, nil
}

// Validate checks that the address has a non-empty local part and
// domain and contains no control characters.
func (m MailboxAddress) Validate() error {
	if m.LocalPart == "" || m.Domain == "" {
		return fmt.Errorf("%w: %q", ErrInvalidAddress, m.Addr())
	}
	for _, s := range []string{m.LocalPart, m.Domain, m.DisplayName} {
		for _, r := range s {
			if r < 0x20 || r == 0x7f {
				return fmt.Errorf("%w: %q: control character", ErrInvalidAddress, m.Addr())
			}
		}
	}
	return nil
}

// IsZero reports whether the address is empty.
func (m MailboxAddress) IsZero() bool {
	return m.LocalPart == "" && m.Domain == "" && m.DisplayName == ""
}

// Addr returns the bare address in "local-part@domain" form.
func (m MailboxAddress) Addr() string {
	if m.LocalPart == "" && m.Domain == "" {
		return ""
	}
	return m.LocalPart + "@" + m.Domain
}

// ASCII returns the bare address with an internationalized domain
// converted to its A-label (punycode) form, suitable for SMTP
// transmission without the SMTPUTF8 extension. A non-ASCII local part
// has no ASCII form and is returned as is.
func (m MailboxAddress) ASCII() (string, error) {
	domain, err := idna.Lookup.ToASCII(m.Domain)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", ErrInvalidAddress, m.Addr(), err)
	}
	return m.LocalPart + "@" + domain, nil
}

// String returns the address formatted for use in a message header:
// "local@domain", or "Display Name <local@domain>" with the display
// name quoted or RFC 2047 encoded as needed.
func (m MailboxAddress) String() string {
	email := m.Addr()
	if m.DisplayName == "" {
		return email
	}
	name := m.DisplayName
	if utils.ContainsNonASCII(name) {
		name = encodeRFC2047(name)
	} else if strings.ContainsAny(name, `"(),.:;<>@[\]`) {
		name = `"` + strings.ReplaceAll(name, `"`, `\"`) + `"`
	}
	return name + " <" + email + ">"
}

// formatAddressList formats multiple addresses for use in headers.
func formatAddressList(addresses []MailboxAddress) string {
	formatted := make([]string, len(addresses))
	for i, addr := range addresses {
		formatted[i] = addr.String()
	}
	return strings.Join(formatted, ", ")
}

// encodeRFC2047 encodes a string using RFC 2047 Base64 encoding.
func encodeRFC2047(s string) string {
	encoded := base64.StdEncoding.EncodeToString([]byte(s))
	return "=?UTF-8?B?" + encoded + "?="
}
