// Package smtp implements the client side of the Simple Mail Transfer
// Protocol (RFC 5321) for submitting or relaying mail: connection setup
// with implicit TLS or STARTTLS (RFC 3207), EHLO capability discovery,
// authentication (RFC 4954) driven by the sasl package, and message
// transmission with per-recipient results.
package smtp

import (
	"crypto/tls"
	"errors"
	"log/slog"
	"time"
)

var (
	ErrClientClosed          = errors.New("smtp: client closed")
	ErrNoConnection          = errors.New("smtp: no connection established")
	ErrTLSAlreadyActive      = errors.New("smtp: TLS already active")
	ErrTLSNotSupported       = errors.New("smtp: STARTTLS not supported by server")
	ErrAuthNotSupported      = errors.New("smtp: no mutually supported AUTH mechanism")
	ErrAuthFailed            = errors.New("smtp: authentication failed")
	ErrNoRecipients          = errors.New("smtp: no recipients specified")
	ErrAllRecipientsRejected = errors.New("smtp: all recipients rejected")
	ErrUnexpectedResponse    = errors.New("smtp: unexpected server response")
)

// Extension represents an SMTP extension advertised via EHLO response.
type Extension string

const (
	// Ext8BitMIME indicates support for 8-bit MIME (RFC 6152).
	Ext8BitMIME Extension = "8BITMIME"
	// ExtPipelining indicates support for command pipelining (RFC 2920).
	ExtPipelining Extension = "PIPELINING"
	// ExtSMTPUTF8 indicates support for internationalized email (RFC 6531).
	ExtSMTPUTF8 Extension = "SMTPUTF8"
	// ExtSTARTTLS indicates support for TLS upgrade (RFC 3207).
	ExtSTARTTLS Extension = "STARTTLS"
	// ExtSize indicates support for message size declaration (RFC 1870).
	ExtSize Extension = "SIZE"
	// ExtAuth indicates support for SMTP AUTH (RFC 4954).
	ExtAuth Extension = "AUTH"
	// ExtEnhancedStatusCodes indicates support for enhanced status codes (RFC 2034).
	ExtEnhancedStatusCodes Extension = "ENHANCEDSTATUSCODES"
)

// Credentials holds a username and password for SMTP AUTH.
type Credentials struct {
	Username string
	Password string
}

// Config holds configuration for the SMTP client.
type Config struct {
	LocalName      string // Hostname for EHLO/HELO (default: "localhost")
	TLSConfig      *tls.Config
	Auth           *Credentials
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	Logger         *slog.Logger // Default: slog.Default()
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		LocalName:      "localhost",
		ConnectTimeout: 30 * time.Second,
		ReadTimeout:    5 * time.Minute,
		WriteTimeout:   5 * time.Minute,
		Logger:         slog.Default(),
	}
}
