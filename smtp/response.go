package smtp

import (
	"fmt"
	"strconv"
	"strings"
)

// Response represents a parsed SMTP server reply, possibly spanning
// multiple lines (RFC 5321 section 4.2).
type Response struct {
	Code         int
	EnhancedCode string   // RFC 2034 enhanced status code, if present
	Lines        []string // reply text with codes and separators stripped
}

// Message returns the reply text; multi-line replies are joined with
// newlines.
func (r *Response) Message() string {
	return strings.Join(r.Lines, "\n")
}

// Success returns true for 2xx replies.
func (r *Response) Success() bool {
	return r.Code >= 200 && r.Code < 300
}

// Intermediate returns true for 3xx replies.
func (r *Response) Intermediate() bool {
	return r.Code >= 300 && r.Code < 400
}

// Temporary returns true for 4xx replies.
func (r *Response) Temporary() bool {
	return r.Code >= 400 && r.Code < 500
}

// Permanent returns true for 5xx replies.
func (r *Response) Permanent() bool {
	return r.Code >= 500 && r.Code < 600
}

// Err returns the reply as a *ProtocolError if it indicates failure,
// nil otherwise.
func (r *Response) Err() error {
	if r.Success() || r.Intermediate() {
		return nil
	}
	return &ProtocolError{
		Code:         r.Code,
		EnhancedCode: r.EnhancedCode,
		Message:      r.Message(),
	}
}

// ProtocolError is an SMTP error reply.
type ProtocolError struct {
	Code         int
	EnhancedCode string
	Message      string
}

func (e *ProtocolError) Error() string {
	if e.EnhancedCode != "" {
		return fmt.Sprintf("SMTP %d %s: %s", e.Code, e.EnhancedCode, e.Message)
	}
	return fmt.Sprintf("SMTP %d: %s", e.Code, e.Message)
}

// Permanent returns true if this is a permanent failure (5xx).
func (e *ProtocolError) Permanent() bool {
	return e.Code >= 500 && e.Code < 600
}

// Temporary returns true if this is a transient failure (4xx).
func (e *ProtocolError) Temporary() bool {
	return e.Code >= 400 && e.Code < 500
}

// parseEnhancedCode extracts an enhanced status code from the start of
// a reply text. Returns "" when none is present.
func parseEnhancedCode(msg string) string {
	if len(msg) < 5 {
		return ""
	}

	// Check pattern X.Y.Z
	parts := strings.SplitN(msg, " ", 2)
	if len(parts) == 0 {
		return ""
	}

	code := parts[0]
	subparts := strings.Split(code, ".")
	if len(subparts) != 3 {
		return ""
	}

	for _, p := range subparts {
		if _, err := strconv.Atoi(p); err != nil {
			return ""
		}
	}

	return code
}
