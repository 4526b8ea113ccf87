// Package sasl implements the client side of SASL mechanisms for SMTP
// authentication (RFC 4954).
package sasl

import (
	"errors"
)

// ErrUnexpectedChallenge is returned when the server issues a
// challenge the mechanism cannot answer.
var ErrUnexpectedChallenge = errors.New("sasl: unexpected server challenge")

// Mechanism produces the client half of a SASL exchange. Wire encoding
// (base64) is the transport's concern; Start and Next deal in raw
// bytes.
type Mechanism interface {
	// Name returns the mechanism name as used in the AUTH command.
	Name() string

	// Start returns the initial response sent with the AUTH command,
	// or nil when the mechanism waits for the first challenge.
	Start() (initialResponse []byte, err error)

	// Next answers a decoded server challenge.
	Next(challenge []byte) (response []byte, err error)
}
