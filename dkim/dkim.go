// Package dkim generates DomainKeys Identified Mail (DKIM) signatures
// per RFC 6376.
//
// DKIM associates a domain name with an outgoing message by adding a
// DKIM-Signature header containing a cryptographic signature over
// selected message headers and the message body. Receivers fetch the
// matching public key from DNS at <selector>._domainkey.<domain> and
// use it to check that the message was not altered in transit.
//
// This package only signs. It implements the relaxed/relaxed
// canonicalization pair and the rsa-sha256 algorithm, the combination
// required by RFC 6376 and emitted by the large majority of signing
// deployments.
//
// # Basic Usage
//
//	signer, err := dkim.NewSigner(dkim.Config{
//	    KeyPEM:   keyPEM,
//	    Domain:   "example.com",
//	    Selector: "mail",
//	    Headers:  []string{"From", "To", "Subject"},
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	header, err := signer.Sign(to, subject, body, draftHeaders)
//
// The returned header is prepended verbatim to the outgoing header
// block before the message is handed to the transport.
package dkim

import (
	"crypto/rand"
	"errors"
	"time"
)

// Signature tag constants (RFC 6376 Section 3.5).
const (
	// AlgRSASHA256 is the rsa-sha256 signing algorithm (a= tag),
	// required by RFC 6376.
	AlgRSASHA256 = "rsa-sha256"

	// CanonRelaxedRelaxed is the relaxed/relaxed canonicalization
	// pair (c= tag).
	CanonRelaxedRelaxed = "relaxed/relaxed"

	// QueryDNSTXT is the DNS TXT query method (q= tag).
	QueryDNSTXT = "dns/txt"
)

// Common errors.
var (
	// ErrInvalidKey indicates the private key could not be loaded or
	// decrypted. Returned by NewSigner, never deferred to Sign time.
	ErrInvalidKey = errors.New("dkim: invalid private key")

	// ErrUnsupportedKey indicates the key material parsed but is not
	// an RSA key.
	ErrUnsupportedKey = errors.New("dkim: unsupported private key type")

	// ErrNoSignableHeaders indicates none of the configured header
	// names were found in the message.
	ErrNoSignableHeaders = errors.New("dkim: no headers to sign")

	// ErrSigningFailed indicates the RSA signing primitive refused
	// the operation.
	ErrSigningFailed = errors.New("dkim: signing failed")

	// ErrSyntax indicates a malformed DKIM DNS record.
	ErrSyntax = errors.New("dkim: syntax error in DKIM record")
)

// DefaultSignedHeaders is the list of headers signed when Config.Headers
// is empty. These headers are commonly signed for message integrity.
var DefaultSignedHeaders = []string{
	"From",
	"To",
	"Cc",
	"Subject",
	"Date",
	"Message-ID",
	"In-Reply-To",
	"References",
	"MIME-Version",
	"Content-Type",
	"Content-Transfer-Encoding",
	"Content-Disposition",
	"Reply-To",
}

// timeNow is used for testing.
var timeNow = time.Now

// cryptoRand is the random source for signing.
var cryptoRand = rand.Reader
