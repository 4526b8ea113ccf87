package dkim

import (
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
)

// Config configures a Signer.
type Config struct {
	// KeyPEM is the PEM-encoded RSA private key.
	KeyPEM []byte

	// Passphrase decrypts an encrypted key. Leave empty for
	// unencrypted keys.
	Passphrase string

	// Domain is the signing domain (d= tag).
	Domain string

	// Selector names the DNS key record (s= tag); the public key is
	// published at <selector>._domainkey.<domain>.
	Selector string

	// Headers lists the header names eligible for signing. Matching is
	// case-insensitive and the h= ordering follows appearance in the
	// message, not this list. If empty, DefaultSignedHeaders is used.
	Headers []string
}

// Signer produces DKIM-Signature headers for outgoing messages.
// It is immutable after construction and safe for concurrent use.
type Signer struct {
	key      *rsa.PrivateKey
	domain   string
	selector string
	signed   map[string]bool
}

// NewSigner parses and, when needed, decrypts the configured private
// key and returns a ready Signer. Key problems (malformed PEM, wrong
// passphrase, non-RSA key) surface here, never at Sign time.
func NewSigner(cfg Config) (*Signer, error) {
	key, err := parsePrivateKey(cfg.KeyPEM, cfg.Passphrase)
	if err != nil {
		return nil, err
	}

	headers := cfg.Headers
	if len(headers) == 0 {
		headers = DefaultSignedHeaders
	}
	signed := make(map[string]bool, len(headers))
	for _, h := range headers {
		signed[strings.ToLower(h)] = true
	}

	return &Signer{
		key:      key,
		domain:   cfg.Domain,
		selector: cfg.Selector,
		signed:   signed,
	}, nil
}

// Domain returns the signing domain (d= tag).
func (s *Signer) Domain() string { return s.domain }

// Selector returns the DNS selector (s= tag).
func (s *Signer) Selector() string { return s.selector }

// PublicKey returns the public half of the signing key.
func (s *Signer) PublicKey() *rsa.PublicKey { return &s.key.PublicKey }

// Sign computes the DKIM-Signature header for a message.
//
// draftHeaders is the header block composed so far, one "Name: value"
// line per header, CRLF-separated, not yet containing To or Subject:
// both are appended here so they are always covered by the signature.
// to is the formatted recipient header value (comma-joined addresses)
// and subject the single-line subject. body must already use CRLF line
// endings.
//
// The returned header text is terminated by CRLF and is prepended
// verbatim to the outgoing header block. Tags appear in the fixed
// order v, a, q, s, t, c, h, d, bh, b, one per tab-indented line.
// ErrNoSignableHeaders is returned when no configured header name is
// present in the message.
func (s *Signer) Sign(to, subject, body, draftHeaders string) (string, error) {
	if !strings.HasSuffix(draftHeaders, "\r\n") {
		draftHeaders += "\r\n"
	}
	draftHeaders += "To: " + to + "\r\n"
	draftHeaders += "Subject: " + subject + "\r\n"

	headers := canonicalizeHeaders(draftHeaders, s.signed)
	if len(headers.names) == 0 {
		metricSign.WithLabelValues("noheaders").Inc()
		return "", ErrNoSignableHeaders
	}

	bodyHash := sha256.Sum256([]byte(canonicalizeBody(body)))
	bh := wrapBase64(base64.StdEncoding.EncodeToString(bodyHash[:]))

	skeleton := s.skeleton(headers.names, timeNow().Unix(), bh)

	// The unsigned header canonicalizes to a single dkim-signature
	// entry; the signature covers the selected headers followed by it.
	sigLine, _ := canonicalizeHeaders(skeleton, s.signed).get("dkim-signature")
	toSign := headers.joined() + "\r\n" + sigLine

	digest := sha256.Sum256([]byte(toSign))
	sig, err := s.key.Sign(cryptoRand, digest[:], crypto.SHA256)
	if err != nil {
		metricSign.WithLabelValues("signfail").Inc()
		return "", fmt.Errorf("%w: %v", ErrSigningFailed, err)
	}

	metricSign.WithLabelValues("ok").Inc()
	return skeleton + wrapBase64(base64.StdEncoding.EncodeToString(sig)) + "\r\n", nil
}

// skeleton builds the unsigned DKIM-Signature header text with a
// trailing empty b= tag. Every tag but the last ends with ";" and
// folds onto the next tab-indented line.
func (s *Signer) skeleton(names []string, unix int64, bodyHash string) string {
	var b strings.Builder
	b.WriteString("DKIM-Signature: v=1;\r\n\t")
	b.WriteString("a=" + AlgRSASHA256 + ";\r\n\t")
	b.WriteString("q=" + QueryDNSTXT + ";\r\n\t")
	b.WriteString("s=" + s.selector + ";\r\n\t")
	b.WriteString("t=" + strconv.FormatInt(unix, 10) + ";\r\n\t")
	b.WriteString("c=" + CanonRelaxedRelaxed + ";\r\n\t")
	b.WriteString("h=" + strings.Join(names, ":") + ";\r\n\t")
	b.WriteString("d=" + s.domain + ";\r\n\t")
	b.WriteString("bh=" + bodyHash + ";\r\n\t")
	b.WriteString("b=")
	return b.String()
}

// wrapBase64 folds base64 text at 64 characters with tab-indented
// continuation lines. Interoperability depends on this exact width, so
// it is not configurable.
func wrapBase64(s string) string {
	if len(s) <= 64 {
		return s
	}
	var b strings.Builder
	for len(s) > 64 {
		b.WriteString(s[:64])
		b.WriteString("\r\n\t")
		s = s[64:]
	}
	b.WriteString(s)
	return b.String()
}
