package dkim

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"fmt"
	"strings"
)

// Record represents a DKIM DNS TXT record (RFC 6376 Section 3.6.1).
// The record is published at <selector>._domainkey.<domain>.
type Record struct {
	// Version is the record version, must be "DKIM1".
	Version string

	// Hashes is the list of acceptable hash algorithms (h= tag).
	// Empty means all algorithms are acceptable.
	Hashes []string

	// Key is the key type. Only "rsa" is supported.
	Key string

	// Notes contains optional human-readable notes (n= tag).
	Notes string

	// Pubkey is the raw public key data (base64-decoded p= tag).
	// Empty means the key has been revoked.
	Pubkey []byte

	// Services lists acceptable service types (s= tag).
	// Empty or containing "*" means all services.
	Services []string

	// Flags contains key flags (t= tag):
	//   "y" - domain is testing DKIM
	//   "s" - i= domain must exactly match d= domain
	Flags []string

	// PublicKey is the parsed RSA public key, nil when revoked.
	PublicKey *rsa.PublicKey
}

// RecordForKey builds the DNS record announcing pub as a signing key.
func RecordForKey(pub *rsa.PublicKey) (*Record, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, fmt.Errorf("marshaling public key: %w", err)
	}
	return &Record{
		Version:   "DKIM1",
		Key:       "rsa",
		Pubkey:    der,
		PublicKey: pub,
	}, nil
}

// Record returns the DNS record for the signer's public key. Pasting
// its TXT rendering at RecordName is all the DNS setup signing needs.
func (s *Signer) Record() (*Record, error) {
	return RecordForKey(s.PublicKey())
}

// RecordName returns the DNS name the key record must be published at,
// <selector>._domainkey.<domain>.
func (s *Signer) RecordName() string {
	return s.selector + "._domainkey." + s.domain
}

// MatchesKey reports whether the record's public key equals pub.
func (r *Record) MatchesKey(pub *rsa.PublicKey) bool {
	return r.PublicKey != nil && r.PublicKey.Equal(pub)
}

// TXT renders the record as the DNS TXT value, e.g.
// "v=DKIM1; p=MIIBIjANBg...".
func (r *Record) TXT() (string, error) {
	var parts []string

	if r.Version != "DKIM1" {
		return "", fmt.Errorf("invalid version: %s", r.Version)
	}
	parts = append(parts, "v=DKIM1")

	if len(r.Hashes) > 0 {
		parts = append(parts, "h="+strings.Join(r.Hashes, ":"))
	}

	// Key type defaults to rsa and is omitted when default.
	if r.Key != "" && !strings.EqualFold(r.Key, "rsa") {
		return "", fmt.Errorf("unsupported key type: %s", r.Key)
	}

	if r.Notes != "" {
		parts = append(parts, "n="+encodeQPSection(r.Notes))
	}

	if len(r.Services) > 0 && !(len(r.Services) == 1 && r.Services[0] == "*") {
		parts = append(parts, "s="+strings.Join(r.Services, ":"))
	}

	if len(r.Flags) > 0 {
		parts = append(parts, "t="+strings.Join(r.Flags, ":"))
	}

	pk := r.Pubkey
	if len(pk) == 0 && r.PublicKey != nil {
		var err error
		pk, err = x509.MarshalPKIXPublicKey(r.PublicKey)
		if err != nil {
			return "", err
		}
	}
	parts = append(parts, "p="+base64.StdEncoding.EncodeToString(pk))

	return strings.Join(parts, "; "), nil
}

// ParseRecord parses a DKIM DNS TXT record. The boolean reports whether
// the text was recognizable as a DKIM record at all, so callers can
// distinguish "no record" from "broken record".
func ParseRecord(txt string) (*Record, bool, error) {
	record := &Record{
		Version:  "DKIM1",
		Key:      "rsa",
		Services: []string{"*"},
	}

	seen := make(map[string]bool)
	isDKIM := false

	for _, part := range strings.Split(txt, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		idx := strings.Index(part, "=")
		if idx == -1 {
			continue
		}

		tag := strings.TrimSpace(part[:idx])
		value := strings.TrimSpace(part[idx+1:])

		if seen[tag] {
			if isDKIM {
				return nil, true, fmt.Errorf("%w: duplicate tag %s", ErrSyntax, tag)
			}
			continue
		}
		seen[tag] = true

		switch tag {
		case "v":
			if value != "DKIM1" {
				return nil, false, fmt.Errorf("not a DKIM1 record")
			}
			record.Version = value
			isDKIM = true

		case "h":
			for _, h := range strings.Split(value, ":") {
				if h = strings.TrimSpace(h); h != "" {
					record.Hashes = append(record.Hashes, h)
				}
			}
			isDKIM = true

		case "k":
			record.Key = strings.ToLower(value)
			isDKIM = true

		case "n":
			record.Notes = decodeQPSection(value)
			isDKIM = true

		case "p":
			// Whitespace may be inserted anywhere in the base64 data.
			cleaned := strings.Map(func(r rune) rune {
				if r == ' ' || r == '\t' || r == '\n' || r == '\r' {
					return -1
				}
				return r
			}, value)
			if cleaned != "" {
				decoded, err := base64.StdEncoding.DecodeString(cleaned)
				if err != nil {
					return nil, isDKIM, fmt.Errorf("%w: invalid public key encoding: %v", ErrSyntax, err)
				}
				record.Pubkey = decoded
			}
			isDKIM = true

		case "s":
			record.Services = nil
			for _, s := range strings.Split(value, ":") {
				if s = strings.TrimSpace(s); s != "" {
					record.Services = append(record.Services, s)
				}
			}
			isDKIM = true

		case "t":
			for _, f := range strings.Split(value, ":") {
				if f = strings.TrimSpace(f); f != "" {
					record.Flags = append(record.Flags, f)
				}
			}
			isDKIM = true
		}
	}

	if !isDKIM {
		return nil, false, fmt.Errorf("not a DKIM record")
	}

	if !seen["p"] {
		return nil, true, fmt.Errorf("%w: missing public key (p=)", ErrSyntax)
	}

	if record.Key != "rsa" {
		return nil, true, fmt.Errorf("%w: unsupported key type %s", ErrSyntax, record.Key)
	}

	if len(record.Pubkey) > 0 {
		pk, err := x509.ParsePKIXPublicKey(record.Pubkey)
		if err != nil {
			return nil, true, fmt.Errorf("%w: invalid public key: %v", ErrSyntax, err)
		}
		rsaPK, ok := pk.(*rsa.PublicKey)
		if !ok {
			return nil, true, fmt.Errorf("%w: expected RSA public key, got %T", ErrSyntax, pk)
		}
		record.PublicKey = rsaPK
	}

	return record, true, nil
}

// encodeQPSection encodes a string for use in DKIM record notes.
// Space and tab stay literal except at the edges, and ";" and "=" are
// always hex-encoded so the tag structure survives (RFC 6376
// Section 2.11).
func encodeQPSection(s string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	for i, c := range []byte(s) {
		wsp := c == ' ' || c == '\t'
		printable := c > ' ' && c < 0x7f && c != '=' && c != ';'
		if printable || (wsp && i > 0 && i < len(s)-1) {
			b.WriteByte(c)
		} else {
			b.WriteByte('=')
			b.WriteByte(hex[c>>4])
			b.WriteByte(hex[c&0x0f])
		}
	}
	return b.String()
}

// decodeQPSection decodes a quoted-printable encoded section.
func decodeQPSection(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '=' && i+2 < len(s) {
			hi := hexVal(s[i+1])
			lo := hexVal(s[i+2])
			if hi >= 0 && lo >= 0 {
				b.WriteByte(byte(hi<<4 | lo))
				i += 2
				continue
			}
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// hexVal returns the value of a hex digit, or -1.
func hexVal(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10
	case c >= 'A' && c <= 'F':
		return int(c-'A') + 10
	default:
		return -1
	}
}
