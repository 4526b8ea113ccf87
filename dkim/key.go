package dkim

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"strings"

	"golang.org/x/crypto/ssh"
)

// parsePrivateKey loads an RSA private key from PEM data, decrypting it
// with passphrase when the block is encrypted. PKCS#1 ("RSA PRIVATE
// KEY"), PKCS#8 ("PRIVATE KEY") and OpenSSH encodings are accepted.
func parsePrivateKey(keyPEM []byte, passphrase string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(keyPEM)
	if block == nil {
		return nil, fmt.Errorf("%w: no PEM data found", ErrInvalidKey)
	}

	// RFC 1423 encrypted blocks carry a Proc-Type: 4,ENCRYPTED header.
	encrypted := strings.Contains(block.Headers["Proc-Type"], "ENCRYPTED")
	if encrypted || (block.Type == "OPENSSH PRIVATE KEY" && passphrase != "") {
		key, err := ssh.ParseRawPrivateKeyWithPassphrase(keyPEM, []byte(passphrase))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
		}
		return rsaKey(key)
	}

	switch block.Type {
	case "RSA PRIVATE KEY":
		key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
		}
		return key, nil

	case "PRIVATE KEY":
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
		}
		return rsaKey(key)

	case "OPENSSH PRIVATE KEY":
		key, err := ssh.ParseRawPrivateKey(keyPEM)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
		}
		return rsaKey(key)

	default:
		return nil, fmt.Errorf("%w: unrecognized PEM type %q", ErrInvalidKey, block.Type)
	}
}

// rsaKey narrows a parsed private key to *rsa.PrivateKey.
func rsaKey(key any) (*rsa.PrivateKey, error) {
	k, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedKey, key)
	}
	return k, nil
}
