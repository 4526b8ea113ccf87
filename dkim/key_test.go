package dkim

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"testing"

	"golang.org/x/crypto/ssh"
)

func pemPKCS8(t *testing.T, key any) []byte {
	t.Helper()
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		t.Fatalf("MarshalPKCS8PrivateKey() error = %v", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})
}

func pemEncrypted(t *testing.T, passphrase string) []byte {
	t.Helper()
	block, err := x509.EncryptPEMBlock(rand.Reader, "RSA PRIVATE KEY",
		x509.MarshalPKCS1PrivateKey(testRSAKey(t)), []byte(passphrase), x509.PEMCipherAES256)
	if err != nil {
		t.Fatalf("EncryptPEMBlock() error = %v", err)
	}
	return pem.EncodeToMemory(block)
}

func pemOpenSSH(t *testing.T, passphrase string) []byte {
	t.Helper()
	var block *pem.Block
	var err error
	if passphrase == "" {
		block, err = ssh.MarshalPrivateKey(testRSAKey(t), "")
	} else {
		block, err = ssh.MarshalPrivateKeyWithPassphrase(testRSAKey(t), "", []byte(passphrase))
	}
	if err != nil {
		t.Fatalf("marshaling OpenSSH key: %v", err)
	}
	return pem.EncodeToMemory(block)
}

func TestNewSignerKeyFormats(t *testing.T) {
	tests := []struct {
		name       string
		keyPEM     []byte
		passphrase string
	}{
		{"pkcs1", pemPKCS1(testRSAKey(t)), ""},
		{"pkcs8", pemPKCS8(t, testRSAKey(t)), ""},
		{"encrypted pem", pemEncrypted(t, "hunter2"), "hunter2"},
		{"openssh", pemOpenSSH(t, ""), ""},
		{"openssh encrypted", pemOpenSSH(t, "hunter2"), "hunter2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewSigner(Config{
				KeyPEM:     tt.keyPEM,
				Passphrase: tt.passphrase,
				Domain:     "example.com",
				Selector:   "mail",
			})
			if err != nil {
				t.Fatalf("NewSigner() error = %v", err)
			}
			if !s.PublicKey().Equal(&testRSAKey(t).PublicKey) {
				t.Error("loaded key does not match the encoded key")
			}
		})
	}
}

func TestNewSignerKeyErrors(t *testing.T) {
	ecKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generating ECDSA key: %v", err)
	}
	_, edKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generating Ed25519 key: %v", err)
	}

	tests := []struct {
		name       string
		keyPEM     []byte
		passphrase string
		wantErr    error
	}{
		{"empty input", nil, "", ErrInvalidKey},
		{"not pem", []byte("not a key"), "", ErrInvalidKey},
		{"truncated der", pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: []byte{0x30, 0x01}}), "", ErrInvalidKey},
		{"unrecognized type", pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: []byte{0x30}}), "", ErrInvalidKey},
		{"wrong passphrase", pemEncrypted(t, "hunter2"), "wrong", ErrInvalidKey},
		{"ecdsa key", pemPKCS8(t, ecKey), "", ErrUnsupportedKey},
		{"ed25519 key", pemPKCS8(t, edKey), "", ErrUnsupportedKey},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSigner(Config{
				KeyPEM:     tt.keyPEM,
				Passphrase: tt.passphrase,
				Domain:     "example.com",
				Selector:   "mail",
			})
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("NewSigner() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
