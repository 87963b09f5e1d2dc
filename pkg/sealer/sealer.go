// Package sealer encrypts credentials at rest with an age x25519 identity.
// Sealed values are base64 strings safe to store in text columns.
package sealer

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"filippo.io/age"
)

var ErrNotSealed = errors.New("value is not sealed")

type Sealer struct {
	identity  *age.X25519Identity
	recipient *age.X25519Recipient
}

// New parses an AGE-SECRET-KEY-1... identity.
func New(identity string) (*Sealer, error) {
	id, err := age.ParseX25519Identity(strings.TrimSpace(identity))
	if err != nil {
		return nil, fmt.Errorf("parsing identity: %w", err)
	}
	return &Sealer{identity: id, recipient: id.Recipient()}, nil
}

// Generate returns a sealer with a fresh identity.
func Generate() (*Sealer, error) {
	id, err := age.GenerateX25519Identity()
	if err != nil {
		return nil, fmt.Errorf("generating identity: %w", err)
	}
	return &Sealer{identity: id, recipient: id.Recipient()}, nil
}

// LoadOrCreate reads the identity stored at path, creating it when missing.
func LoadOrCreate(path string) (*Sealer, error) {
	content, err := os.ReadFile(path)
	if err == nil {
		return New(string(content))
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("reading identity file: %w", err)
	}

	s, err := Generate()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating identity dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(s.identity.String()+"\n"), 0o600); err != nil {
		return nil, fmt.Errorf("writing identity file: %w", err)
	}
	return s, nil
}

// PublicKey returns the age1... recipient.
func (s *Sealer) PublicKey() string {
	return s.recipient.String()
}

// Seal encrypts plaintext. The empty string stays empty.
func (s *Sealer) Seal(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	var buf bytes.Buffer
	w, err := age.Encrypt(&buf, s.recipient)
	if err != nil {
		return "", fmt.Errorf("creating age encryptor: %w", err)
	}
	if _, err := io.WriteString(w, plaintext); err != nil {
		return "", fmt.Errorf("writing plaintext: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finalizing encryption: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// Open decrypts a value produced by Seal.
func (s *Sealer) Open(sealed string) (string, error) {
	if sealed == "" {
		return "", nil
	}

	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNotSealed, err)
	}
	r, err := age.Decrypt(bytes.NewReader(raw), s.identity)
	if err != nil {
		return "", fmt.Errorf("decrypting: %w", err)
	}
	plaintext, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("reading plaintext: %w", err)
	}
	return string(plaintext), nil
}
