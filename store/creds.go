package store

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// ErrNoSecret is returned when credential operations are attempted on a
// store opened without WithSecret.
var ErrNoSecret = errors.New("store: no sealing secret configured")

// Credentials identifies the text-generation provider used for strategy
// building. The API key never touches disk in the clear.
type Credentials struct {
	Provider string `json:"provider"`
	APIKey   string `json:"api_key"`
	Model    string `json:"model,omitempty"`
	BaseURL  string `json:"base_url,omitempty"`
}

// SetCredentials seals and stores the provider credentials.
func (s *Store) SetCredentials(ctx context.Context, c Credentials) error {
	if s.sealKey == nil {
		return ErrNoSecret
	}
	plain, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("store: marshal credentials: %w", err)
	}

	aead, err := chacha20poly1305.NewX(s.sealKey)
	if err != nil {
		return fmt.Errorf("store: seal: %w", err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("store: nonce: %w", err)
	}
	sealed := aead.Seal(nonce, nonce, plain, nil)

	return s.set(ctx, keyCredentials, base64.StdEncoding.EncodeToString(sealed))
}

// Credentials reads and unseals the provider credentials. A missing entry
// returns the zero value without error; callers check APIKey.
func (s *Store) Credentials(ctx context.Context) (Credentials, error) {
	if s.sealKey == nil {
		return Credentials{}, ErrNoSecret
	}
	raw, err := s.get(ctx, keyCredentials)
	if err != nil || raw == "" {
		return Credentials{}, err
	}

	sealed, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return Credentials{}, fmt.Errorf("store: credentials encoding: %w", err)
	}
	aead, err := chacha20poly1305.NewX(s.sealKey)
	if err != nil {
		return Credentials{}, fmt.Errorf("store: unseal: %w", err)
	}
	if len(sealed) < aead.NonceSize() {
		return Credentials{}, fmt.Errorf("store: credentials blob truncated")
	}
	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return Credentials{}, fmt.Errorf("store: unseal credentials: %w", err)
	}

	var c Credentials
	if err := json.Unmarshal(plain, &c); err != nil {
		return Credentials{}, fmt.Errorf("store: credentials blob: %w", err)
	}
	return c, nil
}

// RemoveCredentials deletes the stored credentials.
func (s *Store) RemoveCredentials(ctx context.Context) error {
	_, err := s.DB.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, keyCredentials)
	if err != nil {
		return fmt.Errorf("store: remove credentials: %w", err)
	}
	return nil
}
