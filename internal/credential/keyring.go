// Package credential keeps CLI session tokens in the OS keyring.
package credential

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/99designs/keyring"
)

const serviceName = "keyline"

// ErrNoToken is returned when no token is stored for an API URL.
var ErrNoToken = errors.New("no stored token; run kl login")

type Store struct {
	ring keyring.Keyring
}

// Open returns a store backed by the first available OS keyring, falling
// back to an encrypted file under dir (default ~/.config/keyline/credentials).
func Open(dir string) (*Store, error) {
	if dir == "" {
		dir = defaultDir()
	}
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  dir,
		FilePasswordFunc:         keyring.FixedStringPrompt("keyline-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return &Store{ring: ring}, nil
}

// NewStore wraps an existing keyring.
func NewStore(ring keyring.Keyring) *Store {
	return &Store{ring: ring}
}

func defaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "~/.config/keyline/credentials"
	}
	return filepath.Join(home, ".config", "keyline", "credentials")
}

func tokenKey(apiURL string) string {
	return "token:" + apiURL
}

func (s *Store) Token(apiURL string) (string, error) {
	item, err := s.ring.Get(tokenKey(apiURL))
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return "", ErrNoToken
	}
	if err != nil {
		return "", fmt.Errorf("getting token for %s: %w", apiURL, err)
	}
	return string(item.Data), nil
}

func (s *Store) SetToken(apiURL, token string) error {
	err := s.ring.Set(keyring.Item{
		Key:         tokenKey(apiURL),
		Data:        []byte(token),
		Label:       "keyline token for " + apiURL,
		Description: "keyline API session token",
	})
	if err != nil {
		return fmt.Errorf("setting token for %s: %w", apiURL, err)
	}
	return nil
}

// DeleteToken removes the token; a missing token is not an error.
func (s *Store) DeleteToken(apiURL string) error {
	err := s.ring.Remove(tokenKey(apiURL))
	if err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return fmt.Errorf("deleting token for %s: %w", apiURL, err)
	}
	return nil
}
