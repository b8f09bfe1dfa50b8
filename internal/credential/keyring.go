// Package credential keeps secrets such as the chat API key in the
// platform keyring, falling back to an encrypted file.
package credential

import (
	"errors"
	"fmt"

	"github.com/99designs/keyring"
)

const serviceName = "cyberguard"

// ErrNotFound is returned when no credential is stored under a key.
var ErrNotFound = errors.New("credential not found")

// Store reads and writes credentials through a keyring opened on demand.
type Store struct {
	open func() (keyring.Keyring, error)
}

// NewStore returns a Store over the platform keyring for this application.
func NewStore() *Store {
	return &Store{open: openSystemKeyring}
}

// NewStoreWithKeyring returns a Store that always uses ring.
func NewStoreWithKeyring(ring keyring.Keyring) *Store {
	return &Store{open: func() (keyring.Keyring, error) { return ring, nil }}
}

func openSystemKeyring() (keyring.Keyring, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  "~/.config/cyberguard/credentials",
		FilePasswordFunc:         keyring.FixedStringPrompt("cyberguard-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return ring, nil
}

// Get returns the secret stored under key, or ErrNotFound.
func (s *Store) Get(key string) (string, error) {
	ring, err := s.open()
	if err != nil {
		return "", err
	}

	item, err := ring.Get(key)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return "", fmt.Errorf("credential %q: %w", key, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("reading credential %q: %w", key, err)
	}
	return string(item.Data), nil
}

// Set stores value under key, replacing any earlier value.
func (s *Store) Set(key, value string) error {
	if key == "" {
		return errors.New("credential key is empty")
	}

	ring, err := s.open()
	if err != nil {
		return err
	}

	err = ring.Set(keyring.Item{
		Key:   key,
		Data:  []byte(value),
		Label: serviceName + " " + key,
	})
	if err != nil {
		return fmt.Errorf("storing credential %q: %w", key, err)
	}
	return nil
}

// Delete removes key. Removing a missing key is not an error.
func (s *Store) Delete(key string) error {
	ring, err := s.open()
	if err != nil {
		return err
	}

	err = ring.Remove(key)
	if err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return fmt.Errorf("removing credential %q: %w", key, err)
	}
	return nil
}

var defaultStore = NewStore()

// Get reads key from the platform keyring.
func Get(key string) (string, error) { return defaultStore.Get(key) }

// Set writes key to the platform keyring.
func Set(key, value string) error { return defaultStore.Set(key, value) }

// Delete removes key from the platform keyring.
func Delete(key string) error { return defaultStore.Delete(key) }
