package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"

	"github.com/99designs/keyring"
)

const tokenKey = "graph-access-token"

// Store persists the current token between invocations
type Store interface {
	Load() (Token, error)
	Save(token Token) error
	Clear() error
}

// KeyringConfig selects where tokens are kept
type KeyringConfig struct {
	Service  string
	FileDir  string
	FileOnly bool
}

// KeyringStore keeps the token in the system keyring
type KeyringStore struct {
	ring keyring.Keyring
}

// OpenKeyringStore opens the configured keyring
func OpenKeyringStore(cfg KeyringConfig) (*KeyringStore, error) {
	backends := []keyring.BackendType{
		keyring.KeychainBackend,
		keyring.SecretServiceBackend,
		keyring.WinCredBackend,
		keyring.PassBackend,
		keyring.FileBackend,
	}
	if cfg.FileOnly {
		backends = []keyring.BackendType{keyring.FileBackend}
	}

	ring, err := keyring.Open(keyring.Config{
		ServiceName:              cfg.Service,
		AllowedBackends:          backends,
		FileDir:                  cfg.FileDir,
		FilePasswordFunc:         keyring.FixedStringPrompt(cfg.Service + "-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return NewKeyringStore(ring), nil
}

// NewKeyringStore wraps an open keyring
func NewKeyringStore(ring keyring.Keyring) *KeyringStore {
	return &KeyringStore{ring: ring}
}

// Load returns the cached token or ErrNoToken
func (s *KeyringStore) Load() (Token, error) {
	item, err := s.ring.Get(tokenKey)
	if err != nil {
		if errors.Is(err, keyring.ErrKeyNotFound) {
			return Token{}, ErrNoToken
		}
		return Token{}, fmt.Errorf("getting token: %w", err)
	}

	var token Token
	if err := json.Unmarshal(item.Data, &token); err != nil {
		return Token{}, fmt.Errorf("decoding cached token: %w", err)
	}
	return token, nil
}

// Save stores the token
func (s *KeyringStore) Save(token Token) error {
	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("encoding token: %w", err)
	}
	err = s.ring.Set(keyring.Item{
		Key:         tokenKey,
		Data:        data,
		Label:       "outlook-email access token",
		Description: "Microsoft Graph bearer token",
	})
	if err != nil {
		return fmt.Errorf("setting token: %w", err)
	}
	return nil
}

// Clear removes the stored token. Clearing an empty store is not an error.
func (s *KeyringStore) Clear() error {
	err := s.ring.Remove(tokenKey)
	if err != nil && !errors.Is(err, keyring.ErrKeyNotFound) && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("deleting token: %w", err)
	}
	return nil
}
