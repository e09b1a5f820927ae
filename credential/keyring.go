package credential

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/99designs/keyring"
)

// ServiceName is the keyring service under which IMAP passwords are stored
const ServiceName = "imap-fingerprint"

// Environment variables tuning the keyring
const (
	// EnvBackend restricts the keyring to one backend, e.g. "file" or "secret-service"
	EnvBackend = "IMAPFP_KEYRING_BACKEND"
	// EnvFileDir overrides where the file backend keeps its encrypted items
	EnvFileDir = "IMAPFP_KEYRING_DIR"
	// EnvPassphrase unlocks the file backend without prompting
	EnvPassphrase = "IMAPFP_KEYRING_PASSPHRASE"
)

var defaultBackends = []keyring.BackendType{
	keyring.KeychainBackend,
	keyring.SecretServiceBackend,
	keyring.KWalletBackend,
	keyring.WinCredBackend,
	keyring.PassBackend,
	keyring.FileBackend,
}

// Store reads and writes IMAP passwords in the OS keyring.
// The keyring is only opened on first use.
type Store struct {
	open func() (keyring.Keyring, error)
	ring keyring.Keyring
}

// NewStore returns a Store configured from the environment, read through lookup
func NewStore(lookup func(string) (string, bool)) *Store {
	cfg := keyring.Config{
		ServiceName:              ServiceName,
		AllowedBackends:          defaultBackends,
		KeychainTrustApplication: true,
		FilePasswordFunc:         keyring.TerminalPrompt,
	}

	if v, ok := lookup(EnvBackend); ok && v != "" {
		cfg.AllowedBackends = []keyring.BackendType{keyring.BackendType(v)}
	}
	if v, ok := lookup(EnvPassphrase); ok && v != "" {
		cfg.FilePasswordFunc = keyring.FixedStringPrompt(v)
	}
	if v, ok := lookup(EnvFileDir); ok && v != "" {
		cfg.FileDir = v
	} else if dir, err := os.UserConfigDir(); err == nil {
		cfg.FileDir = filepath.Join(dir, ServiceName, "keyring")
	}

	return &Store{open: func() (keyring.Keyring, error) { return keyring.Open(cfg) }}
}

// AccountKey returns the keyring key for a user on a server
func AccountKey(username, host string) string {
	return username + "@" + host
}

func (s *Store) keyring() (keyring.Keyring, error) {
	if s.ring != nil {
		return s.ring, nil
	}
	ring, err := s.open()
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	s.ring = ring
	return ring, nil
}

// Password returns the password stored for username on host
func (s *Store) Password(username, host string) (string, error) {
	ring, err := s.keyring()
	if err != nil {
		return "", err
	}

	key := AccountKey(username, host)
	item, err := ring.Get(key)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return "", fmt.Errorf("no password stored for %s, see store-password", key)
	}
	if err != nil {
		return "", fmt.Errorf("reading password for %s: %w", key, err)
	}
	return string(item.Data), nil
}

// SetPassword stores password for username on host, replacing any previous one
func (s *Store) SetPassword(username, host, password string) error {
	ring, err := s.keyring()
	if err != nil {
		return err
	}

	key := AccountKey(username, host)
	err = ring.Set(keyring.Item{
		Key:         key,
		Data:        []byte(password),
		Label:       ServiceName + " " + key,
		Description: "IMAP password",
	})
	if err != nil {
		return fmt.Errorf("storing password for %s: %w", key, err)
	}
	return nil
}
