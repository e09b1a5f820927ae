package config

import (
	"errors"
	"fmt"

	"github.com/yzzyx/imap-fingerprint/imap"
)

// Account defines the IMAP server and credentials to enumerate
type Account struct {
	Host       string
	Port       int
	Username   string
	Password   string
	Encryption string // tls, starttls or none
	Auth       string // login, plain or xoauth2
	Insecure   bool

	// Keyring reads the password from the OS keyring when none is configured
	Keyring bool
}

// KeyringFunc looks up the stored password of a user on a server
type KeyringFunc func(username, host string) (string, error)

// ResolvePassword fills in an empty password from the keyring, if enabled
func (a *Account) ResolvePassword(get KeyringFunc) error {
	if a.Password != "" || !a.Keyring {
		return nil
	}
	password, err := get(a.Username, a.Host)
	if err != nil {
		return fmt.Errorf("reading password from keyring: %w", err)
	}
	a.Password = password
	return nil
}

func (a *Account) validate() error {
	var errs []error
	if a.Host == "" {
		errs = append(errs, errors.New("host is required"))
	}
	if a.Port < 1 || a.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", a.Port))
	}
	if a.Username == "" {
		errs = append(errs, errors.New("username is required"))
	}
	if a.Password == "" {
		errs = append(errs, errors.New("password is required"))
	}

	switch a.Encryption {
	case imap.EncryptionTLS, imap.EncryptionStartTLS, imap.EncryptionNone:
	default:
		errs = append(errs, fmt.Errorf("unknown encryption %q", a.Encryption))
	}
	switch a.Auth {
	case imap.AuthLogin, imap.AuthPlain, imap.AuthXOAuth2:
	default:
		errs = append(errs, fmt.Errorf("unknown auth mechanism %q", a.Auth))
	}
	return errors.Join(errs...)
}
