// Copyright © 2020 Elias Norberg
// Licensed under the GPLv3 or later.
// See COPYING at the root of the repository for details.
package imap

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/emersion/go-imap/client"
)

// Supported transport encryption modes
const (
	EncryptionTLS      = "tls"
	EncryptionStartTLS = "starttls"
	EncryptionNone     = "none"
)

// DefaultPort returns the standard IMAP port for an encryption mode
func DefaultPort(encryption string) int {
	if encryption == EncryptionTLS || encryption == "" {
		return 993
	}
	return 143
}

// Account describes how to reach and log into an IMAP server
type Account struct {
	Host       string
	Port       int
	Username   string
	Password   string // password, or access token for xoauth2
	Encryption string
	Auth       string
	Insecure   bool          // skip TLS certificate verification
	Timeout    time.Duration // 0 means no timeout
}

func (a Account) addr() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(a.Port))
}

func (a Account) validate() error {
	if a.Host == "" {
		return newError(KindConnection, "validate", errors.New("imap server address not configured"))
	}
	if a.Port < 1 || a.Port > 65535 {
		return newError(KindConnection, "validate", fmt.Errorf("invalid port %d", a.Port))
	}
	switch a.Encryption {
	case EncryptionTLS, EncryptionStartTLS, EncryptionNone, "":
	default:
		return newError(KindConnection, "validate", fmt.Errorf("unknown encryption mode %q", a.Encryption))
	}
	if a.Username == "" {
		return newError(KindAuthentication, "validate", errors.New("imap username not configured"))
	}
	if a.Password == "" {
		return newError(KindAuthentication, "validate", errors.New("imap password not configured"))
	}
	return nil
}

// Option configures a Session
type Option func(*options)

type options struct {
	log   *slog.Logger
	debug io.Writer
}

// WithLogger sets the logger used for protocol level messages
func WithLogger(log *slog.Logger) Option {
	return func(o *options) { o.log = log }
}

// WithDebug mirrors the raw IMAP conversation to w
func WithDebug(w io.Writer) Option {
	return func(o *options) { o.debug = w }
}

// Session is a single authenticated connection to an IMAP server.
// It is not safe for concurrent use, since the selected folder is session-wide state.
type Session struct {
	client  *client.Client
	account Account
	log     *slog.Logger

	selected *SelectedFolder
	closed   bool
}

// Open connects to the server described by account and logs in.
// On failure no session is returned, and the connection is closed.
func Open(ctx context.Context, account Account, opts ...Option) (*Session, error) {
	o := options{log: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(&o)
	}

	if account.Port == 0 {
		account.Port = DefaultPort(account.Encryption)
	}
	if err := account.validate(); err != nil {
		return nil, err
	}

	addr := account.addr()
	tlsConfig := &tls.Config{ServerName: account.Host, InsecureSkipVerify: account.Insecure}

	o.log.Debug("connecting", "addr", addr, "encryption", account.Encryption)

	conn, err := dial(ctx, account, addr, tlsConfig)
	if err != nil {
		return nil, newError(KindConnection, "dial "+addr, err)
	}

	// Until we are logged in, every read and write is bounded by the timeout,
	// and cancelling ctx aborts whatever is blocked
	if account.Timeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(account.Timeout))
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Now()) })
	defer stop()

	// Waits for the server greeting
	c, err := client.New(conn)
	if err != nil {
		conn.Close()
		return nil, newError(KindConnection, "greeting from "+addr, err)
	}

	if o.debug != nil {
		c.SetDebug(o.debug)
	}
	c.Timeout = account.Timeout

	// Start a TLS session
	if account.Encryption == EncryptionStartTLS {
		if err = c.StartTLS(tlsConfig); err != nil {
			_ = c.Terminate()
			return nil, newError(KindConnection, "starttls", err)
		}
	}

	if err = authenticate(c, account); err != nil {
		_ = c.Logout()
		return nil, newError(KindAuthentication, "login as "+account.Username, err)
	}
	if !stop() {
		_ = c.Logout()
		return nil, newError(KindConnection, "open "+addr, ctx.Err())
	}
	_ = conn.SetDeadline(time.Time{})
	o.log.Debug("logged in", "addr", addr, "username", account.Username, "auth", account.Auth)

	return &Session{
		client:  c,
		account: account,
		log:     o.log,
	}, nil
}

// dial connects to addr and, for implicit TLS, completes the handshake
func dial(ctx context.Context, account Account, addr string, tlsConfig *tls.Config) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: account.Timeout}
	if account.Encryption != EncryptionTLS && account.Encryption != "" {
		return dialer.DialContext(ctx, "tcp", addr)
	}

	tlsDialer := &tls.Dialer{NetDialer: dialer, Config: tlsConfig}
	return tlsDialer.DialContext(ctx, "tcp", addr)
}

// Close logs out from the server. Closing an already closed session is a no-op.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.selected = nil

	if err := s.client.Logout(); err != nil {
		if errors.Is(err, client.ErrAlreadyLoggedOut) {
			return nil
		}
		return newError(KindConnection, "logout", err)
	}
	s.log.Debug("logged out", "addr", s.account.addr())
	return nil
}
