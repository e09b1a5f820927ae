package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yzzyx/imap-fingerprint/report"
)

func validConfig() Config {
	cfg := Default()
	cfg.Account.Host = "imap.example.com"
	cfg.Account.Username = "alice"
	cfg.Account.Password = "secret"
	return cfg
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "tls", cfg.Account.Encryption)
	assert.Equal(t, "login", cfg.Account.Auth)
	assert.Equal(t, "^.*$", cfg.Folders.Include)
	assert.Equal(t, Stdout, cfg.Output.Path)
	assert.Equal(t, report.FormatText, cfg.Output.Format)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	data := `
account:
  host: imap.example.com
  username: alice
  encryption: starttls
  keyring: true
folders:
  exclude: ^Spam$
output:
  path: out.db
  format: sqlite
timeout: 30s
batch_size: 500
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "imap.example.com", cfg.Account.Host)
	assert.Equal(t, "starttls", cfg.Account.Encryption)
	assert.True(t, cfg.Account.Keyring)
	assert.Equal(t, "^Spam$", cfg.Folders.Exclude)
	assert.Equal(t, "^.*$", cfg.Folders.Include, "defaults survive a partial file")
	assert.Equal(t, report.FormatSQLite, cfg.Output.Format)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Equal(t, 500, cfg.BatchSize)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yml")
	require.NoError(t, os.WriteFile(path, []byte("account: ["), 0600))
	_, err = Load(path)
	assert.Error(t, err)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		EnvHost:     "mail.example.org",
		EnvPort:     "1143",
		EnvUsername: "bob",
		EnvPassword: "hunter2",
	}
	lookup := func(k string) (string, bool) { v, ok := env[k]; return v, ok }

	cfg := validConfig()
	require.NoError(t, cfg.ApplyEnv(lookup))
	assert.Equal(t, "mail.example.org", cfg.Account.Host)
	assert.Equal(t, 1143, cfg.Account.Port)
	assert.Equal(t, "bob", cfg.Account.Username)
	assert.Equal(t, "hunter2", cfg.Account.Password)

	env[EnvPort] = "imap"
	assert.Error(t, cfg.ApplyEnv(lookup))
}

func TestApplyEnvEmpty(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.ApplyEnv(func(string) (string, bool) { return "", true }))
	assert.Equal(t, validConfig(), cfg)
}

func TestValidateDefaultPort(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 993, cfg.Account.Port)

	cfg = validConfig()
	cfg.Account.Encryption = "starttls"
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 143, cfg.Account.Port)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"no host", func(c *Config) { c.Account.Host = "" }},
		{"port too large", func(c *Config) { c.Account.Port = 70000 }},
		{"negative port", func(c *Config) { c.Account.Port = -1 }},
		{"no username", func(c *Config) { c.Account.Username = "" }},
		{"no password", func(c *Config) { c.Account.Password = "" }},
		{"bad encryption", func(c *Config) { c.Account.Encryption = "ssl" }},
		{"bad auth", func(c *Config) { c.Account.Auth = "cram-md5" }},
		{"bad include", func(c *Config) { c.Folders.Include = "(" }},
		{"bad exclude", func(c *Config) { c.Folders.Exclude = "[" }},
		{"bad format", func(c *Config) { c.Output.Format = "csv" }},
		{"sqlite to stdout", func(c *Config) { c.Output.Format = report.FormatSQLite }},
		{"bad log level", func(c *Config) { c.Log.Level = "trace" }},
		{"bad log format", func(c *Config) { c.Log.Format = "logfmt" }},
		{"negative batch", func(c *Config) { c.BatchSize = -1 }},
		{"negative timeout", func(c *Config) { c.Timeout = -time.Second }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.modify(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestResolvePassword(t *testing.T) {
	var asked string
	get := func(u, h string) (string, error) { asked = u + "@" + h; return "from-keyring", nil }

	a := Account{Host: "h", Username: "u", Keyring: true}
	require.NoError(t, a.ResolvePassword(get))
	assert.Equal(t, "from-keyring", a.Password)
	assert.Equal(t, "u@h", asked)

	// An explicit password wins
	asked = ""
	a = Account{Host: "h", Username: "u", Password: "explicit", Keyring: true}
	require.NoError(t, a.ResolvePassword(get))
	assert.Equal(t, "explicit", a.Password)
	assert.Empty(t, asked)

	// Keyring disabled
	a = Account{Host: "h", Username: "u"}
	require.NoError(t, a.ResolvePassword(get))
	assert.Empty(t, a.Password)

	failing := func(string, string) (string, error) { return "", errors.New("no such item") }
	a = Account{Host: "h", Username: "u", Keyring: true}
	assert.Error(t, a.ResolvePassword(failing))
}

func TestIMAPAccount(t *testing.T) {
	cfg := validConfig()
	cfg.Timeout = 5 * time.Second
	cfg.Account.Insecure = true
	require.NoError(t, cfg.Validate())

	a := cfg.IMAPAccount()
	assert.Equal(t, "imap.example.com", a.Host)
	assert.Equal(t, 993, a.Port)
	assert.Equal(t, "alice", a.Username)
	assert.Equal(t, "secret", a.Password)
	assert.Equal(t, "tls", a.Encryption)
	assert.Equal(t, "login", a.Auth)
	assert.True(t, a.Insecure)
	assert.Equal(t, 5*time.Second, a.Timeout)
}
