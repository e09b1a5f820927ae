// Copyright © 2020 Elias Norberg
// Licensed under the GPLv3 or later.
// See COPYING at the root of the repository for details.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/yzzyx/imap-fingerprint/imap"
	"github.com/yzzyx/imap-fingerprint/report"
	"github.com/yzzyx/imap-fingerprint/scan"
)

// Stdout is the output path meaning standard output
const Stdout = "-"

// Config describes the available configuration layout
type Config struct {
	Account Account `yaml:"account"`

	Folders struct {
		Include string
		Exclude string
		Only    string
	}

	Output struct {
		Path   string
		Format report.Format
	}

	Log struct {
		Level  string
		Format string
	}

	Timeout   time.Duration
	BatchSize int `yaml:"batch_size"`
	Progress  bool
	Debug     bool
}

// Default returns a configuration with every optional setting filled in
func Default() Config {
	cfg := Config{}
	cfg.Account.Encryption = imap.EncryptionTLS
	cfg.Account.Auth = imap.AuthLogin
	cfg.Folders.Include = scan.DefaultInclude
	cfg.Output.Path = Stdout
	cfg.Output.Format = report.FormatText
	cfg.Log.Level = "info"
	cfg.Log.Format = "text"
	return cfg
}

// Load reads the YAML file at path on top of the defaults
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("cannot read config file '%s': %w", path, err)
	}
	err = yaml.Unmarshal(data, &cfg)
	if err != nil {
		return cfg, fmt.Errorf("cannot parse config file '%s': %w", path, err)
	}
	return cfg, nil
}

// Environment variables overriding the account settings
const (
	EnvHost     = "IMAPFP_HOST"
	EnvPort     = "IMAPFP_PORT"
	EnvUsername = "IMAPFP_USERNAME"
	EnvPassword = "IMAPFP_PASSWORD"
)

// ApplyEnv overrides account settings with the ones found through lookup,
// which is usually os.LookupEnv
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvHost); ok && v != "" {
		c.Account.Host = v
	}
	if v, ok := lookup(EnvPort); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvPort, v, err)
		}
		c.Account.Port = port
	}
	if v, ok := lookup(EnvUsername); ok && v != "" {
		c.Account.Username = v
	}
	if v, ok := lookup(EnvPassword); ok && v != "" {
		c.Account.Password = v
	}
	return nil
}

// Validate checks that the configuration is complete and consistent.
// A zero port is replaced with the default for the encryption mode.
func (c *Config) Validate() error {
	if c.Account.Port == 0 {
		c.Account.Port = imap.DefaultPort(c.Account.Encryption)
	}

	var errs []error
	if err := c.Account.validate(); err != nil {
		errs = append(errs, err)
	}
	if _, err := scan.NewFilter(c.Folders.Include, c.Folders.Exclude, c.Folders.Only); err != nil {
		errs = append(errs, err)
	}

	switch c.Output.Format {
	case report.FormatText, report.FormatJSON:
	case report.FormatSQLite:
		if c.Output.Path == "" || c.Output.Path == Stdout {
			errs = append(errs, errors.New("sqlite output requires a file path"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown output format %q", c.Output.Format))
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("unknown log level %q", c.Log.Level))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q", c.Log.Format))
	}

	if c.BatchSize < 0 {
		errs = append(errs, fmt.Errorf("batch size must not be negative, got %d", c.BatchSize))
	}
	if c.Timeout < 0 {
		errs = append(errs, fmt.Errorf("timeout must not be negative, got %s", c.Timeout))
	}
	return errors.Join(errs...)
}

// Filter returns the folder filter described by the configuration
func (c *Config) Filter() (scan.Filter, error) {
	return scan.NewFilter(c.Folders.Include, c.Folders.Exclude, c.Folders.Only)
}

// IMAPAccount returns the connection settings for imap.Open
func (c *Config) IMAPAccount() imap.Account {
	return imap.Account{
		Host:       c.Account.Host,
		Port:       c.Account.Port,
		Username:   c.Account.Username,
		Password:   c.Account.Password,
		Encryption: c.Account.Encryption,
		Auth:       c.Account.Auth,
		Insecure:   c.Account.Insecure,
		Timeout:    c.Timeout,
	}
}
