// Copyright © 2020 Elias Norberg
// Licensed under the GPLv3 or later.
// See COPYING at the root of the repository for details.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/yzzyx/imap-fingerprint/config"
	"github.com/yzzyx/imap-fingerprint/credential"
	"github.com/yzzyx/imap-fingerprint/imap"
	"github.com/yzzyx/imap-fingerprint/report"
	"github.com/yzzyx/imap-fingerprint/scan"
)

type flags struct {
	configPath string

	host       string
	port       int
	username   string
	password   string
	encryption string
	auth       string
	insecure   bool
	keyring    bool

	folder  string
	include string
	exclude string

	batchSize int
	timeout   time.Duration

	output    string
	format    string
	logLevel  string
	logFormat string
	progress  bool
	debug     bool
}

func main() {
	// A missing .env file is not an error
	_ = godotenv.Load()

	if err := newRootCommand().Execute(); err != nil {
		slog.New(slog.NewTextHandler(os.Stderr, nil)).Error("imap-fingerprint failed", "error", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	f := &flags{}
	cmd := &cobra.Command{
		Use:   "imap-fingerprint",
		Short: "Fingerprint every message on an IMAP account",
		Long: `imap-fingerprint logs into an IMAP server, walks every folder read-only and
prints a SHA-256 fingerprint of each message's Date and Message-ID headers,
keyed by folder and UID.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd.Flags(), f)
			if err != nil {
				return err
			}

			log, err := newLogger(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format)
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return run(ctx, cfg, log, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	fs := cmd.Flags()
	fs.StringVarP(&f.configPath, "config", "c", "", "YAML configuration file")
	fs.StringVarP(&f.host, "host", "H", "", "IMAP server hostname")
	fs.IntVarP(&f.port, "port", "p", 993, "IMAP server port (143 is used for starttls/none unless set)")
	fs.StringVarP(&f.username, "username", "u", "", "IMAP username")
	fs.StringVarP(&f.password, "password", "P", "", "IMAP password, or access token for xoauth2")
	fs.StringVar(&f.encryption, "encryption", imap.EncryptionTLS, "Connection security: tls, starttls or none")
	fs.StringVar(&f.auth, "auth", imap.AuthLogin, "Authentication mechanism: login, plain or xoauth2")
	fs.BoolVar(&f.insecure, "insecure", false, "Skip TLS certificate verification")
	fs.BoolVar(&f.keyring, "keyring", false, "Read the password from the OS keyring when none is given")
	fs.StringVarP(&f.folder, "folder", "f", "", "Only fingerprint this folder")
	fs.StringVar(&f.include, "include", scan.DefaultInclude, "Regex of folders to include")
	fs.StringVar(&f.exclude, "exclude", "", "Regex of folders to exclude")
	fs.IntVar(&f.batchSize, "batch-size", 0, "UIDs per FETCH request (0 fetches a folder at once)")
	fs.DurationVar(&f.timeout, "timeout", 0, "Network timeout (0 waits indefinitely)")
	fs.StringVarP(&f.output, "output", "o", config.Stdout, "Output file, - for stdout")
	fs.StringVar(&f.format, "format", string(report.FormatText), "Output format: text, json or sqlite")
	fs.StringVar(&f.logLevel, "log-level", "info", "Log level: debug, info, warn or error")
	fs.StringVar(&f.logFormat, "log-format", "text", "Log format: text or json")
	fs.BoolVar(&f.progress, "progress", false, "Show per-folder progress bars on stderr")
	fs.BoolVar(&f.debug, "debug", false, "Print the IMAP protocol exchange on stderr")

	cmd.AddCommand(newStorePasswordCommand())
	return cmd
}

// loadConfig applies, in increasing order of precedence: defaults, the config file,
// the environment and the flags explicitly given on the command line
func loadConfig(fs *pflag.FlagSet, f *flags) (config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return cfg, err
	}
	if err = cfg.ApplyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}

	set := func(name string, apply func()) {
		if fs.Changed(name) {
			apply()
		}
	}
	set("host", func() { cfg.Account.Host = f.host })
	set("port", func() { cfg.Account.Port = f.port })
	set("username", func() { cfg.Account.Username = f.username })
	set("password", func() { cfg.Account.Password = f.password })
	set("encryption", func() { cfg.Account.Encryption = f.encryption })
	set("auth", func() { cfg.Account.Auth = f.auth })
	set("insecure", func() { cfg.Account.Insecure = f.insecure })
	set("keyring", func() { cfg.Account.Keyring = f.keyring })
	set("folder", func() { cfg.Folders.Only = f.folder })
	set("include", func() { cfg.Folders.Include = f.include })
	set("exclude", func() { cfg.Folders.Exclude = f.exclude })
	set("batch-size", func() { cfg.BatchSize = f.batchSize })
	set("timeout", func() { cfg.Timeout = f.timeout })
	set("output", func() { cfg.Output.Path = f.output })
	set("format", func() { cfg.Output.Format = report.Format(f.format) })
	set("log-level", func() { cfg.Log.Level = f.logLevel })
	set("log-format", func() { cfg.Log.Format = f.logFormat })
	set("progress", func() { cfg.Progress = f.progress })
	set("debug", func() { cfg.Debug = f.debug })

	if err = cfg.Account.ResolvePassword(credential.NewStore(os.LookupEnv).Password); err != nil {
		return cfg, err
	}
	if err = cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func newLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	opts := &slog.HandlerOptions{Level: lvl}

	switch format {
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case "text", "":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	}
	return nil, fmt.Errorf("invalid log format %q", format)
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger, stdout, stderr io.Writer) error {
	filter, err := cfg.Filter()
	if err != nil {
		return err
	}

	opts := []imap.Option{imap.WithLogger(log)}
	if cfg.Debug {
		opts = append(opts, imap.WithDebug(stderr))
	}

	account := cfg.IMAPAccount()
	session, err := imap.Open(ctx, account, opts...)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", account.Host, err)
	}
	defer func() {
		if err := session.Close(); err != nil {
			log.Warn("logout failed", "error", err)
		}
	}()

	result := report.NewRun(account.Host, account.Username)
	enumerator := &scan.Enumerator{
		Log:       log,
		Filter:    filter,
		BatchSize: cfg.BatchSize,
	}
	if cfg.Progress {
		enumerator.Progress = scan.ProgressBars(stderr)
	}

	result.Mapping, result.Stats, err = enumerator.Run(ctx, scan.FromIMAP(session))
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return fmt.Errorf("interrupted after %d folders: %w", result.Stats.FoldersProcessed, err)
		}
		return err
	}

	if err = writeReport(ctx, cfg, result, stdout); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}

	log.Info("fingerprinting complete",
		"run_id", result.ID,
		"folders_listed", result.Stats.FoldersListed,
		"folders_processed", result.Stats.FoldersProcessed,
		"folders_failed", result.Stats.FoldersFailed,
		"messages", result.Stats.MessagesFingerprinted,
		"messages_skipped", result.Stats.MessagesSkipped,
		"duplicate_groups", len(result.Mapping.Duplicates()),
		"elapsed", time.Since(result.Started).Round(time.Millisecond),
	)
	return nil
}

func writeReport(ctx context.Context, cfg config.Config, result report.Run, stdout io.Writer) error {
	if cfg.Output.Format == report.FormatSQLite {
		return report.WriteSQLite(ctx, cfg.Output.Path, result)
	}
	if cfg.Output.Path == config.Stdout {
		return report.Write(stdout, cfg.Output.Format, result)
	}

	fd, err := os.Create(cfg.Output.Path)
	if err != nil {
		return err
	}
	if err = report.Write(fd, cfg.Output.Format, result); err != nil {
		fd.Close()
		return err
	}
	return fd.Close()
}

func newStorePasswordCommand() *cobra.Command {
	var host, username string
	cmd := &cobra.Command{
		Use:   "store-password",
		Short: "Read a password from stdin and store it in the OS keyring for use with --keyring",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if host == "" || username == "" {
				return errors.New("--host and --username are required")
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Password for %s: ", credential.AccountKey(username, host))
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && !errors.Is(err, io.EOF) {
				return fmt.Errorf("reading password: %w", err)
			}
			password := strings.TrimRight(line, "\r\n")
			if password == "" {
				return errors.New("empty password")
			}
			return credential.NewStore(os.LookupEnv).SetPassword(username, host, password)
		},
	}
	cmd.Flags().StringVarP(&host, "host", "H", "", "IMAP server hostname")
	cmd.Flags().StringVarP(&username, "username", "u", "", "IMAP username")
	return cmd
}
