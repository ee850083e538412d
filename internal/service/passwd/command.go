package passwd

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/oshokin/alarm-broadcast/internal/config"
	"github.com/oshokin/alarm-broadcast/internal/creds"
	"github.com/oshokin/alarm-broadcast/internal/logger"
	"github.com/oshokin/alarm-broadcast/internal/repository/history"
)

// Options configures the credential maintenance commands.
type Options struct {
	// ConfigPath specifies the path to the settings YAML file.
	ConfigPath string
	// PasswordFile overrides the credential file path from config. When set,
	// the config file is not consulted at all.
	PasswordFile string
	// Length is the generated password length for reset; zero picks the
	// default.
	Length int
	// Password sets an explicit credential instead of generating one.
	Password string
}

// ErrAlreadyInitialized guards init against clobbering a live credential.
var ErrAlreadyInitialized = errors.New("credential file already exists, use reset")

// RunInit creates the credential file. It refuses to overwrite an existing
// one; rotation goes through RunReset, which leaves an audit trail.
func RunInit(ctx context.Context, opts *Options, out io.Writer) error {
	ctx = logger.WithName(ctx, "alarm-passwd")

	passwordFile, _, err := resolvePaths(opts)
	if err != nil {
		return err
	}

	if _, err := creds.Load(passwordFile); err == nil {
		return fmt.Errorf("%w: %s", ErrAlreadyInitialized, passwordFile)
	} else if !errors.Is(err, creds.ErrNotFound) {
		return err
	}

	return writeCredential(ctx, opts, passwordFile, "", out)
}

// RunReset replaces the credential with a fresh one and records the reset
// in the audit log when history is configured.
func RunReset(ctx context.Context, opts *Options, out io.Writer) error {
	ctx = logger.WithName(ctx, "alarm-passwd")

	passwordFile, historyFile, err := resolvePaths(opts)
	if err != nil {
		return err
	}

	return writeCredential(ctx, opts, passwordFile, historyFile, out)
}

// RunCheck verifies that the credential file exists and is well formed.
// The error doubles as the process exit status for scripted health checks.
func RunCheck(_ context.Context, opts *Options, out io.Writer) error {
	passwordFile, _, err := resolvePaths(opts)
	if err != nil {
		return err
	}

	if _, err := creds.Load(passwordFile); err != nil {
		fmt.Fprintf(out, "Credential file %s: %v\n", passwordFile, err)

		return err
	}

	fmt.Fprintf(out, "Credential file %s: OK\n", passwordFile)

	return nil
}

// RunLog prints the most recent security events from the audit log.
func RunLog(ctx context.Context, opts *Options, limit int, out io.Writer) error {
	ctx = logger.WithName(ctx, "alarm-passwd")

	_, historyFile, err := resolvePaths(opts)
	if err != nil {
		return err
	}

	if historyFile == "" {
		fmt.Fprintln(out, "History is not configured")

		return nil
	}

	audit, err := history.Open(historyFile)
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}

	defer func() {
		_ = audit.Close()
	}()

	events, err := audit.RecentSecurityEvents(ctx, limit)
	if err != nil {
		return fmt.Errorf("read security events: %w", err)
	}

	if len(events) == 0 {
		fmt.Fprintln(out, "No security events recorded")

		return nil
	}

	for _, event := range events {
		fmt.Fprintf(out, "%s  %-16s %s\n",
			event.CreatedAt.Format("2006-01-02 15:04:05"), event.Kind, event.Detail)
	}

	return nil
}

// writeCredential hashes and persists a password, generating one when the
// operator did not provide it, and prints the plaintext exactly once.
func writeCredential(ctx context.Context, opts *Options, passwordFile, historyFile string, out io.Writer) error {
	password := opts.Password

	if password == "" {
		length := opts.Length
		if length <= 0 {
			length = creds.DefaultPasswordLength
		}

		generated, err := creds.Generate(length)
		if err != nil {
			return fmt.Errorf("generate password: %w", err)
		}

		password = generated
	}

	stored, err := creds.Hash(password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	if err := creds.WriteFile(passwordFile, stored); err != nil {
		return fmt.Errorf("write credential: %w", err)
	}

	if historyFile != "" {
		if err := recordReset(ctx, historyFile); err != nil {
			logger.ErrorKV(ctx, "Failed to record password reset", "error", err)
		}
	}

	// The only place the plaintext ever appears. It is not stored anywhere.
	fmt.Fprintf(out, "Admin password: %s\n", password)
	fmt.Fprintf(out, "Written to %s\n", passwordFile)

	return nil
}

func recordReset(ctx context.Context, historyFile string) error {
	audit, err := history.Open(historyFile)
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}

	defer func() {
		_ = audit.Close()
	}()

	if err := audit.RecordSecurityEvent(ctx, history.EventPasswordReset, "credential reset from alarm-passwd"); err != nil {
		return fmt.Errorf("record reset: %w", err)
	}

	return nil
}

// resolvePaths picks the credential and history file locations. An explicit
// file override wins and skips config loading entirely, so the tool works
// before any settings file exists.
func resolvePaths(opts *Options) (passwordFile, historyFile string, err error) {
	if opts.PasswordFile != "" {
		return opts.PasswordFile, "", nil
	}

	settings, err := config.Load(opts.ConfigPath)
	if err != nil {
		return "", "", fmt.Errorf("load configuration: %w", err)
	}

	return settings.PasswordFile, settings.HistoryFile, nil
}
