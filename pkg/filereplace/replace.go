// Package filereplace installs a fully written candidate file over a live
// file that may be held open by another process, such as a spreadsheet
// viewer keeping a sharing lock on it.
//
// The candidate's contents are copied over the live file; it is never
// renamed into place, so handles other processes hold on the live file keep
// seeing the installed contents.
package filereplace

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/zatekoja/hospital-appointment-api/pkg/retry"
)

const (
	// DefaultMaxAttempts is the number of copy attempts before giving up
	DefaultMaxAttempts = 5

	// DefaultDelay is the fixed wait between two copy attempts
	DefaultDelay = 2 * time.Second
)

var (
	// ErrFileBusy marks a copy attempt that failed only because the live
	// file is open or locked elsewhere. It is the one error worth retrying.
	ErrFileBusy = errors.New("file is in use by another process")

	// ErrFileLocked is returned once every attempt hit ErrFileBusy
	ErrFileLocked = errors.New("could not update the appointment file because it is open or locked, please close the file and try again")
)

// LockedError reports an exhausted replace
type LockedError struct {
	Path     string
	Attempts int
	Err      error
}

func (e *LockedError) Error() string {
	return ErrFileLocked.Error()
}

func (e *LockedError) Is(target error) bool {
	return target == ErrFileLocked
}

func (e *LockedError) Unwrap() error {
	return e.Err
}

// CopyFunc overwrites dst with the contents of src
type CopyFunc func(src, dst string) error

// Outcome labels a single copy attempt for metrics
type Outcome string

const (
	OutcomeInstalled Outcome = "installed"
	OutcomeBusy      Outcome = "busy"
	OutcomeFailed    Outcome = "failed"
)

// AttemptHook is called after every copy attempt
type AttemptHook func(ctx context.Context, attempt int, outcome Outcome)

// Replacer installs candidate files with a bounded, fixed-delay retry policy
type Replacer struct {
	maxAttempts int
	delay       time.Duration
	copyFile    CopyFunc
	logger      zerolog.Logger
	hook        AttemptHook
}

// Option configures a Replacer
type Option func(*Replacer)

// WithPolicy overrides the attempt count and delay
func WithPolicy(maxAttempts int, delay time.Duration) Option {
	return func(r *Replacer) {
		if maxAttempts > 0 {
			r.maxAttempts = maxAttempts
		}
		if delay >= 0 {
			r.delay = delay
		}
	}
}

// WithCopyFunc replaces the file copy used for each attempt
func WithCopyFunc(fn CopyFunc) Option {
	return func(r *Replacer) {
		if fn != nil {
			r.copyFile = fn
		}
	}
}

// WithLogger sets the logger used for retry and cleanup messages
func WithLogger(logger zerolog.Logger) Option {
	return func(r *Replacer) {
		r.logger = logger
	}
}

// WithAttemptHook registers a callback invoked after each attempt
func WithAttemptHook(hook AttemptHook) Option {
	return func(r *Replacer) {
		r.hook = hook
	}
}

// New creates a Replacer with 5 attempts 2 seconds apart unless overridden
func New(opts ...Option) *Replacer {
	r := &Replacer{
		maxAttempts: DefaultMaxAttempts,
		delay:       DefaultDelay,
		copyFile:    CopyFile,
		logger:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Install copies candidate over target and deletes candidate. The candidate
// is removed whatever the outcome. Busy failures are retried up to the
// configured attempt count, any other failure is returned immediately.
//
// Cancelling ctx does not stop an install: once started it either lands or
// runs its attempts out.
func (r *Replacer) Install(ctx context.Context, candidate, target string) error {
	ctx = context.WithoutCancel(ctx)
	attempts := 0
	cfg := retry.FixedConfig(r.maxAttempts, r.delay)
	cfg.Retryable = IsBusy

	err := retry.DoWithLog(ctx, cfg, "", func() error {
		attempts++
		copyErr := r.copyFile(candidate, target)
		r.observe(ctx, attempts, copyErr)
		return copyErr
	}, func(attempt int, err error, nextDelay time.Duration) {
		r.logger.Warn().
			Err(err).
			Str("target", target).
			Int("attempt", attempt).
			Int("max_attempts", r.maxAttempts).
			Dur("retry_in", nextDelay).
			Msg("live file is busy, retrying replace")
	})

	if err == nil {
		if rmErr := os.Remove(candidate); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
			r.logger.Warn().Err(rmErr).Str("candidate", candidate).Msg("failed to remove candidate after install")
		}
		r.logger.Debug().Str("target", target).Int("attempts", attempts).Msg("candidate installed")
		return nil
	}

	r.removeCandidate(candidate)

	if IsBusy(err) {
		r.logger.Error().
			Str("target", target).
			Int("attempts", attempts).
			Msg("live file stayed locked, giving up")
		return &LockedError{Path: target, Attempts: attempts, Err: err}
	}
	return fmt.Errorf("replace %s: %w", target, err)
}

func (r *Replacer) observe(ctx context.Context, attempt int, err error) {
	if r.hook == nil {
		return
	}
	outcome := OutcomeInstalled
	switch {
	case err == nil:
	case IsBusy(err):
		outcome = OutcomeBusy
	default:
		outcome = OutcomeFailed
	}
	r.hook(ctx, attempt, outcome)
}

func (r *Replacer) removeCandidate(candidate string) {
	if _, err := os.Stat(candidate); err != nil {
		return
	}
	if err := os.Remove(candidate); err != nil {
		r.logger.Warn().Err(err).Str("candidate", candidate).Msg("failed to clean up candidate file")
	}
}

// IsBusy reports whether err is the distinguished "resource busy" kind
func IsBusy(err error) bool {
	return errors.Is(err, ErrFileBusy)
}

// CopyFile truncates dst and writes the contents of src into it.
// Sharing and lock violations are reported as ErrFileBusy.
func CopyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return classify(err)
	}

	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return classify(err)
	}
	// https://www.joeshaw.org/dont-defer-close-on-writable-files/
	if err := out.Sync(); err != nil {
		_ = out.Close()
		return classify(err)
	}
	return classify(out.Close())
}

func classify(err error) error {
	if err == nil {
		return nil
	}
	if isPlatformBusy(err) {
		return fmt.Errorf("%w: %w", ErrFileBusy, err)
	}
	return err
}
