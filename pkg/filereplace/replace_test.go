package filereplace

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDelay = 20 * time.Millisecond

type fixture struct {
	dir       string
	live      string
	candidate string
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	dir := t.TempDir()
	f := fixture{
		dir:       dir,
		live:      filepath.Join(dir, "appointments.xlsx"),
		candidate: filepath.Join(dir, "appointments-candidate.xlsx"),
	}
	require.NoError(t, os.WriteFile(f.live, []byte("old contents"), 0o644))
	require.NoError(t, os.WriteFile(f.candidate, []byte("new contents"), 0o644))
	return f
}

func (f fixture) assertInstalled(t *testing.T) {
	t.Helper()
	data, err := os.ReadFile(f.live)
	require.NoError(t, err)
	assert.Equal(t, "new contents", string(data))
	assert.NoFileExists(t, f.candidate)
}

// lockedCopier reports the live file as busy for the first busyFor attempts
type lockedCopier struct {
	mu       sync.Mutex
	busyFor  int
	calls    int
	attempts []time.Time
}

func (c *lockedCopier) copy(src, dst string) error {
	c.mu.Lock()
	c.calls++
	c.attempts = append(c.attempts, time.Now())
	busy := c.calls <= c.busyFor
	c.mu.Unlock()

	if busy {
		return ErrFileBusy
	}
	return CopyFile(src, dst)
}

func TestNew_DefaultPolicy(t *testing.T) {
	r := New()
	assert.Equal(t, 5, r.maxAttempts)
	assert.Equal(t, 2*time.Second, r.delay)
}

func TestInstall_FirstAttempt(t *testing.T) {
	f := newFixture(t)

	err := New(WithPolicy(5, testDelay)).Install(context.Background(), f.candidate, f.live)
	require.NoError(t, err)

	data, err := os.ReadFile(f.live)
	require.NoError(t, err)
	assert.Equal(t, "new contents", string(data))
	assert.NoFileExists(t, f.candidate)
}

func TestInstall_CreatesMissingTarget(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.Remove(f.live))

	require.NoError(t, New().Install(context.Background(), f.candidate, f.live))

	data, err := os.ReadFile(f.live)
	require.NoError(t, err)
	assert.Equal(t, "new contents", string(data))
}

func TestInstall_SucceedsAfterLockReleased(t *testing.T) {
	f := newFixture(t)
	copier := &lockedCopier{busyFor: 2}

	err := New(WithPolicy(5, testDelay), WithCopyFunc(copier.copy)).
		Install(context.Background(), f.candidate, f.live)
	require.NoError(t, err)

	assert.Equal(t, 3, copier.calls)
	data, err := os.ReadFile(f.live)
	require.NoError(t, err)
	assert.Equal(t, "new contents", string(data))
	assert.NoFileExists(t, f.candidate)
}

func TestInstall_ExhaustsWhileLocked(t *testing.T) {
	f := newFixture(t)
	copier := &lockedCopier{busyFor: 1000}

	err := New(WithPolicy(5, testDelay), WithCopyFunc(copier.copy)).
		Install(context.Background(), f.candidate, f.live)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFileLocked)
	assert.ErrorIs(t, err, ErrFileBusy)
	assert.Contains(t, err.Error(), "open or locked")

	var locked *LockedError
	require.True(t, errors.As(err, &locked))
	assert.Equal(t, 5, locked.Attempts)
	assert.Equal(t, f.live, locked.Path)

	assert.Equal(t, 5, copier.calls)
	for i := 1; i < len(copier.attempts); i++ {
		assert.GreaterOrEqual(t, copier.attempts[i].Sub(copier.attempts[i-1]), testDelay)
	}

	assert.NoFileExists(t, f.candidate)
	data, readErr := os.ReadFile(f.live)
	require.NoError(t, readErr)
	assert.Equal(t, "old contents", string(data))
}

func TestInstall_OtherErrorsAreNotRetried(t *testing.T) {
	f := newFixture(t)
	denied := errors.New("permission denied")
	calls := 0

	err := New(WithPolicy(5, testDelay), WithCopyFunc(func(src, dst string) error {
		calls++
		return denied
	})).Install(context.Background(), f.candidate, f.live)

	require.Error(t, err)
	assert.ErrorIs(t, err, denied)
	assert.NotErrorIs(t, err, ErrFileLocked)
	assert.Equal(t, 1, calls)
	assert.NoFileExists(t, f.candidate)
}

func TestInstall_IgnoresCancelledContext(t *testing.T) {
	t.Run("already cancelled", func(t *testing.T) {
		f := newFixture(t)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := New(WithPolicy(5, time.Millisecond)).Install(ctx, f.candidate, f.live)

		require.NoError(t, err)
		f.assertInstalled(t)
	})

	t.Run("cancelled while waiting for the lock", func(t *testing.T) {
		f := newFixture(t)
		ctx, cancel := context.WithCancel(context.Background())
		copier := &lockedCopier{busyFor: 1}

		err := New(WithPolicy(5, 20*time.Millisecond), WithCopyFunc(func(src, dst string) error {
			cancel()
			return copier.copy(src, dst)
		})).Install(ctx, f.candidate, f.live)

		require.NoError(t, err)
		assert.Equal(t, 2, copier.calls)
		f.assertInstalled(t)
	})
}

func TestInstall_AttemptHook(t *testing.T) {
	f := newFixture(t)
	copier := &lockedCopier{busyFor: 2}

	var outcomes []Outcome
	err := New(
		WithPolicy(5, time.Millisecond),
		WithCopyFunc(copier.copy),
		WithAttemptHook(func(_ context.Context, _ int, outcome Outcome) {
			outcomes = append(outcomes, outcome)
		}),
	).Install(context.Background(), f.candidate, f.live)

	require.NoError(t, err)
	assert.Equal(t, []Outcome{OutcomeBusy, OutcomeBusy, OutcomeInstalled}, outcomes)
}

func TestCopyFile_MissingSource(t *testing.T) {
	dir := t.TempDir()

	err := CopyFile(filepath.Join(dir, "missing.xlsx"), filepath.Join(dir, "live.xlsx"))
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.False(t, IsBusy(err))
}
