package lockstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/iborker/iborker/internal/errors"
)

// GuardFileName is the flock(2) target serializing stale-marker reclamation.
// It lives in the lock directory but never matches the marker pattern.
const GuardFileName = ".reclaim.lock"

// DefaultGuardPoll is the interval between non-blocking guard attempts.
const DefaultGuardPoll = 10 * time.Millisecond

// reclaimGuard provides cross-process mutual exclusion using flock(2).
// Only the reclaim path takes it; first-time claims go straight to link(2).
type reclaimGuard struct {
	path string
	file *os.File
}

func newReclaimGuard(dir string) *reclaimGuard {
	return &reclaimGuard{
		path: filepath.Join(dir, GuardFileName),
	}
}

// tryLock attempts to acquire the guard without blocking.
// Returns false if another process holds it.
func (g *reclaimGuard) tryLock() (bool, error) {
	f, err := os.OpenFile(g.path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return false, fmt.Errorf("open guard file: %w", err)
	}

	err = syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
	if err != nil {
		_ = f.Close()
		if err == syscall.EWOULDBLOCK {
			return false, nil
		}
		return false, fmt.Errorf("flock: %w", err)
	}

	g.file = f
	return true, nil
}

// lock polls tryLock until it succeeds or ctx is done. A flock held by a
// hung process would otherwise block the caller past its deadline.
func (g *reclaimGuard) lock(ctx context.Context, poll time.Duration) error {
	start := time.Now()
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		ok, err := g.tryLock()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}

		select {
		case <-ctx.Done():
			return errors.NewTimeoutError("acquire reclaim guard", time.Since(start).Round(time.Millisecond)).
				WithCause(ctx.Err())
		case <-ticker.C:
		}
	}
}

// unlock releases the guard and closes the guard file.
func (g *reclaimGuard) unlock() error {
	if g.file == nil {
		return nil
	}

	if err := syscall.Flock(int(g.file.Fd()), syscall.LOCK_UN); err != nil {
		_ = g.file.Close()
		g.file = nil
		return fmt.Errorf("funlock: %w", err)
	}

	err := g.file.Close()
	g.file = nil
	return err
}
