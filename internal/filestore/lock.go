// Package filestore is the locked record store every twining store is built on.
//
// It provides atomic read-modify-write of JSON and JSONL files under a
// single-writer discipline, plus an mtime-keyed read cache. Writers for the
// same path serialize twice over: first on an in-process mutex, then on a
// cross-process advisory lockfile (path + ".lock") created with O_EXCL.
// A lockfile older than the stale interval is assumed to belong to a
// crashed holder and is reclaimed.
package filestore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/HendryAvila/twining/internal/apperr"
	"github.com/cenkalti/backoff/v4"
)

// LockOptions controls lockfile acquisition.
type LockOptions struct {
	// Retries is the number of retries after the first attempt.
	Retries    int
	MinTimeout time.Duration
	MaxTimeout time.Duration
	Factor     float64
	Stale      time.Duration
}

// DefaultLockOptions matches the on-disk format other twining processes use.
var DefaultLockOptions = LockOptions{
	Retries:    10,
	MinTimeout: 50 * time.Millisecond,
	MaxTimeout: time.Second,
	Factor:     1.5,
	Stale:      10 * time.Second,
}

// errLocked signals a held lockfile; it is retried, never surfaced.
var errLocked = errors.New("lock held")

// procLocks maps absolute paths to their in-process mutex.
var procLocks sync.Map

func procLock(path string) *sync.Mutex {
	mu, _ := procLocks.LoadOrStore(path, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// WithLock runs fn while holding the write lock for path.
// Lock exhaustion is reported as an INTERNAL_ERROR.
func WithLock(ctx context.Context, path string, fn func() error) error {
	return WithLockOptions(ctx, path, DefaultLockOptions, fn)
}

// WithLockOptions is WithLock with explicit acquisition settings.
func WithLockOptions(ctx context.Context, path string, opts LockOptions, fn func() error) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("filestore: resolve %s: %w", path, err)
	}

	mu := procLock(abs)
	mu.Lock()
	defer mu.Unlock()

	lockPath := abs + ".lock"
	if err := acquire(ctx, lockPath, opts); err != nil {
		return apperr.Internal(err, "lock acquisition failed for %s", path)
	}
	defer func() { _ = os.Remove(lockPath) }() // best-effort release

	return fn()
}

func acquire(ctx context.Context, lockPath string, opts LockOptions) error {
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = opts.MinTimeout
	b.MaxInterval = opts.MaxTimeout
	b.Multiplier = opts.Factor
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(opts.Retries)), ctx)
	return backoff.Retry(func() error {
		err := tryLockFn(lockPath, opts.Stale)
		if err == nil || errors.Is(err, errLocked) {
			return err
		}
		return backoff.Permanent(err)
	}, policy)
}

// tryLockFn is swapped in tests to count attempts.
var tryLockFn = tryLock

func tryLock(lockPath string, stale time.Duration) error {
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err == nil {
		_, _ = f.WriteString(strconv.Itoa(os.Getpid()))
		return f.Close()
	}
	if !os.IsExist(err) {
		return err
	}

	info, statErr := os.Stat(lockPath)
	if statErr != nil {
		// Released between our open and stat; try again.
		return errLocked
	}
	if time.Since(info.ModTime()) > stale {
		_ = os.Remove(lockPath)
	}
	return errLocked
}
