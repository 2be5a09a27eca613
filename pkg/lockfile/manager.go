// Package lockfile provides advisory cross-process locks backed by
// files in a per-user runtime directory. Locks serialize work between
// cooperating processes of the same tool, such as two CLI invocations
// refreshing the same OAuth token.
//
// Correctness rests on the OS advisory lock held on the open file
// descriptor, not on the file's existence: lock files may linger after
// release or a crash, and stale files are harmless because the next
// Acquire locks the same path again.
package lockfile

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// retryInterval is how often a blocked Acquire re-attempts the lock
// while waiting for the holder to release it.
const retryInterval = 50 * time.Millisecond

// Manager creates locks in a single directory, one file per key.
type Manager struct {
	dir string
}

// NewManager creates a lock manager for the named application. Lock
// files live in $XDG_RUNTIME_DIR/<app>, falling back to a per-user
// directory under the system temp dir. The directory is created with
// mode 0700 if missing.
func NewManager(app string) (*Manager, error) {
	dir := LockDir(app)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}
	return &Manager{dir: dir}, nil
}

// NewManagerInDir creates a lock manager using an explicit directory.
// Mostly useful in tests.
func NewManagerInDir(dir string) (*Manager, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}
	return &Manager{dir: dir}, nil
}

// LockDir returns the directory lock files for app are created in,
// without creating it.
func LockDir(app string) string {
	if runtime := os.Getenv("XDG_RUNTIME_DIR"); runtime != "" {
		return filepath.Join(runtime, app)
	}
	return filepath.Join(os.TempDir(), fmt.Sprintf("%s-%d", app, os.Getuid()))
}

// Dir returns the directory this manager creates lock files in.
func (m *Manager) Dir() string {
	return m.dir
}

// Path returns the lock file path for key.
func (m *Manager) Path(key string) string {
	return filepath.Join(m.dir, sanitizeKey(key)+".lock")
}

// Acquire blocks until the lock for key is held or ctx is cancelled.
func (m *Manager) Acquire(ctx context.Context, key string) (*Lock, error) {
	for {
		lock, err := m.TryAcquire(key)
		if err != nil {
			return nil, err
		}
		if lock != nil {
			return lock, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for lock %q: %w", key, ctx.Err())
		case <-time.After(retryInterval):
		}
	}
}

// TryAcquire attempts to take the lock for key without blocking.
// Returns (nil, nil) when another process holds it.
func (m *Manager) TryAcquire(key string) (*Lock, error) {
	path := m.Path(key)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file %s: %w", path, err)
	}

	held, err := flockTry(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to lock %s: %w", path, err)
	}
	if !held {
		f.Close()
		return nil, nil
	}

	return &Lock{file: f, path: path}, nil
}

// Lock is a held advisory lock. Release it exactly once when done;
// extra Release calls are no-ops.
type Lock struct {
	file *os.File
	path string
	once sync.Once
}

// Path returns the lock file path.
func (l *Lock) Path() string {
	return l.path
}

// Release drops the lock. The lock file itself is removed best-effort;
// a leftover file does not affect correctness.
func (l *Lock) Release() error {
	var err error
	l.once.Do(func() {
		err = flockRelease(l.file)
		closeErr := l.file.Close()
		if err == nil {
			err = closeErr
		}
		_ = os.Remove(l.path)
	})
	return err
}

// sanitizeKey maps an arbitrary key to a safe file name. Anything
// outside [A-Za-z0-9._-] becomes an underscore, so distinct keys can
// collide; keys sharing a lock file simply share the lock.
func sanitizeKey(key string) string {
	var b strings.Builder
	b.Grow(len(key))
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '.', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
