//go:build unix

package lockfile

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestManager_TryAcquire(t *testing.T) {
	m, err := NewManagerInDir(t.TempDir())
	if err != nil {
		t.Fatalf("NewManagerInDir() error = %v", err)
	}

	lock, err := m.TryAcquire("github.com:me")
	if err != nil {
		t.Fatalf("TryAcquire() error = %v", err)
	}
	if lock == nil {
		t.Fatal("TryAcquire() = nil, want a held lock")
	}

	// The same key is busy while held, even from this process, because
	// the second attempt opens its own file description
	second, err := m.TryAcquire("github.com:me")
	if err != nil {
		t.Fatalf("second TryAcquire() error = %v", err)
	}
	if second != nil {
		second.Release()
		t.Fatal("second TryAcquire() succeeded while lock held")
	}

	// A different key is independent
	other, err := m.TryAcquire("gitlab.com:me")
	if err != nil || other == nil {
		t.Fatalf("TryAcquire(other key) = %v, %v", other, err)
	}
	other.Release()

	if err := lock.Release(); err != nil {
		t.Fatalf("Release() error = %v", err)
	}

	// Released lock can be re-taken
	again, err := m.TryAcquire("github.com:me")
	if err != nil || again == nil {
		t.Fatalf("TryAcquire() after release = %v, %v", again, err)
	}
	again.Release()
}

func TestManager_AcquireBlocksUntilRelease(t *testing.T) {
	m, err := NewManagerInDir(t.TempDir())
	if err != nil {
		t.Fatalf("NewManagerInDir() error = %v", err)
	}

	held, err := m.TryAcquire("key")
	if err != nil || held == nil {
		t.Fatalf("TryAcquire() = %v, %v", held, err)
	}

	acquired := make(chan *Lock, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		lock, err := m.Acquire(ctx, "key")
		if err != nil {
			t.Errorf("Acquire() error = %v", err)
		}
		acquired <- lock
	}()

	select {
	case <-acquired:
		t.Fatal("Acquire() returned while lock was held")
	case <-time.After(150 * time.Millisecond):
	}

	held.Release()

	select {
	case lock := <-acquired:
		if lock != nil {
			lock.Release()
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Acquire() did not return after release")
	}
}

func TestManager_AcquireHonorsContext(t *testing.T) {
	m, err := NewManagerInDir(t.TempDir())
	if err != nil {
		t.Fatalf("NewManagerInDir() error = %v", err)
	}

	held, err := m.TryAcquire("key")
	if err != nil || held == nil {
		t.Fatalf("TryAcquire() = %v, %v", held, err)
	}
	defer held.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err = m.Acquire(ctx, "key")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Acquire() error = %v, want deadline exceeded", err)
	}
}

func TestLock_ReleaseIsIdempotent(t *testing.T) {
	m, err := NewManagerInDir(t.TempDir())
	if err != nil {
		t.Fatalf("NewManagerInDir() error = %v", err)
	}

	lock, err := m.TryAcquire("key")
	if err != nil || lock == nil {
		t.Fatalf("TryAcquire() = %v, %v", lock, err)
	}

	if err := lock.Release(); err != nil {
		t.Fatalf("first Release() error = %v", err)
	}
	if err := lock.Release(); err != nil {
		t.Errorf("second Release() error = %v, want nil", err)
	}
}

func TestLock_ReleaseRemovesFile(t *testing.T) {
	dir := t.TempDir()
	m, err := NewManagerInDir(dir)
	if err != nil {
		t.Fatalf("NewManagerInDir() error = %v", err)
	}

	lock, err := m.TryAcquire("key")
	if err != nil || lock == nil {
		t.Fatalf("TryAcquire() = %v, %v", lock, err)
	}

	if _, err := os.Stat(lock.Path()); err != nil {
		t.Fatalf("lock file missing while held: %v", err)
	}

	lock.Release()
	if _, err := os.Stat(lock.Path()); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("lock file still present after release: %v", err)
	}
}

func TestManager_SanitizesKeys(t *testing.T) {
	dir := t.TempDir()
	m, err := NewManagerInDir(dir)
	if err != nil {
		t.Fatalf("NewManagerInDir() error = %v", err)
	}

	path := m.Path("github.com:me/../../etc")
	if filepath.Dir(path) != dir {
		t.Errorf("lock path escapes dir: %s", path)
	}
	name := filepath.Base(path)
	if strings.ContainsAny(name, ":/\\") {
		t.Errorf("unsafe characters in lock file name: %s", name)
	}
	if !strings.HasSuffix(name, ".lock") {
		t.Errorf("lock file name missing suffix: %s", name)
	}
}

func TestLockDir(t *testing.T) {
	t.Run("uses XDG_RUNTIME_DIR when set", func(t *testing.T) {
		t.Setenv("XDG_RUNTIME_DIR", "/run/user/1000")
		if got := LockDir("myapp"); got != "/run/user/1000/myapp" {
			t.Errorf("LockDir() = %q", got)
		}
	})

	t.Run("falls back to per-user temp dir", func(t *testing.T) {
		t.Setenv("XDG_RUNTIME_DIR", "")
		got := LockDir("myapp")
		if !strings.HasPrefix(got, os.TempDir()) {
			t.Errorf("LockDir() = %q, want under %q", got, os.TempDir())
		}
		if !strings.Contains(got, "myapp-") {
			t.Errorf("LockDir() = %q, want uid-scoped app dir", got)
		}
	})
}
