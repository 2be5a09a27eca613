//go:build !unix

package lockfile

import (
	"errors"
	"os"
)

// flockTry is unsupported on this platform.
func flockTry(f *os.File) (bool, error) {
	return false, errors.New("file locking is not supported on this platform")
}

// flockRelease is unsupported on this platform.
func flockRelease(f *os.File) error {
	return errors.New("file locking is not supported on this platform")
}
