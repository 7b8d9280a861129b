//go:build unix

package storage

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"

	apperrors "github.com/jittakal/gctrace/internal/errors"
)

// lockFile takes a non-blocking exclusive advisory lock on f. The lock is
// released when f is closed.
func lockFile(f *os.File) error {
	for {
		err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, unix.EINTR):
			continue
		case errors.Is(err, unix.EWOULDBLOCK):
			return apperrors.ErrLockHeld
		default:
			return err
		}
	}
}
