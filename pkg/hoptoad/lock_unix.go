//go:build linux || darwin || freebsd || netbsd || openbsd

package hoptoad

import (
	"os"

	"golang.org/x/sys/unix"
)

// lockFile takes a non-blocking exclusive lock on f. The lock is released
// when every descriptor of f is closed.
func lockFile(f *os.File) error {
	return unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
}
