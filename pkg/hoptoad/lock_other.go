//go:build !(linux || darwin || freebsd || netbsd || openbsd)

package hoptoad

import "os"

// lockFile is a no-op where flock is unavailable; crash files of live
// processes are then protected only by the OS refusing to remove open files.
func lockFile(f *os.File) error {
	return nil
}
