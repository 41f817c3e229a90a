//go:build linux || darwin || freebsd || netbsd || openbsd

package hoptoad

import "golang.org/x/sys/unix"

// kernelRelease returns the running kernel's release string.
func kernelRelease() (string, error) {
	var uts unix.Utsname
	if err := unix.Uname(&uts); err != nil {
		return "", err
	}
	return unix.ByteSliceToString(uts.Release[:]), nil
}
