//go:build !(linux || darwin || freebsd || netbsd || openbsd)

package hoptoad

import "errors"

func kernelRelease() (string, error) {
	return "", errors.New("kernel release not available on this platform")
}
