// errors.go defines the sentinel errors returned by hoptoad.

package hoptoad

import "errors"

var (
	// ErrMissingAPIKey is returned by Register and New when no API key is given.
	ErrMissingAPIKey = errors.New("hoptoad: api key is required")

	// ErrStorageDisabled is returned by Flush when the storage root could not
	// be initialized.
	ErrStorageDisabled = errors.New("hoptoad: storage disabled")

	// ErrNotRegistered is returned by the package-level Flush when Register
	// has not been called.
	ErrNotRegistered = errors.New("hoptoad: no notifier registered")

	// ErrClosed is returned by operations on a closed Notifier.
	ErrClosed = errors.New("hoptoad: notifier closed")
)
