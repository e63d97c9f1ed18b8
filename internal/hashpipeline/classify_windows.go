//go:build windows

package hashpipeline

import (
	"errors"
	"syscall"
)

// errorSharingViolation is ERROR_SHARING_VIOLATION: another process has the
// file open without the sharing permissions this read requires.
const errorSharingViolation = 0x20

// isLockedError reports whether err is a Windows sharing violation, the
// platform's equivalent of a Unix EBUSY/ETXTBSY on an open file.
func isLockedError(err error) bool {
	var errno syscall.Errno
	if !errors.As(err, &errno) {
		return false
	}
	return errno == errorSharingViolation
}
