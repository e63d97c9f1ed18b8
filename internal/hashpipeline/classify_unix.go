//go:build unix

package hashpipeline

import (
	"errors"
	"syscall"
)

// isLockedError reports whether err stems from another process holding the
// file busy: EBUSY (device or resource busy, e.g. a mounted or exported
// file) or ETXTBSY (an executable image still being written).
func isLockedError(err error) bool {
	return errors.Is(err, syscall.EBUSY) || errors.Is(err, syscall.ETXTBSY)
}
