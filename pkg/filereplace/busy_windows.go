//go:build windows

package filereplace

import (
	"errors"

	"golang.org/x/sys/windows"
)

// Excel opens workbooks with a sharing mode that denies writers, which
// surfaces as a sharing violation; byte-range locks surface as a lock violation.
func isPlatformBusy(err error) bool {
	return errors.Is(err, windows.ERROR_SHARING_VIOLATION) ||
		errors.Is(err, windows.ERROR_LOCK_VIOLATION)
}
