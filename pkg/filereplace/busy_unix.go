//go:build unix

package filereplace

import (
	"errors"

	"golang.org/x/sys/unix"
)

func isPlatformBusy(err error) bool {
	return errors.Is(err, unix.EBUSY) ||
		errors.Is(err, unix.ETXTBSY) ||
		errors.Is(err, unix.EAGAIN)
}
