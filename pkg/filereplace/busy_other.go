//go:build !unix && !windows

package filereplace

func isPlatformBusy(error) bool {
	return false
}
