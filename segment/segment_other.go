//go:build !unix

package segment

import "os"

// Без mmap память процесса: воркеры - горутины, этого достаточно.
func mapFile(_ *os.File, size int) ([]byte, error) {
	return make([]byte, size), nil
}

func mapAnonymous(size int) ([]byte, error) {
	return make([]byte, size), nil
}

func unmap([]byte) error {
	return nil
}
