//go:build !unix

package lockfile

import (
	"errors"
	"fmt"
	"os"
)

// tryLock creates path exclusively; the file's existence is the lock.
func tryLock(path string) (func() error, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil, errWouldBlock
		}
		return nil, fmt.Errorf("creating lock file: %w", err)
	}
	f.Close()
	return func() error { return os.Remove(path) }, nil
}
