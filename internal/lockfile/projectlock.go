package lockfile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenk/backoff"
)

// errWouldBlock is returned by tryLock when another holder owns the lock.
var errWouldBlock = errors.New("lock held")

// ProjectLock is an exclusive advisory lock serializing writers of one
// project's lock file and module directory.
type ProjectLock struct {
	path    string
	release func() error
}

// LockPath returns the advisory lock path guarding lockFilePath.
func LockPath(lockFilePath string) string {
	return lockFilePath + ".lock"
}

// Acquire takes the project lock guarding lockFilePath, polling with
// exponential backoff until timeout. Contention past the timeout is a
// *ContentionError. A zero timeout tries once.
func Acquire(ctx context.Context, lockFilePath string, timeout time.Duration) (*ProjectLock, error) {
	path := LockPath(lockFilePath)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 20 * time.Millisecond
	b.MaxInterval = 500 * time.Millisecond
	b.MaxElapsedTime = timeout
	b.Reset()
	var policy backoff.BackOff = b
	if timeout <= 0 {
		policy = &backoff.StopBackOff{}
	}

	var release func() error
	op := func() error {
		r, err := tryLock(path)
		if errors.Is(err, errWouldBlock) {
			return err
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		release = r
		return nil
	}

	err := backoff.Retry(op, backoff.WithContext(policy, ctx))
	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		err = perm.Err
	}
	switch {
	case err == nil:
		return &ProjectLock{path: path, release: release}, nil
	case errors.Is(err, errWouldBlock):
		return nil, &ContentionError{Resource: path}
	case ctx.Err() != nil:
		return nil, ctx.Err()
	}
	return nil, fmt.Errorf("acquiring %s: %w", path, err)
}

// Path returns the lock's file path.
func (l *ProjectLock) Path() string { return l.path }

// Release drops the lock. Releasing twice is a no-op.
func (l *ProjectLock) Release() error {
	if l == nil || l.release == nil {
		return nil
	}
	r := l.release
	l.release = nil
	return r()
}
