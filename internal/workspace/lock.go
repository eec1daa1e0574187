package workspace

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/sirupsen/logrus"
)

const (
	locksDirName   = ".locks"
	lockRetryDelay = 100 * time.Millisecond
)

// ErrLockTimeout is returned when another deployment of the same name held the lock for too long.
var ErrLockTimeout = errors.New("timed out waiting for deployment lock")

// Locker serializes deployments per name. Inside the process a one-slot channel per
// name queues callers; an advisory file lock keeps other hookd processes sharing the
// same root out as well. Different names never wait on each other.
type Locker struct {
	dir     string
	timeout time.Duration
	slots   cmap.ConcurrentMap[string, chan struct{}]
}

func NewLocker(root string, timeout time.Duration) *Locker {
	return &Locker{
		dir:     filepath.Join(filepath.Clean(root), locksDirName),
		timeout: timeout,
		slots:   cmap.New[chan struct{}](),
	}
}

// Lock blocks until name is free or the lock timeout expires. The returned
// function releases the lock and must be called exactly once.
func (l *Locker) Lock(ctx context.Context, name string) (func(), error) {
	if _, err := Resolve(l.dir, name); err != nil {
		return nil, err
	}

	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	slot := l.slots.Upsert(name, nil, func(exist bool, inMap, _ chan struct{}) chan struct{} {
		if exist {
			return inMap
		}
		return make(chan struct{}, 1)
	})

	select {
	case slot <- struct{}{}:
	case <-ctx.Done():
		return nil, l.waitError(name, ctx.Err())
	}

	if err := os.MkdirAll(l.dir, dirPerm); err != nil {
		<-slot
		return nil, fmt.Errorf("error creating lock directory: %w", err)
	}

	fileLock := flock.New(filepath.Join(l.dir, name+".lock"))
	locked, err := fileLock.TryLockContext(ctx, lockRetryDelay)
	if err != nil || !locked {
		<-slot
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, l.waitError(name, ctxErr)
		}
		return nil, fmt.Errorf("error locking %s: %w", name, err)
	}

	return func() {
		if err := fileLock.Unlock(); err != nil {
			logrus.Warnf("error releasing lock for %s: %v", name, err)
		}
		<-slot
	}, nil
}

func (l *Locker) waitError(name string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s after %s", ErrLockTimeout, name, l.timeout)
	}
	return fmt.Errorf("error waiting for lock on %s: %w", name, err)
}
