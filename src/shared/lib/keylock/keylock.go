package keylock

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/apex/log"
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/errors/domains"
	"github.com/gofrs/flock"
	"github.com/jasonlryan/demucs/src/shared/lib/errors/mark"
)

var JobBusy = domains.New("job_busy")

type Kind string

const (
	SeparationKind Kind = "separate"
	RefinementKind Kind = "refine"
)

const retryDelay = 250 * time.Millisecond

type Release func()

// Locker serialises work per (job, kind). Goroutines in this process queue on
// a keyed semaphore, other processes are excluded by a lock file under dir.
type Locker struct {
	dir   string
	mutex sync.Mutex
	slots map[string]chan struct{}
}

func NewLocker(dir string) (*Locker, error) {
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return nil, errors.Wrap(err, "Failed to create lock directory")
	}

	return &Locker{
		dir:   dir,
		slots: map[string]chan struct{}{},
	}, nil
}

func (l *Locker) slot(key string) chan struct{} {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	slot, ok := l.slots[key]
	if !ok {
		slot = make(chan struct{}, 1)
		l.slots[key] = slot
	}

	return slot
}

func (l *Locker) lockPath(jobID string, kind Kind) string {
	return filepath.Join(l.dir, fmt.Sprintf("%s.%s.lock", jobID, kind))
}

// Acquire blocks until the lock is held or ctx is done.
func (l *Locker) Acquire(ctx context.Context, jobID string, kind Kind) (Release, error) {
	key := l.lockPath(jobID, kind)
	slot := l.slot(key)

	select {
	case slot <- struct{}{}:
	case <-ctx.Done():
		return nil, mark.Wrap(ctx.Err(), JobBusy, "Gave up waiting for the job lock")
	}

	fileLock := flock.New(key)
	locked, err := fileLock.TryLockContext(ctx, retryDelay)
	if err != nil || !locked {
		<-slot
		if err == nil {
			err = errors.New("lock not acquired")
		}
		return nil, mark.Wrap(err, JobBusy, "Failed to take the job lock file")
	}

	return l.release(slot, fileLock), nil
}

// TryAcquire fails with JobBusy instead of waiting.
func (l *Locker) TryAcquire(jobID string, kind Kind) (Release, error) {
	key := l.lockPath(jobID, kind)
	slot := l.slot(key)

	select {
	case slot <- struct{}{}:
	default:
		return nil, mark.Message(JobBusy, fmt.Sprintf("Job %s already has a %s run in progress", jobID, kind))
	}

	fileLock := flock.New(key)
	locked, err := fileLock.TryLock()
	if err != nil {
		<-slot
		return nil, mark.Wrap(err, JobBusy, "Failed to take the job lock file")
	}

	if !locked {
		<-slot
		return nil, mark.Message(JobBusy, fmt.Sprintf("Job %s is locked by another process", jobID))
	}

	return l.release(slot, fileLock), nil
}

func (l *Locker) release(slot chan struct{}, fileLock *flock.Flock) Release {
	var once sync.Once
	return func() {
		once.Do(func() {
			if err := fileLock.Unlock(); err != nil {
				log.WithError(err).
					WithField("lock_path", fileLock.Path()).
					Error("Failed to unlock job lock file")
			}
			<-slot
		})
	}
}
