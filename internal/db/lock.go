package db

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// Lock is an exclusive advisory lock on <data_dir>/locks/run.lock.
type Lock struct {
	fl *flock.Flock
}

func lockFile(dataDir string) (*flock.Flock, error) {
	locksDir := filepath.Join(dataDir, "locks")
	if err := os.MkdirAll(locksDir, 0o755); err != nil {
		return nil, fmt.Errorf("create locks dir: %w", err)
	}
	return flock.New(filepath.Join(locksDir, "run.lock")), nil
}

// AcquireLock blocks until the data directory lock is held.
func AcquireLock(dataDir string) (*Lock, error) {
	fl, err := lockFile(dataDir)
	if err != nil {
		return nil, err
	}
	if err := fl.Lock(); err != nil {
		return nil, fmt.Errorf("lock run.lock: %w", err)
	}
	return &Lock{fl: fl}, nil
}

// TryAcquireLock attempts to take the lock without blocking. ok is false when
// another process holds it.
func TryAcquireLock(dataDir string) (lock *Lock, ok bool, err error) {
	fl, err := lockFile(dataDir)
	if err != nil {
		return nil, false, err
	}
	locked, err := fl.TryLock()
	if err != nil {
		return nil, false, fmt.Errorf("lock run.lock: %w", err)
	}
	if !locked {
		return nil, false, nil
	}
	return &Lock{fl: fl}, true, nil
}

// Release releases the lock.
func (l *Lock) Release() error {
	if l == nil || l.fl == nil {
		return nil
	}
	if err := l.fl.Unlock(); err != nil {
		return fmt.Errorf("unlock run.lock: %w", err)
	}
	return nil
}
