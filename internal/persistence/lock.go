package persistence

import (
	"errors"
	"strings"
)

const lockSuffix = ".lock"

// ErrDatabaseLocked indicates another process already owns the database lock.
var ErrDatabaseLocked = errors.New("database is locked by another process")

// ErrLockUnsupported indicates the current platform has no lock backend implementation.
var ErrLockUnsupported = errors.New("database lock unsupported")

// Lock is an acquired exclusive lock on a database file.
type Lock interface {
	Release() error
}

type noopLock struct{}

func (noopLock) Release() error { return nil }

// AcquireLock takes an exclusive advisory lock next to the database file so that two
// service instances never write the same snapshot. In-memory databases need no lock.
func AcquireLock(dbPath string) (Lock, error) {
	dbPath = strings.TrimSpace(dbPath)
	if dbPath == "" || isMemoryPath(dbPath) {
		return noopLock{}, nil
	}

	return acquireFileLock(LockPath(dbPath))
}

// LockPath returns the lock file used for dbPath.
func LockPath(dbPath string) string {
	return strings.TrimSpace(dbPath) + lockSuffix
}

func isMemoryPath(path string) bool {
	return path == ":memory:" || strings.HasPrefix(path, "file::memory:")
}
