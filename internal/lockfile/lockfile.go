// Package lockfile implements a repository-wide advisory lock: a lockfile
// under the repository root enforcing mutual exclusion between any command
// and the watcher's staging step. PID + TTL based stale-lock detection sits
// on top of a POSIX advisory flock, scoped to a single repository-wide lock
// rather than a per-file map since hometree only ever needs one.
package lockfile

import (
	"encoding/json"
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/hometree/hometree/internal/errs"
)

// Info is the JSON payload written alongside the lock for debugging and
// stale-lock detection.
type Info struct {
	PID       int       `json:"pid"`
	Reason    string    `json:"reason"`
	AcquiredAt time.Time `json:"acquired_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

func (i Info) Expired() bool { return time.Now().After(i.ExpiresAt) }

// Lock represents a held lock; call Release to free it.
type Lock struct {
	path string
	file *os.File
}

// DefaultTTL bounds how long a lock may be held before it is considered
// stale and reclaimable.
const DefaultTTL = time.Hour

// Acquire takes the exclusive repository lock at path (typically
// "<git_dir>/hometree.lock"). It is non-blocking: if another live process
// holds the lock, it returns errs.KindLockBusy-tagged error immediately.
func Acquire(path, reason string) (*Lock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening lockfile %s: %w", path, err)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		existing, _ := readInfo(path)
		f.Close()
		if existing != nil && !existing.Expired() && processAlive(existing.PID) {
			return nil, errs.New(errs.KindLockBusy, fmt.Sprintf("held by pid %d (%s)", existing.PID, existing.Reason))
		}
		// Stale holder: best-effort reclaim by retrying once.
		f2, err2 := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
		if err2 != nil {
			return nil, fmt.Errorf("opening lockfile %s: %w", path, err2)
		}
		if err := syscall.Flock(int(f2.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
			f2.Close()
			return nil, errs.New(errs.KindLockBusy, "lock busy after stale reclaim attempt")
		}
		f = f2
	}

	now := time.Now()
	info := Info{PID: os.Getpid(), Reason: reason, AcquiredAt: now, ExpiresAt: now.Add(DefaultTTL)}
	if err := writeInfo(path, info); err != nil {
		syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
		f.Close()
		return nil, err
	}

	return &Lock{path: path, file: f}, nil
}

// Release frees the lock and removes its info sidecar.
func (l *Lock) Release() error {
	defer l.file.Close()
	if err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN); err != nil {
		return err
	}
	_ = os.Remove(infoPath(l.path))
	return nil
}

func infoPath(lockPath string) string { return lockPath + ".json" }

func writeInfo(lockPath string, info Info) error {
	data, err := json.Marshal(info)
	if err != nil {
		return err
	}
	return os.WriteFile(infoPath(lockPath), data, 0o600)
}

func readInfo(lockPath string) (*Info, error) {
	data, err := os.ReadFile(infoPath(lockPath))
	if err != nil {
		return nil, err
	}
	var info Info
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// processAlive reports whether pid refers to a live process, using the
// POSIX signal-0 probe (Non-goal: non-POSIX hosts are not supported).
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}
