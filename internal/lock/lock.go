// Package lock provides the cross-process PID-file lock that serialises
// every mutation of the consumer's certificates.
package lock

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sys/unix"
	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/opmodel/subctl/internal/output"
)

// DefaultPath is the PID file location shared with other entitlement tools.
const DefaultPath = "/var/run/rhsm/cert.pid"

// DefaultPollInterval is how long Acquire waits between attempts while
// another live process holds the lock.
const DefaultPollInterval = 500 * time.Millisecond

// ActionLock is a reentrant, cross-process exclusive lock backed by a PID
// file and flock(2). Reentrancy is per instance: a process should share one
// ActionLock between all of its actions.
//
// If the lock file cannot be created, opened, locked or written, the lock
// degrades to a no-op for that possession and a warning is logged.
type ActionLock struct {
	path     string
	interval time.Duration
	pid      int
	alive    func(pid int) bool

	mu    sync.Mutex
	depth int
	file  *os.File
	noop  bool
}

// Option configures an ActionLock.
type Option func(*ActionLock)

// WithPollInterval overrides DefaultPollInterval.
func WithPollInterval(d time.Duration) Option {
	return func(l *ActionLock) {
		if d > 0 {
			l.interval = d
		}
	}
}

// New returns an unacquired lock for path. Nothing touches the filesystem
// until the first acquire.
func New(path string, opts ...Option) *ActionLock {
	if path == "" {
		path = DefaultPath
	}
	l := &ActionLock{
		path:     path,
		interval: DefaultPollInterval,
		pid:      os.Getpid(),
		alive:    processAlive,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Path returns the PID file path.
func (l *ActionLock) Path() string {
	return l.path
}

// Acquire blocks until the lock is held or ctx is done.
func (l *ActionLock) Acquire(ctx context.Context) error {
	if l.TryAcquire() {
		return nil
	}
	err := wait.PollUntilContextCancel(ctx, l.interval, false, func(context.Context) (bool, error) {
		return l.TryAcquire(), nil
	})
	if err != nil {
		return fmt.Errorf("acquiring lock %s: %w", l.path, err)
	}
	return nil
}

// TryAcquire makes a single attempt and reports whether the lock is now held.
func (l *ActionLock) TryAcquire() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.depth > 0 {
		l.depth++
		return true
	}

	f, err := l.open()
	if err != nil {
		l.degrade(err)
		return true
	}
	if f == nil {
		return false
	}

	holder, err := readPID(f)
	if err == nil && holder != 0 && holder != l.pid && l.alive(holder) {
		// A live writer that does not use flock still owns the file.
		closeLocked(f)
		return false
	}

	if err := writePID(f, l.pid); err != nil {
		closeLocked(f)
		l.degrade(err)
		return true
	}

	l.file = f
	l.depth = 1
	return true
}

// open returns the locked file, nil if another descriptor holds the flock,
// or an error if locking is impossible.
func (l *ActionLock) open() (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(l.path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, nil
		}
		return nil, err
	}

	// The previous holder may have unlinked the file after we opened it.
	fi, err := f.Stat()
	if err != nil {
		closeLocked(f)
		return nil, err
	}
	cur, err := os.Stat(l.path)
	if err != nil || !os.SameFile(fi, cur) {
		closeLocked(f)
		return nil, nil
	}

	return f, nil
}

func (l *ActionLock) degrade(err error) {
	output.Warn("lock unavailable, continuing without it", "path", l.path, "err", err)
	l.noop = true
	l.depth = 1
}

// Release drops one level of possession. At depth zero the PID file is
// removed if it still records this process, then the flock is released.
// Releasing an unheld lock is a no-op.
func (l *ActionLock) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.depth == 0 {
		return
	}
	l.depth--
	if l.depth > 0 {
		return
	}

	l.noop = false
	if l.file == nil {
		return
	}

	if pid, err := readPID(l.file); err == nil && pid == l.pid {
		if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
			output.Warn("removing lock file", "path", l.path, "err", err)
		}
	}
	closeLocked(l.file)
	l.file = nil
}

// Depth returns the current reentrancy depth.
func (l *ActionLock) Depth() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.depth
}

// Acquired reports whether this instance currently holds the lock.
func (l *ActionLock) Acquired() bool {
	return l.Depth() > 0
}

// Degraded reports whether the current possession is a no-op.
func (l *ActionLock) Degraded() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.noop
}

func closeLocked(f *os.File) {
	_ = unix.Flock(int(f.Fd()), unix.LOCK_UN)
	_ = f.Close()
}

func readPID(f *os.File) (int, error) {
	buf := make([]byte, 32)
	n, err := f.ReadAt(buf, 0)
	if err != nil && !errors.Is(err, io.EOF) {
		return 0, err
	}
	line := strings.TrimSpace(strings.SplitN(string(buf[:n]), "\n", 2)[0])
	if line == "" {
		return 0, nil
	}
	pid, err := strconv.Atoi(line)
	if err != nil {
		return 0, fmt.Errorf("parsing pid %q: %w", line, err)
	}
	return pid, nil
}

func writePID(f *os.File, pid int) error {
	if err := f.Truncate(0); err != nil {
		return err
	}
	if _, err := f.WriteAt([]byte(strconv.Itoa(pid)+"\n"), 0); err != nil {
		return err
	}
	return f.Sync()
}
