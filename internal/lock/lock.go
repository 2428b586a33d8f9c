// Package lock keeps a single daemon per session with an advisory flock on
// the session's LOCK file.
package lock

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// HeldError is returned when another process holds the session lock.
type HeldError struct {
	Holder Info
	Path   string
}

func (e *HeldError) Error() string {
	return fmt.Sprintf("session lock held by PID %d since %s (%s)",
		e.Holder.PID, e.Holder.Since.Format(time.RFC3339), e.Path)
}

// Info is what the holder writes into the lock file.
type Info struct {
	PID   int
	Since time.Time
}

// Lock is an acquired session lock.
type Lock struct {
	file *os.File
	path string
}

// Acquire takes an exclusive lock on the file at path, creating it and
// its directory when needed. It fails with *HeldError if another process
// holds the lock.
func Acquire(path string) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		_ = f.Close()
		holder, _ := Read(path)
		return nil, &HeldError{Holder: holder, Path: path}
	}

	if err := writeInfo(f, Info{PID: os.Getpid(), Since: time.Now().UTC()}); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("write lock file: %w", err)
	}
	return &Lock{file: f, path: path}, nil
}

// Release removes the lock file and drops the lock. Safe to call on a nil
// receiver and more than once.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	_ = os.Remove(l.path)
	err := l.file.Close()
	l.file = nil
	return err
}

// Read returns the holder recorded in the lock file at path. A missing
// file yields the zero Info.
func Read(path string) (Info, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Info{}, nil
	}
	if err != nil {
		return Info{}, err
	}
	return parseInfo(string(data)), nil
}

func writeInfo(f *os.File, info Info) error {
	if err := f.Truncate(0); err != nil {
		return err
	}
	if _, err := f.Seek(0, 0); err != nil {
		return err
	}
	_, err := fmt.Fprintf(f, "pid=%d\ntime=%s\n", info.PID, info.Since.Format(time.RFC3339))
	return err
}

func parseInfo(content string) Info {
	var info Info
	for _, line := range strings.Split(content, "\n") {
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		switch key {
		case "pid":
			info.PID, _ = strconv.Atoi(value)
		case "time":
			info.Since, _ = time.Parse(time.RFC3339, value)
		}
	}
	return info
}
