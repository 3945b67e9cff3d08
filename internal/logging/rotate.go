package logging

import (
	"os"
	"path/filepath"
	"sync"
	"time"
)

// rotatingFile is an io.Writer that reopens a new file named
// <path>/<name>_YYYY-MM-DD.log whenever the wall-clock date changes,
// matching the daily log rotation behavior of the original cm_log.c
// (spec.md §6, supplemented from original_source/ since spec.md's
// distillation only mentions the naming convention, not the rotation
// trigger).
type rotatingFile struct {
	mu      sync.Mutex
	dir     string
	name    string
	day     string
	current *os.File
}

func newRotatingFile(dir, name string) (*rotatingFile, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	rf := &rotatingFile{dir: dir, name: name}
	if err := rf.rotateLocked(time.Now()); err != nil {
		return nil, err
	}
	return rf, nil
}

func (rf *rotatingFile) fileNameFor(t time.Time) string {
	return filepath.Join(rf.dir, rf.name+"_"+t.Format("2006-01-02")+".log")
}

func (rf *rotatingFile) rotateLocked(now time.Time) error {
	day := now.Format("2006-01-02")
	if rf.current != nil && day == rf.day {
		return nil
	}
	f, err := os.OpenFile(rf.fileNameFor(now), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	old := rf.current
	rf.current = f
	rf.day = day
	if old != nil {
		_ = old.Close()
	}
	return nil
}

// Write implements io.Writer, rotating to a new day's file first if the
// date has changed since the last write.
func (rf *rotatingFile) Write(p []byte) (int, error) {
	rf.mu.Lock()
	defer rf.mu.Unlock()
	if err := rf.rotateLocked(time.Now()); err != nil {
		return 0, err
	}
	return rf.current.Write(p)
}

// Close closes the currently open file.
func (rf *rotatingFile) Close() error {
	rf.mu.Lock()
	defer rf.mu.Unlock()
	if rf.current == nil {
		return nil
	}
	return rf.current.Close()
}
