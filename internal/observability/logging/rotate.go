package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

const (
	// DefaultFilePrefix names log files seriesbell.YYYY-MM-DD.log.
	DefaultFilePrefix = "seriesbell"
	// DefaultKeepFiles is how many daily files survive pruning.
	DefaultKeepFiles = 7
)

// DailyFile is an io.WriteCloser that writes to {dir}/{prefix}.{UTC date}.log,
// switching files when the date changes and keeping the newest keep files.
type DailyFile struct {
	mu     sync.Mutex
	dir    string
	prefix string
	keep   int
	now    func() time.Time

	day  string
	file *os.File
}

// NewDailyFile creates dir if needed and opens today's file.
func NewDailyFile(dir, prefix string, keep int) (*DailyFile, error) {
	return newDailyFile(dir, prefix, keep, time.Now)
}

func newDailyFile(dir, prefix string, keep int, now func() time.Time) (*DailyFile, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	d := &DailyFile{dir: dir, prefix: prefix, keep: keep, now: now}
	if err := d.rotate(d.today()); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *DailyFile) today() string {
	return d.now().UTC().Format("2006-01-02")
}

// Path returns the file currently written to.
func (d *DailyFile) Path() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pathFor(d.day)
}

func (d *DailyFile) pathFor(day string) string {
	return filepath.Join(d.dir, d.prefix+"."+day+".log")
}

func (d *DailyFile) Write(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if day := d.today(); day != d.day {
		if err := d.rotate(day); err != nil {
			return 0, err
		}
	}
	return d.file.Write(p)
}

// Close closes the current file.
func (d *DailyFile) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.file == nil {
		return nil
	}
	err := d.file.Close()
	d.file = nil
	return err
}

// rotate must be called with mu held (or before d is shared).
func (d *DailyFile) rotate(day string) error {
	if d.file != nil {
		_ = d.file.Close()
	}
	// #nosec G302 G304 -- log files are meant to be readable by operators.
	f, err := os.OpenFile(d.pathFor(day), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	d.file = f
	d.day = day
	d.prune()
	return nil
}

func (d *DailyFile) prune() {
	if d.keep <= 0 {
		return
	}
	matches, err := filepath.Glob(filepath.Join(d.dir, d.prefix+".*.log"))
	if err != nil || len(matches) <= d.keep {
		return
	}
	// YYYY-MM-DD sorts chronologically.
	sort.Strings(matches)
	for _, old := range matches[:len(matches)-d.keep] {
		_ = os.Remove(old)
	}
}
