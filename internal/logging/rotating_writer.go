package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const (
	// DefaultMaxBytes is the size at which a day's log file rolls over.
	DefaultMaxBytes int64 = 300 * 1024 * 1024
	// DefaultRetainDays is how many UTC days of files survive pruning.
	DefaultRetainDays = 14

	dayLayout = "2006-01-02"
)

// RotatingWriter appends to dated segments of a logical log file.
//
// For BasePath logs/labgated.log the segments are logs/labgated-YYYY-MM-DD.log,
// then logs/labgated-YYYY-MM-DD-2.log and so on once a segment reaches
// MaxBytes. Days are UTC. BasePath itself is kept as a symlink to the live
// segment when the filesystem allows it. Whenever a new day starts, segments
// older than RetainDays are removed.
type RotatingWriter struct {
	BasePath   string
	MaxBytes   int64
	RetainDays int
	// Now defaults to time.Now; tests pin it to force day rollover.
	Now func() time.Time

	mu   sync.Mutex
	day  string
	seq  int
	file *os.File
	size int64
}

// NewRotatingWriter opens the current segment for basePath. A basePath of
// "-" discards output. A non-positive maxBytes means DefaultMaxBytes.
func NewRotatingWriter(basePath string, maxBytes int64) (io.WriteCloser, error) {
	if strings.TrimSpace(basePath) == "-" {
		return nopWriteCloser{w: io.Discard}, nil
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	w := &RotatingWriter{BasePath: basePath, MaxBytes: maxBytes, RetainDays: DefaultRetainDays, Now: time.Now}
	if err := w.roll(0); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *RotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.roll(int64(len(p))); err != nil {
		return 0, err
	}
	n, err := w.file.Write(p)
	w.size += int64(n)
	return n, err
}

func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}

// roll switches segments when the day changed or the pending write would
// push a non-empty segment past MaxBytes.
func (w *RotatingWriter) roll(pending int64) error {
	now := time.Now
	if w.Now != nil {
		now = w.Now
	}
	today := now().UTC().Format(dayLayout)
	switch {
	case w.file == nil || w.day != today:
		newDay := w.day != today
		w.day, w.seq = today, 1
		if err := w.open(); err != nil {
			return err
		}
		if newDay {
			w.prune(now().UTC())
		}
	case w.size > 0 && w.size+pending > w.MaxBytes:
		w.seq++
		return w.open()
	}
	return nil
}

func (w *RotatingWriter) split() (dir, stem, ext string) {
	dir, name := filepath.Split(w.BasePath)
	if dir == "" {
		dir = "."
	}
	ext = filepath.Ext(name)
	stem = strings.TrimSuffix(name, ext)
	if ext == "" {
		ext = ".log"
	}
	return dir, stem, ext
}

func (w *RotatingWriter) segmentPath() string {
	dir, stem, ext := w.split()
	name := stem + "-" + w.day + ext
	if w.seq > 1 {
		name = fmt.Sprintf("%s-%s-%d%s", stem, w.day, w.seq, ext)
	}
	return filepath.Join(dir, name)
}

func (w *RotatingWriter) open() error {
	if w.file != nil {
		_ = w.file.Close()
		w.file = nil
	}
	dir, _, _ := w.split()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}
	path := w.segmentPath()
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	w.file, w.size = f, 0
	if st, err := f.Stat(); err == nil {
		w.size = st.Size()
	}
	w.link(path)
	return nil
}

// link points BasePath at the live segment. Failure only loses the
// convenience name, so it is ignored.
func (w *RotatingWriter) link(target string) {
	if dest, err := os.Readlink(w.BasePath); err == nil && dest == target {
		return
	}
	if info, err := os.Lstat(w.BasePath); err == nil && info.Mode()&os.ModeSymlink == 0 {
		// A regular file at BasePath is left untouched.
		return
	}
	_ = os.Remove(w.BasePath)
	_ = os.Symlink(target, w.BasePath)
}

// prune removes segments whose day is more than RetainDays before now.
func (w *RotatingWriter) prune(now time.Time) {
	if w.RetainDays <= 0 {
		return
	}
	dir, stem, ext := w.split()
	matches, err := filepath.Glob(filepath.Join(dir, stem+"-*"+ext))
	if err != nil {
		return
	}
	cutoff := now.AddDate(0, 0, -w.RetainDays).Format(dayLayout)
	for _, m := range matches {
		rest := strings.TrimPrefix(filepath.Base(m), stem+"-")
		if len(rest) < len(dayLayout) {
			continue
		}
		day := rest[:len(dayLayout)]
		if _, err := time.Parse(dayLayout, day); err != nil {
			continue
		}
		if day < cutoff {
			_ = os.Remove(m)
		}
	}
}

type nopWriteCloser struct{ w io.Writer }

func (n nopWriteCloser) Write(p []byte) (int, error) { return n.w.Write(p) }
func (n nopWriteCloser) Close() error                { return nil }
