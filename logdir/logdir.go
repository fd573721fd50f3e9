// Copyright (c) 2024 BVK Chaitanya

/*
Package logdir implements an io.Writer that appends to size limited log files
in a directory. It is used to capture worker process output.

Log files are named with a timestamp. A new writer appends to the most recent
log file when it was created in the same reuse interval, so a crash-looping
process doesn't fill up the directory with too many log files.
*/
package logdir

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

type Options struct {
	// MaxFileSize is the maximum size limit for a log file in bytes.
	MaxFileSize int64

	// ReuseInterval is the time interval during which an existing log file is
	// reused (i.e., appended-to) if present.
	ReuseInterval time.Duration

	// FileMode contains the file mode and permissions value for the log files.
	FileMode os.FileMode
}

func (v *Options) setDefaults() {
	if v.MaxFileSize == 0 {
		v.MaxFileSize = 100 * 1024 * 1024
	}
	if v.ReuseInterval == 0 {
		v.ReuseInterval = time.Hour
	}
	if v.FileMode == 0 {
		v.FileMode = 0600
	}
}

func (v *Options) Check() error {
	if v.MaxFileSize < 0 || v.ReuseInterval < 0 {
		return fmt.Errorf("max file size and reuse interval cannot be negative: %w", os.ErrInvalid)
	}
	return nil
}

// Writer is safe for concurrent use.
type Writer struct {
	opts Options

	dirname, logname string

	mu sync.Mutex

	fp   *os.File
	size int64
}

func New(dirname, logname string, opts *Options) (*Writer, error) {
	if opts == nil {
		opts = new(Options)
	}
	opts.setDefaults()
	if err := opts.Check(); err != nil {
		return nil, err
	}
	w := &Writer{
		opts:    *opts,
		dirname: dirname,
		logname: logname,
	}
	fp, size, err := w.openFile(time.Now(), w.opts.ReuseInterval)
	if err != nil {
		return nil, fmt.Errorf("could not open log file: %w", err)
	}
	w.fp, w.size = fp, size
	return w, nil
}

func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.fp == nil {
		return nil
	}
	err := w.fp.Close()
	w.fp = nil
	return err
}

// Name returns the current log file path.
func (w *Writer) Name() string {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.fp == nil {
		return ""
	}
	return w.fp.Name()
}

func (w *Writer) fileName(at time.Time, truncate time.Duration) string {
	at = at.UTC()
	if truncate != 0 {
		at = at.Truncate(truncate)
	}
	return fmt.Sprintf("%s-%s.log", w.logname, at.Format("20060102-150405.000000000"))
}

func (w *Writer) openFile(at time.Time, truncate time.Duration) (*os.File, int64, error) {
	fpath := filepath.Join(w.dirname, w.fileName(at, truncate))
	fp, err := os.OpenFile(fpath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, w.opts.FileMode)
	if err != nil {
		return nil, -1, fmt.Errorf("could not open/create log file: %w", err)
	}
	finfo, err := fp.Stat()
	if err != nil {
		fp.Close()
		return nil, -1, fmt.Errorf("could not get file size: %w", err)
	}
	size := finfo.Size()
	if truncate != 0 && size >= w.opts.MaxFileSize {
		fp.Close()
		return w.openFile(at, 0)
	}
	return fp, size, nil
}

// Write appends the data to the current log file. A new log file is started
// when the current file would exceed the size limit.
func (w *Writer) Write(data []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.fp == nil {
		return 0, os.ErrClosed
	}
	if w.size > 0 && w.size+int64(len(data)) > w.opts.MaxFileSize {
		fp, size, err := w.openFile(time.Now(), 0)
		if err != nil {
			return 0, fmt.Errorf("could not open new log file: %w", err)
		}
		w.fp.Close()
		w.fp, w.size = fp, size
	}
	n, err := w.fp.Write(data)
	w.size += int64(n)
	return n, err
}
