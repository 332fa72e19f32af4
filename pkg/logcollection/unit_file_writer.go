package logcollection

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// UnitFileWriter mirrors unit records into one append-only file per unit.
// It satisfies the output sink interface and is flushed periodically by Serve.
type UnitFileWriter struct {
	pathFor       func(unit string) string
	flushInterval time.Duration
	logger        StructuredLogger

	mutex sync.Mutex
	files map[string]*unitFile
}

type unitFile struct {
	file   *os.File
	writer *bufio.Writer
}

// NewUnitFileWriter creates a writer; pathFor maps a unit name to its log file
func NewUnitFileWriter(pathFor func(unit string) string, flushInterval time.Duration, logger StructuredLogger) *UnitFileWriter {
	if flushInterval <= 0 {
		flushInterval = 2 * time.Second
	}
	return &UnitFileWriter{
		pathFor:       pathFor,
		flushInterval: flushInterval,
		logger:        logger,
		files:         make(map[string]*unitFile),
	}
}

// Append writes text as one line to the unit's file. Write failures are
// logged, never returned, so a full disk cannot stop a unit.
func (w *UnitFileWriter) Append(unit, text string) {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	f, err := w.ensureOpen(unit)
	if err != nil {
		w.logger.WithUnit(unit).WithError(err).Warnf("Failed to open unit log file")
		return
	}
	if _, err := f.writer.WriteString(text + "\n"); err != nil {
		w.logger.WithUnit(unit).WithError(err).Warnf("Failed to write unit log file")
	}
}

func (w *UnitFileWriter) ensureOpen(unit string) (*unitFile, error) {
	if f, ok := w.files[unit]; ok {
		return f, nil
	}

	path := w.pathFor(unit)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory %s: %w", filepath.Dir(path), err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", path, err)
	}

	f := &unitFile{file: file, writer: bufio.NewWriter(file)}
	w.files[unit] = f
	return f, nil
}

// Flush writes buffered records of every unit to disk
func (w *UnitFileWriter) Flush() error {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	var firstErr error
	for _, f := range w.files {
		if err := f.writer.Flush(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Close flushes and closes every open file
func (w *UnitFileWriter) Close() error {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	var firstErr error
	for unit, f := range w.files {
		if err := f.writer.Flush(); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := f.file.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(w.files, unit)
	}
	return firstErr
}

// Serve flushes on a ticker until ctx is done, then closes the files
func (w *UnitFileWriter) Serve(ctx context.Context) error {
	ticker := time.NewTicker(w.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if err := w.Close(); err != nil {
				w.logger.WithError(err).Warnf("Failed to close unit log files")
			}
			return ctx.Err()
		case <-ticker.C:
			if err := w.Flush(); err != nil {
				w.logger.WithError(err).Warnf("Failed to flush unit log files")
			}
		}
	}
}

func (w *UnitFileWriter) String() string {
	return "unit-log-files"
}
