package logging

import (
	"io"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// rotatingWriter opens its lumberjack file lazily so that a logger that never
// writes does not create the log directory.
type rotatingWriter struct {
	config Config
	name   string

	once   sync.Once
	writer *lumberjack.Logger
}

func newRotatingWriter(config Config, name string) *rotatingWriter {
	return &rotatingWriter{config: config, name: name}
}

// Write implements io.Writer.
func (w *rotatingWriter) Write(p []byte) (int, error) {
	return w.get().Write(p)
}

// Close closes the underlying file if it was opened.
func (w *rotatingWriter) Close() error {
	if w.writer == nil {
		return nil
	}
	return w.writer.Close()
}

// Path returns the file the writer appends to.
func (w *rotatingWriter) Path() string {
	return filepath.Join(w.config.Director, w.name+".log")
}

func (w *rotatingWriter) get() *lumberjack.Logger {
	w.once.Do(func() {
		_ = os.MkdirAll(w.config.Director, 0o755)
		w.writer = &lumberjack.Logger{
			Filename:   w.Path(),
			MaxSize:    w.config.MaxSize,
			MaxBackups: w.config.MaxBackups,
			MaxAge:     w.config.MaxAge,
			Compress:   w.config.Compress,
			LocalTime:  true,
		}
	})
	return w.writer
}

var (
	writers   []*rotatingWriter
	writersMu sync.Mutex
)

func registerWriter(w *rotatingWriter) *rotatingWriter {
	writersMu.Lock()
	defer writersMu.Unlock()
	writers = append(writers, w)
	return w
}

// CloseAllWriters closes every file opened by loggers built with New.
func CloseAllWriters() error {
	writersMu.Lock()
	defer writersMu.Unlock()

	var lastErr error
	for _, w := range writers {
		if err := w.Close(); err != nil {
			lastErr = err
		}
	}
	writers = nil
	return lastErr
}

var _ io.WriteCloser = (*rotatingWriter)(nil)
