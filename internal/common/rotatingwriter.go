package common

import (
	"os"
)

// rotatingWriter is a minimal single-rotation writer: once the underlying
// file exceeds maxBytes it is closed and a fresh file is opened in its
// place. It is deliberately simple -- the pipeline's logs are a debugging
// aid, not a retained audit trail (see spec Non-goals: persistent-store
// file format is out of scope).
type rotatingWriter struct {
	path     string
	maxBytes int64
	written  int64
	file     *os.File
}

func NewRotatingWriter(path string, maxBytes int64) (*rotatingWriter, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &rotatingWriter{path: path, maxBytes: maxBytes, written: info.Size(), file: f}, nil
}

func (w *rotatingWriter) Write(p []byte) (int, error) {
	if w.written+int64(len(p)) > w.maxBytes {
		if err := w.rotate(); err != nil {
			return 0, err
		}
	}
	n, err := w.file.Write(p)
	w.written += int64(n)
	return n, err
}

func (w *rotatingWriter) rotate() error {
	_ = w.file.Close()
	f, err := os.OpenFile(w.path, os.O_TRUNC|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	w.file = f
	w.written = 0
	return nil
}

func (w *rotatingWriter) Close() error {
	return w.file.Close()
}
