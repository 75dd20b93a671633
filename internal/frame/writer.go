package frame

import (
	"io"
	"sync"

	"go.uber.org/zap"
)

// Writer serializes replies onto a shared stream. Each frame is written in
// a single call under the lock so concurrent replies never interleave.
type Writer struct {
	mu     sync.Mutex
	w      io.Writer
	logger *zap.Logger
}

// NewWriter creates a thread-safe frame writer.
func NewWriter(w io.Writer, logger *zap.Logger) *Writer {
	return &Writer{w: w, logger: logger}
}

// Send encodes v and writes it as one frame. Failures are logged and the
// reply is dropped; the reply channel is best-effort.
func (fw *Writer) Send(v any) {
	data, err := Encode(v)
	if err != nil {
		fw.logger.Error("drop unencodable reply", zap.Error(err))
		return
	}

	fw.mu.Lock()
	defer fw.mu.Unlock()
	if _, err := fw.w.Write(data); err != nil {
		fw.logger.Error("write reply frame failed", zap.Int("bytes", len(data)), zap.Error(err))
	}
}
