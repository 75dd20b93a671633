package supervisor

import "bytes"

const (
	defaultMaxOutputSize = 4 << 20
	truncationMarker     = "\n... output truncated ..."
)

// limitedBuffer keeps the first limit bytes written to it and silently
// discards the rest, remembering that it did so.
type limitedBuffer struct {
	buf       bytes.Buffer
	limit     int
	truncated bool
}

func newLimitedBuffer(limit int) *limitedBuffer {
	if limit <= 0 {
		limit = defaultMaxOutputSize
	}
	return &limitedBuffer{limit: limit}
}

// Write always reports len(p) so the child never sees a short write.
func (l *limitedBuffer) Write(p []byte) (int, error) {
	room := l.limit - l.buf.Len()
	if room <= 0 {
		if len(p) > 0 {
			l.truncated = true
		}
		return len(p), nil
	}
	if len(p) > room {
		l.buf.Write(p[:room])
		l.truncated = true
		return len(p), nil
	}
	l.buf.Write(p)
	return len(p), nil
}

// Bytes returns the captured output without the truncation marker.
func (l *limitedBuffer) Bytes() []byte {
	return l.buf.Bytes()
}

func (l *limitedBuffer) String() string {
	if l.truncated {
		return l.buf.String() + truncationMarker
	}
	return l.buf.String()
}
