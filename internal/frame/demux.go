package frame

import (
	"encoding/json"
	"errors"

	"go.uber.org/zap"
)

// Handler receives decoded frames. Exactly one of msg or bad is set.
type Handler func(msg json.RawMessage, bad *PayloadError)

// Demuxer accumulates raw stream bytes and dispatches complete frames in
// arrival order. It is not safe for concurrent use; feed it from one reader.
type Demuxer struct {
	buf        []byte
	maxPayload int
	handle     Handler
	logger     *zap.Logger
}

// NewDemuxer creates a demultiplexer. maxPayload <= 0 disables the limit.
func NewDemuxer(maxPayload int, handle Handler, logger *zap.Logger) *Demuxer {
	return &Demuxer{
		maxPayload: maxPayload,
		handle:     handle,
		logger:     logger,
	}
}

// Feed appends p and dispatches every frame that is now complete.
func (d *Demuxer) Feed(p []byte) {
	d.buf = append(d.buf, p...)

	offset := 0
	for {
		msg, n, err := TryDecodeOne(d.buf[offset:], d.maxPayload)
		if errors.Is(err, ErrNeedMoreData) {
			break
		}
		var bad *PayloadError
		if errors.As(err, &bad) {
			offset += n
			d.handle(nil, bad)
			continue
		}
		if err != nil {
			// Offsets past a bad header are meaningless; drop everything.
			d.logger.Error("discarding buffered input",
				zap.Int("bytes", len(d.buf)-offset), zap.Error(err))
			d.buf = d.buf[:0]
			return
		}
		offset += n
		d.handle(msg, nil)
	}

	if offset > 0 {
		rest := copy(d.buf, d.buf[offset:])
		d.buf = d.buf[:rest]
	}
}

// Buffered reports how many bytes are waiting for the rest of a frame.
func (d *Demuxer) Buffered() int {
	return len(d.buf)
}
