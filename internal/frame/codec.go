// Package frame implements the browser native messaging wire format:
// a 4-byte little-endian payload length followed by UTF-8 JSON.
package frame

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
)

// HeaderSize is the length prefix size in bytes.
const HeaderSize = 4

// DefaultMaxPayload guards memory against a corrupted length header.
const DefaultMaxPayload = 64 << 20

var (
	// ErrNeedMoreData means the buffer does not yet hold a complete frame.
	ErrNeedMoreData = errors.New("frame: need more data")

	// ErrFrameTooLarge means the length header exceeds the configured limit.
	// The stream can no longer be trusted to be aligned on frame boundaries.
	ErrFrameTooLarge = errors.New("frame: payload exceeds size limit")
)

// PayloadError reports a complete frame whose payload is not valid JSON.
// The frame boundary is intact, so decoding can continue after it.
type PayloadError struct {
	Payload []byte
}

func (e *PayloadError) Error() string {
	return fmt.Sprintf("invalid JSON payload (%d bytes)", len(e.Payload))
}

// Encode serializes v and prefixes it with its length.
func Encode(v any) ([]byte, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	out := make([]byte, HeaderSize+len(payload))
	binary.LittleEndian.PutUint32(out[:HeaderSize], uint32(len(payload)))
	copy(out[HeaderSize:], payload)
	return out, nil
}

// TryDecodeOne extracts the first complete frame from buf without
// consuming anything on ErrNeedMoreData. maxPayload <= 0 disables the limit.
//
// On success it returns the JSON payload and the number of bytes the frame
// occupied. A *PayloadError still reports the consumed size so the caller
// can skip the bad frame.
func TryDecodeOne(buf []byte, maxPayload int) (json.RawMessage, int, error) {
	if len(buf) < HeaderSize {
		return nil, 0, ErrNeedMoreData
	}
	length := binary.LittleEndian.Uint32(buf[:HeaderSize])
	if maxPayload > 0 && uint64(length) > uint64(maxPayload) {
		return nil, 0, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, length, maxPayload)
	}
	total := uint64(HeaderSize) + uint64(length)
	if uint64(len(buf)) < total {
		return nil, 0, ErrNeedMoreData
	}
	n := int(total)
	payload := buf[HeaderSize:n]
	if !json.Valid(payload) {
		return nil, n, &PayloadError{Payload: append([]byte(nil), payload...)}
	}
	return json.RawMessage(append([]byte(nil), payload...)), n, nil
}
