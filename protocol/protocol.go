// Package protocol splits a raw byte stream into discrete JSON values and frames
// outbound payloads for the wire.
//
// Two framings are supported:
//
//	stream:          {"method":...}{"result":...}  (values back to back, optional whitespace)
//	content-length:  Content-Length: 42\r\n\r\n{"method":...}
//
// A Framer is stateful: bytes of a value split across reads are buffered until
// the rest arrives. A Framer is not safe for concurrent use; one reader owns it.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MaxBufferSize bounds how much of an incomplete value is held before the
// stream is declared malformed.
const MaxBufferSize = 10 * 1024 * 1024 // 10 MB

// ErrDecode matches every *DecodeError.
var ErrDecode = errors.New("malformed stream")

// DecodeError reports a byte stream that cannot be split into JSON values.
// Offset counts bytes consumed before the failing value.
type DecodeError struct {
	Offset int64
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode at offset %d: %v", e.Offset, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

func (e *DecodeError) Is(target error) bool { return target == ErrDecode }

// Framer is the framing collaborator of a peer.
type Framer interface {
	// Consume buffers chunk and returns every value completed by it, in order.
	Consume(chunk []byte) ([]json.RawMessage, error)
	// Frame wraps one encoded message for writing.
	Frame(payload []byte) []byte
}

// Framing names a Framer implementation.
type Framing string

const (
	FramingStream        Framing = "stream"
	FramingContentLength Framing = "content-length"
)

// NewFramer returns a fresh Framer for the named framing.
func NewFramer(f Framing) (Framer, error) {
	switch f {
	case "", FramingStream:
		return NewStreamFramer(), nil
	case FramingContentLength:
		return NewContentLengthFramer(), nil
	default:
		return nil, fmt.Errorf("unsupported framing: %q", f)
	}
}
