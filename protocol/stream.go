package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// StreamFramer splits concatenated JSON values.
//
// Objects, arrays and strings are scanned incrementally: the scan state of the
// value at the head of buf survives between calls, so each byte is looked at
// once no matter how many chunks the value arrives in. Bare numbers and
// literals are left to json.Decoder.
type StreamFramer struct {
	buf      []byte
	consumed int64
	max      int

	pos    int // bytes of the head value already scanned
	depth  int
	inStr  bool
	escape bool
}

func NewStreamFramer() *StreamFramer {
	return &StreamFramer{max: MaxBufferSize}
}

func (s *StreamFramer) Consume(chunk []byte) ([]json.RawMessage, error) {
	s.buf = append(s.buf, chunk...)

	var out []json.RawMessage
	for {
		if s.pos == 0 {
			rest := bytes.TrimLeft(s.buf, " \t\r\n")
			s.consumed += int64(len(s.buf) - len(rest))
			s.buf = rest
		}
		if len(s.buf) == 0 {
			s.buf = nil
			return out, nil
		}

		var (
			v   json.RawMessage
			n   int
			err error
		)
		switch s.buf[0] {
		case '{', '[', '"':
			end, complete := s.scan()
			if !complete {
				return out, s.checkSize()
			}
			// Unmarshal into RawMessage validates and copies out of buf.
			if err = json.Unmarshal(s.buf[:end], &v); err != nil {
				return out, &DecodeError{Offset: s.consumed, Err: err}
			}
			n = end
		default:
			dec := json.NewDecoder(bytes.NewReader(s.buf))
			err = dec.Decode(&v)
			if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
				// partial literal, wait for more bytes
				return out, s.checkSize()
			}
			if err != nil {
				return out, &DecodeError{Offset: s.consumed, Err: err}
			}
			n = int(dec.InputOffset())
		}

		out = append(out, v)
		s.consumed += int64(n)
		s.buf = s.buf[n:]
	}
}

// scan resumes at s.pos and reports the end of the head value once its last
// byte has arrived.
func (s *StreamFramer) scan() (int, bool) {
	for i := s.pos; i < len(s.buf); i++ {
		c := s.buf[i]
		if s.inStr {
			switch {
			case s.escape:
				s.escape = false
			case c == '\\':
				s.escape = true
			case c == '"':
				s.inStr = false
				if s.depth == 0 {
					s.reset()
					return i + 1, true
				}
			}
			continue
		}
		switch c {
		case '"':
			s.inStr = true
		case '{', '[':
			s.depth++
		case '}', ']':
			s.depth--
			if s.depth <= 0 {
				s.reset()
				return i + 1, true
			}
		}
	}
	s.pos = len(s.buf)
	return 0, false
}

func (s *StreamFramer) reset() {
	s.pos, s.depth, s.inStr, s.escape = 0, 0, false, false
}

func (s *StreamFramer) checkSize() error {
	if len(s.buf) > s.max {
		return &DecodeError{Offset: s.consumed, Err: fmt.Errorf("value exceeds %d bytes", s.max)}
	}
	return nil
}

func (s *StreamFramer) Frame(payload []byte) []byte {
	return payload
}
