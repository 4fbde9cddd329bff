package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var headerSep = []byte{'\r', '\n', '\r', '\n'}

const contentLengthPrefix = "Content-Length: "

// ContentLengthFramer reads and writes LSP-style header framing.
type ContentLengthFramer struct {
	buf      []byte
	consumed int64
	max      int
}

func NewContentLengthFramer() *ContentLengthFramer {
	return &ContentLengthFramer{max: MaxBufferSize}
}

func (c *ContentLengthFramer) Consume(chunk []byte) ([]json.RawMessage, error) {
	c.buf = append(c.buf, chunk...)

	var out []json.RawMessage
	for len(c.buf) > 0 {
		header, content, found := bytes.Cut(c.buf, headerSep)
		if !found {
			if len(c.buf) > c.max {
				return out, &DecodeError{Offset: c.consumed, Err: errors.New("header too long")}
			}
			return out, nil
		}

		n, err := parseContentLength(header)
		if err != nil {
			return out, &DecodeError{Offset: c.consumed, Err: err}
		}
		if n > c.max {
			return out, &DecodeError{Offset: c.consumed, Err: fmt.Errorf("content length %d exceeds %d", n, c.max)}
		}
		if len(content) < n {
			return out, nil
		}

		body := content[:n]
		if !json.Valid(body) {
			return out, &DecodeError{Offset: c.consumed, Err: errors.New("invalid JSON body")}
		}
		out = append(out, json.RawMessage(bytes.Clone(body)))

		total := len(header) + len(headerSep) + n
		c.consumed += int64(total)
		c.buf = c.buf[total:]
	}
	c.buf = nil
	return out, nil
}

func (c *ContentLengthFramer) Frame(payload []byte) []byte {
	header := []byte(contentLengthPrefix + strconv.Itoa(len(payload)) + "\r\n\r\n")
	return append(header, payload...)
}

// Content-Length: <number>. Header names are case-insensitive; other header
// lines are ignored.
func parseContentLength(header []byte) (int, error) {
	for _, line := range bytes.Split(header, []byte("\r\n")) {
		name, value, ok := bytes.Cut(line, []byte(":"))
		if !ok || !strings.EqualFold(string(bytes.TrimSpace(name)), "Content-Length") {
			continue
		}
		n, err := strconv.Atoi(string(bytes.TrimSpace(value)))
		if err != nil || n < 0 {
			return 0, errors.New("invalid content length")
		}
		return n, nil
	}
	return 0, fmt.Errorf("invalid header: %q", header)
}
