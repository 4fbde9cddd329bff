// Package transport adapts a duplex byte stream to the event model a peer
// consumes: a data event per chunk read, one end event, a write operation and
// a forced close.
//
//	Run goroutine:  conn.Read ──chunk──→ Handler.OnData
//	                conn.Read ──EOF/err──→ Handler.OnEnd (exactly once)
//	callers:        Write ──(write lock)──→ conn
package transport

import (
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
)

// ReadChunkSize is the size of one read from the underlying stream.
const ReadChunkSize = 32 * 1024

// ErrClosed is returned by Write after Destroy.
var ErrClosed = errors.New("transport closed")

// Conn is what a peer needs from its connection.
type Conn interface {
	Write(p []byte) error
	Destroy() error
}

// Handler receives stream events from Run.
type Handler interface {
	OnData(chunk []byte)
	OnEnd(err error)
}

// Stream manages a single duplex connection.
type Stream struct {
	rwc       io.ReadWriteCloser
	sending   sync.Mutex // whole frames must not interleave
	closeOnce sync.Once
	closed    atomic.Bool
	closeErr  error
}

func NewStream(rwc io.ReadWriteCloser) *Stream {
	return &Stream{rwc: rwc}
}

// Write writes p in full; it is safe for concurrent use.
func (s *Stream) Write(p []byte) error {
	if s.closed.Load() {
		return ErrClosed
	}
	s.sending.Lock()
	defer s.sending.Unlock()
	_, err := s.rwc.Write(p)
	return err
}

// Destroy closes the connection. Repeated calls return the first result.
func (s *Stream) Destroy() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.closeErr = s.rwc.Close()
	})
	return s.closeErr
}

// Closed reports whether Destroy has been called.
func (s *Stream) Closed() bool {
	return s.closed.Load()
}

// RemoteAddr returns the peer address when the stream is a net.Conn.
func (s *Stream) RemoteAddr() string {
	if c, ok := s.rwc.(net.Conn); ok && c.RemoteAddr() != nil {
		return c.RemoteAddr().String()
	}
	return ""
}

// Run reads until the stream ends and blocks until then. OnData gets a chunk it
// may keep; OnEnd gets nil on EOF or local Destroy, otherwise the read error.
func (s *Stream) Run(h Handler) {
	for {
		buf := make([]byte, ReadChunkSize)
		n, err := s.rwc.Read(buf)
		if n > 0 {
			h.OnData(buf[:n])
		}
		if err != nil {
			if errors.Is(err, io.EOF) || s.closed.Load() {
				err = nil
			}
			h.OnEnd(err)
			return
		}
	}
}

// Pipe returns two in-memory streams connected to each other.
func Pipe() (*Stream, *Stream) {
	a, b := net.Pipe()
	return NewStream(a), NewStream(b)
}
