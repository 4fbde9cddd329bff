package peer

import (
	"encoding/json"
	"errors"
	"fmt"

	"jsonrpc-peer/message"
)

var (
	// ErrRequestTimeout is delivered to a request callback when no response
	// arrived within the timeout window or the peer was destroyed first.
	ErrRequestTimeout = errors.New("request timed out")

	// ErrDestroyed is returned by operations on a destroyed peer.
	ErrDestroyed = errors.New("peer destroyed")

	// ErrEndOfStream is the destroy reason when the remote side closed the
	// connection cleanly.
	ErrEndOfStream = errors.New("end of stream")
)

// RemoteError carries the error payload of a response verbatim. The peer does
// not interpret it.
type RemoteError struct {
	Payload json.RawMessage
}

func (e *RemoteError) Error() string {
	var s string
	if err := json.Unmarshal(e.Payload, &s); err == nil {
		return s
	}
	return string(e.Payload)
}

// Decode unmarshals the payload into v, e.g. a structured error object.
func (e *RemoteError) Decode(v any) error {
	return json.Unmarshal(e.Payload, v)
}

func timeoutError(req *message.Request) error {
	return fmt.Errorf("%w: %s (id %s)", ErrRequestTimeout, req.Method, message.Key(req.ID))
}
