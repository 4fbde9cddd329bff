package peer

import (
	"context"
	"encoding/json"
	"time"

	"jsonrpc-peer/codec"
	"jsonrpc-peer/message"
	"jsonrpc-peer/protocol"

	"github.com/rs/zerolog"
)

const (
	DefaultTimeoutWindow = 10 * time.Second
	DefaultSweepInterval = time.Second
)

// Callback completes one request. err is a *RemoteError when the response
// carried an error payload, an ErrRequestTimeout error on expiry or teardown,
// and nil on success.
type Callback func(err error, result json.RawMessage)

// RequestHandler serves an inbound request. A non-nil return is written back
// as the response; returning nil leaves it to the handler to call
// Peer.Response later.
type RequestHandler func(ctx context.Context, req *message.Request) *message.Response

// NotificationHandler serves an inbound notification.
type NotificationHandler func(ctx context.Context, n *message.Notification)

// DestroyHandler is fired once when the peer reaches the destroyed state.
type DestroyHandler func(reason error)

// Config holds the collaborators and knobs of a Peer. Zero values select the
// defaults.
type Config struct {
	Name string

	// TimeoutWindow is how long a request may wait for its response.
	TimeoutWindow time.Duration
	// SweepInterval drives the sweeper started by Serve. Negative disables it.
	SweepInterval time.Duration

	OnRequest      RequestHandler
	OnNotification NotificationHandler
	OnDestroy      DestroyHandler

	Logger *zerolog.Logger
	Codec  codec.Codec
	Framer protocol.Framer
	IDs    message.IDGenerator
	Now    func() time.Time
}

func (c Config) withDefaults() Config {
	if c.TimeoutWindow <= 0 {
		c.TimeoutWindow = DefaultTimeoutWindow
	}
	if c.SweepInterval == 0 {
		c.SweepInterval = DefaultSweepInterval
	}
	if c.Logger == nil {
		nop := zerolog.Nop()
		c.Logger = &nop
	}
	if c.Codec == nil {
		c.Codec = codec.GetCodec(codec.CodecTypeGoJSON)
	}
	if c.Framer == nil {
		c.Framer = protocol.NewStreamFramer()
	}
	if c.IDs == nil {
		c.IDs = message.UUIDGenerator{}
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}
