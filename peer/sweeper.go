package peer

import (
	"time"

	"jsonrpc-peer/transport"
)

// StartSweeper runs Sweep every interval until the peer is destroyed. A
// non-positive interval starts nothing.
func (p *Peer) StartSweeper(interval time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				p.Sweep()
			case <-p.halt.ReqStop.Chan:
				return
			}
		}
	}()
}

// Run starts reading stream into p and starts the sweeper at the configured
// SweepInterval. stream must be the connection p was built on.
func (p *Peer) Run(stream *transport.Stream) {
	go stream.Run(p)
	p.StartSweeper(p.sweep)
}

// Serve binds a peer to stream and runs it.
func Serve(stream *transport.Stream, cfg Config) *Peer {
	p := New(stream, cfg)
	p.Run(stream)
	return p
}
