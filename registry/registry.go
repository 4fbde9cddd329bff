// Package registry lets peers that listen for connections announce themselves
// and lets dialing peers find them.
package registry

import "context"

// Endpoint is one listening peer of a named service.
type Endpoint struct {
	Addr    string
	Weight  int // Weight for load balancing
	Version string
	Codec   string `json:",omitempty"`
	Framing string `json:",omitempty"`
}

type Registry interface {
	Register(ctx context.Context, service string, ep Endpoint, ttl int64) error
	Deregister(ctx context.Context, service string, addr string) error
	Discover(ctx context.Context, service string) ([]Endpoint, error)
	Watch(ctx context.Context, service string) <-chan []Endpoint
}
