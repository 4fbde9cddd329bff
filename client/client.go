// Package client dials listening peers found through a registry.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"jsonrpc-peer/codec"
	"jsonrpc-peer/loadbalance"
	"jsonrpc-peer/peer"
	"jsonrpc-peer/protocol"
	"jsonrpc-peer/registry"
	"jsonrpc-peer/transport"
)

// Options configures the peers a Client dials. Framing and Codec apply when
// the picked endpoint does not advertise its own.
type Options struct {
	Peer        peer.Config
	Framing     protocol.Framing
	Codec       codec.CodecType
	DialTimeout time.Duration
}

type Client struct {
	registry registry.Registry // nil restricts the client to DialAddr
	balancer loadbalance.Balancer
	opts     Options

	mu    sync.Mutex
	peers map[string]*peer.Peer // cached peer per service
}

func NewClient(reg registry.Registry, bal loadbalance.Balancer, opts Options) *Client {
	if bal == nil {
		bal = &loadbalance.RoundRobinBalancer{}
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = 5 * time.Second
	}
	return &Client{
		registry: reg,
		balancer: bal,
		opts:     opts,
		peers:    make(map[string]*peer.Peer),
	}
}

// Dial discovers the endpoints of service, picks one and returns a new peer
// running on a connection to it. The caller owns the peer.
func (c *Client) Dial(ctx context.Context, service string) (*peer.Peer, error) {
	if c.registry == nil {
		return nil, fmt.Errorf("dial %s: no registry", service)
	}
	endpoints, err := c.registry.Discover(ctx, service)
	if err != nil {
		return nil, fmt.Errorf("discover %s: %w", service, err)
	}
	ep, err := c.balancer.Pick(endpoints)
	if err != nil {
		return nil, fmt.Errorf("pick %s: %w", service, err)
	}
	return c.dial(ctx, *ep)
}

// DialAddr returns a new peer running on a connection to addr.
func (c *Client) DialAddr(ctx context.Context, addr string) (*peer.Peer, error) {
	return c.dial(ctx, registry.Endpoint{Addr: addr})
}

func (c *Client) dial(ctx context.Context, ep registry.Endpoint) (*peer.Peer, error) {
	framing := c.opts.Framing
	if ep.Framing != "" {
		framing = protocol.Framing(ep.Framing)
	}
	framer, err := protocol.NewFramer(framing)
	if err != nil {
		return nil, err
	}
	codecType := c.opts.Codec
	if ep.Codec != "" {
		if codecType, err = codec.ParseCodecType(ep.Codec); err != nil {
			return nil, err
		}
	}

	d := net.Dialer{Timeout: c.opts.DialTimeout}
	conn, err := d.DialContext(ctx, "tcp", ep.Addr)
	if err != nil {
		return nil, err
	}

	cfg := c.opts.Peer
	cfg.Framer = framer
	cfg.Codec = codec.GetCodec(codecType)
	if cfg.Name == "" {
		cfg.Name = ep.Addr
	}
	return peer.Serve(transport.NewStream(conn), cfg), nil
}

// peerFor returns the cached live peer for service, dialing a new one when
// there is none.
func (c *Client) peerFor(ctx context.Context, service string) (*peer.Peer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if p, ok := c.peers[service]; ok && !p.Destroyed() {
		return p, nil
	}
	p, err := c.Dial(ctx, service)
	if err != nil {
		return nil, err
	}
	c.peers[service] = p
	return p, nil
}

// Call sends method to a peer of service with args as the only param and
// decodes the result into reply. nil args sends no params; nil reply discards
// the result. An error response comes back as *peer.RemoteError.
func (c *Client) Call(ctx context.Context, service, method string, args any, reply any) error {
	p, err := c.peerFor(ctx, service)
	if err != nil {
		return err
	}

	var params []any
	if args != nil {
		params = []any{args}
	}
	result, err := p.Call(ctx, method, params)
	if err != nil {
		return err
	}
	if reply == nil || len(result) == 0 {
		return nil
	}
	return json.Unmarshal(result, reply)
}

// Close destroys every cached peer.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for service, p := range c.peers {
		p.Destroy()
		delete(c.peers, service)
	}
}
