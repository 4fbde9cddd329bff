package client

import (
	"context"
	"net"
	"testing"
	"time"

	"jsonrpc-peer/loadbalance"
	"jsonrpc-peer/peer"
	"jsonrpc-peer/protocol"
	"jsonrpc-peer/registry"
	"jsonrpc-peer/server"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type Args struct {
	A, B int
}

type Reply struct {
	Result int
}

type Arith struct{}

func (a *Arith) Add(args *Args, reply *Reply) error {
	reply.Result = args.A + args.B
	return nil
}

func (a *Arith) Multiply(args *Args, reply *Reply) error {
	reply.Result = args.A * args.B
	return nil
}

func startServer(t *testing.T, reg registry.Registry, opts server.Options) string {
	t.Helper()
	svr := server.NewServer(opts)
	require.NoError(t, svr.Register(&Arith{}))

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go svr.ServeListener(l, "", reg)
	t.Cleanup(func() { svr.Shutdown(time.Second) })

	if reg != nil {
		require.Eventually(t, func() bool {
			eps, _ := reg.Discover(context.Background(), "Arith")
			for _, ep := range eps {
				if ep.Addr == l.Addr().String() {
					return true
				}
			}
			return false
		}, 2*time.Second, 10*time.Millisecond)
	}
	return l.Addr().String()
}

func TestClientCallThroughRegistry(t *testing.T) {
	reg := registry.NewMemoryRegistry()
	startServer(t, reg, server.Options{})

	c := NewClient(reg, nil, Options{})
	defer c.Close()
	ctx := context.Background()

	reply := &Reply{}
	require.NoError(t, c.Call(ctx, "Arith", "Arith.Add", &Args{A: 1, B: 2}, reply))
	assert.Equal(t, 3, reply.Result)

	require.NoError(t, c.Call(ctx, "Arith", "Arith.Multiply", &Args{A: 3, B: 4}, reply))
	assert.Equal(t, 12, reply.Result)
}

func TestClientReusesLivePeerAndRedials(t *testing.T) {
	reg := registry.NewMemoryRegistry()
	startServer(t, reg, server.Options{})

	c := NewClient(reg, nil, Options{})
	defer c.Close()
	ctx := context.Background()

	require.NoError(t, c.Call(ctx, "Arith", "Arith.Add", &Args{A: 1, B: 1}, nil))
	first, err := c.peerFor(ctx, "Arith")
	require.NoError(t, err)
	again, err := c.peerFor(ctx, "Arith")
	require.NoError(t, err)
	assert.Same(t, first, again)

	first.Destroy()
	reply := &Reply{}
	require.NoError(t, c.Call(ctx, "Arith", "Arith.Add", &Args{A: 2, B: 2}, reply))
	assert.Equal(t, 4, reply.Result)
	second, err := c.peerFor(ctx, "Arith")
	require.NoError(t, err)
	assert.NotSame(t, first, second)
}

func TestClientRemoteError(t *testing.T) {
	reg := registry.NewMemoryRegistry()
	startServer(t, reg, server.Options{})

	c := NewClient(reg, nil, Options{})
	defer c.Close()

	err := c.Call(context.Background(), "Arith", "Arith.Sub", &Args{}, nil)
	var remote *peer.RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, "method not found: Arith.Sub", remote.Error())
}

func TestClientUnknownService(t *testing.T) {
	c := NewClient(registry.NewMemoryRegistry(), nil, Options{})
	assert.Error(t, c.Call(context.Background(), "Nope", "Nope.X", nil, nil))

	c = NewClient(nil, nil, Options{})
	_, err := c.Dial(context.Background(), "Arith")
	assert.Error(t, err)
}

func TestDialAddr(t *testing.T) {
	addr := startServer(t, nil, server.Options{})

	c := NewClient(nil, nil, Options{})
	p, err := c.DialAddr(context.Background(), addr)
	require.NoError(t, err)
	defer p.Destroy()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	result, err := p.Call(ctx, "Arith.Add", []any{Args{A: 5, B: 6}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"Result":11}`, string(result))
}

func TestDialUsesAdvertisedFraming(t *testing.T) {
	reg := registry.NewMemoryRegistry()
	startServer(t, reg, server.Options{Framing: protocol.FramingContentLength})

	// the client defaults to stream framing; the endpoint overrides it
	c := NewClient(reg, &loadbalance.WeightedRandomBalancer{}, Options{Framing: protocol.FramingStream})
	defer c.Close()

	reply := &Reply{}
	require.NoError(t, c.Call(context.Background(), "Arith", "Arith.Add", &Args{A: 7, B: 8}, reply))
	assert.Equal(t, 15, reply.Result)
}

func TestMultipleServersRoundRobin(t *testing.T) {
	reg := registry.NewMemoryRegistry()
	a := startServer(t, reg, server.Options{})
	b := startServer(t, reg, server.Options{})

	c := NewClient(reg, &loadbalance.RoundRobinBalancer{}, Options{})
	seen := map[string]bool{}
	for i := 0; i < 4; i++ {
		p, err := c.Dial(context.Background(), "Arith")
		require.NoError(t, err)
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_, err = p.Call(ctx, "Arith.Add", []any{Args{A: i, B: i}})
		cancel()
		require.NoError(t, err)
		seen[p.Name()] = true
		p.Destroy()
	}
	assert.Equal(t, map[string]bool{a: true, b: true}, seen)
}
