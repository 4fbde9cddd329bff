package client

import (
	"context"
	"testing"
	"time"

	"jsonrpc-peer/loadbalance"
	"jsonrpc-peer/registry"
	"jsonrpc-peer/server"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// End to end through etcd:
// Client → Registry(etcd) → Balancer → Peer → Server → Middleware → reflect.Call
func TestMultiServerWithEtcd(t *testing.T) {
	reg, err := registry.NewEtcdRegistry([]string{"127.0.0.1:2379"}, time.Second)
	if err != nil {
		t.Skipf("etcd unavailable: %v", err)
	}
	defer reg.Close()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := reg.Ping(ctx); err != nil {
		t.Skipf("etcd unavailable: %v", err)
	}

	a := startServer(t, reg, server.Options{})
	b := startServer(t, reg, server.Options{})

	c := NewClient(reg, &loadbalance.RoundRobinBalancer{}, Options{})
	defer c.Close()

	for i := 1; i <= 10; i++ {
		reply := &Reply{}
		require.NoError(t, c.Call(context.Background(), "Arith", "Arith.Add", &Args{A: i, B: i * 10}, reply))
		assert.Equal(t, i+i*10, reply.Result)
	}

	eps, err := reg.Discover(context.Background(), "Arith")
	require.NoError(t, err)
	var addrs []string
	for _, ep := range eps {
		addrs = append(addrs, ep.Addr)
	}
	assert.Subset(t, addrs, []string{a, b})
}
