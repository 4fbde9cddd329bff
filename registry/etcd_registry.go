// etcd layout:
//
//	Key:   /jsonrpc-peer/{service}/{addr}
//	Value: JSON-encoded Endpoint
//
// Registration uses TTL-based leases: if a listening peer crashes, the lease
// expires and the entry disappears with it.

package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
)

const keyPrefix = "/jsonrpc-peer/"

// EtcdRegistry implements the Registry interface using etcd v3.
type EtcdRegistry struct {
	client *clientv3.Client // etcd client connection (thread-safe, shared across goroutines)
}

// NewEtcdRegistry creates a new registry connected to the given etcd endpoints.
func NewEtcdRegistry(endpoints []string, dialTimeout time.Duration) (*EtcdRegistry, error) {
	c, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: dialTimeout,
	})
	if err != nil {
		return nil, err
	}
	return &EtcdRegistry{client: c}, nil
}

func servicePrefix(service string) string {
	return keyPrefix + service + "/"
}

// Register adds an endpoint with a TTL lease and keeps the lease alive in the
// background. leaseID stays local so one EtcdRegistry can serve many servers.
func (r *EtcdRegistry) Register(ctx context.Context, service string, ep Endpoint, ttl int64) error {
	lease, err := r.client.Grant(ctx, ttl)
	if err != nil {
		return err
	}

	val, err := json.Marshal(ep)
	if err != nil {
		return err
	}

	_, err = r.client.Put(ctx, servicePrefix(service)+ep.Addr, string(val), clientv3.WithLease(lease.ID))
	if err != nil {
		return err
	}

	// KeepAlive must outlive the registering call's ctx
	ch, err := r.client.KeepAlive(context.Background(), lease.ID)
	if err != nil {
		return err
	}

	// Consume KeepAlive responses to prevent the channel from filling up
	go func() {
		for range ch {
		}
	}()
	return nil
}

// Deregister removes an endpoint. Called during graceful shutdown before
// closing the listener.
func (r *EtcdRegistry) Deregister(ctx context.Context, service string, addr string) error {
	_, err := r.client.Delete(ctx, servicePrefix(service)+addr)
	return err
}

// Watch emits the refreshed endpoint list on every change under the service
// prefix until ctx is done.
func (r *EtcdRegistry) Watch(ctx context.Context, service string) <-chan []Endpoint {
	ch := make(chan []Endpoint, 1)

	go func() {
		defer close(ch)
		watchChan := r.client.Watch(ctx, servicePrefix(service), clientv3.WithPrefix())
		for range watchChan {
			// re-fetch rather than apply individual events
			eps, err := r.Discover(ctx, service)
			if err != nil {
				continue
			}
			select {
			case ch <- eps:
			case <-ctx.Done():
				return
			}
		}
	}()

	return ch
}

// Discover returns every endpoint currently registered for service.
func (r *EtcdRegistry) Discover(ctx context.Context, service string) ([]Endpoint, error) {
	resp, err := r.client.Get(ctx, servicePrefix(service), clientv3.WithPrefix())
	if err != nil {
		return nil, err
	}

	eps := make([]Endpoint, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var ep Endpoint
		if err := json.Unmarshal(kv.Value, &ep); err != nil {
			continue // Skip malformed entries
		}
		eps = append(eps, ep)
	}

	return eps, nil
}

// Close releases the etcd client.
func (r *EtcdRegistry) Close() error {
	return r.client.Close()
}

// Ping asks the first configured endpoint for its status.
func (r *EtcdRegistry) Ping(ctx context.Context) error {
	eps := r.client.Endpoints()
	if len(eps) == 0 {
		return fmt.Errorf("no etcd endpoints")
	}
	_, err := r.client.Status(ctx, eps[0])
	return err
}
