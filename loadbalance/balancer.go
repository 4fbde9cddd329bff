// Package loadbalance picks which listening peer a client dials.
//
//   - RoundRobin:      equal-capacity endpoints
//   - WeightedRandom:  heterogeneous endpoints
//   - ConsistentHash:  a routing key should keep landing on the same endpoint
package loadbalance

import (
	"fmt"
	"jsonrpc-peer/registry"
)

// Balancer must be goroutine-safe; the client calls Pick on every dial.
type Balancer interface {
	Pick(endpoints []registry.Endpoint) (*registry.Endpoint, error)
	Name() string
}

var errNoEndpoints = fmt.Errorf("no endpoints available")

// New returns the balancer named by a config value. key is only used by
// consistent-hash.
func New(name, key string) (Balancer, error) {
	switch name {
	case "", "round-robin":
		return &RoundRobinBalancer{}, nil
	case "weighted-random":
		return &WeightedRandomBalancer{}, nil
	case "consistent-hash":
		return NewConsistentHashBalancer(key), nil
	default:
		return nil, fmt.Errorf("unknown balancer: %q", name)
	}
}
