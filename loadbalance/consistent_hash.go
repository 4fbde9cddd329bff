package loadbalance

import (
	"fmt"
	"hash/crc32"
	"jsonrpc-peer/registry"
	"slices"
	"sort"
	"strings"
	"sync"
)

// ConsistentHashBalancer routes one key to the same endpoint for as long as
// the endpoint set is unchanged. Each endpoint owns replicas virtual nodes on
// a crc32 ring.
type ConsistentHashBalancer struct {
	key      string
	replicas int

	mu   sync.Mutex
	sig  string   // endpoint set the ring was built from
	ring []uint32 // sorted hashes
	node map[uint32]registry.Endpoint
}

func NewConsistentHashBalancer(key string) *ConsistentHashBalancer {
	return &ConsistentHashBalancer{key: key, replicas: 100}
}

func (b *ConsistentHashBalancer) Pick(endpoints []registry.Endpoint) (*registry.Endpoint, error) {
	return b.PickKey(b.key, endpoints)
}

// PickKey is Pick for an explicit key.
func (b *ConsistentHashBalancer) PickKey(key string, endpoints []registry.Endpoint) (*registry.Endpoint, error) {
	if len(endpoints) == 0 {
		return nil, errNoEndpoints
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.rebuild(endpoints)

	hash := crc32.ChecksumIEEE([]byte(key))
	idx := sort.Search(len(b.ring), func(i int) bool {
		return b.ring[i] >= hash
	})
	if idx == len(b.ring) {
		idx = 0 // wrap around
	}

	ep := b.node[b.ring[idx]]
	return &ep, nil
}

func (b *ConsistentHashBalancer) rebuild(endpoints []registry.Endpoint) {
	addrs := make([]string, len(endpoints))
	for i, ep := range endpoints {
		addrs[i] = ep.Addr
	}
	slices.Sort(addrs)
	sig := strings.Join(addrs, ",")
	if sig == b.sig {
		return
	}

	b.sig = sig
	b.ring = b.ring[:0]
	b.node = make(map[uint32]registry.Endpoint, len(endpoints)*b.replicas)
	for _, ep := range endpoints {
		for i := 0; i < b.replicas; i++ {
			hash := crc32.ChecksumIEEE([]byte(fmt.Sprintf("%s#%d", ep.Addr, i)))
			b.ring = append(b.ring, hash)
			b.node[hash] = ep
		}
	}
	slices.Sort(b.ring)
}

func (b *ConsistentHashBalancer) Name() string {
	return "ConsistentHash"
}
