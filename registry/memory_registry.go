package registry

import (
	"context"
	"sync"
)

// MemoryRegistry keeps endpoints in process. TTLs are ignored.
type MemoryRegistry struct {
	mu       sync.Mutex
	services map[string][]Endpoint
	watchers map[string][]chan []Endpoint
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		services: make(map[string][]Endpoint),
		watchers: make(map[string][]chan []Endpoint),
	}
}

// Register replaces an endpoint with the same address.
func (m *MemoryRegistry) Register(_ context.Context, service string, ep Endpoint, _ int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	eps := m.services[service]
	for i := range eps {
		if eps[i].Addr == ep.Addr {
			eps[i] = ep
			m.notify(service)
			return nil
		}
	}
	m.services[service] = append(eps, ep)
	m.notify(service)
	return nil
}

func (m *MemoryRegistry) Deregister(_ context.Context, service string, addr string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	eps := m.services[service]
	for i, ep := range eps {
		if ep.Addr == addr {
			m.services[service] = append(eps[:i:i], eps[i+1:]...)
			m.notify(service)
			break
		}
	}
	return nil
}

func (m *MemoryRegistry) Discover(_ context.Context, service string) ([]Endpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Endpoint(nil), m.services[service]...), nil
}

// Watch emits the full endpoint list after every change until ctx is done.
// A slow reader only ever sees the latest list.
func (m *MemoryRegistry) Watch(ctx context.Context, service string) <-chan []Endpoint {
	ch := make(chan []Endpoint, 1)
	m.mu.Lock()
	m.watchers[service] = append(m.watchers[service], ch)
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		defer m.mu.Unlock()
		ws := m.watchers[service]
		for i, w := range ws {
			if w == ch {
				m.watchers[service] = append(ws[:i:i], ws[i+1:]...)
				break
			}
		}
		close(ch)
	}()
	return ch
}

// caller holds m.mu
func (m *MemoryRegistry) notify(service string) {
	snapshot := append([]Endpoint(nil), m.services[service]...)
	for _, w := range m.watchers[service] {
		select {
		case <-w:
		default:
		}
		w <- snapshot
	}
}
