package registry

import (
	"context"
	"slices"
	"sync"
)

// Static is an in-process Registry for fixed deployments and tests. TTLs are ignored.
type Static struct {
	mu        sync.Mutex
	services  map[string][]ServiceInstance
	listeners map[string][]chan []ServiceInstance
}

// NewStatic returns a registry where instances are already registered under ServiceOrders.
func NewStatic(instances ...ServiceInstance) *Static {
	s := &Static{
		services:  make(map[string][]ServiceInstance),
		listeners: make(map[string][]chan []ServiceInstance),
	}
	if len(instances) > 0 {
		s.services[ServiceOrders] = slices.Clone(instances)
	}
	return s
}

func (s *Static) Register(_ context.Context, serviceName string, instance ServiceInstance, _ int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := slices.DeleteFunc(s.services[serviceName], func(in ServiceInstance) bool {
		return in.Addr == instance.Addr
	})
	s.services[serviceName] = append(list, instance)
	s.notify(serviceName)
	return nil
}

func (s *Static) Deregister(_ context.Context, serviceName string, addr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.services[serviceName] = slices.DeleteFunc(s.services[serviceName], func(in ServiceInstance) bool {
		return in.Addr == addr
	})
	s.notify(serviceName)
	return nil
}

func (s *Static) Discover(_ context.Context, serviceName string) ([]ServiceInstance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.services[serviceName]), nil
}

// Watch emits the current list immediately, then after every change.
func (s *Static) Watch(ctx context.Context, serviceName string) <-chan []ServiceInstance {
	ch := make(chan []ServiceInstance, 1)
	s.mu.Lock()
	ch <- slices.Clone(s.services[serviceName])
	s.listeners[serviceName] = append(s.listeners[serviceName], ch)
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		s.listeners[serviceName] = slices.DeleteFunc(s.listeners[serviceName], func(c chan []ServiceInstance) bool {
			return c == ch
		})
		s.mu.Unlock()
		close(ch)
	}()
	return ch
}

func (s *Static) Close() error { return nil }

// notify replaces any undelivered update with the latest list. Callers hold s.mu.
func (s *Static) notify(serviceName string) {
	current := s.services[serviceName]
	for _, ch := range s.listeners[serviceName] {
		select {
		case <-ch:
		default:
		}
		ch <- slices.Clone(current)
	}
}
