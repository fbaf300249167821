// Package loadbalance picks the order server a client connects to when more than
// one instance is registered.
//
//   - RoundRobin:      equal-capacity instances
//   - WeightedRandom:  heterogeneous instances, picked in proportion to Weight
package loadbalance

import (
	"errors"
	"fmt"

	"order-shop/registry"
)

const (
	NameRoundRobin     = "round_robin"
	NameWeightedRandom = "weighted_random"
)

var ErrNoInstances = errors.New("loadbalance: no instances available")

// Balancer is called before every request and must be safe for concurrent use.
type Balancer interface {
	Pick(instances []registry.ServiceInstance) (*registry.ServiceInstance, error)
	Name() string
}

// New returns the balancer registered under name. An empty name means round robin.
func New(name string) (Balancer, error) {
	switch name {
	case "", NameRoundRobin:
		return &RoundRobinBalancer{}, nil
	case NameWeightedRandom:
		return &WeightedRandomBalancer{}, nil
	default:
		return nil, fmt.Errorf("loadbalance: unknown balancer %q", name)
	}
}
