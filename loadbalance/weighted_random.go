package loadbalance

import (
	"math/rand/v2"

	"order-shop/registry"
)

// WeightedRandomBalancer picks instances in proportion to Weight. Non-positive
// weights count as 1, so an unweighted registry degrades to uniform random.
type WeightedRandomBalancer struct{}

func (b *WeightedRandomBalancer) Pick(instances []registry.ServiceInstance) (*registry.ServiceInstance, error) {
	if len(instances) == 0 {
		return nil, ErrNoInstances
	}

	// 计算总权重
	totalWeight := 0
	for _, v := range instances {
		totalWeight += weight(v)
	}

	// 生成一个随机数，范围是0到总权重
	r := rand.IntN(totalWeight)
	for i := range instances {
		r -= weight(instances[i])
		if r < 0 {
			return &instances[i], nil
		}
	}
	return &instances[len(instances)-1], nil
}

func (b *WeightedRandomBalancer) Name() string {
	return NameWeightedRandom
}

func weight(in registry.ServiceInstance) int {
	if in.Weight <= 0 {
		return 1
	}
	return in.Weight
}
