package loadbalance

import (
	"errors"
	"testing"

	"order-shop/registry"
)

var testInstances = []registry.ServiceInstance{
	{Addr: ":8001", Weight: 10, Version: "1"},
	{Addr: ":8002", Weight: 5, Version: "1"},
	{Addr: ":8003", Weight: 10, Version: "1"},
}

func TestRoundRobin(t *testing.T) {
	b := &RoundRobinBalancer{}

	// 连续选 3 次，应依次覆盖所有实例
	for i := 0; i < 3; i++ {
		inst, err := b.Pick(testInstances)
		if err != nil {
			t.Fatal(err)
		}
		if inst.Addr != testInstances[i].Addr {
			t.Fatalf("pick %d: expect %s, got %s", i, testInstances[i].Addr, inst.Addr)
		}
	}

	// 第 4 次应回到第一个
	inst, _ := b.Pick(testInstances)
	if inst.Addr != testInstances[0].Addr {
		t.Fatalf("expect wrap around to %s, got %s", testInstances[0].Addr, inst.Addr)
	}
}

func TestRoundRobinEmpty(t *testing.T) {
	b := &RoundRobinBalancer{}
	if _, err := b.Pick(nil); !errors.Is(err, ErrNoInstances) {
		t.Fatalf("expect ErrNoInstances, got %v", err)
	}
}

func TestWeightedRandom(t *testing.T) {
	b := &WeightedRandomBalancer{}

	counts := map[string]int{}
	n := 10000
	for i := 0; i < n; i++ {
		inst, err := b.Pick(testInstances)
		if err != nil {
			t.Fatal(err)
		}
		counts[inst.Addr]++
	}

	// 权重比 10:5:10，:8001 的命中数应约为 :8002 的 2 倍
	ratio := float64(counts[":8001"]) / float64(counts[":8002"])
	if ratio < 1.5 || ratio > 2.5 {
		t.Fatalf("weight ratio :8001/:8002 = %.2f, expect ~2.0", ratio)
	}
}

func TestWeightedRandomZeroWeights(t *testing.T) {
	b := &WeightedRandomBalancer{}
	instances := []registry.ServiceInstance{{Addr: "a"}, {Addr: "b"}}

	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		inst, err := b.Pick(instances)
		if err != nil {
			t.Fatal(err)
		}
		seen[inst.Addr] = true
	}
	if len(seen) != 2 {
		t.Fatalf("zero weights should fall back to uniform picks, saw %v", seen)
	}
}

func TestNew(t *testing.T) {
	for name, want := range map[string]string{
		"":                 NameRoundRobin,
		NameRoundRobin:     NameRoundRobin,
		NameWeightedRandom: NameWeightedRandom,
	} {
		b, err := New(name)
		if err != nil {
			t.Fatalf("New(%q): %v", name, err)
		}
		if b.Name() != want {
			t.Fatalf("New(%q).Name() = %q, want %q", name, b.Name(), want)
		}
	}
	if _, err := New("consistent_hash"); err == nil {
		t.Fatal("expect error for unknown balancer")
	}
}
