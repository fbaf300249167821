package client

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"order-shop/codec"
	"order-shop/loadbalance"
	"order-shop/message"
	"order-shop/protocol"
	"order-shop/registry"
)

// fakeServer 对每个连接读取一个请求头并回写 reply 返回的原始字节
func fakeServer(t *testing.T, reply func(protocol.RequestHeader) []byte) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ln.Close() })
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				h, err := protocol.ReadRequestHeader(conn)
				if err != nil {
					return
				}
				if _, err := protocol.ReadPayload(conn, h.PayloadSize); err != nil {
					return
				}
				conn.Write(reply(h))
			}()
		}
	}()
	return ln.Addr().String()
}

func frame(id protocol.ResponseID, payload []byte) []byte {
	h := protocol.ResponseHeader{Magic: protocol.Magic, Version: protocol.Version, ID: id, PayloadSize: uint32(len(payload))}
	buf, _ := h.MarshalBinary()
	return append(buf, payload...)
}

var sample = []message.FullOrderItem{
	{
		Order: message.Order{ID: 2, Status: "created", Date: "2024-05-20 10:00:00"},
		Item:  message.OrderItem{ID: 11, Quantity: 2, UnitPrice: 150, Name: "pencil"},
	},
	{
		Order: message.Order{ID: 1, Status: "created", Date: "2024-05-19 09:30:00"},
		Item:  message.OrderItem{ID: 12, Quantity: 1, UnitPrice: 990, Name: "notebook"},
	},
}

func TestDisplayOrders(t *testing.T) {
	addr := fakeServer(t, func(protocol.RequestHeader) []byte {
		return frame(protocol.ResponseDisplayOrders, codec.EncodeRecords(sample))
	})

	items, err := New(addr).DisplayOrders(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != len(sample) {
		t.Fatalf("expect %d items, got %d", len(sample), len(items))
	}
	for i := range sample {
		if items[i] != sample[i] {
			t.Errorf("item %d: got %+v, want %+v", i, items[i], sample[i])
		}
	}
}

func TestExecuteServerError(t *testing.T) {
	addr := fakeServer(t, func(protocol.RequestHeader) []byte {
		return frame(protocol.ResponseError, protocol.EncodeErrorMessage(protocol.MsgInvalidMagic))
	})

	req := protocol.RequestHeader{Magic: 0, Version: protocol.Version, ID: protocol.RequestDisplayOrders}
	rh, body, err := New(addr).Execute(context.Background(), req, nil)

	var serr *ServerError
	if !errors.As(err, &serr) {
		t.Fatalf("expect *ServerError, got %v", err)
	}
	if serr.Message != protocol.MsgInvalidMagic {
		t.Fatalf("message: got %q", serr.Message)
	}
	if rh.PayloadSize != uint32(len(protocol.MsgInvalidMagic)+1) || len(body) != int(rh.PayloadSize) {
		t.Fatalf("error payload not returned intact: %+v, %d bytes", rh, len(body))
	}
}

func TestExecuteBadMagic(t *testing.T) {
	addr := fakeServer(t, func(protocol.RequestHeader) []byte {
		raw := frame(protocol.ResponseDisplayOrders, nil)
		raw[0] = 65
		return raw
	})

	_, err := New(addr).DisplayOrders(context.Background())
	var perr *ProtocolError
	if !errors.As(err, &perr) || !errors.Is(err, protocol.ErrInvalidMagic) {
		t.Fatalf("expect protocol error for bad magic, got %v", err)
	}
}

func TestExecuteBadRecordSize(t *testing.T) {
	addr := fakeServer(t, func(protocol.RequestHeader) []byte {
		return frame(protocol.ResponseDisplayOrders, make([]byte, codec.RecordSize+5))
	})

	_, err := New(addr).DisplayOrders(context.Background())
	if !errors.Is(err, codec.ErrRecordSize) {
		t.Fatalf("expect ErrRecordSize, got %v", err)
	}
}

func TestExecuteShortRead(t *testing.T) {
	addr := fakeServer(t, func(protocol.RequestHeader) []byte {
		raw := frame(protocol.ResponseDisplayOrders, make([]byte, codec.RecordSize))
		return raw[:len(raw)-10]
	})

	_, err := New(addr).DisplayOrders(context.Background())
	var perr *ProtocolError
	if !errors.As(err, &perr) {
		t.Fatalf("expect *ProtocolError for a short read, got %v", err)
	}
}

func TestExecuteUnknownResponse(t *testing.T) {
	addr := fakeServer(t, func(protocol.RequestHeader) []byte {
		return frame(protocol.ResponseID(9), nil)
	})

	_, _, err := New(addr).Execute(context.Background(), protocol.NewRequestHeader(protocol.RequestDisplayOrders, 0), nil)
	if !errors.Is(err, ErrUnknownResponse) {
		t.Fatalf("expect ErrUnknownResponse, got %v", err)
	}
}

func TestExecuteTimeout(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	// 接受连接但从不应答
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			defer conn.Close()
		}
	}()

	_, err = New(ln.Addr().String(), WithTimeout(100*time.Millisecond)).DisplayOrders(context.Background())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expect deadline exceeded, got %v", err)
	}
}

func TestRegistryResolution(t *testing.T) {
	addr := fakeServer(t, func(protocol.RequestHeader) []byte {
		return frame(protocol.ResponseDisplayOrders, nil)
	})
	reg := registry.NewStatic(registry.ServiceInstance{Addr: addr, Weight: 1})

	c := NewWithRegistry(reg, &loadbalance.WeightedRandomBalancer{})
	items, err := c.DisplayOrders(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 0 {
		t.Fatalf("expect no items, got %d", len(items))
	}

	empty := NewWithRegistry(registry.NewStatic(), nil)
	if _, err := empty.DisplayOrders(context.Background()); !errors.Is(err, loadbalance.ErrNoInstances) {
		t.Fatalf("expect ErrNoInstances, got %v", err)
	}
}

// countingRegistry counts Discover calls on top of a static registry.
type countingRegistry struct {
	*registry.Static
	discovers int
}

func (r *countingRegistry) Discover(ctx context.Context, serviceName string) ([]registry.ServiceInstance, error) {
	r.discovers++
	return r.Static.Discover(ctx, serviceName)
}

func TestWatchKeepsInstancesCurrent(t *testing.T) {
	reply := func(protocol.RequestHeader) []byte { return frame(protocol.ResponseDisplayOrders, nil) }
	first := fakeServer(t, reply)
	second := fakeServer(t, reply)
	reg := &countingRegistry{Static: registry.NewStatic(registry.ServiceInstance{Addr: first, Weight: 1})}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c := NewWithRegistry(reg, nil, WithWatch(ctx))

	waitInstances := func(want string) {
		t.Helper()
		deadline := time.Now().Add(2 * time.Second)
		for time.Now().Before(deadline) {
			list, ok := c.cached()
			if ok && len(list) == 1 && list[0].Addr == want {
				return
			}
			time.Sleep(10 * time.Millisecond)
		}
		t.Fatalf("watch never delivered %s", want)
	}

	waitInstances(first)
	if _, err := c.DisplayOrders(context.Background()); err != nil {
		t.Fatal(err)
	}

	// 替换实例后，客户端应从 watch 得到新地址
	reg.Register(context.Background(), registry.ServiceOrders, registry.ServiceInstance{Addr: second, Weight: 1}, 10)
	reg.Deregister(context.Background(), registry.ServiceOrders, first)
	waitInstances(second)
	if _, err := c.DisplayOrders(context.Background()); err != nil {
		t.Fatal(err)
	}
	if reg.discovers != 0 {
		t.Fatalf("watched client should not call Discover, called %d times", reg.discovers)
	}

	reg.Deregister(context.Background(), registry.ServiceOrders, second)
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if list, _ := c.cached(); len(list) == 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if _, err := c.DisplayOrders(context.Background()); !errors.Is(err, loadbalance.ErrNoInstances) {
		t.Fatalf("expect ErrNoInstances once the last instance leaves, got %v", err)
	}

	// watch 结束后回退到 Discover
	cancel()
	deadline = time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := c.cached(); !ok {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if _, ok := c.cached(); ok {
		t.Fatal("cache still active after watch ended")
	}
}
