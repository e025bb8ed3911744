// Copyright 2026 The OTP Authors
// SPDX-License-Identifier: Apache-2.0

package director

import "testing"

func TestChannelSubscribeUnsubscribe(t *testing.T) {
	t.Parallel()
	registry := NewChannelRegistry()

	if first := registry.Subscribe(1, 100); !first {
		t.Error("first subscriber should report first=true")
	}
	if first := registry.Subscribe(2, 100); first {
		t.Error("second subscriber should report first=false")
	}

	subscribers := registry.SubscribersOf(100)
	if len(subscribers) != 2 {
		t.Fatalf("subscribers: got %d, want 2", len(subscribers))
	}

	if last := registry.Unsubscribe(1, 100); last {
		t.Error("unsubscribe with a remaining subscriber should report last=false")
	}
	if last := registry.Unsubscribe(2, 100); !last {
		t.Error("final unsubscribe should report last=true")
	}
	if subscribers := registry.SubscribersOf(100); len(subscribers) != 0 {
		t.Errorf("after full unsubscribe: got %d subscribers, want 0", len(subscribers))
	}
}

func TestChannelSubscribeIdempotent(t *testing.T) {
	t.Parallel()
	registry := NewChannelRegistry()

	registry.Subscribe(1, 100)
	if first := registry.Subscribe(1, 100); first {
		t.Error("duplicate subscribe should not report first=true")
	}
	if len(registry.SubscribersOf(100)) != 1 {
		t.Errorf("duplicate subscribe grew the set: %d", len(registry.SubscribersOf(100)))
	}

	// Unsubscribing once must fully remove the duplicate subscribe.
	if last := registry.Unsubscribe(1, 100); !last {
		t.Error("single unsubscribe should empty the channel")
	}
}

func TestChannelUnsubscribeAbsentIsNoOp(t *testing.T) {
	t.Parallel()
	registry := NewChannelRegistry()

	if last := registry.Unsubscribe(1, 100); last {
		t.Error("unsubscribing an absent subscription should report last=false")
	}
}

func TestChannelRemoveConnectionPurgesEverySet(t *testing.T) {
	t.Parallel()
	registry := NewChannelRegistry()

	registry.Subscribe(1, 100)
	registry.Subscribe(1, 200)
	registry.Subscribe(2, 200)

	emptied := registry.RemoveConnection(1)

	if _, ok := registry.SubscribersOf(100)[1]; ok {
		t.Error("connection 1 still subscribed to channel 100 after removal")
	}
	if _, ok := registry.SubscribersOf(200)[1]; ok {
		t.Error("connection 1 still subscribed to channel 200 after removal")
	}
	if _, ok := registry.SubscribersOf(200)[2]; !ok {
		t.Error("connection 2 lost its subscription to channel 200")
	}

	// Channel 100 lost its last subscriber; channel 200 did not.
	if len(emptied) != 1 || emptied[0] != 100 {
		t.Errorf("emptied channels: got %v, want [100]", emptied)
	}
}

func TestChannelRemoveConnectionUnknownHandle(t *testing.T) {
	t.Parallel()
	registry := NewChannelRegistry()

	if emptied := registry.RemoveConnection(42); emptied != nil {
		t.Errorf("removing an unknown handle: got %v, want nil", emptied)
	}
}
