// Copyright 2026 The OTP Authors
// SPDX-License-Identifier: Apache-2.0

package director

import (
	"bytes"
	"testing"
)

func TestPostRemoveFiresInRegistrationOrder(t *testing.T) {
	t.Parallel()
	registry := NewPostRemoveRegistry()

	registry.Add(1, []byte("first"))
	registry.Add(1, []byte("second"))
	registry.Add(1, []byte("first")) // duplicates are legal and all fire

	frames := registry.TakeAndRemove(1)
	want := [][]byte{[]byte("first"), []byte("second"), []byte("first")}
	if len(frames) != len(want) {
		t.Fatalf("frames: got %d, want %d", len(frames), len(want))
	}
	for i := range want {
		if !bytes.Equal(frames[i], want[i]) {
			t.Errorf("frame %d: got %q, want %q", i, frames[i], want[i])
		}
	}
}

func TestPostRemoveTakeIsExactlyOnce(t *testing.T) {
	t.Parallel()
	registry := NewPostRemoveRegistry()

	registry.Add(1, []byte("payload"))
	if frames := registry.TakeAndRemove(1); len(frames) != 1 {
		t.Fatalf("first take: got %d frames, want 1", len(frames))
	}
	if frames := registry.TakeAndRemove(1); frames != nil {
		t.Errorf("second take: got %v, want nil", frames)
	}
}

func TestPostRemoveClearSuppressesFiring(t *testing.T) {
	t.Parallel()
	registry := NewPostRemoveRegistry()

	registry.Add(1, []byte("payload"))
	registry.Clear(1)
	if frames := registry.TakeAndRemove(1); frames != nil {
		t.Errorf("take after clear: got %v, want nil", frames)
	}
}

func TestPostRemoveQueuesAreIndependent(t *testing.T) {
	t.Parallel()
	registry := NewPostRemoveRegistry()

	registry.Add(1, []byte("one"))
	registry.Add(2, []byte("two"))
	registry.Clear(1)

	if registry.Len(1) != 0 {
		t.Error("clear did not empty connection 1's queue")
	}
	if registry.Len(2) != 1 {
		t.Error("clear touched connection 2's queue")
	}
}
