// Copyright 2026 The OTP Authors
// SPDX-License-Identifier: Apache-2.0

package director

// PostRemoveRegistry holds each connection's queue of pre-registered
// datagrams to broadcast when that connection terminates — the
// cluster's dead-man's switch. Entries are stored as fully encoded
// frames, verbatim, and fire in registration order. Duplicates are
// legal and all fire.
//
// A queue is consumed exactly once: either cleared explicitly by its
// owner (the graceful shutdown path) or drained by TakeAndRemove
// during teardown. PostRemoveRegistry is a plain data structure: the
// Director's lock guards all access.
type PostRemoveRegistry struct {
	queues map[Handle][][]byte
}

// NewPostRemoveRegistry returns an empty registry.
func NewPostRemoveRegistry() *PostRemoveRegistry {
	return &PostRemoveRegistry{queues: make(map[Handle][][]byte)}
}

// Add appends an encoded datagram frame to connection h's queue.
func (r *PostRemoveRegistry) Add(h Handle, frame []byte) {
	r.queues[h] = append(r.queues[h], frame)
}

// Clear empties connection h's queue so nothing fires at disconnect.
func (r *PostRemoveRegistry) Clear(h Handle) {
	delete(r.queues, h)
}

// TakeAndRemove returns connection h's queue in registration order and
// removes it. A second call for the same handle returns nil — the
// teardown path relies on this to fire each queue exactly once.
func (r *PostRemoveRegistry) TakeAndRemove(h Handle) [][]byte {
	frames := r.queues[h]
	delete(r.queues, h)
	return frames
}

// Len returns the number of queued entries for connection h.
func (r *PostRemoveRegistry) Len(h Handle) int {
	return len(r.queues[h])
}
