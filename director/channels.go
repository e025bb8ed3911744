// Copyright 2026 The OTP Authors
// SPDX-License-Identifier: Apache-2.0

package director

import "github.com/Max-Rodriguez/otp/wire"

// Handle identifies one connection for the lifetime of that
// connection. Registries store handles, never connection objects —
// ownership stays with the Director's connection table, which keeps
// the "connection owns subscriptions, registry indexes connections"
// relationship acyclic. Handle 0 is never assigned.
type Handle uint32

// ChannelRegistry maps channels to the set of connections subscribed
// to them, with a reverse index from connection to its channels so a
// connection can be purged without scanning the whole channel table.
//
// ChannelRegistry is a plain data structure: the Director's lock
// guards all access.
type ChannelRegistry struct {
	subscribers  map[wire.Channel]map[Handle]struct{}
	byConnection map[Handle]map[wire.Channel]struct{}
}

// NewChannelRegistry returns an empty registry.
func NewChannelRegistry() *ChannelRegistry {
	return &ChannelRegistry{
		subscribers:  make(map[wire.Channel]map[Handle]struct{}),
		byConnection: make(map[Handle]map[wire.Channel]struct{}),
	}
}

// Subscribe adds connection h to the channel's subscriber set.
// Idempotent. first reports whether the channel went from zero
// subscribers to one — the signal to open the channel on the upstream
// link.
func (r *ChannelRegistry) Subscribe(h Handle, channel wire.Channel) (first bool) {
	set := r.subscribers[channel]
	if set == nil {
		set = make(map[Handle]struct{})
		r.subscribers[channel] = set
	}
	if _, ok := set[h]; ok {
		return false
	}
	first = len(set) == 0
	set[h] = struct{}{}

	channels := r.byConnection[h]
	if channels == nil {
		channels = make(map[wire.Channel]struct{})
		r.byConnection[h] = channels
	}
	channels[channel] = struct{}{}
	return first
}

// Unsubscribe removes connection h from the channel's subscriber set.
// No-op if absent. last reports whether the channel now has zero
// subscribers — the signal to close it upstream.
func (r *ChannelRegistry) Unsubscribe(h Handle, channel wire.Channel) (last bool) {
	set := r.subscribers[channel]
	if set == nil {
		return false
	}
	if _, ok := set[h]; !ok {
		return false
	}
	delete(set, h)
	if len(set) == 0 {
		delete(r.subscribers, channel)
		last = true
	}

	if channels := r.byConnection[h]; channels != nil {
		delete(channels, channel)
		if len(channels) == 0 {
			delete(r.byConnection, h)
		}
	}
	return last
}

// SubscribersOf returns the subscriber set for a channel, or nil. The
// returned map is the registry's own storage — callers must treat it
// as read-only and must not retain it past the guarding lock. No
// allocation at steady state.
func (r *ChannelRegistry) SubscribersOf(channel wire.Channel) map[Handle]struct{} {
	return r.subscribers[channel]
}

// RemoveConnection purges connection h from every channel set it
// belongs to, using the reverse index. Returns the channels that lost
// their last subscriber, for upstream propagation.
func (r *ChannelRegistry) RemoveConnection(h Handle) []wire.Channel {
	channels := r.byConnection[h]
	if channels == nil {
		return nil
	}
	delete(r.byConnection, h)

	var emptied []wire.Channel
	for channel := range channels {
		set := r.subscribers[channel]
		delete(set, h)
		if len(set) == 0 {
			delete(r.subscribers, channel)
			emptied = append(emptied, channel)
		}
	}
	return emptied
}
