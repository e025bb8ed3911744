// Copyright 2026 The OTP Authors
// SPDX-License-Identifier: Apache-2.0

package director

import "github.com/Max-Rodriguez/otp/wire"

// ChannelRange is an inclusive interval of channels. A datagram
// addressed to channel c matches when Min <= c <= Max. The inclusive
// upper bound is a cluster-wide protocol constant — it lets a range
// cover the maximum channel value, which a half-open bound cannot.
type ChannelRange struct {
	Min wire.Channel
	Max wire.Channel
}

// Contains reports whether the range covers channel c.
func (r ChannelRange) Contains(c wire.Channel) bool {
	return c >= r.Min && c <= r.Max
}

// RangeRegistry maps each connection to the list of ranges it is
// subscribed to. Matching scans each connection's list linearly:
// range counts per connection are small (tens) while the channel
// space is 64-bit, so a global interval index would cost more in
// bookkeeping than it saves. If connection count times range count
// ever makes this scan the routing bottleneck, swap the inner loop
// for a sorted endpoint index — the contract here does not change.
//
// The registry also keeps a cluster-wide reference count per distinct
// (Min, Max) pair. The count drives upstream propagation: the first
// local subscriber to a range opens it on the federation link, the
// last one closes it.
//
// RangeRegistry is a plain data structure: the Director's lock guards
// all access.
type RangeRegistry struct {
	byConnection map[Handle][]ChannelRange
	refs         map[ChannelRange]int
}

// NewRangeRegistry returns an empty registry.
func NewRangeRegistry() *RangeRegistry {
	return &RangeRegistry{
		byConnection: make(map[Handle][]ChannelRange),
		refs:         make(map[ChannelRange]int),
	}
}

// Add registers the range for connection h. An exact duplicate of a
// range the connection already holds is a no-op — overlapping but
// distinct ranges are kept as-is, since delivery resolution is
// set-based and cannot duplicate. first reports whether this is the
// first local subscription to exactly this range.
func (r *RangeRegistry) Add(h Handle, rng ChannelRange) (first bool) {
	for _, existing := range r.byConnection[h] {
		if existing == rng {
			return false
		}
	}
	r.byConnection[h] = append(r.byConnection[h], rng)
	r.refs[rng]++
	return r.refs[rng] == 1
}

// Remove drops an exact-match range from connection h. Removing a
// range that was never added is a no-op. last reports whether no
// local connection holds this range anymore.
func (r *RangeRegistry) Remove(h Handle, rng ChannelRange) (last bool) {
	ranges := r.byConnection[h]
	for i, existing := range ranges {
		if existing != rng {
			continue
		}
		ranges[i] = ranges[len(ranges)-1]
		ranges = ranges[:len(ranges)-1]
		if len(ranges) == 0 {
			delete(r.byConnection, h)
		} else {
			r.byConnection[h] = ranges
		}

		r.refs[rng]--
		if r.refs[rng] == 0 {
			delete(r.refs, rng)
			return true
		}
		return false
	}
	return false
}

// Matching adds every connection whose any range contains the channel
// to the destination set and returns how many connections matched,
// counting ones already present in the set. The count lets the router
// distinguish "no range covers this channel" from "the matches were
// already exact subscribers."
func (r *RangeRegistry) Matching(channel wire.Channel, into map[Handle]struct{}) int {
	matched := 0
	for h, ranges := range r.byConnection {
		for _, rng := range ranges {
			if rng.Contains(channel) {
				into[h] = struct{}{}
				matched++
				break
			}
		}
	}
	return matched
}

// Ranges returns connection h's registered ranges. The slice is the
// registry's own storage — read-only, and not to be retained past the
// guarding lock.
func (r *RangeRegistry) Ranges(h Handle) []ChannelRange {
	return r.byConnection[h]
}

// RemoveConnection purges every range held by connection h. Returns
// the ranges that lost their last local subscriber, for upstream
// propagation.
func (r *RangeRegistry) RemoveConnection(h Handle) []ChannelRange {
	ranges := r.byConnection[h]
	if ranges == nil {
		return nil
	}
	delete(r.byConnection, h)

	var released []ChannelRange
	for _, rng := range ranges {
		r.refs[rng]--
		if r.refs[rng] == 0 {
			delete(r.refs, rng)
			released = append(released, rng)
		}
	}
	return released
}
