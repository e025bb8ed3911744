// Copyright 2026 The OTP Authors
// SPDX-License-Identifier: Apache-2.0

package director

import (
	"encoding/binary"

	"github.com/Max-Rodriguez/otp/wire"
)

// route is the central algorithm: resolve the datagram's recipients
// against the registries, deliver locally, and apply the federation
// rule. Called from each connection's reader goroutine, so datagrams
// from one sender reach every recipient's queue in send order.
func (d *Director) route(from *conn, datagram *wire.Datagram) {
	if datagram.IsControl() {
		d.handleControl(from, datagram)
		return
	}

	// Resolve recipients under the read lock: the union of exact and
	// range subscribers per recipient channel. The sender is not
	// excluded — if it subscribed to a recipient channel it receives
	// its own datagram, plain publish/subscribe semantics. localMiss
	// tracks whether any recipient channel resolved to nothing here,
	// which is what triggers upstream forwarding.
	if len(datagram.Recipients) == 0 {
		// Empty recipient list with a non-control opcode: addressed
		// to the bus but not something the bus understands. Drop.
		return
	}

	targets := make(map[Handle]struct{})
	localMiss := false

	d.mu.RLock()
	for _, channel := range datagram.Recipients {
		exact := d.channels.SubscribersOf(channel)
		for h := range exact {
			targets[h] = struct{}{}
		}
		ranged := d.ranges.Matching(channel, targets)
		if len(exact) == 0 && ranged == 0 {
			localMiss = true
		}
	}

	deliveries := make([]*conn, 0, len(targets))
	for h := range targets {
		if c := d.conns[h]; c != nil {
			deliveries = append(deliveries, c)
		}
	}
	upstream := d.conns[d.upstreamHandle]
	d.mu.RUnlock()

	if len(deliveries) == 0 && (upstream == nil || from.upstream) {
		// No subscriber anywhere to send to. Not an error: the bus
		// cannot tell an idle channel from a misaddressed datagram.
		return
	}

	frame, err := datagram.Encode()
	if err != nil {
		d.logger.Warn("dropping unencodable datagram",
			"handle", from.handle,
			"opcode", datagram.Opcode,
			"error", err,
		)
		return
	}

	for _, c := range deliveries {
		if !c.enqueue(frame) {
			d.logger.Warn("outbound queue overflow, disconnecting",
				"handle", c.handle,
			)
			go d.teardown(c, nil)
		}
	}

	// Federation: forward on any local miss, but never send a
	// datagram back where it came from — upstream-originated traffic
	// is only delivered locally, which is what breaks routing loops.
	if localMiss && upstream != nil && !from.upstream {
		if !upstream.enqueue(frame) {
			go d.teardown(upstream, nil)
		}
	}
}

// Control payload layout, all fields big-endian:
//
//	MDAddChannel, MDRemoveChannel:  [channel u64]
//	MDAddRange, MDRemoveRange:      [min u64][max u64]
//	MDAddPostRemove:                [encoded datagram frame]
//	MDClearPostRemoves:             (empty)

// handleControl applies a control datagram to the registries,
// attributed to the sending connection. Malformed payloads are
// dropped and logged; the sender is not punished. Control datagrams
// are never re-broadcast, but first/last subscription transitions are
// reflected to the upstream link so the parent director routes the
// right traffic down to this one.
func (d *Director) handleControl(from *conn, datagram *wire.Datagram) {
	payload := datagram.Payload

	switch datagram.Opcode {
	case wire.MDAddChannel, wire.MDRemoveChannel:
		if len(payload) != 8 {
			d.dropMalformed(from, datagram, "channel payload must be 8 bytes")
			return
		}
		channel := wire.Channel(binary.BigEndian.Uint64(payload))

		d.mu.Lock()
		var boundary bool
		if datagram.Opcode == wire.MDAddChannel {
			boundary = d.channels.Subscribe(from.handle, channel)
		} else {
			boundary = d.channels.Unsubscribe(from.handle, channel)
		}
		d.mu.Unlock()

		if boundary && !from.upstream {
			if datagram.Opcode == wire.MDAddChannel {
				d.sendUpstream(controlOpenChannel(channel))
			} else {
				d.sendUpstream(controlCloseChannel(channel))
			}
		}

	case wire.MDAddRange, wire.MDRemoveRange:
		if len(payload) != 16 {
			d.dropMalformed(from, datagram, "range payload must be 16 bytes")
			return
		}
		rng := ChannelRange{
			Min: wire.Channel(binary.BigEndian.Uint64(payload[:8])),
			Max: wire.Channel(binary.BigEndian.Uint64(payload[8:])),
		}
		if rng.Max < rng.Min {
			d.dropMalformed(from, datagram, "range max below min")
			return
		}

		d.mu.Lock()
		var boundary bool
		if datagram.Opcode == wire.MDAddRange {
			boundary = d.ranges.Add(from.handle, rng)
		} else {
			boundary = d.ranges.Remove(from.handle, rng)
		}
		d.mu.Unlock()

		if boundary && !from.upstream {
			if datagram.Opcode == wire.MDAddRange {
				d.sendUpstream(controlOpenRange(rng))
			} else {
				d.sendUpstream(controlCloseRange(rng))
			}
		}

	case wire.MDAddPostRemove:
		// The payload is itself an encoded datagram, stored verbatim.
		// Validate now so teardown never fires garbage.
		if _, err := wire.Decode(payload); err != nil {
			d.dropMalformed(from, datagram, "post-remove payload is not a valid datagram")
			return
		}
		stored := make([]byte, len(payload))
		copy(stored, payload)

		d.mu.Lock()
		d.postRemoves.Add(from.handle, stored)
		d.mu.Unlock()

	case wire.MDClearPostRemoves:
		if len(payload) != 0 {
			d.dropMalformed(from, datagram, "clear-post-removes carries no payload")
			return
		}
		d.mu.Lock()
		d.postRemoves.Clear(from.handle)
		d.mu.Unlock()
	}
}

// dropMalformed logs and discards a malformed control datagram.
func (d *Director) dropMalformed(from *conn, datagram *wire.Datagram, reason string) {
	d.logger.Warn("dropping malformed control datagram",
		"handle", from.handle,
		"opcode", datagram.Opcode,
		"payload_bytes", len(datagram.Payload),
		"reason", reason,
	)
}

// Control frame constructors for upstream propagation. The director
// subscribes on its parent exactly like any downstream service
// subscribes here; sender channel 0 marks bus-originated control.

func controlOpenChannel(channel wire.Channel) []byte {
	return mustEncodeControl(wire.MDAddChannel, binary.BigEndian.AppendUint64(nil, uint64(channel)))
}

func controlCloseChannel(channel wire.Channel) []byte {
	return mustEncodeControl(wire.MDRemoveChannel, binary.BigEndian.AppendUint64(nil, uint64(channel)))
}

func controlOpenRange(rng ChannelRange) []byte {
	payload := binary.BigEndian.AppendUint64(nil, uint64(rng.Min))
	payload = binary.BigEndian.AppendUint64(payload, uint64(rng.Max))
	return mustEncodeControl(wire.MDAddRange, payload)
}

func controlCloseRange(rng ChannelRange) []byte {
	payload := binary.BigEndian.AppendUint64(nil, uint64(rng.Min))
	payload = binary.BigEndian.AppendUint64(payload, uint64(rng.Max))
	return mustEncodeControl(wire.MDRemoveRange, payload)
}

func mustEncodeControl(opcode wire.Opcode, payload []byte) []byte {
	datagram := wire.Datagram{Opcode: opcode, Payload: payload}
	frame, err := datagram.Encode()
	if err != nil {
		// Control payloads are fixed-size and tiny; encoding cannot
		// fail without a programming error.
		panic("director: control frame encoding failed: " + err.Error())
	}
	return frame
}
