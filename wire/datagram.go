// Copyright 2026 The OTP Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"encoding/binary"
	"fmt"
)

// Channel is the cluster's addressing unit: an opaque 64-bit value.
// Many connections may subscribe to the same channel (fan-out), and a
// channel need not have any subscriber at all.
type Channel uint64

// MaxRecipients is the most recipient channels one datagram can carry.
// The recipient count is a single byte on the wire.
const MaxRecipients = 255

// Datagram is the unit of transport on the bus: an opcode, the sender's
// channel, an ordered list of recipient channels, and an opaque
// payload. An empty recipient list marks a control message addressed to
// the bus itself.
//
// The bus routes datagrams verbatim — opcode, sender, recipient list,
// and payload reach every matched connection unchanged.
type Datagram struct {
	Opcode     Opcode
	Sender     Channel
	Recipients []Channel
	Payload    []byte
}

// IsControl reports whether the datagram is a control message for the
// bus: an empty recipient list combined with a control opcode.
// Datagrams with an empty recipient list and a non-control opcode
// resolve to zero recipients and are dropped by routing.
func (d *Datagram) IsControl() bool {
	return len(d.Recipients) == 0 && d.Opcode.IsControl()
}

// bodyLength returns the encoded size of the frame body: everything
// after the length prefix.
func (d *Datagram) bodyLength() int {
	return 2 + 8 + 1 + 8*len(d.Recipients) + len(d.Payload)
}

// appendBody appends the encoded frame body to buf and returns the
// extended slice. Layout: opcode, sender channel, recipient count,
// recipient channels, payload. All fields big-endian.
func (d *Datagram) appendBody(buf []byte) []byte {
	buf = binary.BigEndian.AppendUint16(buf, uint16(d.Opcode))
	buf = binary.BigEndian.AppendUint64(buf, uint64(d.Sender))
	buf = append(buf, byte(len(d.Recipients)))
	for _, recipient := range d.Recipients {
		buf = binary.BigEndian.AppendUint64(buf, uint64(recipient))
	}
	return append(buf, d.Payload...)
}

// decodeBody parses a frame body into a Datagram. The body is the
// frame content after the length prefix. The returned datagram's
// Payload aliases body — callers that retain the datagram past the
// lifetime of the read buffer must copy.
func decodeBody(body []byte) (Datagram, error) {
	const fixedHeader = 2 + 8 + 1 // opcode + sender + recipient count
	if len(body) < fixedHeader {
		return Datagram{}, fmt.Errorf("datagram body %d bytes, need at least %d", len(body), fixedHeader)
	}

	d := Datagram{
		Opcode: Opcode(binary.BigEndian.Uint16(body[0:2])),
		Sender: Channel(binary.BigEndian.Uint64(body[2:10])),
	}
	recipientCount := int(body[10])

	offset := fixedHeader
	if len(body) < offset+8*recipientCount {
		return Datagram{}, fmt.Errorf("datagram declares %d recipients but body has %d bytes", recipientCount, len(body))
	}
	if recipientCount > 0 {
		d.Recipients = make([]Channel, recipientCount)
		for i := range d.Recipients {
			d.Recipients[i] = Channel(binary.BigEndian.Uint64(body[offset : offset+8]))
			offset += 8
		}
	}

	if offset < len(body) {
		d.Payload = body[offset:]
	}
	return d, nil
}
