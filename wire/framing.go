// Copyright 2026 The OTP Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"encoding/binary"
	"fmt"
	"io"
)

// frameLengthSize is the size of the frame length prefix: a big-endian
// uint32 counting every byte after itself.
const frameLengthSize = 4

// MaxFrameLength is the largest frame body the bus accepts. 16 MB is
// generous for object field updates; a frame claiming more than this
// is a framing error and tears the connection down.
const MaxFrameLength = 16 * 1024 * 1024

// WriteDatagram writes one framed datagram to w. The frame is the
// uint32 length prefix followed by the encoded body. A single Write
// call carries the whole frame so concurrent writers on a shared
// stream never interleave partial frames.
func WriteDatagram(w io.Writer, d *Datagram) error {
	if len(d.Recipients) > MaxRecipients {
		return fmt.Errorf("datagram has %d recipients, maximum is %d", len(d.Recipients), MaxRecipients)
	}
	bodyLength := d.bodyLength()
	if bodyLength > MaxFrameLength {
		return fmt.Errorf("datagram body %d bytes exceeds maximum %d", bodyLength, MaxFrameLength)
	}

	frame := make([]byte, 0, frameLengthSize+bodyLength)
	frame = binary.BigEndian.AppendUint32(frame, uint32(bodyLength))
	frame = d.appendBody(frame)

	if _, err := w.Write(frame); err != nil {
		return fmt.Errorf("write datagram frame: %w", err)
	}
	return nil
}

// ReadDatagram reads one framed datagram from r. The returned
// datagram's slices are freshly allocated and safe to retain. Returns
// io.EOF unwrapped when the stream ends cleanly on a frame boundary,
// so read loops can distinguish peer close from a torn frame.
func ReadDatagram(r io.Reader) (Datagram, error) {
	var lengthPrefix [frameLengthSize]byte
	if _, err := io.ReadFull(r, lengthPrefix[:]); err != nil {
		if err == io.EOF {
			return Datagram{}, io.EOF
		}
		return Datagram{}, fmt.Errorf("read frame length: %w", err)
	}

	bodyLength := binary.BigEndian.Uint32(lengthPrefix[:])
	if bodyLength > MaxFrameLength {
		return Datagram{}, fmt.Errorf("frame length %d exceeds maximum %d", bodyLength, MaxFrameLength)
	}

	body := make([]byte, bodyLength)
	if _, err := io.ReadFull(r, body); err != nil {
		return Datagram{}, fmt.Errorf("read frame body: %w", err)
	}

	d, err := decodeBody(body)
	if err != nil {
		return Datagram{}, err
	}
	return d, nil
}

// Encode returns the complete frame for the datagram, length prefix
// included. Post-remove entries are stored in this form so teardown
// can replay them without re-encoding.
func (d *Datagram) Encode() ([]byte, error) {
	if len(d.Recipients) > MaxRecipients {
		return nil, fmt.Errorf("datagram has %d recipients, maximum is %d", len(d.Recipients), MaxRecipients)
	}
	bodyLength := d.bodyLength()
	if bodyLength > MaxFrameLength {
		return nil, fmt.Errorf("datagram body %d bytes exceeds maximum %d", bodyLength, MaxFrameLength)
	}
	frame := make([]byte, 0, frameLengthSize+bodyLength)
	frame = binary.BigEndian.AppendUint32(frame, uint32(bodyLength))
	return d.appendBody(frame), nil
}

// Decode parses a complete frame (length prefix included) into a
// datagram. Inverse of Encode.
func Decode(frame []byte) (Datagram, error) {
	if len(frame) < frameLengthSize {
		return Datagram{}, fmt.Errorf("frame %d bytes, need at least %d", len(frame), frameLengthSize)
	}
	bodyLength := binary.BigEndian.Uint32(frame[:frameLengthSize])
	if int(bodyLength) != len(frame)-frameLengthSize {
		return Datagram{}, fmt.Errorf("frame length prefix %d does not match body length %d", bodyLength, len(frame)-frameLengthSize)
	}
	return decodeBody(frame[frameLengthSize:])
}
