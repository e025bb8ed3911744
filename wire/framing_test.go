// Copyright 2026 The OTP Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"bytes"
	"encoding/binary"
	"io"
	"strings"
	"testing"
)

func TestWriteReadRoundTrip(t *testing.T) {
	t.Parallel()

	sent := Datagram{
		Opcode:     SSObjectSetField,
		Sender:     4000,
		Recipients: []Channel{1234, 5678, 1 << 40},
		Payload:    []byte{0xde, 0xad, 0xbe, 0xef},
	}

	var stream bytes.Buffer
	if err := WriteDatagram(&stream, &sent); err != nil {
		t.Fatalf("WriteDatagram: %v", err)
	}

	received, err := ReadDatagram(&stream)
	if err != nil {
		t.Fatalf("ReadDatagram: %v", err)
	}

	if received.Opcode != sent.Opcode {
		t.Errorf("opcode: got %v, want %v", received.Opcode, sent.Opcode)
	}
	if received.Sender != sent.Sender {
		t.Errorf("sender: got %d, want %d", received.Sender, sent.Sender)
	}
	if len(received.Recipients) != len(sent.Recipients) {
		t.Fatalf("recipients: got %d, want %d", len(received.Recipients), len(sent.Recipients))
	}
	for i, recipient := range sent.Recipients {
		if received.Recipients[i] != recipient {
			t.Errorf("recipient %d: got %d, want %d", i, received.Recipients[i], recipient)
		}
	}
	if !bytes.Equal(received.Payload, sent.Payload) {
		t.Errorf("payload: got %x, want %x", received.Payload, sent.Payload)
	}
}

func TestControlDatagramHasNoRecipients(t *testing.T) {
	t.Parallel()

	control := Datagram{
		Opcode:  MDAddChannel,
		Sender:  100,
		Payload: binary.BigEndian.AppendUint64(nil, 1234),
	}
	if !control.IsControl() {
		t.Error("MDAddChannel with empty recipient list should be a control datagram")
	}

	routed := Datagram{
		Opcode:     MDAddChannel,
		Sender:     100,
		Recipients: []Channel{5},
	}
	if routed.IsControl() {
		t.Error("a datagram with recipients is never a control datagram")
	}

	empty := Datagram{Opcode: SSObjectGetAll, Sender: 100}
	if empty.IsControl() {
		t.Error("an empty recipient list with a non-control opcode is not a control datagram")
	}
}

func TestReadCleanEOF(t *testing.T) {
	t.Parallel()

	// A stream that ends exactly on a frame boundary reports io.EOF
	// unwrapped so read loops can treat it as a clean close.
	_, err := ReadDatagram(bytes.NewReader(nil))
	if err != io.EOF {
		t.Errorf("read from empty stream: got %v, want io.EOF", err)
	}
}

func TestReadTornFrame(t *testing.T) {
	t.Parallel()

	d := Datagram{Opcode: ClientHeartbeat, Sender: 7, Recipients: []Channel{9}}
	frame, err := d.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	// Truncate mid-body: the reader must report an error, not EOF.
	_, err = ReadDatagram(bytes.NewReader(frame[:len(frame)-2]))
	if err == nil || err == io.EOF {
		t.Errorf("read of torn frame: got %v, want framing error", err)
	}
}

func TestReadOversizedFrameRejected(t *testing.T) {
	t.Parallel()

	var prefix [4]byte
	binary.BigEndian.PutUint32(prefix[:], MaxFrameLength+1)

	_, err := ReadDatagram(bytes.NewReader(prefix[:]))
	if err == nil || !strings.Contains(err.Error(), "exceeds maximum") {
		t.Errorf("oversized frame: got %v, want length error", err)
	}
}

func TestDecodeRejectsShortBody(t *testing.T) {
	t.Parallel()

	// Frame claiming 3 recipients but carrying none.
	body := make([]byte, 11)
	body[10] = 3
	frame := binary.BigEndian.AppendUint32(nil, uint32(len(body)))
	frame = append(frame, body...)

	if _, err := Decode(frame); err == nil {
		t.Error("decode of truncated recipient list should fail")
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	t.Parallel()

	d := Datagram{
		Opcode:  MDAddPostRemove,
		Sender:  42,
		Payload: []byte("stored verbatim"),
	}
	frame, err := d.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	decoded, err := Decode(frame)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if decoded.Opcode != d.Opcode || decoded.Sender != d.Sender || !bytes.Equal(decoded.Payload, d.Payload) {
		t.Errorf("round trip mutated datagram: got %+v, want %+v", decoded, d)
	}
}

func TestTooManyRecipientsRejected(t *testing.T) {
	t.Parallel()

	d := Datagram{
		Opcode:     ClientHeartbeat,
		Recipients: make([]Channel, MaxRecipients+1),
	}
	if err := WriteDatagram(io.Discard, &d); err == nil {
		t.Error("writing a datagram with too many recipients should fail")
	}
}

func TestProtocolSignatureStable(t *testing.T) {
	t.Parallel()

	first := ProtocolSignature()
	second := ProtocolSignature()
	if first != second {
		t.Errorf("signature not deterministic: %s vs %s", first, second)
	}
	if first == (Signature{}) {
		t.Error("signature is zero")
	}
}
