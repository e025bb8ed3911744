// Copyright 2026 The OTP Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"encoding/binary"
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// ProtocolVersion names the wire protocol revision. It participates in
// the protocol signature, so bumping it invalidates handshakes against
// older builds even when the opcode catalog is unchanged.
const ProtocolVersion = "otp-wire/1"

// signatureKey is the 32-byte BLAKE3 domain key for protocol
// signatures. Domain separation keeps a signature from colliding with
// any other BLAKE3 use of the same input bytes. The value is the ASCII
// domain name, zero-padded.
var signatureKey = [32]byte{
	'o', 't', 'p', '.', 'w', 'i', 'r', 'e', '.',
	's', 'i', 'g', 'n', 'a', 't', 'u', 'r', 'e',
}

// Signature is a 32-byte BLAKE3 digest of the wire protocol: the
// protocol version string followed by every opcode in the catalog in
// ascending order. Services exchange it at handshake; a mismatch means
// the peers were built against different protocol revisions and must
// not exchange datagrams.
type Signature [32]byte

// String returns the hex form used in logs and handshake diagnostics.
func (s Signature) String() string {
	return hex.EncodeToString(s[:])
}

// ProtocolSignature computes the signature of this build's wire
// protocol. The result is deterministic across processes and
// architectures.
func ProtocolSignature() Signature {
	hasher, err := blake3.NewKeyed(signatureKey[:])
	if err != nil {
		panic("wire: BLAKE3 keyed hash initialization failed: " + err.Error())
	}

	hasher.Write([]byte(ProtocolVersion))
	var encoded [2]byte
	for _, op := range catalog {
		binary.BigEndian.PutUint16(encoded[:], uint16(op))
		hasher.Write(encoded[:])
	}

	var signature Signature
	copy(signature[:], hasher.Sum(nil))
	return signature
}
