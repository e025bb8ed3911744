// Copyright 2026 The OTP Authors
// SPDX-License-Identifier: Apache-2.0

// Package wire defines the cluster's wire protocol: the datagram model,
// the length-prefixed stream framing, the process-wide opcode catalog,
// and the protocol signature services exchange at handshake.
//
// Every message on the bus is a datagram: an opcode, a sender channel,
// an ordered list of recipient channels, and an opaque payload. The bus
// assigns no semantics to channel values — they may encode object
// identity, service role, or broadcast group purely by convention. A
// datagram with an empty recipient list is a control message addressed
// to the bus itself and is never routed further.
//
// The package is organized by concern:
//
//   - opcode.go: the fixed, versioned opcode enumeration shared by
//     every service in the cluster
//   - datagram.go: the Datagram type and its binary body encoding
//   - framing.go: reading and writing framed datagrams on byte streams
//   - signature.go: the BLAKE3 protocol signature for wire
//     compatibility checks
//
// All multi-byte fields are big-endian. This is a cluster-wide protocol
// constant, not a tunable.
package wire
