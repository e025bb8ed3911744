// Copyright 2026 The OTP Authors
// SPDX-License-Identifier: Apache-2.0

package eventlogger

import (
	"fmt"
	"time"

	"github.com/Max-Rodriguez/otp/lib/codec"
)

// Record is one persisted event. The event body arrives on the bus as
// an opaque CBOR value chosen by the sending service; the logger wraps
// it with receipt metadata and stores the result deterministically
// encoded, so identical events produce identical bytes on disk.
type Record struct {
	// At is the receipt time at the logger, not the sender's clock.
	At time.Time `cbor:"at"`

	// Daemon names the daemon whose logger wrote the record. Relevant
	// when several federated daemons ship their logs to one place.
	Daemon string `cbor:"daemon"`

	// Sender is the bus channel the event was sent from.
	Sender uint64 `cbor:"sender"`

	// Event is the sender's CBOR event body, stored verbatim.
	Event codec.RawMessage `cbor:"event"`
}

// encodeRecord validates the event body and encodes the full record.
// The body must be one well-formed CBOR item; anything else is the
// sender's bug and the caller drops the event.
func encodeRecord(at time.Time, daemon string, sender uint64, body []byte) ([]byte, error) {
	var event codec.RawMessage
	if err := codec.Unmarshal(body, &event); err != nil {
		return nil, fmt.Errorf("event body is not valid CBOR: %w", err)
	}

	encoded, err := codec.Marshal(Record{
		At:     at,
		Daemon: daemon,
		Sender: sender,
		Event:  event,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding event record: %w", err)
	}
	return encoded, nil
}
