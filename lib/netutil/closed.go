// Copyright 2026 The OTP Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil holds small networking helpers shared by the message
// director and the services that connect to it.
package netutil

import (
	"errors"
	"io"
	"net"
	"syscall"
)

// IsExpectedCloseError reports whether err is a normal connection
// termination: EOF, closed connection, broken pipe, or connection
// reset. These occur whenever a peer disconnects while the director
// has a read or write in flight against it, and must trigger teardown
// rather than an error log.
func IsExpectedCloseError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == syscall.EPIPE || errno == syscall.ECONNRESET
	}
	return false
}
