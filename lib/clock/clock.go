// Copyright 2026 The OTP Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock abstracts time for testability. Production code injects
// Real(); tests inject Fake() and advance it deterministically. The
// upstream reconnect loop and the event logger's rotation timestamps
// are the main consumers — anything that sleeps, ticks, or reads the
// wall clock takes a Clock instead of calling the time package.
package clock

import "time"

// Clock is the time source injected into components that sleep, tick,
// or timestamp.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that receives the current time once d
	// has elapsed. Equivalent to time.After. If d <= 0 the channel
	// receives immediately.
	After(d time.Duration) <-chan time.Time

	// NewTicker returns a Ticker delivering ticks on C every d.
	// Panics if d <= 0, matching time.NewTicker.
	NewTicker(d time.Duration) *Ticker

	// Sleep pauses the calling goroutine for at least d.
	Sleep(d time.Duration)
}

// Ticker wraps a periodic timer. C has capacity 1, matching
// time.Ticker: if the consumer falls behind, ticks are dropped.
type Ticker struct {
	C <-chan time.Time

	stopFunc func()
}

// Stop turns the ticker off. It does not close C.
func (t *Ticker) Stop() { t.stopFunc() }

// Real returns a Clock backed by the standard time package.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

func (realClock) NewTicker(d time.Duration) *Ticker {
	ticker := time.NewTicker(d)
	return &Ticker{C: ticker.C, stopFunc: ticker.Stop}
}

func (realClock) Sleep(d time.Duration) { time.Sleep(d) }
