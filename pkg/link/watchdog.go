// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import "time"

// PingTimeout is PING_TIMEOUT_S from spec §4.1.2 / §5.
const PingTimeout = 10 * time.Second

// PingInterval is the rate at which the Display Node sends Ping while
// connected (spec §4.1.2).
const PingInterval = 1 * time.Second

// Watchdog tracks Machine Node link liveness: it latches SafeShutdown once
// more than PingTimeout elapses since the last Ping, and clears only when a
// fresh Ping arrives.
type Watchdog struct {
	lastPing time.Time
	shutdown bool
}

// NewWatchdog creates a watchdog seeded as of now, so a connection with no
// Ping yet does not immediately report a timeout.
func NewWatchdog(now time.Time) *Watchdog {
	return &Watchdog{lastPing: now}
}

// RecordPing records receipt of a Ping and clears any latched SafeShutdown.
func (w *Watchdog) RecordPing(now time.Time) {
	w.lastPing = now
	w.shutdown = false
}

// Sample checks elapsed time against PingTimeout and latches SafeShutdown if
// exceeded. Call at >=4 Hz from the Supervisor task per spec §4.1.2 / §5.
// Returns true if SafeShutdown is (now) active.
func (w *Watchdog) Sample(now time.Time) bool {
	if now.Sub(w.lastPing) > PingTimeout {
		w.shutdown = true
	}
	return w.shutdown
}

// ShuttingDown reports the latched SafeShutdown state without resampling.
func (w *Watchdog) ShuttingDown() bool {
	return w.shutdown
}

// Age returns the time since the last recorded Ping.
func (w *Watchdog) Age(now time.Time) time.Duration {
	return now.Sub(w.lastPing)
}
