// SPDX-License-Identifier: GPL-3.0-or-later

package muxio

import "time"

// Timer is the single-shot countdown capability supplied by the embedder,
// typically backed by the event loop's timer facility.
//
// The [Manager] keeps at most one deadline pending: every re-arm is a Stop
// followed by a Start with the new timeout. A Stop may race an expiry that
// is already in flight; the manager detects and ignores such stale firings,
// so implementations need not provide that guarantee themselves.
//
// The evloop subpackage provides an event-loop backed implementation.
type Timer interface {
	// Start arms the countdown, replacing any previous arm. When the
	// timeout elapses, onExpire is invoked once on the event-loop
	// goroutine.
	Start(timeout time.Duration, onExpire func())

	// Stop cancels a pending arm. Calling it with no arm pending is a
	// no-op.
	Stop()
}
