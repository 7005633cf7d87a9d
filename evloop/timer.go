//go:build linux

// SPDX-License-Identifier: GPL-3.0-or-later

package evloop

import (
	"time"

	"github.com/muxio-project/muxio"
)

// Timer is a [muxio.Timer] backed by a [Loop] deadline.
//
// Each Start replaces the pending arm, and the expiry callback runs on the
// loop goroutine. Construct using [NewTimer].
type Timer struct {
	// loop is the owning event loop.
	loop *Loop

	// pending is the armed deadline, nil when none.
	pending *timerEntry
}

var _ muxio.Timer = &Timer{}

// NewTimer creates a [*Timer] on the given loop.
func NewTimer(loop *Loop) *Timer {
	return &Timer{loop: loop}
}

// Start implements [muxio.Timer].
func (t *Timer) Start(timeout time.Duration, onExpire func()) {
	t.Stop()
	entry := t.loop.addTimer(time.Now().Add(timeout), func() {
		t.pending = nil
		onExpire()
	})
	t.pending = entry
}

// Stop implements [muxio.Timer].
func (t *Timer) Stop() {
	if t.pending != nil {
		t.loop.cancelTimer(t.pending)
		t.pending = nil
	}
}
