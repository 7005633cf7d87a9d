//go:build linux

// SPDX-License-Identifier: GPL-3.0-or-later

package evloop

import (
	"github.com/muxio-project/muxio"
)

// Watcher is a [muxio.SocketWatcher] backed by a [Loop]'s epoll instance.
//
// Readiness notification is level triggered, matching the muxio contract,
// and callbacks run on the loop goroutine. Construct using [NewWatcher].
type Watcher struct {
	// loop is the owning event loop.
	loop *Loop
}

var _ muxio.SocketWatcher = &Watcher{}

// NewWatcher creates a [*Watcher] on the given loop.
func NewWatcher(loop *Loop) *Watcher {
	return &Watcher{loop: loop}
}

// Watch implements [muxio.SocketWatcher].
//
// A failure to register with epoll is not surfaced: per the muxio failure
// model it manifests as the affected transfer timing out through the
// engine's own machinery.
func (w *Watcher) Watch(socket muxio.Socket, event muxio.Event, onReady muxio.ReadyFunc) {
	_ = w.loop.watch(int(socket), event, onReady)
}

// StopWatching implements [muxio.SocketWatcher].
func (w *Watcher) StopWatching(socket muxio.Socket) {
	w.loop.unwatch(int(socket))
}
