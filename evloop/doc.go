// SPDX-License-Identifier: GPL-3.0-or-later

// Package evloop provides a minimal single-threaded event loop implementing
// the capabilities consumed by the muxio package: [Timer], [Watcher]
// (a [muxio.SocketWatcher]), and [SocketFactory].
//
// The [Loop] multiplexes level-triggered socket readiness via epoll and
// keeps a heap of one-shot deadlines, dispatching every callback on the
// goroutine that called [Loop.Run]. This matches the muxio threading model:
// the manager, the engine, and all connection callbacks run on the loop
// goroutine and never need locking.
//
// The implementation is Linux-only. Embedders on other platforms supply
// their own capability implementations on top of their native event loop.
package evloop
