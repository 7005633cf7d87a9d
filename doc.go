// SPDX-License-Identifier: GPL-3.0-or-later

// Package muxio drives many concurrent network transfers from a single
// externally supplied event loop.
//
// # Core Abstraction
//
// The protocol work itself (DNS, connect, TLS, wire format) is delegated to a
// transfer [Engine], which this package treats as a black box: the engine is
// fed wakeup events ("socket S became readable", "the deadline elapsed") and
// in response performs non-blocking I/O and reports per-transfer completions.
//
// What this package implements is the reactor adapter around such an engine:
//
//   - [Manager]: owns the registry of running transfers, translates the
//     engine's timer and socket-watch requests into calls on caller-supplied
//     [Timer] and [SocketWatcher] capabilities, feeds readiness notifications
//     back into the engine, and drains completions after every event
//
//   - [Conn]: one transfer, holding its configuration, per-run state, and
//     result, with a finished callback invoked exactly once per run
//
//   - [HTTPConn]: a [Conn] with HTTP-specific setters and getters (request
//     headers, redirects, parsed response headers, status code)
//
// # Typical Usage
//
// Create an [Engine], a [Timer], and a [SocketWatcher] (the evloop subpackage
// provides event-loop backed implementations of the latter two for Linux).
// Then:
//
//	mgr := muxio.NewManager(cfg, engine, timer, watcher)
//	conn, err := muxio.NewHTTPConn(cfg, engine)
//	conn.SetURL("http://example.com/")
//	conn.SetFinishedCallback(func(c *muxio.Conn) { ... })
//	mgr.Start(conn.Conn)
//
// Control then returns to the event loop. The engine requests socket watches
// and deadlines through the manager; when the loop later reports readiness or
// expiry, the manager advances the engine and delivers finished callbacks.
//
// # Threading Model
//
// Everything is single threaded and cooperative. The manager performs no
// locking and assumes that Start, Abort, and every capability callback run on
// the one goroutine that drives the event loop. No operation blocks.
//
// # Lifecycle Rules
//
//   - Starting an already running [Conn] is a no-op
//   - Aborting a [Conn] that is not running is a no-op
//   - Abort never invokes the finished callback; this asymmetry is deliberate
//   - A finished callback may call Start or Abort re-entrantly; the completed
//     transfer is already out of the registry when its callback runs, so
//     restarting it from inside the callback begins a fresh run
//
// # Observability
//
// All components support structured logging via [SLogger] (compatible with
// [log/slog]). By default logging is disabled. Lifecycle events (start, abort,
// watch changes, timer changes, finish) log at Info; per-I/O events (body
// reads and writes) log at Debug. Error classification for log output is
// configurable via [ErrClassifier].
package muxio
