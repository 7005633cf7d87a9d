// SPDX-License-Identifier: GPL-3.0-or-later

package muxio

// Socket is an opaque socket descriptor.
//
// On Unix-like systems this is a file descriptor; the package never
// interprets the value, it only hands it back and forth between the
// [Engine] and the [SocketWatcher].
type Socket uintptr

// Event is a bitmask of readiness conditions on a [Socket].
type Event int

const (
	// EventRead indicates interest in (or occurrence of) read readiness.
	EventRead Event = 1 << iota

	// EventWrite indicates interest in (or occurrence of) write readiness.
	EventWrite
)

// String returns a short human-readable label for logging.
func (ev Event) String() string {
	switch ev {
	case EventRead:
		return "read"
	case EventWrite:
		return "write"
	case EventRead | EventWrite:
		return "read/write"
	default:
		return "none"
	}
}

// ReadyFunc is invoked by a [SocketWatcher] when a watched socket becomes
// ready. The canWrite flag is true for write readiness and false for read
// readiness; a socket watched for both directions receives separate
// invocations.
type ReadyFunc func(socket Socket, canWrite bool)

// SocketWatcher is the level-triggered readiness capability supplied by the
// embedder, typically backed by the event loop's poller.
//
// The [Manager] issues StopWatching only for sockets it previously passed to
// Watch, and never watches the same socket twice without an intervening
// StopWatching: a change of watched direction is always expressed as
// StopWatching followed by a fresh Watch.
//
// The evloop subpackage provides an epoll-backed implementation.
type SocketWatcher interface {
	// Watch begins level-triggered readiness notification for the given
	// event set, invoking onReady on the event-loop goroutine each time
	// the socket is ready.
	Watch(socket Socket, event Event, onReady ReadyFunc)

	// StopWatching ends notification for the socket. Calling it for a
	// socket that is not being watched is a no-op.
	StopWatching(socket Socket)
}

// SocketFactory optionally routes the engine's socket creation and
// destruction through the embedder, so that sockets are born inside the
// event loop's domain (registered, non-blocking, close-on-exec) rather
// than created behind its back.
//
// Engines that support it accept a SocketFactory at construction time.
type SocketFactory interface {
	// Open creates a socket suitable for the given network ("tcp",
	// "tcp4", "tcp6", "udp", ...) and remote address.
	Open(network, address string) (Socket, error)

	// Close destroys a socket previously returned by Open.
	Close(socket Socket) error
}
