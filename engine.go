// SPDX-License-Identifier: GPL-3.0-or-later

package muxio

import (
	"iter"
	"time"
)

// Handle identifies one transfer inside an [Engine].
//
// The engine assigns handles when a [Conn] is opened; a handle is unique at
// least for as long as the transfer is registered with a [Manager], which
// uses it as the registry key.
type Handle uint64

// Completion reports that one transfer has finished.
//
// A nil Result means success; any other value describes the failure (DNS,
// connect, TLS, protocol, aborted by callback, ...). Engines should wrap the
// package's sentinel errors where they apply so callers can use [errors.Is].
type Completion struct {
	// Handle identifies the finished transfer.
	Handle Handle

	// Result is the transfer outcome; nil on success.
	Result error
}

// Wakeup tells an [Engine] why it should advance.
//
// Construct values with [TimeoutWakeup] or [SocketWakeup].
type Wakeup struct {
	// Timeout is true when the pending deadline elapsed. When true the
	// Socket and Ready fields are meaningless.
	Timeout bool

	// Socket is the socket that became ready.
	Socket Socket

	// Ready is the readiness direction observed on Socket.
	Ready Event
}

// TimeoutWakeup returns a [Wakeup] meaning "the deadline elapsed".
func TimeoutWakeup() Wakeup {
	return Wakeup{Timeout: true}
}

// SocketWakeup returns a [Wakeup] meaning "socket became ready for ev".
func SocketWakeup(socket Socket, ev Event) Wakeup {
	return Wakeup{Socket: socket, Ready: ev}
}

// WatchAction is what an [Engine] asks the [Manager] to do with a socket.
type WatchAction int

const (
	// WatchRead asks to watch the socket for read readiness.
	WatchRead WatchAction = iota

	// WatchWrite asks to watch the socket for write readiness.
	WatchWrite

	// WatchReadWrite asks to watch the socket for both directions.
	WatchReadWrite

	// WatchRemove asks to stop watching the socket entirely.
	WatchRemove
)

// String returns a short human-readable label for logging.
func (a WatchAction) String() string {
	switch a {
	case WatchRead:
		return "read"
	case WatchWrite:
		return "write"
	case WatchReadWrite:
		return "read/write"
	case WatchRemove:
		return "remove"
	default:
		return "unknown"
	}
}

// Hooks is the interface through which an [Engine] asks its [Manager] for
// timer and socket-watch services. The manager implements it and installs
// itself via [Engine.Bind] at construction time.
//
// Both methods are invoked synchronously from within [Engine.Add],
// [Engine.Remove], or [Engine.Advance].
type Hooks interface {
	// RequestTimer asks for a wakeup after the given timeout, replacing
	// any previously requested deadline. A negative timeout means no
	// wakeup is needed and cancels the pending deadline, if any.
	RequestTimer(timeout time.Duration)

	// RequestWatch asks to change the watched event set for a socket.
	RequestWatch(socket Socket, action WatchAction)
}

// Engine is the external transfer engine: the component that owns the
// actual protocol state machines and performs the non-blocking I/O.
//
// This package never implements an engine; it drives one. The contract an
// engine must honor:
//
//   - it never blocks: "waiting" is expressed by calling
//     [Hooks.RequestTimer] and [Hooks.RequestWatch]
//
//   - the sequence returned by Advance is drained to exhaustion by the
//     manager before control returns to the event loop, and must keep
//     yielding as long as completed transfers are pending, so that one
//     wakeup completing several transfers reports all of them
//
//   - capability failures (a socket that cannot be opened, a watch that
//     cannot be established) are not reported out of band: they surface as
//     the eventual failure Result of the affected transfer
type Engine interface {
	// Bind installs the hooks the engine uses to request timer and
	// socket-watch services. Called once by [NewManager].
	Bind(hooks Hooks)

	// Open registers a new transfer described by the given source and
	// returns its handle. The engine reads the transfer configuration
	// via [TransferSource.Options] and performs I/O through the
	// remaining methods.
	Open(src TransferSource) (Handle, error)

	// Close releases a handle previously returned by Open. The handle
	// must not be registered with a manager anymore.
	Close(handle Handle)

	// Add attaches an opened transfer to the engine's multiplexer so it
	// starts progressing. May synchronously invoke hooks.
	Add(handle Handle) error

	// Remove detaches a transfer from the multiplexer without finishing
	// it. May synchronously invoke hooks.
	Remove(handle Handle) error

	// Advance lets the engine make progress in response to a wakeup and
	// returns a lazy sequence of the transfers that have completed. The
	// caller must consume the sequence to exhaustion. May synchronously
	// invoke hooks while iterated.
	Advance(wakeup Wakeup) iter.Seq[Completion]
}

// TransferSource is the engine-facing surface of one transfer: the
// configuration snapshot plus the byte-level I/O glue. [Conn] implements it.
//
// Every I/O method returns an error to signal failure; the engine must then
// abort the transfer and surface that error (wrapped) as its Result. The
// package's sentinel errors (for example [ErrWriteBodyAbort]) identify which
// callback failed.
type TransferSource interface {
	// Options returns a snapshot of the transfer configuration.
	Options() Options

	// ReadBody copies up to len(p) bytes of request body into p. It
	// returns [io.EOF] once the whole body has been read.
	ReadBody(p []byte) (int, error)

	// SeekBody repositions the request-body cursor, with whence being
	// one of [io.SeekStart], [io.SeekCurrent], and [io.SeekEnd]. Engines
	// use it to rewind the body when a resend is needed.
	SeekBody(whence int, offset int64) error

	// WriteHeader appends received response-header bytes.
	WriteHeader(p []byte) error

	// WriteBody appends received response-body bytes.
	WriteBody(p []byte) error

	// Progress reports transfer progress when the progress meter is
	// enabled in the transfer options.
	Progress(downloadTotal, downloadNow, uploadTotal, uploadNow int64) error
}
