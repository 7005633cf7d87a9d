// SPDX-License-Identifier: GPL-3.0-or-later

package muxio

import (
	"log/slog"
	"time"
)

// Manager is the reactor adapter between the external event loop and the
// transfer [Engine].
//
// It owns the registry of running connections, satisfies the engine's timer
// and socket-watch requests using the caller-supplied [Timer] and
// [SocketWatcher], forwards readiness and expiry notifications back into the
// engine, and drains completed transfers after every event, firing each
// connection's finished callback exactly once per run.
//
// Manager is not safe for concurrent use: Start, Abort, and the capability
// callbacks it installs must all run on the one goroutine that drives the
// event loop. Re-entrant calls are fine: a finished callback may Start or
// Abort other connections, or restart the one that just finished.
//
// The manager surfaces no errors of its own. Misuse (double start, abort of
// a connection that is not running, readiness notifications for sockets it
// no longer watches) is a safe no-op, and capability failures surface as
// the eventual result of the affected transfer through the engine's own
// timeout and error machinery.
//
// Each Manager must have exclusive use of its [Timer] and [SocketWatcher].
type Manager struct {
	// engine is the transfer engine being driven.
	engine Engine

	// timer and watcher are the event-loop capabilities.
	timer   Timer
	watcher SocketWatcher

	// running maps each registered handle to its connection. An entry
	// exists if and only if the connection state is [StateRunning].
	running map[Handle]*Conn

	// sockets tracks every socket the engine has presented through
	// [Manager.RequestWatch]. Presence in the map marks the socket as
	// already known; the value records the currently watched event set.
	sockets map[Socket]Event

	// timerGen distinguishes the current timer arm from cancelled ones
	// whose expiry callback may already be in flight.
	timerGen uint64

	// ErrClassifier classifies transfer results for structured logging.
	ErrClassifier ErrClassifier

	// Logger is the [SLogger] to use (configurable for testing or custom logging).
	Logger SLogger

	// TimeNow is the function to get the current time (configurable for testing).
	TimeNow func() time.Time
}

var _ Hooks = &Manager{}

// NewManager creates a [*Manager] driving the given engine with the given
// capabilities, and binds itself to the engine as its [Hooks].
//
// The cfg argument contains the common configuration for muxio components.
func NewManager(cfg *Config, engine Engine, timer Timer, watcher SocketWatcher) *Manager {
	m := &Manager{
		engine:        engine,
		timer:         timer,
		watcher:       watcher,
		running:       make(map[Handle]*Conn),
		sockets:       make(map[Socket]Event),
		ErrClassifier: cfg.ErrClassifier,
		Logger:        cfg.Logger,
		TimeNow:       cfg.TimeNow,
	}
	engine.Bind(m)
	return m
}

// Running reports whether the given connection is currently registered.
func (m *Manager) Running(conn *Conn) bool {
	_, ok := m.running[conn.Handle()]
	return ok
}

// Start begins running the connection.
//
// Starting a connection that is already running is a no-op. Otherwise the
// connection's per-run state is reset and its handle is registered with the
// engine, which may synchronously request timer and socket-watch services.
//
// The manager retains the connection until it finishes or is aborted.
func (m *Manager) Start(conn *Conn) {
	handle := conn.Handle()
	if _, ok := m.running[handle]; ok {
		m.Logger.Info(
			"managerStartIgnored",
			slog.Uint64("handle", uint64(handle)),
			slog.Time("t", m.TimeNow()),
		)
		return
	}
	conn.willStart()
	m.running[handle] = conn
	m.Logger.Info(
		"managerStart",
		slog.Uint64("handle", uint64(handle)),
		slog.String("runId", conn.RunID()),
		slog.Time("t", m.TimeNow()),
	)
	// An Add failure is not surfaced here: the engine reports it as the
	// transfer's eventual result.
	_ = m.engine.Add(handle)
}

// Abort stops a running connection immediately.
//
// Aborting a connection that is not running is a no-op. The finished
// callback is never invoked as a consequence of Abort: this is the one way
// a connection stops running without a recorded result. An abort that races
// a completion the engine has already decided but the manager has not yet
// drained wins: the registry entry is gone, so the drain skips the handle
// and no callback fires.
func (m *Manager) Abort(conn *Conn) {
	handle := conn.Handle()
	if _, ok := m.running[handle]; !ok {
		m.Logger.Info(
			"managerAbortIgnored",
			slog.Uint64("handle", uint64(handle)),
			slog.Time("t", m.TimeNow()),
		)
		return
	}
	delete(m.running, handle)
	_ = m.engine.Remove(handle)
	conn.didAbort()
	m.Logger.Info(
		"managerAbort",
		slog.Uint64("handle", uint64(handle)),
		slog.Time("t", m.TimeNow()),
	)
}

// RequestTimer implements [Hooks].
//
// The engine calls it, synchronously from within Add, Remove, or Advance,
// to replace the pending deadline. A negative timeout cancels the pending
// deadline without arming a new one.
func (m *Manager) RequestTimer(timeout time.Duration) {
	m.timer.Stop()
	// Bumping the generation invalidates the callback of any previous
	// arm whose firing is already in flight despite the Stop.
	m.timerGen++
	if timeout < 0 {
		m.Logger.Info(
			"timerClear",
			slog.Time("t", m.TimeNow()),
		)
		return
	}
	generation := m.timerGen
	m.Logger.Info(
		"timerArm",
		slog.Duration("timeout", timeout),
		slog.Time("t", m.TimeNow()),
	)
	m.timer.Start(timeout, func() {
		m.timerExpired(generation)
	})
}

// timerExpired handles the expiry of the pending deadline: it advances the
// engine with a timeout wakeup and drains completions. Expiries belonging
// to a cancelled or replaced arm are ignored.
func (m *Manager) timerExpired(generation uint64) {
	if generation != m.timerGen {
		return
	}
	m.Logger.Info(
		"timerFired",
		slog.Time("t", m.TimeNow()),
	)
	m.dispatch(TimeoutWakeup())
}

// RequestWatch implements [Hooks].
//
// The engine calls it, synchronously from within Add, Remove, or Advance,
// to change the watched event set of a socket. The external watcher has no
// modify operation, so a direction change is expressed as StopWatching
// followed by a fresh Watch. A socket the engine presents for the first
// time has necessarily never been watched, so the first request never stops
// a watch, even when that first request is [WatchRemove].
func (m *Manager) RequestWatch(socket Socket, action WatchAction) {
	if _, known := m.sockets[socket]; known {
		m.watcher.StopWatching(socket)
	}
	if action == WatchRemove {
		m.Logger.Info(
			"socketUnwatch",
			slog.Uint64("socket", uint64(socket)),
			slog.Time("t", m.TimeNow()),
		)
		delete(m.sockets, socket)
		return
	}
	event := EventRead
	switch action {
	case WatchWrite:
		event = EventWrite
	case WatchReadWrite:
		event = EventRead | EventWrite
	}
	m.sockets[socket] = event
	m.Logger.Info(
		"socketWatch",
		slog.Uint64("socket", uint64(socket)),
		slog.String("event", event.String()),
		slog.Time("t", m.TimeNow()),
	)
	m.watcher.Watch(socket, event, m.socketReady)
}

// socketReady handles a readiness notification from the watcher: it
// advances the engine with a socket wakeup and drains completions.
// Notifications for sockets the manager is not watching anymore are
// ignored.
func (m *Manager) socketReady(socket Socket, canWrite bool) {
	if _, known := m.sockets[socket]; !known {
		m.Logger.Info(
			"socketReadyIgnored",
			slog.Uint64("socket", uint64(socket)),
			slog.Bool("canWrite", canWrite),
			slog.Time("t", m.TimeNow()),
		)
		return
	}
	event := EventRead
	if canWrite {
		event = EventWrite
	}
	m.Logger.Info(
		"socketReady",
		slog.Uint64("socket", uint64(socket)),
		slog.String("event", event.String()),
		slog.Time("t", m.TimeNow()),
	)
	m.dispatch(SocketWakeup(socket, event))
}

// dispatch advances the engine and drains completions to exhaustion. Each
// completed handle still present in the registry is removed before its
// finished callback runs, so the callback observes a consistent registry
// and may restart the connection as a fresh run. Handles missing from the
// registry were already handled by a more specific code path (typically
// Abort) and are skipped.
func (m *Manager) dispatch(wakeup Wakeup) {
	for completion := range m.engine.Advance(wakeup) {
		conn, ok := m.running[completion.Handle]
		if !ok {
			continue
		}
		delete(m.running, completion.Handle)
		m.Logger.Info(
			"connFinished",
			slog.Uint64("handle", uint64(completion.Handle)),
			slog.Any("err", completion.Result),
			slog.String("errClass", m.ErrClassifier.Classify(completion.Result)),
			slog.String("runId", conn.RunID()),
			slog.Time("t", m.TimeNow()),
		)
		conn.didFinish(completion.Result)
	}
}
