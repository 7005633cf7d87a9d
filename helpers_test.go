// SPDX-License-Identifier: GPL-3.0-or-later

package muxio

import (
	"context"
	"iter"
	"log/slog"
	"time"

	"github.com/bassosimone/slogstub"
)

// newCapturingLogger returns a logger that captures all log records into the
// returned slice. The caller can inspect the slice after exercising the code
// under test to verify which events were emitted.
func newCapturingLogger() (*slog.Logger, *[]slog.Record) {
	var records []slog.Record
	handler := &slogstub.FuncHandler{
		EnabledFunc: func(ctx context.Context, level slog.Level) bool {
			return true
		},
		HandleFunc: func(ctx context.Context, record slog.Record) error {
			records = append(records, record)
			return nil
		},
	}
	return slog.New(handler), &records
}

// recordMessages extracts the message of each captured record.
func recordMessages(records []slog.Record) []string {
	var messages []string
	for _, record := range records {
		messages = append(messages, record.Message)
	}
	return messages
}

// funcEngine is a configurable [Engine] stub with function fields, in the
// style of netstub.FuncConn. Unset fields fall back to a minimal default:
// Bind remembers the hooks, Open assigns sequential handles, Add and Remove
// succeed, and Advance yields the completions queued in pending, including
// those enqueued while the sequence is being consumed.
type funcEngine struct {
	BindFunc    func(hooks Hooks)
	OpenFunc    func(src TransferSource) (Handle, error)
	CloseFunc   func(handle Handle)
	AddFunc     func(handle Handle) error
	RemoveFunc  func(handle Handle) error
	AdvanceFunc func(wakeup Wakeup) iter.Seq[Completion]

	// hooks are the hooks installed by Bind.
	hooks Hooks

	// sources maps assigned handles to their transfer sources.
	sources map[Handle]TransferSource

	// nextHandle is the next handle Open assigns.
	nextHandle Handle

	// pending are the completions the default Advance yields.
	pending []Completion

	// advances records every Advance wakeup.
	advances []Wakeup
}

var _ Engine = &funcEngine{}

func (e *funcEngine) Bind(hooks Hooks) {
	e.hooks = hooks
	if e.BindFunc != nil {
		e.BindFunc(hooks)
	}
}

func (e *funcEngine) Open(src TransferSource) (Handle, error) {
	if e.OpenFunc != nil {
		return e.OpenFunc(src)
	}
	e.nextHandle++
	if e.sources == nil {
		e.sources = make(map[Handle]TransferSource)
	}
	e.sources[e.nextHandle] = src
	return e.nextHandle, nil
}

func (e *funcEngine) Close(handle Handle) {
	if e.CloseFunc != nil {
		e.CloseFunc(handle)
	}
	delete(e.sources, handle)
}

func (e *funcEngine) Add(handle Handle) error {
	if e.AddFunc != nil {
		return e.AddFunc(handle)
	}
	return nil
}

func (e *funcEngine) Remove(handle Handle) error {
	if e.RemoveFunc != nil {
		return e.RemoveFunc(handle)
	}
	return nil
}

func (e *funcEngine) Advance(wakeup Wakeup) iter.Seq[Completion] {
	e.advances = append(e.advances, wakeup)
	if e.AdvanceFunc != nil {
		return e.AdvanceFunc(wakeup)
	}
	return func(yield func(Completion) bool) {
		for len(e.pending) > 0 {
			completion := e.pending[0]
			e.pending = e.pending[1:]
			if !yield(completion) {
				return
			}
		}
	}
}

// complete queues a completion for the default Advance to yield.
func (e *funcEngine) complete(handle Handle, result error) {
	e.pending = append(e.pending, Completion{Handle: handle, Result: result})
}

// recordingTimer is a [Timer] that records arms and cancels and lets the
// test fire the pending expiry callback by hand.
type recordingTimer struct {
	// starts records the timeout of each Start call.
	starts []time.Duration

	// stops counts the Stop calls.
	stops int

	// onExpire is the callback of the most recent Start.
	onExpire func()
}

var _ Timer = &recordingTimer{}

func (t *recordingTimer) Start(timeout time.Duration, onExpire func()) {
	t.starts = append(t.starts, timeout)
	t.onExpire = onExpire
}

func (t *recordingTimer) Stop() {
	t.stops++
}

// watchCall records the arguments of one Watch call.
type watchCall struct {
	socket Socket
	event  Event
}

// recordingWatcher is a [SocketWatcher] that records calls and keeps the
// readiness callbacks so the test can signal readiness by hand.
type recordingWatcher struct {
	// watches records every Watch call in order.
	watches []watchCall

	// stops records every StopWatching call in order.
	stops []Socket

	// onReady maps each watched socket to its readiness callback.
	onReady map[Socket]ReadyFunc
}

var _ SocketWatcher = &recordingWatcher{}

func (w *recordingWatcher) Watch(socket Socket, event Event, onReady ReadyFunc) {
	w.watches = append(w.watches, watchCall{socket: socket, event: event})
	if w.onReady == nil {
		w.onReady = make(map[Socket]ReadyFunc)
	}
	w.onReady[socket] = onReady
}

func (w *recordingWatcher) StopWatching(socket Socket) {
	w.stops = append(w.stops, socket)
}

// newTestManager wires a manager with a fresh funcEngine, recordingTimer,
// and recordingWatcher, returning all four.
func newTestManager() (*Manager, *funcEngine, *recordingTimer, *recordingWatcher) {
	engine := &funcEngine{}
	timer := &recordingTimer{}
	watcher := &recordingWatcher{}
	manager := NewManager(NewConfig(), engine, timer, watcher)
	return manager, engine, timer, watcher
}
